package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/payables/internal/invoice/domain"
)

type errorResponse struct {
	Type    string              `json:"type"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

var (
	ErrNotFound         = errors.New("not_found")
	ErrMethodNotAllowed = errors.New("method_not_allowed")
	ErrRequestTooLarge  = errors.New("request_too_large")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// requestError is a 422 raised by the HTTP layer itself, before the workflow runs.
func requestError(field, message string) error {
	return invoicedomain.NewValidationError(invoicedomain.Violation{Field: field, Message: message})
}

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{
			Type:    "internal_error",
			Message: "Internal server error.",
		}
	}

	if verr, ok := invoicedomain.AsValidationError(err); ok {
		message := "The given data was invalid."
		if first, found := verr.First(); found {
			message = first.Message
		}
		return http.StatusUnprocessableEntity, errorResponse{
			Type:    "validation_error",
			Message: message,
			Errors:  verr.Fields(),
		}
	}

	switch {
	case errors.Is(err, invoicedomain.ErrNotFound):
		return http.StatusNotFound, errorResponse{
			Type:    "not_found",
			Message: "Invoice not found.",
		}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorResponse{
			Type:    "not_found",
			Message: "Not found.",
		}
	case errors.Is(err, invoicedomain.ErrUnsupported):
		return http.StatusMethodNotAllowed, errorResponse{
			Type:    "unsupported_operation",
			Message: "Invoices cannot be deleted.",
		}
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, errorResponse{
			Type:    "method_not_allowed",
			Message: "Method not allowed.",
		}
	case errors.Is(err, ErrRequestTooLarge):
		return http.StatusRequestEntityTooLarge, errorResponse{
			Type:    "request_too_large",
			Message: "The request body is too large.",
		}
	case errors.Is(err, invoicedomain.ErrExecutionConflict):
		return http.StatusConflict, errorResponse{
			Type:    "conflict",
			Message: "The invoice was changed by another request. Reload it and try again.",
		}
	case errors.Is(err, invoicedomain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, errorResponse{
			Type:    "service_unavailable",
			Message: "Service temporarily unavailable.",
		}
	default:
		return http.StatusInternalServerError, errorResponse{
			Type:    "internal_error",
			Message: "Internal server error.",
		}
	}
}

// classifyErrorForLog returns the error type and the first offending field, if any.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if verr, ok := invoicedomain.AsValidationError(err); ok {
		if first, found := verr.First(); found {
			return payload.Type, first.Field
		}
	}
	return payload.Type, ""
}
