package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	invoicedomain "github.com/smallbiznis/payables/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{name: "validation", err: requestError("number", "bad"), status: http.StatusUnprocessableEntity, typ: "validation_error"},
		{name: "invoice not found", err: invoicedomain.ErrNotFound, status: http.StatusNotFound, typ: "not_found"},
		{name: "route not found", err: ErrNotFound, status: http.StatusNotFound, typ: "not_found"},
		{name: "unsupported", err: invoicedomain.ErrUnsupported, status: http.StatusMethodNotAllowed, typ: "unsupported_operation"},
		{name: "method", err: ErrMethodNotAllowed, status: http.StatusMethodNotAllowed, typ: "method_not_allowed"},
		{name: "too large", err: ErrRequestTooLarge, status: http.StatusRequestEntityTooLarge, typ: "request_too_large"},
		{name: "conflict", err: invoicedomain.ErrExecutionConflict, status: http.StatusConflict, typ: "conflict"},
		{name: "storage", err: fmt.Errorf("%w: dial tcp", invoicedomain.ErrStorageUnavailable), status: http.StatusServiceUnavailable, typ: "service_unavailable"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, typ: "internal_error"},
		{name: "nil", err: nil, status: http.StatusInternalServerError, typ: "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.typ, body.Type)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestMapErrorValidationUsesFirstViolation(t *testing.T) {
	err := invoicedomain.NewValidationError(
		invoicedomain.Violation{Field: "number", Message: "The number field is required."},
		invoicedomain.Violation{Field: "due_date", Message: "The due date field is required."},
		invoicedomain.Violation{Field: "number", Message: invoicedomain.MsgNumberTaken},
	)

	_, body := mapError(fmt.Errorf("create: %w", err))
	assert.Equal(t, "The number field is required.", body.Message)
	assert.Equal(t, map[string][]string{
		"number":   {"The number field is required.", invoicedomain.MsgNumberTaken},
		"due_date": {"The due date field is required."},
	}, body.Errors)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, field := classifyErrorForLog(requestError("per_page", "bad"))
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "per_page", field)

	typ, field = classifyErrorForLog(invoicedomain.ErrNotFound)
	assert.Equal(t, "not_found", typ)
	assert.Empty(t, field)
}

func TestParsePaging(t *testing.T) {
	page, perPage, err := parsePaging("", "")
	assert.NoError(t, err)
	assert.Equal(t, 0, page)
	assert.Equal(t, 0, perPage)

	page, perPage, err = parsePaging(" 3 ", "0")
	assert.NoError(t, err)
	assert.Equal(t, 3, page)
	assert.Equal(t, -1, perPage)

	_, _, err = parsePaging("1.5", "")
	verr, ok := invoicedomain.AsValidationError(err)
	assert.True(t, ok)
	assert.True(t, verr.HasField("page"))
}
