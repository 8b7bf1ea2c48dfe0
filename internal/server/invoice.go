package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/payables/internal/invoice/domain"
	"github.com/smallbiznis/payables/pkg/db/pagination"
)

type invoiceResponse struct {
	// ID is a snowflake id rendered as a decimal string. Values exceed 2^53
	// and would lose precision as JavaScript numbers.
	ID            string      `json:"id"`
	Number        string      `json:"number"`
	SupplierName  string      `json:"supplier_name"`
	SupplierTaxID string      `json:"supplier_tax_id"`
	NetAmount     json.Number `json:"net_amount"`
	VatAmount     json.Number `json:"vat_amount"`
	GrossAmount   json.Number `json:"gross_amount"`
	Currency      string      `json:"currency"`
	Status        string      `json:"status"`
	IssueDate     string      `json:"issue_date"`
	DueDate       string      `json:"due_date"`
	CreatedAt     string      `json:"created_at"`
	UpdatedAt     string      `json:"updated_at"`
}

type listInvoicesResponse struct {
	Data  []invoiceResponse `json:"data"`
	Meta  pagination.Meta   `json:"meta"`
	Links pagination.Links  `json:"links"`
}

func newInvoiceResponse(inv invoicedomain.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:            inv.ID.String(),
		Number:        inv.Number,
		SupplierName:  inv.SupplierName,
		SupplierTaxID: inv.SupplierTaxID,
		NetAmount:     json.Number(inv.NetAmount.StringFixed(2)),
		VatAmount:     json.Number(inv.VatAmount.StringFixed(2)),
		GrossAmount:   json.Number(inv.GrossAmount.StringFixed(2)),
		Currency:      inv.Currency,
		Status:        inv.Status.String(),
		IssueDate:     inv.IssueDateString(),
		DueDate:       inv.DueDateString(),
		CreatedAt:     inv.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     inv.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) ListInvoices(c *gin.Context) {
	page, perPage, err := parsePaging(c.Query("page"), c.Query("per_page"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoiceRequest{
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]invoiceResponse, 0, len(resp.Invoices))
	for _, inv := range resp.Invoices {
		data = append(data, newInvoiceResponse(inv))
	}
	meta := pagination.BuildMeta(resp.Page, resp.Total)

	c.JSON(http.StatusOK, listInvoicesResponse{
		Data:  data,
		Meta:  meta,
		Links: pagination.BuildLinks(requestURL(c), meta),
	})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	item, err := s.invoiceSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newInvoiceResponse(item))
}

func (s *Server) CreateInvoice(c *gin.Context) {
	payload, err := decodePayload(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.invoiceSvc.Create(c.Request.Context(), invoicedomain.CreateInvoiceRequest{Payload: payload})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newInvoiceResponse(item))
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	payload, err := decodePayload(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.invoiceSvc.Update(c.Request.Context(), invoicedomain.UpdateInvoiceRequest{
		ID:      strings.TrimSpace(c.Param("id")),
		Payload: payload,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newInvoiceResponse(item))
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	AbortWithError(c, s.invoiceSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))))
}

// maxBodyBytes caps invoice request bodies; a full invoice is well under 4KB.
const maxBodyBytes = 64 << 10

// decodePayload reads the body as a single JSON object, keeping numbers exact.
// An empty body is an empty payload so the usual required messages apply.
func decodePayload(c *gin.Context) (invoicedomain.Payload, error) {
	payload := invoicedomain.Payload{}
	if c.Request.Body == nil {
		return payload, nil
	}

	decoder := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return invoicedomain.Payload{}, nil
		}
		return nil, bodyError(err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, bodyError(err)
	}
	if payload == nil {
		payload = invoicedomain.Payload{}
	}
	return payload, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return ErrRequestTooLarge
	}
	return requestError("request", "The request body must be a JSON object.")
}

func requestURL(c *gin.Context) *url.URL {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if forwarded := strings.TrimSpace(c.GetHeader("X-Forwarded-Proto")); forwarded != "" {
		scheme = forwarded
	}
	return &url.URL{
		Scheme:   scheme,
		Host:     c.Request.Host,
		Path:     c.Request.URL.Path,
		RawQuery: c.Request.URL.RawQuery,
	}
}
