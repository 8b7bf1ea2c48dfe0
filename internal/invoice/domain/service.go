package domain

import (
	"context"

	"github.com/smallbiznis/payables/pkg/db/pagination"
)

// Payload is a decoded JSON object as sent by the client.
type Payload map[string]any

type ListInvoiceRequest struct {
	Page    int
	PerPage int
}

type ListInvoiceResponse struct {
	Invoices []Invoice
	Page     pagination.Page
	Total    int64
}

type CreateInvoiceRequest struct {
	Payload Payload
}

type UpdateInvoiceRequest struct {
	ID      string
	Payload Payload
}

type Service interface {
	List(context.Context, ListInvoiceRequest) (ListInvoiceResponse, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	Create(context.Context, CreateInvoiceRequest) (Invoice, error)
	Update(context.Context, UpdateInvoiceRequest) (Invoice, error)
	Delete(ctx context.Context, id string) error
}
