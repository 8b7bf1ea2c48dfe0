package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound           = errors.New("not_found")
	ErrUnsupported        = errors.New("unsupported_operation")
	ErrExecutionConflict  = errors.New("execution_conflict")
	ErrStorageUnavailable = errors.New("storage_unavailable")
)

// Payload field names, in the order violations are reported.
const (
	FieldNumber        = "number"
	FieldSupplierName  = "supplier_name"
	FieldSupplierTaxID = "supplier_tax_id"
	FieldNetAmount     = "net_amount"
	FieldVatAmount     = "vat_amount"
	FieldGrossAmount   = "gross_amount"
	FieldCurrency      = "currency"
	FieldStatus        = "status"
	FieldIssueDate     = "issue_date"
	FieldDueDate       = "due_date"
)

const (
	MsgNumberTaken          = "The number has already been taken."
	MsgGrossMismatch        = "Gross amount must equal net_amount + vat_amount."
	MsgOnlyPendingUpdatable = "Only invoices with pending status can be updated."
)

// Violation is a single field-level rejection.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violation found for a payload.
type ValidationError struct {
	Violations []Violation
}

func NewValidationError(violations ...Violation) *ValidationError {
	return &ValidationError{Violations: violations}
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return "validation_failed"
	}
	messages := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		messages = append(messages, v.Message)
	}
	return strings.Join(messages, " ")
}

// Fields groups messages per field, keeping their order.
func (e *ValidationError) Fields() map[string][]string {
	fields := make(map[string][]string, len(e.Violations))
	for _, v := range e.Violations {
		fields[v.Field] = append(fields[v.Field], v.Message)
	}
	return fields
}

// First returns the first violation, if any.
func (e *ValidationError) First() (Violation, bool) {
	if e == nil || len(e.Violations) == 0 {
		return Violation{}, false
	}
	return e.Violations[0], true
}

// HasField reports whether field has at least one violation.
func (e *ValidationError) HasField(field string) bool {
	if e == nil {
		return false
	}
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
