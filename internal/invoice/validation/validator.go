// Package validation turns a raw invoice payload into normalized fields or a
// list of field violations. It never touches storage.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payables/internal/invoice/domain"
)

// Mode selects which attributes are required.
type Mode int

const (
	// ModeCreate lets status and currency fall back to their defaults.
	ModeCreate Mode = iota
	// ModeUpdate requires every attribute; updates are full replacements.
	ModeUpdate
)

func (m Mode) String() string {
	if m == ModeUpdate {
		return "update"
	}
	return "create"
}

const (
	maxStringLength = 255
	currencyLength  = 3
	amountScale     = 2

	// Bounds applied before any decimal arithmetic. Rescaling a value such as
	// 1e50000000 allocates a big.Int with that many digits.
	maxAmountTextLength = 64
	minAmountExponent   = -20
	maxAmountExponent   = 15
	maxAmountDigits     = 30
)

// maxAmount is the largest absolute value a decimal(15,2) column holds.
var maxAmount = decimal.RequireFromString("9999999999999.99")

// Options carries rule values that come from configuration.
type Options struct {
	DefaultCurrency string
}

func (o Options) defaultCurrency() string {
	currency := strings.ToUpper(strings.TrimSpace(o.DefaultCurrency))
	if currency == "" {
		return "UAH"
	}
	return currency
}

type amount struct {
	value decimal.Decimal
	ok    bool
}

type date struct {
	value time.Time
	ok    bool
}

// Validate checks payload against the invoice rules and collects every
// violation it finds. Keys outside the invoice attributes are ignored.
// Uniqueness of the number is left to the caller. The returned fields are only
// complete when no violations were reported; attributes that failed are zero.
func Validate(payload map[string]any, mode Mode, opts Options) (domain.InvoiceFields, []domain.Violation) {
	v := &collector{}

	number, numberOK := v.requiredString(payload, domain.FieldNumber)
	supplierName, supplierNameOK := v.requiredString(payload, domain.FieldSupplierName)
	supplierTaxID, supplierTaxIDOK := v.requiredString(payload, domain.FieldSupplierTaxID)
	net := v.requiredAmount(payload, domain.FieldNetAmount)
	vat := v.requiredAmount(payload, domain.FieldVatAmount)
	gross := v.requiredAmount(payload, domain.FieldGrossAmount)

	currency, currencyOK := opts.defaultCurrency(), true
	if mode == ModeUpdate || present(payload, domain.FieldCurrency) {
		currency, currencyOK = v.requiredString(payload, domain.FieldCurrency)
	}

	rawStatus, statusOK := any(string(domain.StatusPending)), true
	if mode == ModeUpdate || present(payload, domain.FieldStatus) {
		rawStatus, statusOK = v.requiredValue(payload, domain.FieldStatus)
	}

	issue := v.requiredDate(payload, domain.FieldIssueDate)
	due := v.requiredDate(payload, domain.FieldDueDate)

	if numberOK {
		v.maxLength(domain.FieldNumber, number)
	}
	if supplierNameOK {
		v.maxLength(domain.FieldSupplierName, supplierName)
	}
	if supplierTaxIDOK {
		v.maxLength(domain.FieldSupplierTaxID, supplierTaxID)
	}

	if net.ok && !net.value.IsPositive() {
		v.add(domain.FieldNetAmount, "The %s field must be greater than 0.", label(domain.FieldNetAmount))
		net.ok = false
	}
	if vat.ok && vat.value.IsNegative() {
		v.add(domain.FieldVatAmount, "The %s field must be greater than or equal to 0.", label(domain.FieldVatAmount))
		vat.ok = false
	}
	for _, a := range []struct {
		field string
		amt   *amount
	}{
		{domain.FieldNetAmount, &net},
		{domain.FieldVatAmount, &vat},
		{domain.FieldGrossAmount, &gross},
	} {
		if a.amt.ok && exceedsMaxAmount(a.amt.value) {
			v.add(a.field, "The %s field must not be greater than %s.", label(a.field), maxAmount.StringFixed(amountScale))
			a.amt.ok = false
		}
	}

	if currencyOK && utf8.RuneCountInString(currency) != currencyLength {
		v.add(domain.FieldCurrency, "The %s field must be %d characters.", label(domain.FieldCurrency), currencyLength)
	}

	var status domain.Status
	if statusOK {
		status, statusOK = parseStatus(rawStatus)
		if !statusOK {
			v.add(domain.FieldStatus, "The selected %s is invalid.", label(domain.FieldStatus))
		}
	}

	if issue.ok && due.ok && due.value.Before(issue.value) {
		v.add(domain.FieldDueDate, "The %s field must be a date after or equal to %s.", label(domain.FieldDueDate), label(domain.FieldIssueDate))
	}

	if net.ok && vat.ok && gross.ok && !GrossMatches(net.value, vat.value, gross.value) {
		v.add(domain.FieldGrossAmount, domain.MsgGrossMismatch)
	}

	return domain.InvoiceFields{
		Number:        number,
		SupplierName:  supplierName,
		SupplierTaxID: supplierTaxID,
		NetAmount:     net.value.Round(amountScale),
		VatAmount:     vat.value.Round(amountScale),
		GrossAmount:   gross.value.Round(amountScale),
		Currency:      currency,
		Status:        status,
		IssueDate:     issue.value,
		DueDate:       due.value,
	}, v.violations
}

// exceedsMaxAmount compares the raw value first so oversized input is
// rejected without rounding it.
func exceedsMaxAmount(value decimal.Decimal) bool {
	abs := value.Abs()
	if abs.GreaterThan(maxAmount) {
		return true
	}
	return abs.Round(amountScale).GreaterThan(maxAmount)
}

// GrossMatches compares gross against net+vat after rounding both sides half
// away from zero to two places.
func GrossMatches(net, vat, gross decimal.Decimal) bool {
	return gross.Round(amountScale).Equal(net.Add(vat).Round(amountScale))
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and keeps only the
// calendar date as written.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(domain.DateLayout, value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// ParseAmount accepts JSON numbers and numeric strings. Values whose exponent
// or digit count falls outside what an invoice amount can use are rejected.
func ParseAmount(raw any) (decimal.Decimal, bool) {
	d, ok := parseAmount(raw)
	if !ok || !withinAmountBounds(d) {
		return decimal.Decimal{}, false
	}
	return d, true
}

func withinAmountBounds(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp < minAmountExponent || exp > maxAmountExponent {
		return false
	}
	return d.NumDigits() <= maxAmountDigits
}

func parseAmount(raw any) (decimal.Decimal, bool) {
	switch value := raw.(type) {
	case json.Number:
		return parseDecimalString(value.String())
	case string:
		return parseDecimalString(value)
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(value), true
	case int:
		return decimal.NewFromInt(int64(value)), true
	case int64:
		return decimal.NewFromInt(value), true
	case int32:
		return decimal.NewFromInt32(value), true
	case decimal.Decimal:
		return value, true
	default:
		return decimal.Decimal{}, false
	}
}

func parseDecimalString(value string) (decimal.Decimal, bool) {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxAmountTextLength {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

type collector struct {
	violations []domain.Violation
}

func (c *collector) add(field, format string, args ...any) {
	message := format
	if len(args) > 0 {
		message = fmt.Sprintf(format, args...)
	}
	c.violations = append(c.violations, domain.Violation{Field: field, Message: message})
}

func (c *collector) required(field string) {
	c.add(field, "The %s field is required.", label(field))
}

func (c *collector) requiredString(payload map[string]any, field string) (string, bool) {
	raw, ok := payload[field]
	if !ok || raw == nil {
		c.required(field)
		return "", false
	}
	s, isString := raw.(string)
	if !isString {
		c.add(field, "The %s field must be a string.", label(field))
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		c.required(field)
		return "", false
	}
	return s, true
}

func (c *collector) maxLength(field, value string) {
	if utf8.RuneCountInString(value) > maxStringLength {
		c.add(field, "The %s field must not be greater than %d characters.", label(field), maxStringLength)
	}
}

func (c *collector) requiredAmount(payload map[string]any, field string) amount {
	raw, ok := payload[field]
	if !ok || raw == nil || isBlankString(raw) {
		c.required(field)
		return amount{}
	}
	value, ok := ParseAmount(raw)
	if !ok {
		c.add(field, "The %s field must be a number.", label(field))
		return amount{}
	}
	return amount{value: value, ok: true}
}

func (c *collector) requiredValue(payload map[string]any, field string) (any, bool) {
	raw, ok := payload[field]
	if !ok || raw == nil || isBlankString(raw) {
		c.required(field)
		return nil, false
	}
	return raw, true
}

func parseStatus(raw any) (domain.Status, bool) {
	s, ok := raw.(string)
	if !ok {
		return "", false
	}
	return domain.ParseStatus(strings.TrimSpace(s))
}

func (c *collector) requiredDate(payload map[string]any, field string) date {
	raw, ok := payload[field]
	if !ok || raw == nil || isBlankString(raw) {
		c.required(field)
		return date{}
	}
	s, isString := raw.(string)
	if !isString {
		c.add(field, "The %s field must be a valid date.", label(field))
		return date{}
	}
	value, ok := ParseDate(s)
	if !ok {
		c.add(field, "The %s field must be a valid date.", label(field))
		return date{}
	}
	return date{value: value, ok: true}
}

func present(payload map[string]any, field string) bool {
	raw, ok := payload[field]
	return ok && raw != nil && !isBlankString(raw)
}

func isBlankString(raw any) bool {
	s, ok := raw.(string)
	return ok && strings.TrimSpace(s) == ""
}

// label renders a field name the way messages refer to it.
func label(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}
