package validation

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payables/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() map[string]any {
	return map[string]any{
		"number":          "INV-2025-0001",
		"supplier_name":   `ТОВ "Альфа Консалтинг"`,
		"supplier_tax_id": "1234567890",
		"net_amount":      json.Number("10000.00"),
		"vat_amount":      json.Number("2000.00"),
		"gross_amount":    json.Number("12000.00"),
		"currency":        "UAH",
		"status":          "pending",
		"issue_date":      "2025-02-10",
		"due_date":        "2025-02-20",
	}
}

func fieldsOf(violations []domain.Violation) []string {
	fields := make([]string, 0, len(violations))
	for _, v := range violations {
		fields = append(fields, v.Field)
	}
	return fields
}

func TestValidateAcceptsValidPayload(t *testing.T) {
	fields, violations := Validate(validPayload(), ModeUpdate, Options{})
	require.Empty(t, violations)

	assert.Equal(t, "INV-2025-0001", fields.Number)
	assert.Equal(t, `ТОВ "Альфа Консалтинг"`, fields.SupplierName)
	assert.True(t, fields.GrossAmount.Equal(decimal.RequireFromString("12000")))
	assert.Equal(t, domain.StatusPending, fields.Status)
	assert.Equal(t, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), fields.IssueDate)
	assert.Equal(t, time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC), fields.DueDate)
}

func TestValidateGrossMismatch(t *testing.T) {
	payload := validPayload()
	payload["gross_amount"] = json.Number("13000.00")

	_, violations := Validate(payload, ModeCreate, Options{})
	require.Len(t, violations, 1)
	assert.Equal(t, domain.FieldGrossAmount, violations[0].Field)
	assert.Equal(t, domain.MsgGrossMismatch, violations[0].Message)
}

func TestValidateGrossRoundsHalfUp(t *testing.T) {
	payload := validPayload()
	payload["net_amount"] = "0.105"
	payload["vat_amount"] = "0"
	payload["gross_amount"] = "0.11"

	fields, violations := Validate(payload, ModeCreate, Options{})
	require.Empty(t, violations)
	assert.Equal(t, "0.11", fields.NetAmount.StringFixed(2))
}

func TestValidateGrossIsExactOnDecimals(t *testing.T) {
	payload := validPayload()
	payload["net_amount"] = 0.1
	payload["vat_amount"] = 0.2
	payload["gross_amount"] = 0.3

	_, violations := Validate(payload, ModeCreate, Options{})
	assert.Empty(t, violations)
}

func TestValidateDueBeforeIssue(t *testing.T) {
	payload := validPayload()
	payload["due_date"] = "2025-02-01"

	_, violations := Validate(payload, ModeCreate, Options{})
	require.Len(t, violations, 1)
	assert.Equal(t, domain.FieldDueDate, violations[0].Field)
	assert.Equal(t, "The due date field must be a date after or equal to issue date.", violations[0].Message)
}

func TestValidateDueEqualIssue(t *testing.T) {
	payload := validPayload()
	payload["due_date"] = "2025-02-10"

	_, violations := Validate(payload, ModeCreate, Options{})
	assert.Empty(t, violations)
}

func TestValidateUpdateRequiresEveryField(t *testing.T) {
	_, violations := Validate(map[string]any{}, ModeUpdate, Options{})

	assert.Equal(t, []string{
		domain.FieldNumber,
		domain.FieldSupplierName,
		domain.FieldSupplierTaxID,
		domain.FieldNetAmount,
		domain.FieldVatAmount,
		domain.FieldGrossAmount,
		domain.FieldCurrency,
		domain.FieldStatus,
		domain.FieldIssueDate,
		domain.FieldDueDate,
	}, fieldsOf(violations))
	assert.Equal(t, "The number field is required.", violations[0].Message)
	assert.Equal(t, "The supplier tax id field is required.", violations[2].Message)
}

func TestValidateCreateDefaultsStatusAndCurrency(t *testing.T) {
	payload := validPayload()
	delete(payload, "status")
	delete(payload, "currency")

	fields, violations := Validate(payload, ModeCreate, Options{DefaultCurrency: "eur"})
	require.Empty(t, violations)
	assert.Equal(t, domain.StatusPending, fields.Status)
	assert.Equal(t, "EUR", fields.Currency)

	fields, violations = Validate(payload, ModeCreate, Options{})
	require.Empty(t, violations)
	assert.Equal(t, "UAH", fields.Currency)
}

func TestValidateIgnoresUnknownKeys(t *testing.T) {
	payload := validPayload()
	payload["id"] = "999"
	payload["created_at"] = "yesterday"
	payload["approved_by"] = map[string]any{"name": "x"}

	_, violations := Validate(payload, ModeUpdate, Options{})
	assert.Empty(t, violations)
}

func TestValidateCollectsViolationsInOrder(t *testing.T) {
	payload := validPayload()
	payload["supplier_name"] = strings.Repeat("a", 256)
	payload["net_amount"] = json.Number("0")
	payload["vat_amount"] = json.Number("-1")
	payload["currency"] = "EURO"
	payload["status"] = "paid"
	payload["issue_date"] = "2025-13-45"

	_, violations := Validate(payload, ModeUpdate, Options{})
	assert.Equal(t, []string{
		domain.FieldIssueDate,
		domain.FieldSupplierName,
		domain.FieldNetAmount,
		domain.FieldVatAmount,
		domain.FieldCurrency,
		domain.FieldStatus,
	}, fieldsOf(violations))
	assert.Equal(t, "The issue date field must be a valid date.", violations[0].Message)
	assert.Equal(t, "The supplier name field must not be greater than 255 characters.", violations[1].Message)
	assert.Equal(t, "The net amount field must be greater than 0.", violations[2].Message)
	assert.Equal(t, "The vat amount field must be greater than or equal to 0.", violations[3].Message)
	assert.Equal(t, "The currency field must be 3 characters.", violations[4].Message)
	assert.Equal(t, "The selected status is invalid.", violations[5].Message)
}

func TestValidateTypeErrors(t *testing.T) {
	payload := validPayload()
	payload["number"] = 123
	payload["net_amount"] = "ten"
	payload["gross_amount"] = true
	payload["due_date"] = 20250220

	_, violations := Validate(payload, ModeUpdate, Options{})
	assert.Equal(t, []string{
		domain.FieldNumber,
		domain.FieldNetAmount,
		domain.FieldGrossAmount,
		domain.FieldDueDate,
	}, fieldsOf(violations))
	assert.Equal(t, "The number field must be a string.", violations[0].Message)
	assert.Equal(t, "The net amount field must be a number.", violations[1].Message)
}

func TestValidateBlankStringsCountAsMissing(t *testing.T) {
	payload := validPayload()
	payload["supplier_tax_id"] = "   "

	_, violations := Validate(payload, ModeUpdate, Options{})
	require.Len(t, violations, 1)
	assert.Equal(t, "The supplier tax id field is required.", violations[0].Message)
}

func TestValidateAmountRange(t *testing.T) {
	payload := validPayload()
	payload["net_amount"] = "10000000000000"
	payload["gross_amount"] = "10000000002000"

	_, violations := Validate(payload, ModeCreate, Options{})
	assert.Equal(t, []string{domain.FieldNetAmount, domain.FieldGrossAmount}, fieldsOf(violations))
	assert.Equal(t, "The net amount field must not be greater than 9999999999999.99.", violations[0].Message)
}

func TestValidateNumericStrings(t *testing.T) {
	payload := validPayload()
	payload["net_amount"] = "100"
	payload["vat_amount"] = " 20.50 "
	payload["gross_amount"] = "120.5"

	fields, violations := Validate(payload, ModeCreate, Options{})
	require.Empty(t, violations)
	assert.Equal(t, "20.50", fields.VatAmount.StringFixed(2))
}

func TestValidateStatusNotString(t *testing.T) {
	payload := validPayload()
	payload["status"] = 1

	_, violations := Validate(payload, ModeUpdate, Options{})
	require.Len(t, violations, 1)
	assert.Equal(t, "The selected status is invalid.", violations[0].Message)
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("2025-02-10")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), d)

	d, ok = ParseDate("2025-02-10T23:30:00+02:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), d)

	_, ok = ParseDate("2025-02-30")
	assert.False(t, ok)
	_, ok = ParseDate("10.02.2025")
	assert.False(t, ok)
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{in: json.Number("12.345"), want: "12.345", ok: true},
		{in: "1e3", want: "1000", ok: true},
		{in: 42, want: "42", ok: true},
		{in: 1.5, want: "1.5", ok: true},
		{in: "0x10", ok: false},
		{in: json.Number("1e50000000"), ok: false},
		{in: json.Number("1e-50000000"), ok: false},
		{in: "1e16", ok: false},
		{in: "0.000000000000000000001", ok: false},
		{in: strings.Repeat("9", 65), ok: false},
		{in: 1e300, ok: false},
		{in: "1.5e3", want: "1500", ok: true},
		{in: "", ok: false},
		{in: []any{1}, ok: false},
	}

	for _, tc := range cases {
		got, ok := ParseAmount(tc.in)
		assert.Equal(t, tc.ok, ok, "%v", tc.in)
		if tc.ok {
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "%v", tc.in)
		}
	}
}

func TestValidateRejectsHugeExponentsQuickly(t *testing.T) {
	for _, raw := range []json.Number{"1e50000000", "-1e50000000", "1e-50000000"} {
		payload := validPayload()
		payload["net_amount"] = raw
		payload["vat_amount"] = raw
		payload["gross_amount"] = raw

		start := time.Now()
		_, violations := Validate(payload, ModeCreate, Options{})
		assert.Less(t, time.Since(start), time.Second, string(raw))

		assert.Equal(t, []string{
			domain.FieldNetAmount,
			domain.FieldVatAmount,
			domain.FieldGrossAmount,
		}, fieldsOf(violations), string(raw))
		assert.Equal(t, "The net amount field must be a number.", violations[0].Message)
	}
}

func TestValidateAmountJustAboveMaxAfterRounding(t *testing.T) {
	payload := validPayload()
	payload["net_amount"] = "9999999999999.995"
	payload["vat_amount"] = "0"
	payload["gross_amount"] = "9999999999999.99"

	_, violations := Validate(payload, ModeCreate, Options{})
	require.NotEmpty(t, violations)
	assert.Equal(t, domain.FieldNetAmount, violations[0].Field)
	assert.Equal(t, "The net amount field must not be greater than 9999999999999.99.", violations[0].Message)
}
