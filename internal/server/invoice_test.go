package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payables/internal/clock"
	"github.com/smallbiznis/payables/internal/config"
	invoicedomain "github.com/smallbiznis/payables/internal/invoice/domain"
	"github.com/smallbiznis/payables/internal/invoice/repository"
	"github.com/smallbiznis/payables/internal/invoice/service"
	obsmiddleware "github.com/smallbiznis/payables/internal/observability/logger"
	"github.com/smallbiznis/payables/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testAPI struct {
	engine *gin.Engine
	clock  *clock.FakeClock
	db     *gorm.DB
}

func newTestAPI(t *testing.T) testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.ReplaceAll(t.Name(), "/", "_")
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&invoicedomain.Invoice{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC))

	svc := service.NewService(service.ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
		Rules: config.NewStaticRulesHolder(config.DefaultInvoiceRules()),
	})

	engine := NewEngine(obsmiddleware.MiddlewareConfig{}, nil)
	srv := NewServer(ServerParams{Gin: engine, Log: zap.NewNop(), InvoiceSvc: svc})
	srv.RegisterAPIRoutes()

	return testAPI{engine: engine, clock: fake, db: conn}
}

func (a testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func validBody(number string) map[string]any {
	return map[string]any{
		"number":          number,
		"supplier_name":   `ТОВ "Альфа Консалтинг"`,
		"supplier_tax_id": "1234567890",
		"net_amount":      10000.00,
		"vat_amount":      2000.00,
		"gross_amount":    12000.00,
		"currency":        "UAH",
		"status":          "pending",
		"issue_date":      "2025-02-10",
		"due_date":        "2025-02-20",
	}
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	decoder := json.NewDecoder(w.Body)
	decoder.UseNumber()
	require.NoError(t, decoder.Decode(out), w.Body.String())
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	decodeInto(t, w, &out)
	return out
}

func (a testAPI) create(t *testing.T, number string) invoiceResponse {
	t.Helper()
	w := a.do(t, http.MethodPost, "/invoices", validBody(number))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created invoiceResponse
	decodeInto(t, w, &created)
	return created
}

func TestCreateInvoiceWithValidData(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/invoices", validBody("INV-2025-0001"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := w.Body.String()
	assert.Contains(t, body, `"gross_amount":12000.00`)
	assert.Contains(t, body, `"vat_amount":2000.00`)
	assert.Contains(t, body, `"issue_date":"2025-02-10"`)

	var created invoiceResponse
	decodeInto(t, w, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "INV-2025-0001", created.Number)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "UAH", created.Currency)
	assert.Equal(t, "2025-02-20", created.DueDate)
	assert.Equal(t, "2025-02-10T09:00:00Z", created.CreatedAt)

	w = api.do(t, http.MethodGet, "/invoices/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var fetched invoiceResponse
	decodeInto(t, w, &fetched)
	assert.Equal(t, created, fetched)
}

func TestInvoiceIDIsRenderedAsString(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/invoices", validBody("INV-2025-0001"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Regexp(t, `"id":"[0-9]+"`, w.Body.String())

	var created invoiceResponse
	decodeInto(t, w, &created)
	id, err := strconv.ParseInt(created.ID, 10, 64)
	require.NoError(t, err)
	assert.Greater(t, id, int64(1)<<53)
}

func TestCreateInvoiceGrossMismatch(t *testing.T) {
	api := newTestAPI(t)
	body := validBody("INV-2025-0001")
	body["gross_amount"] = 13000.00

	w := api.do(t, http.MethodPost, "/invoices", body)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, "validation_error", resp.Type)
	assert.Equal(t, invoicedomain.MsgGrossMismatch, resp.Message)
	assert.Equal(t, []string{invoicedomain.MsgGrossMismatch}, resp.Errors["gross_amount"])

	var count int64
	require.NoError(t, api.db.Model(&invoicedomain.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateInvoiceEmptyBody(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/invoices", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, "The number field is required.", resp.Message)
	assert.Contains(t, resp.Errors, "supplier_name")
	assert.Contains(t, resp.Errors, "due_date")
	assert.NotContains(t, resp.Errors, "status")
	assert.NotContains(t, resp.Errors, "currency")
}

func TestCreateInvoiceDuplicateNumber(t *testing.T) {
	api := newTestAPI(t)
	api.create(t, "INV-2025-0001")

	w := api.do(t, http.MethodPost, "/invoices", validBody("INV-2025-0001"))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, invoicedomain.MsgNumberTaken, resp.Message)
	assert.Equal(t, []string{invoicedomain.MsgNumberTaken}, resp.Errors["number"])
}

func TestCreateInvoiceRejectsMalformedBody(t *testing.T) {
	api := newTestAPI(t)

	valid, err := json.Marshal(validBody("INV-2025-0001"))
	require.NoError(t, err)

	for _, body := range []string{
		`{"number":`,
		`[1,2]`,
		`"text"`,
		string(valid) + ` garbage`,
		string(valid) + string(valid),
	} {
		w := api.do(t, http.MethodPost, "/invoices", body)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code, body)

		resp := decodeError(t, w)
		assert.Equal(t, []string{"The request body must be a JSON object."}, resp.Errors["request"], body)
	}
}

func TestCreateInvoiceAcceptsTrailingWhitespace(t *testing.T) {
	api := newTestAPI(t)
	valid, err := json.Marshal(validBody("INV-2025-0001"))
	require.NoError(t, err)

	w := api.do(t, http.MethodPost, "/invoices", string(valid)+"\n  \n")
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCreateInvoiceRejectsOversizedBody(t *testing.T) {
	api := newTestAPI(t)
	body := validBody("INV-2025-0001")
	body["supplier_name"] = strings.Repeat("a", maxBodyBytes)

	w := api.do(t, http.MethodPost, "/invoices", body)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "request_too_large", decodeError(t, w).Type)

	var count int64
	require.NoError(t, api.db.Model(&invoicedomain.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateInvoiceRejectsHugeExponent(t *testing.T) {
	api := newTestAPI(t)
	body := `{"number":"INV-1","supplier_name":"A","supplier_tax_id":"1","net_amount":1e50000000,` +
		`"vat_amount":0,"gross_amount":1e50000000,"issue_date":"2025-02-10","due_date":"2025-02-20"}`

	start := time.Now()
	w := api.do(t, http.MethodPost, "/invoices", body)
	assert.Less(t, time.Since(start), time.Second)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, []string{"The net amount field must be a number."}, resp.Errors["net_amount"])
	assert.Equal(t, []string{"The gross amount field must be a number."}, resp.Errors["gross_amount"])
}

func TestGetInvoiceNotFound(t *testing.T) {
	api := newTestAPI(t)

	for _, id := range []string{"123456789", "abc"} {
		w := api.do(t, http.MethodGet, "/invoices/"+id, nil)
		require.Equal(t, http.StatusNotFound, w.Code, id)

		resp := decodeError(t, w)
		assert.Equal(t, "not_found", resp.Type)
		assert.Equal(t, "Invoice not found.", resp.Message)
		assert.Empty(t, resp.Errors)
	}
}

func TestUpdateInvoiceLifecycle(t *testing.T) {
	api := newTestAPI(t)
	created := api.create(t, "INV-2025-0001")

	body := validBody("INV-2025-0001-A")
	body["supplier_name"] = "ТОВ Бета"
	api.clock.Advance(time.Hour)

	w := api.do(t, http.MethodPut, "/api/invoices/"+created.ID, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated invoiceResponse
	decodeInto(t, w, &updated)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "INV-2025-0001-A", updated.Number)
	assert.Equal(t, "ТОВ Бета", updated.SupplierName)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "2025-02-10T10:00:00Z", updated.UpdatedAt)

	body["status"] = "approved"
	w = api.do(t, http.MethodPatch, "/invoices/"+created.ID, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeInto(t, w, &updated)
	assert.Equal(t, "approved", updated.Status)

	body["status"] = "pending"
	w = api.do(t, http.MethodPut, "/invoices/"+created.ID, body)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, []string{invoicedomain.MsgOnlyPendingUpdatable}, resp.Errors["status"])
	assert.Equal(t, invoicedomain.MsgOnlyPendingUpdatable, resp.Message)
}

func TestUpdateInvoiceRequiresEveryField(t *testing.T) {
	api := newTestAPI(t)
	created := api.create(t, "INV-2025-0001")

	w := api.do(t, http.MethodPut, "/invoices/"+created.ID, map[string]any{"number": "INV-2025-0002"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, "The supplier name field is required.", resp.Message)
	assert.Contains(t, resp.Errors, "status")
	assert.Contains(t, resp.Errors, "currency")
	assert.NotContains(t, resp.Errors, "number")
}

func TestUpdateUnknownInvoice(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPut, "/invoices/42", validBody("INV-2025-0001"))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListInvoicesPaginates(t *testing.T) {
	api := newTestAPI(t)
	first := api.create(t, "INV-2025-0001")
	api.clock.Advance(time.Minute)
	api.create(t, "INV-2025-0002")
	api.clock.Advance(time.Minute)
	last := api.create(t, "INV-2025-0003")

	w := api.do(t, http.MethodGet, "/invoices?per_page=2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var page1 listInvoicesResponse
	decodeInto(t, w, &page1)
	require.Len(t, page1.Data, 2)
	assert.Equal(t, last.ID, page1.Data[0].ID)
	assert.Equal(t, pagination.Meta{CurrentPage: 1, PerPage: 2, Total: 3, LastPage: 2}, page1.Meta)
	assert.Nil(t, page1.Links.Prev)
	require.NotNil(t, page1.Links.Next)
	assert.Equal(t, "http://example.com/invoices?page=2&per_page=2", *page1.Links.Next)
	assert.Equal(t, "http://example.com/invoices?page=1&per_page=2", page1.Links.First)

	w = api.do(t, http.MethodGet, *page1.Links.Next, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var page2 listInvoicesResponse
	decodeInto(t, w, &page2)
	require.Len(t, page2.Data, 1)
	assert.Equal(t, first.ID, page2.Data[0].ID)
	assert.Nil(t, page2.Links.Next)
	require.NotNil(t, page2.Links.Prev)
}

func TestListInvoicesEmpty(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/invoices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)

	var resp listInvoicesResponse
	decodeInto(t, w, &resp)
	assert.Equal(t, int64(0), resp.Meta.Total)
	assert.Equal(t, 1, resp.Meta.LastPage)
}

func TestListInvoicesRejectsBadPaging(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/invoices?page=two&per_page=x", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, "The page field must be an integer.", resp.Message)
	assert.Equal(t, []string{"The per page field must be an integer."}, resp.Errors["per_page"])
}

func TestDeleteInvoiceIsNotSupported(t *testing.T) {
	api := newTestAPI(t)
	created := api.create(t, "INV-2025-0001")

	w := api.do(t, http.MethodDelete, "/invoices/"+created.ID, nil)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "unsupported_operation", decodeError(t, w).Type)

	w = api.do(t, http.MethodGet, "/invoices/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/suppliers", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found.", decodeError(t, w).Message)

	w = api.do(t, http.MethodPatch, "/invoices", nil)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "method_not_allowed", decodeError(t, w).Type)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
