package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerlens/internal/datastore"
	"ledgerlens/internal/detection"
	apierrors "ledgerlens/internal/errors"
	"ledgerlens/internal/formats"
	"ledgerlens/internal/middleware"
	"ledgerlens/internal/services"
	"ledgerlens/internal/shared/testutil"
	api "ledgerlens/pkg/contracts/api/v1"
	"ledgerlens/pkg/contracts/domain"
)

type apiFixture struct {
	router http.Handler
	store  *datastore.Store
}

func newAPIFixture(t *testing.T, maxUpload int64) apiFixture {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	parser := formats.New()
	det := detection.New(parser, detection.DefaultConfig())
	store := datastore.NewStore(datastore.WithLogger(logger), datastore.WithParser(parser), datastore.WithDetector(det))
	svc := services.NewDatasetService(store, det, nil, logger)

	errorHandler := apierrors.NewErrorHandler(logger, false)
	h := NewDatasetHandler(svc, middleware.NewValidator(), logger, errorHandler, maxUpload)
	health := NewHealthHandler(services.NewHealthService("test", "memory", store, logger), logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/datasets", h.Routes())
		r.Post("/analyze", h.Analyze)
	})
	r.Get("/healthz", health.ReadinessCheck)
	r.Get("/healthz/live", health.LivenessCheck)
	return apiFixture{router: r, store: store}
}

func (f apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func ledgerRequest(name string, n int) api.CreateDatasetRequest {
	raw := testutil.LedgerRows(n)
	rows := make([][]any, len(raw))
	for i, r := range raw {
		rows[i] = make([]any, len(r))
		for j, tok := range r {
			rows[i][j] = tok
		}
	}
	return api.CreateDatasetRequest{Name: name, Columns: testutil.LedgerColumns, Rows: rows}
}

func (f apiFixture) seed(t *testing.T, n int) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/datasets", ledgerRequest("ledger", n))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestDatasetLifecycle(t *testing.T) {
	f := newAPIFixture(t, 0)

	req := ledgerRequest("ledger", 20)
	req.Indexes = []string{"category"}
	rec := f.do(t, http.MethodPost, "/api/v1/datasets", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	meta := decodeBody[domain.Metadata](t, rec)
	assert.Equal(t, 20, meta.Rows)
	assert.Equal(t, domain.FormatAccounting, meta.DTypes["amount"].Format)
	assert.Equal(t, []string{"category"}, meta.Indexes)

	rec = f.do(t, http.MethodGet, "/api/v1/datasets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[api.DatasetListResponse](t, rec)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "ledger", list.Datasets[0].Name)

	rec = f.do(t, http.MethodGet, "/api/v1/datasets/ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testutil.LedgerColumns, decodeBody[domain.Metadata](t, rec).Columns)

	rec = f.do(t, http.MethodDelete, "/api/v1/datasets/ledger", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/datasets/ledger", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	problem := decodeBody[map[string]any](t, rec)
	assert.Equal(t, apierrors.TypeUnknownDataset, problem["type"])
	assert.NotEmpty(t, problem["trace_id"])
}

func TestCreateDataset_Rejections(t *testing.T) {
	f := newAPIFixture(t, 0)
	f.seed(t, 3)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"duplicate name", ledgerRequest("ledger", 2), http.StatusConflict},
		{"slash in name", ledgerRequest("a/b", 2), http.StatusBadRequest},
		{"no columns", api.CreateDatasetRequest{Name: "x"}, http.StatusBadRequest},
		{"repeated columns", api.CreateDatasetRequest{Name: "x", Columns: []string{"a", "a"}}, http.StatusBadRequest},
		{"row wider than header", api.CreateDatasetRequest{Name: "x", Columns: []string{"a"}, Rows: [][]any{{"1", "2"}}}, http.StatusBadRequest},
		{"object cell", api.CreateDatasetRequest{Name: "x", Columns: []string{"a"}, Rows: [][]any{{map[string]any{"k": 1}}}}, http.StatusBadRequest},
		{"malformed json", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/datasets", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		})
	}

	replace := ledgerRequest("ledger", 5)
	replace.Replace = true
	rec := f.do(t, http.MethodPost, "/api/v1/datasets", replace)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 5, decodeBody[domain.Metadata](t, rec).Rows)
}

func TestCreateDataset_MixedCells(t *testing.T) {
	f := newAPIFixture(t, 0)
	rec := f.do(t, http.MethodPost, "/api/v1/datasets", api.CreateDatasetRequest{
		Name:    "mixed",
		Columns: []string{"amount", "when"},
		Rows:    [][]any{{1250.5, "03/04/2023"}, {75.0, nil}, {nil, "05/06/2023"}},
		Hints:   map[string]domain.FormatTag{"when": domain.FormatEuDate},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	meta := decodeBody[domain.Metadata](t, rec)
	assert.Equal(t, domain.FormatEuDate, meta.DTypes["when"].Format)
	assert.Equal(t, 1, meta.NullCounts["amount"])

	rec = f.do(t, http.MethodPost, "/api/v1/datasets/mixed/query", api.QueryRequest{
		Filters: []api.FilterSpec{{Column: "when", Op: "eq", Value: "2023-04-03"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[api.QueryResponse](t, rec)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "1250.5", res.Rows[0].Get("amount").Amount.String())
}

func uploadRequest(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadDataset(t *testing.T) {
	f := newAPIFixture(t, 0)
	fixtures := testutil.NewLedgerFixtures(t.TempDir())

	csvPath := fixtures.CreateCSV(t, "expenses.csv", ';', append([][]string{testutil.LedgerColumns}, testutil.LedgerRows(12)...))
	content, err := os.ReadFile(csvPath)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, uploadRequest(t, "expenses.csv", content, map[string]string{
		"delimiter": ";",
		"indexes":   "category, account",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	meta := decodeBody[domain.Metadata](t, rec)
	assert.Equal(t, "expenses", meta.Name, "the file name is the default dataset name")
	assert.Equal(t, 12, meta.Rows)
	assert.ElementsMatch(t, []string{"category", "account"}, meta.Indexes)

	xlsxPath := fixtures.CreateLedgerWorkbook(t, "book.xlsx", 9)
	content, err = os.ReadFile(xlsxPath)
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, uploadRequest(t, "book.xlsx", content, map[string]string{"name": "q1", "sheet": "Ledger"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 9, decodeBody[domain.Metadata](t, rec).Rows)

	tests := []struct {
		name     string
		filename string
		fields   map[string]string
		status   int
	}{
		{"unsupported extension", "notes.pdf", nil, http.StatusBadRequest},
		{"bad boolean", "x.csv", map[string]string{"replace": "maybe"}, http.StatusBadRequest},
		{"long delimiter", "x.csv", map[string]string{"delimiter": ";;"}, http.StatusBadRequest},
		{"duplicate without replace", "expenses.csv", nil, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, uploadRequest(t, tt.filename, []byte("a,b\n1,2\n"), tt.fields))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/datasets/upload", strings.NewReader("plain")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadDataset_TooLarge(t *testing.T) {
	f := newAPIFixture(t, 512)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, uploadRequest(t, "big.csv", bytes.Repeat([]byte("a,b\n"), 1024), nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, apierrors.TypePayloadTooLarge, decodeBody[map[string]any](t, rec)["type"])
}

func TestQueryDataset(t *testing.T) {
	f := newAPIFixture(t, 0)
	f.seed(t, 40)

	rec := f.do(t, http.MethodPost, "/api/v1/datasets/ledger/query", api.QueryRequest{
		Filters: []api.FilterSpec{
			{Column: "category", Op: "eq", Value: "Rent"},
			{Column: "posted", Op: "between", Values: []any{"2023-01-01", "2023-01-20"}},
		},
		OrderBy: "posted",
		Desc:    true,
		Limit:   3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[api.QueryResponse](t, rec)
	assert.Equal(t, "ledger", res.Dataset)
	require.Equal(t, 3, res.Count)
	// Rent rows are 1, 5, 9, 13, 17 within the first twenty days
	assert.Equal(t, "2023-01-18", res.Rows[0].Get("posted").Date.Format("2006-01-02"))
	assert.Equal(t, "2023-01-10", res.Rows[2].Get("posted").Date.Format("2006-01-02"))

	rec = f.do(t, http.MethodPost, "/api/v1/datasets/ledger/query", api.QueryRequest{
		Filters: []api.FilterSpec{{Column: "amount", Op: "gt", Value: 1e9}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res = decodeBody[api.QueryResponse](t, rec)
	assert.Zero(t, res.Count)
	assert.NotNil(t, res.Rows, "no matches encode as an empty list")

	tests := []struct {
		name   string
		body   api.QueryRequest
		status int
	}{
		{"unknown operator", api.QueryRequest{Filters: []api.FilterSpec{{Column: "amount", Op: "like", Value: "1"}}}, http.StatusBadRequest},
		{"unknown column", api.QueryRequest{Filters: []api.FilterSpec{{Column: "memo", Op: "eq", Value: "x"}}}, http.StatusNotFound},
		{"contains on a number", api.QueryRequest{Filters: []api.FilterSpec{{Column: "amount", Op: "contains", Value: "1"}}}, http.StatusUnprocessableEntity},
		{"negative limit", api.QueryRequest{Limit: -1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/datasets/ledger/query", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec = f.do(t, http.MethodPost, "/api/v1/datasets/missing/query", api.QueryRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAggregateDataset(t *testing.T) {
	f := newAPIFixture(t, 0)
	f.seed(t, 16)

	rec := f.do(t, http.MethodPost, "/api/v1/datasets/ledger/aggregate", api.AggregateRequest{
		GroupBy:  []string{"category"},
		Measures: []api.MeasureSpec{{Column: "amount", Funcs: []string{"sum", "COUNT"}}},
		Sorted:   true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[datastore.AggregateResult](t, rec)
	require.Len(t, res.Groups, len(testutil.LedgerCategories))
	assert.Equal(t, "Payroll", res.Groups[0].Key[0].Text, "sorted groups")

	want := testutil.LedgerAmount(3).Add(testutil.LedgerAmount(7)).Add(testutil.LedgerAmount(11)).Add(testutil.LedgerAmount(15))
	sum, ok := res.Groups[0].Get("amount", datastore.AggSum)
	require.True(t, ok)
	assert.True(t, want.Equal(sum.Amount), "got %s want %s", sum.Amount, want)
	count, _ := res.Groups[0].Get("amount", datastore.AggCount)
	assert.Equal(t, "4", count.Amount.String())

	rec = f.do(t, http.MethodPost, "/api/v1/datasets/ledger/aggregate", api.AggregateRequest{
		Measures: []api.MeasureSpec{{Column: "amount", Funcs: []string{"median"}}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/datasets/ledger/aggregate", api.AggregateRequest{
		Measures: []api.MeasureSpec{{Column: "category", Funcs: []string{"sum"}}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestExportDataset(t *testing.T) {
	f := newAPIFixture(t, 0)
	f.seed(t, 6)

	rec := f.do(t, http.MethodGet, "/api/v1/datasets/ledger/export", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=ledger.csv`, rec.Header().Get("Content-Disposition"))
	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 7)

	rec = f.do(t, http.MethodGet, "/api/v1/datasets/ledger/export?format=xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	rec = f.do(t, http.MethodGet, "/api/v1/datasets/ledger/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/v1/datasets/nope/export", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndexEndpoints(t *testing.T) {
	f := newAPIFixture(t, 0)
	f.seed(t, 4)

	rec := f.do(t, http.MethodPost, "/api/v1/datasets/ledger/indexes", api.IndexRequest{Column: "amount"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"amount"}, decodeBody[domain.Metadata](t, rec).Indexes)

	rec = f.do(t, http.MethodPost, "/api/v1/datasets/ledger/indexes", api.IndexRequest{Column: "memo"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/datasets/ledger/indexes", api.IndexRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/datasets/ledger/indexes/amount", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[domain.Metadata](t, rec).Indexes)
}

func TestRowEndpoints(t *testing.T) {
	f := newAPIFixture(t, 0)
	f.seed(t, 4)

	rec := f.do(t, http.MethodPost, "/api/v1/datasets/ledger/rows", api.AppendRowsRequest{
		Rows: [][]any{{"2023-07-01", "1000-001", "Rent", "$12.00", "INV-A"}, {"2023-07-02", nil, "Travel", 8.5}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []domain.RowID{5, 6}, decodeBody[api.AppendRowsResponse](t, rec).IDs)

	rec = f.do(t, http.MethodPost, "/api/v1/datasets/ledger/rows", api.AppendRowsRequest{
		Rows: [][]any{{"1", "2", "3", "4", "5", "6"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/v1/datasets/ledger/rows/5", api.UpdateCellRequest{Column: "amount", Value: "$99.95"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[api.UpdateCellResponse](t, rec)
	assert.Equal(t, "99.95", updated.Value.Amount.String())

	rec = f.do(t, http.MethodPatch, "/api/v1/datasets/ledger/rows/500", api.UpdateCellRequest{Column: "amount", Value: "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodPatch, "/api/v1/datasets/ledger/rows/five", api.UpdateCellRequest{Column: "amount"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/datasets/ledger/rows/delete", api.DeleteRowsRequest{
		Filters: []api.FilterSpec{{Column: "reference", Op: "in", Values: []any{"INV-A", "INV-00000"}}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decodeBody[api.DeleteRowsResponse](t, rec).Deleted)

	rec = f.do(t, http.MethodPost, "/api/v1/datasets/ledger/rows/delete", api.DeleteRowsRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "deleting requires a filter")

	meta, err := f.store.GetMetadata(context.Background(), "ledger")
	require.NoError(t, err)
	assert.Equal(t, 4, meta.Rows)
}

func TestAnalyze(t *testing.T) {
	f := newAPIFixture(t, 0)
	req := ledgerRequest("", 30)

	rec := f.do(t, http.MethodPost, "/api/v1/analyze", api.AnalyzeRequest{Columns: req.Columns, Rows: req.Rows, Scores: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[api.AnalyzeResponse](t, rec)
	require.Len(t, res.Columns, len(testutil.LedgerColumns))
	assert.Equal(t, "amount", res.Columns[3].Column)
	assert.Equal(t, domain.FormatAccounting, res.Columns[3].Result.Format)
	assert.NotEmpty(t, res.Columns[3].Scores)
	assert.Equal(t, domain.TypeDate, res.Columns[0].Result.Type)

	list := decodeBody[api.DatasetListResponse](t, f.do(t, http.MethodGet, "/api/v1/datasets", nil))
	assert.Zero(t, list.Count, "analysis stores nothing")

	rec = f.do(t, http.MethodPost, "/api/v1/analyze", api.AnalyzeRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDatasetNameParam(t *testing.T) {
	f := newAPIFixture(t, 0)
	long := strings.Repeat("x", middleware.MaxDatasetNameLength+1)
	rec := f.do(t, http.MethodGet, "/api/v1/datasets/"+long, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type brokenLister struct{}

func (brokenLister) ListDatasets(context.Context) ([]domain.Metadata, error) {
	return nil, errors.New("connection refused")
}

func TestHealthHandler(t *testing.T) {
	f := newAPIFixture(t, 0)
	f.seed(t, 3)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[services.HealthStatus](t, rec)
	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, 3, status.Storage.Rows)

	rec = f.do(t, http.MethodGet, "/healthz/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", decodeBody[services.HealthStatus](t, rec).Status)

	logger, _ := testutil.NewTestLogger(t)
	down := NewHealthHandler(services.NewHealthService("test", "postgres", brokenLister{}, logger), logger)
	rec = httptest.NewRecorder()
	down.ReadinessCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "connection refused", decodeBody[services.HealthStatus](t, rec).Storage.Message)
}
