package http

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"ledgerlens/internal/datastore"
	apierrors "ledgerlens/internal/errors"
	"ledgerlens/internal/middleware"
	"ledgerlens/internal/services"
	"ledgerlens/internal/tabular"
	api "ledgerlens/pkg/contracts/api/v1"
	"ledgerlens/pkg/contracts/domain"
)

// DefaultMaxUploadBytes caps request bodies when no limit is configured
const DefaultMaxUploadBytes int64 = 32 << 20

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files
const multipartMemory = 8 << 20

// DatasetHandler serves the dataset and analysis endpoints
type DatasetHandler struct {
	service        DatasetServiceInterface
	validator      *middleware.Validator
	logger         *slog.Logger
	errorHandler   *apierrors.ErrorHandler
	maxUploadBytes int64
}

// NewDatasetHandler creates a dataset handler. A maxUploadBytes <= 0 uses
// DefaultMaxUploadBytes.
func NewDatasetHandler(service DatasetServiceInterface, validator *middleware.Validator, logger *slog.Logger, errorHandler *apierrors.ErrorHandler, maxUploadBytes int64) *DatasetHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &DatasetHandler{
		service:        service,
		validator:      validator,
		logger:         logger.With(slog.String("component", "dataset_handler")),
		errorHandler:   errorHandler,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes returns the /datasets routes
func (h *DatasetHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(h.limitBody)

	r.Get("/", h.ListDatasets)
	r.Post("/", h.CreateDataset)
	r.Post("/upload", h.UploadDataset)

	r.Route("/{name}", func(r chi.Router) {
		r.Use(h.DatasetCtx)
		r.Get("/", h.GetDataset)
		r.Delete("/", h.DropDataset)

		r.Post("/indexes", h.CreateIndex)
		r.Delete("/indexes/{column}", h.DropIndex)

		r.Post("/query", h.QueryDataset)
		r.Post("/aggregate", h.AggregateDataset)
		r.Get("/export", h.ExportDataset)

		r.Post("/rows", h.AppendRows)
		r.Patch("/rows/{id}", h.UpdateCell)
		r.Post("/rows/delete", h.DeleteRows)
	})
	return r
}

// limitBody caps every request body at the upload limit
func (h *DatasetHandler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
		next.ServeHTTP(w, r)
	})
}

// DatasetCtx validates the dataset name path parameter
func (h *DatasetHandler) DatasetCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.validator.ValidateVar("name", chi.URLParam(r, "name"), "dataset"); err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decode reads a JSON body into dst and validates it
func (h *DatasetHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.errorHandler.HandleError(w, r, apierrors.ErrPayloadTooLarge)
			return false
		}
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return false
	}
	if err := h.validator.ValidateStruct(dst); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return false
	}
	return true
}

// ListDatasets handles GET /datasets
func (h *DatasetHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	metas, err := h.service.List(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.DatasetListResponse{Datasets: metas, Count: len(metas)})
}

// CreateDataset handles POST /datasets with a JSON table
func (h *DatasetHandler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	var req api.CreateDatasetRequest
	if !h.decode(w, r, &req) {
		return
	}
	table, err := toTable(req.Name, req.Columns, req.Rows)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	meta, err := h.service.Ingest(r.Context(), req.Name, table, services.IngestOptions{
		Replace: req.Replace,
		Indexes: req.Indexes,
		Hints:   req.Hints,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, meta)
}

// UploadDataset handles POST /datasets/upload. The multipart form carries
// the workbook or CSV in "file"; the reader is chosen by its extension.
func (h *DatasetHandler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUploadBytes {
		h.errorHandler.HandleError(w, r, apierrors.ErrPayloadTooLarge)
		return
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.errorHandler.HandleError(w, r, apierrors.ErrPayloadTooLarge)
			return
		}
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("file", "a file field is required"))
		return
	}
	defer file.Close()

	params, err := uploadParams(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if params.Name == "" {
		params.Name = tabular.TableName(header.Filename)
	}
	if err := h.validator.ValidateStruct(params); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	format, err := tabular.FormatForPath(header.Filename)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "upload received",
		slog.String("dataset", params.Name),
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size),
		slog.String("format", string(format)),
	)

	opts := services.IngestOptions{
		Replace:   params.Replace,
		Indexes:   params.Indexes,
		Sheet:     params.Sheet,
		RawValues: params.RawValues,
	}
	if params.Delimiter != "" {
		opts.Delimiter, _ = utf8.DecodeRuneInString(params.Delimiter)
	}
	meta, err := h.service.IngestReader(r.Context(), params.Name, format, file, opts)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, meta)
}

// uploadParams reads the form fields of an upload
func uploadParams(r *http.Request) (api.UploadParams, error) {
	p := api.UploadParams{
		Name:      strings.TrimSpace(r.FormValue("name")),
		Sheet:     r.FormValue("sheet"),
		Delimiter: r.FormValue("delimiter"),
		Indexes:   splitList(r.FormValue("indexes")),
	}
	for field, dst := range map[string]*bool{"replace": &p.Replace, "raw_values": &p.RawValues} {
		v := r.FormValue(field)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, apierrors.ErrValidation(field, field+" must be a boolean")
		}
		*dst = b
	}
	return p, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetDataset handles GET /datasets/{name}
func (h *DatasetHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	meta, err := h.service.Metadata(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, meta)
}

// DropDataset handles DELETE /datasets/{name}
func (h *DatasetHandler) DropDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Drop(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// CreateIndex handles POST /datasets/{name}/indexes and returns the
// updated metadata
func (h *DatasetHandler) CreateIndex(w http.ResponseWriter, r *http.Request) {
	var req api.IndexRequest
	if !h.decode(w, r, &req) {
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.service.CreateIndex(r.Context(), name, req.Column); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.renderMetadata(w, r, name)
}

// DropIndex handles DELETE /datasets/{name}/indexes/{column}
func (h *DatasetHandler) DropIndex(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.service.DropIndex(r.Context(), name, chi.URLParam(r, "column")); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.renderMetadata(w, r, name)
}

func (h *DatasetHandler) renderMetadata(w http.ResponseWriter, r *http.Request, name string) {
	meta, err := h.service.Metadata(r.Context(), name)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, meta)
}

// QueryDataset handles POST /datasets/{name}/query
func (h *DatasetHandler) QueryDataset(w http.ResponseWriter, r *http.Request) {
	var req api.QueryRequest
	if !h.decode(w, r, &req) {
		return
	}
	name := chi.URLParam(r, "name")
	rows, err := h.service.Query(r.Context(), name, toFilters(req.Filters), toQueryOptions(req)...)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if rows == nil {
		rows = []domain.Row{}
	}
	render.JSON(w, r, api.QueryResponse{Dataset: name, Count: len(rows), Rows: rows})
}

// AggregateDataset handles POST /datasets/{name}/aggregate
func (h *DatasetHandler) AggregateDataset(w http.ResponseWriter, r *http.Request) {
	var req api.AggregateRequest
	if !h.decode(w, r, &req) {
		return
	}
	var opts []datastore.AggregateOption
	if req.Sorted {
		opts = append(opts, datastore.WithSortedGroups())
	}
	res, err := h.service.Aggregate(r.Context(), chi.URLParam(r, "name"), req.GroupBy, toMeasures(req.Measures), opts...)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

// ExportDataset handles GET /datasets/{name}/export?format=csv|xlsx
func (h *DatasetHandler) ExportDataset(w http.ResponseWriter, r *http.Request) {
	format, err := services.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	name := chi.URLParam(r, "name")

	// buffered so a failed export still gets a problem response
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), name, format, &buf, nil); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": fmt.Sprintf("%s.%s", name, format),
	}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "export write failed",
			slog.String("dataset", name),
			slog.String("error", err.Error()),
		)
	}
}

// AppendRows handles POST /datasets/{name}/rows. Rows are in the dataset's
// column order.
func (h *DatasetHandler) AppendRows(w http.ResponseWriter, r *http.Request) {
	var req api.AppendRowsRequest
	if !h.decode(w, r, &req) {
		return
	}
	name := chi.URLParam(r, "name")
	meta, err := h.service.Metadata(r.Context(), name)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	rows, err := toRows(len(meta.Columns), req.Rows)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	ids, err := h.service.AppendRows(r.Context(), name, rows)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, api.AppendRowsResponse{IDs: ids})
}

// UpdateCell handles PATCH /datasets/{name}/rows/{id}
func (h *DatasetHandler) UpdateCell(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("id", "id must be a row number"))
		return
	}
	var req api.UpdateCellRequest
	if !h.decode(w, r, &req) {
		return
	}
	cell, err := toCell(req.Value)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("value", err.Error()))
		return
	}

	v, err := h.service.UpdateCell(r.Context(), chi.URLParam(r, "name"), domain.RowID(id), req.Column, cell)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.UpdateCellResponse{ID: domain.RowID(id), Column: req.Column, Value: v})
}

// DeleteRows handles POST /datasets/{name}/rows/delete
func (h *DatasetHandler) DeleteRows(w http.ResponseWriter, r *http.Request) {
	var req api.DeleteRowsRequest
	if !h.decode(w, r, &req) {
		return
	}
	n, err := h.service.DeleteRows(r.Context(), chi.URLParam(r, "name"), toFilters(req.Filters))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.DeleteRowsResponse{Deleted: n})
}

// Analyze handles POST /analyze: detection only, nothing is stored
func (h *DatasetHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	var req api.AnalyzeRequest
	if !h.decode(w, r, &req) {
		return
	}
	table, err := toTable("", req.Columns, req.Rows)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	out, err := h.service.Analyze(r.Context(), table, req.Scores)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.AnalyzeResponse{Columns: toColumnReports(out)})
}
