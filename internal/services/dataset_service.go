package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"ledgerlens/internal/datastore"
	"ledgerlens/internal/detection"
	apperrors "ledgerlens/internal/errors"
	"ledgerlens/internal/exporter"
	"ledgerlens/internal/tabular"
	"ledgerlens/pkg/contracts/domain"
)

// IngestOptions controls how a table becomes a dataset
type IngestOptions struct {
	// Replace swaps the rows of an existing dataset instead of failing
	Replace bool
	Indexes []string
	Hints   map[string]domain.FormatTag

	// Reader options, used by IngestFile and IngestReader only
	Sheet     string
	RawValues bool
	Delimiter rune
}

func (o IngestOptions) storeOptions() []datastore.StoreOption {
	var opts []datastore.StoreOption
	if len(o.Indexes) > 0 {
		opts = append(opts, datastore.WithIndexes(o.Indexes...))
	}
	if len(o.Hints) > 0 {
		opts = append(opts, datastore.WithColumnHints(o.Hints))
	}
	return opts
}

func (o IngestOptions) readerOptions(logger *slog.Logger) []tabular.Option {
	opts := []tabular.Option{tabular.WithLogger(logger), tabular.WithDelimiter(o.Delimiter)}
	if o.Sheet != "" {
		opts = append(opts, tabular.WithSheet(o.Sheet))
	}
	if o.RawValues {
		opts = append(opts, tabular.WithRawValues())
	}
	return opts
}

// ColumnAnalysis is the detector's verdict on one column
type ColumnAnalysis struct {
	Column string                  `json:"column"`
	Result domain.DetectionResult  `json:"result"`
	Scores []detection.FormatScore `json:"scores,omitempty"`
}

// ExportFormat selects the export encoding
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ParseExportFormat resolves a format name, defaulting to csv
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportXLSX:
		return ExportXLSX, nil
	default:
		return "", apperrors.NewAppValidationError(fmt.Sprintf("unsupported export format %q", s))
	}
}

// ContentType returns the MIME type of the encoding
func (f ExportFormat) ContentType() string {
	if f == ExportXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// DatasetService orchestrates reading, detection, storage and export of
// ledger datasets
type DatasetService struct {
	store    datastore.Backend
	detector *detection.Detector
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewDatasetService creates a dataset service. A nil tracer disables spans.
func NewDatasetService(store datastore.Backend, detector *detection.Detector, tracer trace.Tracer, logger *slog.Logger) *DatasetService {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("ledgerlens")
	}
	return &DatasetService{
		store:    store,
		detector: detector,
		tracer:   tracer,
		logger:   logger.With(slog.String("component", "dataset_service")),
	}
}

func (s *DatasetService) start(ctx context.Context, op, dataset string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "dataset."+op, trace.WithAttributes(attribute.String("dataset", dataset)))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// IngestFile reads a workbook or delimited file and stores it as name. An
// empty name uses the file's base name.
func (s *DatasetService) IngestFile(ctx context.Context, name, path string, opts IngestOptions) (meta domain.Metadata, err error) {
	if name == "" {
		name = tabular.TableName(path)
	}
	ctx, span := s.start(ctx, "ingest_file", name)
	defer func() { finish(span, err) }()

	reader, err := tabular.NewReaderForPath(path, opts.readerOptions(s.logger)...)
	if err != nil {
		return domain.Metadata{}, err
	}
	started := time.Now()
	table, err := reader.ListColumns(ctx, path)
	if err != nil {
		return domain.Metadata{}, err
	}
	span.SetAttributes(attribute.String("source", path), attribute.Int("rows", table.RowCount()))
	s.logger.InfoContext(ctx, "file read",
		slog.String("dataset", name),
		slog.String("path", path),
		slog.Int("columns", len(table.Columns)),
		slog.Int("rows", table.RowCount()),
		slog.Duration("duration", time.Since(started)))

	return s.Ingest(ctx, name, table, opts)
}

// IngestReader reads an uploaded stream of the given format and stores it
func (s *DatasetService) IngestReader(ctx context.Context, name string, format tabular.Format, src io.Reader, opts IngestOptions) (meta domain.Metadata, err error) {
	ctx, span := s.start(ctx, "ingest_upload", name)
	defer func() { finish(span, err) }()

	reader, err := tabular.NewReader(format, opts.readerOptions(s.logger)...)
	if err != nil {
		return domain.Metadata{}, err
	}
	table, err := reader.ReadFrom(ctx, src)
	if err != nil {
		return domain.Metadata{}, err
	}
	return s.Ingest(ctx, name, table, opts)
}

// Ingest stores an in-memory table
func (s *DatasetService) Ingest(ctx context.Context, name string, table domain.Table, opts IngestOptions) (meta domain.Metadata, err error) {
	ctx, span := s.start(ctx, "ingest", name)
	defer func() { finish(span, err) }()

	if opts.Replace {
		meta, err = s.store.ReplaceData(ctx, name, table, opts.storeOptions()...)
	} else {
		meta, err = s.store.StoreData(ctx, name, table, opts.storeOptions()...)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "ingest failed", slog.String("dataset", name), slog.String("error", err.Error()))
		return domain.Metadata{}, err
	}

	span.SetAttributes(attribute.Int("rows", meta.Rows), attribute.Int("parse_failures", meta.TotalFailures()))
	s.logger.InfoContext(ctx, "dataset ingested",
		slog.String("dataset", name),
		slog.Int("rows", meta.Rows),
		slog.Int("parse_failures", meta.TotalFailures()),
		slog.Bool("replace", opts.Replace))
	return meta, nil
}

// Analyze runs type detection over a table without storing it
func (s *DatasetService) Analyze(ctx context.Context, table domain.Table, withScores bool) (out []ColumnAnalysis, err error) {
	ctx, span := s.start(ctx, "analyze", table.Name)
	defer func() { finish(span, err) }()

	results, err := s.detector.AnalyzeColumns(ctx, table.Columns)
	if err != nil {
		return nil, err
	}
	out = make([]ColumnAnalysis, len(results))
	for i, res := range results {
		out[i] = ColumnAnalysis{Column: table.Columns[i].Name, Result: res}
		if withScores {
			out[i].Scores = s.detector.Scores(table.Columns[i])
		}
	}
	return out, nil
}

// AnalyzeFile reads a file and analyzes it
func (s *DatasetService) AnalyzeFile(ctx context.Context, path string, opts IngestOptions, withScores bool) ([]ColumnAnalysis, error) {
	reader, err := tabular.NewReaderForPath(path, opts.readerOptions(s.logger)...)
	if err != nil {
		return nil, err
	}
	table, err := reader.ListColumns(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.Analyze(ctx, table, withScores)
}

func (s *DatasetService) Query(ctx context.Context, name string, filters []datastore.Filter, opts ...datastore.QueryOption) (rows []domain.Row, err error) {
	ctx, span := s.start(ctx, "query", name)
	defer func() { finish(span, err) }()

	rows, err = s.store.QueryData(ctx, name, filters, opts...)
	span.SetAttributes(attribute.Int("filters", len(filters)), attribute.Int("matches", len(rows)))
	return rows, err
}

func (s *DatasetService) Aggregate(ctx context.Context, name string, groupBy []string, measures []datastore.Measure, opts ...datastore.AggregateOption) (res datastore.AggregateResult, err error) {
	ctx, span := s.start(ctx, "aggregate", name)
	defer func() { finish(span, err) }()

	res, err = s.store.AggregateData(ctx, name, groupBy, measures, opts...)
	span.SetAttributes(attribute.Int("groups", len(res.Groups)))
	return res, err
}

func (s *DatasetService) Metadata(ctx context.Context, name string) (domain.Metadata, error) {
	return s.store.GetMetadata(ctx, name)
}

func (s *DatasetService) List(ctx context.Context) ([]domain.Metadata, error) {
	return s.store.ListDatasets(ctx)
}

func (s *DatasetService) Drop(ctx context.Context, name string) (err error) {
	ctx, span := s.start(ctx, "drop", name)
	defer func() { finish(span, err) }()

	if err = s.store.DropDataset(ctx, name); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "dataset dropped", slog.String("dataset", name))
	return nil
}

func (s *DatasetService) CreateIndex(ctx context.Context, name, column string) (err error) {
	ctx, span := s.start(ctx, "create_index", name)
	defer func() { finish(span, err) }()
	return s.store.CreateIndex(ctx, name, column)
}

func (s *DatasetService) DropIndex(ctx context.Context, name, column string) (err error) {
	ctx, span := s.start(ctx, "drop_index", name)
	defer func() { finish(span, err) }()
	return s.store.DropIndex(ctx, name, column)
}

func (s *DatasetService) AppendRows(ctx context.Context, name string, rows [][]domain.Cell) (ids []domain.RowID, err error) {
	ctx, span := s.start(ctx, "append", name)
	defer func() { finish(span, err) }()
	return s.store.AppendRows(ctx, name, rows)
}

func (s *DatasetService) UpdateCell(ctx context.Context, name string, id domain.RowID, column string, cell domain.Cell) (v domain.Value, err error) {
	ctx, span := s.start(ctx, "update", name)
	defer func() { finish(span, err) }()
	return s.store.UpdateCell(ctx, name, id, column, cell)
}

func (s *DatasetService) DeleteRows(ctx context.Context, name string, filters []datastore.Filter) (n int, err error) {
	ctx, span := s.start(ctx, "delete", name)
	defer func() { finish(span, err) }()

	n, err = s.store.DeleteRows(ctx, name, filters)
	if err == nil && n > 0 {
		s.logger.InfoContext(ctx, "rows deleted", slog.String("dataset", name), slog.Int("rows", n))
	}
	return n, err
}

// Export writes the rows matching filters, in dataset column order
func (s *DatasetService) Export(ctx context.Context, name string, format ExportFormat, out io.Writer, filters []datastore.Filter, opts ...datastore.QueryOption) (err error) {
	ctx, span := s.start(ctx, "export", name)
	defer func() { finish(span, err) }()

	meta, err := s.store.GetMetadata(ctx, name)
	if err != nil {
		return err
	}
	rows, err := s.store.QueryData(ctx, name, filters, opts...)
	if err != nil {
		return err
	}

	switch format {
	case ExportXLSX:
		err = exporter.NewExcelWriter(exporter.DefaultSheet, s.logger).Write(out, meta.Columns, rows)
	default:
		err = exporter.NewCSVWriter(exporter.WithCSVLogger(s.logger)).Write(out, meta.Columns, rows)
	}
	if err != nil {
		return apperrors.NewStorageError("export dataset", err).WithContext("dataset", name)
	}
	span.SetAttributes(attribute.String("format", string(format)), attribute.Int("rows", len(rows)))
	s.logger.InfoContext(ctx, "dataset exported",
		slog.String("dataset", name),
		slog.String("format", string(format)),
		slog.Int("rows", len(rows)))
	return nil
}
