package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ledgerlens/internal/detection"
	apperrors "ledgerlens/internal/errors"
	"ledgerlens/internal/formats"
	"ledgerlens/pkg/contracts/domain"
)

// Store is the in-memory dataset engine
type Store struct {
	mu       sync.RWMutex
	datasets map[string]*dataset
	cfg      storeConfig
	logger   *slog.Logger
}

var _ Backend = (*Store)(nil)

// NewStore creates an empty in-memory store
func NewStore(opts ...Option) *Store {
	cfg := storeConfig{
		logger:    slog.Default(),
		metrics:   nopRecorder{},
		batchSize: DefaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.parser == nil {
		cfg.parser = formats.New()
	}
	if cfg.detector == nil {
		cfg.detector = detection.New(cfg.parser, detection.DefaultConfig())
	}
	return &Store{
		datasets: make(map[string]*dataset),
		cfg:      cfg,
		logger:   cfg.logger.With(slog.String("component", "datastore")),
	}
}

// Parser returns the parser used for ingestion
func (s *Store) Parser() *formats.Parser { return s.cfg.parser }

// Detector returns the detector used for ingestion
func (s *Store) Detector() *detection.Detector { return s.cfg.detector }

// Close releases nothing for the memory store
func (s *Store) Close() error { return nil }

// StoreData detects, parses and stores a table under a new name
func (s *Store) StoreData(ctx context.Context, name string, table domain.Table, opts ...StoreOption) (domain.Metadata, error) {
	return s.ingest(ctx, name, table, false, opts)
}

// ReplaceData stores a table, overwriting any dataset of the same name. Row
// IDs continue from the replaced dataset and indexes on surviving columns are
// rebuilt.
func (s *Store) ReplaceData(ctx context.Context, name string, table domain.Table, opts ...StoreOption) (domain.Metadata, error) {
	return s.ingest(ctx, name, table, true, opts)
}

func (s *Store) ingest(ctx context.Context, name string, table domain.Table, replace bool, opts []StoreOption) (domain.Metadata, error) {
	start := time.Now()
	if err := validateTable(name, table); err != nil {
		return domain.Metadata{}, err
	}

	cfg := ingestConfig{hints: make(map[string]domain.FormatTag)}
	for _, opt := range opts {
		opt(&cfg)
	}
	columns := make(map[string]bool, len(table.Columns))
	for _, col := range table.Columns {
		columns[col.Name] = true
	}
	for col := range cfg.hints {
		if !columns[col] {
			return domain.Metadata{}, apperrors.UnknownColumn(name, col)
		}
	}
	for _, col := range cfg.indexes {
		if !columns[col] {
			return domain.Metadata{}, apperrors.UnknownColumn(name, col)
		}
	}

	if !replace {
		s.mu.RLock()
		_, exists := s.datasets[name]
		s.mu.RUnlock()
		if exists {
			return domain.Metadata{}, apperrors.DuplicateDataset(name)
		}
	}

	schema, err := s.detect(ctx, table.Columns, cfg.hints)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("detect %s: %w", name, err)
	}
	values, err := s.parseTable(ctx, table, schema)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("parse %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.datasets[name]
	if exists && !replace {
		return domain.Metadata{}, apperrors.DuplicateDataset(name)
	}

	ds := newDataset(name, table.ColumnNames(), schema, s.cfg.now())
	indexCols := cfg.indexes
	if exists {
		prev.mu.Lock()
		ds.nextID = prev.nextID
		ds.createdAt = prev.createdAt
		for _, col := range prev.indexNames() {
			if ds.hasColumn(col) {
				indexCols = append(indexCols, col)
			}
		}
		prev.retired = true
		prev.mu.Unlock()
	}

	ds.mu.Lock()
	ds.appendRows(values)
	for _, col := range indexCols {
		ds.buildIndex(col)
	}
	meta := ds.metadata()
	ds.mu.Unlock()
	s.datasets[name] = ds

	s.recordIngest(name, meta, len(values))
	s.cfg.metrics.ObserveOperation("store", time.Since(start))
	s.logger.Info("dataset stored",
		slog.String("dataset", name),
		slog.Int("rows", meta.Rows),
		slog.Int("columns", len(meta.Columns)),
		slog.Int("parse_failures", meta.TotalFailures()),
		slog.Bool("replaced", exists),
		slog.Duration("duration", time.Since(start)))
	return meta, nil
}

func validateTable(name string, table domain.Table) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.NewAppValidationError("dataset name is required")
	}
	if len(table.Columns) == 0 {
		return apperrors.NewAppValidationError("table has no columns").WithContext("dataset", name)
	}
	seen := make(map[string]bool, len(table.Columns))
	for i, col := range table.Columns {
		if strings.TrimSpace(col.Name) == "" {
			return apperrors.NewAppValidationError(fmt.Sprintf("column %d has no name", i)).
				WithContext("dataset", name)
		}
		if seen[col.Name] {
			return apperrors.NewAppValidationError(fmt.Sprintf("column %q appears twice", col.Name)).
				WithContext("dataset", name)
		}
		seen[col.Name] = true
	}
	return nil
}

func (s *Store) detect(ctx context.Context, cols []domain.Column, hints map[string]domain.FormatTag) (map[string]domain.DetectionResult, error) {
	results, err := s.cfg.detector.AnalyzeColumns(ctx, cols)
	if err != nil {
		return nil, err
	}
	schema := make(map[string]domain.DetectionResult, len(cols))
	for i, col := range cols {
		res := results[i]
		if tag, ok := hints[col.Name]; ok {
			res = domain.DetectionResult{Type: tag.Type(), Format: tag, Confidence: 1, Sampled: res.Sampled}
		}
		schema[col.Name] = res
	}
	return schema, nil
}

// parseTable parses every cell under its column's detected format. Columns
// are parsed concurrently; the context is checked between row batches.
func (s *Store) parseTable(ctx context.Context, table domain.Table, schema map[string]domain.DetectionResult) ([]map[string]domain.Value, error) {
	n := table.RowCount()
	parsed := make([][]domain.Value, len(table.Columns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for c, col := range table.Columns {
		g.Go(func() error {
			res := schema[col.Name]
			out := make([]domain.Value, n)
			for i := range out {
				if i%s.cfg.batchSize == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				var cell domain.Cell
				if i < len(col.Cells) {
					cell = col.Cells[i]
				}
				out[i] = s.cfg.parser.ParseCell(cell, res)
			}
			parsed[c] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([]map[string]domain.Value, n)
	for i := range rows {
		vals := make(map[string]domain.Value, len(table.Columns))
		for c, col := range table.Columns {
			vals[col.Name] = parsed[c][i]
		}
		rows[i] = vals
	}
	return rows, nil
}

func (s *Store) recordIngest(name string, meta domain.Metadata, rows int) {
	s.cfg.metrics.RowsIngested(name, rows)
	for _, reasons := range meta.FailureReasons {
		for reason, n := range reasons {
			s.cfg.metrics.ParseFailures(reason, n)
		}
	}
}

// lookup returns the live dataset registered under name
func (s *Store) lookup(name string) (*dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[name]
	if !ok {
		return nil, apperrors.UnknownDataset(name)
	}
	return ds, nil
}

// lockDataset returns the dataset under name with its write lock held
func (s *Store) lockDataset(name string) (*dataset, error) {
	for {
		ds, err := s.lookup(name)
		if err != nil {
			return nil, err
		}
		ds.mu.Lock()
		if !ds.retired {
			return ds, nil
		}
		ds.mu.Unlock()
	}
}

// rlockDataset returns the dataset under name with its read lock held
func (s *Store) rlockDataset(name string) (*dataset, error) {
	for {
		ds, err := s.lookup(name)
		if err != nil {
			return nil, err
		}
		ds.mu.RLock()
		if !ds.retired {
			return ds, nil
		}
		ds.mu.RUnlock()
	}
}

// AppendRows parses rows under the existing schema and adds them with fresh
// IDs. Each row lists cells in the dataset's column order.
func (s *Store) AppendRows(ctx context.Context, name string, rows [][]domain.Cell) ([]domain.RowID, error) {
	start := time.Now()
	ds, err := s.lockDataset(name)
	if err != nil {
		return nil, err
	}
	defer ds.mu.Unlock()

	for i, row := range rows {
		if len(row) != len(ds.columns) {
			return nil, apperrors.NewAppValidationError(
				fmt.Sprintf("row %d has %d cells, dataset has %d columns", i, len(row), len(ds.columns))).
				WithContext("dataset", name)
		}
	}

	values, err := s.parseTable(ctx, domain.TableFromRows(name, ds.columns, rows), ds.schema)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	ids := ds.appendRows(values)
	ds.updatedAt = s.cfg.now()

	s.cfg.metrics.RowsIngested(name, len(ids))
	s.cfg.metrics.ObserveOperation("append", time.Since(start))
	s.logger.Debug("rows appended",
		slog.String("dataset", name),
		slog.Int("rows", len(ids)))
	return ids, nil
}

// UpdateCell re-parses one cell under its column's format
func (s *Store) UpdateCell(ctx context.Context, name string, id domain.RowID, column string, cell domain.Cell) (domain.Value, error) {
	if err := ctx.Err(); err != nil {
		return domain.Value{}, err
	}
	ds, err := s.lockDataset(name)
	if err != nil {
		return domain.Value{}, err
	}
	defer ds.mu.Unlock()

	res, ok := ds.schema[column]
	if !ok {
		return domain.Value{}, apperrors.UnknownColumn(name, column)
	}
	if _, ok := ds.pos[id]; !ok {
		return domain.Value{}, apperrors.UnknownRow(name, uint64(id))
	}

	v := s.cfg.parser.ParseCell(cell, res)
	ds.setValue(id, column, v)
	ds.updatedAt = s.cfg.now()
	if v.IsFailure() {
		s.cfg.metrics.ParseFailures(v.Reason(), 1)
	}
	return v, nil
}

// DeleteRows removes every row matching all filters and returns how many
// were removed. Deleted IDs are never reassigned.
func (s *Store) DeleteRows(ctx context.Context, name string, filters []Filter) (int, error) {
	if len(filters) == 0 {
		return 0, apperrors.NewAppValidationError("delete needs at least one filter").WithContext("dataset", name)
	}
	ds, err := s.lockDataset(name)
	if err != nil {
		return 0, err
	}
	defer ds.mu.Unlock()

	plan, err := s.plan(ds, filters, "")
	if err != nil {
		return 0, err
	}
	ids, err := plan.execute(ctx, ds, s.cfg.batchSize)
	if err != nil {
		return 0, err
	}
	set := make(idSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	n := ds.deleteRows(set)
	if n > 0 {
		ds.updatedAt = s.cfg.now()
	}
	s.logger.Debug("rows deleted", slog.String("dataset", name), slog.Int("rows", n))
	return n, nil
}

// CreateIndex builds the index on column, rebuilding it if it exists
func (s *Store) CreateIndex(ctx context.Context, name, column string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	ds, err := s.lockDataset(name)
	if err != nil {
		return err
	}
	defer ds.mu.Unlock()

	if !ds.hasColumn(column) {
		return apperrors.UnknownColumn(name, column)
	}
	ix := ds.buildIndex(column)

	s.cfg.metrics.ObserveOperation("create_index", time.Since(start))
	s.logger.Debug("index built",
		slog.String("dataset", name),
		slog.String("column", column),
		slog.String("kind", string(ix.Kind())),
		slog.Int("keys", ix.keys()))
	return nil
}

// DropIndex removes the index on column. Dropping a missing index is a no-op.
func (s *Store) DropIndex(ctx context.Context, name, column string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ds, err := s.lockDataset(name)
	if err != nil {
		return err
	}
	defer ds.mu.Unlock()

	if !ds.hasColumn(column) {
		return apperrors.UnknownColumn(name, column)
	}
	delete(ds.indexes, column)
	return nil
}

// DropDataset removes a dataset
func (s *Store) DropDataset(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.datasets[name]
	if !ok {
		return apperrors.UnknownDataset(name)
	}
	ds.mu.Lock()
	ds.retired = true
	ds.mu.Unlock()
	delete(s.datasets, name)

	s.logger.Info("dataset dropped", slog.String("dataset", name))
	return nil
}

// GetMetadata summarises one dataset
func (s *Store) GetMetadata(ctx context.Context, name string) (domain.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return domain.Metadata{}, err
	}
	ds, err := s.rlockDataset(name)
	if err != nil {
		return domain.Metadata{}, err
	}
	defer ds.mu.RUnlock()
	return ds.metadata(), nil
}

// ListDatasets summarises every dataset, ordered by name
func (s *Store) ListDatasets(ctx context.Context) ([]domain.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	all := make([]*dataset, 0, len(s.datasets))
	for _, ds := range s.datasets {
		all = append(all, ds)
	}
	s.mu.RUnlock()

	out := make([]domain.Metadata, 0, len(all))
	for _, ds := range all {
		ds.mu.RLock()
		if !ds.retired {
			out = append(out, ds.metadata())
		}
		ds.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
