package datastore

import (
	"log/slog"
	"time"

	"ledgerlens/internal/detection"
	"ledgerlens/internal/formats"
	"ledgerlens/pkg/contracts/domain"
)

// DefaultBatchSize is the number of rows parsed between context checks
const DefaultBatchSize = 500

// Recorder receives datastore measurements. infrastructure.Metrics
// implements it with prometheus collectors.
type Recorder interface {
	RowsIngested(dataset string, n int)
	ParseFailures(reason domain.FailureReason, n int)
	QueryPath(path string)
	ObserveOperation(op string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RowsIngested(string, int) {}
func (nopRecorder) ParseFailures(domain.FailureReason, int) {}
func (nopRecorder) QueryPath(string) {}
func (nopRecorder) ObserveOperation(string, time.Duration) {}

type storeConfig struct {
	parser    *formats.Parser
	detector  *detection.Detector
	logger    *slog.Logger
	metrics   Recorder
	batchSize int
	now       func() time.Time
}

// Option configures a Store
type Option func(*storeConfig)

// WithParser sets the format parser used for ingestion and literal coercion
func WithParser(p *formats.Parser) Option {
	return func(c *storeConfig) {
		if p != nil {
			c.parser = p
		}
	}
}

// WithDetector sets the column type detector
func WithDetector(d *detection.Detector) Option {
	return func(c *storeConfig) {
		if d != nil {
			c.detector = d
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(c *storeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the measurement sink
func WithMetrics(r Recorder) Option {
	return func(c *storeConfig) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithBatchSize sets how many rows are parsed between context checks
func WithBatchSize(n int) Option {
	return func(c *storeConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(c *storeConfig) {
		if now != nil {
			c.now = now
		}
	}
}

type ingestConfig struct {
	hints   map[string]domain.FormatTag
	indexes []string
}

// StoreOption configures a single ingest
type StoreOption func(*ingestConfig)

// WithColumnHints forces the format of the named columns instead of
// detecting it. Forced columns report confidence 1.0.
func WithColumnHints(hints map[string]domain.FormatTag) StoreOption {
	return func(c *ingestConfig) {
		for col, tag := range hints {
			c.hints[col] = tag
		}
	}
}

// WithIndexes builds indexes on the named columns as part of the ingest
func WithIndexes(columns ...string) StoreOption {
	return func(c *ingestConfig) {
		c.indexes = append(c.indexes, columns...)
	}
}

type queryConfig struct {
	indexHint string
	orderBy   string
	desc      bool
	limit     int
}

// QueryOption configures QueryData
type QueryOption func(*queryConfig)

// WithIndexHint evaluates the filter on column first
func WithIndexHint(column string) QueryOption {
	return func(c *queryConfig) { c.indexHint = column }
}

// WithOrderBy sorts results by column. Null and failed values sort last in
// either direction; ties keep ascending row ID order.
func WithOrderBy(column string, desc bool) QueryOption {
	return func(c *queryConfig) {
		c.orderBy = column
		c.desc = desc
	}
}

// WithLimit caps the number of returned rows
func WithLimit(n int) QueryOption {
	return func(c *queryConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

type aggregateConfig struct {
	sorted bool
}

// AggregateOption configures AggregateData
type AggregateOption func(*aggregateConfig)

// WithSortedGroups orders groups by key instead of first-seen order
func WithSortedGroups() AggregateOption {
	return func(c *aggregateConfig) { c.sorted = true }
}
