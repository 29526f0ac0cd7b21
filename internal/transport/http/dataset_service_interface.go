package http

import (
	"context"
	"io"

	"ledgerlens/internal/datastore"
	"ledgerlens/internal/services"
	"ledgerlens/internal/tabular"
	"ledgerlens/pkg/contracts/domain"
)

// DatasetServiceInterface defines the dataset operations the handlers need
type DatasetServiceInterface interface {
	Ingest(ctx context.Context, name string, table domain.Table, opts services.IngestOptions) (domain.Metadata, error)
	IngestReader(ctx context.Context, name string, format tabular.Format, src io.Reader, opts services.IngestOptions) (domain.Metadata, error)
	Analyze(ctx context.Context, table domain.Table, withScores bool) ([]services.ColumnAnalysis, error)

	List(ctx context.Context) ([]domain.Metadata, error)
	Metadata(ctx context.Context, name string) (domain.Metadata, error)
	Drop(ctx context.Context, name string) error
	CreateIndex(ctx context.Context, name, column string) error
	DropIndex(ctx context.Context, name, column string) error

	Query(ctx context.Context, name string, filters []datastore.Filter, opts ...datastore.QueryOption) ([]domain.Row, error)
	Aggregate(ctx context.Context, name string, groupBy []string, measures []datastore.Measure, opts ...datastore.AggregateOption) (datastore.AggregateResult, error)
	Export(ctx context.Context, name string, format services.ExportFormat, out io.Writer, filters []datastore.Filter, opts ...datastore.QueryOption) error

	AppendRows(ctx context.Context, name string, rows [][]domain.Cell) ([]domain.RowID, error)
	UpdateCell(ctx context.Context, name string, id domain.RowID, column string, cell domain.Cell) (domain.Value, error)
	DeleteRows(ctx context.Context, name string, filters []datastore.Filter) (int, error)
}

var _ DatasetServiceInterface = (*services.DatasetService)(nil)
