package datastore

import (
	"context"

	"ledgerlens/pkg/contracts/domain"
)

// Backend is the dataset contract shared by the memory store and the
// persistent stores. Implementations are interchangeable: the same calls
// produce the same rows, errors and aggregates.
type Backend interface {
	StoreData(ctx context.Context, name string, table domain.Table, opts ...StoreOption) (domain.Metadata, error)
	ReplaceData(ctx context.Context, name string, table domain.Table, opts ...StoreOption) (domain.Metadata, error)
	AppendRows(ctx context.Context, name string, rows [][]domain.Cell) ([]domain.RowID, error)
	UpdateCell(ctx context.Context, name string, id domain.RowID, column string, cell domain.Cell) (domain.Value, error)
	DeleteRows(ctx context.Context, name string, filters []Filter) (int, error)

	CreateIndex(ctx context.Context, name, column string) error
	DropIndex(ctx context.Context, name, column string) error
	DropDataset(ctx context.Context, name string) error

	QueryData(ctx context.Context, name string, filters []Filter, opts ...QueryOption) ([]domain.Row, error)
	AggregateData(ctx context.Context, name string, groupBy []string, measures []Measure, opts ...AggregateOption) (AggregateResult, error)
	GetMetadata(ctx context.Context, name string) (domain.Metadata, error)
	ListDatasets(ctx context.Context) ([]domain.Metadata, error)

	Snapshot(ctx context.Context, name string) (Snapshot, error)
	Close() error
}
