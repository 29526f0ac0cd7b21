package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	apperrors "ledgerlens/internal/errors"
	"ledgerlens/pkg/contracts/domain"
)

// SnapshotSink is durable storage for dataset snapshots
type SnapshotSink interface {
	LoadAll(ctx context.Context) ([]Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Delete(ctx context.Context, name string) error
	Close() error
}

// Persistent wraps the memory store and writes the affected dataset's
// snapshot to a sink after every successful write. Reads are served from
// memory.
type Persistent struct {
	*Store
	sink SnapshotSink

	// writeMu orders memory writes with their snapshot saves so a slower
	// save never overwrites a newer one
	writeMu sync.Mutex
}

var _ Backend = (*Persistent)(nil)

// NewPersistent hydrates mem from sink and returns the wrapped store
func NewPersistent(ctx context.Context, mem *Store, sink SnapshotSink) (*Persistent, error) {
	snaps, err := sink.LoadAll(ctx)
	if err != nil {
		return nil, apperrors.NewStorageError("load snapshots", err)
	}
	for _, snap := range snaps {
		if err := mem.Restore(ctx, snap); err != nil {
			return nil, fmt.Errorf("restore %s: %w", snap.Name, err)
		}
	}
	mem.logger.Info("datastore hydrated", slog.Int("datasets", len(snaps)))
	return &Persistent{Store: mem, sink: sink}, nil
}

func (p *Persistent) save(ctx context.Context, name string) error {
	snap, err := p.Store.Snapshot(ctx, name)
	if err != nil {
		return err
	}
	if err := p.sink.Save(ctx, snap); err != nil {
		return apperrors.NewStorageError("save snapshot", err).WithContext("dataset", name)
	}
	return nil
}

func (p *Persistent) StoreData(ctx context.Context, name string, table domain.Table, opts ...StoreOption) (domain.Metadata, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	meta, err := p.Store.StoreData(ctx, name, table, opts...)
	if err != nil {
		return meta, err
	}
	return meta, p.save(ctx, name)
}

func (p *Persistent) ReplaceData(ctx context.Context, name string, table domain.Table, opts ...StoreOption) (domain.Metadata, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	meta, err := p.Store.ReplaceData(ctx, name, table, opts...)
	if err != nil {
		return meta, err
	}
	return meta, p.save(ctx, name)
}

func (p *Persistent) AppendRows(ctx context.Context, name string, rows [][]domain.Cell) ([]domain.RowID, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	ids, err := p.Store.AppendRows(ctx, name, rows)
	if err != nil {
		return nil, err
	}
	return ids, p.save(ctx, name)
}

func (p *Persistent) UpdateCell(ctx context.Context, name string, id domain.RowID, column string, cell domain.Cell) (domain.Value, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	v, err := p.Store.UpdateCell(ctx, name, id, column, cell)
	if err != nil {
		return v, err
	}
	return v, p.save(ctx, name)
}

func (p *Persistent) DeleteRows(ctx context.Context, name string, filters []Filter) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	n, err := p.Store.DeleteRows(ctx, name, filters)
	if err != nil || n == 0 {
		return n, err
	}
	return n, p.save(ctx, name)
}

func (p *Persistent) CreateIndex(ctx context.Context, name, column string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.Store.CreateIndex(ctx, name, column); err != nil {
		return err
	}
	return p.save(ctx, name)
}

func (p *Persistent) DropIndex(ctx context.Context, name, column string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.Store.DropIndex(ctx, name, column); err != nil {
		return err
	}
	return p.save(ctx, name)
}

func (p *Persistent) DropDataset(ctx context.Context, name string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.Store.DropDataset(ctx, name); err != nil {
		return err
	}
	if err := p.sink.Delete(ctx, name); err != nil {
		return apperrors.NewStorageError("delete snapshot", err).WithContext("dataset", name)
	}
	return nil
}

// Restore installs snap in memory and persists it
func (p *Persistent) Restore(ctx context.Context, snap Snapshot) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.Store.Restore(ctx, snap); err != nil {
		return err
	}
	return p.save(ctx, snap.Name)
}

// Close closes the sink
func (p *Persistent) Close() error {
	return p.sink.Close()
}
