package datastore

import (
	"context"
	"log/slog"
	"slices"
	"time"

	apperrors "ledgerlens/internal/errors"
	"ledgerlens/pkg/contracts/domain"
)

// Snapshot is the serialisable state of one dataset. Persistent backends
// store it as a JSON document.
type Snapshot struct {
	Name      string                            `json:"name"`
	Columns   []string                          `json:"columns"`
	Schema    map[string]domain.DetectionResult `json:"schema"`
	Rows      []domain.Row                      `json:"rows"`
	Indexes   []string                          `json:"indexes"`
	NextRowID domain.RowID                      `json:"next_row_id"`
	CreatedAt time.Time                         `json:"created_at"`
	UpdatedAt time.Time                         `json:"updated_at"`
}

// Snapshot copies the state of one dataset
func (s *Store) Snapshot(ctx context.Context, name string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	ds, err := s.rlockDataset(name)
	if err != nil {
		return Snapshot{}, err
	}
	defer ds.mu.RUnlock()

	snap := Snapshot{
		Name:      ds.name,
		Columns:   slices.Clone(ds.columns),
		Schema:    make(map[string]domain.DetectionResult, len(ds.schema)),
		Rows:      make([]domain.Row, len(ds.rows)),
		Indexes:   ds.indexNames(),
		NextRowID: ds.nextID,
		CreatedAt: ds.createdAt,
		UpdatedAt: ds.updatedAt,
	}
	for col, res := range ds.schema {
		snap.Schema[col] = res
	}
	for i, row := range ds.rows {
		snap.Rows[i] = row.Clone()
	}
	return snap, nil
}

// Restore installs a snapshot, replacing any dataset of the same name, and
// rebuilds its indexes
func (s *Store) Restore(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.Name == "" {
		return apperrors.NewAppValidationError("snapshot has no dataset name")
	}
	for _, col := range snap.Columns {
		if _, ok := snap.Schema[col]; !ok {
			return apperrors.NewAppValidationError("snapshot column " + col + " has no schema").
				WithContext("dataset", snap.Name)
		}
	}
	for _, col := range snap.Indexes {
		if _, ok := snap.Schema[col]; !ok {
			return apperrors.UnknownColumn(snap.Name, col)
		}
	}

	schema := make(map[string]domain.DetectionResult, len(snap.Schema))
	for col, res := range snap.Schema {
		schema[col] = res
	}
	ds := newDataset(snap.Name, snap.Columns, schema, snap.CreatedAt)
	ds.updatedAt = snap.UpdatedAt

	rows := slices.Clone(snap.Rows)
	slices.SortFunc(rows, func(a, b domain.Row) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	for _, row := range rows {
		if _, dup := ds.pos[row.ID]; dup || row.ID == 0 {
			return apperrors.NewAppValidationError("snapshot has an invalid or repeated row id").
				WithContext("dataset", snap.Name).
				WithContext("row_id", uint64(row.ID))
		}
		row = row.Clone()
		ds.pos[row.ID] = len(ds.rows)
		ds.rows = append(ds.rows, row)
	}

	// IDs are never reused, even when the snapshot under-reports the counter
	ds.nextID = max(snap.NextRowID, 1)
	if n := len(ds.rows); n > 0 && ds.rows[n-1].ID >= ds.nextID {
		ds.nextID = ds.rows[n-1].ID + 1
	}
	for _, col := range snap.Indexes {
		ds.buildIndex(col)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.datasets[snap.Name]; ok {
		prev.mu.Lock()
		prev.retired = true
		prev.mu.Unlock()
	}
	s.datasets[snap.Name] = ds

	s.logger.Debug("dataset restored",
		slog.String("dataset", snap.Name),
		slog.Int("rows", len(ds.rows)))
	return nil
}
