package datastore

import (
	"slices"
	"sync"
	"time"

	"ledgerlens/pkg/contracts/domain"
)

// dataset holds the rows of one named table. Rows are kept in ascending ID
// order; pos maps an ID to its slice position.
type dataset struct {
	mu sync.RWMutex

	name      string
	columns   []string
	schema    map[string]domain.DetectionResult
	rows      []domain.Row
	pos       map[domain.RowID]int
	indexes   map[string]index
	nextID    domain.RowID
	createdAt time.Time
	updatedAt time.Time

	// retired is set once the dataset has been dropped or replaced
	retired bool
}

func newDataset(name string, columns []string, schema map[string]domain.DetectionResult, now time.Time) *dataset {
	return &dataset{
		name:      name,
		columns:   slices.Clone(columns),
		schema:    schema,
		pos:       make(map[domain.RowID]int),
		indexes:   make(map[string]index),
		nextID:    1,
		createdAt: now,
		updatedAt: now,
	}
}

func (d *dataset) hasColumn(column string) bool {
	_, ok := d.schema[column]
	return ok
}

// appendRows assigns IDs to the value rows and adds them to every index.
// Callers hold the write lock.
func (d *dataset) appendRows(values []map[string]domain.Value) []domain.RowID {
	ids := make([]domain.RowID, 0, len(values))
	for _, vals := range values {
		row := domain.Row{ID: d.nextID, Values: vals}
		d.nextID++
		d.pos[row.ID] = len(d.rows)
		d.rows = append(d.rows, row)
		for col, ix := range d.indexes {
			ix.add(row.ID, row.Get(col))
		}
		ids = append(ids, row.ID)
	}
	return ids
}

// deleteRows drops the given IDs from rows and indexes. Callers hold the
// write lock.
func (d *dataset) deleteRows(ids idSet) int {
	if len(ids) == 0 {
		return 0
	}
	kept := d.rows[:0]
	removed := 0
	for _, row := range d.rows {
		if _, drop := ids[row.ID]; drop {
			for col, ix := range d.indexes {
				ix.remove(row.ID, row.Get(col))
			}
			removed++
			continue
		}
		kept = append(kept, row)
	}
	clear(d.rows[len(kept):])
	d.rows = kept
	d.pos = make(map[domain.RowID]int, len(d.rows))
	for i, row := range d.rows {
		d.pos[row.ID] = i
	}
	return removed
}

// setValue replaces one cell and moves the row between index buckets.
// Callers hold the write lock.
func (d *dataset) setValue(id domain.RowID, column string, v domain.Value) {
	row := d.rows[d.pos[id]]
	old := row.Get(column)
	if ix, ok := d.indexes[column]; ok {
		ix.remove(id, old)
		ix.add(id, v)
	}
	row.Values[column] = v
}

// buildIndex creates or rebuilds the index on column. Callers hold the write
// lock.
func (d *dataset) buildIndex(column string) index {
	ix := newIndex(IndexKindFor(d.schema[column].Type))
	for _, row := range d.rows {
		ix.add(row.ID, row.Get(column))
	}
	d.indexes[column] = ix
	return ix
}

func (d *dataset) indexNames() []string {
	names := make([]string, 0, len(d.indexes))
	for _, col := range d.columns {
		if _, ok := d.indexes[col]; ok {
			names = append(names, col)
		}
	}
	return names
}

// metadata summarises the dataset. Callers hold at least the read lock.
func (d *dataset) metadata() domain.Metadata {
	meta := domain.Metadata{
		Name:               d.name,
		Rows:               len(d.rows),
		Columns:            slices.Clone(d.columns),
		DTypes:             make(map[string]domain.DetectionResult, len(d.schema)),
		Indexes:            d.indexNames(),
		ParseFailureCounts: make(map[string]int, len(d.columns)),
		FailureReasons:     make(map[string]map[domain.FailureReason]int),
		NullCounts:         make(map[string]int, len(d.columns)),
		NextRowID:          d.nextID,
		CreatedAt:          d.createdAt,
		UpdatedAt:          d.updatedAt,
	}
	for col, res := range d.schema {
		meta.DTypes[col] = res
	}
	for _, col := range d.columns {
		meta.ParseFailureCounts[col] = 0
		meta.NullCounts[col] = 0
	}
	for _, row := range d.rows {
		for _, col := range d.columns {
			v := row.Get(col)
			switch v.Kind {
			case domain.KindNull:
				meta.NullCounts[col]++
			case domain.KindFailure:
				meta.ParseFailureCounts[col]++
				reasons, ok := meta.FailureReasons[col]
				if !ok {
					reasons = make(map[domain.FailureReason]int)
					meta.FailureReasons[col] = reasons
				}
				reasons[v.Reason()]++
			}
		}
	}
	return meta
}
