package datastore

import (
	"context"
	"slices"
	"sort"
	"time"

	apperrors "ledgerlens/internal/errors"
	"ledgerlens/pkg/contracts/domain"
)

// Access paths reported to the metrics recorder
const (
	PathIndex = "index"
	PathScan  = "scan"
)

// queryPlan splits compiled predicates into index lookups and row scans
type queryPlan struct {
	hinted  *predicate
	indexed []predicate
	scanned []predicate
}

// Path reports whether the plan touches an index
func (qp *queryPlan) Path(ds *dataset) string {
	if len(qp.indexed) > 0 {
		return PathIndex
	}
	if qp.hinted != nil {
		if _, ok := ds.indexes[qp.hinted.column]; ok {
			return PathIndex
		}
	}
	return PathScan
}

func (s *Store) plan(ds *dataset, filters []Filter, hint string) (*queryPlan, error) {
	qp := &queryPlan{}
	if hint != "" && !ds.hasColumn(hint) {
		return nil, apperrors.UnknownColumn(ds.name, hint)
	}

	for _, f := range filters {
		res, ok := ds.schema[f.Column]
		if !ok {
			return nil, apperrors.UnknownColumn(ds.name, f.Column)
		}
		p, err := compile(ds.name, f, res, s.cfg.parser)
		if err != nil {
			return nil, err
		}
		switch {
		case hint != "" && f.Column == hint && qp.hinted == nil:
			qp.hinted = &p
		case ds.indexes[f.Column] != nil:
			qp.indexed = append(qp.indexed, p)
		default:
			qp.scanned = append(qp.scanned, p)
		}
	}

	if hint != "" && qp.hinted == nil {
		return nil, apperrors.InvalidPredicate(hint, "index hint names a column without a filter").
			WithContext("dataset", ds.name)
	}
	return qp, nil
}

// execute returns the matching row IDs in ascending order. Callers hold at
// least the dataset read lock.
func (qp *queryPlan) execute(ctx context.Context, ds *dataset, batchSize int) ([]domain.RowID, error) {
	scanned := qp.scanned

	var first idSet
	if qp.hinted != nil {
		if ix, ok := ds.indexes[qp.hinted.column]; ok {
			first = ix.candidates(*qp.hinted)
		} else {
			// An unindexed hint still runs first, as a scan
			var err error
			first, err = scanAll(ctx, ds, []predicate{*qp.hinted}, batchSize)
			if err != nil {
				return nil, err
			}
		}
	}

	sets := make([]idSet, 0, len(qp.indexed))
	for _, p := range qp.indexed {
		sets = append(sets, ds.indexes[p.column].candidates(p))
	}

	var candidates idSet
	switch {
	case first != nil:
		candidates = first
		if len(sets) > 0 {
			rest := intersect(sets)
			for id := range candidates {
				if _, ok := rest[id]; !ok {
					delete(candidates, id)
				}
			}
		}
	case len(sets) > 0:
		candidates = intersect(sets)
	}

	if candidates == nil {
		set, err := scanAll(ctx, ds, scanned, batchSize)
		if err != nil {
			return nil, err
		}
		return set.sorted(), nil
	}

	ids := candidates.sorted()
	if len(scanned) == 0 {
		return ids, nil
	}
	out := ids[:0]
	for i, id := range ids {
		if i%batchSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if matchAll(ds.rows[ds.pos[id]], scanned) {
			out = append(out, id)
		}
	}
	return out, nil
}

func scanAll(ctx context.Context, ds *dataset, preds []predicate, batchSize int) (idSet, error) {
	out := make(idSet)
	for i, row := range ds.rows {
		if i%batchSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if matchAll(row, preds) {
			out[row.ID] = struct{}{}
		}
	}
	return out, nil
}

func matchAll(row domain.Row, preds []predicate) bool {
	for _, p := range preds {
		if !p.match(row.Get(p.column)) {
			return false
		}
	}
	return true
}

// QueryData returns the rows matching every filter, in ascending row ID
// order unless WithOrderBy is given. No filters selects every row.
func (s *Store) QueryData(ctx context.Context, name string, filters []Filter, opts ...QueryOption) ([]domain.Row, error) {
	start := time.Now()
	var cfg queryConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ds, err := s.rlockDataset(name)
	if err != nil {
		return nil, err
	}
	defer ds.mu.RUnlock()

	if cfg.orderBy != "" && !ds.hasColumn(cfg.orderBy) {
		return nil, apperrors.UnknownColumn(name, cfg.orderBy)
	}
	qp, err := s.plan(ds, filters, cfg.indexHint)
	if err != nil {
		return nil, err
	}
	ids, err := qp.execute(ctx, ds, s.cfg.batchSize)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.Row, len(ids))
	for i, id := range ids {
		rows[i] = ds.rows[ds.pos[id]].Clone()
	}
	if cfg.orderBy != "" {
		orderRows(rows, cfg.orderBy, cfg.desc)
	}
	if cfg.limit > 0 && len(rows) > cfg.limit {
		rows = slices.Clip(rows[:cfg.limit])
	}

	s.cfg.metrics.QueryPath(qp.Path(ds))
	s.cfg.metrics.ObserveOperation("query", time.Since(start))
	return rows, nil
}

// orderRows sorts rows by column, keeping null and failed values last
func orderRows(rows []domain.Row, column string, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Get(column), rows[j].Get(column)
		if a.Valid() != b.Valid() {
			return a.Valid()
		}
		if !a.Valid() {
			return false
		}
		c := a.Compare(b)
		if desc {
			return c > 0
		}
		return c < 0
	})
}
