package datastore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "ledgerlens/internal/errors"
	"ledgerlens/pkg/contracts/domain"
)

// AvgPrecision is the number of decimal places kept by avg
const AvgPrecision = 16

// AggFunc is an aggregate function
type AggFunc string

const (
	AggSum   AggFunc = "sum"
	AggAvg   AggFunc = "avg"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
	AggCount AggFunc = "count"
)

// ParseAggFunc resolves a function name
func ParseAggFunc(s string) (AggFunc, bool) {
	switch fn := AggFunc(strings.ToLower(strings.TrimSpace(s))); fn {
	case AggSum, AggAvg, AggMin, AggMax, AggCount:
		return fn, true
	}
	return "", false
}

// Measure requests aggregate functions over one column
type Measure struct {
	Column string    `json:"column"`
	Funcs  []AggFunc `json:"funcs"`
}

// Aggregate is one computed measure
type Aggregate struct {
	Column string       `json:"column"`
	Func   AggFunc      `json:"func"`
	Value  domain.Value `json:"value"`
}

// Group is one distinct group-by tuple with its aggregates
type Group struct {
	Key        []domain.Value `json:"key"`
	Rows       int            `json:"rows"`
	Aggregates []Aggregate    `json:"aggregates"`
	// Excluded counts parse failures skipped per measured column
	Excluded map[string]int `json:"excluded,omitempty"`
}

// Get returns the aggregate for column and fn
func (g Group) Get(column string, fn AggFunc) (domain.Value, bool) {
	for _, a := range g.Aggregates {
		if a.Column == column && a.Func == fn {
			return a.Value, true
		}
	}
	return domain.Value{}, false
}

// AggregateResult holds groups in output order
type AggregateResult struct {
	GroupBy  []string  `json:"group_by"`
	Measures []Measure `json:"measures"`
	Groups   []Group   `json:"groups"`
	// Excluded counts rows dropped because a group-by column failed to parse
	Excluded int `json:"excluded"`
}

type accumulator struct {
	n        int
	excluded int
	sum      decimal.Decimal
	min, max domain.Value
	currency string
	mixed    bool
}

func (a *accumulator) add(v domain.Value) {
	switch {
	case v.IsNull():
		return
	case v.IsFailure():
		a.excluded++
		return
	}
	if a.n == 0 {
		a.min, a.max = v, v
		a.currency = v.Currency
	} else {
		if v.Compare(a.min) < 0 {
			a.min = v
		}
		if v.Compare(a.max) > 0 {
			a.max = v
		}
		if v.Currency != a.currency {
			a.mixed = true
		}
	}
	a.n++
	if v.Kind == domain.KindAmount {
		a.sum = a.sum.Add(v.Amount)
	}
}

func (a *accumulator) result(fn AggFunc) domain.Value {
	currency := a.currency
	if a.mixed {
		currency = ""
	}
	switch fn {
	case AggCount:
		return domain.AmountValue(decimal.NewFromInt(int64(a.n)), "")
	case AggSum:
		return domain.AmountValue(a.sum, currency)
	case AggAvg:
		if a.n == 0 {
			return domain.NullValue()
		}
		return domain.AmountValue(a.sum.DivRound(decimal.NewFromInt(int64(a.n)), AvgPrecision), currency)
	case AggMin:
		if a.n == 0 {
			return domain.NullValue()
		}
		return a.min
	case AggMax:
		if a.n == 0 {
			return domain.NullValue()
		}
		return a.max
	}
	return domain.NullValue()
}

type groupState struct {
	key  []domain.Value
	rows int
	accs []accumulator
}

func (s *Store) validateAggregate(ds *dataset, groupBy []string, measures []Measure) error {
	for _, col := range groupBy {
		if !ds.hasColumn(col) {
			return apperrors.UnknownColumn(ds.name, col)
		}
	}
	for _, m := range measures {
		res, ok := ds.schema[m.Column]
		if !ok {
			return apperrors.UnknownColumn(ds.name, m.Column)
		}
		if len(m.Funcs) == 0 {
			return apperrors.NewAppValidationError(fmt.Sprintf("measure on %q lists no functions", m.Column)).
				WithContext("dataset", ds.name)
		}
		for _, fn := range m.Funcs {
			switch fn {
			case AggSum, AggAvg:
				if res.Type != domain.TypeNumber {
					return apperrors.TypeMismatch(m.Column, fmt.Sprintf("%s needs a number column, got %s", fn, res.Type)).
						WithContext("dataset", ds.name)
				}
			case AggMin, AggMax:
				if res.Type == domain.TypeString {
					return apperrors.TypeMismatch(m.Column, fmt.Sprintf("%s is not defined on string columns", fn)).
						WithContext("dataset", ds.name)
				}
			case AggCount:
			default:
				return apperrors.NewAppValidationError(fmt.Sprintf("unknown aggregate function %q", fn)).
					WithContext("dataset", ds.name)
			}
		}
	}
	return nil
}

// AggregateData groups rows by the distinct value tuples of groupBy and
// computes measures per group. Without groupBy a single group covers every
// row.
func (s *Store) AggregateData(ctx context.Context, name string, groupBy []string, measures []Measure, opts ...AggregateOption) (AggregateResult, error) {
	start := time.Now()
	var cfg aggregateConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ds, err := s.rlockDataset(name)
	if err != nil {
		return AggregateResult{}, err
	}
	defer ds.mu.RUnlock()

	if err := s.validateAggregate(ds, groupBy, measures); err != nil {
		return AggregateResult{}, err
	}

	result := AggregateResult{GroupBy: groupBy, Measures: measures}
	var order []*groupState
	groups := make(map[string]*groupState)
	newGroup := func(key []domain.Value) *groupState {
		return &groupState{key: key, accs: make([]accumulator, len(measures))}
	}
	if len(groupBy) == 0 {
		g := newGroup([]domain.Value{})
		groups[""] = g
		order = append(order, g)
	}

	var sb strings.Builder
	for i, row := range ds.rows {
		if i%s.cfg.batchSize == 0 {
			if err := ctx.Err(); err != nil {
				return AggregateResult{}, err
			}
		}

		key := make([]domain.Value, len(groupBy))
		failed := false
		sb.Reset()
		for k, col := range groupBy {
			v := row.Get(col)
			if v.IsFailure() {
				failed = true
				break
			}
			key[k] = v
			sb.WriteString(v.Key())
			sb.WriteByte(0x1f)
		}
		if failed {
			result.Excluded++
			continue
		}

		g, ok := groups[sb.String()]
		if !ok {
			g = newGroup(key)
			groups[sb.String()] = g
			order = append(order, g)
		}
		g.rows++
		for m, measure := range measures {
			g.accs[m].add(row.Get(measure.Column))
		}
	}

	if cfg.sorted {
		sort.SliceStable(order, func(i, j int) bool { return compareKeys(order[i].key, order[j].key) < 0 })
	}

	result.Groups = make([]Group, 0, len(order))
	for _, g := range order {
		out := Group{Key: g.key, Rows: g.rows}
		for m, measure := range measures {
			acc := &g.accs[m]
			for _, fn := range measure.Funcs {
				out.Aggregates = append(out.Aggregates, Aggregate{Column: measure.Column, Func: fn, Value: acc.result(fn)})
			}
			if acc.excluded > 0 {
				if out.Excluded == nil {
					out.Excluded = make(map[string]int)
				}
				out.Excluded[measure.Column] += acc.excluded
			}
		}
		result.Groups = append(result.Groups, out)
	}

	s.cfg.metrics.ObserveOperation("aggregate", time.Since(start))
	return result, nil
}

func compareKeys(a, b []domain.Value) int {
	for i := range a {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return 0
}
