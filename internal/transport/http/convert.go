package http

import (
	"encoding/json"
	"fmt"
	"strconv"

	"ledgerlens/internal/datastore"
	apperrors "ledgerlens/internal/errors"
	"ledgerlens/internal/services"
	api "ledgerlens/pkg/contracts/api/v1"
	"ledgerlens/pkg/contracts/domain"
)

// toCell converts one decoded JSON value into a raw cell
func toCell(v any) (domain.Cell, error) {
	switch x := v.(type) {
	case nil:
		return domain.EmptyCell(), nil
	case string:
		return domain.TextCell(x), nil
	case float64:
		return domain.NumericCell(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return domain.Cell{}, err
		}
		return domain.NumericCell(f), nil
	case bool:
		return domain.UnknownCell(strconv.FormatBool(x)), nil
	}
	return domain.Cell{}, fmt.Errorf("unsupported cell value of type %T", v)
}

// toRows converts row-major JSON values. Short rows are padded with empty
// cells; rows wider than the header are rejected.
func toRows(width int, rows [][]any) ([][]domain.Cell, error) {
	out := make([][]domain.Cell, len(rows))
	for i, row := range rows {
		if len(row) > width {
			return nil, apperrors.ErrValidation(fmt.Sprintf("rows[%d]", i),
				fmt.Sprintf("row has %d values but there are %d columns", len(row), width))
		}
		cells := make([]domain.Cell, width)
		for j := range cells {
			cells[j] = domain.EmptyCell()
		}
		for j, v := range row {
			c, err := toCell(v)
			if err != nil {
				return nil, apperrors.ErrValidation(fmt.Sprintf("rows[%d][%d]", i, j), err.Error())
			}
			cells[j] = c
		}
		out[i] = cells
	}
	return out, nil
}

// toTable builds a table from a header and JSON rows
func toTable(name string, columns []string, rows [][]any) (domain.Table, error) {
	cells, err := toRows(len(columns), rows)
	if err != nil {
		return domain.Table{}, err
	}
	return domain.TableFromRows(name, columns, cells), nil
}

// toFilters converts validated filter specs
func toFilters(specs []api.FilterSpec) []datastore.Filter {
	out := make([]datastore.Filter, len(specs))
	for i, s := range specs {
		op, _ := datastore.ParseOp(s.Op)
		out[i] = datastore.Filter{Column: s.Column, Op: op, Value: s.Value, Values: s.Values}
	}
	return out
}

func toQueryOptions(req api.QueryRequest) []datastore.QueryOption {
	var opts []datastore.QueryOption
	if req.OrderBy != "" {
		opts = append(opts, datastore.WithOrderBy(req.OrderBy, req.Desc))
	}
	if req.Limit > 0 {
		opts = append(opts, datastore.WithLimit(req.Limit))
	}
	if req.IndexHint != "" {
		opts = append(opts, datastore.WithIndexHint(req.IndexHint))
	}
	return opts
}

func toMeasures(specs []api.MeasureSpec) []datastore.Measure {
	out := make([]datastore.Measure, len(specs))
	for i, s := range specs {
		funcs := make([]datastore.AggFunc, 0, len(s.Funcs))
		for _, name := range s.Funcs {
			fn, _ := datastore.ParseAggFunc(name)
			funcs = append(funcs, fn)
		}
		out[i] = datastore.Measure{Column: s.Column, Funcs: funcs}
	}
	return out
}

func toColumnReports(in []services.ColumnAnalysis) []api.ColumnReport {
	out := make([]api.ColumnReport, len(in))
	for i, c := range in {
		out[i] = api.ColumnReport{Column: c.Column, Result: c.Result}
		for _, s := range c.Scores {
			out[i].Scores = append(out[i].Scores, api.FormatScore{
				Format:   s.Format,
				Type:     s.Type,
				Fraction: s.Fraction,
				Matched:  s.Matched,
			})
		}
	}
	return out
}
