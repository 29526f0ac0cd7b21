package datastore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "ledgerlens/internal/errors"
	"ledgerlens/internal/formats"
	"ledgerlens/pkg/contracts/domain"
)

// Op is a filter operator
type Op string

const (
	OpEq       Op = "eq"
	OpGt       Op = "gt"
	OpLt       Op = "lt"
	OpBetween  Op = "between"
	OpIn       Op = "in"
	OpContains Op = "contains"
)

// ParseOp resolves an operator name
func ParseOp(s string) (Op, bool) {
	switch op := Op(strings.ToLower(strings.TrimSpace(s))); op {
	case OpEq, OpGt, OpLt, OpBetween, OpIn, OpContains:
		return op, true
	}
	return "", false
}

// Filter is one predicate on one column. A query's filters are combined
// with AND.
//
// Literals may be strings, integers, floats, decimal.Decimal, time.Time or
// domain.Value. Strings are parsed under the column's detected format.
type Filter struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Value  any    `json:"value,omitempty"`
	Values []any  `json:"values,omitempty"`
}

// Eq matches values equal to v
func Eq(column string, v any) Filter { return Filter{Column: column, Op: OpEq, Value: v} }

// Gt matches values strictly greater than v
func Gt(column string, v any) Filter { return Filter{Column: column, Op: OpGt, Value: v} }

// Lt matches values strictly less than v
func Lt(column string, v any) Filter { return Filter{Column: column, Op: OpLt, Value: v} }

// Between matches values in the inclusive range [lo, hi]
func Between(column string, lo, hi any) Filter {
	return Filter{Column: column, Op: OpBetween, Values: []any{lo, hi}}
}

// In matches values equal to any of vs
func In(column string, vs ...any) Filter { return Filter{Column: column, Op: OpIn, Values: vs} }

// Contains matches text values containing the substring
func Contains(column, substr string) Filter {
	return Filter{Column: column, Op: OpContains, Value: substr}
}

// predicate is a filter whose literals have been coerced to the column type
type predicate struct {
	column string
	op     Op
	dtype  domain.DataType
	value  domain.Value
	lo, hi domain.Value
	set    map[string]domain.Value
	substr string
}

// match evaluates the predicate against one stored value. Null and failed
// values never match.
func (p predicate) match(v domain.Value) bool {
	if !v.Valid() {
		return false
	}
	switch p.op {
	case OpEq:
		return sameKind(v, p.value) && v.Compare(p.value) == 0
	case OpGt:
		return sameKind(v, p.value) && v.Compare(p.value) > 0
	case OpLt:
		return sameKind(v, p.value) && v.Compare(p.value) < 0
	case OpBetween:
		return sameKind(v, p.lo) && v.Compare(p.lo) >= 0 && v.Compare(p.hi) <= 0
	case OpIn:
		_, ok := p.set[v.Key()]
		return ok
	case OpContains:
		return v.Kind == domain.KindText && strings.Contains(v.Text, p.substr)
	}
	return false
}

func sameKind(a, b domain.Value) bool { return a.Kind == b.Kind }

// compile validates a filter against the column schema and coerces its
// literals
func compile(dataset string, f Filter, schema domain.DetectionResult, parser *formats.Parser) (predicate, error) {
	p := predicate{column: f.Column, op: f.Op, dtype: schema.Type}

	switch f.Op {
	case OpEq, OpGt, OpLt:
		if f.Value == nil {
			return p, apperrors.InvalidPredicate(f.Column, fmt.Sprintf("%s needs a value", f.Op)).
				WithContext("dataset", dataset)
		}
		if f.Op != OpEq && schema.Type == domain.TypeString {
			return p, apperrors.TypeMismatch(f.Column, fmt.Sprintf("%s is not defined on string columns", f.Op)).
				WithContext("dataset", dataset)
		}
		v, err := coerce(dataset, f.Column, f.Value, schema, parser)
		if err != nil {
			return p, err
		}
		p.value = v

	case OpBetween:
		if len(f.Values) != 2 {
			return p, apperrors.InvalidPredicate(f.Column, "between needs exactly two values").
				WithContext("dataset", dataset)
		}
		if schema.Type == domain.TypeString {
			return p, apperrors.TypeMismatch(f.Column, "between is not defined on string columns").
				WithContext("dataset", dataset)
		}
		lo, err := coerce(dataset, f.Column, f.Values[0], schema, parser)
		if err != nil {
			return p, err
		}
		hi, err := coerce(dataset, f.Column, f.Values[1], schema, parser)
		if err != nil {
			return p, err
		}
		p.lo, p.hi = lo, hi

	case OpIn:
		if len(f.Values) == 0 {
			return p, apperrors.InvalidPredicate(f.Column, "in needs at least one value").
				WithContext("dataset", dataset)
		}
		p.set = make(map[string]domain.Value, len(f.Values))
		for _, lit := range f.Values {
			v, err := coerce(dataset, f.Column, lit, schema, parser)
			if err != nil {
				return p, err
			}
			p.set[v.Key()] = v
		}

	case OpContains:
		s, ok := f.Value.(string)
		if !ok {
			return p, apperrors.InvalidPredicate(f.Column, "contains needs a string").
				WithContext("dataset", dataset)
		}
		if schema.Type != domain.TypeString {
			return p, apperrors.TypeMismatch(f.Column, fmt.Sprintf("contains is not defined on %s columns", schema.Type)).
				WithContext("dataset", dataset)
		}
		p.substr = s

	default:
		return p, apperrors.InvalidPredicate(f.Column, fmt.Sprintf("unknown operator %q", f.Op)).
			WithContext("dataset", dataset)
	}
	return p, nil
}

// coerce converts a filter literal to a value comparable with the column
func coerce(dataset, column string, lit any, schema domain.DetectionResult, parser *formats.Parser) (domain.Value, error) {
	mismatch := func(detail string) (domain.Value, error) {
		return domain.Value{}, apperrors.TypeMismatch(column, detail).WithContext("dataset", dataset)
	}

	if v, ok := lit.(domain.Value); ok {
		if v.Kind != valueKindFor(schema.Type) {
			return mismatch(fmt.Sprintf("%s literal against %s column", v.Kind, schema.Type))
		}
		return v, nil
	}

	switch schema.Type {
	case domain.TypeNumber:
		switch x := lit.(type) {
		case decimal.Decimal:
			return domain.AmountValue(x, ""), nil
		case int:
			return domain.AmountValue(decimal.NewFromInt(int64(x)), ""), nil
		case int64:
			return domain.AmountValue(decimal.NewFromInt(x), ""), nil
		case float64:
			return domain.AmountValue(decimal.NewFromFloat(x), ""), nil
		case json.Number:
			d, err := decimal.NewFromString(x.String())
			if err != nil {
				return mismatch(fmt.Sprintf("%q is not a number", x))
			}
			return domain.AmountValue(d, ""), nil
		case string:
			var v domain.Value
			if schema.Format == domain.FormatPercentage && strings.Contains(x, "%") {
				v = parser.HandleSpecial(x, formats.PercentageKind)
			} else {
				v = parser.ParseAmount(x, schema.Format)
			}
			if v.Kind != domain.KindAmount {
				return mismatch(fmt.Sprintf("%q is not a number (%s)", x, v.Reason()))
			}
			return v, nil
		}
		return mismatch(fmt.Sprintf("%T literal against number column", lit))

	case domain.TypeDate:
		switch x := lit.(type) {
		case time.Time:
			return domain.DateValue(x), nil
		case string:
			v := parser.ParseDate(x, domain.FormatIsoDate)
			if v.Kind != domain.KindDate {
				v = parser.ParseDate(x, schema.Format)
			}
			if v.Kind != domain.KindDate {
				return mismatch(fmt.Sprintf("%q is not a date (%s)", x, v.Reason()))
			}
			return v, nil
		}
		return mismatch(fmt.Sprintf("%T literal against date column", lit))
	}

	var s string
	switch x := lit.(type) {
	case string:
		s = x
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		s = x.String()
	case decimal.Decimal:
		s = x.String()
	default:
		return mismatch(fmt.Sprintf("%T literal against string column", lit))
	}
	// Code columns are stored normalised, so literals are normalised the same way
	v := domain.TextValue(strings.TrimSpace(s))
	switch schema.Format {
	case domain.FormatAccountCode:
		v = parser.HandleSpecial(s, formats.AccountCodeKind)
	case domain.FormatReferenceCode:
		v = parser.HandleSpecial(s, formats.ReferenceKind)
	}
	if v.Kind != domain.KindText {
		return mismatch(fmt.Sprintf("%q is not a valid %s", s, schema.Format))
	}
	return v, nil
}

func valueKindFor(t domain.DataType) domain.ValueKind {
	switch t {
	case domain.TypeNumber:
		return domain.KindAmount
	case domain.TypeDate:
		return domain.KindDate
	}
	return domain.KindText
}
