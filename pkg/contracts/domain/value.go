package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar date layout
const DateLayout = "2006-01-02"

// FailureReason classifies why a token could not be parsed
type FailureReason string

const (
	ReasonNotNumeric          FailureReason = "NotNumeric"
	ReasonAmbiguousSeparators FailureReason = "AmbiguousSeparators"
	ReasonEmptyToken          FailureReason = "EmptyToken"
	ReasonAmbiguousDate       FailureReason = "AmbiguousDate"
	ReasonOutOfRange          FailureReason = "OutOfRange"
	ReasonNotADate            FailureReason = "NotADate"
	ReasonUnsupported         FailureReason = "Unsupported"
)

// Ambiguous reports whether the input was plausible but underspecified
func (r FailureReason) Ambiguous() bool {
	return r == ReasonAmbiguousSeparators || r == ReasonAmbiguousDate
}

// ParseFailure is a recoverable, cell-local inability to interpret a token
type ParseFailure struct {
	Reason FailureReason `json:"reason"`
	Token  string        `json:"token,omitempty"`
}

// Error implements the error interface
func (f *ParseFailure) Error() string {
	return fmt.Sprintf("parse failure (%s): %q", f.Reason, f.Token)
}

// ValueKind tags the variant held by a Value
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindAmount
	KindDate
	KindText
	KindFailure
)

var kindNames = map[ValueKind]string{
	KindNull:    "null",
	KindAmount:  "amount",
	KindDate:    "date",
	KindText:    "text",
	KindFailure: "failure",
}

// String returns the lowercase variant name
func (k ValueKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Value is a canonical parsed cell
type Value struct {
	Kind     ValueKind
	Amount   decimal.Decimal
	Currency string
	Date     time.Time
	Text     string
	Failure  *ParseFailure
}

// NullValue is the value of an empty cell
func NullValue() Value { return Value{Kind: KindNull} }

// AmountValue builds an amount with an optional ISO currency code
func AmountValue(d decimal.Decimal, currency string) Value {
	return Value{Kind: KindAmount, Amount: d, Currency: currency}
}

// DateValue builds a calendar date. The time of day is dropped.
func DateValue(t time.Time) Value {
	y, m, d := t.Date()
	return Value{Kind: KindDate, Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// TextValue builds a text value
func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }

// FailureValue builds a parse failure marker
func FailureValue(reason FailureReason, token string) Value {
	return Value{Kind: KindFailure, Failure: &ParseFailure{Reason: reason, Token: token}}
}

// IsNull reports whether the value came from an empty cell
func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsFailure reports whether the value is a parse failure
func (v Value) IsFailure() bool { return v.Kind == KindFailure }

// Valid reports whether the value carries usable data
func (v Value) Valid() bool { return v.Kind == KindAmount || v.Kind == KindDate || v.Kind == KindText }

// Err returns the parse failure as an error, or nil
func (v Value) Err() error {
	if v.Kind == KindFailure && v.Failure != nil {
		return v.Failure
	}
	return nil
}

// Reason returns the failure reason, or "" for non-failures
func (v Value) Reason() FailureReason {
	if v.Kind == KindFailure && v.Failure != nil {
		return v.Failure.Reason
	}
	return ""
}

// Sign returns -1, 0 or 1 for amounts and 0 otherwise
func (v Value) Sign() int {
	if v.Kind != KindAmount {
		return 0
	}
	return v.Amount.Sign()
}

// Float64 returns a floating view of an amount
func (v Value) Float64() float64 {
	f, _ := v.Amount.Float64()
	return f
}

// Key returns a canonical string used for exact-match lookups and grouping.
// Equal values of the same kind always produce the same key.
func (v Value) Key() string {
	switch v.Kind {
	case KindAmount:
		return "a:" + v.Amount.String()
	case KindDate:
		return "d:" + v.Date.Format(DateLayout)
	case KindText:
		return "t:" + v.Text
	case KindFailure:
		return "f:" + string(v.Reason())
	}
	return "n:"
}

// Compare orders two values. Values of different kinds order by kind.
func (v Value) Compare(o Value) int {
	if v.Kind != o.Kind {
		if v.Kind < o.Kind {
			return -1
		}
		return 1
	}
	switch v.Kind {
	case KindAmount:
		return v.Amount.Cmp(o.Amount)
	case KindDate:
		return v.Date.Compare(o.Date)
	case KindText:
		return strings.Compare(v.Text, o.Text)
	case KindFailure:
		return strings.Compare(string(v.Reason()), string(o.Reason()))
	}
	return 0
}

// Equal reports whether two values compare equal
func (v Value) Equal(o Value) bool { return v.Compare(o) == 0 }

// String renders the value for display
func (v Value) String() string {
	switch v.Kind {
	case KindAmount:
		if v.Currency != "" {
			return v.Amount.String() + " " + v.Currency
		}
		return v.Amount.String()
	case KindDate:
		return v.Date.Format(DateLayout)
	case KindText:
		return v.Text
	case KindFailure:
		return "#" + string(v.Reason())
	}
	return ""
}

// Interface returns a plain Go value suitable for JSON result payloads
func (v Value) Interface() any {
	switch v.Kind {
	case KindAmount:
		return v.Float64()
	case KindDate:
		return v.Date.Format(DateLayout)
	case KindText:
		return v.Text
	case KindFailure:
		return nil
	}
	return nil
}

type valueJSON struct {
	Kind     string        `json:"kind"`
	Amount   *string       `json:"amount,omitempty"`
	Currency string        `json:"currency,omitempty"`
	Date     string        `json:"date,omitempty"`
	Text     *string       `json:"text,omitempty"`
	Reason   FailureReason `json:"reason,omitempty"`
	Token    string        `json:"token,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	out := valueJSON{Kind: v.Kind.String()}
	switch v.Kind {
	case KindAmount:
		s := v.Amount.String()
		out.Amount = &s
		out.Currency = v.Currency
	case KindDate:
		out.Date = v.Date.Format(DateLayout)
	case KindText:
		s := v.Text
		out.Text = &s
	case KindFailure:
		out.Reason = v.Reason()
		if v.Failure != nil {
			out.Token = v.Failure.Token
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(b []byte) error {
	var in valueJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	switch in.Kind {
	case "null", "":
		*v = NullValue()
	case "amount":
		if in.Amount == nil {
			return fmt.Errorf("amount value without amount")
		}
		d, err := decimal.NewFromString(*in.Amount)
		if err != nil {
			return fmt.Errorf("decode amount: %w", err)
		}
		*v = AmountValue(d, in.Currency)
	case "date":
		t, err := time.Parse(DateLayout, in.Date)
		if err != nil {
			return fmt.Errorf("decode date: %w", err)
		}
		*v = DateValue(t)
	case "text":
		if in.Text == nil {
			*v = TextValue("")
		} else {
			*v = TextValue(*in.Text)
		}
	case "failure":
		*v = FailureValue(in.Reason, in.Token)
	default:
		return fmt.Errorf("unknown value kind %q", in.Kind)
	}
	return nil
}
