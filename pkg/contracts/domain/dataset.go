package domain

import (
	"time"
)

// RowID identifies a row within one dataset. IDs are assigned in increasing
// order at insertion and are never reused.
type RowID uint64

// Row is one parsed spreadsheet record
type Row struct {
	ID     RowID            `json:"id"`
	Values map[string]Value `json:"values"`
}

// Get returns the value in column, or Null when the column is absent
func (r Row) Get(column string) Value {
	if v, ok := r.Values[column]; ok {
		return v
	}
	return NullValue()
}

// Clone returns a deep copy of the row map
func (r Row) Clone() Row {
	values := make(map[string]Value, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return Row{ID: r.ID, Values: values}
}

// Plain flattens the row into JSON-friendly values
func (r Row) Plain() map[string]any {
	out := make(map[string]any, len(r.Values)+1)
	for k, v := range r.Values {
		out[k] = v.Interface()
	}
	return out
}

// Metadata summarises a stored dataset
type Metadata struct {
	Name               string                           `json:"name"`
	Rows               int                              `json:"rows"`
	Columns            []string                         `json:"columns"`
	DTypes             map[string]DetectionResult       `json:"dtypes"`
	Indexes            []string                         `json:"indexes"`
	ParseFailureCounts map[string]int                   `json:"parse_failure_counts"`
	FailureReasons     map[string]map[FailureReason]int `json:"failure_reasons,omitempty"`
	NullCounts         map[string]int                   `json:"null_counts,omitempty"`
	NextRowID          RowID                            `json:"next_row_id"`
	CreatedAt          time.Time                        `json:"created_at"`
	UpdatedAt          time.Time                        `json:"updated_at"`
}

// TotalFailures sums parse failures across all columns
func (m Metadata) TotalFailures() int {
	n := 0
	for _, c := range m.ParseFailureCounts {
		n += c
	}
	return n
}
