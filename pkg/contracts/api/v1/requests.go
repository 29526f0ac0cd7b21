// Package api contains the HTTP contract of the LedgerLens service.
// Version v1 represents the current stable API version.
package api

import (
	"ledgerlens/pkg/contracts/domain"
)

// Dataset API Requests

// CreateDatasetRequest ingests a table sent as JSON. Each row holds one raw
// cell per column: strings are parsed under the detected format, numbers
// are treated as spreadsheet numerics, null is an empty cell.
type CreateDatasetRequest struct {
	Name    string                      `json:"name" validate:"required,dataset"`
	Columns []string                    `json:"columns" validate:"required,min=1,unique,dive,required"`
	Rows    [][]any                     `json:"rows"`
	Indexes []string                    `json:"indexes,omitempty" validate:"omitempty,unique,dive,required"`
	Hints   map[string]domain.FormatTag `json:"hints,omitempty"`
	Replace bool                        `json:"replace"`
}

// UploadParams are the form fields accompanying a multipart upload
type UploadParams struct {
	Name      string   `json:"name" validate:"omitempty,dataset"`
	Sheet     string   `json:"sheet,omitempty"`
	Delimiter string   `json:"delimiter,omitempty" validate:"omitempty,len=1"`
	Indexes   []string `json:"indexes,omitempty" validate:"omitempty,unique,dive,required"`
	Replace   bool     `json:"replace"`
	RawValues bool     `json:"raw_values"`
}

// IndexRequest names the column to index
type IndexRequest struct {
	Column string `json:"column" validate:"required"`
}

// FilterSpec is one predicate of a query. Between takes values [lo, hi],
// in takes the candidate values, the other operators take value.
type FilterSpec struct {
	Column string `json:"column" validate:"required"`
	Op     string `json:"op" validate:"required,op"`
	Value  any    `json:"value,omitempty"`
	Values []any  `json:"values,omitempty"`
}

// QueryRequest selects rows whose values satisfy every filter
type QueryRequest struct {
	Filters   []FilterSpec `json:"filters" validate:"dive"`
	OrderBy   string       `json:"order_by,omitempty"`
	Desc      bool         `json:"desc"`
	Limit     int          `json:"limit" validate:"gte=0"`
	IndexHint string       `json:"index_hint,omitempty"`
}

// MeasureSpec asks for one or more aggregates over a column
type MeasureSpec struct {
	Column string   `json:"column" validate:"required"`
	Funcs  []string `json:"funcs" validate:"required,min=1,dive,aggfunc"`
}

// AggregateRequest groups rows and computes measures per group. An empty
// group_by yields a single global group.
type AggregateRequest struct {
	GroupBy  []string      `json:"group_by" validate:"omitempty,unique,dive,required"`
	Measures []MeasureSpec `json:"measures" validate:"dive"`
	Sorted   bool          `json:"sorted"`
}

// AppendRowsRequest adds rows in column order
type AppendRowsRequest struct {
	Rows [][]any `json:"rows" validate:"required,min=1"`
}

// UpdateCellRequest replaces one cell of one row
type UpdateCellRequest struct {
	Column string `json:"column" validate:"required"`
	Value  any    `json:"value"`
}

// DeleteRowsRequest removes the rows matching every filter
type DeleteRowsRequest struct {
	Filters []FilterSpec `json:"filters" validate:"required,min=1,dive"`
}

// Analysis API Requests

// AnalyzeRequest runs column detection without storing anything
type AnalyzeRequest struct {
	Columns []string `json:"columns" validate:"required,min=1,unique,dive,required"`
	Rows    [][]any  `json:"rows"`
	Scores  bool     `json:"scores"`
}
