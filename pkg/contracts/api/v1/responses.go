package api

import (
	"ledgerlens/pkg/contracts/domain"
)

// DatasetListResponse lists the metadata of every dataset
type DatasetListResponse struct {
	Datasets []domain.Metadata `json:"datasets"`
	Count    int               `json:"count"`
}

// QueryResponse carries the rows matched by a query
type QueryResponse struct {
	Dataset string       `json:"dataset"`
	Count   int          `json:"count"`
	Rows    []domain.Row `json:"rows"`
}

// AppendRowsResponse lists the IDs assigned to appended rows
type AppendRowsResponse struct {
	IDs []domain.RowID `json:"ids"`
}

// UpdateCellResponse echoes the parsed value stored in the cell
type UpdateCellResponse struct {
	ID     domain.RowID `json:"id"`
	Column string       `json:"column"`
	Value  domain.Value `json:"value"`
}

// DeleteRowsResponse reports how many rows were removed
type DeleteRowsResponse struct {
	Deleted int `json:"deleted"`
}

// FormatScore is the fraction of sampled cells a candidate format accepted
type FormatScore struct {
	Format   domain.FormatTag `json:"format"`
	Type     domain.DataType  `json:"type"`
	Fraction float64          `json:"fraction"`
	Matched  int              `json:"matched"`
}

// ColumnReport is the detection verdict for one column
type ColumnReport struct {
	Column string                 `json:"column"`
	Result domain.DetectionResult `json:"result"`
	Scores []FormatScore          `json:"scores,omitempty"`
}

// AnalyzeResponse holds one report per column in input order
type AnalyzeResponse struct {
	Columns []ColumnReport `json:"columns"`
}
