package domain

import (
	"strconv"
	"strings"
)

// CellKind identifies what a raw spreadsheet cell holds
type CellKind uint8

const (
	CellEmpty CellKind = iota
	CellText
	CellNumeric
	CellUnknown
)

// String returns the lowercase name of the cell kind
func (k CellKind) String() string {
	switch k {
	case CellEmpty:
		return "empty"
	case CellText:
		return "text"
	case CellNumeric:
		return "numeric"
	default:
		return "unknown"
	}
}

// Cell is one raw input value as handed over by a tabular reader.
// Cells are immutable once built.
type Cell struct {
	Kind   CellKind `json:"kind"`
	Text   string   `json:"text,omitempty"`
	Number float64  `json:"number,omitempty"`
}

// EmptyCell returns a cell with no content
func EmptyCell() Cell { return Cell{Kind: CellEmpty} }

// TextCell returns a text cell. Blank strings collapse to an empty cell.
func TextCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return EmptyCell()
	}
	return Cell{Kind: CellText, Text: s}
}

// NumericCell returns a numeric cell
func NumericCell(f float64) Cell { return Cell{Kind: CellNumeric, Number: f} }

// UnknownCell returns a cell whose source type could not be classified
func UnknownCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return EmptyCell()
	}
	return Cell{Kind: CellUnknown, Text: s}
}

// IsEmpty reports whether the cell carries no value
func (c Cell) IsEmpty() bool {
	switch c.Kind {
	case CellEmpty:
		return true
	case CellText, CellUnknown:
		return strings.TrimSpace(c.Text) == ""
	}
	return false
}

// Token returns the trimmed textual form of the cell
func (c Cell) Token() string {
	switch c.Kind {
	case CellNumeric:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case CellText, CellUnknown:
		return strings.TrimSpace(c.Text)
	}
	return ""
}

// Column is an ordered sample of cells sharing a name
type Column struct {
	Name  string `json:"name"`
	Cells []Cell `json:"cells"`
}

// NonEmpty returns up to limit non-empty cells in column order.
// A limit <= 0 returns all of them.
func (c Column) NonEmpty(limit int) []Cell {
	out := make([]Cell, 0, min(len(c.Cells), max(limit, 0)))
	for _, cell := range c.Cells {
		if cell.IsEmpty() {
			continue
		}
		out = append(out, cell)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Table is the generic tabular input: ordered, named columns
type Table struct {
	Name    string   `json:"name,omitempty"`
	Columns []Column `json:"columns"`
}

// ColumnNames returns the column names in order
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// RowCount returns the length of the longest column
func (t Table) RowCount() int {
	n := 0
	for _, c := range t.Columns {
		if len(c.Cells) > n {
			n = len(c.Cells)
		}
	}
	return n
}

// Row returns the cells of row i across all columns. Short columns pad with empty cells.
func (t Table) Row(i int) []Cell {
	row := make([]Cell, len(t.Columns))
	for j, c := range t.Columns {
		if i < len(c.Cells) {
			row[j] = c.Cells[i]
		}
	}
	return row
}

// TableFromRows builds a table from a header and row-major cells
func TableFromRows(name string, header []string, rows [][]Cell) Table {
	t := Table{Name: name, Columns: make([]Column, len(header))}
	for j, h := range header {
		t.Columns[j] = Column{Name: h, Cells: make([]Cell, len(rows))}
	}
	for i, row := range rows {
		for j := range header {
			if j < len(row) {
				t.Columns[j].Cells[i] = row[j]
			}
		}
	}
	return t
}
