package exporter

import (
	"ledgerlens/pkg/contracts/domain"
)

// formatValue renders a stored value as export text
func formatValue(v domain.Value) string {
	switch v.Kind {
	case domain.KindAmount:
		return v.Amount.String()
	case domain.KindDate:
		return v.Date.Format(domain.DateLayout)
	case domain.KindText:
		return v.Text
	case domain.KindFailure:
		if v.Failure != nil {
			return v.Failure.Token
		}
	}
	return ""
}

// record renders one row in column order
func record(columns []string, row domain.Row) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = formatValue(row.Get(col))
	}
	return out
}
