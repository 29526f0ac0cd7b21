// Package exporter writes stored datasets and query results back out.
//
// CSVWriter: CSV output with an optional UTF-8 BOM so Excel detects the
// encoding, either buffered to a file or streamed to any io.Writer.
//
// ExcelWriter: .xlsx output through the excelize stream writer, with
// amounts written as numbers and dates as real date cells.
//
// Both render values the same way: amounts in plain decimal notation,
// dates as YYYY-MM-DD, nulls as blanks and parse failures as the original
// token so an export can be corrected and ingested again.
//
// Example usage:
//
//	rows, _ := store.QueryData(ctx, "ledger", filters)
//	w := exporter.NewCSVWriter(exporter.WithBOM(true))
//	err := w.WriteFile("out/ledger.csv", meta.Columns, rows)
package exporter
