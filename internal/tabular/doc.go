// Package tabular turns workbooks and delimited text into domain.Table
// values for ingestion.
//
// Readers locate the header row, skip title rows above it, drop trailing
// blank rows and hand every cell over as it appears in the file. Excel cells
// arrive as their formatted text ("$1,234.56", "03/15/2023") so format
// detection sees what the author saw; WithRawValues switches to the stored
// values, producing numeric cells for numbers and date serials.
//
// Headers are trimmed. A blank header takes its spreadsheet column letter
// and repeated headers gain a numeric suffix ("amount", "amount_2").
package tabular
