// Package formats turns raw spreadsheet tokens into canonical values.
//
// The Parser understands the amount, date, currency and code formats found in
// financial workbooks:
//
//	US and European grouping      1,234.56   1.234,56   1 234,56
//	Indian grouping               ₹1,23,456
//	Accounting negatives          (2,500.00)  2,500.00-
//	Credit/debit markers          CR 1,000.00  500.00 DR
//	Abbreviations                 1.5M  250K  3B  2T
//	Dates                         2023-12-31  12/31/2023  31.12.2023
//	Excel serials                 44927
//	Quarters and months           Q1 2023  2023 Q1  Dec-23  15-Jan-23
//
// Every parse function returns a domain.Value. A token that cannot be
// interpreted produces a Failure value carrying a reason instead of an error,
// so one malformed cell never aborts a batch.
//
// # Usage
//
//	p := formats.New(formats.WithDateConvention(formats.ConventionEU))
//
//	v := p.ParseAmount("(1.234,56 €)", domain.FormatOther)
//	// v.Amount == -1234.56, v.Currency == "EUR"
//
//	d := p.ParseDate("Q3 2024", domain.FormatOther)
//	// d.Date == 2024-07-01
//
// # Format hints
//
// The detector passes the column's detected FormatTag as a hint. Hints only
// resolve genuinely ambiguous tokens such as "1.234" (one thousand two hundred
// thirty four under EuCurrency, one point two three four under UsCurrency);
// they never make an unparseable token succeed.
//
// A Parser holds configuration only and is safe for concurrent use.
package formats
