// Package detection classifies spreadsheet columns as string, number or date
// and picks the sub-format that best explains the cells.
//
// A column is scored by sampling its first SampleSize non-empty cells and
// asking the format parser which cells each candidate format recognises.
// The confidence of a format is the fraction of sampled cells it matches.
//
// # Policy
//
//   - Sampling is the first SampleSize (default 100) non-empty cells in
//     column order; there is no random sampling, so results are reproducible.
//   - Every date and number format is scored. The highest fraction wins; ties
//     prefer dates over numbers, then the fixed in-type order returned by
//     domain.DateFormats and domain.NumberFormats.
//   - A winner below MinConfidence (default 0.6) demotes the column to string.
//     AccountCode and ReferenceCode are chosen when they reach MinConfidence,
//     otherwise PlainString with confidence 1.0.
//   - A column with no non-empty cells is PlainString with confidence 0.
package detection
