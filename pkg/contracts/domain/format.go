package domain

import (
	"fmt"
	"strings"
)

// DataType is the semantic type of a column
type DataType string

const (
	TypeString DataType = "string"
	TypeNumber DataType = "number"
	TypeDate   DataType = "date"
)

// Rank orders types for detection tie-breaks: Date > Number > String
func (t DataType) Rank() int {
	switch t {
	case TypeDate:
		return 2
	case TypeNumber:
		return 1
	}
	return 0
}

// FormatTag is a recognised sub-format within a data type. The set is closed;
// FormatOther is the fallback for anything the parser has no rule for.
type FormatTag uint8

const (
	FormatOther FormatTag = iota

	// String formats
	FormatPlainString
	FormatAccountCode
	FormatReferenceCode

	// Number formats
	FormatPlainNumber
	FormatUsCurrency
	FormatEuCurrency
	FormatIndianCurrency
	FormatAccounting
	FormatAbbreviated
	FormatCreditDebit
	FormatPercentage

	// Date formats
	FormatIsoDate
	FormatUsDate
	FormatEuDate
	FormatExcelSerial
	FormatQuarterNotation
	FormatMonthAbbrev
	FormatDayMonthAbbrev

	formatCount
)

var formatNames = [formatCount]string{
	FormatOther:           "Other",
	FormatPlainString:     "PlainString",
	FormatAccountCode:     "AccountCode",
	FormatReferenceCode:   "ReferenceCode",
	FormatPlainNumber:     "PlainNumber",
	FormatUsCurrency:      "UsCurrency",
	FormatEuCurrency:      "EuCurrency",
	FormatIndianCurrency:  "IndianCurrency",
	FormatAccounting:      "Accounting",
	FormatAbbreviated:     "Abbreviated",
	FormatCreditDebit:     "CreditDebit",
	FormatPercentage:      "Percentage",
	FormatIsoDate:         "IsoDate",
	FormatUsDate:          "UsDate",
	FormatEuDate:          "EuDate",
	FormatExcelSerial:     "ExcelSerial",
	FormatQuarterNotation: "QuarterNotation",
	FormatMonthAbbrev:     "MonthAbbrev",
	FormatDayMonthAbbrev:  "DayMonthAbbrev",
}

// String returns the canonical tag name
func (f FormatTag) String() string {
	if f >= formatCount {
		return formatNames[FormatOther]
	}
	return formatNames[f]
}

// Type returns the data type the tag belongs to. FormatOther maps to String.
func (f FormatTag) Type() DataType {
	switch {
	case f >= FormatPlainNumber && f <= FormatPercentage:
		return TypeNumber
	case f >= FormatIsoDate && f <= FormatDayMonthAbbrev:
		return TypeDate
	}
	return TypeString
}

// ParseFormatTag resolves a tag by name, case-insensitively
func ParseFormatTag(name string) (FormatTag, error) {
	for i, n := range formatNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return FormatTag(i), nil
		}
	}
	return FormatOther, fmt.Errorf("unknown format tag %q", name)
}

// MarshalText implements encoding.TextMarshaler
func (f FormatTag) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *FormatTag) UnmarshalText(b []byte) error {
	tag, err := ParseFormatTag(string(b))
	if err != nil {
		return err
	}
	*f = tag
	return nil
}

// NumberFormats lists number tags in detection preference order
func NumberFormats() []FormatTag {
	return []FormatTag{
		FormatPlainNumber,
		FormatUsCurrency,
		FormatEuCurrency,
		FormatIndianCurrency,
		FormatAccounting,
		FormatCreditDebit,
		FormatAbbreviated,
		FormatPercentage,
	}
}

// DateFormats lists date tags in detection preference order
func DateFormats() []FormatTag {
	return []FormatTag{
		FormatIsoDate,
		FormatUsDate,
		FormatEuDate,
		FormatMonthAbbrev,
		FormatDayMonthAbbrev,
		FormatQuarterNotation,
		FormatExcelSerial,
	}
}

// StringFormats lists the specific string tags in detection preference order.
// FormatPlainString is the implicit fallback and is not listed.
func StringFormats() []FormatTag {
	return []FormatTag{FormatAccountCode, FormatReferenceCode}
}

// DetectionResult is the classification of one column
type DetectionResult struct {
	Type       DataType  `json:"type"`
	Format     FormatTag `json:"format"`
	Confidence float64   `json:"confidence"`
	Sampled    int       `json:"sampled"`
}

// String renders the result for logs and CLI output
func (r DetectionResult) String() string {
	return fmt.Sprintf("%s/%s (%.2f)", r.Type, r.Format, r.Confidence)
}
