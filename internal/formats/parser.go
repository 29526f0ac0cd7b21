package formats

import (
	"fmt"
	"strings"

	"ledgerlens/pkg/contracts/domain"
)

// DateConvention decides how a numeric date whose first two parts are both
// twelve or less is read
type DateConvention string

const (
	// ConventionUS reads 05/06/2023 as May 6
	ConventionUS DateConvention = "US"
	// ConventionEU reads 05/06/2023 as 5 June
	ConventionEU DateConvention = "EU"
	// ConventionStrict refuses to guess and reports AmbiguousDate
	ConventionStrict DateConvention = "STRICT"
)

// ParseDateConvention resolves a convention name, case-insensitively
func ParseDateConvention(name string) (DateConvention, error) {
	switch DateConvention(strings.ToUpper(strings.TrimSpace(name))) {
	case ConventionUS, "":
		return ConventionUS, nil
	case ConventionEU:
		return ConventionEU, nil
	case ConventionStrict:
		return ConventionStrict, nil
	}
	return "", fmt.Errorf("unknown date convention %q", name)
}

const (
	defaultPivot     = 30
	defaultSerialMin = 1
	defaultSerialMax = 100000

	// Serial numbers the detector treats as dates: 1970-01-01 through
	// 2099-12-31. Smaller integers are far more likely to be quantities.
	detectSerialMin = 25569
	detectSerialMax = 73050
)

// Parser converts raw tokens into canonical values
type Parser struct {
	convention DateConvention
	pivot      int
	serialMin  int
	serialMax  int
}

// Option configures a Parser
type Option func(*Parser)

// WithDateConvention sets the reading of ambiguous numeric dates
func WithDateConvention(c DateConvention) Option {
	return func(p *Parser) {
		if c != "" {
			p.convention = c
		}
	}
}

// WithTwoDigitYearPivot sets the two-digit year cut-over: years below pivot
// land in 20xx, the rest in 19xx
func WithTwoDigitYearPivot(pivot int) Option {
	return func(p *Parser) {
		if pivot >= 0 && pivot <= 100 {
			p.pivot = pivot
		}
	}
}

// WithExcelSerialRange bounds the serial numbers accepted as dates
func WithExcelSerialRange(lo, hi int) Option {
	return func(p *Parser) {
		if lo > 0 && hi >= lo {
			p.serialMin, p.serialMax = lo, hi
		}
	}
}

// New creates a parser. Without options it reads ambiguous dates US-style.
func New(opts ...Option) *Parser {
	p := &Parser{
		convention: ConventionUS,
		pivot:      defaultPivot,
		serialMin:  defaultSerialMin,
		serialMax:  defaultSerialMax,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Convention returns the configured date convention
func (p *Parser) Convention() DateConvention {
	return p.convention
}

// ParseCell converts a cell using the format detected for its column.
// Empty cells become Null.
func (p *Parser) ParseCell(cell domain.Cell, result domain.DetectionResult) domain.Value {
	if cell.IsEmpty() {
		return domain.NullValue()
	}

	switch result.Type {
	case domain.TypeNumber:
		if result.Format == domain.FormatPercentage && cell.Kind != domain.CellNumeric {
			return p.HandleSpecial(cell.Token(), PercentageKind)
		}
		return p.ParseAmountCell(cell, result.Format)
	case domain.TypeDate:
		return p.ParseDateCell(cell, result.Format)
	}

	switch result.Format {
	case domain.FormatAccountCode:
		return p.HandleSpecial(cell.Token(), AccountCodeKind)
	case domain.FormatReferenceCode:
		return p.HandleSpecial(cell.Token(), ReferenceKind)
	}
	return domain.TextValue(cell.Token())
}

// ParseAmounts parses a batch of tokens with a shared hint
func (p *Parser) ParseAmounts(tokens []string, hint domain.FormatTag) []domain.Value {
	out := make([]domain.Value, len(tokens))
	for i, tok := range tokens {
		out[i] = p.ParseAmount(tok, hint)
	}
	return out
}

// ParseDates parses a batch of tokens with a shared hint
func (p *Parser) ParseDates(tokens []string, hint domain.FormatTag) []domain.Value {
	out := make([]domain.Value, len(tokens))
	for i, tok := range tokens {
		out[i] = p.ParseDate(tok, hint)
	}
	return out
}

// normalizeSpaces folds the non-breaking and thin spaces spreadsheets
// emit into plain spaces and trims the result
func normalizeSpaces(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u00a0', '\u202f', '\u2009', '\t':
			return ' '
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
