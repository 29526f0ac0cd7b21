package formats

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"ledgerlens/pkg/contracts/domain"
)

// SpecialKind selects how HandleSpecial treats a token
type SpecialKind string

const (
	AccountCodeKind SpecialKind = "account_code"
	ReferenceKind   SpecialKind = "reference"
	PercentageKind  SpecialKind = "percentage"
	IdentifierKind  SpecialKind = "identifier"
)

var hundred = decimal.NewFromInt(100)

// HandleSpecial normalises codes, references, percentages and identifiers.
// Codes lose their separators and are uppercased; percentages become
// fractional amounts; identifiers are only trimmed.
func (p *Parser) HandleSpecial(token string, kind SpecialKind) domain.Value {
	s := normalizeSpaces(token)
	if s == "" {
		return domain.FailureValue(domain.ReasonEmptyToken, token)
	}

	switch kind {
	case AccountCodeKind, ReferenceKind:
		code := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToUpper(r)
			}
			return -1
		}, s)
		if code == "" {
			return domain.FailureValue(domain.ReasonUnsupported, token)
		}
		return domain.TextValue(code)

	case PercentageKind:
		trimmed := strings.TrimSpace(strings.ReplaceAll(s, "%", ""))
		v := p.ParseAmount(trimmed, domain.FormatOther)
		if v.Kind != domain.KindAmount {
			if v.Failure != nil {
				v.Failure.Token = token
			}
			return v
		}
		return domain.AmountValue(v.Amount.Div(hundred), v.Currency)

	case IdentifierKind:
		return domain.TextValue(s)
	}

	return domain.FailureValue(domain.ReasonUnsupported, token)
}
