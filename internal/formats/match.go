package formats

import (
	"math"
	"regexp"
	"strings"

	"ledgerlens/pkg/contracts/domain"
)

var (
	rePlainCore   = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	reUSCore      = regexp.MustCompile(`^(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?$`)
	reEUCore      = regexp.MustCompile(`^(?:\d{1,3}(?:[.' ]\d{3})+|\d+)(?:,\d+)?$`)
	reIndianCore  = regexp.MustCompile(`^(?:\d{1,2}(?:,\d{2})*,)?\d{1,3}(?:\.\d+)?$`)
	reIndianLakh  = regexp.MustCompile(`^\d{1,2}(?:,\d{2})+,\d{3}(?:\.\d+)?$`)
	reAccountCode = regexp.MustCompile(`^\d{3,}(?:[-./ ]\d+)+$|^\d{4,}$`)
	reReference   = regexp.MustCompile(`^[A-Za-z]{1,6}[-_/# ]?\d{3,}(?:[-_/][A-Za-z0-9]+)*$`)
)

// Matches reports whether a cell has the shape of the tag and parses under
// it. The detector scores formats with this predicate.
func (p *Parser) Matches(tag domain.FormatTag, cell domain.Cell) bool {
	if cell.IsEmpty() {
		return false
	}
	if cell.Kind == domain.CellNumeric {
		return p.matchesNumeric(tag, cell.Number)
	}

	s := normalizeSpaces(cell.Token())
	switch tag.Type() {
	case domain.TypeNumber:
		return p.matchesAmount(tag, s)
	case domain.TypeDate:
		return p.matchesDate(tag, s)
	}

	switch tag {
	case domain.FormatPlainString:
		return true
	case domain.FormatAccountCode:
		return reAccountCode.MatchString(s)
	case domain.FormatReferenceCode:
		return reReference.MatchString(s)
	}
	return false
}

func (p *Parser) matchesNumeric(tag domain.FormatTag, n float64) bool {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return false
	}
	switch tag {
	case domain.FormatPlainNumber, domain.FormatUsCurrency, domain.FormatEuCurrency,
		domain.FormatIndianCurrency, domain.FormatAccounting, domain.FormatPercentage:
		return true
	case domain.FormatExcelSerial:
		return n == math.Trunc(n) && n >= detectSerialMin && n <= detectSerialMax
	case domain.FormatPlainString:
		return true
	}
	return false
}

func (p *Parser) matchesAmount(tag domain.FormatTag, s string) bool {
	if tag == domain.FormatPercentage {
		if !strings.Contains(s, "%") {
			return false
		}
		return p.HandleSpecial(s, PercentageKind).Kind == domain.KindAmount
	}

	parts, reason := decomposeAmount(s)
	if reason != "" {
		return false
	}
	marked := parts.debit || parts.credit
	plainSign := !parts.parens && !parts.trailingMinus

	var shaped bool
	switch tag {
	case domain.FormatPlainNumber:
		shaped = parts.currency == "" && !marked && parts.suffix == 0 && plainSign &&
			rePlainCore.MatchString(parts.core)
	case domain.FormatUsCurrency:
		shaped = !marked && parts.suffix == 0 && !parts.parens && reUSCore.MatchString(parts.core)
	case domain.FormatEuCurrency:
		shaped = !marked && parts.suffix == 0 && reEUCore.MatchString(parts.core)
	case domain.FormatIndianCurrency:
		// below one lakh the grouping is the same as US, so only a rupee
		// marker tells them apart
		shaped = !marked && parts.suffix == 0 && !parts.parens &&
			(reIndianLakh.MatchString(parts.core) ||
				parts.currency == "INR" && reIndianCore.MatchString(parts.core))
	case domain.FormatAccounting:
		shaped = !marked && parts.suffix == 0 && reUSCore.MatchString(parts.core)
	case domain.FormatCreditDebit:
		shaped = marked && parts.suffix == 0 && reUSCore.MatchString(parts.core)
	case domain.FormatAbbreviated:
		shaped = !marked && parts.suffix != 0 && reUSCore.MatchString(parts.core)
	}
	if !shaped {
		return false
	}
	return amountFromParts(parts, tag, s).Kind == domain.KindAmount
}

func (p *Parser) matchesDate(tag domain.FormatTag, s string) bool {
	if tag == domain.FormatExcelSerial {
		if !reSerial.MatchString(s) {
			return false
		}
		serial := atoi(strings.SplitN(s, ".", 2)[0])
		return serial >= detectSerialMin && serial <= detectSerialMax
	}
	rule := p.hintRule(tag)
	if rule == nil {
		return false
	}
	v, ok := rule(p, s)
	return ok && v.Kind == domain.KindDate
}
