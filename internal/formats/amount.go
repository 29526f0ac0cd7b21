package formats

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"ledgerlens/pkg/contracts/domain"
)

var (
	reDigitsOnly = regexp.MustCompile(`^\d*$`)
	reCoreChars  = regexp.MustCompile(`^[\d.,' ]*\d[\d.,' ]*$`)
)

var multipliers = map[byte]decimal.Decimal{
	'K': decimal.New(1, 3),
	'M': decimal.New(1, 6),
	'B': decimal.New(1, 9),
	'T': decimal.New(1, 12),
}

// amountParts is a token split into its decorations and numeric core
type amountParts struct {
	core          string
	currency      string
	negative      bool
	parens        bool
	trailingMinus bool
	debit         bool
	credit        bool
	suffix        byte
}

// separators is the decimal/grouping pair a hint implies
type separators struct {
	decimal byte
	group   byte
}

var (
	usSeparators = separators{decimal: '.', group: ','}
	euSeparators = separators{decimal: ',', group: '.'}
)

func hintSeparators(hint domain.FormatTag) (separators, bool) {
	switch hint {
	case domain.FormatPlainNumber, domain.FormatUsCurrency, domain.FormatIndianCurrency,
		domain.FormatAccounting, domain.FormatAbbreviated, domain.FormatCreditDebit:
		return usSeparators, true
	case domain.FormatEuCurrency:
		return euSeparators, true
	}
	return separators{}, false
}

// ParseAmount converts a monetary token into an Amount. The hint resolves
// single-separator tokens; it is ignored for tags outside the number family.
func (p *Parser) ParseAmount(token string, hint domain.FormatTag) domain.Value {
	parts, reason := decomposeAmount(token)
	if reason != "" {
		return domain.FailureValue(reason, token)
	}
	return amountFromParts(parts, hint, token)
}

// ParseAmountCell converts a cell, taking numeric cells as exact values
func (p *Parser) ParseAmountCell(cell domain.Cell, hint domain.FormatTag) domain.Value {
	switch cell.Kind {
	case domain.CellEmpty:
		return domain.NullValue()
	case domain.CellNumeric:
		if math.IsNaN(cell.Number) || math.IsInf(cell.Number, 0) {
			return domain.FailureValue(domain.ReasonNotNumeric, cell.Token())
		}
		return domain.AmountValue(decimal.NewFromFloat(cell.Number), "")
	}
	return p.ParseAmount(cell.Token(), hint)
}

// decomposeAmount strips sign markers, currency markers and a magnitude
// suffix, leaving the digits and separators in parts.core
func decomposeAmount(token string) (amountParts, domain.FailureReason) {
	var parts amountParts

	s := normalizeSpaces(token)
	if s == "" {
		return parts, domain.ReasonEmptyToken
	}
	s = strings.ReplaceAll(s, "−", "-")

	for changed := true; changed; {
		changed = false
		s = strings.TrimSpace(s)
		if s == "" {
			break
		}

		switch {
		case len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')':
			parts.negative, parts.parens = true, true
			s = s[1 : len(s)-1]
		case s[0] == '-':
			parts.negative = true
			s = s[1:]
		case s[0] == '+':
			s = s[1:]
		case s[len(s)-1] == '-':
			parts.negative, parts.trailingMinus = true, true
			s = s[:len(s)-1]
		case s[len(s)-1] == '+':
			s = s[:len(s)-1]
		default:
			if rest, ok := cutMarker(s, "DR"); ok {
				parts.debit = true
				s = rest
			} else if rest, ok := cutMarker(s, "CR"); ok {
				parts.credit = true
				s = rest
			} else if code, rest, ok := cutCurrency(s); ok {
				if parts.currency != "" && parts.currency != code {
					return parts, domain.ReasonNotNumeric
				}
				parts.currency = code
				s = rest
			} else {
				continue
			}
		}
		changed = true
	}

	s = strings.TrimSpace(s)
	if n := len(s); n >= 2 {
		if _, ok := multipliers[upperASCII(s[n-1])]; ok {
			head := strings.TrimRight(s[:n-1], " ")
			if head != "" && isDigit(head[len(head)-1]) {
				parts.suffix = upperASCII(s[n-1])
				s = head
			}
		}
	}

	if !reCoreChars.MatchString(s) {
		return parts, domain.ReasonNotNumeric
	}
	parts.core = s
	return parts, ""
}

// amountFromParts resolves the separators in parts.core and applies sign,
// suffix and currency
func amountFromParts(parts amountParts, hint domain.FormatTag, token string) domain.Value {
	digits, reason := resolveSeparators(parts.core, hint)
	if reason != "" {
		return domain.FailureValue(reason, token)
	}

	d, err := decimal.NewFromString(digits)
	if err != nil {
		return domain.FailureValue(domain.ReasonNotNumeric, token)
	}
	if m, ok := multipliers[parts.suffix]; ok {
		d = d.Mul(m)
	}
	if (parts.negative || parts.debit) && !parts.credit {
		d = d.Neg()
	}
	return domain.AmountValue(d, parts.currency)
}

// resolveSeparators returns the core as a plain decimal string
func resolveSeparators(core string, hint domain.FormatTag) (string, domain.FailureReason) {
	clean := strings.NewReplacer(" ", "", "'", "").Replace(core)
	lastDot := strings.LastIndexByte(clean, '.')
	lastComma := strings.LastIndexByte(clean, ',')

	var decimalSep, groupSep byte
	switch {
	case lastDot < 0 && lastComma < 0:
		return clean, ""

	case lastDot >= 0 && lastComma >= 0:
		decimalSep, groupSep = '.', ','
		if lastComma > lastDot {
			decimalSep, groupSep = ',', '.'
		}
		if strings.Count(clean, string(decimalSep)) > 1 {
			return "", domain.ReasonAmbiguousSeparators
		}

	default:
		sep := byte('.')
		if lastComma >= 0 {
			sep = ','
		}
		if isDecimalSeparator(clean, sep, hint) {
			decimalSep = sep
		} else {
			groupSep = sep
		}
	}

	intPart, fracPart := clean, ""
	if decimalSep != 0 {
		idx := strings.LastIndexByte(clean, decimalSep)
		intPart, fracPart = clean[:idx], clean[idx+1:]
	}
	if groupSep != 0 {
		intPart = strings.ReplaceAll(intPart, string(groupSep), "")
	}
	if !reDigitsOnly.MatchString(intPart) || !reDigitsOnly.MatchString(fracPart) {
		return "", domain.ReasonAmbiguousSeparators
	}
	if intPart == "" && fracPart == "" {
		return "", domain.ReasonNotNumeric
	}
	if intPart == "" {
		intPart = "0"
	}
	if fracPart == "" {
		return intPart, ""
	}
	return intPart + "." + fracPart, ""
}

// isDecimalSeparator decides the role of the only separator kind in s
func isDecimalSeparator(s string, sep byte, hint domain.FormatTag) bool {
	count := strings.Count(s, string(sep))
	if seps, ok := hintSeparators(hint); ok {
		if sep == seps.decimal && count == 1 {
			return true
		}
		if sep == seps.group && validGrouping(s, sep) {
			return false
		}
	}
	after := len(s) - strings.LastIndexByte(s, sep) - 1
	return count == 1 && after >= 1 && after <= 2
}

// validGrouping accepts thousands grouping (1,234,567) and Indian lakh
// grouping (12,34,567)
func validGrouping(s string, sep byte) bool {
	groups := strings.Split(s, string(sep))
	if len(groups) < 2 || len(groups[0]) == 0 || len(groups[0]) > 3 {
		return false
	}
	if len(groups[len(groups)-1]) != 3 {
		return false
	}
	thousands, lakh := true, len(groups[0]) <= 2
	for _, g := range groups[1 : len(groups)-1] {
		if len(g) != 3 {
			thousands = false
		}
		if len(g) != 2 {
			lakh = false
		}
	}
	return thousands || lakh
}

// cutMarker removes a word marker such as DR or CR from either end of s
func cutMarker(s, word string) (string, bool) {
	n := len(word)
	if len(s) < n {
		return s, false
	}
	if strings.EqualFold(s[:n], word) {
		rest := s[n:]
		if r, _ := utf8.DecodeRuneInString(rest); rest == "" || !unicode.IsLetter(r) {
			return strings.TrimLeft(rest, " ."), true
		}
	}
	if strings.EqualFold(s[len(s)-n:], word) {
		rest := s[:len(s)-n]
		if r, _ := utf8.DecodeLastRuneInString(rest); rest == "" || !unicode.IsLetter(r) {
			return rest, true
		}
	}
	return s, false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func upperASCII(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
