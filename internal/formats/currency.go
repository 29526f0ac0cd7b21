package formats

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"ledgerlens/pkg/contracts/domain"
)

type currencyMarker struct {
	text string
	code string
}

// currencyMarkers is ordered longest first so "US$" wins over "$"
var currencyMarkers = []currencyMarker{
	{"US$", "USD"},
	{"Rs.", "INR"},
	{"A$", "AUD"},
	{"C$", "CAD"},
	{"Rs", "INR"},
	{"kr", "SEK"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
}

var isoCurrencyCodes = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "INR": true,
	"CHF": true, "SEK": true, "AUD": true, "CAD": true, "CNY": true,
	"IQD": true, "AED": true, "SAR": true,
}

// CurrencyCode resolves a symbol or ISO code to an ISO 4217 code
func CurrencyCode(marker string) (string, bool) {
	marker = strings.TrimSpace(marker)
	for _, m := range currencyMarkers {
		if m.text == marker {
			return m.code, true
		}
	}
	upper := strings.ToUpper(marker)
	if isoCurrencyCodes[upper] {
		return upper, true
	}
	return "", false
}

// NormalizeCurrency parses an amount and resolves its currency. A bare number
// yields an Amount with an empty currency.
func (p *Parser) NormalizeCurrency(token string) domain.Value {
	v := p.ParseAmount(token, domain.FormatOther)
	if v.Kind != domain.KindAmount || v.Currency != "" {
		return v
	}
	if code, ok := findCurrency(token); ok {
		v.Currency = code
	}
	return v
}

// cutCurrency removes a currency marker from either end of s
func cutCurrency(s string) (code, rest string, ok bool) {
	for _, m := range currencyMarkers {
		if strings.HasPrefix(s, m.text) && boundaryAfter(s, len(m.text), m.text) {
			return m.code, s[len(m.text):], true
		}
		if strings.HasSuffix(s, m.text) && boundaryBefore(s, len(s)-len(m.text), m.text) {
			return m.code, s[:len(s)-len(m.text)], true
		}
	}
	if len(s) >= 3 {
		if head := strings.ToUpper(s[:3]); isoCurrencyCodes[head] && boundaryAfter(s, 3, head) {
			return head, s[3:], true
		}
		if tail := strings.ToUpper(s[len(s)-3:]); isoCurrencyCodes[tail] && boundaryBefore(s, len(s)-3, tail) {
			return tail, s[:len(s)-3], true
		}
	}
	return "", s, false
}

// findCurrency scans the whole token for any known marker
func findCurrency(s string) (string, bool) {
	for _, m := range currencyMarkers {
		if idx := strings.Index(s, m.text); idx >= 0 &&
			boundaryBefore(s, idx, m.text) && boundaryAfter(s, idx+len(m.text), m.text) {
			return m.code, true
		}
	}
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if upper := strings.ToUpper(field); isoCurrencyCodes[upper] {
			return upper, true
		}
	}
	return "", false
}

// boundaryAfter reports whether a word marker ending at i is not glued to
// a following letter. Symbol markers need no boundary.
func boundaryAfter(s string, i int, marker string) bool {
	if !isWordMarker(marker) || i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r)
}

// boundaryBefore reports whether a word marker starting at i is not glued to
// a preceding letter
func boundaryBefore(s string, i int, marker string) bool {
	if !isWordMarker(marker) || i <= 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r)
}

func isWordMarker(marker string) bool {
	r, _ := utf8.DecodeRuneInString(marker)
	return unicode.IsLetter(r)
}
