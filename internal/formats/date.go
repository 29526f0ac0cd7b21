package formats

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ledgerlens/pkg/contracts/domain"
)

var (
	reISODate     = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})(?:[T ]\d{1,2}:\d{2}(?::\d{2}(?:\.\d+)?)?\s*(?:Z|[+-]\d{2}:?\d{2})?)?$`)
	reNumericDate = regexp.MustCompile(`^(\d{1,2})([-/.])(\d{1,2})([-/.])(\d{2}|\d{4})$`)
	reSerial      = regexp.MustCompile(`^\d{1,6}(?:\.0+)?$`)
	reQuarterLead = regexp.MustCompile(`(?i)^(?:Q|Quarter\s*)([1-4])[\s\-/']*(\d{2}|\d{4})$`)
	reQuarterTail = regexp.MustCompile(`(?i)^(\d{4})[\s\-/]*Q([1-4])$`)
	reMonthYear   = regexp.MustCompile(`^([A-Za-z]{3,9})\.?[\s\-/']*(\d{2}|\d{4})$`)
	reDayMonYear  = regexp.MustCompile(`^(\d{1,2})[\s\-/]*([A-Za-z]{3,9})\.?[\s\-/,]*(\d{2}|\d{4})$`)
	reMonDayYear  = regexp.MustCompile(`^([A-Za-z]{3,9})\.?\s+(\d{1,2}),?\s+(\d{4})$`)
)

var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// dateRule is one recognisable date shape. It reports matched=false when the
// token is not in its shape, so callers can move on to the next rule.
type dateRule func(p *Parser, s string) (v domain.Value, matched bool)

// dateRules is the fallback chain used after the hint
var dateRules = []dateRule{
	(*Parser).parseISO,
	(*Parser).parseNumericConvention,
	(*Parser).parseSerialToken,
	(*Parser).parseQuarter,
	(*Parser).parseMonthYear,
	(*Parser).parseDayMonthYear,
}

// ParseDate converts a date token into a calendar date. The hint is tried
// first; the remaining rules follow in a fixed order.
func (p *Parser) ParseDate(token string, hint domain.FormatTag) domain.Value {
	s := normalizeSpaces(token)
	if s == "" {
		return domain.FailureValue(domain.ReasonEmptyToken, token)
	}

	var hinted domain.Value
	hintMatched := false
	if rule := p.hintRule(hint); rule != nil {
		v, ok := rule(p, s)
		if ok && v.Kind == domain.KindDate {
			return v
		}
		hinted, hintMatched = v, ok
	}

	for _, rule := range dateRules {
		if v, ok := rule(p, s); ok {
			if v.Kind == domain.KindFailure {
				v.Failure.Token = token
			}
			return v
		}
	}

	if hintMatched {
		hinted.Failure.Token = token
		return hinted
	}
	return domain.FailureValue(domain.ReasonNotADate, token)
}

// ParseDateCell converts a cell; numeric cells are read as Excel serials
func (p *Parser) ParseDateCell(cell domain.Cell, hint domain.FormatTag) domain.Value {
	switch cell.Kind {
	case domain.CellEmpty:
		return domain.NullValue()
	case domain.CellNumeric:
		if math.IsNaN(cell.Number) || math.IsInf(cell.Number, 0) {
			return domain.FailureValue(domain.ReasonNotADate, cell.Token())
		}
		v := p.fromSerial(int(math.Floor(cell.Number)))
		if v.Kind == domain.KindFailure {
			v.Failure.Token = cell.Token()
		}
		return v
	}
	return p.ParseDate(cell.Token(), hint)
}

// ExcelSerialToDate converts a serial number using Excel's 1900 date system.
// Excel treats 1900 as a leap year, so serials before 60 are one day early
// and serial 60 names a day that never existed.
func ExcelSerialToDate(serial int) (time.Time, bool) {
	switch {
	case serial <= 0 || serial == 60:
		return time.Time{}, false
	case serial < 60:
		return excelEpoch.AddDate(0, 0, serial+1), true
	}
	return excelEpoch.AddDate(0, 0, serial), true
}

func (p *Parser) hintRule(hint domain.FormatTag) dateRule {
	switch hint {
	case domain.FormatIsoDate:
		return (*Parser).parseISO
	case domain.FormatUsDate:
		return func(p *Parser, s string) (domain.Value, bool) { return p.parseNumericOrdered(s, true) }
	case domain.FormatEuDate:
		return func(p *Parser, s string) (domain.Value, bool) { return p.parseNumericOrdered(s, false) }
	case domain.FormatExcelSerial:
		return (*Parser).parseSerialToken
	case domain.FormatQuarterNotation:
		return (*Parser).parseQuarter
	case domain.FormatMonthAbbrev:
		return (*Parser).parseMonthYear
	case domain.FormatDayMonthAbbrev:
		return (*Parser).parseDayMonthYear
	}
	return nil
}

func (p *Parser) parseISO(s string) (domain.Value, bool) {
	m := reISODate.FindStringSubmatch(s)
	if m == nil {
		return domain.Value{}, false
	}
	return calendarDate(atoi(m[1]), atoi(m[2]), atoi(m[3])), true
}

// parseNumericConvention reads a/b/y, letting out-of-range parts pick the
// order and falling back to the configured convention
func (p *Parser) parseNumericConvention(s string) (domain.Value, bool) {
	a, b, year, ok := p.numericParts(s)
	if !ok {
		return domain.Value{}, false
	}

	switch {
	case a > 12 && b > 12:
		return domain.FailureValue(domain.ReasonOutOfRange, s), true
	case a > 12:
		return calendarDate(year, b, a), true
	case b > 12:
		return calendarDate(year, a, b), true
	case a == b:
		return calendarDate(year, a, b), true
	}

	switch p.convention {
	case ConventionEU:
		return calendarDate(year, b, a), true
	case ConventionStrict:
		return domain.FailureValue(domain.ReasonAmbiguousDate, s), true
	}
	return calendarDate(year, a, b), true
}

// parseNumericOrdered reads a/b/y with a fixed order: month first when
// monthFirst is set, day first otherwise
func (p *Parser) parseNumericOrdered(s string, monthFirst bool) (domain.Value, bool) {
	a, b, year, ok := p.numericParts(s)
	if !ok {
		return domain.Value{}, false
	}
	if monthFirst {
		return calendarDate(year, a, b), true
	}
	return calendarDate(year, b, a), true
}

func (p *Parser) numericParts(s string) (a, b, year int, ok bool) {
	m := reNumericDate.FindStringSubmatch(s)
	if m == nil || m[2] != m[4] {
		return 0, 0, 0, false
	}
	return atoi(m[1]), atoi(m[3]), p.expandYear(m[5]), true
}

func (p *Parser) parseSerialToken(s string) (domain.Value, bool) {
	if !reSerial.MatchString(s) {
		return domain.Value{}, false
	}
	serial := atoi(strings.SplitN(s, ".", 2)[0])
	return p.fromSerial(serial), true
}

func (p *Parser) fromSerial(serial int) domain.Value {
	if serial < p.serialMin || serial > p.serialMax {
		return domain.FailureValue(domain.ReasonOutOfRange, strconv.Itoa(serial))
	}
	t, ok := ExcelSerialToDate(serial)
	if !ok {
		return domain.FailureValue(domain.ReasonOutOfRange, strconv.Itoa(serial))
	}
	return domain.DateValue(t)
}

func (p *Parser) parseQuarter(s string) (domain.Value, bool) {
	var quarter, year int
	if m := reQuarterLead.FindStringSubmatch(s); m != nil {
		quarter, year = atoi(m[1]), p.expandYear(m[2])
	} else if m := reQuarterTail.FindStringSubmatch(s); m != nil {
		year, quarter = atoi(m[1]), atoi(m[2])
	} else {
		return domain.Value{}, false
	}
	return calendarDate(year, (quarter-1)*3+1, 1), true
}

func (p *Parser) parseMonthYear(s string) (domain.Value, bool) {
	m := reMonthYear.FindStringSubmatch(s)
	if m == nil {
		return domain.Value{}, false
	}
	month, ok := monthNames[strings.ToLower(m[1])]
	if !ok {
		return domain.Value{}, false
	}
	return calendarDate(p.expandYear(m[2]), int(month), 1), true
}

func (p *Parser) parseDayMonthYear(s string) (domain.Value, bool) {
	var day, year int
	var name string
	if m := reDayMonYear.FindStringSubmatch(s); m != nil {
		day, name, year = atoi(m[1]), m[2], p.expandYear(m[3])
	} else if m := reMonDayYear.FindStringSubmatch(s); m != nil {
		name, day, year = m[1], atoi(m[2]), atoi(m[3])
	} else {
		return domain.Value{}, false
	}
	month, ok := monthNames[strings.ToLower(name)]
	if !ok {
		return domain.Value{}, false
	}
	return calendarDate(year, int(month), day), true
}

// expandYear maps two-digit years around the pivot
func (p *Parser) expandYear(s string) int {
	y := atoi(s)
	if len(s) != 2 {
		return y
	}
	if y < p.pivot {
		return 2000 + y
	}
	return 1900 + y
}

// calendarDate validates the parts instead of letting time.Date normalise
// 2023-02-30 into March
func calendarDate(year, month, day int) domain.Value {
	if year < 1 || year > 9999 || month < 1 || month > 12 || day < 1 {
		return domain.FailureValue(domain.ReasonOutOfRange, "")
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return domain.FailureValue(domain.ReasonOutOfRange, "")
	}
	return domain.DateValue(t)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
