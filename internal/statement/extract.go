package statement

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Amount patterns end with an optional currency token and a numeral whose "." and ","
// are thousands separators. Every pattern captures the value in its last group.
// Amounts are int64 whole units: a numeral above 9223372036854775807 does not fit and
// is reported as not found rather than rounded to a float.
const amountTail = `.*?[$\s]*([0-9,.]+)`

const dateToken = `([0-9]{1,2}[/-][0-9]{1,2}[/-][0-9]{2,4})`

// Patterns per field, most specific first. The first pattern that matches decides the
// field, even when its captured value is then rejected.
var (
	creditLimitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:límite|limite|limit)` + amountTail),
		regexp.MustCompile(`(?:credit limit)` + amountTail),
	}

	currentBalancePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:saldo|balance|deuda).*?actual` + amountTail),
		regexp.MustCompile(`(?:current balance)` + amountTail),
		regexp.MustCompile(`(?:deuda total)` + amountTail),
	}

	availableCreditPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:crédito|credito|credit).*?(?:disponible|available)` + amountTail),
		regexp.MustCompile(`(?:available credit)` + amountTail),
	}

	minimumPaymentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:pago|payment).*?(?:mínimo|minimo|minimum)` + amountTail),
		regexp.MustCompile(`(?:minimum payment)` + amountTail),
	}

	dueDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:vencimiento|due date|fecha.*?pago).*?` + dateToken),
		regexp.MustCompile(dateToken),
	}
)

// Extract reads statement fields from recognized text. It never fails: text with
// nothing recognizable yields empty Fields.
func Extract(text string) Fields {
	normalized := normalizeText(text)

	var fields Fields
	fields.CreditLimit = extractAmount(normalized, creditLimitPatterns)
	fields.CurrentBalance = extractAmount(normalized, currentBalancePatterns)
	fields.AvailableCredit = extractAmount(normalized, availableCreditPatterns)
	fields.MinimumPayment = extractAmount(normalized, minimumPaymentPatterns)
	fields.DueDate = extractDate(normalized, dueDatePatterns)
	return fields
}

// normalizeText lowercases and collapses all whitespace runs to one space
func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// firstMatch returns the capture of the first pattern that matches
func firstMatch(text string, patterns []*regexp.Regexp) (string, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return m[len(m)-1], true
	}
	return "", false
}

func extractAmount(text string, patterns []*regexp.Regexp) *Amount {
	raw, ok := firstMatch(text, patterns)
	if !ok {
		return nil
	}
	v, ok := ParseAmount(raw)
	if !ok {
		return nil
	}
	return &v
}

func extractDate(text string, patterns []*regexp.Regexp) *Date {
	raw, ok := firstMatch(text, patterns)
	if !ok {
		return nil
	}
	d, ok := ParseStatementDate(raw)
	if !ok {
		return nil
	}
	return &d
}

// StripSeparators removes "." and "," from a numeral. Both are read as thousands
// separators, so "1.234,56" becomes 123456: statements with real decimal fractions are
// read in minor units. Applying it twice gives the same result.
func StripSeparators(numeral string) string {
	return strings.NewReplacer(".", "", ",", "").Replace(numeral)
}

// ParseAmount parses a statement numeral. Only values greater than zero are accepted;
// zero, empty or out of range (more than int64 holds) numerals are reported as not found.
func ParseAmount(numeral string) (Amount, bool) {
	digits := StripSeparators(numeral)
	if digits == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return Amount(v), true
}

// ParseStatementDate parses a D/M/Y token ("-" separators allowed, 2 or 4 digit
// year). When the day-first reading is not a real date the month-first reading is
// tried, so "01/15/2024" is January 15.
func ParseStatementDate(token string) (Date, bool) {
	parts := strings.Split(strings.ReplaceAll(token, "-", "/"), "/")
	if len(parts) != 3 {
		return Date{}, false
	}

	a, errA := strconv.Atoi(parts[0])
	b, errB := strconv.Atoi(parts[1])
	year, errY := strconv.Atoi(parts[2])
	if errA != nil || errB != nil || errY != nil {
		return Date{}, false
	}

	switch len(parts[2]) {
	case 2:
		year += 2000
	case 4:
	default:
		return Date{}, false
	}

	if d, ok := calendarDate(year, b, a); ok {
		return d, true
	}
	return calendarDate(year, a, b)
}

// calendarDate rejects dates that time.Date would normalize, such as 31/02
func calendarDate(year, month, day int) (Date, bool) {
	if month < 1 || month > 12 || day < 1 {
		return Date{}, false
	}
	d := NewDate(year, time.Month(month), day)
	if d.Day() != day || int(d.Month()) != month {
		return Date{}, false
	}
	return d, true
}
