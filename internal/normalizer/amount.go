package normalizer

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var amountNoisePattern = regexp.MustCompile(`[^\d.,]`)

// ParseAmount converts a locale formatted numeral ("R$ 1.234,56", "1234,56",
// "1,234.56") to a decimal. When both separators appear the last one is the
// decimal separator. A comma alone is always decimal. A period alone is a
// grouping separator when it repeats or is followed by exactly three digits.
// The second result is false when raw holds no parseable number.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := amountNoisePattern.ReplaceAllString(raw, "")
	s = strings.Trim(s, ".,")

	if s == "" || strings.IndexFunc(s, isDigit) < 0 {
		return decimal.Decimal{}, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = withDecimalAt(strings.ReplaceAll(s, ".", ""), ",")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = withDecimalAt(s, ",")
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}

	return d, true
}

// ParseNullAmount is ParseAmount wrapped for nullable storage columns.
func ParseNullAmount(raw string) decimal.NullDecimal {
	d, ok := ParseAmount(raw)

	return decimal.NullDecimal{Decimal: d, Valid: ok}
}

// withDecimalAt keeps the last sep as the decimal point and drops the others.
func withDecimalAt(s, sep string) string {
	idx := strings.LastIndex(s, sep)
	intPart := strings.ReplaceAll(s[:idx], sep, "")

	return intPart + "." + s[idx+len(sep):]
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
