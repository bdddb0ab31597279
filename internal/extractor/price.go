package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Ordered numeric patterns tried against the matched element's text. The
// first pattern that yields a value inside the sanity bounds wins.
var pricePatterns = []*regexp.Regexp{
	// Currency-symbol prefixed: $1,299.99 / R$ 1.299,99 / € 12,50
	regexp.MustCompile(`(?:R\$|US\$|[$€£¥₹])\s*([0-9][0-9.,]*)`),
	// Currency-symbol or code suffixed: 1.299,99 € / 12.50 USD
	regexp.MustCompile(`([0-9][0-9.,]*)\s*(?:[$€£¥₹]|USD|EUR|GBP|BRL|JPY|kr)`),
	// Thousands-separated: 1,299.99 / 1.299,99 / 12,000
	regexp.MustCompile(`(?:^|[^0-9.,])([0-9]{1,3}(?:[.,][0-9]{3})+(?:[.,][0-9]{1,2})?)(?:[^0-9.,]|$)`),
	// Bare number: 1299.99 / 1299. Guarded so fragments of larger
	// separator-grouped numbers never match.
	regexp.MustCompile(`(?:^|[^0-9.,])([0-9]+(?:[.,][0-9]+)?)(?:[^0-9.,]|$)`),
}

// ParsePrice extracts a numeric price from free-form text. Patterns are tried
// in order; the first value inside (0, ceiling) is accepted. Text with no
// acceptable value returns an error, never a zero price.
func ParsePrice(text string, ceiling float64) (float64, error) {
	for _, pattern := range pricePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value, err := normalizeNumber(m[1])
		if err != nil {
			continue
		}
		if value > 0 && value < ceiling {
			return value, nil
		}
	}
	return 0, fmt.Errorf("no price in %q within (0, %g)", strings.TrimSpace(text), ceiling)
}

// normalizeNumber resolves locale-dependent separators. When both separators
// appear, the rightmost one is the decimal mark. A lone comma followed by one
// or two digits is a decimal comma; a lone separator followed by groups of
// three is a thousands mark.
func normalizeNumber(s string) (float64, error) {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		tail := len(s) - lastComma - 1
		if strings.Count(s, ",") == 1 && tail > 0 && tail < 3 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		tail := len(s) - lastDot - 1
		if strings.Count(s, ".") > 1 || tail == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	return strconv.ParseFloat(s, 64)
}
