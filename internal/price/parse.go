// Package price extracts monetary amounts from free-form page text.
package price

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/truecost/internal/model"
)

// Parse extracts a price from text such as "$29.99", "€24,99" or
// "$1,234.56". ok is false when no finite number can be read.
//
// A lone comma is a decimal separator only when exactly two digits follow the
// last comma ("24,99"); otherwise commas group thousands ("1,234"). This is a
// heuristic and misreads currencies with three fraction digits.
func Parse(text string) (float64, bool) {
	cleaned := clean(text)
	if cleaned == "" {
		return 0, false
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")

	switch {
	case hasComma && hasDot:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case hasComma:
		parts := strings.Split(cleaned, ",")
		if len(parts[len(parts)-1]) == 2 {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	v, ok := leadingFloat(cleaned)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseAmount parses text and tags it with the currency inferred from host.
// Returns nil when the text is unparseable.
func ParseAmount(text, host string) *model.MonetaryAmount {
	v, ok := Parse(text)
	if !ok {
		return nil
	}
	return &model.MonetaryAmount{Value: v, Currency: DetectCurrency(host).Code}
}

// clean keeps digits, commas and periods.
func clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// leadingFloat reads the longest numeric prefix of s: digits with at most one
// decimal point. Anything after the prefix is ignored, so "1.234.56" reads as
// 1.234 and "1.234,56" as 1.234.
func leadingFloat(s string) (float64, bool) {
	end, digits := 0, 0
	seenDot := false
scan:
	for end < len(s) {
		switch c := s[end]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !seenDot:
			seenDot = true
		default:
			break scan
		}
		end++
	}
	if digits == 0 {
		return 0, false
	}

	num := strings.TrimSuffix(s[:end], ".")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
