package similarity

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// NumericResult reports the numeric comparison of two raw values. When either
// side fails to parse, IsNumeric is false and Similarity is 0.
type NumericResult struct {
	Similarity float64
	IsNumeric  bool
	A, B       float64
}

// Numeric parses both values through the permissive numeric parser and, when
// both parse, scores 1 - |a-b|/max(|a|,|b|) (1 when both are exactly zero).
func Numeric(a, b string) NumericResult {
	va, okA := ParseNumber(a)
	vb, okB := ParseNumber(b)
	if !okA || !okB {
		return NumericResult{}
	}
	res := NumericResult{IsNumeric: true, A: va, B: vb}
	if va == 0 && vb == 0 {
		res.Similarity = 1
		return res
	}
	maxAbs := math.Max(math.Abs(va), math.Abs(vb))
	sim := 1 - math.Abs(va-vb)/maxAbs
	if sim < 0 {
		sim = 0
	}
	res.Similarity = sim
	return res
}

// ParseNumber extracts a number from a freight-document value: currency
// symbols, letters, and spaces are stripped, then the thousands-vs-decimal
// separator is decided heuristically. A trailing 2-digit group after the
// last "." with commas present means "." is the decimal point (1,234.56);
// the mirrored European form (1.234,56) works the same way. With a single
// separator, a 3-digit tail is read as a thousands group: "1.234" parses as
// 1234. That case is inherently ambiguous; this is a best-effort reading,
// not a guarantee.
//
// An inner "-" or any other punctuation (slashes, colons) disqualifies the
// value, so dates and reference codes like INV-001 never read as numbers.
func ParseNumber(s string) (float64, bool) {
	trimmed := strings.TrimSpace(s)
	var b strings.Builder
	digits := false
	for i, r := range trimmed {
		switch {
		case unicode.IsDigit(r):
			digits = true
			b.WriteRune(r)
		case r == '.', r == ',':
			b.WriteRune(r)
		case r == '-':
			if i != 0 {
				return 0, false
			}
			b.WriteRune(r)
		case unicode.IsLetter(r), unicode.IsSymbol(r), unicode.IsSpace(r):
			// Currency markers and unit suffixes are dropped.
		default:
			return 0, false
		}
	}
	if !digits {
		return 0, false
	}
	cleaned := b.String()

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Both present: whichever comes last is the decimal separator.
		if lastDot > lastComma {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		}
	case lastComma >= 0:
		cleaned = resolveSingleSeparator(cleaned, ",")
	case lastDot >= 0:
		cleaned = resolveSingleSeparator(cleaned, ".")
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// resolveSingleSeparator decides whether the only separator present is a
// thousands group marker or the decimal point. Repeated separators are always
// thousands; otherwise a 3-digit tail reads as thousands, anything else as a
// decimal fraction.
func resolveSingleSeparator(s, sep string) string {
	if strings.Count(s, sep) > 1 {
		return strings.ReplaceAll(s, sep, "")
	}
	idx := strings.LastIndex(s, sep)
	tail := s[idx+1:]
	if len(tail) == 3 {
		return strings.ReplaceAll(s, sep, "")
	}
	return s[:idx] + "." + tail
}
