package dispatch

import (
	"strconv"
	"strings"
)

// parseAmountToken parses a numeric token with locale-aware separators. Both
// "." and "," are accepted as the decimal point; when both appear, the
// rightmost one is the decimal separator and the other marks thousands
// ("1.234,56" -> 1234.56). A separator followed by more than two digits is a
// thousands separator ("62.000" -> 62000).
func parseAmountToken(tok string) (float64, bool) {
	if tok == "" {
		return 0, false
	}
	hasDigit := false
	for _, r := range tok {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r == '.' || r == ',':
		default:
			return 0, false
		}
	}
	if !hasDigit {
		return 0, false
	}

	lastDot := strings.LastIndexByte(tok, '.')
	lastComma := strings.LastIndexByte(tok, ',')
	decIdx := -1
	switch {
	case lastDot >= 0 && lastComma >= 0:
		decIdx = lastDot
		if lastComma > lastDot {
			decIdx = lastComma
		}
	case lastDot >= 0:
		decIdx = lastDot
	case lastComma >= 0:
		decIdx = lastComma
	}

	intPart := tok
	fracPart := ""
	if decIdx >= 0 {
		intPart = tok[:decIdx]
		fracPart = tok[decIdx+1:]
		if len(fracPart) > 2 {
			// Not a decimal tail, a thousands group.
			intPart += fracPart
			fracPart = ""
		}
	}
	intPart = stripSeparators(intPart)
	if intPart == "" && fracPart == "" {
		return 0, false
	}
	if intPart == "" {
		intPart = "0"
	}

	s := intPart
	if fracPart != "" {
		s = intPart + "." + fracPart
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func stripSeparators(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
