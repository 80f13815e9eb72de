package resolver

import (
	"math"
	"strconv"
	"strings"
)

// ParseLocaleNumber parses numbers typed with either decimal separator:
// "25,50", "25.50", "1.234,56", "1,234.56", "€ 3,5".
func ParseLocaleNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	for _, sym := range []string{"€", "$", "EUR", "TL", " ", " "} {
		s = strings.ReplaceAll(s, sym, "")
	}
	if s == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// whichever comes last is the decimal separator
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
