package util

import (
	"strconv"
	"strings"
)

// ParseNumber parses exchange-formatted numbers such as "1,234,567", "-12.5" or "--".
// Placeholders yield (0, false).
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" || s == "--" || s == "N/A" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
