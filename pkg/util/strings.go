package util

import (
	"strconv"
	"strings"
)

// ParseFloat parses a trimmed decimal field; empty means 0.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// NormalizeSymbol upper-cases and trims a contract code ("esz4 " -> "ESZ4").
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
