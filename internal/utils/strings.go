package utils

import "strings"

// NormalizeSymbol returns the canonical form of a ticker or index name:
// surrounding whitespace removed, upper case.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
