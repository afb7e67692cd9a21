package valueobjects

import "strings"

// Aggregate rows that appear in the country dimension but are not countries.
const (
	WorldTotal     = "World total"
	OtherCountries = "Other countries"
)

// IsPseudoCountry reports whether name is one of the aggregate rows
func IsPseudoCountry(name string) bool {
	return name == WorldTotal || name == OtherCountries
}

// IsWorldTotal reports whether name is the world aggregate row
func IsWorldTotal(name string) bool {
	return name == WorldTotal
}

// NormalizeName trims surrounding whitespace from a dimension name.
// Source files occasionally carry trailing blanks on country names.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}
