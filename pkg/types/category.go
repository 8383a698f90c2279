package types

import "strings"

// Categories is the closed set of freelancer categories accepted by the marketplace.
var Categories = []string{
	"Graphic Designer",
	"Video Editor",
	"Photographer",
	"Singer",
	"Dancer",
	"Illustrator",
	"Content Creator",
}

var normalizedCategories = func() map[string]string {
	m := make(map[string]string, len(Categories))
	for _, c := range Categories {
		m[NormalizeCategory(c)] = c
	}
	return m
}()

// NormalizeCategory lowercases and trims a category for comparison.
func NormalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsValidCategory reports whether s names a known category, ignoring case and padding.
func IsValidCategory(s string) bool {
	_, ok := normalizedCategories[NormalizeCategory(s)]
	return ok
}

// CanonicalCategory returns the display form of a category, or "" if unknown.
func CanonicalCategory(s string) string {
	return normalizedCategories[NormalizeCategory(s)]
}
