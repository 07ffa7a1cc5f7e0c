// Package normalizers provides field normalization for clash detection
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("remove_punctuation", RemovePunctuation)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("nname", NormalizeName)
	Register("nteam", NormalizeTeam)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		if fn, ok := registry[name]; ok {
			result = fn(result)
		}
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// CollapseWhitespace folds runs of whitespace into single spaces and trims
func CollapseWhitespace(s string) string {
	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
			continue
		}
		result.WriteRune(r)
		prevSpace = false
	}
	return strings.TrimSpace(result.String())
}

// NormalizeName normalizes a person's name for similarity scoring:
// lowercase, punctuation removed, whitespace collapsed, common suffixes
// (jr, sr, roman numerals) stripped.
func NormalizeName(s string) string {
	s = strings.ToLower(s)

	suffixes := []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
		}
	}

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// NormalizeTeam normalizes a squad or team name for comparison scope:
// case-insensitive, punctuation removed, whitespace collapsed. "Town F.C."
// and "town fc" compare equal; "Town FC" and "Town" do not, because
// dropping structure tokens risks merging distinct clubs.
func NormalizeTeam(s string) string {
	return CollapseWhitespace(RemovePunctuation(strings.ToLower(s)))
}
