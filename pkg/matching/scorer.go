// Package matching implements duplicate detection for players and fixtures
package matching

import (
	"math"
	"sort"
	"strings"

	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// Scorer computes name similarity on a 0-100 scale
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// NameSimilarity scores two person names between 0 (no similarity) and 100
// (identical after normalization). Names are normalized, contracted given
// names are folded onto their long form, then tokens are sorted so
// "Smith Jon" and "Jon Smith" compare equal before scoring by edit distance
// relative to the longer name. The result is rounded to the nearest integer
// so threshold comparisons are stable.
func (s *Scorer) NameSimilarity(a, b string) float64 {
	tokensA := strings.Fields(normalizers.NormalizeName(a))
	tokensB := strings.Fields(normalizers.NormalizeName(b))

	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	foldPrefixTokens(tokensA, tokensB)
	sort.Strings(tokensA)
	sort.Strings(tokensB)

	joinedA := strings.Join(tokensA, " ")
	joinedB := strings.Join(tokensB, " ")
	if joinedA == joinedB {
		return 100
	}

	distance := s.LevenshteinDistance(joinedA, joinedB)
	maxLen := max(len(joinedA), len(joinedB))

	return math.Round(100 * (1 - float64(distance)/float64(maxLen)))
}

// minFoldLen keeps folding away from initials: "Al" never swallows "Alan",
// but "Jon" folds onto "Jonathan".
const minFoldLen = 3

// foldPrefixTokens rewrites a token to its shorter form when the shorter
// token is a prefix of the longer one, so a contracted given name and its
// long form compare equal.
func foldPrefixTokens(a, b []string) {
	for i, ta := range a {
		for j, tb := range b {
			switch {
			case ta == tb:
			case len(ta) >= minFoldLen && strings.HasPrefix(tb, ta):
				b[j] = ta
			case len(tb) >= minFoldLen && strings.HasPrefix(ta, tb):
				a[i] = tb
			}
		}
	}
}

// LevenshteinDistance calculates the edit distance between two strings
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Two rows for dynamic programming
	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}
