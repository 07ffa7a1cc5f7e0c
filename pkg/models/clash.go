package models

import "strings"

// ClashType discriminates the clash union so consumers can dispatch
// exhaustively instead of sniffing payload shapes.
type ClashType string

const (
	ClashTypePlayer  ClashType = "player"
	ClashTypeFixture ClashType = "fixture"
)

// Clash is the tagged union of the two clash kinds.
type Clash interface {
	Type() ClashType
	PairKey() string
}

// PlayerClash is a detected pair of players suspected to be the same person.
// Clashes are derived per scan and never persisted.
type PlayerClash struct {
	ClashType       ClashType `json:"clash_type"`
	PlayerA         Player    `json:"player_a"`
	PlayerB         Player    `json:"player_b"`
	SquadA          string    `json:"squad_a"`
	SquadB          string    `json:"squad_b"`
	SimilarityScore float64   `json:"similarity_score"`
}

func (c PlayerClash) Type() ClashType {
	return ClashTypePlayer
}

func (c PlayerClash) PairKey() string {
	return CanonicalPairKey(c.PlayerA.UniversalID, c.PlayerB.UniversalID)
}

// FixtureClash is a pair of fixtures with the same teams and date ingested
// from different sources.
type FixtureClash struct {
	ClashType ClashType `json:"clash_type"`
	MatchA    Fixture   `json:"match_a"`
	MatchB    Fixture   `json:"match_b"`
}

func (c FixtureClash) Type() ClashType {
	return ClashTypeFixture
}

func (c FixtureClash) PairKey() string {
	return CanonicalPairKey(c.MatchA.UniversalID, c.MatchB.UniversalID)
}

// ClashReport is the detect-clashes response body.
type ClashReport struct {
	PlayerClashes  []PlayerClash  `json:"player_clashes"`
	FixtureClashes []FixtureClash `json:"fixture_clashes"`
}

// CanonicalPairKey builds the ledger key for a pair of universal IDs. The
// key is direction-independent: (A,B) and (B,A) produce the same key.
func CanonicalPairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}
