package matching

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DefaultScoreThreshold is the minimum similarity score (0-100) for a player
// pair to surface as a clash. Policy constant, overridable via config.
const DefaultScoreThreshold = 70

// PlayerLister loads the full player set for a scan
type PlayerLister interface {
	ListAll(ctx context.Context) ([]models.Player, error)
}

// FixtureLister loads the full fixture set for a scan
type FixtureLister interface {
	ListAll(ctx context.Context) ([]models.Fixture, error)
}

// ResolutionIndex exposes the ledger as suppression sets: canonical pair
// keys that were merged, and single IDs that were deleted.
type ResolutionIndex interface {
	ResolvedIndex(ctx context.Context) (pairKeys map[string]struct{}, removedIDs map[string]struct{}, err error)
}

// Config contains detection tuning
type Config struct {
	ScoreThreshold float64
}

// DefaultConfig returns the default detection configuration
func DefaultConfig() Config {
	return Config{ScoreThreshold: DefaultScoreThreshold}
}

// Detector runs clash detection scans. Detection is read-only and safe for
// unlimited concurrent callers; all state lives in the database.
type Detector struct {
	logger      ectologger.Logger
	scorer      *Scorer
	players     PlayerLister
	fixtures    FixtureLister
	resolutions ResolutionIndex
	config      Config
}

// NewDetector creates a new clash detector
func NewDetector(
	logger ectologger.Logger,
	players PlayerLister,
	fixtures FixtureLister,
	resolutions ResolutionIndex,
	config Config,
) *Detector {
	if config.ScoreThreshold <= 0 {
		config.ScoreThreshold = DefaultScoreThreshold
	}
	return &Detector{
		logger:      logger,
		scorer:      NewScorer(),
		players:     players,
		fixtures:    fixtures,
		resolutions: resolutions,
		config:      config,
	}
}

// DetectClashes scans all players and fixtures and returns the clash lists,
// excluding pairs already resolved in the ledger.
func (d *Detector) DetectClashes(ctx context.Context) (*models.ClashReport, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Detector.DetectClashes")
	defer span.End()

	start := time.Now()

	players, err := d.players.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	fixtures, err := d.fixtures.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	pairKeys, removedIDs, err := d.resolutions.ResolvedIndex(ctx)
	if err != nil {
		return nil, err
	}

	report := &models.ClashReport{
		PlayerClashes:  BuildPlayerClashes(d.scorer, players, pairKeys, removedIDs, d.config.ScoreThreshold),
		FixtureClashes: BuildFixtureClashes(fixtures, pairKeys, removedIDs),
	}

	metrics.DetectionScansTotal.Inc()
	metrics.DetectionScanDuration.Observe(time.Since(start).Seconds())
	metrics.ClashesDetected.WithLabelValues(string(models.EntityTypePlayer)).Add(float64(len(report.PlayerClashes)))
	metrics.ClashesDetected.WithLabelValues(string(models.EntityTypeMatch)).Add(float64(len(report.FixtureClashes)))

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"players":         len(players),
		"fixtures":        len(fixtures),
		"player_clashes":  len(report.PlayerClashes),
		"fixture_clashes": len(report.FixtureClashes),
		"duration":        time.Since(start),
	}).Info("Clash detection scan complete")

	return report, nil
}

// BuildPlayerClashes scores cross-source player pairs within the same
// normalized squad and returns the pairs at or above threshold, sorted
// descending by score then by (squad_a, player_a.last_name). Players with
// no recorded squad are never matched; same-source pairs are never
// compared because duplicates only arise across ingestion pipelines.
func BuildPlayerClashes(
	scorer *Scorer,
	players []models.Player,
	resolvedPairs map[string]struct{},
	removedIDs map[string]struct{},
	threshold float64,
) []models.PlayerClash {
	bySquad := make(map[string][]models.Player)
	for _, p := range players {
		if _, gone := removedIDs[p.UniversalID]; gone {
			continue
		}
		squad := normalizers.NormalizeTeam(p.Squad())
		if squad == "" {
			continue
		}
		bySquad[squad] = append(bySquad[squad], p)
	}

	clashes := make([]models.PlayerClash, 0)
	for _, group := range bySquad {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.DataSource == b.DataSource {
					continue
				}

				key := models.CanonicalPairKey(a.UniversalID, b.UniversalID)
				if _, done := resolvedPairs[key]; done {
					continue
				}

				score := scorer.NameSimilarity(a.FullName(), b.FullName())
				if score < threshold {
					continue
				}

				a, b = orientPlayers(a, b)
				clashes = append(clashes, models.PlayerClash{
					ClashType:       models.ClashTypePlayer,
					PlayerA:         a,
					PlayerB:         b,
					SquadA:          a.Squad(),
					SquadB:          b.Squad(),
					SimilarityScore: score,
				})
			}
		}
	}

	sort.Slice(clashes, func(i, j int) bool {
		if clashes[i].SimilarityScore != clashes[j].SimilarityScore {
			return clashes[i].SimilarityScore > clashes[j].SimilarityScore
		}
		if clashes[i].SquadA != clashes[j].SquadA {
			return clashes[i].SquadA < clashes[j].SquadA
		}
		if clashes[i].PlayerA.LastName != clashes[j].PlayerA.LastName {
			return clashes[i].PlayerA.LastName < clashes[j].PlayerA.LastName
		}
		return clashes[i].PairKey() < clashes[j].PairKey()
	})

	return clashes
}

// BuildFixtureClashes returns cross-source fixture pairs with identical
// normalized (home, away, date), sorted by date then teams. Fixture
// identity is a composite key, so matching is exact: no scoring. Fixtures
// without a date are excluded entirely.
func BuildFixtureClashes(
	fixtures []models.Fixture,
	resolvedPairs map[string]struct{},
	removedIDs map[string]struct{},
) []models.FixtureClash {
	byIdentity := make(map[string][]models.Fixture)
	for _, f := range fixtures {
		if _, gone := removedIDs[f.UniversalID]; gone {
			continue
		}
		if f.Date == nil {
			continue
		}
		key := normalizers.NormalizeTeam(f.HomeTeam) + "|" +
			normalizers.NormalizeTeam(f.AwayTeam) + "|" +
			f.Date.Format("2006-01-02")
		byIdentity[key] = append(byIdentity[key], f)
	}

	clashes := make([]models.FixtureClash, 0)
	for _, group := range byIdentity {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.DataSource == b.DataSource {
					continue
				}

				key := models.CanonicalPairKey(a.UniversalID, b.UniversalID)
				if _, done := resolvedPairs[key]; done {
					continue
				}

				if a.UniversalID > b.UniversalID {
					a, b = b, a
				}
				clashes = append(clashes, models.FixtureClash{
					ClashType: models.ClashTypeFixture,
					MatchA:    a,
					MatchB:    b,
				})
			}
		}
	}

	sort.Slice(clashes, func(i, j int) bool {
		di, dj := *clashes[i].MatchA.Date, *clashes[j].MatchA.Date
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if clashes[i].MatchA.HomeTeam != clashes[j].MatchA.HomeTeam {
			return clashes[i].MatchA.HomeTeam < clashes[j].MatchA.HomeTeam
		}
		if clashes[i].MatchA.AwayTeam != clashes[j].MatchA.AwayTeam {
			return clashes[i].MatchA.AwayTeam < clashes[j].MatchA.AwayTeam
		}
		return clashes[i].PairKey() < clashes[j].PairKey()
	})

	return clashes
}

// orientPlayers fixes the A/B order inside a clash so repeated scans emit
// identical records.
func orientPlayers(a, b models.Player) (models.Player, models.Player) {
	if a.LastName != b.LastName {
		if a.LastName > b.LastName {
			return b, a
		}
		return a, b
	}
	if a.FirstName != b.FirstName {
		if a.FirstName > b.FirstName {
			return b, a
		}
		return a, b
	}
	if a.UniversalID > b.UniversalID {
		return b, a
	}
	return a, b
}
