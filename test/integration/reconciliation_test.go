package integration

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/internal/repositories/dependents"
	"github.com/Ramsey-B/clover/internal/repositories/fixture"
	"github.com/Ramsey-B/clover/internal/repositories/player"
	"github.com/Ramsey-B/clover/internal/repositories/resolution"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/deletion"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		t.Skip("Skipping integration test: DB_HOST not set")
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "clover"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	require.NoError(t, err)
	service := database.NewMigrationService(getTestLogger(), &database.MigrationConfig{
		MigrationFolderPath: "../../db/pg",
	})
	require.NoError(t, service.Migrate(dbName, driver))

	return database.NewDatabaseInstance(db, getTestLogger())
}

type env struct {
	db             database.DB
	playerRepo     *player.Repository
	fixtureRepo    *fixture.Repository
	dependentsRepo *dependents.Repository
	resolutionRepo *resolution.Repository
	detector       *matching.Detector
	merger         *merging.Executor
	deleter        *deletion.Executor
}

func newEnv(t *testing.T) *env {
	db := getTestDB(t)
	logger := getTestLogger()

	ctx := context.Background()
	for _, table := range []string{"resolutions", "notes", "intel_reports", "scout_reports", "fixtures", "players"} {
		_, err := db.ExecContext(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}

	playerRepo := player.NewRepository(db, logger)
	fixtureRepo := fixture.NewRepository(db, logger)
	dependentsRepo := dependents.NewRepository(db, logger)
	resolutionRepo := resolution.NewRepository(db, logger)

	return &env{
		db:             db,
		playerRepo:     playerRepo,
		fixtureRepo:    fixtureRepo,
		dependentsRepo: dependentsRepo,
		resolutionRepo: resolutionRepo,
		detector:       matching.NewDetector(logger, playerRepo, fixtureRepo, resolutionRepo, matching.DefaultConfig()),
		merger:         merging.NewExecutor(logger, db, playerRepo, fixtureRepo, dependentsRepo, resolutionRepo),
		deleter:        deletion.NewExecutor(logger, db, playerRepo, fixtureRepo, dependentsRepo, resolutionRepo),
	}
}

func (e *env) seedPlayer(t *testing.T, firstName, lastName, squad string, source models.DataSource) string {
	id := uuid.New().String()
	var internalID, externalID *string
	if source == models.DataSourceInternal {
		v := "cafc-" + id[:8]
		internalID = &v
	} else {
		v := "ext-" + id[:8]
		externalID = &v
	}

	_, err := e.db.ExecContext(context.Background(),
		`INSERT INTO players (universal_id, internal_id, external_id, first_name, last_name, squad_name, data_source)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, internalID, externalID, firstName, lastName, squad, source)
	require.NoError(t, err)
	return id
}

func (e *env) seedFixture(t *testing.T, home, away string, date time.Time, source models.DataSource) string {
	id := uuid.New().String()
	var internalID, externalID *string
	if source == models.DataSourceInternal {
		v := "cafc-" + id[:8]
		internalID = &v
	} else {
		v := "ext-" + id[:8]
		externalID = &v
	}

	_, err := e.db.ExecContext(context.Background(),
		`INSERT INTO fixtures (universal_id, internal_id, external_id, home_team, away_team, fixture_date, data_source)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, internalID, externalID, home, away, date, source)
	require.NoError(t, err)
	return id
}

func (e *env) seedScoutReport(t *testing.T, playerID string, fixtureID *string) string {
	id := uuid.New().String()
	_, err := e.db.ExecContext(context.Background(),
		`INSERT INTO scout_reports (id, player_universal_id, fixture_universal_id, summary) VALUES ($1, $2, $3, 'solid outing')`,
		id, playerID, fixtureID)
	require.NoError(t, err)
	return id
}

func (e *env) seedNote(t *testing.T, playerID string) string {
	id := uuid.New().String()
	_, err := e.db.ExecContext(context.Background(),
		`INSERT INTO notes (id, player_universal_id, body) VALUES ($1, $2, 'watch left foot')`,
		id, playerID)
	require.NoError(t, err)
	return id
}

func TestReconciliation_MergeLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	e := newEnv(t)
	ctx := context.Background()

	p1 := e.seedPlayer(t, "Jon", "Smith", "Town FC", models.DataSourceInternal)
	p2 := e.seedPlayer(t, "Jonathan", "Smith", "Town FC", models.DataSourceExternal)
	e.seedPlayer(t, "Marcus", "Webb", "City FC", models.DataSourceExternal)

	var p2ExternalID string
	require.NoError(t, e.db.GetContext(ctx, &p2ExternalID,
		"SELECT external_id FROM players WHERE universal_id = $1", p2))

	matchDate := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	f1 := e.seedFixture(t, "Town FC", "City FC", matchDate, models.DataSourceInternal)
	f2 := e.seedFixture(t, "Town FC", "City FC", matchDate, models.DataSourceExternal)

	e.seedScoutReport(t, p2, &f2)
	e.seedNote(t, p2)

	report, err := e.detector.DetectClashes(ctx)
	require.NoError(t, err)
	require.Len(t, report.PlayerClashes, 1)
	require.Len(t, report.FixtureClashes, 1)

	result, err := e.merger.MergePlayers(ctx, p1, p2, "integration-test")
	require.NoError(t, err)
	assert.Equal(t, merging.StatusCommitted, result.Status)
	assert.Equal(t, p1, result.KeptID)
	assert.Equal(t, p2, result.RemovedID)
	// the scout report and the note both moved
	assert.Equal(t, int64(2), result.ReassignedCount)

	// removed player is gone, its records now reference the kept player
	_, err = e.playerRepo.GetByUniversalID(ctx, p2)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))

	count, err := e.dependentsRepo.CountByPlayer(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// the resolved pair no longer surfaces as a clash
	report, err = e.detector.DetectClashes(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.PlayerClashes)
	require.Len(t, report.FixtureClashes, 1)

	// replaying the merge is a success with a notice
	replay, err := e.merger.MergePlayers(ctx, p1, p2, "integration-test")
	require.NoError(t, err)
	assert.Equal(t, merging.StatusAlreadyResolved, replay.Status)

	// the dashboard may resend the removed player's external id; the
	// mapping row is gone, so the ledger has to answer
	replay, err = e.merger.MergePlayers(ctx, p1, p2ExternalID, "integration-test")
	require.NoError(t, err)
	assert.Equal(t, merging.StatusAlreadyResolved, replay.Status)
	assert.Equal(t, p2, replay.RemovedID)

	// resolve the fixture clash too
	fixtureResult, err := e.merger.MergeFixtures(ctx, f1, f2, "integration-test")
	require.NoError(t, err)
	assert.Equal(t, merging.StatusCommitted, fixtureResult.Status)

	report, err = e.detector.DetectClashes(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.PlayerClashes)
	assert.Empty(t, report.FixtureClashes)

	// the ledger recorded both merges
	ledger, err := e.resolutionRepo.List(ctx, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.TotalCount)
}

func TestReconciliation_DeleteLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	e := newEnv(t)
	ctx := context.Background()

	p1 := e.seedPlayer(t, "Jon", "Smith", "Town FC", models.DataSourceInternal)
	e.seedScoutReport(t, p1, nil)

	var p1InternalID string
	require.NoError(t, e.db.GetContext(ctx, &p1InternalID,
		"SELECT internal_id FROM players WHERE universal_id = $1", p1))

	// dependents block the deletion until cascade is requested
	_, err := e.deleter.Delete(ctx, models.EntityTypePlayer, p1, false, "integration-test")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	result, err := e.deleter.Delete(ctx, models.EntityTypePlayer, p1, true, "integration-test")
	require.NoError(t, err)
	assert.Equal(t, deletion.StatusCommitted, result.Status)
	assert.Equal(t, int64(1), result.CascadedCount)

	_, err = e.playerRepo.GetByUniversalID(ctx, p1)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))

	// deletion entries carry no pair key, and keep the source id of the
	// deleted row
	entry, err := e.resolutionRepo.LookupRemoved(ctx, p1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Nil(t, entry.PairKey)
	assert.Equal(t, models.ResolutionDeleted, entry.Resolution)
	require.NotNil(t, entry.RemovedInternalID)
	assert.Equal(t, p1InternalID, *entry.RemovedInternalID)

	// replaying the deletion is a success with a notice, by universal id
	// or by the source id the dashboard originally sent
	replay, err := e.deleter.Delete(ctx, models.EntityTypePlayer, p1, false, "integration-test")
	require.NoError(t, err)
	assert.Equal(t, deletion.StatusAlreadyResolved, replay.Status)

	replay, err = e.deleter.Delete(ctx, models.EntityTypePlayer, p1InternalID, false, "integration-test")
	require.NoError(t, err)
	assert.Equal(t, deletion.StatusAlreadyResolved, replay.Status)
	assert.Equal(t, p1, replay.RemovedID)
}

func TestReconciliation_IdentifierFallback(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	e := newEnv(t)
	ctx := context.Background()

	p1 := e.seedPlayer(t, "Jon", "Smith", "Town FC", models.DataSourceInternal)

	var internalID string
	err := e.db.GetContext(ctx, &internalID, "SELECT internal_id FROM players WHERE universal_id = $1", p1)
	require.NoError(t, err)

	resolved, err := e.playerRepo.ResolveIdentifier(ctx, internalID)
	require.NoError(t, err)
	assert.Equal(t, p1, resolved)

	resolved, err = e.playerRepo.ResolveIdentifier(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, p1, resolved)
}
