package deletion

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeTx struct {
	open       bool
	committed  bool
	rolledBack bool
}

func (f *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}

func (f *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

func (f *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

func (f *fakeTx) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, nil
}

func (f *fakeTx) IsOpen() bool {
	return f.open
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.open = false
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if f.open {
		f.open = false
		f.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx *fakeTx
}

func (f *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	f.tx = &fakeTx{open: true}
	return ctx, f.tx, nil
}

type fakePlayerStore struct {
	byIdentifier map[string]string
	rows         map[string]models.Player
	deleted      []string
}

func (f *fakePlayerStore) ResolveIdentifier(ctx context.Context, identifier string) (string, error) {
	if id, ok := f.byIdentifier[identifier]; ok {
		return id, nil
	}
	return "", httperror.NewHTTPErrorf(http.StatusNotFound, "player %s not found", identifier)
}

func (f *fakePlayerStore) GetForUpdate(ctx context.Context, universalID string) (*models.Player, error) {
	if p, ok := f.rows[universalID]; ok {
		return &p, nil
	}
	return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "player %s not found", universalID)
}

func (f *fakePlayerStore) Delete(ctx context.Context, universalID string) error {
	delete(f.rows, universalID)
	for identifier, id := range f.byIdentifier {
		if id == universalID {
			delete(f.byIdentifier, identifier)
		}
	}
	f.deleted = append(f.deleted, universalID)
	return nil
}

type fakeFixtureStore struct {
	byIdentifier map[string]string
	rows         map[string]models.Fixture
	deleted      []string
}

func (f *fakeFixtureStore) ResolveIdentifier(ctx context.Context, identifier string) (string, error) {
	if id, ok := f.byIdentifier[identifier]; ok {
		return id, nil
	}
	return "", httperror.NewHTTPErrorf(http.StatusNotFound, "match %s not found", identifier)
}

func (f *fakeFixtureStore) GetForUpdate(ctx context.Context, universalID string) (*models.Fixture, error) {
	if fx, ok := f.rows[universalID]; ok {
		return &fx, nil
	}
	return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "match %s not found", universalID)
}

func (f *fakeFixtureStore) Delete(ctx context.Context, universalID string) error {
	delete(f.rows, universalID)
	for identifier, id := range f.byIdentifier {
		if id == universalID {
			delete(f.byIdentifier, identifier)
		}
	}
	f.deleted = append(f.deleted, universalID)
	return nil
}

type fakeDependentStore struct {
	playerCounts  map[string]int64
	fixtureCounts map[string]int64
	deletedFor    []string
}

func (f *fakeDependentStore) CountByPlayer(ctx context.Context, universalID string) (int64, error) {
	return f.playerCounts[universalID], nil
}

func (f *fakeDependentStore) CountByFixture(ctx context.Context, universalID string) (int64, error) {
	return f.fixtureCounts[universalID], nil
}

func (f *fakeDependentStore) DeletePlayerReferences(ctx context.Context, universalID string) (int64, error) {
	f.deletedFor = append(f.deletedFor, universalID)
	return f.playerCounts[universalID], nil
}

func (f *fakeDependentStore) DeleteFixtureReferences(ctx context.Context, universalID string) (int64, error) {
	f.deletedFor = append(f.deletedFor, universalID)
	return f.fixtureCounts[universalID], nil
}

type fakeLedger struct {
	entries  []*models.Resolution
	inserted []*models.Resolution
}

func (f *fakeLedger) Insert(ctx context.Context, resolution *models.Resolution) error {
	f.inserted = append(f.inserted, resolution)
	f.entries = append(f.entries, resolution)
	return nil
}

// LookupRemoved matches any identifier of the removed entity, like the
// real repository does.
func (f *fakeLedger) LookupRemoved(ctx context.Context, removedID string) (*models.Resolution, error) {
	for i := len(f.entries) - 1; i >= 0; i-- {
		entry := f.entries[i]
		if entry.RemovedID == removedID ||
			(entry.RemovedInternalID != nil && *entry.RemovedInternalID == removedID) ||
			(entry.RemovedExternalID != nil && *entry.RemovedExternalID == removedID) {
			return entry, nil
		}
	}
	return nil, nil
}

func getTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func strPtr(s string) *string {
	return &s
}

type fixture struct {
	db         *fakeDB
	players    *fakePlayerStore
	fixtures   *fakeFixtureStore
	dependents *fakeDependentStore
	ledger     *fakeLedger
	executor   *Executor
}

func newFixture() *fixture {
	f := &fixture{
		db: &fakeDB{},
		players: &fakePlayerStore{
			byIdentifier: map[string]string{"p1": "p1", "cafc-1": "p1"},
			rows: map[string]models.Player{
				"p1": {UniversalID: "p1", InternalID: strPtr("cafc-1"), DataSource: models.DataSourceInternal},
			},
		},
		fixtures: &fakeFixtureStore{
			byIdentifier: map[string]string{"f1": "f1", "ext-f1": "f1"},
			rows: map[string]models.Fixture{
				"f1": {UniversalID: "f1", ExternalID: strPtr("ext-f1"), DataSource: models.DataSourceExternal},
			},
		},
		dependents: &fakeDependentStore{
			playerCounts:  map[string]int64{},
			fixtureCounts: map[string]int64{},
		},
		ledger: &fakeLedger{},
	}
	f.executor = NewExecutor(getTestLogger(), f.db, f.players, f.fixtures, f.dependents, f.ledger)
	return f
}

func TestExecutor_Delete_Player(t *testing.T) {
	f := newFixture()

	result, err := f.executor.Delete(context.Background(), models.EntityTypePlayer, "cafc-1", false, "scout@example.com")
	require.NoError(t, err)

	assert.Equal(t, StatusCommitted, result.Status)
	assert.Equal(t, "p1", result.RemovedID)
	assert.Equal(t, int64(0), result.CascadedCount)
	assert.True(t, f.db.tx.committed)
	assert.Equal(t, []string{"p1"}, f.players.deleted)

	require.Len(t, f.ledger.inserted, 1)
	entry := f.ledger.inserted[0]
	assert.Equal(t, models.ResolutionDeleted, entry.Resolution)
	assert.Equal(t, "p1", entry.RemovedID)
	// deletions resolve a single entity, never a pair
	assert.Nil(t, entry.PairKey)
	assert.Nil(t, entry.KeptID)

	// the entry keeps the source id of the row it deletes
	require.NotNil(t, entry.RemovedInternalID)
	assert.Equal(t, "cafc-1", *entry.RemovedInternalID)
	assert.Nil(t, entry.RemovedExternalID)
}

func TestExecutor_Delete_RefusedWithoutCascade(t *testing.T) {
	f := newFixture()
	f.dependents.playerCounts["p1"] = 4

	result, err := f.executor.Delete(context.Background(), models.EntityTypePlayer, "p1", false, "")
	assert.Nil(t, result)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	// nothing removed, transaction rolled back
	assert.True(t, f.db.tx.rolledBack)
	assert.Empty(t, f.players.deleted)
	assert.Empty(t, f.ledger.inserted)
}

func TestExecutor_Delete_Cascade(t *testing.T) {
	f := newFixture()
	f.dependents.playerCounts["p1"] = 4

	result, err := f.executor.Delete(context.Background(), models.EntityTypePlayer, "p1", true, "")
	require.NoError(t, err)

	assert.Equal(t, StatusCommitted, result.Status)
	assert.Equal(t, int64(4), result.CascadedCount)
	assert.Equal(t, []string{"p1"}, f.dependents.deletedFor)
	assert.Equal(t, []string{"p1"}, f.players.deleted)
}

func TestExecutor_Delete_Fixture(t *testing.T) {
	f := newFixture()

	result, err := f.executor.Delete(context.Background(), models.EntityTypeMatch, "f1", false, "")
	require.NoError(t, err)

	assert.Equal(t, StatusCommitted, result.Status)
	assert.Equal(t, models.EntityTypeMatch, result.EntityType)
	assert.Equal(t, []string{"f1"}, f.fixtures.deleted)
}

func TestExecutor_Delete_AlreadyResolved(t *testing.T) {
	f := newFixture()
	delete(f.players.rows, "p1")
	delete(f.players.byIdentifier, "p1")
	delete(f.players.byIdentifier, "cafc-1")
	f.ledger.entries = append(f.ledger.entries, &models.Resolution{
		EntityType: models.EntityTypePlayer,
		Resolution: models.ResolutionDeleted,
		RemovedID:  "p1",
	})

	result, err := f.executor.Delete(context.Background(), models.EntityTypePlayer, "p1", false, "")
	require.NoError(t, err)

	assert.Equal(t, StatusAlreadyResolved, result.Status)
	assert.Equal(t, "p1", result.RemovedID)
	assert.NotEmpty(t, result.Detail)
	assert.Empty(t, f.ledger.inserted)
}

func TestExecutor_Delete_ReplayBySourceIdentifier(t *testing.T) {
	f := newFixture()

	result, err := f.executor.Delete(context.Background(), models.EntityTypePlayer, "cafc-1", false, "")
	require.NoError(t, err)
	require.Equal(t, StatusCommitted, result.Status)

	// cafc-1 no longer resolves to a universal id, but the identical
	// request must replay against the ledger instead of returning 404
	replay, err := f.executor.Delete(context.Background(), models.EntityTypePlayer, "cafc-1", false, "")
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyResolved, replay.Status)
	assert.Equal(t, "p1", replay.RemovedID)
	assert.Len(t, f.ledger.inserted, 1)
}

func TestExecutor_Delete_NotFound(t *testing.T) {
	f := newFixture()

	result, err := f.executor.Delete(context.Background(), models.EntityTypePlayer, "unknown", false, "")
	assert.Nil(t, result)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestExecutor_Delete_TypeMismatch(t *testing.T) {
	f := newFixture()

	// f1 is a fixture, not a player
	result, err := f.executor.Delete(context.Background(), models.EntityTypePlayer, "f1", false, "")
	assert.Nil(t, result)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestExecutor_Delete_UnknownEntityType(t *testing.T) {
	f := newFixture()

	result, err := f.executor.Delete(context.Background(), models.EntityType("squad"), "p1", false, "")
	assert.Nil(t, result)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}
