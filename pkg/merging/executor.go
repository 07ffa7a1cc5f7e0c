// Package merging implements duplicate merge resolution. A merge keeps one
// entity, repoints every dependent record at it, removes the duplicate and
// records the outcome in the resolution ledger, all in one transaction.
package merging

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Status is the outcome of a merge request
type Status string

const (
	// StatusCommitted means this request performed the merge
	StatusCommitted Status = "committed"
	// StatusAlreadyResolved means the ledger shows the pair was resolved
	// earlier; the request is a success with nothing to do
	StatusAlreadyResolved Status = "already_resolved"
)

// Result describes a completed merge request
type Result struct {
	Status          Status            `json:"status"`
	EntityType      models.EntityType `json:"entity_type"`
	KeptID          string            `json:"kept_id"`
	RemovedID       string            `json:"removed_id"`
	ReassignedCount int64             `json:"reassigned_count"`
	Detail          string            `json:"detail,omitempty"`
}

// TxBeginner opens or joins the transaction carried by ctx
type TxBeginner interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// PlayerStore is the subset of the player repository the executor needs
type PlayerStore interface {
	ResolveIdentifier(ctx context.Context, identifier string) (string, error)
	GetForUpdate(ctx context.Context, universalID string) (*models.Player, error)
	Delete(ctx context.Context, universalID string) error
}

// FixtureStore is the subset of the fixture repository the executor needs
type FixtureStore interface {
	ResolveIdentifier(ctx context.Context, identifier string) (string, error)
	GetForUpdate(ctx context.Context, universalID string) (*models.Fixture, error)
	Delete(ctx context.Context, universalID string) error
}

// DependentStore reassigns the records referencing a merged entity
type DependentStore interface {
	ReassignPlayerReferences(ctx context.Context, fromID, toID string) (int64, error)
	ReassignFixtureReferences(ctx context.Context, fromID, toID string) (int64, error)
}

// Ledger is the subset of the resolution repository the executor needs
type Ledger interface {
	Insert(ctx context.Context, resolution *models.Resolution) error
	LookupPair(ctx context.Context, pairKey string) (*models.Resolution, error)
	LookupRemoved(ctx context.Context, removedID string) (*models.Resolution, error)
}

// Executor performs merges
type Executor struct {
	logger     ectologger.Logger
	db         TxBeginner
	players    PlayerStore
	fixtures   FixtureStore
	dependents DependentStore
	ledger     Ledger
}

// NewExecutor creates a new merge executor
func NewExecutor(
	logger ectologger.Logger,
	db TxBeginner,
	players PlayerStore,
	fixtures FixtureStore,
	dependents DependentStore,
	ledger Ledger,
) *Executor {
	return &Executor{
		logger:     logger,
		db:         db,
		players:    players,
		fixtures:   fixtures,
		dependents: dependents,
		ledger:     ledger,
	}
}

// MergePlayers merges the player identified by removeIdentifier into the
// player identified by keepIdentifier. Identifiers may be universal,
// internal or external IDs. Re-requesting a resolved pair succeeds without
// touching any rows.
func (e *Executor) MergePlayers(ctx context.Context, keepIdentifier, removeIdentifier, operator string) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Executor.MergePlayers")
	defer span.End()

	keepID, err := e.resolvePlayer(ctx, keepIdentifier)
	if err != nil {
		metrics.MergesTotal.WithLabelValues(string(models.EntityTypePlayer), metrics.OutcomeRejected).Inc()
		return nil, err
	}

	removeID, earlier, err := e.resolveRemoved(ctx, models.EntityTypePlayer, removeIdentifier)
	if err != nil {
		metrics.MergesTotal.WithLabelValues(string(models.EntityTypePlayer), metrics.OutcomeRejected).Inc()
		return nil, err
	}
	if earlier != nil {
		return e.alreadyResolved(ctx, models.EntityTypePlayer, keepID, removeIdentifier, earlier), nil
	}

	if keepID == removeID {
		metrics.MergesTotal.WithLabelValues(string(models.EntityTypePlayer), metrics.OutcomeRejected).Inc()
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "cannot merge a player with itself")
	}

	pairKey := models.CanonicalPairKey(keepID, removeID)
	if earlier, err := e.ledger.LookupPair(ctx, pairKey); err != nil {
		return nil, err
	} else if earlier != nil {
		return e.alreadyResolved(ctx, models.EntityTypePlayer, keepID, removeID, earlier), nil
	}

	result, err := e.mergePlayersTx(ctx, keepID, removeID, pairKey, operator)
	if err != nil {
		metrics.MergesTotal.WithLabelValues(string(models.EntityTypePlayer), outcomeForError(err)).Inc()
		return nil, err
	}

	metrics.MergesTotal.WithLabelValues(string(models.EntityTypePlayer), metrics.OutcomeCommitted).Inc()
	metrics.ReferencesReassigned.WithLabelValues(string(models.EntityTypePlayer)).Add(float64(result.ReassignedCount))
	return result, nil
}

func (e *Executor) mergePlayersTx(ctx context.Context, keepID, removeID, pairKey, operator string) (*Result, error) {
	ctxTx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	// lock in canonical order so two merges of the same pair cannot
	// deadlock each other
	var removed *models.Player
	for _, id := range orderedPair(keepID, removeID) {
		row, err := e.players.GetForUpdate(ctxTx, id)
		if err != nil {
			if httperror.GetStatusCode(err) == http.StatusNotFound && id == removeID {
				return nil, e.missingRemoved(ctxTx, models.EntityTypePlayer, removeID)
			}
			return nil, err
		}
		if id == removeID {
			removed = row
		}
	}

	reassigned, err := e.dependents.ReassignPlayerReferences(ctxTx, removeID, keepID)
	if err != nil {
		return nil, err
	}

	if err := e.players.Delete(ctxTx, removeID); err != nil {
		return nil, err
	}

	if err := e.writeLedger(ctxTx, models.EntityTypePlayer, pairKey, keepID, removeID,
		removed.InternalID, removed.ExternalID, operator); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"kept_id":    keepID,
		"removed_id": removeID,
		"reassigned": reassigned,
	}).Info("Merged duplicate players")

	return &Result{
		Status:          StatusCommitted,
		EntityType:      models.EntityTypePlayer,
		KeptID:          keepID,
		RemovedID:       removeID,
		ReassignedCount: reassigned,
	}, nil
}

// MergeFixtures merges the fixture identified by removeIdentifier into the
// fixture identified by keepIdentifier.
func (e *Executor) MergeFixtures(ctx context.Context, keepIdentifier, removeIdentifier, operator string) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Executor.MergeFixtures")
	defer span.End()

	keepID, err := e.resolveFixture(ctx, keepIdentifier)
	if err != nil {
		metrics.MergesTotal.WithLabelValues(string(models.EntityTypeMatch), metrics.OutcomeRejected).Inc()
		return nil, err
	}

	removeID, earlier, err := e.resolveRemoved(ctx, models.EntityTypeMatch, removeIdentifier)
	if err != nil {
		metrics.MergesTotal.WithLabelValues(string(models.EntityTypeMatch), metrics.OutcomeRejected).Inc()
		return nil, err
	}
	if earlier != nil {
		return e.alreadyResolved(ctx, models.EntityTypeMatch, keepID, removeIdentifier, earlier), nil
	}

	if keepID == removeID {
		metrics.MergesTotal.WithLabelValues(string(models.EntityTypeMatch), metrics.OutcomeRejected).Inc()
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "cannot merge a match with itself")
	}

	pairKey := models.CanonicalPairKey(keepID, removeID)
	if earlier, err := e.ledger.LookupPair(ctx, pairKey); err != nil {
		return nil, err
	} else if earlier != nil {
		return e.alreadyResolved(ctx, models.EntityTypeMatch, keepID, removeID, earlier), nil
	}

	result, err := e.mergeFixturesTx(ctx, keepID, removeID, pairKey, operator)
	if err != nil {
		metrics.MergesTotal.WithLabelValues(string(models.EntityTypeMatch), outcomeForError(err)).Inc()
		return nil, err
	}

	metrics.MergesTotal.WithLabelValues(string(models.EntityTypeMatch), metrics.OutcomeCommitted).Inc()
	metrics.ReferencesReassigned.WithLabelValues(string(models.EntityTypeMatch)).Add(float64(result.ReassignedCount))
	return result, nil
}

func (e *Executor) mergeFixturesTx(ctx context.Context, keepID, removeID, pairKey, operator string) (*Result, error) {
	ctxTx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	var removed *models.Fixture
	for _, id := range orderedPair(keepID, removeID) {
		row, err := e.fixtures.GetForUpdate(ctxTx, id)
		if err != nil {
			if httperror.GetStatusCode(err) == http.StatusNotFound && id == removeID {
				return nil, e.missingRemoved(ctxTx, models.EntityTypeMatch, removeID)
			}
			return nil, err
		}
		if id == removeID {
			removed = row
		}
	}

	reassigned, err := e.dependents.ReassignFixtureReferences(ctxTx, removeID, keepID)
	if err != nil {
		return nil, err
	}

	if err := e.fixtures.Delete(ctxTx, removeID); err != nil {
		return nil, err
	}

	if err := e.writeLedger(ctxTx, models.EntityTypeMatch, pairKey, keepID, removeID,
		removed.InternalID, removed.ExternalID, operator); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"kept_id":    keepID,
		"removed_id": removeID,
		"reassigned": reassigned,
	}).Info("Merged duplicate matches")

	return &Result{
		Status:          StatusCommitted,
		EntityType:      models.EntityTypeMatch,
		KeptID:          keepID,
		RemovedID:       removeID,
		ReassignedCount: reassigned,
	}, nil
}

// resolvePlayer maps a keep identifier to a player universal ID. An
// identifier that belongs to a fixture instead is a type mismatch, not a
// not-found.
func (e *Executor) resolvePlayer(ctx context.Context, identifier string) (string, error) {
	id, err := e.players.ResolveIdentifier(ctx, identifier)
	if err == nil {
		return id, nil
	}
	if httperror.GetStatusCode(err) == http.StatusNotFound {
		if _, fixtureErr := e.fixtures.ResolveIdentifier(ctx, identifier); fixtureErr == nil {
			return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "%s identifies a match, not a player", identifier)
		}
	}
	return "", err
}

func (e *Executor) resolveFixture(ctx context.Context, identifier string) (string, error) {
	id, err := e.fixtures.ResolveIdentifier(ctx, identifier)
	if err == nil {
		return id, nil
	}
	if httperror.GetStatusCode(err) == http.StatusNotFound {
		if _, playerErr := e.players.ResolveIdentifier(ctx, identifier); playerErr == nil {
			return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "%s identifies a player, not a match", identifier)
		}
	}
	return "", err
}

// resolveRemoved maps the remove identifier to a universal ID. When the row
// is already gone, a ledger entry naming the identifier as removed turns
// the request into an idempotent replay instead of a 404.
func (e *Executor) resolveRemoved(ctx context.Context, entityType models.EntityType, identifier string) (string, *models.Resolution, error) {
	var id string
	var err error
	switch entityType {
	case models.EntityTypePlayer:
		id, err = e.resolvePlayer(ctx, identifier)
	default:
		id, err = e.resolveFixture(ctx, identifier)
	}
	if err == nil {
		return id, nil, nil
	}
	if httperror.GetStatusCode(err) != http.StatusNotFound {
		return "", nil, err
	}

	earlier, ledgerErr := e.ledger.LookupRemoved(ctx, identifier)
	if ledgerErr != nil {
		return "", nil, ledgerErr
	}
	if earlier != nil && earlier.EntityType == entityType {
		return identifier, earlier, nil
	}
	return "", nil, err
}

// missingRemoved handles the remove row vanishing between identifier
// resolution and the row lock
func (e *Executor) missingRemoved(ctx context.Context, entityType models.EntityType, removeID string) error {
	earlier, err := e.ledger.LookupRemoved(ctx, removeID)
	if err != nil {
		return err
	}
	if earlier != nil && earlier.EntityType == entityType {
		return httperror.NewHTTPErrorf(http.StatusConflict, "%s was resolved by a concurrent request", removeID)
	}
	return httperror.NewHTTPErrorf(http.StatusNotFound, "%s %s not found", entityType, removeID)
}

func (e *Executor) writeLedger(ctx context.Context, entityType models.EntityType, pairKey, keepID, removeID string,
	removedInternalID, removedExternalID *string, operator string) error {
	entry := &models.Resolution{
		PairKey:           &pairKey,
		EntityType:        entityType,
		Resolution:        models.ResolutionMerged,
		KeptID:            &keepID,
		RemovedID:         removeID,
		RemovedInternalID: removedInternalID,
		RemovedExternalID: removedExternalID,
	}
	if operator != "" {
		entry.ResolvedBy = &operator
	}
	return e.ledger.Insert(ctx, entry)
}

func (e *Executor) alreadyResolved(ctx context.Context, entityType models.EntityType, keepID, removeID string, earlier *models.Resolution) *Result {
	metrics.MergesTotal.WithLabelValues(string(entityType), metrics.OutcomeAlreadyResolved).Inc()

	keptID := keepID
	if earlier.KeptID != nil {
		keptID = *earlier.KeptID
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"kept_id":    keptID,
		"removed_id": earlier.RemovedID,
	}).Info("Merge request replayed an earlier resolution")

	return &Result{
		Status:     StatusAlreadyResolved,
		EntityType: entityType,
		KeptID:     keptID,
		RemovedID:  earlier.RemovedID,
		Detail:     fmt.Sprintf("pair was already resolved as %s on %s", earlier.Resolution, earlier.ResolvedAt.Format("2006-01-02")),
	}
}

func orderedPair(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

func outcomeForError(err error) string {
	if httperror.GetStatusCode(err) == http.StatusConflict {
		return metrics.OutcomeConflict
	}
	return metrics.OutcomeFailed
}
