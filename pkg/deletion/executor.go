// Package deletion implements outright duplicate removal. Unlike a merge,
// a deletion discards the entity's dependent records instead of moving
// them, which is why it demands an explicit cascade flag when any exist.
package deletion

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

// Status is the outcome of a deletion request
type Status string

const (
	StatusCommitted       Status = "committed"
	StatusAlreadyResolved Status = "already_resolved"
)

// Result describes a completed deletion request
type Result struct {
	Status        Status            `json:"status"`
	EntityType    models.EntityType `json:"entity_type"`
	RemovedID     string            `json:"removed_id"`
	CascadedCount int64             `json:"cascaded_count"`
	Detail        string            `json:"detail,omitempty"`
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

// DependentStore counts and removes the records referencing an entity
type DependentStore interface {
	CountByPlayer(ctx context.Context, universalID string) (int64, error)
	CountByFixture(ctx context.Context, universalID string) (int64, error)
	DeletePlayerReferences(ctx context.Context, universalID string) (int64, error)
	DeleteFixtureReferences(ctx context.Context, universalID string) (int64, error)
}

// Ledger is the subset of the resolution repository the executor needs
type Ledger interface {
	Insert(ctx context.Context, resolution *models.Resolution) error
	LookupRemoved(ctx context.Context, removedID string) (*models.Resolution, error)
}

// Executor performs duplicate deletions
type Executor struct {
	logger     ectologger.Logger
	db         TxBeginner
	players    PlayerStore
	fixtures   FixtureStore
	dependents DependentStore
	ledger     Ledger
}

// NewExecutor creates a new deletion executor
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

// Delete removes the entity identified by identifier. Without cascade the
// request is refused when any dependent records reference the entity; with
// cascade those records are removed in the same transaction. Re-requesting
// a deleted entity succeeds without touching any rows.
func (e *Executor) Delete(ctx context.Context, entityType models.EntityType, identifier string, cascade bool, operator string) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "deletion.Executor.Delete")
	defer span.End()

	if entityType != models.EntityTypePlayer && entityType != models.EntityTypeMatch {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown entity type %q", entityType)
	}

	universalID, err := e.resolve(ctx, entityType, identifier)
	if err != nil {
		if httperror.GetStatusCode(err) == http.StatusNotFound {
			if result, replayed := e.replay(ctx, entityType, identifier); replayed {
				return result, nil
			}
		}
		metrics.DeletionsTotal.WithLabelValues(string(entityType), metrics.OutcomeRejected).Inc()
		return nil, err
	}

	result, err := e.deleteTx(ctx, entityType, universalID, cascade, operator)
	if err != nil {
		metrics.DeletionsTotal.WithLabelValues(string(entityType), outcomeForError(err)).Inc()
		return nil, err
	}

	metrics.DeletionsTotal.WithLabelValues(string(entityType), metrics.OutcomeCommitted).Inc()
	return result, nil
}

func (e *Executor) deleteTx(ctx context.Context, entityType models.EntityType, universalID string, cascade bool, operator string) (*Result, error) {
	ctxTx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	internalID, externalID, err := e.lock(ctxTx, entityType, universalID)
	if err != nil {
		if httperror.GetStatusCode(err) == http.StatusNotFound {
			if result, replayed := e.replay(ctxTx, entityType, universalID); replayed {
				return result, nil
			}
		}
		return nil, err
	}

	count, err := e.countDependents(ctxTx, entityType, universalID)
	if err != nil {
		return nil, err
	}

	var cascaded int64
	if count > 0 {
		if !cascade {
			return nil, httperror.NewHTTPErrorf(http.StatusConflict,
				"%s %s has %d dependent records; repeat with cascade=true to remove them", entityType, universalID, count)
		}
		cascaded, err = e.deleteDependents(ctxTx, entityType, universalID)
		if err != nil {
			return nil, err
		}
	}

	if err := e.deleteRow(ctxTx, entityType, universalID); err != nil {
		return nil, err
	}

	entry := &models.Resolution{
		EntityType:        entityType,
		Resolution:        models.ResolutionDeleted,
		RemovedID:         universalID,
		RemovedInternalID: internalID,
		RemovedExternalID: externalID,
	}
	if operator != "" {
		entry.ResolvedBy = &operator
	}
	if err := e.ledger.Insert(ctxTx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type": entityType,
		"removed_id":  universalID,
		"cascaded":    cascaded,
	}).Info("Deleted duplicate entity")

	return &Result{
		Status:        StatusCommitted,
		EntityType:    entityType,
		RemovedID:     universalID,
		CascadedCount: cascaded,
	}, nil
}

// resolve maps the identifier within the requested type's namespace. An
// identifier belonging to the other type is a mismatch, not a not-found.
func (e *Executor) resolve(ctx context.Context, entityType models.EntityType, identifier string) (string, error) {
	var id string
	var err error
	if entityType == models.EntityTypePlayer {
		id, err = e.players.ResolveIdentifier(ctx, identifier)
	} else {
		id, err = e.fixtures.ResolveIdentifier(ctx, identifier)
	}
	if err == nil {
		return id, nil
	}

	if httperror.GetStatusCode(err) == http.StatusNotFound {
		var otherErr error
		if entityType == models.EntityTypePlayer {
			_, otherErr = e.fixtures.ResolveIdentifier(ctx, identifier)
		} else {
			_, otherErr = e.players.ResolveIdentifier(ctx, identifier)
		}
		if otherErr == nil {
			return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "%s does not identify a %s", identifier, entityType)
		}
	}
	return "", err
}

// replay checks whether the entity was already removed by an earlier
// resolution, which makes the request an idempotent success.
func (e *Executor) replay(ctx context.Context, entityType models.EntityType, identifier string) (*Result, bool) {
	earlier, err := e.ledger.LookupRemoved(ctx, identifier)
	if err != nil || earlier == nil || earlier.EntityType != entityType {
		return nil, false
	}

	metrics.DeletionsTotal.WithLabelValues(string(entityType), metrics.OutcomeAlreadyResolved).Inc()
	e.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type": entityType,
		"removed_id":  earlier.RemovedID,
	}).Info("Deletion request replayed an earlier resolution")

	return &Result{
		Status:     StatusAlreadyResolved,
		EntityType: entityType,
		RemovedID:  earlier.RemovedID,
		Detail:     fmt.Sprintf("entity was already resolved as %s on %s", earlier.Resolution, earlier.ResolvedAt.Format("2006-01-02")),
	}, true
}

// lock takes the row lock and returns the entity's source ids, which the
// ledger entry records because the row is about to be deleted.
func (e *Executor) lock(ctx context.Context, entityType models.EntityType, universalID string) (internalID, externalID *string, err error) {
	if entityType == models.EntityTypePlayer {
		p, err := e.players.GetForUpdate(ctx, universalID)
		if err != nil {
			return nil, nil, err
		}
		return p.InternalID, p.ExternalID, nil
	}
	f, err := e.fixtures.GetForUpdate(ctx, universalID)
	if err != nil {
		return nil, nil, err
	}
	return f.InternalID, f.ExternalID, nil
}

func (e *Executor) countDependents(ctx context.Context, entityType models.EntityType, universalID string) (int64, error) {
	if entityType == models.EntityTypePlayer {
		return e.dependents.CountByPlayer(ctx, universalID)
	}
	return e.dependents.CountByFixture(ctx, universalID)
}

func (e *Executor) deleteDependents(ctx context.Context, entityType models.EntityType, universalID string) (int64, error) {
	if entityType == models.EntityTypePlayer {
		return e.dependents.DeletePlayerReferences(ctx, universalID)
	}
	return e.dependents.DeleteFixtureReferences(ctx, universalID)
}

func (e *Executor) deleteRow(ctx context.Context, entityType models.EntityType, universalID string) error {
	if entityType == models.EntityTypePlayer {
		return e.players.Delete(ctx, universalID)
	}
	return e.fixtures.Delete(ctx, universalID)
}

func outcomeForError(err error) string {
	switch httperror.GetStatusCode(err) {
	case http.StatusConflict:
		return metrics.OutcomeConflict
	case http.StatusBadRequest:
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailed
	}
}
