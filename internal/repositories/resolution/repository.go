// Package resolution persists the append-only resolution ledger
package resolution

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const uniqueViolation = "23505"

var columns = []string{
	"id", "pair_key", "entity_type", "resolution", "kept_id",
	"removed_id", "removed_internal_id", "removed_external_id",
	"resolved_by", "resolved_at",
}

// Repository handles resolution ledger persistence. The ledger is
// append-only: there is no update or delete.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new resolution repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Insert appends one ledger entry. The unique index on pair_key turns a
// concurrent double-resolve into a 409 here, inside the loser's
// transaction, so only one resolution of a pair ever commits.
func (r *Repository) Insert(ctx context.Context, resolution *models.Resolution) error {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.Insert")
	defer span.End()

	if resolution.ID == "" {
		resolution.ID = uuid.New().String()
	}
	if resolution.ResolvedAt.IsZero() {
		resolution.ResolvedAt = time.Now().UTC()
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("resolutions")
	ib.Cols(columns...)
	ib.Values(
		resolution.ID,
		resolution.PairKey,
		resolution.EntityType,
		resolution.Resolution,
		resolution.KeptID,
		resolution.RemovedID,
		resolution.RemovedInternalID,
		resolution.RemovedExternalID,
		resolution.ResolvedBy,
		resolution.ResolvedAt,
	)

	query, args := ib.Build()
	if _, err := database.From(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return httperror.NewHTTPErrorf(http.StatusConflict, "pair already resolved by a concurrent request")
		}
		r.logger.WithContext(ctx).WithError(err).WithField("removed_id", resolution.RemovedID).Error("Failed to insert resolution")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to insert resolution: %v", err)
	}
	return nil
}

// LookupPair returns the ledger entry for a canonical pair key, or nil when
// the pair has never been resolved.
func (r *Repository) LookupPair(ctx context.Context, pairKey string) (*models.Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.LookupPair")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("resolutions")
	sb.Where(sb.Equal("pair_key", pairKey))

	query, args := sb.Build()
	var resolution models.Resolution
	if err := database.From(ctx, r.db).GetContext(ctx, &resolution, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("pair_key", pairKey).Error("Failed to look up resolution by pair key")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to look up resolution: %v", err)
	}
	return &resolution, nil
}

// LookupRemoved returns the most recent ledger entry naming the entity as
// removed, or nil when there is none. The identifier may be the removed
// entity's universal, internal or external ID; the row that mapped source
// IDs to the universal ID is gone once the resolution commits, so a
// replayed request can arrive under any of the three.
func (r *Repository) LookupRemoved(ctx context.Context, removedID string) (*models.Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.LookupRemoved")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("resolutions")
	sb.Where(sb.Or(
		sb.Equal("removed_id", removedID),
		sb.Equal("removed_internal_id", removedID),
		sb.Equal("removed_external_id", removedID),
	))
	sb.OrderBy("resolved_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var resolution models.Resolution
	if err := database.From(ctx, r.db).GetContext(ctx, &resolution, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("removed_id", removedID).Error("Failed to look up resolution by removed id")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to look up resolution: %v", err)
	}
	return &resolution, nil
}

// ResolvedIndex loads the whole ledger as two suppression sets for clash
// detection: resolved canonical pair keys and removed entity IDs.
func (r *Repository) ResolvedIndex(ctx context.Context) (map[string]struct{}, map[string]struct{}, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.ResolvedIndex")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("pair_key", "removed_id")
	sb.From("resolutions")

	query, args := sb.Build()
	rows := []models.Resolution{}
	if err := database.From(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load resolution index")
		return nil, nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to load resolution index: %v", err)
	}

	pairKeys := make(map[string]struct{}, len(rows))
	removedIDs := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if row.PairKey != nil {
			pairKeys[*row.PairKey] = struct{}{}
		}
		removedIDs[row.RemovedID] = struct{}{}
	}
	return pairKeys, removedIDs, nil
}

// List returns one page of ledger entries, newest first
func (r *Repository) List(ctx context.Context, page, pageSize int) (*models.ResolutionListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("resolutions")

	query, args := countSb.Build()
	var total int
	if err := database.From(ctx, r.db).GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count resolutions")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count resolutions: %v", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("resolutions")
	sb.OrderBy("resolved_at DESC", "id")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	resolutions := []models.Resolution{}
	if err := database.From(ctx, r.db).SelectContext(ctx, &resolutions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list resolutions")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list resolutions: %v", err)
	}

	return &models.ResolutionListResponse{
		Items:      resolutions,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}
