// Package player persists scouted players
package player

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var columns = []string{
	"universal_id", "internal_id", "external_id",
	"first_name", "last_name", "squad_name",
	"data_source", "created_at", "updated_at",
}

// Repository handles player persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new player repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListAll returns every player. Clash detection scans the whole table.
func (r *Repository) ListAll(ctx context.Context) ([]models.Player, error) {
	ctx, span := tracing.StartSpan(ctx, "player.Repository.ListAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("players")
	sb.OrderBy("last_name", "first_name", "universal_id")

	query, args := sb.Build()
	players := []models.Player{}
	if err := database.From(ctx, r.db).SelectContext(ctx, &players, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list players")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list players: %v", err)
	}
	return players, nil
}

// List returns one page of players
func (r *Repository) List(ctx context.Context, page, pageSize int) (*models.PlayerListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "player.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("players")

	query, args := countSb.Build()
	var total int
	if err := database.From(ctx, r.db).GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count players")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count players: %v", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("players")
	sb.OrderBy("last_name", "first_name", "universal_id")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	players := []models.Player{}
	if err := database.From(ctx, r.db).SelectContext(ctx, &players, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list players")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list players: %v", err)
	}

	return &models.PlayerListResponse{
		Items:      players,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// GetByUniversalID returns one player or a 404
func (r *Repository) GetByUniversalID(ctx context.Context, universalID string) (*models.Player, error) {
	return r.get(ctx, universalID, false)
}

// GetForUpdate returns one player with its row locked for the duration of
// the transaction carried by ctx. Callers must hold an open transaction.
func (r *Repository) GetForUpdate(ctx context.Context, universalID string) (*models.Player, error) {
	return r.get(ctx, universalID, true)
}

func (r *Repository) get(ctx context.Context, universalID string, forUpdate bool) (*models.Player, error) {
	ctx, span := tracing.StartSpan(ctx, "player.Repository.get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("players")
	sb.Where(sb.Equal("universal_id", universalID))
	if forUpdate {
		sb.SQL("FOR UPDATE")
	}

	query, args := sb.Build()
	var player models.Player
	if err := database.From(ctx, r.db).GetContext(ctx, &player, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "player %s not found", universalID)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("universal_id", universalID).Error("Failed to get player")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get player: %v", err)
	}
	return &player, nil
}

// ResolveIdentifier maps any player identifier (universal, internal or
// external) to the universal ID. When the same value matches more than one
// namespace, universal wins over internal, internal over external.
func (r *Repository) ResolveIdentifier(ctx context.Context, identifier string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "player.Repository.ResolveIdentifier")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("universal_id", "internal_id", "external_id")
	sb.From("players")
	sb.Where(sb.Or(
		sb.Equal("universal_id", identifier),
		sb.Equal("internal_id", identifier),
		sb.Equal("external_id", identifier),
	))

	query, args := sb.Build()
	matches := []models.Player{}
	if err := database.From(ctx, r.db).SelectContext(ctx, &matches, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("identifier", identifier).Error("Failed to resolve player identifier")
		return "", httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to resolve player identifier: %v", err)
	}

	var internalMatch, externalMatch string
	for _, m := range matches {
		if m.UniversalID == identifier {
			return m.UniversalID, nil
		}
		if m.InternalID != nil && *m.InternalID == identifier {
			internalMatch = m.UniversalID
		}
		if m.ExternalID != nil && *m.ExternalID == identifier {
			externalMatch = m.UniversalID
		}
	}
	if internalMatch != "" {
		return internalMatch, nil
	}
	if externalMatch != "" {
		return externalMatch, nil
	}

	return "", httperror.NewHTTPErrorf(http.StatusNotFound, "player %s not found", identifier)
}

// Delete removes a player row. Returns a 404 when the row does not exist.
func (r *Repository) Delete(ctx context.Context, universalID string) error {
	ctx, span := tracing.StartSpan(ctx, "player.Repository.Delete")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("players")
	db.Where(db.Equal("universal_id", universalID))

	query, args := db.Build()
	result, err := database.From(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("universal_id", universalID).Error("Failed to delete player")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete player: %v", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete player: %v", err)
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "player %s not found", universalID)
	}
	return nil
}
