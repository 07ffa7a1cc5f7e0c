// Package fixture persists scheduled matches
package fixture

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
	"home_team", "away_team", "fixture_date",
	"data_source", "created_at", "updated_at",
}

// Repository handles fixture persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new fixture repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListAll returns every fixture
func (r *Repository) ListAll(ctx context.Context) ([]models.Fixture, error) {
	ctx, span := tracing.StartSpan(ctx, "fixture.Repository.ListAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("fixtures")
	sb.OrderBy("fixture_date NULLS LAST", "home_team", "away_team", "universal_id")

	query, args := sb.Build()
	fixtures := []models.Fixture{}
	if err := database.From(ctx, r.db).SelectContext(ctx, &fixtures, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list fixtures")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list fixtures: %v", err)
	}
	return fixtures, nil
}

// List returns one page of fixtures
func (r *Repository) List(ctx context.Context, page, pageSize int) (*models.FixtureListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "fixture.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("fixtures")

	query, args := countSb.Build()
	var total int
	if err := database.From(ctx, r.db).GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count fixtures")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count fixtures: %v", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("fixtures")
	sb.OrderBy("fixture_date NULLS LAST", "home_team", "away_team", "universal_id")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	fixtures := []models.Fixture{}
	if err := database.From(ctx, r.db).SelectContext(ctx, &fixtures, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list fixtures")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list fixtures: %v", err)
	}

	return &models.FixtureListResponse{
		Items:      fixtures,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// GetByUniversalID returns one fixture or a 404
func (r *Repository) GetByUniversalID(ctx context.Context, universalID string) (*models.Fixture, error) {
	return r.get(ctx, universalID, false)
}

// GetForUpdate returns one fixture with its row locked for the duration of
// the transaction carried by ctx. Callers must hold an open transaction.
func (r *Repository) GetForUpdate(ctx context.Context, universalID string) (*models.Fixture, error) {
	return r.get(ctx, universalID, true)
}

func (r *Repository) get(ctx context.Context, universalID string, forUpdate bool) (*models.Fixture, error) {
	ctx, span := tracing.StartSpan(ctx, "fixture.Repository.get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("fixtures")
	sb.Where(sb.Equal("universal_id", universalID))
	if forUpdate {
		sb.SQL("FOR UPDATE")
	}

	query, args := sb.Build()
	var fixture models.Fixture
	if err := database.From(ctx, r.db).GetContext(ctx, &fixture, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "match %s not found", universalID)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("universal_id", universalID).Error("Failed to get fixture")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get fixture: %v", err)
	}
	return &fixture, nil
}

// ResolveIdentifier maps any fixture identifier (universal, internal or
// external) to the universal ID. Universal wins over internal, internal
// over external.
func (r *Repository) ResolveIdentifier(ctx context.Context, identifier string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "fixture.Repository.ResolveIdentifier")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("universal_id", "internal_id", "external_id")
	sb.From("fixtures")
	sb.Where(sb.Or(
		sb.Equal("universal_id", identifier),
		sb.Equal("internal_id", identifier),
		sb.Equal("external_id", identifier),
	))

	query, args := sb.Build()
	matches := []models.Fixture{}
	if err := database.From(ctx, r.db).SelectContext(ctx, &matches, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("identifier", identifier).Error("Failed to resolve fixture identifier")
		return "", httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to resolve fixture identifier: %v", err)
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

	return "", httperror.NewHTTPErrorf(http.StatusNotFound, "match %s not found", identifier)
}

// Delete removes a fixture row. Returns a 404 when the row does not exist.
func (r *Repository) Delete(ctx context.Context, universalID string) error {
	ctx, span := tracing.StartSpan(ctx, "fixture.Repository.Delete")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("fixtures")
	db.Where(db.Equal("universal_id", universalID))

	query, args := db.Build()
	result, err := database.From(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("universal_id", universalID).Error("Failed to delete fixture")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete fixture: %v", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete fixture: %v", err)
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "match %s not found", universalID)
	}
	return nil
}
