// Package dependents manages the records that reference players and
// fixtures: scout reports, intel reports and notes. Merges reassign these
// references; cascading deletions remove them.
package dependents

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// playerRefTables lists every (table, column) holding a player reference.
// New dependent record types must be added here or merges will orphan them.
var playerRefTables = []refTable{
	{"scout_reports", "player_universal_id"},
	{"intel_reports", "player_universal_id"},
	{"notes", "player_universal_id"},
}

// fixtureRefTables lists every (table, column) holding a fixture reference
var fixtureRefTables = []refTable{
	{"scout_reports", "fixture_universal_id"},
}

type refTable struct {
	table  string
	column string
}

// Repository handles dependent record reassignment and removal
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new dependents repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CountByPlayer returns how many dependent records reference the player
func (r *Repository) CountByPlayer(ctx context.Context, universalID string) (int64, error) {
	return r.count(ctx, playerRefTables, universalID)
}

// CountByFixture returns how many dependent records reference the fixture
func (r *Repository) CountByFixture(ctx context.Context, universalID string) (int64, error) {
	return r.count(ctx, fixtureRefTables, universalID)
}

func (r *Repository) count(ctx context.Context, tables []refTable, universalID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "dependents.Repository.count")
	defer span.End()

	var total int64
	for _, t := range tables {
		sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
		sb.Select("COUNT(*)")
		sb.From(t.table)
		sb.Where(sb.Equal(t.column, universalID))

		query, args := sb.Build()
		var count int64
		if err := database.From(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("table", t.table).Error("Failed to count dependent records")
			return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count dependent records: %v", err)
		}
		total += count
	}
	return total, nil
}

// ReassignPlayerReferences repoints every dependent record from one player
// to another and returns how many rows moved. Must run inside the merge
// transaction carried by ctx.
func (r *Repository) ReassignPlayerReferences(ctx context.Context, fromID, toID string) (int64, error) {
	return r.reassign(ctx, playerRefTables, fromID, toID)
}

// ReassignFixtureReferences repoints every dependent record from one
// fixture to another and returns how many rows moved.
func (r *Repository) ReassignFixtureReferences(ctx context.Context, fromID, toID string) (int64, error) {
	return r.reassign(ctx, fixtureRefTables, fromID, toID)
}

func (r *Repository) reassign(ctx context.Context, tables []refTable, fromID, toID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "dependents.Repository.reassign")
	defer span.End()

	var total int64
	for _, t := range tables {
		ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		ub.Update(t.table)
		ub.Set(ub.Assign(t.column, toID))
		ub.Where(ub.Equal(t.column, fromID))

		query, args := ub.Build()
		result, err := database.From(ctx, r.db).ExecContext(ctx, query, args...)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": t.table, "from": fromID, "to": toID}).Error("Failed to reassign dependent records")
			return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to reassign dependent records: %v", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to reassign dependent records: %v", err)
		}
		total += rows
	}
	return total, nil
}

// DeletePlayerReferences removes every dependent record referencing the
// player and returns how many rows were removed. Must run inside the
// deletion transaction carried by ctx.
func (r *Repository) DeletePlayerReferences(ctx context.Context, universalID string) (int64, error) {
	return r.delete(ctx, playerRefTables, universalID)
}

// DeleteFixtureReferences removes every dependent record referencing the
// fixture and returns how many rows were removed.
func (r *Repository) DeleteFixtureReferences(ctx context.Context, universalID string) (int64, error) {
	return r.delete(ctx, fixtureRefTables, universalID)
}

func (r *Repository) delete(ctx context.Context, tables []refTable, universalID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "dependents.Repository.delete")
	defer span.End()

	var total int64
	for _, t := range tables {
		db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
		db.DeleteFrom(t.table)
		db.Where(db.Equal(t.column, universalID))

		query, args := db.Build()
		result, err := database.From(ctx, r.db).ExecContext(ctx, query, args...)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": t.table, "universal_id": universalID}).Error("Failed to delete dependent records")
			return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete dependent records: %v", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete dependent records: %v", err)
		}
		total += rows
	}
	return total, nil
}
