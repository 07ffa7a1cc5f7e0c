package models

import (
	"strings"
	"time"
)

// DataSource is the ingestion origin of a record. Each source carries its
// own identifier namespace, which is why the same real-world player or
// fixture can exist twice.
type DataSource string

const (
	// DataSourceInternal marks records entered through the dashboard
	DataSourceInternal DataSource = "internal"
	// DataSourceExternal marks records ingested from the external feed
	DataSourceExternal DataSource = "external"
)

// EntityType distinguishes the two reconcilable entity kinds. The wire name
// for fixtures is "match" because that is what the dashboard sends.
type EntityType string

const (
	EntityTypePlayer EntityType = "player"
	EntityTypeMatch  EntityType = "match"
)

// Player is a scouted player. Exactly one of InternalID/ExternalID is set,
// consistent with DataSource.
type Player struct {
	UniversalID string     `json:"universal_id" db:"universal_id"`
	InternalID  *string    `json:"cafc_id,omitempty" db:"internal_id"`
	ExternalID  *string    `json:"external_id,omitempty" db:"external_id"`
	FirstName   string     `json:"first_name" db:"first_name"`
	LastName    string     `json:"last_name" db:"last_name"`
	SquadName   *string    `json:"squad_name,omitempty" db:"squad_name"`
	DataSource  DataSource `json:"data_source" db:"data_source"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// FullName returns the display name used for similarity scoring.
func (p Player) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Squad returns the squad name or "" when none is recorded.
func (p Player) Squad() string {
	if p.SquadName == nil {
		return ""
	}
	return *p.SquadName
}

// Fixture is a scheduled or played match. Same source-exclusivity invariant
// as Player. Date is nullable; a fixture without a date cannot establish
// identity and is excluded from clash detection.
type Fixture struct {
	UniversalID string     `json:"universal_id" db:"universal_id"`
	InternalID  *string    `json:"cafc_id,omitempty" db:"internal_id"`
	ExternalID  *string    `json:"external_id,omitempty" db:"external_id"`
	HomeTeam    string     `json:"home_team" db:"home_team"`
	AwayTeam    string     `json:"away_team" db:"away_team"`
	Date        *time.Time `json:"date,omitempty" db:"fixture_date"`
	DataSource  DataSource `json:"data_source" db:"data_source"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// PlayerListResponse is a paginated player listing
type PlayerListResponse struct {
	Items      []Player `json:"items"`
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}

// FixtureListResponse is a paginated fixture listing
type FixtureListResponse struct {
	Items      []Fixture `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}
