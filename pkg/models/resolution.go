package models

import "time"

// ResolutionType is how a clash was resolved.
type ResolutionType string

const (
	// ResolutionMerged means dependents were reassigned to the kept entity
	ResolutionMerged ResolutionType = "merged"
	// ResolutionDeleted means the duplicate was removed outright
	ResolutionDeleted ResolutionType = "deleted"
)

// Resolution is one entry in the append-only resolution ledger. Entries are
// written only by a committed merge/delete transaction, never mutated and
// never deleted. PairKey is nil for deletions, which resolve a single
// entity rather than a pair. The removed entity's source identifiers are
// recorded alongside its universal ID because the resolving transaction
// deletes the row that mapped them; a later request naming the same entity
// by any of its identifiers must still find this entry.
type Resolution struct {
	ID                string         `json:"id" db:"id"`
	PairKey           *string        `json:"pair_key,omitempty" db:"pair_key"`
	EntityType        EntityType     `json:"entity_type" db:"entity_type"`
	Resolution        ResolutionType `json:"resolution" db:"resolution"`
	KeptID            *string        `json:"kept_id,omitempty" db:"kept_id"`
	RemovedID         string         `json:"removed_id" db:"removed_id"`
	RemovedInternalID *string        `json:"removed_cafc_id,omitempty" db:"removed_internal_id"`
	RemovedExternalID *string        `json:"removed_external_id,omitempty" db:"removed_external_id"`
	ResolvedBy        *string        `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt        time.Time      `json:"resolved_at" db:"resolved_at"`
}

// ResolutionListResponse is a paginated ledger listing
type ResolutionListResponse struct {
	Items      []Resolution `json:"items"`
	TotalCount int          `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
}
