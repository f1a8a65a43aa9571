package models

import "time"

// Audit carries row-level audit metadata shared by collaborator-owned
// records. It is embedded as a plain value, never inherited.
type Audit struct {
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	CreatedBy *string    `db:"created_by" json:"created_by"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	UpdatedBy *string    `db:"updated_by" json:"updated_by"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	IsDeleted bool       `db:"is_deleted" json:"is_deleted"`
}

// Live reports whether the row should be visible to the pipeline:
// active and not soft-deleted. Queries compose this predicate explicitly
// instead of relying on a hidden default filter.
func (a Audit) Live() bool {
	return a.IsActive && !a.IsDeleted
}
