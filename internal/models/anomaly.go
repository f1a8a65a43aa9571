package models

import (
	"time"

	"github.com/google/uuid"
)

// AnomalyKind classifies a flagged timing inconsistency
type AnomalyKind string

const (
	// AnomalyKindMonotonicity marks a split time lower than one recorded
	// at an earlier checkpoint for the same participant.
	AnomalyKindMonotonicity AnomalyKind = "monotonicity"
)

// TimingAnomaly records a data/clock inconsistency for operator review.
// The anomalous rows are retained, but the participant is excluded from
// automatic finalization until every anomaly is resolved.
type TimingAnomaly struct {
	ID            uuid.UUID   `db:"id" json:"id" validate:"required,uuid4"`
	EventID       uuid.UUID   `db:"event_id" json:"event_id" validate:"required,uuid4"`
	ParticipantID uuid.UUID   `db:"participant_id" json:"participant_id" validate:"required,uuid4"`
	CheckpointID  uuid.UUID   `db:"checkpoint_id" json:"checkpoint_id" validate:"required,uuid4"`
	LoopIndex     int         `db:"loop_index" json:"loop_index"`
	Kind          AnomalyKind `db:"kind" json:"kind" validate:"required"`
	Detail        string      `db:"detail" json:"detail"`
	Resolved      bool        `db:"resolved" json:"resolved"`
	ResolvedBy    *string     `db:"resolved_by" json:"resolved_by"`
	ResolvedAt    *time.Time  `db:"resolved_at" json:"resolved_at"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}
