package models

import (
	"time"

	"github.com/google/uuid"
)

// ChipAssignment binds a chip to a participant for an effective-dated
// interval. A chip may be reassigned across participants within one
// event, but at most one assignment is open (UnassignedAt = nil) per
// chip at a time, and intervals for the same chip never overlap.
type ChipAssignment struct {
	ID            uuid.UUID  `db:"id" json:"id" validate:"required,uuid4"`
	EventID       uuid.UUID  `db:"event_id" json:"event_id" validate:"required,uuid4"`
	ParticipantID uuid.UUID  `db:"participant_id" json:"participant_id" validate:"required,uuid4"`
	ChipCode      string     `db:"chip_code" json:"chip_code" validate:"required"`
	AssignedAt    time.Time  `db:"assigned_at" json:"assigned_at" validate:"required"`
	UnassignedAt  *time.Time `db:"unassigned_at" json:"unassigned_at"`
	Audit
}

// Contains reports whether t falls inside the assignment interval
// [AssignedAt, UnassignedAt). An open assignment contains every instant
// at or after AssignedAt.
func (a *ChipAssignment) Contains(t time.Time) bool {
	if t.Before(a.AssignedAt) {
		return false
	}
	return a.UnassignedAt == nil || t.Before(*a.UnassignedAt)
}

// ReaderAssignment binds a reader device to a checkpoint for an
// effective-dated interval, with the same non-overlap invariant as
// ChipAssignment scoped per reader device.
type ReaderAssignment struct {
	ID             uuid.UUID  `db:"id" json:"id" validate:"required,uuid4"`
	EventID        uuid.UUID  `db:"event_id" json:"event_id" validate:"required,uuid4"`
	CheckpointID   uuid.UUID  `db:"checkpoint_id" json:"checkpoint_id" validate:"required,uuid4"`
	ReaderDeviceID string     `db:"reader_device_id" json:"reader_device_id" validate:"required"`
	AssignedAt     time.Time  `db:"assigned_at" json:"assigned_at" validate:"required"`
	UnassignedAt   *time.Time `db:"unassigned_at" json:"unassigned_at"`
	Audit
}

// Contains reports whether t falls inside [AssignedAt, UnassignedAt).
func (a *ReaderAssignment) Contains(t time.Time) bool {
	if t.Before(a.AssignedAt) {
		return false
	}
	return a.UnassignedAt == nil || t.Before(*a.UnassignedAt)
}
