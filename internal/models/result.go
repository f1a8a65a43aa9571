package models

import (
	"time"

	"github.com/google/uuid"
)

// ResultStatus represents a participant's progress through a race
type ResultStatus string

const (
	ResultStatusNotStarted ResultStatus = "not_started"
	ResultStatusInProgress ResultStatus = "in_progress"
	ResultStatusFinished   ResultStatus = "finished"
	ResultStatusDNF        ResultStatus = "dnf"
	ResultStatusDQ         ResultStatus = "dq"
)

// CanTransitionTo enforces the per-participant state machine:
// NotStarted -> InProgress -> {Finished | DNF}, with DQ reachable from
// any state via explicit operator action. Finished and DQ are terminal
// for automatic processing.
func (s ResultStatus) CanTransitionTo(next ResultStatus) bool {
	if next == ResultStatusDQ {
		return true
	}
	switch s {
	case ResultStatusNotStarted:
		return next == ResultStatusInProgress
	case ResultStatusInProgress:
		return next == ResultStatusFinished || next == ResultStatusDNF
	case ResultStatusDNF:
		// a late mandatory crossing can still complete the race
		return next == ResultStatusFinished
	default:
		return false
	}
}

// Terminal reports whether automatic processing may no longer change
// the status.
func (s ResultStatus) Terminal() bool {
	return s == ResultStatusFinished || s == ResultStatusDQ
}

// Result is the per-participant outcome of a race. One row per
// participant per race, finalized by the rank engine and frozen once
// IsOfficial is set; corrections require an explicit un-finalize.
type Result struct {
	ID                   uuid.UUID    `db:"id" json:"id" validate:"required,uuid4"`
	EventID              uuid.UUID    `db:"event_id" json:"event_id" validate:"required,uuid4"`
	RaceID               uuid.UUID    `db:"race_id" json:"race_id" validate:"required,uuid4"`
	ParticipantID        uuid.UUID    `db:"participant_id" json:"participant_id" validate:"required,uuid4"`
	FinishTimeMs         *int64       `db:"finish_time_ms" json:"finish_time_ms"`
	GunTimeMs            *int64       `db:"gun_time_ms" json:"gun_time_ms"`
	NetTimeMs            *int64       `db:"net_time_ms" json:"net_time_ms"`
	OverallRank          *int         `db:"overall_rank" json:"overall_rank"`
	GenderRank           *int         `db:"gender_rank" json:"gender_rank"`
	CategoryRank         *int         `db:"category_rank" json:"category_rank"`
	Status               ResultStatus `db:"status" json:"status" validate:"required"`
	StatusReason         *string      `db:"status_reason" json:"status_reason"`
	IsOfficial           bool         `db:"is_official" json:"is_official"`
	CertificateGenerated bool         `db:"certificate_generated" json:"certificate_generated"`
	UpdatedAt            time.Time    `db:"updated_at" json:"updated_at"`
}

// HasFinished reports whether the participant completed the course.
func (r *Result) HasFinished() bool {
	return r.Status == ResultStatusFinished && r.FinishTimeMs != nil
}
