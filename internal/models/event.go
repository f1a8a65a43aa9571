package models

import (
	"time"

	"github.com/google/uuid"
)

// ResultBasis selects which time orders the field at a checkpoint
type ResultBasis string

const (
	ResultBasisGunTime  ResultBasis = "gun_time"
	ResultBasisChipTime ResultBasis = "chip_time"
)

// Event is the timing-relevant slice of an event record: which time
// basis ranks are computed on and whether the course loops.
type Event struct {
	ID          uuid.UUID   `db:"id" json:"id" validate:"required,uuid4"`
	Name        string      `db:"name" json:"name" validate:"required"`
	ResultBasis ResultBasis `db:"result_basis" json:"result_basis" validate:"omitempty,oneof=gun_time chip_time"`
	HasLoops    bool        `db:"has_loops" json:"has_loops"`
	LoopCount   int         `db:"loop_count" json:"loop_count" validate:"gte=0"`
	Audit
}

// Basis returns the configured result basis, defaulting to gun time
// when the event record leaves it unset.
func (e *Event) Basis() ResultBasis {
	if e.ResultBasis == ResultBasisChipTime {
		return ResultBasisChipTime
	}
	return ResultBasisGunTime
}

// Race is one race within an event: a distance with its own gun start.
type Race struct {
	ID              uuid.UUID  `db:"id" json:"id" validate:"required,uuid4"`
	EventID         uuid.UUID  `db:"event_id" json:"event_id" validate:"required,uuid4"`
	Name            string     `db:"name" json:"name" validate:"required"`
	GunStart        *time.Time `db:"gun_start" json:"gun_start"`
	ResultsFinal    bool       `db:"results_final" json:"results_final"`
	Audit
}

// HasStarted reports whether the gun has gone off.
func (r *Race) HasStarted() bool {
	return r.GunStart != nil
}
