package models

import (
	"github.com/google/uuid"
)

// Gender is the ranking subset key for gender ranks
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Participant is the collaborator-owned registration record the
// pipeline reads for attribution and rank grouping. Bib is the stable
// tie-break key for equal times.
type Participant struct {
	ID          uuid.UUID `db:"id" json:"id" validate:"required,uuid4"`
	EventID     uuid.UUID `db:"event_id" json:"event_id" validate:"required,uuid4"`
	RaceID      uuid.UUID `db:"race_id" json:"race_id" validate:"required,uuid4"`
	Bib         int       `db:"bib" json:"bib" validate:"gt=0"`
	FullName    string    `db:"full_name" json:"full_name"`
	Gender      Gender    `db:"gender" json:"gender" validate:"omitempty,oneof=male female other"`
	AgeCategory string    `db:"age_category" json:"age_category"`
	Audit
}
