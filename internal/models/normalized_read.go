package models

import (
	"time"

	"github.com/google/uuid"
)

// NormalizedRead is one logical crossing of a checkpoint by a
// participant: deduplicated, attributed, and converted to race-relative
// times. Rows are created once per resolved crossing and never deleted;
// a manual correction supersedes the automatic row rather than
// replacing it in place. Uniqueness is (participant, checkpoint,
// loop index) with the RawReadID tying back to the evidence.
type NormalizedRead struct {
	ID                uuid.UUID  `db:"id" json:"id" validate:"required,uuid4"`
	EventID           uuid.UUID  `db:"event_id" json:"event_id" validate:"required,uuid4"`
	ParticipantID     uuid.UUID  `db:"participant_id" json:"participant_id" validate:"required,uuid4"`
	CheckpointID      uuid.UUID  `db:"checkpoint_id" json:"checkpoint_id" validate:"required,uuid4"`
	RawReadID         *uuid.UUID `db:"raw_read_id" json:"raw_read_id"`
	LoopIndex         int        `db:"loop_index" json:"loop_index" validate:"gte=0"`
	ChipTime          time.Time  `db:"chip_time" json:"chip_time" validate:"required"`
	GunTimeMs         *int64     `db:"gun_time_ms" json:"gun_time_ms"`
	NetTimeMs         *int64     `db:"net_time_ms" json:"net_time_ms"`
	IsManualEntry     bool       `db:"is_manual_entry" json:"is_manual_entry"`
	ManualEntryReason *string    `db:"manual_entry_reason" json:"manual_entry_reason"`
	SupersededBy      *uuid.UUID `db:"superseded_by" json:"superseded_by"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// IsSuperseded reports whether a later manual correction replaced this
// crossing for ranking purposes.
func (n *NormalizedRead) IsSuperseded() bool {
	return n.SupersededBy != nil
}
