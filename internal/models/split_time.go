package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SplitTime is the derived cumulative time for a participant at a
// checkpoint, with segment time and pace over the preceding segment and
// the participant's position within the full field and within the
// gender/category subsets. Fully recomputable from NormalizedReads; the
// rank engine is the only writer.
type SplitTime struct {
	ID               uuid.UUID        `db:"id" json:"id" validate:"required,uuid4"`
	EventID          uuid.UUID        `db:"event_id" json:"event_id" validate:"required,uuid4"`
	ParticipantID    uuid.UUID        `db:"participant_id" json:"participant_id" validate:"required,uuid4"`
	CheckpointID     uuid.UUID        `db:"checkpoint_id" json:"checkpoint_id" validate:"required,uuid4"`
	NormalizedReadID *uuid.UUID       `db:"normalized_read_id" json:"normalized_read_id"`
	LoopIndex        int              `db:"loop_index" json:"loop_index"`
	SplitTimeMs      int64            `db:"split_time_ms" json:"split_time_ms" validate:"gte=0"`
	SegmentTimeMs    *int64           `db:"segment_time_ms" json:"segment_time_ms"`
	Pace             *decimal.Decimal `db:"pace" json:"pace"` // minutes per kilometre
	Rank             *int             `db:"rank" json:"rank"`
	GenderRank       *int             `db:"gender_rank" json:"gender_rank"`
	CategoryRank     *int             `db:"category_rank" json:"category_rank"`
	Flagged          bool             `db:"flagged" json:"flagged"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// PacePerKm derives minutes-per-kilometre from a segment time and
// distance. Returns nil when the segment distance is zero.
func PacePerKm(segmentTimeMs int64, segmentKm float64) *decimal.Decimal {
	if segmentKm <= 0 {
		return nil
	}
	minutes := decimal.NewFromInt(segmentTimeMs).Div(decimal.NewFromInt(60000))
	pace := minutes.Div(decimal.NewFromFloat(segmentKm)).Round(3)
	return &pace
}
