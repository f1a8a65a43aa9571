package models

import (
	"github.com/google/uuid"
)

// CheckpointType classifies a checkpoint's role on the course
type CheckpointType string

const (
	CheckpointTypeStart  CheckpointType = "start"
	CheckpointTypeSplit  CheckpointType = "split"
	CheckpointTypeFinish CheckpointType = "finish"
)

// Checkpoint represents one timing location on the course. Checkpoints
// are ordered by DistanceFromStart and immutable once races are
// underway; the pipeline only reads them.
type Checkpoint struct {
	ID                uuid.UUID      `db:"id" json:"id" validate:"required,uuid4"`
	EventID           uuid.UUID      `db:"event_id" json:"event_id" validate:"required,uuid4"`
	Name              string         `db:"name" json:"name" validate:"required"`
	Type              CheckpointType `db:"type" json:"type" validate:"required,oneof=start split finish"`
	DistanceFromStart float64        `db:"distance_from_start" json:"distance_from_start" validate:"gte=0"` // kilometres
	MinGapMs          int64          `db:"min_gap_ms" json:"min_gap_ms" validate:"gte=0"`
	SortOrder         int            `db:"sort_order" json:"sort_order"`
	IsMandatory       bool           `db:"is_mandatory" json:"is_mandatory"`
	Audit
}

// IsStart reports whether this is the start-line checkpoint.
func (c *Checkpoint) IsStart() bool {
	return c.Type == CheckpointTypeStart
}

// IsFinish reports whether this is the finish-line checkpoint.
func (c *Checkpoint) IsFinish() bool {
	return c.Type == CheckpointTypeFinish
}

// DedupEnabled reports whether echo suppression applies at this
// checkpoint. A zero window keeps every resolved read, which is the
// correct setting for loop courses with legitimate repeat passes.
func (c *Checkpoint) DedupEnabled() bool {
	return c.MinGapMs > 0
}
