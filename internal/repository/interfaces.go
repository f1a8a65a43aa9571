package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/finish-line/internal/models"
)

// RawReadRepository defines the append-only raw read store. Appends
// never reject on content; unresolvable reads are retried later.
type RawReadRepository interface {
	Append(ctx context.Context, read *models.RawRead) error
	AppendBatch(ctx context.Context, reads []*models.RawRead) error
	FetchUnprocessed(ctx context.Context, eventID uuid.UUID, limit int) ([]*models.RawRead, error)
	CountUnprocessed(ctx context.Context, eventID uuid.UUID) (int, error)
	// MarkProcessed is idempotent: re-marking already-processed ids is a no-op.
	MarkProcessed(ctx context.Context, ids []uuid.UUID) error
	MarkProcessedWithTx(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) error
	// ClearProcessed resets the processed flag for a whole event so the
	// audit trail can be replayed. Raw reads themselves are never deleted.
	ClearProcessed(ctx context.Context, eventID uuid.UUID) error
}

// ChipAssignmentRepository resolves chip codes over effective-dated intervals
type ChipAssignmentRepository interface {
	// FindActiveAt returns the assignment whose [assignedAt, unassignedAt)
	// interval contains at. models.ErrNotFound when no interval matches.
	FindActiveAt(ctx context.Context, eventID uuid.UUID, chipCode string, at time.Time) (*models.ChipAssignment, error)
}

// ReaderAssignmentRepository resolves reader devices over effective-dated intervals
type ReaderAssignmentRepository interface {
	FindActiveAt(ctx context.Context, eventID uuid.UUID, readerDeviceID string, at time.Time) (*models.ReaderAssignment, error)
}

// CheckpointRepository defines read access to course checkpoints
type CheckpointRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Checkpoint, error)
	// GetByEventID returns live checkpoints ordered by distance from start.
	GetByEventID(ctx context.Context, eventID uuid.UUID) ([]*models.Checkpoint, error)
}

// NormalizedReadRepository defines the interface for normalized crossing data access
type NormalizedReadRepository interface {
	Create(ctx context.Context, read *models.NormalizedRead) error
	CreateWithTx(ctx context.Context, tx pgx.Tx, read *models.NormalizedRead) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.NormalizedRead, error)
	// GetByParticipant returns all crossings for a participant ordered by chip time.
	GetByParticipant(ctx context.Context, eventID, participantID uuid.UUID) ([]*models.NormalizedRead, error)
	GetByCheckpoint(ctx context.Context, eventID, checkpointID uuid.UUID) ([]*models.NormalizedRead, error)
	// ExistsForRawRead supports normalization idempotence.
	ExistsForRawRead(ctx context.Context, rawReadID uuid.UUID) (bool, error)
	// LatestAtCheckpoint returns the most recent accepted crossing for the
	// dedup window check, or models.ErrNotFound.
	LatestAtCheckpoint(ctx context.Context, participantID, checkpointID uuid.UUID) (*models.NormalizedRead, error)
	CountAtCheckpoint(ctx context.Context, participantID, checkpointID uuid.UUID) (int, error)
	// SupersedeWithTx points an automatic crossing at the manual entry replacing it.
	SupersedeWithTx(ctx context.Context, tx pgx.Tx, id, supersededBy uuid.UUID) error
	// RecomputeNetTimesWithTx backfills net times for a participant's live
	// crossings once their start reference arrives or changes.
	RecomputeNetTimesWithTx(ctx context.Context, tx pgx.Tx, eventID, participantID uuid.UUID, start time.Time) error
}

// SplitTimeRepository defines the interface for derived split time data
// access. The rank engine is the only writer.
type SplitTimeRepository interface {
	UpsertWithTx(ctx context.Context, tx pgx.Tx, split *models.SplitTime) error
	GetByParticipant(ctx context.Context, eventID, participantID uuid.UUID) ([]*models.SplitTime, error)
	// GetByCheckpoint returns every unflagged split at a checkpoint, the
	// recomputation scope after a late read.
	GetByCheckpoint(ctx context.Context, eventID, checkpointID uuid.UUID) ([]*models.SplitTime, error)
	UpdateRanks(ctx context.Context, splits []*models.SplitTime) error
	SetFlagged(ctx context.Context, id uuid.UUID, flagged bool) error
}

// ResultRepository defines the interface for race result data access
type ResultRepository interface {
	Upsert(ctx context.Context, result *models.Result) error
	GetByParticipant(ctx context.Context, raceID, participantID uuid.UUID) (*models.Result, error)
	GetByRace(ctx context.Context, raceID uuid.UUID) ([]*models.Result, error)
	SetOfficial(ctx context.Context, raceID uuid.UUID, official bool) error
}

// ParticipantRepository defines read access to collaborator-owned registrations
type ParticipantRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	GetByRaceID(ctx context.Context, raceID uuid.UUID) ([]*models.Participant, error)
	GetByEventID(ctx context.Context, eventID uuid.UUID) ([]*models.Participant, error)
}

// EventRepository defines read access to events and races
type EventRepository interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error)
	GetRacesByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.Race, error)
	// ListActiveEventIDs returns events the pipeline should poll.
	ListActiveEventIDs(ctx context.Context) ([]uuid.UUID, error)
}

// AnomalyRepository defines the interface for flagged timing inconsistencies
type AnomalyRepository interface {
	Create(ctx context.Context, anomaly *models.TimingAnomaly) error
	CreateWithTx(ctx context.Context, tx pgx.Tx, anomaly *models.TimingAnomaly) error
	// UnresolvedExistsWithTx reports whether an open anomaly already
	// records this violation, the guard against rebuilds duplicating it.
	UnresolvedExistsWithTx(ctx context.Context, tx pgx.Tx, participantID, checkpointID uuid.UUID, loopIndex int, kind models.AnomalyKind) (bool, error)
	CountUnresolved(ctx context.Context, participantID uuid.UUID) (int, error)
	GetUnresolvedByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.TimingAnomaly, error)
	Resolve(ctx context.Context, id uuid.UUID, resolvedBy string) error
}

// WatermarkRepository tracks per-event processing progress for consumers
type WatermarkRepository interface {
	Set(ctx context.Context, eventID uuid.UUID, processedAt time.Time) error
	Get(ctx context.Context, eventID uuid.UUID) (time.Time, error)
}
