package repository

import (
	"github.com/yourusername/finish-line/internal/database"
)

// Repositories bundles every data access interface for dependency injection
type Repositories struct {
	RawRead          RawReadRepository
	ChipAssignment   ChipAssignmentRepository
	ReaderAssignment ReaderAssignmentRepository
	Checkpoint       CheckpointRepository
	NormalizedRead   NormalizedReadRepository
	SplitTime        SplitTimeRepository
	Result           ResultRepository
	Participant      ParticipantRepository
	Event            EventRepository
	Anomaly          AnomalyRepository
	Watermark        WatermarkRepository
}

// NewRepositories wires the PostgreSQL implementations onto one pool
func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		RawRead:          NewPostgresRawReadRepository(db),
		ChipAssignment:   NewPostgresChipAssignmentRepository(db),
		ReaderAssignment: NewPostgresReaderAssignmentRepository(db),
		Checkpoint:       NewPostgresCheckpointRepository(db),
		NormalizedRead:   NewPostgresNormalizedReadRepository(db),
		SplitTime:        NewPostgresSplitTimeRepository(db),
		Result:           NewPostgresResultRepository(db),
		Participant:      NewPostgresParticipantRepository(db),
		Event:            NewPostgresEventRepository(db),
		Anomaly:          NewPostgresAnomalyRepository(db),
		Watermark:        NewPostgresWatermarkRepository(db),
	}
}
