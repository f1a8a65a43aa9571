package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/finish-line/internal/models"
)

// fakeChipAssignmentRepo serves assignment intervals from memory
type fakeChipAssignmentRepo struct {
	assignments []*models.ChipAssignment
	calls       int
}

func (f *fakeChipAssignmentRepo) FindActiveAt(ctx context.Context, eventID uuid.UUID, chipCode string, at time.Time) (*models.ChipAssignment, error) {
	f.calls++
	for _, a := range f.assignments {
		if a.EventID == eventID && a.ChipCode == chipCode && a.Contains(at) && a.Live() {
			return a, nil
		}
	}
	return nil, models.ErrNotFound
}

type fakeReaderAssignmentRepo struct {
	assignments []*models.ReaderAssignment
}

func (f *fakeReaderAssignmentRepo) FindActiveAt(ctx context.Context, eventID uuid.UUID, readerDeviceID string, at time.Time) (*models.ReaderAssignment, error) {
	for _, a := range f.assignments {
		if a.EventID == eventID && a.ReaderDeviceID == readerDeviceID && a.Contains(at) && a.Live() {
			return a, nil
		}
	}
	return nil, models.ErrNotFound
}

// fakeNormalizedReadRepo is an in-memory NormalizedReadRepository
type fakeNormalizedReadRepo struct {
	mu    sync.Mutex
	reads []*models.NormalizedRead
}

func (f *fakeNormalizedReadRepo) Create(ctx context.Context, read *models.NormalizedRead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, read)
	return nil
}

func (f *fakeNormalizedReadRepo) CreateWithTx(ctx context.Context, tx pgx.Tx, read *models.NormalizedRead) error {
	return f.Create(ctx, read)
}

func (f *fakeNormalizedReadRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.NormalizedRead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reads {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeNormalizedReadRepo) GetByParticipant(ctx context.Context, eventID, participantID uuid.UUID) ([]*models.NormalizedRead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.NormalizedRead
	for _, r := range f.reads {
		if r.EventID == eventID && r.ParticipantID == participantID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChipTime.Before(out[j].ChipTime) })
	return out, nil
}

func (f *fakeNormalizedReadRepo) GetByCheckpoint(ctx context.Context, eventID, checkpointID uuid.UUID) ([]*models.NormalizedRead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.NormalizedRead
	for _, r := range f.reads {
		if r.EventID == eventID && r.CheckpointID == checkpointID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeNormalizedReadRepo) ExistsForRawRead(ctx context.Context, rawReadID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reads {
		if r.RawReadID != nil && *r.RawReadID == rawReadID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeNormalizedReadRepo) LatestAtCheckpoint(ctx context.Context, participantID, checkpointID uuid.UUID) (*models.NormalizedRead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.NormalizedRead
	for _, r := range f.reads {
		if r.ParticipantID != participantID || r.CheckpointID != checkpointID || r.IsSuperseded() {
			continue
		}
		if latest == nil || r.ChipTime.After(latest.ChipTime) {
			latest = r
		}
	}
	if latest == nil {
		// wrapped like a store that decorates its errors; callers
		// match with errors.Is, not equality
		return nil, fmt.Errorf("no crossing on file: %w", models.ErrNotFound)
	}
	return latest, nil
}

func (f *fakeNormalizedReadRepo) CountAtCheckpoint(ctx context.Context, participantID, checkpointID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, r := range f.reads {
		if r.ParticipantID == participantID && r.CheckpointID == checkpointID && !r.IsSuperseded() {
			count++
		}
	}
	return count, nil
}

func (f *fakeNormalizedReadRepo) SupersedeWithTx(ctx context.Context, tx pgx.Tx, id, supersededBy uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reads {
		if r.ID == id {
			by := supersededBy
			r.SupersededBy = &by
			return nil
		}
	}
	return models.ErrNotFound
}

func (f *fakeNormalizedReadRepo) RecomputeNetTimesWithTx(ctx context.Context, tx pgx.Tx, eventID, participantID uuid.UUID, start time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reads {
		if r.EventID != eventID || r.ParticipantID != participantID || r.IsSuperseded() {
			continue
		}
		ms := r.ChipTime.Sub(start).Milliseconds()
		if ms < 0 {
			ms = 0
		}
		net := ms
		r.NetTimeMs = &net
	}
	return nil
}
