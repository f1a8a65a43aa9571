package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/finish-line/internal/models"
	"github.com/yourusername/finish-line/internal/repository"
)

// splitKey is the natural identity of a split row
type splitKey struct {
	participantID uuid.UUID
	checkpointID  uuid.UUID
	loopIndex     int
}

type fakeSplitTimeRepo struct {
	splits      map[splitKey]*models.SplitTime
	rankUpdates int
	failGet     error
}

func newFakeSplitTimeRepo() *fakeSplitTimeRepo {
	return &fakeSplitTimeRepo{splits: make(map[splitKey]*models.SplitTime)}
}

// UpsertWithTx mirrors the conflict handling of the real store: the
// existing row keeps its identity and rank positions, unless the new
// derivation is flagged, which clears the ranks.
func (f *fakeSplitTimeRepo) UpsertWithTx(ctx context.Context, tx pgx.Tx, split *models.SplitTime) error {
	key := splitKey{split.ParticipantID, split.CheckpointID, split.LoopIndex}
	if existing, ok := f.splits[key]; ok {
		split.ID = existing.ID
		if !split.Flagged {
			split.Rank = existing.Rank
			split.GenderRank = existing.GenderRank
			split.CategoryRank = existing.CategoryRank
		}
	}
	f.splits[key] = split
	return nil
}

func (f *fakeSplitTimeRepo) GetByParticipant(ctx context.Context, eventID, participantID uuid.UUID) ([]*models.SplitTime, error) {
	var out []*models.SplitTime
	for _, s := range f.splits {
		if s.EventID == eventID && s.ParticipantID == participantID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SplitTimeMs < out[j].SplitTimeMs })
	return out, nil
}

func (f *fakeSplitTimeRepo) GetByCheckpoint(ctx context.Context, eventID, checkpointID uuid.UUID) ([]*models.SplitTime, error) {
	if f.failGet != nil {
		return nil, f.failGet
	}
	var out []*models.SplitTime
	for _, s := range f.splits {
		if s.EventID == eventID && s.CheckpointID == checkpointID && !s.Flagged {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSplitTimeRepo) UpdateRanks(ctx context.Context, splits []*models.SplitTime) error {
	f.rankUpdates++
	return nil
}

func (f *fakeSplitTimeRepo) SetFlagged(ctx context.Context, id uuid.UUID, flagged bool) error {
	for _, s := range f.splits {
		if s.ID == id {
			s.Flagged = flagged
			if flagged {
				s.Rank = nil
				s.GenderRank = nil
				s.CategoryRank = nil
			}
			return nil
		}
	}
	return models.ErrNotFound
}

type fakeResultRepo struct {
	results map[uuid.UUID]*models.Result
	upserts int
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{results: make(map[uuid.UUID]*models.Result)}
}

func (f *fakeResultRepo) Upsert(ctx context.Context, result *models.Result) error {
	f.upserts++
	f.results[result.ID] = result
	return nil
}

func (f *fakeResultRepo) GetByParticipant(ctx context.Context, raceID, participantID uuid.UUID) (*models.Result, error) {
	for _, r := range f.results {
		if r.RaceID == raceID && r.ParticipantID == participantID {
			return r, nil
		}
	}
	// wrapped like a store that decorates its errors; callers match
	// with errors.Is, not equality
	return nil, fmt.Errorf("result for participant %s: %w", participantID, models.ErrNotFound)
}

func (f *fakeResultRepo) GetByRace(ctx context.Context, raceID uuid.UUID) ([]*models.Result, error) {
	var out []*models.Result
	for _, r := range f.results {
		if r.RaceID == raceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResultRepo) SetOfficial(ctx context.Context, raceID uuid.UUID, official bool) error {
	for _, r := range f.results {
		if r.RaceID == raceID {
			r.IsOfficial = official
		}
	}
	return nil
}

type fakeEventRepo struct {
	event *models.Event
	races map[uuid.UUID]*models.Race
}

func (f *fakeEventRepo) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	if f.event != nil && f.event.ID == id {
		return f.event, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakeEventRepo) GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	if r, ok := f.races[id]; ok {
		return r, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakeEventRepo) GetRacesByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.Race, error) {
	var out []*models.Race
	for _, r := range f.races {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) ListActiveEventIDs(ctx context.Context) ([]uuid.UUID, error) {
	if f.event == nil {
		return nil, nil
	}
	return []uuid.UUID{f.event.ID}, nil
}

type fakeCheckpointRepo struct {
	checkpoints []*models.Checkpoint
}

func (f *fakeCheckpointRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Checkpoint, error) {
	for _, cp := range f.checkpoints {
		if cp.ID == id {
			return cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeCheckpointRepo) GetByEventID(ctx context.Context, eventID uuid.UUID) ([]*models.Checkpoint, error) {
	var out []*models.Checkpoint
	for _, cp := range f.checkpoints {
		if cp.EventID == eventID {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceFromStart < out[j].DistanceFromStart })
	return out, nil
}

type fakeParticipantRepo struct {
	participants []*models.Participant
}

func (f *fakeParticipantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	for _, p := range f.participants {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeParticipantRepo) GetByRaceID(ctx context.Context, raceID uuid.UUID) ([]*models.Participant, error) {
	var out []*models.Participant
	for _, p := range f.participants {
		if p.RaceID == raceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeParticipantRepo) GetByEventID(ctx context.Context, eventID uuid.UUID) ([]*models.Participant, error) {
	var out []*models.Participant
	for _, p := range f.participants {
		if p.EventID == eventID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeAnomalyRepo struct {
	anomalies []*models.TimingAnomaly
}

func (f *fakeAnomalyRepo) Create(ctx context.Context, anomaly *models.TimingAnomaly) error {
	f.anomalies = append(f.anomalies, anomaly)
	return nil
}

func (f *fakeAnomalyRepo) CreateWithTx(ctx context.Context, tx pgx.Tx, anomaly *models.TimingAnomaly) error {
	return f.Create(ctx, anomaly)
}

func (f *fakeAnomalyRepo) UnresolvedExistsWithTx(ctx context.Context, tx pgx.Tx, participantID, checkpointID uuid.UUID, loopIndex int, kind models.AnomalyKind) (bool, error) {
	for _, a := range f.anomalies {
		if a.ParticipantID == participantID && a.CheckpointID == checkpointID &&
			a.LoopIndex == loopIndex && a.Kind == kind && !a.Resolved {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAnomalyRepo) CountUnresolved(ctx context.Context, participantID uuid.UUID) (int, error) {
	count := 0
	for _, a := range f.anomalies {
		if a.ParticipantID == participantID && !a.Resolved {
			count++
		}
	}
	return count, nil
}

func (f *fakeAnomalyRepo) GetUnresolvedByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.TimingAnomaly, error) {
	var out []*models.TimingAnomaly
	for _, a := range f.anomalies {
		if a.EventID == eventID && !a.Resolved {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAnomalyRepo) Resolve(ctx context.Context, id uuid.UUID, resolvedBy string) error {
	for _, a := range f.anomalies {
		if a.ID == id {
			now := time.Now().UTC()
			a.Resolved = true
			a.ResolvedBy = &resolvedBy
			a.ResolvedAt = &now
			return nil
		}
	}
	return models.ErrNotFound
}

type fakeCrossingRepo struct {
	crossings []*models.NormalizedRead
}

func (f *fakeCrossingRepo) Create(ctx context.Context, read *models.NormalizedRead) error {
	f.crossings = append(f.crossings, read)
	return nil
}

func (f *fakeCrossingRepo) CreateWithTx(ctx context.Context, tx pgx.Tx, read *models.NormalizedRead) error {
	return f.Create(ctx, read)
}

func (f *fakeCrossingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.NormalizedRead, error) {
	for _, r := range f.crossings {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeCrossingRepo) GetByParticipant(ctx context.Context, eventID, participantID uuid.UUID) ([]*models.NormalizedRead, error) {
	var out []*models.NormalizedRead
	for _, r := range f.crossings {
		if r.EventID == eventID && r.ParticipantID == participantID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChipTime.Before(out[j].ChipTime) })
	return out, nil
}

func (f *fakeCrossingRepo) GetByCheckpoint(ctx context.Context, eventID, checkpointID uuid.UUID) ([]*models.NormalizedRead, error) {
	var out []*models.NormalizedRead
	for _, r := range f.crossings {
		if r.EventID == eventID && r.CheckpointID == checkpointID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCrossingRepo) ExistsForRawRead(ctx context.Context, rawReadID uuid.UUID) (bool, error) {
	for _, r := range f.crossings {
		if r.RawReadID != nil && *r.RawReadID == rawReadID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCrossingRepo) LatestAtCheckpoint(ctx context.Context, participantID, checkpointID uuid.UUID) (*models.NormalizedRead, error) {
	var latest *models.NormalizedRead
	for _, r := range f.crossings {
		if r.ParticipantID != participantID || r.CheckpointID != checkpointID || r.IsSuperseded() {
			continue
		}
		if latest == nil || r.ChipTime.After(latest.ChipTime) {
			latest = r
		}
	}
	if latest == nil {
		return nil, models.ErrNotFound
	}
	return latest, nil
}

func (f *fakeCrossingRepo) CountAtCheckpoint(ctx context.Context, participantID, checkpointID uuid.UUID) (int, error) {
	count := 0
	for _, r := range f.crossings {
		if r.ParticipantID == participantID && r.CheckpointID == checkpointID && !r.IsSuperseded() {
			count++
		}
	}
	return count, nil
}

func (f *fakeCrossingRepo) SupersedeWithTx(ctx context.Context, tx pgx.Tx, id, supersededBy uuid.UUID) error {
	for _, r := range f.crossings {
		if r.ID == id {
			by := supersededBy
			r.SupersededBy = &by
			return nil
		}
	}
	return models.ErrNotFound
}

func (f *fakeCrossingRepo) RecomputeNetTimesWithTx(ctx context.Context, tx pgx.Tx, eventID, participantID uuid.UUID, start time.Time) error {
	for _, r := range f.crossings {
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

// fakeRepos bundles the in-memory stores the way the engine consumes
// them, with the concrete fakes still reachable for assertions.
type fakeRepos struct {
	repos       *repository.Repositories
	splits      *fakeSplitTimeRepo
	results     *fakeResultRepo
	events      *fakeEventRepo
	checkpoints *fakeCheckpointRepo
	members     *fakeParticipantRepo
	anomalies   *fakeAnomalyRepo
	crossings   *fakeCrossingRepo
}

func newFakeRepos() *fakeRepos {
	f := &fakeRepos{
		splits:      newFakeSplitTimeRepo(),
		results:     newFakeResultRepo(),
		events:      &fakeEventRepo{races: make(map[uuid.UUID]*models.Race)},
		checkpoints: &fakeCheckpointRepo{},
		members:     &fakeParticipantRepo{},
		anomalies:   &fakeAnomalyRepo{},
		crossings:   &fakeCrossingRepo{},
	}
	f.repos = &repository.Repositories{
		Checkpoint:     f.checkpoints,
		NormalizedRead: f.crossings,
		SplitTime:      f.splits,
		Result:         f.results,
		Participant:    f.members,
		Event:          f.events,
		Anomaly:        f.anomalies,
	}
	return f
}
