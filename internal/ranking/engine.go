// Package ranking implements the split & rank engine: deriving split
// and segment times from normalized crossings, maintaining live ranks
// per checkpoint, and finalizing race results.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/finish-line/internal/database"
	"github.com/yourusername/finish-line/internal/metrics"
	"github.com/yourusername/finish-line/internal/models"
	"github.com/yourusername/finish-line/internal/repository"
)

// Engine is the only writer of SplitTime and Result rows
type Engine struct {
	db     *database.DB
	repos  *repository.Repositories
	logger *logrus.Entry
}

// NewEngine creates a new split & rank engine
func NewEngine(db *database.DB, repos *repository.Repositories, logger *logrus.Logger) *Engine {
	return &Engine{
		db:     db,
		repos:  repos,
		logger: logger.WithField("component", "ranking"),
	}
}

// BuildSplits derives the full split sequence for one participant from
// their live crossings, in course order: loop index first, then
// checkpoint position. Returns the splits plus any monotonicity
// anomalies detected: a split lower than the one at the preceding
// checkpoint is flagged and reported, never silently accepted. Course
// order is the one ordering under which the check means anything; chip
// times at a skewed mat sort wherever the skew puts them.
func (e *Engine) BuildSplits(
	event *models.Event,
	checkpoints []*models.Checkpoint,
	crossings []*models.NormalizedRead,
) ([]*models.SplitTime, []*models.TimingAnomaly) {
	byID := make(map[uuid.UUID]*models.Checkpoint, len(checkpoints))
	for _, cp := range checkpoints {
		byID[cp.ID] = cp
	}

	ordered := make([]*models.NormalizedRead, 0, len(crossings))
	for _, c := range crossings {
		if c.IsSuperseded() {
			continue
		}
		if _, known := byID[c.CheckpointID]; !known {
			continue
		}
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.LoopIndex != b.LoopIndex {
			return a.LoopIndex < b.LoopIndex
		}
		ca, cb := byID[a.CheckpointID], byID[b.CheckpointID]
		if ca.SortOrder != cb.SortOrder {
			return ca.SortOrder < cb.SortOrder
		}
		return a.ChipTime.Before(b.ChipTime)
	})

	var (
		splits    []*models.SplitTime
		anomalies []*models.TimingAnomaly
		prev      *models.SplitTime
		prevCp    *models.Checkpoint
	)

	for _, crossing := range ordered {
		cp := byID[crossing.CheckpointID]

		splitMs := basisTimeMs(event.Basis(), crossing)
		if splitMs == nil {
			// no gun yet; nothing to rank against
			continue
		}

		split := &models.SplitTime{
			ID:               uuid.New(),
			EventID:          crossing.EventID,
			ParticipantID:    crossing.ParticipantID,
			CheckpointID:     cp.ID,
			NormalizedReadID: &crossing.ID,
			LoopIndex:        crossing.LoopIndex,
			SplitTimeMs:      *splitMs,
			UpdatedAt:        time.Now().UTC(),
		}

		if prev != nil {
			segment := split.SplitTimeMs - prev.SplitTimeMs
			if segment < 0 {
				// clock or attribution error somewhere upstream
				split.Flagged = true
				anomalies = append(anomalies, &models.TimingAnomaly{
					ID:            uuid.New(),
					EventID:       crossing.EventID,
					ParticipantID: crossing.ParticipantID,
					CheckpointID:  cp.ID,
					LoopIndex:     crossing.LoopIndex,
					Kind:          models.AnomalyKindMonotonicity,
					Detail: fmt.Sprintf("split %dms at %s is lower than %dms at %s",
						split.SplitTimeMs, cp.Name, prev.SplitTimeMs, prevCp.Name),
				})
			} else {
				split.SegmentTimeMs = &segment
				distance := segmentDistance(prevCp, cp)
				split.Pace = models.PacePerKm(segment, distance)
			}
		}

		splits = append(splits, split)
		if !split.Flagged {
			prev = split
			prevCp = cp
		}
	}

	return splits, anomalies
}

// RebuildParticipantSplits re-derives and persists one participant's
// splits in a single transaction. Idempotent; safe to call after any
// new crossing, manual correction, or replay.
func (e *Engine) RebuildParticipantSplits(ctx context.Context, eventID, participantID uuid.UUID) error {
	event, err := e.repos.Event.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to load event: %w", err)
	}

	checkpoints, err := e.repos.Checkpoint.GetByEventID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoints: %w", err)
	}

	crossings, err := e.repos.NormalizedRead.GetByParticipant(ctx, eventID, participantID)
	if err != nil {
		return fmt.Errorf("failed to load crossings: %w", err)
	}

	return e.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return e.RebuildParticipantSplitsWithTx(ctx, tx, event, checkpoints, participantID, crossings)
	})
}

// RebuildParticipantSplitsWithTx derives one participant's splits from
// the supplied crossings and persists them on the caller's transaction.
// The batch processor uses this so split rows commit atomically with
// the crossings and processed marks they derive from; the crossings
// slice must therefore include the batch's own uncommitted crossings.
func (e *Engine) RebuildParticipantSplitsWithTx(
	ctx context.Context,
	tx pgx.Tx,
	event *models.Event,
	checkpoints []*models.Checkpoint,
	participantID uuid.UUID,
	crossings []*models.NormalizedRead,
) error {
	splits, anomalies := e.BuildSplits(event, checkpoints, crossings)

	for _, split := range splits {
		if err := e.repos.SplitTime.UpsertWithTx(ctx, tx, split); err != nil {
			return err
		}
	}

	// Rebuilds over unchanged crossings re-detect the same violations;
	// an open review-queue entry for the violation suppresses the copy.
	created := 0
	for _, anomaly := range anomalies {
		exists, err := e.repos.Anomaly.UnresolvedExistsWithTx(ctx, tx, anomaly.ParticipantID, anomaly.CheckpointID, anomaly.LoopIndex, anomaly.Kind)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := e.repos.Anomaly.CreateWithTx(ctx, tx, anomaly); err != nil {
			return err
		}
		created++
	}
	if created > 0 {
		metrics.RecordAnomalies(created)
		e.logger.WithFields(map[string]interface{}{
			"event_id":       event.ID,
			"participant_id": participantID,
			"anomalies":      created,
		}).Warn("Timing anomalies flagged during split rebuild")
	}
	return nil
}

// basisTimeMs selects the cumulative time used for splits and ordering:
// the participant-relative net time under chip basis, gun-relative time
// under gun basis. Chip basis falls back to gun time until the
// participant's own start crossing exists.
func basisTimeMs(basis models.ResultBasis, crossing *models.NormalizedRead) *int64 {
	if basis == models.ResultBasisChipTime && crossing.NetTimeMs != nil {
		return crossing.NetTimeMs
	}
	return crossing.GunTimeMs
}

// segmentDistance is the course distance covered since the previous
// checkpoint. Zero or negative (a loop boundary) yields no pace.
func segmentDistance(prev, cur *models.Checkpoint) float64 {
	return cur.DistanceFromStart - prev.DistanceFromStart
}
