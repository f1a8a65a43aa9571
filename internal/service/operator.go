package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/finish-line/internal/database"
	"github.com/yourusername/finish-line/internal/logger"
	"github.com/yourusername/finish-line/internal/metrics"
	"github.com/yourusername/finish-line/internal/models"
	"github.com/yourusername/finish-line/internal/ranking"
	"github.com/yourusername/finish-line/internal/repository"
)

// OperatorService is the entry point for privileged timing-crew
// actions: manual entries, disqualifications, finalization, anomaly
// resolution, and event replay. Every action is audit-logged with the
// acting operator.
type OperatorService struct {
	db         *database.DB
	repos      *repository.Repositories
	engine     *ranking.Engine
	debouncer  *ranking.Debouncer
	normalizer *Normalizer
	dedup      *Deduplicator
	resolver   *AssignmentResolver
	audit      *logger.AuditLogger
	logger     *logrus.Entry
}

// NewOperatorService creates a new operator service
func NewOperatorService(
	db *database.DB,
	repos *repository.Repositories,
	engine *ranking.Engine,
	debouncer *ranking.Debouncer,
	normalizer *Normalizer,
	dedup *Deduplicator,
	resolver *AssignmentResolver,
	audit *logger.AuditLogger,
	baseLogger *logrus.Logger,
) *OperatorService {
	return &OperatorService{
		db:         db,
		repos:      repos,
		engine:     engine,
		debouncer:  debouncer,
		normalizer: normalizer,
		dedup:      dedup,
		resolver:   resolver,
		audit:      audit,
		logger:     baseLogger.WithField("component", "operator_service"),
	}
}

// ManualEntry records an operator-supplied crossing. If an automatic
// crossing already exists at the same checkpoint and loop, the manual
// entry supersedes it; the superseded row survives for the audit trail.
// The participant's splits are rebuilt and the checkpoint queued for
// rank recomputation.
func (s *OperatorService) ManualEntry(
	ctx context.Context,
	participantID, checkpointID uuid.UUID,
	loopIndex int,
	chipTime time.Time,
	reason, enteredBy string,
) error {
	if reason == "" {
		return models.ErrReasonRequired
	}

	participant, err := s.repos.Participant.GetByID(ctx, participantID)
	if err != nil {
		return fmt.Errorf("failed to load participant: %w", err)
	}

	race, err := s.repos.Event.GetRace(ctx, participant.RaceID)
	if err != nil {
		return fmt.Errorf("failed to load race: %w", err)
	}

	checkpoint, err := s.repos.Checkpoint.GetByID(ctx, checkpointID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	result, err := s.repos.Result.GetByParticipant(ctx, race.ID, participantID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to load result: %w", err)
	}
	if result != nil && result.IsOfficial {
		return models.ErrResultsOfficial
	}

	crossings, err := s.repos.NormalizedRead.GetByParticipant(ctx, participant.EventID, participantID)
	if err != nil {
		return fmt.Errorf("failed to load crossings: %w", err)
	}

	participantStart, err := s.startCrossingTime(ctx, participant.EventID, crossings)
	if err != nil {
		return err
	}

	entry := s.normalizer.NormalizeManual(
		participant.EventID, participantID, checkpointID,
		loopIndex, chipTime, reason,
		race.GunStart, participantStart,
	)

	var superseded *models.NormalizedRead
	for _, c := range crossings {
		if c.CheckpointID == checkpointID && c.LoopIndex == loopIndex && !c.IsSuperseded() {
			superseded = c
			break
		}
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if superseded != nil {
			if err := s.repos.NormalizedRead.SupersedeWithTx(ctx, tx, superseded.ID, entry.ID); err != nil {
				return err
			}
		}
		if err := s.repos.NormalizedRead.CreateWithTx(ctx, tx, entry); err != nil {
			return err
		}
		if checkpoint.IsStart() && loopIndex == 0 {
			// the manual start is now the net-time reference for every
			// crossing this participant already has
			return s.repos.NormalizedRead.RecomputeNetTimesWithTx(ctx, tx, participant.EventID, participantID, entry.ChipTime)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record manual entry: %w", err)
	}

	// the crossing history for this lane changed under the dedup cache
	s.dedup.Reset()

	if err := s.engine.RebuildParticipantSplits(ctx, participant.EventID, participantID); err != nil {
		return err
	}
	event, err := s.repos.Event.GetEvent(ctx, participant.EventID)
	if err != nil {
		return fmt.Errorf("failed to load event: %w", err)
	}
	if err := s.engine.SyncParticipant(ctx, event, race, participant); err != nil {
		return err
	}
	s.debouncer.Request(participant.EventID, checkpointID)
	if checkpoint.IsStart() {
		// a new start time shifts every net time downstream
		s.requestAllCheckpoints(ctx, participant.EventID)
	}

	metrics.RecordManualEntry()
	s.audit.LogManualEntry(
		participant.EventID.String(), participantID.String(), checkpointID.String(),
		chipTime, reason, enteredBy,
	)

	return nil
}

// Disqualify marks a participant DQ with a mandatory reason
func (s *OperatorService) Disqualify(ctx context.Context, raceID, participantID uuid.UUID, reason, actor string) error {
	race, err := s.repos.Event.GetRace(ctx, raceID)
	if err != nil {
		return fmt.Errorf("failed to load race: %w", err)
	}

	if err := s.engine.Disqualify(ctx, raceID, participantID, reason, actor); err != nil {
		return err
	}

	s.audit.LogDisqualification(race.EventID.String(), participantID.String(), reason, actor)
	return nil
}

// Finalize flushes any pending rank work and marks a race official
func (s *OperatorService) Finalize(ctx context.Context, raceID uuid.UUID, actor string) error {
	race, err := s.repos.Event.GetRace(ctx, raceID)
	if err != nil {
		return fmt.Errorf("failed to load race: %w", err)
	}

	if err := s.debouncer.FlushAll(ctx); err != nil {
		return fmt.Errorf("failed to flush pending rank work: %w", err)
	}

	if err := s.engine.FinalizeRace(ctx, raceID, actor); err != nil {
		return err
	}

	s.audit.LogFinalize(race.EventID.String(), raceID.String(), true, actor)
	return nil
}

// Unfinalize lifts the official freeze on a race's results
func (s *OperatorService) Unfinalize(ctx context.Context, raceID uuid.UUID, actor string) error {
	race, err := s.repos.Event.GetRace(ctx, raceID)
	if err != nil {
		return fmt.Errorf("failed to load race: %w", err)
	}

	if err := s.engine.UnfinalizeRace(ctx, raceID, actor); err != nil {
		return err
	}

	s.audit.LogFinalize(race.EventID.String(), raceID.String(), false, actor)
	return nil
}

// ResolveAnomaly marks a flagged timing inconsistency as reviewed and
// clears the flag from the affected split so it ranks again.
func (s *OperatorService) ResolveAnomaly(ctx context.Context, anomalyID uuid.UUID, splitID *uuid.UUID, resolvedBy string) error {
	if resolvedBy == "" {
		return models.ErrReasonRequired
	}

	if err := s.repos.Anomaly.Resolve(ctx, anomalyID, resolvedBy); err != nil {
		return err
	}
	if splitID != nil {
		if err := s.repos.SplitTime.SetFlagged(ctx, *splitID, false); err != nil {
			return err
		}
	}

	s.audit.LogAnomalyResolution(anomalyID.String(), resolvedBy)
	return nil
}

// Replay resets an event's processed flags so the whole audit trail
// runs through the pipeline again. Raw reads are never deleted, so the
// result is identical state unless assignments changed in between.
func (s *OperatorService) Replay(ctx context.Context, eventID uuid.UUID) error {
	if err := s.repos.RawRead.ClearProcessed(ctx, eventID); err != nil {
		return fmt.Errorf("failed to clear processed flags: %w", err)
	}

	s.dedup.Reset()
	s.resolver.Invalidate()

	s.logger.WithField("event_id", eventID).Warn("Event queued for replay")
	return nil
}

// startCrossingTime finds the participant's own unsuperseded start-line
// crossing, the reference for net times. Nil when none exists yet.
func (s *OperatorService) startCrossingTime(ctx context.Context, eventID uuid.UUID, crossings []*models.NormalizedRead) (*time.Time, error) {
	checkpoints, err := s.repos.Checkpoint.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}

	starts := make(map[uuid.UUID]bool)
	for _, cp := range checkpoints {
		if cp.IsStart() {
			starts[cp.ID] = true
		}
	}

	for _, c := range crossings {
		if starts[c.CheckpointID] && !c.IsSuperseded() {
			t := c.ChipTime
			return &t, nil
		}
	}
	return nil, nil
}

func (s *OperatorService) requestAllCheckpoints(ctx context.Context, eventID uuid.UUID) {
	checkpoints, err := s.repos.Checkpoint.GetByEventID(ctx, eventID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load checkpoints for rank requests")
		return
	}
	for _, cp := range checkpoints {
		s.debouncer.Request(eventID, cp.ID)
	}
}
