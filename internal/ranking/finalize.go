package ranking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/finish-line/internal/models"
)

// SyncParticipant refreshes a participant's live result row from their
// current splits: NotStarted until a crossing exists, InProgress once
// one does, Finished as soon as the finish line is crossed. Official
// results are never touched; the conditional upsert guards them.
func (e *Engine) SyncParticipant(ctx context.Context, event *models.Event, race *models.Race, participant *models.Participant) error {
	checkpoints, err := e.repos.Checkpoint.GetByEventID(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoints: %w", err)
	}

	splits, err := e.repos.SplitTime.GetByParticipant(ctx, event.ID, participant.ID)
	if err != nil {
		return fmt.Errorf("failed to load splits: %w", err)
	}
	if len(splits) == 0 {
		return nil
	}

	crossings, err := e.repos.NormalizedRead.GetByParticipant(ctx, event.ID, participant.ID)
	if err != nil {
		return fmt.Errorf("failed to load crossings: %w", err)
	}

	existing, err := e.repos.Result.GetByParticipant(ctx, race.ID, participant.ID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to load result: %w", err)
	}

	result := e.buildResult(event, race, participant, checkpoints, splits, crossings)

	if existing != nil {
		result.ID = existing.ID
		if existing.Status != result.Status && !existing.Status.CanTransitionTo(result.Status) {
			// an operator decision (DQ) outranks automatic progress
			result.Status = existing.Status
			result.StatusReason = existing.StatusReason
		}
	}

	return e.repos.Result.Upsert(ctx, result)
}

// FinalizeRace computes every participant's final status, copies the
// finish-line ranks into the result rows, and marks the set official.
// Finalization refuses to run while the finish line has no crossings or
// while any participant in the race carries an unresolved anomaly.
func (e *Engine) FinalizeRace(ctx context.Context, raceID uuid.UUID, actor string) error {
	race, err := e.repos.Event.GetRace(ctx, raceID)
	if err != nil {
		return fmt.Errorf("failed to load race: %w", err)
	}
	if !race.HasStarted() {
		return models.ErrRaceNotComplete
	}

	event, err := e.repos.Event.GetEvent(ctx, race.EventID)
	if err != nil {
		return fmt.Errorf("failed to load event: %w", err)
	}

	checkpoints, err := e.repos.Checkpoint.GetByEventID(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoints: %w", err)
	}

	participants, err := e.repos.Participant.GetByRaceID(ctx, raceID)
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}

	existing, err := e.repos.Result.GetByRace(ctx, raceID)
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}
	existingByParticipant := make(map[uuid.UUID]*models.Result, len(existing))
	for _, r := range existing {
		if r.IsOfficial {
			return models.ErrResultsOfficial
		}
		existingByParticipant[r.ParticipantID] = r
	}

	inRace := make(map[uuid.UUID]bool, len(participants))
	for _, p := range participants {
		inRace[p.ID] = true
	}
	anomalies, err := e.repos.Anomaly.GetUnresolvedByEvent(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("failed to load anomalies: %w", err)
	}
	for _, a := range anomalies {
		if inRace[a.ParticipantID] {
			return models.ErrUnresolvedAnomaly
		}
	}

	var (
		results  []*models.Result
		finished int
	)
	for _, participant := range participants {
		splits, err := e.repos.SplitTime.GetByParticipant(ctx, event.ID, participant.ID)
		if err != nil {
			return fmt.Errorf("failed to load splits: %w", err)
		}
		crossings, err := e.repos.NormalizedRead.GetByParticipant(ctx, event.ID, participant.ID)
		if err != nil {
			return fmt.Errorf("failed to load crossings: %w", err)
		}

		result := e.buildResult(event, race, participant, checkpoints, splits, crossings)

		// at the gun's close an unfinished race is a DNF, not in-progress
		if result.Status == models.ResultStatusInProgress {
			result.Status = models.ResultStatusDNF
			reason := "missing mandatory checkpoint at finalization"
			result.StatusReason = &reason
		}

		if prior := existingByParticipant[participant.ID]; prior != nil {
			result.ID = prior.ID
			if prior.Status == models.ResultStatusDQ {
				result.Status = prior.Status
				result.StatusReason = prior.StatusReason
				result.OverallRank = nil
				result.GenderRank = nil
				result.CategoryRank = nil
			}
		}

		if result.Status == models.ResultStatusFinished {
			finished++
		}
		results = append(results, result)
	}

	if finished == 0 {
		return models.ErrRaceNotComplete
	}

	for _, result := range results {
		if err := e.repos.Result.Upsert(ctx, result); err != nil {
			return fmt.Errorf("failed to upsert result: %w", err)
		}
	}

	if err := e.repos.Result.SetOfficial(ctx, raceID, true); err != nil {
		return err
	}

	e.logger.WithFields(map[string]interface{}{
		"race_id":  raceID,
		"actor":    actor,
		"finished": finished,
		"field":    len(results),
	}).Info("Finalized race results")

	return nil
}

// UnfinalizeRace lifts the official freeze so corrections can flow
// again. A later FinalizeRace recomputes everything from scratch.
func (e *Engine) UnfinalizeRace(ctx context.Context, raceID uuid.UUID, actor string) error {
	results, err := e.repos.Result.GetByRace(ctx, raceID)
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}
	official := false
	for _, r := range results {
		if r.IsOfficial {
			official = true
			break
		}
	}
	if !official {
		return models.ErrResultsNotOfficial
	}

	if err := e.repos.Result.SetOfficial(ctx, raceID, false); err != nil {
		return err
	}

	e.logger.WithFields(map[string]interface{}{
		"race_id": raceID,
		"actor":   actor,
	}).Warn("Unfinalized race results")

	return nil
}

// Disqualify sets a participant's result to DQ. A reason is mandatory
// and official results must be unfrozen first.
func (e *Engine) Disqualify(ctx context.Context, raceID, participantID uuid.UUID, reason, actor string) error {
	if reason == "" {
		return models.ErrReasonRequired
	}

	race, err := e.repos.Event.GetRace(ctx, raceID)
	if err != nil {
		return fmt.Errorf("failed to load race: %w", err)
	}

	result, err := e.repos.Result.GetByParticipant(ctx, raceID, participantID)
	if errors.Is(err, models.ErrNotFound) {
		result = &models.Result{
			ID:            uuid.New(),
			EventID:       race.EventID,
			RaceID:        raceID,
			ParticipantID: participantID,
			Status:        models.ResultStatusNotStarted,
		}
	} else if err != nil {
		return fmt.Errorf("failed to load result: %w", err)
	}
	if result.IsOfficial {
		return models.ErrResultsOfficial
	}

	result.Status = models.ResultStatusDQ
	result.StatusReason = &reason
	result.OverallRank = nil
	result.GenderRank = nil
	result.CategoryRank = nil
	result.UpdatedAt = time.Now().UTC()

	if err := e.repos.Result.Upsert(ctx, result); err != nil {
		return err
	}

	e.logger.WithFields(map[string]interface{}{
		"race_id":        raceID,
		"participant_id": participantID,
		"reason":         reason,
		"actor":          actor,
	}).Warn("Disqualified participant")

	return nil
}

// buildResult derives a result row from a participant's current splits:
// finish time and ranks come from the finish-line split, gun and net
// times from the crossing behind it. Finished requires the finish line
// plus every mandatory checkpoint; flagged splits do not count.
func (e *Engine) buildResult(
	event *models.Event,
	race *models.Race,
	participant *models.Participant,
	checkpoints []*models.Checkpoint,
	splits []*models.SplitTime,
	crossings []*models.NormalizedRead,
) *models.Result {
	crossingByID := make(map[uuid.UUID]*models.NormalizedRead, len(crossings))
	for _, c := range crossings {
		crossingByID[c.ID] = c
	}
	checkpointByID := make(map[uuid.UUID]*models.Checkpoint, len(checkpoints))
	for _, cp := range checkpoints {
		checkpointByID[cp.ID] = cp
	}

	crossed := make(map[uuid.UUID]bool)
	var finish *models.SplitTime
	for _, s := range splits {
		if s.Flagged {
			continue
		}
		crossed[s.CheckpointID] = true
		cp := checkpointByID[s.CheckpointID]
		if cp == nil || !cp.IsFinish() {
			continue
		}
		if finish == nil || s.LoopIndex > finish.LoopIndex {
			finish = s
		}
	}

	// loop courses only finish on the last lap
	if finish != nil && event.HasLoops && event.LoopCount > 0 && finish.LoopIndex < event.LoopCount-1 {
		finish = nil
	}

	mandatoryMet := true
	for _, cp := range checkpoints {
		if cp.IsMandatory && !crossed[cp.ID] {
			mandatoryMet = false
			break
		}
	}

	result := &models.Result{
		ID:            uuid.New(),
		EventID:       event.ID,
		RaceID:        race.ID,
		ParticipantID: participant.ID,
		Status:        models.ResultStatusNotStarted,
		UpdatedAt:     time.Now().UTC(),
	}
	if len(crossed) == 0 {
		return result
	}

	result.Status = models.ResultStatusInProgress
	if finish == nil || !mandatoryMet {
		return result
	}

	result.Status = models.ResultStatusFinished
	finishMs := finish.SplitTimeMs
	result.FinishTimeMs = &finishMs
	result.OverallRank = finish.Rank
	result.GenderRank = finish.GenderRank
	result.CategoryRank = finish.CategoryRank
	if finish.NormalizedReadID != nil {
		if crossing := crossingByID[*finish.NormalizedReadID]; crossing != nil {
			result.GunTimeMs = crossing.GunTimeMs
			result.NetTimeMs = crossing.NetTimeMs
		}
	}

	return result
}
