package ranking

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/yourusername/finish-line/internal/models"
)

// RecomputeCheckpoint reorders the whole field at one checkpoint and
// persists the new positions. This is the scope of a late-read
// correction: one checkpoint and its ordering subsets, every
// participant who has reached it, nothing else.
func (e *Engine) RecomputeCheckpoint(ctx context.Context, eventID, checkpointID uuid.UUID) error {
	splits, err := e.repos.SplitTime.GetByCheckpoint(ctx, eventID, checkpointID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint splits: %w", err)
	}

	participants, err := e.repos.Participant.GetByEventID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}

	ranked := RankField(splits, participants)
	if len(ranked) == 0 {
		return nil
	}

	if err := e.repos.SplitTime.UpdateRanks(ctx, ranked); err != nil {
		return err
	}

	e.logger.WithFields(map[string]interface{}{
		"event_id":      eventID,
		"checkpoint_id": checkpointID,
		"field_size":    len(ranked),
	}).Debug("Recomputed checkpoint ranks")

	return nil
}

// RankField orders splits ascending by split time with ties broken by
// ascending bib, then assigns overall, gender, and category positions.
// Flagged splits are excluded: an anomalous row holds no rank until an
// operator resolves it. The input slice is not modified.
func RankField(splits []*models.SplitTime, participants []*models.Participant) []*models.SplitTime {
	byParticipant := make(map[uuid.UUID]*models.Participant, len(participants))
	for _, p := range participants {
		byParticipant[p.ID] = p
	}

	eligible := make([]*models.SplitTime, 0, len(splits))
	for _, s := range splits {
		if s.Flagged {
			continue
		}
		if _, known := byParticipant[s.ParticipantID]; !known {
			continue
		}
		eligible = append(eligible, s)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].SplitTimeMs != eligible[j].SplitTimeMs {
			return eligible[i].SplitTimeMs < eligible[j].SplitTimeMs
		}
		return byParticipant[eligible[i].ParticipantID].Bib < byParticipant[eligible[j].ParticipantID].Bib
	})

	genderPos := make(map[models.Gender]int)
	categoryPos := make(map[string]int)

	for i, split := range eligible {
		p := byParticipant[split.ParticipantID]

		rank := i + 1
		split.Rank = &rank

		genderPos[p.Gender]++
		g := genderPos[p.Gender]
		split.GenderRank = &g

		categoryPos[p.AgeCategory]++
		c := categoryPos[p.AgeCategory]
		split.CategoryRank = &c
	}

	return eligible
}
