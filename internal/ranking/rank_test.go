package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/finish-line/internal/models"
)

func runner(eventID, raceID uuid.UUID, bib int, gender models.Gender, category string) *models.Participant {
	return &models.Participant{
		ID:          uuid.New(),
		EventID:     eventID,
		RaceID:      raceID,
		Bib:         bib,
		Gender:      gender,
		AgeCategory: category,
	}
}

func splitAt(eventID, participantID, checkpointID uuid.UUID, splitMs int64) *models.SplitTime {
	return &models.SplitTime{
		ID:            uuid.New(),
		EventID:       eventID,
		ParticipantID: participantID,
		CheckpointID:  checkpointID,
		SplitTimeMs:   splitMs,
		UpdatedAt:     time.Now().UTC(),
	}
}

func TestRankFieldAssignsOverallGenderAndCategory(t *testing.T) {
	eventID := uuid.New()
	raceID := uuid.New()
	checkpointID := uuid.New()

	ana := runner(eventID, raceID, 11, models.GenderFemale, "F30-39")
	ben := runner(eventID, raceID, 22, models.GenderMale, "M30-39")
	cleo := runner(eventID, raceID, 33, models.GenderFemale, "F40-49")
	dan := runner(eventID, raceID, 44, models.GenderMale, "M30-39")
	participants := []*models.Participant{ana, ben, cleo, dan}

	splits := []*models.SplitTime{
		splitAt(eventID, dan.ID, checkpointID, 4000000),
		splitAt(eventID, ana.ID, checkpointID, 3600000),
		splitAt(eventID, cleo.ID, checkpointID, 3900000),
		splitAt(eventID, ben.ID, checkpointID, 3700000),
	}

	ranked := RankField(splits, participants)
	require.Len(t, ranked, 4)

	byRunner := make(map[uuid.UUID]*models.SplitTime)
	for _, s := range ranked {
		byRunner[s.ParticipantID] = s
	}

	assert.Equal(t, 1, *byRunner[ana.ID].Rank)
	assert.Equal(t, 1, *byRunner[ana.ID].GenderRank)
	assert.Equal(t, 1, *byRunner[ana.ID].CategoryRank)

	assert.Equal(t, 2, *byRunner[ben.ID].Rank)
	assert.Equal(t, 1, *byRunner[ben.ID].GenderRank)
	assert.Equal(t, 1, *byRunner[ben.ID].CategoryRank)

	assert.Equal(t, 3, *byRunner[cleo.ID].Rank)
	assert.Equal(t, 2, *byRunner[cleo.ID].GenderRank)
	assert.Equal(t, 1, *byRunner[cleo.ID].CategoryRank)

	assert.Equal(t, 4, *byRunner[dan.ID].Rank)
	assert.Equal(t, 2, *byRunner[dan.ID].GenderRank)
	assert.Equal(t, 2, *byRunner[dan.ID].CategoryRank)
}

func TestRankFieldTieBreaksOnBib(t *testing.T) {
	eventID := uuid.New()
	raceID := uuid.New()
	checkpointID := uuid.New()

	high := runner(eventID, raceID, 200, models.GenderMale, "M20-29")
	low := runner(eventID, raceID, 7, models.GenderMale, "M20-29")

	splits := []*models.SplitTime{
		splitAt(eventID, high.ID, checkpointID, 3600000),
		splitAt(eventID, low.ID, checkpointID, 3600000),
	}

	ranked := RankField(splits, []*models.Participant{high, low})
	require.Len(t, ranked, 2)

	assert.Equal(t, low.ID, ranked[0].ParticipantID, "equal times rank by ascending bib")
	assert.Equal(t, 1, *ranked[0].Rank)
	assert.Equal(t, 2, *ranked[1].Rank)
}

func TestRankFieldExcludesFlaggedAndUnknownRunners(t *testing.T) {
	eventID := uuid.New()
	raceID := uuid.New()
	checkpointID := uuid.New()

	known := runner(eventID, raceID, 1, models.GenderFemale, "F20-29")

	flagged := splitAt(eventID, known.ID, checkpointID, 100)
	flagged.Flagged = true
	clean := splitAt(eventID, known.ID, checkpointID, 3600000)
	orphan := splitAt(eventID, uuid.New(), checkpointID, 200)

	ranked := RankField([]*models.SplitTime{flagged, clean, orphan}, []*models.Participant{known})

	require.Len(t, ranked, 1)
	assert.Equal(t, clean.ID, ranked[0].ID)
	assert.Equal(t, 1, *ranked[0].Rank)
	assert.Nil(t, flagged.Rank, "flagged rows hold no rank")
}

func TestRecomputeCheckpointPersistsRanks(t *testing.T) {
	f := newFakeRepos()
	eventID := uuid.New()
	raceID := uuid.New()
	checkpointID := uuid.New()

	first := runner(eventID, raceID, 1, models.GenderMale, "M20-29")
	second := runner(eventID, raceID, 2, models.GenderFemale, "F20-29")
	f.members.participants = []*models.Participant{first, second}

	leader := splitAt(eventID, first.ID, checkpointID, 3500000)
	chaser := splitAt(eventID, second.ID, checkpointID, 3550000)
	for _, s := range []*models.SplitTime{leader, chaser} {
		require.NoError(t, f.splits.UpsertWithTx(context.Background(), nil, s))
	}

	e := NewEngine(nil, f.repos, logrus.New())
	require.NoError(t, e.RecomputeCheckpoint(context.Background(), eventID, checkpointID))

	assert.Equal(t, 1, f.splits.rankUpdates)
	require.NotNil(t, leader.Rank)
	assert.Equal(t, 1, *leader.Rank)
	require.NotNil(t, chaser.Rank)
	assert.Equal(t, 2, *chaser.Rank)
}

func TestRecomputeCheckpointEmptyFieldIsNoop(t *testing.T) {
	f := newFakeRepos()
	e := NewEngine(nil, f.repos, logrus.New())

	require.NoError(t, e.RecomputeCheckpoint(context.Background(), uuid.New(), uuid.New()))
	assert.Zero(t, f.splits.rankUpdates)
}
