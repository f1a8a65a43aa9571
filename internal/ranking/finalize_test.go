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

type raceFixture struct {
	*fakeRepos
	engine *Engine
	course *course
	event  *models.Event
	race   *models.Race
}

func newRaceFixture() *raceFixture {
	f := newFakeRepos()
	c := newCourse()
	gun := time.Date(2026, 6, 14, 10, 0, 0, 0, time.UTC)

	event := &models.Event{ID: c.eventID, Name: "City Half"}
	race := &models.Race{ID: uuid.New(), EventID: c.eventID, Name: "Half Marathon", GunStart: &gun}

	f.events.event = event
	f.events.races[race.ID] = race
	f.checkpoints.checkpoints = c.checkpoints()

	return &raceFixture{
		fakeRepos: f,
		engine:    NewEngine(nil, f.repos, logrus.New()),
		course:    c,
		event:     event,
		race:      race,
	}
}

func (fx *raceFixture) addRunner(bib int, gender models.Gender, category string) *models.Participant {
	p := runner(fx.event.ID, fx.race.ID, bib, gender, category)
	fx.members.participants = append(fx.members.participants, p)
	return p
}

func (fx *raceFixture) addSplit(p *models.Participant, cp *models.Checkpoint, splitMs int64) *models.SplitTime {
	s := splitAt(fx.event.ID, p.ID, cp.ID, splitMs)
	_ = fx.splits.UpsertWithTx(context.Background(), nil, s)
	return s
}

// finishRunner records a full unflagged passage with the finish split
// already ranked and backed by a crossing carrying gun and net times.
func (fx *raceFixture) finishRunner(p *models.Participant, finishMs int64, rank int) *models.SplitTime {
	fx.addSplit(p, fx.course.start, 30000)
	fx.addSplit(p, fx.course.mid, finishMs/2)

	finish := fx.addSplit(p, fx.course.finish, finishMs)
	finish.Rank = &rank
	genderRank := rank
	finish.GenderRank = &genderRank
	categoryRank := rank
	finish.CategoryRank = &categoryRank

	net := finishMs - 30000
	crossing := &models.NormalizedRead{
		ID:            uuid.New(),
		EventID:       fx.event.ID,
		ParticipantID: p.ID,
		CheckpointID:  fx.course.finish.ID,
		ChipTime:      fx.race.GunStart.Add(time.Duration(finishMs) * time.Millisecond),
		GunTimeMs:     &finishMs,
		NetTimeMs:     &net,
	}
	fx.crossings.crossings = append(fx.crossings.crossings, crossing)
	finish.NormalizedReadID = &crossing.ID

	return finish
}

func TestSyncParticipantLifecycle(t *testing.T) {
	ctx := context.Background()
	fx := newRaceFixture()
	p := fx.addRunner(5, models.GenderFemale, "F30-39")

	// no crossings yet: no result row at all
	require.NoError(t, fx.engine.SyncParticipant(ctx, fx.event, fx.race, p))
	assert.Empty(t, fx.results.results)

	// a start crossing opens the race
	fx.addSplit(p, fx.course.start, 30000)
	require.NoError(t, fx.engine.SyncParticipant(ctx, fx.event, fx.race, p))
	res, err := fx.results.GetByParticipant(ctx, fx.race.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusInProgress, res.Status)
	assert.Nil(t, res.FinishTimeMs)

	// the full passage finishes it
	finish := fx.finishRunner(p, 6300000, 1)
	require.NoError(t, fx.engine.SyncParticipant(ctx, fx.event, fx.race, p))
	res, err = fx.results.GetByParticipant(ctx, fx.race.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusFinished, res.Status)
	require.NotNil(t, res.FinishTimeMs)
	assert.Equal(t, int64(6300000), *res.FinishTimeMs)
	assert.Equal(t, finish.Rank, res.OverallRank)
	require.NotNil(t, res.GunTimeMs)
	assert.Equal(t, int64(6300000), *res.GunTimeMs)
	require.NotNil(t, res.NetTimeMs)
	assert.Equal(t, int64(6270000), *res.NetTimeMs)
}

func TestSyncParticipantMissingMandatoryCheckpointStaysInProgress(t *testing.T) {
	ctx := context.Background()
	fx := newRaceFixture()
	p := fx.addRunner(5, models.GenderMale, "M30-39")

	// finish crossed but the 10k mat was missed
	fx.addSplit(p, fx.course.start, 30000)
	fx.addSplit(p, fx.course.finish, 6300000)

	require.NoError(t, fx.engine.SyncParticipant(ctx, fx.event, fx.race, p))
	res, err := fx.results.GetByParticipant(ctx, fx.race.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusInProgress, res.Status)
}

func TestSyncParticipantKeepsOperatorDecision(t *testing.T) {
	ctx := context.Background()
	fx := newRaceFixture()
	p := fx.addRunner(5, models.GenderMale, "M30-39")
	fx.finishRunner(p, 6300000, 1)

	reason := "cut the course"
	existing := &models.Result{
		ID:            uuid.New(),
		EventID:       fx.event.ID,
		RaceID:        fx.race.ID,
		ParticipantID: p.ID,
		Status:        models.ResultStatusDQ,
		StatusReason:  &reason,
	}
	require.NoError(t, fx.results.Upsert(ctx, existing))

	require.NoError(t, fx.engine.SyncParticipant(ctx, fx.event, fx.race, p))

	res, err := fx.results.GetByParticipant(ctx, fx.race.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, res.ID)
	assert.Equal(t, models.ResultStatusDQ, res.Status)
	require.NotNil(t, res.StatusReason)
	assert.Equal(t, reason, *res.StatusReason)
}

func TestSyncParticipantLoopCourseFinishesOnLastLap(t *testing.T) {
	ctx := context.Background()
	fx := newRaceFixture()
	fx.event.HasLoops = true
	fx.event.LoopCount = 3
	p := fx.addRunner(5, models.GenderFemale, "F20-29")

	fx.addSplit(p, fx.course.start, 30000)
	fx.addSplit(p, fx.course.mid, 1500000)

	// second of three laps: crossing the finish line does not finish
	lap2 := splitAt(fx.event.ID, p.ID, fx.course.finish.ID, 3000000)
	lap2.LoopIndex = 1
	require.NoError(t, fx.splits.UpsertWithTx(ctx, nil, lap2))

	require.NoError(t, fx.engine.SyncParticipant(ctx, fx.event, fx.race, p))
	res, err := fx.results.GetByParticipant(ctx, fx.race.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusInProgress, res.Status, "mid-lap finish crossings do not finish the race")

	lastLap := splitAt(fx.event.ID, p.ID, fx.course.finish.ID, 9000000)
	lastLap.LoopIndex = 2
	one := 1
	lastLap.Rank = &one
	require.NoError(t, fx.splits.UpsertWithTx(ctx, nil, lastLap))

	require.NoError(t, fx.engine.SyncParticipant(ctx, fx.event, fx.race, p))
	res, err = fx.results.GetByParticipant(ctx, fx.race.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusFinished, res.Status)
	require.NotNil(t, res.FinishTimeMs)
	assert.Equal(t, int64(9000000), *res.FinishTimeMs)
}

func TestFinalizeRaceRequiresGunStart(t *testing.T) {
	fx := newRaceFixture()
	fx.race.GunStart = nil

	err := fx.engine.FinalizeRace(context.Background(), fx.race.ID, "race-director")
	assert.ErrorIs(t, err, models.ErrRaceNotComplete)
}

func TestFinalizeRaceRequiresAFinisher(t *testing.T) {
	ctx := context.Background()
	fx := newRaceFixture()
	p := fx.addRunner(5, models.GenderMale, "M30-39")
	fx.addSplit(p, fx.course.start, 30000)

	err := fx.engine.FinalizeRace(ctx, fx.race.ID, "race-director")
	assert.ErrorIs(t, err, models.ErrRaceNotComplete)
	assert.Zero(t, fx.results.upserts, "a refused finalization writes nothing")
}

func TestFinalizeRaceBlocksOnUnresolvedAnomaly(t *testing.T) {
	ctx := context.Background()
	fx := newRaceFixture()
	p := fx.addRunner(5, models.GenderMale, "M30-39")
	fx.finishRunner(p, 6300000, 1)

	require.NoError(t, fx.anomalies.Create(ctx, &models.TimingAnomaly{
		ID:            uuid.New(),
		EventID:       fx.event.ID,
		ParticipantID: p.ID,
		CheckpointID:  fx.course.mid.ID,
		Kind:          models.AnomalyKindMonotonicity,
	}))

	err := fx.engine.FinalizeRace(ctx, fx.race.ID, "race-director")
	assert.ErrorIs(t, err, models.ErrUnresolvedAnomaly)

	// once resolved, finalization proceeds
	require.NoError(t, fx.anomalies.Resolve(ctx, fx.anomalies.anomalies[0].ID, "race-director"))
	require.NoError(t, fx.engine.FinalizeRace(ctx, fx.race.ID, "race-director"))
}

func TestFinalizeRaceRefusesWhenAlreadyOfficial(t *testing.T) {
	ctx := context.Background()
	fx := newRaceFixture()
	p := fx.addRunner(5, models.GenderMale, "M30-39")
	fx.finishRunner(p, 6300000, 1)

	require.NoError(t, fx.engine.FinalizeRace(ctx, fx.race.ID, "race-director"))

	err := fx.engine.FinalizeRace(ctx, fx.race.ID, "race-director")
	assert.ErrorIs(t, err, models.ErrResultsOfficial)
}

func TestFinalizeRaceMarksUnfinishedAsDNF(t *testing.T) {
	ctx := context.Background()
	fx := newRaceFixture()

	finisher := fx.addRunner(1, models.GenderFemale, "F30-39")
	fx.finishRunner(finisher, 6300000, 1)

	dropout := fx.addRunner(2, models.GenderMale, "M30-39")
	fx.addSplit(dropout, fx.course.start, 45000)

	require.NoError(t, fx.engine.FinalizeRace(ctx, fx.race.ID, "race-director"))

	finished, err := fx.results.GetByParticipant(ctx, fx.race.ID, finisher.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusFinished, finished.Status)
	assert.True(t, finished.IsOfficial)
	require.NotNil(t, finished.OverallRank)
	assert.Equal(t, 1, *finished.OverallRank)

	dnf, err := fx.results.GetByParticipant(ctx, fx.race.ID, dropout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusDNF, dnf.Status)
	assert.True(t, dnf.IsOfficial)
	require.NotNil(t, dnf.StatusReason)
	assert.Equal(t, "missing mandatory checkpoint at finalization", *dnf.StatusReason)
}

func TestFinalizeRacePreservesDisqualification(t *testing.T) {
	ctx := context.Background()
	fx := newRaceFixture()

	finisher := fx.addRunner(1, models.GenderFemale, "F30-39")
	fx.finishRunner(finisher, 6300000, 1)

	cheat := fx.addRunner(2, models.GenderMale, "M30-39")
	fx.finishRunner(cheat, 6000000, 2)
	require.NoError(t, fx.engine.Disqualify(ctx, fx.race.ID, cheat.ID, "cut the course", "race-director"))

	require.NoError(t, fx.engine.FinalizeRace(ctx, fx.race.ID, "race-director"))

	res, err := fx.results.GetByParticipant(ctx, fx.race.ID, cheat.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusDQ, res.Status)
	assert.Nil(t, res.OverallRank)
	assert.Nil(t, res.GenderRank)
	assert.Nil(t, res.CategoryRank)
	assert.True(t, res.IsOfficial)
}

func TestUnfinalizeRaceLiftsTheFreeze(t *testing.T) {
	ctx := context.Background()
	fx := newRaceFixture()
	p := fx.addRunner(1, models.GenderFemale, "F30-39")
	fx.finishRunner(p, 6300000, 1)

	err := fx.engine.UnfinalizeRace(ctx, fx.race.ID, "race-director")
	assert.ErrorIs(t, err, models.ErrResultsNotOfficial)

	require.NoError(t, fx.engine.FinalizeRace(ctx, fx.race.ID, "race-director"))
	require.NoError(t, fx.engine.UnfinalizeRace(ctx, fx.race.ID, "race-director"))

	res, err := fx.results.GetByParticipant(ctx, fx.race.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, res.IsOfficial)

	// corrections can flow again, including a fresh finalization
	require.NoError(t, fx.engine.FinalizeRace(ctx, fx.race.ID, "race-director"))
}

func TestDisqualify(t *testing.T) {
	ctx := context.Background()
	fx := newRaceFixture()
	p := fx.addRunner(1, models.GenderMale, "M30-39")

	err := fx.engine.Disqualify(ctx, fx.race.ID, p.ID, "", "race-director")
	assert.ErrorIs(t, err, models.ErrReasonRequired)

	// no result row yet: DQ creates one
	require.NoError(t, fx.engine.Disqualify(ctx, fx.race.ID, p.ID, "doping control", "race-director"))
	res, err := fx.results.GetByParticipant(ctx, fx.race.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusDQ, res.Status)
	require.NotNil(t, res.StatusReason)
	assert.Equal(t, "doping control", *res.StatusReason)
	assert.Nil(t, res.OverallRank)
}

func TestDisqualifyRefusesOfficialResult(t *testing.T) {
	ctx := context.Background()
	fx := newRaceFixture()
	p := fx.addRunner(1, models.GenderMale, "M30-39")
	fx.finishRunner(p, 6300000, 1)
	require.NoError(t, fx.engine.FinalizeRace(ctx, fx.race.ID, "race-director"))

	err := fx.engine.Disqualify(ctx, fx.race.ID, p.ID, "late protest", "race-director")
	assert.ErrorIs(t, err, models.ErrResultsOfficial)
}

func TestDisqualifyWithoutResultCreatesRow(t *testing.T) {
	ctx := context.Background()
	fx := newRaceFixture()

	// disqualified before ever crossing a mat, so there is no result
	// row yet and the store reports not-found
	ghost := fx.addRunner(9, models.GenderMale, "M40-49")
	require.NoError(t, fx.engine.Disqualify(ctx, fx.race.ID, ghost.ID, "ineligible entry", "race-director"))

	res, err := fx.results.GetByParticipant(ctx, fx.race.ID, ghost.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusDQ, res.Status)
	require.NotNil(t, res.StatusReason)
	assert.Equal(t, "ineligible entry", *res.StatusReason)
	assert.Nil(t, res.OverallRank)
}
