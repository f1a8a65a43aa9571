package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/finish-line/internal/models"
)

func TestSplitStartTimesGivesEachLaneItsOwnMap(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()

	started := time.Date(2026, 6, 14, 10, 0, 30, 0, time.UTC)
	source := map[uuid.UUID]*time.Time{
		alice: &started,
		bob:   nil,
		carol: nil,
	}
	lanes := [][]resolvedRead{
		{{participantID: alice}, {participantID: alice}},
		{{participantID: bob}, {participantID: carol}},
	}

	perLane := splitStartTimes(lanes, source)
	require.Len(t, perLane, 2)

	assert.Equal(t, map[uuid.UUID]*time.Time{alice: &started}, perLane[0])
	assert.Equal(t, map[uuid.UUID]*time.Time{bob: nil, carol: nil}, perLane[1])

	// a lane discovering a start writes only into its own copy
	discovered := started.Add(time.Minute)
	perLane[1][bob] = &discovered
	assert.Nil(t, source[bob])
	_, shared := perLane[0][bob]
	assert.False(t, shared)
}

func TestSplitStartTimesLanesWriteConcurrently(t *testing.T) {
	participants := make([]uuid.UUID, 8)
	source := make(map[uuid.UUID]*time.Time, len(participants))
	lanes := make([][]resolvedRead, len(participants))
	for i := range participants {
		participants[i] = uuid.New()
		source[participants[i]] = nil
		lanes[i] = []resolvedRead{{participantID: participants[i]}}
	}

	perLane := splitStartTimes(lanes, source)

	// every lane mutates its own map in parallel, the way processBatch
	// runs lane workers
	var wg sync.WaitGroup
	for i := range perLane {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts := time.Date(2026, 6, 14, 10, 0, 0, i, time.UTC)
			perLane[i][participants[i]] = &ts
		}(i)
	}
	wg.Wait()

	for i := range perLane {
		require.NotNil(t, perLane[i][participants[i]])
		assert.Nil(t, source[participants[i]], "source map must stay untouched")
	}
}

func TestRefreshNetTimesDerivesFromStartReference(t *testing.T) {
	start := time.Date(2026, 6, 14, 10, 0, 30, 0, time.UTC)
	crossings := []*models.NormalizedRead{
		{ChipTime: start},                       // the start crossing itself
		{ChipTime: start.Add(25 * time.Minute)}, // 5K, persisted before the start arrived
		{ChipTime: start.Add(-2 * time.Second)}, // skewed mat ahead of the reference
	}

	refreshNetTimes(crossings, start)

	require.NotNil(t, crossings[0].NetTimeMs)
	assert.Equal(t, int64(0), *crossings[0].NetTimeMs)
	require.NotNil(t, crossings[1].NetTimeMs)
	assert.Equal(t, int64(1500000), *crossings[1].NetTimeMs)
	require.NotNil(t, crossings[2].NetTimeMs)
	assert.Equal(t, int64(0), *crossings[2].NetTimeMs, "net time is floored at zero")
}

func TestLaneForRoutesParticipantToOneLane(t *testing.T) {
	participantID := uuid.New()
	lane := laneFor(participantID, 4)
	for i := 0; i < 100; i++ {
		assert.Equal(t, lane, laneFor(participantID, 4))
	}
	assert.GreaterOrEqual(t, lane, 0)
	assert.Less(t, lane, 4)
}
