// Package pipeline implements the batch processing loop that turns raw
// antenna reads into normalized crossings: resolve, deduplicate,
// normalize, commit, then queue derived work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/finish-line/internal/config"
	"github.com/yourusername/finish-line/internal/database"
	"github.com/yourusername/finish-line/internal/metrics"
	"github.com/yourusername/finish-line/internal/models"
	"github.com/yourusername/finish-line/internal/ranking"
	"github.com/yourusername/finish-line/internal/repository"
	"github.com/yourusername/finish-line/internal/service"
)

// Processor drives the read-processing pipeline for every active event.
// Reads are partitioned by participant across worker lanes so one
// participant's reads are always handled in timestamp order by a single
// goroutine, then the whole batch commits in one transaction: crossings
// created, splits rebuilt, and raw reads marked processed together, or
// none of it.
type Processor struct {
	db         *database.DB
	repos      *repository.Repositories
	resolver   *service.AssignmentResolver
	dedup      *service.Deduplicator
	normalizer *service.Normalizer
	engine     *ranking.Engine
	debouncer  *ranking.Debouncer
	cfg        *config.PipelineConfig
	logger     *logrus.Entry
}

// NewProcessor creates a new pipeline processor
func NewProcessor(
	db *database.DB,
	repos *repository.Repositories,
	resolver *service.AssignmentResolver,
	dedup *service.Deduplicator,
	normalizer *service.Normalizer,
	engine *ranking.Engine,
	debouncer *ranking.Debouncer,
	cfg *config.PipelineConfig,
	baseLogger *logrus.Logger,
) *Processor {
	return &Processor{
		db:         db,
		repos:      repos,
		resolver:   resolver,
		dedup:      dedup,
		normalizer: normalizer,
		engine:     engine,
		debouncer:  debouncer,
		cfg:        cfg,
		logger:     baseLogger.WithField("component", "pipeline"),
	}
}

// RunCycle processes pending reads for every active event
func (p *Processor) RunCycle(ctx context.Context) error {
	eventIDs, err := p.repos.Event.ListActiveEventIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active events: %w", err)
	}

	var firstErr error
	for _, eventID := range eventIDs {
		stats, err := p.ProcessEvent(ctx, eventID)
		if err != nil {
			p.logger.WithError(err).WithField("event_id", eventID).Error("Event processing failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if stats.Fetched > 0 {
			p.logger.WithField("event_id", eventID).Info(stats.String())
		}
	}
	return firstErr
}

// ProcessEvent drains the unprocessed backlog for one event in batches.
// Reads whose chip or reader has no assignment at their timestamp stay
// unprocessed for a later cycle; they stop the drain for this cycle so
// the same pending reads are not re-examined in a tight loop.
func (p *Processor) ProcessEvent(ctx context.Context, eventID uuid.UUID) (*CycleStats, error) {
	stats := NewCycleStats()

	event, err := p.repos.Event.GetEvent(ctx, eventID)
	if err != nil {
		return stats, fmt.Errorf("failed to load event: %w", err)
	}
	checkpoints, err := p.repos.Checkpoint.GetByEventID(ctx, eventID)
	if err != nil {
		return stats, fmt.Errorf("failed to load checkpoints: %w", err)
	}

	for {
		reads, err := p.repos.RawRead.FetchUnprocessed(ctx, eventID, p.cfg.BatchSize)
		if err != nil {
			stats.RecordError()
			return stats, fmt.Errorf("failed to fetch unprocessed reads: %w", err)
		}
		if len(reads) == 0 {
			break
		}
		stats.RecordFetched(len(reads))

		batchCtx, cancel := context.WithTimeout(ctx, p.cfg.BatchTimeout())
		processed, err := p.processBatch(batchCtx, event, checkpoints, reads, stats)
		cancel()
		if err != nil {
			stats.RecordError()
			return stats, err
		}

		// nothing moved: the whole batch is pending on assignments
		if processed == 0 {
			break
		}
		if len(reads) < p.cfg.BatchSize {
			break
		}
	}

	if backlog, err := p.repos.RawRead.CountUnprocessed(ctx, eventID); err == nil {
		metrics.UpdatePendingReads(eventID.String(), float64(backlog))
	}
	p.updateWatermarkAge(ctx, eventID)

	stats.Duration = time.Since(stats.StartTime)
	return stats, nil
}

// resolvedRead is a raw read with its attribution settled
type resolvedRead struct {
	read          *models.RawRead
	participantID uuid.UUID
	checkpoint    *models.Checkpoint
}

// processBatch runs one batch through resolve, lane workers, and the
// atomic commit. Returns the number of raw reads consumed.
func (p *Processor) processBatch(
	ctx context.Context,
	event *models.Event,
	checkpoints []*models.Checkpoint,
	reads []*models.RawRead,
	stats *CycleStats,
) (int, error) {
	start := time.Now()

	checkpointByID := make(map[uuid.UUID]*models.Checkpoint, len(checkpoints))
	for _, cp := range checkpoints {
		checkpointByID[cp.ID] = cp
	}

	resolved, pending := p.resolveBatch(ctx, event.ID, checkpointByID, reads)
	stats.RecordResolved(len(resolved))
	stats.RecordPending(pending)
	if len(resolved) == 0 {
		return 0, nil
	}

	races, startTimes, err := p.loadParticipantContext(ctx, event.ID, checkpoints, resolved)
	if err != nil {
		return 0, err
	}

	lanes := p.partition(resolved)
	laneStarts := splitStartTimes(lanes, startTimes)
	dedupBatch := p.dedup.Begin()
	outs := make([]laneOutput, len(lanes))

	var wg sync.WaitGroup
	for i, lane := range lanes {
		if len(lane) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, lane []resolvedRead) {
			defer wg.Done()
			outs[i] = p.runLane(ctx, dedupBatch, lane, races, laneStarts[i])
		}(i, lane)
	}
	wg.Wait()

	var (
		created      []*models.NormalizedRead
		processedIDs []uuid.UUID
		echoes       int
	)
	newStarts := make(map[uuid.UUID]time.Time)
	for _, out := range outs {
		if out.err != nil {
			return 0, out.err
		}
		created = append(created, out.created...)
		processedIDs = append(processedIDs, out.processed...)
		echoes += out.echoes
		for participantID, start := range out.starts {
			newStarts[participantID] = start
		}
	}
	if len(processedIDs) == 0 {
		return 0, nil
	}

	// Crossings per touched participant: committed history plus this
	// batch's uncommitted ones, so split rebuilds inside the transaction
	// see the full sequence.
	crossingsByParticipant := make(map[uuid.UUID][]*models.NormalizedRead)
	for _, crossing := range created {
		if _, loaded := crossingsByParticipant[crossing.ParticipantID]; !loaded {
			existing, err := p.repos.NormalizedRead.GetByParticipant(ctx, event.ID, crossing.ParticipantID)
			if err != nil {
				return 0, fmt.Errorf("failed to load crossings: %w", err)
			}
			crossingsByParticipant[crossing.ParticipantID] = existing
		}
		crossingsByParticipant[crossing.ParticipantID] = append(crossingsByParticipant[crossing.ParticipantID], crossing)
	}

	err = p.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, crossing := range created {
			if err := p.repos.NormalizedRead.CreateWithTx(ctx, tx, crossing); err != nil {
				return err
			}
		}
		// A start reference that appeared this batch backfills net
		// times on crossings persisted before it, a late-uploaded 5K
		// read included. The in-memory slices get the same values so
		// the rebuild below agrees with the rows.
		for participantID, start := range newStarts {
			if err := p.repos.NormalizedRead.RecomputeNetTimesWithTx(ctx, tx, event.ID, participantID, start); err != nil {
				return err
			}
			refreshNetTimes(crossingsByParticipant[participantID], start)
		}
		for participantID, crossings := range crossingsByParticipant {
			if err := p.engine.RebuildParticipantSplitsWithTx(ctx, tx, event, checkpoints, participantID, crossings); err != nil {
				return err
			}
		}
		return p.repos.RawRead.MarkProcessedWithTx(ctx, tx, processedIDs)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	dedupBatch.Commit()

	stats.RecordCrossings(len(created))
	stats.RecordEchoes(echoes)
	metrics.RecordBatch(len(processedIDs), len(created), echoes, time.Since(start).Seconds())

	if err := p.afterCommit(ctx, event, created, resolved); err != nil {
		return len(processedIDs), err
	}

	return len(processedIDs), nil
}

// resolveBatch attributes each read to a participant and checkpoint via
// the assignment intervals at the read's own timestamp. Unresolvable
// reads are left pending, never rejected.
func (p *Processor) resolveBatch(
	ctx context.Context,
	eventID uuid.UUID,
	checkpointByID map[uuid.UUID]*models.Checkpoint,
	reads []*models.RawRead,
) ([]resolvedRead, int) {
	var (
		resolved []resolvedRead
		pending  int
	)
	for _, read := range reads {
		participantID, ok, err := p.resolver.ResolveParticipant(ctx, eventID, read.ChipCode, read.Timestamp)
		if err != nil || !ok {
			if err != nil {
				p.logger.WithError(err).WithField("raw_read_id", read.ID).Error("Chip resolution failed")
			}
			pending++
			continue
		}

		checkpointID, ok, err := p.resolver.ResolveCheckpoint(ctx, eventID, read.ReaderDeviceID, read.Timestamp)
		if err != nil || !ok {
			if err != nil {
				p.logger.WithError(err).WithField("raw_read_id", read.ID).Error("Reader resolution failed")
			}
			pending++
			continue
		}

		checkpoint := checkpointByID[checkpointID]
		if checkpoint == nil {
			pending++
			continue
		}

		resolved = append(resolved, resolvedRead{
			read:          read,
			participantID: participantID,
			checkpoint:    checkpoint,
		})
	}
	return resolved, pending
}

// loadParticipantContext loads the race gun starts and existing start
// crossings for every participant in the batch. Lanes receive disjoint
// copies of the start times via splitStartTimes; these maps are not
// written after this point.
func (p *Processor) loadParticipantContext(
	ctx context.Context,
	eventID uuid.UUID,
	checkpoints []*models.Checkpoint,
	resolved []resolvedRead,
) (map[uuid.UUID]*models.Race, map[uuid.UUID]*time.Time, error) {
	var startCheckpoint *models.Checkpoint
	for _, cp := range checkpoints {
		if cp.IsStart() {
			startCheckpoint = cp
			break
		}
	}

	races := make(map[uuid.UUID]*models.Race)
	startTimes := make(map[uuid.UUID]*time.Time)
	for _, rr := range resolved {
		if _, done := races[rr.participantID]; done {
			continue
		}

		participant, err := p.repos.Participant.GetByID(ctx, rr.participantID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load participant %s: %w", rr.participantID, err)
		}
		race, err := p.repos.Event.GetRace(ctx, participant.RaceID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load race %s: %w", participant.RaceID, err)
		}
		races[rr.participantID] = race

		if startCheckpoint != nil {
			latest, err := p.repos.NormalizedRead.LatestAtCheckpoint(ctx, rr.participantID, startCheckpoint.ID)
			if err != nil && !errors.Is(err, models.ErrNotFound) {
				return nil, nil, fmt.Errorf("failed to load start crossing: %w", err)
			}
			if latest != nil && !latest.IsSuperseded() {
				t := latest.ChipTime
				startTimes[rr.participantID] = &t
			} else {
				startTimes[rr.participantID] = nil
			}
		} else {
			startTimes[rr.participantID] = nil
		}
	}
	return races, startTimes, nil
}

// partition splits resolved reads across worker lanes by participant.
// FetchUnprocessed orders by timestamp, appends preserve that order, so
// each lane sees one participant's reads oldest first.
func (p *Processor) partition(resolved []resolvedRead) [][]resolvedRead {
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	lanes := make([][]resolvedRead, workers)
	for _, rr := range resolved {
		lanes[laneFor(rr.participantID, workers)] = append(lanes[laneFor(rr.participantID, workers)], rr)
	}
	return lanes
}

func laneFor(participantID uuid.UUID, workers int) int {
	h := fnv.New32a()
	h.Write(participantID[:])
	return int(h.Sum32() % uint32(workers))
}

type laneOutput struct {
	created   []*models.NormalizedRead
	processed []uuid.UUID
	// starts holds participants whose first start reference appeared in
	// this lane, keyed to the discovered chip time.
	starts map[uuid.UUID]time.Time
	echoes int
	err    error
}

// splitStartTimes gives each lane a private copy of the start-time
// entries for its own participants. Lane participant sets are disjoint,
// so the copies partition the source map; lanes mutate only their copy
// and the source stays read-only while they run.
func splitStartTimes(lanes [][]resolvedRead, startTimes map[uuid.UUID]*time.Time) []map[uuid.UUID]*time.Time {
	perLane := make([]map[uuid.UUID]*time.Time, len(lanes))
	for i, lane := range lanes {
		perLane[i] = make(map[uuid.UUID]*time.Time, len(lane))
		for _, rr := range lane {
			perLane[i][rr.participantID] = startTimes[rr.participantID]
		}
	}
	return perLane
}

// refreshNetTimes re-derives net times in memory against a start
// reference, floored at zero like the normalizer, so the in-transaction
// split rebuild agrees with the rows just backfilled.
func refreshNetTimes(crossings []*models.NormalizedRead, start time.Time) {
	for _, c := range crossings {
		ms := c.ChipTime.Sub(start).Milliseconds()
		if ms < 0 {
			ms = 0
		}
		net := ms
		c.NetTimeMs = &net
	}
}

// runLane deduplicates and normalizes one lane's reads in order. Echoes
// are consumed without producing a crossing; a participant's first
// accepted start crossing becomes the net-time reference for the reads
// behind it in the same lane, and is reported back so the batch commit
// can backfill crossings persisted before it.
func (p *Processor) runLane(
	ctx context.Context,
	batch *service.DedupBatch,
	lane []resolvedRead,
	races map[uuid.UUID]*models.Race,
	startTimes map[uuid.UUID]*time.Time,
) laneOutput {
	out := laneOutput{starts: make(map[uuid.UUID]time.Time)}
	for _, rr := range lane {
		decision, err := batch.Check(ctx, rr.checkpoint, rr.participantID, rr.read.Timestamp)
		if err != nil {
			out.err = err
			return out
		}
		if !decision.Accept {
			out.processed = append(out.processed, rr.read.ID)
			out.echoes++
			continue
		}

		race := races[rr.participantID]
		crossing := p.normalizer.Normalize(
			rr.read, rr.participantID, rr.checkpoint.ID,
			decision.LoopIndex,
			race.GunStart, startTimes[rr.participantID],
		)
		out.created = append(out.created, crossing)
		out.processed = append(out.processed, rr.read.ID)

		if rr.checkpoint.IsStart() && startTimes[rr.participantID] == nil {
			t := rr.read.Timestamp
			startTimes[rr.participantID] = &t
			out.starts[rr.participantID] = t
		}
	}
	return out
}

// afterCommit refreshes the remaining derived state for every
// participant touched by the batch: live result status, the processing
// watermark, and debounced rank requests for each affected checkpoint.
// Splits are already committed with the batch; everything here is
// recomputed on the next cycle if the process dies first.
func (p *Processor) afterCommit(
	ctx context.Context,
	event *models.Event,
	created []*models.NormalizedRead,
	resolved []resolvedRead,
) error {
	touched := make(map[uuid.UUID]bool)
	scopes := make(map[uuid.UUID]bool)
	var watermark time.Time
	for _, crossing := range created {
		touched[crossing.ParticipantID] = true
		scopes[crossing.CheckpointID] = true
		if crossing.ChipTime.After(watermark) {
			watermark = crossing.ChipTime
		}
	}
	for _, rr := range resolved {
		if rr.read.Timestamp.After(watermark) {
			watermark = rr.read.Timestamp
		}
	}

	races := make(map[uuid.UUID]*models.Race)
	for participantID := range touched {
		participant, err := p.repos.Participant.GetByID(ctx, participantID)
		if err != nil {
			return fmt.Errorf("failed to load participant: %w", err)
		}
		race, ok := races[participant.RaceID]
		if !ok {
			race, err = p.repos.Event.GetRace(ctx, participant.RaceID)
			if err != nil {
				return fmt.Errorf("failed to load race: %w", err)
			}
			races[participant.RaceID] = race
		}
		if err := p.engine.SyncParticipant(ctx, event, race, participant); err != nil {
			return err
		}
	}

	for checkpointID := range scopes {
		p.debouncer.Request(event.ID, checkpointID)
	}
	metrics.UpdatePendingRankScopes(float64(p.debouncer.Pending()))

	if !watermark.IsZero() {
		if err := p.repos.Watermark.Set(ctx, event.ID, watermark); err != nil {
			return fmt.Errorf("failed to advance watermark: %w", err)
		}
	}

	return nil
}

func (p *Processor) updateWatermarkAge(ctx context.Context, eventID uuid.UUID) {
	watermark, err := p.repos.Watermark.Get(ctx, eventID)
	if err != nil || watermark.IsZero() {
		return
	}
	metrics.UpdateWatermarkAge(eventID.String(), time.Since(watermark).Seconds())
}
