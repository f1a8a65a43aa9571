package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/finish-line/internal/models"
	"github.com/yourusername/finish-line/internal/repository"
)

// Decision is the deduplicator's verdict on one resolved read.
type Decision struct {
	// Accept is false when the read is antenna echo of an already
	// accepted crossing and must not produce a NormalizedRead.
	Accept bool
	// LoopIndex is the zero-based pass number at the checkpoint,
	// meaningful only when Accept is true.
	LoopIndex int
}

type dedupKey struct {
	participantID uuid.UUID
	checkpointID  uuid.UUID
}

type dedupState struct {
	lastAccepted time.Time
	accepted     int
	loaded       bool
}

// Deduplicator collapses repeated reads of one chip at one checkpoint
// within the checkpoint's minimum-gap window into a single logical
// crossing. First read wins: reads are checked in ascending timestamp
// order, so the earliest within a window is the one that survives.
// Only committed state lives here; decisions are made on a DedupBatch
// and folded in when the batch's transaction lands, so an abandoned
// batch leaves no trace and its reads are re-judged on retry.
type Deduplicator struct {
	reads repository.NormalizedReadRepository

	mu    sync.Mutex
	state map[dedupKey]*dedupState
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator(reads repository.NormalizedReadRepository) *Deduplicator {
	return &Deduplicator{
		reads: reads,
		state: make(map[dedupKey]*dedupState),
	}
}

// Begin opens the staging window for one processing batch. Discard the
// batch without calling Commit when its transaction fails.
func (d *Deduplicator) Begin() *DedupBatch {
	return &DedupBatch{
		d:      d,
		staged: make(map[dedupKey]*dedupState),
	}
}

// Reset clears in-memory dedup state, used before a replay so the
// replayed reads are judged against the store, not a stale window.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = make(map[dedupKey]*dedupState)
}

// stateFor returns the committed window state for a key, loading the
// persisted crossing history on first touch.
func (d *Deduplicator) stateFor(ctx context.Context, key dedupKey) (*dedupState, error) {
	d.mu.Lock()
	st, ok := d.state[key]
	if !ok {
		st = &dedupState{}
		d.state[key] = st
	}
	d.mu.Unlock()

	if st.loaded {
		return st, nil
	}

	count, err := d.reads.CountAtCheckpoint(ctx, key.participantID, key.checkpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dedup state: %w", err)
	}
	st.accepted = count

	if count > 0 {
		latest, err := d.reads.LatestAtCheckpoint(ctx, key.participantID, key.checkpointID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("failed to load dedup state: %w", err)
		}
		if latest != nil {
			st.lastAccepted = latest.ChipTime
		}
	}

	st.loaded = true
	return st, nil
}

// DedupBatch stages window decisions for one batch of reads. State is
// keyed per (participant, checkpoint); the pipeline's partition lanes
// guarantee a single goroutine touches any one key at a time, the mutex
// only guards the staging map across lanes.
type DedupBatch struct {
	d *Deduplicator

	mu     sync.Mutex
	staged map[dedupKey]*dedupState
}

// Check decides whether a resolved read at chipTime is a new crossing
// or echo of a previous one. A zero MinGapMs keeps every read, the
// correct behaviour for loop courses where repeat passes are
// legitimate. The decision is staged against a snapshot of the
// committed window; committed state is never touched here.
func (b *DedupBatch) Check(ctx context.Context, cp *models.Checkpoint, participantID uuid.UUID, chipTime time.Time) (Decision, error) {
	key := dedupKey{participantID: participantID, checkpointID: cp.ID}

	b.mu.Lock()
	st, ok := b.staged[key]
	b.mu.Unlock()
	if !ok {
		committed, err := b.d.stateFor(ctx, key)
		if err != nil {
			return Decision{}, err
		}
		snapshot := *committed
		st = &snapshot
		b.mu.Lock()
		b.staged[key] = st
		b.mu.Unlock()
	}

	if st.accepted > 0 && cp.DedupEnabled() {
		gap := chipTime.Sub(st.lastAccepted)
		if gap < time.Duration(cp.MinGapMs)*time.Millisecond {
			return Decision{Accept: false}, nil
		}
	}

	decision := Decision{Accept: true, LoopIndex: st.accepted}
	st.lastAccepted = chipTime
	st.accepted++
	return decision, nil
}

// Commit folds the staged decisions into the committed window state.
// Call only after the batch's transaction has landed.
func (b *DedupBatch) Commit() {
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	for key, st := range b.staged {
		b.d.state[key] = st
	}
}
