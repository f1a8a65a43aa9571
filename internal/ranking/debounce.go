package ranking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/finish-line/internal/metrics"
)

type scopeKey struct {
	eventID      uuid.UUID
	checkpointID uuid.UUID
}

// Debouncer coalesces rank recomputation requests per checkpoint.
// During a finish-line surge many crossings land within the same
// window; one recompute covers them all. Requests are cheap and
// lock-only; the work happens in Flush.
type Debouncer struct {
	engine   *Engine
	debounce time.Duration
	logger   *logrus.Entry

	mu      sync.Mutex
	pending map[scopeKey]time.Time
}

// NewDebouncer creates a debouncer with the given quiet window
func NewDebouncer(engine *Engine, debounce time.Duration, logger *logrus.Logger) *Debouncer {
	return &Debouncer{
		engine:   engine,
		debounce: debounce,
		logger:   logger.WithField("component", "rank_debouncer"),
		pending:  make(map[scopeKey]time.Time),
	}
}

// Request marks a checkpoint dirty. The first request in a burst
// starts the window; later ones ride along for free.
func (d *Debouncer) Request(eventID, checkpointID uuid.UUID) {
	key := scopeKey{eventID: eventID, checkpointID: checkpointID}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, waiting := d.pending[key]; !waiting {
		d.pending[key] = time.Now()
	}
}

// Flush recomputes every checkpoint whose window has elapsed. A failed
// recompute puts the scope back so the next flush retries it.
func (d *Debouncer) Flush(ctx context.Context) error {
	due := d.takeDue(time.Now())

	var firstErr error
	for key, requested := range due {
		start := time.Now()
		err := d.engine.RecomputeCheckpoint(ctx, key.eventID, key.checkpointID)
		metrics.RecordRankRecompute(time.Since(start).Seconds())
		if err != nil {
			d.logger.WithError(err).WithFields(map[string]interface{}{
				"event_id":      key.eventID,
				"checkpoint_id": key.checkpointID,
			}).Error("Rank recompute failed, will retry")
			d.requeue(key, requested)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	metrics.UpdatePendingRankScopes(float64(d.Pending()))
	return firstErr
}

// FlushAll ignores the window and drains everything pending. Used at
// shutdown and after a replay.
func (d *Debouncer) FlushAll(ctx context.Context) error {
	d.mu.Lock()
	for key := range d.pending {
		d.pending[key] = time.Time{}
	}
	d.mu.Unlock()

	return d.Flush(ctx)
}

// Pending returns the number of checkpoints awaiting recomputation
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer) takeDue(now time.Time) map[scopeKey]time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	due := make(map[scopeKey]time.Time)
	for key, requested := range d.pending {
		if now.Sub(requested) >= d.debounce {
			due[key] = requested
			delete(d.pending, key)
		}
	}
	return due
}

func (d *Debouncer) requeue(key scopeKey, requested time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, waiting := d.pending[key]; !waiting {
		d.pending[key] = requested
	}
}
