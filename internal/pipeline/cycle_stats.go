package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// CycleStats tracks statistics about one processing cycle
type CycleStats struct {
	mu        sync.RWMutex
	StartTime time.Time
	Duration  time.Duration
	Fetched   int
	Resolved  int
	Pending   int
	Crossings int
	Echoes    int
	Errors    int
}

// NewCycleStats creates a new stats tracker
func NewCycleStats() *CycleStats {
	return &CycleStats{
		StartTime: time.Now(),
	}
}

// RecordFetched adds fetched raw reads to the cycle total
func (s *CycleStats) RecordFetched(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fetched += n
}

// RecordResolved adds attributed reads to the cycle total
func (s *CycleStats) RecordResolved(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resolved += n
}

// RecordPending adds unresolvable reads left for a later cycle
func (s *CycleStats) RecordPending(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Pending += n
}

// RecordCrossings adds created crossings to the cycle total
func (s *CycleStats) RecordCrossings(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Crossings += n
}

// RecordEchoes adds dedup-suppressed reads to the cycle total
func (s *CycleStats) RecordEchoes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Echoes += n
}

// RecordError increments the error count
func (s *CycleStats) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors++
}

// String returns a formatted string representation of the cycle
func (s *CycleStats) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return fmt.Sprintf(
		"CycleStats{Fetched=%d, Resolved=%d, Pending=%d, Crossings=%d, Echoes=%d, Errors=%d, Duration=%v}",
		s.Fetched,
		s.Resolved,
		s.Pending,
		s.Crossings,
		s.Echoes,
		s.Errors,
		s.Duration,
	)
}
