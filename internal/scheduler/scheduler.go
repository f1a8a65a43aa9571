// Package scheduler runs the recurring jobs of the timing pipeline on
// a cron: the processing cycle, debounced rank flushes, and leaderboard
// pushes.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/finish-line/internal/notify"
	"github.com/yourusername/finish-line/internal/pipeline"
	"github.com/yourusername/finish-line/internal/ranking"
	"github.com/yourusername/finish-line/internal/repository"
)

// Scheduler manages the recurring pipeline jobs
type Scheduler struct {
	cron            *cron.Cron
	processor       *pipeline.Processor
	debouncer       *ranking.Debouncer
	publisher       *notify.Publisher
	events          repository.EventRepository
	logger          *logrus.Entry
	mu              sync.RWMutex
	isRunning       bool
	jobIDs          []cron.EntryID
	gracefulTimeout time.Duration
}

// NewScheduler creates a new scheduler
func NewScheduler(
	processor *pipeline.Processor,
	debouncer *ranking.Debouncer,
	publisher *notify.Publisher,
	events repository.EventRepository,
	baseLogger *logrus.Logger,
) *Scheduler {
	return &Scheduler{
		cron:            cron.New(cron.WithLocation(time.UTC)),
		processor:       processor,
		debouncer:       debouncer,
		publisher:       publisher,
		events:          events,
		logger:          baseLogger.WithField("component", "scheduler"),
		jobIDs:          make([]cron.EntryID, 0),
		gracefulTimeout: 30 * time.Second,
	}
}

// ScheduleProcessing schedules the pipeline cycle that drains pending
// reads for every active event
func (s *Scheduler) ScheduleProcessing(intervalSeconds int, batchTimeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	if intervalSeconds < 1 {
		intervalSeconds = 1
	}

	jobFunc := func() {
		ctx, cancel := context.WithTimeout(context.Background(), batchTimeout*4)
		defer cancel()

		if err := s.processor.RunCycle(ctx); err != nil {
			s.logger.WithError(err).Error("Processing cycle failed")
		}
	}

	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", intervalSeconds), jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithField("interval_seconds", intervalSeconds).Info("Scheduled processing cycle")

	return nil
}

// ScheduleRankFlush schedules the debounced rank recomputation flush
func (s *Scheduler) ScheduleRankFlush(intervalSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	if intervalSeconds < 1 {
		intervalSeconds = 1
	}

	jobFunc := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(intervalSeconds*2)*time.Second)
		defer cancel()

		if err := s.debouncer.Flush(ctx); err != nil {
			s.logger.WithError(err).Error("Rank flush failed")
		}
	}

	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", intervalSeconds), jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithField("interval_seconds", intervalSeconds).Info("Scheduled rank flush")

	return nil
}

// ScheduleLeaderboardPush schedules periodic leaderboard snapshots for
// every active event
func (s *Scheduler) ScheduleLeaderboardPush(intervalSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	if intervalSeconds < 5 {
		intervalSeconds = 5
	}

	jobFunc := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(intervalSeconds)*time.Second)
		defer cancel()

		eventIDs, err := s.events.ListActiveEventIDs(ctx)
		if err != nil {
			s.logger.WithError(err).Error("Failed to list events for leaderboard push")
			return
		}
		for _, eventID := range eventIDs {
			if err := s.publisher.PushEvent(ctx, eventID); err != nil {
				s.logger.WithError(err).WithField("event_id", eventID).Error("Leaderboard push failed")
			}
		}
	}

	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", intervalSeconds), jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithField("interval_seconds", intervalSeconds).Info("Scheduled leaderboard push")

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")

	return nil
}

// Stop gracefully stops the scheduler and flushes any pending rank work
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.gracefulTimeout)
	defer cancel()

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out with jobs still running")
	}

	if err := s.debouncer.FlushAll(ctx); err != nil {
		s.logger.WithError(err).Error("Final rank flush failed")
	}

	s.isRunning = false
	s.logger.Info("Scheduler stopped")

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRun returns the time of the next scheduled job run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning || len(s.jobIDs) == 0 {
		return time.Time{}
	}

	nextRun := time.Time{}
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			nextTime := entry.Next
			if nextRun.IsZero() || nextTime.Before(nextRun) {
				nextRun = nextTime
			}
		}
	}

	return nextRun
}
