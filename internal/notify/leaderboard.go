// Package notify pushes live leaderboard snapshots to downstream
// display systems over webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/finish-line/internal/config"
	"github.com/yourusername/finish-line/internal/metrics"
	"github.com/yourusername/finish-line/internal/models"
	"github.com/yourusername/finish-line/internal/repository"
)

// LeaderboardEntry is one row of a pushed snapshot
type LeaderboardEntry struct {
	Rank         int     `json:"rank"`
	GenderRank   *int    `json:"gender_rank,omitempty"`
	CategoryRank *int    `json:"category_rank,omitempty"`
	Bib          int     `json:"bib"`
	FullName     string  `json:"full_name"`
	Gender       string  `json:"gender"`
	AgeCategory  string  `json:"age_category"`
	SplitTimeMs  int64   `json:"split_time_ms"`
	Pace         *string `json:"pace,omitempty"`
}

// LeaderboardSnapshot is the webhook payload for one checkpoint
type LeaderboardSnapshot struct {
	EventID        uuid.UUID          `json:"event_id"`
	CheckpointID   uuid.UUID          `json:"checkpoint_id"`
	CheckpointName string             `json:"checkpoint_name"`
	GeneratedAt    time.Time          `json:"generated_at"`
	Watermark      *time.Time         `json:"watermark,omitempty"`
	Entries        []LeaderboardEntry `json:"entries"`
}

// Publisher builds per-checkpoint leaderboard snapshots and POSTs them
// to every configured webhook. Delivery is best effort with retries;
// display systems tolerate a missed snapshot because the next push
// carries full state.
type Publisher struct {
	repos  *repository.Repositories
	cfg    *config.LeaderboardConfig
	client *retryablehttp.Client
	logger *logrus.Entry
}

// NewPublisher creates a new leaderboard publisher
func NewPublisher(repos *repository.Repositories, cfg *config.LeaderboardConfig, baseLogger *logrus.Logger) *Publisher {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = log.New(io.Discard, "", 0)

	return &Publisher{
		repos:  repos,
		cfg:    cfg,
		client: client,
		logger: baseLogger.WithField("component", "leaderboard"),
	}
}

// PushEvent publishes a snapshot per checkpoint for one event
func (p *Publisher) PushEvent(ctx context.Context, eventID uuid.UUID) error {
	if !p.cfg.Enabled || len(p.cfg.WebhookURLs) == 0 {
		return nil
	}

	checkpoints, err := p.repos.Checkpoint.GetByEventID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoints: %w", err)
	}
	participants, err := p.repos.Participant.GetByEventID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}

	var watermark *time.Time
	if w, err := p.repos.Watermark.Get(ctx, eventID); err == nil && !w.IsZero() {
		watermark = &w
	}

	var firstErr error
	for _, cp := range checkpoints {
		snapshot, err := p.buildSnapshot(ctx, eventID, cp, participants, watermark)
		if err != nil {
			p.logger.WithError(err).WithField("checkpoint_id", cp.ID).Error("Snapshot build failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(snapshot.Entries) == 0 {
			continue
		}
		if err := p.push(ctx, snapshot); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buildSnapshot assembles the top-N ranked field at one checkpoint
func (p *Publisher) buildSnapshot(
	ctx context.Context,
	eventID uuid.UUID,
	checkpoint *models.Checkpoint,
	participants []*models.Participant,
	watermark *time.Time,
) (*LeaderboardSnapshot, error) {
	splits, err := p.repos.SplitTime.GetByCheckpoint(ctx, eventID, checkpoint.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load splits: %w", err)
	}

	byParticipant := make(map[uuid.UUID]*models.Participant, len(participants))
	for _, participant := range participants {
		byParticipant[participant.ID] = participant
	}

	ranked := make([]*models.SplitTime, 0, len(splits))
	for _, s := range splits {
		if s.Rank == nil || s.Flagged {
			continue
		}
		if _, known := byParticipant[s.ParticipantID]; !known {
			continue
		}
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		return *ranked[i].Rank < *ranked[j].Rank
	})

	topN := p.cfg.TopN
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}

	entries := make([]LeaderboardEntry, 0, len(ranked))
	for _, s := range ranked {
		participant := byParticipant[s.ParticipantID]
		entry := LeaderboardEntry{
			Rank:         *s.Rank,
			GenderRank:   s.GenderRank,
			CategoryRank: s.CategoryRank,
			Bib:          participant.Bib,
			FullName:     participant.FullName,
			Gender:       string(participant.Gender),
			AgeCategory:  participant.AgeCategory,
			SplitTimeMs:  s.SplitTimeMs,
		}
		if s.Pace != nil {
			pace := s.Pace.String()
			entry.Pace = &pace
		}
		entries = append(entries, entry)
	}

	return &LeaderboardSnapshot{
		EventID:        eventID,
		CheckpointID:   checkpoint.ID,
		CheckpointName: checkpoint.Name,
		GeneratedAt:    time.Now().UTC(),
		Watermark:      watermark,
		Entries:        entries,
	}, nil
}

// push delivers one snapshot to every configured webhook
func (p *Publisher) push(ctx context.Context, snapshot *LeaderboardSnapshot) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	var firstErr error
	for _, url := range p.cfg.WebhookURLs {
		start := time.Now()
		if err := p.post(ctx, url, body); err != nil {
			p.logger.WithError(err).WithField("url", url).Error("Leaderboard push failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.RecordLeaderboardPush(time.Since(start).Seconds())
	}
	return firstErr
}

func (p *Publisher) post(ctx context.Context, url string, body []byte) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.AuthToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
