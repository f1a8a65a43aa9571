package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/finish-line/internal/database"
	"github.com/yourusername/finish-line/internal/models"
)

// PostgresWatermarkRepository implements WatermarkRepository for PostgreSQL
type PostgresWatermarkRepository struct {
	db *database.DB
}

// NewPostgresWatermarkRepository creates a new watermark repository
func NewPostgresWatermarkRepository(db *database.DB) WatermarkRepository {
	return &PostgresWatermarkRepository{db: db}
}

// Set advances the per-event processing watermark. Consumers read this
// to know how current the derived data is.
func (r *PostgresWatermarkRepository) Set(ctx context.Context, eventID uuid.UUID, processedAt time.Time) error {
	query := `
		INSERT INTO event_watermarks (event_id, last_processed_at)
		VALUES ($1, $2)
		ON CONFLICT (event_id)
		DO UPDATE SET last_processed_at = GREATEST(event_watermarks.last_processed_at, EXCLUDED.last_processed_at)
	`

	_, err := r.db.GetPool().Exec(ctx, query, eventID, processedAt)
	if err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}

	return nil
}

// Get retrieves the last completed processing time for an event
func (r *PostgresWatermarkRepository) Get(ctx context.Context, eventID uuid.UUID) (time.Time, error) {
	query := `SELECT last_processed_at FROM event_watermarks WHERE event_id = $1`

	var processedAt time.Time
	err := r.db.GetPool().QueryRow(ctx, query, eventID).Scan(&processedAt)
	if err == pgx.ErrNoRows {
		return time.Time{}, models.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get watermark: %w", err)
	}

	return processedAt, nil
}
