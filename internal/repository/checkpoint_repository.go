package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/finish-line/internal/database"
	"github.com/yourusername/finish-line/internal/models"
)

const errScanCheckpoint = "failed to scan checkpoint: %w"

const checkpointColumns = `id, event_id, name, type, distance_from_start, min_gap_ms,
	       sort_order, is_mandatory, created_at, created_by, updated_at, updated_by,
	       is_active, is_deleted`

// PostgresCheckpointRepository implements CheckpointRepository for PostgreSQL
type PostgresCheckpointRepository struct {
	db *database.DB
}

// NewPostgresCheckpointRepository creates a new checkpoint repository
func NewPostgresCheckpointRepository(db *database.DB) CheckpointRepository {
	return &PostgresCheckpointRepository{db: db}
}

// GetByID retrieves a checkpoint by ID
func (r *PostgresCheckpointRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT %s FROM checkpoints WHERE id = $1`, checkpointColumns)

	cp := &models.Checkpoint{}
	err := r.db.GetPool().QueryRow(ctx, query, id).Scan(
		&cp.ID, &cp.EventID, &cp.Name, &cp.Type, &cp.DistanceFromStart, &cp.MinGapMs,
		&cp.SortOrder, &cp.IsMandatory, &cp.CreatedAt, &cp.CreatedBy, &cp.UpdatedAt,
		&cp.UpdatedBy, &cp.IsActive, &cp.IsDeleted,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return cp, nil
}

// GetByEventID retrieves live checkpoints for an event ordered by
// distance from start
func (r *PostgresCheckpointRepository) GetByEventID(ctx context.Context, eventID uuid.UUID) ([]*models.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM checkpoints
		WHERE event_id = $1 AND is_active = true AND is_deleted = false
		ORDER BY distance_from_start ASC, sort_order ASC
	`, checkpointColumns)

	rows, err := r.db.GetPool().Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*models.Checkpoint
	for rows.Next() {
		cp := &models.Checkpoint{}
		err := rows.Scan(
			&cp.ID, &cp.EventID, &cp.Name, &cp.Type, &cp.DistanceFromStart, &cp.MinGapMs,
			&cp.SortOrder, &cp.IsMandatory, &cp.CreatedAt, &cp.CreatedBy, &cp.UpdatedAt,
			&cp.UpdatedBy, &cp.IsActive, &cp.IsDeleted,
		)
		if err != nil {
			return nil, fmt.Errorf(errScanCheckpoint, err)
		}
		checkpoints = append(checkpoints, cp)
	}

	return checkpoints, rows.Err()
}
