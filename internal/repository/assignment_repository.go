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

// PostgresChipAssignmentRepository implements ChipAssignmentRepository for PostgreSQL
type PostgresChipAssignmentRepository struct {
	db *database.DB
}

// NewPostgresChipAssignmentRepository creates a new chip assignment repository
func NewPostgresChipAssignmentRepository(db *database.DB) ChipAssignmentRepository {
	return &PostgresChipAssignmentRepository{db: db}
}

// FindActiveAt resolves a chip code at an instant using the interval
// predicate assigned_at <= t < unassigned_at (open intervals match any
// later instant). Interval overlap, not "most recent row": assignments
// inserted retroactively resolve correctly on reprocessing.
func (r *PostgresChipAssignmentRepository) FindActiveAt(ctx context.Context, eventID uuid.UUID, chipCode string, at time.Time) (*models.ChipAssignment, error) {
	query := `
		SELECT id, event_id, participant_id, chip_code, assigned_at, unassigned_at,
		       created_at, created_by, updated_at, updated_by, is_active, is_deleted
		FROM chip_assignments
		WHERE event_id = $1 AND chip_code = $2
		  AND assigned_at <= $3
		  AND (unassigned_at IS NULL OR unassigned_at > $3)
		  AND is_active = true AND is_deleted = false
		ORDER BY assigned_at DESC
		LIMIT 1
	`

	a := &models.ChipAssignment{}
	err := r.db.GetPool().QueryRow(ctx, query, eventID, chipCode, at).Scan(
		&a.ID, &a.EventID, &a.ParticipantID, &a.ChipCode, &a.AssignedAt, &a.UnassignedAt,
		&a.CreatedAt, &a.CreatedBy, &a.UpdatedAt, &a.UpdatedBy, &a.IsActive, &a.IsDeleted,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chip assignment: %w", err)
	}

	return a, nil
}

// PostgresReaderAssignmentRepository implements ReaderAssignmentRepository for PostgreSQL
type PostgresReaderAssignmentRepository struct {
	db *database.DB
}

// NewPostgresReaderAssignmentRepository creates a new reader assignment repository
func NewPostgresReaderAssignmentRepository(db *database.DB) ReaderAssignmentRepository {
	return &PostgresReaderAssignmentRepository{db: db}
}

// FindActiveAt resolves a reader device at an instant with the same
// interval predicate as chip assignments.
func (r *PostgresReaderAssignmentRepository) FindActiveAt(ctx context.Context, eventID uuid.UUID, readerDeviceID string, at time.Time) (*models.ReaderAssignment, error) {
	query := `
		SELECT id, event_id, checkpoint_id, reader_device_id, assigned_at, unassigned_at,
		       created_at, created_by, updated_at, updated_by, is_active, is_deleted
		FROM reader_assignments
		WHERE event_id = $1 AND reader_device_id = $2
		  AND assigned_at <= $3
		  AND (unassigned_at IS NULL OR unassigned_at > $3)
		  AND is_active = true AND is_deleted = false
		ORDER BY assigned_at DESC
		LIMIT 1
	`

	a := &models.ReaderAssignment{}
	err := r.db.GetPool().QueryRow(ctx, query, eventID, readerDeviceID, at).Scan(
		&a.ID, &a.EventID, &a.CheckpointID, &a.ReaderDeviceID, &a.AssignedAt, &a.UnassignedAt,
		&a.CreatedAt, &a.CreatedBy, &a.UpdatedAt, &a.UpdatedBy, &a.IsActive, &a.IsDeleted,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reader assignment: %w", err)
	}

	return a, nil
}
