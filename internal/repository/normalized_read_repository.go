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

const errScanNormalizedRead = "failed to scan normalized read: %w"

const normalizedReadColumns = `id, event_id, participant_id, checkpoint_id, raw_read_id,
	       loop_index, chip_time, gun_time_ms, net_time_ms, is_manual_entry,
	       manual_entry_reason, superseded_by, created_at`

const insertNormalizedRead = `
	INSERT INTO normalized_reads (id, event_id, participant_id, checkpoint_id, raw_read_id,
	       loop_index, chip_time, gun_time_ms, net_time_ms, is_manual_entry, manual_entry_reason)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (participant_id, checkpoint_id, loop_index) WHERE superseded_by IS NULL
	DO NOTHING
`

// PostgresNormalizedReadRepository implements NormalizedReadRepository for PostgreSQL
type PostgresNormalizedReadRepository struct {
	db *database.DB
}

// NewPostgresNormalizedReadRepository creates a new normalized read repository
func NewPostgresNormalizedReadRepository(db *database.DB) NormalizedReadRepository {
	return &PostgresNormalizedReadRepository{db: db}
}

// Create inserts a normalized crossing. The partial unique index on
// (participant, checkpoint, loop) makes re-insertion a no-op, so
// reprocessing the same batch cannot create duplicates.
func (r *PostgresNormalizedReadRepository) Create(ctx context.Context, read *models.NormalizedRead) error {
	_, err := r.db.GetPool().Exec(ctx, insertNormalizedRead,
		read.ID, read.EventID, read.ParticipantID, read.CheckpointID, read.RawReadID,
		read.LoopIndex, read.ChipTime, read.GunTimeMs, read.NetTimeMs,
		read.IsManualEntry, read.ManualEntryReason,
	)
	if err != nil {
		return fmt.Errorf("failed to create normalized read: %w", err)
	}

	return nil
}

// CreateWithTx inserts a normalized crossing using a provided transaction
func (r *PostgresNormalizedReadRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, read *models.NormalizedRead) error {
	_, err := tx.Exec(ctx, insertNormalizedRead,
		read.ID, read.EventID, read.ParticipantID, read.CheckpointID, read.RawReadID,
		read.LoopIndex, read.ChipTime, read.GunTimeMs, read.NetTimeMs,
		read.IsManualEntry, read.ManualEntryReason,
	)
	if err != nil {
		return fmt.Errorf("failed to create normalized read within transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a normalized read by ID
func (r *PostgresNormalizedReadRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.NormalizedRead, error) {
	query := fmt.Sprintf(`SELECT %s FROM normalized_reads WHERE id = $1`, normalizedReadColumns)

	read := &models.NormalizedRead{}
	err := r.db.GetPool().QueryRow(ctx, query, id).Scan(
		&read.ID, &read.EventID, &read.ParticipantID, &read.CheckpointID, &read.RawReadID,
		&read.LoopIndex, &read.ChipTime, &read.GunTimeMs, &read.NetTimeMs, &read.IsManualEntry,
		&read.ManualEntryReason, &read.SupersededBy, &read.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get normalized read: %w", err)
	}

	return read, nil
}

// GetByParticipant retrieves live crossings for a participant ordered by chip time
func (r *PostgresNormalizedReadRepository) GetByParticipant(ctx context.Context, eventID, participantID uuid.UUID) ([]*models.NormalizedRead, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM normalized_reads
		WHERE event_id = $1 AND participant_id = $2 AND superseded_by IS NULL
		ORDER BY chip_time ASC
	`, normalizedReadColumns)

	rows, err := r.db.GetPool().Query(ctx, query, eventID, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query normalized reads by participant: %w", err)
	}
	defer rows.Close()

	return scanNormalizedReads(rows)
}

// GetByCheckpoint retrieves live crossings at a checkpoint for recomputation
func (r *PostgresNormalizedReadRepository) GetByCheckpoint(ctx context.Context, eventID, checkpointID uuid.UUID) ([]*models.NormalizedRead, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM normalized_reads
		WHERE event_id = $1 AND checkpoint_id = $2 AND superseded_by IS NULL
		ORDER BY chip_time ASC
	`, normalizedReadColumns)

	rows, err := r.db.GetPool().Query(ctx, query, eventID, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to query normalized reads by checkpoint: %w", err)
	}
	defer rows.Close()

	return scanNormalizedReads(rows)
}

// ExistsForRawRead reports whether a raw read already produced a crossing
func (r *PostgresNormalizedReadRepository) ExistsForRawRead(ctx context.Context, rawReadID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM normalized_reads WHERE raw_read_id = $1)`

	var exists bool
	if err := r.db.GetPool().QueryRow(ctx, query, rawReadID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check raw read existence: %w", err)
	}

	return exists, nil
}

// LatestAtCheckpoint retrieves the most recent accepted crossing for the
// (participant, checkpoint) pair
func (r *PostgresNormalizedReadRepository) LatestAtCheckpoint(ctx context.Context, participantID, checkpointID uuid.UUID) (*models.NormalizedRead, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM normalized_reads
		WHERE participant_id = $1 AND checkpoint_id = $2 AND superseded_by IS NULL
		ORDER BY chip_time DESC
		LIMIT 1
	`, normalizedReadColumns)

	read := &models.NormalizedRead{}
	err := r.db.GetPool().QueryRow(ctx, query, participantID, checkpointID).Scan(
		&read.ID, &read.EventID, &read.ParticipantID, &read.CheckpointID, &read.RawReadID,
		&read.LoopIndex, &read.ChipTime, &read.GunTimeMs, &read.NetTimeMs, &read.IsManualEntry,
		&read.ManualEntryReason, &read.SupersededBy, &read.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest crossing: %w", err)
	}

	return read, nil
}

// CountAtCheckpoint counts accepted crossings for loop index assignment
func (r *PostgresNormalizedReadRepository) CountAtCheckpoint(ctx context.Context, participantID, checkpointID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM normalized_reads
		WHERE participant_id = $1 AND checkpoint_id = $2 AND superseded_by IS NULL
	`

	var count int
	if err := r.db.GetPool().QueryRow(ctx, query, participantID, checkpointID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count crossings: %w", err)
	}

	return count, nil
}

// SupersedeWithTx marks an automatic crossing as replaced by a manual entry
func (r *PostgresNormalizedReadRepository) SupersedeWithTx(ctx context.Context, tx pgx.Tx, id, supersededBy uuid.UUID) error {
	query := `UPDATE normalized_reads SET superseded_by = $2 WHERE id = $1 AND superseded_by IS NULL`

	commandTag, err := tx.Exec(ctx, query, id, supersededBy)
	if err != nil {
		return fmt.Errorf("failed to supersede normalized read: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// RecomputeNetTimesWithTx re-derives net times for every live crossing
// of one participant against a start reference that arrived or changed
// after the crossings were persisted. Floored at zero, matching the
// normalizer.
func (r *PostgresNormalizedReadRepository) RecomputeNetTimesWithTx(ctx context.Context, tx pgx.Tx, eventID, participantID uuid.UUID, start time.Time) error {
	query := `
		UPDATE normalized_reads
		SET net_time_ms = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM (chip_time - $3::timestamptz)) * 1000))::bigint
		WHERE event_id = $1 AND participant_id = $2 AND superseded_by IS NULL
	`

	_, err := tx.Exec(ctx, query, eventID, participantID, start)
	if err != nil {
		return fmt.Errorf("failed to recompute net times: %w", err)
	}

	return nil
}

// scanNormalizedReads drains a result set into models
func scanNormalizedReads(rows pgx.Rows) ([]*models.NormalizedRead, error) {
	var reads []*models.NormalizedRead
	for rows.Next() {
		read := &models.NormalizedRead{}
		err := rows.Scan(
			&read.ID, &read.EventID, &read.ParticipantID, &read.CheckpointID, &read.RawReadID,
			&read.LoopIndex, &read.ChipTime, &read.GunTimeMs, &read.NetTimeMs, &read.IsManualEntry,
			&read.ManualEntryReason, &read.SupersededBy, &read.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf(errScanNormalizedRead, err)
		}
		reads = append(reads, read)
	}

	return reads, rows.Err()
}
