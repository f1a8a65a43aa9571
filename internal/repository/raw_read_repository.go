package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/finish-line/internal/database"
	"github.com/yourusername/finish-line/internal/models"
)

const errScanRawRead = "failed to scan raw read: %w"

const rawReadColumns = `id, event_id, reader_device_id, chip_code, timestamp,
	       signal_strength, antenna_port, processed, created_at`

// PostgresRawReadRepository implements RawReadRepository for PostgreSQL
type PostgresRawReadRepository struct {
	db *database.DB
}

// NewPostgresRawReadRepository creates a new raw read repository
func NewPostgresRawReadRepository(db *database.DB) RawReadRepository {
	return &PostgresRawReadRepository{db: db}
}

// Append inserts a single antenna observation. Appends are independent
// rows, so concurrent readers never contend on shared state.
func (r *PostgresRawReadRepository) Append(ctx context.Context, read *models.RawRead) error {
	query := `
		INSERT INTO raw_reads (id, event_id, reader_device_id, chip_code, timestamp, signal_strength, antenna_port, processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)
	`

	_, err := r.db.GetPool().Exec(ctx, query,
		read.ID, read.EventID, read.ReaderDeviceID, read.ChipCode, read.Timestamp,
		read.SignalStrength, read.AntennaPort,
	)
	if err != nil {
		return fmt.Errorf("failed to append raw read: %w", err)
	}

	return nil
}

// AppendBatch inserts a burst of observations in one round trip
func (r *PostgresRawReadRepository) AppendBatch(ctx context.Context, reads []*models.RawRead) error {
	if len(reads) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO raw_reads (id, event_id, reader_device_id, chip_code, timestamp, signal_strength, antenna_port, processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)
	`
	for _, read := range reads {
		batch.Queue(query,
			read.ID, read.EventID, read.ReaderDeviceID, read.ChipCode, read.Timestamp,
			read.SignalStrength, read.AntennaPort,
		)
	}

	results := r.db.GetPool().SendBatch(ctx, batch)
	defer results.Close()

	for range reads {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to append raw read batch: %w", err)
		}
	}

	return nil
}

// FetchUnprocessed retrieves unprocessed reads for an event ordered by
// timestamp, for batch consumption
func (r *PostgresRawReadRepository) FetchUnprocessed(ctx context.Context, eventID uuid.UUID, limit int) ([]*models.RawRead, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM raw_reads
		WHERE event_id = $1 AND processed = false
		ORDER BY timestamp ASC
		LIMIT $2
	`, rawReadColumns)

	rows, err := r.db.GetPool().Query(ctx, query, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed reads: %w", err)
	}
	defer rows.Close()

	var reads []*models.RawRead
	for rows.Next() {
		read := &models.RawRead{}
		err := rows.Scan(
			&read.ID, &read.EventID, &read.ReaderDeviceID, &read.ChipCode, &read.Timestamp,
			&read.SignalStrength, &read.AntennaPort, &read.Processed, &read.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf(errScanRawRead, err)
		}
		reads = append(reads, read)
	}

	return reads, rows.Err()
}

// CountUnprocessed returns the backlog size for an event
func (r *PostgresRawReadRepository) CountUnprocessed(ctx context.Context, eventID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM raw_reads WHERE event_id = $1 AND processed = false`

	var count int
	if err := r.db.GetPool().QueryRow(ctx, query, eventID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unprocessed reads: %w", err)
	}

	return count, nil
}

// MarkProcessed flips the processed flag for the given reads. Idempotent:
// already-processed ids are silently skipped, supporting at-least-once
// redelivery.
func (r *PostgresRawReadRepository) MarkProcessed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE raw_reads SET processed = true WHERE id = ANY($1) AND processed = false`

	_, err := r.db.GetPool().Exec(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to mark reads processed: %w", err)
	}

	return nil
}

// MarkProcessedWithTx is MarkProcessed inside the batch-commit transaction
func (r *PostgresRawReadRepository) MarkProcessedWithTx(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE raw_reads SET processed = true WHERE id = ANY($1) AND processed = false`

	_, err := tx.Exec(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to mark reads processed within transaction: %w", err)
	}

	return nil
}

// ClearProcessed resets the processed flag for an event to replay its
// audit trail. Rows are never deleted.
func (r *PostgresRawReadRepository) ClearProcessed(ctx context.Context, eventID uuid.UUID) error {
	query := `UPDATE raw_reads SET processed = false WHERE event_id = $1 AND processed = true`

	_, err := r.db.GetPool().Exec(ctx, query, eventID)
	if err != nil {
		return fmt.Errorf("failed to clear processed flags: %w", err)
	}

	return nil
}
