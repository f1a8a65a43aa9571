package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/finish-line/internal/database"
	"github.com/yourusername/finish-line/internal/models"
)

const errScanSplitTime = "failed to scan split time: %w"

const splitTimeColumns = `id, event_id, participant_id, checkpoint_id, normalized_read_id,
	       loop_index, split_time_ms, segment_time_ms, pace, rank, gender_rank,
	       category_rank, flagged, updated_at`

// PostgresSplitTimeRepository implements SplitTimeRepository for PostgreSQL
type PostgresSplitTimeRepository struct {
	db *database.DB
}

// NewPostgresSplitTimeRepository creates a new split time repository
func NewPostgresSplitTimeRepository(db *database.DB) SplitTimeRepository {
	return &PostgresSplitTimeRepository{db: db}
}

// UpsertWithTx writes a derived split inside the batch-commit
// transaction. Splits are recomputable, so a conflicting row is simply
// replaced with the latest derivation; a row entering the flagged state
// also sheds its rank positions until the anomaly is resolved.
func (r *PostgresSplitTimeRepository) UpsertWithTx(ctx context.Context, tx pgx.Tx, split *models.SplitTime) error {
	query := `
		INSERT INTO split_times (id, event_id, participant_id, checkpoint_id, normalized_read_id,
		       loop_index, split_time_ms, segment_time_ms, pace, flagged, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (participant_id, checkpoint_id, loop_index)
		DO UPDATE SET normalized_read_id = EXCLUDED.normalized_read_id,
		              split_time_ms = EXCLUDED.split_time_ms,
		              segment_time_ms = EXCLUDED.segment_time_ms,
		              pace = EXCLUDED.pace,
		              flagged = EXCLUDED.flagged,
		              rank = CASE WHEN EXCLUDED.flagged THEN NULL ELSE split_times.rank END,
		              gender_rank = CASE WHEN EXCLUDED.flagged THEN NULL ELSE split_times.gender_rank END,
		              category_rank = CASE WHEN EXCLUDED.flagged THEN NULL ELSE split_times.category_rank END,
		              updated_at = NOW()
	`

	_, err := tx.Exec(ctx, query,
		split.ID, split.EventID, split.ParticipantID, split.CheckpointID, split.NormalizedReadID,
		split.LoopIndex, split.SplitTimeMs, split.SegmentTimeMs, split.Pace, split.Flagged,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert split time: %w", err)
	}

	return nil
}

// GetByParticipant retrieves a participant's splits joined in course order
func (r *PostgresSplitTimeRepository) GetByParticipant(ctx context.Context, eventID, participantID uuid.UUID) ([]*models.SplitTime, error) {
	query := fmt.Sprintf(`
		SELECT st.%s
		FROM split_times st
		JOIN checkpoints cp ON cp.id = st.checkpoint_id
		WHERE st.event_id = $1 AND st.participant_id = $2
		ORDER BY st.loop_index ASC, cp.distance_from_start ASC
	`, splitTimeSelect())

	rows, err := r.db.GetPool().Query(ctx, query, eventID, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query split times by participant: %w", err)
	}
	defer rows.Close()

	return scanSplitTimes(rows)
}

// GetByCheckpoint retrieves every split at a checkpoint, the rank
// recomputation scope
func (r *PostgresSplitTimeRepository) GetByCheckpoint(ctx context.Context, eventID, checkpointID uuid.UUID) ([]*models.SplitTime, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM split_times
		WHERE event_id = $1 AND checkpoint_id = $2
		ORDER BY split_time_ms ASC
	`, splitTimeColumns)

	rows, err := r.db.GetPool().Query(ctx, query, eventID, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to query split times by checkpoint: %w", err)
	}
	defer rows.Close()

	return scanSplitTimes(rows)
}

// UpdateRanks persists recomputed rank positions in one batch
func (r *PostgresSplitTimeRepository) UpdateRanks(ctx context.Context, splits []*models.SplitTime) error {
	if len(splits) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		UPDATE split_times
		SET rank = $2, gender_rank = $3, category_rank = $4, updated_at = NOW()
		WHERE id = $1
	`
	for _, split := range splits {
		batch.Queue(query, split.ID, split.Rank, split.GenderRank, split.CategoryRank)
	}

	results := r.db.GetPool().SendBatch(ctx, batch)
	defer results.Close()

	for range splits {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to update ranks: %w", err)
		}
	}

	return nil
}

// SetFlagged marks or clears the operator-review flag on a split.
// Flagging also clears the rank positions; unflagging leaves them for
// the next recompute to fill.
func (r *PostgresSplitTimeRepository) SetFlagged(ctx context.Context, id uuid.UUID, flagged bool) error {
	query := `
		UPDATE split_times
		SET flagged = $2,
		    rank = CASE WHEN $2 THEN NULL ELSE rank END,
		    gender_rank = CASE WHEN $2 THEN NULL ELSE gender_rank END,
		    category_rank = CASE WHEN $2 THEN NULL ELSE category_rank END,
		    updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := r.db.GetPool().Exec(ctx, query, id, flagged)
	if err != nil {
		return fmt.Errorf("failed to set split flag: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// splitTimeSelect qualifies the column list for joined queries
func splitTimeSelect() string {
	return `id, st.event_id, st.participant_id, st.checkpoint_id, st.normalized_read_id,
	       st.loop_index, st.split_time_ms, st.segment_time_ms, st.pace, st.rank,
	       st.gender_rank, st.category_rank, st.flagged, st.updated_at`
}

// scanSplitTimes drains a result set into models
func scanSplitTimes(rows pgx.Rows) ([]*models.SplitTime, error) {
	var splits []*models.SplitTime
	for rows.Next() {
		split := &models.SplitTime{}
		err := rows.Scan(
			&split.ID, &split.EventID, &split.ParticipantID, &split.CheckpointID,
			&split.NormalizedReadID, &split.LoopIndex, &split.SplitTimeMs, &split.SegmentTimeMs,
			&split.Pace, &split.Rank, &split.GenderRank, &split.CategoryRank,
			&split.Flagged, &split.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf(errScanSplitTime, err)
		}
		splits = append(splits, split)
	}

	return splits, rows.Err()
}
