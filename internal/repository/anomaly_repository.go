package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/finish-line/internal/database"
	"github.com/yourusername/finish-line/internal/models"
)

const errScanAnomaly = "failed to scan anomaly: %w"

const insertAnomaly = `
	INSERT INTO timing_anomalies (id, event_id, participant_id, checkpoint_id, loop_index, kind, detail)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// PostgresAnomalyRepository implements AnomalyRepository for PostgreSQL
type PostgresAnomalyRepository struct {
	db *database.DB
}

// NewPostgresAnomalyRepository creates a new anomaly repository
func NewPostgresAnomalyRepository(db *database.DB) AnomalyRepository {
	return &PostgresAnomalyRepository{db: db}
}

// Create records a flagged timing inconsistency
func (r *PostgresAnomalyRepository) Create(ctx context.Context, anomaly *models.TimingAnomaly) error {
	_, err := r.db.GetPool().Exec(ctx, insertAnomaly,
		anomaly.ID, anomaly.EventID, anomaly.ParticipantID, anomaly.CheckpointID,
		anomaly.LoopIndex, anomaly.Kind, anomaly.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to create anomaly: %w", err)
	}

	return nil
}

// CreateWithTx records a flagged timing inconsistency using a provided transaction
func (r *PostgresAnomalyRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, anomaly *models.TimingAnomaly) error {
	_, err := tx.Exec(ctx, insertAnomaly,
		anomaly.ID, anomaly.EventID, anomaly.ParticipantID, anomaly.CheckpointID,
		anomaly.LoopIndex, anomaly.Kind, anomaly.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to create anomaly within transaction: %w", err)
	}

	return nil
}

// UnresolvedExistsWithTx reports whether the review queue already holds
// an open entry for this exact violation, so rebuilds over unchanged
// crossings do not multiply it
func (r *PostgresAnomalyRepository) UnresolvedExistsWithTx(ctx context.Context, tx pgx.Tx, participantID, checkpointID uuid.UUID, loopIndex int, kind models.AnomalyKind) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM timing_anomalies
			WHERE participant_id = $1 AND checkpoint_id = $2 AND loop_index = $3
			      AND kind = $4 AND resolved = false
		)
	`

	var exists bool
	if err := tx.QueryRow(ctx, query, participantID, checkpointID, loopIndex, kind).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check for open anomaly: %w", err)
	}

	return exists, nil
}

// CountUnresolved counts open anomalies blocking a participant's finalization
func (r *PostgresAnomalyRepository) CountUnresolved(ctx context.Context, participantID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM timing_anomalies WHERE participant_id = $1 AND resolved = false`

	var count int
	if err := r.db.GetPool().QueryRow(ctx, query, participantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unresolved anomalies: %w", err)
	}

	return count, nil
}

// GetUnresolvedByEvent retrieves the operator review queue for an event
func (r *PostgresAnomalyRepository) GetUnresolvedByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.TimingAnomaly, error) {
	query := `
		SELECT id, event_id, participant_id, checkpoint_id, loop_index, kind, detail,
		       resolved, resolved_by, resolved_at, created_at
		FROM timing_anomalies
		WHERE event_id = $1 AND resolved = false
		ORDER BY created_at ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []*models.TimingAnomaly
	for rows.Next() {
		a := &models.TimingAnomaly{}
		err := rows.Scan(
			&a.ID, &a.EventID, &a.ParticipantID, &a.CheckpointID, &a.LoopIndex, &a.Kind, &a.Detail,
			&a.Resolved, &a.ResolvedBy, &a.ResolvedAt, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf(errScanAnomaly, err)
		}
		anomalies = append(anomalies, a)
	}

	return anomalies, rows.Err()
}

// Resolve closes an anomaly after operator review
func (r *PostgresAnomalyRepository) Resolve(ctx context.Context, id uuid.UUID, resolvedBy string) error {
	query := `
		UPDATE timing_anomalies
		SET resolved = true, resolved_by = $2, resolved_at = NOW()
		WHERE id = $1 AND resolved = false
	`

	commandTag, err := r.db.GetPool().Exec(ctx, query, id, resolvedBy)
	if err != nil {
		return fmt.Errorf("failed to resolve anomaly: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
