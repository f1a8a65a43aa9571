package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/finish-line/internal/database"
	"github.com/yourusername/finish-line/internal/models"
)

const errScanResult = "failed to scan result: %w"

const resultColumns = `id, event_id, race_id, participant_id, finish_time_ms, gun_time_ms,
	       net_time_ms, overall_rank, gender_rank, category_rank, status, status_reason,
	       is_official, certificate_generated, updated_at`

// PostgresResultRepository implements ResultRepository for PostgreSQL
type PostgresResultRepository struct {
	db *database.DB
}

// NewPostgresResultRepository creates a new result repository
func NewPostgresResultRepository(db *database.DB) ResultRepository {
	return &PostgresResultRepository{db: db}
}

// Upsert writes a participant's result row. Official rows are frozen at
// the storage layer as well: the update clause refuses to touch them.
func (r *PostgresResultRepository) Upsert(ctx context.Context, result *models.Result) error {
	query := `
		INSERT INTO results (id, event_id, race_id, participant_id, finish_time_ms, gun_time_ms,
		       net_time_ms, overall_rank, gender_rank, category_rank, status, status_reason,
		       is_official, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (race_id, participant_id)
		DO UPDATE SET finish_time_ms = EXCLUDED.finish_time_ms,
		              gun_time_ms = EXCLUDED.gun_time_ms,
		              net_time_ms = EXCLUDED.net_time_ms,
		              overall_rank = EXCLUDED.overall_rank,
		              gender_rank = EXCLUDED.gender_rank,
		              category_rank = EXCLUDED.category_rank,
		              status = EXCLUDED.status,
		              status_reason = EXCLUDED.status_reason,
		              is_official = EXCLUDED.is_official,
		              updated_at = NOW()
		WHERE results.is_official = false
	`

	_, err := r.db.GetPool().Exec(ctx, query,
		result.ID, result.EventID, result.RaceID, result.ParticipantID, result.FinishTimeMs,
		result.GunTimeMs, result.NetTimeMs, result.OverallRank, result.GenderRank,
		result.CategoryRank, result.Status, result.StatusReason, result.IsOfficial,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert result: %w", err)
	}

	return nil
}

// GetByParticipant retrieves one participant's result for a race
func (r *PostgresResultRepository) GetByParticipant(ctx context.Context, raceID, participantID uuid.UUID) (*models.Result, error) {
	query := fmt.Sprintf(`SELECT %s FROM results WHERE race_id = $1 AND participant_id = $2`, resultColumns)

	result := &models.Result{}
	err := r.db.GetPool().QueryRow(ctx, query, raceID, participantID).Scan(
		&result.ID, &result.EventID, &result.RaceID, &result.ParticipantID, &result.FinishTimeMs,
		&result.GunTimeMs, &result.NetTimeMs, &result.OverallRank, &result.GenderRank,
		&result.CategoryRank, &result.Status, &result.StatusReason, &result.IsOfficial,
		&result.CertificateGenerated, &result.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	return result, nil
}

// GetByRace retrieves all results for a race ordered by overall rank
func (r *PostgresResultRepository) GetByRace(ctx context.Context, raceID uuid.UUID) ([]*models.Result, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM results
		WHERE race_id = $1
		ORDER BY overall_rank ASC NULLS LAST
	`, resultColumns)

	rows, err := r.db.GetPool().Query(ctx, query, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results by race: %w", err)
	}
	defer rows.Close()

	var results []*models.Result
	for rows.Next() {
		result := &models.Result{}
		err := rows.Scan(
			&result.ID, &result.EventID, &result.RaceID, &result.ParticipantID, &result.FinishTimeMs,
			&result.GunTimeMs, &result.NetTimeMs, &result.OverallRank, &result.GenderRank,
			&result.CategoryRank, &result.Status, &result.StatusReason, &result.IsOfficial,
			&result.CertificateGenerated, &result.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf(errScanResult, err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// SetOfficial freezes or unfreezes every result in a race
func (r *PostgresResultRepository) SetOfficial(ctx context.Context, raceID uuid.UUID, official bool) error {
	query := `UPDATE results SET is_official = $2, updated_at = NOW() WHERE race_id = $1`

	_, err := r.db.GetPool().Exec(ctx, query, raceID, official)
	if err != nil {
		return fmt.Errorf("failed to set official flag: %w", err)
	}

	return nil
}
