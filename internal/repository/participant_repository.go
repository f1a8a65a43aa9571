package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/finish-line/internal/database"
	"github.com/yourusername/finish-line/internal/models"
)

const errScanParticipant = "failed to scan participant: %w"

const participantColumns = `id, event_id, race_id, bib, full_name, gender, age_category,
	       created_at, created_by, updated_at, updated_by, is_active, is_deleted`

// PostgresParticipantRepository implements ParticipantRepository for PostgreSQL
type PostgresParticipantRepository struct {
	db *database.DB
}

// NewPostgresParticipantRepository creates a new participant repository
func NewPostgresParticipantRepository(db *database.DB) ParticipantRepository {
	return &PostgresParticipantRepository{db: db}
}

// GetByID retrieves a participant by ID
func (r *PostgresParticipantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	query := fmt.Sprintf(`SELECT %s FROM participants WHERE id = $1`, participantColumns)

	p := &models.Participant{}
	err := r.db.GetPool().QueryRow(ctx, query, id).Scan(
		&p.ID, &p.EventID, &p.RaceID, &p.Bib, &p.FullName, &p.Gender, &p.AgeCategory,
		&p.CreatedAt, &p.CreatedBy, &p.UpdatedAt, &p.UpdatedBy, &p.IsActive, &p.IsDeleted,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	return p, nil
}

// GetByRaceID retrieves live participants for a race ordered by bib
func (r *PostgresParticipantRepository) GetByRaceID(ctx context.Context, raceID uuid.UUID) ([]*models.Participant, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM participants
		WHERE race_id = $1 AND is_active = true AND is_deleted = false
		ORDER BY bib ASC
	`, participantColumns)

	rows, err := r.db.GetPool().Query(ctx, query, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	return scanParticipants(rows)
}

// GetByEventID retrieves live participants across every race in an event
func (r *PostgresParticipantRepository) GetByEventID(ctx context.Context, eventID uuid.UUID) ([]*models.Participant, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM participants
		WHERE event_id = $1 AND is_active = true AND is_deleted = false
		ORDER BY bib ASC
	`, participantColumns)

	rows, err := r.db.GetPool().Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	return scanParticipants(rows)
}

// scanParticipants drains a result set into models
func scanParticipants(rows pgx.Rows) ([]*models.Participant, error) {
	var participants []*models.Participant
	for rows.Next() {
		p := &models.Participant{}
		err := rows.Scan(
			&p.ID, &p.EventID, &p.RaceID, &p.Bib, &p.FullName, &p.Gender, &p.AgeCategory,
			&p.CreatedAt, &p.CreatedBy, &p.UpdatedAt, &p.UpdatedBy, &p.IsActive, &p.IsDeleted,
		)
		if err != nil {
			return nil, fmt.Errorf(errScanParticipant, err)
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}
