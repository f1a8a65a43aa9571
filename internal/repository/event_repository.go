package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/finish-line/internal/database"
	"github.com/yourusername/finish-line/internal/models"
)

const errScanRace = "failed to scan race: %w"

// PostgresEventRepository implements EventRepository for PostgreSQL
type PostgresEventRepository struct {
	db *database.DB
}

// NewPostgresEventRepository creates a new event repository
func NewPostgresEventRepository(db *database.DB) EventRepository {
	return &PostgresEventRepository{db: db}
}

// GetEvent retrieves an event by ID
func (r *PostgresEventRepository) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	query := `
		SELECT id, name, result_basis, has_loops, loop_count,
		       created_at, created_by, updated_at, updated_by, is_active, is_deleted
		FROM events WHERE id = $1
	`

	event := &models.Event{}
	err := r.db.GetPool().QueryRow(ctx, query, id).Scan(
		&event.ID, &event.Name, &event.ResultBasis, &event.HasLoops, &event.LoopCount,
		&event.CreatedAt, &event.CreatedBy, &event.UpdatedAt, &event.UpdatedBy,
		&event.IsActive, &event.IsDeleted,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return event, nil
}

// GetRace retrieves a race by ID
func (r *PostgresEventRepository) GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	query := `
		SELECT id, event_id, name, gun_start, results_final,
		       created_at, created_by, updated_at, updated_by, is_active, is_deleted
		FROM races WHERE id = $1
	`

	race := &models.Race{}
	err := r.db.GetPool().QueryRow(ctx, query, id).Scan(
		&race.ID, &race.EventID, &race.Name, &race.GunStart, &race.ResultsFinal,
		&race.CreatedAt, &race.CreatedBy, &race.UpdatedAt, &race.UpdatedBy,
		&race.IsActive, &race.IsDeleted,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}

	return race, nil
}

// GetRacesByEvent retrieves live races for an event
func (r *PostgresEventRepository) GetRacesByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.Race, error) {
	query := `
		SELECT id, event_id, name, gun_start, results_final,
		       created_at, created_by, updated_at, updated_by, is_active, is_deleted
		FROM races
		WHERE event_id = $1 AND is_active = true AND is_deleted = false
		ORDER BY name ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query races: %w", err)
	}
	defer rows.Close()

	var races []*models.Race
	for rows.Next() {
		race := &models.Race{}
		err := rows.Scan(
			&race.ID, &race.EventID, &race.Name, &race.GunStart, &race.ResultsFinal,
			&race.CreatedAt, &race.CreatedBy, &race.UpdatedAt, &race.UpdatedBy,
			&race.IsActive, &race.IsDeleted,
		)
		if err != nil {
			return nil, fmt.Errorf(errScanRace, err)
		}
		races = append(races, race)
	}

	return races, rows.Err()
}

// ListActiveEventIDs returns the events the pipeline polls for
// unprocessed reads
func (r *PostgresEventRepository) ListActiveEventIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT id FROM events WHERE is_active = true AND is_deleted = false`

	rows, err := r.db.GetPool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active events: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan event id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
