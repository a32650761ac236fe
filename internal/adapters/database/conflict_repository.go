package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pressflow/internal/domain"
	"pressflow/internal/ports"
)

type PostgresConflictRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresConflictRepository(pool *pgxpool.Pool) ports.ConflictRepository {
	return &PostgresConflictRepository{pool: pool}
}

func (r *PostgresConflictRepository) CreateConflict(ctx context.Context, c *domain.Conflict) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conflicts (id, instance_id, step_number, kind, description, detected_at, resolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.InstanceID, c.StepNumber, c.Kind, c.Description, c.DetectedAt, c.Resolved)
	return err
}

func (r *PostgresConflictRepository) GetConflict(ctx context.Context, id string) (*domain.Conflict, error) {
	var c domain.Conflict
	err := r.pool.QueryRow(ctx, `
		SELECT id, instance_id, step_number, kind, description, detected_at, resolved
		FROM conflicts WHERE id = $1`, id).
		Scan(&c.ID, &c.InstanceID, &c.StepNumber, &c.Kind, &c.Description, &c.DetectedAt, &c.Resolved)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresConflictRepository) ListOpenConflicts(ctx context.Context, instanceID string) ([]*domain.Conflict, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, instance_id, step_number, kind, description, detected_at, resolved
		FROM conflicts WHERE instance_id = $1 AND NOT resolved
		ORDER BY detected_at`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Conflict
	for rows.Next() {
		var c domain.Conflict
		if err := rows.Scan(&c.ID, &c.InstanceID, &c.StepNumber, &c.Kind, &c.Description, &c.DetectedAt, &c.Resolved); err != nil {
			return nil, err
		}
		result = append(result, &c)
	}
	return result, rows.Err()
}

func (r *PostgresConflictRepository) MarkResolved(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE conflicts SET resolved = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflictNotFound
	}
	return nil
}

// AppendResolution writes one audit row; resolutions are never updated or
// deleted.
func (r *PostgresConflictRepository) AppendResolution(ctx context.Context, res *domain.Resolution) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conflict_resolutions (id, conflict_id, instance_id, kind, notes, resolved_by, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		res.ID, res.ConflictID, res.InstanceID, res.Kind, res.Notes, res.ResolvedBy, res.ResolvedAt)
	return err
}

func (r *PostgresConflictRepository) ListResolutions(ctx context.Context, instanceID string) ([]*domain.Resolution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conflict_id, instance_id, kind, notes, resolved_by, resolved_at
		FROM conflict_resolutions WHERE instance_id = $1 ORDER BY resolved_at`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Resolution
	for rows.Next() {
		var res domain.Resolution
		if err := rows.Scan(&res.ID, &res.ConflictID, &res.InstanceID, &res.Kind, &res.Notes, &res.ResolvedBy, &res.ResolvedAt); err != nil {
			return nil, err
		}
		result = append(result, &res)
	}
	return result, rows.Err()
}
