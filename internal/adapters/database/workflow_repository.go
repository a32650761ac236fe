package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pressflow/internal/domain"
	"pressflow/internal/ports"
)

type PostgresWorkflowRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresWorkflowRepository(pool *pgxpool.Pool) ports.WorkflowRepository {
	return &PostgresWorkflowRepository{pool: pool}
}

func (r *PostgresWorkflowRepository) CreateWorkflow(ctx context.Context, wf *domain.WorkflowDefinition) error {
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO workflow_definitions
			(id, name, description, auto_approve, required_approvers, allow_parallel_steps,
			 global_timeout_sec, steps, active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		wf.ID, wf.Name, wf.Description, wf.AutoApprove, wf.RequiredApprovers, wf.AllowParallelSteps,
		int64(wf.GlobalTimeout.Seconds()), steps, wf.Active, wf.CreatedBy, wf.CreatedAt, wf.UpdatedAt)
	return err
}

func (r *PostgresWorkflowRepository) GetWorkflow(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, auto_approve, required_approvers, allow_parallel_steps,
		       global_timeout_sec, steps, active, created_by, created_at, updated_at
		FROM workflow_definitions WHERE id = $1`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return wf, err
}

func (r *PostgresWorkflowRepository) ListWorkflows(ctx context.Context, activeOnly bool) ([]*domain.WorkflowDefinition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, auto_approve, required_approvers, allow_parallel_steps,
		       global_timeout_sec, steps, active, created_by, created_at, updated_at
		FROM workflow_definitions
		WHERE NOT $1 OR active
		ORDER BY created_at DESC`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.WorkflowDefinition
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, wf)
	}
	return result, rows.Err()
}

func (r *PostgresWorkflowRepository) DeactivateWorkflow(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE workflow_definitions SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWorkflowNotFound
	}
	return nil
}

func scanWorkflow(row pgx.Row) (*domain.WorkflowDefinition, error) {
	var wf domain.WorkflowDefinition
	var steps []byte
	var timeoutSec int64
	err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &wf.AutoApprove, &wf.RequiredApprovers,
		&wf.AllowParallelSteps, &timeoutSec, &steps, &wf.Active, &wf.CreatedBy, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}
	wf.GlobalTimeout = time.Duration(timeoutSec) * time.Second
	if err := json.Unmarshal(steps, &wf.Steps); err != nil {
		return nil, err
	}
	return &wf, nil
}
