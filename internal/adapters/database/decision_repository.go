package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pressflow/internal/domain"
	"pressflow/internal/ports"
)

const decisionColumns = `id, instance_id, step_number, approver_id, status, decision,
	comments, assigned_at, responded_at, due_date`

type PostgresDecisionRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresDecisionRepository(pool *pgxpool.Pool) ports.DecisionRepository {
	return &PostgresDecisionRepository{pool: pool}
}

// UpsertDecision writes the ledger row for (instance, step, approver); a
// later write overwrites the vote while keeping the original assignment.
func (r *PostgresDecisionRepository) UpsertDecision(ctx context.Context, d *domain.Decision) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO approval_decisions (`+decisionColumns+`)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10)
		ON CONFLICT (instance_id, step_number, approver_id) DO UPDATE
		SET status = EXCLUDED.status,
		    decision = EXCLUDED.decision,
		    comments = EXCLUDED.comments,
		    responded_at = EXCLUDED.responded_at`,
		d.ID, d.InstanceID, d.StepNumber, d.ApproverID, d.Status, string(d.Decision),
		d.Comments, d.AssignedAt, d.RespondedAt, d.DueDate)
	return err
}

func (r *PostgresDecisionRepository) ListDecisions(ctx context.Context, instanceID string) ([]*domain.Decision, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+decisionColumns+` FROM approval_decisions
		WHERE instance_id = $1 ORDER BY step_number, assigned_at`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDecisions(rows)
}

func (r *PostgresDecisionRepository) ListStepDecisions(ctx context.Context, instanceID string, stepNumber int) ([]*domain.Decision, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+decisionColumns+` FROM approval_decisions
		WHERE instance_id = $1 AND step_number = $2 ORDER BY assigned_at`, instanceID, stepNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDecisions(rows)
}

func (r *PostgresDecisionRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Decision, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+decisionColumns+` FROM approval_decisions
		WHERE status = 'PENDING' AND due_date < $1
		ORDER BY due_date LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDecisions(rows)
}

func (r *PostgresDecisionRepository) ListPendingForApprover(ctx context.Context, approverID string) ([]*domain.Decision, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+decisionColumns+` FROM approval_decisions
		WHERE approver_id = $1 AND status = 'PENDING'
		ORDER BY assigned_at`, approverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDecisions(rows)
}

// ExtendDueDates moves the due date forward for a step's open rows,
// reviving rows the sweeper already expired.
func (r *PostgresDecisionRepository) ExtendDueDates(ctx context.Context, instanceID string, stepNumber int, dueDate time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE approval_decisions
		SET due_date = $3, status = 'PENDING'
		WHERE instance_id = $1 AND step_number = $2 AND status IN ('PENDING', 'EXPIRED')`,
		instanceID, stepNumber, dueDate)
	return err
}

func (r *PostgresDecisionRepository) ReassignPending(ctx context.Context, instanceID string, stepNumber int, fromApprover, toApprover string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE approval_decisions
		SET approver_id = $4, status = 'PENDING'
		WHERE instance_id = $1 AND step_number = $2 AND approver_id = $3
		  AND status IN ('PENDING', 'EXPIRED')`,
		instanceID, stepNumber, fromApprover, toApprover)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.Validationf("no open approval for %s on step %d", fromApprover, stepNumber)
	}
	return nil
}

func (r *PostgresDecisionRepository) ExpireDecision(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE approval_decisions SET status = 'EXPIRED'
		WHERE id = $1 AND status = 'PENDING'`, id)
	return err
}

func collectDecisions(rows pgx.Rows) ([]*domain.Decision, error) {
	var result []*domain.Decision
	for rows.Next() {
		var d domain.Decision
		var decision *string
		err := rows.Scan(&d.ID, &d.InstanceID, &d.StepNumber, &d.ApproverID, &d.Status,
			&decision, &d.Comments, &d.AssignedAt, &d.RespondedAt, &d.DueDate)
		if err != nil {
			return nil, err
		}
		if decision != nil {
			d.Decision = domain.DecisionKind(*decision)
		}
		result = append(result, &d)
	}
	return result, rows.Err()
}
