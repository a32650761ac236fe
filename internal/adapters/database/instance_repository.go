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

const instanceColumns = `id, document_id, workflow_id, status, current_step_number, urgency,
	destinations, reassignments, metadata, scheduled_publish_at, expires_at, published_at,
	submitted_by, submission_notes, created_at, updated_at`

type PostgresInstanceRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresInstanceRepository(pool *pgxpool.Pool) ports.InstanceRepository {
	return &PostgresInstanceRepository{pool: pool}
}

func (r *PostgresInstanceRepository) CreateInstance(ctx context.Context, inst *domain.PublishingInstance) error {
	destinations, reassignments, metadata, err := marshalInstanceJSON(inst)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO publishing_instances (`+instanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		inst.ID, inst.DocumentID, inst.WorkflowID, inst.Status, inst.CurrentStepNumber, inst.Urgency,
		destinations, reassignments, metadata, inst.ScheduledPublishAt, inst.ExpiresAt, inst.PublishedAt,
		inst.SubmittedBy, inst.SubmissionNotes, inst.CreatedAt, inst.UpdatedAt)
	return err
}

func (r *PostgresInstanceRepository) GetInstance(ctx context.Context, id string) (*domain.PublishingInstance, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+instanceColumns+` FROM publishing_instances WHERE id = $1`, id)
	inst, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return inst, err
}

// UpdateInstanceCAS guards the write with the previously observed status
// and step so concurrent writers can advance the row at most once.
func (r *PostgresInstanceRepository) UpdateInstanceCAS(ctx context.Context, inst *domain.PublishingInstance, expectedStatus domain.PublishingStatus, expectedStep int) error {
	destinations, reassignments, metadata, err := marshalInstanceJSON(inst)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE publishing_instances
		SET status = $2, current_step_number = $3, urgency = $4, destinations = $5,
		    reassignments = $6, metadata = $7, scheduled_publish_at = $8, expires_at = $9,
		    published_at = $10, updated_at = $11
		WHERE id = $1 AND status = $12 AND current_step_number = $13`,
		inst.ID, inst.Status, inst.CurrentStepNumber, inst.Urgency, destinations,
		reassignments, metadata, inst.ScheduledPublishAt, inst.ExpiresAt,
		inst.PublishedAt, inst.UpdatedAt, expectedStatus, expectedStep)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleInstance
	}
	return nil
}

func (r *PostgresInstanceRepository) ActiveInstanceForDocument(ctx context.Context, documentID string) (*domain.PublishingInstance, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+instanceColumns+` FROM publishing_instances
		WHERE document_id = $1 AND status NOT IN ('REJECTED', 'PUBLISHED')
		LIMIT 1`, documentID)
	inst, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return inst, err
}

func (r *PostgresInstanceRepository) ListDuePublications(ctx context.Context, now time.Time, limit int) ([]*domain.PublishingInstance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+instanceColumns+` FROM publishing_instances
		WHERE status = 'APPROVED'
		  AND (scheduled_publish_at IS NULL OR scheduled_publish_at <= $1)
		ORDER BY scheduled_publish_at ASC NULLS FIRST
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInstances(rows)
}

func (r *PostgresInstanceRepository) ListByStatus(ctx context.Context, status domain.PublishingStatus, limit int) ([]*domain.PublishingInstance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+instanceColumns+` FROM publishing_instances
		WHERE status = $1 ORDER BY created_at DESC LIMIT $2`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInstances(rows)
}

func (r *PostgresInstanceRepository) CountByStatus(ctx context.Context, status domain.PublishingStatus) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM publishing_instances WHERE status = $1`, status).Scan(&count)
	return count, err
}

func (r *PostgresInstanceRepository) RecentTerminal(ctx context.Context, limit int) ([]*domain.PublishingInstance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+instanceColumns+` FROM publishing_instances
		WHERE status IN ('REJECTED', 'PUBLISHED')
		ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInstances(rows)
}

func marshalInstanceJSON(inst *domain.PublishingInstance) (destinations, reassignments, metadata []byte, err error) {
	destinations, err = json.Marshal(inst.Destinations)
	if err != nil {
		return
	}
	reassignments, err = json.Marshal(inst.Reassignments)
	if err != nil {
		return
	}
	metadata, err = json.Marshal(inst.Metadata)
	return
}

func scanInstance(row pgx.Row) (*domain.PublishingInstance, error) {
	var inst domain.PublishingInstance
	var destinations, reassignments, metadata []byte
	err := row.Scan(&inst.ID, &inst.DocumentID, &inst.WorkflowID, &inst.Status, &inst.CurrentStepNumber,
		&inst.Urgency, &destinations, &reassignments, &metadata, &inst.ScheduledPublishAt,
		&inst.ExpiresAt, &inst.PublishedAt, &inst.SubmittedBy, &inst.SubmissionNotes,
		&inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(destinations, &inst.Destinations); err != nil {
		return nil, err
	}
	if len(reassignments) > 0 {
		if err := json.Unmarshal(reassignments, &inst.Reassignments); err != nil {
			return nil, err
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &inst.Metadata); err != nil {
			return nil, err
		}
	}
	return &inst, nil
}

func collectInstances(rows pgx.Rows) ([]*domain.PublishingInstance, error) {
	var result []*domain.PublishingInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}
