package ports

import (
	"context"
	"time"

	"pressflow/internal/domain"
)

type WorkflowRepository interface {
	CreateWorkflow(ctx context.Context, wf *domain.WorkflowDefinition) error
	GetWorkflow(ctx context.Context, id string) (*domain.WorkflowDefinition, error)
	ListWorkflows(ctx context.Context, activeOnly bool) ([]*domain.WorkflowDefinition, error)
	DeactivateWorkflow(ctx context.Context, id string) error
}

type InstanceRepository interface {
	CreateInstance(ctx context.Context, inst *domain.PublishingInstance) error
	GetInstance(ctx context.Context, id string) (*domain.PublishingInstance, error)
	// UpdateInstanceCAS applies inst only if the stored row still has the
	// expected status and step number. Returns domain.ErrStaleInstance when
	// a concurrent writer got there first.
	UpdateInstanceCAS(ctx context.Context, inst *domain.PublishingInstance, expectedStatus domain.PublishingStatus, expectedStep int) error
	// ActiveInstanceForDocument returns the non-terminal instance for a
	// document, or nil when none exists.
	ActiveInstanceForDocument(ctx context.Context, documentID string) (*domain.PublishingInstance, error)
	ListDuePublications(ctx context.Context, now time.Time, limit int) ([]*domain.PublishingInstance, error)
	ListByStatus(ctx context.Context, status domain.PublishingStatus, limit int) ([]*domain.PublishingInstance, error)
	CountByStatus(ctx context.Context, status domain.PublishingStatus) (int, error)
	RecentTerminal(ctx context.Context, limit int) ([]*domain.PublishingInstance, error)
}

type DecisionRepository interface {
	// UpsertDecision writes a ledger row keyed by (instance, step, approver);
	// a later write overwrites the earlier one.
	UpsertDecision(ctx context.Context, d *domain.Decision) error
	ListDecisions(ctx context.Context, instanceID string) ([]*domain.Decision, error)
	ListStepDecisions(ctx context.Context, instanceID string, stepNumber int) ([]*domain.Decision, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Decision, error)
	ListPendingForApprover(ctx context.Context, approverID string) ([]*domain.Decision, error)
	// ExtendDueDates moves the due date of every PENDING row of a step.
	ExtendDueDates(ctx context.Context, instanceID string, stepNumber int, dueDate time.Time) error
	// ReassignPending substitutes the approver on a PENDING row.
	ReassignPending(ctx context.Context, instanceID string, stepNumber int, fromApprover, toApprover string) error
	ExpireDecision(ctx context.Context, id string) error
}

type ConflictRepository interface {
	CreateConflict(ctx context.Context, c *domain.Conflict) error
	GetConflict(ctx context.Context, id string) (*domain.Conflict, error)
	ListOpenConflicts(ctx context.Context, instanceID string) ([]*domain.Conflict, error)
	MarkResolved(ctx context.Context, id string) error
	AppendResolution(ctx context.Context, r *domain.Resolution) error
	ListResolutions(ctx context.Context, instanceID string) ([]*domain.Resolution, error)
}
