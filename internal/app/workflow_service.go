package app

import (
	"context"
	"log"

	"pressflow/internal/domain"
	"pressflow/internal/ports"
)

type WorkflowService struct {
	workflows ports.WorkflowRepository
}

func NewWorkflowService(workflows ports.WorkflowRepository) *WorkflowService {
	return &WorkflowService{workflows: workflows}
}

// CreateWorkflowDefinition validates and persists a new approval template.
func (s *WorkflowService) CreateWorkflowDefinition(ctx context.Context, wf *domain.WorkflowDefinition) (*domain.WorkflowDefinition, error) {
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	if err := s.workflows.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	log.Printf("Created workflow definition %s (%q, %d steps)", wf.ID, wf.Name, len(wf.Steps))
	return wf, nil
}

func (s *WorkflowService) GetWorkflowDefinition(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	wf, err := s.workflows.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, domain.ErrWorkflowNotFound
	}
	return wf, nil
}

func (s *WorkflowService) ListWorkflowDefinitions(ctx context.Context) ([]*domain.WorkflowDefinition, error) {
	return s.workflows.ListWorkflows(ctx, true)
}

// DeactivateWorkflowDefinition retires a template from new submissions.
// Running instances keep their frozen copy of the step set.
func (s *WorkflowService) DeactivateWorkflowDefinition(ctx context.Context, id string) error {
	wf, err := s.workflows.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if wf == nil {
		return domain.ErrWorkflowNotFound
	}
	return s.workflows.DeactivateWorkflow(ctx, id)
}
