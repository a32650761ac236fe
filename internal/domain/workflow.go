package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepDefinition is one stage of a workflow. Step numbers are unique,
// ascending and contiguous starting at 1.
type StepDefinition struct {
	StepNumber          int           `json:"stepNumber"`
	Name                string        `json:"name"`
	Description         string        `json:"description,omitempty"`
	Required            bool          `json:"required"`
	Timeout             time.Duration `json:"timeout"`
	MinApprovals        int           `json:"minApprovals"`
	AllowDelegation     bool          `json:"allowDelegation"`
	AuthorizedApprovers []string      `json:"authorizedApprovers"`
}

// IsAuthorized reports whether principal may vote on this step.
func (s *StepDefinition) IsAuthorized(principal string) bool {
	for _, id := range s.AuthorizedApprovers {
		if id == principal {
			return true
		}
	}
	return false
}

// WorkflowDefinition is a reusable approval template. It is immutable once
// an active instance references it.
type WorkflowDefinition struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Description        string           `json:"description,omitempty"`
	AutoApprove        bool             `json:"autoApprove"`
	RequiredApprovers  int              `json:"requiredApprovers"`
	AllowParallelSteps bool             `json:"allowParallelSteps"`
	GlobalTimeout      time.Duration    `json:"globalTimeout"`
	Steps              []StepDefinition `json:"steps"`
	Active             bool             `json:"active"`
	CreatedBy          string           `json:"createdBy"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

func NewWorkflowDefinition(name, createdBy string, steps []StepDefinition) *WorkflowDefinition {
	now := time.Now()
	return &WorkflowDefinition{
		ID:                uuid.NewString(),
		Name:              name,
		RequiredApprovers: 1,
		GlobalTimeout:     72 * time.Hour,
		Steps:             steps,
		Active:            true,
		CreatedBy:         createdBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Step returns the definition for stepNumber, or nil.
func (w *WorkflowDefinition) Step(stepNumber int) *StepDefinition {
	for i := range w.Steps {
		if w.Steps[i].StepNumber == stepNumber {
			return &w.Steps[i]
		}
	}
	return nil
}

// Validate enforces the structural invariants of a definition. A definition
// that fails validation is never persisted.
func (w *WorkflowDefinition) Validate() error {
	if w.Name == "" {
		return Validationf("workflow name is required")
	}
	if len(w.Steps) == 0 {
		return Validationf("workflow requires at least one step")
	}
	for i, step := range w.Steps {
		if step.StepNumber != i+1 {
			return Validationf("step numbers must be contiguous starting at 1, got %d at position %d", step.StepNumber, i+1)
		}
		if step.Name == "" {
			return Validationf("step %d: name is required", step.StepNumber)
		}
		if step.MinApprovals < 1 {
			return Validationf("step %d: minApprovals must be at least 1", step.StepNumber)
		}
		if step.MinApprovals > len(step.AuthorizedApprovers) {
			return Validationf("step %d: minApprovals %d exceeds authorized approver count %d",
				step.StepNumber, step.MinApprovals, len(step.AuthorizedApprovers))
		}
		if step.Timeout <= 0 {
			return Validationf("step %d: timeout must be positive", step.StepNumber)
		}
	}
	return nil
}
