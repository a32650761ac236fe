package domain

import (
	"time"

	"github.com/google/uuid"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
	ApprovalExpired  ApprovalStatus = "EXPIRED"
)

type DecisionKind string

const (
	DecisionApprove DecisionKind = "APPROVE"
	DecisionReject  DecisionKind = "REJECT"
)

// Decision is one approver's row in the ledger for a step. A row is created
// PENDING when the step is solicited and overwritten by the approver's vote;
// re-voting overwrites again, so the ledger holds at most one row per
// (instance, step, approver).
type Decision struct {
	ID          string         `json:"id"`
	InstanceID  string         `json:"instanceId"`
	StepNumber  int            `json:"stepNumber"`
	ApproverID  string         `json:"approverId"`
	Status      ApprovalStatus `json:"status"`
	Decision    DecisionKind   `json:"decision,omitempty"`
	Comments    string         `json:"comments,omitempty"`
	AssignedAt  time.Time      `json:"assignedAt"`
	RespondedAt *time.Time     `json:"respondedAt,omitempty"`
	DueDate     time.Time      `json:"dueDate"`
}

func NewPendingDecision(instanceID string, stepNumber int, approverID string, dueDate time.Time) *Decision {
	return &Decision{
		ID:         uuid.NewString(),
		InstanceID: instanceID,
		StepNumber: stepNumber,
		ApproverID: approverID,
		Status:     ApprovalPending,
		AssignedAt: time.Now(),
		DueDate:    dueDate,
	}
}

type StepOutcome string

const (
	StepPending  StepOutcome = "PENDING"
	StepApproved StepOutcome = "APPROVED"
	StepRejected StepOutcome = "REJECTED"
)

// EvaluateStep recomputes a step's outcome from its full decision set.
// A single rejection short-circuits the step; quorum is minApprovals
// approvals with zero rejections.
func EvaluateStep(step *StepDefinition, decisions []*Decision) StepOutcome {
	approved := 0
	for _, d := range decisions {
		if d.StepNumber != step.StepNumber {
			continue
		}
		switch d.Status {
		case ApprovalRejected:
			return StepRejected
		case ApprovalApproved:
			approved++
		}
	}
	if approved >= step.MinApprovals {
		return StepApproved
	}
	return StepPending
}

// HasDisagreement reports whether the decision set for a step contains both
// approvals and rejections, which surfaces as an APPROVAL_DISAGREEMENT
// conflict while the step is unresolved.
func HasDisagreement(stepNumber int, decisions []*Decision) bool {
	approved, rejected := 0, 0
	for _, d := range decisions {
		if d.StepNumber != stepNumber {
			continue
		}
		switch d.Status {
		case ApprovalApproved:
			approved++
		case ApprovalRejected:
			rejected++
		}
	}
	return approved > 0 && rejected > 0
}
