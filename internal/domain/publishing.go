package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PublishingStatus string

const (
	StatusPendingApproval PublishingStatus = "PENDING_APPROVAL"
	StatusInApproval      PublishingStatus = "IN_APPROVAL"
	StatusApproved        PublishingStatus = "APPROVED"
	StatusRejected        PublishingStatus = "REJECTED"
	StatusPublished       PublishingStatus = "PUBLISHED"
)

// IsTerminal reports whether no further transition is possible.
func (s PublishingStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusPublished
}

type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
	UrgencyUrgent Urgency = "URGENT"
)

type DestinationKind string

const (
	DestinationPortal    DestinationKind = "PORTAL"
	DestinationEmail     DestinationKind = "EMAIL"
	DestinationPrint     DestinationKind = "PRINT"
	DestinationFileShare DestinationKind = "FILE_SHARE"
	DestinationAPIPush   DestinationKind = "API_PUSH"
)

// Destination is a tagged variant; Config is opaque to the state machine and
// only interpreted by the publisher for the matching kind.
type Destination struct {
	Kind   DestinationKind `json:"kind"`
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Reassignment substitutes one authorized approver for another on a single
// step of one instance. Recorded by a REASSIGN conflict resolution; the
// workflow definition itself stays immutable.
type Reassignment struct {
	StepNumber int    `json:"stepNumber"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// PublishingInstance tracks one document's progress through a workflow.
// Only the advancer and the sweeper mutate it; once terminal it is frozen.
type PublishingInstance struct {
	ID                 string           `json:"id"`
	DocumentID         string           `json:"documentId"`
	WorkflowID         string           `json:"workflowId"`
	Status             PublishingStatus `json:"status"`
	CurrentStepNumber  int              `json:"currentStepNumber"`
	Urgency            Urgency          `json:"urgency"`
	Destinations       []Destination    `json:"destinations"`
	ScheduledPublishAt *time.Time       `json:"scheduledPublishAt,omitempty"`
	ExpiresAt          *time.Time       `json:"expiresAt,omitempty"`
	PublishedAt        *time.Time       `json:"publishedAt,omitempty"`
	SubmittedBy        string           `json:"submittedBy"`
	SubmissionNotes    string           `json:"submissionNotes,omitempty"`
	Reassignments      []Reassignment   `json:"reassignments,omitempty"`
	// Metadata is a freeform side-channel; core transitions never read it.
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// ApproverAllowed reports whether principal may vote on step, honoring any
// per-instance reassignments.
func (p *PublishingInstance) ApproverAllowed(step *StepDefinition, principal string) bool {
	replaced := make(map[string]bool)
	for _, r := range p.Reassignments {
		if r.StepNumber != step.StepNumber {
			continue
		}
		replaced[r.From] = true
		if r.To == principal {
			return true
		}
	}
	return !replaced[principal] && step.IsAuthorized(principal)
}

func NewPublishingInstance(documentID, workflowID, submittedBy string) *PublishingInstance {
	now := time.Now()
	return &PublishingInstance{
		ID:                uuid.NewString(),
		DocumentID:        documentID,
		WorkflowID:        workflowID,
		Status:            StatusPendingApproval,
		CurrentStepNumber: 1,
		Urgency:           UrgencyMedium,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// CanTransition reports whether moving from the current status to next is a
// legal edge of the lifecycle graph.
func (p *PublishingInstance) CanTransition(next PublishingStatus) bool {
	switch p.Status {
	case StatusPendingApproval:
		return next == StatusInApproval || next == StatusApproved || next == StatusRejected
	case StatusInApproval:
		return next == StatusInApproval || next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusPublished
	default:
		return false
	}
}

// PublishDue reports whether an APPROVED instance should be published now.
func (p *PublishingInstance) PublishDue(now time.Time) bool {
	if p.Status != StatusApproved {
		return false
	}
	return p.ScheduledPublishAt == nil || !p.ScheduledPublishAt.After(now)
}
