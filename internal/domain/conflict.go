package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConflictKind string

const (
	ConflictApprovalDisagreement ConflictKind = "APPROVAL_DISAGREEMENT"
	ConflictDeadlineMissed       ConflictKind = "DEADLINE_MISSED"
	ConflictRoleConflict         ConflictKind = "ROLE_CONFLICT"
)

type ResolutionKind string

const (
	ResolveEscalate       ResolutionKind = "ESCALATE"
	ResolveOverride       ResolutionKind = "OVERRIDE"
	ResolveExtendDeadline ResolutionKind = "EXTEND_DEADLINE"
	ResolveReassign       ResolutionKind = "REASSIGN"
)

func (r ResolutionKind) Valid() bool {
	switch r {
	case ResolveEscalate, ResolveOverride, ResolveExtendDeadline, ResolveReassign:
		return true
	}
	return false
}

// Conflict is a detected anomaly on an instance. It is surfaced as data and
// never auto-resolved; only an explicit resolution clears it.
type Conflict struct {
	ID          string       `json:"id"`
	InstanceID  string       `json:"instanceId"`
	StepNumber  int          `json:"stepNumber"`
	Kind        ConflictKind `json:"kind"`
	Description string       `json:"description"`
	DetectedAt  time.Time    `json:"detectedAt"`
	Resolved    bool         `json:"resolved"`
}

func NewConflict(instanceID string, stepNumber int, kind ConflictKind, description string) *Conflict {
	return &Conflict{
		ID:          uuid.NewString(),
		InstanceID:  instanceID,
		StepNumber:  stepNumber,
		Kind:        kind,
		Description: description,
		DetectedAt:  time.Now(),
	}
}

// Resolution is one entry of the immutable audit log. Every executed
// remediation appends exactly one.
type Resolution struct {
	ID         string         `json:"id"`
	ConflictID string         `json:"conflictId"`
	InstanceID string         `json:"instanceId"`
	Kind       ResolutionKind `json:"kind"`
	Notes      string         `json:"notes"`
	ResolvedBy string         `json:"resolvedBy"`
	ResolvedAt time.Time      `json:"resolvedAt"`
}

func NewResolution(conflict *Conflict, kind ResolutionKind, notes, resolvedBy string) *Resolution {
	return &Resolution{
		ID:         uuid.NewString(),
		ConflictID: conflict.ID,
		InstanceID: conflict.InstanceID,
		Kind:       kind,
		Notes:      notes,
		ResolvedBy: resolvedBy,
		ResolvedAt: time.Now(),
	}
}
