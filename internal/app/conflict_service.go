package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"pressflow/internal/domain"
	"pressflow/internal/ports"
)

type ResolveInput struct {
	InstanceID string
	ConflictID string
	Kind       domain.ResolutionKind
	Notes      string
	ResolvedBy string
	// Substitutions maps the approver being replaced to the replacement;
	// only consulted for REASSIGN.
	Substitutions map[string]string
	// Extension is the amount EXTEND_DEADLINE moves due dates forward by;
	// the step timeout is used when zero.
	Extension time.Duration
}

type ConflictService struct {
	workflows  ports.WorkflowRepository
	instances  ports.InstanceRepository
	decisions  ports.DecisionRepository
	conflicts  ports.ConflictRepository
	notify     ports.NotificationQueue
	publishing *PublishingService

	now func() time.Time
}

func NewConflictService(
	workflows ports.WorkflowRepository,
	instances ports.InstanceRepository,
	decisions ports.DecisionRepository,
	conflicts ports.ConflictRepository,
	notify ports.NotificationQueue,
	publishing *PublishingService,
) *ConflictService {
	return &ConflictService{
		workflows:  workflows,
		instances:  instances,
		decisions:  decisions,
		conflicts:  conflicts,
		notify:     notify,
		publishing: publishing,
		now:        time.Now,
	}
}

// Detect inspects an instance's decision set for the three anomaly
// patterns. Detection only surfaces data; nothing is auto-resolved.
func (s *ConflictService) Detect(ctx context.Context, inst *domain.PublishingInstance) ([]*domain.Conflict, error) {
	wf, err := s.workflows.GetWorkflow(ctx, inst.WorkflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, domain.ErrWorkflowNotFound
	}
	ledger, err := s.decisions.ListDecisions(ctx, inst.ID)
	if err != nil {
		return nil, err
	}

	var found []*domain.Conflict
	now := s.now()

	if domain.HasDisagreement(inst.CurrentStepNumber, ledger) {
		found = append(found, domain.NewConflict(inst.ID, inst.CurrentStepNumber,
			domain.ConflictApprovalDisagreement,
			"conflicting votes recorded for the step"))
	}

	if !inst.Status.IsTerminal() {
		for _, d := range ledger {
			if d.Status == domain.ApprovalPending && d.DueDate.Before(now) {
				found = append(found, domain.NewConflict(inst.ID, d.StepNumber,
					domain.ConflictDeadlineMissed,
					fmt.Sprintf("approval by %s was due %s", d.ApproverID, d.DueDate.Format(time.RFC3339))))
			}
		}

		if step := wf.Step(inst.CurrentStepNumber); step != nil {
			remaining := 0
			for _, id := range step.AuthorizedApprovers {
				if inst.ApproverAllowed(step, id) {
					remaining++
				}
			}
			for _, r := range inst.Reassignments {
				if r.StepNumber == step.StepNumber && inst.ApproverAllowed(step, r.To) {
					remaining++
				}
			}
			if remaining == 0 {
				found = append(found, domain.NewConflict(inst.ID, step.StepNumber,
					domain.ConflictRoleConflict,
					"no authorized approvers remain for the current step"))
			}
		}
	}
	return found, nil
}

// DetectAndRecord runs Detect and persists any conflict not already open
// for the same step and kind.
func (s *ConflictService) DetectAndRecord(ctx context.Context, inst *domain.PublishingInstance) ([]*domain.Conflict, error) {
	found, err := s.Detect(ctx, inst)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	open, err := s.conflicts.ListOpenConflicts(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	var recorded []*domain.Conflict
	for _, c := range found {
		if hasOpenConflict(open, c.Kind, c.StepNumber) {
			continue
		}
		if err := s.conflicts.CreateConflict(ctx, c); err != nil {
			return recorded, err
		}
		log.Printf("Conflict %s detected on instance %s step %d: %s", c.Kind, inst.ID, c.StepNumber, c.Description)
		recorded = append(recorded, c)
		open = append(open, c)
	}
	return recorded, nil
}

func (s *ConflictService) ListOpenConflicts(ctx context.Context, instanceID string) ([]*domain.Conflict, error) {
	return s.conflicts.ListOpenConflicts(ctx, instanceID)
}

// Resolve executes one of the four remediation actions and appends the
// resolution to the audit log.
func (s *ConflictService) Resolve(ctx context.Context, in ResolveInput) (bool, error) {
	if !in.Kind.Valid() {
		return false, domain.Validationf("unknown resolution kind %q", in.Kind)
	}
	if in.ResolvedBy == "" {
		return false, domain.Validationf("resolvedBy is required")
	}
	conflict, err := s.conflicts.GetConflict(ctx, in.ConflictID)
	if err != nil {
		return false, err
	}
	if conflict == nil || conflict.InstanceID != in.InstanceID {
		return false, domain.ErrConflictNotFound
	}
	if conflict.Resolved {
		return false, domain.Validationf("conflict %s is already resolved", conflict.ID)
	}
	inst, err := s.instances.GetInstance(ctx, in.InstanceID)
	if err != nil {
		return false, err
	}
	if inst == nil {
		return false, domain.ErrInstanceNotFound
	}

	switch in.Kind {
	case domain.ResolveEscalate:
		err = s.escalate(ctx, inst, conflict, in)
	case domain.ResolveOverride:
		err = s.override(ctx, inst, conflict)
	case domain.ResolveExtendDeadline:
		err = s.extendDeadline(ctx, inst, conflict, in.Extension)
	case domain.ResolveReassign:
		err = s.reassign(ctx, inst, conflict, in.Substitutions)
	}
	if err != nil {
		return false, err
	}

	if err := s.conflicts.AppendResolution(ctx, domain.NewResolution(conflict, in.Kind, in.Notes, in.ResolvedBy)); err != nil {
		return false, err
	}
	// Escalation notifies without changing state, so the conflict stays
	// open for a later substantive resolution.
	if in.Kind != domain.ResolveEscalate {
		if err := s.conflicts.MarkResolved(ctx, conflict.ID); err != nil {
			return false, err
		}
	}
	log.Printf("Conflict %s on instance %s resolved with %s by %s", conflict.ID, inst.ID, in.Kind, in.ResolvedBy)

	s.enqueue(ctx, domain.NewNotification(inst.ID, inst.SubmittedBy, domain.NotifyConflictResolved,
		"Workflow Conflict Resolved",
		fmt.Sprintf("A %s conflict was handled with %s: %s", conflict.Kind, in.Kind, in.Notes),
		domain.ChannelInApp, domain.ChannelEmail))
	return true, nil
}

func (s *ConflictService) escalate(ctx context.Context, inst *domain.PublishingInstance, conflict *domain.Conflict, in ResolveInput) error {
	s.enqueue(ctx, domain.NewNotification(inst.ID, in.ResolvedBy, domain.NotifyConflictResolved,
		"Conflict Escalated",
		fmt.Sprintf("A %s conflict on step %d requires attention: %s", conflict.Kind, conflict.StepNumber, conflict.Description),
		domain.ChannelInApp, domain.ChannelEmail))
	return nil
}

func (s *ConflictService) override(ctx context.Context, inst *domain.PublishingInstance, conflict *domain.Conflict) error {
	_, err := s.publishing.ForceCompleteStep(ctx, inst.ID, conflict.StepNumber)
	return err
}

func (s *ConflictService) extendDeadline(ctx context.Context, inst *domain.PublishingInstance, conflict *domain.Conflict, extension time.Duration) error {
	if inst.Status.IsTerminal() {
		return domain.ErrInstanceTerminal
	}
	if extension <= 0 {
		wf, err := s.workflows.GetWorkflow(ctx, inst.WorkflowID)
		if err != nil {
			return err
		}
		step := wf.Step(conflict.StepNumber)
		if step == nil {
			return domain.ErrOutOfSequence
		}
		extension = step.Timeout
	}
	return s.decisions.ExtendDueDates(ctx, inst.ID, conflict.StepNumber, s.now().Add(extension))
}

func (s *ConflictService) reassign(ctx context.Context, inst *domain.PublishingInstance, conflict *domain.Conflict, subs map[string]string) error {
	if inst.Status.IsTerminal() {
		return domain.ErrInstanceTerminal
	}
	if len(subs) == 0 {
		return domain.Validationf("REASSIGN requires at least one substitution")
	}
	wf, err := s.workflows.GetWorkflow(ctx, inst.WorkflowID)
	if err != nil {
		return err
	}
	step := wf.Step(conflict.StepNumber)
	if step == nil {
		return domain.ErrOutOfSequence
	}
	prevStatus, prevStep := inst.Status, inst.CurrentStepNumber
	for from, to := range subs {
		if !inst.ApproverAllowed(step, from) {
			return domain.Validationf("%s is not an approver on step %d", from, step.StepNumber)
		}
		inst.Reassignments = append(inst.Reassignments, domain.Reassignment{
			StepNumber: step.StepNumber, From: from, To: to,
		})
		if err := s.decisions.ReassignPending(ctx, inst.ID, step.StepNumber, from, to); err != nil {
			return err
		}
		s.enqueue(ctx, domain.NewNotification(inst.ID, to, domain.NotifyApprovalRequest,
			"Approval Required: "+step.Name,
			"An approval on step \""+step.Name+"\" has been reassigned to you.",
			domain.ChannelInApp, domain.ChannelEmail))
	}
	inst.UpdatedAt = s.now()
	return s.instances.UpdateInstanceCAS(ctx, inst, prevStatus, prevStep)
}

func (s *ConflictService) enqueue(ctx context.Context, n *domain.Notification) {
	if s.notify == nil {
		return
	}
	if err := s.notify.Enqueue(ctx, n); err != nil {
		log.Printf("Failed to enqueue %s notification for %s: %v", n.Kind, n.RecipientID, err)
	}
}

func hasOpenConflict(open []*domain.Conflict, kind domain.ConflictKind, stepNumber int) bool {
	for _, c := range open {
		if c.Kind == kind && c.StepNumber == stepNumber {
			return true
		}
	}
	return false
}
