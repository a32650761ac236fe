package app

import (
	"context"
	"log"
	"time"

	"pressflow/internal/domain"
	"pressflow/internal/ports"
)

// ConflictDetector is the hook the publishing service calls after every
// recorded decision. Wired to the conflict service in main.
type ConflictDetector interface {
	DetectAndRecord(ctx context.Context, inst *domain.PublishingInstance) ([]*domain.Conflict, error)
}

type SubmitInput struct {
	DocumentID         string
	WorkflowID         string
	Destinations       []domain.Destination
	Urgency            domain.Urgency
	ScheduledPublishAt *time.Time
	ExpiresAt          *time.Time
	Notes              string
	Metadata           map[string]string
}

type PublishingService struct {
	workflows  ports.WorkflowRepository
	instances  ports.InstanceRepository
	decisions  ports.DecisionRepository
	notify     ports.NotificationQueue
	docs       ports.DocumentStore
	publishers map[domain.DestinationKind]ports.DestinationPublisher
	detector   ConflictDetector

	// Serializes outcome recomputation per instance so two callers cannot
	// both conclude "quorum satisfied" and double-advance.
	advance *keyedMutex

	now func() time.Time
}

func NewPublishingService(
	workflows ports.WorkflowRepository,
	instances ports.InstanceRepository,
	decisions ports.DecisionRepository,
	notify ports.NotificationQueue,
	docs ports.DocumentStore,
	publishers []ports.DestinationPublisher,
) *PublishingService {
	reg := make(map[domain.DestinationKind]ports.DestinationPublisher, len(publishers))
	for _, p := range publishers {
		reg[p.Kind()] = p
	}
	return &PublishingService{
		workflows:  workflows,
		instances:  instances,
		decisions:  decisions,
		notify:     notify,
		docs:       docs,
		publishers: reg,
		advance:    newKeyedMutex(),
		now:        time.Now,
	}
}

// SetConflictDetector wires the detector after construction; the conflict
// service needs this service for OVERRIDE resolutions.
func (s *PublishingService) SetConflictDetector(d ConflictDetector) { s.detector = d }

// Submit creates a publishing instance at step 1 and solicits its first
// approvals, or publishes immediately for auto-approve workflows.
func (s *PublishingService) Submit(ctx context.Context, in SubmitInput, submittedBy string) (*domain.PublishingInstance, error) {
	wf, err := s.workflows.GetWorkflow(ctx, in.WorkflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil || !wf.Active {
		return nil, domain.ErrWorkflowNotFound
	}
	if in.DocumentID == "" {
		return nil, domain.Validationf("documentId is required")
	}
	if len(in.Destinations) == 0 {
		return nil, domain.Validationf("at least one destination is required")
	}
	for _, d := range in.Destinations {
		if _, ok := s.publishers[d.Kind]; !ok {
			return nil, domain.Validationf("unknown destination kind %q", d.Kind)
		}
	}

	active, err := s.instances.ActiveInstanceForDocument(ctx, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, domain.ErrActiveInstanceExists
	}

	inst := domain.NewPublishingInstance(in.DocumentID, in.WorkflowID, submittedBy)
	inst.Destinations = in.Destinations
	inst.ScheduledPublishAt = in.ScheduledPublishAt
	inst.ExpiresAt = in.ExpiresAt
	inst.SubmissionNotes = in.Notes
	inst.Metadata = in.Metadata
	inst.Urgency = s.effectiveUrgency(in)

	if wf.AutoApprove {
		inst.Status = domain.StatusApproved
	}

	if err := s.instances.CreateInstance(ctx, inst); err != nil {
		return nil, err
	}
	log.Printf("Submitted document %s for publishing, instance %s (workflow %s)", inst.DocumentID, inst.ID, wf.ID)

	if wf.AutoApprove {
		if inst.PublishDue(s.now()) {
			if err := s.publish(ctx, wf, inst); err != nil {
				return nil, err
			}
		}
		return inst, nil
	}

	if wf.AllowParallelSteps {
		for i := range wf.Steps {
			s.solicitStep(ctx, inst, &wf.Steps[i])
		}
	} else {
		s.solicitStep(ctx, inst, wf.Step(1))
	}
	return inst, nil
}

// Decide records one approver's vote and drives the instance forward.
// The write and the outcome recomputation are atomic with respect to
// concurrent votes on the same instance.
func (s *PublishingService) Decide(ctx context.Context, instanceID string, stepNumber int, approverID string, decision domain.DecisionKind, comments string) (*domain.PublishingInstance, domain.StepOutcome, error) {
	if decision != domain.DecisionApprove && decision != domain.DecisionReject {
		return nil, "", domain.Validationf("decision must be APPROVE or REJECT")
	}

	s.advance.Lock(instanceID)
	defer s.advance.Unlock(instanceID)

	inst, err := s.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, "", err
	}
	if inst == nil {
		return nil, "", domain.ErrInstanceNotFound
	}
	if inst.Status.IsTerminal() {
		return nil, "", domain.ErrInstanceTerminal
	}

	wf, err := s.workflows.GetWorkflow(ctx, inst.WorkflowID)
	if err != nil {
		return nil, "", err
	}
	if wf == nil {
		return nil, "", domain.ErrWorkflowNotFound
	}

	step := wf.Step(stepNumber)
	if step == nil {
		return nil, "", domain.ErrOutOfSequence
	}
	if !wf.AllowParallelSteps && stepNumber != inst.CurrentStepNumber {
		return nil, "", domain.ErrOutOfSequence
	}
	if !inst.ApproverAllowed(step, approverID) {
		return nil, "", domain.ErrNotAuthorized
	}

	ledger, err := s.decisions.ListDecisions(ctx, instanceID)
	if err != nil {
		return nil, "", err
	}
	if wf.AllowParallelSteps && domain.EvaluateStep(step, ledger) != domain.StepPending {
		// Independent steps resolve once; a vote on a settled step is late.
		return nil, "", domain.ErrOutOfSequence
	}

	now := s.now()
	row := &domain.Decision{
		InstanceID:  instanceID,
		StepNumber:  stepNumber,
		ApproverID:  approverID,
		Decision:    decision,
		Comments:    comments,
		AssignedAt:  now,
		RespondedAt: &now,
		DueDate:     now.Add(step.Timeout),
	}
	if decision == domain.DecisionApprove {
		row.Status = domain.ApprovalApproved
	} else {
		row.Status = domain.ApprovalRejected
	}
	if prev := findDecision(ledger, stepNumber, approverID); prev != nil {
		row.AssignedAt = prev.AssignedAt
		row.DueDate = prev.DueDate
	}
	if err := s.decisions.UpsertDecision(ctx, row); err != nil {
		return nil, "", err
	}
	ledger = replaceDecision(ledger, row)

	s.notifyDecision(ctx, inst, step, row)

	outcome := domain.EvaluateStep(step, ledger)
	if err := s.applyOutcome(ctx, wf, inst, step, ledger, outcome); err != nil {
		return nil, "", err
	}

	if s.detector != nil {
		if _, err := s.detector.DetectAndRecord(ctx, inst); err != nil {
			log.Printf("Conflict detection failed for instance %s: %v", inst.ID, err)
		}
	}
	return inst, outcome, nil
}

// ForceCompleteStep force-sets a step's outcome to approved, bypassing
// quorum. Only reachable through an OVERRIDE conflict resolution; the
// caller is responsible for the audit row.
func (s *PublishingService) ForceCompleteStep(ctx context.Context, instanceID string, stepNumber int) (*domain.PublishingInstance, error) {
	s.advance.Lock(instanceID)
	defer s.advance.Unlock(instanceID)

	inst, err := s.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, domain.ErrInstanceNotFound
	}
	if inst.Status.IsTerminal() {
		return nil, domain.ErrInstanceTerminal
	}
	wf, err := s.workflows.GetWorkflow(ctx, inst.WorkflowID)
	if err != nil {
		return nil, err
	}
	step := wf.Step(stepNumber)
	if step == nil {
		return nil, domain.ErrOutOfSequence
	}
	ledger, err := s.decisions.ListDecisions(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if err := s.advanceAfterStep(ctx, wf, inst, step, ledger); err != nil {
		return nil, err
	}
	log.Printf("Step %d of instance %s force-completed", stepNumber, instanceID)
	return inst, nil
}

// PublishInstance publishes a due APPROVED instance. Called by the sweeper
// and by the advancer when the final step completes with no future schedule.
func (s *PublishingService) PublishInstance(ctx context.Context, instanceID string) error {
	s.advance.Lock(instanceID)
	defer s.advance.Unlock(instanceID)

	inst, err := s.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst == nil {
		return domain.ErrInstanceNotFound
	}
	if !inst.PublishDue(s.now()) {
		return domain.ErrOutOfSequence
	}
	wf, err := s.workflows.GetWorkflow(ctx, inst.WorkflowID)
	if err != nil {
		return err
	}
	return s.publish(ctx, wf, inst)
}

// ListInstances returns instances in one status, newest first.
func (s *PublishingService) ListInstances(ctx context.Context, status domain.PublishingStatus, limit int) ([]*domain.PublishingInstance, error) {
	switch status {
	case domain.StatusPendingApproval, domain.StatusInApproval, domain.StatusApproved,
		domain.StatusRejected, domain.StatusPublished:
	default:
		return nil, domain.Validationf("unknown status %q", status)
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.instances.ListByStatus(ctx, status, limit)
}

func (s *PublishingService) GetInstance(ctx context.Context, instanceID string) (*domain.PublishingInstance, error) {
	inst, err := s.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, domain.ErrInstanceNotFound
	}
	return inst, nil
}

// applyOutcome maps a recomputed step outcome onto the instance state.
func (s *PublishingService) applyOutcome(ctx context.Context, wf *domain.WorkflowDefinition, inst *domain.PublishingInstance, step *domain.StepDefinition, ledger []*domain.Decision, outcome domain.StepOutcome) error {
	switch outcome {
	case domain.StepRejected:
		return s.reject(ctx, inst)
	case domain.StepApproved:
		return s.advanceAfterStep(ctx, wf, inst, step, ledger)
	default:
		// Quorum not yet met. The first observed vote moves the instance
		// out of PENDING_APPROVAL.
		if inst.Status == domain.StatusPendingApproval {
			return s.transition(ctx, inst, domain.StatusInApproval, inst.CurrentStepNumber)
		}
		return nil
	}
}

func (s *PublishingService) reject(ctx context.Context, inst *domain.PublishingInstance) error {
	if err := s.transition(ctx, inst, domain.StatusRejected, inst.CurrentStepNumber); err != nil {
		return err
	}
	log.Printf("Instance %s rejected at step %d", inst.ID, inst.CurrentStepNumber)
	s.enqueue(ctx, domain.NewNotification(inst.ID, inst.SubmittedBy, domain.NotifyRejectionReceived,
		"Publishing Rejected", "Your publishing request was rejected.", domain.ChannelInApp, domain.ChannelEmail))
	return nil
}

// advanceAfterStep drives the instance forward after step satisfied its
// quorum (or was overridden).
func (s *PublishingService) advanceAfterStep(ctx context.Context, wf *domain.WorkflowDefinition, inst *domain.PublishingInstance, step *domain.StepDefinition, ledger []*domain.Decision) error {
	if wf.AllowParallelSteps {
		return s.advanceParallel(ctx, wf, inst, step, ledger)
	}

	next := wf.Step(step.StepNumber + 1)
	if next != nil {
		if err := s.transition(ctx, inst, domain.StatusInApproval, next.StepNumber); err != nil {
			return err
		}
		s.solicitStep(ctx, inst, next)
		return nil
	}
	return s.approveAndMaybePublish(ctx, wf, inst)
}

// advanceParallel recomputes every step from the full ledger. The override
// of step is treated as approved regardless of its votes.
func (s *PublishingService) advanceParallel(ctx context.Context, wf *domain.WorkflowDefinition, inst *domain.PublishingInstance, overridden *domain.StepDefinition, ledger []*domain.Decision) error {
	lowestPending := 0
	for i := range wf.Steps {
		st := &wf.Steps[i]
		if st.StepNumber == overridden.StepNumber {
			continue
		}
		switch domain.EvaluateStep(st, ledger) {
		case domain.StepRejected:
			return s.reject(ctx, inst)
		case domain.StepPending:
			if lowestPending == 0 || st.StepNumber < lowestPending {
				lowestPending = st.StepNumber
			}
		}
	}
	if lowestPending == 0 {
		return s.approveAndMaybePublish(ctx, wf, inst)
	}
	return s.transition(ctx, inst, domain.StatusInApproval, lowestPending)
}

func (s *PublishingService) approveAndMaybePublish(ctx context.Context, wf *domain.WorkflowDefinition, inst *domain.PublishingInstance) error {
	if err := s.transition(ctx, inst, domain.StatusApproved, inst.CurrentStepNumber); err != nil {
		return err
	}
	log.Printf("Instance %s fully approved", inst.ID)
	if inst.PublishDue(s.now()) {
		return s.publish(ctx, wf, inst)
	}
	return nil
}

// publish flips the instance to PUBLISHED, then delivers to destinations
// best-effort. Delivery failures never roll back the transition.
func (s *PublishingService) publish(ctx context.Context, wf *domain.WorkflowDefinition, inst *domain.PublishingInstance) error {
	now := s.now()
	inst.PublishedAt = &now
	if err := s.transition(ctx, inst, domain.StatusPublished, inst.CurrentStepNumber); err != nil {
		return err
	}
	log.Printf("Instance %s published (document %s, %d destinations)", inst.ID, inst.DocumentID, len(inst.Destinations))

	var content []byte
	if s.docs != nil {
		c, err := s.docs.GetContent(ctx, inst.DocumentID)
		if err != nil {
			log.Printf("Failed to load content for document %s: %v", inst.DocumentID, err)
		} else {
			content = c
		}
	}
	for _, dest := range inst.Destinations {
		pub, ok := s.publishers[dest.Kind]
		if !ok {
			log.Printf("No publisher registered for destination kind %s", dest.Kind)
			continue
		}
		location, err := pub.Publish(ctx, inst, dest, content)
		if err != nil {
			log.Printf("Failed to publish instance %s to %s destination %q: %v", inst.ID, dest.Kind, dest.Name, err)
			continue
		}
		if location != "" {
			log.Printf("Instance %s delivered to %s at %s", inst.ID, dest.Kind, location)
		}
	}

	s.enqueue(ctx, domain.NewNotification(inst.ID, inst.SubmittedBy, domain.NotifyPublicationSuccess,
		"Document Published Successfully",
		"Your document has been published to all configured destinations.",
		domain.ChannelInApp, domain.ChannelEmail))
	return nil
}

// transition applies a status/step change through the repository CAS so a
// concurrent writer can advance the instance at most once.
func (s *PublishingService) transition(ctx context.Context, inst *domain.PublishingInstance, next domain.PublishingStatus, nextStep int) error {
	if next != inst.Status && !inst.CanTransition(next) {
		return domain.ErrInstanceTerminal
	}
	prevStatus, prevStep := inst.Status, inst.CurrentStepNumber
	inst.Status = next
	inst.CurrentStepNumber = nextStep
	inst.UpdatedAt = s.now()
	if err := s.instances.UpdateInstanceCAS(ctx, inst, prevStatus, prevStep); err != nil {
		inst.Status = prevStatus
		inst.CurrentStepNumber = prevStep
		return err
	}
	return nil
}

// solicitStep creates the PENDING ledger rows for a step and sends one
// request notification per approver.
func (s *PublishingService) solicitStep(ctx context.Context, inst *domain.PublishingInstance, step *domain.StepDefinition) {
	if step == nil {
		return
	}
	dueDate := s.now().Add(step.Timeout)
	for _, approverID := range step.AuthorizedApprovers {
		row := domain.NewPendingDecision(inst.ID, step.StepNumber, approverID, dueDate)
		if err := s.decisions.UpsertDecision(ctx, row); err != nil {
			log.Printf("Failed to create approval request for %s on instance %s: %v", approverID, inst.ID, err)
			continue
		}
		s.enqueue(ctx, domain.NewNotification(inst.ID, approverID, domain.NotifyApprovalRequest,
			"Approval Required: "+step.Name,
			"You have been requested to approve step \""+step.Name+"\". Please review and provide your decision.",
			domain.ChannelInApp, domain.ChannelEmail))
	}
}

func (s *PublishingService) notifyDecision(ctx context.Context, inst *domain.PublishingInstance, step *domain.StepDefinition, d *domain.Decision) {
	kind := domain.NotifyApprovalReceived
	title := "Approval Received"
	if d.Decision == domain.DecisionReject {
		kind = domain.NotifyRejectionReceived
		title = "Rejection Received"
	}
	s.enqueue(ctx, domain.NewNotification(inst.ID, inst.SubmittedBy, kind, title,
		"Step \""+step.Name+"\" received a "+string(d.Decision)+" from "+d.ApproverID+"."))
}

func (s *PublishingService) enqueue(ctx context.Context, n *domain.Notification) {
	if s.notify == nil {
		return
	}
	if err := s.notify.Enqueue(ctx, n); err != nil {
		log.Printf("Failed to enqueue %s notification for %s: %v", n.Kind, n.RecipientID, err)
	}
}

func (s *PublishingService) effectiveUrgency(in SubmitInput) domain.Urgency {
	u := in.Urgency
	if u == "" {
		u = domain.UrgencyMedium
	}
	// A deadline inside 24h raises anything below HIGH.
	if in.ExpiresAt != nil && in.ExpiresAt.Sub(s.now()) < 24*time.Hour {
		if u == domain.UrgencyLow || u == domain.UrgencyMedium {
			u = domain.UrgencyHigh
		}
	}
	return u
}

func findDecision(ledger []*domain.Decision, stepNumber int, approverID string) *domain.Decision {
	for _, d := range ledger {
		if d.StepNumber == stepNumber && d.ApproverID == approverID {
			return d
		}
	}
	return nil
}

func replaceDecision(ledger []*domain.Decision, row *domain.Decision) []*domain.Decision {
	for i, d := range ledger {
		if d.StepNumber == row.StepNumber && d.ApproverID == row.ApproverID {
			ledger[i] = row
			return ledger
		}
	}
	return append(ledger, row)
}
