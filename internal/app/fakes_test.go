package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pressflow/internal/domain"
)

// In-memory repositories with the same contracts as the postgres adapters,
// including the CAS behavior the advancer relies on.

type fakeWorkflowRepo struct {
	mu        sync.Mutex
	workflows map[string]*domain.WorkflowDefinition
}

func newFakeWorkflowRepo() *fakeWorkflowRepo {
	return &fakeWorkflowRepo{workflows: make(map[string]*domain.WorkflowDefinition)}
}

func (r *fakeWorkflowRepo) CreateWorkflow(_ context.Context, wf *domain.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *wf
	r.workflows[wf.ID] = &copied
	return nil
}

func (r *fakeWorkflowRepo) GetWorkflow(_ context.Context, id string) (*domain.WorkflowDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.workflows[id]
	if !ok {
		return nil, nil
	}
	copied := *wf
	return &copied, nil
}

func (r *fakeWorkflowRepo) ListWorkflows(_ context.Context, activeOnly bool) ([]*domain.WorkflowDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.WorkflowDefinition
	for _, wf := range r.workflows {
		if activeOnly && !wf.Active {
			continue
		}
		copied := *wf
		result = append(result, &copied)
	}
	return result, nil
}

func (r *fakeWorkflowRepo) DeactivateWorkflow(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.workflows[id]
	if !ok {
		return domain.ErrWorkflowNotFound
	}
	wf.Active = false
	return nil
}

type fakeInstanceRepo struct {
	mu        sync.Mutex
	instances map[string]*domain.PublishingInstance
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{instances: make(map[string]*domain.PublishingInstance)}
}

func (r *fakeInstanceRepo) CreateInstance(_ context.Context, inst *domain.PublishingInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *inst
	r.instances[inst.ID] = &copied
	return nil
}

func (r *fakeInstanceRepo) GetInstance(_ context.Context, id string) (*domain.PublishingInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, nil
	}
	copied := *inst
	return &copied, nil
}

func (r *fakeInstanceRepo) UpdateInstanceCAS(_ context.Context, inst *domain.PublishingInstance, expectedStatus domain.PublishingStatus, expectedStep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.instances[inst.ID]
	if !ok || stored.Status != expectedStatus || stored.CurrentStepNumber != expectedStep {
		return domain.ErrStaleInstance
	}
	copied := *inst
	r.instances[inst.ID] = &copied
	return nil
}

func (r *fakeInstanceRepo) ActiveInstanceForDocument(_ context.Context, documentID string) (*domain.PublishingInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.DocumentID == documentID && !inst.Status.IsTerminal() {
			copied := *inst
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeInstanceRepo) ListDuePublications(_ context.Context, now time.Time, limit int) ([]*domain.PublishingInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.PublishingInstance
	for _, inst := range r.instances {
		if inst.PublishDue(now) && len(result) < limit {
			copied := *inst
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeInstanceRepo) ListByStatus(_ context.Context, status domain.PublishingStatus, limit int) ([]*domain.PublishingInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.PublishingInstance
	for _, inst := range r.instances {
		if inst.Status == status && len(result) < limit {
			copied := *inst
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeInstanceRepo) CountByStatus(_ context.Context, status domain.PublishingStatus) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, inst := range r.instances {
		if inst.Status == status {
			count++
		}
	}
	return count, nil
}

func (r *fakeInstanceRepo) RecentTerminal(_ context.Context, limit int) ([]*domain.PublishingInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.PublishingInstance
	for _, inst := range r.instances {
		if inst.Status.IsTerminal() && len(result) < limit {
			copied := *inst
			result = append(result, &copied)
		}
	}
	return result, nil
}

type fakeDecisionRepo struct {
	mu   sync.Mutex
	rows []*domain.Decision
}

func newFakeDecisionRepo() *fakeDecisionRepo {
	return &fakeDecisionRepo{}
}

func (r *fakeDecisionRepo) UpsertDecision(_ context.Context, d *domain.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	copied := *d
	for i, row := range r.rows {
		if row.InstanceID == d.InstanceID && row.StepNumber == d.StepNumber && row.ApproverID == d.ApproverID {
			// The stored row keeps its original id, like the upsert arbiter.
			copied.ID = row.ID
			r.rows[i] = &copied
			return nil
		}
	}
	r.rows = append(r.rows, &copied)
	return nil
}

func (r *fakeDecisionRepo) ListDecisions(_ context.Context, instanceID string) ([]*domain.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Decision
	for _, row := range r.rows {
		if row.InstanceID == instanceID {
			copied := *row
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeDecisionRepo) ListStepDecisions(_ context.Context, instanceID string, stepNumber int) ([]*domain.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Decision
	for _, row := range r.rows {
		if row.InstanceID == instanceID && row.StepNumber == stepNumber {
			copied := *row
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeDecisionRepo) ListOverdue(_ context.Context, now time.Time, limit int) ([]*domain.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Decision
	for _, row := range r.rows {
		if row.Status == domain.ApprovalPending && row.DueDate.Before(now) && len(result) < limit {
			copied := *row
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeDecisionRepo) ListPendingForApprover(_ context.Context, approverID string) ([]*domain.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Decision
	for _, row := range r.rows {
		if row.ApproverID == approverID && row.Status == domain.ApprovalPending {
			copied := *row
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeDecisionRepo) ExtendDueDates(_ context.Context, instanceID string, stepNumber int, dueDate time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.InstanceID == instanceID && row.StepNumber == stepNumber &&
			(row.Status == domain.ApprovalPending || row.Status == domain.ApprovalExpired) {
			row.DueDate = dueDate
			row.Status = domain.ApprovalPending
		}
	}
	return nil
}

func (r *fakeDecisionRepo) ReassignPending(_ context.Context, instanceID string, stepNumber int, fromApprover, toApprover string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.InstanceID == instanceID && row.StepNumber == stepNumber && row.ApproverID == fromApprover &&
			(row.Status == domain.ApprovalPending || row.Status == domain.ApprovalExpired) {
			row.ApproverID = toApprover
			row.Status = domain.ApprovalPending
			return nil
		}
	}
	return domain.Validationf("no open approval for %s on step %d", fromApprover, stepNumber)
}

func (r *fakeDecisionRepo) ExpireDecision(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id && row.Status == domain.ApprovalPending {
			row.Status = domain.ApprovalExpired
		}
	}
	return nil
}

type fakeConflictRepo struct {
	mu          sync.Mutex
	conflicts   []*domain.Conflict
	resolutions []*domain.Resolution
}

func newFakeConflictRepo() *fakeConflictRepo {
	return &fakeConflictRepo{}
}

func (r *fakeConflictRepo) CreateConflict(_ context.Context, c *domain.Conflict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *c
	r.conflicts = append(r.conflicts, &copied)
	return nil
}

func (r *fakeConflictRepo) GetConflict(_ context.Context, id string) (*domain.Conflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conflicts {
		if c.ID == id {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeConflictRepo) ListOpenConflicts(_ context.Context, instanceID string) ([]*domain.Conflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Conflict
	for _, c := range r.conflicts {
		if c.InstanceID == instanceID && !c.Resolved {
			copied := *c
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeConflictRepo) MarkResolved(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conflicts {
		if c.ID == id {
			c.Resolved = true
			return nil
		}
	}
	return domain.ErrConflictNotFound
}

func (r *fakeConflictRepo) AppendResolution(_ context.Context, res *domain.Resolution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *res
	r.resolutions = append(r.resolutions, &copied)
	return nil
}

func (r *fakeConflictRepo) ListResolutions(_ context.Context, instanceID string) ([]*domain.Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Resolution
	for _, res := range r.resolutions {
		if res.InstanceID == instanceID {
			copied := *res
			result = append(result, &copied)
		}
	}
	return result, nil
}

type fakeNotificationQueue struct {
	mu            sync.Mutex
	notifications []*domain.Notification
}

func newFakeNotificationQueue() *fakeNotificationQueue {
	return &fakeNotificationQueue{}
}

func (q *fakeNotificationQueue) Enqueue(_ context.Context, n *domain.Notification) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notifications = append(q.notifications, n)
	return nil
}

func (q *fakeNotificationQueue) byKind(kind domain.NotificationKind) []*domain.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	var result []*domain.Notification
	for _, n := range q.notifications {
		if n.Kind == kind {
			result = append(result, n)
		}
	}
	return result
}

type fakeDocumentStore struct {
	content map[string][]byte
}

func (s *fakeDocumentStore) GetContent(_ context.Context, documentID string) ([]byte, error) {
	c, ok := s.content[documentID]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return c, nil
}

func (s *fakeDocumentStore) PersistVersion(_ context.Context, _ string, _ []byte, _ map[string]string) (string, error) {
	return "v1", nil
}

type fakePublisher struct {
	mu        sync.Mutex
	kind      domain.DestinationKind
	published []string
}

func (p *fakePublisher) Kind() domain.DestinationKind { return p.kind }

func (p *fakePublisher) Publish(_ context.Context, inst *domain.PublishingInstance, _ domain.Destination, _ []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, inst.DocumentID)
	return "fake://" + inst.DocumentID, nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}
