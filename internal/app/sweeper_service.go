package app

import (
	"context"
	"errors"
	"log"
	"time"

	"pressflow/internal/domain"
	"pressflow/internal/ports"
)

// SweeperService runs the periodic background work: publishing APPROVED
// instances whose schedule has arrived and expiring overdue approvals.
// Both sweeps go through the same code paths as in-flight decisions, so
// they share their serialization discipline.
type SweeperService struct {
	instances  ports.InstanceRepository
	decisions  ports.DecisionRepository
	notify     ports.NotificationQueue
	publishing *PublishingService
	detector   ConflictDetector

	now func() time.Time
}

func NewSweeperService(
	instances ports.InstanceRepository,
	decisions ports.DecisionRepository,
	notify ports.NotificationQueue,
	publishing *PublishingService,
	detector ConflictDetector,
) *SweeperService {
	return &SweeperService{
		instances:  instances,
		decisions:  decisions,
		notify:     notify,
		publishing: publishing,
		detector:   detector,
		now:        time.Now,
	}
}

// PublishDueInstances publishes every APPROVED instance whose scheduled
// publish time has arrived.
func (s *SweeperService) PublishDueInstances(ctx context.Context) error {
	const limit = 100
	due, err := s.instances.ListDuePublications(ctx, s.now(), limit)
	if err != nil {
		return err
	}

	published := 0
	for _, inst := range due {
		if err := s.publishing.PublishInstance(ctx, inst.ID); err != nil {
			if errors.Is(err, domain.ErrStaleInstance) || errors.Is(err, domain.ErrOutOfSequence) {
				// Another writer got there first.
				continue
			}
			log.Printf("Failed to publish due instance %s: %v", inst.ID, err)
			continue
		}
		published++
	}
	if published > 0 {
		log.Printf("Published %d scheduled instances", published)
	}
	return nil
}

// ExpireOverdueApprovals marks PENDING approvals past their due date as
// EXPIRED, records a DEADLINE_MISSED conflict on the instance and notifies
// the approver. EXTEND_DEADLINE revives expired rows afterwards.
func (s *SweeperService) ExpireOverdueApprovals(ctx context.Context) error {
	const limit = 200
	overdue, err := s.decisions.ListOverdue(ctx, s.now(), limit)
	if err != nil {
		return err
	}

	expired := 0
	flagged := make(map[string]bool)
	for _, d := range overdue {
		inst, err := s.instances.GetInstance(ctx, d.InstanceID)
		if err != nil || inst == nil || inst.Status.IsTerminal() {
			continue
		}
		if !flagged[d.InstanceID] && s.detector != nil {
			if _, err := s.detector.DetectAndRecord(ctx, inst); err != nil {
				log.Printf("Conflict detection failed for instance %s: %v", inst.ID, err)
			}
			flagged[d.InstanceID] = true
		}
		if err := s.decisions.ExpireDecision(ctx, d.ID); err != nil {
			log.Printf("Failed to expire approval %s: %v", d.ID, err)
			continue
		}
		expired++
		s.enqueueExpiry(ctx, d)
	}
	if expired > 0 {
		log.Printf("Expired %d overdue approvals", expired)
	}
	return nil
}

func (s *SweeperService) enqueueExpiry(ctx context.Context, d *domain.Decision) {
	if s.notify == nil {
		return
	}
	n := domain.NewNotification(d.InstanceID, d.ApproverID, domain.NotifyDeadlineApproaching,
		"Approval Request Expired",
		"Your approval request has expired. The publishing workflow may be affected.",
		domain.ChannelInApp, domain.ChannelEmail)
	if err := s.notify.Enqueue(ctx, n); err != nil {
		log.Printf("Failed to enqueue expiry notification for %s: %v", d.ApproverID, err)
	}
}
