package app

import (
	"context"
	"sort"
	"time"

	"pressflow/internal/domain"
)

type Dashboard struct {
	PendingApprovalCount    int                          `json:"pendingApprovalCount"`
	ScheduledCount          int                          `json:"scheduledCount"`
	RecentTerminalInstances []*domain.PublishingInstance `json:"recentTerminalInstances"`
	MyPendingDecisions      []*domain.Decision           `json:"myPendingDecisions"`
}

// GetDashboard aggregates the counters and the caller's pending decisions.
func (s *PublishingService) GetDashboard(ctx context.Context, principal string) (*Dashboard, error) {
	pending, err := s.instances.CountByStatus(ctx, domain.StatusPendingApproval)
	if err != nil {
		return nil, err
	}
	inApproval, err := s.instances.CountByStatus(ctx, domain.StatusInApproval)
	if err != nil {
		return nil, err
	}
	scheduled, err := s.instances.CountByStatus(ctx, domain.StatusApproved)
	if err != nil {
		return nil, err
	}
	recent, err := s.instances.RecentTerminal(ctx, 10)
	if err != nil {
		return nil, err
	}
	mine, err := s.decisions.ListPendingForApprover(ctx, principal)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		PendingApprovalCount:    pending + inApproval,
		ScheduledCount:          scheduled,
		RecentTerminalInstances: recent,
		MyPendingDecisions:      mine,
	}, nil
}

type TimelineEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Event       string    `json:"event"`
	Description string    `json:"description,omitempty"`
	Actor       string    `json:"actor,omitempty"`
}

// GetTimeline assembles the ordered event history of one instance from the
// instance record and its decision ledger.
func (s *PublishingService) GetTimeline(ctx context.Context, instanceID string) ([]TimelineEvent, error) {
	inst, err := s.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, domain.ErrInstanceNotFound
	}
	ledger, err := s.decisions.ListDecisions(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	timeline := []TimelineEvent{{
		Timestamp:   inst.CreatedAt,
		Event:       "SUBMITTED",
		Description: inst.SubmissionNotes,
		Actor:       inst.SubmittedBy,
	}}
	for _, d := range ledger {
		if d.RespondedAt == nil {
			continue
		}
		timeline = append(timeline, TimelineEvent{
			Timestamp:   *d.RespondedAt,
			Event:       string(d.Decision),
			Description: d.Comments,
			Actor:       d.ApproverID,
		})
	}
	if inst.PublishedAt != nil {
		timeline = append(timeline, TimelineEvent{
			Timestamp: *inst.PublishedAt,
			Event:     "PUBLISHED",
		})
	}
	sort.Slice(timeline, func(i, j int) bool {
		return timeline[i].Timestamp.Before(timeline[j].Timestamp)
	})
	return timeline, nil
}
