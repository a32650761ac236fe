package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	NotifyApprovalRequest     NotificationKind = "APPROVAL_REQUEST"
	NotifyApprovalReceived    NotificationKind = "APPROVAL_RECEIVED"
	NotifyRejectionReceived   NotificationKind = "REJECTION_RECEIVED"
	NotifyPublicationSuccess  NotificationKind = "PUBLICATION_SUCCESS"
	NotifyDeadlineApproaching NotificationKind = "DEADLINE_APPROACHING"
	NotifyConflictResolved    NotificationKind = "CONFLICT_RESOLVED"
	NotifyLockAcquired        NotificationKind = "LOCK_ACQUIRED"
	NotifyLockReleased        NotificationKind = "LOCK_RELEASED"
	NotifySessionChange       NotificationKind = "SESSION_CHANGE"
)

type Channel string

const (
	ChannelInApp Channel = "IN_APP"
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

// Notification is a best-effort, at-least-once message. Delivery is fully
// decoupled from workflow transitions; a slow channel never stalls a decide.
type Notification struct {
	ID          string           `json:"id"`
	InstanceID  string           `json:"instanceId,omitempty"`
	RecipientID string           `json:"recipientId"`
	Kind        NotificationKind `json:"kind"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Channels    []Channel        `json:"channels"`
	CreatedAt   time.Time        `json:"createdAt"`
	Attempts    int              `json:"attempts"`
}

func NewNotification(instanceID, recipientID string, kind NotificationKind, title, message string, channels ...Channel) *Notification {
	if len(channels) == 0 {
		channels = []Channel{ChannelInApp}
	}
	return &Notification{
		ID:          uuid.NewString(),
		InstanceID:  instanceID,
		RecipientID: recipientID,
		Kind:        kind,
		Title:       title,
		Message:     message,
		Channels:    channels,
		CreatedAt:   time.Now(),
	}
}
