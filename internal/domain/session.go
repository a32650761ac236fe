package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type ChangeKind string

const (
	ChangeContent  ChangeKind = "CONTENT"
	ChangeMetadata ChangeKind = "METADATA"
	ChangeStatus   ChangeKind = "STATUS"
)

// ChangeEntry is one record of a session's append-only change feed.
// Sequence numbers are strictly increasing within a session so the feed can
// be replayed in order later.
type ChangeEntry struct {
	Sequence    int64           `json:"sequence"`
	Actor       string          `json:"actor"`
	Timestamp   time.Time       `json:"timestamp"`
	Kind        ChangeKind      `json:"kind"`
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// CollaborativeSession is the unit of mutual exclusion for simultaneous
// editing. It is ephemeral; lock state does not have to survive a restart,
// bounded by TTL staleness.
type CollaborativeSession struct {
	SessionID      string        `json:"sessionId"`
	DocumentID     string        `json:"documentId"`
	Participants   []string      `json:"participants"`
	Active         bool          `json:"active"`
	LockHolder     string        `json:"lockHolder,omitempty"`
	LockAcquiredAt *time.Time    `json:"lockAcquiredAt,omitempty"`
	LockTTL        time.Duration `json:"lockTTL,omitempty"`
	Changes        []ChangeEntry `json:"changes"`
	CreatedAt      time.Time     `json:"createdAt"`
}

func NewCollaborativeSession(documentID string, participants []string) *CollaborativeSession {
	now := time.Now()
	return &CollaborativeSession{
		SessionID:    fmt.Sprintf("session_%s_%d", documentID, now.UnixNano()),
		DocumentID:   documentID,
		Participants: participants,
		Active:       true,
		CreatedAt:    now,
	}
}

// HasParticipant reports whether principal belongs to the session.
func (s *CollaborativeSession) HasParticipant(principal string) bool {
	for _, p := range s.Participants {
		if p == principal {
			return true
		}
	}
	return false
}

// LockExpired reports whether a held lock has outlived its TTL.
func (s *CollaborativeSession) LockExpired(now time.Time) bool {
	if s.LockHolder == "" || s.LockAcquiredAt == nil {
		return true
	}
	return now.Sub(*s.LockAcquiredAt) >= s.LockTTL
}
