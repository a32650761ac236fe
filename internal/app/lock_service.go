package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"pressflow/internal/domain"
	"pressflow/internal/ports"
)

// LockService owns collaborative sessions and their exclusive editing
// locks. Lock expiry is evaluated lazily against the TTL, so a crashed
// holder blocks other participants for at most one TTL.
type LockService struct {
	store  ports.SessionStore
	notify ports.NotificationQueue

	// Session operations for one sessionID never interleave.
	sessions *keyedMutex

	now func() time.Time
}

func NewLockService(store ports.SessionStore, notify ports.NotificationQueue) *LockService {
	return &LockService{
		store:    store,
		notify:   notify,
		sessions: newKeyedMutex(),
		now:      time.Now,
	}
}

// CreateSession opens a collaborative session for a document.
func (s *LockService) CreateSession(ctx context.Context, documentID string, participants []string) (*domain.CollaborativeSession, error) {
	if documentID == "" {
		return nil, domain.Validationf("documentId is required")
	}
	if len(participants) == 0 {
		return nil, domain.Validationf("a session requires at least one participant")
	}
	session := domain.NewCollaborativeSession(documentID, participants)
	if err := s.store.Put(ctx, session); err != nil {
		return nil, err
	}
	log.Printf("Collaborative session %s created for document %s (%d participants)", session.SessionID, documentID, len(participants))
	for _, p := range participants {
		s.enqueue(ctx, domain.NewNotification("", p, domain.NotifySessionChange,
			"Collaborative Editing Session Started",
			fmt.Sprintf("You can now collaboratively edit document %s.", documentID),
			domain.ChannelInApp, domain.ChannelEmail))
	}
	return session, nil
}

func (s *LockService) GetSession(ctx context.Context, sessionID string) (*domain.CollaborativeSession, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || !session.Active {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Acquire grants principal the exclusive editing lock for ttl. Re-acquiring
// while already holding is a no-op success and does not extend the TTL.
func (s *LockService) Acquire(ctx context.Context, sessionID, principal string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s.sessions.Lock(sessionID)
	defer s.sessions.Unlock(sessionID)

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !session.HasParticipant(principal) {
		return false, domain.ErrNotParticipant
	}

	now := s.now()
	if session.LockHolder != "" && !session.LockExpired(now) {
		if session.LockHolder == principal {
			return true, nil
		}
		return false, domain.ErrLocked
	}

	session.LockHolder = principal
	session.LockAcquiredAt = &now
	session.LockTTL = ttl
	if err := s.store.Put(ctx, session); err != nil {
		return false, err
	}
	log.Printf("Lock on session %s acquired by %s for %s", sessionID, principal, ttl)
	s.broadcast(ctx, session, principal, domain.NotifyLockAcquired,
		"Document Locked for Editing",
		fmt.Sprintf("The document is locked for exclusive editing. The lock expires in %s unless released earlier.", ttl))
	return true, nil
}

// Release gives the lock back. Only the current holder may release.
func (s *LockService) Release(ctx context.Context, sessionID, principal string) (bool, error) {
	s.sessions.Lock(sessionID)
	defer s.sessions.Unlock(sessionID)

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if session.LockHolder == "" || session.LockExpired(s.now()) {
		return false, nil
	}
	if session.LockHolder != principal {
		return false, domain.ErrNotLockOwner
	}

	session.LockHolder = ""
	session.LockAcquiredAt = nil
	session.LockTTL = 0
	if err := s.store.Put(ctx, session); err != nil {
		return false, err
	}
	log.Printf("Lock on session %s released by %s", sessionID, principal)
	s.broadcast(ctx, session, principal, domain.NotifyLockReleased,
		"Document Lock Released",
		"The document is now available for editing by all participants.")
	return true, nil
}

// RecordChange appends to the session's change feed with a strictly
// increasing sequence number so the feed can be replayed later.
func (s *LockService) RecordChange(ctx context.Context, sessionID, principal string, kind domain.ChangeKind, description string, payload json.RawMessage) (bool, error) {
	s.sessions.Lock(sessionID)
	defer s.sessions.Unlock(sessionID)

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !session.HasParticipant(principal) {
		return false, domain.ErrNotParticipant
	}

	seq, err := s.store.NextSequence(ctx, sessionID)
	if err != nil {
		return false, err
	}
	session.Changes = append(session.Changes, domain.ChangeEntry{
		Sequence:    seq,
		Actor:       principal,
		Timestamp:   s.now(),
		Kind:        kind,
		Description: description,
		Payload:     payload,
	})
	if err := s.store.Put(ctx, session); err != nil {
		return false, err
	}
	s.broadcast(ctx, session, principal, domain.NotifySessionChange,
		"Document Updated in Collaborative Session",
		description+" by another collaborator.")
	return true, nil
}

// CloseSession deactivates a session, dropping any held lock with it.
func (s *LockService) CloseSession(ctx context.Context, sessionID string) error {
	s.sessions.Lock(sessionID)
	defer s.sessions.Unlock(sessionID)

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return domain.ErrSessionNotFound
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	log.Printf("Collaborative session %s closed", sessionID)
	return nil
}

// broadcast notifies every participant except actor.
func (s *LockService) broadcast(ctx context.Context, session *domain.CollaborativeSession, actor string, kind domain.NotificationKind, title, message string) {
	for _, p := range session.Participants {
		if p == actor {
			continue
		}
		s.enqueue(ctx, domain.NewNotification("", p, kind, title, message))
	}
}

func (s *LockService) enqueue(ctx context.Context, n *domain.Notification) {
	if s.notify == nil {
		return
	}
	if err := s.notify.Enqueue(ctx, n); err != nil {
		log.Printf("Failed to enqueue %s notification for %s: %v", n.Kind, n.RecipientID, err)
	}
}
