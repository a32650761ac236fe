package cache

import (
	"context"
	"sync"

	"pressflow/internal/domain"
	"pressflow/internal/ports"
)

// MemoryStore is the process-local SessionStore. Lock state held here is
// lost on crash, bounded by TTL staleness, which the session contract
// permits. Also used by tests.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*domain.CollaborativeSession
	sequences map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*domain.CollaborativeSession),
		sequences: make(map[string]int64),
	}
}

var _ ports.SessionStore = (*MemoryStore)(nil)

func (s *MemoryStore) Put(_ context.Context, session *domain.CollaborativeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*domain.CollaborativeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID], nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.sequences, sessionID)
	return nil
}

func (s *MemoryStore) NextSequence(_ context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[sessionID]++
	return s.sequences[sessionID], nil
}
