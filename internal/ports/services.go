package ports

import (
	"context"

	"pressflow/internal/domain"
)

// DocumentStore is the external content collaborator. Content bytes never
// enter the state machine; they are only fetched at publish time.
type DocumentStore interface {
	GetContent(ctx context.Context, documentID string) ([]byte, error)
	PersistVersion(ctx context.Context, documentID string, content []byte, metadata map[string]string) (string, error)
}

// NotificationQueue decouples notification delivery from workflow
// transitions. Enqueue must be cheap and never block on a delivery channel.
type NotificationQueue interface {
	Enqueue(ctx context.Context, n *domain.Notification) error
}

// SessionStore holds collaborative sessions. Implementations may be
// memory-only or backed by a TTL-capable shared cache; state need only
// survive the owning process.
type SessionStore interface {
	Put(ctx context.Context, s *domain.CollaborativeSession) error
	Get(ctx context.Context, sessionID string) (*domain.CollaborativeSession, error)
	Delete(ctx context.Context, sessionID string) error
	// NextSequence returns a strictly increasing change-log sequence for the
	// session.
	NextSequence(ctx context.Context, sessionID string) (int64, error)
}

// DestinationPublisher delivers a published document to one destination
// kind. One implementation exists per kind; dispatch is by tag, never by
// string-keyed branching in the core.
type DestinationPublisher interface {
	Kind() domain.DestinationKind
	Publish(ctx context.Context, inst *domain.PublishingInstance, dest domain.Destination, content []byte) (location string, err error)
}
