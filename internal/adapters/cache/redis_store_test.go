package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"pressflow/internal/domain"
)

func setupRedisContainer(t *testing.T) (testcontainers.Container, *redis.Client) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)

	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
		DB:   0,
	})

	err = client.Ping(ctx).Err()
	require.NoError(t, err)

	return redisContainer, client
}

func TestRedisStore_SessionRoundTrip(t *testing.T) {
	container, client := setupRedisContainer(t)
	defer container.Terminate(context.Background())

	store := NewRedisStore(client)
	ctx := context.Background()

	session := domain.NewCollaborativeSession("doc-1", []string{"alice", "bob"})
	now := time.Now().Truncate(time.Second)
	session.LockHolder = "alice"
	session.LockAcquiredAt = &now
	session.LockTTL = 30 * time.Minute

	require.NoError(t, store.Put(ctx, session))

	got, err := store.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, session.SessionID, got.SessionID)
	assert.Equal(t, []string{"alice", "bob"}, got.Participants)
	assert.Equal(t, "alice", got.LockHolder)
	assert.Equal(t, 30*time.Minute, got.LockTTL)

	require.NoError(t, store.Delete(ctx, session.SessionID))
	got, err = store.Get(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Nil(t, got, "a missing session reads as nil, not an error")
}

func TestRedisStore_NextSequence(t *testing.T) {
	container, client := setupRedisContainer(t)
	defer container.Terminate(context.Background())

	store := NewRedisStore(client)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		seq, err := store.NextSequence(ctx, "session-1")
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}

	// Independent sessions count independently.
	seq, err := store.NextSequence(ctx, "session-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestRedisStore_NotificationOutbox(t *testing.T) {
	container, client := setupRedisContainer(t)
	defer container.Terminate(context.Background())

	store := NewRedisStore(client)
	ctx := context.Background()

	first := domain.NewNotification("inst-1", "alice", domain.NotifyApprovalRequest,
		"Approval Required", "Please review.", domain.ChannelInApp, domain.ChannelEmail)
	second := domain.NewNotification("inst-1", "bob", domain.NotifyApprovalRequest,
		"Approval Required", "Please review.")
	require.NoError(t, store.Enqueue(ctx, first))
	require.NoError(t, store.Enqueue(ctx, second))

	got, err := store.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID, "the outbox is first in first out")
	assert.Equal(t, []domain.Channel{domain.ChannelInApp, domain.ChannelEmail}, got.Channels)

	got, err = store.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)

	// An empty outbox times out to nil, nil.
	got, err = store.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := domain.NewCollaborativeSession("doc-1", []string{"alice"})
	require.NoError(t, store.Put(ctx, session))

	got, err := store.Get(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session, got)

	seq, err := store.NextSequence(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	require.NoError(t, store.Delete(ctx, session.SessionID))
	got, err = store.Get(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Nil(t, got)

	seq, err = store.NextSequence(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq, "deleting a session resets its sequence")
}
