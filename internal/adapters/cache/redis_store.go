package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"pressflow/internal/domain"
	"pressflow/internal/ports"
)

const (
	sessionKeyPrefix = "pressflow:session:"
	sequenceSuffix   = ":seq"
	notificationKey  = "pressflow:notifications"

	// Sessions are ephemeral; anything idle this long is torn down.
	sessionTTL = 24 * time.Hour
)

// RedisStore backs collaborative sessions and the notification outbox with
// a TTL-capable shared cache, so session state survives an api-server
// restart without a durable row.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func NewRedisStoreFromEnv() *RedisStore {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	password := getEnv("REDIS_PASSWORD", "")

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	return &RedisStore{client: rdb}
}

var _ ports.SessionStore = (*RedisStore)(nil)
var _ ports.NotificationQueue = (*RedisStore)(nil)

func (s *RedisStore) Put(ctx context.Context, session *domain.CollaborativeSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKeyPrefix+session.SessionID, payload, sessionTTL).Err()
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*domain.CollaborativeSession, error) {
	payload, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session domain.CollaborativeSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionKeyPrefix+sessionID, sessionKeyPrefix+sessionID+sequenceSuffix).Err()
}

func (s *RedisStore) NextSequence(ctx context.Context, sessionID string) (int64, error) {
	return s.client.Incr(ctx, sessionKeyPrefix+sessionID+sequenceSuffix).Result()
}

// Enqueue pushes a notification onto the outbox list. Delivery happens on
// the dispatcher's schedule, never on the caller's.
func (s *RedisStore) Enqueue(ctx context.Context, n *domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.client.LPush(ctx, notificationKey, payload).Err()
}

// Dequeue blocks up to timeout for the next queued notification.
// Returns nil, nil when the timeout expires with nothing queued.
func (s *RedisStore) Dequeue(ctx context.Context, timeout time.Duration) (*domain.Notification, error) {
	values, err := s.client.BRPop(ctx, timeout, notificationKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var n domain.Notification
	if err := json.Unmarshal([]byte(values[1]), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
