package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is a Store backed by go-redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a Redis backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: TTL}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("liveness:session:%s", sessionID)
}

// Save writes the record with the auth token TTL.
func (s *RedisStore) Save(ctx context.Context, record *Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize session record: %w", err)
	}
	return s.client.Set(ctx, sessionKey(record.SessionID), payload, s.ttl).Err()
}

// Get loads a record, returning ErrNotFound when the key is absent or expired.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Record, error) {
	value, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return nil, fmt.Errorf("failed to decode session record: %w", err)
	}
	return &record, nil
}

var _ Store = (*RedisStore)(nil)
