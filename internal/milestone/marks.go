package milestone

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MarkStore records the calendar day a user's milestone message last went
// out. Marks are a dedup guard only, never authoritative: losing one costs at
// worst a duplicate send.
type MarkStore interface {
	// LastSent returns the stored day string for the key, or "" when no
	// mark exists.
	LastSent(ctx context.Context, userID string, activation time.Time) (string, error)

	// SetLastSent records day as the last-sent calendar day for the key.
	SetLastSent(ctx context.Context, userID string, activation time.Time, day string) error
}

// RedisMarkStore keeps marks in Redis, shared across all of a user's
// devices. The original client kept these on-device, which both lost them on
// reinstall and let a second device re-send; a shared store fixes both.
type RedisMarkStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisMarkStore creates a RedisMarkStore. The TTL bounds mark lifetime;
// anything past two days can never suppress a send, so a short TTL keeps the
// keyspace clean without affecting correctness.
func NewRedisMarkStore(rdb *redis.Client, ttl time.Duration) *RedisMarkStore {
	return &RedisMarkStore{rdb: rdb, ttl: ttl}
}

// markKey builds the Redis key for a user/activation pair.
func markKey(userID string, activation time.Time) string {
	return fmt.Sprintf("activation_mark:%s:%s", userID, activation.UTC().Format("2006-01-02"))
}

// LastSent returns the stored day string, or "" when the key is absent.
func (s *RedisMarkStore) LastSent(ctx context.Context, userID string, activation time.Time) (string, error) {
	val, err := s.rdb.Get(ctx, markKey(userID, activation)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return val, nil
}

// SetLastSent records the day string under the user's mark key.
func (s *RedisMarkStore) SetLastSent(ctx context.Context, userID string, activation time.Time, day string) error {
	return s.rdb.Set(ctx, markKey(userID, activation), day, s.ttl).Err()
}
