package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// IdempotencyStore marks keys as done for a TTL. The notify engine uses it to
// send at most one daily digest per user and day.
type IdempotencyStore struct {
	rdb *redis.Client
	lg  zerolog.Logger
}

func NewIdempotencyStore(c *Client, lg zerolog.Logger) *IdempotencyStore {
	return &IdempotencyStore{
		rdb: c.rdb,
		lg:  lg.With().Str("component", "idem_store").Logger(),
	}
}

func (s *IdempotencyStore) Seen(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("empty key")
	}
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *IdempotencyStore) MarkSent(ctx context.Context, key string, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	return s.rdb.Set(ctx, key, "1", ttlOrDefault(ttl)).Err()
}

// MarkSentNX sets the key only if absent and reports whether this call won.
func (s *IdempotencyStore) MarkSentNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("empty key")
	}
	err := s.rdb.SetArgs(ctx, key, "1", redis.SetArgs{Mode: "NX", TTL: ttlOrDefault(ttl)}).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl < time.Second {
		return 24 * time.Hour
	}
	return ttl
}
