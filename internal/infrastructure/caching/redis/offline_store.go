package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/baechuer/newsroom/internal/domain"
)

const defaultOfflineKey = "newsroom:tracking:offline"

// OfflineEventStore keeps tracking events that could not be shipped. The list
// is trimmed to the newest max entries on every append.
type OfflineEventStore struct {
	rdb *redis.Client
	key string
	lg  zerolog.Logger
}

// NewOfflineEventStore scopes the list by session so separate readers do not
// replay each other's events. An empty scope uses one shared list.
func NewOfflineEventStore(c *Client, scope string, lg zerolog.Logger) *OfflineEventStore {
	key := defaultOfflineKey
	if scope != "" {
		key = fmt.Sprintf("%s:%s", defaultOfflineKey, scope)
	}
	return &OfflineEventStore{
		rdb: c.rdb,
		key: key,
		lg:  lg.With().Str("component", "offline_event_store").Logger(),
	}
}

func (s *OfflineEventStore) Append(ctx context.Context, events []domain.TrackingEvent, max int) error {
	if len(events) == 0 {
		return nil
	}
	vals := make([]any, 0, len(events))
	for _, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
		vals = append(vals, b)
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, s.key, vals...)
	if max > 0 {
		pipe.LTrim(ctx, s.key, int64(-max), -1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Load returns stored events oldest first. Entries that no longer decode are
// skipped and logged.
func (s *OfflineEventStore) Load(ctx context.Context) ([]domain.TrackingEvent, error) {
	raw, err := s.rdb.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.TrackingEvent, 0, len(raw))
	for _, r := range raw {
		var ev domain.TrackingEvent
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			s.lg.Warn().Err(err).Msg("dropping undecodable offline event")
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *OfflineEventStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}
