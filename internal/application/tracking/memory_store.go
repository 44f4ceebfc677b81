package tracking

import (
	"context"
	"sync"

	"github.com/baechuer/newsroom/internal/domain"
)

// MemoryStore is an in-process OfflineStore.
type MemoryStore struct {
	mu     sync.Mutex
	events []domain.TrackingEvent
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(_ context.Context, events []domain.TrackingEvent, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, events...)
	if max > 0 && len(s.events) > max {
		s.events = append([]domain.TrackingEvent(nil), s.events[len(s.events)-max:]...)
	}
	return nil
}

func (s *MemoryStore) Load(_ context.Context) ([]domain.TrackingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TrackingEvent(nil), s.events...), nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
