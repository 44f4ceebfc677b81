package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/baechuer/newsroom/internal/domain"
)

// ---- Fake Sender ----

type sentCall struct {
	endpoint string
	batch    domain.TrackingBatch
	bearer   string
}

type fakeSender struct {
	mu    sync.Mutex
	calls []sentCall

	// failFor makes sends to these endpoints fail
	failFor map[string]error
}

func (s *fakeSender) Send(ctx context.Context, endpoint string, batch domain.TrackingBatch, bearer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, sentCall{endpoint: endpoint, batch: batch, bearer: bearer})
	if err, ok := s.failFor[endpoint]; ok {
		return err
	}
	return nil
}

func (s *fakeSender) Calls() []sentCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentCall(nil), s.calls...)
}

func (s *fakeSender) SetFail(endpoint string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor == nil {
		s.failFor = map[string]error{}
	}
	if err == nil {
		delete(s.failFor, endpoint)
		return
	}
	s.failFor[endpoint] = err
}

func (s *fakeSender) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += len(c.batch.Events)
	}
	return n
}

// ---- Failing store ----

type brokenStore struct{}

func (brokenStore) Append(context.Context, []domain.TrackingEvent, int) error {
	return errors.New("quota exceeded")
}
func (brokenStore) Load(context.Context) ([]domain.TrackingEvent, error) { return nil, nil }
func (brokenStore) Clear(context.Context) error                          { return nil }

// ---- Clock / ids ----

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}
