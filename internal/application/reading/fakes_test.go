package reading

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/baechuer/newsroom/internal/domain"
)

// ---- Fake signal source ----

type fakeSource struct {
	mu          sync.Mutex
	handler     SignalHandler
	subscribes  int
	unsubscribe int
}

func (s *fakeSource) Subscribe(h SignalHandler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribes++
	s.handler = h
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.unsubscribe++
		s.handler = nil
	}
}

// Emit calls the handler without holding the source lock.
func (s *fakeSource) Emit(sig Signal) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(sig)
	}
}

func (s *fakeSource) Scroll(pct float64) {
	// 1000px scrollable: scrollTop maps 1:10 to percent
	s.Emit(Signal{Kind: SignalScroll, ScrollTop: pct * 10, ScrollHeight: 1800, ClientHeight: 800})
}

// ---- Fake clock ----

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and fires due timers outside the clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// ---- Fake sink ----

type fakeSink struct {
	mu       sync.Mutex
	sessions []domain.ReadingSession
}

func (s *fakeSink) TrackReadingSession(ctx context.Context, rs domain.ReadingSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, rs)
}

func (s *fakeSink) Sessions() []domain.ReadingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ReadingSession(nil), s.sessions...)
}
