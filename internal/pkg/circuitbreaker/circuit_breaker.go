package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // requests pass through
	StateOpen                  // requests fail fast
	StateHalfOpen              // a limited number of probes pass
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

var (
	ErrOpen          = errors.New("circuit breaker is open")
	ErrHalfOpenLimit = errors.New("circuit breaker half-open limit reached")
)

// Breaker stops calling a failing backend for resetTimeout after maxFailures
// consecutive failures.
type Breaker struct {
	maxFailures      int
	resetTimeout     time.Duration
	halfOpenMaxCalls int
	now              func() time.Time

	mu            sync.Mutex
	state         State
	failureCount  int
	openedAt      time.Time
	halfOpenCalls int
}

func New(maxFailures int, resetTimeout time.Duration, halfOpenMaxCalls int) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if halfOpenMaxCalls <= 0 {
		halfOpenMaxCalls = 1
	}
	return &Breaker{
		maxFailures:      maxFailures,
		resetTimeout:     resetTimeout,
		halfOpenMaxCalls: halfOpenMaxCalls,
		now:              time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Call runs fn unless the breaker is open. A cancelled ctx is returned as-is
// and does not count as a backend failure.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.release()
		return err
	}
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		b.state = StateHalfOpen
		b.halfOpenCalls = 0
	}

	switch b.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.halfOpenCalls >= b.halfOpenMaxCalls {
			return ErrHalfOpenLimit
		}
		b.halfOpenCalls++
	}
	return nil
}

func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.halfOpenCalls > 0 {
		b.halfOpenCalls--
	}
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failureCount = 0
		b.state = StateClosed
		b.halfOpenCalls = 0
		return
	}

	b.failureCount++
	if b.state == StateHalfOpen || b.failureCount >= b.maxFailures {
		b.state = StateOpen
		b.openedAt = b.now()
		b.halfOpenCalls = 0
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
