package tracking

import (
	"context"
	"time"

	"github.com/baechuer/newsroom/internal/domain"
)

// Sender ships one batch of same-typed events to endpoint. A nil error is the
// only success signal.
type Sender interface {
	Send(ctx context.Context, endpoint string, batch domain.TrackingBatch, bearer string) error
}

// OfflineStore keeps events whose delivery failed. Append must keep only the
// most recent max events across everything stored.
type OfflineStore interface {
	Append(ctx context.Context, events []domain.TrackingEvent, max int) error
	Load(ctx context.Context) ([]domain.TrackingEvent, error)
	Clear(ctx context.Context) error
}

// TokenSource returns the bearer token for the current user, or "".
type TokenSource func() string

// ContextSource describes the client environment for each batch.
type ContextSource func() domain.ClientContext

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
