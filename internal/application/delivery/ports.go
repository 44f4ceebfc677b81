package delivery

import (
	"context"
	"time"

	"github.com/baechuer/newsroom/internal/domain"
)

type Op string

const (
	OpNotification Op = "notification"
	OpBroadcast    Op = "broadcast"
)

// Envelope is what a Deliverer pushes to the client.
type Envelope struct {
	Op           Op                        `json:"op"`
	UserID       string                    `json:"user_id"`
	Notification *domain.SmartNotification `json:"notification,omitempty"`
	Broadcast    *domain.BroadcastMessage  `json:"broadcast,omitempty"`
}

type DeliveryResult struct {
	Delivered bool
}

// Deliverer pushes one envelope to one connected client. Implementations must
// be comparable (pointer receivers) and should not block: the registry calls
// Send inline.
type Deliverer interface {
	Send(ctx context.Context, userID string, env Envelope) (DeliveryResult, error)
}

// Store is the durable notification record. Save is an upsert.
type Store interface {
	Save(ctx context.Context, n domain.SmartNotification) error
	ListUnread(ctx context.Context, userID string, limit int) ([]domain.SmartNotification, error)
	MarkSent(ctx context.Context, ids []string, at time.Time) error
	MarkRead(ctx context.Context, id, userID string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
}
