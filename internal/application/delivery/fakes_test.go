package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/baechuer/newsroom/internal/domain"
	"github.com/baechuer/newsroom/internal/security"
)

// ---- Fake verifier ----

// fakeVerifier accepts "tok-<user>" and rejects everything else.
type fakeVerifier struct{}

func (fakeVerifier) VerifyAccessToken(token string) (security.TokenClaims, error) {
	switch {
	case token == "expired":
		return security.TokenClaims{}, security.ErrTokenExpired
	case len(token) > 4 && token[:4] == "tok-":
		return security.TokenClaims{UserID: token[4:], Name: "name-" + token[4:]}, nil
	}
	return security.TokenClaims{}, security.ErrTokenInvalid
}

// ---- Fake store ----

type fakeStore struct {
	mu      sync.Mutex
	saves   []domain.SmartNotification
	unread  map[string][]domain.SmartNotification
	sent    []string
	read    map[string]string // id -> owner
	saveErr error
	listErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{unread: map[string][]domain.SmartNotification{}, read: map[string]string{}}
}

func (s *fakeStore) Save(ctx context.Context, n domain.SmartNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, n)
	return s.saveErr
}

func (s *fakeStore) ListUnread(ctx context.Context, userID string, limit int) ([]domain.SmartNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]domain.SmartNotification(nil), s.unread[userID]...), nil
}

func (s *fakeStore) MarkSent(ctx context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	return nil
}

// MarkRead succeeds only for ids registered as owned by userID.
func (s *fakeStore) MarkRead(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.read[id]
	return ok && owner == userID, nil
}

func (s *fakeStore) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	return 3, nil
}

func (s *fakeStore) Saves() []domain.SmartNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SmartNotification(nil), s.saves...)
}

// ---- Fake deliverer ----

type fakeDeliverer struct {
	mu   sync.Mutex
	got  []Envelope
	fail bool
}

func (d *fakeDeliverer) Send(ctx context.Context, userID string, env Envelope) (DeliveryResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return DeliveryResult{}, errors.New("send buffer full")
	}
	d.got = append(d.got, env)
	return DeliveryResult{Delivered: true}, nil
}

func (d *fakeDeliverer) Received() []Envelope {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Envelope(nil), d.got...)
}

func note(id string, at time.Time) domain.SmartNotification {
	return domain.SmartNotification{
		ID:        id,
		Type:      domain.NotificationNewArticle,
		Title:     "t-" + id,
		Priority:  domain.PriorityMedium,
		Status:    domain.StatusPending,
		CreatedAt: at,
	}
}
