package delivery

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/newsroom/internal/domain"
	"github.com/baechuer/newsroom/internal/metrics"
	"github.com/baechuer/newsroom/internal/security"
)

const (
	DefaultPendingCap  = 50
	DefaultUnreadDrain = 100
)

type Config struct {
	PendingCap  int // per user, oldest evicted first
	UnreadDrain int // durable unread rows merged into the drain on connect
}

// AuthResult is returned instead of an error: callers decide what to show.
type AuthResult struct {
	Success bool
	UserID  string
	Error   string
}

type ConnectedUser struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	ConnectedAt time.Time `json:"connected_at"`
}

type Stats struct {
	ConnectedUsers       int             `json:"connected_users"`
	PendingUsers         int             `json:"pending_users"`
	PendingNotifications int             `json:"pending_notifications"`
	DeliveredLive        int64           `json:"delivered_live"`
	Queued               int64           `json:"queued"`
	Evicted              int64           `json:"evicted"`
	DeliveryFailures     int64           `json:"delivery_failures"`
	Users                []ConnectedUser `json:"users"`
}

type subscriber struct {
	ConnectedUser
	d Deliverer
}

// Registry is the in-process directory of connected users and their pending
// queues. It does not coordinate with other instances.
type Registry struct {
	cfg      Config
	verifier security.AccessTokenVerifier
	store    Store
	now      func() time.Time
	lg       zerolog.Logger

	mu      sync.RWMutex
	subs    map[string]*subscriber
	pending map[string][]domain.SmartNotification

	delivered int64
	queued    int64
	evicted   int64
	failures  int64
}

func NewRegistry(cfg Config, verifier security.AccessTokenVerifier, store Store, lg zerolog.Logger) *Registry {
	if cfg.PendingCap <= 0 {
		cfg.PendingCap = DefaultPendingCap
	}
	if cfg.UnreadDrain <= 0 {
		cfg.UnreadDrain = DefaultUnreadDrain
	}
	return &Registry{
		cfg:      cfg,
		verifier: verifier,
		store:    store,
		now:      time.Now,
		lg:       lg.With().Str("component", "delivery_registry").Logger(),
		subs:     make(map[string]*subscriber),
		pending:  make(map[string][]domain.SmartNotification),
	}
}

// WithClock replaces the wall clock; intended for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// AuthenticateUser verifies the token, registers d as the user's subscriber
// and drains everything queued for them while offline. A second
// authentication for the same user replaces the previous subscriber.
func (r *Registry) AuthenticateUser(ctx context.Context, token string, d Deliverer) AuthResult {
	token = strings.TrimSpace(token)
	if token == "" {
		return AuthResult{Error: security.ErrTokenMissing.Error()}
	}
	if d == nil {
		return AuthResult{Error: "no deliverer"}
	}

	claims, err := r.verifier.VerifyAccessToken(token)
	if err != nil {
		r.lg.Warn().Err(err).Msg("authentication failed")
		if errors.Is(err, security.ErrTokenExpired) {
			return AuthResult{Error: security.ErrTokenExpired.Error()}
		}
		return AuthResult{Error: security.ErrTokenInvalid.Error()}
	}
	if claims.UserID == "" {
		return AuthResult{Error: security.ErrTokenInvalid.Error()}
	}
	userID := claims.UserID

	r.mu.Lock()
	_, replaced := r.subs[userID]
	r.subs[userID] = &subscriber{
		ConnectedUser: ConnectedUser{UserID: userID, DisplayName: claims.Name, ConnectedAt: r.now()},
		d:             d,
	}
	queued := r.pending[userID]
	delete(r.pending, userID)
	connected := len(r.subs)
	r.mu.Unlock()

	metrics.SetConnectedUsers(connected)
	r.lg.Info().Str("user_id", userID).Bool("replaced", replaced).Int("queued", len(queued)).Msg("user connected")

	r.drain(ctx, userID, d, queued)
	return AuthResult{Success: true, UserID: userID}
}

func (r *Registry) drain(ctx context.Context, userID string, d Deliverer, queued []domain.SmartNotification) {
	batch := queued
	if r.store != nil {
		unread, err := r.store.ListUnread(ctx, userID, r.cfg.UnreadDrain)
		if err != nil {
			r.lg.Warn().Err(err).Str("user_id", userID).Msg("load unread notifications failed")
		}
		batch = mergeUnique(queued, unread)
	}
	if len(batch) == 0 {
		return
	}

	now := r.now()
	var sent []string
	var failed []domain.SmartNotification
	for i := range batch {
		n := batch[i]
		if n.Status == domain.StatusPending {
			n.Status = domain.StatusSent
			n.SentAt = &now
		}
		if r.push(ctx, userID, d, n) {
			if batch[i].Status == domain.StatusPending {
				sent = append(sent, n.ID)
			}
			continue
		}
		failed = append(failed, batch[i])
	}

	if len(sent) > 0 && r.store != nil {
		if err := r.store.MarkSent(ctx, sent, now); err != nil {
			r.lg.Warn().Err(err).Str("user_id", userID).Int("count", len(sent)).Msg("mark drained notifications sent failed")
		}
	}
	for _, n := range failed {
		r.enqueue(userID, n)
	}

	r.lg.Debug().Str("user_id", userID).Int("drained", len(batch)-len(failed)).Int("requeued", len(failed)).Msg("pending drained")
}

// mergeUnique keeps queue order, appends store-only rows and sorts by age.
func mergeUnique(queued, stored []domain.SmartNotification) []domain.SmartNotification {
	seen := make(map[string]struct{}, len(queued)+len(stored))
	out := make([]domain.SmartNotification, 0, len(queued)+len(stored))
	for _, list := range [][]domain.SmartNotification{queued, stored} {
		for _, n := range list {
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// DisconnectUser removes the user's subscriber. Durable state is untouched.
func (r *Registry) DisconnectUser(userID string) {
	r.mu.Lock()
	_, ok := r.subs[userID]
	delete(r.subs, userID)
	connected := len(r.subs)
	r.mu.Unlock()

	if ok {
		metrics.SetConnectedUsers(connected)
		r.lg.Info().Str("user_id", userID).Msg("user disconnected")
	}
}

// Detach is DisconnectUser for a specific subscriber: it is a no-op when the
// user has since re-authenticated with another deliverer.
func (r *Registry) Detach(userID string, d Deliverer) {
	r.mu.Lock()
	sub, ok := r.subs[userID]
	if !ok || sub.d != d {
		r.mu.Unlock()
		return
	}
	delete(r.subs, userID)
	connected := len(r.subs)
	r.mu.Unlock()

	metrics.SetConnectedUsers(connected)
	r.lg.Info().Str("user_id", userID).Msg("user disconnected")
}

// SendToUser delivers n live when the user is connected and queues it
// otherwise. Either way the notification is saved exactly once. The bool
// reports live delivery; err is only a persistence failure, already logged.
func (r *Registry) SendToUser(ctx context.Context, userID string, n domain.SmartNotification) (bool, error) {
	n.UserID = userID
	if n.Status == "" {
		n.Status = domain.StatusPending
	}

	r.mu.RLock()
	sub := r.subs[userID]
	r.mu.RUnlock()

	live := false
	if sub != nil {
		now := r.now()
		out := n
		out.Status = domain.StatusSent
		out.SentAt = &now
		if r.push(ctx, userID, sub.d, out) {
			n = out
			live = true
		}
	}
	if !live {
		r.enqueue(userID, n)
	}
	metrics.RecordDelivery(live)

	if r.store == nil {
		return live, nil
	}
	if err := r.store.Save(ctx, n); err != nil {
		r.lg.Error().Err(err).
			Str("user_id", userID).
			Str("notification_id", n.ID).
			Msg("persist notification failed")
		return live, domain.ErrPersistence("save notification", err)
	}
	return live, nil
}

func (r *Registry) push(ctx context.Context, userID string, d Deliverer, n domain.SmartNotification) bool {
	res, err := d.Send(ctx, userID, Envelope{Op: OpNotification, UserID: userID, Notification: &n})
	if err != nil || !res.Delivered {
		r.mu.Lock()
		r.failures++
		r.mu.Unlock()
		r.lg.Warn().Err(err).
			Str("user_id", userID).
			Str("notification_id", n.ID).
			Msg("live delivery failed; queueing")
		return false
	}
	r.mu.Lock()
	r.delivered++
	r.mu.Unlock()
	return true
}

func (r *Registry) enqueue(userID string, n domain.SmartNotification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := append(r.pending[userID], n)
	if over := len(q) - r.cfg.PendingCap; over > 0 {
		r.evicted += int64(over)
		q = append([]domain.SmartNotification(nil), q[over:]...)
	}
	r.pending[userID] = q
	r.queued++
}

// BroadcastToAll pushes msg to every connected subscriber. Nothing is stored.
// It returns how many subscribers accepted the message.
func (r *Registry) BroadcastToAll(ctx context.Context, msg domain.BroadcastMessage) int {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now()
	}

	r.mu.RLock()
	subs := make([]*subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.RUnlock()

	ok := 0
	for _, s := range subs {
		m := msg
		res, err := s.d.Send(ctx, s.UserID, Envelope{Op: OpBroadcast, UserID: s.UserID, Broadcast: &m})
		if err != nil || !res.Delivered {
			r.lg.Debug().Err(err).Str("user_id", s.UserID).Msg("broadcast not delivered")
			continue
		}
		ok++
	}
	r.lg.Info().Int("subscribers", len(subs)).Int("delivered", ok).Msg("broadcast sent")
	return ok
}

// MarkNotificationAsRead only touches notifications owned by userID.
func (r *Registry) MarkNotificationAsRead(ctx context.Context, notificationID, userID string) bool {
	if notificationID == "" || userID == "" {
		return false
	}
	r.dropPending(userID, func(n domain.SmartNotification) bool { return n.ID == notificationID })

	if r.store == nil {
		return false
	}
	ok, err := r.store.MarkRead(ctx, notificationID, userID, r.now())
	if err != nil {
		r.lg.Warn().Err(err).
			Str("user_id", userID).
			Str("notification_id", notificationID).
			Msg("mark read failed")
		return false
	}
	return ok
}

func (r *Registry) MarkAllNotificationsAsRead(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	r.dropPending(userID, func(domain.SmartNotification) bool { return true })

	if r.store == nil {
		return false
	}
	n, err := r.store.MarkAllRead(ctx, userID, r.now())
	if err != nil {
		r.lg.Warn().Err(err).Str("user_id", userID).Msg("mark all read failed")
		return false
	}
	r.lg.Debug().Str("user_id", userID).Int64("rows", n).Msg("marked all read")
	return true
}

func (r *Registry) dropPending(userID string, match func(domain.SmartNotification) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := r.pending[userID]
	kept := q[:0]
	for _, n := range q {
		if !match(n) {
			kept = append(kept, n)
		}
	}
	if len(kept) == 0 {
		delete(r.pending, userID)
		return
	}
	r.pending[userID] = kept
}

func (r *Registry) GetConnectedUsersCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) IsUserConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[userID]
	return ok
}

// PendingFor returns a copy of the user's in-memory queue, oldest first.
func (r *Registry) PendingFor(userID string) []domain.SmartNotification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.SmartNotification(nil), r.pending[userID]...)
}

func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{
		ConnectedUsers:   len(r.subs),
		PendingUsers:     len(r.pending),
		DeliveredLive:    r.delivered,
		Queued:           r.queued,
		Evicted:          r.evicted,
		DeliveryFailures: r.failures,
		Users:            make([]ConnectedUser, 0, len(r.subs)),
	}
	for _, q := range r.pending {
		st.PendingNotifications += len(q)
	}
	for _, s := range r.subs {
		st.Users = append(st.Users, s.ConnectedUser)
	}
	sort.Slice(st.Users, func(i, j int) bool { return st.Users[i].UserID < st.Users[j].UserID })
	return st
}
