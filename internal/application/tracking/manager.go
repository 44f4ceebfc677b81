package tracking

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/baechuer/newsroom/internal/domain"
	"github.com/baechuer/newsroom/internal/metrics"
	"github.com/baechuer/newsroom/internal/tracing"
)

// FlushResult counts what happened to the events of one flush.
type FlushResult struct {
	Sent      int
	Persisted int
	Dropped   int
}

func (r *FlushResult) add(o FlushResult) {
	r.Sent += o.Sent
	r.Persisted += o.Persisted
	r.Dropped += o.Dropped
}

// Manager batches tracking events and ships them to the ingestion API.
// Track never blocks on the network.
type Manager struct {
	cfg       Config
	enabled   map[domain.EventType]struct{}
	immediate map[domain.EventType]struct{}

	sender  Sender
	store   OfflineStore
	tokens  TokenSource
	env     ContextSource
	clock   Clock
	lg      zerolog.Logger
	newID   func() string
	session string

	mu          sync.Mutex
	initialized bool
	online      bool
	userID      string
	queue       []domain.TrackingEvent
	stopTicker  chan struct{}
	tickerDone  chan struct{}

	inflight sync.WaitGroup
}

type Option func(*Manager)

func WithClock(c Clock) Option { return func(m *Manager) { m.clock = c } }

func WithTokenSource(ts TokenSource) Option { return func(m *Manager) { m.tokens = ts } }

func WithContextSource(cs ContextSource) Option { return func(m *Manager) { m.env = cs } }

func WithSessionID(id string) Option { return func(m *Manager) { m.session = id } }

func WithIDGenerator(f func() string) Option { return func(m *Manager) { m.newID = f } }

// NewManager builds an uninitialized manager. store may be nil, in which case
// failed batches are dropped and logged.
func NewManager(cfg Config, sender Sender, store OfflineStore, lg zerolog.Logger, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:       cfg,
		enabled:   toSet(cfg.EnabledEvents),
		immediate: toSet(cfg.FlushImmediately),
		sender:    sender,
		store:     store,
		tokens:    func() string { return "" },
		env:       func() domain.ClientContext { return domain.ClientContext{} },
		clock:     realClock{},
		lg:        lg.With().Str("component", "tracking_manager").Logger(),
		newID:     uuid.NewString,
		online:    true,
	}
	for _, o := range opts {
		o(m)
	}
	if m.session == "" {
		m.session = m.newID()
	}
	return m
}

func toSet(types []domain.EventType) map[domain.EventType]struct{} {
	out := make(map[domain.EventType]struct{}, len(types))
	for _, t := range types {
		out[t] = struct{}{}
	}
	return out
}

func (m *Manager) SessionID() string { return m.session }

// Initialize restores events left over from an offline period, starts the
// periodic flush and records a page view. A second call only logs.
func (m *Manager) Initialize(ctx context.Context, userID string) {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		m.lg.Warn().Msg("tracking manager already initialized")
		return
	}
	m.initialized = true
	if userID = strings.TrimSpace(userID); userID != "" {
		m.userID = userID
	}
	m.mu.Unlock()

	m.restoreOffline(ctx)
	m.startTicker()

	env := m.env()
	m.Track(ctx, domain.EventPageView, map[string]any{
		"page_url": env.PageURL,
		"referrer": env.Referrer,
	})

	m.lg.Info().Str("session_id", m.session).Str("user_id", userID).Msg("tracking manager initialized")
}

func (m *Manager) restoreOffline(ctx context.Context) {
	if m.store == nil {
		return
	}
	events, err := m.store.Load(ctx)
	if err != nil {
		m.lg.Warn().Err(err).Msg("load offline events failed")
		return
	}
	if len(events) == 0 {
		return
	}
	if err := m.store.Clear(ctx); err != nil {
		m.lg.Warn().Err(err).Msg("clear offline events failed")
		return
	}

	m.mu.Lock()
	m.queue = append(events, m.queue...)
	m.mu.Unlock()

	m.lg.Info().Int("count", len(events)).Msg("restored offline events")
}

func (m *Manager) startTicker() {
	if m.cfg.FlushInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})

	m.mu.Lock()
	m.stopTicker = stop
	m.tickerDone = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		t := time.NewTicker(m.cfg.FlushInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				ctx := context.Background()
				m.retryOffline(ctx)
				m.Flush(ctx)
			}
		}
	}()
}

// Track queues one event. It is a logged no-op before Initialize or for a
// disabled type.
func (m *Manager) Track(ctx context.Context, eventType domain.EventType, data map[string]any) {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		m.lg.Warn().Str("event_type", string(eventType)).Msg("track called before initialize")
		return
	}
	if _, ok := m.enabled[eventType]; !ok {
		m.mu.Unlock()
		m.lg.Debug().Str("event_type", string(eventType)).Msg("event type disabled")
		return
	}

	data = copyPayload(data, m.cfg.PrivacyMode)

	m.queue = append(m.queue, domain.TrackingEvent{
		ID:        m.newID(),
		Type:      eventType,
		Timestamp: m.clock.Now().UnixMilli(),
		Payload:   data,
		SessionID: m.session,
		UserID:    m.userID,
	})

	_, now := m.immediate[eventType]
	if !now && len(m.queue) < m.cfg.BatchSize {
		m.mu.Unlock()
		return
	}
	batch := m.swapLocked()
	m.mu.Unlock()

	m.dispatch(ctx, batch)
}

// TrackReadingSession queues a finished reading session.
func (m *Manager) TrackReadingSession(ctx context.Context, s domain.ReadingSession) {
	payload, err := toPayload(s)
	if err != nil {
		m.lg.Warn().Err(err).Str("session_id", s.SessionID).Msg("encode reading session failed")
		return
	}
	m.Track(ctx, domain.EventReadingSession, payload)
}

func (m *Manager) swapLocked() []domain.TrackingEvent {
	batch := m.queue
	m.queue = nil
	return batch
}

func (m *Manager) dispatch(ctx context.Context, batch []domain.TrackingEvent) {
	if len(batch) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		m.ship(ctx, batch)
	}()
}

// Flush sends everything queued, one request per event type. Failed groups go
// to the offline store.
func (m *Manager) Flush(ctx context.Context) FlushResult {
	m.mu.Lock()
	batch := m.swapLocked()
	m.mu.Unlock()

	if len(batch) == 0 {
		return FlushResult{}
	}
	return m.ship(ctx, batch)
}

func (m *Manager) ship(ctx context.Context, batch []domain.TrackingEvent) FlushResult {
	ctx, span := tracing.StartSpan(ctx, "tracking.flush")
	defer span.End()
	span.SetAttributes(attribute.Int("tracking.events", len(batch)))

	m.mu.Lock()
	online := m.online
	userID := m.userID
	m.mu.Unlock()

	if !online {
		return m.persist(ctx, batch, "offline")
	}

	bearer := ""
	if userID != "" {
		bearer = m.tokens()
	}
	env := m.env()

	var res FlushResult
	var failed []domain.TrackingEvent

	for _, g := range groupByType(batch) {
		endpoint := m.endpointFor(g.eventType)
		body := domain.TrackingBatch{
			Events:    g.events,
			SessionID: m.session,
			Context:   env,
			BatchID:   m.newID(),
		}

		if err := m.sender.Send(ctx, endpoint, body, bearer); err != nil {
			span.RecordError(err)
			m.lg.Warn().Err(err).
				Str("event_type", string(g.eventType)).
				Int("count", len(g.events)).
				Bool("permanent", isPermanent(err)).
				Msg("send batch failed")
			failed = append(failed, g.events...)
			continue
		}
		res.Sent += len(g.events)
		metrics.RecordFlush(string(g.eventType), "sent", len(g.events))
	}

	if len(failed) > 0 {
		res.add(m.persist(ctx, failed, "send_failed"))
	}
	return res
}

func (m *Manager) persist(ctx context.Context, events []domain.TrackingEvent, reason string) FlushResult {
	if m.store == nil {
		m.lg.Warn().Int("count", len(events)).Str("reason", reason).Msg("no offline store; events lost")
		recordByType(events, "dropped")
		return FlushResult{Dropped: len(events)}
	}
	if err := m.store.Append(ctx, events, m.cfg.MaxOfflineEvents); err != nil {
		m.lg.Warn().Err(err).Int("count", len(events)).Msg("persist offline events failed; events lost")
		recordByType(events, "dropped")
		return FlushResult{Dropped: len(events)}
	}
	m.lg.Info().Int("count", len(events)).Str("reason", reason).Msg("events persisted offline")
	recordByType(events, "persisted")
	return FlushResult{Persisted: len(events)}
}

func recordByType(events []domain.TrackingEvent, result string) {
	for _, g := range groupByType(events) {
		metrics.RecordFlush(string(g.eventType), result, len(g.events))
	}
}

// retryOffline pulls persisted events and ships them again.
func (m *Manager) retryOffline(ctx context.Context) FlushResult {
	if m.store == nil {
		return FlushResult{}
	}
	m.mu.Lock()
	online := m.online
	m.mu.Unlock()
	if !online {
		return FlushResult{}
	}

	events, err := m.store.Load(ctx)
	if err != nil {
		m.lg.Warn().Err(err).Msg("load offline events failed")
		return FlushResult{}
	}
	if len(events) == 0 {
		return FlushResult{}
	}
	if err := m.store.Clear(ctx); err != nil {
		m.lg.Warn().Err(err).Msg("clear offline events failed")
		return FlushResult{}
	}
	return m.ship(ctx, events)
}

type typeGroup struct {
	eventType domain.EventType
	events    []domain.TrackingEvent
}

// groupByType keeps first-seen order of types and event order within a type.
func groupByType(events []domain.TrackingEvent) []typeGroup {
	idx := make(map[domain.EventType]int)
	var out []typeGroup
	for _, e := range events {
		i, ok := idx[e.Type]
		if !ok {
			i = len(out)
			idx[e.Type] = i
			out = append(out, typeGroup{eventType: e.Type})
		}
		out[i].events = append(out[i].events, e)
	}
	return out
}

func (m *Manager) endpointFor(t domain.EventType) string {
	base := strings.TrimRight(m.cfg.APIEndpoint, "/")
	if p, ok := m.cfg.Endpoints[t]; ok {
		return base + p
	}
	return base + "/interactions"
}

// SetUserID attributes events created from now on to userID.
func (m *Manager) SetUserID(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userID = strings.TrimSpace(userID)
}

// SetOnline records network status. Going online retries offline events.
func (m *Manager) SetOnline(ctx context.Context, online bool) FlushResult {
	m.mu.Lock()
	was := m.online
	m.online = online
	initialized := m.initialized
	m.mu.Unlock()

	if !online || was || !initialized {
		return FlushResult{}
	}
	m.lg.Info().Msg("back online; retrying offline events")
	return m.retryOffline(ctx)
}

// HandleVisibilityChange flushes when the page becomes hidden.
func (m *Manager) HandleVisibilityChange(ctx context.Context, hidden bool) {
	if hidden {
		m.Flush(ctx)
	}
}

// HandleBeforeUnload makes a last flush attempt.
func (m *Manager) HandleBeforeUnload(ctx context.Context) {
	m.Flush(ctx)
}

// Destroy flushes, stops the periodic timer and marks the manager
// uninitialized. Requests already in flight are awaited, not aborted.
func (m *Manager) Destroy(ctx context.Context) FlushResult {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return FlushResult{}
	}
	m.mu.Unlock()

	res := m.Flush(ctx)

	m.mu.Lock()
	stop, done := m.stopTicker, m.tickerDone
	m.stopTicker, m.tickerDone = nil, nil
	m.initialized = false
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	m.Wait()

	m.lg.Info().Str("session_id", m.session).Msg("tracking manager destroyed")
	return res
}

// Wait blocks until asynchronous flushes started by Track have finished.
func (m *Manager) Wait() { m.inflight.Wait() }

func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}
