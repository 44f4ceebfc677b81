package readersim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/newsroom/internal/application/reading"
	"github.com/baechuer/newsroom/internal/application/tracking"
	"github.com/baechuer/newsroom/internal/domain"
	"github.com/baechuer/newsroom/internal/infrastructure/httpclient"
)

type ingestRecorder struct {
	mu      sync.Mutex
	batches map[string][]domain.TrackingBatch
	auth    []string
}

func (rec *ingestRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var b domain.TrackingBatch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rec.mu.Lock()
	rec.batches[r.URL.Path] = append(rec.batches[r.URL.Path], b)
	rec.auth = append(rec.auth, r.Header.Get("Authorization"))
	rec.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (rec *ingestRecorder) typesAt(path string) []domain.EventType {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var out []domain.EventType
	for _, b := range rec.batches[path] {
		for _, e := range b.Events {
			out = append(out, e.Type)
		}
	}
	return out
}

func TestRun_EndToEnd(t *testing.T) {
	rec := &ingestRecorder{batches: map[string][]domain.TrackingBatch{}}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	base := srv.URL + "/api/tracking"
	cfg := tracking.DefaultConfig(base)
	cfg.FlushInterval = 0

	sender := httpclient.NewTrackingSender(base, httpclient.DefaultConfig(), zerolog.Nop())
	mgr := tracking.NewManager(cfg, sender, tracking.NewMemoryStore(), zerolog.Nop(),
		tracking.WithTokenSource(func() string { return "tok-u1" }))

	res, err := Run(context.Background(), mgr, Visit{
		ArticleID: "a1",
		UserID:    "u1",
		Steps:     DefaultScript(0),
	}, zerolog.Nop())
	require.NoError(t, err)

	require.NotNil(t, res.Session)
	assert.Equal(t, "a1", res.Session.ArticleID)
	assert.Equal(t, 1, res.Session.ReadingPattern.BackTrackingCount)
	assert.Zero(t, res.Flush.Dropped)

	assert.Contains(t, rec.typesAt("/api/tracking/page-views"), domain.EventPageView)
	assert.Contains(t, rec.typesAt("/api/tracking/interactions"), domain.EventClick)
	assert.Equal(t, []domain.EventType{domain.EventReadingSession}, rec.typesAt("/api/tracking/reading-session"))

	rec.mu.Lock()
	for _, a := range rec.auth {
		assert.Equal(t, "Bearer tok-u1", a)
	}
	rec.mu.Unlock()
}

type fakeManager struct {
	mu       sync.Mutex
	sessions []domain.ReadingSession
	tracked  []domain.EventType
	hidden   []bool
	unloads  int
	destroys int
}

func (f *fakeManager) Initialize(context.Context, string) {}
func (f *fakeManager) Track(_ context.Context, et domain.EventType, _ map[string]any) {
	f.mu.Lock()
	f.tracked = append(f.tracked, et)
	f.mu.Unlock()
}
func (f *fakeManager) TrackReadingSession(_ context.Context, s domain.ReadingSession) {
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
}
func (f *fakeManager) HandleVisibilityChange(_ context.Context, hidden bool) {
	f.hidden = append(f.hidden, hidden)
}
func (f *fakeManager) HandleBeforeUnload(context.Context) { f.unloads++ }
func (f *fakeManager) Destroy(context.Context) tracking.FlushResult {
	f.destroys++
	return tracking.FlushResult{Sent: 3}
}

func TestRun_BeforeUnloadStopsTrackerOnce(t *testing.T) {
	m := &fakeManager{}
	steps := []Step{
		{Signal: reading.Signal{Kind: reading.SignalScroll, ScrollTop: 500, ScrollHeight: 2000, ClientHeight: 500}},
		{Signal: reading.Signal{Kind: reading.SignalVisibility, Hidden: true}},
		{Signal: reading.Signal{Kind: reading.SignalBeforeUnload}},
		{Signal: reading.Signal{Kind: reading.SignalClick, Target: reading.Element{Tag: "BUTTON"}}},
	}

	res, err := Run(context.Background(), m, Visit{ArticleID: "a2", Steps: steps}, zerolog.Nop())
	require.NoError(t, err)

	require.NotNil(t, res.Session)
	assert.Len(t, m.sessions, 1)
	assert.Equal(t, 1, m.unloads)
	assert.Equal(t, []bool{true}, m.hidden)
	assert.Equal(t, 1, m.destroys)
	assert.Equal(t, 3, res.Flush.Sent)
	// the click still reaches the manager; the stopped tracker ignores it
	assert.Equal(t, []domain.EventType{domain.EventClick}, m.tracked)
	assert.Empty(t, res.Session.Interactions)
}

func TestRun_CancelledStillDestroys(t *testing.T) {
	m := &fakeManager{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, m, Visit{ArticleID: "a3", Steps: DefaultScript(time.Hour)}, zerolog.Nop())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.destroys)
	require.NotNil(t, res.Session)
	assert.Len(t, m.sessions, 1)
}

func TestPlayer_UnsubscribeStopsDelivery(t *testing.T) {
	p := NewPlayer([]Step{{Signal: reading.Signal{Kind: reading.SignalClick}}, {Signal: reading.Signal{Kind: reading.SignalClick}}})
	got := 0
	var unsub func()
	unsub = p.Subscribe(func(reading.Signal) {
		got++
		unsub()
	})
	require.NoError(t, p.Play(context.Background(), nil))
	assert.Equal(t, 1, got)
}

func TestLoadScript(t *testing.T) {
	steps, err := LoadScript(strings.NewReader(`[
		{"after":"1s","kind":"scroll","scroll_top":800,"scroll_height":4000,"client_height":800},
		{"kind":"click","target_id":"share","x":3,"y":4},
		{"after":"250ms","kind":"visibility","hidden":true}
	]`))
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, time.Second, steps[0].After)
	assert.Equal(t, 4000.0, steps[0].Signal.ScrollHeight)
	assert.Equal(t, "#share", steps[1].Signal.Target.Selector())
	assert.True(t, steps[2].Signal.Hidden)

	steps, err = LoadScript(strings.NewReader("- after: 2s\n  kind: scroll\n  scroll_top: 100\n  scroll_height: 1100\n  client_height: 100\n- kind: beforeunload\n"))
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 2*time.Second, steps[0].After)
	assert.Equal(t, reading.SignalBeforeUnload, steps[1].Signal.Kind)

	_, err = LoadScript(strings.NewReader(`[{"kind":"hover"}]`))
	assert.ErrorContains(t, err, "unknown kind")

	_, err = LoadScript(strings.NewReader(`[{"after":"soon","kind":"click"}]`))
	assert.ErrorContains(t, err, "bad after")

	_, err = LoadScript(strings.NewReader(`{`))
	assert.Error(t, err)
}
