// Package readersim drives the reading tracker and the tracking manager with
// scripted signals, standing in for a browser.
package readersim

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/newsroom/internal/application/reading"
	"github.com/baechuer/newsroom/internal/application/tracking"
	"github.com/baechuer/newsroom/internal/domain"
)

// Player is a reading.SignalSource that replays a script.
type Player struct {
	steps []Step

	mu      sync.Mutex
	handler reading.SignalHandler
}

func NewPlayer(steps []Step) *Player { return &Player{steps: steps} }

func (p *Player) Subscribe(h reading.SignalHandler) func() {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.handler = nil
		p.mu.Unlock()
	}
}

// Play fires every step in order, calling observe before handing the signal
// to the subscriber. It returns early when ctx ends.
func (p *Player) Play(ctx context.Context, observe func(reading.Signal)) error {
	for _, s := range p.steps {
		if s.After > 0 {
			t := time.NewTimer(s.After)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if observe != nil {
			observe(s.Signal)
		}
		p.mu.Lock()
		h := p.handler
		p.mu.Unlock()
		if h != nil {
			h(s.Signal)
		}
	}
	return nil
}

// Manager is the subset of tracking.Manager the simulation drives.
type Manager interface {
	Initialize(ctx context.Context, userID string)
	Track(ctx context.Context, eventType domain.EventType, data map[string]any)
	TrackReadingSession(ctx context.Context, s domain.ReadingSession)
	HandleVisibilityChange(ctx context.Context, hidden bool)
	HandleBeforeUnload(ctx context.Context)
	Destroy(ctx context.Context) tracking.FlushResult
}

type Visit struct {
	ArticleID string
	UserID    string
	Device    domain.DeviceInfo
	Steps     []Step
}

type Result struct {
	Session *domain.ReadingSession
	Flush   tracking.FlushResult
}

// capture forwards the finished session and keeps a copy.
type capture struct {
	next Manager

	mu      sync.Mutex
	session *domain.ReadingSession
}

func (c *capture) TrackReadingSession(ctx context.Context, s domain.ReadingSession) {
	c.mu.Lock()
	c.session = &s
	c.mu.Unlock()
	c.next.TrackReadingSession(ctx, s)
}

func (c *capture) get() *domain.ReadingSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Run plays one article visit end to end and tears the manager down.
func Run(ctx context.Context, m Manager, v Visit, lg zerolog.Logger) (Result, error) {
	lg = lg.With().Str("component", "readersim").Str("article_id", v.ArticleID).Logger()

	m.Initialize(ctx, v.UserID)

	sink := &capture{next: m}
	player := NewPlayer(v.Steps)
	tracker := reading.NewTracker(reading.Config{
		ArticleID: v.ArticleID,
		UserID:    v.UserID,
		Device:    v.Device,
	}, player, sink, lg)
	tracker.StartTracking()

	playErr := player.Play(ctx, func(sig reading.Signal) {
		switch sig.Kind {
		case reading.SignalClick:
			m.Track(ctx, domain.EventClick, map[string]any{
				"article_id": v.ArticleID,
				"element":    sig.Target.Selector(),
				"x":          sig.X,
				"y":          sig.Y,
			})
		case reading.SignalVisibility:
			m.HandleVisibilityChange(ctx, sig.Hidden)
		case reading.SignalBeforeUnload:
			m.HandleBeforeUnload(ctx)
		}
	})
	if playErr != nil {
		lg.Warn().Err(playErr).Msg("visit interrupted")
	}

	tracker.StopTracking(ctx)
	tracker.Wait()

	// Destroy must outlive an interrupted ctx so the final flush still runs.
	flush := m.Destroy(context.WithoutCancel(ctx))

	res := Result{Session: sink.get(), Flush: flush}
	ev := lg.Info().Int("sent", flush.Sent).Int("persisted", flush.Persisted).Int("dropped", flush.Dropped)
	if res.Session != nil {
		ev = ev.Int("read_percentage", res.Session.ReadPercentage).Int("back_tracking", res.Session.ReadingPattern.BackTrackingCount)
	}
	ev.Msg("visit finished")
	return res, playErr
}
