package reading

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/baechuer/newsroom/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateTracking
	StateStopped
)

// SessionSink receives the finished session. tracking.Manager satisfies it.
type SessionSink interface {
	TrackReadingSession(ctx context.Context, s domain.ReadingSession)
}

type Config struct {
	ArticleID  string
	UserID     string
	Device     domain.DeviceInfo
	Heuristics Heuristics
}

type scrollSample struct {
	offset  time.Duration
	percent float64
}

// Tracker turns the signals of one article view into one ReadingSession.
type Tracker struct {
	cfg    Config
	h      Heuristics
	source SignalSource
	sink   SessionSink
	clock  Clock
	lg     zerolog.Logger
	newID  func() string

	mu          sync.Mutex
	state       State
	unsubscribe func()
	sessionID   string
	startedAt   time.Time
	device      domain.DeviceInfo

	reading      bool
	lastScrollAt time.Time
	lastPercent  float64
	scrolls      []scrollSample
	maxDepth     float64
	backtracks   int
	jumps        int

	// pauseStart is the single open pause; nil when none is open.
	pauseStart  *time.Time
	pauseScroll float64
	pauses      []domain.PausePoint

	interactions []domain.Interaction
	highlights   []domain.Highlight

	section   domain.Section
	enteredAt time.Time
	focus     map[domain.Section]*domain.FocusArea

	timers  []Timer
	handoff sync.WaitGroup
}

type Option func(*Tracker)

func WithClock(c Clock) Option { return func(t *Tracker) { t.clock = c } }

func WithIDGenerator(f func() string) Option { return func(t *Tracker) { t.newID = f } }

func NewTracker(cfg Config, source SignalSource, sink SessionSink, lg zerolog.Logger, opts ...Option) *Tracker {
	if cfg.Heuristics == (Heuristics{}) {
		cfg.Heuristics = DefaultHeuristics()
	}
	t := &Tracker{
		cfg:    cfg,
		h:      cfg.Heuristics,
		source: source,
		sink:   sink,
		clock:  realClock{},
		lg: lg.With().
			Str("component", "reading_tracker").
			Str("article_id", cfg.ArticleID).
			Logger(),
		newID:  uuid.NewString,
		device: cfg.Device,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// StartTracking subscribes to signals. Only the first call has an effect.
func (t *Tracker) StartTracking() {
	t.mu.Lock()
	if t.state != StateIdle {
		st := t.state
		t.mu.Unlock()
		t.lg.Warn().Int("state", int(st)).Msg("start tracking ignored; tracker not idle")
		return
	}

	now := t.clock.Now()
	t.state = StateTracking
	t.sessionID = t.newID()
	t.startedAt = now
	t.reading = true
	t.lastScrollAt = now
	t.section = domain.SectionStart
	t.enteredAt = now
	t.focus = make(map[domain.Section]*domain.FocusArea, 3)
	for _, s := range domain.Sections() {
		t.focus[s] = &domain.FocusArea{Section: s}
	}
	t.mu.Unlock()

	unsub := t.source.Subscribe(t.handle)

	t.mu.Lock()
	if t.state == StateTracking {
		t.unsubscribe = unsub
		unsub = nil
	}
	t.mu.Unlock()

	// stopped before we could keep the subscription
	if unsub != nil {
		unsub()
	}
	t.lg.Debug().Msg("reading tracking started")
}

func (t *Tracker) handle(sig Signal) {
	if sig.Kind == SignalBeforeUnload {
		t.StopTracking(context.Background())
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateTracking {
		return
	}

	now := t.clock.Now()
	switch sig.Kind {
	case SignalScroll:
		t.onScroll(now, scrollPercent(sig.ScrollTop, sig.ScrollHeight, sig.ClientHeight))
	case SignalClick:
		t.interactions = append(t.interactions, domain.Interaction{
			Type:      "click",
			Element:   sig.Target.Selector(),
			Timestamp: t.offset(now),
			Position:  &domain.Point{X: sig.X, Y: sig.Y},
		})
	case SignalSelection:
		if sig.SelectedText != "" {
			t.interactions = append(t.interactions, domain.Interaction{
				Type:      "select",
				Element:   "selection",
				Timestamp: t.offset(now),
			})
		}
	case SignalVisibility:
		if sig.Hidden {
			t.reading = false
			t.openPause(now)
		} else {
			t.reading = true
			t.closePause(now)
			// idle time while hidden is already recorded above
			t.lastScrollAt = now
		}
	case SignalOrientation:
		t.scheduleOrientation(sig)
	default:
		t.lg.Debug().Str("kind", string(sig.Kind)).Msg("unknown signal")
	}
}

func (t *Tracker) onScroll(now time.Time, pct float64) {
	t.scrolls = append(t.scrolls, scrollSample{offset: now.Sub(t.startedAt), percent: pct})
	if pct > t.maxDepth {
		t.maxDepth = pct
	}

	delta := pct - t.lastPercent
	if delta < -t.h.BacktrackDelta {
		t.backtracks++
	}
	if math.Abs(delta) > t.h.JumpDelta {
		t.jumps++
	}

	gap := now.Sub(t.lastScrollAt)
	if t.reading && gap > t.h.PauseThreshold && t.pauseStart == nil {
		// the reader sat still since the previous scroll
		t.pauses = append(t.pauses, domain.PausePoint{
			Timestamp:      t.offset(t.lastScrollAt),
			ScrollPosition: t.lastPercent,
			Duration:       gap.Milliseconds(),
		})
	} else {
		t.closePause(now)
	}

	t.lastScrollAt = now
	t.lastPercent = pct
	t.updateSection(now, t.h.sectionFor(pct))
}

func (t *Tracker) openPause(now time.Time) {
	if t.pauseStart != nil {
		return
	}
	start := now
	t.pauseStart = &start
	t.pauseScroll = t.lastPercent
}

func (t *Tracker) closePause(now time.Time) {
	if t.pauseStart == nil {
		return
	}
	t.pauses = append(t.pauses, domain.PausePoint{
		Timestamp:      t.offset(*t.pauseStart),
		ScrollPosition: t.pauseScroll,
		Duration:       now.Sub(*t.pauseStart).Milliseconds(),
	})
	t.pauseStart = nil
}

func (t *Tracker) updateSection(now time.Time, next domain.Section) {
	if next == t.section {
		return
	}
	t.closeSection(now)
	t.section = next
	t.enteredAt = now
	t.focus[next].Revisits++
}

func (t *Tracker) closeSection(now time.Time) {
	dwell := now.Sub(t.enteredAt)
	if dwell > t.h.SectionDwellCap {
		dwell = t.h.SectionDwellCap
	}
	if dwell > 0 {
		t.focus[t.section].TimeSpent += dwell.Seconds()
	}
	t.enteredAt = now
}

func (t *Tracker) scheduleOrientation(sig Signal) {
	timer := t.clock.AfterFunc(t.h.OrientationSettle, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.state != StateTracking {
			return
		}
		now := t.clock.Now()
		t.device.Orientation = sig.Orientation
		if sig.ViewportWidth > 0 {
			t.device.ViewportWidth = sig.ViewportWidth
			t.device.ViewportHeight = sig.ViewportHeight
		}
		t.interactions = append(t.interactions, domain.Interaction{
			Type:      "orientation_change",
			Element:   sig.Orientation,
			Timestamp: t.offset(now),
		})
	})
	t.timers = append(t.timers, timer)
}

// HighlightText records an explicit highlight. No-op unless tracking.
func (t *Tracker) HighlightText(text string, startPos, endPos int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateTracking {
		return
	}

	if max := t.h.MaxHighlightChars; max > 0 {
		if r := []rune(text); len(r) > max {
			text = string(r[:max])
		}
	}
	t.highlights = append(t.highlights, domain.Highlight{
		Text:      text,
		StartPos:  startPos,
		EndPos:    endPos,
		Timestamp: t.offset(t.clock.Now()),
	})
}

// StopTracking finalizes the session and hands it to the sink in the
// background. It returns nil unless the tracker was tracking.
func (t *Tracker) StopTracking(ctx context.Context) *domain.ReadingSession {
	t.mu.Lock()
	if t.state != StateTracking {
		t.mu.Unlock()
		return nil
	}
	t.state = StateStopped
	unsub := t.unsubscribe
	t.unsubscribe = nil
	for _, tm := range t.timers {
		tm.Stop()
	}
	t.timers = nil

	now := t.clock.Now()
	t.closePause(now)
	t.closeSection(now)
	session := t.buildLocked(now)
	t.mu.Unlock()

	if unsub != nil {
		unsub()
	}

	if t.sink != nil {
		out := session
		ctx = context.WithoutCancel(ctx)
		t.handoff.Add(1)
		go func() {
			defer t.handoff.Done()
			t.sink.TrackReadingSession(ctx, out)
		}()
	}

	t.lg.Info().
		Str("session_id", session.SessionID).
		Int("read_percentage", session.ReadPercentage).
		Int("duration_seconds", session.DurationSeconds).
		Msg("reading session finished")
	return &session
}

func (t *Tracker) buildLocked(now time.Time) domain.ReadingSession {
	elapsed := now.Sub(t.startedAt)
	durationSeconds := int(math.Round(elapsed.Seconds()))
	readPct := t.h.ReadPercentage(t.maxDepth, elapsed)

	focus := make([]domain.FocusArea, 0, len(t.focus))
	for _, s := range domain.Sections() {
		focus = append(focus, *t.focus[s])
	}

	ended := now
	return domain.ReadingSession{
		SessionID:       t.sessionID,
		ArticleID:       t.cfg.ArticleID,
		UserID:          t.cfg.UserID,
		StartedAt:       t.startedAt,
		EndedAt:         &ended,
		DurationSeconds: durationSeconds,
		ReadPercentage:  readPct,
		ScrollDepth:     t.maxDepth,
		ReadingSpeed:    t.h.ReadingSpeed(readPct, durationSeconds),
		PausePoints:     append([]domain.PausePoint{}, t.pauses...),
		Interactions:    append([]domain.Interaction{}, t.interactions...),
		Highlights:      append([]domain.Highlight{}, t.highlights...),
		ReadingPattern: domain.ReadingPattern{
			IsSequential:      t.backtracks < 3 && t.jumps < 5,
			BackTrackingCount: t.backtracks,
			JumpCount:         t.jumps,
			FocusAreas:        focus,
		},
		Device: t.device,
	}
}

func (t *Tracker) offset(at time.Time) int64 {
	return at.Sub(t.startedAt).Milliseconds()
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Wait blocks until finished sessions have been handed to the sink.
func (t *Tracker) Wait() { t.handoff.Wait() }

// ScrollEvents reports how many scroll samples the current session logged.
func (t *Tracker) ScrollEvents() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.scrolls)
}
