package reading

import (
	"math"
	"time"

	"github.com/baechuer/newsroom/internal/domain"
)

// Heuristics are rough estimates, kept tunable rather than hard-coded.
type Heuristics struct {
	ScrollWeight      float64       // share of read% from scroll depth
	TimeWeight        float64       // share of read% from elapsed time
	ReferenceDuration time.Duration // elapsed time counted as "fully read"
	AssumedWords      int           // article length used for reading speed
	PauseThreshold    time.Duration
	BacktrackDelta    float64 // percentage points
	JumpDelta         float64 // percentage points
	SectionDwellCap   time.Duration
	OrientationSettle time.Duration
	MiddleStart       float64 // start < MiddleStart <= middle
	EndStart          float64 // middle <= EndStart < end
	MaxHighlightChars int
}

func DefaultHeuristics() Heuristics {
	return Heuristics{
		ScrollWeight:      0.7,
		TimeWeight:        0.3,
		ReferenceDuration: time.Minute,
		AssumedWords:      500,
		PauseThreshold:    3 * time.Second,
		BacktrackDelta:    5,
		JumpDelta:         20,
		SectionDwellCap:   300 * time.Second,
		OrientationSettle: 100 * time.Millisecond,
		MiddleStart:       30,
		EndStart:          70,
		MaxHighlightChars: 100,
	}
}

func (h Heuristics) sectionFor(pct float64) domain.Section {
	switch {
	case pct < h.MiddleStart:
		return domain.SectionStart
	case pct > h.EndStart:
		return domain.SectionEnd
	default:
		return domain.SectionMiddle
	}
}

// ReadPercentage blends scroll depth and elapsed time, clamped to 100.
func (h Heuristics) ReadPercentage(scrollDepth float64, elapsed time.Duration) int {
	timeFrac := 1.0
	if h.ReferenceDuration > 0 {
		timeFrac = math.Min(1, elapsed.Seconds()/h.ReferenceDuration.Seconds())
	}
	v := (h.ScrollWeight*scrollDepth/100 + h.TimeWeight*timeFrac) * 100
	return int(math.Min(100, math.Max(0, math.Round(v))))
}

// ReadingSpeed is estimated words per minute; 0 when no time has passed.
func (h Heuristics) ReadingSpeed(readPct int, durationSeconds int) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	words := float64(readPct) / 100 * float64(h.AssumedWords)
	return math.Round(words / (float64(durationSeconds) / 60))
}

func scrollPercent(top, height, client float64) float64 {
	scrollable := height - client
	if scrollable <= 0 {
		return 100
	}
	return math.Min(100, math.Max(0, top*100/scrollable))
}
