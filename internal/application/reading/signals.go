package reading

import (
	"strings"
	"time"
)

type SignalKind string

const (
	SignalScroll       SignalKind = "scroll"
	SignalClick        SignalKind = "click"
	SignalSelection    SignalKind = "selection"
	SignalVisibility   SignalKind = "visibility"
	SignalBeforeUnload SignalKind = "beforeunload"
	SignalOrientation  SignalKind = "orientation"
)

// Element identifies a click target.
type Element struct {
	ID      string
	Classes []string
	Tag     string
}

// Selector returns "#id", ".first-class" or the tag name, in that order.
func (e Element) Selector() string {
	if id := strings.TrimSpace(e.ID); id != "" {
		return "#" + id
	}
	for _, c := range e.Classes {
		if c = strings.TrimSpace(c); c != "" {
			return "." + c
		}
	}
	if tag := strings.TrimSpace(e.Tag); tag != "" {
		return strings.ToLower(tag)
	}
	return "unknown"
}

// Signal is one raw browser observation. Only the fields of its Kind are set.
type Signal struct {
	Kind SignalKind

	// scroll
	ScrollTop    float64
	ScrollHeight float64
	ClientHeight float64

	// click
	Target Element
	X, Y   int

	// selection
	SelectedText string

	// visibility
	Hidden bool

	// orientation
	Orientation    string
	ViewportWidth  int
	ViewportHeight int
}

type SignalHandler func(Signal)

// SignalSource delivers signals to a single handler until unsubscribed.
type SignalSource interface {
	Subscribe(h SignalHandler) (unsubscribe func())
}

type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time                             { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
