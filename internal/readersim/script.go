package readersim

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/baechuer/newsroom/internal/application/reading"
)

// Step is one signal fired After the previous step.
type Step struct {
	After  time.Duration
	Signal reading.Signal
}

type stepDoc struct {
	After        string  `yaml:"after"`
	Kind         string  `yaml:"kind"`
	ScrollTop    float64 `yaml:"scroll_top"`
	ScrollHeight float64 `yaml:"scroll_height"`
	ClientHeight float64 `yaml:"client_height"`
	TargetID     string  `yaml:"target_id"`
	TargetTag    string  `yaml:"target_tag"`
	X            int     `yaml:"x"`
	Y            int     `yaml:"y"`
	Text         string  `yaml:"text"`
	Hidden       bool    `yaml:"hidden"`
	Orientation  string  `yaml:"orientation"`
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
}

// LoadScript reads a YAML (or JSON) list of steps, e.g.
//
//	- after: 2s
//	  kind: scroll
//	  scroll_top: 800
//	  scroll_height: 4000
//	  client_height: 800
func LoadScript(r io.Reader) ([]Step, error) {
	var raw []stepDoc
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode script: %w", err)
	}

	steps := make([]Step, 0, len(raw))
	for i, s := range raw {
		var after time.Duration
		if s.After != "" {
			d, err := time.ParseDuration(s.After)
			if err != nil || d < 0 {
				return nil, fmt.Errorf("step %d: bad after %q", i, s.After)
			}
			after = d
		}
		kind := reading.SignalKind(s.Kind)
		switch kind {
		case reading.SignalScroll, reading.SignalClick, reading.SignalSelection,
			reading.SignalVisibility, reading.SignalBeforeUnload, reading.SignalOrientation:
		default:
			return nil, fmt.Errorf("step %d: unknown kind %q", i, s.Kind)
		}
		steps = append(steps, Step{After: after, Signal: reading.Signal{
			Kind:           kind,
			ScrollTop:      s.ScrollTop,
			ScrollHeight:   s.ScrollHeight,
			ClientHeight:   s.ClientHeight,
			Target:         reading.Element{ID: s.TargetID, Tag: s.TargetTag},
			X:              s.X,
			Y:              s.Y,
			SelectedText:   s.Text,
			Hidden:         s.Hidden,
			Orientation:    s.Orientation,
			ViewportWidth:  s.Width,
			ViewportHeight: s.Height,
		}})
	}
	return steps, nil
}

// DefaultScript is a reader who scrolls through a long article, re-reads one
// passage, leaves the tab for a while and clicks a related link at the end.
// pace scales every delay.
func DefaultScript(pace time.Duration) []Step {
	const height, client = 6000.0, 900.0
	scroll := func(after time.Duration, top float64) Step {
		return Step{After: after, Signal: reading.Signal{
			Kind: reading.SignalScroll, ScrollTop: top, ScrollHeight: height, ClientHeight: client,
		}}
	}
	return []Step{
		scroll(2*pace, 600),
		scroll(2*pace, 1400),
		{After: pace, Signal: reading.Signal{Kind: reading.SignalSelection, SelectedText: "the council approved the budget"}},
		scroll(2*pace, 2300),
		scroll(pace, 1500),
		scroll(2*pace, 2600),
		{After: pace, Signal: reading.Signal{Kind: reading.SignalVisibility, Hidden: true}},
		{After: 3 * pace, Signal: reading.Signal{Kind: reading.SignalVisibility, Hidden: false}},
		scroll(2*pace, 3800),
		scroll(2*pace, 5100),
		{After: pace, Signal: reading.Signal{Kind: reading.SignalClick, Target: reading.Element{ID: "related-1", Tag: "A"}, X: 120, Y: 640}},
	}
}
