package domain

import "time"

type Section string

const (
	SectionStart  Section = "start"
	SectionMiddle Section = "middle"
	SectionEnd    Section = "end"
)

// Sections returns the fixed focus-area buckets in reading order.
func Sections() []Section {
	return []Section{SectionStart, SectionMiddle, SectionEnd}
}

// ReadingSession is built by one tracker for one article view.
// EndedAt is set once when tracking stops; the value is not mutated afterwards.
type ReadingSession struct {
	SessionID       string         `json:"session_id"`
	ArticleID       string         `json:"article_id"`
	UserID          string         `json:"user_id,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"`
	DurationSeconds int            `json:"duration_seconds"`
	ReadPercentage  int            `json:"read_percentage"`
	ScrollDepth     float64        `json:"scroll_depth"`
	ReadingSpeed    float64        `json:"reading_speed"`
	PausePoints     []PausePoint   `json:"pause_points"`
	Interactions    []Interaction  `json:"interactions"`
	Highlights      []Highlight    `json:"highlights"`
	ReadingPattern  ReadingPattern `json:"reading_pattern"`
	Device          DeviceInfo     `json:"device"`
}

// PausePoint offsets are milliseconds since the session started.
type PausePoint struct {
	Timestamp      int64   `json:"timestamp"`
	ScrollPosition float64 `json:"scroll_position"`
	Duration       int64   `json:"duration"`
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Interaction struct {
	Type      string `json:"type"`
	Element   string `json:"element"`
	Timestamp int64  `json:"timestamp"`
	Position  *Point `json:"position,omitempty"`
}

type Highlight struct {
	Text      string `json:"text"`
	StartPos  int    `json:"start_pos"`
	EndPos    int    `json:"end_pos"`
	Timestamp int64  `json:"timestamp"`
}

type FocusArea struct {
	Section   Section `json:"section"`
	TimeSpent float64 `json:"time_spent"` // seconds
	Revisits  int     `json:"revisits"`
}

type ReadingPattern struct {
	IsSequential      bool        `json:"is_sequential"`
	BackTrackingCount int         `json:"back_tracking_count"`
	JumpCount         int         `json:"jump_count"`
	FocusAreas        []FocusArea `json:"focus_areas"`
}

type DeviceInfo struct {
	ViewportWidth  int    `json:"viewport_width"`
	ViewportHeight int    `json:"viewport_height"`
	Orientation    string `json:"orientation,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	Platform       string `json:"platform,omitempty"`
	Language       string `json:"language,omitempty"`
}
