package domain

type EventType string

const (
	EventInteraction    EventType = "interaction"
	EventReadingSession EventType = "reading_session"
	EventPageView       EventType = "page_view"
	EventScroll         EventType = "scroll"
	EventClick          EventType = "click"
)

func (t EventType) Valid() bool {
	switch t {
	case EventInteraction, EventReadingSession, EventPageView, EventScroll, EventClick:
		return true
	}
	return false
}

// AllEventTypes lists every known event type in a stable order.
func AllEventTypes() []EventType {
	return []EventType{EventInteraction, EventReadingSession, EventPageView, EventScroll, EventClick}
}

// TrackingEvent is immutable once created by the transport.
type TrackingEvent struct {
	ID        string         `json:"id" validate:"required,max=128"`
	Type      EventType      `json:"type" validate:"required,max=32"`
	Timestamp int64          `json:"timestamp" validate:"gt=0"` // epoch ms
	Payload   map[string]any `json:"data"`
	SessionID string         `json:"session_id" validate:"max=128"`
	UserID    string         `json:"user_id,omitempty" validate:"max=128"`
}

// ClientContext describes the environment the batch was produced in.
type ClientContext struct {
	Timezone  string `json:"timezone"`
	Language  string `json:"language"`
	Platform  string `json:"platform"`
	UserAgent string `json:"user_agent"`
	PageURL   string `json:"page_url"`
	Referrer  string `json:"referrer"`
}

// TrackingBatch is the wire body POSTed to every ingestion endpoint.
type TrackingBatch struct {
	Events    []TrackingEvent `json:"events" validate:"required,min=1,max=1000,dive"`
	SessionID string          `json:"session_id" validate:"required,max=128"`
	Context   ClientContext   `json:"context"`
	BatchID   string          `json:"batch_id" validate:"required,max=128"`
}
