package tracking

import (
	"time"

	"github.com/baechuer/newsroom/internal/domain"
)

type Config struct {
	APIEndpoint      string
	BatchSize        int
	FlushInterval    time.Duration // <= 0 disables the periodic flush
	EnabledEvents    []domain.EventType
	FlushImmediately []domain.EventType
	PrivacyMode      bool
	MaxOfflineEvents int

	// Endpoints maps an event type to the path appended to APIEndpoint.
	Endpoints map[domain.EventType]string
}

func DefaultEndpoints() map[domain.EventType]string {
	return map[domain.EventType]string{
		domain.EventInteraction:    "/interactions",
		domain.EventScroll:         "/interactions",
		domain.EventClick:          "/interactions",
		domain.EventReadingSession: "/reading-session",
		domain.EventPageView:       "/page-views",
	}
}

func DefaultConfig(apiEndpoint string) Config {
	return Config{
		APIEndpoint:      apiEndpoint,
		BatchSize:        10,
		FlushInterval:    30 * time.Second,
		EnabledEvents:    domain.AllEventTypes(),
		FlushImmediately: []domain.EventType{domain.EventInteraction},
		MaxOfflineEvents: 1000,
		Endpoints:        DefaultEndpoints(),
	}
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxOfflineEvents <= 0 {
		c.MaxOfflineEvents = 1000
	}
	if c.Endpoints == nil {
		c.Endpoints = DefaultEndpoints()
	}
	return c
}

// deniedFields are stripped from payloads in privacy mode.
var deniedFields = map[string]struct{}{
	"email":    {},
	"phone":    {},
	"password": {},
	"token":    {},
	"ip":       {},
}
