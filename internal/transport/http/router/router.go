package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/baechuer/newsroom/internal/config"
	"github.com/baechuer/newsroom/internal/metrics"
	"github.com/baechuer/newsroom/internal/tracing"
	"github.com/baechuer/newsroom/internal/transport/http/handlers"
	"github.com/baechuer/newsroom/internal/transport/http/middleware"
)

const serviceName = "newsroom"

type Handlers struct {
	Health        *handlers.HealthHandler
	Tracking      *handlers.TrackingHandler
	Notifications *handlers.NotificationHandler
	WS            http.Handler
}

func New(h Handlers, auth *middleware.AuthMiddleware, cfg *config.Config, lg zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.TracingEnabled {
		r.Use(tracing.Middleware(serviceName))
	}
	r.Use(middleware.AccessLog(lg))
	r.Use(middleware.Metrics)

	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	r.Handle("/metrics", metrics.Handler())

	if h.WS != nil {
		r.Handle("/ws", h.WS)
	}

	r.Group(func(r chi.Router) {
		if cfg.RLEnabled {
			r.Use(httprate.LimitByIP(cfg.RLLimit, cfg.RLWindow))
		}

		r.Route("/api/tracking", func(r chi.Router) {
			r.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
			r.Use(auth.Optional)
			r.Post("/interactions", h.Tracking.Interactions)
			r.Post("/reading-session", h.Tracking.ReadingSession)
			r.Post("/page-views", h.Tracking.PageViews)
		})

		r.Route("/api/notifications", func(r chi.Router) {
			r.Use(auth.Require)
			r.Get("/", h.Notifications.List)
			r.Get("/stats", h.Notifications.Stats)
			r.Post("/read-all", h.Notifications.MarkAllRead)
			r.Post("/digest", h.Notifications.Digest)
			r.Post("/recommendations", h.Notifications.Recommendations)
			r.Post("/broadcast", h.Notifications.Broadcast)
			r.Post("/{id}/read", h.Notifications.MarkRead)
		})
	})

	return r
}
