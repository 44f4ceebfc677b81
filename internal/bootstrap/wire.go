package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/baechuer/newsroom/internal/application/delivery"
	"github.com/baechuer/newsroom/internal/application/notify"
	"github.com/baechuer/newsroom/internal/config"
	rediscache "github.com/baechuer/newsroom/internal/infrastructure/caching/redis"
	"github.com/baechuer/newsroom/internal/infrastructure/db/postgres"
	rmq "github.com/baechuer/newsroom/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/newsroom/internal/infrastructure/ws"
	"github.com/baechuer/newsroom/internal/metrics"
	"github.com/baechuer/newsroom/internal/pkg/retry"
	"github.com/baechuer/newsroom/internal/pkg/workerpool"
	"github.com/baechuer/newsroom/internal/security"
	"github.com/baechuer/newsroom/internal/tracing"
	"github.com/baechuer/newsroom/internal/transport/http/handlers"
	"github.com/baechuer/newsroom/internal/transport/http/middleware"
	"github.com/baechuer/newsroom/internal/transport/http/router"
)

const serviceName = "newsroom"

type App struct {
	cfg      *config.Config
	srv      *http.Server
	consumer *rmq.Consumer
	pool     *workerpool.Pool
	lg       zerolog.Logger
}

// NewApp wires every component. The returned cleanup releases the database,
// redis and tracer; call it after Stop.
func NewApp() (*App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	lg := log.Logger.With().Str("service", serviceName).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.TracingEnabled,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("tracing init: %w", err)
	}
	closers = append(closers, func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = tp.Shutdown(sctx)
	})

	db, err := openDB(ctx, cfg, lg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, func() { _ = db.Close() })

	rc, err := openRedis(ctx, cfg, lg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if rc != nil {
		closers = append(closers, func() { _ = rc.Close() })
	}

	notifications := postgres.NewNotificationRepo(db)
	interests := postgres.NewInterestRepo(db)
	content := postgres.NewContentRepo(db)
	trackingRepo := postgres.NewTrackingRepo(db)

	verifier := security.NewHS256Verifier(cfg.JWTSecret, cfg.JWTIssuer)
	registry := delivery.NewRegistry(delivery.Config{PendingCap: cfg.PendingQueueCap}, verifier, notifications, lg)

	// nil interfaces, not typed nil pointers, when redis is off
	var idem notify.IdempotencyStore
	var dedupe rmq.Deduper
	pingers := map[string]handlers.Pinger{"postgres": handlers.PingFunc(db.PingContext)}
	if rc != nil {
		store := rediscache.NewIdempotencyStore(rc, lg)
		idem = store
		dedupe = store
		pingers["redis"] = rc
	}

	engine := notify.NewEngine(notify.Config{DigestTTL: cfg.DigestIdempotencyTTL}, notify.Deps{
		Interests:  interests,
		Audience:   interests,
		History:    interests,
		Content:    content,
		Dispatcher: registry,
		Idem:       idem,
	}, lg)

	app := &App{cfg: cfg, lg: lg}

	if cfg.RabbitURL != "" {
		app.pool = workerpool.New(cfg.WorkerCount, metrics.ObserveWorkerPool, lg)
		rcfg := rmq.Config{
			RabbitURL:  cfg.RabbitURL,
			Exchange:   cfg.Exchange,
			Queue:      cfg.Queue,
			BindKeys:   cfg.BindKeys(),
			Prefetch:   cfg.Prefetch,
			Tag:        cfg.ConsumeTag,
			DedupeTTL:  cfg.DigestIdempotencyTTL,
			JobTimeout: 30 * time.Second,
		}
		mux := rmq.NewMux(engine, dedupe, app.pool, rcfg, lg)
		app.consumer = rmq.NewConsumer(rcfg, mux, lg)
	} else {
		lg.Warn().Msg("RABBIT_URL empty: event consumer disabled")
	}

	h := router.Handlers{
		Health:        handlers.NewHealthHandler(pingers),
		Tracking:      handlers.NewTrackingHandler(trackingRepo, lg),
		Notifications: handlers.NewNotificationHandler(notifications, registry, engine, lg),
		WS:            ws.NewHandler(registry, cfg.WSAllowedOrigins(), lg),
	}

	app.srv = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(h, middleware.NewAuth(verifier), cfg, lg),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return app, cleanup, nil
}

func openDB(ctx context.Context, cfg *config.Config, lg zerolog.Logger) (*sql.DB, error) {
	var db *sql.DB
	err := retry.Retry(ctx, retry.Config{MaxRetries: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}, func() error {
		var err error
		db, err = postgres.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, cfg.DBDebug, lg)
		if err != nil {
			lg.Warn().Err(err).Str("driver", cfg.DBDriver).Msg("postgres not ready")
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	lg.Info().Str("driver", cfg.DBDriver).Msg("postgres connected")
	return db, nil
}

// openRedis returns nil when redis is disabled. In dev an unreachable redis
// degrades to running without it.
func openRedis(ctx context.Context, cfg *config.Config, lg zerolog.Logger) (*rediscache.Client, error) {
	if !cfg.RedisEnabled {
		lg.Info().Msg("redis disabled (digest idempotency + message dedupe)")
		return nil, nil
	}
	rc, err := rediscache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		if cfg.Env == "dev" {
			lg.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, continuing without it")
			return nil, nil
		}
		return nil, fmt.Errorf("redis: %w", err)
	}
	lg.Info().Str("addr", cfg.RedisAddr).Int("db", cfg.RedisDB).Msg("redis connected")
	return rc, nil
}

// Start runs the consumer in the background and blocks serving HTTP.
func (a *App) Start(ctx context.Context) error {
	if a.consumer != nil {
		if err := a.consumer.Start(ctx); err != nil {
			return err
		}
	}
	a.lg.Info().Str("addr", a.srv.Addr).Msg("http listening")
	if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains HTTP first, then stops consuming and waits for in-flight jobs.
func (a *App) Stop(ctx context.Context) error {
	a.lg.Info().Msg("shutting down")

	var errs []error
	if a.srv != nil {
		if err := a.srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("consumer stop: %w", err))
		}
	}
	if a.pool != nil {
		a.pool.Stop()
	}
	return errors.Join(errs...)
}

// ShutdownWait is how long main should give Stop.
func (a *App) ShutdownWait() time.Duration { return a.cfg.ShutdownWait }
