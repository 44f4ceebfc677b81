// Command readersim replays scripted article visits through the client-side
// reading tracker and tracking manager against a running ingestion API.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/baechuer/newsroom/internal/application/tracking"
	"github.com/baechuer/newsroom/internal/config"
	"github.com/baechuer/newsroom/internal/domain"
	rediscache "github.com/baechuer/newsroom/internal/infrastructure/caching/redis"
	"github.com/baechuer/newsroom/internal/infrastructure/httpclient"
	"github.com/baechuer/newsroom/internal/logger"
	"github.com/baechuer/newsroom/internal/readersim"
	"github.com/baechuer/newsroom/internal/tracing"
)

type options struct {
	articleID  string
	userID     string
	scriptPath string
	pace       time.Duration
	visits     int
}

func newRootCmd(run func(ctx context.Context, o options) error) *cobra.Command {
	var o options
	root := &cobra.Command{
		Use:           "readersim",
		Short:         "Replay scripted article visits against the tracking API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.visits < 1 {
				o.visits = 1
			}
			return run(cmd.Context(), o)
		},
	}
	root.Flags().StringVar(&o.articleID, "article", "demo-article", "article id being read")
	root.Flags().StringVar(&o.userID, "user", "", "reader user id (empty for anonymous)")
	root.Flags().StringVar(&o.scriptPath, "script", "", "JSON step script; built-in visit when empty")
	root.Flags().DurationVar(&o.pace, "pace", 500*time.Millisecond, "delay unit of the built-in script")
	root.Flags().IntVar(&o.visits, "visits", 1, "number of visits to replay")
	return root
}

func loadSteps(o options) ([]readersim.Step, error) {
	if o.scriptPath == "" {
		return readersim.DefaultScript(o.pace), nil
	}
	f, err := os.Open(o.scriptPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readersim.LoadScript(f)
}

func run(ctx context.Context, cfg *config.Config, o options, lg zerolog.Logger) error {
	steps, err := loadSteps(o)
	if err != nil {
		return err
	}

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  "newsroom-readersim",
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.TracingEnabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(sctx)
	}()

	var store tracking.OfflineStore = tracking.NewMemoryStore()
	if cfg.RedisEnabled {
		rc, err := rediscache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			lg.Warn().Err(err).Msg("redis unavailable, offline events kept in memory")
		} else {
			defer rc.Close()
			store = rediscache.NewOfflineEventStore(rc, "readersim:"+o.userID, lg)
		}
	}

	sender := httpclient.NewTrackingSender(cfg.TrackingAPIEndpoint, httpclient.DefaultConfig(), lg)

	tcfg := tracking.DefaultConfig(cfg.TrackingAPIEndpoint)
	tcfg.BatchSize = cfg.TrackingBatchSize
	tcfg.FlushInterval = cfg.TrackingFlushInterval
	tcfg.MaxOfflineEvents = cfg.TrackingMaxOffline
	tcfg.PrivacyMode = cfg.TrackingPrivacyMode

	token := cfg.TrackingToken
	env := func() domain.ClientContext {
		return domain.ClientContext{
			Timezone:  time.Local.String(),
			Language:  "en",
			Platform:  runtime.GOOS,
			UserAgent: "newsroom-readersim/1",
			PageURL:   "https://news.example/articles/" + o.articleID,
		}
	}

	for i := 0; i < o.visits; i++ {
		mgr := tracking.NewManager(tcfg, sender, store, lg,
			tracking.WithTokenSource(func() string { return token }),
			tracking.WithContextSource(env),
		)
		_, err := readersim.Run(ctx, mgr, readersim.Visit{
			ArticleID: o.articleID,
			UserID:    o.userID,
			Device:    domain.DeviceInfo{ViewportWidth: 1280, ViewportHeight: 900, Platform: runtime.GOOS, Language: "en"},
			Steps:     steps,
		}, lg)
		if err != nil {
			return err
		}
	}
	return nil
}

func main() {
	logger.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(func(ctx context.Context, o options) error {
		cfg, err := config.LoadClient()
		if err != nil {
			return err
		}
		if err := run(ctx, cfg, o, zlog.Logger); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
	if err := root.ExecuteContext(ctx); err != nil {
		zlog.Error().Err(err).Msg("readersim failed")
		os.Exit(1)
	}
}
