package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/newsroom/internal/application/tracking"
	"github.com/baechuer/newsroom/internal/domain"
	"github.com/baechuer/newsroom/internal/pkg/circuitbreaker"
	pkgctx "github.com/baechuer/newsroom/internal/pkg/context"
	"github.com/baechuer/newsroom/internal/tracing"
)

type Config struct {
	Timeout      time.Duration
	MaxFailures  int
	ResetTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:      5 * time.Second,
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
	}
}

// TrackingSender POSTs tracking batches as JSON. Rejections (4xx) come back as
// permanent errors, everything else that fails is temporary.
type TrackingSender struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	lg      zerolog.Logger
}

// NewTrackingSender resolves relative endpoints against baseURL.
func NewTrackingSender(baseURL string, cfg Config, lg zerolog.Logger) *TrackingSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &TrackingSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: tracing.Transport(http.DefaultTransport),
		},
		breaker: circuitbreaker.New(cfg.MaxFailures, cfg.ResetTimeout, 1),
		lg:      lg.With().Str("component", "tracking_sender").Logger(),
	}
}

var _ tracking.Sender = (*TrackingSender)(nil)

func (s *TrackingSender) Send(ctx context.Context, endpoint string, batch domain.TrackingBatch, bearer string) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return tracking.NewPermanentError("encode batch: %v", err)
	}
	url := s.resolve(endpoint)

	var rejected error
	err = s.breaker.Call(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		if rid := pkgctx.GetRequestID(ctx); rid != "" {
			req.Header.Set("X-Request-ID", rid)
		}

		start := time.Now()
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		s.lg.Debug().
			Str("url", url).
			Int("status", resp.StatusCode).
			Int("events", len(batch.Events)).
			Dur("duration", time.Since(start)).
			Msg("tracking batch sent")

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			// the backend is healthy, it just does not want this batch
			rejected = tracking.NewPermanentError("%s rejected batch %s: status %d", url, batch.BatchID, resp.StatusCode)
			return nil
		default:
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
	})

	if rejected != nil {
		s.lg.Warn().Err(rejected).Msg("tracking batch rejected")
		return rejected
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, circuitbreaker.ErrHalfOpenLimit) {
		return tracking.NewTemporaryError("send to %s: %v", url, err)
	}
	s.lg.Warn().Err(err).Str("url", url).Msg("tracking batch failed")
	return tracking.NewTemporaryError("send to %s: %v", url, err)
}

func (s *TrackingSender) resolve(endpoint string) string {
	if s.baseURL == "" || hasScheme(endpoint) {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return s.baseURL + endpoint
}

func hasScheme(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
