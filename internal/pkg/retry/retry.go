package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/baechuer/newsroom/internal/domain"
)

type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// IsRetryable reports false for validation, auth and not-found failures and
// for anything marked Permanent. Unknown errors are retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var per interface{ Permanent() bool }
	if errors.As(err, &per) && per.Permanent() {
		return false
	}

	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case domain.CodeValidation, domain.CodeNotFound, domain.CodeForbidden, domain.CodeUnauthorized:
			return false
		}
	}
	return true
}

// CalculateDelay returns InitialDelay * 2^attempt capped at MaxDelay.
func CalculateDelay(attempt int, cfg Config) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(2, float64(attempt)))
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	return delay
}

func Retry(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(CalculateDelay(attempt-1, cfg))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
