package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/constituency-streets/internal/logging"
)

// Config configures retry behavior for transient provider failures.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig returns the retry policy used for provider calls.
// Pattern: 10s, 15s, 22.5s, ... capped at 2 minutes.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Second,
		MaxDelay:     2 * time.Minute,
		Multiplier:   1.5,
	}
}

// Func is a single attempt. A non-nil error with retryable=false stops
// the loop immediately.
type Func func(ctx context.Context, attempt int) (retryable bool, err error)

// Do executes fn with exponential backoff. It stops on success, on a
// non-retryable error, when attempts are exhausted, or when ctx ends.
func Do(ctx context.Context, cfg *Config, logger *logging.Logger, fn Func) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		retryable, err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.WithField("attempts", attempt).Info("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !retryable {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := backoffDelay(cfg, attempt)
		logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		}).Warn("operation failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func backoffDelay(cfg *Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
