// Package ratelimit gates outbound calls to the lookup provider under two
// independent ceilings: a rolling 5-minute request window shared across
// workers through a persisted per-minute log, and a daily/monthly full-lookup
// quota mirrored from the provider's usage endpoint.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/constituency-streets/internal/errors"
	"github.com/constituency-streets/internal/logging"
)

// windowSpan is the width of the rolling request window
const windowSpan = 5 * time.Minute

// UsageLog is the persisted per-minute request log shared by all workers
type UsageLog interface {
	WindowSum(ctx context.Context, since time.Time) (int, error)
	Upsert(ctx context.Context, minute time.Time, delta int) error
}

// WindowConfig configures the rolling window gate
type WindowConfig struct {
	// Ceiling is the provider's request allowance per window
	Ceiling int
	// Headroom is the safety margin kept under the ceiling
	Headroom int
	// WaitInterval is how long Acquire sleeps between gate checks
	WaitInterval time.Duration
	// MaxWaits bounds the gate wait loop before it turns fatal
	MaxWaits int
}

// Validate checks the window configuration
func (c *WindowConfig) Validate() error {
	if c.Ceiling <= c.Headroom {
		return fmt.Errorf("window ceiling %d must exceed headroom %d", c.Ceiling, c.Headroom)
	}
	if c.WaitInterval <= 0 {
		return fmt.Errorf("wait interval must be positive")
	}
	if c.MaxWaits < 1 {
		return fmt.Errorf("max waits must be at least 1")
	}
	return nil
}

// WindowGovernor reconstructs the rolling request count from the shared log
// plus this instance's not-yet-flushed minute counter. Other workers'
// unflushed increments are invisible until they flush; the resulting
// undercount is bounded by one minute of their traffic.
type WindowGovernor struct {
	cfg    WindowConfig
	log    UsageLog
	logger *logging.Logger

	// now and sleep are swappable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu            sync.Mutex
	trackedMinute time.Time
	unflushed     int
	cachedSum     int
	cachedSumAt   time.Time
}

// NewWindowGovernor creates a window governor over the shared usage log
func NewWindowGovernor(cfg WindowConfig, log UsageLog, logger *logging.Logger) (*WindowGovernor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &WindowGovernor{
		cfg:    cfg,
		log:    log,
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RollingCount returns the current rolling window count: the persisted sums
// for the last five minutes plus this instance's unflushed delta. The
// persisted sum is re-read at most once per minute.
func (g *WindowGovernor) RollingCount(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rollingCountLocked(ctx)
}

func (g *WindowGovernor) rollingCountLocked(ctx context.Context) (int, error) {
	minute := g.now().UTC().Truncate(time.Minute)

	if !minute.Equal(g.cachedSumAt) {
		sum, err := g.log.WindowSum(ctx, minute.Add(-windowSpan))
		if err != nil {
			return 0, fmt.Errorf("failed to read usage window: %w", err)
		}
		g.cachedSum = sum
		g.cachedSumAt = minute
	}

	return g.cachedSum + g.unflushed, nil
}

// CanRequest reports whether another request fits under the ceiling minus
// headroom. On a violation the unflushed counter is flushed to the shared
// log so the breach is durably visible to other workers.
func (g *WindowGovernor) CanRequest(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	count, err := g.rollingCountLocked(ctx)
	if err != nil {
		return false, err
	}

	if count < g.cfg.Ceiling-g.cfg.Headroom {
		return true, nil
	}

	if g.unflushed > 0 {
		if err := g.flushLocked(ctx); err != nil {
			return false, err
		}
	}
	if g.logger != nil {
		g.logger.WithField("rolling_count", count).Warn("request window ceiling reached")
	}
	return false, nil
}

// RecordRequest counts one outbound request against the current minute,
// flushing the previous minute's counter when the clock has advanced.
func (g *WindowGovernor) RecordRequest(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	minute := g.now().UTC().Truncate(time.Minute)

	if g.trackedMinute.IsZero() {
		g.trackedMinute = minute
	}
	if minute.After(g.trackedMinute) {
		if err := g.flushLocked(ctx); err != nil {
			return err
		}
		g.trackedMinute = minute
	}

	g.unflushed++
	return nil
}

// Flush writes the unflushed minute counter to the shared log. Called on
// shutdown so the final partial minute is not lost.
func (g *WindowGovernor) Flush(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.flushLocked(ctx)
}

func (g *WindowGovernor) flushLocked(ctx context.Context) error {
	if g.unflushed == 0 {
		return nil
	}
	minute := g.trackedMinute
	if minute.IsZero() {
		minute = g.now().UTC().Truncate(time.Minute)
	}
	if err := g.log.Upsert(ctx, minute, g.unflushed); err != nil {
		return fmt.Errorf("failed to flush usage counter: %w", err)
	}
	g.unflushed = 0
	// The cached sum is stale now that our delta is durable.
	g.cachedSumAt = time.Time{}
	return nil
}

// Acquire blocks until a request fits under the window, then records it.
// The wait loop is bounded; exhaustion is an operational fault, not a
// transient condition.
func (g *WindowGovernor) Acquire(ctx context.Context) error {
	for attempt := 0; attempt < g.cfg.MaxWaits; attempt++ {
		ok, err := g.CanRequest(ctx)
		if err != nil {
			return err
		}
		if ok {
			return g.RecordRequest(ctx)
		}

		if g.logger != nil {
			g.logger.WithField("attempt", attempt+1).Info("waiting for request window to open")
		}
		if err := g.sleep(ctx, g.cfg.WaitInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("window still closed after %d waits: %w", g.cfg.MaxWaits, apperrors.ErrWindowWaitExceeded)
}
