package ratelimit

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/constituency-streets/internal/errors"
	"github.com/constituency-streets/internal/logging"
	"github.com/constituency-streets/internal/models"
)

// UsageFetcher mirrors the provider's quota state for one calendar day,
// implemented by the lookup client. Implementations return the documented
// defaults when no admin key is configured.
type UsageFetcher interface {
	Usage(ctx context.Context, day time.Time) (models.UsageCounts, error)
}

// LookupBudget tracks the daily lookup quota and its monthly overflow
// buffer. State is in-memory and refreshed from the provider once per local
// calendar day.
type LookupBudget struct {
	fetcher     UsageFetcher
	lockTimeout time.Duration
	logger      *logging.Logger

	now func() time.Time

	// sem is a capacity-one semaphore so acquisition can carry a timeout
	sem chan struct{}

	counts      models.UsageCounts
	refreshedOn string
}

// NewLookupBudget creates a lookup budget with the provider defaults until
// the first refresh.
func NewLookupBudget(fetcher UsageFetcher, lockTimeout time.Duration, logger *logging.Logger) *LookupBudget {
	return &LookupBudget{
		fetcher:     fetcher,
		lockTimeout: lockTimeout,
		logger:      logger,
		now:         time.Now,
		sem:         make(chan struct{}, 1),
		counts:      models.DefaultUsageCounts(),
	}
}

func (b *LookupBudget) acquire(ctx context.Context) error {
	timer := time.NewTimer(b.lockTimeout)
	defer timer.Stop()
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return apperrors.ErrBudgetLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LookupBudget) release() {
	<-b.sem
}

// ConsumeLookup consumes one full lookup, preferring the daily quota and
// falling back to the monthly buffer. It returns false only when both are
// exhausted. Lock acquisition is bounded by the configured timeout and its
// expiry is fatal.
func (b *LookupBudget) ConsumeLookup(ctx context.Context) (bool, error) {
	if err := b.acquire(ctx); err != nil {
		return false, err
	}
	defer b.release()

	if err := b.refreshIfStaleLocked(ctx); err != nil {
		return false, err
	}

	if b.counts.UsageToday < b.counts.DailyLimit {
		b.counts.UsageToday++
		return true, nil
	}
	if b.counts.MonthlyBufferUsed < b.counts.MonthlyBuffer {
		b.counts.MonthlyBufferUsed++
		return true, nil
	}
	return false, nil
}

// refreshIfStaleLocked re-reads the provider quota when the local calendar
// date has advanced since the last refresh.
func (b *LookupBudget) refreshIfStaleLocked(ctx context.Context) error {
	today := b.now().Format("2006-01-02")
	if today == b.refreshedOn {
		return nil
	}

	counts, err := b.fetcher.Usage(ctx, b.now())
	if err != nil {
		return fmt.Errorf("failed to refresh lookup usage: %w", err)
	}
	b.counts = counts
	b.refreshedOn = today

	if b.logger != nil {
		b.logger.WithFields(map[string]interface{}{
			"usage_today":         counts.UsageToday,
			"daily_limit":         counts.DailyLimit,
			"monthly_buffer":      counts.MonthlyBuffer,
			"monthly_buffer_used": counts.MonthlyBufferUsed,
		}).Info("refreshed lookup budget")
	}
	return nil
}

// Counts returns a snapshot of the current quota state
func (b *LookupBudget) Counts(ctx context.Context) (models.UsageCounts, error) {
	if err := b.acquire(ctx); err != nil {
		return models.UsageCounts{}, err
	}
	defer b.release()

	if err := b.refreshIfStaleLocked(ctx); err != nil {
		return models.UsageCounts{}, err
	}
	return b.counts, nil
}
