package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/constituency-streets/internal/errors"
	"github.com/constituency-streets/internal/models"
)

type fakeUsageFetcher struct {
	counts models.UsageCounts
	err    error
	calls  int64
}

func (f *fakeUsageFetcher) Usage(context.Context, time.Time) (models.UsageCounts, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return models.UsageCounts{}, f.err
	}
	return f.counts, nil
}

func newTestBudget(fetcher UsageFetcher) *LookupBudget {
	b := NewLookupBudget(fetcher, 100*time.Millisecond, nil)
	b.now = func() time.Time {
		return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	}
	return b
}

func TestConsumeLookupPrefersDailyThenBuffer(t *testing.T) {
	fetcher := &fakeUsageFetcher{counts: models.UsageCounts{
		UsageToday:    0,
		DailyLimit:    2,
		MonthlyBuffer: 1,
	}}
	b := newTestBudget(fetcher)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := b.ConsumeLookup(ctx)
		require.NoError(t, err)
		assert.True(t, ok, "lookup %d should be granted", i)
	}

	ok, err := b.ConsumeLookup(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "both quotas exhausted")

	counts, err := b.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.UsageToday)
	assert.Equal(t, 1, counts.MonthlyBufferUsed)
	assert.Equal(t, 0, counts.Remaining())
}

func TestConsumeLookupRefreshesOncePerDay(t *testing.T) {
	fetcher := &fakeUsageFetcher{counts: models.DefaultUsageCounts()}
	b := newTestBudget(fetcher)
	ctx := context.Background()

	_, err := b.ConsumeLookup(ctx)
	require.NoError(t, err)
	_, err = b.ConsumeLookup(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&fetcher.calls))

	// Roll the local date over; the next consume refreshes.
	b.now = func() time.Time {
		return time.Date(2026, 9, 2, 0, 0, 1, 0, time.UTC)
	}
	_, err = b.ConsumeLookup(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt64(&fetcher.calls))
}

func TestConsumeLookupRefreshErrorSurfaces(t *testing.T) {
	fetcher := &fakeUsageFetcher{err: errors.New("usage endpoint unreachable")}
	b := newTestBudget(fetcher)

	_, err := b.ConsumeLookup(context.Background())
	require.Error(t, err)
}

func TestConsumeLookupLockTimeout(t *testing.T) {
	b := newTestBudget(&fakeUsageFetcher{counts: models.DefaultUsageCounts()})

	// Hold the lock so acquisition must time out.
	b.sem <- struct{}{}
	t.Cleanup(func() { <-b.sem })

	_, err := b.ConsumeLookup(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrBudgetLockTimeout))
}

func TestBudgetMonotonicity(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("grants never exceed daily limit plus monthly buffer", prop.ForAll(
		func(daily, buffer int) bool {
			fetcher := &fakeUsageFetcher{counts: models.UsageCounts{
				DailyLimit:    daily,
				MonthlyBuffer: buffer,
			}}
			b := newTestBudget(fetcher)
			ctx := context.Background()

			granted := 0
			for i := 0; i < daily+buffer+5; i++ {
				ok, err := b.ConsumeLookup(ctx)
				if err != nil {
					return false
				}
				if ok {
					granted++
				}
			}
			return granted == daily+buffer
		},
		gen.IntRange(0, 40),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}
