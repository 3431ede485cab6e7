package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constituency-streets/internal/logging"
)

func testConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   1.5,
	}
}

func testLogger() *logging.Logger {
	return logging.New(logging.LevelError, logging.FormatText)
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testConfig(), testLogger(), func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testConfig(), testLogger(), func(ctx context.Context, attempt int) (bool, error) {
		calls++
		if calls < 3 {
			return true, errors.New("throttled")
		}
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), testConfig(), testLogger(), func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return false, fatal
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	transient := errors.New("service unavailable")
	calls := 0
	err := Do(context.Background(), testConfig(), testLogger(), func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return true, transient
	})
	require.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Do(ctx, testConfig(), testLogger(), func(ctx context.Context, attempt int) (bool, error) {
		cancel()
		return true, errors.New("throttled")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelayGrowth(t *testing.T) {
	cfg := &Config{InitialDelay: 10 * time.Second, MaxDelay: 2 * time.Minute, Multiplier: 1.5}

	assert.Equal(t, 10*time.Second, backoffDelay(cfg, 1))
	assert.Equal(t, 15*time.Second, backoffDelay(cfg, 2))
	assert.Equal(t, 22500*time.Millisecond, backoffDelay(cfg, 3))
	assert.Equal(t, 2*time.Minute, backoffDelay(cfg, 20))
}
