package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/constituency-streets/internal/errors"
)

// memoryLog is an in-memory UsageLog standing in for the shared table
type memoryLog struct {
	mu       sync.Mutex
	rows     map[time.Time]int
	sumReads int
}

func newMemoryLog() *memoryLog {
	return &memoryLog{rows: make(map[time.Time]int)}
}

func (m *memoryLog) WindowSum(_ context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sumReads++
	sum := 0
	for minute, n := range m.rows {
		if !minute.Before(since) {
			sum += n
		}
	}
	return sum, nil
}

func (m *memoryLog) Upsert(_ context.Context, minute time.Time, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[minute.UTC().Truncate(time.Minute)] += delta
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGovernor(t *testing.T, cfg WindowConfig, log UsageLog) (*WindowGovernor, *testClock) {
	t.Helper()

	g, err := NewWindowGovernor(cfg, log, nil)
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2026, 9, 1, 12, 0, 30, 0, time.UTC)}
	g.now = clock.Now
	return g, clock
}

func defaultWindowConfig() WindowConfig {
	return WindowConfig{
		Ceiling:      2000,
		Headroom:     50,
		WaitInterval: time.Minute,
		MaxWaits:     5,
	}
}

func TestWindowConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WindowConfig)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(c *WindowConfig) {}, wantErr: false},
		{name: "ceiling below headroom", mutate: func(c *WindowConfig) { c.Ceiling = 40 }, wantErr: true},
		{name: "zero wait interval", mutate: func(c *WindowConfig) { c.WaitInterval = 0 }, wantErr: true},
		{name: "zero max waits", mutate: func(c *WindowConfig) { c.MaxWaits = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultWindowConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRollingCountCombinesLogAndUnflushed(t *testing.T) {
	log := newMemoryLog()
	g, clock := newTestGovernor(t, defaultWindowConfig(), log)
	ctx := context.Background()

	minute := clock.Now().Truncate(time.Minute)
	values := map[time.Duration]int{
		-6 * time.Minute: 777, // outside the window, must be excluded
		-5 * time.Minute: 0,
		-4 * time.Minute: 286,
		-3 * time.Minute: 12,
		-2 * time.Minute: 100,
		-1 * time.Minute: 1000,
	}
	for offset, n := range values {
		require.NoError(t, log.Upsert(ctx, minute.Add(offset), n))
	}

	for i := 0; i < 300; i++ {
		require.NoError(t, g.RecordRequest(ctx))
	}

	count, err := g.RollingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1698, count)
}

func TestRollingCountOnlyUnflushedWhenLogEmpty(t *testing.T) {
	g, _ := newTestGovernor(t, defaultWindowConfig(), newMemoryLog())
	ctx := context.Background()

	for i := 0; i < 300; i++ {
		require.NoError(t, g.RecordRequest(ctx))
	}

	count, err := g.RollingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 300, count)
}

func TestRollingCountCachesReadPerMinute(t *testing.T) {
	log := newMemoryLog()
	g, clock := newTestGovernor(t, defaultWindowConfig(), log)
	ctx := context.Background()

	_, err := g.RollingCount(ctx)
	require.NoError(t, err)
	_, err = g.RollingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, log.sumReads, "same minute must reuse the cached sum")

	clock.Advance(time.Minute)
	_, err = g.RollingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, log.sumReads)
}

func TestCanRequestHeadroom(t *testing.T) {
	log := newMemoryLog()
	g, clock := newTestGovernor(t, defaultWindowConfig(), log)
	ctx := context.Background()

	minute := clock.Now().Truncate(time.Minute)
	require.NoError(t, log.Upsert(ctx, minute.Add(-time.Minute), 1949))

	ok, err := g.CanRequest(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "1949 is under the 1950 effective ceiling")

	require.NoError(t, log.Upsert(ctx, minute.Add(-time.Minute), 1))
	clock.Advance(time.Minute) // expire the cached sum

	ok, err = g.CanRequest(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "1950 hits the effective ceiling")
}

func TestCanRequestFlushesOnViolation(t *testing.T) {
	log := newMemoryLog()
	g, clock := newTestGovernor(t, defaultWindowConfig(), log)
	ctx := context.Background()

	minute := clock.Now().Truncate(time.Minute)
	require.NoError(t, log.Upsert(ctx, minute.Add(-time.Minute), 1900))

	for i := 0; i < 100; i++ {
		require.NoError(t, g.RecordRequest(ctx))
	}

	ok, err := g.CanRequest(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// The violation forced the in-memory counter into the shared log.
	log.mu.Lock()
	flushed := log.rows[minute]
	log.mu.Unlock()
	assert.Equal(t, 100, flushed)

	count, err := g.RollingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2000, count, "flush must not change the combined count")
}

func TestRecordRequestFlushesOnMinuteAdvance(t *testing.T) {
	log := newMemoryLog()
	g, clock := newTestGovernor(t, defaultWindowConfig(), log)
	ctx := context.Background()

	minute := clock.Now().Truncate(time.Minute)
	for i := 0; i < 5; i++ {
		require.NoError(t, g.RecordRequest(ctx))
	}

	clock.Advance(time.Minute)
	require.NoError(t, g.RecordRequest(ctx))

	log.mu.Lock()
	prior := log.rows[minute]
	log.mu.Unlock()
	assert.Equal(t, 5, prior, "prior minute flushed when the clock advanced")

	count, err := g.RollingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestAcquireRecordsWhenOpen(t *testing.T) {
	log := newMemoryLog()
	g, _ := newTestGovernor(t, defaultWindowConfig(), log)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))

	count, err := g.RollingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAcquireWaitExhaustionIsFatal(t *testing.T) {
	log := newMemoryLog()
	cfg := defaultWindowConfig()
	cfg.MaxWaits = 3
	g, clock := newTestGovernor(t, cfg, log)
	ctx := context.Background()

	sleeps := 0
	g.sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	minute := clock.Now().Truncate(time.Minute)
	require.NoError(t, log.Upsert(ctx, minute.Add(-time.Minute), 2000))

	err := g.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrWindowWaitExceeded))
	assert.Equal(t, 3, sleeps)
}

func TestFlushWritesPartialMinute(t *testing.T) {
	log := newMemoryLog()
	g, clock := newTestGovernor(t, defaultWindowConfig(), log)
	ctx := context.Background()

	require.NoError(t, g.RecordRequest(ctx))
	require.NoError(t, g.RecordRequest(ctx))
	require.NoError(t, g.Flush(ctx))

	log.mu.Lock()
	flushed := log.rows[clock.Now().Truncate(time.Minute)]
	log.mu.Unlock()
	assert.Equal(t, 2, flushed)

	// A second flush with nothing pending writes nothing.
	require.NoError(t, g.Flush(ctx))
	log.mu.Lock()
	flushed = log.rows[clock.Now().Truncate(time.Minute)]
	log.mu.Unlock()
	assert.Equal(t, 2, flushed)
}
