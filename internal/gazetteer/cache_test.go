package gazetteer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constituency-streets/internal/types"
)

type fakeSource struct {
	calls int64
	roads map[types.District][]string
	err   error
}

func (f *fakeSource) NamesForDistrict(_ context.Context, district types.District) ([]string, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.roads[district], nil
}

func TestRoadCacheLazyPopulation(t *testing.T) {
	src := &fakeSource{roads: map[types.District][]string{
		"YO31": {"Tadcaster Road", "Heworth Green"},
	}}
	cache := NewRoadCache(src)
	ctx := context.Background()

	first, err := cache.Roads(ctx, "YO31")
	require.NoError(t, err)
	assert.Equal(t, []string{"Tadcaster Road", "Heworth Green"}, first)

	second, err := cache.Roads(ctx, "YO31")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.EqualValues(t, 1, atomic.LoadInt64(&src.calls), "source queried once per district")
}

func TestRoadCacheEmptyDistrictIsCached(t *testing.T) {
	src := &fakeSource{roads: map[types.District][]string{}}
	cache := NewRoadCache(src)
	ctx := context.Background()

	roads, err := cache.Roads(ctx, "ZZ9")
	require.NoError(t, err)
	assert.Empty(t, roads)

	_, err = cache.Roads(ctx, "ZZ9")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&src.calls), "empty results are cached too")
}

func TestRoadCacheErrorNotCached(t *testing.T) {
	src := &fakeSource{err: errors.New("store down")}
	cache := NewRoadCache(src)
	ctx := context.Background()

	_, err := cache.Roads(ctx, "YO31")
	require.Error(t, err)

	src.err = nil
	src.roads = map[types.District][]string{"YO31": {"Tadcaster Road"}}

	roads, err := cache.Roads(ctx, "YO31")
	require.NoError(t, err)
	assert.Equal(t, []string{"Tadcaster Road"}, roads)
}

func TestRoadCacheConcurrentAccess(t *testing.T) {
	src := &fakeSource{roads: map[types.District][]string{
		"YO31": {"Tadcaster Road"},
		"LS1":  {"Boar Lane"},
	}}
	cache := NewRoadCache(src)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		district := types.District("YO31")
		if i%2 == 0 {
			district = "LS1"
		}
		go func(d types.District) {
			defer wg.Done()
			_, err := cache.Roads(ctx, d)
			assert.NoError(t, err)
		}(district)
	}
	wg.Wait()

	assert.EqualValues(t, 2, atomic.LoadInt64(&src.calls), "one load per district")
	assert.Equal(t, 2, cache.Len())
}
