// Package gazetteer provides the lazily-populated road-name cache the
// resolver reads district road sets from.
package gazetteer

import (
	"context"
	"fmt"
	"sync"

	"github.com/constituency-streets/internal/types"
)

// RoadSource supplies road names for a district, normally the road
// repository.
type RoadSource interface {
	NamesForDistrict(ctx context.Context, district types.District) ([]string, error)
}

// RoadCache caches road names per postal district for the lifetime of the
// process. Reference data changes rarely; a restart picks up gazetteer
// updates.
type RoadCache struct {
	mu     sync.Mutex
	source RoadSource
	roads  map[types.District][]string
}

// NewRoadCache creates an empty cache over the given source
func NewRoadCache(source RoadSource) *RoadCache {
	return &RoadCache{
		source: source,
		roads:  make(map[types.District][]string),
	}
}

// Roads returns the road names for a district, querying the source once per
// district. Safe for concurrent use.
func (c *RoadCache) Roads(ctx context.Context, district types.District) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if names, ok := c.roads[district]; ok {
		return names, nil
	}

	names, err := c.source.NamesForDistrict(ctx, district)
	if err != nil {
		return nil, fmt.Errorf("failed to load roads for district %s: %w", district, err)
	}
	if names == nil {
		names = []string{}
	}
	c.roads[district] = names
	return names, nil
}

// Len reports how many districts are cached, used by the status API
func (c *RoadCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.roads)
}
