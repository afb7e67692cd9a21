package bus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupQuery struct {
	Name string
}

func (lookupQuery) Validate() error { return nil }

type mapCache struct {
	mu    sync.Mutex
	items map[string]interface{}
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string]interface{})}
}

func (c *mapCache) Get(_ context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *mapCache) Set(_ context.Context, key string, value interface{}, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

// publishedData stands in for an index another process republishes
type publishedData struct {
	mu      sync.Mutex
	version string
	rows    string
	reads   int
}

func (d *publishedData) publish(version, rows string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version, d.rows = version, rows
}

func (d *publishedData) Version(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version, nil
}

func (d *publishedData) handler() QueryHandler {
	return QueryHandlerFunc(func(context.Context, Query) (interface{}, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.reads++
		return d.rows, nil
	})
}

func TestCachingMiddleware_ServesFromCache(t *testing.T) {
	data := &publishedData{}
	data.publish("v1", "rows-v1")

	bus := NewQueryBus(NewCachingMiddleware(newMapCache(), 60))
	require.NoError(t, bus.Register(lookupQuery{}, data.handler()))

	for i := 0; i < 3; i++ {
		got, err := bus.Ask(context.Background(), lookupQuery{Name: "Copper"})
		require.NoError(t, err)
		assert.Equal(t, "rows-v1", got)
	}
	assert.Equal(t, 1, data.reads)
}

func TestCachingMiddleware_NewVersionBypassesOldEntries(t *testing.T) {
	data := &publishedData{}
	data.publish("v1", "rows-v1")

	cache := newMapCache()
	bus := NewQueryBus(NewCachingMiddleware(cache, 60).WithVersion(data.Version))
	require.NoError(t, bus.Register(lookupQuery{}, data.handler()))
	ctx := context.Background()

	got, err := bus.Ask(ctx, lookupQuery{Name: "Copper"})
	require.NoError(t, err)
	assert.Equal(t, "rows-v1", got)

	// published elsewhere; nothing clears this cache
	data.publish("v2", "rows-v2")

	got, err = bus.Ask(ctx, lookupQuery{Name: "Copper"})
	require.NoError(t, err)
	assert.Equal(t, "rows-v2", got)

	got, err = bus.Ask(ctx, lookupQuery{Name: "Copper"})
	require.NoError(t, err)
	assert.Equal(t, "rows-v2", got)
	assert.Equal(t, 2, data.reads)
}

func TestCachingMiddleware_UnknownVersionSkipsCache(t *testing.T) {
	data := &publishedData{}
	data.publish("", "rows")

	cache := newMapCache()
	bus := NewQueryBus(NewCachingMiddleware(cache, 60).WithVersion(data.Version))
	require.NoError(t, bus.Register(lookupQuery{}, data.handler()))

	_, err := bus.Ask(context.Background(), lookupQuery{Name: "Copper"})
	require.NoError(t, err)
	assert.Empty(t, cache.items)

	failing := NewQueryBus(NewCachingMiddleware(cache, 60).WithVersion(func(context.Context) (string, error) {
		return "", errors.New("pointer unavailable")
	}))
	require.NoError(t, failing.Register(lookupQuery{}, data.handler()))
	_, err = failing.Ask(context.Background(), lookupQuery{Name: "Copper"})
	require.NoError(t, err)
	assert.Empty(t, cache.items)
	assert.Equal(t, 2, data.reads)
}
