package di

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCache_ExpiryAndClear(t *testing.T) {
	cache := NewInMemoryCache(0)
	defer cache.Close()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", 1, 60))
	require.NoError(t, cache.Set(ctx, "b", 2, 0))

	v, ok := cache.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = cache.Get(ctx, "b")
	assert.False(t, ok, "zero ttl is not cached")

	clock = clock.Add(61 * time.Second)
	_, ok = cache.Get(ctx, "a")
	assert.False(t, ok)
	cache.sweep()
	assert.Equal(t, 0, cache.Len())

	require.NoError(t, cache.Set(ctx, "c", 3, 60))
	require.NoError(t, cache.Clear(ctx))
	_, ok = cache.Get(ctx, "c")
	assert.False(t, ok)
}
