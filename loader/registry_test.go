package loader

import (
	"context"
	"testing"

	"github.com/cyverse/go-imageloader/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	assert.Nil(t, registry.Default())

	first := newTestLoader(t, &Config{CacheMode: commons.CacheModeNone, Source: newMapSource()})
	second := newTestLoader(t, &Config{CacheMode: commons.CacheModeNone, Source: newMapSource()})

	require.NoError(t, registry.Register(DefaultLoaderName, first))
	require.NoError(t, registry.Register("thumbnails", second))
	assert.Error(t, registry.Register("thumbnails", second))
	assert.Error(t, registry.Register("", second))
	assert.Error(t, registry.Register("nil", nil))

	assert.Same(t, first, registry.Default())
	assert.Equal(t, []string{DefaultLoaderName, "thumbnails"}, registry.GetNames())

	loader, ok := registry.Get("thumbnails")
	assert.True(t, ok)
	assert.Same(t, second, loader)

	_, ok = registry.Get("none")
	assert.False(t, ok)

	require.NoError(t, registry.SetDefault("thumbnails"))
	assert.Same(t, second, registry.Default())
	assert.Error(t, registry.SetDefault("none"))

	assert.Same(t, second, registry.Unregister("thumbnails"))
	assert.Nil(t, registry.Default())
	assert.Nil(t, registry.Unregister("thumbnails"))

	registry.Release()
	assert.Empty(t, registry.GetNames())

	_, err := first.LoadBytes(context.Background(), "file:///a.png")
	assert.Error(t, err)
}

func TestRegistryCollectMetrics(t *testing.T) {
	registry := NewRegistry()

	byteSource := newMapSource()
	byteSource.set("file:///a.png", makePNG(t, 2, 2))

	for _, name := range []string{"a", "b"} {
		loader := newTestLoader(t, &Config{
			CacheMode:   commons.CacheModeMemoryOnly,
			MemoryCache: newMemoryCache(t),
			Source:      byteSource,
		})
		require.NoError(t, registry.Register(name, loader))

		pkg, err := loader.LoadImage(context.Background(), nil, "file:///a.png")
		require.NoError(t, err)
		pkg.Release()
	}

	metrics, stats := registry.CollectMetrics()
	assert.Equal(t, uint64(2), metrics.GetCounterForFetch())
	assert.Equal(t, uint64(2), metrics.GetCounterForMemoryMiss())
	assert.Equal(t, []string{"default"}, metrics.GetDecoderNames())
	assert.Equal(t, 2, stats.MemoryEntries)

	registry.CollectPrometheusMetrics()
	registry.CollectPrometheusMetrics()

	registry.Unregister("a")
	registry.CollectPrometheusMetrics()
}

func TestGetDefaultRegistry(t *testing.T) {
	assert.Same(t, GetDefaultRegistry(), GetDefaultRegistry())
}
