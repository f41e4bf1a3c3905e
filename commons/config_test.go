package commons

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := NewDefaultConfig()

	require.NoError(t, config.Validate())

	mode, err := config.GetCacheMode()
	require.NoError(t, err)
	assert.Equal(t, CacheModeMemoryAndStorage, mode)
	assert.Equal(t, StorageCacheMaxAgeDefault, config.GetStorageCacheMaxAge())
	assert.NotEmpty(t, config.InstanceID)
}

func TestConfigFromYAML(t *testing.T) {
	yamlBytes := []byte(`
cache_mode: memory
memory_cache_size_max: 4096
storage_cache_name_generator: blake3
decoders:
  - webp
auto_play: false
`)

	config, err := NewConfigFromYAML(yamlBytes)
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	mode, err := config.GetCacheMode()
	require.NoError(t, err)
	assert.Equal(t, CacheModeMemoryOnly, mode)
	assert.Equal(t, int64(4096), config.MemoryCacheSizeMax)
	assert.Equal(t, "blake3", config.StorageCacheNameGenerator)
	assert.Equal(t, []string{"webp"}, config.Decoders)
	assert.False(t, config.AutoPlay)

	// untouched fields keep defaults
	assert.Equal(t, HTTPTimeoutDefault, config.GetHTTPTimeout())
}

func TestConfigFromENV(t *testing.T) {
	t.Setenv("IMAGELOADER_CACHE_MODE", "storage")
	t.Setenv("IMAGELOADER_STORAGE_CACHE_SIZE_MAX", "1000")
	t.Setenv("IMAGELOADER_DECODERS", "gif,webp")

	config, err := NewConfigFromENV()
	require.NoError(t, err)

	assert.Equal(t, "storage", config.CacheMode)
	assert.Equal(t, int64(1000), config.StorageCacheSizeMax)
	assert.Equal(t, []string{"gif", "webp"}, config.Decoders)
}

func TestConfigValidate(t *testing.T) {
	config := NewDefaultConfig()
	config.CacheMode = "bogus"
	assert.Error(t, config.Validate())

	config = NewDefaultConfig()
	config.CacheMode = string(CacheModeMemoryOnly)
	config.MemoryCacheSizeMax = 0
	assert.Error(t, config.Validate())

	// memory size is irrelevant when storage only
	config.CacheMode = string(CacheModeStorageOnly)
	assert.NoError(t, config.Validate())

	config.StorageCacheRootPath = ""
	assert.Error(t, config.Validate())

	config = NewDefaultConfig()
	config.StorageCacheNameGenerator = "crc32"
	assert.Error(t, config.Validate())

	config = NewDefaultConfig()
	config.PackageCacheTimeout = 0
	assert.Error(t, config.Validate())
}

func TestGetCacheMode(t *testing.T) {
	for input, expected := range map[string]CacheMode{
		"none":               CacheModeNone,
		"NoCache":            CacheModeNone,
		"memory":             CacheModeMemoryOnly,
		"storage_only":       CacheModeStorageOnly,
		"memory_and_storage": CacheModeMemoryAndStorage,
		"":                   CacheModeMemoryAndStorage,
	} {
		mode, err := GetCacheMode(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, mode, input)
	}

	assert.True(t, CacheModeMemoryAndStorage.UseMemory())
	assert.True(t, CacheModeMemoryAndStorage.UseStorage())
	assert.False(t, CacheModeMemoryOnly.UseStorage())
	assert.False(t, CacheModeStorageOnly.UseMemory())
	assert.False(t, CacheModeNone.UseMemory())
}

func TestMakeWorkDirs(t *testing.T) {
	config := NewDefaultConfig()
	config.StorageCacheRootPath = t.TempDir() + "/nested/cache"

	require.NoError(t, config.MakeWorkDirs())
	assert.DirExists(t, config.StorageCacheRootPath)
}
