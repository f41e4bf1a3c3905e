package commons

import (
	"strings"

	"golang.org/x/xerrors"
)

// CacheMode decides which cache tiers a loader consults and fills
type CacheMode string

const (
	// CacheModeNone disables all caching
	CacheModeNone CacheMode = "none"
	// CacheModeMemoryOnly uses the in-memory tier only
	CacheModeMemoryOnly CacheMode = "memory"
	// CacheModeStorageOnly uses the persistent storage tier only
	CacheModeStorageOnly CacheMode = "storage"
	// CacheModeMemoryAndStorage uses both tiers
	CacheModeMemoryAndStorage CacheMode = "memory_and_storage"
)

// CacheModeDefault is the mode used when nothing is configured
const CacheModeDefault CacheMode = CacheModeMemoryAndStorage

// GetCacheMode parses a cache mode string
func GetCacheMode(mode string) (CacheMode, error) {
	switch strings.TrimSpace(strings.ToLower(mode)) {
	case string(CacheModeNone), "nocache", "no_cache":
		return CacheModeNone, nil
	case string(CacheModeMemoryOnly), "memory_only":
		return CacheModeMemoryOnly, nil
	case string(CacheModeStorageOnly), "storage_only":
		return CacheModeStorageOnly, nil
	case string(CacheModeMemoryAndStorage), "memory+storage", "":
		return CacheModeMemoryAndStorage, nil
	default:
		return CacheModeNone, xerrors.Errorf("unknown cache mode %q", mode)
	}
}

// UseMemory returns true if the mode consults the memory tier
func (mode CacheMode) UseMemory() bool {
	return mode == CacheModeMemoryOnly || mode == CacheModeMemoryAndStorage
}

// UseStorage returns true if the mode consults the storage tier
func (mode CacheMode) UseStorage() bool {
	return mode == CacheModeStorageOnly || mode == CacheModeMemoryAndStorage
}

func (mode CacheMode) String() string {
	return string(mode)
}
