package loader

import (
	"time"

	"github.com/cyverse/go-imageloader/decoder"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
)

// PackageCache keeps decoded packages by uri so a second load reuses a live package.
// The cache holds its own reference on each package and drops it on expiry or removal.
type PackageCache struct {
	cacheTimeout   time.Duration
	cleanupTimeout time.Duration
	packageCache   *gocache.Cache
}

// NewPackageCache creates a new PackageCache
func NewPackageCache(cacheTimeout time.Duration, cleanup time.Duration) *PackageCache {
	logger := log.WithFields(log.Fields{
		"package":  "loader",
		"function": "NewPackageCache",
	})

	packageCache := gocache.New(cacheTimeout, cleanup)
	packageCache.OnEvicted(func(uri string, value interface{}) {
		if pkg, ok := value.(*decoder.ImagePackage); ok {
			logger.Debugf("releasing cached package of %q", uri)
			pkg.Release()
		}
	})

	return &PackageCache{
		cacheTimeout:   cacheTimeout,
		cleanupTimeout: cleanup,
		packageCache:   packageCache,
	}
}

// AddPackage adds a package, the first live package for a uri wins.
// Returns false if another package is already cached for the uri.
func (cache *PackageCache) AddPackage(uri string, pkg *decoder.ImagePackage) bool {
	if !pkg.Acquire() {
		return false
	}

	cache.releaseExpired()

	err := cache.packageCache.Add(uri, pkg, gocache.DefaultExpiration)
	if err == nil {
		return true
	}

	// the existing entry may hold a package released elsewhere, replace it then
	if existing := cache.peek(uri); existing == nil || existing.IsReleased() {
		cache.packageCache.Delete(uri)
		if cache.packageCache.Add(uri, pkg, gocache.DefaultExpiration) == nil {
			return true
		}
	}

	pkg.Release()
	return false
}

func (cache *PackageCache) peek(uri string) *decoder.ImagePackage {
	value, exist := cache.packageCache.Get(uri)
	if !exist {
		return nil
	}

	if pkg, ok := value.(*decoder.ImagePackage); ok {
		return pkg
	}
	return nil
}

// GetPackage returns a live package with a new reference the caller must release, nil if none
func (cache *PackageCache) GetPackage(uri string) *decoder.ImagePackage {
	cache.releaseExpired()

	pkg := cache.peek(uri)
	if pkg == nil {
		return nil
	}

	if !pkg.Acquire() {
		cache.packageCache.Delete(uri)
		return nil
	}
	return pkg
}

// RemovePackage removes a package and drops the cache reference
func (cache *PackageCache) RemovePackage(uri string) {
	cache.packageCache.Delete(uri)
}

// GetTotalPackages returns the number of cached packages
func (cache *PackageCache) GetTotalPackages() int {
	return cache.packageCache.ItemCount()
}

// releaseExpired evicts expired entries ahead of the janitor.
// Get and Add treat an expired entry as absent and Add overwrites it without the eviction callback.
func (cache *PackageCache) releaseExpired() {
	cache.packageCache.DeleteExpired()
}

// ClearPackages drops all cached packages
func (cache *PackageCache) ClearPackages() {
	// Flush skips the eviction callback, so delete entries one by one
	cache.releaseExpired()
	for uri := range cache.packageCache.Items() {
		cache.packageCache.Delete(uri)
	}
}
