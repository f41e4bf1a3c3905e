package memory

import (
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// SizeFunc returns the accounted size of a value in bytes
type SizeFunc[V any] func(value V) int64

// LRUCache is a thread-safe least-recently-used cache.
// It is bounded either by entry count or by a byte budget computed with a SizeFunc.
// Put never replaces a live entry, the first writer wins.
type LRUCache[K comparable, V any] struct {
	capacity  int64
	sizeOf    SizeFunc[V]
	totalSize int64
	evictions int64
	lru       *simplelru.LRU
	mutex     sync.Mutex
}

// NewLRUCache creates a cache holding at most capacity entries
func NewLRUCache[K comparable, V any](capacity int) (*LRUCache[K, V], error) {
	if capacity < 1 {
		return nil, xerrors.Errorf("lru cache capacity must be positive, got %d", capacity)
	}

	cache := &LRUCache[K, V]{
		capacity: int64(capacity),
		sizeOf:   nil,
	}

	lru, err := simplelru.NewLRU(capacity, cache.onEvicted)
	if err != nil {
		return nil, xerrors.Errorf("failed to create lru: %w", err)
	}

	cache.lru = lru
	return cache, nil
}

// NewSizedLRUCache creates a cache whose total value size stays within capacityBytes
func NewSizedLRUCache[K comparable, V any](capacityBytes int64, sizeOf SizeFunc[V]) (*LRUCache[K, V], error) {
	if capacityBytes < 1 {
		return nil, xerrors.Errorf("lru cache capacity must be positive, got %d", capacityBytes)
	}

	if sizeOf == nil {
		return nil, xerrors.Errorf("size function must be given")
	}

	cache := &LRUCache[K, V]{
		capacity: capacityBytes,
		sizeOf:   sizeOf,
	}

	// entry count is not the bound here, eviction is driven by totalSize
	lru, err := simplelru.NewLRU(math.MaxInt32, cache.onEvicted)
	if err != nil {
		return nil, xerrors.Errorf("failed to create lru: %w", err)
	}

	cache.lru = lru
	return cache, nil
}

// NewByteSliceLRUCache creates a cache of raw image bytes bounded by capacityBytes
func NewByteSliceLRUCache[K comparable](capacityBytes int64) (*LRUCache[K, []byte], error) {
	return NewSizedLRUCache[K, []byte](capacityBytes, func(value []byte) int64 {
		return int64(len(value))
	})
}

// Get returns the value for the key and marks it most recently used
func (cache *LRUCache[K, V]) Get(key K) (V, bool) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if value, ok := cache.lru.Get(key); ok {
		if typedValue, ok := value.(V); ok {
			return typedValue, true
		}
	}

	var zero V
	return zero, false
}

// Contains checks the key without touching recency
func (cache *LRUCache[K, V]) Contains(key K) bool {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return cache.lru.Contains(key)
}

// Put inserts the value if the key is absent and returns true if it was inserted.
// Least recently used entries are evicted until the cache is back within capacity.
func (cache *LRUCache[K, V]) Put(key K, value V) bool {
	logger := log.WithFields(log.Fields{
		"package":  "memory",
		"struct":   "LRUCache",
		"function": "Put",
	})

	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if cache.lru.Contains(key) {
		return false
	}

	if cache.sizeOf == nil {
		// simplelru evicts the oldest entry itself when over count
		if cache.lru.Add(key, value) {
			cache.evictions++
		}
		return true
	}

	cache.lru.Add(key, value)
	cache.totalSize += cache.valueSize(value)

	for cache.totalSize > cache.capacity && cache.lru.Len() > 0 {
		evictedKey, _, ok := cache.lru.RemoveOldest()
		if !ok {
			break
		}
		cache.evictions++
		logger.Debugf("evicted %v to stay within %d bytes", evictedKey, cache.capacity)
	}

	return true
}

// Remove deletes the key, returns true if it was present
func (cache *LRUCache[K, V]) Remove(key K) bool {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return cache.lru.Remove(key)
}

// Clear removes all entries
func (cache *LRUCache[K, V]) Clear() {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cache.lru.Purge()
	cache.totalSize = 0
}

// Len returns the number of entries
func (cache *LRUCache[K, V]) Len() int {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return cache.lru.Len()
}

// Size returns the accounted size, bytes for sized caches and entries otherwise
func (cache *LRUCache[K, V]) Size() int64 {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if cache.sizeOf == nil {
		return int64(cache.lru.Len())
	}
	return cache.totalSize
}

// Capacity returns the configured bound
func (cache *LRUCache[K, V]) Capacity() int64 {
	return cache.capacity
}

// Evictions returns the number of entries removed to stay within capacity
func (cache *LRUCache[K, V]) Evictions() int64 {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return cache.evictions
}

// Keys returns keys from the least to the most recently used
func (cache *LRUCache[K, V]) Keys() []K {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	keys := []K{}
	for _, key := range cache.lru.Keys() {
		if typedKey, ok := key.(K); ok {
			keys = append(keys, typedKey)
		}
	}
	return keys
}

func (cache *LRUCache[K, V]) valueSize(value V) int64 {
	size := cache.sizeOf(value)
	if size < 0 {
		return 0
	}
	return size
}

// onEvicted is called by simplelru with the mutex held, for evictions and removals alike
func (cache *LRUCache[K, V]) onEvicted(key interface{}, value interface{}) {
	if cache.sizeOf == nil {
		return
	}

	if typedValue, ok := value.(V); ok {
		cache.totalSize -= cache.valueSize(typedValue)
		if cache.totalSize < 0 {
			cache.totalSize = 0
		}
	}
}
