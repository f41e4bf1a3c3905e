package storage

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/hashicorp/golang-lru/simplelru"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// limitedStorageEntry is the bookkeeping of a cached file
type limitedStorageEntry struct {
	name       string
	size       int64
	lastAccess time.Time
}

// LimitedStorageCache is a storage cache whose total file size is kept within sizeCap
// by deleting least recently accessed files before a save.
type LimitedStorageCache struct {
	*baseStorageCache

	sizeCap   int64
	totalSize int64
	evictions int64
	index     *simplelru.LRU // key = file name, ordered by last access
	mutex     sync.Mutex
}

// NewLimitedStorageCache creates a LimitedStorageCache, scanning existing files in the folder
func NewLimitedStorageCache(filesystem billy.Filesystem, sizeCap int64, options Options) (*LimitedStorageCache, error) {
	logger := log.WithFields(log.Fields{
		"package":  "storage",
		"function": "NewLimitedStorageCache",
	})

	if sizeCap <= 0 {
		return nil, xerrors.Errorf("storage cache size cap must be positive, got %d", sizeCap)
	}

	base, err := newBaseStorageCache(filesystem, options)
	if err != nil {
		return nil, err
	}

	index, err := simplelru.NewLRU(1<<30, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to create storage cache index: %w", err)
	}

	cache := &LimitedStorageCache{
		baseStorageCache: base,
		sizeCap:          sizeCap,
		index:            index,
	}

	files, err := base.listFiles(true)
	if err != nil {
		return nil, err
	}

	// oldest first so the index order follows modification time
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModTime().Before(files[j].ModTime())
	})

	for _, file := range files {
		cache.index.Add(file.Name(), &limitedStorageEntry{
			name:       file.Name(),
			size:       file.Size(),
			lastAccess: file.ModTime(),
		})
		cache.totalSize += file.Size()
	}

	logger.Debugf("found %d cache files, %d bytes in total", len(files), cache.totalSize)
	return cache, nil
}

// GetSizeCap returns the size limit
func (cache *LimitedStorageCache) GetSizeCap() int64 {
	return cache.sizeCap
}

// GetTotalEntrySize returns the total size of cached files
func (cache *LimitedStorageCache) GetTotalEntrySize() int64 {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return cache.totalSize
}

// GetTotalEntries returns the number of cached files
func (cache *LimitedStorageCache) GetTotalEntries() int {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return cache.index.Len()
}

// Save writes data under the key.
// Least recently accessed files are deleted one by one until the new file fits or nothing is left,
// the save then proceeds even if the limit is still exceeded.
func (cache *LimitedStorageCache) Save(ctx context.Context, key string, data io.Reader) (bool, error) {
	logger := log.WithFields(log.Fields{
		"package":  "storage",
		"struct":   "LimitedStorageCache",
		"function": "Save",
	})

	name := cache.getFileName(key)

	tempName, size, err := cache.writeTempFile(ctx, data)
	if err != nil {
		return false, err
	}

	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	// the previous file under the same name is replaced by the rename
	var previous *limitedStorageEntry
	if value, ok := cache.index.Peek(name); ok {
		if entry, ok := value.(*limitedStorageEntry); ok {
			previous = entry
			cache.totalSize -= entry.size
		}
		cache.index.Remove(name)
	}

	for cache.totalSize+size > cache.sizeCap && cache.index.Len() > 0 {
		cache.evictOldestLocked()
	}

	if cache.totalSize+size > cache.sizeCap {
		logger.Debugf("saving %q (%d bytes) beyond size cap %d", key, size, cache.sizeCap)
	}

	err = cache.commitTempFile(tempName, name)
	if err != nil {
		if previous != nil {
			cache.restoreLocked(previous)
		}
		return false, err
	}

	cache.index.Add(name, &limitedStorageEntry{
		name:       name,
		size:       size,
		lastAccess: cache.clock.Now(),
	})
	cache.totalSize += size

	logger.Debugf("saved %d bytes for %q to %q, total %d bytes", size, key, name, cache.totalSize)
	return true, nil
}

// Load reads data stored under the key and marks it most recently accessed
func (cache *LimitedStorageCache) Load(ctx context.Context, key string) ([]byte, error) {
	name := cache.getFileName(key)

	data, err := cache.readFile(ctx, name)
	if err != nil {
		return nil, err
	}

	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if value, ok := cache.index.Get(name); ok {
		if entry, ok := value.(*limitedStorageEntry); ok {
			entry.lastAccess = cache.clock.Now()
		}
	}

	return data, nil
}

// Exists returns true if a file is stored under the key
func (cache *LimitedStorageCache) Exists(ctx context.Context, key string) bool {
	_, ok := cache.stat(cache.getFileName(key))
	return ok
}

// ExistsAndAlive returns true if a file is stored under the key and has not expired
func (cache *LimitedStorageCache) ExistsAndAlive(ctx context.Context, key string) bool {
	info, ok := cache.stat(cache.getFileName(key))
	if !ok {
		return false
	}
	return cache.isAlive(info)
}

// Clear removes all cached files
func (cache *LimitedStorageCache) Clear(ctx context.Context) error {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	err := cache.clearFiles()

	cache.index.Purge()
	cache.totalSize = 0
	return err
}

// Stats returns bookkeeping numbers
func (cache *LimitedStorageCache) Stats() Stats {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return Stats{
		Entries:   cache.index.Len(),
		TotalSize: cache.totalSize,
		SizeMax:   cache.sizeCap,
		Evictions: cache.evictions,
	}
}

// Release drops the in-memory index, files are kept for the next run
func (cache *LimitedStorageCache) Release() {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cache.index.Purge()
	cache.totalSize = 0
}

// restoreLocked tracks the entry again if its file is still on disk
func (cache *LimitedStorageCache) restoreLocked(entry *limitedStorageEntry) {
	info, ok := cache.stat(entry.name)
	if !ok {
		return
	}

	entry.size = info.Size()
	cache.index.Add(entry.name, entry)
	cache.totalSize += entry.size
}

func (cache *LimitedStorageCache) evictOldestLocked() {
	logger := log.WithFields(log.Fields{
		"package":  "storage",
		"struct":   "LimitedStorageCache",
		"function": "evictOldestLocked",
	})

	_, value, ok := cache.index.RemoveOldest()
	if !ok {
		return
	}

	entry, ok := value.(*limitedStorageEntry)
	if !ok {
		return
	}

	cache.totalSize -= entry.size
	if cache.totalSize < 0 {
		cache.totalSize = 0
	}
	cache.evictions++

	err := cache.removeFile(entry.name)
	if err != nil {
		logger.WithError(err).Warnf("failed to delete evicted cache file %q", entry.name)
		return
	}

	logger.Debugf("evicted cache file %q (%d bytes)", entry.name, entry.size)
}
