package storage

import (
	"context"
	"io"

	"github.com/go-git/go-billy/v5"
	log "github.com/sirupsen/logrus"
)

// UnlimitedStorageCache is a storage cache that never evicts
type UnlimitedStorageCache struct {
	*baseStorageCache
}

// NewUnlimitedStorageCache creates an UnlimitedStorageCache on the given folder
func NewUnlimitedStorageCache(filesystem billy.Filesystem, options Options) (*UnlimitedStorageCache, error) {
	base, err := newBaseStorageCache(filesystem, options)
	if err != nil {
		return nil, err
	}

	// drop temp files left by an interrupted process
	_, err = base.listFiles(true)
	if err != nil {
		return nil, err
	}

	return &UnlimitedStorageCache{
		baseStorageCache: base,
	}, nil
}

// Save writes data under the key
func (cache *UnlimitedStorageCache) Save(ctx context.Context, key string, data io.Reader) (bool, error) {
	logger := log.WithFields(log.Fields{
		"package":  "storage",
		"struct":   "UnlimitedStorageCache",
		"function": "Save",
	})

	name := cache.getFileName(key)

	tempName, size, err := cache.writeTempFile(ctx, data)
	if err != nil {
		return false, err
	}

	err = cache.commitTempFile(tempName, name)
	if err != nil {
		return false, err
	}

	logger.Debugf("saved %d bytes for %q to %q", size, key, name)
	return true, nil
}

// Load reads data stored under the key
func (cache *UnlimitedStorageCache) Load(ctx context.Context, key string) ([]byte, error) {
	return cache.readFile(ctx, cache.getFileName(key))
}

// Exists returns true if a file is stored under the key
func (cache *UnlimitedStorageCache) Exists(ctx context.Context, key string) bool {
	_, ok := cache.stat(cache.getFileName(key))
	return ok
}

// ExistsAndAlive returns true if a file is stored under the key and has not expired
func (cache *UnlimitedStorageCache) ExistsAndAlive(ctx context.Context, key string) bool {
	info, ok := cache.stat(cache.getFileName(key))
	if !ok {
		return false
	}
	return cache.isAlive(info)
}

// Clear removes all cached files
func (cache *UnlimitedStorageCache) Clear(ctx context.Context) error {
	return cache.clearFiles()
}

// Stats returns bookkeeping numbers computed from the folder
func (cache *UnlimitedStorageCache) Stats() Stats {
	stats := Stats{}

	files, err := cache.listFiles(false)
	if err != nil {
		return stats
	}

	for _, file := range files {
		stats.Entries++
		stats.TotalSize += file.Size()
	}
	return stats
}

// Release does nothing, files are kept for the next run
func (cache *UnlimitedStorageCache) Release() {}
