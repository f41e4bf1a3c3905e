package loader

import (
	"bytes"
	"context"
	"sync"

	"github.com/cyverse/go-imageloader/cache/memory"
	"github.com/cyverse/go-imageloader/cache/storage"
	"github.com/cyverse/go-imageloader/clock"
	"github.com/cyverse/go-imageloader/commons"
	"github.com/cyverse/go-imageloader/decoder"
	"github.com/cyverse/go-imageloader/source"
	"github.com/cyverse/go-imageloader/surface"
	"github.com/cyverse/go-imageloader/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Config holds the collaborators of an ImageLoader
type Config struct {
	CacheMode commons.CacheMode
	// MemoryCache is required when CacheMode uses memory
	MemoryCache *memory.LRUCache[string, []byte]
	// StorageCache is required when CacheMode uses storage
	StorageCache storage.StorageCache
	Source       source.ByteSource
	Registry     *decoder.Registry
	// PackageCache is optional, decoded packages are not shared without it
	PackageCache *PackageCache
	// Device and Clock default to a software device and the real clock
	Device surface.Device
	Clock  clock.Clock

	AutoPlay           bool
	ReleaseFramePixels bool
	WriteQueueLength   int
}

// CacheStats is a snapshot of cache tier bookkeeping
type CacheStats struct {
	MemoryEntries   int
	MemorySize      int64
	MemoryEvictions int64
	Storage         storage.Stats
	Packages        int
}

// ImageLoader loads bytes through the cache tiers and decodes them into image packages
type ImageLoader struct {
	cacheMode          commons.CacheMode
	memoryCache        *memory.LRUCache[string, []byte]
	storageCache       storage.StorageCache
	source             source.ByteSource
	registry           *decoder.Registry
	packageCache       *PackageCache
	device             surface.Device
	clock              clock.Clock
	autoPlay           bool
	releaseFramePixels bool

	writeQueue *WriteQueue
	metrics    *Metrics

	released bool
	mutex    sync.Mutex
}

// NewImageLoader creates an ImageLoader, failing if the cache mode needs a tier that is not given
func NewImageLoader(config *Config) (*ImageLoader, error) {
	if config == nil {
		return nil, xerrors.Errorf("loader config must be given")
	}

	cacheMode := config.CacheMode
	if len(cacheMode) == 0 {
		cacheMode = commons.CacheModeDefault
	}

	if _, err := commons.GetCacheMode(string(cacheMode)); err != nil {
		return nil, err
	}

	if cacheMode.UseMemory() && config.MemoryCache == nil {
		return nil, xerrors.Errorf("memory cache must be given for cache mode %q", cacheMode)
	}

	if cacheMode.UseStorage() && config.StorageCache == nil {
		return nil, xerrors.Errorf("storage cache must be given for cache mode %q", cacheMode)
	}

	if config.Source == nil {
		return nil, xerrors.Errorf("byte source must be given")
	}

	registry := config.Registry
	if registry == nil {
		var err error
		registry, err = decoder.NewRegistry()
		if err != nil {
			return nil, err
		}
	}

	device := config.Device
	if device == nil {
		device = surface.NewSoftwareDevice()
	}

	c := config.Clock
	if c == nil {
		c = clock.Real()
	}

	writeQueueLength := config.WriteQueueLength
	if writeQueueLength <= 0 {
		writeQueueLength = commons.WriteQueueLengthDefault
	}

	metrics := newMetrics()

	loader := &ImageLoader{
		cacheMode:          cacheMode,
		source:             config.Source,
		registry:           registry,
		packageCache:       config.PackageCache,
		device:             device,
		clock:              c,
		autoPlay:           config.AutoPlay,
		releaseFramePixels: config.ReleaseFramePixels,
		metrics:            metrics,
	}

	// tiers not used by the mode are never consulted
	if cacheMode.UseMemory() {
		loader.memoryCache = config.MemoryCache
	}

	if cacheMode.UseStorage() {
		loader.storageCache = config.StorageCache
		loader.writeQueue = NewWriteQueue(writeQueueLength, metrics)
	}

	return loader, nil
}

// GetCacheMode returns the cache mode
func (loader *ImageLoader) GetCacheMode() commons.CacheMode {
	return loader.cacheMode
}

// GetRegistry returns the decoder registry
func (loader *ImageLoader) GetRegistry() *decoder.Registry {
	return loader.registry
}

// GetDevice returns the device surfaces are created on
func (loader *ImageLoader) GetDevice() surface.Device {
	return loader.device
}

// GetMetrics returns the loader metrics
func (loader *ImageLoader) GetMetrics() *Metrics {
	return loader.metrics
}

// GetCacheStats returns cache tier bookkeeping
func (loader *ImageLoader) GetCacheStats() CacheStats {
	stats := CacheStats{}

	if loader.memoryCache != nil {
		stats.MemoryEntries = loader.memoryCache.Len()
		stats.MemorySize = loader.memoryCache.Size()
		stats.MemoryEvictions = loader.memoryCache.Evictions()
	}

	if loader.storageCache != nil {
		stats.Storage = loader.storageCache.Stats()
	}

	if loader.packageCache != nil {
		stats.Packages = loader.packageCache.GetTotalPackages()
	}

	return stats
}

// WaitForWrites blocks until queued storage writes have finished
func (loader *ImageLoader) WaitForWrites() {
	if loader.writeQueue != nil {
		loader.writeQueue.Wait()
	}
}

func (loader *ImageLoader) isReleased() bool {
	loader.mutex.Lock()
	defer loader.mutex.Unlock()

	return loader.released
}

// getCached looks up the memory tier then the storage tier.
// A storage hit is promoted to the memory tier when both are used.
func (loader *ImageLoader) getCached(ctx context.Context, uri string) ([]byte, bool) {
	logger := log.WithFields(log.Fields{
		"package":  "loader",
		"struct":   "ImageLoader",
		"function": "getCached",
	})

	if loader.memoryCache != nil {
		if data, ok := loader.memoryCache.Get(uri); ok {
			loader.metrics.IncreaseCounterForMemoryHit(1)
			return data, true
		}
		loader.metrics.IncreaseCounterForMemoryMiss(1)
	}

	if loader.storageCache != nil && utils.IsWebURI(uri) {
		if loader.storageCache.ExistsAndAlive(ctx, uri) {
			data, err := loader.storageCache.Load(ctx, uri)
			if err == nil {
				loader.metrics.IncreaseCounterForStorageHit(1)

				if loader.memoryCache != nil {
					loader.memoryCache.Put(uri, data)
				}
				return data, true
			}

			if ctx.Err() == nil {
				logger.WithError(err).Warnf("failed to load %q from storage cache, treating as a miss", uri)
			}
		}
		loader.metrics.IncreaseCounterForStorageMiss(1)
	}

	return nil, false
}

// LoadBytes returns the raw bytes of the uri, consulting cache tiers before the byte source.
// Returns nil bytes and nil error if ctx is cancelled.
func (loader *ImageLoader) LoadBytes(ctx context.Context, uri string) ([]byte, error) {
	logger := log.WithFields(log.Fields{
		"package":  "loader",
		"struct":   "ImageLoader",
		"function": "LoadBytes",
	})

	if loader.isReleased() {
		return nil, xerrors.Errorf("image loader is released")
	}

	if ctx.Err() != nil {
		loader.metrics.IncreaseCounterForCancelled(1)
		return nil, nil
	}

	if data, ok := loader.getCached(ctx, uri); ok {
		return data, nil
	}

	loader.metrics.IncreaseCounterForFetch(1)

	data, err := source.ReadAll(ctx, loader.source, uri)
	if err != nil {
		if ctx.Err() != nil || commons.IsCancelledError(err) {
			loader.metrics.IncreaseCounterForCancelled(1)
			return nil, nil
		}

		loader.metrics.IncreaseCounterForFetchFailures(1)

		// a concurrent load may have filled a tier meanwhile
		if cached, ok := loader.getCached(ctx, uri); ok {
			logger.WithError(err).Debugf("fetch of %q failed, serving cached bytes", uri)
			return cached, nil
		}

		return nil, xerrors.Errorf("failed to load %q: %w", uri, err)
	}

	loader.metrics.IncreaseBytesFetched(uint64(len(data)))

	if ctx.Err() != nil {
		loader.metrics.IncreaseCounterForCancelled(1)
		return nil, nil
	}

	if loader.memoryCache != nil {
		loader.memoryCache.Put(uri, data)
	}

	if loader.storageCache != nil && utils.IsWebURI(uri) {
		loader.enqueueStorageWrite(uri, data)
	}

	return data, nil
}

func (loader *ImageLoader) enqueueStorageWrite(uri string, data []byte) {
	storageCache := loader.storageCache

	loader.writeQueue.Enqueue(WriteJob{
		Key: uri,
		Run: func(ctx context.Context) error {
			_, err := storageCache.Save(ctx, uri, bytes.NewReader(data))
			return err
		},
	})
}

// LoadImage loads and decodes the uri. The caller owns one reference on the returned package.
// If target is given, a later load on the same target supersedes this one and the result is
// discarded; a committed package replaces the target's previous package.
// Returns nil package and nil error if ctx is cancelled or the load is superseded.
func (loader *ImageLoader) LoadImage(ctx context.Context, target *Target, uri string) (*decoder.ImagePackage, error) {
	logger := log.WithFields(log.Fields{
		"package":  "loader",
		"struct":   "ImageLoader",
		"function": "LoadImage",
	})

	var token uint64
	if target != nil {
		token = target.begin()
	}

	pkg, err := loader.decodeImage(ctx, uri)
	if err != nil {
		return nil, err
	}

	if pkg == nil {
		return nil, nil
	}

	if ctx.Err() != nil {
		loader.metrics.IncreaseCounterForCancelled(1)
		pkg.Release()
		return nil, nil
	}

	if target != nil && !target.commit(token, pkg) {
		logger.Debugf("load of %q is superseded", uri)
		loader.metrics.IncreaseCounterForSuperseded(1)
		pkg.Release()
		return nil, nil
	}

	if loader.autoPlay && pkg.IsAnimated() {
		pkg.Start()
	}

	return pkg, nil
}

func (loader *ImageLoader) decodeImage(ctx context.Context, uri string) (*decoder.ImagePackage, error) {
	if loader.packageCache != nil {
		if pkg := loader.packageCache.GetPackage(uri); pkg != nil {
			loader.metrics.IncreaseCounterForPackageHit(1)
			return pkg, nil
		}
	}

	data, err := loader.LoadBytes(ctx, uri)
	if err != nil {
		return nil, err
	}

	if data == nil {
		return nil, nil
	}

	pkg, err := loader.registry.Dispatch(ctx, data, decoder.Options{
		Device:             loader.device,
		Clock:              loader.clock,
		ReleaseFramePixels: loader.releaseFramePixels,
	})
	if err != nil {
		if commons.IsCancelledError(err) {
			loader.metrics.IncreaseCounterForCancelled(1)
			return nil, nil
		}

		loader.metrics.IncreaseCounterForDecodeFailures(1)
		return nil, xerrors.Errorf("failed to decode %q: %w", uri, err)
	}

	loader.metrics.IncreaseCounterForDecode(pkg.GetDecoderName(), 1)

	if loader.packageCache != nil {
		loader.packageCache.AddPackage(uri, pkg)
	}

	return pkg, nil
}

// Release stops the write queue after pending writes, drops cached packages and releases the storage tier
func (loader *ImageLoader) Release() {
	loader.mutex.Lock()
	if loader.released {
		loader.mutex.Unlock()
		return
	}
	loader.released = true
	loader.mutex.Unlock()

	if loader.writeQueue != nil {
		loader.writeQueue.Release()
	}

	if loader.packageCache != nil {
		loader.packageCache.ClearPackages()
	}

	if loader.storageCache != nil {
		loader.storageCache.Release()
	}
}
