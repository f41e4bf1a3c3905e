package loader

import (
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

// NewImageLoaderFromConfig builds cache tiers, sources and decoders described by config.
// byteSource and device may be nil to use the scheme source and a software device.
func NewImageLoaderFromConfig(config *commons.Config, byteSource source.ByteSource, device surface.Device) (*ImageLoader, error) {
	logger := log.WithFields(log.Fields{
		"package":  "loader",
		"function": "NewImageLoaderFromConfig",
	})

	err := config.Validate()
	if err != nil {
		return nil, xerrors.Errorf("invalid configuration: %w", err)
	}

	cacheMode, err := config.GetCacheMode()
	if err != nil {
		return nil, err
	}

	registry, err := decoder.NewRegistryFromNames(config.Decoders)
	if err != nil {
		return nil, xerrors.Errorf("failed to create decoder registry: %w", err)
	}

	if byteSource == nil {
		byteSource = source.NewSchemeSourceFromConfig(config)
	}

	loaderConfig := &Config{
		CacheMode:          cacheMode,
		Source:             byteSource,
		Registry:           registry,
		PackageCache:       NewPackageCache(config.GetPackageCacheTimeout(), config.GetPackageCacheCleanup()),
		Device:             device,
		Clock:              clock.Real(),
		AutoPlay:           config.AutoPlay,
		ReleaseFramePixels: config.ReleaseFramePixels,
		WriteQueueLength:   commons.WriteQueueLengthDefault,
	}

	if cacheMode.UseMemory() {
		memoryCache, err := memory.NewByteSliceLRUCache[string](config.MemoryCacheSizeMax)
		if err != nil {
			return nil, xerrors.Errorf("failed to create memory cache: %w", err)
		}
		loaderConfig.MemoryCache = memoryCache

		logger.Debugf("memory cache of %s", utils.HumanizeBytes(config.MemoryCacheSizeMax))
	}

	if cacheMode.UseStorage() {
		storageCache, err := newStorageCacheFromConfig(config)
		if err != nil {
			return nil, err
		}
		loaderConfig.StorageCache = storageCache
	}

	return NewImageLoader(loaderConfig)
}

func newStorageCacheFromConfig(config *commons.Config) (storage.StorageCache, error) {
	logger := log.WithFields(log.Fields{
		"package":  "loader",
		"function": "newStorageCacheFromConfig",
	})

	nameGenerator, err := storage.NewNameGenerator(config.StorageCacheNameGenerator)
	if err != nil {
		return nil, err
	}

	filesystem, err := storage.NewOSFilesystem(config.StorageCacheRootPath)
	if err != nil {
		return nil, err
	}

	options := storage.Options{
		NameGenerator: nameGenerator,
		MaxAge:        config.GetStorageCacheMaxAge(),
		Clock:         clock.Real(),
	}

	if config.StorageCacheSizeMax > 0 {
		logger.Debugf("storage cache at %q limited to %s", config.StorageCacheRootPath, utils.HumanizeBytes(config.StorageCacheSizeMax))
		return storage.NewLimitedStorageCache(filesystem, config.StorageCacheSizeMax, options)
	}

	logger.Debugf("unlimited storage cache at %q", config.StorageCacheRootPath)
	return storage.NewUnlimitedStorageCache(filesystem, options)
}
