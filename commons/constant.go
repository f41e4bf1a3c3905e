package commons

import "time"

const (
	MemoryCacheSizeMaxDefault         int64         = 1024 * 1024 * 1024 // 1GB
	StorageCacheRootPathPrefixDefault string        = "/tmp/imageloader_cache"
	StorageCacheSizeMaxDefault        int64         = 1024 * 1024 * 1024 * 2 // 2GB
	StorageCacheMaxAgeDefault         time.Duration = 7 * 24 * time.Hour
	StorageCacheNameGeneratorDefault  string        = "sha1"
	PackageCacheTimeoutDefault        time.Duration = 5 * time.Minute
	PackageCacheCleanupDefault        time.Duration = 10 * time.Minute
	HTTPTimeoutDefault                time.Duration = 30 * time.Second
	HTTPMaxRedirectsDefault           int           = 10
	HTTPUserAgentDefault              string        = "go-imageloader"
	WriteQueueLengthDefault           int           = 64
	LogFilePathPrefixDefault          string        = "/tmp/imageloader"

	ProfileServicePortDefault     int = 12031
	PrometheusExporterPortDefault int = 12032
)
