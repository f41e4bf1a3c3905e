package loader

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promCounterForMemoryHit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imageloader_memory_cache_hit_total",
		Help: "The total number of memory cache hits",
	})
	oldCounterForMemoryHit uint64 = 0

	promCounterForMemoryMiss = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imageloader_memory_cache_miss_total",
		Help: "The total number of memory cache misses",
	})
	oldCounterForMemoryMiss uint64 = 0

	promCounterForStorageHit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imageloader_storage_cache_hit_total",
		Help: "The total number of storage cache hits",
	})
	oldCounterForStorageHit uint64 = 0

	promCounterForStorageMiss = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imageloader_storage_cache_miss_total",
		Help: "The total number of storage cache misses",
	})
	oldCounterForStorageMiss uint64 = 0

	promCounterForPackageHit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imageloader_package_cache_hit_total",
		Help: "The total number of decoded packages reused",
	})
	oldCounterForPackageHit uint64 = 0

	promCounterForFetch = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imageloader_fetch_total",
		Help: "The total number of byte source fetches",
	})
	oldCounterForFetch uint64 = 0

	promCounterForFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imageloader_fetch_failures_total",
		Help: "The total number of failed byte source fetches",
	})
	oldCounterForFetchFailures uint64 = 0

	promCounterForBytesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imageloader_bytes_fetched_total",
		Help: "The total number of bytes read from byte sources",
	})
	oldCounterForBytesFetched uint64 = 0

	promCounterForDecode = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imageloader_decode_total",
		Help: "The total number of decoded images",
	}, []string{"decoder"})
	oldCounterForDecode = map[string]uint64{}

	promCounterForDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imageloader_decode_failures_total",
		Help: "The total number of failed decodes",
	})
	oldCounterForDecodeFailures uint64 = 0

	promCounterForStorageWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imageloader_storage_writes_total",
		Help: "The total number of storage cache writes",
	})
	oldCounterForStorageWrites uint64 = 0

	promCounterForStorageWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imageloader_storage_write_failures_total",
		Help: "The total number of failed storage cache writes",
	})
	oldCounterForStorageWriteFailures uint64 = 0

	promCounterForSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imageloader_superseded_loads_total",
		Help: "The total number of loads discarded by a newer load on the same target",
	})
	oldCounterForSuperseded uint64 = 0

	promCounterForMemoryEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imageloader_memory_cache_evictions_total",
		Help: "The total number of memory cache evictions",
	})
	oldCounterForMemoryEvictions uint64 = 0

	promCounterForStorageEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imageloader_storage_cache_evictions_total",
		Help: "The total number of storage cache evictions",
	})
	oldCounterForStorageEvictions uint64 = 0

	promGaugeForMemoryBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imageloader_memory_cache_bytes",
		Help: "The number of bytes held by memory caches",
	})

	promGaugeForStorageEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imageloader_storage_cache_entries",
		Help: "The number of files held by storage caches",
	})

	promGaugeForStorageBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imageloader_storage_cache_bytes",
		Help: "The number of bytes held by storage caches",
	})

	promGaugeForPackages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imageloader_live_packages",
		Help: "The number of decoded packages held by package caches",
	})

	promMutex sync.Mutex
)

// addCounterDelta adds the growth since the last collection.
// Totals shrink when a loader is unregistered, then only the baseline moves.
func addCounterDelta(counter prometheus.Counter, newValue uint64, oldValue *uint64) {
	if newValue > *oldValue {
		counter.Add(float64(newValue - *oldValue))
	}
	*oldValue = newValue
}

// CollectPrometheusMetrics publishes the sum of all registered loaders' metrics
func (registry *Registry) CollectPrometheusMetrics() {
	metrics, stats := registry.CollectMetrics()

	promMutex.Lock()
	defer promMutex.Unlock()

	addCounterDelta(promCounterForMemoryHit, metrics.GetCounterForMemoryHit(), &oldCounterForMemoryHit)
	addCounterDelta(promCounterForMemoryMiss, metrics.GetCounterForMemoryMiss(), &oldCounterForMemoryMiss)
	addCounterDelta(promCounterForStorageHit, metrics.GetCounterForStorageHit(), &oldCounterForStorageHit)
	addCounterDelta(promCounterForStorageMiss, metrics.GetCounterForStorageMiss(), &oldCounterForStorageMiss)
	addCounterDelta(promCounterForPackageHit, metrics.GetCounterForPackageHit(), &oldCounterForPackageHit)
	addCounterDelta(promCounterForFetch, metrics.GetCounterForFetch(), &oldCounterForFetch)
	addCounterDelta(promCounterForFetchFailures, metrics.GetCounterForFetchFailures(), &oldCounterForFetchFailures)
	addCounterDelta(promCounterForBytesFetched, metrics.GetBytesFetched(), &oldCounterForBytesFetched)

	for name, count := range metrics.GetCounterForDecode() {
		old := oldCounterForDecode[name]
		addCounterDelta(promCounterForDecode.WithLabelValues(name), count, &old)
		oldCounterForDecode[name] = old
	}

	addCounterDelta(promCounterForDecodeFailures, metrics.GetCounterForDecodeFailures(), &oldCounterForDecodeFailures)
	addCounterDelta(promCounterForStorageWrites, metrics.GetCounterForStorageWrites(), &oldCounterForStorageWrites)
	addCounterDelta(promCounterForStorageWriteFailures, metrics.GetCounterForStorageWriteFailures(), &oldCounterForStorageWriteFailures)
	addCounterDelta(promCounterForSuperseded, metrics.GetCounterForSuperseded(), &oldCounterForSuperseded)
	addCounterDelta(promCounterForMemoryEvictions, uint64(stats.MemoryEvictions), &oldCounterForMemoryEvictions)
	addCounterDelta(promCounterForStorageEvictions, uint64(stats.Storage.Evictions), &oldCounterForStorageEvictions)

	promGaugeForMemoryBytes.Set(float64(stats.MemorySize))
	promGaugeForStorageEntries.Set(float64(stats.Storage.Entries))
	promGaugeForStorageBytes.Set(float64(stats.Storage.TotalSize))
	promGaugeForPackages.Set(float64(stats.Packages))
}
