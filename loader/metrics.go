package loader

import (
	"sort"
	"sync"
)

// Metrics counts loader activity, all counters only grow
type Metrics struct {
	memoryHit          uint64
	memoryMiss         uint64
	storageHit         uint64
	storageMiss        uint64
	packageHit         uint64
	fetch              uint64
	fetchFailures      uint64
	bytesFetched       uint64
	decodes            map[string]uint64
	decodeFailures     uint64
	storageWrites      uint64
	storageWriteFailed uint64
	superseded         uint64
	cancelled          uint64

	mutex sync.Mutex
}

func newMetrics() *Metrics {
	return &Metrics{
		decodes: map[string]uint64{},
	}
}

func (metrics *Metrics) increase(counter *uint64, delta uint64) {
	metrics.mutex.Lock()
	defer metrics.mutex.Unlock()

	*counter += delta
}

func (metrics *Metrics) get(counter *uint64) uint64 {
	metrics.mutex.Lock()
	defer metrics.mutex.Unlock()

	return *counter
}

func (metrics *Metrics) IncreaseCounterForMemoryHit(n uint64) {
	metrics.increase(&metrics.memoryHit, n)
}

func (metrics *Metrics) GetCounterForMemoryHit() uint64 {
	return metrics.get(&metrics.memoryHit)
}

func (metrics *Metrics) IncreaseCounterForMemoryMiss(n uint64) {
	metrics.increase(&metrics.memoryMiss, n)
}

func (metrics *Metrics) GetCounterForMemoryMiss() uint64 {
	return metrics.get(&metrics.memoryMiss)
}

func (metrics *Metrics) IncreaseCounterForStorageHit(n uint64) {
	metrics.increase(&metrics.storageHit, n)
}

func (metrics *Metrics) GetCounterForStorageHit() uint64 {
	return metrics.get(&metrics.storageHit)
}

func (metrics *Metrics) IncreaseCounterForStorageMiss(n uint64) {
	metrics.increase(&metrics.storageMiss, n)
}

func (metrics *Metrics) GetCounterForStorageMiss() uint64 {
	return metrics.get(&metrics.storageMiss)
}

func (metrics *Metrics) IncreaseCounterForPackageHit(n uint64) {
	metrics.increase(&metrics.packageHit, n)
}

func (metrics *Metrics) GetCounterForPackageHit() uint64 {
	return metrics.get(&metrics.packageHit)
}

func (metrics *Metrics) IncreaseCounterForFetch(n uint64) {
	metrics.increase(&metrics.fetch, n)
}

func (metrics *Metrics) GetCounterForFetch() uint64 {
	return metrics.get(&metrics.fetch)
}

func (metrics *Metrics) IncreaseCounterForFetchFailures(n uint64) {
	metrics.increase(&metrics.fetchFailures, n)
}

func (metrics *Metrics) GetCounterForFetchFailures() uint64 {
	return metrics.get(&metrics.fetchFailures)
}

func (metrics *Metrics) IncreaseBytesFetched(n uint64) {
	metrics.increase(&metrics.bytesFetched, n)
}

func (metrics *Metrics) GetBytesFetched() uint64 {
	return metrics.get(&metrics.bytesFetched)
}

func (metrics *Metrics) IncreaseCounterForDecode(decoderName string, n uint64) {
	metrics.mutex.Lock()
	defer metrics.mutex.Unlock()

	metrics.decodes[decoderName] += n
}

// GetCounterForDecode returns a copy of decode counters keyed by decoder name
func (metrics *Metrics) GetCounterForDecode() map[string]uint64 {
	metrics.mutex.Lock()
	defer metrics.mutex.Unlock()

	decodes := make(map[string]uint64, len(metrics.decodes))
	for name, count := range metrics.decodes {
		decodes[name] = count
	}
	return decodes
}

func (metrics *Metrics) IncreaseCounterForDecodeFailures(n uint64) {
	metrics.increase(&metrics.decodeFailures, n)
}

func (metrics *Metrics) GetCounterForDecodeFailures() uint64 {
	return metrics.get(&metrics.decodeFailures)
}

func (metrics *Metrics) IncreaseCounterForStorageWrites(n uint64) {
	metrics.increase(&metrics.storageWrites, n)
}

func (metrics *Metrics) GetCounterForStorageWrites() uint64 {
	return metrics.get(&metrics.storageWrites)
}

func (metrics *Metrics) IncreaseCounterForStorageWriteFailures(n uint64) {
	metrics.increase(&metrics.storageWriteFailed, n)
}

func (metrics *Metrics) GetCounterForStorageWriteFailures() uint64 {
	return metrics.get(&metrics.storageWriteFailed)
}

func (metrics *Metrics) IncreaseCounterForSuperseded(n uint64) {
	metrics.increase(&metrics.superseded, n)
}

func (metrics *Metrics) GetCounterForSuperseded() uint64 {
	return metrics.get(&metrics.superseded)
}

func (metrics *Metrics) IncreaseCounterForCancelled(n uint64) {
	metrics.increase(&metrics.cancelled, n)
}

func (metrics *Metrics) GetCounterForCancelled() uint64 {
	return metrics.get(&metrics.cancelled)
}

// Add sums other into metrics
func (metrics *Metrics) Add(other *Metrics) {
	metrics.IncreaseCounterForMemoryHit(other.GetCounterForMemoryHit())
	metrics.IncreaseCounterForMemoryMiss(other.GetCounterForMemoryMiss())
	metrics.IncreaseCounterForStorageHit(other.GetCounterForStorageHit())
	metrics.IncreaseCounterForStorageMiss(other.GetCounterForStorageMiss())
	metrics.IncreaseCounterForPackageHit(other.GetCounterForPackageHit())
	metrics.IncreaseCounterForFetch(other.GetCounterForFetch())
	metrics.IncreaseCounterForFetchFailures(other.GetCounterForFetchFailures())
	metrics.IncreaseBytesFetched(other.GetBytesFetched())
	for name, count := range other.GetCounterForDecode() {
		metrics.IncreaseCounterForDecode(name, count)
	}
	metrics.IncreaseCounterForDecodeFailures(other.GetCounterForDecodeFailures())
	metrics.IncreaseCounterForStorageWrites(other.GetCounterForStorageWrites())
	metrics.IncreaseCounterForStorageWriteFailures(other.GetCounterForStorageWriteFailures())
	metrics.IncreaseCounterForSuperseded(other.GetCounterForSuperseded())
	metrics.IncreaseCounterForCancelled(other.GetCounterForCancelled())
}

// GetDecoderNames returns decoder names seen so far, sorted
func (metrics *Metrics) GetDecoderNames() []string {
	decodes := metrics.GetCounterForDecode()

	names := make([]string, 0, len(decodes))
	for name := range decodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
