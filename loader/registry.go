package loader

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// DefaultLoaderName is the name the first registered loader becomes default under
const DefaultLoaderName string = "default"

// Registry keeps named loaders, one of which is the default
type Registry struct {
	loaders     map[string]*ImageLoader
	defaultName string
	mutex       sync.RWMutex
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		loaders: map[string]*ImageLoader{},
	}
}

// GetDefaultRegistry returns the process wide registry
func GetDefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Register adds a loader under the name, the first loader also becomes the default
func (registry *Registry) Register(name string, loader *ImageLoader) error {
	if len(name) == 0 {
		return xerrors.Errorf("loader name must be given")
	}

	if loader == nil {
		return xerrors.Errorf("loader must be given")
	}

	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	if _, ok := registry.loaders[name]; ok {
		return xerrors.Errorf("loader %q is already registered", name)
	}

	registry.loaders[name] = loader
	if len(registry.defaultName) == 0 {
		registry.defaultName = name
	}
	return nil
}

// Unregister removes the loader without releasing it, returns nil if not found
func (registry *Registry) Unregister(name string) *ImageLoader {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	loader, ok := registry.loaders[name]
	if !ok {
		return nil
	}

	delete(registry.loaders, name)
	if registry.defaultName == name {
		registry.defaultName = ""
	}
	return loader
}

// Get returns the loader registered under the name
func (registry *Registry) Get(name string) (*ImageLoader, bool) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()

	loader, ok := registry.loaders[name]
	return loader, ok
}

// SetDefault makes a registered loader the default
func (registry *Registry) SetDefault(name string) error {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	if _, ok := registry.loaders[name]; !ok {
		return xerrors.Errorf("loader %q is not registered", name)
	}

	registry.defaultName = name
	return nil
}

// Default returns the default loader, nil if none
func (registry *Registry) Default() *ImageLoader {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()

	return registry.loaders[registry.defaultName]
}

// GetNames returns registered names, sorted
func (registry *Registry) GetNames() []string {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()

	names := make([]string, 0, len(registry.loaders))
	for name := range registry.loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CollectMetrics sums metrics and cache stats of all loaders
func (registry *Registry) CollectMetrics() (*Metrics, CacheStats) {
	registry.mutex.RLock()
	loaders := make([]*ImageLoader, 0, len(registry.loaders))
	for _, loader := range registry.loaders {
		loaders = append(loaders, loader)
	}
	registry.mutex.RUnlock()

	metricsTotal := newMetrics()
	statsTotal := CacheStats{}
	for _, loader := range loaders {
		metricsTotal.Add(loader.GetMetrics())

		stats := loader.GetCacheStats()
		statsTotal.MemoryEntries += stats.MemoryEntries
		statsTotal.MemorySize += stats.MemorySize
		statsTotal.MemoryEvictions += stats.MemoryEvictions
		statsTotal.Storage.Entries += stats.Storage.Entries
		statsTotal.Storage.TotalSize += stats.Storage.TotalSize
		statsTotal.Storage.SizeMax += stats.Storage.SizeMax
		statsTotal.Storage.Evictions += stats.Storage.Evictions
		statsTotal.Packages += stats.Packages
	}

	return metricsTotal, statsTotal
}

// Release releases and removes all loaders
func (registry *Registry) Release() {
	logger := log.WithFields(log.Fields{
		"package":  "loader",
		"struct":   "Registry",
		"function": "Release",
	})

	registry.mutex.Lock()
	loaders := registry.loaders
	registry.loaders = map[string]*ImageLoader{}
	registry.defaultName = ""
	registry.mutex.Unlock()

	for name, loader := range loaders {
		logger.Debugf("releasing loader %q", name)
		loader.Release()
	}
}
