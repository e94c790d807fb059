package sources

import (
	"fmt"
	"sync"
)

var (
	registry = make(map[string]AdapterFactory)
	mu       sync.RWMutex
)

// Register adds an adapter factory to the registry, keyed by adapter type.
func Register(adapterType string, factory AdapterFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[adapterType] = factory
}

// Create creates a new adapter instance by type and instance name.
func Create(adapterType, name string, config map[string]interface{}) (Adapter, error) {
	mu.RLock()
	defer mu.RUnlock()

	factory, ok := registry[adapterType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, adapterType)
	}

	return factory(name, config)
}

// List returns all registered adapter types.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	types := make([]string, 0, len(registry))
	for name := range registry {
		types = append(types, name)
	}
	return types
}
