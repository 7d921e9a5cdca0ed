package services

import (
	"fmt"
	"sort"
	"sync"
)

// ServiceRegistry lets modules expose their public API to each other without
// direct imports. A module registers its implementation during Init and other
// modules look it up by name.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]interface{}
}

var globalRegistry = &ServiceRegistry{
	services: make(map[string]interface{}),
}

// RegisterService registers a service with the given name
func RegisterService[T any](name string, service T) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	globalRegistry.services[name] = service
}

// GetService retrieves a service by name with type safety
func GetService[T any](name string) (T, error) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	var zero T

	service, exists := globalRegistry.services[name]
	if !exists {
		return zero, fmt.Errorf("service '%s' not found", name)
	}

	typedService, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("service '%s' has wrong type", name)
	}

	return typedService, nil
}

// MustGetService retrieves a service and panics if not found (for initialization)
func MustGetService[T any](name string) T {
	service, err := GetService[T](name)
	if err != nil {
		panic(fmt.Sprintf("Required service not available: %v", err))
	}
	return service
}

// ListServices returns all registered service names
func ListServices() []string {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	names := make([]string, 0, len(globalRegistry.services))
	for name := range globalRegistry.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClearForTesting drops every registered service
func ClearForTesting() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.services = make(map[string]interface{})
}
