package events

import (
	"sync"
)

var (
	globalBus     EventBus
	globalBusLock sync.RWMutex
)

// SetGlobalEventBus sets the global event bus instance
func SetGlobalEventBus(bus EventBus) {
	globalBusLock.Lock()
	defer globalBusLock.Unlock()
	globalBus = bus
}

// GetGlobalEventBus returns the global event bus instance
func GetGlobalEventBus() EventBus {
	globalBusLock.RLock()
	defer globalBusLock.RUnlock()
	return globalBus
}

// PublishGlobal publishes through the global bus when one is installed.
// A missing bus is not an error: events are advisory.
func PublishGlobal(event Event) {
	bus := GetGlobalEventBus()
	if bus == nil {
		return
	}
	_ = bus.PublishAsync(event)
}
