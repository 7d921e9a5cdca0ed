package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// EventBus defines the interface for the event bus system
type EventBus interface {
	// Publish publishes an event, failing fast when the buffer is full
	Publish(ctx context.Context, event Event) error

	// PublishAsync publishes an event without a caller context
	PublishAsync(event Event) error

	// Subscribe subscribes to events matching the filter
	Subscribe(filter EventFilter, handler EventHandler) (*Subscription, error)

	// Unsubscribe removes a subscription
	Unsubscribe(subscriptionID string) error

	// GetEvents returns recent events matching the filter
	GetEvents(filter EventFilter, limit int) []Event

	// GetStats returns event bus statistics
	GetStats() EventStats

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() error
}

// eventBus implements the EventBus interface
type eventBus struct {
	config EventBusConfig
	logger hclog.Logger

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	eventChannel  chan Event
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup

	recentEvents []Event
	eventStats   EventStats
}

// NewEventBus creates a new event bus instance
func NewEventBus(config EventBusConfig, logger hclog.Logger) EventBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultEventBusConfig().BufferSize
	}
	if config.RecentEvents <= 0 {
		config.RecentEvents = DefaultEventBusConfig().RecentEvents
	}
	return &eventBus{
		config:        config,
		logger:        logger.Named("events"),
		subscriptions: make(map[string]*Subscription),
		recentEvents:  make([]Event, 0, config.RecentEvents),
		eventStats:    EventStats{EventsByType: make(map[string]int64)},
	}
}

// Start starts the event bus
func (eb *eventBus) Start(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.running {
		return fmt.Errorf("event bus is already running")
	}

	eb.running = true
	eb.stopCh = make(chan struct{})
	eb.eventChannel = make(chan Event, eb.config.BufferSize)

	eb.wg.Add(1)
	go eb.processEvents(ctx, eb.eventChannel, eb.stopCh)

	eb.logger.Info("event bus started", "buffer_size", eb.config.BufferSize)
	return nil
}

// Stop stops the event bus, draining buffered events
func (eb *eventBus) Stop(ctx context.Context) error {
	eb.mu.Lock()
	if !eb.running {
		eb.mu.Unlock()
		return nil
	}
	eb.running = false
	// Publishers send while holding the read lock, so nobody is mid-send here
	close(eb.eventChannel)
	eb.mu.Unlock()

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		eb.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		close(eb.stopCh)
		eb.logger.Warn("event bus stop timed out")
		return ctx.Err()
	}
}

// Publish publishes an event to the event bus
func (eb *eventBus) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return eb.enqueue(event)
}

// PublishAsync publishes an event asynchronously (non-blocking)
func (eb *eventBus) PublishAsync(event Event) error {
	return eb.enqueue(event)
}

func (eb *eventBus) enqueue(event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := validateEvent(event); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if !eb.running {
		return fmt.Errorf("event bus is not running")
	}

	select {
	case eb.eventChannel <- event:
		return nil
	default:
		eb.logger.Warn("event channel full, dropping event", "event_type", event.Type, "event_id", event.ID)
		return fmt.Errorf("event channel full")
	}
}

// Subscribe subscribes to events matching the filter
func (eb *eventBus) Subscribe(filter EventFilter, handler EventHandler) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	subscription := &Subscription{
		ID:      "sub-" + uuid.New().String(),
		Filter:  filter,
		Handler: handler,
		Created: time.Now(),
	}
	eb.subscriptions[subscription.ID] = subscription

	eb.logger.Debug("new subscription created", "subscription_id", subscription.ID, "types", filter.Types)
	return subscription, nil
}

// Unsubscribe removes a subscription
func (eb *eventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, exists := eb.subscriptions[subscriptionID]; !exists {
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	delete(eb.subscriptions, subscriptionID)

	eb.logger.Debug("subscription removed", "subscription_id", subscriptionID)
	return nil
}

// GetEvents returns the most recent events matching the filter, newest last
func (eb *eventBus) GetEvents(filter EventFilter, limit int) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	filtered := FilterEvents(eb.recentEvents, filter)
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	out := make([]Event, len(filtered))
	copy(out, filtered)
	return out
}

// GetStats returns event bus statistics
func (eb *eventBus) GetStats() EventStats {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	stats := EventStats{
		TotalEvents:         eb.eventStats.TotalEvents,
		EventsByType:        make(map[string]int64, len(eb.eventStats.EventsByType)),
		ActiveSubscriptions: len(eb.subscriptions),
	}
	for k, v := range eb.eventStats.EventsByType {
		stats.EventsByType[k] = v
	}
	return stats
}

// Health returns the health status of the event bus
func (eb *eventBus) Health() error {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if !eb.running {
		return fmt.Errorf("event bus is not running")
	}

	channelUsage := float64(len(eb.eventChannel)) / float64(cap(eb.eventChannel))
	if channelUsage > 0.9 {
		return fmt.Errorf("event channel is %d%% full", int(channelUsage*100))
	}
	return nil
}

func (eb *eventBus) processEvents(ctx context.Context, ch <-chan Event, stopCh <-chan struct{}) {
	defer eb.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			eb.logger.Debug("event processor stopping due to context cancellation")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			eb.handleEvent(event)
		}
	}
}

func (eb *eventBus) handleEvent(event Event) {
	eb.mu.Lock()
	eb.recentEvents = append(eb.recentEvents, event)
	if len(eb.recentEvents) > eb.config.RecentEvents {
		eb.recentEvents = eb.recentEvents[1:]
	}
	eb.eventStats.TotalEvents++
	eb.eventStats.EventsByType[string(event.Type)]++

	var matching []*Subscription
	for _, sub := range eb.subscriptions {
		if MatchesFilter(event, sub.Filter) {
			matching = append(matching, sub)
		}
	}
	eb.mu.Unlock()

	for _, sub := range matching {
		eb.notifySubscriber(sub, event)
	}
}

func (eb *eventBus) notifySubscriber(subscription *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("panic in event handler", "subscription_id", subscription.ID, "error", r, "event_id", event.ID)
		}
	}()

	if err := subscription.Handler(event); err != nil {
		eb.logger.Error("event handler error", "subscription_id", subscription.ID, "error", err, "event_id", event.ID)
		return
	}

	eb.mu.Lock()
	subscription.TriggerCount++
	now := time.Now()
	subscription.LastTriggered = &now
	eb.mu.Unlock()
}

func validateEvent(event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.Source == "" {
		return fmt.Errorf("event source is required")
	}
	return nil
}
