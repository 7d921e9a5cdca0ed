// Package events provides the event bus that carries session and completion
// notifications between modules.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	// Course events
	EventCourseCreated       EventType = "course.created"
	EventCoursePackageStored EventType = "course.package.stored"

	// SCORM session events
	EventSessionLoaded     EventType = "scorm.session.loaded"
	EventSessionLoadFailed EventType = "scorm.session.load_failed"
	EventSessionTerminated EventType = "scorm.session.terminated"
	EventSessionTornDown   EventType = "scorm.session.torn_down"

	// Completion events
	EventCompletionRaised   EventType = "scorm.completion.raised"
	EventCompletionRecorded EventType = "scorm.completion.recorded"
	EventCompletionFailed   EventType = "scorm.completion.failed"

	// System events
	EventSystemStarted EventType = "system.started"
	EventSystemStopped EventType = "system.stopped"
)

// EventPriority represents the priority level of an event
type EventPriority int

const (
	PriorityLow      EventPriority = 1
	PriorityNormal   EventPriority = 5
	PriorityHigh     EventPriority = 10
	PriorityCritical EventPriority = 20
)

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"` // system, module:id
	Target    string                 `json:"target"` // view id when the event concerns one view
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	Priority  EventPriority          `json:"priority"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler represents a function that handles events
type EventHandler func(event Event) error

// EventFilter represents filters for event subscriptions
type EventFilter struct {
	Types   []EventType `json:"types,omitempty"`
	Sources []string    `json:"sources,omitempty"`
	Target  string      `json:"target,omitempty"`
}

// Subscription represents an event subscription
type Subscription struct {
	ID            string       `json:"id"`
	Filter        EventFilter  `json:"filter"`
	Handler       EventHandler `json:"-"`
	Created       time.Time    `json:"created"`
	LastTriggered *time.Time   `json:"last_triggered,omitempty"`
	TriggerCount  int64        `json:"trigger_count"`
}

// EventStats represents statistics about events
type EventStats struct {
	TotalEvents         int64            `json:"total_events"`
	EventsByType        map[string]int64 `json:"events_by_type"`
	ActiveSubscriptions int              `json:"active_subscriptions"`
}

// EventBusConfig represents configuration for the event bus
type EventBusConfig struct {
	BufferSize   int `json:"buffer_size"`
	RecentEvents int `json:"recent_events"`
}

// DefaultEventBusConfig returns default configuration
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{
		BufferSize:   1000,
		RecentEvents: 100,
	}
}

// NewEvent creates a new event with default values
func NewEvent(eventType EventType, source string, title string, message string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Title:     title,
		Message:   message,
		Data:      make(map[string]interface{}),
		Priority:  PriorityNormal,
		Timestamp: time.Now(),
	}
}

// NewModuleEvent creates an event sourced from a module
func NewModuleEvent(eventType EventType, moduleID string, title string, message string, data map[string]interface{}) Event {
	event := NewEvent(eventType, "module:"+moduleID, title, message)
	if data != nil {
		event.Data = data
	}
	return event
}

// MatchesFilter checks if an event matches the given filter
func MatchesFilter(event Event, filter EventFilter) bool {
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if event.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(filter.Sources) > 0 {
		found := false
		for _, s := range filter.Sources {
			if event.Source == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.Target != "" && event.Target != filter.Target {
		return false
	}

	return true
}

// FilterEvents filters a slice of events
func FilterEvents(events []Event, filter EventFilter) []Event {
	var filtered []Event
	for _, event := range events {
		if MatchesFilter(event, filter) {
			filtered = append(filtered, event)
		}
	}
	return filtered
}
