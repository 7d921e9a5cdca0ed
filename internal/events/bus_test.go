package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBus(t *testing.T) EventBus {
	t.Helper()
	bus := NewEventBus(DefaultEventBusConfig(), hclog.NewNullLogger())
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Stop(ctx)
	})
	return bus
}

func TestEventBus_DeliversMatchingEvents(t *testing.T) {
	bus := startBus(t)

	var mu sync.Mutex
	var got []Event
	done := make(chan struct{}, 4)

	_, err := bus.Subscribe(EventFilter{Types: []EventType{EventCompletionRecorded}}, func(e Event) error {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.PublishAsync(NewModuleEvent(EventCompletionFailed, "scorm", "failed", "", nil)))
	require.NoError(t, bus.PublishAsync(NewModuleEvent(EventCompletionRecorded, "scorm", "recorded", "", nil)))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, EventCompletionRecorded, got[0].Type)
	assert.Equal(t, "module:scorm", got[0].Source)
}

func TestEventBus_TargetFilter(t *testing.T) {
	bus := startBus(t)

	delivered := make(chan Event, 2)
	_, err := bus.Subscribe(EventFilter{Target: "view-a"}, func(e Event) error {
		delivered <- e
		return nil
	})
	require.NoError(t, err)

	other := NewModuleEvent(EventSessionLoaded, "scorm", "loaded", "", nil)
	other.Target = "view-b"
	mine := NewModuleEvent(EventSessionLoaded, "scorm", "loaded", "", nil)
	mine.Target = "view-a"

	require.NoError(t, bus.PublishAsync(other))
	require.NoError(t, bus.PublishAsync(mine))

	select {
	case e := <-delivered:
		assert.Equal(t, "view-a", e.Target)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestEventBus_RejectsInvalidEvents(t *testing.T) {
	bus := startBus(t)

	err := bus.PublishAsync(Event{Source: "system"})
	assert.Error(t, err)

	err = bus.PublishAsync(Event{Type: EventSystemStarted})
	assert.Error(t, err)
}

func TestEventBus_PublishWhenStopped(t *testing.T) {
	bus := NewEventBus(DefaultEventBusConfig(), hclog.NewNullLogger())
	err := bus.PublishAsync(NewEvent(EventSystemStarted, "system", "started", ""))
	assert.Error(t, err)
	assert.Error(t, bus.Health())
}

func TestEventBus_UnsubscribeAndStats(t *testing.T) {
	bus := startBus(t)

	sub, err := bus.Subscribe(EventFilter{}, func(Event) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, bus.GetStats().ActiveSubscriptions)

	require.NoError(t, bus.Unsubscribe(sub.ID))
	assert.Error(t, bus.Unsubscribe(sub.ID))
	assert.Equal(t, 0, bus.GetStats().ActiveSubscriptions)
}

func TestEventBus_RecentEvents(t *testing.T) {
	bus := startBus(t)

	processed := make(chan struct{}, 3)
	_, err := bus.Subscribe(EventFilter{}, func(Event) error {
		processed <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.PublishAsync(NewEvent(EventSystemStarted, "system", "started", "")))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-processed:
		case <-time.After(2 * time.Second):
			t.Fatal("events were not processed")
		}
	}

	events := bus.GetEvents(EventFilter{Types: []EventType{EventSystemStarted}}, 2)
	assert.Len(t, events, 2)
	assert.Equal(t, int64(3), bus.GetStats().TotalEvents)
}
