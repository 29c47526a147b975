package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus(4)

	first, cancelFirst := bus.Subscribe()
	defer cancelFirst()
	second, cancelSecond := bus.Subscribe()
	defer cancelSecond()

	bus.Publish(New(MetricsCollected, "monitor", nil))

	for _, ch := range []<-chan Event{first, second} {
		select {
		case ev := <-ch:
			assert.Equal(t, MetricsCollected, ev.Type)
			assert.Equal(t, "monitor", ev.Source)
		case <-time.After(time.Second):
			t.Fatal("subscriber never received the event")
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus(1)

	slow, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(New(AlertTriggered, "monitor", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}

	// Only the buffered event survives.
	assert.Len(t, slow, 1)
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := NewBus(4)

	ch, cancel := bus.Subscribe()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Cancel twice is harmless, and publishing after cancel must not panic.
	cancel()
	bus.Publish(New(SessionStarted, "monitor", nil))
}

func TestCloseShutsDownAllSubscribers(t *testing.T) {
	bus := NewBus(4)

	ch, _ := bus.Subscribe()
	bus.Close()

	_, open := <-ch
	assert.False(t, open)

	// Publishing and re-closing after Close are no-ops.
	bus.Publish(New(SessionStopped, "monitor", nil))
	bus.Close()

	late, cancel := bus.Subscribe()
	defer cancel()
	_, open = <-late
	require.False(t, open)
}

func TestEventCarriesTimestampAndData(t *testing.T) {
	before := time.Now()
	ev := New(DriftDetected, "monitor", map[string]interface{}{"target": "production"})

	assert.Equal(t, DriftDetected, ev.Type)
	assert.Equal(t, "production", ev.Data["target"])
	assert.False(t, ev.Timestamp.Before(before))
}
