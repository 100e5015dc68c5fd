package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/clinic-booking/internal/booking"
)

func TestHub_SlowSubscriberKeepsLatest(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe()
	defer cancel()

	for i := 1; i <= subscriberBuffer+5; i++ {
		hub.Publish(booking.Snapshot{Version: uint64(i)})
	}

	var last booking.Snapshot
	for len(events) > 0 {
		last = <-events
	}
	assert.Equal(t, uint64(subscriberBuffer+5), last.Version)
}

func TestHub_CancelAndClose(t *testing.T) {
	hub := NewHub()
	a, cancelA := hub.Subscribe()
	b, _ := hub.Subscribe()
	assert.Equal(t, 2, hub.Subscribers())

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)

	hub.Close()
	_, open = <-b
	assert.False(t, open)

	late, _ := hub.Subscribe()
	_, open = <-late
	assert.False(t, open)
	hub.Publish(booking.Snapshot{})
}
