// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel, err := bus.Subscribe(10)
	require.NoError(t, err)
	defer cancel()

	bus.Publish(Event{Type: EventBridgeStarted, Payload: map[string]interface{}{"pid": 42}})

	select {
	case ev := <-ch:
		assert.Equal(t, EventBridgeStarted, ev.Type)
		assert.Equal(t, 42, ev.Payload["pid"])
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1, cancel1, err := bus.Subscribe(10)
	require.NoError(t, err)
	defer cancel1()

	ch2, cancel2, err := bus.Subscribe(10)
	require.NoError(t, err)
	defer cancel2()

	bus.Publish(Event{Type: EventBridgeExited})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, EventBridgeExited, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel, err := bus.Subscribe(1)
	require.NoError(t, err)
	defer cancel()

	// Second publish overflows the buffer and is dropped, not blocked on.
	bus.Publish(Event{Type: "first"})
	bus.Publish(Event{Type: "second"})

	ev := <-ch
	assert.Equal(t, "first", ev.Type)

	select {
	case ev := <-ch:
		t.Fatalf("expected drop, got %s", ev.Type)
	default:
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel, err := bus.Subscribe(1)
	require.NoError(t, err)

	cancel()
	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice is harmless.
	cancel()
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()

	ch, _, err := bus.Subscribe(1)
	require.NoError(t, err)

	bus.Close()
	_, open := <-ch
	assert.False(t, open)

	// Publish after close is a no-op.
	bus.Publish(Event{Type: "late"})

	_, _, err = bus.Subscribe(1)
	assert.ErrorIs(t, err, ErrBusClosed)
}
