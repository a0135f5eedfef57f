// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the in-process pub/sub bus that connects the
// bridge supervisor to the web hub and other observers.
package events

import (
	"errors"
	"log"
	"sync"
	"time"
)

// Event is an immutable notification record.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Lifecycle event types published by the supervisor and watcher.
const (
	EventBridgeStarted     = "bridge.started"
	EventBridgeExited      = "bridge.exited"
	EventBridgeRespawning  = "bridge.respawning"
	EventBridgeSpawnFailed = "bridge.spawn_failed"
	EventBridgeStopped     = "bridge.stopped"
	EventBinaryChanged     = "binary.changed"
)

// ErrBusClosed is returned when subscribing to a closed bus.
var ErrBusClosed = errors.New("event bus is closed")

// Bus is a small in-memory fan-out bus. Subscribers receive events on
// buffered channels; a subscriber that falls behind has events dropped
// rather than blocking the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Publish delivers the event to all current subscribers. The timestamp
// is filled in if unset. Publishing to a closed bus is a no-op.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("events: dropped %s - subscriber buffer full", ev.Type)
		}
	}
}

// Subscribe registers a new subscriber with the given buffer size and
// returns its channel plus an unsubscribe function. The channel is
// closed on unsubscribe and on bus close.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func(), error) {
	if buffer <= 0 {
		buffer = 64
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrBusClosed
	}

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel, nil
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
