// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAwaitTimeout is returned by Pending.Await when no reply arrived in
// time. The stale slot is removed; a late reply for it is ignored.
var ErrAwaitTimeout = errors.New("timed out waiting for bridge reply")

// ErrAwaitCancelled is returned when the owning supervisor was torn
// down while the request was outstanding.
var ErrAwaitCancelled = errors.New("bridge request cancelled")

// Correlator matches commands that carry a request_id with their
// asynchronous reply events. IDs are monotonically increasing and each
// pending slot is consumed exactly once: by a matching reply, by
// timeout, or by CancelAll on teardown.
type Correlator struct {
	counter atomic.Int64

	mu      sync.Mutex
	pending map[int]*Pending
}

// Pending is a single-resolution completion handle for one request id.
type Pending struct {
	id     int
	owner  *Correlator
	reply  chan Event    // buffered, written at most once
	cancel chan struct{} // closed by CancelAll
}

// NewCorrelator creates an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[int]*Pending)}
}

// NextID allocates a fresh request id.
func (c *Correlator) NextID() int {
	return int(c.counter.Add(1))
}

// Register records a pending slot for id and returns its handle.
func (c *Correlator) Register(id int) *Pending {
	p := &Pending{
		id:     id,
		owner:  c,
		reply:  make(chan Event, 1),
		cancel: make(chan struct{}),
	}
	c.mu.Lock()
	c.pending[id] = p
	c.mu.Unlock()
	return p
}

// Resolve fulfills the pending slot for id with the reply event.
// Resolving an unknown or already-resolved id is a no-op; the first
// result always stands. Reports whether a slot was fulfilled.
func (c *Correlator) Resolve(id int, ev Event) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	p.reply <- ev
	return true
}

// CancelAll resolves every outstanding request to cancelled. Called on
// supervisor teardown so no waiter leaks across a restart.
func (c *Correlator) CancelAll() {
	c.mu.Lock()
	cancelled := make([]*Pending, 0, len(c.pending))
	for _, p := range c.pending {
		cancelled = append(cancelled, p)
	}
	c.pending = make(map[int]*Pending)
	c.mu.Unlock()

	for _, p := range cancelled {
		close(p.cancel)
	}
}

// Outstanding returns the number of unresolved slots.
func (c *Correlator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) remove(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Await blocks until the request is resolved, the timeout elapses, the
// context is cancelled, or the correlator is torn down. On timeout or
// context cancellation the slot is removed so a late reply is ignored.
func (p *Pending) Await(ctx context.Context, timeout time.Duration) (Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-p.reply:
		return ev, nil
	case <-p.cancel:
		return nil, ErrAwaitCancelled
	case <-timer.C:
		p.owner.remove(p.id)
		return nil, ErrAwaitTimeout
	case <-ctx.Done():
		p.owner.remove(p.id)
		return nil, ctx.Err()
	}
}
