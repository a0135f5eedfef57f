// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelator_NextID_Monotonic(t *testing.T) {
	c := NewCorrelator()

	first := c.NextID()
	second := c.NextID()
	third := c.NextID()

	assert.Greater(t, second, first)
	assert.Greater(t, third, second)
}

func TestCorrelator_ResolveDeliversReply(t *testing.T) {
	c := NewCorrelator()

	id := c.NextID()
	pending := c.Register(id)

	ok := c.Resolve(id, ProfilePictureEvent{RequestID: id, URL: "https://example.com/a.jpg"})
	assert.True(t, ok)

	ev, err := pending.Await(context.Background(), time.Second)
	require.NoError(t, err)

	pic, isPic := ev.(ProfilePictureEvent)
	require.True(t, isPic)
	assert.Equal(t, "https://example.com/a.jpg", pic.URL)
	assert.Zero(t, c.Outstanding())
}

func TestCorrelator_ResolveUnknownID(t *testing.T) {
	c := NewCorrelator()

	assert.False(t, c.Resolve(99, ProfilePictureEvent{RequestID: 99}))
}

func TestCorrelator_ResolveTwice(t *testing.T) {
	c := NewCorrelator()

	id := c.NextID()
	pending := c.Register(id)

	assert.True(t, c.Resolve(id, ProfilePictureEvent{RequestID: id, URL: "first"}))
	assert.False(t, c.Resolve(id, ProfilePictureEvent{RequestID: id, URL: "second"}))

	ev, err := pending.Await(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", ev.(ProfilePictureEvent).URL)
}

func TestCorrelator_AwaitTimeout(t *testing.T) {
	c := NewCorrelator()

	id := c.NextID()
	pending := c.Register(id)

	_, err := pending.Await(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrAwaitTimeout)

	// The slot is gone, so a late reply is ignored.
	assert.False(t, c.Resolve(id, ProfilePictureEvent{RequestID: id}))
	assert.Zero(t, c.Outstanding())
}

func TestCorrelator_AwaitContextCancelled(t *testing.T) {
	c := NewCorrelator()

	id := c.NextID()
	pending := c.Register(id)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pending.Await(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, c.Outstanding())
}

func TestCorrelator_CancelAll(t *testing.T) {
	c := NewCorrelator()

	var pendings []*Pending
	for i := 0; i < 3; i++ {
		id := c.NextID()
		pendings = append(pendings, c.Register(id))
	}
	require.Equal(t, 3, c.Outstanding())

	c.CancelAll()
	assert.Zero(t, c.Outstanding())

	for _, p := range pendings {
		_, err := p.Await(context.Background(), time.Second)
		assert.ErrorIs(t, err, ErrAwaitCancelled)
	}
}

func TestCorrelator_ConcurrentResolve(t *testing.T) {
	c := NewCorrelator()

	const n = 50
	type result struct {
		ev  Event
		err error
	}
	results := make(chan result, n)

	for i := 0; i < n; i++ {
		id := c.NextID()
		pending := c.Register(id)
		go func() {
			ev, err := pending.Await(context.Background(), 5*time.Second)
			results <- result{ev, err}
		}()
		go func(id int) {
			c.Resolve(id, SendResultEvent{RequestID: &id, Success: true})
		}(id)
	}

	for i := 0; i < n; i++ {
		r := <-results
		require.NoError(t, r.err)
		assert.True(t, r.ev.(SendResultEvent).Success)
	}
	assert.Zero(t, c.Outstanding())
}
