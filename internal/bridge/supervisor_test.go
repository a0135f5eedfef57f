// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperline/watrans/internal/events"
)

func shortenTimers(t *testing.T) {
	t.Helper()
	oldSpawn, oldRespawn, oldGrace := spawnBackoff, respawnDelay, shutdownGrace
	spawnBackoff = 20 * time.Millisecond
	respawnDelay = 20 * time.Millisecond
	shutdownGrace = 500 * time.Millisecond
	t.Cleanup(func() {
		spawnBackoff, respawnDelay, shutdownGrace = oldSpawn, oldRespawn, oldGrace
	})
}

// eventRecorder is a Handler that remembers everything it saw.
type eventRecorder struct {
	mu  sync.Mutex
	evs []Event
}

func (r *eventRecorder) handle(_ context.Context, ev Event) {
	r.mu.Lock()
	r.evs = append(r.evs, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.evs...)
}

func waitForEvent(t *testing.T, ch <-chan events.Event, eventType string) events.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s", eventType)
		}
	}
}

func TestSupervisor_RunOnce(t *testing.T) {
	shortenTimers(t)
	cfg := testConfig(t, `printf '{"type":"connected","phone":"1555","name":"Bob"}\n'`)

	sup := NewSupervisor(cfg, nil)
	rec := &eventRecorder{}

	err := sup.RunOnce(context.Background(), rec.handle)
	require.NoError(t, err)

	evs := rec.snapshot()
	require.Len(t, evs, 1)
	conn, ok := evs[0].(ConnectedEvent)
	require.True(t, ok)
	assert.Equal(t, "Bob", conn.Name)

	assert.Equal(t, StateStopped, sup.State())
	assert.False(t, sup.Sender().Ready())
}

func TestSupervisor_RunOnce_SpawnError(t *testing.T) {
	shortenTimers(t)
	sup := NewSupervisor(Config{BinaryPath: "/nonexistent/wa-bridge", DataDir: t.TempDir()}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := sup.RunOnce(ctx, nil)
	assert.Error(t, err)
	assert.Equal(t, StateStopped, sup.State())
}

func TestSupervisor_Run_RespawnsAfterExit(t *testing.T) {
	shortenTimers(t)
	cfg := testConfig(t, `printf '{"type":"connected","phone":"1","name":"n"}\n'`)

	bus := events.NewBus()
	defer bus.Close()
	ch, cancelSub, err := bus.Subscribe(64)
	require.NoError(t, err)
	defer cancelSub()

	sup := NewSupervisor(cfg, bus)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx, nil) }()

	// Each instance exits immediately, so starts keep coming.
	waitForEvent(t, ch, events.EventBridgeStarted)
	waitForEvent(t, ch, events.EventBridgeExited)
	waitForEvent(t, ch, events.EventBridgeRespawning)
	waitForEvent(t, ch, events.EventBridgeStarted)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateStopped, sup.State())
}

func TestSupervisor_Run_GracefulShutdown(t *testing.T) {
	shortenTimers(t)
	// Stays alive until the disconnect command arrives, acknowledges it,
	// and exits cleanly.
	cfg := testConfig(t, `printf '{"type":"connected","phone":"1","name":"n"}\n'
read line
printf '{"type":"log","level":"info","message":"disconnect received"}\n'
exit 0`)

	bus := events.NewBus()
	defer bus.Close()
	ch, cancelSub, err := bus.Subscribe(64)
	require.NoError(t, err)
	defer cancelSub()

	sup := NewSupervisor(cfg, bus)
	rec := &eventRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx, rec.handle) }()

	waitForEvent(t, ch, events.EventBridgeStarted)
	require.Eventually(t, func() bool { return sup.Sender().Ready() }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	waitForEvent(t, ch, events.EventBridgeStopped)
	assert.Equal(t, StateStopped, sup.State())
	assert.False(t, sup.Sender().Ready())

	// The acknowledgment proves the bridge saw the disconnect command and
	// chose to exit, rather than being killed by the cancellation.
	var acked bool
	for _, ev := range rec.snapshot() {
		if lg, ok := ev.(LogEvent); ok && lg.Message == "disconnect received" {
			acked = true
		}
	}
	assert.True(t, acked, "bridge never acknowledged the disconnect command")
}

func TestSupervisor_Run_SpawnFailureBackoff(t *testing.T) {
	shortenTimers(t)
	bus := events.NewBus()
	defer bus.Close()
	ch, cancelSub, err := bus.Subscribe(64)
	require.NoError(t, err)
	defer cancelSub()

	sup := NewSupervisor(Config{BinaryPath: "/nonexistent/wa-bridge", DataDir: t.TempDir()}, bus)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx, nil) }()

	waitForEvent(t, ch, events.EventBridgeSpawnFailed)
	waitForEvent(t, ch, events.EventBridgeSpawnFailed)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSupervisor_CorrelatedReplyResolvedBeforeHandler(t *testing.T) {
	shortenTimers(t)
	// Replies to the first command with a profile picture for request 1.
	cfg := testConfig(t, `read line
printf '{"type":"profile_picture","request_id":1,"jid":"1555@s.whatsapp.net","url":"https://pic"}\n'
read rest`)

	sup := NewSupervisor(cfg, nil)
	rec := &eventRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx, rec.handle) }()

	require.Eventually(t, func() bool { return sup.Sender().Ready() }, 2*time.Second, 10*time.Millisecond)

	id := sup.Correlator().NextID()
	require.Equal(t, 1, id)
	pending := sup.Correlator().Register(id)

	err := sup.Sender().Send(ctx, GetProfilePictureCommand{RequestID: id, To: "1555@s.whatsapp.net"})
	require.NoError(t, err)

	ev, err := pending.Await(ctx, 5*time.Second)
	require.NoError(t, err)
	pic := ev.(ProfilePictureEvent)
	assert.Equal(t, "https://pic", pic.URL)

	// The reply still reaches the handler for observers.
	require.Eventually(t, func() bool {
		for _, got := range rec.snapshot() {
			if p, ok := got.(ProfilePictureEvent); ok && p.RequestID == id {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-runDone
}

func TestSupervisor_TeardownCancelsPending(t *testing.T) {
	shortenTimers(t)
	// Exits right away, leaving the registered request unanswered.
	cfg := testConfig(t, `exit 0`)

	sup := NewSupervisor(cfg, nil)
	id := sup.Correlator().NextID()
	pending := sup.Correlator().Register(id)

	err := sup.RunOnce(context.Background(), nil)
	require.NoError(t, err)

	_, err = pending.Await(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrAwaitCancelled)
	assert.Zero(t, sup.Correlator().Outstanding())
}

func TestSupervisor_SenderNotReadyBeforeRun(t *testing.T) {
	sup := NewSupervisor(Config{BinaryPath: "x", DataDir: t.TempDir()}, nil)

	err := sup.Sender().Send(context.Background(), SendCommand{To: "1", Text: "hi"})
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestSupervisor_HandlerPanicDoesNotKillLoop(t *testing.T) {
	shortenTimers(t)
	cfg := testConfig(t, `printf '{"type":"log","level":"info","message":"one"}\n{"type":"log","level":"info","message":"two"}\n'`)

	sup := NewSupervisor(cfg, nil)

	var seen []string
	err := sup.RunOnce(context.Background(), func(_ context.Context, ev Event) {
		lg := ev.(LogEvent)
		seen = append(seen, lg.Message)
		if lg.Message == "one" {
			panic("boom")
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, seen)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateSpawning, "spawning"},
		{StateRunning, "running"},
		{StateDraining, "draining"},
		{StateRespawning, "respawning"},
		{StateStopped, "stopped"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}
