// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/copperline/watrans/internal/events"
)

var (
	// spawnBackoff is how long to wait before retrying a failed spawn.
	spawnBackoff = 3 * time.Second

	// respawnDelay is the pause between an unexpected bridge exit and
	// the next spawn attempt.
	respawnDelay = 1 * time.Second
)

// State is the supervisor's position in its lifecycle.
type State int32

const (
	StateSpawning State = iota
	StateRunning
	StateDraining
	StateRespawning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateRespawning:
		return "respawning"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Handler processes each decoded bridge event in channel order.
type Handler func(ctx context.Context, ev Event)

// Sender is the command-sending handle shared across restarts. It holds
// the current process in a single-owner slot that the supervisor
// replaces atomically on every respawn; callers must go through Send
// rather than caching anything, so no command is silently swallowed by
// a dead instance.
type Sender struct {
	mu   sync.RWMutex
	proc *Process
}

// Send delivers the command to the currently running bridge instance.
func (s *Sender) Send(ctx context.Context, cmd Command) error {
	s.mu.RLock()
	proc := s.proc
	s.mu.RUnlock()

	if proc == nil {
		return ErrNotRunning
	}
	return proc.Send(ctx, cmd)
}

// Ready reports whether a bridge instance is currently attached.
func (s *Sender) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proc != nil
}

func (s *Sender) replace(proc *Process) {
	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()
}

// Supervisor owns the bridge process lifecycle: spawn, pump, teardown,
// and (in Run) respawn after unexpected exits. Terminal-mode callers
// use RunOnce, server-mode callers use Run; both share the same
// process and pump logic and differ only in restart policy.
type Supervisor struct {
	cfg  Config
	bus  *events.Bus // may be nil
	corr *Correlator
	send *Sender

	state atomic.Int32

	mu   sync.Mutex
	proc *Process // current instance, nil unless RUNNING/DRAINING
}

// NewSupervisor creates a supervisor for the given bridge config.
// bus is optional; when set, lifecycle events are published on it.
func NewSupervisor(cfg Config, bus *events.Bus) *Supervisor {
	return &Supervisor{
		cfg:  cfg,
		bus:  bus,
		corr: NewCorrelator(),
		send: &Sender{},
	}
}

// Sender returns the restart-safe command handle.
func (s *Supervisor) Sender() *Sender { return s.send }

// Correlator returns the request/reply correlator. Reply events
// carrying a request_id are resolved automatically before they reach
// the handler.
func (s *Supervisor) Correlator() *Correlator { return s.corr }

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Bounce gracefully stops the current bridge instance. Under Run the
// instance is respawned after the usual delay; used when a freshly
// built bridge binary should take over.
func (s *Supervisor) Bounce() {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()

	if proc != nil {
		go proc.Shutdown()
	}
}

// Run spawns the bridge and keeps it alive until ctx is cancelled:
// spawn failures are retried with a fixed backoff, and an instance
// that dies unexpectedly is respawned after a short delay. Returns nil
// after a clean shutdown.
func (s *Supervisor) Run(ctx context.Context, handler Handler) error {
	for {
		proc, err := s.spawn(ctx, true)
		if err != nil {
			// ctx cancelled while backing off
			s.state.Store(int32(StateStopped))
			return nil
		}

		requested := s.consume(ctx, proc, handler)
		s.teardown(proc)

		if requested {
			s.state.Store(int32(StateStopped))
			s.publish(events.EventBridgeStopped, nil)
			return nil
		}

		log.Printf("bridge: process terminated, restarting in %s", respawnDelay)
		s.state.Store(int32(StateRespawning))
		s.publish(events.EventBridgeRespawning, nil)

		select {
		case <-time.After(respawnDelay):
		case <-ctx.Done():
			s.state.Store(int32(StateStopped))
			return nil
		}
	}
}

// RunOnce spawns the bridge and runs until that single instance exits,
// without respawning. A ctx cancellation triggers graceful shutdown.
func (s *Supervisor) RunOnce(ctx context.Context, handler Handler) error {
	proc, err := s.spawn(ctx, false)
	if err != nil {
		s.state.Store(int32(StateStopped))
		return err
	}

	s.consume(ctx, proc, handler)
	s.teardown(proc)
	s.state.Store(int32(StateStopped))
	return nil
}

// spawn attempts to start the bridge. With retry set it keeps trying
// with a fixed backoff until it succeeds or ctx is cancelled; without
// it the first failure is returned.
func (s *Supervisor) spawn(ctx context.Context, retry bool) (*Process, error) {
	for {
		s.state.Store(int32(StateSpawning))

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		proc, err := Spawn(ctx, s.cfg)
		if err == nil {
			s.mu.Lock()
			s.proc = proc
			s.mu.Unlock()
			s.send.replace(proc)
			s.state.Store(int32(StateRunning))
			s.publish(events.EventBridgeStarted, map[string]interface{}{
				"binary": s.cfg.BinaryPath,
			})
			return proc, nil
		}

		s.publish(events.EventBridgeSpawnFailed, map[string]interface{}{
			"error": err.Error(),
		})
		if !retry {
			return nil, err
		}
		log.Printf("bridge: failed to start: %v (retrying in %s)", err, spawnBackoff)

		select {
		case <-time.After(spawnBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// consume drains the instance's event channel, dispatching each event,
// until the channel closes (bridge died) or ctx is cancelled (shutdown
// requested). Reports whether shutdown was requested.
func (s *Supervisor) consume(ctx context.Context, proc *Process, handler Handler) bool {
	for {
		select {
		case <-ctx.Done():
			s.state.Store(int32(StateDraining))
			s.drainAndShutdown(proc, handler)
			return true

		case ev, ok := <-proc.Events():
			if !ok {
				return false
			}
			s.dispatch(ctx, ev, handler)
		}
	}
}

// drainAndShutdown runs the two-phase shutdown while continuing to
// drain events, so the output pumps never stall on a full channel.
func (s *Supervisor) drainAndShutdown(proc *Process, handler Handler) {
	done := make(chan struct{})
	go func() {
		proc.Shutdown()
		close(done)
	}()

	ctx := context.Background()
	for {
		select {
		case ev, ok := <-proc.Events():
			if !ok {
				<-done
				return
			}
			s.dispatch(ctx, ev, handler)
		case <-done:
			for ev := range proc.Events() {
				s.dispatch(ctx, ev, handler)
			}
			return
		}
	}
}

// teardown detaches the dead instance: the sender slot is emptied so
// stale sends fail fast, and every pending correlated request resolves
// to cancelled instead of leaking across the restart.
func (s *Supervisor) teardown(proc *Process) {
	s.mu.Lock()
	if s.proc == proc {
		s.proc = nil
	}
	s.mu.Unlock()

	s.send.replace(nil)
	s.corr.CancelAll()
	s.publish(events.EventBridgeExited, nil)
}

// dispatch resolves correlated replies, then hands the event to the
// application handler. A panicking handler must not kill the pump loop.
func (s *Supervisor) dispatch(ctx context.Context, ev Event, handler Handler) {
	switch reply := ev.(type) {
	case ProfilePictureEvent:
		s.corr.Resolve(reply.RequestID, reply)
	case SendResultEvent:
		if reply.RequestID != nil {
			s.corr.Resolve(*reply.RequestID, reply)
		}
	}

	if handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bridge: event handler panic for %T: %v", ev, r)
		}
	}()
	handler(ctx, ev)
}

func (s *Supervisor) publish(eventType string, payload map[string]interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Type: eventType, Payload: payload})
}
