// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	// eventBufferSize tolerates bursty history replay from the bridge
	// without unbounded memory growth; a slow consumer stalls the
	// output pump instead of dropping events.
	eventBufferSize = 100

	// commandBufferSize bounds queued outgoing commands.
	commandBufferSize = 32
)

// shutdownGrace is how long Shutdown waits for the bridge to exit on
// its own after a disconnect command before force-killing it.
var shutdownGrace = 5 * time.Second

// ErrNotRunning is returned by Send after the bridge process has exited.
var ErrNotRunning = errors.New("bridge process is not running")

// Config describes how to launch the wa-bridge binary.
type Config struct {
	BinaryPath string // path to the wa-bridge binary
	DataDir    string // directory for session data, created if absent
	Verbose    bool   // pass --verbose to the bridge
}

// Process is one live wa-bridge subprocess. Three pumps run for its
// lifetime: stdout lines are decoded into Events, stderr lines are
// wrapped as debug LogEvents, and queued Commands are serialized to
// stdin one line at a time. The event channel closes once the process
// has exited and both output pumps have drained.
type Process struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	events   chan Event
	commands chan Command
	quit     chan struct{} // stops the input pump after exit

	waitDone chan struct{} // closed once the process is reaped
	waitErr  error         // valid after waitDone is closed

	shutdownOnce sync.Once
	quitOnce     sync.Once
}

// Spawn launches the bridge binary and starts the stream pumps. The
// returned Process is usable until its event channel closes. The
// subprocess's lifetime is not tied to ctx: cancellation before launch
// aborts the spawn, but a running bridge is terminated only through
// Shutdown's disconnect-then-kill sequence, so the session can
// disconnect cleanly.
func Spawn(ctx context.Context, cfg Config) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.BinaryPath == "" {
		return nil, errors.New("bridge binary path is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	if pid, found := findStaleInstance(cfg.BinaryPath); found {
		return nil, fmt.Errorf("another %s instance is already running (pid %d); stop it before starting a new session against %s",
			binaryName(cfg.BinaryPath), pid, cfg.DataDir)
	}

	args := []string{"--data-dir", cfg.DataDir}
	if cfg.Verbose {
		args = append(args, "--verbose")
	}

	cmd := exec.Command(cfg.BinaryPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start bridge: %w", err)
	}

	p := &Process{
		cmd:      cmd,
		stdin:    stdin,
		events:   make(chan Event, eventBufferSize),
		commands: make(chan Command, commandBufferSize),
		quit:     make(chan struct{}),
		waitDone: make(chan struct{}),
	}

	var pumps sync.WaitGroup
	pumps.Add(2)
	go p.outputPump(stdout, &pumps)
	go p.errorPump(stderr, &pumps)
	go p.inputPump()

	// Reap the process once both output pumps have drained their pipes,
	// then close the event channel to signal consumers.
	go func() {
		pumps.Wait()
		p.waitErr = cmd.Wait()
		close(p.waitDone)
		p.signalQuit()
		close(p.events)
	}()

	return p, nil
}

// Events returns the channel of decoded bridge events. It is closed
// after the subprocess exits, which is the signal to restart or stop.
func (p *Process) Events() <-chan Event {
	return p.events
}

// Send enqueues a command for delivery to the bridge's stdin. It blocks
// while the command buffer is full and fails once the process has exited.
func (p *Process) Send(ctx context.Context, cmd Command) error {
	select {
	case <-p.waitDone:
		return ErrNotRunning
	default:
	}

	select {
	case p.commands <- cmd:
		return nil
	case <-p.waitDone:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the subprocess has been reaped and returns its exit
// error, if any.
func (p *Process) Wait() error {
	<-p.waitDone
	return p.waitErr
}

// Exited reports whether the subprocess has exited without blocking.
func (p *Process) Exited() bool {
	select {
	case <-p.waitDone:
		return true
	default:
		return false
	}
}

// Shutdown asks the bridge to disconnect and waits up to the grace
// period for it to exit on its own; a bridge that does not cooperate is
// force-killed. Safe to call more than once; always returns within the
// grace period plus epsilon. The caller must keep draining Events()
// while Shutdown runs so the output pumps can reach EOF.
func (p *Process) Shutdown() {
	p.shutdownOnce.Do(func() {
		// Best-effort disconnect. The input pump may already be dead,
		// so don't block on a full buffer for long.
		select {
		case p.commands <- DisconnectCommand{}:
		case <-p.waitDone:
		case <-time.After(time.Second):
		}

		select {
		case <-p.waitDone:
		case <-time.After(shutdownGrace):
			log.Printf("bridge: did not exit within %s, killing", shutdownGrace)
			if p.cmd.Process != nil {
				p.cmd.Process.Kill()
			}
			<-p.waitDone
		}
	})
	// Concurrent callers block inside Once.Do until the first
	// shutdown finishes, so the postcondition holds for all of them.
	<-p.waitDone
}

// outputPump decodes JSON-line events from the bridge's stdout. A line
// that fails to decode becomes a warn LogEvent; pumping continues until
// the pipe closes.
func (p *Process) outputPump(r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			p.events <- DecodeEvent([]byte(trimmed))
		}
		if err != nil {
			return
		}
	}
}

// errorPump wraps stderr lines as debug log events on the same channel,
// so bridge diagnostics are observable without a separate sink.
func (p *Process) errorPump(r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			p.events <- LogEvent{Level: "debug", Message: "[bridge] " + trimmed}
		}
		if err != nil {
			return
		}
	}
}

// inputPump serializes queued commands to the bridge's stdin, one line
// at a time, flushing between commands. A write failure means the
// bridge is gone; the pump stops and leaves exit detection to the
// output pumps.
func (p *Process) inputPump() {
	defer p.stdin.Close()

	bw := bufio.NewWriter(p.stdin)
	for {
		select {
		case <-p.quit:
			p.discardQueued()
			return
		case cmd := <-p.commands:
			line, err := EncodeCommand(cmd)
			if err != nil {
				log.Printf("bridge: failed to encode command: %v", err)
				continue
			}
			if _, err := bw.Write(append(line, '\n')); err != nil {
				log.Printf("bridge: failed to write command: %v", err)
				return
			}
			if err := bw.Flush(); err != nil {
				log.Printf("bridge: failed to flush command: %v", err)
				return
			}
		}
	}
}

// signalQuit stops the input pump. Idempotent.
func (p *Process) signalQuit() {
	p.quitOnce.Do(func() { close(p.quit) })
}

// discardQueued drains commands that were queued but never written.
// They are surfaced as warnings rather than silently dropped.
func (p *Process) discardQueued() {
	for {
		select {
		case cmd := <-p.commands:
			log.Printf("bridge: discarding queued %s command, bridge exited before it was sent", commandTag(cmd))
		default:
			return
		}
	}
}
