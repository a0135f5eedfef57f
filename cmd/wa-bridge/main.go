// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// wa-bridge connects to WhatsApp Web via whatsmeow and speaks the
// JSON-lines protocol on stdio: events out on stdout, commands in on
// stdin. All diagnostics go to stderr; stdout carries protocol lines
// only.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/copperline/watrans/internal/bridge"
)

// maxCommandLine bounds a single stdin command. Image sends carry
// base64 media inline, so this has to accommodate a full upload.
const maxCommandLine = 80 << 20

// emitter serializes protocol lines onto stdout. Event handlers and the
// command loop run on different goroutines, so every write goes through
// the mutex as a single line.
type emitter struct {
	mu  sync.Mutex
	out io.Writer
}

func (e *emitter) send(ev bridge.Event) {
	line, err := bridge.EncodeEvent(ev)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.out, "%s\n", line)
}

func (e *emitter) log(level, format string, args ...interface{}) {
	e.send(bridge.LogEvent{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (e *emitter) error(code, format string, args ...interface{}) {
	e.send(bridge.ErrorEvent{Code: code, Message: fmt.Sprintf(format, args...)})
}

func main() {
	dataDir := flag.String("data-dir", "", "Directory for session data")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	emit := &emitter{out: os.Stdout}

	if *dataDir == "" {
		emit.error("config", "data-dir is required")
		os.Exit(1)
	}
	if err := os.MkdirAll(*dataDir, 0o700); err != nil {
		emit.error("filesystem", "create data directory: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := newClient(ctx, *dataDir, *verbose, emit)
	if err != nil {
		emit.error("init", "create client: %v", err)
		os.Exit(1)
	}
	defer client.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		emit.log("info", "received shutdown signal")
		cancel()
	}()

	go readCommands(ctx, client, emit, cancel)

	emit.send(bridge.ConnectionStateEvent{State: bridge.StateConnecting})
	if err := client.Connect(ctx); err != nil {
		emit.error("connect", "%v", err)
		os.Exit(1)
	}

	<-ctx.Done()
	emit.log("info", "disconnecting")
	client.Disconnect()
}

// readCommands decodes stdin lines into commands until the supervisor
// closes our stdin or the context ends. A closed stdin means the parent
// is gone, so we shut down.
func readCommands(ctx context.Context, client *Client, emit *emitter, cancel context.CancelFunc) {
	lines := make(chan string)
	done := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), maxCommandLine)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		done <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-done:
			if err != nil {
				emit.log("warn", "stdin error: %v", err)
			} else {
				emit.log("info", "stdin closed, shutting down")
			}
			cancel()
			return
		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			cmd, err := bridge.DecodeCommand([]byte(line))
			if err != nil {
				emit.log("warn", "bad command: %v", err)
				continue
			}
			dispatch(ctx, client, emit, cmd, cancel)
		}
	}
}

// dispatch executes one command. Send operations block the command loop
// until WhatsApp acknowledges; the supervisor queues behind us.
func dispatch(ctx context.Context, client *Client, emit *emitter, cmd bridge.Command, cancel context.CancelFunc) {
	switch c := cmd.(type) {
	case bridge.DisconnectCommand:
		emit.log("info", "received disconnect command")
		cancel()

	case bridge.LogoutCommand:
		emit.log("info", "received logout command")
		if err := client.Logout(ctx); err != nil {
			emit.error("logout", "logout failed: %v", err)
		}
		cancel()

	case bridge.SendCommand:
		if c.To == "" || c.Text == "" {
			emit.send(bridge.SendResultEvent{RequestID: c.RequestID, Error: "missing 'to' or 'text' field"})
			return
		}
		id, ts, err := client.SendText(ctx, c)
		emit.send(sendResult(c.RequestID, id, ts, err))

	case bridge.SendImageCommand:
		if c.To == "" || c.MediaData == "" {
			emit.send(bridge.SendResultEvent{RequestID: c.RequestID, Error: "missing 'to' or 'media_data' field"})
			return
		}
		id, ts, err := client.SendImage(ctx, c)
		emit.send(sendResult(c.RequestID, id, ts, err))

	case bridge.SendReactionCommand:
		if c.To == "" || c.MessageID == "" {
			emit.send(bridge.SendResultEvent{RequestID: c.RequestID, Error: "missing 'to' or 'message_id' field"})
			return
		}
		id, ts, err := client.SendReaction(ctx, c)
		emit.send(sendResult(c.RequestID, id, ts, err))

	case bridge.GetProfilePictureCommand:
		if c.To == "" {
			emit.send(bridge.ProfilePictureEvent{RequestID: c.RequestID, Error: "missing 'to' field"})
			return
		}
		url, id, err := client.ProfilePicture(ctx, c.To)
		ev := bridge.ProfilePictureEvent{RequestID: c.RequestID, JID: c.To, URL: url, ID: id}
		if err != nil {
			ev.URL, ev.ID, ev.Error = "", "", err.Error()
		}
		emit.send(ev)
	}
}

func sendResult(requestID *int, messageID string, timestamp int64, err error) bridge.SendResultEvent {
	if err != nil {
		return bridge.SendResultEvent{RequestID: requestID, Error: err.Error()}
	}
	return bridge.SendResultEvent{
		RequestID: requestID,
		Success:   true,
		MessageID: messageID,
		Timestamp: timestamp,
	}
}
