// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package watcher watches the wa-bridge binary on disk and publishes a
// change event when a fresh build replaces it, so the supervisor can
// bounce the running instance onto the new binary.
package watcher

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/copperline/watrans/internal/events"
)

// restartCooldown suppresses change events fired shortly after one was
// already published, so a respawn does not immediately trigger another.
const restartCooldown = 5 * time.Second

// BinaryWatcher watches a single binary file for rebuilds.
type BinaryWatcher struct {
	bus       *events.Bus
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	path      string

	mu         sync.Mutex
	lastChange time.Time
	closed     bool

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewBinaryWatcher watches binaryPath and publishes EventBinaryChanged
// on the bus after each debounced write or create. The parent directory
// is watched too, since builds typically replace the file wholesale.
func NewBinaryWatcher(bus *events.Bus, binaryPath string, debounce time.Duration) (*BinaryWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	abs, err := filepath.Abs(binaryPath)
	if err != nil {
		abs = binaryPath
	}

	w := &BinaryWatcher{
		bus:       bus,
		watcher:   fsWatcher,
		debouncer: NewDebouncer(debounce),
		path:      abs,
		closeCh:   make(chan struct{}),
	}

	// Watch the containing directory: rename-into-place replaces the
	// inode, which a direct file watch would lose.
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// Path returns the watched binary path.
func (w *BinaryWatcher) Path() string {
	return w.path
}

// Close stops the watcher and releases resources.
func (w *BinaryWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.closeCh)
	w.debouncer.Stop()
	w.watcher.Close()
	w.wg.Wait()
	return nil
}

func (w *BinaryWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: %v", err)
		}
	}
}

func (w *BinaryWatcher) handleEvent(event fsnotify.Event) {
	// Chmod fires when the binary is executed; reacting to it would
	// cause restart loops.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	if event.Name != w.path {
		return
	}

	w.debouncer.Debounce(w.publishChange)
}

func (w *BinaryWatcher) publishChange() {
	w.mu.Lock()
	if time.Since(w.lastChange) < restartCooldown {
		w.mu.Unlock()
		return
	}
	w.lastChange = time.Now()
	w.mu.Unlock()

	var modTime time.Time
	if info, err := os.Stat(w.path); err == nil {
		modTime = info.ModTime()
	}

	log.Printf("watcher: %s changed, requesting bridge restart", filepath.Base(w.path))
	w.bus.Publish(events.Event{
		Type: events.EventBinaryChanged,
		Payload: map[string]interface{}{
			"path":    w.path,
			"modTime": modTime.Format(time.RFC3339),
		},
	})
}
