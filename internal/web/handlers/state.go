// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/copperline/watrans/internal/bridge"
)

const (
	avatarTTL     = time.Hour
	avatarTimeout = 10 * time.Second
)

// CommandSender is the write half of the bridge connection. The handler
// layer holds this slot, never a cached channel: the supervisor swaps
// the underlying process on respawn.
type CommandSender interface {
	Send(ctx context.Context, cmd bridge.Command) error
	Ready() bool
}

type avatarEntry struct {
	url       string
	fetchedAt time.Time
}

// State is the shared connection state behind the HTTP handlers:
// whether the bridge session is up, the current pairing QR, and the
// avatar cache.
type State struct {
	sender CommandSender
	corr   *bridge.Correlator
	hub    *Hub

	mu        sync.RWMutex
	connected bool
	phone     string
	name      string
	qr        string

	avatarMu sync.Mutex
	avatars  map[string]avatarEntry
}

// NewState creates handler state around the supervisor's sender slot
// and correlator.
func NewState(sender CommandSender, corr *bridge.Correlator, hub *Hub) *State {
	return &State{
		sender:  sender,
		corr:    corr,
		hub:     hub,
		avatars: make(map[string]avatarEntry),
	}
}

// Hub returns the WebSocket hub for broadcasting.
func (s *State) Hub() *Hub { return s.hub }

// Sender returns the bridge command sender.
func (s *State) Sender() CommandSender { return s.sender }

// SetConnected records an established session and notifies clients.
func (s *State) SetConnected(phone, name string) {
	s.mu.Lock()
	s.connected = true
	s.phone = phone
	s.name = name
	s.qr = ""
	s.mu.Unlock()

	s.hub.Broadcast(map[string]interface{}{
		"type": "connected", "phone": phone, "name": name,
	})
}

// SetDisconnected clears the session state and notifies clients.
func (s *State) SetDisconnected() {
	s.mu.Lock()
	s.connected = false
	s.phone = ""
	s.name = ""
	s.mu.Unlock()

	s.hub.Broadcast(map[string]interface{}{"type": "disconnected"})
}

// SetQR stores the current pairing code and pushes it to clients.
func (s *State) SetQR(code string) {
	s.mu.Lock()
	s.qr = code
	s.mu.Unlock()

	s.hub.Broadcast(map[string]interface{}{"type": "qr", "data": code})
}

// Connected reports whether the bridge session is established.
func (s *State) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Session returns the connection snapshot.
func (s *State) Session() (connected bool, phone, name string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected, s.phone, s.name
}

// QR returns the current pairing code, empty when none is pending.
func (s *State) QR() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.qr
}

// Reset drops session state and the avatar cache. Used by logout.
func (s *State) Reset() {
	s.mu.Lock()
	s.connected = false
	s.phone = ""
	s.name = ""
	s.qr = ""
	s.mu.Unlock()

	s.avatarMu.Lock()
	s.avatars = make(map[string]avatarEntry)
	s.avatarMu.Unlock()
}

// ProfilePicture resolves a contact's avatar URL through the bridge,
// serving cached results for up to an hour. An empty URL means the
// contact has no accessible avatar.
func (s *State) ProfilePicture(ctx context.Context, jid string) (string, error) {
	s.avatarMu.Lock()
	if entry, ok := s.avatars[jid]; ok && time.Since(entry.fetchedAt) < avatarTTL {
		s.avatarMu.Unlock()
		return entry.url, nil
	}
	s.avatarMu.Unlock()

	id := s.corr.NextID()
	pending := s.corr.Register(id)

	if err := s.sender.Send(ctx, bridge.GetProfilePictureCommand{RequestID: id, To: jid}); err != nil {
		s.corr.Resolve(id, nil)
		return "", fmt.Errorf("request avatar: %w", err)
	}

	ev, err := pending.Await(ctx, avatarTimeout)
	if err != nil {
		return "", fmt.Errorf("await avatar: %w", err)
	}

	reply, ok := ev.(bridge.ProfilePictureEvent)
	if !ok {
		return "", fmt.Errorf("unexpected avatar reply %T", ev)
	}
	if reply.Error != "" {
		log.Printf("web: avatar lookup for %s failed: %s", jid, reply.Error)
	}

	s.avatarMu.Lock()
	s.avatars[jid] = avatarEntry{url: reply.URL, fetchedAt: time.Now()}
	s.avatarMu.Unlock()

	return reply.URL, nil
}
