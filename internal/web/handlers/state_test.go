// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperline/watrans/internal/bridge"
)

type stubSender struct {
	mu   sync.Mutex
	cmds []bridge.Command
	err  error
}

func (s *stubSender) Send(ctx context.Context, cmd bridge.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.cmds = append(s.cmds, cmd)
	return nil
}

func (s *stubSender) Ready() bool { return true }

func (s *stubSender) sent() []bridge.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bridge.Command, len(s.cmds))
	copy(out, s.cmds)
	return out
}

func TestState_SessionLifecycle(t *testing.T) {
	s := NewState(&stubSender{}, bridge.NewCorrelator(), NewHub())

	assert.False(t, s.Connected())

	s.SetQR("2@pairing-code")
	assert.Equal(t, "2@pairing-code", s.QR())

	s.SetConnected("123456789", "Alice")
	connected, phone, name := s.Session()
	assert.True(t, connected)
	assert.Equal(t, "123456789", phone)
	assert.Equal(t, "Alice", name)
	assert.Empty(t, s.QR(), "pairing code cleared once connected")

	s.SetDisconnected()
	assert.False(t, s.Connected())
}

func TestState_ProfilePicture(t *testing.T) {
	sender := &stubSender{}
	corr := bridge.NewCorrelator()
	s := NewState(sender, corr, NewHub())

	// Resolve the pending request the way the supervisor would.
	go func() {
		deadline := time.After(2 * time.Second)
		for {
			select {
			case <-deadline:
				return
			default:
			}
			for _, cmd := range sender.sent() {
				if req, ok := cmd.(bridge.GetProfilePictureCommand); ok {
					corr.Resolve(req.RequestID, bridge.ProfilePictureEvent{
						RequestID: req.RequestID,
						JID:       req.To,
						URL:       "https://pps.example.com/pic.jpg",
					})
					return
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	url, err := s.ProfilePicture(context.Background(), "1@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "https://pps.example.com/pic.jpg", url)

	// Second lookup hits the cache without another bridge request.
	url, err = s.ProfilePicture(context.Background(), "1@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "https://pps.example.com/pic.jpg", url)
	assert.Len(t, sender.sent(), 1)
}

func TestState_ProfilePictureSendFailure(t *testing.T) {
	sender := &stubSender{err: bridge.ErrNotRunning}
	corr := bridge.NewCorrelator()
	s := NewState(sender, corr, NewHub())

	_, err := s.ProfilePicture(context.Background(), "1@s.whatsapp.net")
	require.Error(t, err)
	assert.Zero(t, corr.Outstanding(), "failed request must not leak a pending slot")
}

func TestState_Reset(t *testing.T) {
	s := NewState(&stubSender{}, bridge.NewCorrelator(), NewHub())
	s.SetConnected("123", "Alice")
	s.SetQR("2@code")

	s.Reset()

	connected, phone, name := s.Session()
	assert.False(t, connected)
	assert.Empty(t, phone)
	assert.Empty(t, name)
	assert.Empty(t, s.QR())
}
