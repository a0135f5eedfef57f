// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// SessionClient provides access to the WhatsApp session: connection
// state, QR pairing, avatars and logout.
type SessionClient struct {
	c *Client
}

// Status returns the current connection state.
func (s *SessionClient) Status(ctx context.Context) (*SessionStatus, error) {
	data, err := s.c.get(ctx, "/api/status")
	if err != nil {
		return nil, err
	}
	var status SessionStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("parse status: %w", err)
	}
	return &status, nil
}

// QR returns the pending pairing code, empty when none is pending.
func (s *SessionClient) QR(ctx context.Context) (string, error) {
	data, err := s.c.get(ctx, "/api/qr")
	if err != nil {
		return "", err
	}
	var resp struct {
		QR string `json:"qr"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse qr: %w", err)
	}
	return resp.QR, nil
}

// Avatar returns a contact's profile picture URL. Empty when the server
// is disconnected or the contact has no accessible avatar.
func (s *SessionClient) Avatar(ctx context.Context, jid string) (string, error) {
	data, err := s.c.get(ctx, "/api/avatar/"+url.PathEscape(jid))
	if err != nil {
		return "", err
	}
	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse avatar: %w", err)
	}
	return resp.URL, nil
}

// Logout ends the WhatsApp session and wipes the server's archive,
// session database and auth tokens. The next start needs a fresh QR
// pairing.
func (s *SessionClient) Logout(ctx context.Context) error {
	_, err := s.c.post(ctx, "/api/logout")
	return err
}
