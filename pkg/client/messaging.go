// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// MessagingClient sends texts, images and reactions through the
// server's WhatsApp session.
type MessagingClient struct {
	c *Client
}

// SendTextRequest is an outgoing text message. ReplyTo and
// ReplyToSender quote an earlier message.
type SendTextRequest struct {
	ContactID     string `json:"contactId"`
	Text          string `json:"text"`
	ReplyTo       string `json:"replyTo,omitempty"`
	ReplyToSender string `json:"replyToSender,omitempty"`
}

// SendText sends a text message. When the conversation runs in a
// foreign language the server translates the text before sending; the
// result carries the sent form.
func (m *MessagingClient) SendText(ctx context.Context, req SendTextRequest) (*SendResult, error) {
	data, err := m.c.postJSON(ctx, "/api/send", req)
	if err != nil {
		return nil, err
	}
	var result SendResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse send result: %w", err)
	}
	return &result, nil
}

// SendImageRequest is an outgoing image. MediaData is base64.
type SendImageRequest struct {
	ContactID     string `json:"contactId"`
	MediaData     string `json:"mediaData"`
	MimeType      string `json:"mimeType,omitempty"`
	Caption       string `json:"caption,omitempty"`
	ReplyTo       string `json:"replyTo,omitempty"`
	ReplyToSender string `json:"replyToSender,omitempty"`
}

// SendImage sends a base64-encoded image with an optional caption.
func (m *MessagingClient) SendImage(ctx context.Context, req SendImageRequest) (*SendResult, error) {
	data, err := m.c.postJSON(ctx, "/api/send-image", req)
	if err != nil {
		return nil, err
	}
	var result SendResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse send result: %w", err)
	}
	return &result, nil
}

// ReactRequest reacts to a message. An empty emoji removes a previous
// reaction. SenderJID identifies the author of the target message in
// group chats.
type ReactRequest struct {
	ContactID string `json:"contactId"`
	MessageID string `json:"messageId"`
	SenderJID string `json:"senderJid,omitempty"`
	Emoji     string `json:"emoji"`
}

// React sends a reaction.
func (m *MessagingClient) React(ctx context.Context, req ReactRequest) error {
	_, err := m.c.postJSON(ctx, "/api/react", req)
	return err
}
