// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// TranslateClient provides on-demand translation and AI composition.
// The endpoints fail with code "NOT_CONFIGURED" when the server has no
// translation API key.
type TranslateClient struct {
	c *Client
}

// TranslateRequest translates a single text. MessageID is optional;
// when set, the server records the translation on the stored message.
type TranslateRequest struct {
	Text      string `json:"text"`
	MessageID string `json:"messageId,omitempty"`
	ContactID string `json:"contactId,omitempty"`
}

// Message translates text on demand. TranslatedText is empty when the
// text was already in the target language.
func (t *TranslateClient) Message(ctx context.Context, req TranslateRequest) (*TranslateResult, error) {
	data, err := t.c.postJSON(ctx, "/api/translate", req)
	if err != nil {
		return nil, err
	}
	var result TranslateResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse translate result: %w", err)
	}
	return &result, nil
}

// ComposeRequest drafts a message from a natural-language prompt,
// optionally in reply to another message.
type ComposeRequest struct {
	Prompt        string `json:"prompt"`
	ReplyToText   string `json:"replyToText,omitempty"`
	ReplyToSender string `json:"replyToSender,omitempty"`
}

// Compose drafts a message with the server's AI service.
func (t *TranslateClient) Compose(ctx context.Context, req ComposeRequest) (*ComposeResult, error) {
	data, err := t.c.postJSON(ctx, "/api/ai-compose", req)
	if err != nil {
		return nil, err
	}
	var result ComposeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse compose result: %w", err)
	}
	return &result, nil
}
