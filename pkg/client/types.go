// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import "encoding/json"

// SessionStatus describes the server's WhatsApp connection.
type SessionStatus struct {
	Connected bool   `json:"connected"`
	Phone     string `json:"phone"`
	Name      string `json:"name"`
}

// Contact is a stored chat peer (individual or group).
type Contact struct {
	ID              string  `json:"id"`
	Name            *string `json:"name"`
	Phone           *string `json:"phone"`
	Type            *string `json:"type"`
	LastMessageTime int64   `json:"lastMessageTime"`
	UnreadCount     int     `json:"unreadCount"`
	Pinned          bool    `json:"pinned"`
}

// DisplayName returns the contact's name, falling back to phone and id.
func (c Contact) DisplayName() string {
	switch {
	case c.Name != nil && *c.Name != "":
		return *c.Name
	case c.Phone != nil && *c.Phone != "":
		return *c.Phone
	default:
		return c.ID
	}
}

// Message is a stored message. Timestamps are unix milliseconds.
type Message struct {
	ID             string          `json:"id"`
	ContactID      string          `json:"contactId"`
	Timestamp      int64           `json:"timestamp"`
	IsFromMe       bool            `json:"isFromMe"`
	IsForwarded    bool            `json:"isForwarded"`
	SenderName     *string         `json:"senderName"`
	SenderPhone    *string         `json:"senderPhone"`
	ChatType       string          `json:"chatType"`
	ContentType    string          `json:"contentType"`
	Content        json.RawMessage `json:"content,omitempty"`
	OriginalText   *string         `json:"originalText"`
	TranslatedText *string         `json:"translatedText"`
	SourceLanguage *string         `json:"sourceLanguage"`
	IsTranslated   bool            `json:"isTranslated"`
}

// MessagePage is one page of a conversation, oldest first.
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

// Stats summarizes the archive.
type Stats struct {
	Messages int `json:"messages"`
	Contacts int `json:"contacts"`
}

// UsageSummary aggregates the translation usage ledger.
type UsageSummary struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
}

// SendResult reports a queued outgoing message. The message id is
// provisional until the bridge acknowledges the send.
type SendResult struct {
	MessageID      string `json:"messageId"`
	Timestamp      int64  `json:"timestamp"`
	IsTranslated   bool   `json:"isTranslated"`
	TranslatedText string `json:"translatedText,omitempty"`
	SourceLanguage string `json:"sourceLanguage,omitempty"`
}

// TranslateResult is the outcome of an on-demand translation.
// TranslatedText is empty when the text was already in the target
// language.
type TranslateResult struct {
	TranslatedText string `json:"translatedText"`
	SourceLanguage string `json:"sourceLanguage"`
}

// ComposeResult is an AI-drafted message and what it cost.
type ComposeResult struct {
	Message string  `json:"message"`
	CostUSD float64 `json:"costUsd"`
}
