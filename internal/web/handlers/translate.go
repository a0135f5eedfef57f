// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/copperline/watrans/internal/translation"
)

// Translator is the slice of the translation service the handlers use.
type Translator interface {
	ProcessText(ctx context.Context, text string) translation.Result
	TranslateTo(ctx context.Context, text, targetLanguage string) (string, translation.Usage)
	Compose(ctx context.Context, prompt, replySender, replyText string) (string, translation.Usage, error)
}

// TranslateHandler exposes on-demand translation and AI composition.
type TranslateHandler struct {
	store      messageTranslationStore
	translator Translator
}

type messageTranslationStore interface {
	UpdateMessageTranslation(messageID string, translatedText, sourceLanguage *string) error
}

// NewTranslateHandler creates a translate handler. translator may be
// nil when no API key is configured.
func NewTranslateHandler(store messageTranslationStore, translator Translator) *TranslateHandler {
	return &TranslateHandler{store: store, translator: translator}
}

type translateRequest struct {
	Text      string `json:"text"`
	MessageID string `json:"messageId"`
	ContactID string `json:"contactId"`
}

type translateResponse struct {
	Success        bool   `json:"success"`
	TranslatedText string `json:"translatedText,omitempty"`
	SourceLanguage string `json:"sourceLanguage,omitempty"`
}

// Translate translates a single message on demand and records the
// result on the stored message.
func (h *TranslateHandler) Translate(w http.ResponseWriter, r *http.Request) {
	if h.translator == nil {
		WriteError(w, http.StatusServiceUnavailable, ErrNotConfigured, "translation service not configured")
		return
	}

	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "text is required")
		return
	}

	result := h.translator.ProcessText(r.Context(), req.Text)

	if result.NeedsTranslation && req.MessageID != "" {
		if err := h.store.UpdateMessageTranslation(req.MessageID,
			&result.TranslatedText, &result.SourceLanguage); err != nil {
			log.Printf("web: record translation for %s: %v", req.MessageID, err)
		}
	}

	resp := translateResponse{Success: true, SourceLanguage: result.SourceLanguage}
	if result.NeedsTranslation {
		resp.TranslatedText = result.TranslatedText
	}
	WriteJSON(w, http.StatusOK, resp)
}

type composeRequest struct {
	Prompt        string `json:"prompt"`
	ReplyToText   string `json:"replyToText,omitempty"`
	ReplyToSender string `json:"replyToSender,omitempty"`
}

type composeResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	CostUSD float64 `json:"costUsd"`
}

// Compose drafts a message from a natural-language prompt, optionally
// in reply to another message.
func (h *TranslateHandler) Compose(w http.ResponseWriter, r *http.Request) {
	if h.translator == nil {
		WriteError(w, http.StatusServiceUnavailable, ErrNotConfigured, "AI service not configured")
		return
	}

	var req composeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}

	sender := req.ReplyToSender
	if sender == "" && req.ReplyToText != "" {
		sender = "Someone"
	}

	message, usage, err := h.translator.Compose(r.Context(), req.Prompt, sender, req.ReplyToText)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	}

	log.Printf("web: composed message (%d chars), cost $%.6f", len(message), usage.CostUSD)
	WriteJSON(w, http.StatusOK, composeResponse{
		Success: true,
		Message: message,
		CostUSD: usage.CostUSD,
	})
}
