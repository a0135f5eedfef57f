// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/copperline/watrans/internal/storage"
)

const defaultMessagePage = 50

// ArchiveHandler serves the stored contacts, messages and statistics.
type ArchiveHandler struct {
	store *storage.Store
}

// NewArchiveHandler creates an archive handler.
func NewArchiveHandler(store *storage.Store) *ArchiveHandler {
	return &ArchiveHandler{store: store}
}

// Contacts lists all contacts, pinned first, most recent conversation
// next.
func (h *ArchiveHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.store.GetContacts()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, contacts)
}

type messagesResponse struct {
	Messages []storage.Message `json:"messages"`
	HasMore  bool              `json:"hasMore"`
}

// Messages returns a page of messages for a contact. ?limit= caps the
// page (default 50, 0 means everything); ?before= pages backwards
// through history.
func (h *ArchiveHandler) Messages(w http.ResponseWriter, r *http.Request) {
	contactID := pathVar(r, "contactId")

	limit := defaultMessagePage
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var before int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid before timestamp")
			return
		}
		before = n
	}

	messages, hasMore, err := h.store.GetMessagesPage(contactID, limit, before)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, messagesResponse{Messages: messages, HasMore: hasMore})
}

// TogglePin flips a contact's pinned flag.
func (h *ArchiveHandler) TogglePin(w http.ResponseWriter, r *http.Request) {
	contactID := pathVar(r, "contactId")

	pinned, err := h.store.TogglePin(contactID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"pinned":  pinned,
	})
}

// Stats returns message and contact counts.
func (h *ArchiveHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// Usage aggregates the translation usage ledger. ?since= restricts to
// records at or after a unix timestamp.
func (h *ArchiveHandler) Usage(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid since timestamp")
			return
		}
		since = n
	}

	summary, err := h.store.GetUsage(since)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// pathVar returns a mux path variable, URL-decoded. Contact ids are
// JIDs and arrive percent-encoded.
func pathVar(r *http.Request, name string) string {
	v := mux.Vars(r)[name]
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}
