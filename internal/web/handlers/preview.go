// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/copperline/watrans/internal/linkpreview"
	"github.com/copperline/watrans/internal/storage"
)

const previewCacheAge = 24 * time.Hour

// PreviewHandler serves cached OpenGraph previews for URLs in
// messages.
type PreviewHandler struct {
	store   *storage.Store
	fetcher *linkpreview.Fetcher
}

// NewPreviewHandler creates a preview handler.
func NewPreviewHandler(store *storage.Store, fetcher *linkpreview.Fetcher) *PreviewHandler {
	return &PreviewHandler{store: store, fetcher: fetcher}
}

// Get returns the preview for ?url=, fetching and caching on miss.
// Unreachable or non-HTML targets are served as previews with an error
// field rather than HTTP errors; those are not cached, so a transient
// failure can recover on the next request.
func (h *PreviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "url is required")
		return
	}

	if cached, err := h.store.GetLinkPreview(rawURL, previewCacheAge); err != nil {
		log.Printf("web: link preview cache: %v", err)
	} else if cached != nil {
		WriteJSON(w, http.StatusOK, cached)
		return
	}

	preview, err := h.fetcher.Fetch(r.Context(), rawURL)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	}

	if preview.Error == "" {
		stored := &storage.LinkPreview{
			URL:         preview.URL,
			Title:       preview.Title,
			Description: preview.Description,
			ImageURL:    preview.ImageURL,
			SiteName:    preview.SiteName,
		}
		if err := h.store.PutLinkPreview(stored); err != nil {
			log.Printf("web: cache link preview: %v", err)
		}
	}

	WriteJSON(w, http.StatusOK, preview)
}
