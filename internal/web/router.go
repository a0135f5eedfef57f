// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package web serves the HTTP API, the WebSocket event stream and the
// single-page frontend.
package web

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/copperline/watrans/internal/linkpreview"
	"github.com/copperline/watrans/internal/storage"
	"github.com/copperline/watrans/internal/web/handlers"
	"github.com/copperline/watrans/internal/web/middleware"
)

// Dependencies holds everything the handlers need.
type Dependencies struct {
	State      *handlers.State
	Store      *storage.Store
	Translator handlers.Translator // nil when no API key is configured
	Auth       *handlers.AuthHandler
	Previews   *linkpreview.Fetcher
	DataDir    string
	WebDir     string
}

// NewRouter builds the full route table.
func NewRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS)

	authHandler := deps.Auth
	bridgeHandler := handlers.NewBridgeHandler(deps.State, deps.Store, deps.Translator, authHandler, deps.DataDir)
	archiveHandler := handlers.NewArchiveHandler(deps.Store)
	translateHandler := handlers.NewTranslateHandler(deps.Store, deps.Translator)
	previewHandler := handlers.NewPreviewHandler(deps.Store, deps.Previews)

	api := r.PathPrefix("/api").Subrouter()

	// Auth endpoints are reachable without a session.
	api.HandleFunc("/auth/check", authHandler.Check).Methods("GET")
	api.HandleFunc("/auth", authHandler.Login).Methods("POST")

	protected := api.PathPrefix("/").Subrouter()
	protected.Use(authHandler.Middleware)
	protected.HandleFunc("/status", bridgeHandler.Status).Methods("GET")
	protected.HandleFunc("/qr", bridgeHandler.QR).Methods("GET")
	protected.HandleFunc("/contacts", archiveHandler.Contacts).Methods("GET")
	protected.HandleFunc("/contacts/{contactId}/pin", archiveHandler.TogglePin).Methods("POST")
	protected.HandleFunc("/messages/{contactId}", archiveHandler.Messages).Methods("GET")
	protected.HandleFunc("/avatar/{jid}", bridgeHandler.Avatar).Methods("GET")
	protected.HandleFunc("/send", bridgeHandler.Send).Methods("POST")
	protected.HandleFunc("/send-image", bridgeHandler.SendImage).Methods("POST")
	protected.HandleFunc("/react", bridgeHandler.React).Methods("POST")
	protected.HandleFunc("/translate", translateHandler.Translate).Methods("POST")
	protected.HandleFunc("/ai-compose", translateHandler.Compose).Methods("POST")
	protected.HandleFunc("/stats", archiveHandler.Stats).Methods("GET")
	protected.HandleFunc("/usage", archiveHandler.Usage).Methods("GET")
	protected.HandleFunc("/link-preview", previewHandler.Get).Methods("GET")
	protected.HandleFunc("/logout", bridgeHandler.Logout).Methods("POST")

	r.HandleFunc("/ws", deps.State.Hub().ServeWS).Methods("GET")

	if deps.WebDir != "" {
		r.PathPrefix("/").Handler(spaHandler{dir: deps.WebDir})
	}

	return r
}

// spaHandler serves files from the web directory, falling back to
// index.html for client-side routes.
type spaHandler struct {
	dir string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.dir, filepath.Clean("/"+r.URL.Path))

	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		http.ServeFile(w, r, path)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.dir, "index.html"))
}
