// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
)

// AuthHandler implements optional password protection with bearer
// session tokens. An empty password disables authentication entirely.
type AuthHandler struct {
	password string

	mu     sync.Mutex
	tokens map[string]struct{}
}

// NewAuthHandler creates an auth handler. password may be empty.
func NewAuthHandler(password string) *AuthHandler {
	return &AuthHandler{
		password: password,
		tokens:   make(map[string]struct{}),
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
}

// Check reports whether a password is required.
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]bool{"required": h.password != ""})
}

// Login validates the password and issues a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.password == "" {
		WriteJSON(w, http.StatusOK, loginResponse{Success: true})
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}

	if req.Password != h.password {
		log.Printf("web: failed authentication attempt from %s", r.RemoteAddr)
		WriteError(w, http.StatusUnauthorized, ErrUnauthorized, "invalid password")
		return
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, "token generation failed")
		return
	}
	token := hex.EncodeToString(buf)

	h.mu.Lock()
	h.tokens[token] = struct{}{}
	h.mu.Unlock()

	WriteJSON(w, http.StatusOK, loginResponse{Success: true, Token: token})
}

// Authorized reports whether the request carries a valid session token.
func (h *AuthHandler) Authorized(r *http.Request) bool {
	if h.password == "" {
		return true
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, valid := h.tokens[token]
	return valid
}

// Middleware rejects unauthenticated requests to protected routes.
func (h *AuthHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Authorized(r) {
			WriteError(w, http.StatusUnauthorized, ErrUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClearTokens invalidates every session. Used by logout.
func (h *AuthHandler) ClearTokens() {
	h.mu.Lock()
	h.tokens = make(map[string]struct{})
	h.mu.Unlock()
}
