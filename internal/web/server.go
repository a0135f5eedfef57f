// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Server wraps the HTTP server with graceful shutdown.
type Server struct {
	srv *http.Server
}

// NewServer creates a server bound to host:port.
func NewServer(host string, port int, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Addr returns the bind address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Start serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	log.Printf("web: listening on http://%s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
