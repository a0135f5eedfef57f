// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client provides a Go client library for the watrans API.
//
// watrans archives and translates WhatsApp conversations; this client
// gives typed access to its HTTP endpoints.
//
// # Getting Started
//
// Create a client pointing at a running watrans server:
//
//	c := client.New("http://localhost:8787")
//
// When the server is password protected, log in once to obtain a
// session token:
//
//	if err := c.Login(ctx, "secret"); err != nil { ... }
//
// The client exposes the API through resource-specific sub-clients:
//
//	// Connection state and QR pairing
//	status, err := c.Session.Status(ctx)
//
//	// Archived conversations
//	contacts, err := c.Archive.Contacts(ctx)
//	page, err := c.Archive.Messages(ctx, jid, client.MessagesOptions{Limit: 50})
//
//	// Sending
//	result, err := c.Messaging.SendText(ctx, client.SendTextRequest{
//	    ContactID: jid,
//	    Text:      "hello",
//	})
//
// # Error Handling
//
// API errors are returned as *APIError values carrying the server's
// error code and message:
//
//	if apiErr, ok := err.(*client.APIError); ok {
//	    fmt.Printf("%s: %s\n", apiErr.Code, apiErr.Message)
//	}
//
// # Context Support
//
// All methods accept a context.Context for cancellation and timeouts.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Client is a watrans API client.
//
// The Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string

	// Session provides connection state, QR pairing, avatars and
	// logout.
	Session *SessionClient

	// Archive provides the stored contacts, messages, statistics and
	// the translation usage ledger.
	Archive *ArchiveClient

	// Messaging sends texts, images and reactions.
	Messaging *MessagingClient

	// Translate provides on-demand translation and AI composition.
	Translate *TranslateClient
}

// Option configures a [Client].
type Option func(*Client)

// New creates a watrans API client for the given base URL. A trailing
// slash is removed. The default HTTP timeout is 30 seconds.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Session = &SessionClient{c: c}
	c.Archive = &ArchiveClient{c: c}
	c.Messaging = &MessagingClient{c: c}
	c.Translate = &TranslateClient{c: c}
	return c
}

// WithToken sets a previously obtained session token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client for making requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout for all requests. The
// default is 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// BaseURL returns the base URL of the API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token returns the current session token, empty when not logged in.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// AuthRequired reports whether the server is password protected.
func (c *Client) AuthRequired(ctx context.Context) (bool, error) {
	data, err := c.get(ctx, "/api/auth/check")
	if err != nil {
		return false, err
	}
	var resp struct {
		Required bool `json:"required"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, fmt.Errorf("parse auth check: %w", err)
	}
	return resp.Required, nil
}

// Login authenticates with the server's password and stores the issued
// session token for subsequent requests.
func (c *Client) Login(ctx context.Context, password string) error {
	data, err := c.postJSON(ctx, "/api/auth", map[string]string{"password": password})
	if err != nil {
		return err
	}
	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("parse login response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("login rejected")
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return nil
}

// apiResponse is the standard API response envelope.
type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

// APIError represents an error response from the watrans API.
//
// Common codes are "BAD_REQUEST", "UNAUTHORIZED", "NOT_CONNECTED",
// "NOT_CONFIGURED", "BRIDGE_ERROR" and "INTERNAL_ERROR".
type APIError struct {
	// Code is the machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Status is the HTTP status code of the response.
	Status int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// get performs a GET request to the given path.
func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// post performs a POST request to the given path with no body.
func (c *Client) post(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil)
}

// postJSON performs a POST request with a JSON body.
func (c *Client) postJSON(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data))
}

// do performs an HTTP request and parses the response envelope.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return parseResponse(resp)
}

// parseResponse reads the envelope and unwraps data or error.
func parseResponse(resp *http.Response) (json.RawMessage, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
		}
		// Non-envelope response, return as-is.
		return respBody, nil
	}

	if apiResp.Error != nil {
		apiResp.Error.Status = resp.StatusCode
		return nil, apiResp.Error
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return apiResp.Data, nil
}
