// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// ArchiveClient provides access to the stored contacts, messages,
// statistics and the translation usage ledger.
type ArchiveClient struct {
	c *Client
}

// Contacts lists all contacts, pinned first, most recent conversation
// next.
func (a *ArchiveClient) Contacts(ctx context.Context) ([]Contact, error) {
	data, err := a.c.get(ctx, "/api/contacts")
	if err != nil {
		return nil, err
	}
	var contacts []Contact
	if err := json.Unmarshal(data, &contacts); err != nil {
		return nil, fmt.Errorf("parse contacts: %w", err)
	}
	return contacts, nil
}

// MessagesOptions control conversation paging.
type MessagesOptions struct {
	// Limit caps the page size. 0 uses the server default (50);
	// negative is invalid.
	Limit int

	// Before pages backwards: only messages older than this unix
	// millisecond timestamp are returned.
	Before int64
}

// Messages returns one page of a conversation, oldest first.
func (a *ArchiveClient) Messages(ctx context.Context, contactID string, opts MessagesOptions) (*MessagePage, error) {
	path := "/api/messages/" + url.PathEscape(contactID)

	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Before > 0 {
		q.Set("before", strconv.FormatInt(opts.Before, 10))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	data, err := a.c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var page MessagePage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}
	return &page, nil
}

// TogglePin flips a contact's pinned flag and returns the new state.
func (a *ArchiveClient) TogglePin(ctx context.Context, contactID string) (bool, error) {
	data, err := a.c.post(ctx, "/api/contacts/"+url.PathEscape(contactID)+"/pin")
	if err != nil {
		return false, err
	}
	var resp struct {
		Pinned bool `json:"pinned"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, fmt.Errorf("parse pin response: %w", err)
	}
	return resp.Pinned, nil
}

// Stats returns message and contact counts.
func (a *ArchiveClient) Stats(ctx context.Context) (*Stats, error) {
	data, err := a.c.get(ctx, "/api/stats")
	if err != nil {
		return nil, err
	}
	var stats Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("parse stats: %w", err)
	}
	return &stats, nil
}

// Usage aggregates the translation usage ledger. since restricts to
// records at or after a unix timestamp; 0 means everything.
func (a *ArchiveClient) Usage(ctx context.Context, since int64) (*UsageSummary, error) {
	path := "/api/usage"
	if since > 0 {
		path += "?since=" + strconv.FormatInt(since, 10)
	}
	data, err := a.c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var summary UsageSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("parse usage: %w", err)
	}
	return &summary, nil
}
