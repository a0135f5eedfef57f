// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage is the SQLite message archive: contacts, messages
// with translation annotations, the translation usage ledger, and the
// link preview cache.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

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

// Message is a stored message with its translation annotations.
// Content mirrors ContentJSON for API responses and is populated on
// reads.
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
	ContentJSON    string          `json:"-"`
	Content        json.RawMessage `json:"content,omitempty"`
	OriginalText   *string         `json:"originalText"`
	TranslatedText *string         `json:"translatedText"`
	SourceLanguage *string         `json:"sourceLanguage"`
	IsTranslated   bool            `json:"isTranslated"`
}

// UsageRecord is one translation API call in the usage ledger.
type UsageRecord struct {
	Timestamp    int64   `json:"timestamp"`
	Model        string  `json:"model"`
	Operation    string  `json:"operation"`
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
}

// UsageSummary aggregates the ledger.
type UsageSummary struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
}

// LinkPreview is a cached OpenGraph preview for a URL.
type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	SiteName    string `json:"siteName"`
	FetchedAt   int64  `json:"-"`
}

// Stats summarizes the archive.
type Stats struct {
	Messages int `json:"messages"`
	Contacts int `json:"contacts"`
}

// Store is the SQLite data access layer. Safe for concurrent use; the
// database runs in WAL mode with a busy timeout.
type Store struct {
	db *sql.DB
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Open opens the database at path, creating parent directories, and
// runs schema init plus additive migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertContact inserts a contact or merges fields on conflict. A name
// equal to the phone number never overwrites a real name, and
// last_message_time only moves forward.
func (s *Store) UpsertContact(id string, name, phone, contactType *string, lastMessageTime int64) error {
	_, err := s.db.Exec(`
		INSERT INTO contacts (id, name, phone, type, last_message_time, unread_count)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			name = COALESCE(
				CASE WHEN excluded.name IS NOT NULL AND excluded.name != excluded.phone
				     THEN excluded.name ELSE NULL END,
				contacts.name
			),
			phone = COALESCE(excluded.phone, contacts.phone),
			type  = COALESCE(excluded.type, contacts.type),
			last_message_time = MAX(contacts.last_message_time, excluded.last_message_time)
	`, id, name, phone, contactType, lastMessageTime)
	if err != nil {
		return fmt.Errorf("upsert contact %s: %w", id, err)
	}
	return nil
}

// IncrementUnread increments the unread count for a contact by one.
func (s *Store) IncrementUnread(contactID string) error {
	_, err := s.db.Exec(
		`UPDATE contacts SET unread_count = unread_count + 1 WHERE id = ?`, contactID)
	if err != nil {
		return fmt.Errorf("increment unread %s: %w", contactID, err)
	}
	return nil
}

// SetUnreadCount sets the unread count for a contact to a specific value.
func (s *Store) SetUnreadCount(contactID string, count int) error {
	_, err := s.db.Exec(
		`UPDATE contacts SET unread_count = ? WHERE id = ?`, count, contactID)
	if err != nil {
		return fmt.Errorf("set unread %s: %w", contactID, err)
	}
	return nil
}

// MarkAsRead resets the unread count for a contact to zero.
func (s *Store) MarkAsRead(contactID string) error {
	_, err := s.db.Exec(
		`UPDATE contacts SET unread_count = 0 WHERE id = ?`, contactID)
	if err != nil {
		return fmt.Errorf("mark read %s: %w", contactID, err)
	}
	return nil
}

// TogglePin flips the pinned flag for a contact and returns the new state.
func (s *Store) TogglePin(contactID string) (bool, error) {
	_, err := s.db.Exec(
		`UPDATE contacts SET pinned = 1 - pinned WHERE id = ?`, contactID)
	if err != nil {
		return false, fmt.Errorf("toggle pin %s: %w", contactID, err)
	}

	var pinned int
	err = s.db.QueryRow(`SELECT pinned FROM contacts WHERE id = ?`, contactID).Scan(&pinned)
	if err != nil {
		return false, fmt.Errorf("read pin %s: %w", contactID, err)
	}
	return pinned != 0, nil
}

// AddMessage inserts a message. Duplicate IDs (history replay) are
// ignored, keeping the first stored row.
func (s *Store) AddMessage(msg *Message) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO messages
			(id, contact_id, timestamp, is_from_me, is_forwarded, sender_name, sender_phone,
			 chat_type, content_type, content_json, original_text, translated_text,
			 source_language, is_translated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ContactID, msg.Timestamp, boolToInt(msg.IsFromMe), boolToInt(msg.IsForwarded),
		msg.SenderName, msg.SenderPhone, msg.ChatType, msg.ContentType, msg.ContentJSON,
		msg.OriginalText, msg.TranslatedText, msg.SourceLanguage, boolToInt(msg.IsTranslated))
	if err != nil {
		return fmt.Errorf("add message %s: %w", msg.ID, err)
	}
	return nil
}

// GetContacts returns all contacts, pinned first, then by most recent
// message.
func (s *Store) GetContacts() ([]Contact, error) {
	rows, err := s.db.Query(`
		SELECT id, name, phone, type, last_message_time, unread_count, pinned
		FROM contacts
		ORDER BY pinned DESC, last_message_time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]Contact, 0)
	for rows.Next() {
		var c Contact
		var pinned int
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Type,
			&c.LastMessageTime, &c.UnreadCount, &pinned); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		c.Pinned = pinned != 0
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}

// GetContact returns a single contact, or nil if unknown.
func (s *Store) GetContact(contactID string) (*Contact, error) {
	var c Contact
	var pinned int
	err := s.db.QueryRow(`
		SELECT id, name, phone, type, last_message_time, unread_count, pinned
		FROM contacts WHERE id = ?
	`, contactID).Scan(&c.ID, &c.Name, &c.Phone, &c.Type,
		&c.LastMessageTime, &c.UnreadCount, &pinned)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact %s: %w", contactID, err)
	}
	c.Pinned = pinned != 0
	return &c, nil
}

// GetMessages returns all messages for a contact in chronological order.
func (s *Store) GetMessages(contactID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, contact_id, timestamp, is_from_me, is_forwarded, sender_name,
		       sender_phone, chat_type, content_type, content_json, original_text,
		       translated_text, source_language, is_translated
		FROM messages
		WHERE contact_id = ?
		ORDER BY timestamp ASC
	`, contactID)
	if err != nil {
		return nil, fmt.Errorf("query messages for %s: %w", contactID, err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		var fromMe, forwarded, translated int
		var chatType sql.NullString
		if err := rows.Scan(&m.ID, &m.ContactID, &m.Timestamp, &fromMe, &forwarded,
			&m.SenderName, &m.SenderPhone, &chatType, &m.ContentType, &m.ContentJSON,
			&m.OriginalText, &m.TranslatedText, &m.SourceLanguage, &translated); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.IsFromMe = fromMe != 0
		m.IsForwarded = forwarded != 0
		m.IsTranslated = translated != 0
		m.ChatType = chatType.String
		m.Content = json.RawMessage(m.ContentJSON)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// GetMessagesPage returns up to limit messages for a contact in
// chronological order, newest page first. A non-zero before restricts
// to messages older than that timestamp. The bool reports whether
// older messages remain. limit <= 0 returns everything.
func (s *Store) GetMessagesPage(contactID string, limit int, before int64) ([]Message, bool, error) {
	if limit <= 0 {
		msgs, err := s.GetMessages(contactID)
		return msgs, false, err
	}
	if before == 0 {
		before = 1<<63 - 1
	}

	rows, err := s.db.Query(`
		SELECT id, contact_id, timestamp, is_from_me, is_forwarded, sender_name,
		       sender_phone, chat_type, content_type, content_json, original_text,
		       translated_text, source_language, is_translated
		FROM messages
		WHERE contact_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, contactID, before, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("query message page for %s: %w", contactID, err)
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		var fromMe, forwarded, translated int
		var chatType sql.NullString
		if err := rows.Scan(&m.ID, &m.ContactID, &m.Timestamp, &fromMe, &forwarded,
			&m.SenderName, &m.SenderPhone, &chatType, &m.ContentType, &m.ContentJSON,
			&m.OriginalText, &m.TranslatedText, &m.SourceLanguage, &translated); err != nil {
			return nil, false, fmt.Errorf("scan message: %w", err)
		}
		m.IsFromMe = fromMe != 0
		m.IsForwarded = forwarded != 0
		m.IsTranslated = translated != 0
		m.ChatType = chatType.String
		m.Content = json.RawMessage(m.ContentJSON)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate message page: %w", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	// Newest-first query, chronological result.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, hasMore, nil
}

// UpdateMessageTranslation records a translation on an existing message.
func (s *Store) UpdateMessageTranslation(messageID string, translatedText, sourceLanguage *string) error {
	_, err := s.db.Exec(`
		UPDATE messages
		SET translated_text = ?, source_language = ?, is_translated = 1
		WHERE id = ?
	`, translatedText, sourceLanguage, messageID)
	if err != nil {
		return fmt.Errorf("update translation %s: %w", messageID, err)
	}
	return nil
}

// ClearAll wipes every table. Used by logout, which discards the whole
// local archive along with the WhatsApp session.
func (s *Store) ClearAll() error {
	for _, table := range []string{"messages", "contacts", "usage_log", "link_previews"} {
		if _, err := s.db.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// GetConversationLanguage returns the most common source language of
// recent incoming messages from a contact, or empty if none recorded.
func (s *Store) GetConversationLanguage(contactID string) (string, error) {
	var language string
	err := s.db.QueryRow(`
		SELECT source_language
		FROM messages
		WHERE contact_id = ?
		  AND is_from_me = 0
		  AND source_language IS NOT NULL
		  AND source_language != ''
		GROUP BY source_language
		ORDER BY COUNT(*) DESC
		LIMIT 1
	`, contactID).Scan(&language)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("conversation language %s: %w", contactID, err)
	}
	return language, nil
}

// GetStats returns message and contact counts.
func (s *Store) GetStats() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&st.Messages); err != nil {
		return st, fmt.Errorf("count messages: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM contacts`).Scan(&st.Contacts); err != nil {
		return st, fmt.Errorf("count contacts: %w", err)
	}
	return st, nil
}

// RecordUsage appends one translation API call to the usage ledger.
func (s *Store) RecordUsage(rec UsageRecord) error {
	ts := rec.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	_, err := s.db.Exec(`
		INSERT INTO usage_log (timestamp, model, operation, input_tokens, output_tokens, cost_usd)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ts, rec.Model, rec.Operation, rec.InputTokens, rec.OutputTokens, rec.CostUSD)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// GetUsage aggregates the ledger since the given unix timestamp
// (0 = all time).
func (s *Store) GetUsage(since int64) (UsageSummary, error) {
	var sum UsageSummary
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(cost_usd), 0)
		FROM usage_log
		WHERE timestamp >= ?
	`, since).Scan(&sum.Calls, &sum.InputTokens, &sum.OutputTokens, &sum.CostUSD)
	if err != nil {
		return sum, fmt.Errorf("aggregate usage: %w", err)
	}
	return sum, nil
}

// GetLinkPreview returns a cached preview no older than maxAge, or nil.
func (s *Store) GetLinkPreview(url string, maxAge time.Duration) (*LinkPreview, error) {
	var p LinkPreview
	err := s.db.QueryRow(`
		SELECT url, title, description, image_url, site_name, fetched_at
		FROM link_previews WHERE url = ?
	`, url).Scan(&p.URL, &p.Title, &p.Description, &p.ImageURL, &p.SiteName, &p.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get link preview: %w", err)
	}
	if maxAge > 0 && time.Since(time.Unix(p.FetchedAt, 0)) > maxAge {
		return nil, nil
	}
	return &p, nil
}

// PutLinkPreview stores or refreshes a cached preview.
func (s *Store) PutLinkPreview(p *LinkPreview) error {
	ts := p.FetchedAt
	if ts == 0 {
		ts = time.Now().Unix()
	}
	_, err := s.db.Exec(`
		INSERT INTO link_previews (url, title, description, image_url, site_name, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			image_url = excluded.image_url,
			site_name = excluded.site_name,
			fetched_at = excluded.fetched_at
	`, p.URL, p.Title, p.Description, p.ImageURL, p.SiteName, ts)
	if err != nil {
		return fmt.Errorf("put link preview: %w", err)
	}
	return nil
}
