// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

const schema = `
CREATE TABLE IF NOT EXISTS contacts (
    id TEXT PRIMARY KEY,
    name TEXT,
    phone TEXT,
    type TEXT,
    last_message_time INTEGER DEFAULT 0,
    unread_count INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    contact_id TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    is_from_me INTEGER NOT NULL,
    is_forwarded INTEGER DEFAULT 0,
    sender_name TEXT,
    sender_phone TEXT,
    chat_type TEXT,
    content_type TEXT NOT NULL,
    content_json TEXT NOT NULL,
    FOREIGN KEY (contact_id) REFERENCES contacts(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_contact_id ON messages(contact_id);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
CREATE INDEX IF NOT EXISTS idx_contacts_last_message ON contacts(last_message_time DESC);

CREATE TABLE IF NOT EXISTS usage_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp INTEGER NOT NULL,
    model TEXT NOT NULL,
    operation TEXT NOT NULL,
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    cost_usd REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_log(timestamp);

CREATE TABLE IF NOT EXISTS link_previews (
    url TEXT PRIMARY KEY,
    title TEXT,
    description TEXT,
    image_url TEXT,
    site_name TEXT,
    fetched_at INTEGER NOT NULL
);
`

// columnExists reports whether a column is present on a table, for
// additive migrations against databases created by older builds.
func (s *Store) columnExists(table, column string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// migrate applies additive schema changes: translation columns on
// messages and the pinned flag on contacts.
func (s *Store) migrate() error {
	hasTranslation, err := s.columnExists("messages", "original_text")
	if err != nil {
		return err
	}
	if !hasTranslation {
		if _, err := s.db.Exec(`
			ALTER TABLE messages ADD COLUMN original_text TEXT;
			ALTER TABLE messages ADD COLUMN translated_text TEXT;
			ALTER TABLE messages ADD COLUMN source_language TEXT;
			ALTER TABLE messages ADD COLUMN is_translated INTEGER DEFAULT 0;
		`); err != nil {
			return err
		}
	}

	hasPinned, err := s.columnExists("contacts", "pinned")
	if err != nil {
		return err
	}
	if !hasPinned {
		if _, err := s.db.Exec(`ALTER TABLE contacts ADD COLUMN pinned INTEGER DEFAULT 0`); err != nil {
			return err
		}
	}

	return nil
}
