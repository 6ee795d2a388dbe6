// Package db provides SQLite storage for the email sync history.
package db

import "database/sql"

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Sync runs table
-- One row per "sync run" invocation
CREATE TABLE IF NOT EXISTS sync_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    provider TEXT NOT NULL,            -- e.g. 'gmail'
    email_type TEXT NOT NULL,          -- e.g. 'banamex'
    mailboxes TEXT NOT NULL,           -- '|' separated mailbox names
    fetched INTEGER NOT NULL,          -- emails returned by the provider
    skipped INTEGER NOT NULL,          -- unparseable or already committed
    pending INTEGER NOT NULL,          -- tagged emails
    untagged INTEGER NOT NULL,         -- emails without a matching tag
    checkpoint INTEGER NOT NULL,       -- unix seconds stored as last sync
    synced_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_target
    ON sync_runs(provider, email_type, mailboxes);

-- Committed emails table
-- Tracks which emails became transactions
CREATE TABLE IF NOT EXISTS committed_emails (
    email_id TEXT PRIMARY KEY,         -- provider message id
    transaction_id TEXT NOT NULL,
    transaction_date TEXT NOT NULL,    -- YYYY-MM-DD
    amount TEXT NOT NULL,              -- decimal string
    concept TEXT NOT NULL,
    committed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_committed_emails_date
    ON committed_emails(transaction_date);

-- Sync metadata table
-- Stores key-value metadata about sync operations
CREATE TABLE IF NOT EXISTS sync_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

func initSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
