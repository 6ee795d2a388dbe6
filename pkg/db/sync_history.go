package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Metadata keys.
const (
	MetadataLastCommit = "last_commit"
)

// SyncRun summarizes one sync run.
type SyncRun struct {
	ID         int64
	Provider   string
	EmailType  string
	Mailboxes  string
	Fetched    int
	Skipped    int
	Pending    int
	Untagged   int
	Checkpoint int64
	SyncedAt   time.Time
}

// CommittedEmail links an email to the transaction it was committed as.
type CommittedEmail struct {
	EmailID         string
	TransactionID   string
	TransactionDate string
	Amount          string
	Concept         string
	CommittedAt     time.Time
}

// SyncHistory records sync runs and committed emails in a SQLite file.
type SyncHistory struct {
	db *sql.DB
}

// Open opens the history database at dbPath in WAL mode, creating the file
// and its tables when missing.
func Open(dbPath string) (*SyncHistory, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SyncHistory{db: db}, nil
}

// Close closes the database.
func (s *SyncHistory) Close() error {
	return s.db.Close()
}

// withTx runs fn in a database transaction, committing only when fn succeeds.
func (s *SyncHistory) withTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordRun stores a sync run summary.
func (s *SyncHistory) RecordRun(run SyncRun) error {
	query := `
		INSERT INTO sync_runs (provider, email_type, mailboxes, fetched, skipped, pending, untagged, checkpoint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		run.Provider,
		run.EmailType,
		run.Mailboxes,
		run.Fetched,
		run.Skipped,
		run.Pending,
		run.Untagged,
		run.Checkpoint,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}

	return nil
}

// ListRuns returns the most recent runs first, at most limit of them.
func (s *SyncHistory) ListRuns(limit int) ([]SyncRun, error) {
	query := `
		SELECT id, provider, email_type, mailboxes, fetched, skipped, pending, untagged, checkpoint, synced_at
		FROM sync_runs
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var run SyncRun
		if err := rows.Scan(
			&run.ID,
			&run.Provider,
			&run.EmailType,
			&run.Mailboxes,
			&run.Fetched,
			&run.Skipped,
			&run.Pending,
			&run.Untagged,
			&run.Checkpoint,
			&run.SyncedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// RecordCommits stores committed emails in a single transaction. An email
// committed again replaces its previous row.
func (s *SyncHistory) RecordCommits(commits []CommittedEmail) error {
	query := `
		INSERT INTO committed_emails (email_id, transaction_id, transaction_date, amount, concept)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email_id) DO UPDATE SET
			transaction_id = excluded.transaction_id,
			transaction_date = excluded.transaction_date,
			amount = excluded.amount,
			concept = excluded.concept,
			committed_at = CURRENT_TIMESTAMP
	`

	return s.withTx(func(tx *sql.Tx) error {
		for _, c := range commits {
			if _, err := tx.Exec(query, c.EmailID, c.TransactionID, c.TransactionDate, c.Amount, c.Concept); err != nil {
				return fmt.Errorf("failed to record commit of %s: %w", c.EmailID, err)
			}
		}
		return nil
	})
}

// IsCommitted checks if an email has been committed.
func (s *SyncHistory) IsCommitted(emailID string) (bool, error) {
	query := `SELECT COUNT(*) FROM committed_emails WHERE email_id = ?`

	var count int
	if err := s.db.QueryRow(query, emailID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check if committed: %w", err)
	}

	return count > 0, nil
}

// GetCommit retrieves the commit of an email, or nil if there is none.
func (s *SyncHistory) GetCommit(emailID string) (*CommittedEmail, error) {
	query := `
		SELECT email_id, transaction_id, transaction_date, amount, concept, committed_at
		FROM committed_emails
		WHERE email_id = ?
	`

	var c CommittedEmail
	err := s.db.QueryRow(query, emailID).Scan(
		&c.EmailID,
		&c.TransactionID,
		&c.TransactionDate,
		&c.Amount,
		&c.Concept,
		&c.CommittedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}

	return &c, nil
}

// Stats represents sync statistics.
type Stats struct {
	TotalRuns      int
	TotalFetched   int
	TotalCommitted int
	LastSync       sql.NullString
	LastCommit     string
}

// GetStats retrieves sync statistics.
func (s *SyncHistory) GetStats() (*Stats, error) {
	var stats Stats

	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(fetched), 0) FROM sync_runs`).Scan(&stats.TotalRuns, &stats.TotalFetched)
	if err != nil {
		return nil, fmt.Errorf("failed to get run count: %w", err)
	}

	err = s.db.QueryRow(`SELECT COUNT(*) FROM committed_emails`).Scan(&stats.TotalCommitted)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit count: %w", err)
	}

	err = s.db.QueryRow(`SELECT MAX(synced_at) FROM sync_runs`).Scan(&stats.LastSync)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last sync time: %w", err)
	}

	stats.LastCommit, err = s.GetMetadata(MetadataLastCommit)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// GetMetadata retrieves a metadata value. Missing keys yield "".
func (s *SyncHistory) GetMetadata(key string) (string, error) {
	query := `SELECT value FROM sync_metadata WHERE key = ?`

	var value string
	err := s.db.QueryRow(query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata: %w", err)
	}

	return value, nil
}

// SetMetadata sets a metadata value.
func (s *SyncHistory) SetMetadata(key, value string) error {
	query := `
		INSERT INTO sync_metadata (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.Exec(query, key, value); err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}

	return nil
}
