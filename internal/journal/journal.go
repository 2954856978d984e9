// Package journal provides an append-only history of convergence passes.
// Every pass outcome is recorded for auditing; nothing in the engine reads
// the journal back to make decisions.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Outcome is one resource pass to record.
type Outcome struct {
	RunID   string         // groups the outcomes of one invocation
	Kind    string         // resource kind
	Key     string         // full path of the resource
	Action  string         // none, create, update, delete
	Changed bool
	DryRun  bool
	Error   string         // empty on success
	Fields  map[string]any // fields the pass changed, or would change
}

// Entry is a recorded outcome
type Entry struct {
	ID        int64
	Timestamp time.Time
	Outcome
}

// Journal wraps the SQLite connection holding the pass history
type Journal struct {
	db *sql.DB
}

// Open opens the journal database and initializes the schema
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Pass journal - append-only, one row per resource pass.
	// No unique constraints: repeated passes over the same resource are
	// the normal case.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pass_journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			kind TEXT NOT NULL,
			key TEXT NOT NULL,
			action TEXT NOT NULL,
			changed INTEGER NOT NULL,
			dry_run INTEGER NOT NULL,
			error TEXT,
			fields TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_journal_run ON pass_journal(run_id);
		CREATE INDEX IF NOT EXISTS idx_journal_key_ts ON pass_journal(kind, key, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create pass_journal table: %w", err)
	}
	return nil
}

// Close closes the journal database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append records one pass outcome
func (j *Journal) Append(o Outcome) error {
	var fieldsJSON []byte
	var err error

	if o.Fields != nil {
		fieldsJSON, err = json.Marshal(o.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	now := time.Now().UTC().Unix()

	_, err = j.db.Exec(`
		INSERT INTO pass_journal (run_id, timestamp, kind, key, action, changed, dry_run, error, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.RunID, now, o.Kind, o.Key, o.Action, o.Changed, o.DryRun, o.Error, string(fieldsJSON))

	return err
}

// Recent returns the newest entries, most recent first
func (j *Journal) Recent(limit int) ([]*Entry, error) {
	rows, err := j.db.Query(`
		SELECT id, run_id, timestamp, kind, key, action, changed, dry_run, error, fields
		FROM pass_journal
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return j.scanEntries(rows)
}

// ByRun returns every entry recorded under one run, oldest first
func (j *Journal) ByRun(runID string) ([]*Entry, error) {
	rows, err := j.db.Query(`
		SELECT id, run_id, timestamp, kind, key, action, changed, dry_run, error, fields
		FROM pass_journal
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return j.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (j *Journal) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	result, err := j.db.Exec(`
		DELETE FROM pass_journal WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (j *Journal) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var errText, fieldsStr sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.RunID, &timestamp, &entry.Kind, &entry.Key,
			&entry.Action, &entry.Changed, &entry.DryRun, &errText, &fieldsStr,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		if errText.Valid {
			entry.Error = errText.String
		}
		if fieldsStr.Valid && fieldsStr.String != "" {
			entry.Fields = make(map[string]any)
			if err := json.Unmarshal([]byte(fieldsStr.String), &entry.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
