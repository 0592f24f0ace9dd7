// Package store provides SQLite-backed storage for diagnostic records.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/setevik/procwarden/internal/record"
)

// tsLayout is fixed-width so that timestamps compare correctly as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps an SQLite connection for diagnostic history.
type DB struct {
	db *sql.DB
}

// Open opens or creates an SQLite database at the given path.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single writer connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Insert stores a diagnostic record.
func (d *DB) Insert(rec *record.Record) error {
	_, err := d.db.Exec(`
		INSERT INTO records (id, session_id, timestamp, level, process, message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.SessionID,
		rec.Timestamp.UTC().Format(tsLayout),
		string(rec.Level),
		rec.Process,
		rec.Message,
	)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

// QueryFilter controls which records are returned by Query.
type QueryFilter struct {
	Since     time.Time
	Until     time.Time
	Level     string
	Process   string
	SessionID string
	Limit     int
}

// Query returns records matching the filter, newest first.
func (d *DB) Query(f QueryFilter) ([]*record.Record, error) {
	query := `SELECT id, session_id, timestamp, level, process, message
		FROM records WHERE 1=1`
	var args []interface{}

	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC().Format(tsLayout))
	}
	if !f.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.Until.UTC().Format(tsLayout))
	}
	if f.Level != "" {
		query += " AND level = ?"
		args = append(args, f.Level)
	}
	if f.Process != "" {
		query += " AND process = ?"
		args = append(args, f.Process)
	}
	if f.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, f.SessionID)
	}

	// rowid breaks ties between records written within the same instant.
	query += " ORDER BY timestamp DESC, rowid DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var recs []*record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Purge deletes records older than the given retention duration.
func (d *DB) Purge(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Format(tsLayout)
	result, err := d.db.Exec(`DELETE FROM records WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging old records: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the total number of stored records.
func (d *DB) Count() (int, error) {
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

func scanRecord(rows *sql.Rows) (*record.Record, error) {
	var rec record.Record
	var tsStr string
	var process sql.NullString

	err := rows.Scan(
		&rec.ID,
		&rec.SessionID,
		&tsStr,
		&rec.Level,
		&process,
		&rec.Message,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning record row: %w", err)
	}

	rec.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
	rec.Process = process.String
	return &rec, nil
}

func migrate(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			timestamp  TEXT NOT NULL,
			level      TEXT NOT NULL,
			process    TEXT,
			message    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_ts ON records(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_records_process ON records(process, level, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	slog.Debug("database schema up to date")
	return nil
}
