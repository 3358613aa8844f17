package jobstatus

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a file-backed StateStore. It is the default durable store
// for single-machine deployments: records survive restarts, and separate
// processes sharing the file observe each other's writes through PollWatcher.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("jobstatus: open sqlite db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS job_state (
			key TEXT PRIMARY KEY,
			record_json TEXT NOT NULL,
			updated_utc TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("jobstatus: migrate: %w", err)
		}
	}
	return nil
}

// Put stores rec under its namespaced key, overwriting any previous record.
func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jobstatus: encode record: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO job_state (key, record_json, updated_utc)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET record_json=excluded.record_json, updated_utc=excluded.updated_utc
	`, KeyNamespace+rec.Key, string(payload), now); err != nil {
		return fmt.Errorf("jobstatus: put record: %w", err)
	}
	return nil
}

// Get returns the record for key, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key string) (Record, error) {
	var payload string
	row := s.db.QueryRowContext(ctx, `SELECT record_json FROM job_state WHERE key = ?`, KeyNamespace+key)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("jobstatus: get record: %w", err)
	}
	return decodeRecord(payload)
}

// Delete removes the record for key. Missing keys are a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_state WHERE key = ?`, KeyNamespace+key); err != nil {
		return fmt.Errorf("jobstatus: delete record: %w", err)
	}
	return nil
}

// List returns every record in the namespace.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record_json FROM job_state WHERE key LIKE ?`, KeyNamespace+"%")
	if err != nil {
		return nil, fmt.Errorf("jobstatus: list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("jobstatus: scan record: %w", err)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobstatus: iterate records: %w", err)
	}
	return out, nil
}

func decodeRecord(payload string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &rec); err != nil {
		return Record{}, fmt.Errorf("jobstatus: decode record: %w", err)
	}
	return rec, nil
}
