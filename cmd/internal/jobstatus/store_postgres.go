package jobstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a StateStore backed by PostgreSQL, for deployments whose
// contexts do not share a filesystem.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed StateStore and ensures its
// table exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("jobstatus: nil pool")
	}
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS job_state (
			key TEXT PRIMARY KEY,
			record_json JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("jobstatus: ensure schema: %w", err)
	}
	return nil
}

// Put upserts the record under its namespaced key.
func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jobstatus: encode record: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO job_state (key, record_json, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET record_json = EXCLUDED.record_json, updated_at = now()
	`, KeyNamespace+rec.Key, payload); err != nil {
		return fmt.Errorf("jobstatus: put record: %w", err)
	}
	return nil
}

// Get returns the record for key, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, key string) (Record, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record_json FROM job_state WHERE key = $1`, KeyNamespace+key,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("jobstatus: get record: %w", err)
	}
	return decodeRecord(string(payload))
}

// Delete removes the record for key. Missing keys are a no-op.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM job_state WHERE key = $1`, KeyNamespace+key,
	); err != nil {
		return fmt.Errorf("jobstatus: delete record: %w", err)
	}
	return nil
}

// List returns every record in the namespace.
func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record_json FROM job_state WHERE key LIKE $1`, KeyNamespace+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("jobstatus: list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("jobstatus: scan record: %w", err)
		}
		rec, err := decodeRecord(string(payload))
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
