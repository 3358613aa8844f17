package jobstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a StateStore backed by Redis. Durability follows the server's
// persistence configuration; job-status records are short-lived and can be
// regenerated, so that is acceptable.
//
// The client is owned by the caller; Close() is a no-op.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore constructs a Redis-backed StateStore.
func NewRedisStore(rdb *redis.Client) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("jobstatus: nil redis client")
	}
	return &RedisStore{rdb: rdb}, nil
}

// Close is a no-op because the client is owned by the caller.
func (s *RedisStore) Close() error { return nil }

// Put stores rec under its namespaced key with no expiration.
func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jobstatus: encode record: %w", err)
	}
	if err := s.rdb.Set(ctx, KeyNamespace+rec.Key, payload, 0).Err(); err != nil {
		return fmt.Errorf("jobstatus: put record: %w", err)
	}
	return nil
}

// Get returns the record for key, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	payload, err := s.rdb.Get(ctx, KeyNamespace+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("jobstatus: get record: %w", err)
	}
	return decodeRecord(payload)
}

// Delete removes the record for key. Missing keys are a no-op.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, KeyNamespace+key).Err(); err != nil {
		return fmt.Errorf("jobstatus: delete record: %w", err)
	}
	return nil
}

// List returns every record in the namespace via SCAN.
func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	var out []Record
	iter := s.rdb.Scan(ctx, 0, KeyNamespace+"*", 100).Iterator()
	for iter.Next(ctx) {
		payload, err := s.rdb.Get(ctx, iter.Val()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Deleted between SCAN and GET.
				continue
			}
			return nil, fmt.Errorf("jobstatus: list records: %w", err)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("jobstatus: scan records: %w", err)
	}
	return out, nil
}
