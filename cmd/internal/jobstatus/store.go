package jobstatus

import "context"

// StateStore is the durable, namespace-scoped key/value persistence for job
// records.
//
// Requirements:
//   - Put overwrites the record for its key (last write wins).
//   - Get returns ErrNotFound for missing keys.
//   - Delete of a missing key is a no-op.
//   - List returns every record in the namespace, order unspecified.
type StateStore interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, key string) (Record, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Event is a storage-change notification. Record is nil when the key was
// deleted.
type Event struct {
	Key    string
	Record *Record
}

// Watcher is implemented by stores that can push storage-change events.
// Stores without native change notification are wrapped by PollWatcher.
type Watcher interface {
	// Watch registers fn for change events and returns an unsubscribe
	// function. fn must not block; it is invoked from the store's delivery
	// goroutine.
	Watch(fn func(Event)) (unsubscribe func())
}
