package jobstatus

import (
	"context"
	"sync"
)

// MemoryStore is an in-process StateStore with native change notification.
// It backs tests and single-process deployments where durability across
// restarts is not required.
type MemoryStore struct {
	mu      sync.Mutex
	recs    map[string]Record
	watch   map[int]func(Event)
	watchID int
	closed  bool
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recs:  make(map[string]Record),
		watch: make(map[int]func(Event)),
	}
}

// Close drops all records and watchers.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.recs = map[string]Record{}
	s.watch = map[int]func(Event){}
	return nil
}

// Put stores rec under its key and notifies watchers.
func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.recs[rec.Key] = rec
	fns := s.watchersLocked()
	s.mu.Unlock()

	r := rec
	for _, fn := range fns {
		fn(Event{Key: rec.Key, Record: &r})
	}
	return nil
}

// Get returns the record for key, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Delete removes the record for key and notifies watchers. Missing keys are
// a no-op and produce no event.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	_, existed := s.recs[key]
	delete(s.recs, key)
	var fns []func(Event)
	if existed {
		fns = s.watchersLocked()
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(Event{Key: key})
	}
	return nil
}

// List returns every stored record.
func (s *MemoryStore) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, rec)
	}
	return out, nil
}

// Watch registers fn for change events.
func (s *MemoryStore) Watch(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.watchID
	s.watchID++
	s.watch[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watch, id)
		s.mu.Unlock()
	}
}

func (s *MemoryStore) watchersLocked() []func(Event) {
	fns := make([]func(Event), 0, len(s.watch))
	for _, fn := range s.watch {
		fns = append(fns, fn)
	}
	return fns
}
