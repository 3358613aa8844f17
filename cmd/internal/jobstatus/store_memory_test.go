package jobstatus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func strptr(s string) *string { return &s }

func TestMemoryStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	rec := Record{Key: "ocr-1", State: StateProcessing, Message: "analyzing", CreatedAt: time.Now().UTC()}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "ocr-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateProcessing || got.Message != "analyzing" {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Overwrite on state transition.
	rec.State = StateCompleted
	rec.ResultID = strptr("42")
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put (overwrite): %v", err)
	}
	got, err = s.Get(ctx, "ocr-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateCompleted || got.ResultID == nil || *got.ResultID != "42" {
		t.Fatalf("overwrite lost data: %+v", got)
	}

	if err := s.Delete(ctx, "ocr-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "ocr-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing key is a no-op.
	if err := s.Delete(ctx, "ocr-1"); err != nil {
		t.Fatalf("Delete (missing): %v", err)
	}
}

func TestMemoryStoreRejectsInvalidRecord(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	if err := s.Put(context.Background(), Record{Key: "", State: StateProcessing}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if err := s.Put(context.Background(), Record{Key: "k", State: "bogus"}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestMemoryStoreWatchFiresOnPutAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	var mu sync.Mutex
	var events []Event
	cancel := s.Watch(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	defer cancel()

	if err := s.Put(ctx, Record{Key: "ocr-1", State: StateProcessing}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, "ocr-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Record == nil || events[0].Record.State != StateProcessing {
		t.Fatalf("put event missing record: %+v", events[0])
	}
	if events[1].Record != nil {
		t.Fatalf("delete event must carry nil record: %+v", events[1])
	}
}

func TestMemoryStoreWatchUnsubscribe(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	fired := false
	cancel := s.Watch(func(Event) { fired = true })
	cancel()

	if err := s.Put(ctx, Record{Key: "k", State: StateProcessing}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if fired {
		t.Fatalf("unsubscribed watcher still fired")
	}
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	for _, key := range []string{"a", "b", "c"} {
		if err := s.Put(ctx, Record{Key: key, State: StateProcessing}); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}
	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
}
