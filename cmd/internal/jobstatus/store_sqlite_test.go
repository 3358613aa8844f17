package jobstatus

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "jobstatus.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStorePutGetDeleteList(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	rec := Record{
		Key:       "ocr-42",
		State:     StateProcessing,
		Message:   "analyzing label",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "ocr-42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Key != "ocr-42" || got.State != StateProcessing || got.Message != "analyzing label" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("CreatedAt not preserved: got %v want %v", got.CreatedAt, rec.CreatedAt)
	}

	// Transition overwrites.
	rec.State = StateError
	rec.Message = "ocr failed"
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put (overwrite): %v", err)
	}
	got, err = s.Get(ctx, "ocr-42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateError {
		t.Fatalf("overwrite missed: %+v", got)
	}

	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}

	if err := s.Delete(ctx, "ocr-42"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "ocr-42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "ocr-42"); err != nil {
		t.Fatalf("Delete (missing): %v", err)
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobstatus.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.Put(ctx, Record{Key: "ocr-1", State: StateCompleted, ResultID: strptr("9")}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite (reopen): %v", err)
	}
	defer s2.Close()
	got, err := s2.Get(ctx, "ocr-1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.ResultID == nil || *got.ResultID != "9" {
		t.Fatalf("record lost across reopen: %+v", got)
	}
}

func TestPollWatcherDetectsPutAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	w := NewPollWatcher(nil, s, 20*time.Millisecond)
	defer w.Close()

	var mu sync.Mutex
	var events []Event
	cancel := w.Watch(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	defer cancel()

	if err := s.Put(ctx, Record{Key: "ocr-1", State: StateProcessing}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 1
	}, "put detected")

	mu.Lock()
	if events[0].Record == nil || events[0].Key != "ocr-1" {
		t.Fatalf("unexpected put event: %+v", events[0])
	}
	mu.Unlock()

	if err := s.Delete(ctx, "ocr-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 2
	}, "delete detected")

	mu.Lock()
	defer mu.Unlock()
	last := events[len(events)-1]
	if last.Record != nil || last.Key != "ocr-1" {
		t.Fatalf("unexpected delete event: %+v", last)
	}
}

func TestPollWatcherDoesNotRefireUnchangedRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	if err := s.Put(ctx, Record{Key: "ocr-1", State: StateProcessing, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	w := NewPollWatcher(nil, s, 10*time.Millisecond)
	defer w.Close()

	var mu sync.Mutex
	count := 0
	cancel := w.Watch(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer cancel()

	// Existing records are the baseline; with no writes there must be no events.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("unchanged record refired %d times", count)
	}
}
