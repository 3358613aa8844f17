package notify

import (
	"sync"
	"testing"
	"time"
)

// recorder captures renderer calls for assertions.
type recorder struct {
	mu      sync.Mutex
	shown   []Entry
	cleared int
}

func (r *recorder) Render(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, e)
}

func (r *recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
}

func (r *recorder) clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleared
}

func TestShowReplacesCurrentEntry(t *testing.T) {
	rec := &recorder{}
	m := NewManager(nil, rec)

	m.Show(Entry{ID: "1", Message: "first"})
	m.Show(Entry{ID: "2", Message: "second"})

	if got := m.Visible(); got != "2" {
		t.Fatalf("expected entry 2 visible, got %q", got)
	}
	if len(rec.shown) != 2 {
		t.Fatalf("expected 2 renders, got %d", len(rec.shown))
	}
}

func TestStaleDismissIsFenced(t *testing.T) {
	rec := &recorder{}
	m := NewManager(nil, rec)

	m.Show(Entry{ID: "1"})
	m.Show(Entry{ID: "2"})

	// A delayed dismiss for the superseded entry must not hide the new one.
	m.Hide("1")
	if got := m.Visible(); got != "2" {
		t.Fatalf("stale dismiss hid entry 2, visible=%q", got)
	}
	if rec.clears() != 0 {
		t.Fatalf("stale dismiss reached renderer")
	}

	m.Hide("2")
	if got := m.Visible(); got != "" {
		t.Fatalf("matching dismiss did not hide, visible=%q", got)
	}
	if rec.clears() != 1 {
		t.Fatalf("expected 1 clear, got %d", rec.clears())
	}
}

func TestHideWithoutIDIsUnconditional(t *testing.T) {
	m := NewManager(nil, nil)
	m.Show(Entry{ID: "1"})
	m.Hide("")
	if got := m.Visible(); got != "" {
		t.Fatalf("expected hidden, visible=%q", got)
	}
}

func TestAutoDismissTimerIsCancelledWhenSuperseded(t *testing.T) {
	rec := &recorder{}
	m := NewManager(nil, rec)

	m.Show(Entry{ID: "1", AutoDismiss: 20 * time.Millisecond})
	m.Show(Entry{ID: "2"}) // no auto-dismiss

	// Give the stale timer time to fire if it was not cancelled; even if it
	// fires, fencing must keep entry 2 visible.
	time.Sleep(60 * time.Millisecond)

	if got := m.Visible(); got != "2" {
		t.Fatalf("auto-dismiss of superseded entry hid entry 2, visible=%q", got)
	}
	if rec.clears() != 0 {
		t.Fatalf("expected no clears, got %d", rec.clears())
	}
}

func TestAutoDismissHidesOwnEntry(t *testing.T) {
	rec := &recorder{}
	m := NewManager(nil, rec)

	m.Show(Entry{ID: "1", AutoDismiss: 10 * time.Millisecond})

	deadline := time.Now().Add(2 * time.Second)
	for m.Visible() != "" {
		if time.Now().After(deadline) {
			t.Fatalf("auto-dismiss never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rec.clears() != 1 {
		t.Fatalf("expected 1 clear, got %d", rec.clears())
	}
}

func TestHideIsIdempotent(t *testing.T) {
	m := NewManager(nil, &recorder{})
	m.Show(Entry{ID: "1"})
	m.Hide("1")
	m.Hide("1") // second dismiss of an already-hidden id is a no-op fence miss
	if got := m.Visible(); got != "" {
		t.Fatalf("visible=%q", got)
	}
}
