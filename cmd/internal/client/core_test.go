package client

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"foodscan/cmd/internal/jobstatus"
	"foodscan/cmd/internal/notify"
)

type fakeRenderer struct {
	mu      sync.Mutex
	current *notify.Entry
}

func (r *fakeRenderer) Render(e notify.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := e
	r.current = &cp
}

func (r *fakeRenderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
}

func (r *fakeRenderer) visible() *notify.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	cp := *r.current
	return &cp
}

func memoryConfig() Config {
	cfg := DefaultConfig()
	cfg.API.BaseURL = "https://api.foodscan.app"
	return cfg
}

func TestNewCoreMemoryPipeline(t *testing.T) {
	ctx := context.Background()
	rr := &fakeRenderer{}
	var navigated []string

	core, err := NewCore(ctx, nil, memoryConfig(), ViewHooks{
		Renderer: rr,
		Navigate: func(id string) { navigated = append(navigated, id) },
	})
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	defer core.Close()

	if err := core.Observer.Mount(ctx); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	resultID := "9001"
	rec := jobstatus.Record{
		Key:      "ocr-9001",
		State:    jobstatus.StateCompleted,
		Message:  "analysis ready",
		ResultID: &resultID,
	}
	if err := core.Jobs.Publish(ctx, rec); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for rr.visible() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("published record never surfaced as a notification")
		}
		time.Sleep(5 * time.Millisecond)
	}

	e := rr.visible()
	if e.Kind != notify.KindSuccess || e.Action == nil {
		t.Fatalf("unexpected entry: %+v", e)
	}
	e.Action.Run()
	if len(navigated) != 1 || navigated[0] != "9001" {
		t.Fatalf("navigation callback not invoked: %v", navigated)
	}
}

func TestNewCoreSQLiteStorage(t *testing.T) {
	ctx := context.Background()

	cfg := memoryConfig()
	cfg.JobStatus.Storage = StorageSQLite
	cfg.JobStatus.SQLitePath = filepath.Join(t.TempDir(), "jobs.db")
	cfg.JobStatus.PollInterval = 20 * time.Millisecond

	core, err := NewCore(ctx, nil, cfg, ViewHooks{Renderer: &fakeRenderer{}})
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	defer core.Close()

	if err := core.Jobs.Publish(ctx, jobstatus.Record{Key: "ocr-1", State: jobstatus.StateProcessing, Message: "working"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got, err := core.Store.Get(ctx, "ocr-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != jobstatus.StateProcessing {
		t.Fatalf("stored state %q", got.State)
	}
}

func TestNewCoreSealedSession(t *testing.T) {
	ctx := context.Background()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	cfg := memoryConfig()
	cfg.Session.SnapshotPath = filepath.Join(t.TempDir(), "session.bin")
	cfg.Session.KeyHex = hex.EncodeToString(key)

	core, err := NewCore(ctx, nil, cfg, ViewHooks{Renderer: &fakeRenderer{}})
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	if err := core.Session.Login("access-1", "refresh-1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	core.Close()

	// A second core over the same snapshot rehydrates the session.
	core2, err := NewCore(ctx, nil, cfg, ViewHooks{Renderer: &fakeRenderer{}})
	if err != nil {
		t.Fatalf("NewCore (reopen): %v", err)
	}
	defer core2.Close()

	if got, ok := core2.Session.AccessCredential(); !ok || got != "access-1" {
		t.Fatalf("session not rehydrated: %q %v", got, ok)
	}
}

func TestNewCoreRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig() // missing api.base_url
	if _, err := NewCore(context.Background(), nil, cfg, ViewHooks{Renderer: &fakeRenderer{}}); err == nil {
		t.Fatalf("expected config validation failure")
	}
}
