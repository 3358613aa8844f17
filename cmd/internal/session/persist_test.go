package session

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSealedPersisterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")
	key := bytes.Repeat([]byte{0x42}, 32)

	p, err := NewFilePersister(path, key)
	if err != nil {
		t.Fatalf("NewFilePersister: %v", err)
	}

	plain := []byte(`{"access_credential":"secret"}`)
	if err := p.Save(plain); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// On-disk payload must not contain the plaintext credential.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if bytes.Contains(raw, []byte("secret")) {
		t.Fatalf("sealed snapshot leaks plaintext")
	}

	got, ok, err := p.Load()
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestSealedPersisterRejectsWrongKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")

	p1, err := NewFilePersister(path, bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatalf("NewFilePersister: %v", err)
	}
	if err := p1.Save([]byte("payload")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	p2, err := NewFilePersister(path, bytes.Repeat([]byte{2}, 32))
	if err != nil {
		t.Fatalf("NewFilePersister: %v", err)
	}
	if _, _, err := p2.Load(); !errors.Is(err, ErrSealedPayload) {
		t.Fatalf("expected ErrSealedPayload, got %v", err)
	}
}

func TestPersisterRejectsBadKeySize(t *testing.T) {
	if _, err := NewFilePersister("x", []byte("short")); !errors.Is(err, ErrKeySize) {
		t.Fatalf("expected ErrKeySize, got %v", err)
	}
}

func TestDeleteMissingSnapshotIsNoop(t *testing.T) {
	p, err := NewFilePersister(filepath.Join(t.TempDir(), "none"), nil)
	if err != nil {
		t.Fatalf("NewFilePersister: %v", err)
	}
	if err := p.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
