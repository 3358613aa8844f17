package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

// FilePersister stores the session snapshot in a single file.
//
// When a 32-byte key is supplied the snapshot is sealed with
// XChaCha20-Poly1305 so credentials are never written to disk in plaintext.
// With a nil key the snapshot is stored as-is, which is only acceptable for
// development setups.
type FilePersister struct {
	path string
	key  []byte
}

// NewFilePersister constructs a FilePersister. key must be nil or exactly
// 32 bytes.
func NewFilePersister(path string, key []byte) (*FilePersister, error) {
	if key != nil && len(key) != chacha20poly1305.KeySize {
		return nil, ErrKeySize
	}
	return &FilePersister{path: path, key: key}, nil
}

// Save writes the snapshot, sealing it first when a key is configured.
// The write goes through a temp file + rename so a crash mid-write never
// leaves a truncated snapshot behind.
func (p *FilePersister) Save(data []byte) error {
	payload := data
	if p.key != nil {
		sealed, err := p.seal(data)
		if err != nil {
			return err
		}
		payload = sealed
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("session: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("session: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("session: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("session: close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("session: rename snapshot: %w", err)
	}
	return nil
}

// Load reads and, when a key is configured, opens the sealed snapshot.
func (p *FilePersister) Load() ([]byte, bool, error) {
	payload, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("session: read snapshot: %w", err)
	}
	if p.key == nil {
		return payload, true, nil
	}
	data, err := p.open(payload)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Delete removes the snapshot. Missing snapshot is a no-op.
func (p *FilePersister) Delete() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session: delete snapshot: %w", err)
	}
	return nil
}

func (p *FilePersister) seal(data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(p.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	// Nonce is prepended to the ciphertext.
	return aead.Seal(nonce, nonce, data, nil), nil
}

func (p *FilePersister) open(payload []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(p.key)
	if err != nil {
		return nil, err
	}
	if len(payload) < aead.NonceSize() {
		return nil, ErrSealedPayload
	}
	nonce, box := payload[:aead.NonceSize()], payload[aead.NonceSize():]
	data, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return nil, ErrSealedPayload
	}
	return data, nil
}
