package session

import "errors"

var (
	// ErrSealedPayload is returned when a persisted snapshot cannot be
	// decrypted with the configured key.
	ErrSealedPayload = errors.New("session: cannot open sealed payload")

	// ErrKeySize is returned when the configured encryption key has the
	// wrong length.
	ErrKeySize = errors.New("session: encryption key must be 32 bytes")
)
