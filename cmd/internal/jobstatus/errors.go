package jobstatus

import "errors"

var (
	// ErrNotFound is returned by StateStore.Get when no record exists for
	// the key.
	ErrNotFound = errors.New("job status record not found")

	// ErrInvalidRecord is returned when a record fails validation.
	ErrInvalidRecord = errors.New("invalid job status record")

	// ErrBusClosed is returned when publishing on a closed bus.
	ErrBusClosed = errors.New("status bus closed")
)
