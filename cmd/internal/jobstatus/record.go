package jobstatus

import (
	"fmt"
	"time"
)

// KeyNamespace prefixes every durable job-status key. Store implementations
// apply it internally; API-level keys stay short ("ocr-42").
const KeyNamespace = "foodscan.job."

// State is the phase of a background job.
type State string

const (
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// Record is the persisted representation of one background job's current
// phase and outcome. One concurrent job per key; every transition overwrites
// the previous record.
type Record struct {
	Key       string    `json:"key"`
	State     State     `json:"state"`
	Message   string    `json:"message"`
	ResultID  *string   `json:"result_id"`
	CreatedAt time.Time `json:"created_at"`
}

// recordEqual compares records by value. ResultID is a pointer, so the
// struct's == would compare identities and report spurious differences after
// every decode.
func recordEqual(a, b Record) bool {
	if a.Key != b.Key || a.State != b.State || a.Message != b.Message {
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	switch {
	case a.ResultID == nil && b.ResultID == nil:
		return true
	case a.ResultID == nil || b.ResultID == nil:
		return false
	default:
		return *a.ResultID == *b.ResultID
	}
}

// Terminal reports whether the record describes a finished job.
func (r Record) Terminal() bool {
	return r.State == StateCompleted || r.State == StateError
}

// Validate checks the record is well-formed before it is persisted or
// broadcast.
func (r Record) Validate() error {
	if r.Key == "" {
		return fmt.Errorf("jobstatus: %w: empty key", ErrInvalidRecord)
	}
	switch r.State {
	case StateProcessing, StateCompleted, StateError:
	default:
		return fmt.Errorf("jobstatus: %w: state %q", ErrInvalidRecord, r.State)
	}
	return nil
}
