// Package jobstatus propagates long-running job state across execution
// contexts without a server push channel.
//
// The durable StateStore is the source of truth; the Bus is a fire-and-forget
// latency optimization so already-open contexts update without waiting for a
// storage-change event. Both delivery paths feed the same idempotent
// reconciliation in the observer, so a missed broadcast is never fatal: the
// next storage read or mount catches up.
package jobstatus
