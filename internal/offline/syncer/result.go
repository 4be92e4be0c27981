package syncer

import "time"

// ErrorKind classifies why a record was not confirmed.
type ErrorKind string

const (
	// ErrorValidation means the record was judged invalid, by the server or
	// locally for an unsupported kind. The record stays queued and is not
	// resent until its payload changes.
	ErrorValidation ErrorKind = "validation"
	// ErrorTransient means the batch never reached a verdict: network failure,
	// timeout, 5xx or an unreadable response. The retry count was incremented.
	ErrorTransient ErrorKind = "transient"
	// ErrorRejected means the server refused the whole request, for example
	// because the token expired. Nothing was changed locally.
	ErrorRejected ErrorKind = "rejected"
)

// RecordError reports one record that a pass sent but could not confirm.
type RecordError struct {
	LocalID string    `json:"localId"`
	Reason  string    `json:"reason"`
	Kind    ErrorKind `json:"kind"`
}

// SkipReason explains why a trigger did not run a pass.
type SkipReason string

const (
	SkipOffline      SkipReason = "offline"
	SkipInFlight     SkipReason = "in_flight"
	SkipEmpty        SkipReason = "nothing_pending"
	SkipQueueFailure SkipReason = "queue_unavailable"
)

// Result aggregates the outcome of one pass.
type Result struct {
	SyncedCount int           `json:"syncedCount"`
	FailedCount int           `json:"failedCount"`
	Errors      []RecordError `json:"errors,omitempty"`
	Skipped     SkipReason    `json:"skipped,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
}

// Ran reports whether a pass was carried out rather than skipped.
func (r Result) Ran() bool { return r.Skipped == "" }

// HasPermanentErrors reports whether any record needs attention beyond a
// retry.
func (r Result) HasPermanentErrors() bool {
	for _, e := range r.Errors {
		if e.Kind != ErrorTransient {
			return true
		}
	}
	return false
}
