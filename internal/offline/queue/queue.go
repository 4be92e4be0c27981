// Package queue persists workouts captured on the device until the server
// confirms them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"example.com/fittrack/pkg/workout"
)

// DefaultRetention is how long an unconfirmed record is kept before the sweep evicts it.
const DefaultRetention = 7 * 24 * time.Hour

// ErrStorage wraps every failure of the underlying durable store.
var ErrStorage = errors.New("offline queue storage failure")

// PendingRecord is a workout awaiting confirmation by the server.
type PendingRecord struct {
	LocalID    string
	Kind       workout.Kind
	Payload    workout.Payload
	CapturedAt int64 // epoch milliseconds
	RetryCount int
}

// Record converts the pending entry to its wire form.
func (p PendingRecord) Record() workout.Record {
	return workout.Record{LocalID: p.LocalID, Kind: p.Kind, Payload: p.Payload}
}

// Store is the durable queue contract shared by the sync engine and capture.
type Store interface {
	// Put inserts or overwrites the record keyed by LocalID.
	Put(ctx context.Context, rec PendingRecord) error
	// GetAll re-reads every record, oldest capture first.
	GetAll(ctx context.Context) ([]PendingRecord, error)
	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, localID string) error
	// IncrementRetryCount bumps RetryCount by one; absent records are ignored.
	IncrementRetryCount(ctx context.Context, localID string) error
	Count(ctx context.Context) (int, error)
	// DeleteOlderThan evicts records captured strictly before now-age and
	// returns how many were removed.
	DeleteOlderThan(ctx context.Context, age time.Duration) (int, error)
	Clear(ctx context.Context) error
}

// Clock returns the current time; overridable in tests.
type Clock func() time.Time

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func sortByCapture(records []PendingRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CapturedAt != records[j].CapturedAt {
			return records[i].CapturedAt < records[j].CapturedAt
		}
		return records[i].LocalID < records[j].LocalID
	})
}
