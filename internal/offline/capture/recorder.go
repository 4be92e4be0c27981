// Package capture saves a freshly recorded workout, sending it straight to the
// server when possible and falling back to the offline queue otherwise.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"example.com/fittrack/internal/offline/connectivity"
	"example.com/fittrack/internal/offline/queue"
	"example.com/fittrack/internal/offline/reconcile"
	"example.com/fittrack/pkg/workout"
)

// ErrNotSaved means the workout could neither be sent nor stored offline. The
// user has to be told; nothing durable exists to retry from.
var ErrNotSaved = errors.New("workout could not be saved")

// Sender is the reconciliation endpoint as seen by capture.
type Sender interface {
	Sync(ctx context.Context, records []workout.Record) (*workout.SyncResponse, error)
}

// Outcome describes where a saved workout ended up.
type Outcome struct {
	LocalID string
	// Synced is true when the server confirmed the workout directly.
	Synced bool
	// Queued is true when the workout waits in the offline queue.
	Queued bool
}

// Recorder implements direct-send-or-queue.
type Recorder struct {
	store  queue.Store
	sender Sender
	conn   interface{ Current() connectivity.State }
	now    func() time.Time
	newID  func() string
	logger *log.Entry
}

// NewRecorder constructs a Recorder.
func NewRecorder(store queue.Store, sender Sender, conn interface{ Current() connectivity.State }) *Recorder {
	return &Recorder{
		store:  store,
		sender: sender,
		conn:   conn,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		logger: log.WithField("component", "capture"),
	}
}

// Save validates the workout locally, assigns its idempotency key and either
// sends it or queues it. A validation error is returned as is; the workout is
// not stored.
func (r *Recorder) Save(ctx context.Context, kind workout.Kind, payload workout.Payload) (Outcome, error) {
	rec := workout.Record{LocalID: r.newID(), Kind: kind, Payload: payload}
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return Outcome{}, err
	}

	logger := r.logger.WithFields(log.Fields{"local_id": rec.LocalID, "kind": kind})

	if r.conn.Current() == connectivity.Online {
		resp, err := r.sender.Sync(ctx, []workout.Record{rec})
		switch {
		case err == nil && len(resp.Errors) == 0:
			return Outcome{LocalID: rec.LocalID, Synced: true}, nil
		case err == nil:
			// Server refused it; keep it offline so the sync engine surfaces
			// the failure instead of dropping the workout.
			logger.WithField("reason", resp.Errors[0].Error).Warn("server rejected workout, queueing")
		default:
			logger.WithError(err).Info("direct send failed, queueing")
		}
	}

	pending := queue.PendingRecord{
		LocalID:    rec.LocalID,
		Kind:       rec.Kind,
		Payload:    rec.Payload,
		CapturedAt: r.now().UnixMilli(),
	}
	if err := r.store.Put(ctx, pending); err != nil {
		logger.WithError(err).Error("offline save failed")
		return Outcome{LocalID: rec.LocalID}, fmt.Errorf("%w: %w", ErrNotSaved, err)
	}
	return Outcome{LocalID: rec.LocalID, Queued: true}, nil
}

var _ Sender = (*reconcile.Client)(nil)
