// Package syncer drains the offline queue into the reconciliation endpoint.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"example.com/fittrack/internal/offline/connectivity"
	"example.com/fittrack/internal/offline/queue"
	"example.com/fittrack/internal/offline/reconcile"
	"example.com/fittrack/pkg/workout"
)

// Endpoint submits one batch to the server. Errors matching
// reconcile.ErrRejected leave records untouched; every other error is treated
// as transient.
type Endpoint interface {
	Sync(ctx context.Context, records []workout.Record) (*workout.SyncResponse, error)
}

// Connectivity is the slice of connectivity.Monitor the engine depends on.
type Connectivity interface {
	Current() connectivity.State
	Subscribe(fn func(connectivity.State)) (unsubscribe func())
}

// Config controls pass cadence and sizing.
type Config struct {
	SyncInterval  time.Duration
	MaxBatchSize  int
	Retention     time.Duration
	SweepInterval time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SyncInterval:  30 * time.Second,
		MaxBatchSize:  workout.MaxBatchSize,
		Retention:     queue.DefaultRetention,
		SweepInterval: time.Hour,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SyncInterval <= 0 {
		c.SyncInterval = def.SyncInterval
	}
	if c.MaxBatchSize <= 0 || c.MaxBatchSize > workout.MaxBatchSize {
		c.MaxBatchSize = def.MaxBatchSize
	}
	if c.Retention <= 0 {
		c.Retention = def.Retention
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	return c
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger replaces the default component logger.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRegisterer registers the engine's collectors on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.registerer = reg }
}

// WithClock overrides time.Now for pass timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.now = clock }
}

// Engine runs sync passes. At most one pass is in flight at any time.
type Engine struct {
	store    queue.Store
	endpoint Endpoint
	conn     Connectivity
	cfg      Config

	logger     *log.Entry
	registerer prometheus.Registerer
	metrics    *metrics
	now        func() time.Time

	running    atomic.Bool
	batchLimit atomic.Int64
	quarantine *quarantine

	mu        sync.Mutex
	listeners []func(Result)
}

// New constructs an Engine. Zero Config fields take their defaults.
func New(store queue.Store, endpoint Endpoint, conn Connectivity, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		endpoint:   endpoint,
		conn:       conn,
		cfg:        cfg.withDefaults(),
		logger:     log.WithField("component", "syncer"),
		metrics:    newMetrics(),
		now:        time.Now,
		quarantine: newQuarantine(),
	}
	e.batchLimit.Store(int64(e.cfg.MaxBatchSize))
	for _, opt := range opts {
		opt(e)
	}
	if e.registerer != nil {
		e.metrics.register(e.registerer)
	}
	return e
}

// OnComplete registers fn to receive the result of every pass that ran or
// failed to read the queue.
func (e *Engine) OnComplete(fn func(Result)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// PendingCount reports how many records are waiting in the queue.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.store.Count(ctx)
}

// Rejected lists queued records held back after a validation failure.
func (e *Engine) Rejected() []Quarantined {
	return e.quarantine.list()
}

// SyncNow runs a pass unless the device is offline or a pass is already in
// flight, in which case the returned Result says why it was skipped.
func (e *Engine) SyncNow(ctx context.Context) Result {
	if e.conn.Current() == connectivity.Offline {
		return e.skip(SkipOffline)
	}
	if !e.running.CompareAndSwap(false, true) {
		return e.skip(SkipInFlight)
	}
	defer e.running.Store(false)

	res := e.pass(ctx)
	e.metrics.observe(res)
	if count, err := e.store.Count(ctx); err == nil {
		e.metrics.pending.Set(float64(count))
	}
	if res.Ran() || res.Skipped == SkipQueueFailure {
		e.notify(res)
	}
	return res
}

func (e *Engine) skip(reason SkipReason) Result {
	res := Result{Skipped: reason, StartedAt: e.now()}
	e.metrics.observe(res)
	return res
}

func (e *Engine) notify(res Result) {
	e.mu.Lock()
	listeners := make([]func(Result), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(res)
	}
}

func (e *Engine) pass(ctx context.Context) Result {
	res := Result{StartedAt: e.now()}

	pending, err := e.store.GetAll(ctx)
	if err != nil {
		e.logger.WithError(err).Error("read offline queue")
		res.Skipped = SkipQueueFailure
		res.Error = err.Error()
		return res
	}
	pending = e.quarantine.filter(pending)
	if len(pending) == 0 {
		res.Skipped = SkipEmpty
		return res
	}

	partitions := make(map[workout.Kind][]queue.PendingRecord, len(workout.Kinds))
	for _, rec := range pending {
		if !rec.Kind.Valid() {
			reason := fmt.Sprintf("kind %q is not supported", rec.Kind)
			e.quarantine.hold(rec, reason)
			res.Errors = append(res.Errors, RecordError{LocalID: rec.LocalID, Reason: reason, Kind: ErrorValidation})
			continue
		}
		partitions[rec.Kind] = append(partitions[rec.Kind], rec)
	}
	res.FailedCount = len(res.Errors)

	outcomes := make([]partitionOutcome, len(workout.Kinds))
	var g errgroup.Group
	for i, kind := range workout.Kinds {
		i, kind := i, kind
		records := partitions[kind]
		if len(records) == 0 {
			continue
		}
		g.Go(func() error {
			outcomes[i] = e.syncPartition(ctx, kind, records)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		res.SyncedCount += out.synced
		res.FailedCount += len(out.errors)
		res.Errors = append(res.Errors, out.errors...)
	}
	res.Duration = e.now().Sub(res.StartedAt)

	e.logger.WithFields(log.Fields{
		"synced": res.SyncedCount,
		"failed": res.FailedCount,
	}).Info("sync pass complete")
	return res
}

type partitionOutcome struct {
	synced int
	errors []RecordError
}

// syncPartition sends one kind's records in order, chunk by chunk. A chunk
// that gets no verdict ends the partition; the remaining chunks wait for the
// next pass untouched. A chunk refused for its size is resent at half the
// size, and the smaller limit sticks for later chunks and passes.
func (e *Engine) syncPartition(ctx context.Context, kind workout.Kind, records []queue.PendingRecord) partitionOutcome {
	var out partitionOutcome
	logger := e.logger.WithField("kind", kind)

	for start := 0; start < len(records); {
		end := min(start+int(e.batchLimit.Load()), len(records))
		chunk := records[start:end]

		batch := make([]workout.Record, len(chunk))
		for i, rec := range chunk {
			batch[i] = rec.Record()
		}

		resp, err := e.endpoint.Sync(ctx, batch)
		if err != nil && len(chunk) > 1 && batchTooLarge(err) {
			limit := e.shrinkBatch(len(chunk))
			logger.WithError(err).WithField("batch_size", limit).Warn("batch too large, shrinking")
			continue
		}
		if err != nil {
			class := ErrorTransient
			if errors.Is(err, reconcile.ErrRejected) {
				class = ErrorRejected
			}
			logger.WithError(err).WithFields(log.Fields{
				"records":    len(chunk),
				"error_kind": class,
			}).Warn("sync batch failed")

			for _, rec := range chunk {
				if class == ErrorTransient {
					if incErr := e.store.IncrementRetryCount(ctx, rec.LocalID); incErr != nil {
						logger.WithError(incErr).WithField("local_id", rec.LocalID).Error("increment retry count")
					}
				}
				out.errors = append(out.errors, RecordError{LocalID: rec.LocalID, Reason: err.Error(), Kind: class})
			}
			return out
		}

		refused := make(map[string]string, len(resp.Errors))
		for _, se := range resp.Errors {
			refused[se.LocalID] = se.Error
		}
		for _, rec := range chunk {
			if reason, bad := refused[rec.LocalID]; bad {
				e.quarantine.hold(rec, reason)
				out.errors = append(out.errors, RecordError{LocalID: rec.LocalID, Reason: reason, Kind: ErrorValidation})
				continue
			}
			// The server holds the record now; a failed delete only means it
			// is resent and absorbed as already applied.
			if delErr := e.store.Delete(ctx, rec.LocalID); delErr != nil {
				logger.WithError(delErr).WithField("local_id", rec.LocalID).Error("delete confirmed record")
			}
			out.synced++
		}
		start = end
	}
	return out
}

// shrinkBatch lowers the batch limit to half of refused and returns the
// resulting limit. Concurrent partitions only ever lower it.
func (e *Engine) shrinkBatch(refused int) int {
	next := int64(max(refused/2, 1))
	for {
		cur := e.batchLimit.Load()
		if cur <= next {
			return int(cur)
		}
		if e.batchLimit.CompareAndSwap(cur, next) {
			return int(next)
		}
	}
}

func batchTooLarge(err error) bool {
	var rejected *reconcile.RejectedError
	if !errors.As(err, &rejected) {
		return false
	}
	return rejected.Type == "batch_too_large" || rejected.Status == http.StatusRequestEntityTooLarge
}
