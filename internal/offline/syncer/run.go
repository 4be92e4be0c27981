package syncer

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"example.com/fittrack/internal/offline/connectivity"
)

// Run drives passes from the online transition and the periodic timer, and
// sweeps expired records on start and every SweepInterval. It blocks until ctx
// is cancelled, lets any pass in flight finish, and returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	passCtx := context.WithoutCancel(ctx)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		closed bool
	)
	trigger := func(source string) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := e.SyncNow(passCtx)
			if res.Skipped == SkipInFlight {
				e.logger.WithField("trigger", source).Debug("sync pass already in flight")
			}
		}()
	}

	unsubscribe := e.conn.Subscribe(func(state connectivity.State) {
		if state == connectivity.Online {
			trigger("online")
		}
	})
	defer func() {
		unsubscribe()
		mu.Lock()
		closed = true
		mu.Unlock()
		wg.Wait()
	}()

	e.sweep(ctx)

	syncTicker := time.NewTicker(e.cfg.SyncInterval)
	defer syncTicker.Stop()
	sweepTicker := time.NewTicker(e.cfg.SweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-syncTicker.C:
			if e.conn.Current() != connectivity.Online {
				continue
			}
			count, err := e.store.Count(ctx)
			if err != nil {
				e.logger.WithError(err).Warn("count offline queue")
				continue
			}
			if count > 0 {
				trigger("timer")
			}
		case <-sweepTicker.C:
			e.sweep(ctx)
		}
	}
}

// Sweep evicts records older than the retention window and returns how many
// were removed.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	removed, err := e.store.DeleteOlderThan(ctx, e.cfg.Retention)
	if err != nil {
		return 0, err
	}
	e.metrics.swept.Add(float64(removed))
	return removed, nil
}

func (e *Engine) sweep(ctx context.Context) {
	removed, err := e.Sweep(ctx)
	if err != nil {
		e.logger.WithError(err).Error("retention sweep failed")
		return
	}
	if removed > 0 {
		e.logger.WithFields(log.Fields{
			"removed":   removed,
			"retention": e.cfg.Retention,
		}).Info("expired offline workouts removed")
	}
}
