package syncer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/api"
	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/offline/capture"
	"example.com/fittrack/internal/offline/connectivity"
	"example.com/fittrack/internal/offline/queue"
	"example.com/fittrack/internal/offline/reconcile"
	"example.com/fittrack/internal/offline/syncer"
	"example.com/fittrack/internal/persistence/memory"
	authlib "example.com/fittrack/pkg/platform/auth"
	"example.com/fittrack/pkg/workout"
)

func TestOfflineCaptureSyncsOnceConnectivityReturns(t *testing.T) {
	ctx := context.Background()
	authCfg := auth.Config{Secret: "e2e-secret", Issuer: "fittrack.test"}

	repo := memory.NewRepository()
	mux := http.NewServeMux()
	api.NewHandler(domain.NewService(repo, 0)).RegisterRoutes(mux)
	srv := httptest.NewServer(auth.NewMiddleware(authCfg).Wrap(mux))
	defer srv.Close()

	token, err := authlib.Issue(authCfg, "athlete-1", "gym-1", []string{auth.ScopeWorkoutsWrite}, time.Hour)
	require.NoError(t, err)
	client := reconcile.NewClient(srv.URL, token, 5*time.Second, reconcile.WithHTTPClient(srv.Client()))

	store := queue.NewMemoryStore(nil)
	monitor := connectivity.NewMonitor(connectivity.Offline)
	recorder := capture.NewRecorder(store, client, monitor)

	outcome, err := recorder.Save(ctx, workout.KindTreadmill, workout.Payload{
		StartedAt:       "2025-10-27T07:00:00Z",
		DurationSeconds: 1800,
		DistanceKm:      5,
	})
	require.NoError(t, err)
	require.True(t, outcome.Queued)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	engine := syncer.New(store, client, monitor, syncer.Config{SyncInterval: time.Hour})
	completed := make(chan syncer.Result, 4)
	engine.OnComplete(func(res syncer.Result) { completed <- res })

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- engine.Run(runCtx) }()

	require.Eventually(t, func() bool {
		monitor.Set(connectivity.Offline)
		monitor.Set(connectivity.Online)
		n, err := store.Count(ctx)
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	res := <-completed
	require.Equal(t, 1, res.SyncedCount)
	require.Zero(t, res.FailedCount)

	stored := repo.ListByUser("gym-1", "athlete-1")
	require.Len(t, stored, 1)
	require.Equal(t, outcome.LocalID, stored[0].LocalID)
	require.Equal(t, 10.0, stored[0].Treadmill.AvgSpeedKmh)

	// A replay of the same queue entry is acknowledged without a second row.
	require.NoError(t, store.Put(ctx, queue.PendingRecord{
		LocalID:    outcome.LocalID,
		Kind:       workout.KindTreadmill,
		CapturedAt: time.Now().UnixMilli(),
		Payload:    workout.Payload{StartedAt: "2025-10-27T07:00:00Z", DurationSeconds: 1800, DistanceKm: 5, AvgSpeedKmh: 10},
	}))
	replay := engine.SyncNow(ctx)
	require.Equal(t, 1, replay.SyncedCount)
	require.Len(t, repo.ListByUser("gym-1", "athlete-1"), 1)
}

func TestUnauthorizedTokenLeavesQueueIntact(t *testing.T) {
	ctx := context.Background()
	authCfg := auth.Config{Secret: "e2e-secret", Issuer: "fittrack.test"}

	mux := http.NewServeMux()
	api.NewHandler(domain.NewService(memory.NewRepository(), 0)).RegisterRoutes(mux)
	srv := httptest.NewServer(auth.NewMiddleware(authCfg).Wrap(mux))
	defer srv.Close()

	client := reconcile.NewClient(srv.URL, "not-a-jwt", 5*time.Second, reconcile.WithHTTPClient(srv.Client()))
	store := queue.NewMemoryStore(nil)
	require.NoError(t, store.Put(ctx, queue.PendingRecord{
		LocalID:    "abc",
		Kind:       workout.KindTreadmill,
		CapturedAt: time.Now().UnixMilli(),
		Payload:    workout.Payload{StartedAt: "2025-10-27T07:00:00Z", DurationSeconds: 1800, DistanceKm: 5, AvgSpeedKmh: 10},
	}))

	engine := syncer.New(store, client, connectivity.NewMonitor(connectivity.Online), syncer.DefaultConfig())
	res := engine.SyncNow(ctx)

	require.Equal(t, 1, res.FailedCount)
	require.Len(t, res.Errors, 1)
	require.Equal(t, syncer.ErrorRejected, res.Errors[0].Kind)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Zero(t, all[0].RetryCount)
}
