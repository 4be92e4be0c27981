package capture

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/offline/connectivity"
	"example.com/fittrack/internal/offline/queue"
	"example.com/fittrack/internal/offline/reconcile"
	"example.com/fittrack/pkg/workout"
)

type stubSender struct {
	calls int
	resp  *workout.SyncResponse
	err   error
}

func (s *stubSender) Sync(ctx context.Context, records []workout.Record) (*workout.SyncResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.resp != nil {
		return s.resp, nil
	}
	return &workout.SyncResponse{Synced: len(records)}, nil
}

type failingStore struct {
	queue.Store
}

func (failingStore) Put(ctx context.Context, rec queue.PendingRecord) error {
	return fmt.Errorf("%w: put: disk full", queue.ErrStorage)
}

func treadmillPayload() workout.Payload {
	return workout.Payload{
		StartedAt:       "2025-10-27T07:00:00Z",
		DurationSeconds: 1800,
		DistanceKm:      5,
	}
}

func newTestRecorder(store queue.Store, sender Sender, state connectivity.State) *Recorder {
	r := NewRecorder(store, sender, connectivity.NewMonitor(state))
	r.newID = func() string { return "abc" }
	r.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return r
}

func TestSaveSendsDirectlyWhenOnline(t *testing.T) {
	store := queue.NewMemoryStore(nil)
	sender := &stubSender{}

	out, err := newTestRecorder(store, sender, connectivity.Online).Save(context.Background(), workout.KindTreadmill, treadmillPayload())
	require.NoError(t, err)
	require.Equal(t, Outcome{LocalID: "abc", Synced: true}, out)
	require.Equal(t, 1, sender.calls)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSaveQueuesWhenOffline(t *testing.T) {
	ctx := context.Background()
	store := queue.NewMemoryStore(nil)
	sender := &stubSender{}

	out, err := newTestRecorder(store, sender, connectivity.Offline).Save(ctx, workout.KindTreadmill, treadmillPayload())
	require.NoError(t, err)
	require.Equal(t, Outcome{LocalID: "abc", Queued: true}, out)
	require.Zero(t, sender.calls)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "abc", all[0].LocalID)
	require.Equal(t, int64(1_700_000_000_000), all[0].CapturedAt)
	require.Equal(t, 10.0, all[0].Payload.AvgSpeedKmh)
}

func TestSaveQueuesAfterFailedSend(t *testing.T) {
	cases := map[string]*stubSender{
		"transient": {err: reconcile.ErrTransient},
		"rejected":  {err: &reconcile.RejectedError{Status: 401}},
		"refused": {resp: &workout.SyncResponse{
			Failed: 1,
			Errors: []workout.SyncError{{LocalID: "abc", Error: "startedAt is invalid"}},
		}},
	}

	for name, sender := range cases {
		t.Run(name, func(t *testing.T) {
			store := queue.NewMemoryStore(nil)
			out, err := newTestRecorder(store, sender, connectivity.Online).Save(context.Background(), workout.KindTreadmill, treadmillPayload())
			require.NoError(t, err)
			require.True(t, out.Queued)
			require.False(t, out.Synced)

			count, err := store.Count(context.Background())
			require.NoError(t, err)
			require.Equal(t, 1, count)
		})
	}
}

func TestSaveSurfacesStorageFailure(t *testing.T) {
	_, err := newTestRecorder(failingStore{}, &stubSender{}, connectivity.Offline).Save(context.Background(), workout.KindTreadmill, treadmillPayload())
	require.ErrorIs(t, err, ErrNotSaved)
	require.ErrorIs(t, err, queue.ErrStorage)
}

func TestSaveRejectsInvalidWorkout(t *testing.T) {
	store := queue.NewMemoryStore(nil)
	sender := &stubSender{}

	payload := treadmillPayload()
	payload.DistanceKm = 0
	_, err := newTestRecorder(store, sender, connectivity.Offline).Save(context.Background(), workout.KindTreadmill, payload)
	require.ErrorIs(t, err, workout.ErrInvalid)
	require.False(t, errors.Is(err, ErrNotSaved))
	require.Zero(t, sender.calls)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}
