package domain_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/persistence/memory"
	"example.com/fittrack/pkg/workout"
)

func treadmillRecord(localID string, distance float64) workout.Record {
	return workout.Record{
		LocalID: localID,
		Kind:    workout.KindTreadmill,
		Payload: workout.Payload{
			StartedAt:       "2025-10-27T07:00:00Z",
			DurationSeconds: 1800,
			DistanceKm:      distance,
		},
	}
}

func strengthRecord(localID string) workout.Record {
	weight := 100.0
	return workout.Record{
		LocalID: localID,
		Kind:    workout.KindStrength,
		Payload: workout.Payload{
			StartedAt:       "2025-10-27T18:00:00Z",
			EndedAt:         "2025-10-27T18:45:00Z",
			DurationSeconds: 2700,
			PlanID:          "plan-1",
			Exercises: []workout.StrengthExercise{{
				ExerciseID:   "squat",
				ExerciseName: "Back squat",
				Sets:         []workout.StrengthSet{{Reps: 5, WeightKg: &weight, Completed: true}},
			}},
		},
	}
}

func TestReconcileIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	service := domain.NewService(repo, 0)

	in := domain.ReconcileInput{TenantID: "t1", UserID: "u1", Records: []workout.Record{treadmillRecord("abc", 5)}}

	first, err := service.Reconcile(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 1, first.Synced)
	require.Zero(t, first.Replayed)

	second, err := service.Reconcile(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 1, second.Synced)
	require.Equal(t, 1, second.Replayed)
	require.Empty(t, second.Errors)

	stored := repo.ListByUser("t1", "u1")
	require.Len(t, stored, 1)
	require.Equal(t, "abc", stored[0].LocalID)
	require.Equal(t, 5.0, stored[0].Treadmill.DistanceKm)
	require.Equal(t, 10.0, stored[0].Treadmill.AvgSpeedKmh)
	require.Equal(t, stored[0].StartedAt, stored[0].EndedAt)
}

func TestReconcileScopesLocalIDPerUser(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	service := domain.NewService(repo, 0)

	for _, user := range []string{"u1", "u2"} {
		res, err := service.Reconcile(ctx, domain.ReconcileInput{TenantID: "t1", UserID: user, Records: []workout.Record{treadmillRecord("same", 5)}})
		require.NoError(t, err)
		require.Equal(t, 1, res.Synced)
		require.Zero(t, res.Replayed)
	}

	require.Len(t, repo.ListByUser("t1", "u1"), 1)
	require.Len(t, repo.ListByUser("t1", "u2"), 1)
}

func TestReconcilePartialBatch(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	service := domain.NewService(repo, 0)

	res, err := service.Reconcile(ctx, domain.ReconcileInput{
		TenantID: "t1",
		UserID:   "u1",
		Records: []workout.Record{
			treadmillRecord("r1", 5),
			treadmillRecord("r2", -1),
			strengthRecord("r3"),
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Synced)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, []workout.SyncError{{LocalID: "r2", Error: "distanceKm must be > 0"}}, res.Errors)

	stored := repo.ListByUser("t1", "u1")
	require.Len(t, stored, 2)
	require.Equal(t, "r1", stored[0].LocalID)
	require.Equal(t, "r3", stored[1].LocalID)
	require.Equal(t, "plan-1", stored[1].Strength.PlanID)

	resp := res.Response()
	require.Equal(t, workout.SyncResponse{Synced: 2, Failed: 1, Errors: res.Errors}, resp)
}

func TestReconcileCountsUndecodableEntries(t *testing.T) {
	service := domain.NewService(memory.NewRepository(), 2)
	bad := []workout.SyncError{{LocalID: "x", Error: "durationSeconds has the wrong type"}}

	res, err := service.Reconcile(context.Background(), domain.ReconcileInput{
		TenantID:    "t1",
		UserID:      "u1",
		Records:     []workout.Record{treadmillRecord("r1", 5)},
		Undecodable: bad,
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Synced)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, bad, res.Errors)

	_, err = service.Reconcile(context.Background(), domain.ReconcileInput{TenantID: "t1", UserID: "u1", Undecodable: bad})
	require.NoError(t, err)

	_, err = service.Reconcile(context.Background(), domain.ReconcileInput{
		TenantID:    "t1",
		UserID:      "u1",
		Records:     []workout.Record{treadmillRecord("r2", 5), treadmillRecord("r3", 5)},
		Undecodable: bad,
	})
	require.ErrorIs(t, err, domain.ErrBatchTooLarge)
}

func TestReconcileDistinguishesMissingFromInvalid(t *testing.T) {
	service := domain.NewService(memory.NewRepository(), 0)

	missing := treadmillRecord("m", 0)
	noID := treadmillRecord("", 5)
	res, err := service.Reconcile(context.Background(), domain.ReconcileInput{
		TenantID: "t1",
		UserID:   "u1",
		Records:  []workout.Record{missing, treadmillRecord("n", -3), noID},
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Failed)
	require.Equal(t, "distanceKm is required", res.Errors[0].Error)
	require.Equal(t, "distanceKm must be > 0", res.Errors[1].Error)
	require.Equal(t, "localId is required", res.Errors[2].Error)
}

func TestReconcileBatchBounds(t *testing.T) {
	service := domain.NewService(memory.NewRepository(), 0)

	_, err := service.Reconcile(context.Background(), domain.ReconcileInput{TenantID: "t1", UserID: "u1"})
	require.ErrorIs(t, err, domain.ErrEmptyBatch)

	records := make([]workout.Record, workout.MaxBatchSize+1)
	for i := range records {
		records[i] = treadmillRecord(fmt.Sprintf("r-%d", i), 5)
	}
	_, err = service.Reconcile(context.Background(), domain.ReconcileInput{TenantID: "t1", UserID: "u1", Records: records})
	require.ErrorIs(t, err, domain.ErrBatchTooLarge)

	small := domain.NewService(memory.NewRepository(), 2)
	_, err = small.Reconcile(context.Background(), domain.ReconcileInput{TenantID: "t1", UserID: "u1", Records: records[:3]})
	require.ErrorIs(t, err, domain.ErrBatchTooLarge)
}

type racingRepo struct {
	*memory.Repository
}

// FindByLocalID never sees the row, so Create hits the unique key like a
// concurrent duplicate would.
func (racingRepo) FindByLocalID(ctx context.Context, tenantID, userID, localID string) (*domain.Workout, error) {
	return nil, nil
}

func TestReconcileTreatsUniqueConflictAsApplied(t *testing.T) {
	repo := racingRepo{memory.NewRepository()}
	service := domain.NewService(repo, 0)
	in := domain.ReconcileInput{TenantID: "t1", UserID: "u1", Records: []workout.Record{treadmillRecord("abc", 5)}}

	_, err := service.Reconcile(context.Background(), in)
	require.NoError(t, err)

	res, err := service.Reconcile(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 1, res.Synced)
	require.Equal(t, 1, res.Replayed)
}

type failingRepo struct{}

func (failingRepo) FindByLocalID(ctx context.Context, tenantID, userID, localID string) (*domain.Workout, error) {
	return nil, errors.New("connection reset")
}

func (failingRepo) Create(ctx context.Context, w domain.Workout) error { return nil }

func TestReconcileAbortsOnRepositoryFailure(t *testing.T) {
	service := domain.NewService(failingRepo{}, 0)
	_, err := service.Reconcile(context.Background(), domain.ReconcileInput{TenantID: "t1", UserID: "u1", Records: []workout.Record{treadmillRecord("abc", 5)}})
	require.Error(t, err)
	require.False(t, errors.Is(err, domain.ErrValidation))
}

func TestReconcileConcurrentDuplicatesPersistOnce(t *testing.T) {
	repo := memory.NewRepository()
	service := domain.NewService(repo, 0)
	in := domain.ReconcileInput{TenantID: "t1", UserID: "u1", Records: []workout.Record{treadmillRecord("abc", 5)}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := service.Reconcile(context.Background(), in)
			if err == nil && res.Synced != 1 {
				t.Errorf("expected synced=1 got %d", res.Synced)
			}
		}()
	}
	wg.Wait()

	require.Len(t, repo.ListByUser("t1", "u1"), 1)
}
