// Package domain reconciles workouts captured offline with the server record.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/fittrack/pkg/workout"
)

var (
	// ErrValidation matches every per-record validation failure.
	ErrValidation = workout.ErrInvalid
	// ErrEmptyBatch is returned when a request carries no workouts.
	ErrEmptyBatch = errors.New("workouts must contain at least one record")
	// ErrBatchTooLarge is returned when a request exceeds the batch cap.
	ErrBatchTooLarge = errors.New("too many workouts in one request")
	// ErrAlreadyApplied is returned by WorkoutRepository.Create when the
	// (tenant, user, localId) key already exists.
	ErrAlreadyApplied = errors.New("workout already recorded for local id")
)

// WorkoutRepository captures persistence operations.
type WorkoutRepository interface {
	// FindByLocalID returns nil, nil when no workout exists for the key.
	FindByLocalID(ctx context.Context, tenantID, userID, localID string) (*Workout, error)
	// Create stores the workout, its kind-specific data and its synced event
	// atomically.
	Create(ctx context.Context, w Workout) error
}

// Service orchestrates workout reconciliation.
type Service struct {
	repo         WorkoutRepository
	maxBatchSize int
	now          func() time.Time
}

// NewService constructs a Service. maxBatchSize is capped at
// workout.MaxBatchSize.
func NewService(repo WorkoutRepository, maxBatchSize int) *Service {
	if maxBatchSize <= 0 || maxBatchSize > workout.MaxBatchSize {
		maxBatchSize = workout.MaxBatchSize
	}
	return &Service{repo: repo, maxBatchSize: maxBatchSize, now: time.Now}
}

// ReconcileInput is one sync request from an authenticated caller.
type ReconcileInput struct {
	TenantID string
	UserID   string
	Records  []workout.Record
	// Undecodable lists batch entries that could not be decoded. They count
	// towards the batch size and are reported as failed.
	Undecodable []workout.SyncError
}

// ReconcileResult reports the per-record outcome of a batch.
type ReconcileResult struct {
	Synced int
	Failed int
	// Replayed counts records that were already stored; they are included in
	// Synced.
	Replayed int
	Errors   []workout.SyncError
}

// Response converts the result to the wire shape.
func (r ReconcileResult) Response() workout.SyncResponse {
	return workout.SyncResponse{Synced: r.Synced, Failed: r.Failed, Errors: r.Errors}
}

// Reconcile applies a batch. Each record is judged on its own: existing keys
// count as synced, invalid records are listed in Errors, new ones are stored.
// A repository failure aborts the whole batch so the caller retries it.
func (s *Service) Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileResult, error) {
	size := len(in.Records) + len(in.Undecodable)
	if size == 0 {
		return nil, ErrEmptyBatch
	}
	if size > s.maxBatchSize {
		return nil, fmt.Errorf("%w: %d records, at most %d allowed", ErrBatchTooLarge, size, s.maxBatchSize)
	}

	result := &ReconcileResult{
		Failed: len(in.Undecodable),
		Errors: append([]workout.SyncError(nil), in.Undecodable...),
	}
	for _, rec := range in.Records {
		replayed, err := s.reconcileOne(ctx, in.TenantID, in.UserID, rec)
		switch {
		case errors.Is(err, ErrValidation):
			result.Failed++
			result.Errors = append(result.Errors, workout.SyncError{LocalID: rec.LocalID, Error: err.Error()})
		case err != nil:
			return nil, fmt.Errorf("reconcile %s: %w", rec.LocalID, err)
		default:
			result.Synced++
			if replayed {
				result.Replayed++
			}
		}
	}
	return result, nil
}

func (s *Service) reconcileOne(ctx context.Context, tenantID, userID string, rec workout.Record) (bool, error) {
	if strings.TrimSpace(rec.LocalID) == "" {
		return false, rec.Validate()
	}

	existing, err := s.repo.FindByLocalID(ctx, tenantID, userID, rec.LocalID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return true, nil
	}

	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return false, err
	}

	w := newWorkout(tenantID, userID, rec, s.now().UTC())
	if err := s.repo.Create(ctx, w); err != nil {
		if errors.Is(err, ErrAlreadyApplied) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// newWorkout builds the aggregate from a validated record.
func newWorkout(tenantID, userID string, rec workout.Record, now time.Time) Workout {
	start, end, _ := rec.Window()
	w := Workout{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		UserID:          userID,
		LocalID:         rec.LocalID,
		Kind:            rec.Kind,
		StartedAt:       start,
		EndedAt:         end,
		DurationSeconds: rec.DurationSeconds,
		Notes:           rec.Notes,
		CreatedAt:       now,
	}
	switch rec.Kind {
	case workout.KindTreadmill:
		w.Treadmill = &TreadmillData{
			DistanceKm:     rec.DistanceKm,
			AvgSpeedKmh:    rec.AvgSpeedKmh,
			CaloriesBurned: rec.CaloriesBurned,
		}
	case workout.KindStrength:
		w.Strength = &StrengthData{Exercises: rec.Exercises, PlanID: rec.PlanID}
	}
	return w
}
