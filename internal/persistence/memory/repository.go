// Package memory provides a process-local WorkoutRepository for development
// and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/fittrack/internal/domain"
)

type workoutKey struct {
	tenantID string
	userID   string
	localID  string
}

// Repository stores workouts in memory. It enforces the same
// (tenant, user, localId) uniqueness as the Postgres schema.
type Repository struct {
	mu       sync.RWMutex
	workouts map[workoutKey]domain.Workout
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{workouts: make(map[workoutKey]domain.Workout)}
}

// FindByLocalID implements domain.WorkoutRepository.
func (r *Repository) FindByLocalID(ctx context.Context, tenantID, userID, localID string) (*domain.Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workouts[workoutKey{tenantID, userID, localID}]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// Create implements domain.WorkoutRepository.
func (r *Repository) Create(ctx context.Context, w domain.Workout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := workoutKey{w.TenantID, w.UserID, w.LocalID}
	if _, exists := r.workouts[key]; exists {
		return domain.ErrAlreadyApplied
	}
	r.workouts[key] = w
	return nil
}

// ListByUser returns a user's workouts ordered by start time.
func (r *Repository) ListByUser(tenantID, userID string) []domain.Workout {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Workout, 0)
	for key, w := range r.workouts {
		if key.tenantID == tenantID && key.userID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].LocalID < out[j].LocalID
	})
	return out
}
