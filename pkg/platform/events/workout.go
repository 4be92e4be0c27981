// Package events defines shared cross-service event payloads.
package events

import "time"

// WorkoutSynced is emitted once per workout the first time the server stores
// it. Replays of an already stored localId emit nothing.
type WorkoutSynced struct {
	WorkoutID       string    `json:"workout_id"`
	TenantID        string    `json:"tenant_id"`
	UserID          string    `json:"user_id"`
	LocalID         string    `json:"local_id"`
	Kind            string    `json:"kind"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds int       `json:"duration_seconds"`
	DistanceKm      float64   `json:"distance_km,omitempty"`
	ExerciseCount   int       `json:"exercise_count,omitempty"`
	SyncedAt        time.Time `json:"synced_at"`
}
