package domain

import (
	"time"

	"example.com/fittrack/pkg/workout"
)

// Workout is the server-side record of a reconciled workout.
type Workout struct {
	ID              string
	TenantID        string
	UserID          string
	LocalID         string
	Kind            workout.Kind
	StartedAt       time.Time
	EndedAt         time.Time
	DurationSeconds int
	Notes           string
	Treadmill       *TreadmillData
	Strength        *StrengthData
	CreatedAt       time.Time
}

// TreadmillData holds the treadmill-specific metrics.
type TreadmillData struct {
	DistanceKm     float64
	AvgSpeedKmh    float64
	CaloriesBurned *int
}

// StrengthData holds the logged exercises of a strength session.
type StrengthData struct {
	Exercises []workout.StrengthExercise
	PlanID    string
}
