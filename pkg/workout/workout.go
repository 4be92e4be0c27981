// Package workout defines the wire representation of captured workouts shared
// by the device agent and the reconciliation API.
package workout

import (
	"encoding/json"
	"errors"
	"time"
)

// MaxBatchSize caps the number of workouts accepted in a single sync request.
const MaxBatchSize = 50

// Kind discriminates the workout payload.
type Kind string

const (
	KindTreadmill Kind = "treadmill"
	KindStrength  Kind = "strength"
)

// Kinds lists the supported kinds in the order the agent syncs them.
var Kinds = []Kind{KindTreadmill, KindStrength}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindTreadmill || k == KindStrength
}

// StrengthSet is a single logged set.
type StrengthSet struct {
	Reps      int      `json:"reps"`
	WeightKg  *float64 `json:"weightKg,omitempty"`
	Completed bool     `json:"completed"`
}

// StrengthExercise groups the sets logged for one exercise.
type StrengthExercise struct {
	ExerciseID   string        `json:"exerciseId"`
	ExerciseName string        `json:"exerciseName"`
	Sets         []StrengthSet `json:"sets"`
}

// Payload is the workout data captured on the device. Treadmill fields are
// only meaningful for KindTreadmill and strength fields for KindStrength.
type Payload struct {
	StartedAt       string `json:"startedAt"`
	EndedAt         string `json:"endedAt,omitempty"`
	DurationSeconds int    `json:"durationSeconds"`
	Notes           string `json:"notes,omitempty"`

	DistanceKm     float64 `json:"distanceKm,omitempty"`
	AvgSpeedKmh    float64 `json:"avgSpeedKmh,omitempty"`
	CaloriesBurned *int    `json:"caloriesBurned,omitempty"`

	Exercises []StrengthExercise `json:"exercises,omitempty"`
	PlanID    string             `json:"planId,omitempty"`
}

// Record is one entry of a sync batch: the payload tagged with its
// client-assigned idempotency key.
type Record struct {
	LocalID string `json:"localId"`
	Kind    Kind   `json:"kind"`
	Payload
}

// UnmarshalJSON accepts "type" as an alias of "kind"; older clients send it.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var aux struct {
		plain
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Record(aux.plain)
	if r.Kind == "" {
		r.Kind = aux.Type
	}
	return nil
}

// Window parses the start and end timestamps. A missing end defaults to the start.
func (p Payload) Window() (time.Time, time.Time, error) {
	if p.StartedAt == "" {
		return time.Time{}, time.Time{}, missing("startedAt")
	}
	start, err := time.Parse(time.RFC3339, p.StartedAt)
	if err != nil {
		return time.Time{}, time.Time{}, invalid("startedAt", "must be an ISO-8601 timestamp")
	}
	if p.EndedAt == "" {
		return start.UTC(), start.UTC(), nil
	}
	end, err := time.Parse(time.RFC3339, p.EndedAt)
	if err != nil {
		return time.Time{}, time.Time{}, invalid("endedAt", "must be an ISO-8601 timestamp")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, invalid("endedAt", "must not be before startedAt")
	}
	return start.UTC(), end.UTC(), nil
}

// Normalize fills derivable fields. Treadmill records captured without an
// average speed get one computed from distance and duration.
func (r *Record) Normalize() {
	if r.Kind == KindTreadmill && r.AvgSpeedKmh == 0 && r.DistanceKm > 0 && r.DurationSeconds > 0 {
		r.AvgSpeedKmh = r.DistanceKm / (float64(r.DurationSeconds) / 3600)
	}
}

// SyncRequest is the body of POST /v1/workouts/sync.
type SyncRequest struct {
	Workouts []Record `json:"workouts"`
}

// RawSyncRequest is SyncRequest with each workout left undecoded, so a
// malformed entry can be judged on its own.
type RawSyncRequest struct {
	Workouts []json.RawMessage `json:"workouts"`
}

// DecodeRecord decodes one batch entry. A value of the wrong JSON type is
// reported as a ValidationError on the offending field; the returned record
// still carries the localId when it could be read.
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	err := json.Unmarshal(data, &rec)
	if err == nil {
		return rec, nil
	}

	var key struct {
		LocalID json.RawMessage `json:"localId"`
	}
	if json.Unmarshal(data, &key) == nil {
		_ = json.Unmarshal(key.LocalID, &rec.LocalID)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return Record{LocalID: rec.LocalID}, invalid(typeErr.Field, "has the wrong type")
	}
	return Record{LocalID: rec.LocalID}, invalid("workout", "must be a JSON object")
}

// SyncError reports a record the server refused.
type SyncError struct {
	LocalID string `json:"localId"`
	Error   string `json:"error"`
}

// SyncResponse is the 200 body of POST /v1/workouts/sync.
type SyncResponse struct {
	Synced int         `json:"synced"`
	Failed int         `json:"failed"`
	Errors []SyncError `json:"errors,omitempty"`
}
