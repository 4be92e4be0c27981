package workout

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is matched by every validation failure.
var ErrInvalid = errors.New("invalid workout")

// ValidationError names the offending field. Missing and semantically invalid
// values share the ErrInvalid class but carry different reasons.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// Is lets errors.Is(err, ErrInvalid) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Validate checks the common and kind-specific required fields.
func (r Record) Validate() error {
	if strings.TrimSpace(r.LocalID) == "" {
		return missing("localId")
	}
	if r.Kind == "" {
		return missing("kind")
	}
	if !r.Kind.Valid() {
		return invalid("kind", fmt.Sprintf("must be treadmill or strength, got %q", r.Kind))
	}
	if _, _, err := r.Window(); err != nil {
		return err
	}
	if r.DurationSeconds <= 0 {
		return invalid("durationSeconds", "must be > 0")
	}

	switch r.Kind {
	case KindTreadmill:
		return r.validateTreadmill()
	default:
		return r.validateStrength()
	}
}

func (r Record) validateTreadmill() error {
	switch {
	case r.DistanceKm == 0:
		return missing("distanceKm")
	case r.DistanceKm < 0:
		return invalid("distanceKm", "must be > 0")
	case r.AvgSpeedKmh == 0:
		return missing("avgSpeedKmh")
	case r.AvgSpeedKmh < 0:
		return invalid("avgSpeedKmh", "must be > 0")
	case r.CaloriesBurned != nil && *r.CaloriesBurned < 0:
		return invalid("caloriesBurned", "must be >= 0")
	}
	return nil
}

func (r Record) validateStrength() error {
	if len(r.Exercises) == 0 {
		return missing("exercises")
	}
	for i, ex := range r.Exercises {
		field := fmt.Sprintf("exercises[%d]", i)
		if strings.TrimSpace(ex.ExerciseID) == "" {
			return missing(field + ".exerciseId")
		}
		if len(ex.Sets) == 0 {
			return missing(field + ".sets")
		}
		for j, set := range ex.Sets {
			if set.Reps < 0 {
				return invalid(fmt.Sprintf("%s.sets[%d].reps", field, j), "must be >= 0")
			}
			if set.WeightKg != nil && *set.WeightKg < 0 {
				return invalid(fmt.Sprintf("%s.sets[%d].weightKg", field, j), "must be >= 0")
			}
		}
	}
	return nil
}
