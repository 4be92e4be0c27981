package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/observability"
	platformevents "example.com/fittrack/pkg/platform/events"
	"example.com/fittrack/pkg/workout"
)

const uniqueViolation = "23505"

// Repository provides Postgres-backed persistence for workouts and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByLocalID returns the workout stored for the caller's localId, or nil
// when there is none.
func (r *Repository) FindByLocalID(ctx context.Context, tenantID, userID, localID string) (*domain.Workout, error) {
	const query = `SELECT w.workout_id, w.tenant_id, w.user_id, w.local_id, w.kind, w.started_at, w.ended_at,
            w.duration_seconds, COALESCE(w.notes, ''), w.created_at,
            t.distance_km, t.avg_speed_kmh, t.calories_burned, s.plan_id, s.exercises
        FROM workouts w
        LEFT JOIN treadmill_data t ON t.workout_id = w.workout_id
        LEFT JOIN strength_workout_data s ON s.workout_id = w.workout_id
        WHERE w.tenant_id=$1 AND w.user_id=$2 AND w.local_id=$3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	var (
		w           domain.Workout
		kind        string
		distance    *float64
		avgSpeed    *float64
		calories    *int
		planID      *string
		exercisesJS []byte
	)
	row := tx.QueryRow(ctx, query, tenantID, userID, localID)
	if err := row.Scan(&w.ID, &w.TenantID, &w.UserID, &w.LocalID, &kind, &w.StartedAt, &w.EndedAt,
		&w.DurationSeconds, &w.Notes, &w.CreatedAt,
		&distance, &avgSpeed, &calories, &planID, &exercisesJS); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}
	w.Kind = workout.Kind(kind)

	switch w.Kind {
	case workout.KindTreadmill:
		if distance != nil && avgSpeed != nil {
			w.Treadmill = &domain.TreadmillData{DistanceKm: *distance, AvgSpeedKmh: *avgSpeed, CaloriesBurned: calories}
		}
	case workout.KindStrength:
		if exercisesJS != nil {
			data := &domain.StrengthData{}
			if err := json.Unmarshal(exercisesJS, &data.Exercises); err != nil {
				return nil, fmt.Errorf("decode exercises for %s: %w", w.ID, err)
			}
			if planID != nil {
				data.PlanID = *planID
			}
			w.Strength = data
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &w, nil
}

// Create stores the workout row, its kind-specific row and a workout.synced
// outbox event in one transaction. A second insert for the same
// (tenant, user, localId) returns domain.ErrAlreadyApplied and writes nothing.
func (r *Repository) Create(ctx context.Context, w domain.Workout) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", w.TenantID); err != nil {
		return err
	}

	const insertWorkout = `INSERT INTO workouts (workout_id, tenant_id, user_id, local_id, kind, started_at, ended_at, duration_seconds, notes, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT ON CONSTRAINT workouts_local_id_key DO NOTHING`

	tag, err := tx.Exec(ctx, insertWorkout,
		w.ID,
		w.TenantID,
		w.UserID,
		w.LocalID,
		string(w.Kind),
		w.StartedAt,
		w.EndedAt,
		w.DurationSeconds,
		nullIfEmpty(w.Notes),
		w.CreatedAt,
	)
	if err != nil {
		return mapConflict(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyApplied
	}

	if err := insertKindData(ctx, tx, w); err != nil {
		return err
	}

	if err := r.insertOutbox(ctx, tx, w, "workout.synced", syncedEvent(w)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapConflict(err)
	}
	observability.RecordWorkoutPersisted(w.CreatedAt)
	return nil
}

func insertKindData(ctx context.Context, tx pgx.Tx, w domain.Workout) error {
	switch {
	case w.Treadmill != nil:
		_, err := tx.Exec(ctx,
			`INSERT INTO treadmill_data (workout_id, tenant_id, distance_km, avg_speed_kmh, calories_burned) VALUES ($1,$2,$3,$4,$5)`,
			w.ID, w.TenantID, w.Treadmill.DistanceKm, w.Treadmill.AvgSpeedKmh, w.Treadmill.CaloriesBurned,
		)
		return err
	case w.Strength != nil:
		exercises, err := json.Marshal(w.Strength.Exercises)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO strength_workout_data (workout_id, tenant_id, plan_id, exercises) VALUES ($1,$2,$3,$4)`,
			w.ID, w.TenantID, nullIfEmpty(w.Strength.PlanID), exercises,
		)
		return err
	default:
		return fmt.Errorf("workout %s has no %s data", w.ID, w.Kind)
	}
}

func syncedEvent(w domain.Workout) platformevents.WorkoutSynced {
	event := platformevents.WorkoutSynced{
		WorkoutID:       w.ID,
		TenantID:        w.TenantID,
		UserID:          w.UserID,
		LocalID:         w.LocalID,
		Kind:            string(w.Kind),
		StartedAt:       w.StartedAt,
		DurationSeconds: w.DurationSeconds,
		SyncedAt:        w.CreatedAt,
	}
	if w.Treadmill != nil {
		event.DistanceKm = w.Treadmill.DistanceKm
	}
	if w.Strength != nil {
		event.ExerciseCount = len(w.Strength.Exercises)
	}
	return event
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, w domain.Workout, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		w.TenantID,
		"workout",
		w.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(w),
		body,
		fmt.Sprintf("%s:%s", w.ID, eventType),
	)
	return err
}

// mapConflict turns a unique violation on the workout key into
// domain.ErrAlreadyApplied; concurrent inserts can surface it at commit.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "workouts_local_id_key" {
		return domain.ErrAlreadyApplied
	}
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.Workout) string
}

var eventCatalog = map[string]EventMetadata{
	"workout.synced": {
		Topic:         "workout_events",
		SchemaSubject: "workout_events-value",
		PartitionKeyFn: func(w domain.Workout) string {
			return fmt.Sprintf("%s:%s", w.TenantID, w.UserID)
		},
	},
}
