package outbox

const workoutSyncedSchema = `{
  "type": "object",
  "title": "WorkoutSynced",
  "properties": {
    "workout_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "local_id": {"type": "string"},
    "kind": {"type": "string", "enum": ["treadmill", "strength"]},
    "started_at": {"type": "string", "format": "date-time"},
    "duration_seconds": {"type": "integer", "minimum": 1},
    "distance_km": {"type": "number"},
    "exercise_count": {"type": "integer"},
    "synced_at": {"type": "string", "format": "date-time"}
  },
  "required": ["workout_id", "tenant_id", "user_id", "local_id", "kind", "started_at", "duration_seconds", "synced_at"],
  "additionalProperties": false
}`

// schemaCatalog maps an outbox event type to its registered JSON schema.
var schemaCatalog = map[string]string{
	"workout.synced": workoutSyncedSchema,
}
