package consumer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventLogHandler appends consumed events to workout_event_log. A record seen
// twice at the same topic position is stored once.
type EventLogHandler struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewEventLogHandler constructs a handler backed by pool.
func NewEventLogHandler(pool *pgxpool.Pool) *EventLogHandler {
	return &EventLogHandler{pool: pool, now: time.Now}
}

// Handle stores msg.
func (h *EventLogHandler) Handle(ctx context.Context, msg Message) error {
	receivedAt := msg.Timestamp
	if receivedAt.IsZero() {
		receivedAt = h.now().UTC()
	}

	_, err := h.pool.Exec(ctx, `
        INSERT INTO workout_event_log (event_type, tenant_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT ON CONSTRAINT workout_event_log_position_key DO NOTHING`,
		msg.EventType,
		msg.TenantID,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		receivedAt,
	)
	return err
}
