//go:build integration

package consumer

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func TestKafkaWorkoutEventLandsInEventLog(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0",
		testcontainers.WithEnv(map[string]string{"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true"}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	const topic = "workout_events"
	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
	_ = conn.Close()

	pool := setupPostgres(t, ctx)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "event-log-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = NewProcessor(reader, NewEventLogHandler(pool)).Run(consumerCtx) }()

	writer := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, BatchTimeout: 10 * time.Millisecond}
	defer writer.Close()

	payload := []byte(`{"workout_id":"w-int","tenant_id":"gym-1","user_id":"athlete-1","local_id":"abc","kind":"treadmill"}`)
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], 7)
	copy(value[5:], payload)

	require.NoError(t, writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte("gym-1:athlete-1"),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("workout.synced")},
			{Key: "tenant_id", Value: []byte("gym-1")},
			{Key: "schema_subject", Value: []byte("workout_events-value")},
		},
	}))

	require.Eventually(t, func() bool {
		var count int
		if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM workout_event_log WHERE tenant_id = 'gym-1' AND schema_id = 7`).Scan(&count); err != nil {
			return false
		}
		return count == 1
	}, time.Minute, 500*time.Millisecond)
}
