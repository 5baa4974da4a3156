//go:build integration

package session

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/coachcontext/internal/aggregate"
	"example.com/coachcontext/internal/cache"
	"example.com/coachcontext/internal/consumer"
	"example.com/coachcontext/internal/domain"
	"example.com/coachcontext/internal/events"
	"example.com/coachcontext/internal/notify"
	"example.com/coachcontext/internal/sources/memory"
)

func TestKafkaSessionEventsDriveCache(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]

	sessionTopic := "session_events"
	contextTopic := "context_events"

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(
		kafka.TopicConfig{Topic: sessionTopic, NumPartitions: 1, ReplicationFactor: 1},
		kafka.TopicConfig{Topic: contextTopic, NumPartitions: 1, ReplicationFactor: 1},
	))

	discard := log.New(io.Discard, "", 0)
	producer := notify.NewKafkaProducer([]string{broker})
	defer producer.Close()
	publisher := notify.NewPublisher(producer, nil, contextTopic)

	agg := aggregate.New(domain.AllSourcesFrom(memory.NewRepository()), aggregate.WithLogger(discard))
	registry := cache.NewRegistry(agg, cache.WithLogger(discard), cache.WithInvalidator(publisher))
	t.Cleanup(registry.Close)
	bridge := NewBridge(registry, WithLogger(discard))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "coach-context-integration",
		Topic:       sessionTopic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	proc := consumer.NewProcessor(reader, bridge, consumer.WithLogger(discard))
	go func() {
		_ = proc.Run(consumerCtx)
	}()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  sessionTopic,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	payload, err := json.Marshal(events.SessionStarted{
		EventID:    "evt-1",
		ClientID:   "phone",
		UserID:     memory.DemoUserID,
		Profile:    &events.ProfileAttributes{Units: "imperial"},
		OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte("phone"),
		Value:   payload,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(events.TypeSessionStarted)}},
	}))

	require.Eventually(t, func() bool {
		c, ok := registry.Lookup("phone")
		return ok && c.State().Status == cache.StatusReady
	}, 30*time.Second, 200*time.Millisecond)

	c, _ := registry.Lookup("phone")
	snap := c.State().Snapshot
	require.NotNil(t, snap)
	require.Equal(t, "imperial", snap.Profile.Units)

	invalidations := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "coach-context-invalidations",
		Topic:       contextTopic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer invalidations.Close()

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := invalidations.ReadMessage(readCtx)
	require.NoError(t, err)
	require.Equal(t, memory.DemoUserID, string(msg.Key))
	require.Greater(t, len(msg.Value), 5)
	require.Equal(t, byte(0), msg.Value[0])

	var evt events.ContextInvalidated
	require.NoError(t, json.Unmarshal(msg.Value[5:], &evt))
	require.Equal(t, memory.DemoUserID, evt.UserID)

	ended, err := json.Marshal(events.SessionEnded{ClientID: "phone", UserID: memory.DemoUserID})
	require.NoError(t, err)
	require.NoError(t, writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte("phone"),
		Value:   ended,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(events.TypeSessionEnded)}},
	}))

	require.Eventually(t, func() bool {
		_, ok := registry.Lookup("phone")
		return !ok
	}, 30*time.Second, 200*time.Millisecond)
}
