// Package notify publishes context change notifications to Kafka.
package notify

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"example.com/coachcontext/internal/events"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(ctx context.Context, subject, schema string) (int, error)
}

// Publisher emits context.invalidated events. It satisfies cache.Invalidator.
type Publisher struct {
	producer messageWriter
	registry schemaRegistrar
	topic    string
	subject  string
	now      func() time.Time

	mu       sync.Mutex
	schemaID int
}

// NewPublisher constructs a Publisher writing to topic. registry may be nil,
// in which case payloads are framed with schema id 0.
func NewPublisher(producer messageWriter, registry schemaRegistrar, topic string) *Publisher {
	return &Publisher{
		producer: producer,
		registry: registry,
		topic:    topic,
		subject:  topic + "-value",
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Invalidate publishes a context.invalidated event for userID keyed by the
// user so events for one user stay ordered.
func (p *Publisher) Invalidate(ctx context.Context, userID string) error {
	schemaID, err := p.resolveSchemaID(ctx)
	if err != nil {
		recordPublishError(p.topic)
		return fmt.Errorf("resolve schema for %s: %w", p.subject, err)
	}

	payload, err := json.Marshal(events.ContextInvalidated{
		EventID:    uuid.NewString(),
		UserID:     userID,
		OccurredAt: p.now(),
	})
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(userID),
		Value: encodeWireFormat(schemaID, payload),
		Time:  p.now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.TypeContextInvalidated)},
			{Key: "schema_subject", Value: []byte(p.subject)},
		},
	}
	if err := p.producer.WriteMessages(ctx, p.topic, msg); err != nil {
		recordPublishError(p.topic)
		return err
	}
	recordPublished(p.topic)
	return nil
}

// resolveSchemaID caches the first successful lookup.
func (p *Publisher) resolveSchemaID(ctx context.Context) (int, error) {
	if p.registry == nil {
		return 0, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.schemaID != 0 {
		return p.schemaID, nil
	}
	id, err := p.registry.EnsureSchema(ctx, p.subject, contextInvalidatedSchema)
	if err != nil {
		return 0, err
	}
	p.schemaID = id
	return id, nil
}

// encodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
