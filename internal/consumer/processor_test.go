package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestProcessorDecodesFramedPayload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := []byte(`{"client_id":"phone","user_id":"u1"}`)
	msg := kafka.Message{
		Topic:   "session_events",
		Offset:  10,
		Key:     []byte("phone"),
		Time:    time.Now().UTC(),
		Value:   frame(42, payload),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte("session.started")}},
	}

	reader := &stubReader{messages: []kafka.Message{msg}, after: contextCanceled}
	handler := &stubHandler{}
	before := testutil.ToFloat64(processedCounter.WithLabelValues("session_events", "session.started"))

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))
	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "session.started", handler.last.EventType)
	require.Equal(t, 42, handler.last.SchemaID)
	require.Equal(t, "phone", string(handler.last.Key))
	require.Equal(t, "session.started", handler.last.Headers["event_type"])
	require.JSONEq(t, string(payload), string(handler.last.Payload))

	after := testutil.ToFloat64(processedCounter.WithLabelValues("session_events", "session.started"))
	require.InDelta(t, before+1, after, 0.0001)
}

func TestProcessorAcceptsBareJSON(t *testing.T) {
	payload := []byte(`{"client_id":"phone"}`)
	reader := &stubReader{messages: []kafka.Message{{
		Topic:   "session_events",
		Value:   payload,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte("session.ended")}},
	}}}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorCommitsUndecodableMessages(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{
		{Topic: "session_events", Offset: 1, Value: []byte(`{}`)},
		{Topic: "session_events", Offset: 2, Value: []byte{0, 1}, Headers: []kafka.Header{{Key: "event_type", Value: []byte("session.ended")}}},
	}}
	handler := &stubHandler{}
	before := testutil.ToFloat64(decodeErrorCounter.WithLabelValues("session_events"))

	err := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 0, handler.calls)
	require.Equal(t, 2, reader.commitCalls)
	after := testutil.ToFloat64(decodeErrorCounter.WithLabelValues("session_events"))
	require.InDelta(t, before+2, after, 0.0001)
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	reader := &stubReader{
		messages: []kafka.Message{{
			Topic:   "session_events",
			Offset:  20,
			Value:   frame(7, []byte(`{"client_id":"phone"}`)),
			Headers: []kafka.Header{{Key: "event_type", Value: []byte("profile.updated")}},
		}},
		after: contextCanceled,
	}
	handler := &stubHandler{err: errors.New("boom")}

	err := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func frame(schemaID int, payload []byte) []byte {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], uint32(schemaID))
	copy(value[5:], payload)
	return value
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
