package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func headerValue(msg kafka.Message, key string) string {
	return headerCarrier{headers: &msg.Headers}.Get(key)
}

func TestNewEvent(t *testing.T) {
	type registered struct {
		Email string `json:"email"`
	}

	ev, err := NewEvent("elitereplicas.user.registered", "u-1", "user", "api-edge", registered{Email: "a@b.co"})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, 1, ev.Version)
	assert.Equal(t, "user", ev.AggregateType)
	assert.WithinDuration(t, time.Now().UTC(), ev.Timestamp, 2*time.Second)

	var got registered
	require.NoError(t, ev.UnmarshalData(&got))
	assert.Equal(t, "a@b.co", got.Email)
}

func TestNewEvent_UnserializablePayload(t *testing.T) {
	_, err := NewEvent("x", "1", "user", "api-edge", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal x payload")
}

func TestEvent_Builders(t *testing.T) {
	ev, err := NewEvent("x", "1", "user", "api-edge", nil)
	require.NoError(t, err)

	ev.WithCorrelationID("corr-1").WithMetadata("ip", "203.0.113.9")
	assert.Equal(t, "corr-1", ev.CorrelationID)
	assert.Equal(t, "203.0.113.9", ev.Metadata["ip"])
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, discardLogger())

	ev, err := NewEvent("elitereplicas.user.logged_in", "u-42", "user", "api-edge", map[string]string{"ip": "1.2.3.4"})
	require.NoError(t, err)
	ev.WithCorrelationID("corr-9")

	require.NoError(t, p.Publish(context.Background(), "elitereplicas.user.logged_in", ev))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "elitereplicas.user.logged_in", msg.Topic)
	assert.Equal(t, "u-42", string(msg.Key))
	assert.Equal(t, "elitereplicas.user.logged_in", headerValue(msg, "event_type"))
	assert.Equal(t, "api-edge", headerValue(msg, "source"))
	assert.Equal(t, "corr-9", headerValue(msg, "correlation_id"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev.EventID, decoded.EventID)

	assert.Equal(t, float64(1), testutil.ToFloat64(producerMessagesPublished.WithLabelValues("elitereplicas.user.logged_in")))
}

func TestProducer_PublishInjectsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	w := &fakeWriter{}
	p := newProducer(w, nil, discardLogger())
	ev, err := NewEvent("t", "1", "user", "api-edge", nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, "trace-topic", ev))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", headerValue(w.msgs[0], "traceparent"))
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newProducer(w, nil, discardLogger())
	ev, err := NewEvent("t", "1", "user", "api-edge", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "err-topic", ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Equal(t, float64(1), testutil.ToFloat64(producerPublishErrors.WithLabelValues("err-topic")))
}

func TestProducer_PingWithoutBrokers(t *testing.T) {
	p := newProducer(&fakeWriter{}, nil, discardLogger())
	assert.EqualError(t, p.Ping(context.Background()), "kafka: no brokers configured")
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newProducer(w, nil, discardLogger()).Close())
	assert.True(t, w.closed)
}

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "a", Value: []byte("1")}}
	c := headerCarrier{headers: &headers}

	assert.Equal(t, "1", c.Get("a"))
	assert.Empty(t, c.Get("missing"))

	c.Set("a", "2")
	c.Set("b", "3")
	assert.Equal(t, "2", c.Get("a"))
	assert.ElementsMatch(t, []string{"a", "b"}, c.Keys())
}
