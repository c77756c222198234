package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-mango-store/internal/events"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Publisher is the part of Producer the emitter needs.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafka.Header)
}

// Emitter wraps domain events in an Envelope and hands them to the
// producer. Messages are keyed by correlation id so one order's events stay
// ordered on a partition.
type Emitter struct {
	Pub      Publisher
	Producer string
	Log      *zap.Logger
	Now      func() time.Time
}

func (e *Emitter) Emit(ctx context.Context, topic, eventType, correlationID string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		if e.Log != nil {
			e.Log.Error("event_marshal_failed", zap.String("event_type", eventType), zap.Error(err))
		}
		return
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	env := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now().UTC(),
		Producer:      e.Producer,
		CorrelationID: correlationID,
		Payload:       body,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	e.Pub.Publish(topic, PartitionKey(correlationID), MustMarshal(env),
		kafka.Header{Key: "event_type", Value: []byte(eventType)})
}

func PartitionKey(id string) []byte { return []byte(id) }
