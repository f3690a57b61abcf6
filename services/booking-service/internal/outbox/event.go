package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
)

// Event is the envelope written to the outbox in the same transaction as the state change.
// The Kafka topic equals EventType.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
}

// Record is a stored event awaiting publication.
type Record struct {
	ID int64
	Event
	CreatedAt time.Time
}

// NewEvent marshals payload and captures the caller's trace context so the consumer span links back.
func NewEvent(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	tp, ts := otelx.TraceContextStrings(ctx)
	return Event{
		EventID:       uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		Traceparent:   tp,
		Tracestate:    ts,
	}, nil
}
