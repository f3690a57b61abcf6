package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrMalformed marks messages that can never be applied. They are committed without retry.
var ErrMalformed = errors.New("malformed event")

type Handler func(ctx context.Context, meta kafkax.EventMeta, msg kafka.Message) error

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader     MessageReader
	logger     *slog.Logger
	handler    Handler
	retries    int
	retryDelay time.Duration
}

func New(reader MessageReader, logger *slog.Logger, handler Handler) *Consumer {
	return &Consumer{reader: reader, logger: logger, handler: handler, retries: 3, retryDelay: time.Second}
}

// Run commits each message after it is handled. Transient failures are retried a few times
// before the message is skipped so one bad event cannot stall the partition.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch failed", "err", err)
			if !sleep(ctx, c.retryDelay) {
				return
			}
			continue
		}

		c.process(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	for attempt := 1; ; attempt++ {
		err := c.Handle(ctx, msg)
		if err == nil {
			return
		}
		meta := kafkax.Meta(msg)
		if errors.Is(err, ErrMalformed) || attempt >= c.retries || ctx.Err() != nil {
			c.logger.Error("event dropped", "err", err, "event_id", meta.EventID, "event_type", meta.EventType, "attempts", attempt)
			return
		}
		c.logger.Warn("event handling failed, retrying", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if !sleep(ctx, c.retryDelay) {
			return
		}
	}
}

// Handle runs the handler for one message inside a consumer span linked to the producer's trace.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.Meta(msg)
	ctx, span := otel.Tracer("kafka").Start(kafkax.ExtractTraceContext(ctx, msg), "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.message_id", meta.EventID),
		),
	)
	defer span.End()

	if err := c.handler(ctx, meta, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
