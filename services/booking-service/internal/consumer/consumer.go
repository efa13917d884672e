package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bookingengine/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookingengine/libs/otel"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/metrics"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler applies one event inside the transaction that also records it in
// the inbox.
type Handler interface {
	Handle(ctx context.Context, tx pgx.Tx, msg kafka.Message) error
}

// Committer is implemented by handlers that need to act once their
// transaction committed, such as dropping cached state.
type Committer interface {
	Committed(ctx context.Context, msg kafka.Message)
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type TxRunner interface {
	WithinTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx pgx.Tx) error) error
}

type Inbox interface {
	Record(ctx context.Context, q inbox.Execer, eventID, eventType string) (bool, error)
}

type Consumer struct {
	reader  MessageReader
	db      TxRunner
	inbox   Inbox
	handler Handler
	logger  *slog.Logger
	retry   time.Duration
}

func New(reader MessageReader, db TxRunner, inbox Inbox, handler Handler, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:  reader,
		db:      db,
		inbox:   inbox,
		handler: handler,
		logger:  logger,
		retry:   time.Second,
	}
}

// Run consumes until ctx is done. A message is committed to Kafka only after
// it was applied or recognised as a duplicate.
func (c *Consumer) Run(ctx context.Context) {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("closing kafka reader", "err", err)
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			c.sleep(ctx)
			continue
		}

		if err := c.Process(ctx, msg); err != nil {
			metrics.IncConsumed(msg.Topic, "failed")
			c.logger.Error("event processing failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
			c.sleep(ctx)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) sleep(ctx context.Context) {
	t := time.NewTimer(c.retry)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Process records and applies one message.
func (c *Consumer) Process(ctx context.Context, msg kafka.Message) error {
	ctx = kafkax.ExtractTraceContext(ctx, msg)
	ctx, span := otelx.Tracer("booking-service/consumer").Start(ctx, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		c.logger.Warn("event without id skipped", "topic", msg.Topic, "offset", msg.Offset)
		metrics.IncConsumed(msg.Topic, "skipped")
		return nil
	}

	applied := false
	err := c.db.WithinTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		fresh, err := c.inbox.Record(ctx, tx, meta.EventID, meta.EventType)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
		if err := c.handler.Handle(ctx, tx, msg); err != nil {
			return errors.Wrapf(err, "handle %s", meta.EventType)
		}
		applied = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	if !applied {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		metrics.IncConsumed(msg.Topic, "duplicate")
		return nil
	}
	if committer, ok := c.handler.(Committer); ok {
		committer.Committed(ctx, msg)
	}
	metrics.IncConsumed(msg.Topic, "processed")
	return nil
}
