// internal/infra/amqp/queue.go
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"work-pipeline/internal/domain"
	"work-pipeline/internal/metrics"

	"github.com/google/uuid"
	amqp091 "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// prefetchCount holds back further deliveries until the current one is acked.
	prefetchCount = 1
	contentType   = "application/json"
)

// PublishError carries the queue and payload of a failed publish.
type PublishError struct {
	Queue   string
	Payload string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish %s to queue %s: %v", e.Payload, e.Queue, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Queue is the Queue Gateway. Every call opens its own connection and channel
// and closes both before returning.
type Queue struct {
	url    string
	name   string
	dial   Dialer
	logger *slog.Logger
	tracer trace.Tracer
}

// NewQueue returns a gateway for the named durable queue on the broker at url.
func NewQueue(url, name string, dial Dialer, logger *slog.Logger) *Queue {
	if dial == nil {
		dial = Dial
	}
	return &Queue{
		url:    url,
		name:   name,
		dial:   dial,
		logger: logger.With("component", "amqp-queue", "queue", name),
		tracer: otel.Tracer("work-pipeline-amqp"),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// open dials and opens a channel. The returned closer releases both.
func (q *Queue) open() (Channel, func(), error) {
	conn, err := q.dial(q.url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	closer := func() {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
			q.logger.Warn("failed to close channel", "error", err)
		}
		if err := conn.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
			q.logger.Warn("failed to close connection", "error", err)
		}
	}
	return ch, closer, nil
}

// declare makes sure the durable queue exists. Declaring is idempotent.
func (q *Queue) declare(ch Channel) error {
	if _, err := ch.QueueDeclare(q.name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
	}
	return nil
}

// DeclareQueue declares the durable, non auto-delete queue.
func (q *Queue) DeclareQueue(ctx context.Context) error {
	_, span := q.tracer.Start(ctx, "amqp.DeclareQueue")
	defer span.End()

	ch, closeAll, err := q.open()
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer closeAll()

	if err := q.declare(ch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "queue declare failed")
		return err
	}
	q.logger.Info("queue declared")
	return nil
}

// Publish serializes demand and publishes it with persistent delivery.
func (q *Queue) Publish(ctx context.Context, demand domain.WorkDemand) error {
	ctx, span := q.tracer.Start(ctx, "amqp.Publish", trace.WithAttributes(
		attribute.String("messaging.destination", q.name),
		attribute.Int("work.add_up_to", demand.AddUpTo),
	))
	defer span.End()

	body, err := json.Marshal(demand)
	if err != nil {
		metrics.DemandsPublishedTotal.WithLabelValues("failed").Inc()
		return &PublishError{Queue: q.name, Payload: fmt.Sprintf("%+v", demand), Err: err}
	}
	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		metrics.DemandsPublishedTotal.WithLabelValues("failed").Inc()
		return &PublishError{Queue: q.name, Payload: string(body), Err: err}
	}

	ch, closeAll, err := q.open()
	if err != nil {
		return fail(err)
	}
	defer closeAll()

	if err := q.declare(ch); err != nil {
		return fail(err)
	}

	msg := amqp091.Publishing{
		ContentType:  contentType,
		DeliveryMode: amqp091.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      injectTrace(ctx),
		Body:         body,
	}
	// The default exchange routes by queue name.
	if err := ch.PublishWithContext(ctx, "", q.name, false, false, msg); err != nil {
		return fail(err)
	}

	metrics.DemandsPublishedTotal.WithLabelValues("success").Inc()
	q.logger.Info("published work demand", "payload", string(body), "message_id", msg.MessageId)
	return nil
}

// Consume takes up to max deliveries with prefetch 1. Each delivery is acked
// as soon as it decodes, before the caller does anything with it: delivery is
// at-least-once and a crash after the ack loses the demand.
//
// Setup failures abort with an error. Per-delivery failures are collected in
// Batch.Warnings. Consume blocks on an empty queue until a delivery arrives,
// the broker cancels the consumer, or ctx is done.
func (q *Queue) Consume(ctx context.Context, max int) (*domain.Batch, error) {
	ctx, span := q.tracer.Start(ctx, "amqp.Consume", trace.WithAttributes(
		attribute.String("messaging.source", q.name),
		attribute.Int("consume.max", max),
	))
	defer span.End()

	if max < 1 {
		return nil, fmt.Errorf("consume max must be >= 1, got %d", max)
	}

	ch, closeAll, err := q.open()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer closeAll()

	if err := q.declare(ch); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "qos failed")
		return nil, fmt.Errorf("failed to set qos on queue %s: %w", q.name, err)
	}

	tag := "consumer-" + uuid.NewString()
	deliveries, err := ch.Consume(q.name, tag, false, false, false, false, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "consume registration failed")
		return nil, fmt.Errorf("failed to register consumer on queue %s: %w", q.name, err)
	}
	logger := q.logger.With("consumer_tag", tag)

	batch := &domain.Batch{}
	taken := 0
loop:
	for taken < max {
		select {
		case <-ctx.Done():
			logger.Info("consume interrupted", "taken", taken, "reason", ctx.Err())
			break loop
		case d, ok := <-deliveries:
			if !ok {
				logger.Info("broker cancelled the consumer", "taken", taken)
				break loop
			}
			taken++
			if sc := publisherSpan(ctx, d); sc.IsValid() {
				span.AddLink(trace.Link{SpanContext: sc})
			}
			demand, warn := q.accept(d)
			if warn != nil {
				logger.Warn("delivery not accepted cleanly", "delivery_tag", d.DeliveryTag, "error", warn)
				batch.Warnings = append(batch.Warnings, warn)
			}
			if demand != nil {
				batch.Demands = append(batch.Demands, *demand)
			}
		}
	}

	if err := ch.Cancel(tag, false); err != nil && !errors.Is(err, amqp091.ErrClosed) {
		logger.Warn("failed to cancel consumer", "error", err)
		batch.Warnings = append(batch.Warnings, fmt.Errorf("failed to cancel consumer %s: %w", tag, err))
	}

	span.SetAttributes(attribute.Int("consume.taken", len(batch.Demands)), attribute.Int("consume.warnings", len(batch.Warnings)))
	logger.Info("consumed work demands", "count", len(batch.Demands), "warnings", len(batch.Warnings))
	if err := ctx.Err(); err != nil && len(batch.Demands) == 0 {
		return batch, fmt.Errorf("consume on queue %s interrupted: %w", q.name, err)
	}
	return batch, nil
}

// accept decodes and acks one delivery. A malformed body is rejected without
// requeue so it cannot come back forever. A failed ack keeps the demand but
// reports a warning: the broker will redeliver it.
func (q *Queue) accept(d amqp091.Delivery) (*domain.WorkDemand, error) {
	var demand domain.WorkDemand
	if err := json.Unmarshal(d.Body, &demand); err != nil {
		metrics.DeliveriesTotal.WithLabelValues("malformed").Inc()
		if rerr := d.Reject(false); rerr != nil {
			return nil, fmt.Errorf("failed to decode delivery %q: %w (reject failed: %v)", d.Body, err, rerr)
		}
		return nil, fmt.Errorf("failed to decode delivery %q: %w", d.Body, err)
	}
	if err := demand.Validate(); err != nil {
		metrics.DeliveriesTotal.WithLabelValues("malformed").Inc()
		_ = d.Reject(false)
		return nil, fmt.Errorf("invalid delivery %q: %w", d.Body, err)
	}
	if err := d.Ack(false); err != nil {
		metrics.DeliveriesTotal.WithLabelValues("ack_failed").Inc()
		return &demand, fmt.Errorf("failed to ack delivery %d: %w", d.DeliveryTag, err)
	}
	metrics.DeliveriesTotal.WithLabelValues("acked").Inc()
	return &demand, nil
}
