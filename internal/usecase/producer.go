package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"work-pipeline/internal/domain"
	"work-pipeline/internal/factory"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ProducerTaskName is the scheduler registration name of the producer.
const ProducerTaskName = "producer"

// Producer publishes one random WorkDemand per invocation. A failed publish
// is logged and dropped; the next tick generates a fresh demand.
type Producer struct {
	queue  domain.WorkQueue
	logger *slog.Logger
	tracer trace.Tracer
}

func NewProducer(queue domain.WorkQueue, logger *slog.Logger) *Producer {
	return &Producer{
		queue:  queue,
		logger: logger.With("component", "producer"),
		tracer: otel.Tracer("work-pipeline-usecase"),
	}
}

func (p *Producer) Name() string { return ProducerTaskName }

func (p *Producer) Run(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "producer.Run")
	defer span.End()

	demand := factory.GenerateRandomWorkDemand()
	span.SetAttributes(attribute.Int("demand.add_up_to", demand.AddUpTo))

	if err := p.queue.Publish(ctx, demand); err != nil {
		p.logger.Error("failed to publish work demand", "add_up_to", demand.AddUpTo, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return fmt.Errorf("failed to produce work demand: %w", err)
	}

	p.logger.Info("published work demand", "add_up_to", demand.AddUpTo)
	return nil
}
