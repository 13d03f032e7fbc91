package domain

import "context"

// Batch is the result of one consume call. Warnings collects per-delivery
// problems that did not abort the batch.
type Batch struct {
	Demands  []WorkDemand
	Warnings []error
}

// WorkQueue publishes and consumes WorkDemands over a durable, acknowledged channel.
type WorkQueue interface {
	Publish(ctx context.Context, demand WorkDemand) error
	// Consume blocks until max deliveries have been taken, the broker cancels
	// the consumer, or ctx is done.
	Consume(ctx context.Context, max int) (*Batch, error)
}
