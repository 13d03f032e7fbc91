package amqp

import (
	"context"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// headerCarrier lets the text map propagator read and write message headers.
type headerCarrier amqp091.Table

func (c headerCarrier) Get(key string) string {
	v, _ := c[key].(string)
	return v
}

func (c headerCarrier) Set(key, value string) {
	c[key] = value
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// injectTrace writes the trace context of ctx into a fresh header table.
func injectTrace(ctx context.Context) amqp091.Table {
	headers := amqp091.Table{}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))
	return headers
}

// publisherSpan returns the span context a delivery was published under, if any.
func publisherSpan(ctx context.Context, d amqp091.Delivery) trace.SpanContext {
	return trace.SpanContextFromContext(otel.GetTextMapPropagator().Extract(ctx, headerCarrier(d.Headers)))
}
