package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp091 "github.com/rabbitmq/amqp091-go"
)

// fakeBroker stands in for one RabbitMQ queue. It honours prefetch=1 by
// holding the next delivery until the previous one is settled.
type fakeBroker struct {
	mu sync.Mutex

	pending    [][]byte
	published  []amqp091.Publishing
	routingKey []string
	declared   []string
	durable    bool
	prefetch   int
	journal    []string

	qosBeforeConsume bool

	dialErr    error
	qosErr     error
	consumeErr error
	publishErr error

	// cancelAfterAll closes the delivery channel once pending is drained,
	// as the broker does when it cancels a consumer.
	cancelAfterAll bool

	connCloses int
	chanCloses int
	cancels    int

	settled chan uint64
	stop    chan struct{}
}

func newFakeBroker(bodies ...string) *fakeBroker {
	b := &fakeBroker{
		settled: make(chan uint64, 64),
		stop:    make(chan struct{}),
	}
	for _, body := range bodies {
		b.pending = append(b.pending, []byte(body))
	}
	return b
}

func (b *fakeBroker) record(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.journal = append(b.journal, fmt.Sprintf(format, args...))
}

func (b *fakeBroker) entries() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.journal...)
}

func (b *fakeBroker) dial(string) (Connection, error) {
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	return &fakeConn{b: b}, nil
}

type fakeConn struct{ b *fakeBroker }

func (c *fakeConn) Channel() (Channel, error) { return &fakeChannel{b: c.b}, nil }

func (c *fakeConn) Close() error {
	c.b.mu.Lock()
	c.b.connCloses++
	c.b.mu.Unlock()
	return nil
}

type fakeChannel struct{ b *fakeBroker }

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.declared = append(c.b.declared, name)
	c.b.durable = durable && !autoDelete
	return amqp091.Queue{Name: name}, nil
}

func (c *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	if c.b.qosErr != nil {
		return c.b.qosErr
	}
	c.b.mu.Lock()
	c.b.prefetch = prefetchCount
	c.b.mu.Unlock()
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if c.b.publishErr != nil {
		return c.b.publishErr
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.published = append(c.b.published, msg)
	c.b.routingKey = append(c.b.routingKey, key)
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error) {
	if c.b.consumeErr != nil {
		return nil, c.b.consumeErr
	}
	if autoAck {
		return nil, errors.New("fake broker expects manual acks")
	}
	c.b.mu.Lock()
	c.b.qosBeforeConsume = c.b.prefetch == 1
	bodies := c.b.pending
	c.b.pending = nil
	c.b.mu.Unlock()

	out := make(chan amqp091.Delivery)
	go func() {
		for i, body := range bodies {
			tag := uint64(i + 1)
			d := amqp091.Delivery{Acknowledger: c, DeliveryTag: tag, Body: body, ConsumerTag: consumer}
			c.b.record("deliver %d", tag)
			select {
			case out <- d:
			case <-c.b.stop:
				return
			}
			if c.b.prefetch == 1 {
				select {
				case <-c.b.settled:
				case <-c.b.stop:
					return
				}
			}
		}
		if c.b.cancelAfterAll {
			close(out)
		}
	}()
	return out, nil
}

func (c *fakeChannel) Cancel(consumer string, noWait bool) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.cancels++
	select {
	case <-c.b.stop:
	default:
		close(c.b.stop)
	}
	return nil
}

func (c *fakeChannel) Close() error {
	c.b.mu.Lock()
	c.b.chanCloses++
	c.b.mu.Unlock()
	return nil
}

func (c *fakeChannel) Ack(tag uint64, multiple bool) error {
	c.b.record("ack %d", tag)
	c.b.settled <- tag
	return nil
}

func (c *fakeChannel) Nack(tag uint64, multiple, requeue bool) error {
	c.b.record("nack %d", tag)
	c.b.settled <- tag
	return nil
}

func (c *fakeChannel) Reject(tag uint64, requeue bool) error {
	c.b.record("reject %d", tag)
	c.b.settled <- tag
	return nil
}
