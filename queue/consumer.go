/*
consumer.go - Worker pool draining broker partitions

Partitions are assigned to workers by hashing the ordering key, so one
member's batches are always drained by the same worker, serially, while
different members proceed in parallel. A handler error redelivers the
message in place; after MaxDeliveries attempts it goes to the dead-letter
hook and is dropped from the partition.
*/
package queue

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"
)

// Handler processes one message body. Returning an error nacks the
// message and the broker redelivers it, in order, on the same partition.
type Handler func(ctx context.Context, body []byte) error

// DeadLetter receives messages that exhausted their delivery budget.
type DeadLetter func(ctx context.Context, m Message, cause error)

// Consumer drains a broker with a fixed pool of workers.
type Consumer struct {
	Broker        *Broker
	Workers       int
	MaxDeliveries int
	Handler       Handler
	DeadLetter    DeadLetter

	// RetryDelay spaces redeliveries out. Kept short; the transport owns
	// backpressure, not this loop.
	RetryDelay time.Duration

	wg sync.WaitGroup
}

// Start launches the worker pool. Workers stop when ctx is cancelled;
// Wait blocks until they have all drained out.
func (c *Consumer) Start(ctx context.Context) {
	workers := c.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.run(ctx, i, workers)
	}
}

// Wait blocks until all workers have exited.
func (c *Consumer) Wait() { c.wg.Wait() }

func (c *Consumer) run(ctx context.Context, index, workers int) {
	defer c.wg.Done()

	owns := func(key string) bool {
		h := fnv.New32a()
		h.Write([]byte(key))
		return int(h.Sum32())%workers == index
	}

	for {
		m := c.Broker.next(owns)
		if m == nil {
			select {
			case <-ctx.Done():
				return
			case <-c.Broker.notify:
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		m.Deliveries++
		err := c.Handler(ctx, m.Body)
		if err == nil {
			c.Broker.ack(m)
			continue
		}

		if c.MaxDeliveries > 0 && m.Deliveries >= c.MaxDeliveries {
			log.Printf("queue: dead-lettering message %s (key %q) after %d deliveries: %v",
				m.ID, m.OrderingKey, m.Deliveries, err)
			c.Broker.forget(m.DedupKey)
			if c.DeadLetter != nil {
				c.DeadLetter(ctx, *m, err)
			}
			c.Broker.ack(m)
			continue
		}

		log.Printf("queue: redelivering message %s (key %q, attempt %d): %v",
			m.ID, m.OrderingKey, m.Deliveries, err)
		if c.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				c.Broker.nack(m)
				return
			case <-time.After(c.RetryDelay):
			}
		}
		c.Broker.nack(m)
	}
}
