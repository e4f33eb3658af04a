/*
Package queue is an in-process implementation of the transport contract:
an ordered, at-least-once message channel with per-key partitions and a
deduplication window.

GUARANTEES:
  - Messages sharing an ordering key are delivered one at a time, in
    enqueue order. A nacked message is redelivered before anything newer
    on its partition.
  - Delivery is at-least-once: a handler that errors (or dies between
    commit and ack) sees the message again. Exactly-once effect is the
    consumer's problem, which is why producers supply dedup tokens.
  - A dedup token seen within the window silently discards the enqueue,
    mirroring how managed FIFO queues behave.

NON-GUARANTEES:
  - Nothing is ordered across different ordering keys.
  - The broker is process-local; a production deployment swaps in a real
    queue behind the same producer interface.

SEE ALSO:
  - consumer.go: The worker pool draining partitions
  - ledger/producer.go: The producer side and token derivation
*/
package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one enqueued batch body with its delivery bookkeeping.
type Message struct {
	ID          string
	OrderingKey string
	DedupKey    string
	Body        []byte
	Deliveries  int
	EnqueuedAt  time.Time
}

type partition struct {
	msgs []*Message
	busy bool // a worker holds the head message
}

// Broker holds partitions keyed by ordering key.
type Broker struct {
	mu         sync.Mutex
	partitions map[string]*partition
	seen       map[string]time.Time
	window     time.Duration
	notify     chan struct{}
}

// NewBroker creates a broker with the given dedup window.
// A zero window disables deduplication entirely.
func NewBroker(dedupWindow time.Duration) *Broker {
	return &Broker{
		partitions: make(map[string]*partition),
		seen:       make(map[string]time.Time),
		window:     dedupWindow,
		notify:     make(chan struct{}, 1),
	}
}

// Enqueue appends a message to its ordering-key partition.
// A duplicate dedup token within the window is dropped, not an error:
// the producer's retry achieved what it wanted.
func (b *Broker) Enqueue(_ context.Context, orderingKey, dedupKey string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.window > 0 && dedupKey != "" {
		if at, ok := b.seen[dedupKey]; ok && time.Since(at) < b.window {
			log.Printf("queue: dropping duplicate message for key %q", orderingKey)
			return nil
		}
		b.seen[dedupKey] = time.Now()
		b.sweepLocked()
	}

	p, ok := b.partitions[orderingKey]
	if !ok {
		p = &partition{}
		b.partitions[orderingKey] = p
	}
	p.msgs = append(p.msgs, &Message{
		ID:          uuid.NewString(),
		OrderingKey: orderingKey,
		DedupKey:    dedupKey,
		Body:        body,
		EnqueuedAt:  time.Now(),
	})

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

// next leases the head message of some partition owned by the caller.
// The partition stays busy until ack or nack so delivery is serialized.
func (b *Broker) next(owns func(key string) bool) *Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, p := range b.partitions {
		if p.busy || len(p.msgs) == 0 || !owns(key) {
			continue
		}
		p.busy = true
		return p.msgs[0]
	}
	return nil
}

// ack removes the leased head message and frees the partition.
func (b *Broker) ack(m *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.partitions[m.OrderingKey]
	if !ok || len(p.msgs) == 0 || p.msgs[0] != m {
		return
	}
	p.msgs = p.msgs[1:]
	p.busy = false
	if len(p.msgs) == 0 {
		delete(b.partitions, m.OrderingKey)
	} else {
		select {
		case b.notify <- struct{}{}:
		default:
		}
	}
}

// nack frees the partition with the message still at its head, so the
// next lease redelivers it before anything newer.
func (b *Broker) nack(m *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.partitions[m.OrderingKey]; ok {
		p.busy = false
	}
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// forget evicts a dedup token from the window. Called when a message
// dead-letters: its effect never happened, so the token must not block
// a later resubmission of the same content.
func (b *Broker) forget(dedupKey string) {
	if dedupKey == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.seen, dedupKey)
}

// Depth returns the number of queued messages for one ordering key.
func (b *Broker) Depth(orderingKey string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.partitions[orderingKey]; ok {
		return len(p.msgs)
	}
	return 0
}

// TotalDepth returns the number of queued messages across all partitions.
func (b *Broker) TotalDepth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, p := range b.partitions {
		total += len(p.msgs)
	}
	return total
}

// sweepLocked evicts dedup tokens older than the window. Called with the
// lock held, amortized over enqueues.
func (b *Broker) sweepLocked() {
	if len(b.seen) < 4096 {
		return
	}
	cutoff := time.Now().Add(-b.window)
	for k, at := range b.seen {
		if at.Before(cutoff) {
			delete(b.seen, k)
		}
	}
}
