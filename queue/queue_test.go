package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/loyalty-engine/queue"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// collector gathers handled bodies across workers.
type collector struct {
	mu     sync.Mutex
	bodies []string
}

func (c *collector) add(body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies = append(c.bodies, string(body))
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.bodies))
	copy(out, c.bodies)
	return out
}

func drain(t *testing.T, b *queue.Broker, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.TotalDepth() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("broker did not drain within %v (depth %d)", timeout, b.TotalDepth())
}

// =============================================================================
// ORDERING TESTS
// =============================================================================

func TestConsumer_PerKeyFIFO(t *testing.T) {
	// GIVEN: Five messages on one ordering key, many workers
	// WHEN: The consumer drains the broker
	// THEN: The messages are handled in enqueue order

	broker := queue.NewBroker(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := &collector{}
	consumer := &queue.Consumer{
		Broker:  broker,
		Workers: 8,
		Handler: func(_ context.Context, body []byte) error {
			got.add(body)
			return nil
		},
	}
	consumer.Start(ctx)

	for _, body := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, broker.Enqueue(ctx, "mem-1", "", []byte(body)))
	}

	drain(t, broker, 2*time.Second)
	cancel()
	consumer.Wait()

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got.snapshot())
}

func TestConsumer_FailureRedeliversBeforeNewerMessages(t *testing.T) {
	// GIVEN: Two messages on one key; the first fails once
	// WHEN: The consumer processes them
	// THEN: The first is redelivered and completes before the second

	broker := queue.NewBroker(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var attempts []string
	failedOnce := false

	consumer := &queue.Consumer{
		Broker:        broker,
		Workers:       4,
		MaxDeliveries: 5,
		Handler: func(_ context.Context, body []byte) error {
			mu.Lock()
			defer mu.Unlock()
			attempts = append(attempts, string(body))
			if string(body) == "first" && !failedOnce {
				failedOnce = true
				return errors.New("transient")
			}
			return nil
		},
	}
	consumer.Start(ctx)

	require.NoError(t, broker.Enqueue(ctx, "mem-1", "", []byte("first")))
	require.NoError(t, broker.Enqueue(ctx, "mem-1", "", []byte("second")))

	drain(t, broker, 2*time.Second)
	cancel()
	consumer.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "first", "second"}, attempts)
}

// =============================================================================
// DEAD LETTER TESTS
// =============================================================================

func TestConsumer_DeadLetterAfterMaxDeliveries(t *testing.T) {
	// GIVEN: A message that always fails, delivery budget 3
	// WHEN: The consumer exhausts the budget
	// THEN: The dead-letter hook fires once with the delivery count and
	//       the partition unblocks for the next message

	broker := queue.NewBroker(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	handled := 0
	var dead []queue.Message
	got := &collector{}

	consumer := &queue.Consumer{
		Broker:        broker,
		Workers:       1,
		MaxDeliveries: 3,
		Handler: func(_ context.Context, body []byte) error {
			if string(body) == "poison" {
				mu.Lock()
				handled++
				mu.Unlock()
				return errors.New("permanent")
			}
			got.add(body)
			return nil
		},
		DeadLetter: func(_ context.Context, m queue.Message, _ error) {
			mu.Lock()
			dead = append(dead, m)
			mu.Unlock()
		},
	}
	consumer.Start(ctx)

	require.NoError(t, broker.Enqueue(ctx, "mem-1", "", []byte("poison")))
	require.NoError(t, broker.Enqueue(ctx, "mem-1", "", []byte("after")))

	drain(t, broker, 2*time.Second)
	cancel()
	consumer.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, handled, "poison message should be attempted exactly MaxDeliveries times")
	require.Len(t, dead, 1)
	assert.Equal(t, 3, dead[0].Deliveries)
	assert.Equal(t, []string{"after"}, got.snapshot(), "dead letter must unblock the partition")
}

func TestConsumer_DeadLetterForgetsDedupToken(t *testing.T) {
	// GIVEN: A dedup window and a message that always fails
	// WHEN: The message dead-letters and the same token is enqueued again
	// THEN: The resubmission queues, not dropped as a duplicate — the
	//       dead-lettered delivery never took effect

	broker := queue.NewBroker(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := &queue.Consumer{
		Broker:        broker,
		Workers:       1,
		MaxDeliveries: 2,
		Handler: func(context.Context, []byte) error {
			return errors.New("permanent")
		},
	}
	consumer.Start(ctx)

	require.NoError(t, broker.Enqueue(ctx, "mem-1", "tok-1", []byte("a")))
	drain(t, broker, 2*time.Second)
	cancel()
	consumer.Wait()

	require.NoError(t, broker.Enqueue(ctx, "mem-1", "tok-1", []byte("a")))
	assert.Equal(t, 1, broker.Depth("mem-1"), "a dead-lettered token must not block resubmission")
}

// =============================================================================
// DEDUPLICATION TESTS
// =============================================================================

func TestBroker_DuplicateTokenDroppedWithinWindow(t *testing.T) {
	// GIVEN: A broker with a dedup window
	// WHEN: The same token is enqueued twice
	// THEN: Only one message is queued and the drop is not an error

	broker := queue.NewBroker(time.Minute)
	ctx := context.Background()

	require.NoError(t, broker.Enqueue(ctx, "mem-1", "tok-1", []byte("a")))
	require.NoError(t, broker.Enqueue(ctx, "mem-1", "tok-1", []byte("a")))

	assert.Equal(t, 1, broker.Depth("mem-1"))
}

func TestBroker_DistinctTokensBothQueued(t *testing.T) {
	broker := queue.NewBroker(time.Minute)
	ctx := context.Background()

	require.NoError(t, broker.Enqueue(ctx, "mem-1", "tok-1", []byte("a")))
	require.NoError(t, broker.Enqueue(ctx, "mem-1", "tok-2", []byte("b")))

	assert.Equal(t, 2, broker.Depth("mem-1"))
}

func TestBroker_ZeroWindowDisablesDedup(t *testing.T) {
	broker := queue.NewBroker(0)
	ctx := context.Background()

	require.NoError(t, broker.Enqueue(ctx, "mem-1", "tok-1", []byte("a")))
	require.NoError(t, broker.Enqueue(ctx, "mem-1", "tok-1", []byte("a")))

	assert.Equal(t, 2, broker.Depth("mem-1"))
}

func TestBroker_EmptyTokenNeverDeduplicates(t *testing.T) {
	broker := queue.NewBroker(time.Minute)
	ctx := context.Background()

	require.NoError(t, broker.Enqueue(ctx, "mem-1", "", []byte("a")))
	require.NoError(t, broker.Enqueue(ctx, "mem-1", "", []byte("a")))

	assert.Equal(t, 2, broker.Depth("mem-1"))
}
