package offers_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/loyalty-engine/audit"
	"github.com/meridian/loyalty-engine/ledger"
	"github.com/meridian/loyalty-engine/member"
	"github.com/meridian/loyalty-engine/offers"
	"github.com/meridian/loyalty-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// countingProducer records enqueued batches, safely across goroutines.
type countingProducer struct {
	mu      sync.Mutex
	batches [][]ledger.QueuedEntry
}

func (c *countingProducer) Enqueue(_ context.Context, entries []ledger.QueuedEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, entries)
	return nil
}

func (c *countingProducer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func newTestEngine(t *testing.T) (*offers.Engine, *memory.Store, *countingProducer) {
	t.Helper()
	store := memory.New()
	producer := &countingProducer{}
	engine := &offers.Engine{
		Store:    store,
		Members:  store,
		Producer: producer,
		Audit:    &audit.MemorySink{},
	}
	return engine, store, producer
}

func seedOffer(t *testing.T, store *memory.Store, id, name string, points int64, active bool) {
	t.Helper()
	require.NoError(t, store.CreateOffer(context.Background(), &offers.Offer{
		ID: id, SystemName: name, Points: points, IsActive: active,
	}))
}

func seedMember(t *testing.T, store *memory.Store, loyaltyID string) *member.Member {
	t.Helper()
	m := member.New(loyaltyID, loyaltyID+"@example.com", "Test", "Member")
	require.NoError(t, store.CreateMember(context.Background(), m))
	return m
}

// =============================================================================
// REDEMPTION TESTS
// =============================================================================

func TestApply_GrantsEachOfferOnce(t *testing.T) {
	// GIVEN: A member and an active signup offer
	// WHEN: The offer is applied twice in a row
	// THEN: One grant enqueued, one redemption counted, mark persisted

	engine, store, producer := newTestEngine(t)
	ctx := context.Background()
	seedOffer(t, store, "off-1", "signup", 500, true)
	m := seedMember(t, store, "mem-1")

	require.NoError(t, engine.Apply(ctx, m, []string{"signup"}))

	// Second application with a fresh member snapshot.
	fresh, err := store.FindByLoyaltyID(ctx, "mem-1", false)
	require.NoError(t, err)
	require.NoError(t, engine.Apply(ctx, fresh, []string{"signup"}))

	assert.Equal(t, 1, producer.count())

	offer, err := store.GetOffer(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), offer.UsedNumber)

	assert.True(t, fresh.HasUsedOffer("off-1"))
}

func TestApply_StaleSnapshotStillAtMostOnce(t *testing.T) {
	// GIVEN: Two goroutines applying the same offer with the same stale
	//        member snapshot (neither sees the other's mark)
	// WHEN: Both run
	// THEN: Exactly one grant is enqueued and counted

	engine, store, producer := newTestEngine(t)
	ctx := context.Background()
	seedOffer(t, store, "off-1", "signup", 500, true)
	m := seedMember(t, store, "mem-1")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot := *m
			assert.NoError(t, engine.Apply(ctx, &snapshot, []string{"signup"}))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, producer.count())

	offer, err := store.GetOffer(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), offer.UsedNumber)
}

func TestApply_InactiveOfferSkipped(t *testing.T) {
	engine, store, producer := newTestEngine(t)
	ctx := context.Background()
	seedOffer(t, store, "off-1", "signup", 500, false)
	m := seedMember(t, store, "mem-1")

	require.NoError(t, engine.Apply(ctx, m, []string{"signup"}))
	assert.Zero(t, producer.count())
}

func TestApply_InactiveMemberIsNoop(t *testing.T) {
	engine, store, producer := newTestEngine(t)
	ctx := context.Background()
	seedOffer(t, store, "off-1", "signup", 500, true)
	m := seedMember(t, store, "mem-1")
	m.IsActive = false

	require.NoError(t, engine.Apply(ctx, m, []string{"signup"}))
	assert.Zero(t, producer.count())
}

func TestApply_GrantShape(t *testing.T) {
	// GIVEN: An active 750-point offer
	// WHEN: It is applied
	// THEN: The enqueued entry is a points-currency payment referencing
	//       the offer

	engine, store, producer := newTestEngine(t)
	ctx := context.Background()
	seedOffer(t, store, "off-1", "signup", 750, true)
	m := seedMember(t, store, "mem-1")

	require.NoError(t, engine.Apply(ctx, m, []string{"signup"}))

	require.Equal(t, 1, producer.count())
	entry := producer.batches[0][0]
	assert.Equal(t, "mem-1", entry.LoyaltyID)
	assert.Equal(t, ledger.TypePayment, entry.TransactionType)
	assert.Equal(t, ledger.CurrencyPoints, entry.Currency)
	assert.Equal(t, ledger.OriginPearl, entry.Origin)
	assert.Equal(t, "off-1", entry.OriginRef)
	assert.Equal(t, "750", entry.Amount.String())
	assert.False(t, entry.TransactionDateTime.IsZero())
}

func TestApplyByEmail_UnknownEmailIsNoop(t *testing.T) {
	engine, _, producer := newTestEngine(t)

	err := engine.ApplyByEmail(context.Background(), "nobody@example.com", []string{"signup"})
	assert.NoError(t, err)
	assert.Zero(t, producer.count())
}

func TestApplyByEmail_ResolvesActiveMember(t *testing.T) {
	engine, store, producer := newTestEngine(t)
	ctx := context.Background()
	seedOffer(t, store, "off-1", "signup", 500, true)
	seedMember(t, store, "mem-1")

	require.NoError(t, engine.ApplyByEmail(ctx, "MEM-1@example.com", []string{"signup"}))
	assert.Equal(t, 1, producer.count())
}

// =============================================================================
// ADMINISTRATION TESTS
// =============================================================================

func TestUpdate_ZeroPointsLeavesGrantUnchanged(t *testing.T) {
	// GIVEN: A 500-point offer
	// WHEN: An admin deactivates it without touching points
	// THEN: Points survive, the active flag flips

	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	seedOffer(t, store, "off-1", "signup", 500, true)

	updated, err := engine.Update(ctx, "admin-1", "off-1", offers.UpdateInput{Points: 0, IsActive: false})
	require.NoError(t, err)
	assert.Equal(t, int64(500), updated.Points)
	assert.False(t, updated.IsActive)
}

func TestUpdate_CannotTouchRedemptionCounter(t *testing.T) {
	// GIVEN: An offer that has been redeemed once
	// WHEN: An admin edits it
	// THEN: The redemption counter is untouched

	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	seedOffer(t, store, "off-1", "signup", 500, true)
	m := seedMember(t, store, "mem-1")
	require.NoError(t, engine.Apply(ctx, m, []string{"signup"}))

	updated, err := engine.Update(ctx, "admin-1", "off-1", offers.UpdateInput{Points: 600, IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.UsedNumber)
	assert.Equal(t, int64(600), updated.Points)
}

func TestUpdate_UnknownOffer(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Update(context.Background(), "admin-1", "nope", offers.UpdateInput{Points: 1, IsActive: true})
	assert.ErrorIs(t, err, ledger.ErrOfferNotFound)
}
