package projection_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/loyalty-engine/ledger"
	"github.com/meridian/loyalty-engine/member"
	"github.com/meridian/loyalty-engine/projection"
	"github.com/meridian/loyalty-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func testTiers() *projection.ThresholdTable {
	return projection.NewThresholdTable([]projection.Tier{
		{Name: "gold", Threshold: 500},
		{Name: "member", Threshold: 0},
		{Name: "silver", Threshold: 100},
	})
}

func newTestProjection(t *testing.T) (*projection.Service, *ledger.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return &projection.Service{Entries: store, Tiers: testTiers()},
		ledger.NewService(store, store), store
}

func commit(t *testing.T, svc *ledger.Service, loyaltyID string, points int64, at time.Time) {
	t.Helper()
	require.NoError(t, svc.ProcessBatch(context.Background(), []ledger.QueuedEntry{{
		LoyaltyID:           loyaltyID,
		TransactionType:     ledger.TypePayment,
		Points:              ledger.Ptr(points),
		Amount:              decimal.NewFromInt(points),
		Currency:            ledger.CurrencyUSD,
		Origin:              ledger.OriginOnline,
		TransactionDateTime: at,
	}}))
}

// =============================================================================
// TIER TABLE TESTS
// =============================================================================

func TestThresholdTable_LookupIsByHighestReachedThreshold(t *testing.T) {
	tiers := testTiers()

	assert.Equal(t, "member", tiers.TierForPoints(0).Name)
	assert.Equal(t, "member", tiers.TierForPoints(99).Name)
	assert.Equal(t, "silver", tiers.TierForPoints(100).Name)
	assert.Equal(t, "silver", tiers.TierForPoints(499).Name)
	assert.Equal(t, "gold", tiers.TierForPoints(500).Name)
	assert.Equal(t, "gold", tiers.TierForPoints(1_000_000).Name)
}

func TestThresholdTable_NegativeTotalGetsFloorTier(t *testing.T) {
	// A run of chargebacks can push the cumulative total below zero.
	assert.Equal(t, "member", testTiers().TierForPoints(-50).Name)
}

// =============================================================================
// HISTORY PROJECTION TESTS
// =============================================================================

func TestMemberHistory_CumulativePointsAndTiers(t *testing.T) {
	// GIVEN: Three commits of 80, 80 and 400 points
	// WHEN: The history is projected oldest-first
	// THEN: Cumulative totals are 80, 160, 560 with tiers member, silver, gold

	proj, svc, store := newTestProjection(t)
	ctx := context.Background()
	m := member.New("mem-1", "mem-1@example.com", "Test", "Member")
	require.NoError(t, store.CreateMember(ctx, m))

	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	commit(t, svc, "mem-1", 80, base)
	commit(t, svc, "mem-1", 80, base.Add(time.Hour))
	commit(t, svc, "mem-1", 400, base.Add(2*time.Hour))

	history, err := proj.MemberHistory(ctx, "mem-1", false)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, int64(80), history[0].CumulativePoints)
	assert.Equal(t, "member", history[0].Tier.Name)
	assert.Equal(t, int64(160), history[1].CumulativePoints)
	assert.Equal(t, "silver", history[1].Tier.Name)
	assert.Equal(t, int64(560), history[2].CumulativePoints)
	assert.Equal(t, "gold", history[2].Tier.Name)
}

func TestMemberHistory_DescendingKeepsAccumulation(t *testing.T) {
	// GIVEN: Two commits
	// WHEN: The history is projected newest-first
	// THEN: The order reverses but each entry keeps the cumulative total
	//       computed oldest-first

	proj, svc, store := newTestProjection(t)
	ctx := context.Background()
	m := member.New("mem-1", "mem-1@example.com", "Test", "Member")
	require.NoError(t, store.CreateMember(ctx, m))

	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	commit(t, svc, "mem-1", 10, base)
	commit(t, svc, "mem-1", 20, base.Add(time.Hour))

	history, err := proj.MemberHistory(ctx, "mem-1", true)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, int64(30), history[0].CumulativePoints, "newest entry carries the full total")
	assert.Equal(t, int64(10), history[1].CumulativePoints)
}

func TestMemberHistory_EmptyLoyaltyID(t *testing.T) {
	proj, _, _ := newTestProjection(t)

	history, err := proj.MemberHistory(context.Background(), "", false)
	assert.NoError(t, err)
	assert.Nil(t, history)
}

func TestBalance_FoldsWholeHistory(t *testing.T) {
	proj, svc, store := newTestProjection(t)
	ctx := context.Background()
	m := member.New("mem-1", "mem-1@example.com", "Test", "Member")
	require.NoError(t, store.CreateMember(ctx, m))

	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	commit(t, svc, "mem-1", 100, base)
	commit(t, svc, "mem-1", -30, base.Add(time.Hour))

	total, err := proj.Balance(ctx, "mem-1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), total)
}
