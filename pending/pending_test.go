package pending_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/loyalty-engine/audit"
	"github.com/meridian/loyalty-engine/ledger"
	"github.com/meridian/loyalty-engine/member"
	"github.com/meridian/loyalty-engine/pending"
	"github.com/meridian/loyalty-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// recordingProducer captures enqueued batches instead of dispatching them.
type recordingProducer struct {
	batches [][]ledger.QueuedEntry
}

func (r *recordingProducer) Enqueue(_ context.Context, entries []ledger.QueuedEntry) error {
	r.batches = append(r.batches, entries)
	return nil
}

func newTestService(t *testing.T) (*pending.Service, *memory.Store, *recordingProducer) {
	t.Helper()
	store := memory.New()
	producer := &recordingProducer{}
	svc := &pending.Service{
		Store:     store,
		Members:   store,
		Committer: ledger.NewService(store, store),
		Producer:  producer,
		Policy:    pending.AmountThreshold{Limit: decimal.NewFromInt(1000)},
		Audit:     &audit.MemorySink{},
	}
	return svc, store, producer
}

func seedMember(t *testing.T, store *memory.Store, loyaltyID string) *member.Member {
	t.Helper()
	m := member.New(loyaltyID, loyaltyID+"@example.com", "Test", "Member")
	require.NoError(t, store.CreateMember(context.Background(), m))
	return m
}

func submission(loyaltyID string, amount int64) pending.SubmitInput {
	return pending.SubmitInput{
		LoyaltyID:       loyaltyID,
		TransactionType: ledger.TypePayment,
		Amount:          decimal.NewFromInt(amount),
		Currency:        ledger.CurrencyUSD,
	}
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestSubmit_SmallAmountEnqueuedDirectly(t *testing.T) {
	// GIVEN: A submission under the review threshold
	// WHEN: Submitted
	// THEN: It goes straight onto the transport, no pending record

	svc, store, producer := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "mem-1")

	result, err := svc.Submit(ctx, "operator-1", submission("mem-1", 50))
	require.NoError(t, err)

	assert.True(t, result.Enqueued)
	assert.Nil(t, result.Pending)
	require.Len(t, producer.batches, 1)
	assert.Equal(t, "mem-1", producer.batches[0][0].LoyaltyID)

	open, err := svc.ListForMember(ctx, "mem-1")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSubmit_LargeAmountParkedForReview(t *testing.T) {
	// GIVEN: A submission over the review threshold
	// WHEN: Submitted
	// THEN: A pending record is created and nothing is enqueued

	svc, store, producer := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "mem-1")

	result, err := svc.Submit(ctx, "operator-1", submission("mem-1", 5000))
	require.NoError(t, err)

	require.NotNil(t, result.Pending)
	assert.False(t, result.Enqueued)
	assert.Equal(t, pending.StatusPending, result.Pending.Status)
	assert.Equal(t, 0, result.Pending.Retries)
	assert.Empty(t, producer.batches)

	open, err := svc.ListForMember(ctx, "mem-1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, result.Pending.ID, open[0].ID)
}

func TestSubmit_UnknownMemberRejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Submit(context.Background(), "operator-1", submission("ghost", 50))
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// APPROVAL TESTS
// =============================================================================

func TestApprove_PendingCommitsDirectly(t *testing.T) {
	// GIVEN: A pending record awaiting review
	// WHEN: A reviewer approves it
	// THEN: It becomes approved, commits to the ledger, retries stay 0

	svc, store, producer := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "mem-1")

	result, err := svc.Submit(ctx, "operator-1", submission("mem-1", 5000))
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, result.Pending.ID, "reviewer-1")
	require.NoError(t, err)

	assert.Equal(t, pending.StatusApproved, approved.Status)
	assert.Equal(t, "reviewer-1", approved.ModifiedBy)
	assert.Equal(t, 0, approved.Retries, "direct approval must not touch retries")
	assert.Empty(t, producer.batches, "direct approval must not re-enqueue")

	m, err := store.FindByLoyaltyID(ctx, "mem-1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), m.Balance)
}

func TestApprove_FailedReEnqueuesAndCountsRetry(t *testing.T) {
	// GIVEN: A failed record with two prior attempts
	// WHEN: A reviewer approves it
	// THEN: Retries become 3, the entry re-enters the transport, no
	//       direct commit happens

	svc, store, producer := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "mem-1")

	failed := &pending.Transaction{
		ID:      "pt-1",
		Entry:   ledger.QueuedEntry{LoyaltyID: "mem-1", TransactionType: ledger.TypePayment, Amount: decimal.NewFromInt(40), Currency: ledger.CurrencyUSD, Origin: ledger.OriginOnline},
		Status:  pending.StatusFailed,
		Retries: 2,
	}
	require.NoError(t, store.CreatePending(ctx, failed))

	approved, err := svc.Approve(ctx, "pt-1", "reviewer-1")
	require.NoError(t, err)

	assert.Equal(t, pending.StatusApproved, approved.Status)
	assert.Equal(t, 3, approved.Retries)

	require.Len(t, producer.batches, 1)
	require.Len(t, producer.batches[0], 1)
	assert.Equal(t, "pt-1", producer.batches[0][0].ID, "re-enqueued entry must carry the record id")

	m, err := store.FindByLoyaltyID(ctx, "mem-1", false)
	require.NoError(t, err)
	assert.Zero(t, m.Balance, "re-enqueue must not commit synchronously")
}

// failingCommitter refuses every direct commit.
type failingCommitter struct{}

func (failingCommitter) Commit(context.Context, ledger.QueuedEntry) error { return assert.AnError }

func TestApprove_CommitFailureReturnsRecordToFailed(t *testing.T) {
	// GIVEN: A pending record and a committer that errors
	// WHEN: A reviewer approves it and the direct commit fails
	// THEN: The record lands in failed rather than stranded in approved,
	//       and a later approval re-enters the asynchronous path

	svc, store, producer := newTestService(t)
	svc.Committer = failingCommitter{}
	ctx := context.Background()
	seedMember(t, store, "mem-1")

	result, err := svc.Submit(ctx, "operator-1", submission("mem-1", 5000))
	require.NoError(t, err)

	_, err = svc.Approve(ctx, result.Pending.ID, "reviewer-1")
	require.Error(t, err)

	backedOut, err := store.GetPending(ctx, result.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, pending.StatusFailed, backedOut.Status)
	assert.Equal(t, 0, backedOut.Retries)

	approved, err := svc.Approve(ctx, result.Pending.ID, "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, pending.StatusApproved, approved.Status)
	assert.Equal(t, 1, approved.Retries)
	require.Len(t, producer.batches, 1, "the retry cycle must go through the transport")
}

func TestApprove_RejectedIsTerminal(t *testing.T) {
	// GIVEN: A rejected record
	// WHEN: Someone tries to approve it
	// THEN: The transition is refused

	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "mem-1")

	result, err := svc.Submit(ctx, "operator-1", submission("mem-1", 5000))
	require.NoError(t, err)
	_, err = svc.Reject(ctx, result.Pending.ID, "reviewer-1")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, result.Pending.ID, "reviewer-2")
	var transitionErr *pending.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, pending.StatusRejected, transitionErr.From)
}

func TestApprove_UnknownRecord(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Approve(context.Background(), "nope", "reviewer-1")
	assert.ErrorIs(t, err, ledger.ErrPendingNotFound)
}

func TestReject_NoLedgerEffect(t *testing.T) {
	// GIVEN: A pending record
	// WHEN: A reviewer rejects it
	// THEN: Status changes and the member's balance stays put

	svc, store, producer := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "mem-1")

	result, err := svc.Submit(ctx, "operator-1", submission("mem-1", 5000))
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, result.Pending.ID, "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, pending.StatusRejected, rejected.Status)
	assert.Empty(t, producer.batches)

	m, err := store.FindByLoyaltyID(ctx, "mem-1", false)
	require.NoError(t, err)
	assert.Zero(t, m.Balance)
}

// =============================================================================
// FAILURE RECORDING TESTS
// =============================================================================

func TestMarkFailed_NewRecordForDirectEntry(t *testing.T) {
	// GIVEN: A queued entry that never had a pending record
	// WHEN: Its commit fails permanently
	// THEN: A fresh failed record appears with zero retries

	svc, _, _ := newTestService(t)
	ctx := context.Background()

	t1, err := svc.MarkFailed(ctx, ledger.QueuedEntry{
		LoyaltyID:       "mem-1",
		TransactionType: ledger.TypePayment,
		Amount:          decimal.NewFromInt(10),
		Currency:        ledger.CurrencyUSD,
	})
	require.NoError(t, err)

	assert.Equal(t, pending.StatusFailed, t1.Status)
	assert.Equal(t, 0, t1.Retries)
	assert.NotEmpty(t, t1.ID)
}

func TestMarkFailed_ExistingRecordCountsAttempt(t *testing.T) {
	// GIVEN: An approved-then-re-enqueued record whose retry failed again
	// WHEN: The dead letter lands
	// THEN: The record returns to failed and retries grow by one

	svc, store, _ := newTestService(t)
	ctx := context.Background()

	rec := &pending.Transaction{
		ID:      "pt-1",
		Entry:   ledger.QueuedEntry{LoyaltyID: "mem-1", TransactionType: ledger.TypePayment, Amount: decimal.NewFromInt(10), Currency: ledger.CurrencyUSD},
		Status:  pending.StatusApproved,
		Retries: 3,
	}
	require.NoError(t, store.CreatePending(ctx, rec))

	q := rec.Queued()
	updated, err := svc.MarkFailed(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, pending.StatusFailed, updated.Status)
	assert.Equal(t, 4, updated.Retries)
}

// =============================================================================
// LIST TESTS
// =============================================================================

func TestList_RejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.List(context.Background(), pending.Query{Statuses: []pending.Status{"archived"}})
	assert.ErrorIs(t, err, ledger.ErrInvalidEntry)
}

func TestList_FiltersAndPaginates(t *testing.T) {
	// GIVEN: Three records: two pending, one rejected
	// WHEN: Listing pending with limit 1
	// THEN: One record comes back and the total counts both pending

	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "mem-1")

	for i := 0; i < 2; i++ {
		_, err := svc.Submit(ctx, "operator-1", submission("mem-1", 5000))
		require.NoError(t, err)
	}
	result, err := svc.Submit(ctx, "operator-1", submission("mem-1", 7000))
	require.NoError(t, err)
	_, err = svc.Reject(ctx, result.Pending.ID, "reviewer-1")
	require.NoError(t, err)

	items, total, err := svc.List(ctx, pending.Query{
		Statuses: []pending.Status{pending.StatusPending},
		Limit:    1,
	})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 2, total)
}
