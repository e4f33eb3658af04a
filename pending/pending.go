/*
Package pending holds transactions awaiting human review.

PURPOSE:
  Large or risky submissions do not go straight to the transport: they
  park here until a reviewer approves or rejects them. The package also
  receives commit failures from the asynchronous path, so a reviewer can
  retry a failed transaction by approving it again.

LIFECYCLE:

  submit (review required) ──▶ pending ──▶ approved: direct commit
                                  │    └─▶ rejected: no ledger effect
  async commit failure ──▶ failed ──▶ approved: re-enqueue, retries+1 on
                                  │              the next failure only
                                  └─▶ rejected

  Records are never deleted; the table doubles as the review audit trail.

APPROVAL BRANCHES ON PRIOR HISTORY:
  A record that was plain pending commits directly - it never touched the
  asynchronous path, so there is nothing to retry. A record that failed
  came FROM the asynchronous path, so approval sends it back through the
  transport rather than bypassing it.

SEE ALSO:
  - status.go: The closed status type and its transition rules
  - ledger/service.go: The commit primitive used on approval
*/
package pending

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian/loyalty-engine/audit"
	"github.com/meridian/loyalty-engine/ledger"
	"github.com/meridian/loyalty-engine/member"
)

// =============================================================================
// MODEL
// =============================================================================

// Transaction is a ledger entry candidate under review. Entry carries the
// full wire projection; Entry.ID is set to the record id when the record
// is re-enqueued so downstream failures trace back here.
type Transaction struct {
	ID         string
	Entry      ledger.QueuedEntry
	Status     Status
	ModifiedBy string
	Retries    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Queued returns the wire projection tagged with the record id.
func (t *Transaction) Queued() ledger.QueuedEntry {
	q := t.Entry
	q.ID = t.ID
	return q
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Store persists pending transactions. Records are created and updated,
// never deleted.
type Store interface {
	CreatePending(ctx context.Context, t *Transaction) error
	// GetPending returns ledger.ErrPendingNotFound for unknown ids.
	GetPending(ctx context.Context, id string) (*Transaction, error)
	UpdatePending(ctx context.Context, t *Transaction) error
	// ListPending returns records matching the query ordered by creation
	// time descending, plus the total match count before pagination.
	ListPending(ctx context.Context, q Query) ([]Transaction, int, error)
	// OpenPendingForMember returns the member's pending and failed records.
	OpenPendingForMember(ctx context.Context, loyaltyID string) ([]Transaction, error)
}

// Query filters and paginates the review list.
type Query struct {
	Statuses []Status
	Limit    int
	Offset   int
}

// Committer is the direct, synchronous commit path (single entry).
type Committer interface {
	Commit(ctx context.Context, q ledger.QueuedEntry) error
}

// Producer is the asynchronous path through the transport.
type Producer interface {
	Enqueue(ctx context.Context, entries []ledger.QueuedEntry) error
}

// ReviewPolicy decides whether a submission needs human review.
// Pure boolean gate; who may submit at all is not this core's business.
type ReviewPolicy interface {
	RequiresReview(ctx context.Context, actor string, input SubmitInput) bool
}

// AmountThreshold requires review for submissions whose face value
// exceeds the limit.
type AmountThreshold struct {
	Limit decimal.Decimal
}

func (p AmountThreshold) RequiresReview(_ context.Context, _ string, input SubmitInput) bool {
	return input.Amount.GreaterThan(p.Limit)
}

// =============================================================================
// SERVICE
// =============================================================================

// SubmitInput is a synchronous transaction submission.
type SubmitInput struct {
	LoyaltyID             string
	TransactionType       ledger.TransactionType
	Amount                decimal.Decimal
	Currency              ledger.Currency
	OrderNumber           string
	Reason                ledger.Reason
	EventID               string
	OriginalTransactionID string
}

type Service struct {
	Store     Store
	Members   member.Directory
	Committer Committer
	Producer  Producer
	Policy    ReviewPolicy
	Audit     audit.Sink
}

// SubmitResult reports which path a submission took.
type SubmitResult struct {
	// Pending is set when the submission parked for review.
	Pending *Transaction
	// Enqueued is set when the submission went straight to the transport.
	Enqueued bool
}

// Submit routes a submission either into review or onto the transport.
func (s *Service) Submit(ctx context.Context, actor string, input SubmitInput) (*SubmitResult, error) {
	m, err := s.Members.FindByLoyaltyID(ctx, input.LoyaltyID, false)
	if err != nil {
		return nil, err
	}

	if s.Policy != nil && s.Policy.RequiresReview(ctx, actor, input) {
		t := &Transaction{
			ID:     uuid.NewString(),
			Entry:  s.entryFromInput(actor, input),
			Status: StatusPending,
		}
		if err := s.Store.CreatePending(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to create pending transaction: %w", err)
		}
		audit.Try(ctx, s.Audit, audit.Event{
			Actor: actor, Resource: m.ID, Action: audit.ActionAddPending, After: input,
		})
		return &SubmitResult{Pending: t}, nil
	}

	entry := s.entryFromInput(actor, input)
	entry.TransactionDateTime = time.Now().UTC()
	if err := s.Producer.Enqueue(ctx, []ledger.QueuedEntry{entry}); err != nil {
		return nil, err
	}
	audit.Try(ctx, s.Audit, audit.Event{
		Actor: actor, Resource: m.ID, Action: audit.ActionAddTransaction, After: input,
	})
	return &SubmitResult{Enqueued: true}, nil
}

// Approve moves a reviewable record to approved and applies its entry.
//
// Previous status decides the path: pending commits directly through the
// atomic commit primitive; failed re-enters the transport and the retry
// count grows by exactly one for the new attempt. Approving a record that
// was plain pending never touches retries.
func (s *Service) Approve(ctx context.Context, id, reviewer string) (*Transaction, error) {
	t, err := s.Store.GetPending(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := t.Status
	if err := previous.Transition(StatusApproved); err != nil {
		return nil, err
	}

	t.Status = StatusApproved
	t.ModifiedBy = reviewer
	if previous == StatusFailed {
		t.Retries++
	}
	if err := s.Store.UpdatePending(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update pending transaction: %w", err)
	}

	switch previous {
	case StatusPending:
		if err := s.Committer.Commit(ctx, t.Entry); err != nil {
			s.failApproved(ctx, t, err)
			return nil, err
		}
		log.Printf("pending: approved %s committed directly (loyalty id %s)", t.ID, t.Entry.LoyaltyID)
	case StatusFailed:
		if err := s.Producer.Enqueue(ctx, []ledger.QueuedEntry{t.Queued()}); err != nil {
			s.failApproved(ctx, t, err)
			return nil, err
		}
		log.Printf("pending: approved %s re-enqueued after %d retries (loyalty id %s)", t.ID, t.Retries, t.Entry.LoyaltyID)
	}

	s.auditTransition(ctx, reviewer, t, previous)
	return t, nil
}

// failApproved backs an approved record out to failed when the apply
// step returned without taking effect, so the reviewer can approve it
// again instead of leaving it stranded in a terminal-looking state.
// Retries stay put here; the next approval cycle counts its own attempt.
func (s *Service) failApproved(ctx context.Context, t *Transaction, cause error) {
	t.Status = StatusFailed
	if err := s.Store.UpdatePending(ctx, t); err != nil {
		log.Printf("pending: could not return %s to failed after apply error (%v): %v", t.ID, cause, err)
	}
}

// Reject moves a reviewable record to rejected. No ledger effect.
func (s *Service) Reject(ctx context.Context, id, reviewer string) (*Transaction, error) {
	t, err := s.Store.GetPending(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := t.Status
	if err := previous.Transition(StatusRejected); err != nil {
		return nil, err
	}

	t.Status = StatusRejected
	t.ModifiedBy = reviewer
	if err := s.Store.UpdatePending(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update pending transaction: %w", err)
	}

	s.auditTransition(ctx, reviewer, t, previous)
	return t, nil
}

// MarkFailed records an asynchronous commit failure.
//
// When the queued entry carries a record id, that record moves to failed
// and its retry count grows by one. Otherwise the entry had no prior
// record (it entered the transport directly) and a new record is created
// already in failed state, retries zero.
func (s *Service) MarkFailed(ctx context.Context, q ledger.QueuedEntry) (*Transaction, error) {
	if q.ID != "" {
		t, err := s.Store.GetPending(ctx, q.ID)
		if err != nil {
			return nil, err
		}
		if err := t.Status.Transition(StatusFailed); err != nil {
			return nil, err
		}
		t.Status = StatusFailed
		t.Retries++
		if err := s.Store.UpdatePending(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to update pending transaction: %w", err)
		}
		return t, nil
	}

	t := &Transaction{
		ID:     uuid.NewString(),
		Entry:  q,
		Status: StatusFailed,
	}
	if err := s.Store.CreatePending(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create failed transaction: %w", err)
	}
	return t, nil
}

// List returns records for the review screen, newest first.
func (s *Service) List(ctx context.Context, q Query) ([]Transaction, int, error) {
	for _, st := range q.Statuses {
		if !st.Valid() {
			return nil, 0, fmt.Errorf("%w: unknown status %q", ledger.ErrInvalidEntry, st)
		}
	}
	return s.Store.ListPending(ctx, q)
}

// ListForMember returns a member's open (pending or failed) records.
func (s *Service) ListForMember(ctx context.Context, loyaltyID string) ([]Transaction, error) {
	return s.Store.OpenPendingForMember(ctx, loyaltyID)
}

func (s *Service) entryFromInput(actor string, input SubmitInput) ledger.QueuedEntry {
	return ledger.QueuedEntry{
		LoyaltyID:             input.LoyaltyID,
		TransactionType:       input.TransactionType,
		Amount:                input.Amount,
		Currency:              input.Currency,
		OrderNumber:           input.OrderNumber,
		Reason:                input.Reason,
		EventID:               input.EventID,
		OriginalTransactionID: input.OriginalTransactionID,
		Origin:                ledger.OriginDirect,
		OriginRef:             actor,
	}
}

func (s *Service) auditTransition(ctx context.Context, reviewer string, t *Transaction, previous Status) {
	before := *t
	before.Status = previous
	audit.Try(ctx, s.Audit, audit.Event{
		Actor:    reviewer,
		Resource: t.Entry.LoyaltyID,
		Action:   audit.ActionChangeStatus,
		Before:   before,
		After:    *t,
	})
}
