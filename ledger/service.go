/*
service.go - Ingestion consumer and the atomic commit path

PURPOSE:
  Drains transaction batches from the transport and commits them. This is
  where the financial-grade invariants live:

  - No double-crediting: the transport dedups on token, the commit is
    atomic, and redelivery only happens when nothing became visible.
  - No lost updates: entry creation and balance increment happen in the
    same commit scope.
  - Exactly-once effective application: per-member ordering comes from
    the transport's ordering key; the commit either lands in full or
    rolls back in full.

SKIP vs FAIL:
  A message whose member cannot be resolved is a data-quality problem,
  not a transport failure. It is logged and skipped; the rest of the
  batch still commits. Commit-layer errors abort the whole unit and
  propagate to the transport, which governs redelivery.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/meridian/loyalty-engine/member"
)

// =============================================================================
// SERVICE - Batch ingestion and direct commit
// =============================================================================

// Service commits queued entries into the ledger store.
type Service struct {
	Store   Store
	Members member.Directory
}

func NewService(store Store, members member.Directory) *Service {
	return &Service{Store: store, Members: members}
}

// ProcessBatch commits one transport batch. All messages in a batch come
// from one ordering partition, so they usually share a loyalty id; the
// consumer does not itself enforce that.
//
// Resolvable messages commit as a single atomic unit: either every entry
// is created and every balance delta applied, or none are. Unresolvable
// members are logged and skipped.
func (s *Service) ProcessBatch(ctx context.Context, batch []QueuedEntry) error {
	resolvable := make([]QueuedEntry, 0, len(batch))
	for _, q := range batch {
		_, err := s.Members.FindByLoyaltyID(ctx, q.LoyaltyID, false)
		if errors.Is(err, member.ErrNotFound) {
			log.Printf("ledger: skipping entry with unknown loyalty id %q (origin=%s)", q.LoyaltyID, q.Origin)
			continue
		}
		if err != nil {
			// Store failure, not a data-quality gap: let the transport retry.
			return fmt.Errorf("failed to resolve member %q: %w", q.LoyaltyID, err)
		}
		resolvable = append(resolvable, q)
	}

	if len(resolvable) == 0 {
		return nil
	}

	err := s.Store.WithCommit(ctx, func(scope CommitScope) error {
		for _, q := range resolvable {
			entry := s.materialize(q)
			if err := scope.AppendEntry(ctx, entry); err != nil {
				return err
			}
			if err := scope.IncrementBalance(ctx, entry.LoyaltyID, entry.Points); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &CommitError{BatchSize: len(resolvable), Cause: err}
	}
	return nil
}

// Commit applies a single entry through the same atomic path.
// Unlike ProcessBatch, an unresolvable member is an error here: the
// caller (the approval workflow) is acting on a specific record and a
// silent skip would lose the approval.
func (s *Service) Commit(ctx context.Context, q QueuedEntry) error {
	if _, err := s.Members.FindByLoyaltyID(ctx, q.LoyaltyID, false); err != nil {
		return err
	}

	err := s.Store.WithCommit(ctx, func(scope CommitScope) error {
		entry := s.materialize(q)
		if err := scope.AppendEntry(ctx, entry); err != nil {
			return err
		}
		return scope.IncrementBalance(ctx, entry.LoyaltyID, entry.Points)
	})
	if err != nil {
		return &CommitError{BatchSize: 1, Cause: err}
	}
	return nil
}

// History returns a member's committed entries, oldest first.
func (s *Service) History(ctx context.Context, loyaltyID string) ([]Entry, error) {
	return s.Store.EntriesByLoyaltyID(ctx, loyaltyID)
}

// SwapLoyaltyID re-keys a member's ledger history to a new loyalty id.
func (s *Service) SwapLoyaltyID(ctx context.Context, oldID, newID string) error {
	return s.Store.SwapLoyaltyID(ctx, oldID, newID)
}

func (s *Service) materialize(q QueuedEntry) Entry {
	now := time.Now().UTC()
	at := q.TransactionDateTime
	if at.IsZero() {
		at = now
	}
	return Entry{
		ID:                    uuid.NewString(),
		LoyaltyID:             q.LoyaltyID,
		TransactionType:       q.TransactionType,
		Points:                q.PointDelta(),
		Amount:                q.Amount,
		Currency:              q.Currency,
		Origin:                q.Origin,
		OriginRef:             q.OriginRef,
		Reason:                q.Reason,
		OrderNumber:           q.OrderNumber,
		EventID:               q.EventID,
		OriginalTransactionID: q.OriginalTransactionID,
		TransactionDateTime:   at,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}
