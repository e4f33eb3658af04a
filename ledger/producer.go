/*
producer.go - Enqueuing ledger entries onto the transport

PURPOSE:
  Everything that wants a ledger entry committed asynchronously goes
  through the Enqueuer: synchronous submissions, re-approved failed
  transactions, and point-offer redemptions. The Enqueuer owns the
  ordering key (the member's loyalty id, so one member's entries stay
  serialized) and the dedup token.

DEDUP TOKENS:
  Two modes. Content-derived (default) hashes the identity fields of the
  payload so a retried enqueue of the same logical message carries the
  same token and the transport can drop it. Random reproduces the legacy
  behavior of a fresh token per enqueue, which effectively disables
  transport-level dedup; use it only when the transport does its own.
*/
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Transport is the ordered, at-least-once message channel the pipeline
// publishes to. Ordering key SHOULD be the member's loyalty id; messages
// sharing an ordering key are delivered in order and serialized.
type Transport interface {
	Enqueue(ctx context.Context, orderingKey, dedupKey string, body []byte) error
}

// DedupMode selects how Enqueuer derives dedup tokens.
type DedupMode string

const (
	DedupContent DedupMode = "content"
	DedupRandom  DedupMode = "random"
)

// Enqueuer publishes queued entries keyed and tokenized for the transport.
type Enqueuer struct {
	Transport Transport
	Mode      DedupMode
}

func NewEnqueuer(t Transport, mode DedupMode) *Enqueuer {
	if mode == "" {
		mode = DedupContent
	}
	return &Enqueuer{Transport: t, Mode: mode}
}

// Enqueue publishes one batch of entries for a single member.
// All entries in a batch must share a loyalty id; the id becomes the
// ordering key so the member's ledger is applied in submission order.
func (e *Enqueuer) Enqueue(ctx context.Context, entries []QueuedEntry) error {
	if len(entries) == 0 {
		return nil
	}
	loyaltyID := entries[0].LoyaltyID
	for _, q := range entries {
		if q.LoyaltyID != loyaltyID {
			return fmt.Errorf("%w: batch mixes loyalty ids %q and %q", ErrInvalidEntry, loyaltyID, q.LoyaltyID)
		}
		if !q.TransactionType.Valid() {
			return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidEntry, q.TransactionType)
		}
		if !q.Currency.Valid() {
			return fmt.Errorf("%w: unknown currency %q", ErrInvalidEntry, q.Currency)
		}
	}

	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	return e.Transport.Enqueue(ctx, loyaltyID, e.dedupToken(entries), body)
}

func (e *Enqueuer) dedupToken(entries []QueuedEntry) string {
	if e.Mode == DedupRandom {
		return uuid.NewString()
	}

	// Identity fields only: timestamps of enqueue attempts must not
	// change the token, or retries stop deduplicating. The record id is
	// part of the identity: a re-enqueue of a reviewed failed record is
	// a distinct message, not a duplicate of the original submission.
	h := sha256.New()
	for _, q := range entries {
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%s|%s|%s\n",
			q.ID, q.LoyaltyID, q.TransactionType, q.Amount.String(), q.Currency,
			q.Origin, q.OriginRef, q.OrderNumber, q.EventID, q.OriginalTransactionID)
		if q.Points != nil {
			fmt.Fprintf(h, "points=%d\n", *q.Points)
		}
		fmt.Fprintf(h, "at=%d\n", q.TransactionDateTime.UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}
