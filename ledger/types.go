/*
Package ledger is the core of the loyalty point pipeline.

PURPOSE:
  This package owns the transaction ledger: the immutable record of every
  point movement for every member, the wire-level message that travels on
  the transport between submission and commit, and the rules that turn a
  submitted amount into a signed point delta.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: An immutable ledger record (one point movement, one member)
  - QueuedEntry: The wire projection of an Entry used on the transport
  - TransactionType / Currency / Origin / Reason: Closed enumerations

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified once committed
  2. Signed deltas: chargebacks are always stored with non-positive points
  3. Precision: monetary face values use decimal.Decimal, points are int64
  4. Attribution: every entry carries its origin and an opaque originRef

SEE ALSO:
  - service.go: Batch ingestion and the atomic commit path
  - producer.go: Enqueuing entries onto the transport
  - errors.go: Error taxonomy for the pipeline
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENUMERATIONS
// =============================================================================

type TransactionType string

const (
	TypePayment    TransactionType = "payment"
	TypeChargeback TransactionType = "chargeback"
)

func (t TransactionType) Valid() bool {
	return t == TypePayment || t == TypeChargeback
}

type Currency string

const (
	CurrencyUSD    Currency = "USD"
	CurrencyPoints Currency = "points"
)

func (c Currency) Valid() bool {
	return c == CurrencyUSD || c == CurrencyPoints
}

// Origin identifies the channel an entry came from.
type Origin string

const (
	OriginPearl    Origin = "pearl"           // partner event pipeline
	OriginDirect   Origin = "direct-channel"  // reviewer/operator desk
	OriginInStore  Origin = "in-store"
	OriginOnline   Origin = "online"
	OriginPartner  Origin = "external-partner"
)

// Reason is an optional classification tag on an entry.
type Reason string

const (
	ReasonManualStorePurchase  Reason = "manual-store-purchase"
	ReasonManualOnlinePurchase Reason = "manual-online-purchase"
	ReasonMistakeChargeback    Reason = "mistake-chargeback"
	ReasonPartnerImport        Reason = "partner-import"
)

// =============================================================================
// ENTRY - Immutable committed ledger record
// =============================================================================

// Entry is one committed point movement for one member.
//
// INVARIANTS:
//   - Immutable once committed. No updates, no deletes.
//   - Points sign matches TransactionType: chargeback means Points <= 0.
//   - Created only by the ingestion consumer or the direct-commit path.
type Entry struct {
	ID            string
	LoyaltyID     string
	TransactionType TransactionType
	Points        int64
	Amount        decimal.Decimal
	Currency      Currency
	Origin        Origin
	OriginRef     string
	Reason        Reason
	OrderNumber   string
	EventID       string

	// External correlation key carried over from the submitting system.
	OriginalTransactionID string

	TransactionDateTime time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// =============================================================================
// QUEUED ENTRY - Wire projection used on the transport
// =============================================================================

// QueuedEntry is what travels on the transport between enqueue and consume.
// It is an Entry minus internal bookkeeping; Points is optional on the wire
// (nil means "derive from Amount" at commit time).
//
// ID is set only when the message is tied to a pending-transaction record:
// a failed commit can then be traced back and retried through review.
type QueuedEntry struct {
	ID                    string          `json:"id,omitempty"`
	LoyaltyID             string          `json:"loyaltyId"`
	TransactionType       TransactionType `json:"transactionType"`
	Points                *int64          `json:"points,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              Currency        `json:"currency"`
	Origin                Origin          `json:"origin"`
	OriginRef             string          `json:"originRef,omitempty"`
	Reason                Reason          `json:"reason,omitempty"`
	OrderNumber           string          `json:"orderNumber,omitempty"`
	EventID               string          `json:"eventId,omitempty"`
	OriginalTransactionID string          `json:"originalTransactionId,omitempty"`
	TransactionDateTime   time.Time       `json:"transactionDateTime"`
}

// PointDelta resolves the signed point delta for a queued entry:
// the explicit points field when present, otherwise the rounded amount.
// Chargebacks are forced to non-positive sign regardless of input sign.
func (q QueuedEntry) PointDelta() int64 {
	var points int64
	if q.Points != nil {
		points = *q.Points
	} else {
		points = q.Amount.Round(0).IntPart()
	}
	if q.TransactionType == TypeChargeback && points > 0 {
		points = -points
	}
	return points
}

// Ptr is a convenience for building QueuedEntry values with explicit points.
func Ptr(v int64) *int64 { return &v }
