/*
Package offers grants one-time promotional point offers.

PURPOSE:
  A point offer is a named grant ("pearl", a signup bonus, ...) that a
  member may redeem at most once, ever. Redemption enqueues an ordinary
  ledger entry through the transport; the at-most-once guarantee comes
  from a conditional append on the member's used-offer set, not from a
  read-then-check, so two concurrent redemptions of the same offer cannot
  both get through.

ORDER OF EFFECTS (per offer, deterministic by system name):
  1. Conditional append to usedOffers - loses the race, skips the offer
  2. Enqueue the payment entry (currency=points, amount=offer points)
  3. Increment the offer's redemption counter

  A failure between 1 and 2 leaves a used-offer mark without an entry;
  that is the conservative side of the gap: the member loses a grant
  rather than receiving it twice.

SEE ALSO:
  - member/member.go: The conditional AppendUsedOffer contract
  - ledger/producer.go: The transport producer redemptions go through
*/
package offers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/loyalty-engine/audit"
	"github.com/meridian/loyalty-engine/ledger"
	"github.com/meridian/loyalty-engine/member"
)

// =============================================================================
// MODEL
// =============================================================================

// Offer is a named promotional point grant, administered externally.
// UsedNumber is a monotonic counter of redemptions across all members.
type Offer struct {
	ID         string
	SystemName string
	Points     int64
	IsActive   bool
	UsedNumber int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store persists point offers.
type Store interface {
	// GetOffer returns ledger.ErrOfferNotFound for unknown ids.
	GetOffer(ctx context.Context, id string) (*Offer, error)
	ListOffers(ctx context.Context) ([]Offer, error)
	// ActiveOffersByNames returns active offers whose system name is in names.
	ActiveOffersByNames(ctx context.Context, names []string) ([]Offer, error)
	CreateOffer(ctx context.Context, o *Offer) error
	UpdateOffer(ctx context.Context, o *Offer) error
	// IncrementUsedNumber bumps the redemption counter by one.
	IncrementUsedNumber(ctx context.Context, id string) error
}

// =============================================================================
// ENGINE
// =============================================================================

// Producer is the transport path redemption entries are enqueued on.
type Producer interface {
	Enqueue(ctx context.Context, entries []ledger.QueuedEntry) error
}

type Engine struct {
	Store    Store
	Members  member.Directory
	Producer Producer
	Audit    audit.Sink
}

// Apply redeems each named offer for the member at most once.
// No-op when the member is inactive or the name set is empty.
func (e *Engine) Apply(ctx context.Context, m *member.Member, names []string) error {
	if m == nil || !m.IsActive || len(names) == 0 {
		return nil
	}

	offers, err := e.Store.ActiveOffersByNames(ctx, names)
	if err != nil {
		return fmt.Errorf("failed to load offers: %w", err)
	}
	if len(offers) == 0 {
		return nil
	}

	sort.Slice(offers, func(i, j int) bool { return offers[i].SystemName < offers[j].SystemName })

	for _, offer := range offers {
		if m.HasUsedOffer(offer.ID) {
			continue
		}

		appliedAt := time.Now().UTC()
		err := e.Members.AppendUsedOffer(ctx, m.ID, offer.ID, appliedAt)
		if errors.Is(err, member.ErrOfferAlreadyUsed) {
			// Lost a concurrent race or stale member snapshot: already granted.
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to mark offer %s used: %w", offer.SystemName, err)
		}

		entry := ledger.QueuedEntry{
			LoyaltyID:           m.LoyaltyID,
			TransactionType:     ledger.TypePayment,
			Amount:              decimal.NewFromInt(offer.Points),
			Currency:            ledger.CurrencyPoints,
			Origin:              ledger.OriginPearl,
			OriginRef:           offer.ID,
			TransactionDateTime: appliedAt,
		}
		if err := e.Producer.Enqueue(ctx, []ledger.QueuedEntry{entry}); err != nil {
			return fmt.Errorf("failed to enqueue offer grant %s: %w", offer.SystemName, err)
		}

		if err := e.Store.IncrementUsedNumber(ctx, offer.ID); err != nil {
			return fmt.Errorf("failed to count redemption of %s: %w", offer.SystemName, err)
		}

		audit.Try(ctx, e.Audit, audit.Event{
			Actor: "system", Resource: m.ID, Action: audit.ActionApplyOffer, After: offer.SystemName,
		})
		log.Printf("offers: applied %s (%d points) to member %s", offer.SystemName, offer.Points, m.LoyaltyID)
	}

	return nil
}

// ApplyByEmail resolves an active member by email and delegates to Apply.
// Silently a no-op when no active member matches: partner events routinely
// reference people who never joined the program.
func (e *Engine) ApplyByEmail(ctx context.Context, email string, names []string) error {
	m, err := e.Members.FindByEmail(ctx, email, true)
	if errors.Is(err, member.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return e.Apply(ctx, m, names)
}

// =============================================================================
// ADMINISTRATION
// =============================================================================

// UpdateInput mutates an offer's grant size and active flag.
// Points is applied only when positive; zero leaves the grant unchanged.
type UpdateInput struct {
	Points   int64
	IsActive bool
}

// Get returns one offer by id.
func (e *Engine) Get(ctx context.Context, id string) (*Offer, error) {
	return e.Store.GetOffer(ctx, id)
}

// List returns all offers.
func (e *Engine) List(ctx context.Context) ([]Offer, error) {
	return e.Store.ListOffers(ctx)
}

// Update applies an administrative change to an offer.
func (e *Engine) Update(ctx context.Context, actor, id string, input UpdateInput) (*Offer, error) {
	offer, err := e.Store.GetOffer(ctx, id)
	if err != nil {
		return nil, err
	}

	before := *offer
	if input.Points > 0 {
		offer.Points = input.Points
	}
	offer.IsActive = input.IsActive

	if err := e.Store.UpdateOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("failed to update offer: %w", err)
	}

	audit.Try(ctx, e.Audit, audit.Event{
		Actor: actor, Resource: offer.ID, Action: audit.ActionUpdateOffer,
		Before: before, After: *offer,
	})
	return offer, nil
}
