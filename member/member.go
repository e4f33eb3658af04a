/*
Package member defines the member collaborator consumed by the pipeline.

The member record itself is owned by an external system; this package
specifies it at the interface boundary: lookups, the balance increment
applied inside a commit scope, and the append-only used-offer set.
*/
package member

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Directory lookups that resolve nothing.
	ErrNotFound = errors.New("member not found")

	// ErrOfferAlreadyUsed is returned by the conditional used-offer
	// append when the member has already redeemed the offer.
	ErrOfferAlreadyUsed = errors.New("offer already used by member")
)

// UsedOffer records one redeemed point offer for a member.
// The set is append-only and an offer id appears at most once.
type UsedOffer struct {
	OfferID   string
	AppliedAt time.Time
}

// Member is the referenced member state. Balance is the cumulative point
// balance maintained by the balance update engine.
type Member struct {
	ID         string
	LoyaltyID  string
	Email      string
	FirstName  string
	LastName   string
	IsActive   bool
	Balance    int64
	UsedOffers []UsedOffer
	CreatedAt  time.Time
}

// New creates an active member with a fresh id.
func New(loyaltyID, email, firstName, lastName string) *Member {
	return &Member{
		ID:        uuid.NewString(),
		LoyaltyID: loyaltyID,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
}

// HasUsedOffer reports whether offerID already appears in the used set.
func (m *Member) HasUsedOffer(offerID string) bool {
	for _, u := range m.UsedOffers {
		if u.OfferID == offerID {
			return true
		}
	}
	return false
}

// Directory resolves and mutates member records.
//
// AppendUsedOffer is conditional: it fails with ErrOfferAlreadyUsed when
// (memberID, offerID) is already present. This is a single store
// operation, not a read-then-write, so concurrent redemptions of the same
// offer cannot both succeed.
type Directory interface {
	// FindByID resolves a member by internal id.
	// Returns ErrNotFound when nothing matches.
	FindByID(ctx context.Context, id string) (*Member, error)

	// FindByLoyaltyID resolves a member by loyalty identifier.
	// When activeOnly is set, inactive members resolve to ErrNotFound.
	FindByLoyaltyID(ctx context.Context, loyaltyID string, activeOnly bool) (*Member, error)

	// FindByEmail resolves a member by email, same activeOnly contract.
	FindByEmail(ctx context.Context, email string, activeOnly bool) (*Member, error)

	// CreateMember registers a member record.
	CreateMember(ctx context.Context, m *Member) error

	// AppendUsedOffer appends {offerID, at} to the member's used set iff
	// the offer is not already present.
	AppendUsedOffer(ctx context.Context, memberID, offerID string, at time.Time) error
}
