/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/meridian/loyalty-engine/ledger"
	"github.com/meridian/loyalty-engine/pending"
	"github.com/meridian/loyalty-engine/projection"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// SubmitTransactionRequest is a synchronous submission from an operator
// or a partner backend.
type SubmitTransactionRequest struct {
	LoyaltyID             string          `json:"loyaltyId"`
	TransactionType       string          `json:"transactionType"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	OrderNumber           string          `json:"orderNumber,omitempty"`
	Reason                string          `json:"reason,omitempty"`
	EventID               string          `json:"eventId,omitempty"`
	OriginalTransactionID string          `json:"originalTransactionId,omitempty"`
}

// SubmitTransactionResponse reports which path the submission took.
type SubmitTransactionResponse struct {
	Status  string                 `json:"status"` // "enqueued" or "pending-review"
	Pending *PendingTransactionDTO `json:"pending,omitempty"`
}

// EntryDTO is a committed ledger entry with its running projection.
type EntryDTO struct {
	ID                    string          `json:"id"`
	LoyaltyID             string          `json:"loyaltyId"`
	TransactionType       string          `json:"transactionType"`
	Points                int64           `json:"points"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Origin                string          `json:"origin"`
	OriginRef             string          `json:"originRef,omitempty"`
	Reason                string          `json:"reason,omitempty"`
	OrderNumber           string          `json:"orderNumber,omitempty"`
	EventID               string          `json:"eventId,omitempty"`
	OriginalTransactionID string          `json:"originalTransactionId,omitempty"`
	TransactionDateTime   string          `json:"transactionDateTime"`
	CreatedAt             string          `json:"createdAt"`
	CumulativePoints      int64           `json:"cumulativePoints"`
	Tier                  string          `json:"tier"`
}

// BalanceDTO is the member's current balance and tier.
type BalanceDTO struct {
	LoyaltyID string `json:"loyaltyId"`
	Balance   int64  `json:"balance"`
	Tier      string `json:"tier"`
}

// PendingTransactionDTO is a review-queue item.
type PendingTransactionDTO struct {
	ID                  string          `json:"id"`
	LoyaltyID           string          `json:"loyaltyId"`
	TransactionType     string          `json:"transactionType"`
	Points              *int64          `json:"points,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Origin              string          `json:"origin"`
	OriginRef           string          `json:"originRef,omitempty"`
	Reason              string          `json:"reason,omitempty"`
	OrderNumber         string          `json:"orderNumber,omitempty"`
	TransactionDateTime string          `json:"transactionDateTime,omitempty"`
	Status              string          `json:"status"`
	ModifiedBy          string          `json:"modifiedBy,omitempty"`
	Retries             int             `json:"retries"`
	CreatedAt           string          `json:"createdAt"`
	UpdatedAt           string          `json:"updatedAt"`
}

// PendingListResponse wraps a paginated review list.
type PendingListResponse struct {
	Transactions []PendingTransactionDTO `json:"transactions"`
	Total        int                     `json:"total"`
}

// ApplyOffersRequest grants the named offers to a member.
type ApplyOffersRequest struct {
	OfferNames []string `json:"offerNames"`
}

// OfferDTO is a point offer in API responses.
type OfferDTO struct {
	ID         string `json:"id"`
	SystemName string `json:"systemName"`
	Points     int64  `json:"points"`
	IsActive   bool   `json:"isActive"`
	UsedNumber int64  `json:"usedNumber"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

// UpdateOfferRequest edits an offer's points value and active flag.
type UpdateOfferRequest struct {
	Points   int64 `json:"points"`
	IsActive bool  `json:"isActive"`
}

// CreateMemberRequest registers a member.
type CreateMemberRequest struct {
	LoyaltyID string `json:"loyaltyId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// MemberDTO is a member in API responses.
type MemberDTO struct {
	ID        string `json:"id"`
	LoyaltyID string `json:"loyaltyId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	IsActive  bool   `json:"isActive"`
	Balance   int64  `json:"balance"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func entryDTO(tp projection.TierPoints) EntryDTO {
	e := tp.Entry
	return EntryDTO{
		ID:                    e.ID,
		LoyaltyID:             e.LoyaltyID,
		TransactionType:       string(e.TransactionType),
		Points:                e.Points,
		Amount:                e.Amount,
		Currency:              string(e.Currency),
		Origin:                string(e.Origin),
		OriginRef:             e.OriginRef,
		Reason:                string(e.Reason),
		OrderNumber:           e.OrderNumber,
		EventID:               e.EventID,
		OriginalTransactionID: e.OriginalTransactionID,
		TransactionDateTime:   formatTime(e.TransactionDateTime),
		CreatedAt:             formatTime(e.CreatedAt),
		CumulativePoints:      tp.CumulativePoints,
		Tier:                  tp.Tier.Name,
	}
}

func pendingDTO(t pending.Transaction) PendingTransactionDTO {
	dto := PendingTransactionDTO{
		ID:              t.ID,
		LoyaltyID:       t.Entry.LoyaltyID,
		TransactionType: string(t.Entry.TransactionType),
		Points:          t.Entry.Points,
		Amount:          t.Entry.Amount,
		Currency:        string(t.Entry.Currency),
		Origin:          string(t.Entry.Origin),
		OriginRef:       t.Entry.OriginRef,
		Reason:          string(t.Entry.Reason),
		OrderNumber:     t.Entry.OrderNumber,
		Status:          string(t.Status),
		ModifiedBy:      t.ModifiedBy,
		Retries:         t.Retries,
		CreatedAt:       formatTime(t.CreatedAt),
		UpdatedAt:       formatTime(t.UpdatedAt),
	}
	if !t.Entry.TransactionDateTime.IsZero() {
		dto.TransactionDateTime = formatTime(t.Entry.TransactionDateTime)
	}
	return dto
}

func submitInput(req SubmitTransactionRequest) pending.SubmitInput {
	return pending.SubmitInput{
		LoyaltyID:             req.LoyaltyID,
		TransactionType:       ledger.TransactionType(req.TransactionType),
		Amount:                req.Amount,
		Currency:              ledger.Currency(req.Currency),
		OrderNumber:           req.OrderNumber,
		Reason:                ledger.Reason(req.Reason),
		EventID:               req.EventID,
		OriginalTransactionID: req.OriginalTransactionID,
	}
}
