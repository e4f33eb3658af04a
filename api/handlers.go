/*
handlers.go - HTTP API handlers for the loyalty ledger

PURPOSE:
  Exposes the ledger pipeline via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Transactions:
    POST   /api/transactions                      Submit a transaction
    GET    /api/members/{loyaltyID}/transactions  Committed history + tiers
    GET    /api/members/{loyaltyID}/balance       Current balance and tier

  Members:
    POST   /api/members                           Register a member
    GET    /api/members/{loyaltyID}/pending       Open review items
    POST   /api/members/{loyaltyID}/offers        Grant named offers

  Partner:
    POST   /api/partner/events                     Ingest a partner event

  Review:
    GET    /api/pending                            Paginated review list
    POST   /api/pending/{id}/approve               Approve a review item
    POST   /api/pending/{id}/reject                Reject a review item

  Offers:
    GET    /api/offers                             List offers
    GET    /api/offers/{id}                        Get an offer
    PUT    /api/offers/{id}                        Edit points/active flag

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, invalid status transition
  - 404: Member, pending transaction or offer not found
  - 500: Internal errors

ACTOR ATTRIBUTION:
  The X-Actor header names the caller for audit records. Authentication
  is delegated to the fronting gateway; absent a header the actor is
  recorded as "api".

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridian/loyalty-engine/ledger"
	"github.com/meridian/loyalty-engine/member"
	"github.com/meridian/loyalty-engine/offers"
	"github.com/meridian/loyalty-engine/pending"
	"github.com/meridian/loyalty-engine/projection"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Pending    *pending.Service
	Offers     *offers.Engine
	Projection *projection.Service
	Members    member.Directory

	// Partner receives raw partner event envelopes for asynchronous
	// processing. Optional; the route 404s without it.
	Partner ledger.Transport
}

// NewHandler creates a new handler.
func NewHandler(p *pending.Service, o *offers.Engine, proj *projection.Service, dir member.Directory) *Handler {
	return &Handler{Pending: p, Offers: o, Projection: proj, Members: dir}
}

func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "api"
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// SubmitTransaction routes a submission either onto the transport or
// into the review queue, depending on the review policy.
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req SubmitTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.LoyaltyID == "" {
		writeError(w, http.StatusBadRequest, "loyaltyId is required", nil)
		return
	}

	result, err := h.Pending.Submit(r.Context(), actor(r), submitInput(req))
	if err != nil {
		writeDomainError(w, "Failed to submit transaction", err)
		return
	}

	resp := SubmitTransactionResponse{Status: "enqueued"}
	if result.Pending != nil {
		dto := pendingDTO(*result.Pending)
		resp.Status = "pending-review"
		resp.Pending = &dto
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// GetTransactions returns the member's committed history, oldest first,
// with the cumulative-point and tier projection per entry.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	loyaltyID := chi.URLParam(r, "loyaltyID")
	desc := r.URL.Query().Get("order") == "desc"

	history, err := h.Projection.MemberHistory(r.Context(), loyaltyID, desc)
	if err != nil {
		writeDomainError(w, "Failed to get transactions", err)
		return
	}

	dtos := make([]EntryDTO, len(history))
	for i, tp := range history {
		dtos[i] = entryDTO(tp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": dtos})
}

// GetBalance returns the member's stored balance and projected tier.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	loyaltyID := chi.URLParam(r, "loyaltyID")

	m, err := h.Members.FindByLoyaltyID(r.Context(), loyaltyID, false)
	if err != nil {
		writeDomainError(w, "Failed to get member", err)
		return
	}
	history, err := h.Projection.MemberHistory(r.Context(), loyaltyID, false)
	if err != nil {
		writeDomainError(w, "Failed to project tier", err)
		return
	}

	dto := BalanceDTO{LoyaltyID: loyaltyID, Balance: m.Balance}
	if len(history) > 0 {
		dto.Tier = history[len(history)-1].Tier.Name
	} else {
		dto.Tier = h.Projection.Tiers.TierForPoints(0).Name
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// CreateMember registers a new member.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.LoyaltyID == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "loyaltyId and email are required", nil)
		return
	}

	m := member.New(req.LoyaltyID, strings.ToLower(req.Email), req.FirstName, req.LastName)
	if err := h.Members.CreateMember(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create member", err)
		return
	}
	writeJSON(w, http.StatusCreated, memberDTO(m))
}

// GetMemberPending returns the member's open (pending or failed)
// review items, newest first.
func (h *Handler) GetMemberPending(w http.ResponseWriter, r *http.Request) {
	loyaltyID := chi.URLParam(r, "loyaltyID")

	items, err := h.Pending.ListForMember(r.Context(), loyaltyID)
	if err != nil {
		writeDomainError(w, "Failed to list pending transactions", err)
		return
	}

	dtos := make([]PendingTransactionDTO, len(items))
	for i, t := range items {
		dtos[i] = pendingDTO(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": dtos})
}

// ApplyOffers grants the named offers to a member; already-used offers
// are skipped silently.
func (h *Handler) ApplyOffers(w http.ResponseWriter, r *http.Request) {
	loyaltyID := chi.URLParam(r, "loyaltyID")

	var req ApplyOffersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	m, err := h.Members.FindByLoyaltyID(r.Context(), loyaltyID, true)
	if err != nil {
		writeDomainError(w, "Failed to get member", err)
		return
	}
	if err := h.Offers.Apply(r.Context(), m, req.OfferNames); err != nil {
		writeDomainError(w, "Failed to apply offers", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "applied"})
}

// PublishPartnerEvent accepts a raw partner event envelope and hands it
// to the partner events topic. The body is not validated here; the
// worker acks anything it cannot decode.
func (h *Handler) PublishPartnerEvent(w http.ResponseWriter, r *http.Request) {
	if h.Partner == nil {
		writeError(w, http.StatusNotFound, "Partner events are not enabled", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	var envelope struct {
		MessageID string `json:"MessageId"`
	}
	_ = json.Unmarshal(body, &envelope)
	dedup := envelope.MessageID
	if dedup == "" {
		dedup = uuid.NewString()
	}

	if err := h.Partner.Enqueue(r.Context(), "partner-events", dedup, body); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to enqueue partner event", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// =============================================================================
// REVIEW HANDLERS
// =============================================================================

// ListPending returns the paginated review queue, optionally filtered
// by ?status=pending,failed.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	q := pending.Query{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			q.Statuses = append(q.Statuses, pending.Status(strings.TrimSpace(s)))
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			q.Limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			q.Offset = n
		}
	}

	items, total, err := h.Pending.List(r.Context(), q)
	if err != nil {
		writeDomainError(w, "Failed to list pending transactions", err)
		return
	}

	dtos := make([]PendingTransactionDTO, len(items))
	for i, t := range items {
		dtos[i] = pendingDTO(t)
	}
	writeJSON(w, http.StatusOK, PendingListResponse{Transactions: dtos, Total: total})
}

// ApprovePending approves a review item and hands it to the commit or
// retry path depending on its previous status.
func (h *Handler) ApprovePending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := h.Pending.Approve(r.Context(), id, actor(r))
	if err != nil {
		writeDomainError(w, "Failed to approve transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, pendingDTO(*t))
}

// RejectPending rejects a review item; rejection is terminal.
func (h *Handler) RejectPending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := h.Pending.Reject(r.Context(), id, actor(r))
	if err != nil {
		writeDomainError(w, "Failed to reject transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, pendingDTO(*t))
}

// =============================================================================
// OFFER HANDLERS
// =============================================================================

// ListOffers returns all offers, active and inactive.
func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	all, err := h.Offers.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list offers", err)
		return
	}

	dtos := make([]OfferDTO, len(all))
	for i, o := range all {
		dtos[i] = offerDTO(o)
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": dtos})
}

// GetOffer returns a single offer.
func (h *Handler) GetOffer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	o, err := h.Offers.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get offer", err)
		return
	}
	writeJSON(w, http.StatusOK, offerDTO(*o))
}

// UpdateOffer edits an offer's points value and active flag. The
// redemption counter is not editable.
func (h *Handler) UpdateOffer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	o, err := h.Offers.Update(r.Context(), actor(r), id, offers.UpdateInput{
		Points:   req.Points,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeDomainError(w, "Failed to update offer", err)
		return
	}
	writeJSON(w, http.StatusOK, offerDTO(*o))
}

// =============================================================================
// HELPERS
// =============================================================================

func memberDTO(m *member.Member) MemberDTO {
	return MemberDTO{
		ID:        m.ID,
		LoyaltyID: m.LoyaltyID,
		Email:     m.Email,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		IsActive:  m.IsActive,
		Balance:   m.Balance,
	}
}

func offerDTO(o offers.Offer) OfferDTO {
	return OfferDTO{
		ID:         o.ID,
		SystemName: o.SystemName,
		Points:     o.Points,
		IsActive:   o.IsActive,
		UsedNumber: o.UsedNumber,
		CreatedAt:  formatTime(o.CreatedAt),
		UpdatedAt:  formatTime(o.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	var transitionErr *pending.InvalidTransitionError
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsClientError(err), errors.As(err, &transitionErr):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
