/*
Package worker wires transport messages to the pipeline services.

Two topics exist. The transactions topic carries QueuedEntry batches and
is drained into the ledger's atomic commit path; batches that exhaust the
delivery budget land in the pending table as failed, where a reviewer can
resurrect them. The partner events topic carries opaque event envelopes
from the partner network; the only ones acted on are member events with
an email, which redeem the partner point offer.
*/
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/meridian/loyalty-engine/ledger"
	"github.com/meridian/loyalty-engine/pending"
	"github.com/meridian/loyalty-engine/queue"
)

// Topic names used when one broker carries both streams.
const (
	TransactionsTopic  = "transactions-queue"
	PartnerEventsTopic = "partner-events-queue"
)

type Service struct {
	Ledger  *ledger.Service
	Pending *pending.Service
	Offers  OfferApplier

	// PartnerOfferNames are the offer system names a partner member
	// event may redeem.
	PartnerOfferNames []string
}

// OfferApplier is the slice of the redemption engine the worker needs.
type OfferApplier interface {
	ApplyByEmail(ctx context.Context, email string, names []string) error
}

// =============================================================================
// TRANSACTIONS TOPIC
// =============================================================================

// HandleTransactions is the consumer callback for the transactions topic.
// An error aborts the whole batch and the transport redelivers it.
func (s *Service) HandleTransactions(ctx context.Context, body []byte) error {
	var batch []ledger.QueuedEntry
	if err := json.Unmarshal(body, &batch); err != nil {
		// Undecodable bodies never succeed; fail them towards dead-letter.
		return fmt.Errorf("undecodable transaction batch: %w", err)
	}
	return s.Ledger.ProcessBatch(ctx, batch)
}

// HandleTransactionsDeadLetter records exhausted batches as failed
// pending transactions so they stay visible to reviewers.
func (s *Service) HandleTransactionsDeadLetter(ctx context.Context, m queue.Message, cause error) {
	var batch []ledger.QueuedEntry
	if err := json.Unmarshal(m.Body, &batch); err != nil {
		log.Printf("worker: dropping undecodable dead letter %s: %v", m.ID, err)
		return
	}
	for _, q := range batch {
		if _, err := s.Pending.MarkFailed(ctx, q); err != nil {
			log.Printf("worker: failed to record dead letter for loyalty id %s: %v", q.LoyaltyID, err)
		}
	}
	log.Printf("worker: recorded %d failed transaction(s) from message %s: %v", len(batch), m.ID, cause)
}

// =============================================================================
// PARTNER EVENTS TOPIC
// =============================================================================

// partnerEnvelope is the notification wrapper partner events arrive in:
// the interesting payload is a JSON string inside a JSON envelope.
type partnerEnvelope struct {
	Message   string `json:"Message"`
	MessageID string `json:"MessageId"`
	Timestamp string `json:"Timestamp"`
	Type      string `json:"Type"`
}

type partnerEvent struct {
	ObjectName string `json:"objectName"`
	Action     string `json:"action"`
	User       *struct {
		Email string `json:"email"`
	} `json:"user"`
}

// HandlePartnerEvent applies the partner point offers for member events.
// Malformed or irrelevant events are acked, not retried: they will never
// become valid.
func (s *Service) HandlePartnerEvent(ctx context.Context, body []byte) error {
	var envelope partnerEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		log.Printf("worker: ignoring undecodable partner envelope: %v", err)
		return nil
	}

	var event partnerEvent
	if err := json.Unmarshal([]byte(envelope.Message), &event); err != nil {
		log.Printf("worker: ignoring undecodable partner event %s: %v", envelope.MessageID, err)
		return nil
	}

	if event.ObjectName != "/event" || event.Action != "POST" || event.User == nil || event.User.Email == "" {
		return nil
	}

	log.Printf("worker: applying partner point offers for event %s", envelope.MessageID)
	return s.Offers.ApplyByEmail(ctx, strings.ToLower(event.User.Email), s.PartnerOfferNames)
}
