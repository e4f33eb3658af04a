/*
Package audit defines the event sink the pipeline reports to.

State transitions emit before/after snapshots here. The sink is
fire-and-forget from the core's perspective: callers make one best-effort
attempt and must never block on or fail because of sink unavailability.
*/
package audit

import (
	"context"
	"log"
	"sync"
	"time"
)

type Action string

const (
	ActionAddTransaction Action = "add-transaction"
	ActionAddPending     Action = "add-pending-transaction"
	ActionChangeStatus   Action = "change-transaction-status"
	ActionUpdateOffer    Action = "update-point-offer"
	ActionApplyOffer     Action = "apply-point-offer"
)

// Event is one before/after snapshot of a state transition.
type Event struct {
	Actor    string // who performed the action
	Resource string // what it acted on (member id, offer id, ...)
	Action   Action
	Before   any
	After    any
	At       time.Time
}

// Sink receives audit events.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Try records an event best-effort: a sink failure is logged, not returned.
func Try(ctx context.Context, sink Sink, e Event) {
	if sink == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := sink.Record(ctx, e); err != nil {
		log.Printf("audit: sink unavailable, dropping %s event for %s: %v", e.Action, e.Resource, err)
	}
}

// =============================================================================
// SINKS
// =============================================================================

// LogSink writes events to the process log.
type LogSink struct{}

func (LogSink) Record(_ context.Context, e Event) error {
	log.Printf("audit: %s actor=%s resource=%s", e.Action, e.Actor, e.Resource)
	return nil
}

// MemorySink accumulates events, for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemorySink) Record(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
