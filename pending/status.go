/*
status.go - Closed status type for transactions under review

The status set is closed and transitions are checked by a total function:
anything not listed is rejected with a typed error instead of silently
written. Approved and rejected are terminal for review actions; failed is
re-enterable because the asynchronous commit path can fail after an
approval re-enqueued the record.
*/
package pending

import "fmt"

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// transitions maps each status to the statuses it may move to.
// pending/failed are reviewable; failed is additionally re-enterable from
// pending (direct submission of an already-failed entry), from approved
// (async commit failure after re-enqueue) and from itself (repeat failure).
var transitions = map[Status]map[Status]bool{
	StatusPending:  {StatusApproved: true, StatusRejected: true, StatusFailed: true},
	StatusFailed:   {StatusApproved: true, StatusRejected: true, StatusFailed: true},
	StatusApproved: {StatusFailed: true},
	StatusRejected: {},
}

// Transition validates s -> to. Total: every pair gets an answer.
func (s Status) Transition(to Status) error {
	if !s.Valid() || !to.Valid() {
		return &InvalidTransitionError{From: s, To: to}
	}
	if !transitions[s][to] {
		return &InvalidTransitionError{From: s, To: to}
	}
	return nil
}

// Reviewable reports whether a reviewer may act on this status.
func (s Status) Reviewable() bool {
	return s == StatusPending || s == StatusFailed
}

// InvalidTransitionError reports an illegal status transition.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}
