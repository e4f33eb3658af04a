/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  Defines what the ledger needs from a store. The commit scope is the
  heart of it: an explicit unit-of-work value passed to every store call
  within one commit, with guaranteed rollback on any early exit. The
  document-store session the pipeline replaces was ambient; here it is
  an argument you cannot forget to thread.

APPEND-MOSTLY CONTRACT:
  Entries have no Update or Delete. The one sanctioned mutation is
  SwapLoyaltyID, which re-keys history during a member id migration.

IMPLEMENTATIONS:
  - store/sqlite: production store, commit scope = SQL transaction
  - store/memory: in-memory store for tests, snapshot + rollback
*/
package ledger

import "context"

// =============================================================================
// COMMIT SCOPE - Unit of work for one atomic commit
// =============================================================================

// CommitScope is the view of the store available inside one atomic commit.
// Everything done through a scope becomes visible together or not at all.
type CommitScope interface {
	// AppendEntry persists a committed ledger entry.
	AppendEntry(ctx context.Context, e Entry) error

	// IncrementBalance applies a point delta to a member's running
	// balance as part of the same atomic unit.
	IncrementBalance(ctx context.Context, loyaltyID string, delta int64) error
}

// CommitStore opens commit scopes.
type CommitStore interface {
	// WithCommit executes fn within an atomic commit scope.
	// If fn returns an error the scope is rolled back in full; there is
	// no cooperative cancellation once a commit begins.
	WithCommit(ctx context.Context, fn func(CommitScope) error) error
}

// =============================================================================
// READ SIDE
// =============================================================================

// Store is the full ledger store: commit scopes plus the read path.
type Store interface {
	CommitStore

	// EntriesByLoyaltyID returns a member's entries ordered by creation
	// time, ascending. The projection reverses afterwards if asked to.
	EntriesByLoyaltyID(ctx context.Context, loyaltyID string) ([]Entry, error)

	// SwapLoyaltyID re-keys all entries from oldID to newID.
	SwapLoyaltyID(ctx context.Context, oldID, newID string) error
}
