/*
errors.go - Centralized error taxonomy for the ledger pipeline

ERROR CATEGORIES:
  1. Validation gaps  - bad references discovered during ingestion
  2. Commit failures  - the atomic unit could not complete
  3. Not-found errors - caller referenced a record that does not exist
  4. Client errors    - illegal transitions, duplicate redemptions

PROPAGATION POLICY:
  Per-item data-quality issues during ingestion (unknown member) are
  absorbed locally: logged and skipped. Commit-layer and store-layer
  failures are always surfaced to the caller or transport, never
  swallowed; masking them would break the atomicity guarantee.
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/meridian/loyalty-engine/member"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPendingNotFound is returned for operations referencing a
	// pending-transaction id that does not exist.
	ErrPendingNotFound = errors.New("pending transaction not found")

	// ErrOfferNotFound is returned for operations referencing a point
	// offer that does not exist.
	ErrOfferNotFound = errors.New("point offer not found")

	// ErrCommitFailed wraps any failure of the atomic commit unit.
	ErrCommitFailed = errors.New("ledger commit failed")

	// ErrInvalidEntry is returned for submissions that fail validation
	// before they ever reach the transport.
	ErrInvalidEntry = errors.New("invalid entry")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// CommitError carries the batch size and underlying cause of a failed
// atomic commit. The whole batch aborts; the transport governs redelivery.
type CommitError struct {
	BatchSize int
	Cause     error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("ledger commit failed for batch of %d: %v", e.BatchSize, e.Cause)
}

func (e *CommitError) Unwrap() error { return ErrCommitFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, member.ErrNotFound) ||
		errors.Is(err, ErrPendingNotFound) ||
		errors.Is(err, ErrOfferNotFound)
}

// IsClientError reports whether the error is due to invalid caller input
// rather than an infrastructure failure. Client errors are not retried.
func IsClientError(err error) bool {
	return IsNotFound(err) ||
		errors.Is(err, member.ErrOfferAlreadyUsed) ||
		errors.Is(err, ErrInvalidEntry)
}
