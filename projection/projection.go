/*
Package projection computes the read-side view of a member's ledger.

PURPOSE:
  Nothing here is persisted. For each entry in a member's history the
  projection folds a running cumulative point total and looks up the tier
  the member held immediately after that entry. The fold always runs over
  the history in ascending creation order; the caller chooses the sort
  order of the returned slice independently.

TIER LOOKUP:
  Tiers come from an external threshold table consumed as a pure function
  of cumulative points. ThresholdTable is the standard value
  implementation; anything satisfying TierTable works.
*/
package projection

import (
	"context"
	"sort"

	"github.com/meridian/loyalty-engine/ledger"
)

// =============================================================================
// TIERS
// =============================================================================

// Tier is a named reward level with its entry threshold.
type Tier struct {
	Name      string `yaml:"name"`
	Threshold int64  `yaml:"threshold"`
}

// TierTable maps cumulative points to a tier.
type TierTable interface {
	TierForPoints(cumulativePoints int64) Tier
}

// ThresholdTable is a TierTable backed by a static threshold list.
type ThresholdTable struct {
	tiers []Tier // sorted ascending by threshold
}

// NewThresholdTable builds a table from tiers in any order.
func NewThresholdTable(tiers []Tier) *ThresholdTable {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })
	return &ThresholdTable{tiers: sorted}
}

// TierForPoints returns the highest tier whose threshold is at or below
// the cumulative total. Totals below every threshold get the lowest tier.
func (t *ThresholdTable) TierForPoints(cumulativePoints int64) Tier {
	if len(t.tiers) == 0 {
		return Tier{}
	}
	current := t.tiers[0]
	for _, tier := range t.tiers {
		if tier.Threshold <= cumulativePoints {
			current = tier
		}
	}
	return current
}

// =============================================================================
// PROJECTION
// =============================================================================

// TierPoints is one ledger entry annotated with the running state after it.
type TierPoints struct {
	Entry            ledger.Entry
	CumulativePoints int64
	Tier             Tier
}

// EntrySource is the slice of the ledger store the projection reads.
type EntrySource interface {
	EntriesByLoyaltyID(ctx context.Context, loyaltyID string) ([]ledger.Entry, error)
}

type Service struct {
	Entries EntrySource
	Tiers   TierTable
}

// MemberHistory returns a member's entries annotated with cumulative
// points and tier. The accumulation runs oldest-first regardless of the
// requested order; desc only reverses the returned slice.
func (s *Service) MemberHistory(ctx context.Context, loyaltyID string, desc bool) ([]TierPoints, error) {
	if loyaltyID == "" {
		return nil, nil
	}

	entries, err := s.Entries.EntriesByLoyaltyID(ctx, loyaltyID)
	if err != nil {
		return nil, err
	}

	result := make([]TierPoints, 0, len(entries))
	var cumulative int64
	for _, e := range entries {
		cumulative += e.Points
		result = append(result, TierPoints{
			Entry:            e,
			CumulativePoints: cumulative,
			Tier:             s.Tiers.TierForPoints(cumulative),
		})
	}

	if desc {
		for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
			result[i], result[j] = result[j], result[i]
		}
	}
	return result, nil
}

// Balance returns the member's current cumulative total, the fold over
// the full history.
func (s *Service) Balance(ctx context.Context, loyaltyID string) (int64, error) {
	entries, err := s.Entries.EntriesByLoyaltyID(ctx, loyaltyID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Points
	}
	return total, nil
}
