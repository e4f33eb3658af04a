/*
Package memory provides in-memory store implementations for tests and
local development. One Store satisfies every persistence interface the
pipeline consumes: ledger.Store, member.Directory, pending.Store and
offers.Store.

The commit scope is simulated the same way the production store behaves:
a snapshot is taken when the scope opens and restored wholesale if the
scoped function errors, so a partial commit is never observable.
*/
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meridian/loyalty-engine/ledger"
	"github.com/meridian/loyalty-engine/member"
	"github.com/meridian/loyalty-engine/offers"
	"github.com/meridian/loyalty-engine/pending"
)

type pendingRecord struct {
	tx  pending.Transaction
	seq int64
}

type Store struct {
	mu      sync.Mutex
	entries []ledger.Entry
	members map[string]*member.Member
	pending map[string]*pendingRecord
	offers  map[string]*offers.Offer
	seq     int64
}

func New() *Store {
	return &Store{
		members: make(map[string]*member.Member),
		pending: make(map[string]*pendingRecord),
		offers:  make(map[string]*offers.Offer),
	}
}

// =============================================================================
// LEDGER STORE (ledger.Store)
// =============================================================================

type commitScope struct {
	s *Store
}

func (c commitScope) AppendEntry(_ context.Context, e ledger.Entry) error {
	c.s.entries = append(c.s.entries, e)
	return nil
}

func (c commitScope) IncrementBalance(_ context.Context, loyaltyID string, delta int64) error {
	for _, m := range c.s.members {
		if m.LoyaltyID == loyaltyID {
			m.Balance += delta
			return nil
		}
	}
	return member.ErrNotFound
}

// WithCommit runs fn against a scope; on error the pre-scope snapshot is
// restored so nothing partial ever becomes visible.
func (s *Store) WithCommit(_ context.Context, fn func(ledger.CommitScope) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entriesSnap := make([]ledger.Entry, len(s.entries))
	copy(entriesSnap, s.entries)
	balancesSnap := make(map[string]int64, len(s.members))
	for id, m := range s.members {
		balancesSnap[id] = m.Balance
	}

	if err := fn(commitScope{s: s}); err != nil {
		s.entries = entriesSnap
		for id, bal := range balancesSnap {
			s.members[id].Balance = bal
		}
		return err
	}
	return nil
}

func (s *Store) EntriesByLoyaltyID(_ context.Context, loyaltyID string) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ledger.Entry
	for _, e := range s.entries {
		if e.LoyaltyID == loyaltyID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SwapLoyaltyID(_ context.Context, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].LoyaltyID == oldID {
			s.entries[i].LoyaltyID = newID
		}
	}
	for _, r := range s.pending {
		if r.tx.Entry.LoyaltyID == oldID {
			r.tx.Entry.LoyaltyID = newID
		}
	}
	return nil
}

// =============================================================================
// MEMBER DIRECTORY (member.Directory)
// =============================================================================

func (s *Store) FindByID(_ context.Context, id string) (*member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.members[id]; ok {
		return copyMember(m), nil
	}
	return nil, member.ErrNotFound
}

func (s *Store) FindByLoyaltyID(_ context.Context, loyaltyID string, activeOnly bool) (*member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.LoyaltyID == loyaltyID && (!activeOnly || m.IsActive) {
			return copyMember(m), nil
		}
	}
	return nil, member.ErrNotFound
}

func (s *Store) FindByEmail(_ context.Context, email string, activeOnly bool) (*member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if strings.EqualFold(m.Email, email) && (!activeOnly || m.IsActive) {
			return copyMember(m), nil
		}
	}
	return nil, member.ErrNotFound
}

func (s *Store) CreateMember(_ context.Context, m *member.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.members[cp.ID] = &cp
	return nil
}

func (s *Store) AppendUsedOffer(_ context.Context, memberID, offerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[memberID]
	if !ok {
		return member.ErrNotFound
	}
	for _, u := range m.UsedOffers {
		if u.OfferID == offerID {
			return member.ErrOfferAlreadyUsed
		}
	}
	m.UsedOffers = append(m.UsedOffers, member.UsedOffer{OfferID: offerID, AppliedAt: at})
	return nil
}

func copyMember(m *member.Member) *member.Member {
	cp := *m
	cp.UsedOffers = append([]member.UsedOffer(nil), m.UsedOffers...)
	return &cp
}

// =============================================================================
// PENDING STORE (pending.Store)
// =============================================================================

func (s *Store) CreatePending(ctx context.Context, t *pending.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.seq++
	s.pending[t.ID] = &pendingRecord{tx: *t, seq: s.seq}
	return nil
}

func (s *Store) GetPending(_ context.Context, id string) (*pending.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.pending[id]; ok {
		cp := r.tx
		return &cp, nil
	}
	return nil, ledger.ErrPendingNotFound
}

func (s *Store) UpdatePending(_ context.Context, t *pending.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.pending[t.ID]
	if !ok {
		return ledger.ErrPendingNotFound
	}
	t.UpdatedAt = time.Now().UTC()
	r.tx = *t
	return nil
}

func (s *Store) ListPending(_ context.Context, q pending.Query) ([]pending.Transaction, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*pendingRecord
	for _, r := range s.pending {
		if matchesStatuses(r.tx.Status, q.Statuses) {
			matched = append(matched, r)
		}
	}
	// createdAt descending, insertion order as tie-break
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].tx.CreatedAt.Equal(matched[j].tx.CreatedAt) {
			return matched[i].seq > matched[j].seq
		}
		return matched[i].tx.CreatedAt.After(matched[j].tx.CreatedAt)
	})

	total := len(matched)
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}

	out := make([]pending.Transaction, 0, len(matched))
	for _, r := range matched {
		out = append(out, r.tx)
	}
	return out, total, nil
}

func (s *Store) OpenPendingForMember(_ context.Context, loyaltyID string) ([]pending.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []pending.Transaction
	for _, r := range s.pending {
		if r.tx.Entry.LoyaltyID == loyaltyID && r.tx.Status.Reviewable() {
			out = append(out, r.tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func matchesStatuses(s pending.Status, statuses []pending.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

// =============================================================================
// OFFER STORE (offers.Store)
// =============================================================================

func (s *Store) GetOffer(_ context.Context, id string) (*offers.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.offers[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, ledger.ErrOfferNotFound
}

func (s *Store) ListOffers(_ context.Context) ([]offers.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]offers.Offer, 0, len(s.offers))
	for _, o := range s.offers {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SystemName < out[j].SystemName })
	return out, nil
}

func (s *Store) ActiveOffersByNames(_ context.Context, names []string) ([]offers.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []offers.Offer
	for _, o := range s.offers {
		if o.IsActive && wanted[o.SystemName] {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *Store) CreateOffer(_ context.Context, o *offers.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.offers[cp.ID] = &cp
	return nil
}

func (s *Store) UpdateOffer(_ context.Context, o *offers.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.offers[o.ID]
	if !ok {
		return ledger.ErrOfferNotFound
	}
	o.UsedNumber = existing.UsedNumber // counter moves through IncrementUsedNumber only
	o.UpdatedAt = time.Now().UTC()
	*existing = *o
	return nil
}

func (s *Store) IncrementUsedNumber(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[id]
	if !ok {
		return ledger.ErrOfferNotFound
	}
	o.UsedNumber++
	return nil
}
