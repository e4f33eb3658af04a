/*
Package sqlite provides the SQLite-backed implementation of every
persistence interface the pipeline consumes.

PURPOSE:
  One Store satisfies ledger.Store, member.Directory, pending.Store and
  offers.Store. In production the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

COMMIT SCOPE:
  WithCommit opens a SQL transaction and hands the caller a scope whose
  writes all land or all roll back. Entry creation and balance increments
  go through the scope; nothing else writes the entries table.

AT-MOST-ONCE REDEMPTION:
  used_offers has a (member_id, offer_id) primary key. AppendUsedOffer is
  a plain INSERT, so the second of two concurrent redemptions fails on
  the constraint instead of silently double-granting.

KEY TABLES:
  entries:              Append-mostly committed ledger
  members:              Member records with running balance
  used_offers:          Redeemed offer marks, conditional append
  pending_transactions: Review queue, never deleted
  point_offers:         Offer definitions and redemption counters

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block,
  a single writer at a time, better crash recovery.

SEE ALSO:
  - ledger/store.go: The commit scope contract
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/meridian/loyalty-engine/ledger"
	"github.com/meridian/loyalty-engine/member"
	"github.com/meridian/loyalty-engine/offers"
	"github.com/meridian/loyalty-engine/pending"
)

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (and migrates) a store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	-- Committed ledger (append-mostly; the one sanctioned rewrite is a
	-- loyalty id swap during member migration)
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		loyalty_id TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		points INTEGER NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		origin TEXT NOT NULL,
		origin_ref TEXT,
		reason TEXT,
		order_number TEXT,
		event_id TEXT,
		original_transaction_id TEXT,
		transaction_datetime TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_loyalty_created
		ON entries(loyalty_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_original_id
		ON entries(original_transaction_id) WHERE original_transaction_id IS NOT NULL;

	-- Members
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		loyalty_id TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		first_name TEXT,
		last_name TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		balance INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_members_email
		ON members(email COLLATE NOCASE);

	-- Redeemed offers; the primary key IS the at-most-once guard
	CREATE TABLE IF NOT EXISTS used_offers (
		member_id TEXT NOT NULL,
		offer_id TEXT NOT NULL,
		applied_at TEXT NOT NULL,
		PRIMARY KEY (member_id, offer_id)
	);

	-- Review queue (never deleted; doubles as the review audit trail)
	CREATE TABLE IF NOT EXISTS pending_transactions (
		id TEXT PRIMARY KEY,
		loyalty_id TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		points INTEGER,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		origin TEXT NOT NULL,
		origin_ref TEXT,
		reason TEXT,
		order_number TEXT,
		event_id TEXT,
		original_transaction_id TEXT,
		transaction_datetime TEXT,
		status TEXT NOT NULL,
		modified_by TEXT,
		retries INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pending_status
		ON pending_transactions(status);
	CREATE INDEX IF NOT EXISTS idx_pending_loyalty
		ON pending_transactions(loyalty_id);

	-- Point offers
	CREATE TABLE IF NOT EXISTS point_offers (
		id TEXT PRIMARY KEY,
		system_name TEXT NOT NULL UNIQUE,
		points INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		used_number INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER STORE (ledger.Store)
// =============================================================================

type commitScope struct {
	tx *sql.Tx
}

func (c commitScope) AppendEntry(ctx context.Context, e ledger.Entry) error {
	_, err := c.tx.ExecContext(ctx, `
		INSERT INTO entries
		(id, loyalty_id, transaction_type, points, amount, currency, origin, origin_ref,
		 reason, order_number, event_id, original_transaction_id, transaction_datetime,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.LoyaltyID,
		e.TransactionType,
		e.Points,
		e.Amount.String(),
		e.Currency,
		e.Origin,
		nullString(e.OriginRef),
		nullString(string(e.Reason)),
		nullString(e.OrderNumber),
		nullString(e.EventID),
		nullString(e.OriginalTransactionID),
		e.TransactionDateTime.UTC().Format(time.RFC3339Nano),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
		e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

func (c commitScope) IncrementBalance(ctx context.Context, loyaltyID string, delta int64) error {
	res, err := c.tx.ExecContext(ctx,
		`UPDATE members SET balance = balance + ? WHERE loyalty_id = ?`, delta, loyaltyID)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return member.ErrNotFound
	}
	return nil
}

// WithCommit runs fn inside a SQL transaction. Any error rolls the whole
// scope back; there is nothing partially visible afterwards.
func (s *Store) WithCommit(ctx context.Context, fn func(ledger.CommitScope) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer tx.Rollback()

	if err := fn(commitScope{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) EntriesByLoyaltyID(ctx context.Context, loyaltyID string) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, loyalty_id, transaction_type, points, amount, currency, origin, origin_ref,
		       reason, order_number, event_id, original_transaction_id, transaction_datetime,
		       created_at, updated_at
		FROM entries
		WHERE loyalty_id = ?
		ORDER BY created_at ASC, id ASC`, loyaltyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) SwapLoyaltyID(ctx context.Context, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin swap: %w", err)
	}
	defer tx.Rollback()

	// History and open review items move together or not at all.
	if _, err := tx.ExecContext(ctx,
		`UPDATE entries SET loyalty_id = ? WHERE loyalty_id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("failed to re-key entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE pending_transactions SET loyalty_id = ? WHERE loyalty_id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("failed to re-key pending transactions: %w", err)
	}
	return tx.Commit()
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e                                             ledger.Entry
		amount, txAt, createdAt, updatedAt            string
		originRef, reason, orderNumber, eventID, orig sql.NullString
	)
	err := rows.Scan(&e.ID, &e.LoyaltyID, &e.TransactionType, &e.Points, &amount,
		&e.Currency, &e.Origin, &originRef, &reason, &orderNumber, &eventID, &orig,
		&txAt, &createdAt, &updatedAt)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.Amount = mustDecimal(amount)
	e.OriginRef = originRef.String
	e.Reason = ledger.Reason(reason.String)
	e.OrderNumber = orderNumber.String
	e.EventID = eventID.String
	e.OriginalTransactionID = orig.String
	e.TransactionDateTime = parseTime(txAt)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

// =============================================================================
// MEMBER DIRECTORY (member.Directory)
// =============================================================================

const memberColumns = `id, loyalty_id, email, first_name, last_name, is_active, balance, created_at`

func (s *Store) FindByID(ctx context.Context, id string) (*member.Member, error) {
	return s.findMember(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
}

func (s *Store) FindByLoyaltyID(ctx context.Context, loyaltyID string, activeOnly bool) (*member.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members WHERE loyalty_id = ?`
	if activeOnly {
		q += ` AND is_active`
	}
	return s.findMember(ctx, q, loyaltyID)
}

func (s *Store) FindByEmail(ctx context.Context, email string, activeOnly bool) (*member.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members WHERE email = ? COLLATE NOCASE`
	if activeOnly {
		q += ` AND is_active`
	}
	return s.findMember(ctx, q, email)
}

func (s *Store) findMember(ctx context.Context, query string, arg any) (*member.Member, error) {
	var (
		m                   member.Member
		firstName, lastName sql.NullString
		createdAt           string
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&m.ID, &m.LoyaltyID, &m.Email, &firstName, &lastName, &m.IsActive, &m.Balance, &createdAt)
	if err == sql.ErrNoRows {
		return nil, member.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query member: %w", err)
	}
	m.FirstName = firstName.String
	m.LastName = lastName.String
	m.CreatedAt = parseTime(createdAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT offer_id, applied_at FROM used_offers WHERE member_id = ? ORDER BY applied_at ASC`, m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query used offers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u member.UsedOffer
		var at string
		if err := rows.Scan(&u.OfferID, &at); err != nil {
			return nil, err
		}
		u.AppliedAt = parseTime(at)
		m.UsedOffers = append(m.UsedOffers, u)
	}
	return &m, rows.Err()
}

func (s *Store) CreateMember(ctx context.Context, m *member.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, loyalty_id, email, first_name, last_name, is_active, balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.LoyaltyID, m.Email, nullString(m.FirstName), nullString(m.LastName),
		m.IsActive, m.Balance, m.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// AppendUsedOffer relies on the used_offers primary key: of two racing
// redemptions for the same (member, offer) pair, exactly one INSERT
// lands and the other maps to member.ErrOfferAlreadyUsed.
func (s *Store) AppendUsedOffer(ctx context.Context, memberID, offerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO used_offers (member_id, offer_id, applied_at) VALUES (?, ?, ?)`,
		memberID, offerID, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return member.ErrOfferAlreadyUsed
		}
		return fmt.Errorf("failed to append used offer: %w", err)
	}
	return nil
}

// =============================================================================
// PENDING STORE (pending.Store)
// =============================================================================

const pendingColumns = `id, loyalty_id, transaction_type, points, amount, currency, origin,
	origin_ref, reason, order_number, event_id, original_transaction_id, transaction_datetime,
	status, modified_by, retries, created_at, updated_at`

func (s *Store) CreatePending(ctx context.Context, t *pending.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	var points sql.NullInt64
	if t.Entry.Points != nil {
		points = sql.NullInt64{Int64: *t.Entry.Points, Valid: true}
	}
	var txAt sql.NullString
	if !t.Entry.TransactionDateTime.IsZero() {
		txAt = sql.NullString{String: t.Entry.TransactionDateTime.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_transactions (`+pendingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Entry.LoyaltyID, t.Entry.TransactionType, points, t.Entry.Amount.String(),
		t.Entry.Currency, t.Entry.Origin, nullString(t.Entry.OriginRef),
		nullString(string(t.Entry.Reason)), nullString(t.Entry.OrderNumber),
		nullString(t.Entry.EventID), nullString(t.Entry.OriginalTransactionID), txAt,
		t.Status, nullString(t.ModifiedBy), t.Retries,
		t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to create pending transaction: %w", err)
	}
	return nil
}

func (s *Store) GetPending(ctx context.Context, id string) (*pending.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_transactions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending transaction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ledger.ErrPendingNotFound
	}
	t, err := scanPending(rows)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) UpdatePending(ctx context.Context, t *pending.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_transactions
		SET status = ?, modified_by = ?, retries = ?, updated_at = ?
		WHERE id = ?`,
		t.Status, nullString(t.ModifiedBy), t.Retries,
		t.UpdatedAt.Format(time.RFC3339Nano), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update pending transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrPendingNotFound
	}
	return nil
}

func (s *Store) ListPending(ctx context.Context, q pending.Query) ([]pending.Transaction, int, error) {
	where, args := pendingFilter(q.Statuses)

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count pending transactions: %w", err)
	}

	query := `SELECT ` + pendingColumns + ` FROM pending_transactions` + where +
		` ORDER BY created_at DESC, id DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		if q.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()

	var out []pending.Transaction
	for rows.Next() {
		t, err := scanPending(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *Store) OpenPendingForMember(ctx context.Context, loyaltyID string) ([]pending.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pendingColumns+` FROM pending_transactions
		WHERE loyalty_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC, id DESC`,
		loyaltyID, pending.StatusPending, pending.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to list open pending transactions: %w", err)
	}
	defer rows.Close()

	var out []pending.Transaction
	for rows.Next() {
		t, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func pendingFilter(statuses []pending.Status) (string, []any) {
	if len(statuses) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = st
	}
	return " WHERE status IN (" + strings.Join(placeholders, ", ") + ")", args
}

func scanPending(rows *sql.Rows) (pending.Transaction, error) {
	var (
		t                                             pending.Transaction
		points                                        sql.NullInt64
		amount                                        string
		originRef, reason, orderNumber, eventID, orig sql.NullString
		txAt, modifiedBy                              sql.NullString
		createdAt, updatedAt                          string
	)
	err := rows.Scan(&t.ID, &t.Entry.LoyaltyID, &t.Entry.TransactionType, &points, &amount,
		&t.Entry.Currency, &t.Entry.Origin, &originRef, &reason, &orderNumber, &eventID, &orig,
		&txAt, &t.Status, &modifiedBy, &t.Retries, &createdAt, &updatedAt)
	if err != nil {
		return t, fmt.Errorf("failed to scan pending transaction: %w", err)
	}

	if points.Valid {
		t.Entry.Points = ledger.Ptr(points.Int64)
	}
	t.Entry.Amount = mustDecimal(amount)
	t.Entry.OriginRef = originRef.String
	t.Entry.Reason = ledger.Reason(reason.String)
	t.Entry.OrderNumber = orderNumber.String
	t.Entry.EventID = eventID.String
	t.Entry.OriginalTransactionID = orig.String
	if txAt.Valid {
		t.Entry.TransactionDateTime = parseTime(txAt.String)
	}
	t.ModifiedBy = modifiedBy.String
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

// =============================================================================
// OFFER STORE (offers.Store)
// =============================================================================

const offerColumns = `id, system_name, points, is_active, used_number, created_at, updated_at`

func (s *Store) GetOffer(ctx context.Context, id string) (*offers.Offer, error) {
	o, err := scanOfferRow(s.db.QueryRowContext(ctx,
		`SELECT `+offerColumns+` FROM point_offers WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ledger.ErrOfferNotFound
	}
	return o, err
}

func (s *Store) ListOffers(ctx context.Context) ([]offers.Offer, error) {
	return s.queryOffers(ctx,
		`SELECT `+offerColumns+` FROM point_offers ORDER BY system_name ASC`)
}

func (s *Store) ActiveOffersByNames(ctx context.Context, names []string) ([]offers.Offer, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, n := range names {
		placeholders[i] = "?"
		args[i] = n
	}
	return s.queryOffers(ctx,
		`SELECT `+offerColumns+` FROM point_offers
		 WHERE is_active AND system_name IN (`+strings.Join(placeholders, ", ")+`)`, args...)
}

func (s *Store) CreateOffer(ctx context.Context, o *offers.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO point_offers (id, system_name, points, is_active, used_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.SystemName, o.Points, o.IsActive, o.UsedNumber,
		o.CreatedAt.Format(time.RFC3339Nano), o.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	return nil
}

func (s *Store) UpdateOffer(ctx context.Context, o *offers.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE point_offers SET points = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		o.Points, o.IsActive, o.UpdatedAt.Format(time.RFC3339Nano), o.ID)
	if err != nil {
		return fmt.Errorf("failed to update offer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrOfferNotFound
	}
	return nil
}

// IncrementUsedNumber bumps the redemption counter in place; the counter
// never moves through UpdateOffer, so admin edits cannot clobber it.
func (s *Store) IncrementUsedNumber(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE point_offers SET used_number = used_number + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment redemption counter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrOfferNotFound
	}
	return nil
}

func (s *Store) queryOffers(ctx context.Context, query string, args ...any) ([]offers.Offer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query offers: %w", err)
	}
	defer rows.Close()

	var out []offers.Offer
	for rows.Next() {
		var o offers.Offer
		var createdAt, updatedAt string
		if err := rows.Scan(&o.ID, &o.SystemName, &o.Points, &o.IsActive, &o.UsedNumber,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		o.CreatedAt = parseTime(createdAt)
		o.UpdatedAt = parseTime(updatedAt)
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOfferRow(row *sql.Row) (*offers.Offer, error) {
	var o offers.Offer
	var createdAt, updatedAt string
	err := row.Scan(&o.ID, &o.SystemName, &o.Points, &o.IsActive, &o.UsedNumber,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		log.Printf("sqlite: malformed timestamp %q: %v", s, err)
	}
	return t
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Printf("sqlite: malformed decimal %q: %v", s, err)
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
