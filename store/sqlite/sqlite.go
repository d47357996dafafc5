/*
Package sqlite provides the SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.TxStore (entries, accounts, period balance rows)
  using SQLite. In production the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

KEY TABLES:
  accounts:         Running {effective, real} balances per account
  entries:          Ledger entries (value, due date, payment date)
  period_balances:  One row per account + closed calendar month,
                    cumulative totals, UNIQUE(account_id, start_date)

VALUES:
  Money is stored as decimal strings and summed in Go with
  shopspring/decimal; SQL SUM over floats would lose precision.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't
  block, single writer at a time. Cross-mutation serialization is the
  balance engine's per-account locking, not this package's concern.

SEE ALSO:
  - ledger/store.go: interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/finbook/ledger-engine/balance"
	"github.com/finbook/ledger-engine/ledger"
)

const dateFormat = "2006-01-02"

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a store backed by the database at dbPath.
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

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		current_effective TEXT NOT NULL DEFAULT '0',
		current_real TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_user
		ON accounts(user_id);

	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		category_id TEXT,
		kind TEXT NOT NULL,
		value TEXT NOT NULL,
		due_date TEXT NOT NULL,
		payment_date TEXT,
		description TEXT,
		bound_entry_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: cascade re-aggregation by date range
	CREATE INDEX IF NOT EXISTS idx_entries_account_due
		ON entries(account_id, due_date);
	CREATE INDEX IF NOT EXISTS idx_entries_account_payment
		ON entries(account_id, payment_date) WHERE payment_date IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_entries_bound
		ON entries(bound_entry_id) WHERE bound_entry_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS period_balances (
		account_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		closed_effective TEXT NOT NULL,
		closed_real TEXT NOT NULL,
		last_updated TEXT NOT NULL,
		UNIQUE(account_id, start_date)
	);

	CREATE INDEX IF NOT EXISTS idx_period_balances_account_end
		ON period_balances(account_id, end_date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx so every query can
// run either standalone or inside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// PERIOD BALANCE ROWS
// =============================================================================

const periodRowColumns = "account_id, start_date, end_date, closed_effective, closed_real, last_updated"

func (s *Store) PeriodRowsFrom(ctx context.Context, accountID string, from balance.Date) ([]balance.PeriodBalance, error) {
	return periodRowsFrom(ctx, s.db, accountID, from)
}

func periodRowsFrom(ctx context.Context, q querier, accountID string, from balance.Date) ([]balance.PeriodBalance, error) {
	query := `
		SELECT ` + periodRowColumns + `
		FROM period_balances
		WHERE account_id = ? AND end_date >= ?
		ORDER BY start_date ASC
	`
	rows, err := q.QueryContext(ctx, query, accountID, from.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query period rows: %w", err)
	}
	defer rows.Close()

	var out []balance.PeriodBalance
	for rows.Next() {
		row, err := scanPeriodRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) HasPeriodRowFrom(ctx context.Context, accountID string, from balance.Date) (bool, error) {
	return hasPeriodRowFrom(ctx, s.db, accountID, from)
}

func hasPeriodRowFrom(ctx context.Context, q querier, accountID string, from balance.Date) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM period_balances WHERE account_id = ? AND end_date >= ?",
		accountID, from.String(),
	).Scan(&count)
	return count > 0, err
}

func (s *Store) LatestPeriodRowBefore(ctx context.Context, accountID string, before balance.Date) (*balance.PeriodBalance, error) {
	return latestPeriodRowBefore(ctx, s.db, accountID, before)
}

func latestPeriodRowBefore(ctx context.Context, q querier, accountID string, before balance.Date) (*balance.PeriodBalance, error) {
	query := `
		SELECT ` + periodRowColumns + `
		FROM period_balances
		WHERE account_id = ? AND start_date < ?
		ORDER BY start_date DESC
		LIMIT 1
	`
	return queryOnePeriodRow(ctx, q, query, accountID, before.String())
}

func (s *Store) PeriodRowFor(ctx context.Context, accountID string, start balance.Date) (*balance.PeriodBalance, error) {
	return periodRowFor(ctx, s.db, accountID, start)
}

func periodRowFor(ctx context.Context, q querier, accountID string, start balance.Date) (*balance.PeriodBalance, error) {
	query := `
		SELECT ` + periodRowColumns + `
		FROM period_balances
		WHERE account_id = ? AND start_date = ?
	`
	return queryOnePeriodRow(ctx, q, query, accountID, start.String())
}

func queryOnePeriodRow(ctx context.Context, q querier, query string, args ...any) (*balance.PeriodBalance, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query period row: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	row, err := scanPeriodRow(rows)
	if err != nil {
		return nil, err
	}
	return &row, rows.Err()
}

func scanPeriodRow(rows *sql.Rows) (balance.PeriodBalance, error) {
	var (
		row             balance.PeriodBalance
		start, end      string
		effective, real string
		lastUpdated     string
	)
	if err := rows.Scan(&row.AccountID, &start, &end, &effective, &real, &lastUpdated); err != nil {
		return row, fmt.Errorf("failed to scan period row: %w", err)
	}

	var err error
	if row.Period.Start, err = parseDate(start); err != nil {
		return row, err
	}
	if row.Period.End, err = parseDate(end); err != nil {
		return row, err
	}
	if row.Closed.Effective, err = parseDecimal(effective); err != nil {
		return row, err
	}
	if row.Closed.Real, err = parseDecimal(real); err != nil {
		return row, err
	}
	row.LastUpdated, _ = time.Parse(time.RFC3339, lastUpdated)
	return row, nil
}

func (s *Store) SavePeriodRow(ctx context.Context, row balance.PeriodBalance) error {
	return savePeriodRow(ctx, s.db, row)
}

func savePeriodRow(ctx context.Context, q querier, row balance.PeriodBalance) error {
	query := `
		INSERT INTO period_balances
		(account_id, start_date, end_date, closed_effective, closed_real, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, start_date) DO UPDATE SET
			end_date = excluded.end_date,
			closed_effective = excluded.closed_effective,
			closed_real = excluded.closed_real,
			last_updated = excluded.last_updated
	`
	_, err := q.ExecContext(ctx, query,
		row.AccountID,
		row.Period.Start.String(),
		row.Period.End.String(),
		row.Closed.Effective.String(),
		row.Closed.Real.String(),
		row.LastUpdated.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save period row: %w", err)
	}
	return nil
}

// =============================================================================
// ENTRY AGGREGATION
// =============================================================================

const sumEffectiveQuery = "SELECT value FROM entries WHERE account_id = ? AND due_date >= ? AND due_date <= ?"
const sumRealQuery = "SELECT value FROM entries WHERE account_id = ? AND payment_date IS NOT NULL AND payment_date >= ? AND payment_date <= ?"

func (s *Store) SumEffective(ctx context.Context, accountID string, from, to balance.Date) (decimal.Decimal, error) {
	return sumValues(ctx, s.db, sumEffectiveQuery, accountID, from.String(), to.String())
}

func (s *Store) SumReal(ctx context.Context, accountID string, from, to balance.Date) (decimal.Decimal, error) {
	return sumValues(ctx, s.db, sumRealQuery, accountID, from.String(), to.String())
}

func sumValues(ctx context.Context, q querier, query string, args ...any) (decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum entries: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan entry value: %w", err)
		}
		v, err := parseDecimal(value)
		if err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(v)
	}
	return sum, rows.Err()
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) AdjustBalance(ctx context.Context, accountID string, delta balance.Pair) error {
	return adjustBalance(ctx, s.db, accountID, delta)
}

// adjustBalance is read-modify-write in Go because balances are decimal
// strings. The engine's per-account lock serializes concurrent callers.
func adjustBalance(ctx context.Context, q querier, accountID string, delta balance.Pair) error {
	var effective, real string
	err := q.QueryRowContext(ctx,
		"SELECT current_effective, current_real FROM accounts WHERE id = ?", accountID,
	).Scan(&effective, &real)
	if err == sql.ErrNoRows {
		return ledger.ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load account balance: %w", err)
	}

	curEffective, err := parseDecimal(effective)
	if err != nil {
		return err
	}
	curReal, err := parseDecimal(real)
	if err != nil {
		return err
	}
	newEffective := curEffective.Add(delta.Effective)
	newReal := curReal.Add(delta.Real)

	_, err = q.ExecContext(ctx,
		"UPDATE accounts SET current_effective = ?, current_real = ? WHERE id = ?",
		newEffective.String(), newReal.String(), accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}
	return nil
}

func (s *Store) SaveAccount(ctx context.Context, a *ledger.Account) error {
	return saveAccount(ctx, s.db, a)
}

func saveAccount(ctx context.Context, q querier, a *ledger.Account) error {
	query := `
		INSERT INTO accounts (id, user_id, name, current_effective, current_real, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			current_effective = excluded.current_effective,
			current_real = excluded.current_real
	`
	_, err := q.ExecContext(ctx, query,
		a.ID, a.UserID, a.Name,
		a.CurrentEffective.String(), a.CurrentReal.String(),
		a.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *Store) AccountByID(ctx context.Context, id string) (*ledger.Account, error) {
	return accountByID(ctx, s.db, id)
}

func accountByID(ctx context.Context, q querier, id string) (*ledger.Account, error) {
	var (
		a               ledger.Account
		effective, real string
		createdAt       string
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, user_id, name, current_effective, current_real, created_at FROM accounts WHERE id = ?",
		id,
	).Scan(&a.ID, &a.UserID, &a.Name, &effective, &real, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if a.CurrentEffective, err = parseDecimal(effective); err != nil {
		return nil, err
	}
	if a.CurrentReal, err = parseDecimal(real); err != nil {
		return nil, err
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

func (s *Store) AccountsByUser(ctx context.Context, userID string) ([]*ledger.Account, error) {
	return accountsByUser(ctx, s.db, userID)
}

func accountsByUser(ctx context.Context, q querier, userID string) ([]*ledger.Account, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, user_id, name, current_effective, current_real, created_at FROM accounts WHERE user_id = ? ORDER BY name",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Account
	for rows.Next() {
		var (
			a               ledger.Account
			effective, real string
			createdAt       string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &effective, &real, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if a.CurrentEffective, err = parseDecimal(effective); err != nil {
			return nil, err
		}
		if a.CurrentReal, err = parseDecimal(real); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// =============================================================================
// ENTRIES
// =============================================================================

const entryColumns = "id, account_id, category_id, kind, value, due_date, payment_date, description, bound_entry_id, created_at, updated_at"

func (s *Store) SaveEntry(ctx context.Context, e *ledger.Entry) error {
	return saveEntry(ctx, s.db, e)
}

func saveEntry(ctx context.Context, q querier, e *ledger.Entry) error {
	query := `
		INSERT INTO entries
		(` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			category_id = excluded.category_id,
			kind = excluded.kind,
			value = excluded.value,
			due_date = excluded.due_date,
			payment_date = excluded.payment_date,
			description = excluded.description,
			bound_entry_id = excluded.bound_entry_id,
			updated_at = excluded.updated_at
	`
	var paymentDate any
	if e.PaymentDate != nil {
		paymentDate = e.PaymentDate.String()
	}

	_, err := q.ExecContext(ctx, query,
		e.ID, e.AccountID, nullString(e.CategoryID), string(e.Kind),
		e.Value.String(), e.DueDate.String(), paymentDate,
		e.Description, nullString(e.BoundEntryID),
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	return deleteEntry(ctx, s.db, id)
}

func deleteEntry(ctx context.Context, q querier, id string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

func (s *Store) Entry(ctx context.Context, id string) (*ledger.Entry, error) {
	return entryByID(ctx, s.db, id)
}

func entryByID(ctx context.Context, q querier, id string) (*ledger.Entry, error) {
	entries, err := queryEntries(ctx, q,
		"SELECT "+entryColumns+" FROM entries WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

func (s *Store) EntriesByAccount(ctx context.Context, accountID string) ([]*ledger.Entry, error) {
	return queryEntries(ctx, s.db,
		"SELECT "+entryColumns+" FROM entries WHERE account_id = ? ORDER BY due_date ASC, id ASC", accountID)
}

func (s *Store) EntriesBoundTo(ctx context.Context, id string) ([]*ledger.Entry, error) {
	return queryEntries(ctx, s.db,
		"SELECT "+entryColumns+" FROM entries WHERE bound_entry_id = ? ORDER BY due_date ASC, id ASC", id)
}

func queryEntries(ctx context.Context, q querier, query string, args ...any) ([]*ledger.Entry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(rows *sql.Rows) (*ledger.Entry, error) {
	var (
		e                    ledger.Entry
		categoryID           sql.NullString
		kind, value, dueDate string
		paymentDate          sql.NullString
		description          sql.NullString
		boundEntryID         sql.NullString
		createdAt, updatedAt string
	)
	err := rows.Scan(&e.ID, &e.AccountID, &categoryID, &kind, &value, &dueDate,
		&paymentDate, &description, &boundEntryID, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.CategoryID = categoryID.String
	e.Kind = ledger.EntryKind(kind)
	if e.Value, err = parseDecimal(value); err != nil {
		return nil, err
	}
	if e.DueDate, err = parseDate(dueDate); err != nil {
		return nil, err
	}
	if paymentDate.Valid {
		d, err := parseDate(paymentDate.String)
		if err != nil {
			return nil, err
		}
		e.PaymentDate = &d
	}
	e.Description = description.String
	e.BoundEntryID = boundEntryID.String
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &e, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore runs every store operation against the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) PeriodRowsFrom(ctx context.Context, accountID string, from balance.Date) ([]balance.PeriodBalance, error) {
	return periodRowsFrom(ctx, ts.tx, accountID, from)
}

func (ts *txStore) HasPeriodRowFrom(ctx context.Context, accountID string, from balance.Date) (bool, error) {
	return hasPeriodRowFrom(ctx, ts.tx, accountID, from)
}

func (ts *txStore) LatestPeriodRowBefore(ctx context.Context, accountID string, before balance.Date) (*balance.PeriodBalance, error) {
	return latestPeriodRowBefore(ctx, ts.tx, accountID, before)
}

func (ts *txStore) PeriodRowFor(ctx context.Context, accountID string, start balance.Date) (*balance.PeriodBalance, error) {
	return periodRowFor(ctx, ts.tx, accountID, start)
}

func (ts *txStore) SavePeriodRow(ctx context.Context, row balance.PeriodBalance) error {
	return savePeriodRow(ctx, ts.tx, row)
}

func (ts *txStore) AdjustBalance(ctx context.Context, accountID string, delta balance.Pair) error {
	return adjustBalance(ctx, ts.tx, accountID, delta)
}

func (ts *txStore) SumEffective(ctx context.Context, accountID string, from, to balance.Date) (decimal.Decimal, error) {
	return sumValues(ctx, ts.tx, sumEffectiveQuery, accountID, from.String(), to.String())
}

func (ts *txStore) SumReal(ctx context.Context, accountID string, from, to balance.Date) (decimal.Decimal, error) {
	return sumValues(ctx, ts.tx, sumRealQuery, accountID, from.String(), to.String())
}

func (ts *txStore) SaveEntry(ctx context.Context, e *ledger.Entry) error {
	return saveEntry(ctx, ts.tx, e)
}

func (ts *txStore) DeleteEntry(ctx context.Context, id string) error {
	return deleteEntry(ctx, ts.tx, id)
}

func (ts *txStore) Entry(ctx context.Context, id string) (*ledger.Entry, error) {
	return entryByID(ctx, ts.tx, id)
}

func (ts *txStore) EntriesByAccount(ctx context.Context, accountID string) ([]*ledger.Entry, error) {
	return queryEntries(ctx, ts.tx,
		"SELECT "+entryColumns+" FROM entries WHERE account_id = ? ORDER BY due_date ASC, id ASC", accountID)
}

func (ts *txStore) EntriesBoundTo(ctx context.Context, id string) ([]*ledger.Entry, error) {
	return queryEntries(ctx, ts.tx,
		"SELECT "+entryColumns+" FROM entries WHERE bound_entry_id = ? ORDER BY due_date ASC, id ASC", id)
}

func (ts *txStore) SaveAccount(ctx context.Context, a *ledger.Account) error {
	return saveAccount(ctx, ts.tx, a)
}

func (ts *txStore) AccountByID(ctx context.Context, id string) (*ledger.Account, error) {
	return accountByID(ctx, ts.tx, id)
}

func (ts *txStore) AccountsByUser(ctx context.Context, userID string) ([]*ledger.Account, error) {
	return accountsByUser(ctx, ts.tx, userID)
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

func parseDate(s string) (balance.Date, error) {
	t, err := time.Parse(dateFormat, s)
	if err != nil {
		return balance.Date{}, fmt.Errorf("malformed stored date %q: %w", s, err)
	}
	return balance.DateOf(t), nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed stored value %q: %w", s, err)
	}
	return d, nil
}
