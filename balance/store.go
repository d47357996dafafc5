/*
store.go - Persistence interfaces the balance engine consumes

PURPOSE:
  Defines the narrow view of storage the engine and calculator need:
  period balance rows, account running-balance adjustment, and date-range
  aggregation over raw entries. Implementations live elsewhere
  (store/sqlite for production, store/memory for tests).

TRANSACTION CONTRACT:
  Every mutation runs inside WithTx: the cascade's row writes and the
  running-balance update either all commit or all roll back. Partial
  application would leave period rows inconsistent with account balances.
*/
package balance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD BALANCE - One closed month's totals for one account
// =============================================================================

// PeriodBalance is a persisted snapshot of one closed calendar month.
// Closed holds the CUMULATIVE {effective, real} totals for the account
// through the end of the period, not just the month's own activity, so
// the read side can answer "balance as of period end" from a single row.
//
// Rows are created lazily (only when an entry requires the month to
// exist), one per account+month, and are never deleted even if their
// net contribution later becomes zero.
type PeriodBalance struct {
	AccountID   string
	Period      Period
	Closed      Pair
	LastUpdated time.Time
}

// PeriodBalanceStore persists the ordered chain of closed period rows.
type PeriodBalanceStore interface {
	// PeriodRowsFrom returns rows for the account with Period.End >= from,
	// ordered ascending by period start.
	PeriodRowsFrom(ctx context.Context, accountID string, from Date) ([]PeriodBalance, error)

	// HasPeriodRowFrom reports whether any row exists with Period.End >= from.
	// This is the "does this mutation touch history?" test.
	HasPeriodRowFrom(ctx context.Context, accountID string, from Date) (bool, error)

	// LatestPeriodRowBefore returns the most recent row whose period starts
	// before the given date, or nil if none exists.
	LatestPeriodRowBefore(ctx context.Context, accountID string, before Date) (*PeriodBalance, error)

	// PeriodRowFor returns the row covering the month starting at start,
	// or nil if none exists.
	PeriodRowFor(ctx context.Context, accountID string, start Date) (*PeriodBalance, error)

	// SavePeriodRow inserts or updates a row, keyed by account + period start.
	SavePeriodRow(ctx context.Context, row PeriodBalance) error
}

// AccountBalances adjusts an account's live running balance.
type AccountBalances interface {
	// AdjustBalance adds delta to the account's current {effective, real}
	// balance. The engine is the only writer of these fields.
	AdjustBalance(ctx context.Context, accountID string, delta Pair) error
}

// EntrySums aggregates raw entry values by date range. The cascade uses
// these to recompute a period's local sums from current storage state,
// and the calculator uses them for the live open month.
type EntrySums interface {
	// SumEffective sums the value of the account's entries with a due date
	// in [from, to].
	SumEffective(ctx context.Context, accountID string, from, to Date) (decimal.Decimal, error)

	// SumReal sums the value of the account's entries with a payment date
	// set and in [from, to].
	SumReal(ctx context.Context, accountID string, from, to Date) (decimal.Decimal, error)
}

// Store is the full view of storage the engine operates on.
type Store interface {
	PeriodBalanceStore
	AccountBalances
	EntrySums
}

// TxStore wraps Store with an atomic transaction boundary.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
