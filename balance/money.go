/*
Package balance maintains account running balances and closed monthly
period snapshots as ledger entries are created, updated, deleted, or
moved between accounts.

PURPOSE:
  This package is the incremental, event-driven core of the ledger: instead
  of recomputing full history on every write, it diffs an entry's previously
  committed values against its new ones, updates the account's running
  balance, and cascades recomputation through the affected closed months.

KEY CONCEPTS:
  - Pair: an {effective, real} amount, threaded through every operation
  - Period: one calendar month, the unit of historical snapshotting
  - PeriodBalance: a closed month's cumulative totals for one account
  - Engine: mutation dispatch + cascade (the write side)
  - Calculator: closed totals + live open month (the read side)

DESIGN PRINCIPLES:
  1. Precision: all money uses decimal.Decimal, never floats
  2. The open (current) month is never persisted; it is computed live
  3. Every mutation is all-or-nothing inside one store transaction
  4. Per-account mutual exclusion for the duration of a mutation

SEE ALSO:
  - engine.go: mutation dispatch and the cascade algorithm
  - calculator.go: read-only balance reconstruction
  - store.go: persistence interfaces this package consumes
*/
package balance

import "github.com/shopspring/decimal"

// =============================================================================
// PAIR - An {effective, real} amount
// =============================================================================

// Pair carries an effective amount (by due date, regardless of payment
// status) and a real amount (by payment date, zero until paid). Every
// balance figure in the system is a Pair; the two components are always
// updated together.
type Pair struct {
	Effective decimal.Decimal
	Real      decimal.Decimal
}

func ZeroPair() Pair {
	return Pair{Effective: decimal.Zero, Real: decimal.Zero}
}

// NewPair builds a Pair from an entry's value and payment status:
// the full value counts as effective, and as real only once paid.
func NewPair(value decimal.Decimal, paid bool) Pair {
	p := Pair{Effective: value, Real: decimal.Zero}
	if paid {
		p.Real = value
	}
	return p
}

func (p Pair) Add(q Pair) Pair {
	return Pair{Effective: p.Effective.Add(q.Effective), Real: p.Real.Add(q.Real)}
}

func (p Pair) Sub(q Pair) Pair {
	return Pair{Effective: p.Effective.Sub(q.Effective), Real: p.Real.Sub(q.Real)}
}

func (p Pair) Neg() Pair {
	return Pair{Effective: p.Effective.Neg(), Real: p.Real.Neg()}
}

func (p Pair) IsZero() bool {
	return p.Effective.IsZero() && p.Real.IsZero()
}

func (p Pair) Equal(q Pair) bool {
	return p.Effective.Equal(q.Effective) && p.Real.Equal(q.Real)
}

func (p Pair) String() string {
	return "{effective: " + p.Effective.String() + ", real: " + p.Real.String() + "}"
}
