/*
Package ledger owns ledger entries and accounts: their identity,
validation, and persistence. It is the collaborator that notifies the
balance engine whenever an entry's balance-relevant fields change.

SEE ALSO:
  - repository.go: persistence + explicit engine notification
  - balance: the engine this package drives
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbook/ledger-engine/balance"
)

// =============================================================================
// ENTRY - A single income or expense record
// =============================================================================

type EntryKind string

const (
	KindIncome  EntryKind = "income"
	KindExpense EntryKind = "expense"
)

// Entry is the mutable transaction record whose value and dates drive
// all balance changes. The due date is always set (effective/accrual
// date); the payment date is nil until the entry is paid.
type Entry struct {
	ID         string
	AccountID  string
	CategoryID string
	Kind       EntryKind

	// Value is signed: income is positive, expense negative. The sign
	// must match Kind.
	Value decimal.Decimal

	DueDate     balance.Date
	PaymentDate *balance.Date

	Description string

	// BoundEntryID links this entry to the head of a transfer pair or
	// recurring series. Empty for standalone entries and chain heads.
	BoundEntryID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Paid reports whether the entry has been realized.
func (e *Entry) Paid() bool { return e.PaymentDate != nil }

// Pay marks the entry as realized on the given date.
func (e *Entry) Pay(on balance.Date) {
	d := on
	e.PaymentDate = &d
}

// Unpay clears the payment date, returning the entry to pending.
func (e *Entry) Unpay() {
	e.PaymentDate = nil
}

// Snapshot extracts the entry's balance-relevant fields for the engine.
func (e *Entry) Snapshot() balance.EntrySnapshot {
	snap := balance.EntrySnapshot{
		AccountID: e.AccountID,
		Value:     e.Value,
		DueDate:   e.DueDate,
	}
	if e.PaymentDate != nil {
		d := *e.PaymentDate
		snap.PaymentDate = &d
	}
	return snap
}

// Validate checks the entry's structural rules.
func (e *Entry) Validate() error {
	if e.AccountID == "" {
		return ErrNoAccount
	}
	if e.DueDate.IsZero() {
		return ErrNoDueDate
	}
	switch e.Kind {
	case KindIncome:
		if e.Value.IsNegative() {
			return ErrSignMismatch
		}
	case KindExpense:
		if e.Value.IsPositive() {
			return ErrSignMismatch
		}
	default:
		return ErrUnknownKind
	}
	return nil
}

// =============================================================================
// ACCOUNT
// =============================================================================

// Account holds the live running balance the engine maintains.
// CurrentEffective/CurrentReal equal the sum of all closed period rows
// plus the open month's activity; they are mutated exclusively by the
// balance engine, never recomputed on reads.
type Account struct {
	ID     string
	UserID string
	Name   string

	CurrentEffective decimal.Decimal
	CurrentReal      decimal.Decimal

	CreatedAt time.Time
}

// Current returns the running balance as a pair.
func (a *Account) Current() balance.Pair {
	return balance.Pair{Effective: a.CurrentEffective, Real: a.CurrentReal}
}
