/*
engine.go - Mutation dispatch and the cascade algorithm

PURPOSE:
  The Engine is notified by the persistence layer whenever a ledger
  entry's balance-relevant fields change. It decides whether the change
  touches closed history (and if so, recomputes the affected period rows
  forward in time) and always updates the account's running balance by
  the exact delta of the change.

DISPATCH:
  created          -> applyCreate
  deleted          -> applyDelete
  updated          -> applyUpdate        (same account)
  account_changed  -> applyAccountChange (delete-from-A + create-in-B)

TOUCHES HISTORY:
  A mutation touches history iff a persisted period row exists for the
  account with Period.End >= the mutation's lower date (the minimum
  across every due/payment date the mutation carries, old and new).
  If not, the change is confined to the open month and only the running
  balance moves.

CASCADE:
  Rows store cumulative totals through period end, so recomputation walks
  the affected rows in order: each row's local sums are re-aggregated
  from current entries and added onto the cumulative total carried in
  from the preceding row. A delta in an early month therefore propagates
  to every later row as a constant offset.

CALLER CONTRACT:
  Only invoke the engine when value, due date, payment date, or account
  actually changed. A save touching only non-financial fields must not
  notify the engine at all.

SEE ALSO:
  - calculator.go: the read side
  - store.go: the storage interfaces consumed here
*/
package balance

import (
	"context"
	"fmt"
	"log"
	"time"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine applies entry mutations to period rows and running balances.
// Each mutation runs under the affected accounts' locks and inside one
// store transaction; it either fully completes or fully rolls back.
type Engine struct {
	store TxStore
	locks *accountLocks

	// Now returns the current date, used to locate the open month.
	// Overridable for tests; defaults to Today.
	Now func() Date
}

func NewEngine(store TxStore) *Engine {
	return &Engine{
		store: store,
		locks: newAccountLocks(),
		Now:   Today,
	}
}

func (e *Engine) today() Date {
	if e.Now != nil {
		return e.Now()
	}
	return Today()
}

// openStart is the first day of the current (open) calendar month.
// Periods ending before it are closed history.
func (e *Engine) openStart() Date {
	return PeriodOf(e.today()).Start
}

// NotifyMutation is the engine's single entry point for the persistence
// collaborator. It validates the mutation, serializes against other
// mutations on the same accounts, and applies it atomically.
func (e *Engine) NotifyMutation(ctx context.Context, m Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}

	release := e.locks.acquire(m.accountIDs()...)
	defer release()

	return e.store.WithTx(ctx, func(s Store) error {
		return e.apply(ctx, s, m)
	})
}

// LockAccounts takes the engine's per-account locks for callers that
// compose their own transaction around Apply (e.g. persisting the entry
// itself in the same transaction as its balance effects). The returned
// function releases them.
func (e *Engine) LockAccounts(accountIDs ...string) func() {
	return e.locks.acquire(accountIDs...)
}

// Apply validates and applies a mutation against s. The caller must hold
// the affected accounts' locks (see LockAccounts) and must run Apply
// inside a storage transaction so the mutation stays all-or-nothing.
func (e *Engine) Apply(ctx context.Context, s Store, m Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return e.apply(ctx, s, m)
}

func (e *Engine) apply(ctx context.Context, s Store, m Mutation) error {
	switch m.Kind {
	case Created:
		return e.applyCreate(ctx, s, *m.New)
	case Deleted:
		return e.applyDelete(ctx, s, *m.Old)
	case Updated:
		return e.applyUpdate(ctx, s, m)
	case AccountChanged:
		return e.applyAccountChange(ctx, s, m)
	}
	return invariant("unknown mutation kind " + string(m.Kind))
}

func (m Mutation) accountIDs() []string {
	var ids []string
	if m.Old != nil {
		ids = append(ids, m.Old.AccountID)
	}
	if m.New != nil {
		ids = append(ids, m.New.AccountID)
	}
	return ids
}

// =============================================================================
// STRATEGIES - One function per mutation kind
// =============================================================================

// applyCreate handles a brand-new entry. A backdated entry landing in a
// month with no row yet seeds that single month first; the cascade then
// reconciles the new row against any other entries already in it (e.g.
// entries created out of order).
func (e *Engine) applyCreate(ctx context.Context, s Store, snap EntrySnapshot) error {
	lower := snap.LowerDate()

	touches, err := s.HasPeriodRowFrom(ctx, snap.AccountID, lower)
	if err != nil {
		return engineErr("probe history", err)
	}

	if lower.Before(e.openStart()) {
		seeded, err := e.seedPeriodRow(ctx, s, snap, PeriodOf(lower))
		if err != nil {
			return err
		}
		touches = touches || seeded
	}

	if touches {
		if err := e.cascade(ctx, s, snap.AccountID, lower); err != nil {
			return err
		}
	}

	return e.adjust(ctx, s, snap.AccountID, snap.Contribution())
}

func (e *Engine) applyDelete(ctx context.Context, s Store, snap EntrySnapshot) error {
	lower := snap.LowerDate()

	touches, err := s.HasPeriodRowFrom(ctx, snap.AccountID, lower)
	if err != nil {
		return engineErr("probe history", err)
	}
	if touches {
		if err := e.cascade(ctx, s, snap.AccountID, lower); err != nil {
			return err
		}
	}

	return e.adjust(ctx, s, snap.AccountID, snap.Contribution().Neg())
}

// applyUpdate handles a same-account change of value and/or dates. The
// cascade re-aggregates from post-update storage state, so there is no
// separate "undo old, apply new" step for historical rows; the running
// balance moves by the pure before/after contribution diff, which is
// correct regardless of which dates changed.
func (e *Engine) applyUpdate(ctx context.Context, s Store, m Mutation) error {
	lower := m.lowerDate()

	touches, err := s.HasPeriodRowFrom(ctx, m.New.AccountID, lower)
	if err != nil {
		return engineErr("probe history", err)
	}
	if touches {
		if err := e.cascade(ctx, s, m.New.AccountID, lower); err != nil {
			return err
		}
	}

	delta := m.New.Contribution().Sub(m.Old.Contribution())
	return e.adjust(ctx, s, m.New.AccountID, delta)
}

// applyAccountChange treats a move as a simultaneous partial-delete from
// the source account and partial-create in the destination. The two
// accounts' row chains are disjoint, so order does not matter; both
// halves commit or roll back together with the enclosing transaction.
func (e *Engine) applyAccountChange(ctx context.Context, s Store, m Mutation) error {
	if err := e.applyDelete(ctx, s, *m.Old); err != nil {
		return err
	}
	return e.applyCreate(ctx, s, *m.New)
}

// seedPeriodRow creates the row for a historical month that has none,
// seeded with only this entry's contribution. Returns true if a row was
// created. The cascade that follows overwrites the seed with the fully
// re-aggregated cumulative totals.
func (e *Engine) seedPeriodRow(ctx context.Context, s Store, snap EntrySnapshot, period Period) (bool, error) {
	existing, err := s.PeriodRowFor(ctx, snap.AccountID, period.Start)
	if err != nil {
		return false, engineErr("load period row", err)
	}
	if existing != nil {
		return false, nil
	}

	seed := PeriodBalance{
		AccountID:   snap.AccountID,
		Period:      period,
		Closed:      snap.contributionTo(period),
		LastUpdated: time.Now().UTC(),
	}
	if err := s.SavePeriodRow(ctx, seed); err != nil {
		return false, engineErr("seed period row", err)
	}
	return true, nil
}

// contributionTo splits the snapshot's contribution by which of its
// dates fall inside the period: effective follows the due date, real
// follows the payment date.
func (s EntrySnapshot) contributionTo(period Period) Pair {
	p := ZeroPair()
	if period.Contains(s.DueDate) {
		p.Effective = s.Value
	}
	if s.PaymentDate != nil && period.Contains(*s.PaymentDate) {
		p.Real = s.Value
	}
	return p
}

// =============================================================================
// CASCADE - Forward recomputation of closed period rows
// =============================================================================

// cascade recomputes every period row of the account whose period ends
// on or after from, in chronological order. Each row's local sums are
// re-aggregated from current entries and stacked onto the cumulative
// total carried in from the row preceding the recomputed range.
func (e *Engine) cascade(ctx context.Context, s Store, accountID string, from Date) error {
	rows, err := s.PeriodRowsFrom(ctx, accountID, from)
	if err != nil {
		return engineErr("load period rows", err)
	}
	if len(rows) == 0 {
		// The create path seeds the first row before cascading; an empty
		// chain here means the history probe and the row chain disagree.
		return fmt.Errorf("cascade for account %s from %s: %w", accountID, from, ErrMissingPeriodRow)
	}

	if err := checkChain(accountID, rows); err != nil {
		return err
	}

	carry := ZeroPair()
	prev, err := s.LatestPeriodRowBefore(ctx, accountID, rows[0].Period.Start)
	if err != nil {
		return engineErr("load preceding row", err)
	}
	if prev != nil {
		carry = prev.Closed
	}

	for _, row := range rows {
		effective, err := s.SumEffective(ctx, accountID, row.Period.Start, row.Period.End)
		if err != nil {
			return engineErr("sum effective", err)
		}
		real, err := s.SumReal(ctx, accountID, row.Period.Start, row.Period.End)
		if err != nil {
			return engineErr("sum real", err)
		}

		carry = carry.Add(Pair{Effective: effective, Real: real})
		row.Closed = carry
		row.LastUpdated = time.Now().UTC()

		if err := s.SavePeriodRow(ctx, row); err != nil {
			return engineErr("save period row", err)
		}
	}
	return nil
}

// checkChain asserts the invariants the cascade relies on: every row
// spans exactly one calendar month and rows never overlap. A violation
// is a logic bug, not caller input.
func checkChain(accountID string, rows []PeriodBalance) error {
	for i, row := range rows {
		if !row.Period.Equal(PeriodOf(row.Period.Start)) {
			log.Printf("balance: account %s period row %s is not a calendar month", accountID, row.Period)
			return fmt.Errorf("account %s row %s: %w", accountID, row.Period, ErrConsistencyAssertion)
		}
		if i > 0 && !rows[i-1].Period.End.Before(row.Period.Start) {
			log.Printf("balance: account %s period rows %s and %s overlap", accountID, rows[i-1].Period, row.Period)
			return fmt.Errorf("account %s rows %s/%s: %w", accountID, rows[i-1].Period, row.Period, ErrConsistencyAssertion)
		}
	}
	return nil
}

func (e *Engine) adjust(ctx context.Context, s Store, accountID string, delta Pair) error {
	if err := s.AdjustBalance(ctx, accountID, delta); err != nil {
		return engineErr("adjust running balance", err)
	}
	return nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Recalculate rebuilds the account's period rows from raw entries,
// starting at the row whose period covers or follows from. It is a
// no-op when the account has no rows in range. Running balances are
// maintained incrementally by mutations and are not touched here.
//
// A second Recalculate over the same range with no intervening mutation
// leaves every row unchanged.
func (e *Engine) Recalculate(ctx context.Context, accountID string, from Date) error {
	release := e.locks.acquire(accountID)
	defer release()

	return e.store.WithTx(ctx, func(s Store) error {
		has, err := s.HasPeriodRowFrom(ctx, accountID, from)
		if err != nil {
			return engineErr("probe history", err)
		}
		if !has {
			return nil
		}
		return e.cascade(ctx, s, accountID, from)
	})
}
