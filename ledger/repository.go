/*
repository.go - Entry/account persistence with explicit engine notification

PURPOSE:
  The repository is the transaction-persistence collaborator the balance
  engine expects. Every write that changes an entry's value, due date,
  payment date, or account persists the entry AND applies the balance
  mutation inside the same storage transaction, under the affected
  accounts' locks. A save that touches only non-financial fields (e.g.
  the description) never reaches the engine.

BOUND ENTRIES:
  Entries can form chains (transfer pairs, recurring series) via
  BoundEntryID pointing at the chain head. Deleting a head promotes the
  oldest bound entry to be the new head and repoints the rest. Chain
  structure is identity bookkeeping only; it never affects balance math.
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbook/ledger-engine/balance"
)

// =============================================================================
// REPOSITORY
// =============================================================================

type Repository struct {
	store  TxStore
	engine *balance.Engine
}

func NewRepository(store TxStore, engine *balance.Engine) *Repository {
	return &Repository{store: store, engine: engine}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// CreateAccount registers an account with zero running balances.
func (r *Repository) CreateAccount(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CurrentEffective = decimal.Zero
	a.CurrentReal = decimal.Zero
	a.CreatedAt = time.Now().UTC()
	return r.store.SaveAccount(ctx, a)
}

func (r *Repository) Account(ctx context.Context, id string) (*Account, error) {
	return r.store.AccountByID(ctx, id)
}

func (r *Repository) Accounts(ctx context.Context, userID string) ([]*Account, error) {
	return r.store.AccountsByUser(ctx, userID)
}

// =============================================================================
// ENTRIES
// =============================================================================

// CreateEntry persists a new entry and applies its balance effects
// atomically.
func (r *Repository) CreateEntry(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if acct, err := r.store.AccountByID(ctx, e.AccountID); err != nil {
		return err
	} else if acct == nil {
		return fmt.Errorf("account %s: %w", e.AccountID, ErrAccountNotFound)
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	snap := e.Snapshot()
	release := r.engine.LockAccounts(e.AccountID)
	defer release()

	return r.store.WithTx(ctx, func(s Store) error {
		if err := s.SaveEntry(ctx, e); err != nil {
			return err
		}
		return r.engine.Apply(ctx, s, balance.Mutation{Kind: balance.Created, New: &snap})
	})
}

// UpdateEntry saves changes to an existing entry. The engine is notified
// only when a balance-relevant field differs from the committed record;
// otherwise the save is a plain write and no balances move.
func (r *Repository) UpdateEntry(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	committed, err := r.store.Entry(ctx, e.ID)
	if err != nil {
		return err
	}
	if committed == nil {
		return fmt.Errorf("entry %s: %w", e.ID, ErrEntryNotFound)
	}

	e.CreatedAt = committed.CreatedAt
	e.UpdatedAt = time.Now().UTC()

	oldSnap := committed.Snapshot()
	newSnap := e.Snapshot()

	if balance.BalanceFieldsEqual(oldSnap, newSnap) {
		// Non-financial change only; the engine must not be invoked.
		return r.store.WithTx(ctx, func(s Store) error {
			return s.SaveEntry(ctx, e)
		})
	}

	kind := balance.KindFor(oldSnap, newSnap)
	release := r.engine.LockAccounts(oldSnap.AccountID, newSnap.AccountID)
	defer release()

	return r.store.WithTx(ctx, func(s Store) error {
		if err := s.SaveEntry(ctx, e); err != nil {
			return err
		}
		return r.engine.Apply(ctx, s, balance.Mutation{Kind: kind, Old: &oldSnap, New: &newSnap})
	})
}

// DeleteEntry removes an entry, repointing any bound chain it headed,
// and reverses its balance contribution atomically.
func (r *Repository) DeleteEntry(ctx context.Context, id string) error {
	committed, err := r.store.Entry(ctx, id)
	if err != nil {
		return err
	}
	if committed == nil {
		return fmt.Errorf("entry %s: %w", id, ErrEntryNotFound)
	}

	bound, err := r.store.EntriesBoundTo(ctx, id)
	if err != nil {
		return err
	}

	oldSnap := committed.Snapshot()
	release := r.engine.LockAccounts(committed.AccountID)
	defer release()

	return r.store.WithTx(ctx, func(s Store) error {
		if len(bound) > 0 {
			// Promote the oldest bound entry to chain head.
			head := bound[0]
			head.BoundEntryID = ""
			if err := s.SaveEntry(ctx, head); err != nil {
				return err
			}
			for _, e := range bound[1:] {
				e.BoundEntryID = head.ID
				if err := s.SaveEntry(ctx, e); err != nil {
					return err
				}
			}
		}
		if err := s.DeleteEntry(ctx, id); err != nil {
			return err
		}
		return r.engine.Apply(ctx, s, balance.Mutation{Kind: balance.Deleted, Old: &oldSnap})
	})
}

func (r *Repository) Entry(ctx context.Context, id string) (*Entry, error) {
	e, err := r.store.Entry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("entry %s: %w", id, ErrEntryNotFound)
	}
	return e, nil
}

func (r *Repository) EntriesByAccount(ctx context.Context, accountID string) ([]*Entry, error) {
	return r.store.EntriesByAccount(ctx, accountID)
}

// PayEntry marks an entry as realized on the given date.
func (r *Repository) PayEntry(ctx context.Context, id string, on balance.Date) error {
	e, err := r.Entry(ctx, id)
	if err != nil {
		return err
	}
	e.Pay(on)
	return r.UpdateEntry(ctx, e)
}

// UnpayEntry clears an entry's payment date.
func (r *Repository) UnpayEntry(ctx context.Context, id string) error {
	e, err := r.Entry(ctx, id)
	if err != nil {
		return err
	}
	e.Unpay()
	return r.UpdateEntry(ctx, e)
}
