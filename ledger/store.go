package ledger

import (
	"context"

	"github.com/finbook/ledger-engine/balance"
)

// =============================================================================
// STORE - Entry/account persistence on top of the balance store
// =============================================================================

// Store is the full persistence surface the repository needs: the
// balance engine's view plus entry and account records.
type Store interface {
	balance.Store

	// Entries
	SaveEntry(ctx context.Context, e *Entry) error
	DeleteEntry(ctx context.Context, id string) error
	Entry(ctx context.Context, id string) (*Entry, error)
	EntriesByAccount(ctx context.Context, accountID string) ([]*Entry, error)
	// EntriesBoundTo returns entries whose BoundEntryID is id, ordered by
	// due date ascending.
	EntriesBoundTo(ctx context.Context, id string) ([]*Entry, error)

	// Accounts
	SaveAccount(ctx context.Context, a *Account) error
	AccountByID(ctx context.Context, id string) (*Account, error)
	AccountsByUser(ctx context.Context, userID string) ([]*Account, error)
}

// TxStore wraps Store with an atomic transaction boundary.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// BalanceTx adapts a ledger TxStore to the narrower transactional store
// the balance engine consumes.
func BalanceTx(s TxStore) balance.TxStore {
	return balanceTxAdapter{s}
}

type balanceTxAdapter struct {
	TxStore
}

func (a balanceTxAdapter) WithTx(ctx context.Context, fn func(balance.Store) error) error {
	return a.TxStore.WithTx(ctx, func(s Store) error {
		return fn(s)
	})
}
