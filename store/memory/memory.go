// Package memory provides an in-memory Store implementation for tests
// and development. WithTx is simulated with a snapshot + rollback.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/finbook/ledger-engine/balance"
	"github.com/finbook/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu       sync.RWMutex
	accounts map[string]*ledger.Account
	entries  map[string]*ledger.Entry
	// rows: accountID -> period start date string -> row
	rows map[string]map[string]balance.PeriodBalance
}

func New() *Store {
	return &Store{
		accounts: make(map[string]*ledger.Account),
		entries:  make(map[string]*ledger.Entry),
		rows:     make(map[string]map[string]balance.PeriodBalance),
	}
}

// =============================================================================
// PERIOD BALANCE ROWS
// =============================================================================

func (m *Store) PeriodRowsFrom(_ context.Context, accountID string, from balance.Date) ([]balance.PeriodBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.periodRowsFrom(accountID, from), nil
}

func (m *Store) periodRowsFrom(accountID string, from balance.Date) []balance.PeriodBalance {
	var out []balance.PeriodBalance
	for _, row := range m.rows[accountID] {
		if row.Period.End.AfterOrEqual(from) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Period.Start.Before(out[j].Period.Start)
	})
	return out
}

func (m *Store) HasPeriodRowFrom(_ context.Context, accountID string, from balance.Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.periodRowsFrom(accountID, from)) > 0, nil
}

func (m *Store) LatestPeriodRowBefore(_ context.Context, accountID string, before balance.Date) (*balance.PeriodBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestPeriodRowBefore(accountID, before), nil
}

func (m *Store) latestPeriodRowBefore(accountID string, before balance.Date) *balance.PeriodBalance {
	var latest *balance.PeriodBalance
	for _, row := range m.rows[accountID] {
		row := row
		if !row.Period.Start.Before(before) {
			continue
		}
		if latest == nil || row.Period.Start.After(latest.Period.Start) {
			latest = &row
		}
	}
	return latest
}

func (m *Store) PeriodRowFor(_ context.Context, accountID string, start balance.Date) (*balance.PeriodBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.periodRowFor(accountID, start), nil
}

func (m *Store) periodRowFor(accountID string, start balance.Date) *balance.PeriodBalance {
	if row, ok := m.rows[accountID][start.String()]; ok {
		return &row
	}
	return nil
}

func (m *Store) SavePeriodRow(_ context.Context, row balance.PeriodBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.savePeriodRow(row)
	return nil
}

func (m *Store) savePeriodRow(row balance.PeriodBalance) {
	if m.rows[row.AccountID] == nil {
		m.rows[row.AccountID] = make(map[string]balance.PeriodBalance)
	}
	m.rows[row.AccountID][row.Period.Start.String()] = row
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Store) AdjustBalance(_ context.Context, accountID string, delta balance.Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustBalance(accountID, delta)
}

func (m *Store) adjustBalance(accountID string, delta balance.Pair) error {
	a, ok := m.accounts[accountID]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	a.CurrentEffective = a.CurrentEffective.Add(delta.Effective)
	a.CurrentReal = a.CurrentReal.Add(delta.Real)
	return nil
}

func (m *Store) SaveAccount(_ context.Context, a *ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveAccount(a)
	return nil
}

func (m *Store) saveAccount(a *ledger.Account) {
	cp := *a
	m.accounts[a.ID] = &cp
}

func (m *Store) AccountByID(_ context.Context, id string) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountByID(id), nil
}

func (m *Store) accountByID(id string) *ledger.Account {
	a, ok := m.accounts[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (m *Store) AccountsByUser(_ context.Context, userID string) ([]*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountsByUser(userID), nil
}

func (m *Store) accountsByUser(userID string) []*ledger.Account {
	var out []*ledger.Account
	for _, a := range m.accounts {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// =============================================================================
// ENTRIES
// =============================================================================

func (m *Store) SaveEntry(_ context.Context, e *ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveEntry(e)
	return nil
}

func (m *Store) saveEntry(e *ledger.Entry) {
	cp := *e
	if e.PaymentDate != nil {
		d := *e.PaymentDate
		cp.PaymentDate = &d
	}
	m.entries[e.ID] = &cp
}

func (m *Store) DeleteEntry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *Store) Entry(_ context.Context, id string) (*ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entryByID(id), nil
}

func (m *Store) entryByID(id string) *ledger.Entry {
	e, ok := m.entries[id]
	if !ok {
		return nil
	}
	cp := *e
	if e.PaymentDate != nil {
		d := *e.PaymentDate
		cp.PaymentDate = &d
	}
	return &cp
}

func (m *Store) EntriesByAccount(_ context.Context, accountID string) ([]*ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesWhere(func(e *ledger.Entry) bool { return e.AccountID == accountID }), nil
}

func (m *Store) EntriesBoundTo(_ context.Context, id string) ([]*ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesWhere(func(e *ledger.Entry) bool { return e.BoundEntryID == id }), nil
}

func (m *Store) entriesWhere(match func(*ledger.Entry) bool) []*ledger.Entry {
	var out []*ledger.Entry
	for _, e := range m.entries {
		if match(e) {
			cp := *e
			if e.PaymentDate != nil {
				d := *e.PaymentDate
				cp.PaymentDate = &d
			}
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Store) SumEffective(_ context.Context, accountID string, from, to balance.Date) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sumEffective(accountID, from, to), nil
}

func (m *Store) sumEffective(accountID string, from, to balance.Date) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range m.entries {
		if e.AccountID == accountID && e.DueDate.AfterOrEqual(from) && e.DueDate.BeforeOrEqual(to) {
			sum = sum.Add(e.Value)
		}
	}
	return sum
}

func (m *Store) SumReal(_ context.Context, accountID string, from, to balance.Date) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sumReal(accountID, from, to), nil
}

func (m *Store) sumReal(accountID string, from, to balance.Date) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range m.entries {
		if e.AccountID == accountID && e.PaymentDate != nil &&
			e.PaymentDate.AfterOrEqual(from) && e.PaymentDate.BeforeOrEqual(to) {
			sum = sum.Add(e.Value)
		}
	}
	return sum
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback
// =============================================================================

// WithTx executes fn against a view of the store; on error the prior
// state is restored. The store lock is held for the whole transaction,
// so fn must use only the view it is given.
func (m *Store) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{store: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type storeSnapshot struct {
	accounts map[string]*ledger.Account
	entries  map[string]*ledger.Entry
	rows     map[string]map[string]balance.PeriodBalance
}

func (m *Store) snapshot() storeSnapshot {
	s := storeSnapshot{
		accounts: make(map[string]*ledger.Account, len(m.accounts)),
		entries:  make(map[string]*ledger.Entry, len(m.entries)),
		rows:     make(map[string]map[string]balance.PeriodBalance, len(m.rows)),
	}
	for k, v := range m.accounts {
		cp := *v
		s.accounts[k] = &cp
	}
	for k, v := range m.entries {
		cp := *v
		if v.PaymentDate != nil {
			d := *v.PaymentDate
			cp.PaymentDate = &d
		}
		s.entries[k] = &cp
	}
	for k, v := range m.rows {
		rows := make(map[string]balance.PeriodBalance, len(v))
		for rk, rv := range v {
			rows[rk] = rv
		}
		s.rows[k] = rows
	}
	return s
}

func (m *Store) restore(s storeSnapshot) {
	m.accounts = s.accounts
	m.entries = s.entries
	m.rows = s.rows
}

// txView forwards to the store's unlocked internals; the outer WithTx
// already holds the write lock.
type txView struct {
	store *Store
}

func (v *txView) PeriodRowsFrom(_ context.Context, accountID string, from balance.Date) ([]balance.PeriodBalance, error) {
	return v.store.periodRowsFrom(accountID, from), nil
}

func (v *txView) HasPeriodRowFrom(_ context.Context, accountID string, from balance.Date) (bool, error) {
	return len(v.store.periodRowsFrom(accountID, from)) > 0, nil
}

func (v *txView) LatestPeriodRowBefore(_ context.Context, accountID string, before balance.Date) (*balance.PeriodBalance, error) {
	return v.store.latestPeriodRowBefore(accountID, before), nil
}

func (v *txView) PeriodRowFor(_ context.Context, accountID string, start balance.Date) (*balance.PeriodBalance, error) {
	return v.store.periodRowFor(accountID, start), nil
}

func (v *txView) SavePeriodRow(_ context.Context, row balance.PeriodBalance) error {
	v.store.savePeriodRow(row)
	return nil
}

func (v *txView) AdjustBalance(_ context.Context, accountID string, delta balance.Pair) error {
	return v.store.adjustBalance(accountID, delta)
}

func (v *txView) SumEffective(_ context.Context, accountID string, from, to balance.Date) (decimal.Decimal, error) {
	return v.store.sumEffective(accountID, from, to), nil
}

func (v *txView) SumReal(_ context.Context, accountID string, from, to balance.Date) (decimal.Decimal, error) {
	return v.store.sumReal(accountID, from, to), nil
}

func (v *txView) SaveEntry(_ context.Context, e *ledger.Entry) error {
	v.store.saveEntry(e)
	return nil
}

func (v *txView) DeleteEntry(_ context.Context, id string) error {
	delete(v.store.entries, id)
	return nil
}

func (v *txView) Entry(_ context.Context, id string) (*ledger.Entry, error) {
	return v.store.entryByID(id), nil
}

func (v *txView) EntriesByAccount(_ context.Context, accountID string) ([]*ledger.Entry, error) {
	return v.store.entriesWhere(func(e *ledger.Entry) bool { return e.AccountID == accountID }), nil
}

func (v *txView) EntriesBoundTo(_ context.Context, id string) ([]*ledger.Entry, error) {
	return v.store.entriesWhere(func(e *ledger.Entry) bool { return e.BoundEntryID == id }), nil
}

func (v *txView) SaveAccount(_ context.Context, a *ledger.Account) error {
	v.store.saveAccount(a)
	return nil
}

func (v *txView) AccountByID(_ context.Context, id string) (*ledger.Account, error) {
	return v.store.accountByID(id), nil
}

func (v *txView) AccountsByUser(_ context.Context, userID string) ([]*ledger.Account, error) {
	return v.store.accountsByUser(userID), nil
}
