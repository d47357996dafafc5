package balance

import "github.com/shopspring/decimal"

// =============================================================================
// ENTRY SNAPSHOT - Committed field values relevant to balance math
// =============================================================================

// EntrySnapshot captures the balance-relevant fields of a ledger entry at
// a point in its lifecycle. A mutation carries two snapshots: the values
// previously committed to storage (old) and the values being committed
// now (new). The engine treats the pair as an immutable input; entry
// identity and the rest of the entry's fields belong to the persistence
// layer.
type EntrySnapshot struct {
	AccountID string
	Value     decimal.Decimal
	DueDate   Date

	// PaymentDate is nil until the entry is paid ("realized").
	PaymentDate *Date
}

// Paid reports whether the snapshot has a payment date set.
func (s EntrySnapshot) Paid() bool { return s.PaymentDate != nil }

// Contribution is the snapshot's {effective, real} contribution to its
// account: the full value effectively, and the value really only if paid.
func (s EntrySnapshot) Contribution() Pair {
	return NewPair(s.Value, s.Paid())
}

// LowerDate is the earliest date this snapshot touches: the due date, or
// the payment date if that is earlier. A nil payment date never lowers it.
func (s EntrySnapshot) LowerDate() Date {
	if s.PaymentDate != nil && s.PaymentDate.Before(s.DueDate) {
		return *s.PaymentDate
	}
	return s.DueDate
}

// BalanceFieldsEqual reports whether two snapshots agree on every
// balance-relevant field. Callers use this to honor the contract that
// the engine is only notified when such a field actually changed.
func BalanceFieldsEqual(a, b EntrySnapshot) bool {
	if a.AccountID != b.AccountID || !a.Value.Equal(b.Value) || !a.DueDate.Equal(b.DueDate) {
		return false
	}
	if (a.PaymentDate == nil) != (b.PaymentDate == nil) {
		return false
	}
	if a.PaymentDate != nil && !a.PaymentDate.Equal(*b.PaymentDate) {
		return false
	}
	return true
}

// =============================================================================
// MUTATION - What happened to an entry
// =============================================================================

type MutationKind string

const (
	Created        MutationKind = "created"
	Updated        MutationKind = "updated"
	Deleted        MutationKind = "deleted"
	AccountChanged MutationKind = "account_changed"
)

// Mutation is the engine's single input shape: the kind of change plus
// the old (previously committed; nil for Created) and new (post-mutation;
// nil for Deleted) snapshots.
type Mutation struct {
	Kind MutationKind
	Old  *EntrySnapshot
	New  *EntrySnapshot
}

// KindFor picks the mutation kind for a save of an existing entry:
// a move between accounts dispatches differently from an in-place update.
func KindFor(old, new EntrySnapshot) MutationKind {
	if old.AccountID != new.AccountID {
		return AccountChanged
	}
	return Updated
}

// Validate checks the snapshot-presence rules for the mutation kind and
// the dispatch invariants. Violations are fatal to the mutation and are
// rejected before any write occurs.
func (m Mutation) Validate() error {
	switch m.Kind {
	case Created:
		if m.Old != nil || m.New == nil {
			return invariant("created mutation requires a new snapshot and no old snapshot")
		}
	case Deleted:
		if m.Old == nil || m.New != nil {
			return invariant("deleted mutation requires an old snapshot and no new snapshot")
		}
	case Updated:
		if m.Old == nil || m.New == nil {
			return invariant("updated mutation requires both snapshots")
		}
		if m.Old.AccountID != m.New.AccountID {
			return invariant("updated mutation cannot change accounts; use account_changed")
		}
		if BalanceFieldsEqual(*m.Old, *m.New) {
			return invariant("updated mutation changed no balance-relevant field")
		}
	case AccountChanged:
		if m.Old == nil || m.New == nil {
			return invariant("account_changed mutation requires both snapshots")
		}
		if m.Old.AccountID == m.New.AccountID {
			return invariant("account_changed mutation must move between accounts")
		}
	default:
		return invariant("unknown mutation kind " + string(m.Kind))
	}
	return nil
}

// lowerDate is the earliest date across every snapshot the mutation
// carries. A change may move a date earlier or later; recomputation must
// start from whichever was earliest.
func (m Mutation) lowerDate() Date {
	var lower Date
	for _, s := range []*EntrySnapshot{m.Old, m.New} {
		if s == nil {
			continue
		}
		d := s.LowerDate()
		if lower.IsZero() || d.Before(lower) {
			lower = d
		}
	}
	return lower
}
