package balance

import (
	"sort"
	"sync"
)

// =============================================================================
// ACCOUNT LOCKS - Per-account mutual exclusion for mutations
// =============================================================================

// accountLocks serializes mutations per account. Two cascades over the
// same account would race on read-modify-write of period rows; mutations
// to different accounts proceed in parallel.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

func (al *accountLocks) lockFor(accountID string) *sync.Mutex {
	al.mu.Lock()
	defer al.mu.Unlock()

	l, ok := al.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		al.locks[accountID] = l
	}
	return l
}

// acquire locks the given accounts and returns a release function.
// Locks are always taken in ascending account-ID order so that a
// two-account mutation (an entry moved between accounts) cannot
// deadlock against another running in the opposite direction.
func (al *accountLocks) acquire(accountIDs ...string) func() {
	ids := dedupeSorted(accountIDs)

	locked := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		l := al.lockFor(id)
		l.Lock()
		locked = append(locked, l)
	}

	return func() {
		// Release in reverse acquisition order.
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}
}

func dedupeSorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	n := 0
	for i, id := range out {
		if i == 0 || id != out[i-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}
