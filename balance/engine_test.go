package balance_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbook/ledger-engine/balance"
	"github.com/finbook/ledger-engine/ledger"
	"github.com/finbook/ledger-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// may15 pins "today" so that Jan-Apr 2014 are closed history and May 2014
// is the open month.
func may15() balance.Date {
	return balance.NewDate(2014, time.May, 15)
}

func newTestEngine(st *memory.Store) *balance.Engine {
	engine := balance.NewEngine(ledger.BalanceTx(st))
	engine.Now = may15
	return engine
}

func newTestAccount(t *testing.T, st *memory.Store, id string) {
	t.Helper()
	err := st.SaveAccount(context.Background(), &ledger.Account{
		ID:               id,
		UserID:           "user-1",
		Name:             id,
		CurrentEffective: decimal.Zero,
		CurrentReal:      decimal.Zero,
	})
	if err != nil {
		t.Fatalf("save account: %v", err)
	}
}

// paidEntry builds an income entry paid on its due date, so effective and
// real move together.
func paidEntry(id, accountID string, value int64, due balance.Date) *ledger.Entry {
	d := due
	return &ledger.Entry{
		ID:          id,
		AccountID:   accountID,
		Kind:        ledger.KindIncome,
		Value:       decimal.NewFromInt(value),
		DueDate:     due,
		PaymentDate: &d,
	}
}

func createEntry(t *testing.T, st *memory.Store, engine *balance.Engine, e *ledger.Entry) {
	t.Helper()
	ctx := context.Background()
	if err := st.SaveEntry(ctx, e); err != nil {
		t.Fatalf("save entry %s: %v", e.ID, err)
	}
	snap := e.Snapshot()
	if err := engine.NotifyMutation(ctx, balance.Mutation{Kind: balance.Created, New: &snap}); err != nil {
		t.Fatalf("notify create %s: %v", e.ID, err)
	}
}

// buildFixture fills four closed months (Jan-Apr 2014) with 50 entries
// each, at values 1, 10, 100, 1000 per month. Cumulative effective totals
// per closed row: 50, 550, 5550, 55550.
func buildFixture(t *testing.T, st *memory.Store, engine *balance.Engine, accountID string) {
	t.Helper()
	values := []int64{1, 10, 100, 1000}
	for m, v := range values {
		month := balance.NewDate(2014, time.January, 1).AddMonths(m)
		for i := 0; i < 50; i++ {
			due := balance.NewDate(month.Year(), month.Month(), (i%28)+1)
			id := fmt.Sprintf("e-%d-%d", m, i)
			createEntry(t, st, engine, paidEntry(id, accountID, v, due))
		}
	}
}

func closedRow(t *testing.T, st *memory.Store, accountID string, start balance.Date) balance.PeriodBalance {
	t.Helper()
	row, err := st.PeriodRowFor(context.Background(), accountID, start)
	if err != nil {
		t.Fatalf("load row %s: %v", start, err)
	}
	if row == nil {
		t.Fatalf("expected a period row starting %s", start)
	}
	return *row
}

func assertRowTotals(t *testing.T, st *memory.Store, accountID string, expected []int64) {
	t.Helper()
	for m, want := range expected {
		start := balance.NewDate(2014, time.January, 1).AddMonths(m)
		row := closedRow(t, st, accountID, start)
		if !row.Closed.Effective.Equal(decimal.NewFromInt(want)) {
			t.Errorf("row %s: expected cumulative effective %d, got %s", start, want, row.Closed.Effective)
		}
		if !row.Closed.Real.Equal(decimal.NewFromInt(want)) {
			t.Errorf("row %s: expected cumulative real %d, got %s", start, want, row.Closed.Real)
		}
	}
}

func assertRunningBalance(t *testing.T, st *memory.Store, accountID string, want int64) {
	t.Helper()
	a, err := st.AccountByID(context.Background(), accountID)
	if err != nil || a == nil {
		t.Fatalf("load account: %v", err)
	}
	if !a.CurrentEffective.Equal(decimal.NewFromInt(want)) {
		t.Errorf("expected running effective %d, got %s", want, a.CurrentEffective)
	}
	if !a.CurrentReal.Equal(decimal.NewFromInt(want)) {
		t.Errorf("expected running real %d, got %s", want, a.CurrentReal)
	}
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_OpenMonth_OnlyRunningBalanceMoves(t *testing.T) {
	// GIVEN: An account with no history
	// WHEN: Creating an entry due in the open month
	// THEN: The running balance moves and no period row appears

	st := memory.New()
	engine := newTestEngine(st)
	newTestAccount(t, st, "acct-1")

	createEntry(t, st, engine, paidEntry("e-1", "acct-1", 42, balance.NewDate(2014, time.May, 10)))

	assertRunningBalance(t, st, "acct-1", 42)

	rows, err := st.PeriodRowsFrom(context.Background(), "acct-1", balance.NewDate(2000, time.January, 1))
	if err != nil {
		t.Fatalf("list rows: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no period rows for an open-month entry, got %d", len(rows))
	}
}

func TestCreate_Backdated_SeedsSingleMonthRow(t *testing.T) {
	// GIVEN: An account with no history
	// WHEN: Creating an entry due several months in the past
	// THEN: Exactly one row appears, covering only that entry's month

	st := memory.New()
	engine := newTestEngine(st)
	newTestAccount(t, st, "acct-1")

	createEntry(t, st, engine, paidEntry("e-1", "acct-1", 75, balance.NewDate(2014, time.January, 22)))

	rows, err := st.PeriodRowsFrom(context.Background(), "acct-1", balance.NewDate(2000, time.January, 1))
	if err != nil {
		t.Fatalf("list rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one seeded row, got %d", len(rows))
	}
	if !rows[0].Period.Start.Equal(balance.NewDate(2014, time.January, 1)) {
		t.Errorf("expected row for January, got %s", rows[0].Period)
	}
	if !rows[0].Closed.Effective.Equal(decimal.NewFromInt(75)) {
		t.Errorf("expected closed effective 75, got %s", rows[0].Closed.Effective)
	}
	assertRunningBalance(t, st, "acct-1", 75)
}

func TestCreate_OutOfOrderBackdatedEntries_ReconcileSeededMonth(t *testing.T) {
	// GIVEN: A backdated February entry whose create seeded the February row
	// WHEN: A January entry is created afterwards, out of order
	// THEN: January is seeded and the cascade restacks February on top of
	//       the January carry; a recalculate changes nothing further

	st := memory.New()
	engine := newTestEngine(st)
	newTestAccount(t, st, "acct-1")

	createEntry(t, st, engine, paidEntry("e-feb", "acct-1", 15, balance.NewDate(2014, time.February, 10)))
	createEntry(t, st, engine, paidEntry("e-jan", "acct-1", 100, balance.NewDate(2014, time.January, 8)))

	jan := closedRow(t, st, "acct-1", balance.NewDate(2014, time.January, 1))
	if !jan.Closed.Effective.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected January cumulative 100, got %s", jan.Closed.Effective)
	}
	feb := closedRow(t, st, "acct-1", balance.NewDate(2014, time.February, 1))
	if !feb.Closed.Effective.Equal(decimal.NewFromInt(115)) {
		t.Errorf("expected February cumulative 115 (15 on top of the carry), got %s", feb.Closed.Effective)
	}
	assertRunningBalance(t, st, "acct-1", 115)

	ctx := context.Background()
	if err := engine.Recalculate(ctx, "acct-1", balance.NewDate(2014, time.January, 1)); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	feb = closedRow(t, st, "acct-1", balance.NewDate(2014, time.February, 1))
	if !feb.Closed.Effective.Equal(decimal.NewFromInt(115)) {
		t.Errorf("recalculate must not move a settled chain, got %s", feb.Closed.Effective)
	}
}

func TestCreate_UnpaidEntry_OnlyEffectiveMoves(t *testing.T) {
	st := memory.New()
	engine := newTestEngine(st)
	newTestAccount(t, st, "acct-1")

	e := paidEntry("e-1", "acct-1", 30, balance.NewDate(2014, time.May, 3))
	e.Unpay()
	createEntry(t, st, engine, e)

	a, _ := st.AccountByID(context.Background(), "acct-1")
	if !a.CurrentEffective.Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected effective 30, got %s", a.CurrentEffective)
	}
	if !a.CurrentReal.IsZero() {
		t.Errorf("expected real 0 for unpaid entry, got %s", a.CurrentReal)
	}
}

// =============================================================================
// CASCADE OVER CLOSED HISTORY
// =============================================================================

func TestCascade_BackfilledMonths_CumulativeRows(t *testing.T) {
	// GIVEN: Four backfilled months of entries
	// WHEN: All creates have been applied
	// THEN: Each closed row holds the cumulative total through its month
	//       and the running balance equals the last row's total

	st := memory.New()
	engine := newTestEngine(st)
	newTestAccount(t, st, "acct-1")
	buildFixture(t, st, engine, "acct-1")

	assertRowTotals(t, st, "acct-1", []int64{50, 550, 5550, 55550})
	assertRunningBalance(t, st, "acct-1", 55550)
}

func TestCascade_HistoricalUpdate_PropagatesToLaterRows(t *testing.T) {
	// GIVEN: Four closed months of history
	// WHEN: One February entry's value changes from 10 to 1000
	// THEN: February and every later row shift by the same +990 delta;
	//       January is untouched

	st := memory.New()
	engine := newTestEngine(st)
	newTestAccount(t, st, "acct-1")
	buildFixture(t, st, engine, "acct-1")

	ctx := context.Background()
	e, err := st.Entry(ctx, "e-1-0")
	if err != nil || e == nil {
		t.Fatalf("load entry: %v", err)
	}
	oldSnap := e.Snapshot()
	e.Value = decimal.NewFromInt(1000)
	if err := st.SaveEntry(ctx, e); err != nil {
		t.Fatalf("save entry: %v", err)
	}
	newSnap := e.Snapshot()
	err = engine.NotifyMutation(ctx, balance.Mutation{Kind: balance.Updated, Old: &oldSnap, New: &newSnap})
	if err != nil {
		t.Fatalf("notify update: %v", err)
	}

	assertRowTotals(t, st, "acct-1", []int64{50, 1540, 6540, 56540})
	assertRunningBalance(t, st, "acct-1", 56540)
}

func TestCascade_HistoricalDelete_PropagatesToLaterRows(t *testing.T) {
	// GIVEN: Four closed months of history
	// WHEN: A January entry of value 1 is deleted
	// THEN: Every row from January on shifts by -1

	st := memory.New()
	engine := newTestEngine(st)
	newTestAccount(t, st, "acct-1")
	buildFixture(t, st, engine, "acct-1")

	ctx := context.Background()
	e, err := st.Entry(ctx, "e-0-0")
	if err != nil || e == nil {
		t.Fatalf("load entry: %v", err)
	}
	oldSnap := e.Snapshot()
	if err := st.DeleteEntry(ctx, "e-0-0"); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	err = engine.NotifyMutation(ctx, balance.Mutation{Kind: balance.Deleted, Old: &oldSnap})
	if err != nil {
		t.Fatalf("notify delete: %v", err)
	}

	assertRowTotals(t, st, "acct-1", []int64{49, 549, 5549, 55549})
	assertRunningBalance(t, st, "acct-1", 55549)
}

func TestCascade_RowEmptiedByDelete_IsKeptAtCarry(t *testing.T) {
	// GIVEN: A single backdated entry and its seeded row
	// WHEN: The entry is deleted
	// THEN: The row survives, holding the unchanged carry (zero)

	st := memory.New()
	engine := newTestEngine(st)
	newTestAccount(t, st, "acct-1")

	createEntry(t, st, engine, paidEntry("e-1", "acct-1", 75, balance.NewDate(2014, time.February, 10)))

	ctx := context.Background()
	e, _ := st.Entry(ctx, "e-1")
	oldSnap := e.Snapshot()
	if err := st.DeleteEntry(ctx, "e-1"); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	if err := engine.NotifyMutation(ctx, balance.Mutation{Kind: balance.Deleted, Old: &oldSnap}); err != nil {
		t.Fatalf("notify delete: %v", err)
	}

	row := closedRow(t, st, "acct-1", balance.NewDate(2014, time.February, 1))
	if !row.Closed.Effective.IsZero() || !row.Closed.Real.IsZero() {
		t.Errorf("expected emptied row to hold zero, got %s", row.Closed)
	}
	assertRunningBalance(t, st, "acct-1", 0)
}

// =============================================================================
// UPDATE SEMANTICS
// =============================================================================

func TestUpdate_UnpayInOpenMonth_OnlyRealMoves(t *testing.T) {
	// GIVEN: A paid entry in the open month
	// WHEN: Its payment date is cleared
	// THEN: The real balance drops by the value; effective is unchanged

	st := memory.New()
	engine := newTestEngine(st)
	newTestAccount(t, st, "acct-1")

	createEntry(t, st, engine, paidEntry("e-1", "acct-1", 60, balance.NewDate(2014, time.May, 5)))

	ctx := context.Background()
	e, _ := st.Entry(ctx, "e-1")
	oldSnap := e.Snapshot()
	e.Unpay()
	if err := st.SaveEntry(ctx, e); err != nil {
		t.Fatalf("save entry: %v", err)
	}
	newSnap := e.Snapshot()
	if err := engine.NotifyMutation(ctx, balance.Mutation{Kind: balance.Updated, Old: &oldSnap, New: &newSnap}); err != nil {
		t.Fatalf("notify update: %v", err)
	}

	a, _ := st.AccountByID(ctx, "acct-1")
	if !a.CurrentEffective.Equal(decimal.NewFromInt(60)) {
		t.Errorf("expected effective 60, got %s", a.CurrentEffective)
	}
	if !a.CurrentReal.IsZero() {
		t.Errorf("expected real 0 after unpay, got %s", a.CurrentReal)
	}
}

func TestUpdate_DueDateMovedEarlier_CascadesFromOldestDate(t *testing.T) {
	// GIVEN: Two closed months with one entry each
	// WHEN: The later entry's due date moves into the earlier month
	// THEN: Both rows are recomputed against the new entry placement

	st := memory.New()
	engine := newTestEngine(st)
	newTestAccount(t, st, "acct-1")

	createEntry(t, st, engine, paidEntry("e-1", "acct-1", 100, balance.NewDate(2014, time.January, 10)))
	createEntry(t, st, engine, paidEntry("e-2", "acct-1", 40, balance.NewDate(2014, time.February, 10)))

	ctx := context.Background()
	e, _ := st.Entry(ctx, "e-2")
	oldSnap := e.Snapshot()
	due := balance.NewDate(2014, time.January, 20)
	e.DueDate = due
	e.PaymentDate = &due
	if err := st.SaveEntry(ctx, e); err != nil {
		t.Fatalf("save entry: %v", err)
	}
	newSnap := e.Snapshot()
	if err := engine.NotifyMutation(ctx, balance.Mutation{Kind: balance.Updated, Old: &oldSnap, New: &newSnap}); err != nil {
		t.Fatalf("notify update: %v", err)
	}

	jan := closedRow(t, st, "acct-1", balance.NewDate(2014, time.January, 1))
	feb := closedRow(t, st, "acct-1", balance.NewDate(2014, time.February, 1))
	if !jan.Closed.Effective.Equal(decimal.NewFromInt(140)) {
		t.Errorf("expected January cumulative 140, got %s", jan.Closed.Effective)
	}
	if !feb.Closed.Effective.Equal(decimal.NewFromInt(140)) {
		t.Errorf("expected February cumulative 140 (empty month on top of carry), got %s", feb.Closed.Effective)
	}
	assertRunningBalance(t, st, "acct-1", 140)
}

// =============================================================================
// ACCOUNT CHANGE
// =============================================================================

func TestAccountChanged_MovesHistoryBetweenAccounts(t *testing.T) {
	// GIVEN: A historical entry on account A and an empty account B
	// WHEN: The entry moves to account B
	// THEN: A's row empties to carry, B gets a seeded row, and both
	//       running balances move by the full contribution

	st := memory.New()
	engine := newTestEngine(st)
	newTestAccount(t, st, "acct-a")
	newTestAccount(t, st, "acct-b")

	createEntry(t, st, engine, paidEntry("e-1", "acct-a", 90, balance.NewDate(2014, time.March, 12)))

	ctx := context.Background()
	e, _ := st.Entry(ctx, "e-1")
	oldSnap := e.Snapshot()
	e.AccountID = "acct-b"
	if err := st.SaveEntry(ctx, e); err != nil {
		t.Fatalf("save entry: %v", err)
	}
	newSnap := e.Snapshot()

	kind := balance.KindFor(oldSnap, newSnap)
	if kind != balance.AccountChanged {
		t.Fatalf("expected account_changed dispatch, got %s", kind)
	}
	if err := engine.NotifyMutation(ctx, balance.Mutation{Kind: kind, Old: &oldSnap, New: &newSnap}); err != nil {
		t.Fatalf("notify account change: %v", err)
	}

	rowA := closedRow(t, st, "acct-a", balance.NewDate(2014, time.March, 1))
	if !rowA.Closed.Effective.IsZero() {
		t.Errorf("expected source row emptied, got %s", rowA.Closed.Effective)
	}
	rowB := closedRow(t, st, "acct-b", balance.NewDate(2014, time.March, 1))
	if !rowB.Closed.Effective.Equal(decimal.NewFromInt(90)) {
		t.Errorf("expected destination row 90, got %s", rowB.Closed.Effective)
	}
	assertRunningBalance(t, st, "acct-a", 0)
	assertRunningBalance(t, st, "acct-b", 90)
}

// =============================================================================
// RECALCULATE
// =============================================================================

func TestRecalculate_Idempotent(t *testing.T) {
	// GIVEN: Closed history produced by normal mutations
	// WHEN: Recalculating with no intervening changes
	// THEN: Every row's totals are unchanged

	st := memory.New()
	engine := newTestEngine(st)
	newTestAccount(t, st, "acct-1")
	buildFixture(t, st, engine, "acct-1")

	ctx := context.Background()
	from := balance.NewDate(2014, time.January, 1)
	before, err := st.PeriodRowsFrom(ctx, "acct-1", from)
	if err != nil {
		t.Fatalf("list rows: %v", err)
	}

	if err := engine.Recalculate(ctx, "acct-1", from); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	after, err := st.PeriodRowsFrom(ctx, "acct-1", from)
	if err != nil {
		t.Fatalf("list rows: %v", err)
	}
	if len(before) != len(after) {
		t.Fatalf("row count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if !before[i].Closed.Equal(after[i].Closed) {
			t.Errorf("row %s changed: %s -> %s", before[i].Period, before[i].Closed, after[i].Closed)
		}
	}
}

func TestRecalculate_NoHistory_NoOp(t *testing.T) {
	st := memory.New()
	engine := newTestEngine(st)
	newTestAccount(t, st, "acct-1")

	err := engine.Recalculate(context.Background(), "acct-1", balance.NewDate(2014, time.January, 1))
	if err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

// =============================================================================
// MUTATION VALIDATION
// =============================================================================

func TestNotifyMutation_RejectsMalformedMutations(t *testing.T) {
	st := memory.New()
	engine := newTestEngine(st)
	newTestAccount(t, st, "acct-1")

	due := balance.NewDate(2014, time.May, 5)
	snap := balance.EntrySnapshot{AccountID: "acct-1", Value: decimal.NewFromInt(10), DueDate: due}
	other := balance.EntrySnapshot{AccountID: "acct-2", Value: decimal.NewFromInt(10), DueDate: due}

	cases := []struct {
		name string
		m    balance.Mutation
	}{
		{"created without new", balance.Mutation{Kind: balance.Created}},
		{"created with old", balance.Mutation{Kind: balance.Created, Old: &snap, New: &snap}},
		{"deleted without old", balance.Mutation{Kind: balance.Deleted}},
		{"updated missing snapshot", balance.Mutation{Kind: balance.Updated, New: &snap}},
		{"updated across accounts", balance.Mutation{Kind: balance.Updated, Old: &snap, New: &other}},
		{"updated with no change", balance.Mutation{Kind: balance.Updated, Old: &snap, New: &snap}},
		{"account change within account", balance.Mutation{Kind: balance.AccountChanged, Old: &snap, New: &snap}},
		{"unknown kind", balance.Mutation{Kind: "renamed", Old: &snap, New: &snap}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := engine.NotifyMutation(context.Background(), tc.m)
			if !errors.Is(err, balance.ErrInvariantViolation) {
				t.Errorf("expected invariant violation, got %v", err)
			}
		})
	}
}
