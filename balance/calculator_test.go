package balance_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbook/ledger-engine/balance"
	"github.com/finbook/ledger-engine/store/memory"
)

// =============================================================================
// CALCULATOR TESTS
// =============================================================================

func newTestCalculator(st *memory.Store) *balance.Calculator {
	calc := balance.NewCalculator(st)
	calc.Now = may15
	return calc
}

func TestCurrentBalance_ClosedRowPlusOpenMonth(t *testing.T) {
	// GIVEN: One closed month (Jan, 100 paid) and open-month activity
	//        (7 paid on May 2, 5 pending due May 20)
	// WHEN: Reading the current balance
	// THEN: Effective = 100 + 12, real = 100 + 7; the pending entry
	//       counts effectively for the whole open month

	st := memory.New()
	engine := newTestEngine(st)
	calc := newTestCalculator(st)
	newTestAccount(t, st, "acct-1")

	createEntry(t, st, engine, paidEntry("e-1", "acct-1", 100, balance.NewDate(2014, time.January, 10)))
	createEntry(t, st, engine, paidEntry("e-2", "acct-1", 7, balance.NewDate(2014, time.May, 2)))
	pending := paidEntry("e-3", "acct-1", 5, balance.NewDate(2014, time.May, 20))
	pending.Unpay()
	createEntry(t, st, engine, pending)

	got, err := calc.CurrentBalance(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("current balance: %v", err)
	}
	if !got.Effective.Equal(decimal.NewFromInt(112)) {
		t.Errorf("expected effective 112, got %s", got.Effective)
	}
	if !got.Real.Equal(decimal.NewFromInt(107)) {
		t.Errorf("expected real 107, got %s", got.Real)
	}
}

func TestCurrentBalance_NoHistory(t *testing.T) {
	// GIVEN: An account whose only entry is in the open month
	// WHEN: Reading the current balance
	// THEN: The balance is the open month's aggregate alone

	st := memory.New()
	engine := newTestEngine(st)
	calc := newTestCalculator(st)
	newTestAccount(t, st, "acct-1")

	createEntry(t, st, engine, paidEntry("e-1", "acct-1", 25, balance.NewDate(2014, time.May, 8)))

	got, err := calc.CurrentBalance(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("current balance: %v", err)
	}
	if !got.Effective.Equal(decimal.NewFromInt(25)) || !got.Real.Equal(decimal.NewFromInt(25)) {
		t.Errorf("expected {25, 25}, got %s", got)
	}
}

func TestCurrentBalance_MatchesRunningBalance(t *testing.T) {
	// GIVEN: Four closed months plus open-month entries
	// WHEN: Comparing the calculator against the account's running balance
	// THEN: Both views agree

	st := memory.New()
	engine := newTestEngine(st)
	calc := newTestCalculator(st)
	newTestAccount(t, st, "acct-1")
	buildFixture(t, st, engine, "acct-1")
	createEntry(t, st, engine, paidEntry("e-open", "acct-1", 17, balance.NewDate(2014, time.May, 4)))

	ctx := context.Background()
	got, err := calc.CurrentBalance(ctx, "acct-1")
	if err != nil {
		t.Fatalf("current balance: %v", err)
	}
	a, err := st.AccountByID(ctx, "acct-1")
	if err != nil || a == nil {
		t.Fatalf("load account: %v", err)
	}
	if !got.Equal(a.Current()) {
		t.Errorf("calculator %s disagrees with running balance %s", got, a.Current())
	}
}

func TestBalanceAt_HistoricalDate(t *testing.T) {
	// GIVEN: A closed January (100) and a February entry due on the 20th
	// WHEN: Asking for the balance at Feb 15 and Feb 25
	// THEN: The Feb 20 entry only counts from its due date on

	st := memory.New()
	engine := newTestEngine(st)
	calc := newTestCalculator(st)
	newTestAccount(t, st, "acct-1")

	createEntry(t, st, engine, paidEntry("e-1", "acct-1", 100, balance.NewDate(2014, time.January, 10)))
	createEntry(t, st, engine, paidEntry("e-2", "acct-1", 30, balance.NewDate(2014, time.February, 20)))

	ctx := context.Background()

	mid, err := calc.BalanceAt(ctx, "acct-1", balance.NewDate(2014, time.February, 15))
	if err != nil {
		t.Fatalf("balance at feb 15: %v", err)
	}
	if !mid.Effective.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected 100 at Feb 15, got %s", mid.Effective)
	}

	late, err := calc.BalanceAt(ctx, "acct-1", balance.NewDate(2014, time.February, 25))
	if err != nil {
		t.Fatalf("balance at feb 25: %v", err)
	}
	if !late.Effective.Equal(decimal.NewFromInt(130)) {
		t.Errorf("expected 130 at Feb 25, got %s", late.Effective)
	}
}

func TestOpenPeriodActivity(t *testing.T) {
	st := memory.New()
	engine := newTestEngine(st)
	calc := newTestCalculator(st)
	newTestAccount(t, st, "acct-1")

	createEntry(t, st, engine, paidEntry("e-1", "acct-1", 100, balance.NewDate(2014, time.January, 10)))
	createEntry(t, st, engine, paidEntry("e-2", "acct-1", 9, balance.NewDate(2014, time.May, 30)))

	got, err := calc.OpenPeriodActivity(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("open period activity: %v", err)
	}
	if !got.Effective.Equal(decimal.NewFromInt(9)) {
		t.Errorf("expected open-month effective 9 (history excluded), got %s", got.Effective)
	}
}
