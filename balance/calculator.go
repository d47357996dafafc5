/*
calculator.go - Read-only balance reconstruction

PURPOSE:
  Answers "what is this account's balance?" by combining the latest
  closed period row (which stores cumulative totals through its period
  end) with a live aggregate of the open month's entries. It never
  mutates state and never recomputes history.
*/
package balance

import "context"

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator is the downstream read side of the engine. Because period
// rows store cumulative totals, a single row read plus one open-month
// aggregation reconstructs the balance in O(1) rows.
type Calculator struct {
	store Store

	// Now returns the current date; overridable for tests.
	Now func() Date
}

func NewCalculator(store Store) *Calculator {
	return &Calculator{store: store, Now: Today}
}

func (c *Calculator) today() Date {
	if c.Now != nil {
		return c.Now()
	}
	return Today()
}

// CurrentBalance returns the account's {effective, real} balance now:
// the cumulative closed total plus the whole open calendar month's
// activity. The full month is used, matching how mutations move the
// running balance by an entry's full value on creation.
func (c *Calculator) CurrentBalance(ctx context.Context, accountID string) (Pair, error) {
	period := PeriodOf(c.today())

	closed := ZeroPair()
	row, err := c.store.LatestPeriodRowBefore(ctx, accountID, period.Start)
	if err != nil {
		return Pair{}, engineErr("load latest period row", err)
	}
	if row != nil {
		closed = row.Closed
	}

	open, err := c.sumRange(ctx, accountID, period.Start, period.End)
	if err != nil {
		return Pair{}, err
	}
	return closed.Add(open), nil
}

// BalanceAt returns the account's balance as of an arbitrary date: the
// cumulative total of the last period closed before that date's month,
// plus that month's entries through the date itself.
func (c *Calculator) BalanceAt(ctx context.Context, accountID string, at Date) (Pair, error) {
	period := PeriodOf(at)

	closed := ZeroPair()
	row, err := c.store.LatestPeriodRowBefore(ctx, accountID, period.Start)
	if err != nil {
		return Pair{}, engineErr("load latest period row", err)
	}
	if row != nil {
		closed = row.Closed
	}

	open, err := c.sumRange(ctx, accountID, period.Start, at)
	if err != nil {
		return Pair{}, err
	}

	return closed.Add(open), nil
}

// OpenPeriodActivity returns the live {effective, real} aggregate of the
// current calendar month, exactly as CurrentBalance would add it.
func (c *Calculator) OpenPeriodActivity(ctx context.Context, accountID string) (Pair, error) {
	period := PeriodOf(c.today())
	return c.sumRange(ctx, accountID, period.Start, period.End)
}

func (c *Calculator) sumRange(ctx context.Context, accountID string, from, to Date) (Pair, error) {
	effective, err := c.store.SumEffective(ctx, accountID, from, to)
	if err != nil {
		return Pair{}, engineErr("sum effective", err)
	}
	real, err := c.store.SumReal(ctx, accountID, from, to)
	if err != nil {
		return Pair{}, engineErr("sum real", err)
	}
	return Pair{Effective: effective, Real: real}, nil
}
