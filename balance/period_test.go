package balance_test

import (
	"testing"
	"time"

	"github.com/finbook/ledger-engine/balance"
)

// =============================================================================
// PERIOD TESTS
// =============================================================================

func TestPeriodOf_MidMonth(t *testing.T) {
	// GIVEN: A date in the middle of a month
	// WHEN: Resolving its period
	// THEN: The period spans the whole calendar month

	p := balance.PeriodOf(balance.NewDate(2014, time.August, 22))

	if !p.Start.Equal(balance.NewDate(2014, time.August, 1)) {
		t.Errorf("expected start 2014-08-01, got %s", p.Start)
	}
	if !p.End.Equal(balance.NewDate(2014, time.August, 31)) {
		t.Errorf("expected end 2014-08-31, got %s", p.End)
	}
}

func TestPeriodOf_MonthBoundaries(t *testing.T) {
	// GIVEN: The first and last day of a month
	// WHEN: Resolving their periods
	// THEN: Both fall in the same period; the adjacent days do not

	jan31 := balance.NewDate(2015, time.January, 31)
	feb1 := balance.NewDate(2015, time.February, 1)

	pJan := balance.PeriodOf(jan31)
	pFeb := balance.PeriodOf(feb1)

	if pJan.Equal(pFeb) {
		t.Fatal("adjacent months must have distinct periods")
	}
	if !pJan.Contains(balance.NewDate(2015, time.January, 1)) {
		t.Error("period should contain its own start")
	}
	if pJan.Contains(feb1) {
		t.Error("January period must not contain February 1")
	}
}

func TestPeriodOf_LeapFebruary(t *testing.T) {
	p := balance.PeriodOf(balance.NewDate(2016, time.February, 10))
	if !p.End.Equal(balance.NewDate(2016, time.February, 29)) {
		t.Errorf("expected leap February to end on the 29th, got %s", p.End)
	}
}

func TestPeriod_NextPrevious(t *testing.T) {
	// GIVEN: The December period
	// WHEN: Walking forward and back
	// THEN: Next crosses the year boundary and Previous returns

	dec := balance.PeriodOf(balance.NewDate(2014, time.December, 15))
	jan := dec.Next()

	if !jan.Start.Equal(balance.NewDate(2015, time.January, 1)) {
		t.Errorf("expected next period to start 2015-01-01, got %s", jan.Start)
	}
	if !jan.Previous().Equal(dec) {
		t.Errorf("previous of next should round-trip, got %s", jan.Previous())
	}
}

// =============================================================================
// DATE TESTS
// =============================================================================

func TestDate_Comparisons(t *testing.T) {
	a := balance.NewDate(2014, time.March, 1)
	b := balance.NewDate(2014, time.March, 2)

	if !a.Before(b) || b.Before(a) {
		t.Error("ordering broken")
	}
	if !a.BeforeOrEqual(a) || !a.AfterOrEqual(a) {
		t.Error("a date must compare equal to itself")
	}
	if !balance.MinDate(b, a).Equal(a) {
		t.Error("MinDate should pick the earlier date")
	}
}

func TestDateOf_TruncatesTime(t *testing.T) {
	// GIVEN: A timestamp late in the day
	// WHEN: Truncating to a date
	// THEN: Only the calendar day survives

	ts := time.Date(2014, time.June, 5, 23, 59, 58, 0, time.UTC)
	d := balance.DateOf(ts)

	if !d.Equal(balance.NewDate(2014, time.June, 5)) {
		t.Errorf("expected 2014-06-05, got %s", d)
	}
}
