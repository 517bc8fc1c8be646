package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestDaysBetween_IgnoresTimeOfDay(t *testing.T) {
	a := date(2025, time.March, 10, 8, 0)
	b := date(2025, time.March, 10, 23, 59)
	assert.Equal(t, 0, DaysBetween(a, b))
	assert.Equal(t, 0, DaysBetween(b, a))
}

func TestDaysBetween_Antisymmetric(t *testing.T) {
	pairs := [][2]time.Time{
		{date(2025, time.January, 1, 0, 0), date(2025, time.January, 15, 12, 30)},
		{date(2025, time.February, 28, 23, 0), date(2025, time.March, 1, 1, 0)},
		{date(2024, time.December, 31, 6, 0), date(2025, time.January, 1, 5, 0)},
	}
	for _, p := range pairs {
		assert.Equal(t, DaysBetween(p[0], p[1]), -DaysBetween(p[1], p[0]))
	}
}

func TestDaysBetween_CrossesMonthAndYear(t *testing.T) {
	assert.Equal(t, 14, DaysBetween(date(2025, time.March, 1, 10, 0), date(2025, time.March, 15, 9, 0)))
	assert.Equal(t, 1, DaysBetween(date(2024, time.December, 31, 23, 59), date(2025, time.January, 1, 0, 1)))
	assert.Equal(t, -2, DaysBetween(date(2025, time.June, 3, 0, 0), date(2025, time.June, 1, 23, 0)))
}

func TestIsOverdue_MatchesDaysBetween(t *testing.T) {
	due := date(2025, time.April, 10, 17, 0)
	cases := []struct {
		now     time.Time
		overdue bool
	}{
		{date(2025, time.April, 9, 23, 59), false},
		{date(2025, time.April, 10, 0, 1), false}, // due today is not overdue
		{date(2025, time.April, 11, 0, 1), true},
		{date(2025, time.April, 20, 12, 0), true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.overdue, IsOverdue(due, tc.now), "now=%s", tc.now)
		assert.Equal(t, DaysBetween(due, tc.now) > 0, IsOverdue(due, tc.now))
	}
}

func TestOverdueAndDueSoon_MutuallyExclusive(t *testing.T) {
	due := date(2025, time.April, 10, 12, 0)
	for threshold := 0; threshold <= 5; threshold++ {
		for offset := -10; offset <= 10; offset++ {
			now := due.AddDate(0, 0, offset)
			overdue := IsOverdue(due, now)
			dueSoon := IsDueSoon(due, now, threshold)
			assert.False(t, overdue && dueSoon,
				"threshold=%d offset=%d: overdue and due-soon must not both hold", threshold, offset)
		}
	}
}

func TestIsDueSoon_Window(t *testing.T) {
	due := date(2025, time.April, 10, 12, 0)
	assert.True(t, IsDueSoon(due, date(2025, time.April, 10, 8, 0), 2))  // due today
	assert.True(t, IsDueSoon(due, date(2025, time.April, 8, 8, 0), 2))   // two days out
	assert.False(t, IsDueSoon(due, date(2025, time.April, 7, 8, 0), 2))  // three days out
	assert.False(t, IsDueSoon(due, date(2025, time.April, 11, 8, 0), 2)) // already overdue
}

func TestLateFeeCents(t *testing.T) {
	p := PolicyFor(TierStandard)
	due := date(2025, time.April, 10, 12, 0)

	assert.Equal(t, 0, LateFeeCents(due, date(2025, time.April, 10, 23, 0), p))
	assert.Equal(t, 25, LateFeeCents(due, date(2025, time.April, 11, 0, 30), p))
	assert.Equal(t, 175, LateFeeCents(due, date(2025, time.April, 17, 8, 0), p))
	// never negative
	assert.Equal(t, 0, LateFeeCents(due, date(2025, time.April, 1, 8, 0), p))
}

func TestPolicyFor_TierTable(t *testing.T) {
	assert.Equal(t, 14, PolicyFor(TierStandard).LoanDays)
	assert.Equal(t, 17, PolicyFor(TierPremium).LoanDays)
	assert.Equal(t, 17, PolicyFor(TierLibrarian).LoanDays)
	assert.Equal(t, 17, PolicyFor(TierAdmin).LoanDays)

	// late-fee rate is tier-independent in the current policy
	for _, tier := range []Tier{TierStandard, TierPremium, TierLibrarian, TierAdmin} {
		assert.Equal(t, 25, PolicyFor(tier).LateFeeCentsPerDay, "tier=%s", tier)
	}

	assert.Equal(t, 24, PolicyFor(TierStandard).ClaimWindowHours)
	assert.Equal(t, 48, PolicyFor(TierPremium).ClaimWindowHours)

	// unknown tier falls back to standard
	assert.Equal(t, PolicyFor(TierStandard), PolicyFor(Tier("visitor")))
}

func TestTierPriority(t *testing.T) {
	assert.False(t, TierStandard.IsPriority())
	assert.True(t, TierPremium.IsPriority())
	assert.True(t, TierLibrarian.IsPriority())
	assert.True(t, TierAdmin.IsPriority())

	assert.False(t, TierPremium.IsStaff())
	assert.True(t, TierLibrarian.IsStaff())
	assert.True(t, TierAdmin.IsStaff())
}
