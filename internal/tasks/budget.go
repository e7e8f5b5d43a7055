package tasks

import "time"

// Budget is the wall-clock allowance of one sync invocation.
type Budget struct {
	limit time.Duration
	start time.Time
	now   func() time.Time
}

// NewBudget starts a budget of limit from now.
func NewBudget(limit time.Duration) *Budget {
	return NewBudgetWithClock(limit, time.Now)
}

// NewBudgetWithClock starts a budget measured with the given clock.
func NewBudgetWithClock(limit time.Duration, now func() time.Time) *Budget {
	return &Budget{limit: limit, start: now(), now: now}
}

// Limit returns the total allowance.
func (b *Budget) Limit() time.Duration {
	return b.limit
}

// Elapsed returns the time spent since the budget started.
func (b *Budget) Elapsed() time.Duration {
	return b.now().Sub(b.start)
}

// Remaining returns the time left, never negative.
func (b *Budget) Remaining() time.Duration {
	return max(b.limit-b.Elapsed(), 0)
}

// Exhausted reports whether no time is left.
func (b *Budget) Exhausted() bool {
	return b.Elapsed() >= b.limit
}
