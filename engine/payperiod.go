package engine

import "time"

// =============================================================================
// PAY PERIOD - Materialized weekly window, lockable exactly once
// =============================================================================

type PayPeriodStatus string

const (
	PeriodOpen   PayPeriodStatus = "OPEN"
	PeriodLocked PayPeriodStatus = "LOCKED"
)

// PayPeriod is the persisted form of a Week: at most one row per start
// date, created lazily on first reference. LOCKED is terminal; no code
// path reverts it.
type PayPeriod struct {
	StartDate time.Time // unique key, always a Monday
	EndDate   time.Time
	Status    PayPeriodStatus
	LockedBy  *string
	LockedAt  *time.Time
	CreatedAt time.Time
}

// NewPayPeriod materializes an OPEN period for the week.
func NewPayPeriod(w Week, now time.Time) PayPeriod {
	return PayPeriod{
		StartDate: w.Start,
		EndDate:   w.End(),
		Status:    PeriodOpen,
		CreatedAt: now,
	}
}

// Locked reports whether the period refuses further mutation.
func (p *PayPeriod) Locked() bool { return p != nil && p.Status == PeriodLocked }

// Week returns the canonical window this period materializes.
func (p *PayPeriod) Week() Week { return Week{Start: p.StartDate} }
