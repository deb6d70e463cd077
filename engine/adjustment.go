package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ADJUSTMENT - Signed manual ledger entry against a tutor's pay week
// =============================================================================

type AdjustmentType string

const (
	AdjustmentBonus      AdjustmentType = "BONUS"
	AdjustmentCorrection AdjustmentType = "CORRECTION"
	AdjustmentPenalty    AdjustmentType = "PENALTY"
)

type AdjustmentStatus string

// Adjustments are created APPROVED; this core has no adjustment-approval
// workflow.
const AdjustmentApproved AdjustmentStatus = "APPROVED"

// Adjustment is a manual credit or debit tied to a tutor and pay period.
// Amount is always stored positive; the sign is derived from Type. Voiding
// is the only mutation: the row is retained with voided_at set, never
// deleted.
type Adjustment struct {
	ID               AdjustmentID
	TutorID          TutorID
	PeriodStart      time.Time
	Type             AdjustmentType
	Amount           decimal.Decimal // always positive
	Reason           string
	Status           AdjustmentStatus
	RelatedSessionID *SessionID
	CreatedBy        string
	ApprovedBy       string
	VoidedAt         *time.Time
	VoidedBy         *string
	VoidReason       *string
	CreatedAt        time.Time
}

// SignedAmount is the adjustment's monetary effect: negative for penalties,
// positive otherwise. Computed on read; Amount and Type never change after
// creation.
func (a *Adjustment) SignedAmount() decimal.Decimal {
	if a.Type == AdjustmentPenalty {
		return a.Amount.Neg()
	}
	return a.Amount
}

// Voided reports whether the adjustment has been voided. Voided entries are
// excluded from invoice generation but remain visible in listings.
func (a *Adjustment) Voided() bool { return a.VoidedAt != nil }
