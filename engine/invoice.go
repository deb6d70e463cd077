package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INVOICE - One per (tutor, pay period), created only by generation
// =============================================================================

type InvoiceStatus string

const InvoiceIssued InvoiceStatus = "ISSUED"

type Invoice struct {
	ID          InvoiceID
	TutorID     TutorID
	PeriodStart time.Time
	PeriodEnd   time.Time
	Number      string
	TotalAmount decimal.Decimal
	Status      InvoiceStatus
	Lines       []InvoiceLine
	CreatedAt   time.Time
}

type InvoiceLineType string

const (
	LineSession    InvoiceLineType = "SESSION"
	LineAdjustment InvoiceLineType = "ADJUSTMENT"
)

// InvoiceLine is owned by its invoice and never mutated after creation.
// SESSION lines carry minutes and the hourly rate; ADJUSTMENT lines carry
// the signed amount.
type InvoiceLine struct {
	ID           string
	InvoiceID    InvoiceID
	Type         InvoiceLineType
	SessionID    *SessionID
	AdjustmentID *AdjustmentID
	Minutes      int
	Rate         decimal.Decimal
	Amount       decimal.Decimal
}

// InvoiceNumber derives the deterministic invoice number for a tutor and
// week. Regeneration attempts produce the same number, which makes
// duplicates detectable at the uniqueness constraint.
func InvoiceNumber(w Week, tutorID TutorID) string {
	return fmt.Sprintf("PR-%s-%s", w.Start.Format("20060102"), strings.ToUpper(string(tutorID)))
}

// SessionLineAmount computes minutes/60 x hourly rate with decimal
// precision.
func SessionLineAmount(minutes int, rate decimal.Decimal) decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(int64(minutes))).Div(decimal.NewFromInt(60))
}
