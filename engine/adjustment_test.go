package engine_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/payroll-engine/engine"
)

func TestSignedAmount(t *testing.T) {
	// GIVEN: One adjustment of each type with amount 50
	// WHEN: Reading the signed amount
	// THEN: Only PENALTY is negative; the stored amount never changes

	amount := decimal.NewFromInt(50)

	bonus := engine.Adjustment{Type: engine.AdjustmentBonus, Amount: amount}
	correction := engine.Adjustment{Type: engine.AdjustmentCorrection, Amount: amount}
	penalty := engine.Adjustment{Type: engine.AdjustmentPenalty, Amount: amount}

	assert.True(t, bonus.SignedAmount().Equal(decimal.NewFromInt(50)))
	assert.True(t, correction.SignedAmount().Equal(decimal.NewFromInt(50)))
	assert.True(t, penalty.SignedAmount().Equal(decimal.NewFromInt(-50)))
	assert.True(t, penalty.Amount.Equal(amount), "stored amount stays positive")
}

func TestVoided(t *testing.T) {
	now := time.Now().UTC()
	a := engine.Adjustment{Type: engine.AdjustmentBonus, Amount: decimal.NewFromInt(10)}
	assert.False(t, a.Voided())

	a.VoidedAt = &now
	assert.True(t, a.Voided())
}

func TestSessionLineAmount(t *testing.T) {
	// 90 minutes at 60/h is exactly 90.
	amount := engine.SessionLineAmount(90, decimal.NewFromInt(60))
	assert.True(t, amount.Equal(decimal.NewFromInt(90)), "got %s", amount)

	// 50 minutes at 45/h is 37.5, no float drift.
	amount = engine.SessionLineAmount(50, decimal.NewFromInt(45))
	assert.True(t, amount.Equal(decimal.RequireFromString("37.5")), "got %s", amount)
}

func TestInvoiceNumber_Deterministic(t *testing.T) {
	w := engine.WeekOf(time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "PR-20250310-TUT-1", engine.InvoiceNumber(w, "tut-1"))
	assert.Equal(t, engine.InvoiceNumber(w, "tut-1"), engine.InvoiceNumber(w, "tut-1"))
}
