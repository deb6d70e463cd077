package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/ledger"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*ledger.Service, *sqlite.Store) {
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return ledger.New(st), st
}

var admin = engine.Actor{ID: "admin-1", Role: "admin"}

// payWeek starts Monday 2025-03-10.
var payWeek = engine.WeekOf(time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC))

func seedTutor(t *testing.T, st *sqlite.Store, id engine.TutorID) {
	t.Helper()
	require.NoError(t, st.SaveTutor(context.Background(), engine.Tutor{
		ID:          id,
		Name:        "Tutor " + string(id),
		Active:      true,
		Status:      engine.TutorActive,
		DefaultRate: decimal.NewFromInt(60),
	}))
}

func seedSession(t *testing.T, st *sqlite.Store, id engine.SessionID, tutorID engine.TutorID, date time.Time) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.SaveSession(context.Background(), engine.Session{
		ID: id, AssignmentID: "asg-1", TutorID: tutorID, StudentID: "stu-1",
		Date: date, StartTime: 10 * 60, EndTime: 11 * 60,
		Status: engine.StatusApproved, CreatedAt: now, UpdatedAt: now,
	}))
}

func lockWeek(t *testing.T, st *sqlite.Store, w engine.Week) {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC()
	period, err := st.UpsertPayPeriod(ctx, engine.NewPayPeriod(w, now))
	require.NoError(t, err)

	by := "admin-1"
	period.Status = engine.PeriodLocked
	period.LockedBy = &by
	period.LockedAt = &now
	require.NoError(t, st.SavePayPeriod(ctx, *period))
}

func bonusInput(tutorID engine.TutorID, amount int64) ledger.CreateInput {
	return ledger.CreateInput{
		TutorID: tutorID,
		Week:    payWeek,
		Type:    engine.AdjustmentBonus,
		Amount:  decimal.NewFromInt(amount),
		Reason:  "referral bonus",
	}
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_Success(t *testing.T) {
	// GIVEN: An active tutor and an unmaterialized pay week
	// WHEN: Creating a bonus
	// THEN: The period is materialized OPEN, the adjustment lands APPROVED,
	//       and the audit log records the creation

	svc, st := newTestLedger(t)
	ctx := context.Background()

	seedTutor(t, st, "tut-1")

	adj, err := svc.Create(ctx, bonusInput("tut-1", 100), admin)
	require.NoError(t, err)

	assert.Equal(t, engine.AdjustmentApproved, adj.Status)
	assert.Equal(t, payWeek.Start, adj.PeriodStart)
	assert.Equal(t, "admin-1", adj.CreatedBy)
	assert.False(t, adj.Voided())

	period, err := st.GetPayPeriod(ctx, payWeek.Start)
	require.NoError(t, err)
	require.NotNil(t, period, "week should be materialized")
	assert.Equal(t, engine.PeriodOpen, period.Status)

	n, err := st.CountAudit(ctx, "payroll.adjustment.create", string(adj.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreate_TutorNotFound(t *testing.T) {
	svc, _ := newTestLedger(t)

	_, err := svc.Create(context.Background(), bonusInput("ghost", 100), admin)
	assert.Equal(t, engine.CodeTutorNotFound, engine.CodeOf(err))
}

func TestCreate_LockedWeekRefused(t *testing.T) {
	// GIVEN: A locked pay week
	// WHEN: Creating an adjustment against it
	// THEN: pay_period_locked; the ledger for a settled week is immutable

	svc, st := newTestLedger(t)

	seedTutor(t, st, "tut-1")
	lockWeek(t, st, payWeek)

	_, err := svc.Create(context.Background(), bonusInput("tut-1", 100), admin)
	assert.Equal(t, engine.CodePayPeriodLocked, engine.CodeOf(err))
}

func TestCreate_RelatedSessionValidation(t *testing.T) {
	svc, st := newTestLedger(t)
	ctx := context.Background()

	seedTutor(t, st, "tut-1")
	seedTutor(t, st, "tut-2")
	seedSession(t, st, "sess-mine", "tut-1", payWeek.Start)
	seedSession(t, st, "sess-theirs", "tut-2", payWeek.Start)
	seedSession(t, st, "sess-lastweek", "tut-1", payWeek.Start.AddDate(0, 0, -3))

	link := func(id engine.SessionID) ledger.CreateInput {
		in := bonusInput("tut-1", 50)
		in.Type = engine.AdjustmentCorrection
		in.Reason = "missed minutes"
		in.RelatedSessionID = &id
		return in
	}

	// Missing session
	_, err := svc.Create(ctx, link("sess-ghost"), admin)
	assert.Equal(t, engine.CodeRelatedSessionInvalid, engine.CodeOf(err))

	// Another tutor's session
	_, err = svc.Create(ctx, link("sess-theirs"), admin)
	assert.Equal(t, engine.CodeRelatedSessionInvalid, engine.CodeOf(err))

	// Right tutor, wrong week
	_, err = svc.Create(ctx, link("sess-lastweek"), admin)
	assert.Equal(t, engine.CodeRelatedSessionInvalid, engine.CodeOf(err))

	// Valid link
	adj, err := svc.Create(ctx, link("sess-mine"), admin)
	require.NoError(t, err)
	require.NotNil(t, adj.RelatedSessionID)
	assert.Equal(t, engine.SessionID("sess-mine"), *adj.RelatedSessionID)
}

// =============================================================================
// LIST
// =============================================================================

func TestList_IncludesVoidedWithSigns(t *testing.T) {
	// GIVEN: A bonus and a voided penalty in the week
	// WHEN: Listing the ledger
	// THEN: Both appear; the penalty's signed amount is negative

	svc, st := newTestLedger(t)
	ctx := context.Background()

	seedTutor(t, st, "tut-1")

	_, err := svc.Create(ctx, bonusInput("tut-1", 100), admin)
	require.NoError(t, err)

	penaltyIn := bonusInput("tut-1", 25)
	penaltyIn.Type = engine.AdjustmentPenalty
	penaltyIn.Reason = "late cancellation"
	penalty, err := svc.Create(ctx, penaltyIn, admin)
	require.NoError(t, err)

	_, err = svc.Void(ctx, penalty.ID, "entered twice", admin)
	require.NoError(t, err)

	entries, err := svc.List(ctx, payWeek)
	require.NoError(t, err)
	require.Len(t, entries, 2, "voided entries stay visible")

	for _, e := range entries {
		switch e.Adjustment.Type {
		case engine.AdjustmentBonus:
			assert.True(t, e.SignedAmount.Equal(decimal.NewFromInt(100)))
			assert.False(t, e.Adjustment.Voided())
		case engine.AdjustmentPenalty:
			assert.True(t, e.SignedAmount.Equal(decimal.NewFromInt(-25)))
			assert.True(t, e.Adjustment.Voided())
		}
	}
}

// =============================================================================
// VOID
// =============================================================================

func TestVoid_Success(t *testing.T) {
	svc, st := newTestLedger(t)
	ctx := context.Background()

	seedTutor(t, st, "tut-1")
	adj, err := svc.Create(ctx, bonusInput("tut-1", 100), admin)
	require.NoError(t, err)

	voided, err := svc.Void(ctx, adj.ID, "wrong tutor", admin)
	require.NoError(t, err)

	assert.True(t, voided.Voided())
	require.NotNil(t, voided.VoidedBy)
	assert.Equal(t, "admin-1", *voided.VoidedBy)
	require.NotNil(t, voided.VoidReason)
	assert.Equal(t, "wrong tutor", *voided.VoidReason)

	// The row survives
	stored, err := st.GetAdjustment(ctx, adj.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Voided())

	n, err := st.CountAudit(ctx, "payroll.adjustment.delete", string(adj.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVoid_NotFound(t *testing.T) {
	svc, _ := newTestLedger(t)

	_, err := svc.Void(context.Background(), "ghost", "why not", admin)
	assert.Equal(t, engine.CodeAdjustmentNotFound, engine.CodeOf(err))
}

func TestVoid_AlreadyVoided(t *testing.T) {
	svc, st := newTestLedger(t)
	ctx := context.Background()

	seedTutor(t, st, "tut-1")
	adj, err := svc.Create(ctx, bonusInput("tut-1", 100), admin)
	require.NoError(t, err)

	_, err = svc.Void(ctx, adj.ID, "first", admin)
	require.NoError(t, err)

	_, err = svc.Void(ctx, adj.ID, "second", admin)
	assert.Equal(t, engine.CodeAdjustmentAlreadyVoided, engine.CodeOf(err))
}

func TestVoid_LockedWeekRefused(t *testing.T) {
	svc, st := newTestLedger(t)
	ctx := context.Background()

	seedTutor(t, st, "tut-1")
	adj, err := svc.Create(ctx, bonusInput("tut-1", 100), admin)
	require.NoError(t, err)

	lockWeek(t, st, payWeek)

	_, err = svc.Void(ctx, adj.ID, "too late", admin)
	assert.Equal(t, engine.CodePayPeriodLocked, engine.CodeOf(err))
}
