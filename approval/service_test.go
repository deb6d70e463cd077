package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/approval"
	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/store"
	"github.com/warp/payroll-engine/store/sqlite"
)

func listFilter(status engine.SessionStatus) store.SessionFilter {
	return store.SessionFilter{Status: status, Page: 1, PageSize: 50}
}

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*approval.Service, *sqlite.Store) {
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return approval.New(st), st
}

var admin = engine.Actor{ID: "admin-1", Role: "admin"}

// wednesday is a fixed mid-week session date; its pay week starts Monday
// 2025-03-10.
var wednesday = time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC)

func seedTutor(t *testing.T, st *sqlite.Store, id engine.TutorID, active bool) {
	t.Helper()
	status := engine.TutorActive
	if !active {
		status = "SUSPENDED"
	}
	require.NoError(t, st.SaveTutor(context.Background(), engine.Tutor{
		ID:          id,
		Name:        "Tutor " + string(id),
		Active:      active,
		Status:      status,
		DefaultRate: decimal.NewFromInt(60),
	}))
}

func seedSession(t *testing.T, st *sqlite.Store, id engine.SessionID, tutorID engine.TutorID, date time.Time, status engine.SessionStatus) engine.Session {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, st.SaveStudent(ctx, engine.Student{ID: "stu-1", Name: "Student"}))
	require.NoError(t, st.SaveAssignment(ctx, engine.Assignment{
		ID:        engine.AssignmentID("asg-" + string(id)),
		TutorID:   tutorID,
		StudentID: "stu-1",
		Window: engine.AssignmentWindow{
			StartDate: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
	}))

	now := time.Now().UTC()
	sess := engine.Session{
		ID:           id,
		AssignmentID: engine.AssignmentID("asg-" + string(id)),
		TutorID:      tutorID,
		StudentID:    "stu-1",
		Date:         date,
		StartTime:    14 * 60,
		EndTime:      15*60 + 30,
		Status:       status,
		Mode:         "online",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.SaveSession(ctx, sess))
	return sess
}

func lockWeek(t *testing.T, st *sqlite.Store, date time.Time) {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC()
	period, err := st.UpsertPayPeriod(ctx, engine.NewPayPeriod(engine.WeekOf(date), now))
	require.NoError(t, err)

	by := "admin-1"
	period.Status = engine.PeriodLocked
	period.LockedBy = &by
	period.LockedAt = &now
	require.NoError(t, st.SavePayPeriod(ctx, *period))
}

// =============================================================================
// APPROVE
// =============================================================================

func TestApprove_Success(t *testing.T) {
	// GIVEN: A SUBMITTED session for an active tutor in an open week
	// WHEN: An admin approves it
	// THEN: Status, approver and timestamp are set, and history + audit
	//       rows exist

	svc, st := newTestService(t)
	ctx := context.Background()

	seedTutor(t, st, "tut-1", true)
	seedSession(t, st, "sess-1", "tut-1", wednesday, engine.StatusSubmitted)

	sess, err := svc.Approve(ctx, "sess-1", admin)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusApproved, sess.Status)
	require.NotNil(t, sess.ApprovedBy)
	assert.Equal(t, "admin-1", *sess.ApprovedBy)
	assert.NotNil(t, sess.ApprovedAt)

	// Persisted, not just returned
	stored, err := st.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusApproved, stored.Status)

	// History entry with the status change in the diff
	views, err := svc.History(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, engine.ChangeApprove, views[0].Entry.ChangeType)
	assert.Equal(t, "admin-1", views[0].Entry.ActorID)

	var statusDiff *engine.FieldDiff
	for i := range views[0].Diffs {
		if views[0].Diffs[i].Field == "status" {
			statusDiff = &views[0].Diffs[i]
		}
	}
	require.NotNil(t, statusDiff, "diff should include the status change")
	assert.Equal(t, "SUBMITTED", statusDiff.Before)
	assert.Equal(t, "APPROVED", statusDiff.After)
	assert.True(t, statusDiff.Important)

	// Audit row written in the same transaction
	n, err := st.CountAudit(ctx, "session.approve", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestApprove_SessionNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Approve(context.Background(), "nope", admin)
	assert.Equal(t, engine.CodeSessionNotFound, engine.CodeOf(err))
}

func TestApprove_TutorNotFound(t *testing.T) {
	svc, st := newTestService(t)

	// Session references a tutor that was never created
	seedSession(t, st, "sess-1", "ghost", wednesday, engine.StatusSubmitted)

	_, err := svc.Approve(context.Background(), "sess-1", admin)
	assert.Equal(t, engine.CodeTutorNotFound, engine.CodeOf(err))
}

func TestApprove_TutorNotActive(t *testing.T) {
	// GIVEN: A SUBMITTED session whose tutor is suspended
	// WHEN: Approving it
	// THEN: tutor_not_active, and the session stays SUBMITTED

	svc, st := newTestService(t)
	ctx := context.Background()

	seedTutor(t, st, "tut-1", false)
	seedSession(t, st, "sess-1", "tut-1", wednesday, engine.StatusSubmitted)

	_, err := svc.Approve(ctx, "sess-1", admin)
	assert.Equal(t, engine.CodeTutorNotActive, engine.CodeOf(err))

	stored, err := st.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusSubmitted, stored.Status)
}

func TestApprove_LockedWeekRefused(t *testing.T) {
	// GIVEN: A SUBMITTED session in a LOCKED pay week
	// WHEN: Approving it
	// THEN: pay_period_locked and no history or audit is written

	svc, st := newTestService(t)
	ctx := context.Background()

	seedTutor(t, st, "tut-1", true)
	seedSession(t, st, "sess-1", "tut-1", wednesday, engine.StatusSubmitted)
	lockWeek(t, st, wednesday)

	_, err := svc.Approve(ctx, "sess-1", admin)
	assert.Equal(t, engine.CodePayPeriodLocked, engine.CodeOf(err))

	views, err := svc.History(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, views)

	n, err := st.CountAudit(ctx, "session.approve", "sess-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApprove_TerminalStatesRefused(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	seedTutor(t, st, "tut-1", true)
	seedSession(t, st, "sess-a", "tut-1", wednesday, engine.StatusApproved)
	seedSession(t, st, "sess-r", "tut-1", wednesday, engine.StatusRejected)
	seedSession(t, st, "sess-d", "tut-1", wednesday, engine.StatusDraft)

	for _, id := range []engine.SessionID{"sess-a", "sess-r", "sess-d"} {
		_, err := svc.Approve(ctx, id, admin)
		assert.Equal(t, engine.CodeOnlySubmittedApprovable, engine.CodeOf(err), "session %s", id)
	}
}

// =============================================================================
// REJECT
// =============================================================================

func TestReject_Success(t *testing.T) {
	// GIVEN: A SUBMITTED session
	// WHEN: Rejecting it with a reason
	// THEN: Status is REJECTED and the reason appears only in the history diff

	svc, st := newTestService(t)
	ctx := context.Background()

	seedTutor(t, st, "tut-1", true)
	seedSession(t, st, "sess-1", "tut-1", wednesday, engine.StatusSubmitted)

	sess, err := svc.Reject(ctx, "sess-1", "no show", admin)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusRejected, sess.Status)
	assert.Nil(t, sess.ApprovedBy, "rejection does not stamp an approver")

	views, err := svc.History(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, engine.ChangeReject, views[0].Entry.ChangeType)

	var reasonDiff *engine.FieldDiff
	for i := range views[0].Diffs {
		if views[0].Diffs[i].Field == "reject_reason" {
			reasonDiff = &views[0].Diffs[i]
		}
	}
	require.NotNil(t, reasonDiff)
	assert.Equal(t, "(none)", reasonDiff.Before)
	assert.Equal(t, "no show", reasonDiff.After)

	n, err := st.CountAudit(ctx, "session.reject", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReject_InactiveTutorAllowed(t *testing.T) {
	// Rejection has no tutor-activity precondition: cleaning up a suspended
	// tutor's submitted sessions must stay possible.

	svc, st := newTestService(t)

	seedTutor(t, st, "tut-1", false)
	seedSession(t, st, "sess-1", "tut-1", wednesday, engine.StatusSubmitted)

	sess, err := svc.Reject(context.Background(), "sess-1", "tutor suspended", admin)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusRejected, sess.Status)
}

func TestReject_TerminalStatesRefused(t *testing.T) {
	svc, st := newTestService(t)

	seedTutor(t, st, "tut-1", true)
	seedSession(t, st, "sess-1", "tut-1", wednesday, engine.StatusApproved)

	_, err := svc.Reject(context.Background(), "sess-1", "too late", admin)
	assert.Equal(t, engine.CodeOnlySubmittedRejectable, engine.CodeOf(err))
}

func TestReject_LockedWeekRefused(t *testing.T) {
	svc, st := newTestService(t)

	seedTutor(t, st, "tut-1", true)
	seedSession(t, st, "sess-1", "tut-1", wednesday, engine.StatusSubmitted)
	lockWeek(t, st, wednesday)

	_, err := svc.Reject(context.Background(), "sess-1", "late", admin)
	assert.Equal(t, engine.CodePayPeriodLocked, engine.CodeOf(err))
}

// =============================================================================
// LISTING & HISTORY
// =============================================================================

func TestList_AggregatesIgnoreStatusFilter(t *testing.T) {
	// GIVEN: One session in each of SUBMITTED, APPROVED, REJECTED (90 min each)
	// WHEN: Listing with a SUBMITTED filter
	// THEN: Items are filtered but aggregates cover all three

	svc, st := newTestService(t)
	ctx := context.Background()

	seedTutor(t, st, "tut-1", true)
	seedSession(t, st, "sess-s", "tut-1", wednesday, engine.StatusSubmitted)
	seedSession(t, st, "sess-a", "tut-1", wednesday, engine.StatusApproved)
	seedSession(t, st, "sess-r", "tut-1", wednesday, engine.StatusRejected)

	result, err := svc.List(ctx, listFilter(engine.StatusSubmitted))
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, engine.SessionID("sess-s"), result.Items[0].ID)

	assert.Equal(t, 1, result.Aggregates.StatusCounts[engine.StatusSubmitted])
	assert.Equal(t, 1, result.Aggregates.StatusCounts[engine.StatusApproved])
	assert.Equal(t, 1, result.Aggregates.StatusCounts[engine.StatusRejected])
	assert.Equal(t, 270, result.Aggregates.TotalMinutes, "3 x 90 minutes regardless of filter")
}

func TestHistory_NewestFirst(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	seedTutor(t, st, "tut-1", true)
	sess := seedSession(t, st, "sess-1", "tut-1", wednesday, engine.StatusSubmitted)

	older := engine.SessionSnapshot(&sess, nil)
	base := time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"h-1", "h-2", "h-3"} {
		require.NoError(t, st.AppendHistory(ctx, engine.HistoryEntry{
			ID:         id,
			SessionID:  "sess-1",
			ChangeType: engine.ChangeApprove,
			BeforeJSON: engine.MarshalSnapshot(older),
			AfterJSON:  engine.MarshalSnapshot(older),
			ActorID:    "admin-1",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	views, err := svc.History(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "h-3", views[0].Entry.ID)
	assert.Equal(t, "h-2", views[1].Entry.ID)
	assert.Equal(t, "h-1", views[2].Entry.ID)
}

func TestHistory_SessionNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.History(context.Background(), "nope")
	assert.Equal(t, engine.CodeSessionNotFound, engine.CodeOf(err))
}

// =============================================================================
// WINDOW CHECK
// =============================================================================

func TestCheckWindow(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	seedTutor(t, st, "tut-1", true)
	// Assignment window allows Wednesdays 14:00-16:00 only
	require.NoError(t, st.SaveStudent(ctx, engine.Student{ID: "stu-1", Name: "Student"}))
	require.NoError(t, st.SaveAssignment(ctx, engine.Assignment{
		ID:        "asg-1",
		TutorID:   "tut-1",
		StudentID: "stu-1",
		Window: engine.AssignmentWindow{
			StartDate: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
			Weekdays:  []int{2},
			Ranges:    []engine.TimeRange{{Start: 14 * 60, End: 16 * 60}},
		},
	}))

	now := time.Now().UTC()
	inside := engine.Session{
		ID: "sess-in", AssignmentID: "asg-1", TutorID: "tut-1", StudentID: "stu-1",
		Date: wednesday, StartTime: 14 * 60, EndTime: 15 * 60,
		Status: engine.StatusSubmitted, CreatedAt: now, UpdatedAt: now,
	}
	outside := inside
	outside.ID = "sess-out"
	outside.EndTime = 17 * 60 // past the allowed range
	require.NoError(t, st.SaveSession(ctx, inside))
	require.NoError(t, st.SaveSession(ctx, outside))

	report, err := svc.CheckWindow(ctx, "sess-in")
	require.NoError(t, err)
	assert.True(t, report.Within)

	report, err = svc.CheckWindow(ctx, "sess-out")
	require.NoError(t, err)
	assert.False(t, report.Within)
}
