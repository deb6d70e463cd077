/*
Package approval owns the session approval workflow.

PURPOSE:
  Handles the administrative half of the session lifecycle:
  1. Approve:  SUBMITTED -> APPROVED, stamps approver and time
  2. Reject:   SUBMITTED -> REJECTED, reason recorded in history only
  3. Bulk:     Many sessions in one transaction with per-item outcomes
  4. Listing:  Filtered/paged session views with status aggregates
  5. History:  Per-session transition log with recomputed diffs

SESSION FLOW:
  DRAFT -> SUBMITTED (tutor-facing collaborator, out of scope)
  SUBMITTED -> APPROVED | REJECTED (this package, terminal)

EVERY MUTATION IS ONE TRANSACTION:
  Load current row, validate tutor + lock + status, write the new row, the
  history entry and the audit entry, commit. The pay-period lock check
  happens inside the same transaction as the mutation it guards.

SEE ALSO:
  - engine/types.go: The transition table enforced here
  - payroll:         Locking that makes approvals refuse a week
*/
package approval

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/store"
)

// Service implements the session approval workflow over a transactional
// store.
type Service struct {
	store store.TxStore
}

func New(st store.TxStore) *Service {
	return &Service{store: st}
}

// =============================================================================
// SINGLE APPROVE / REJECT
// =============================================================================

// Approve transitions a SUBMITTED session to APPROVED. The tutor must be
// active and the session's pay week must not be locked.
func (s *Service) Approve(ctx context.Context, id engine.SessionID, actor engine.Actor) (*engine.Session, error) {
	var updated *engine.Session
	err := s.store.WithTx(ctx, func(st store.Store) error {
		sess, err := st.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if sess == nil {
			return engine.Err(engine.CodeSessionNotFound)
		}

		tutor, err := st.GetTutor(ctx, sess.TutorID)
		if err != nil {
			return err
		}
		if tutor == nil {
			return engine.Err(engine.CodeTutorNotFound)
		}
		if !tutor.Approvable() {
			return engine.Errf(engine.CodeTutorNotActive, "tutor %s", tutor.ID)
		}

		locked, err := dateLocked(ctx, st, sess.Date)
		if err != nil {
			return err
		}
		if locked {
			return engine.Err(engine.CodePayPeriodLocked)
		}

		if !engine.CanTransition(sess.Status, engine.StatusApproved) {
			return engine.Errf(engine.CodeOnlySubmittedApprovable, "status is %s", sess.Status)
		}

		updated, err = approveLocked(ctx, st, sess, actor, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	sessionsApproved.Inc()
	return updated, nil
}

// Reject transitions a SUBMITTED session to REJECTED. The reason lives
// only in the history entry's after-snapshot, not on the session row.
// Rejection has no tutor-activity precondition.
func (s *Service) Reject(ctx context.Context, id engine.SessionID, reason string, actor engine.Actor) (*engine.Session, error) {
	var updated *engine.Session
	err := s.store.WithTx(ctx, func(st store.Store) error {
		sess, err := st.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if sess == nil {
			return engine.Err(engine.CodeSessionNotFound)
		}

		locked, err := dateLocked(ctx, st, sess.Date)
		if err != nil {
			return err
		}
		if locked {
			return engine.Err(engine.CodePayPeriodLocked)
		}

		if !engine.CanTransition(sess.Status, engine.StatusRejected) {
			return engine.Errf(engine.CodeOnlySubmittedRejectable, "status is %s", sess.Status)
		}

		updated, err = rejectLocked(ctx, st, sess, reason, actor, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	sessionsRejected.Inc()
	return updated, nil
}

// approveLocked applies the approval mutation and writes history + audit.
// Callers have already validated state. Extra audit meta (e.g. bulk: true)
// is merged in.
func approveLocked(ctx context.Context, st store.Store, sess *engine.Session, actor engine.Actor, meta map[string]any) (*engine.Session, error) {
	now := time.Now().UTC()
	before := engine.SessionSnapshot(sess, nil)

	sess.Status = engine.StatusApproved
	sess.ApprovedBy = &actor.ID
	sess.ApprovedAt = &now
	sess.UpdatedAt = now
	if err := st.SaveSession(ctx, *sess); err != nil {
		return nil, err
	}

	after := engine.SessionSnapshot(sess, nil)
	if err := st.AppendHistory(ctx, engine.HistoryEntry{
		ID:         uuid.NewString(),
		SessionID:  sess.ID,
		ChangeType: engine.ChangeApprove,
		BeforeJSON: engine.MarshalSnapshot(before),
		AfterJSON:  engine.MarshalSnapshot(after),
		ActorID:    actor.ID,
		CreatedAt:  now,
	}); err != nil {
		return nil, err
	}

	if err := st.AppendAudit(ctx, auditEntry(actor, "session.approve", "session", string(sess.ID), meta, now)); err != nil {
		return nil, err
	}
	return sess, nil
}

// rejectLocked mirrors approveLocked for rejection. The reason goes into
// the after-snapshot only.
func rejectLocked(ctx context.Context, st store.Store, sess *engine.Session, reason string, actor engine.Actor, meta map[string]any) (*engine.Session, error) {
	now := time.Now().UTC()
	before := engine.SessionSnapshot(sess, nil)

	sess.Status = engine.StatusRejected
	sess.UpdatedAt = now
	if err := st.SaveSession(ctx, *sess); err != nil {
		return nil, err
	}

	var extra map[string]any
	if reason != "" {
		extra = map[string]any{"reject_reason": reason}
	}
	after := engine.SessionSnapshot(sess, extra)

	if err := st.AppendHistory(ctx, engine.HistoryEntry{
		ID:         uuid.NewString(),
		SessionID:  sess.ID,
		ChangeType: engine.ChangeReject,
		BeforeJSON: engine.MarshalSnapshot(before),
		AfterJSON:  engine.MarshalSnapshot(after),
		ActorID:    actor.ID,
		CreatedAt:  now,
	}); err != nil {
		return nil, err
	}

	if err := st.AppendAudit(ctx, auditEntry(actor, "session.reject", "session", string(sess.ID), meta, now)); err != nil {
		return nil, err
	}
	return sess, nil
}

// dateLocked reports whether the pay period containing the date is LOCKED.
// An unmaterialized period is OPEN by definition.
func dateLocked(ctx context.Context, st store.Store, date time.Time) (bool, error) {
	period, err := st.GetPayPeriod(ctx, engine.WeekOf(date).Start)
	if err != nil {
		return false, err
	}
	return period.Locked(), nil
}

func auditEntry(actor engine.Actor, action, entityType, entityID string, meta map[string]any, now time.Time) store.AuditEntry {
	return store.AuditEntry{
		ID:            uuid.NewString(),
		ActorID:       actor.ID,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Meta:          meta,
		IP:            actor.IP,
		UserAgent:     actor.UserAgent,
		CorrelationID: actor.CorrelationID,
		CreatedAt:     now,
	}
}

// =============================================================================
// LISTING & HISTORY
// =============================================================================

// ListResult is a page of sessions plus aggregates over the
// unfiltered-by-status set, so a UI can show "12 submitted, 140 minutes"
// next to a status-filtered table.
type ListResult struct {
	Items      []engine.Session
	Total      int
	Page       int
	PageSize   int
	Aggregates store.SessionAggregates
}

// List returns filtered, sorted, paginated sessions with aggregates.
func (s *Service) List(ctx context.Context, f store.SessionFilter) (*ListResult, error) {
	items, total, err := s.store.ListSessions(ctx, f)
	if err != nil {
		return nil, err
	}
	agg, err := s.store.AggregateSessions(ctx, f)
	if err != nil {
		return nil, err
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	return &ListResult{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   f.PageSize,
		Aggregates: agg,
	}, nil
}

// HistoryView pairs a stored history entry with its freshly computed diff.
type HistoryView struct {
	Entry engine.HistoryEntry
	Diffs []engine.FieldDiff
}

// History returns a session's transitions newest-first. Diffs are derived
// at read time from the stored snapshots, so the diff algorithm can evolve
// without a migration.
func (s *Service) History(ctx context.Context, id engine.SessionID) ([]HistoryView, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, engine.Err(engine.CodeSessionNotFound)
	}

	entries, err := s.store.ListHistory(ctx, id)
	if err != nil {
		return nil, err
	}

	views := make([]HistoryView, 0, len(entries))
	for _, e := range entries {
		before, err := engine.UnmarshalSnapshot(e.BeforeJSON)
		if err != nil {
			return nil, err
		}
		after, err := engine.UnmarshalSnapshot(e.AfterJSON)
		if err != nil {
			return nil, err
		}
		views = append(views, HistoryView{Entry: e, Diffs: engine.ComputeDiffs(before, after)})
	}
	return views, nil
}

// =============================================================================
// RECONCILIATION REPORTING
// =============================================================================

// WindowReport says whether a session fits its assignment's scheduling
// window.
type WindowReport struct {
	SessionID    engine.SessionID
	AssignmentID engine.AssignmentID
	Within       bool
}

// CheckWindow validates a session's time window against its assignment.
// Read-only; used by reconciliation reporting.
func (s *Service) CheckWindow(ctx context.Context, id engine.SessionID) (*WindowReport, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, engine.Err(engine.CodeSessionNotFound)
	}

	assignment, err := s.store.GetAssignment(ctx, sess.AssignmentID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, engine.Errf(engine.CodeRelatedSessionInvalid, "assignment %s not found", sess.AssignmentID)
	}

	return &WindowReport{
		SessionID:    sess.ID,
		AssignmentID: assignment.ID,
		Within:       engine.WithinAssignmentWindow(sess.Date, sess.StartTime, sess.EndTime, assignment.Window),
	}, nil
}
