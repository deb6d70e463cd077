/*
bulk.go - Bulk approve and reject

PURPOSE:
  Applies one decision to many sessions in a single transaction. Items
  fail independently: a session in the wrong state is skipped, a missing
  or lock-blocked one errors, and the rest still commit. The response
  tags every input ID with its outcome so the caller never has to guess
  what happened.

OUTCOME TAXONOMY:
  approved/rejected  The mutation was applied
  skipped            Wrong state for this decision (not SUBMITTED)
  error              Not found, tutor inactive, or week locked
*/
package approval

import (
	"context"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/store"
)

// BulkOutcome tags one item of a bulk decision.
type BulkOutcome string

const (
	OutcomeApproved BulkOutcome = "approved"
	OutcomeRejected BulkOutcome = "rejected"
	OutcomeSkipped  BulkOutcome = "skipped"
	OutcomeError    BulkOutcome = "error"
)

// BulkItem is the per-session result of a bulk call. Reason is empty for
// applied items and carries the error code or skip reason otherwise.
type BulkItem struct {
	SessionID engine.SessionID `json:"session_id"`
	Outcome   BulkOutcome      `json:"outcome"`
	Reason    string           `json:"reason,omitempty"`
}

// BulkResult summarizes a bulk decision. Applied + Skipped + Errors always
// equals len(Items).
type BulkResult struct {
	Items   []BulkItem `json:"items"`
	Applied int        `json:"applied"`
	Skipped int        `json:"skipped"`
	Errors  int        `json:"errors"`
}

func (r *BulkResult) add(id engine.SessionID, outcome BulkOutcome, reason string) {
	r.Items = append(r.Items, BulkItem{SessionID: id, Outcome: outcome, Reason: reason})
	switch outcome {
	case OutcomeApproved, OutcomeRejected:
		r.Applied++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeError:
		r.Errors++
	}
}

// BulkApprove approves many sessions in one transaction. Per-item failures
// do not abort the batch; only infrastructure errors roll it back.
func (s *Service) BulkApprove(ctx context.Context, ids []engine.SessionID, actor engine.Actor) (*BulkResult, error) {
	return s.bulk(ctx, ids, engine.StatusApproved, "", actor)
}

// BulkReject rejects many sessions in one transaction with a shared reason.
func (s *Service) BulkReject(ctx context.Context, ids []engine.SessionID, reason string, actor engine.Actor) (*BulkResult, error) {
	return s.bulk(ctx, ids, engine.StatusRejected, reason, actor)
}

func (s *Service) bulk(ctx context.Context, ids []engine.SessionID, target engine.SessionStatus, reason string, actor engine.Actor) (*BulkResult, error) {
	result := &BulkResult{Items: make([]BulkItem, 0, len(ids))}
	meta := map[string]any{"bulk": true, "count": len(ids)}

	err := s.store.WithTx(ctx, func(st store.Store) error {
		// First pass loads every session so the tutor snapshot can be
		// fetched once for the whole batch.
		sessions := make(map[engine.SessionID]*engine.Session, len(ids))
		tutorIDs := make([]engine.TutorID, 0, len(ids))
		seen := make(map[engine.TutorID]bool)
		for _, id := range ids {
			sess, err := st.GetSession(ctx, id)
			if err != nil {
				return err
			}
			if sess == nil {
				continue
			}
			sessions[id] = sess
			if !seen[sess.TutorID] {
				seen[sess.TutorID] = true
				tutorIDs = append(tutorIDs, sess.TutorID)
			}
		}

		tutors, err := st.GetTutors(ctx, tutorIDs)
		if err != nil {
			return err
		}

		// Lock state is resolved once per distinct week within the batch.
		lockByWeek := make(map[string]bool)

		for _, id := range ids {
			sess, ok := sessions[id]
			if !ok {
				result.add(id, OutcomeError, string(engine.CodeSessionNotFound))
				continue
			}

			if !engine.CanTransition(sess.Status, target) {
				result.add(id, OutcomeSkipped, "status is "+string(sess.Status))
				continue
			}

			if target == engine.StatusApproved {
				tutor := tutors[sess.TutorID]
				if tutor == nil {
					result.add(id, OutcomeError, string(engine.CodeTutorNotFound))
					continue
				}
				if !tutor.Approvable() {
					result.add(id, OutcomeError, string(engine.CodeTutorNotActive))
					continue
				}
			}

			weekKey := engine.WeekOf(sess.Date).Start.Format("2006-01-02")
			locked, cached := lockByWeek[weekKey]
			if !cached {
				locked, err = dateLocked(ctx, st, sess.Date)
				if err != nil {
					return err
				}
				lockByWeek[weekKey] = locked
			}
			if locked {
				result.add(id, OutcomeError, string(engine.CodePayPeriodLocked))
				continue
			}

			if target == engine.StatusApproved {
				if _, err := approveLocked(ctx, st, sess, actor, meta); err != nil {
					return err
				}
				result.add(id, OutcomeApproved, "")
			} else {
				if _, err := rejectLocked(ctx, st, sess, reason, actor, meta); err != nil {
					return err
				}
				result.add(id, OutcomeRejected, "")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if target == engine.StatusApproved {
		sessionsApproved.Add(float64(result.Applied))
	} else {
		sessionsRejected.Add(float64(result.Applied))
	}
	return result, nil
}
