/*
Package ledger manages manual payroll adjustments.

PURPOSE:
  Adjustments are signed manual entries against a tutor's pay week that
  invoice generation folds in alongside session earnings:
  1. Create: BONUS / CORRECTION / PENALTY against an open week
  2. List:   All entries for a week, voided ones included, with sign
  3. Void:   Soft delete; the row survives with voided_at set

SIGN CONVENTION:
  Amount is stored positive. The monetary effect is derived from the
  type: PENALTY contributes -amount, everything else +amount. Listings
  and invoice lines always report the signed value.

VOID, NOT DELETE:
  Money-adjacent rows are never removed. Voiding stamps who, when and
  why, and generation skips voided entries. A voided entry cannot be
  voided twice.

SEE ALSO:
  - payroll/service.go: Folds non-voided entries into invoices
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/store"
)

// Service owns the adjustment ledger for pay periods.
type Service struct {
	store store.TxStore
}

func New(st store.TxStore) *Service {
	return &Service{store: st}
}

// CreateInput describes a new adjustment. Amount must be positive; the
// transport layer rejects malformed input before it reaches here.
type CreateInput struct {
	TutorID          engine.TutorID
	Week             engine.Week
	Type             engine.AdjustmentType
	Amount           decimal.Decimal
	Reason           string
	RelatedSessionID *engine.SessionID
}

// Create records an adjustment against a tutor's pay week. The week is
// materialized as an OPEN period if it does not exist yet; a LOCKED week
// refuses. A related session, when given, must belong to the same tutor
// and fall inside the week.
func (s *Service) Create(ctx context.Context, in CreateInput, actor engine.Actor) (*engine.Adjustment, error) {
	var created *engine.Adjustment
	err := s.store.WithTx(ctx, func(st store.Store) error {
		tutor, err := st.GetTutor(ctx, in.TutorID)
		if err != nil {
			return err
		}
		if tutor == nil {
			return engine.Err(engine.CodeTutorNotFound)
		}

		now := time.Now().UTC()
		period, err := st.UpsertPayPeriod(ctx, engine.NewPayPeriod(in.Week, now))
		if err != nil {
			return err
		}
		if period.Locked() {
			return engine.Err(engine.CodePayPeriodLocked)
		}

		if in.RelatedSessionID != nil {
			if err := checkRelatedSession(ctx, st, *in.RelatedSessionID, in.TutorID, in.Week); err != nil {
				return err
			}
		}

		adj := engine.Adjustment{
			ID:               engine.AdjustmentID(uuid.NewString()),
			TutorID:          in.TutorID,
			PeriodStart:      in.Week.Start,
			Type:             in.Type,
			Amount:           in.Amount,
			Reason:           in.Reason,
			Status:           engine.AdjustmentApproved,
			RelatedSessionID: in.RelatedSessionID,
			CreatedBy:        actor.ID,
			ApprovedBy:       actor.ID,
			CreatedAt:        now,
		}
		if err := st.InsertAdjustment(ctx, adj); err != nil {
			return err
		}

		if err := st.AppendAudit(ctx, auditEntry(actor, "payroll.adjustment.create", string(adj.ID), map[string]any{
			"tutor_id": string(in.TutorID),
			"type":     string(in.Type),
			"amount":   in.Amount.String(),
		}, now)); err != nil {
			return err
		}

		created = &adj
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// checkRelatedSession enforces the link invariants: the session exists,
// belongs to the adjustment's tutor, and is dated inside the week.
func checkRelatedSession(ctx context.Context, st store.Store, id engine.SessionID, tutorID engine.TutorID, w engine.Week) error {
	sess, err := st.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		return engine.Errf(engine.CodeRelatedSessionInvalid, "session %s not found", id)
	}
	if sess.TutorID != tutorID {
		return engine.Errf(engine.CodeRelatedSessionInvalid, "session %s belongs to another tutor", id)
	}
	if !w.Contains(sess.Date) {
		return engine.Errf(engine.CodeRelatedSessionInvalid, "session %s is outside the pay week", id)
	}
	return nil
}

// Entry is an adjustment plus its derived signed amount.
type Entry struct {
	Adjustment   engine.Adjustment
	SignedAmount decimal.Decimal
}

// List returns every adjustment for the week, voided ones included so
// the ledger reads as a full history.
func (s *Service) List(ctx context.Context, w engine.Week) ([]Entry, error) {
	adjs, err := s.store.ListAdjustments(ctx, w.Start)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(adjs))
	for _, a := range adjs {
		entries = append(entries, Entry{Adjustment: a, SignedAmount: a.SignedAmount()})
	}
	return entries, nil
}

// Void soft-deletes an adjustment. Refuses when the week is locked or the
// entry is already voided.
func (s *Service) Void(ctx context.Context, id engine.AdjustmentID, reason string, actor engine.Actor) (*engine.Adjustment, error) {
	var voided *engine.Adjustment
	err := s.store.WithTx(ctx, func(st store.Store) error {
		adj, err := st.GetAdjustment(ctx, id)
		if err != nil {
			return err
		}
		if adj == nil {
			return engine.Err(engine.CodeAdjustmentNotFound)
		}

		period, err := st.GetPayPeriod(ctx, adj.PeriodStart)
		if err != nil {
			return err
		}
		if period.Locked() {
			return engine.Err(engine.CodePayPeriodLocked)
		}

		if adj.Voided() {
			return engine.Err(engine.CodeAdjustmentAlreadyVoided)
		}

		now := time.Now().UTC()
		adj.VoidedAt = &now
		adj.VoidedBy = &actor.ID
		if reason != "" {
			adj.VoidReason = &reason
		}
		if err := st.SaveAdjustmentVoid(ctx, *adj); err != nil {
			return err
		}

		if err := st.AppendAudit(ctx, auditEntry(actor, "payroll.adjustment.delete", string(adj.ID), map[string]any{
			"tutor_id": string(adj.TutorID),
			"reason":   reason,
		}, now)); err != nil {
			return err
		}

		voided = adj
		return nil
	})
	if err != nil {
		return nil, err
	}
	return voided, nil
}

func auditEntry(actor engine.Actor, action, entityID string, meta map[string]any, now time.Time) store.AuditEntry {
	return store.AuditEntry{
		ID:            uuid.NewString(),
		ActorID:       actor.ID,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    "adjustment",
		EntityID:      entityID,
		Meta:          meta,
		IP:            actor.IP,
		UserAgent:     actor.UserAgent,
		CorrelationID: actor.CorrelationID,
		CreatedAt:     now,
	}
}
