/*
Package payroll settles pay weeks: invoice generation and period locking.

PURPOSE:
  Turns a week of approved work into money:
  1. Periods:  Monday-anchored 7-day windows, materialized lazily
  2. Generate: One invoice per tutor with earnings in the week, built
     from APPROVED sessions and non-voided adjustments
  3. Lock:     Terminal freeze of a week; generates first if needed

GENERATION IS ALL-OR-NOTHING PER WEEK:
  Idempotency is global to the week, not per tutor. If any invoice
  exists for the week, generation refuses outright; it never tops up a
  partial run. Invoice numbers are pure functions of (week, tutor), so
  a racing duplicate dies on the uniqueness constraint instead of
  silently doubling pay.

LOCK ORDER OF CHECKS:
  already locked -> pending SUBMITTED sessions -> generate if no
  invoices -> flip to LOCKED. All inside one transaction; a lock that
  generated invoices and a lock that found them already there end in
  the same state.

SEE ALSO:
  - engine/invoice.go: Number derivation and line arithmetic
  - ledger:            The adjustments folded in here
*/
package payroll

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/store"
)

// Service settles pay periods over a transactional store.
type Service struct {
	store store.TxStore
}

func New(st store.TxStore) *Service {
	return &Service{store: st}
}

// =============================================================================
// PAY PERIODS
// =============================================================================

// GetOrCreatePeriod materializes the week's period if absent and returns
// the canonical row. Reading a week never fails because nobody created it
// yet.
func (s *Service) GetOrCreatePeriod(ctx context.Context, w engine.Week) (*engine.PayPeriod, error) {
	return s.store.UpsertPayPeriod(ctx, engine.NewPayPeriod(w, time.Now().UTC()))
}

// Invoices returns the week's invoices with their lines.
func (s *Service) Invoices(ctx context.Context, w engine.Week) ([]engine.Invoice, error) {
	return s.store.ListInvoices(ctx, w.Start)
}

// =============================================================================
// INVOICE GENERATION
// =============================================================================

// Generate creates the week's invoices. Fails fast if the week is locked
// or already has invoices.
func (s *Service) Generate(ctx context.Context, w engine.Week, actor engine.Actor) ([]engine.Invoice, error) {
	var invoices []engine.Invoice
	err := s.store.WithTx(ctx, func(st store.Store) error {
		now := time.Now().UTC()
		period, err := st.UpsertPayPeriod(ctx, engine.NewPayPeriod(w, now))
		if err != nil {
			return err
		}
		if period.Locked() {
			return engine.Err(engine.CodePayPeriodLocked)
		}

		exists, err := st.InvoicesExist(ctx, w.Start)
		if err != nil {
			return err
		}
		if exists {
			return engine.Err(engine.CodeInvoicesAlreadyGenerated)
		}

		invoices, err = generateLocked(ctx, st, w, now)
		if err != nil {
			return err
		}

		return st.AppendAudit(ctx, auditEntry(actor, "payroll.generate", w.String(), map[string]any{
			"invoices": len(invoices),
		}, now))
	})
	if err != nil {
		return nil, err
	}
	invoicesGenerated.Add(float64(len(invoices)))
	return invoices, nil
}

// generateLocked builds and inserts one invoice per tutor with at least
// one line in the week. Callers hold the transaction and have already
// checked lock state and prior generation.
func generateLocked(ctx context.Context, st store.Store, w engine.Week, now time.Time) ([]engine.Invoice, error) {
	sessions, err := st.SessionsInWeek(ctx, w, engine.StatusApproved)
	if err != nil {
		return nil, err
	}
	adjustments, err := st.ListAdjustments(ctx, w.Start)
	if err != nil {
		return nil, err
	}

	sessionsByTutor := make(map[engine.TutorID][]engine.Session)
	adjustmentsByTutor := make(map[engine.TutorID][]engine.Adjustment)
	tutorIDs := make([]engine.TutorID, 0)
	seen := make(map[engine.TutorID]bool)

	track := func(id engine.TutorID) {
		if !seen[id] {
			seen[id] = true
			tutorIDs = append(tutorIDs, id)
		}
	}
	for _, sess := range sessions {
		sessionsByTutor[sess.TutorID] = append(sessionsByTutor[sess.TutorID], sess)
		track(sess.TutorID)
	}
	for _, adj := range adjustments {
		if adj.Voided() {
			continue
		}
		adjustmentsByTutor[adj.TutorID] = append(adjustmentsByTutor[adj.TutorID], adj)
		track(adj.TutorID)
	}

	// A tutor with nothing in the week simply has no invoice.
	if len(tutorIDs) == 0 {
		return []engine.Invoice{}, nil
	}
	sort.Slice(tutorIDs, func(i, j int) bool { return tutorIDs[i] < tutorIDs[j] })

	tutors, err := st.GetTutors(ctx, tutorIDs)
	if err != nil {
		return nil, err
	}

	assignments := make(map[engine.AssignmentID]*engine.Assignment)

	invoices := make([]engine.Invoice, 0, len(tutorIDs))
	for _, tutorID := range tutorIDs {
		tutor := tutors[tutorID]
		if tutor == nil {
			return nil, engine.Errf(engine.CodeTutorNotFound, "tutor %s has earnings but no record", tutorID)
		}

		inv := engine.Invoice{
			ID:          engine.InvoiceID(uuid.NewString()),
			TutorID:     tutorID,
			PeriodStart: w.Start,
			PeriodEnd:   w.End(),
			Number:      engine.InvoiceNumber(w, tutorID),
			Status:      engine.InvoiceIssued,
			CreatedAt:   now,
		}

		total := decimal.Zero

		tutorSessions := sessionsByTutor[tutorID]
		sort.Slice(tutorSessions, func(i, j int) bool {
			a, b := tutorSessions[i], tutorSessions[j]
			if !a.Date.Equal(b.Date) {
				return a.Date.Before(b.Date)
			}
			if a.StartTime != b.StartTime {
				return a.StartTime < b.StartTime
			}
			return a.ID < b.ID
		})
		for i := range tutorSessions {
			sess := tutorSessions[i]
			rate, err := effectiveRate(ctx, st, assignments, &sess, tutor)
			if err != nil {
				return nil, err
			}
			minutes := sess.DurationMinutes()
			amount := engine.SessionLineAmount(minutes, rate)
			inv.Lines = append(inv.Lines, engine.InvoiceLine{
				ID:        uuid.NewString(),
				InvoiceID: inv.ID,
				Type:      engine.LineSession,
				SessionID: &sess.ID,
				Minutes:   minutes,
				Rate:      rate,
				Amount:    amount,
			})
			total = total.Add(amount)
		}

		tutorAdjs := adjustmentsByTutor[tutorID]
		sort.Slice(tutorAdjs, func(i, j int) bool {
			a, b := tutorAdjs[i], tutorAdjs[j]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		})
		for i := range tutorAdjs {
			adj := tutorAdjs[i]
			amount := adj.SignedAmount()
			inv.Lines = append(inv.Lines, engine.InvoiceLine{
				ID:           uuid.NewString(),
				InvoiceID:    inv.ID,
				Type:         engine.LineAdjustment,
				AdjustmentID: &adj.ID,
				Amount:       amount,
			})
			total = total.Add(amount)
		}

		inv.TotalAmount = total
		if err := st.InsertInvoice(ctx, inv); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

// effectiveRate resolves the hourly rate for a session: the assignment's
// override when set, otherwise the tutor's default. Assignments are cached
// across the generation run.
func effectiveRate(ctx context.Context, st store.Store, cache map[engine.AssignmentID]*engine.Assignment, sess *engine.Session, tutor *engine.Tutor) (decimal.Decimal, error) {
	assignment, ok := cache[sess.AssignmentID]
	if !ok {
		var err error
		assignment, err = st.GetAssignment(ctx, sess.AssignmentID)
		if err != nil {
			return decimal.Zero, err
		}
		cache[sess.AssignmentID] = assignment
	}
	if assignment == nil {
		return tutor.DefaultRate, nil
	}
	return assignment.EffectiveRate(tutor), nil
}

// =============================================================================
// LOCKING
// =============================================================================

// Lock terminally freezes the week. Refuses while SUBMITTED sessions are
// pending; generates invoices first when none exist. Generation and the
// status flip commit together.
func (s *Service) Lock(ctx context.Context, w engine.Week, actor engine.Actor) (*engine.PayPeriod, error) {
	var locked *engine.PayPeriod
	err := s.store.WithTx(ctx, func(st store.Store) error {
		now := time.Now().UTC()
		period, err := st.UpsertPayPeriod(ctx, engine.NewPayPeriod(w, now))
		if err != nil {
			return err
		}
		if period.Locked() {
			return engine.Err(engine.CodePayPeriodLocked)
		}

		pending, err := st.SessionsInWeek(ctx, w, engine.StatusSubmitted)
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			return engine.Errf(engine.CodePendingSessions, "%d sessions awaiting decision", len(pending))
		}

		generated := 0
		exists, err := st.InvoicesExist(ctx, w.Start)
		if err != nil {
			return err
		}
		if !exists {
			invoices, err := generateLocked(ctx, st, w, now)
			if err != nil {
				return err
			}
			generated = len(invoices)
		}

		period.Status = engine.PeriodLocked
		period.LockedBy = &actor.ID
		period.LockedAt = &now
		if err := st.SavePayPeriod(ctx, *period); err != nil {
			return err
		}

		if err := st.AppendAudit(ctx, auditEntry(actor, "payroll.lock", w.String(), map[string]any{
			"generated": generated,
		}, now)); err != nil {
			return err
		}

		locked = period
		return nil
	})
	if err != nil {
		return nil, err
	}
	periodsLocked.Inc()
	return locked, nil
}

func auditEntry(actor engine.Actor, action, entityID string, meta map[string]any, now time.Time) store.AuditEntry {
	return store.AuditEntry{
		ID:            uuid.NewString(),
		ActorID:       actor.ID,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    "pay_period",
		EntityID:      entityID,
		Meta:          meta,
		IP:            actor.IP,
		UserAgent:     actor.UserAgent,
		CorrelationID: actor.CorrelationID,
		CreatedAt:     now,
	}
}
