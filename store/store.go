/*
Package store defines the persistence interfaces for the settlement engine.

PURPOSE:
  Defines the contract between the domain services and the database. The
  Store reads and writes the six payroll entities; TxStore adds the
  transaction wrapper every mutating operation runs inside.

KEY INTERFACES:
  Store:   Entity persistence (sessions, periods, adjustments, invoices)
  TxStore: Transactional operations (atomic multi-table writes)

MUTATION CONTRACT:
  Session, PayPeriod and Adjustment rows are mutated ONLY by this engine
  (single-writer policy). History and audit rows are append-only: no
  Update, no Delete, ever. Invoices and their lines are inserted together
  and never touched again.

TRANSACTIONS:
  Every public operation is one transaction: read current state, validate,
  write rows + history + audit, commit. Lock checks are re-validated
  inside the same transaction as the mutation they guard; checking in one
  transaction and acting in another is a race.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite (same SQL patterns apply to PostgreSQL)
  - store/memory: In-memory for tests and dev

SEE ALSO:
  - approval/service.go: Main consumer of the session surface
  - payroll/service.go:  Consumer of the period/invoice surface
*/
package store

import (
	"context"
	"time"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// FILTERS & PAGINATION
// =============================================================================

// SessionFilter narrows ListSessions. Zero values mean "no restriction".
type SessionFilter struct {
	Status    engine.SessionStatus
	From      time.Time
	To        time.Time
	TutorID   engine.TutorID
	StudentID engine.StudentID
	Query     string // free text over location and notes

	Sort     string // "date", "tutor", "student", "created_at"
	Order    string // "asc", "desc"
	Page     int    // 1-based
	PageSize int
}

// WithoutStatus returns the filter with the status restriction dropped.
// Aggregates are computed over this wider set so a UI can show status
// counts alongside a status-filtered table.
func (f SessionFilter) WithoutStatus() SessionFilter {
	f.Status = ""
	return f
}

// SessionAggregates summarizes the unfiltered-by-status result set.
type SessionAggregates struct {
	StatusCounts map[engine.SessionStatus]int
	TotalMinutes int
}

// =============================================================================
// AUDIT LOG - Append-only, written within the mutating transaction
// =============================================================================

// AuditEntry records who did what when. Written synchronously inside the
// same transaction as the action it records.
type AuditEntry struct {
	ID            string
	ActorID       string
	ActorRole     string
	Action        string // e.g. "session.approve", "payroll.adjustment.create"
	EntityType    string
	EntityID      string
	Meta          map[string]any
	IP            string
	UserAgent     string
	CorrelationID string
	CreatedAt     time.Time
}

// =============================================================================
// STORE - Entity persistence
// =============================================================================

type Store interface {
	// --- Sessions (single-writer: only the approval service mutates) ---

	GetSession(ctx context.Context, id engine.SessionID) (*engine.Session, error)
	SaveSession(ctx context.Context, s engine.Session) error
	ListSessions(ctx context.Context, f SessionFilter) ([]engine.Session, int, error)
	AggregateSessions(ctx context.Context, f SessionFilter) (SessionAggregates, error)

	// SessionsInWeek returns all sessions dated inside the week, optionally
	// restricted to one status.
	SessionsInWeek(ctx context.Context, w engine.Week, status engine.SessionStatus) ([]engine.Session, error)

	// --- History (append-only) ---

	AppendHistory(ctx context.Context, e engine.HistoryEntry) error
	ListHistory(ctx context.Context, id engine.SessionID) ([]engine.HistoryEntry, error) // newest first

	// --- Collaborator lookups (read-only) ---

	GetTutor(ctx context.Context, id engine.TutorID) (*engine.Tutor, error)
	GetTutors(ctx context.Context, ids []engine.TutorID) (map[engine.TutorID]*engine.Tutor, error)
	GetAssignment(ctx context.Context, id engine.AssignmentID) (*engine.Assignment, error)

	// --- Pay periods ---

	GetPayPeriod(ctx context.Context, start time.Time) (*engine.PayPeriod, error)
	// UpsertPayPeriod creates the period if absent and returns the canonical
	// row. Never errors on "already exists".
	UpsertPayPeriod(ctx context.Context, p engine.PayPeriod) (*engine.PayPeriod, error)
	SavePayPeriod(ctx context.Context, p engine.PayPeriod) error

	// --- Adjustments (void-not-delete) ---

	InsertAdjustment(ctx context.Context, a engine.Adjustment) error
	GetAdjustment(ctx context.Context, id engine.AdjustmentID) (*engine.Adjustment, error)
	ListAdjustments(ctx context.Context, periodStart time.Time) ([]engine.Adjustment, error)
	SaveAdjustmentVoid(ctx context.Context, a engine.Adjustment) error

	// --- Invoices (insert-only, lines written with the invoice) ---

	InvoicesExist(ctx context.Context, periodStart time.Time) (bool, error)
	InsertInvoice(ctx context.Context, inv engine.Invoice) error
	ListInvoices(ctx context.Context, periodStart time.Time) ([]engine.Invoice, error)

	// --- Audit (append-only) ---

	AppendAudit(ctx context.Context, e AuditEntry) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed. Business errors
	// surfaced as per-item bulk results must NOT be returned from fn.
	WithTx(ctx context.Context, fn func(Store) error) error
}
