/*
Package engine provides the core payroll settlement domain model.

PURPOSE:
  This package contains the types and pure algorithms shared by the
  approval, ledger and payroll services: sessions and their state machine,
  pay periods, adjustments, invoices, the scheduling window validator and
  the audit diff engine. It has no persistence and no HTTP concerns.

KEY CONCEPTS IN THIS FILE (types.go):
  - Session: One tutoring occurrence moving DRAFT → SUBMITTED → APPROVED/REJECTED
  - Transition table: The only legal status moves, validated centrally
  - Tutor/Student/Assignment: Read-only collaborator records

DESIGN PRINCIPLES:
  1. Immutability: History and invoice rows are never modified after insert
  2. Precision: Uses decimal.Decimal for every monetary value
  3. Type Safety: Strong typing for IDs and statuses
  4. Auditability: Every mutating transition produces a history + audit row

USAGE:
  if !engine.CanTransition(s.Status, engine.StatusApproved) {
      return engine.Errf(engine.CodeOnlySubmittedApprovable, "...")
  }

SEE ALSO:
  - errors.go: Business error taxonomy
  - week.go:   Monday-anchored pay week derivation
  - diff.go:   Field-level snapshot diffing for history review
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SessionID string
type TutorID string
type StudentID string
type AssignmentID string
type AdjustmentID string
type InvoiceID string

// Actor identifies who performed a mutating operation, plus the request
// metadata the audit log records alongside it.
type Actor struct {
	ID            string
	Role          string // "admin", "system"
	IP            string
	UserAgent     string
	CorrelationID string
}

// =============================================================================
// SESSION - One tutoring occurrence
// =============================================================================

type SessionStatus string

const (
	StatusDraft     SessionStatus = "DRAFT"
	StatusSubmitted SessionStatus = "SUBMITTED"
	StatusApproved  SessionStatus = "APPROVED"
	StatusRejected  SessionStatus = "REJECTED"
)

// transitions is the complete set of legal status moves. APPROVED and
// REJECTED are terminal: they have no entry.
var transitions = map[SessionStatus][]SessionStatus{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusApproved, StatusRejected},
}

// CanTransition reports whether moving from one status to another is legal.
// All status checks go through this table; no call site compares strings.
func CanTransition(from, to SessionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is one tutoring occurrence. Date is a UTC midnight day; start and
// end are clock times within that day. Duration is derived (end - start)
// and must be positive.
type Session struct {
	ID           SessionID
	AssignmentID AssignmentID
	TutorID      TutorID
	StudentID    StudentID
	Date         time.Time
	StartTime    Clock
	EndTime      Clock
	Status       SessionStatus
	Mode         string // "online", "in_person"
	Location     string
	Notes        string

	// Set only on approval.
	ApprovedBy *string
	ApprovedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DurationMinutes returns the derived session length.
func (s *Session) DurationMinutes() int {
	return int(s.EndTime - s.StartTime)
}

// ChangeType tags a history entry with the transition that produced it.
type ChangeType string

const (
	ChangeApprove ChangeType = "approve"
	ChangeReject  ChangeType = "reject"
)

// HistoryEntry is an immutable audit record of one session transition.
// Before/After are JSON snapshots; diffs are recomputed at read time so the
// diff algorithm can evolve without a data migration.
type HistoryEntry struct {
	ID         string
	SessionID  SessionID
	ChangeType ChangeType
	BeforeJSON []byte
	AfterJSON  []byte
	ActorID    string
	CreatedAt  time.Time
}

// =============================================================================
// COLLABORATOR RECORDS - Read-only in this core
// =============================================================================

// TutorStatus mirrors the tutor CRUD subsystem's lifecycle. Only ACTIVE
// tutors can have sessions approved.
type TutorStatus string

const TutorActive TutorStatus = "ACTIVE"

type Tutor struct {
	ID          TutorID
	Name        string
	Active      bool
	Status      TutorStatus
	DefaultRate decimal.Decimal // per hour
}

// Approvable reports whether the tutor can receive session approvals.
func (t *Tutor) Approvable() bool {
	return t.Active && t.Status == TutorActive
}

type Student struct {
	ID   StudentID
	Name string
}

// Assignment links a tutor to a student with a scheduling window and an
// optional hourly rate override.
type Assignment struct {
	ID           AssignmentID
	TutorID      TutorID
	StudentID    StudentID
	RateOverride *decimal.Decimal
	Window       AssignmentWindow
}

// EffectiveRate is the hourly rate used for invoice lines: the assignment
// override when present, else the tutor default.
func (a *Assignment) EffectiveRate(t *Tutor) decimal.Decimal {
	if a != nil && a.RateOverride != nil {
		return *a.RateOverride
	}
	return t.DefaultRate
}
