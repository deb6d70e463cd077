/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/payroll-engine/approval"
	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/ledger"
	"github.com/warp/payroll-engine/store"
)

// =============================================================================
// SESSIONS
// =============================================================================

// SessionDTO represents a session in API responses.
type SessionDTO struct {
	ID              string  `json:"id"`
	AssignmentID    string  `json:"assignment_id"`
	TutorID         string  `json:"tutor_id"`
	StudentID       string  `json:"student_id"`
	Date            string  `json:"date"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	DurationMinutes int     `json:"duration_minutes"`
	Status          string  `json:"status"`
	Mode            string  `json:"mode,omitempty"`
	Location        string  `json:"location,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	ApprovedBy      *string `json:"approved_by,omitempty"`
	ApprovedAt      *string `json:"approved_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func toSessionDTO(s *engine.Session) SessionDTO {
	dto := SessionDTO{
		ID:              string(s.ID),
		AssignmentID:    string(s.AssignmentID),
		TutorID:         string(s.TutorID),
		StudentID:       string(s.StudentID),
		Date:            s.Date.Format("2006-01-02"),
		StartTime:       s.StartTime.String(),
		EndTime:         s.EndTime.String(),
		DurationMinutes: s.DurationMinutes(),
		Status:          string(s.Status),
		Mode:            s.Mode,
		Location:        s.Location,
		Notes:           s.Notes,
		CreatedAt:       s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       s.UpdatedAt.Format(time.RFC3339),
	}
	if s.ApprovedBy != nil {
		dto.ApprovedBy = s.ApprovedBy
	}
	if s.ApprovedAt != nil {
		v := s.ApprovedAt.Format(time.RFC3339)
		dto.ApprovedAt = &v
	}
	return dto
}

// AggregatesDTO summarizes the list result regardless of status filter.
type AggregatesDTO struct {
	StatusCounts map[string]int `json:"status_counts"`
	TotalMinutes int            `json:"total_minutes"`
}

func toAggregatesDTO(a store.SessionAggregates) AggregatesDTO {
	counts := make(map[string]int, len(a.StatusCounts))
	for k, v := range a.StatusCounts {
		counts[string(k)] = v
	}
	return AggregatesDTO{StatusCounts: counts, TotalMinutes: a.TotalMinutes}
}

// ListSessionsResponse is a page of sessions plus aggregates.
type ListSessionsResponse struct {
	Sessions   []SessionDTO  `json:"sessions"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	Aggregates AggregatesDTO `json:"aggregates"`
}

// RejectRequest carries the rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// BulkRequest carries the IDs for a bulk decision; Reason applies to
// bulk reject only.
type BulkRequest struct {
	SessionIDs []string `json:"session_ids"`
	Reason     string   `json:"reason,omitempty"`
}

// HistoryEntryDTO is one transition in a session's history, newest first.
type HistoryEntryDTO struct {
	ID         string             `json:"id"`
	ChangeType string             `json:"change_type"`
	ActorID    string             `json:"actor_id"`
	CreatedAt  string             `json:"created_at"`
	Diffs      []engine.FieldDiff `json:"diffs"`
}

func toHistoryDTOs(views []approval.HistoryView) []HistoryEntryDTO {
	dtos := make([]HistoryEntryDTO, len(views))
	for i, v := range views {
		dtos[i] = HistoryEntryDTO{
			ID:         v.Entry.ID,
			ChangeType: string(v.Entry.ChangeType),
			ActorID:    v.Entry.ActorID,
			CreatedAt:  v.Entry.CreatedAt.Format(time.RFC3339),
			Diffs:      v.Diffs,
		}
	}
	return dtos
}

// WindowCheckDTO reports whether a session fits its assignment window.
type WindowCheckDTO struct {
	SessionID    string `json:"session_id"`
	AssignmentID string `json:"assignment_id"`
	Within       bool   `json:"within_window"`
}

// =============================================================================
// PAYROLL
// =============================================================================

// PayPeriodDTO represents a pay period in API responses.
type PayPeriodDTO struct {
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Status    string  `json:"status"`
	LockedBy  *string `json:"locked_by,omitempty"`
	LockedAt  *string `json:"locked_at,omitempty"`
}

func toPayPeriodDTO(p *engine.PayPeriod) PayPeriodDTO {
	dto := PayPeriodDTO{
		StartDate: p.StartDate.Format("2006-01-02"),
		EndDate:   p.EndDate.Format("2006-01-02"),
		Status:    string(p.Status),
	}
	if p.LockedBy != nil {
		dto.LockedBy = p.LockedBy
	}
	if p.LockedAt != nil {
		v := p.LockedAt.Format(time.RFC3339)
		dto.LockedAt = &v
	}
	return dto
}

// InvoiceLineDTO is one line of an invoice.
type InvoiceLineDTO struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	SessionID    *string `json:"session_id,omitempty"`
	AdjustmentID *string `json:"adjustment_id,omitempty"`
	Minutes      int     `json:"minutes,omitempty"`
	Rate         string  `json:"rate,omitempty"`
	Amount       string  `json:"amount"`
}

// InvoiceDTO represents an invoice with its lines.
type InvoiceDTO struct {
	ID          string           `json:"id"`
	TutorID     string           `json:"tutor_id"`
	Number      string           `json:"invoice_number"`
	PeriodStart string           `json:"period_start"`
	PeriodEnd   string           `json:"period_end"`
	TotalAmount string           `json:"total_amount"`
	Status      string           `json:"status"`
	Lines       []InvoiceLineDTO `json:"lines"`
	CreatedAt   string           `json:"created_at"`
}

func toInvoiceDTO(inv *engine.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:          string(inv.ID),
		TutorID:     string(inv.TutorID),
		Number:      inv.Number,
		PeriodStart: inv.PeriodStart.Format("2006-01-02"),
		PeriodEnd:   inv.PeriodEnd.Format("2006-01-02"),
		TotalAmount: inv.TotalAmount.StringFixed(2),
		Status:      string(inv.Status),
		Lines:       make([]InvoiceLineDTO, len(inv.Lines)),
		CreatedAt:   inv.CreatedAt.Format(time.RFC3339),
	}
	for i := range inv.Lines {
		l := inv.Lines[i]
		line := InvoiceLineDTO{
			ID:     l.ID,
			Type:   string(l.Type),
			Amount: l.Amount.StringFixed(2),
		}
		if l.Type == engine.LineSession {
			line.Minutes = l.Minutes
			line.Rate = l.Rate.StringFixed(2)
		}
		if l.SessionID != nil {
			v := string(*l.SessionID)
			line.SessionID = &v
		}
		if l.AdjustmentID != nil {
			v := string(*l.AdjustmentID)
			line.AdjustmentID = &v
		}
		dto.Lines[i] = line
	}
	return dto
}

func toInvoiceDTOs(invs []engine.Invoice) []InvoiceDTO {
	dtos := make([]InvoiceDTO, len(invs))
	for i := range invs {
		dtos[i] = toInvoiceDTO(&invs[i])
	}
	return dtos
}

// PayPeriodSummaryResponse is the full view of a pay week.
type PayPeriodSummaryResponse struct {
	Period   PayPeriodDTO `json:"period"`
	Invoices []InvoiceDTO `json:"invoices"`
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// CreateAdjustmentRequest creates a manual ledger entry for a tutor's week.
type CreateAdjustmentRequest struct {
	TutorID          string  `json:"tutor_id"`
	Type             string  `json:"type"` // BONUS | CORRECTION | PENALTY
	Amount           string  `json:"amount"`
	Reason           string  `json:"reason"`
	RelatedSessionID *string `json:"related_session_id,omitempty"`
}

// AdjustmentDTO represents an adjustment with its derived sign.
type AdjustmentDTO struct {
	ID               string  `json:"id"`
	TutorID          string  `json:"tutor_id"`
	PeriodStart      string  `json:"period_start"`
	Type             string  `json:"type"`
	Amount           string  `json:"amount"`
	SignedAmount     string  `json:"signed_amount"`
	Reason           string  `json:"reason"`
	Status           string  `json:"status"`
	RelatedSessionID *string `json:"related_session_id,omitempty"`
	CreatedBy        string  `json:"created_by"`
	VoidedAt         *string `json:"voided_at,omitempty"`
	VoidedBy         *string `json:"voided_by,omitempty"`
	VoidReason       *string `json:"void_reason,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

func toAdjustmentDTO(a *engine.Adjustment) AdjustmentDTO {
	dto := AdjustmentDTO{
		ID:           string(a.ID),
		TutorID:      string(a.TutorID),
		PeriodStart:  a.PeriodStart.Format("2006-01-02"),
		Type:         string(a.Type),
		Amount:       a.Amount.StringFixed(2),
		SignedAmount: a.SignedAmount().StringFixed(2),
		Reason:       a.Reason,
		Status:       string(a.Status),
		CreatedBy:    a.CreatedBy,
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
	}
	if a.RelatedSessionID != nil {
		v := string(*a.RelatedSessionID)
		dto.RelatedSessionID = &v
	}
	if a.VoidedAt != nil {
		v := a.VoidedAt.Format(time.RFC3339)
		dto.VoidedAt = &v
	}
	dto.VoidedBy = a.VoidedBy
	dto.VoidReason = a.VoidReason
	return dto
}

func toAdjustmentDTOs(entries []ledger.Entry) []AdjustmentDTO {
	dtos := make([]AdjustmentDTO, len(entries))
	for i := range entries {
		dtos[i] = toAdjustmentDTO(&entries[i].Adjustment)
	}
	return dtos
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the uniform error envelope. Code is one of the
// machine-readable business codes; clients branch on it, not on the
// message.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
