/*
handlers.go - HTTP API handlers for the payroll settlement engine

PURPOSE:
  Exposes the approval, ledger and payroll services via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Sessions:
    GET    /api/sessions                      Filtered, paged list + aggregates
    POST   /api/sessions/{id}/approve         Approve one session
    POST   /api/sessions/{id}/reject          Reject one session
    POST   /api/sessions/bulk-approve         Approve many, per-item outcomes
    POST   /api/sessions/bulk-reject          Reject many, per-item outcomes
    GET    /api/sessions/{id}/history         Transition log with diffs
    GET    /api/sessions/{id}/window-check    Assignment window validation

  Payroll:
    GET    /api/payroll/{weekStart}             Period + invoices
    POST   /api/payroll/{weekStart}/generate    Build the week's invoices
    POST   /api/payroll/{weekStart}/lock        Terminal freeze
    GET    /api/payroll/{weekStart}/adjustments List ledger entries
    POST   /api/payroll/{weekStart}/adjustments Create ledger entry
    DELETE /api/payroll/adjustments/{id}        Void (soft delete)

ERROR HANDLING:
  Business errors carry a closed code; the mapping to HTTP status is:
  - 404: *_not_found
  - 409: locked / already generated / already voided / wrong state /
         pending sessions / inactive tutor
  - 400: invalid input, related_session_invalid
  - 500: everything else

ACTOR IDENTITY:
  Read from X-Actor-ID / X-Actor-Role headers; an upstream gateway is
  expected to authenticate and set them. IP, user agent and the chi
  request ID ride along into the audit log.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/approval"
	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/ledger"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Approval *approval.Service
	Ledger   *ledger.Service
	Payroll  *payroll.Service
}

// NewHandler creates a handler over the three domain services.
func NewHandler(st store.TxStore) *Handler {
	return &Handler{
		Approval: approval.New(st),
		Ledger:   ledger.New(st),
		Payroll:  payroll.New(st),
	}
}

// actorFrom builds the audit identity for a request.
func actorFrom(r *http.Request) engine.Actor {
	id := r.Header.Get("X-Actor-ID")
	if id == "" {
		id = "admin"
	}
	role := r.Header.Get("X-Actor-Role")
	if role == "" {
		role = "admin"
	}
	return engine.Actor{
		ID:            id,
		Role:          role,
		IP:            r.RemoteAddr,
		UserAgent:     r.UserAgent(),
		CorrelationID: middleware.GetReqID(r.Context()),
	}
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// ListSessions returns filtered, paged sessions with aggregates.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.SessionFilter{
		Status:    engine.SessionStatus(q.Get("status")),
		TutorID:   engine.TutorID(q.Get("tutor_id")),
		StudentID: engine.StudentID(q.Get("student_id")),
		Query:     q.Get("q"),
		Sort:      q.Get("sort"),
		Order:     q.Get("order"),
	}
	var err error
	if f.From, err = parseDate(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	if f.To, err = parseDate(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}
	f.Page = intParam(q.Get("page"), 1)
	f.PageSize = intParam(q.Get("page_size"), 50)

	result, err := h.Approval.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]SessionDTO, len(result.Items))
	for i := range result.Items {
		dtos[i] = toSessionDTO(&result.Items[i])
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{
		Sessions:   dtos,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		Aggregates: toAggregatesDTO(result.Aggregates),
	})
}

// ApproveSession approves a single SUBMITTED session.
func (h *Handler) ApproveSession(w http.ResponseWriter, r *http.Request) {
	id := engine.SessionID(chi.URLParam(r, "id"))

	sess, err := h.Approval.Approve(r.Context(), id, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(sess))
}

// RejectSession rejects a single SUBMITTED session with a reason.
func (h *Handler) RejectSession(w http.ResponseWriter, r *http.Request) {
	id := engine.SessionID(chi.URLParam(r, "id"))

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "Reason is required", nil)
		return
	}

	sess, err := h.Approval.Reject(r.Context(), id, req.Reason, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(sess))
}

// BulkApprove approves many sessions in one transaction.
func (h *Handler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.SessionIDs) == 0 {
		writeError(w, http.StatusBadRequest, "session_ids is required", nil)
		return
	}

	result, err := h.Approval.BulkApprove(r.Context(), sessionIDs(req.SessionIDs), actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// BulkReject rejects many sessions in one transaction with a shared reason.
func (h *Handler) BulkReject(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.SessionIDs) == 0 {
		writeError(w, http.StatusBadRequest, "session_ids is required", nil)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "Reason is required", nil)
		return
	}

	result, err := h.Approval.BulkReject(r.Context(), sessionIDs(req.SessionIDs), req.Reason, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetHistory returns a session's transition log, newest first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := engine.SessionID(chi.URLParam(r, "id"))

	views, err := h.Approval.History(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryDTOs(views))
}

// CheckWindow validates a session against its assignment window.
func (h *Handler) CheckWindow(w http.ResponseWriter, r *http.Request) {
	id := engine.SessionID(chi.URLParam(r, "id"))

	report, err := h.Approval.CheckWindow(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WindowCheckDTO{
		SessionID:    string(report.SessionID),
		AssignmentID: string(report.AssignmentID),
		Within:       report.Within,
	})
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// GetPayPeriod returns the week's period (materializing it if absent) and
// its invoices.
func (h *Handler) GetPayPeriod(w http.ResponseWriter, r *http.Request) {
	week, ok := weekParam(w, r)
	if !ok {
		return
	}

	period, err := h.Payroll.GetOrCreatePeriod(r.Context(), week)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	invoices, err := h.Payroll.Invoices(r.Context(), week)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PayPeriodSummaryResponse{
		Period:   toPayPeriodDTO(period),
		Invoices: toInvoiceDTOs(invoices),
	})
}

// GenerateInvoices builds the week's invoices.
func (h *Handler) GenerateInvoices(w http.ResponseWriter, r *http.Request) {
	week, ok := weekParam(w, r)
	if !ok {
		return
	}

	invoices, err := h.Payroll.Generate(r.Context(), week, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTOs(invoices))
}

// LockPayPeriod terminally freezes the week, generating first if needed.
func (h *Handler) LockPayPeriod(w http.ResponseWriter, r *http.Request) {
	week, ok := weekParam(w, r)
	if !ok {
		return
	}

	period, err := h.Payroll.Lock(r.Context(), week, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayPeriodDTO(period))
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

// ListAdjustments returns the week's ledger entries, voided included.
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	week, ok := weekParam(w, r)
	if !ok {
		return
	}

	entries, err := h.Ledger.List(r.Context(), week)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustmentDTOs(entries))
}

// CreateAdjustment records a manual ledger entry against the week.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	week, ok := weekParam(w, r)
	if !ok {
		return
	}

	var req CreateAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TutorID == "" {
		writeError(w, http.StatusBadRequest, "tutor_id is required", nil)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "Reason is required", nil)
		return
	}
	adjType := engine.AdjustmentType(req.Type)
	switch adjType {
	case engine.AdjustmentBonus, engine.AdjustmentCorrection, engine.AdjustmentPenalty:
	default:
		writeError(w, http.StatusBadRequest, "Type must be BONUS, CORRECTION or PENALTY", nil)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be a positive number", err)
		return
	}

	in := ledger.CreateInput{
		TutorID: engine.TutorID(req.TutorID),
		Week:    week,
		Type:    adjType,
		Amount:  amount,
		Reason:  req.Reason,
	}
	if req.RelatedSessionID != nil && *req.RelatedSessionID != "" {
		sid := engine.SessionID(*req.RelatedSessionID)
		in.RelatedSessionID = &sid
	}

	adj, err := h.Ledger.Create(r.Context(), in, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdjustmentDTO(adj))
}

// VoidAdjustment soft-deletes a ledger entry.
func (h *Handler) VoidAdjustment(w http.ResponseWriter, r *http.Request) {
	id := engine.AdjustmentID(chi.URLParam(r, "id"))
	reason := r.URL.Query().Get("reason")

	adj, err := h.Ledger.Void(r.Context(), id, reason, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustmentDTO(adj))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// weekParam parses the {weekStart} URL segment and snaps it to its Monday.
func weekParam(w http.ResponseWriter, r *http.Request) (engine.Week, bool) {
	week, err := engine.ParseWeekStart(chi.URLParam(r, "weekStart"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid week start date", err)
		return engine.Week{}, false
	}
	return week, true
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func sessionIDs(ids []string) []engine.SessionID {
	out := make([]engine.SessionID, len(ids))
	for i, id := range ids {
		out[i] = engine.SessionID(id)
	}
	return out
}

func statusForCode(code engine.Code) int {
	switch code {
	case engine.CodeSessionNotFound, engine.CodeTutorNotFound, engine.CodeAdjustmentNotFound:
		return http.StatusNotFound
	case engine.CodeRelatedSessionInvalid:
		return http.StatusBadRequest
	case engine.CodeTutorNotActive,
		engine.CodePayPeriodLocked,
		engine.CodeOnlySubmittedApprovable,
		engine.CodeOnlySubmittedRejectable,
		engine.CodeInvoicesAlreadyGenerated,
		engine.CodePendingSessions,
		engine.CodeAdjustmentAlreadyVoided:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeDomainError maps a service error to the uniform envelope.
func writeDomainError(w http.ResponseWriter, err error) {
	if engine.IsBusiness(err) {
		code := engine.CodeOf(err)
		writeJSON(w, statusForCode(code), ErrorResponse{
			Error: err.Error(),
			Code:  string(code),
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "Internal error",
		Code:    string(engine.CodeInternal),
		Details: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
