// Package memory provides an in-memory Store implementation (for testing/dev).
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/store"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	sessions    map[engine.SessionID]engine.Session
	history     []engine.HistoryEntry
	tutors      map[engine.TutorID]engine.Tutor
	students    map[engine.StudentID]engine.Student
	assignments map[engine.AssignmentID]engine.Assignment
	periods     map[string]engine.PayPeriod // keyed by YYYY-MM-DD start
	adjustments map[engine.AdjustmentID]engine.Adjustment
	invoices    []engine.Invoice
	audit       []store.AuditEntry
}

func New() *Memory {
	return &Memory{
		sessions:    make(map[engine.SessionID]engine.Session),
		tutors:      make(map[engine.TutorID]engine.Tutor),
		students:    make(map[engine.StudentID]engine.Student),
		assignments: make(map[engine.AssignmentID]engine.Assignment),
		periods:     make(map[string]engine.PayPeriod),
		adjustments: make(map[engine.AdjustmentID]engine.Adjustment),
	}
}

func dayKey(t time.Time) string { return engine.Day(t).Format("2006-01-02") }

// =============================================================================
// SESSIONS
// =============================================================================

func (m *Memory) GetSession(_ context.Context, id engine.SessionID) (*engine.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *Memory) SaveSession(_ context.Context, s engine.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func matchesFilter(s engine.Session, f store.SessionFilter) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && engine.Day(s.Date).Before(engine.Day(f.From)) {
		return false
	}
	if !f.To.IsZero() && engine.Day(s.Date).After(engine.Day(f.To)) {
		return false
	}
	if f.TutorID != "" && s.TutorID != f.TutorID {
		return false
	}
	if f.StudentID != "" && s.StudentID != f.StudentID {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(s.Location), q) &&
			!strings.Contains(strings.ToLower(s.Notes), q) {
			return false
		}
	}
	return true
}

func (m *Memory) ListSessions(_ context.Context, f store.SessionFilter) ([]engine.Session, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []engine.Session
	for _, s := range m.sessions {
		if matchesFilter(s, f) {
			matched = append(matched, s)
		}
	}

	less := func(a, b engine.Session) bool {
		switch f.Sort {
		case "tutor":
			return a.TutorID < b.TutorID
		case "student":
			return a.StudentID < b.StudentID
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.Date.Before(b.Date)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if strings.EqualFold(f.Order, "desc") {
			a, b = b, a
		}
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * f.PageSize
		if start > total {
			start = total
		}
		end := start + f.PageSize
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (m *Memory) AggregateSessions(_ context.Context, f store.SessionFilter) (store.SessionAggregates, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agg := store.SessionAggregates{StatusCounts: make(map[engine.SessionStatus]int)}
	wide := f.WithoutStatus()
	for _, s := range m.sessions {
		if !matchesFilter(s, wide) {
			continue
		}
		agg.StatusCounts[s.Status]++
		agg.TotalMinutes += s.DurationMinutes()
	}
	return agg, nil
}

func (m *Memory) SessionsInWeek(_ context.Context, w engine.Week, status engine.SessionStatus) ([]engine.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.Session
	for _, s := range m.sessions {
		if !w.Contains(s.Date) {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TutorID != result[j].TutorID {
			return result[i].TutorID < result[j].TutorID
		}
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

// =============================================================================
// HISTORY
// =============================================================================

func (m *Memory) AppendHistory(_ context.Context, e engine.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, e)
	return nil
}

func (m *Memory) ListHistory(_ context.Context, id engine.SessionID) ([]engine.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.HistoryEntry
	for _, e := range m.history {
		if e.SessionID == id {
			result = append(result, e)
		}
	}
	// Newest first
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// =============================================================================
// COLLABORATOR RECORDS
// =============================================================================

func (m *Memory) GetTutor(_ context.Context, id engine.TutorID) (*engine.Tutor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tutors[id]; ok {
		return &t, nil
	}
	return nil, nil
}

func (m *Memory) GetTutors(_ context.Context, ids []engine.TutorID) (map[engine.TutorID]*engine.Tutor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[engine.TutorID]*engine.Tutor, len(ids))
	for _, id := range ids {
		if t, ok := m.tutors[id]; ok {
			tc := t
			result[id] = &tc
		}
	}
	return result, nil
}

func (m *Memory) GetAssignment(_ context.Context, id engine.AssignmentID) (*engine.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.assignments[id]; ok {
		return &a, nil
	}
	return nil, nil
}

// =============================================================================
// PAY PERIODS
// =============================================================================

func (m *Memory) GetPayPeriod(_ context.Context, start time.Time) (*engine.PayPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.periods[dayKey(start)]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) UpsertPayPeriod(_ context.Context, p engine.PayPeriod) (*engine.PayPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := dayKey(p.StartDate)
	if existing, ok := m.periods[key]; ok {
		return &existing, nil
	}
	m.periods[key] = p
	return &p, nil
}

func (m *Memory) SavePayPeriod(_ context.Context, p engine.PayPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods[dayKey(p.StartDate)] = p
	return nil
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func (m *Memory) InsertAdjustment(_ context.Context, a engine.Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments[a.ID] = a
	return nil
}

func (m *Memory) GetAdjustment(_ context.Context, id engine.AdjustmentID) (*engine.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.adjustments[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (m *Memory) ListAdjustments(_ context.Context, periodStart time.Time) ([]engine.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := dayKey(periodStart)
	var result []engine.Adjustment
	for _, a := range m.adjustments {
		if dayKey(a.PeriodStart) == key {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) SaveAdjustmentVoid(_ context.Context, a engine.Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments[a.ID] = a
	return nil
}

// =============================================================================
// INVOICES
// =============================================================================

func (m *Memory) InvoicesExist(_ context.Context, periodStart time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := dayKey(periodStart)
	for _, inv := range m.invoices {
		if dayKey(inv.PeriodStart) == key {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) InsertInvoice(_ context.Context, inv engine.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices = append(m.invoices, inv)
	return nil
}

func (m *Memory) ListInvoices(_ context.Context, periodStart time.Time) ([]engine.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := dayKey(periodStart)
	var result []engine.Invoice
	for _, inv := range m.invoices {
		if dayKey(inv.PeriodStart) == key {
			result = append(result, inv)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TutorID < result[j].TutorID })
	return result, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, e store.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

// AuditEntries returns a copy of the audit log, for test assertions.
func (m *Memory) AuditEntries() []store.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.AuditEntry{}, m.audit...)
}

// =============================================================================
// FIXTURES
// =============================================================================

func (m *Memory) SaveTutor(_ context.Context, t engine.Tutor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tutors[t.ID] = t
	return nil
}

func (m *Memory) SaveStudent(_ context.Context, s engine.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
	return nil
}

func (m *Memory) SaveAssignment(_ context.Context, a engine.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = a
	return nil
}

// =============================================================================
// TRANSACTIONS - Simulated with a snapshot + rollback on error
// =============================================================================

// WithTx executes fn against the store, restoring the pre-call snapshot if
// fn returns an error.
func (m *Memory) WithTx(ctx context.Context, fn func(store.Store) error) error {
	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

// txView forwards to the parent store. The memory store serializes access
// with its own mutex, so the view adds no locking of its own.
type txView struct {
	parent *Memory
}

func (v *txView) GetSession(ctx context.Context, id engine.SessionID) (*engine.Session, error) {
	return v.parent.GetSession(ctx, id)
}
func (v *txView) SaveSession(ctx context.Context, s engine.Session) error {
	return v.parent.SaveSession(ctx, s)
}
func (v *txView) ListSessions(ctx context.Context, f store.SessionFilter) ([]engine.Session, int, error) {
	return v.parent.ListSessions(ctx, f)
}
func (v *txView) AggregateSessions(ctx context.Context, f store.SessionFilter) (store.SessionAggregates, error) {
	return v.parent.AggregateSessions(ctx, f)
}
func (v *txView) SessionsInWeek(ctx context.Context, w engine.Week, status engine.SessionStatus) ([]engine.Session, error) {
	return v.parent.SessionsInWeek(ctx, w, status)
}
func (v *txView) AppendHistory(ctx context.Context, e engine.HistoryEntry) error {
	return v.parent.AppendHistory(ctx, e)
}
func (v *txView) ListHistory(ctx context.Context, id engine.SessionID) ([]engine.HistoryEntry, error) {
	return v.parent.ListHistory(ctx, id)
}
func (v *txView) GetTutor(ctx context.Context, id engine.TutorID) (*engine.Tutor, error) {
	return v.parent.GetTutor(ctx, id)
}
func (v *txView) GetTutors(ctx context.Context, ids []engine.TutorID) (map[engine.TutorID]*engine.Tutor, error) {
	return v.parent.GetTutors(ctx, ids)
}
func (v *txView) GetAssignment(ctx context.Context, id engine.AssignmentID) (*engine.Assignment, error) {
	return v.parent.GetAssignment(ctx, id)
}
func (v *txView) GetPayPeriod(ctx context.Context, start time.Time) (*engine.PayPeriod, error) {
	return v.parent.GetPayPeriod(ctx, start)
}
func (v *txView) UpsertPayPeriod(ctx context.Context, p engine.PayPeriod) (*engine.PayPeriod, error) {
	return v.parent.UpsertPayPeriod(ctx, p)
}
func (v *txView) SavePayPeriod(ctx context.Context, p engine.PayPeriod) error {
	return v.parent.SavePayPeriod(ctx, p)
}
func (v *txView) InsertAdjustment(ctx context.Context, a engine.Adjustment) error {
	return v.parent.InsertAdjustment(ctx, a)
}
func (v *txView) GetAdjustment(ctx context.Context, id engine.AdjustmentID) (*engine.Adjustment, error) {
	return v.parent.GetAdjustment(ctx, id)
}
func (v *txView) ListAdjustments(ctx context.Context, periodStart time.Time) ([]engine.Adjustment, error) {
	return v.parent.ListAdjustments(ctx, periodStart)
}
func (v *txView) SaveAdjustmentVoid(ctx context.Context, a engine.Adjustment) error {
	return v.parent.SaveAdjustmentVoid(ctx, a)
}
func (v *txView) InvoicesExist(ctx context.Context, periodStart time.Time) (bool, error) {
	return v.parent.InvoicesExist(ctx, periodStart)
}
func (v *txView) InsertInvoice(ctx context.Context, inv engine.Invoice) error {
	return v.parent.InsertInvoice(ctx, inv)
}
func (v *txView) ListInvoices(ctx context.Context, periodStart time.Time) ([]engine.Invoice, error) {
	return v.parent.ListInvoices(ctx, periodStart)
}
func (v *txView) AppendAudit(ctx context.Context, e store.AuditEntry) error {
	return v.parent.AppendAudit(ctx, e)
}

type memorySnapshot struct {
	sessions    map[engine.SessionID]engine.Session
	history     []engine.HistoryEntry
	periods     map[string]engine.PayPeriod
	adjustments map[engine.AdjustmentID]engine.Adjustment
	invoices    []engine.Invoice
	audit       []store.AuditEntry
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := memorySnapshot{
		sessions:    make(map[engine.SessionID]engine.Session, len(m.sessions)),
		periods:     make(map[string]engine.PayPeriod, len(m.periods)),
		adjustments: make(map[engine.AdjustmentID]engine.Adjustment, len(m.adjustments)),
		history:     append([]engine.HistoryEntry{}, m.history...),
		invoices:    append([]engine.Invoice{}, m.invoices...),
		audit:       append([]store.AuditEntry{}, m.audit...),
	}
	for k, v := range m.sessions {
		s.sessions[k] = v
	}
	for k, v := range m.periods {
		s.periods[k] = v
	}
	for k, v := range m.adjustments {
		s.adjustments[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = s.sessions
	m.history = s.history
	m.periods = s.periods
	m.adjustments = s.adjustments
	m.invoices = s.invoices
	m.audit = s.audit
}
