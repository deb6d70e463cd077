/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements store.Store and store.TxStore using SQLite via sqlx. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  sessions:        Tutoring occurrences and their approval state
  session_history: Immutable before/after snapshots per transition
  pay_periods:     Monday-keyed weekly windows, lockable once
  adjustments:     Manual ledger entries, void-not-delete
  invoices:        One per (tutor, period), with owned invoice_lines
  audit_log:       Append-only record of every mutating action
  tutors, students, assignments: Read-side collaborator records

CONSTRAINTS:
  - pay_periods.start_date is the primary key (one period per week)
  - invoices UNIQUE(tutor_id, period_start) makes duplicate generation a
    constraint violation, not just a code-path promise
  - No UPDATE or DELETE ever touches session_history, audit_log or
    invoice rows

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  st, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  err = st.WithTx(ctx, func(tx store.Store) error { ... })

SEE ALSO:
  - store/store.go: Interface definitions
  - store/memory:   In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/store"
)

// Store implements store.TxStore using SQLite.
type Store struct {
	db *sqlx.DB
	q  sqlx.ExtContext // db outside a transaction, tx inside one
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and the pool
	// otherwise gives each connection its own ":memory:" database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, q: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tutors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		default_rate TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		tutor_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		rate_override TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT,
		weekdays_json TEXT,
		ranges_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_tutor ON assignments(tutor_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		assignment_id TEXT NOT NULL,
		tutor_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		status TEXT NOT NULL,
		mode TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		approved_by TEXT,
		approved_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions(date);
	CREATE INDEX IF NOT EXISTS idx_sessions_tutor_date ON sessions(tutor_id, date);

	-- Append-only: never updated, never deleted
	CREATE TABLE IF NOT EXISTS session_history (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		change_type TEXT NOT NULL,
		before_json TEXT NOT NULL,
		after_json TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_session ON session_history(session_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS pay_periods (
		start_date TEXT PRIMARY KEY,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'OPEN',
		locked_by TEXT,
		locked_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS adjustments (
		id TEXT PRIMARY KEY,
		tutor_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		related_session_id TEXT,
		created_by TEXT NOT NULL,
		approved_by TEXT NOT NULL,
		voided_at TEXT,
		voided_by TEXT,
		void_reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_period ON adjustments(period_start);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		tutor_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		invoice_number TEXT NOT NULL UNIQUE,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(tutor_id, period_start)
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_period ON invoices(period_start);

	CREATE TABLE IF NOT EXISTS invoice_lines (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		line_type TEXT NOT NULL,
		session_id TEXT,
		adjustment_id TEXT,
		minutes INTEGER NOT NULL DEFAULT 0,
		rate TEXT NOT NULL DEFAULT '0',
		amount TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lines_invoice ON invoice_lines(invoice_id);

	-- Append-only: never updated, never deleted
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		meta_json TEXT,
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		correlation_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	view := &Store{db: s.db, q: tx}
	if err := fn(view); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// =============================================================================
// ROW TYPES
// =============================================================================

type sessionRow struct {
	ID              string  `db:"id"`
	AssignmentID    string  `db:"assignment_id"`
	TutorID         string  `db:"tutor_id"`
	StudentID       string  `db:"student_id"`
	Date            string  `db:"date"`
	StartTime       string  `db:"start_time"`
	EndTime         string  `db:"end_time"`
	DurationMinutes int     `db:"duration_minutes"`
	Status          string  `db:"status"`
	Mode            string  `db:"mode"`
	Location        string  `db:"location"`
	Notes           string  `db:"notes"`
	ApprovedBy      *string `db:"approved_by"`
	ApprovedAt      *string `db:"approved_at"`
	CreatedAt       string  `db:"created_at"`
	UpdatedAt       string  `db:"updated_at"`
}

func toSessionRow(s engine.Session) sessionRow {
	row := sessionRow{
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
		ApprovedBy:      s.ApprovedBy,
		CreatedAt:       s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       s.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if s.ApprovedAt != nil {
		at := s.ApprovedAt.UTC().Format(time.RFC3339)
		row.ApprovedAt = &at
	}
	return row
}

func (r sessionRow) toSession() (engine.Session, error) {
	date, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return engine.Session{}, fmt.Errorf("session %s: bad date: %w", r.ID, err)
	}
	start, err := engine.ParseClock(r.StartTime)
	if err != nil {
		return engine.Session{}, fmt.Errorf("session %s: %w", r.ID, err)
	}
	end, err := engine.ParseClock(r.EndTime)
	if err != nil {
		return engine.Session{}, fmt.Errorf("session %s: %w", r.ID, err)
	}

	s := engine.Session{
		ID:           engine.SessionID(r.ID),
		AssignmentID: engine.AssignmentID(r.AssignmentID),
		TutorID:      engine.TutorID(r.TutorID),
		StudentID:    engine.StudentID(r.StudentID),
		Date:         date,
		StartTime:    start,
		EndTime:      end,
		Status:       engine.SessionStatus(r.Status),
		Mode:         r.Mode,
		Location:     r.Location,
		Notes:        r.Notes,
		ApprovedBy:   r.ApprovedBy,
		CreatedAt:    parseRFC3339(r.CreatedAt),
		UpdatedAt:    parseRFC3339(r.UpdatedAt),
	}
	if r.ApprovedAt != nil {
		at := parseRFC3339(*r.ApprovedAt)
		s.ApprovedAt = &at
	}
	return s, nil
}

func parseRFC3339(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// =============================================================================
// SESSIONS
// =============================================================================

func (s *Store) GetSession(ctx context.Context, id engine.SessionID) (*engine.Session, error) {
	var row sessionRow
	err := sqlx.GetContext(ctx, s.q, &row, `SELECT * FROM sessions WHERE id = ?`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess, err := row.toSession()
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) SaveSession(ctx context.Context, sess engine.Session) error {
	row := toSessionRow(sess)
	_, err := sqlx.NamedExecContext(ctx, s.q, `
		INSERT INTO sessions (id, assignment_id, tutor_id, student_id, date, start_time, end_time,
			duration_minutes, status, mode, location, notes, approved_by, approved_at, created_at, updated_at)
		VALUES (:id, :assignment_id, :tutor_id, :student_id, :date, :start_time, :end_time,
			:duration_minutes, :status, :mode, :location, :notes, :approved_by, :approved_at, :created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			approved_by = excluded.approved_by,
			approved_at = excluded.approved_at,
			updated_at = excluded.updated_at`, row)
	return err
}

var sessionSortColumns = map[string]string{
	"date":       "date",
	"tutor":      "tutor_id",
	"student":    "student_id",
	"created_at": "created_at",
}

func sessionWhere(f store.SessionFilter) (string, []any) {
	var conds []string
	var args []any

	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		conds = append(conds, "date >= ?")
		args = append(args, f.From.Format("2006-01-02"))
	}
	if !f.To.IsZero() {
		conds = append(conds, "date <= ?")
		args = append(args, f.To.Format("2006-01-02"))
	}
	if f.TutorID != "" {
		conds = append(conds, "tutor_id = ?")
		args = append(args, string(f.TutorID))
	}
	if f.StudentID != "" {
		conds = append(conds, "student_id = ?")
		args = append(args, string(f.StudentID))
	}
	if f.Query != "" {
		conds = append(conds, "(location LIKE ? OR notes LIKE ?)")
		q := "%" + f.Query + "%"
		args = append(args, q, q)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) ListSessions(ctx context.Context, f store.SessionFilter) ([]engine.Session, int, error) {
	where, args := sessionWhere(f)

	var total int
	if err := sqlx.GetContext(ctx, s.q, &total, "SELECT COUNT(*) FROM sessions"+where, args...); err != nil {
		return nil, 0, err
	}

	col, ok := sessionSortColumns[f.Sort]
	if !ok {
		col = "date"
	}
	dir := "ASC"
	if strings.EqualFold(f.Order, "desc") {
		dir = "DESC"
	}

	query := "SELECT * FROM sessions" + where + fmt.Sprintf(" ORDER BY %s %s, id ASC", col, dir)
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}

	var rows []sessionRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, 0, err
	}

	sessions := make([]engine.Session, 0, len(rows))
	for _, r := range rows {
		sess, err := r.toSession()
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, total, nil
}

func (s *Store) AggregateSessions(ctx context.Context, f store.SessionFilter) (store.SessionAggregates, error) {
	// Aggregates ignore the status filter by contract.
	where, args := sessionWhere(f.WithoutStatus())

	var rows []struct {
		Status  string `db:"status"`
		Count   int    `db:"cnt"`
		Minutes int    `db:"minutes"`
	}
	query := "SELECT status, COUNT(*) AS cnt, COALESCE(SUM(duration_minutes), 0) AS minutes FROM sessions" +
		where + " GROUP BY status"
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return store.SessionAggregates{}, err
	}

	agg := store.SessionAggregates{StatusCounts: make(map[engine.SessionStatus]int)}
	for _, r := range rows {
		agg.StatusCounts[engine.SessionStatus(r.Status)] = r.Count
		agg.TotalMinutes += r.Minutes
	}
	return agg, nil
}

func (s *Store) SessionsInWeek(ctx context.Context, w engine.Week, status engine.SessionStatus) ([]engine.Session, error) {
	query := `SELECT * FROM sessions WHERE date >= ? AND date <= ?`
	args := []any{w.Start.Format("2006-01-02"), w.End().Format("2006-01-02")}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY tutor_id, date, start_time`

	var rows []sessionRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, err
	}
	sessions := make([]engine.Session, 0, len(rows))
	for _, r := range rows {
		sess, err := r.toSession()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// =============================================================================
// HISTORY
// =============================================================================

func (s *Store) AppendHistory(ctx context.Context, e engine.HistoryEntry) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO session_history (id, session_id, change_type, before_json, after_json, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.SessionID), string(e.ChangeType), string(e.BeforeJSON), string(e.AfterJSON),
		e.ActorID, e.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) ListHistory(ctx context.Context, id engine.SessionID) ([]engine.HistoryEntry, error) {
	var rows []struct {
		ID         string `db:"id"`
		SessionID  string `db:"session_id"`
		ChangeType string `db:"change_type"`
		BeforeJSON string `db:"before_json"`
		AfterJSON  string `db:"after_json"`
		ActorID    string `db:"actor_id"`
		CreatedAt  string `db:"created_at"`
	}
	err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT * FROM session_history WHERE session_id = ? ORDER BY created_at DESC, id DESC`, string(id))
	if err != nil {
		return nil, err
	}

	entries := make([]engine.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, engine.HistoryEntry{
			ID:         r.ID,
			SessionID:  engine.SessionID(r.SessionID),
			ChangeType: engine.ChangeType(r.ChangeType),
			BeforeJSON: []byte(r.BeforeJSON),
			AfterJSON:  []byte(r.AfterJSON),
			ActorID:    r.ActorID,
			CreatedAt:  parseRFC3339(r.CreatedAt),
		})
	}
	return entries, nil
}

// =============================================================================
// COLLABORATOR RECORDS
// =============================================================================

type tutorRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Active      bool   `db:"active"`
	Status      string `db:"status"`
	DefaultRate string `db:"default_rate"`
}

func (r tutorRow) toTutor() *engine.Tutor {
	rate, _ := decimal.NewFromString(r.DefaultRate)
	return &engine.Tutor{
		ID:          engine.TutorID(r.ID),
		Name:        r.Name,
		Active:      r.Active,
		Status:      engine.TutorStatus(r.Status),
		DefaultRate: rate,
	}
}

func (s *Store) GetTutor(ctx context.Context, id engine.TutorID) (*engine.Tutor, error) {
	var row tutorRow
	err := sqlx.GetContext(ctx, s.q, &row, `SELECT * FROM tutors WHERE id = ?`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toTutor(), nil
}

func (s *Store) GetTutors(ctx context.Context, ids []engine.TutorID) (map[engine.TutorID]*engine.Tutor, error) {
	result := make(map[engine.TutorID]*engine.Tutor, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = string(id)
	}
	query, args, err := sqlx.In(`SELECT * FROM tutors WHERE id IN (?)`, strIDs)
	if err != nil {
		return nil, err
	}

	var rows []tutorRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, s.q.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, r := range rows {
		t := r.toTutor()
		result[t.ID] = t
	}
	return result, nil
}

type assignmentRow struct {
	ID           string  `db:"id"`
	TutorID      string  `db:"tutor_id"`
	StudentID    string  `db:"student_id"`
	RateOverride *string `db:"rate_override"`
	StartDate    string  `db:"start_date"`
	EndDate      *string `db:"end_date"`
	WeekdaysJSON *string `db:"weekdays_json"`
	RangesJSON   *string `db:"ranges_json"`
}

func (r assignmentRow) toAssignment() (*engine.Assignment, error) {
	a := &engine.Assignment{
		ID:        engine.AssignmentID(r.ID),
		TutorID:   engine.TutorID(r.TutorID),
		StudentID: engine.StudentID(r.StudentID),
	}
	if r.RateOverride != nil {
		rate, err := decimal.NewFromString(*r.RateOverride)
		if err != nil {
			return nil, fmt.Errorf("assignment %s: bad rate override: %w", r.ID, err)
		}
		a.RateOverride = &rate
	}

	start, err := time.Parse("2006-01-02", r.StartDate)
	if err != nil {
		return nil, fmt.Errorf("assignment %s: bad start date: %w", r.ID, err)
	}
	a.Window.StartDate = start
	if r.EndDate != nil {
		end, err := time.Parse("2006-01-02", *r.EndDate)
		if err != nil {
			return nil, fmt.Errorf("assignment %s: bad end date: %w", r.ID, err)
		}
		a.Window.EndDate = &end
	}
	if r.WeekdaysJSON != nil {
		if err := json.Unmarshal([]byte(*r.WeekdaysJSON), &a.Window.Weekdays); err != nil {
			return nil, fmt.Errorf("assignment %s: bad weekdays: %w", r.ID, err)
		}
	}
	if r.RangesJSON != nil {
		var ranges []struct {
			Start string `json:"start"`
			End   string `json:"end"`
		}
		if err := json.Unmarshal([]byte(*r.RangesJSON), &ranges); err != nil {
			return nil, fmt.Errorf("assignment %s: bad ranges: %w", r.ID, err)
		}
		for _, tr := range ranges {
			start, err := engine.ParseClock(tr.Start)
			if err != nil {
				return nil, fmt.Errorf("assignment %s: %w", r.ID, err)
			}
			end, err := engine.ParseClock(tr.End)
			if err != nil {
				return nil, fmt.Errorf("assignment %s: %w", r.ID, err)
			}
			a.Window.Ranges = append(a.Window.Ranges, engine.TimeRange{Start: start, End: end})
		}
	}
	return a, nil
}

func (s *Store) GetAssignment(ctx context.Context, id engine.AssignmentID) (*engine.Assignment, error) {
	var row assignmentRow
	err := sqlx.GetContext(ctx, s.q, &row, `SELECT * FROM assignments WHERE id = ?`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toAssignment()
}

// =============================================================================
// PAY PERIODS
// =============================================================================

type payPeriodRow struct {
	StartDate string  `db:"start_date"`
	EndDate   string  `db:"end_date"`
	Status    string  `db:"status"`
	LockedBy  *string `db:"locked_by"`
	LockedAt  *string `db:"locked_at"`
	CreatedAt string  `db:"created_at"`
}

func (r payPeriodRow) toPayPeriod() *engine.PayPeriod {
	start, _ := time.Parse("2006-01-02", r.StartDate)
	end, _ := time.Parse("2006-01-02", r.EndDate)
	p := &engine.PayPeriod{
		StartDate: start,
		EndDate:   end,
		Status:    engine.PayPeriodStatus(r.Status),
		LockedBy:  r.LockedBy,
		CreatedAt: parseRFC3339(r.CreatedAt),
	}
	if r.LockedAt != nil {
		at := parseRFC3339(*r.LockedAt)
		p.LockedAt = &at
	}
	return p
}

func (s *Store) GetPayPeriod(ctx context.Context, start time.Time) (*engine.PayPeriod, error) {
	var row payPeriodRow
	err := sqlx.GetContext(ctx, s.q, &row, `SELECT * FROM pay_periods WHERE start_date = ?`,
		engine.Day(start).Format("2006-01-02"))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toPayPeriod(), nil
}

func (s *Store) UpsertPayPeriod(ctx context.Context, p engine.PayPeriod) (*engine.PayPeriod, error) {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO pay_periods (start_date, end_date, status, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(start_date) DO NOTHING`,
		p.StartDate.Format("2006-01-02"), p.EndDate.Format("2006-01-02"),
		string(p.Status), p.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	return s.GetPayPeriod(ctx, p.StartDate)
}

func (s *Store) SavePayPeriod(ctx context.Context, p engine.PayPeriod) error {
	var lockedAt *string
	if p.LockedAt != nil {
		at := p.LockedAt.UTC().Format(time.RFC3339)
		lockedAt = &at
	}
	_, err := s.q.ExecContext(ctx, `
		UPDATE pay_periods SET status = ?, locked_by = ?, locked_at = ? WHERE start_date = ?`,
		string(p.Status), p.LockedBy, lockedAt, p.StartDate.Format("2006-01-02"))
	return err
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

type adjustmentRow struct {
	ID               string  `db:"id"`
	TutorID          string  `db:"tutor_id"`
	PeriodStart      string  `db:"period_start"`
	Type             string  `db:"type"`
	Amount           string  `db:"amount"`
	Reason           string  `db:"reason"`
	Status           string  `db:"status"`
	RelatedSessionID *string `db:"related_session_id"`
	CreatedBy        string  `db:"created_by"`
	ApprovedBy       string  `db:"approved_by"`
	VoidedAt         *string `db:"voided_at"`
	VoidedBy         *string `db:"voided_by"`
	VoidReason       *string `db:"void_reason"`
	CreatedAt        string  `db:"created_at"`
}

func (r adjustmentRow) toAdjustment() *engine.Adjustment {
	amount, _ := decimal.NewFromString(r.Amount)
	start, _ := time.Parse("2006-01-02", r.PeriodStart)
	a := &engine.Adjustment{
		ID:          engine.AdjustmentID(r.ID),
		TutorID:     engine.TutorID(r.TutorID),
		PeriodStart: start,
		Type:        engine.AdjustmentType(r.Type),
		Amount:      amount,
		Reason:      r.Reason,
		Status:      engine.AdjustmentStatus(r.Status),
		CreatedBy:   r.CreatedBy,
		ApprovedBy:  r.ApprovedBy,
		VoidedBy:    r.VoidedBy,
		VoidReason:  r.VoidReason,
		CreatedAt:   parseRFC3339(r.CreatedAt),
	}
	if r.RelatedSessionID != nil {
		id := engine.SessionID(*r.RelatedSessionID)
		a.RelatedSessionID = &id
	}
	if r.VoidedAt != nil {
		at := parseRFC3339(*r.VoidedAt)
		a.VoidedAt = &at
	}
	return a
}

func (s *Store) InsertAdjustment(ctx context.Context, a engine.Adjustment) error {
	var related *string
	if a.RelatedSessionID != nil {
		id := string(*a.RelatedSessionID)
		related = &id
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO adjustments (id, tutor_id, period_start, type, amount, reason, status,
			related_session_id, created_by, approved_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), string(a.TutorID), a.PeriodStart.Format("2006-01-02"), string(a.Type),
		a.Amount.String(), a.Reason, string(a.Status), related, a.CreatedBy, a.ApprovedBy,
		a.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) GetAdjustment(ctx context.Context, id engine.AdjustmentID) (*engine.Adjustment, error) {
	var row adjustmentRow
	err := sqlx.GetContext(ctx, s.q, &row, `SELECT * FROM adjustments WHERE id = ?`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toAdjustment(), nil
}

func (s *Store) ListAdjustments(ctx context.Context, periodStart time.Time) ([]engine.Adjustment, error) {
	var rows []adjustmentRow
	err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT * FROM adjustments WHERE period_start = ? ORDER BY created_at, id`,
		engine.Day(periodStart).Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	adjustments := make([]engine.Adjustment, 0, len(rows))
	for _, r := range rows {
		adjustments = append(adjustments, *r.toAdjustment())
	}
	return adjustments, nil
}

func (s *Store) SaveAdjustmentVoid(ctx context.Context, a engine.Adjustment) error {
	var voidedAt *string
	if a.VoidedAt != nil {
		at := a.VoidedAt.UTC().Format(time.RFC3339)
		voidedAt = &at
	}
	_, err := s.q.ExecContext(ctx, `
		UPDATE adjustments SET voided_at = ?, voided_by = ?, void_reason = ? WHERE id = ?`,
		voidedAt, a.VoidedBy, a.VoidReason, string(a.ID))
	return err
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *Store) InvoicesExist(ctx context.Context, periodStart time.Time) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, s.q, &count, `SELECT COUNT(*) FROM invoices WHERE period_start = ?`,
		engine.Day(periodStart).Format("2006-01-02"))
	return count > 0, err
}

func (s *Store) InsertInvoice(ctx context.Context, inv engine.Invoice) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO invoices (id, tutor_id, period_start, period_end, invoice_number, total_amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(inv.ID), string(inv.TutorID), inv.PeriodStart.Format("2006-01-02"),
		inv.PeriodEnd.Format("2006-01-02"), inv.Number, inv.TotalAmount.String(),
		string(inv.Status), inv.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}

	for _, line := range inv.Lines {
		var sessionID, adjustmentID *string
		if line.SessionID != nil {
			id := string(*line.SessionID)
			sessionID = &id
		}
		if line.AdjustmentID != nil {
			id := string(*line.AdjustmentID)
			adjustmentID = &id
		}
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO invoice_lines (id, invoice_id, line_type, session_id, adjustment_id, minutes, rate, amount)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID, string(inv.ID), string(line.Type), sessionID, adjustmentID,
			line.Minutes, line.Rate.String(), line.Amount.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListInvoices(ctx context.Context, periodStart time.Time) ([]engine.Invoice, error) {
	var rows []struct {
		ID            string `db:"id"`
		TutorID       string `db:"tutor_id"`
		PeriodStart   string `db:"period_start"`
		PeriodEnd     string `db:"period_end"`
		InvoiceNumber string `db:"invoice_number"`
		TotalAmount   string `db:"total_amount"`
		Status        string `db:"status"`
		CreatedAt     string `db:"created_at"`
	}
	err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT * FROM invoices WHERE period_start = ? ORDER BY tutor_id`,
		engine.Day(periodStart).Format("2006-01-02"))
	if err != nil {
		return nil, err
	}

	invoices := make([]engine.Invoice, 0, len(rows))
	for _, r := range rows {
		start, _ := time.Parse("2006-01-02", r.PeriodStart)
		end, _ := time.Parse("2006-01-02", r.PeriodEnd)
		total, _ := decimal.NewFromString(r.TotalAmount)
		inv := engine.Invoice{
			ID:          engine.InvoiceID(r.ID),
			TutorID:     engine.TutorID(r.TutorID),
			PeriodStart: start,
			PeriodEnd:   end,
			Number:      r.InvoiceNumber,
			TotalAmount: total,
			Status:      engine.InvoiceStatus(r.Status),
			CreatedAt:   parseRFC3339(r.CreatedAt),
		}

		var lineRows []struct {
			ID           string  `db:"id"`
			InvoiceID    string  `db:"invoice_id"`
			LineType     string  `db:"line_type"`
			SessionID    *string `db:"session_id"`
			AdjustmentID *string `db:"adjustment_id"`
			Minutes      int     `db:"minutes"`
			Rate         string  `db:"rate"`
			Amount       string  `db:"amount"`
		}
		err := sqlx.SelectContext(ctx, s.q, &lineRows,
			`SELECT * FROM invoice_lines WHERE invoice_id = ? ORDER BY id`, r.ID)
		if err != nil {
			return nil, err
		}
		for _, lr := range lineRows {
			rate, _ := decimal.NewFromString(lr.Rate)
			amount, _ := decimal.NewFromString(lr.Amount)
			line := engine.InvoiceLine{
				ID:        lr.ID,
				InvoiceID: inv.ID,
				Type:      engine.InvoiceLineType(lr.LineType),
				Minutes:   lr.Minutes,
				Rate:      rate,
				Amount:    amount,
			}
			if lr.SessionID != nil {
				id := engine.SessionID(*lr.SessionID)
				line.SessionID = &id
			}
			if lr.AdjustmentID != nil {
				id := engine.AdjustmentID(*lr.AdjustmentID)
				line.AdjustmentID = &id
			}
			inv.Lines = append(inv.Lines, line)
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e store.AuditEntry) error {
	var meta []byte
	if e.Meta != nil {
		meta, _ = json.Marshal(e.Meta)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, actor_role, action, entity_type, entity_id,
			meta_json, ip, user_agent, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ActorID, e.ActorRole, e.Action, e.EntityType, e.EntityID,
		string(meta), e.IP, e.UserAgent, e.CorrelationID, e.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// CountAudit returns the number of audit entries matching an action and
// entity id. Used by tests and reconciliation reporting.
func (s *Store) CountAudit(ctx context.Context, action, entityID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, s.q, &count,
		`SELECT COUNT(*) FROM audit_log WHERE action = ? AND entity_id = ?`, action, entityID)
	return count, err
}

// =============================================================================
// FIXTURES - Collaborator records are read-only to the engine; these
// setters exist for seeding and tests.
// =============================================================================

func (s *Store) SaveTutor(ctx context.Context, t engine.Tutor) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO tutors (id, name, active, status, default_rate) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, active = excluded.active,
			status = excluded.status, default_rate = excluded.default_rate`,
		string(t.ID), t.Name, t.Active, string(t.Status), t.DefaultRate.String())
	return err
}

func (s *Store) SaveStudent(ctx context.Context, st engine.Student) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO students (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`, string(st.ID), st.Name)
	return err
}

func (s *Store) SaveAssignment(ctx context.Context, a engine.Assignment) error {
	var rateOverride *string
	if a.RateOverride != nil {
		r := a.RateOverride.String()
		rateOverride = &r
	}
	var endDate *string
	if a.Window.EndDate != nil {
		d := a.Window.EndDate.Format("2006-01-02")
		endDate = &d
	}
	var weekdaysJSON, rangesJSON *string
	if len(a.Window.Weekdays) > 0 {
		b, _ := json.Marshal(a.Window.Weekdays)
		j := string(b)
		weekdaysJSON = &j
	}
	if len(a.Window.Ranges) > 0 {
		type jsonRange struct {
			Start string `json:"start"`
			End   string `json:"end"`
		}
		ranges := make([]jsonRange, len(a.Window.Ranges))
		for i, r := range a.Window.Ranges {
			ranges[i] = jsonRange{Start: r.Start.String(), End: r.End.String()}
		}
		b, _ := json.Marshal(ranges)
		j := string(b)
		rangesJSON = &j
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO assignments (id, tutor_id, student_id, rate_override, start_date, end_date, weekdays_json, ranges_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET rate_override = excluded.rate_override,
			start_date = excluded.start_date, end_date = excluded.end_date,
			weekdays_json = excluded.weekdays_json, ranges_json = excluded.ranges_json`,
		string(a.ID), string(a.TutorID), string(a.StudentID), rateOverride,
		a.Window.StartDate.Format("2006-01-02"), endDate, weekdaysJSON, rangesJSON)
	return err
}
