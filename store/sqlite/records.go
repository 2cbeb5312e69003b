package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/payroll"
)

var (
	_ generic.Store          = (*Store)(nil)
	_ generic.AuditLog       = (*Store)(nil)
	_ payroll.ProfileStore   = (*Store)(nil)
	_ payroll.BonusStore     = (*Store)(nil)
	_ payroll.SlipRepository = (*Store)(nil)
	_ leave.AttendanceStore  = (*Store)(nil)
	_ leave.RequestStore     = (*Store)(nil)
)

// =============================================================================
// PROFILES (payroll.ProfileStore)
// =============================================================================

func (s *Store) SaveProfile(ctx context.Context, p payroll.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pfStart sql.NullString
	if p.PFStartDate != nil {
		pfStart = nullString(p.PFStartDate.String())
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (employee_id, name, department, designation, base_salary, pf_status, pf_start_month, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id) DO UPDATE SET
			name = excluded.name,
			department = excluded.department,
			designation = excluded.designation,
			base_salary = excluded.base_salary,
			pf_status = excluded.pf_status,
			pf_start_month = excluded.pf_start_month,
			updated_at = excluded.updated_at`,
		p.EmployeeID, p.Name, p.Department, p.Designation,
		p.BaseSalary.String(), p.PF, pfStart,
		p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

const profileColumns = `employee_id, name, department, designation, base_salary, pf_status, pf_start_month, updated_at`

func (s *Store) GetProfile(ctx context.Context, employeeID generic.EntityID) (*payroll.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE employee_id = ?`, employeeID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "profile", Key: string(employeeID)}
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]payroll.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY employee_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var out []payroll.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*payroll.Profile, error) {
	var (
		p          payroll.Profile
		baseSalary string
		pfStart    sql.NullString
		updatedAt  string
	)
	if err := row.Scan(&p.EmployeeID, &p.Name, &p.Department, &p.Designation, &baseSalary, &p.PF, &pfStart, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}
	var err error
	if p.BaseSalary, err = generic.ParseDecimal(baseSalary); err != nil {
		return nil, err
	}
	if pfStart.Valid {
		ym, err := generic.ParseYearMonth(pfStart.String)
		if err != nil {
			return nil, err
		}
		p.PFStartDate = &ym
	}
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// =============================================================================
// ATTENDANCE (leave.AttendanceStore)
// =============================================================================

func (s *Store) SaveAttendance(ctx context.Context, rec leave.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	consumption, err := json.Marshal(rec.Consumption)
	if err != nil {
		return fmt.Errorf("failed to encode consumption: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attendance (employee_id, year_month, absent_days, leave_mode, consumption_json, revision, recorded_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, year_month) DO UPDATE SET
			absent_days = excluded.absent_days,
			leave_mode = excluded.leave_mode,
			consumption_json = excluded.consumption_json,
			revision = excluded.revision,
			recorded_by = excluded.recorded_by,
			updated_at = excluded.updated_at`,
		rec.EmployeeID, rec.YearMonth.String(), rec.AbsentDays, rec.Mode,
		string(consumption), rec.Revision, nullString(rec.RecordedBy),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save attendance: %w", err)
	}
	return nil
}

const attendanceColumns = `employee_id, year_month, absent_days, leave_mode, consumption_json, revision, recorded_by, updated_at`

func (s *Store) GetAttendance(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*leave.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE employee_id = ? AND year_month = ?`,
		employeeID, ym.String())
	rec, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "attendance", Key: string(employeeID) + "/" + ym.String()}
	}
	return rec, err
}

func (s *Store) ListAttendance(ctx context.Context, employeeID generic.EntityID) ([]leave.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE employee_id = ? ORDER BY year_month ASC`,
		employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var out []leave.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanAttendance(row scanner) (*leave.AttendanceRecord, error) {
	var (
		rec         leave.AttendanceRecord
		ym          string
		consumption string
		recordedBy  sql.NullString
		updatedAt   string
	)
	if err := row.Scan(&rec.EmployeeID, &ym, &rec.AbsentDays, &rec.Mode, &consumption, &rec.Revision, &recordedBy, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan attendance: %w", err)
	}
	var err error
	if rec.YearMonth, err = generic.ParseYearMonth(ym); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(consumption), &rec.Consumption); err != nil {
		return nil, fmt.Errorf("failed to decode consumption: %w", err)
	}
	rec.RecordedBy = recordedBy.String
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

// =============================================================================
// LEAVE REQUESTS (leave.RequestStore)
// =============================================================================

func (s *Store) CreateRequest(ctx context.Context, r leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_requests
		(id, employee_id, year_month, days, leave_type, status, reason, approved_by, comments, created_at, updated_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.EmployeeID, r.YearMonth.String(), r.Days, r.Type, r.Status,
		nullString(r.Reason), nullString(r.ApprovedBy), nullString(r.Comments),
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.UpdatedAt.UTC().Format(time.RFC3339Nano),
		nullTime(r.ResolvedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "leave_requests.employee_id") {
				return generic.ErrDuplicatePendingRequest
			}
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to create leave request: %w", err)
	}
	return nil
}

// UpdateRequest is a compare-and-swap on status.
func (s *Store) UpdateRequest(ctx context.Context, r leave.Request, expected leave.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE leave_requests
		SET status = ?, approved_by = ?, comments = ?, updated_at = ?, resolved_at = ?
		WHERE id = ? AND status = ?`,
		r.Status, nullString(r.ApprovedBy), nullString(r.Comments),
		r.UpdatedAt.UTC().Format(time.RFC3339Nano), nullTime(r.ResolvedAt),
		r.ID, expected,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicatePendingRequest
		}
		return fmt.Errorf("failed to update leave request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update leave request: %w", err)
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leave_requests WHERE id = ?`, r.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check leave request: %w", err)
		}
		if exists == 0 {
			return &generic.NotFoundError{Kind: "leave request", Key: r.ID}
		}
		return generic.ErrConcurrentModification
	}
	return nil
}

const requestColumns = `id, employee_id, year_month, days, leave_type, status, reason, approved_by, comments, created_at, updated_at, resolved_at`

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "leave request", Key: id}
	}
	return r, err
}

func (s *Store) FindPending(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM leave_requests WHERE employee_id = ? AND year_month = ? AND status = 'pending'`,
		employeeID, ym.String())
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "pending leave request", Key: string(employeeID) + "/" + ym.String()}
	}
	return r, err
}

func (s *Store) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + requestColumns + ` FROM leave_requests WHERE 1=1`
	var args []any
	if filter.EmployeeID != "" {
		query += ` AND employee_id = ?`
		args = append(args, filter.EmployeeID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if !filter.YearMonth.IsZero() {
		query += ` AND year_month = ?`
		args = append(args, filter.YearMonth.String())
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave requests: %w", err)
	}
	defer rows.Close()

	var out []leave.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRequest(row scanner) (*leave.Request, error) {
	var (
		r                            leave.Request
		ym                           string
		reason, approvedBy, comments sql.NullString
		createdAt, updatedAt         string
		resolvedAt                   sql.NullString
	)
	err := row.Scan(&r.ID, &r.EmployeeID, &ym, &r.Days, &r.Type, &r.Status,
		&reason, &approvedBy, &comments, &createdAt, &updatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan leave request: %w", err)
	}
	if r.YearMonth, err = generic.ParseYearMonth(ym); err != nil {
		return nil, err
	}
	r.Reason = reason.String
	r.ApprovedBy = approvedBy.String
	r.Comments = comments.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	if resolvedAt.Valid {
		t := parseTime(resolvedAt.String)
		r.ResolvedAt = &t
	}
	return &r, nil
}

// =============================================================================
// SALARY SLIPS (payroll.SlipRepository)
// =============================================================================

func (s *Store) GetSlip(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*payroll.SalarySlip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var slipJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT slip_json FROM salary_slips WHERE employee_id = ? AND year_month = ?`,
		employeeID, ym.String()).Scan(&slipJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "salary slip", Key: payroll.SlipKey(employeeID, ym)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load salary slip: %w", err)
	}
	return decodeSlip(slipJSON)
}

// PutSlip replaces any existing slip for the key.
func (s *Store) PutSlip(ctx context.Context, slip payroll.SalarySlip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(slip)
	if err != nil {
		return fmt.Errorf("failed to encode salary slip: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO salary_slips (employee_id, year_month, department, slip_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, year_month) DO UPDATE SET
			department = excluded.department,
			slip_json = excluded.slip_json,
			updated_at = excluded.updated_at`,
		slip.EmployeeID, slip.YearMonth.String(), slip.Department, string(data),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to store salary slip: %w", err)
	}
	return nil
}

func (s *Store) ListSlips(ctx context.Context, filter payroll.SlipFilter) ([]payroll.SalarySlip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT slip_json FROM salary_slips WHERE 1=1`
	var args []any
	if filter.EmployeeID != "" {
		query += ` AND employee_id = ?`
		args = append(args, filter.EmployeeID)
	}
	if filter.Department != "" {
		query += ` AND department = ?`
		args = append(args, filter.Department)
	}
	if filter.Year != 0 {
		query += ` AND substr(year_month, 1, 4) = ?`
		args = append(args, fmt.Sprintf("%04d", filter.Year))
	}
	if filter.Month != 0 {
		query += ` AND substr(year_month, 6, 2) = ?`
		args = append(args, fmt.Sprintf("%02d", filter.Month))
	}
	query += ` ORDER BY year_month DESC, employee_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query salary slips: %w", err)
	}
	defer rows.Close()

	var out []payroll.SalarySlip
	for rows.Next() {
		var slipJSON string
		if err := rows.Scan(&slipJSON); err != nil {
			return nil, fmt.Errorf("failed to scan salary slip: %w", err)
		}
		slip, err := decodeSlip(slipJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, *slip)
	}
	return out, rows.Err()
}

func decodeSlip(data string) (*payroll.SalarySlip, error) {
	var slip payroll.SalarySlip
	if err := json.Unmarshal([]byte(data), &slip); err != nil {
		return nil, fmt.Errorf("failed to decode salary slip: %w", err)
	}
	return &slip, nil
}

// =============================================================================
// BONUSES (payroll.BonusStore)
// =============================================================================

func (s *Store) SaveBonus(ctx context.Context, b payroll.Bonus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bonuses (employee_id, year_month, amount, note, recorded_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, year_month) DO UPDATE SET
			amount = excluded.amount,
			note = excluded.note,
			recorded_by = excluded.recorded_by,
			updated_at = excluded.updated_at`,
		b.EmployeeID, b.YearMonth.String(), b.Amount.String(),
		nullString(b.Note), nullString(b.RecordedBy),
		b.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save bonus: %w", err)
	}
	return nil
}

func (s *Store) GetBonus(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*payroll.Bonus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		b                payroll.Bonus
		amount           string
		note, recordedBy sql.NullString
		updatedAt        string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT amount, note, recorded_by, updated_at FROM bonuses WHERE employee_id = ? AND year_month = ?`,
		employeeID, ym.String()).Scan(&amount, &note, &recordedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "bonus", Key: payroll.SlipKey(employeeID, ym)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bonus: %w", err)
	}
	if b.Amount, err = generic.ParseDecimal(amount); err != nil {
		return nil, err
	}
	b.EmployeeID = employeeID
	b.YearMonth = ym
	b.Note = note.String
	b.RecordedBy = recordedBy.String
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}
