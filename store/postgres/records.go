package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
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
// PROFILES
// =============================================================================

func (s *Store) SaveProfile(ctx context.Context, p payroll.Profile) error {
	var pfStart *string
	if p.PFStartDate != nil {
		pfStart = nullable(p.PFStartDate.String())
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (employee_id, name, department, designation, base_salary, pf_status, pf_start_month, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (employee_id) DO UPDATE SET
			name = EXCLUDED.name,
			department = EXCLUDED.department,
			designation = EXCLUDED.designation,
			base_salary = EXCLUDED.base_salary,
			pf_status = EXCLUDED.pf_status,
			pf_start_month = EXCLUDED.pf_start_month,
			updated_at = EXCLUDED.updated_at`,
		string(p.EmployeeID), p.Name, p.Department, p.Designation,
		p.BaseSalary.String(), string(p.PF), pfStart, p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

const profileColumns = `employee_id, name, department, designation, base_salary::text, pf_status, pf_start_month, updated_at`

func (s *Store) GetProfile(ctx context.Context, employeeID generic.EntityID) (*payroll.Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE employee_id = $1`, string(employeeID))
	p, err := scanProfile(row)
	if isNoRows(err) {
		return nil, &generic.NotFoundError{Kind: "profile", Key: string(employeeID)}
	}
	return p, err
}

func (s *Store) ListProfiles(ctx context.Context) ([]payroll.Profile, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY employee_id`)
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

func scanProfile(row pgx.Row) (*payroll.Profile, error) {
	var (
		p                          payroll.Profile
		employeeID, pfStatus, base string
		pfStart                    *string
	)
	if err := row.Scan(&employeeID, &p.Name, &p.Department, &p.Designation, &base, &pfStatus, &pfStart, &p.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}
	p.EmployeeID = generic.EntityID(employeeID)
	p.PF = payroll.PFStatus(pfStatus)
	p.UpdatedAt = p.UpdatedAt.UTC()
	var err error
	if p.BaseSalary, err = generic.ParseDecimal(base); err != nil {
		return nil, err
	}
	if pfStart != nil {
		ym, err := generic.ParseYearMonth(*pfStart)
		if err != nil {
			return nil, err
		}
		p.PFStartDate = &ym
	}
	return &p, nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (s *Store) SaveAttendance(ctx context.Context, rec leave.AttendanceRecord) error {
	consumption, err := json.Marshal(rec.Consumption)
	if err != nil {
		return fmt.Errorf("failed to encode consumption: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO attendance (employee_id, year_month, absent_days, leave_mode, consumption_json, revision, recorded_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (employee_id, year_month) DO UPDATE SET
			absent_days = EXCLUDED.absent_days,
			leave_mode = EXCLUDED.leave_mode,
			consumption_json = EXCLUDED.consumption_json,
			revision = EXCLUDED.revision,
			recorded_by = EXCLUDED.recorded_by,
			updated_at = EXCLUDED.updated_at`,
		string(rec.EmployeeID), rec.YearMonth.String(), rec.AbsentDays, string(rec.Mode),
		consumption, rec.Revision, nullable(rec.RecordedBy), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save attendance: %w", err)
	}
	return nil
}

const attendanceColumns = `employee_id, year_month, absent_days, leave_mode, consumption_json, revision, recorded_by, updated_at`

func (s *Store) GetAttendance(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*leave.AttendanceRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE employee_id = $1 AND year_month = $2`,
		string(employeeID), ym.String())
	rec, err := scanAttendance(row)
	if isNoRows(err) {
		return nil, &generic.NotFoundError{Kind: "attendance", Key: string(employeeID) + "/" + ym.String()}
	}
	return rec, err
}

func (s *Store) ListAttendance(ctx context.Context, employeeID generic.EntityID) ([]leave.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE employee_id = $1 ORDER BY year_month ASC`,
		string(employeeID))
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

func scanAttendance(row pgx.Row) (*leave.AttendanceRecord, error) {
	var (
		rec                  leave.AttendanceRecord
		employeeID, ym, mode string
		consumption          []byte
		recordedBy           *string
	)
	if err := row.Scan(&employeeID, &ym, &rec.AbsentDays, &mode, &consumption, &rec.Revision, &recordedBy, &rec.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan attendance: %w", err)
	}
	var err error
	if rec.YearMonth, err = generic.ParseYearMonth(ym); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(consumption, &rec.Consumption); err != nil {
		return nil, fmt.Errorf("failed to decode consumption: %w", err)
	}
	rec.EmployeeID = generic.EntityID(employeeID)
	rec.Mode = leave.Mode(mode)
	rec.RecordedBy = deref(recordedBy)
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

func (s *Store) CreateRequest(ctx context.Context, r leave.Request) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO leave_requests
		(id, employee_id, year_month, days, leave_type, status, reason, approved_by, comments, created_at, updated_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, string(r.EmployeeID), r.YearMonth.String(), r.Days, string(r.Type), string(r.Status),
		nullable(r.Reason), nullable(r.ApprovedBy), nullable(r.Comments),
		r.CreatedAt.UTC(), r.UpdatedAt.UTC(), r.ResolvedAt,
	)
	if err != nil {
		if isConstraint(err, "idx_leave_requests_one_pending") {
			return generic.ErrDuplicatePendingRequest
		}
		if isUniqueViolation(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to create leave request: %w", err)
	}
	return nil
}

// UpdateRequest is a compare-and-swap on status.
func (s *Store) UpdateRequest(ctx context.Context, r leave.Request, expected leave.RequestStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE leave_requests
		SET status = $1, approved_by = $2, comments = $3, updated_at = $4, resolved_at = $5
		WHERE id = $6 AND status = $7`,
		string(r.Status), nullable(r.ApprovedBy), nullable(r.Comments),
		r.UpdatedAt.UTC(), r.ResolvedAt, r.ID, string(expected),
	)
	if err != nil {
		if isConstraint(err, "idx_leave_requests_one_pending") {
			return generic.ErrDuplicatePendingRequest
		}
		return fmt.Errorf("failed to update leave request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM leave_requests WHERE id = $1)`, r.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check leave request: %w", err)
		}
		if !exists {
			return &generic.NotFoundError{Kind: "leave request", Key: r.ID}
		}
		return generic.ErrConcurrentModification
	}
	return nil
}

const requestColumns = `id, employee_id, year_month, days, leave_type, status, reason, approved_by, comments, created_at, updated_at, resolved_at`

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = $1`, id)
	r, err := scanRequest(row)
	if isNoRows(err) {
		return nil, &generic.NotFoundError{Kind: "leave request", Key: id}
	}
	return r, err
}

func (s *Store) FindPending(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*leave.Request, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM leave_requests WHERE employee_id = $1 AND year_month = $2 AND status = 'pending'`,
		string(employeeID), ym.String())
	r, err := scanRequest(row)
	if isNoRows(err) {
		return nil, &generic.NotFoundError{Kind: "pending leave request", Key: string(employeeID) + "/" + ym.String()}
	}
	return r, err
}

func (s *Store) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM leave_requests WHERE 1=1`
	var args []any
	if filter.EmployeeID != "" {
		args = append(args, string(filter.EmployeeID))
		query += fmt.Sprintf(" AND employee_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !filter.YearMonth.IsZero() {
		args = append(args, filter.YearMonth.String())
		query += fmt.Sprintf(" AND year_month = $%d", len(args))
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
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

func scanRequest(row pgx.Row) (*leave.Request, error) {
	var (
		r                                 leave.Request
		employeeID, ym, leaveType, status string
		reason, approvedBy, comments      *string
		resolvedAt                        *time.Time
	)
	err := row.Scan(&r.ID, &employeeID, &ym, &r.Days, &leaveType, &status,
		&reason, &approvedBy, &comments, &r.CreatedAt, &r.UpdatedAt, &resolvedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan leave request: %w", err)
	}
	if r.YearMonth, err = generic.ParseYearMonth(ym); err != nil {
		return nil, err
	}
	r.EmployeeID = generic.EntityID(employeeID)
	r.Type = leave.Type(leaveType)
	r.Status = leave.RequestStatus(status)
	r.Reason = deref(reason)
	r.ApprovedBy = deref(approvedBy)
	r.Comments = deref(comments)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if resolvedAt != nil {
		t := resolvedAt.UTC()
		r.ResolvedAt = &t
	}
	return &r, nil
}

// =============================================================================
// SALARY SLIPS
// =============================================================================

func (s *Store) GetSlip(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*payroll.SalarySlip, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT slip_json FROM salary_slips WHERE employee_id = $1 AND year_month = $2`,
		string(employeeID), ym.String()).Scan(&data)
	if isNoRows(err) {
		return nil, &generic.NotFoundError{Kind: "salary slip", Key: payroll.SlipKey(employeeID, ym)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load salary slip: %w", err)
	}
	return decodeSlip(data)
}

func (s *Store) PutSlip(ctx context.Context, slip payroll.SalarySlip) error {
	data, err := json.Marshal(slip)
	if err != nil {
		return fmt.Errorf("failed to encode salary slip: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO salary_slips (employee_id, year_month, department, slip_json, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (employee_id, year_month) DO UPDATE SET
			department = EXCLUDED.department,
			slip_json = EXCLUDED.slip_json,
			updated_at = EXCLUDED.updated_at`,
		string(slip.EmployeeID), slip.YearMonth.String(), slip.Department, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store salary slip: %w", err)
	}
	return nil
}

func (s *Store) ListSlips(ctx context.Context, filter payroll.SlipFilter) ([]payroll.SalarySlip, error) {
	query := `SELECT slip_json FROM salary_slips WHERE 1=1`
	var args []any
	if filter.EmployeeID != "" {
		args = append(args, string(filter.EmployeeID))
		query += fmt.Sprintf(" AND employee_id = $%d", len(args))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		query += fmt.Sprintf(" AND department = $%d", len(args))
	}
	if filter.Year != 0 {
		args = append(args, fmt.Sprintf("%04d", filter.Year))
		query += fmt.Sprintf(" AND substr(year_month, 1, 4) = $%d", len(args))
	}
	if filter.Month != 0 {
		args = append(args, fmt.Sprintf("%02d", filter.Month))
		query += fmt.Sprintf(" AND substr(year_month, 6, 2) = $%d", len(args))
	}
	query += ` ORDER BY year_month DESC, employee_id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query salary slips: %w", err)
	}
	defer rows.Close()

	var out []payroll.SalarySlip
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan salary slip: %w", err)
		}
		slip, err := decodeSlip(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *slip)
	}
	return out, rows.Err()
}

func decodeSlip(data []byte) (*payroll.SalarySlip, error) {
	var slip payroll.SalarySlip
	if err := json.Unmarshal(data, &slip); err != nil {
		return nil, fmt.Errorf("failed to decode salary slip: %w", err)
	}
	return &slip, nil
}

// =============================================================================
// BONUSES
// =============================================================================

func (s *Store) SaveBonus(ctx context.Context, b payroll.Bonus) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bonuses (employee_id, year_month, amount, note, recorded_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (employee_id, year_month) DO UPDATE SET
			amount = EXCLUDED.amount,
			note = EXCLUDED.note,
			recorded_by = EXCLUDED.recorded_by,
			updated_at = EXCLUDED.updated_at`,
		string(b.EmployeeID), b.YearMonth.String(), b.Amount.String(),
		nullable(b.Note), nullable(b.RecordedBy), b.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save bonus: %w", err)
	}
	return nil
}

func (s *Store) GetBonus(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*payroll.Bonus, error) {
	var (
		b                payroll.Bonus
		amount           string
		note, recordedBy *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT amount::text, note, recorded_by, updated_at FROM bonuses WHERE employee_id = $1 AND year_month = $2`,
		string(employeeID), ym.String()).Scan(&amount, &note, &recordedBy, &b.UpdatedAt)
	if isNoRows(err) {
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
	b.Note = deref(note)
	b.RecordedBy = deref(recordedBy)
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}
