package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/payroll-engine/generic"
	"go.uber.org/zap"
)

// AttendanceRecord is the HR-entered absence fact for one employee-month.
// One record per (EmployeeID, YearMonth); a second save replaces the first.
type AttendanceRecord struct {
	EmployeeID  generic.EntityID
	YearMonth   generic.YearMonth
	AbsentDays  int
	Mode        Mode
	Consumption ConsumptionResult
	// Revision increments on every overwrite and scopes ledger idempotency keys.
	Revision   int
	RecordedBy string
	UpdatedAt  time.Time
}

// AttendanceStore persists attendance records with upsert semantics.
type AttendanceStore interface {
	SaveAttendance(ctx context.Context, rec AttendanceRecord) error
	GetAttendance(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*AttendanceRecord, error)
	ListAttendance(ctx context.Context, employeeID generic.EntityID) ([]AttendanceRecord, error)
}

// AttendanceInput is what HR submits for a month.
type AttendanceInput struct {
	EmployeeID generic.EntityID
	YearMonth  generic.YearMonth
	AbsentDays int
	Mode       Mode
	RecordedBy string
}

func (in AttendanceInput) validate() error {
	if in.EmployeeID == "" {
		return &generic.InvalidInputError{Field: "employeeId", Reason: "required"}
	}
	if !in.YearMonth.Valid() {
		return &generic.InvalidInputError{Field: "yearMonth", Reason: "missing or out of range"}
	}
	if in.AbsentDays < 0 || in.AbsentDays > in.YearMonth.DaysIn() {
		return &generic.InvalidInputError{
			Field:  "absentDays",
			Reason: fmt.Sprintf("must be between 0 and %d for %s", in.YearMonth.DaysIn(), in.YearMonth),
		}
	}
	if _, err := ParseMode(string(in.Mode)); err != nil {
		return err
	}
	return nil
}

// AttendanceService resolves absences against the ledger. Preview never
// writes; Save commits the debits exactly once per revision.
type AttendanceService struct {
	Ledger *Ledger
	Store  AttendanceStore
	Audit  generic.AuditLog
	Clock  generic.Clock
	Logger *zap.Logger
}

func NewAttendanceService(ledger *Ledger, store AttendanceStore, audit generic.AuditLog, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{Ledger: ledger, Store: store, Audit: audit, Logger: logger}
}

// Preview computes the consumption split without touching the ledger.
// Days already debited by an existing record for the month count as
// available, so preview shows what Save would do.
func (s *AttendanceService) Preview(ctx context.Context, in AttendanceInput) (ConsumptionResult, error) {
	if err := in.validate(); err != nil {
		return ConsumptionResult{}, err
	}
	existing, err := s.existing(ctx, in.EmployeeID, in.YearMonth)
	if err != nil {
		return ConsumptionResult{}, err
	}
	avail, err := s.available(ctx, in.EmployeeID, in.YearMonth, existing)
	if err != nil {
		return ConsumptionResult{}, err
	}
	return Resolve(in.AbsentDays, in.Mode, avail)
}

// Save upserts the month's record and commits its ledger debits. An
// overwrite restores the previous record's debits in the same batch.
// If the record write fails the debits are reversed and Save can be retried.
func (s *AttendanceService) Save(ctx context.Context, in AttendanceInput) (*AttendanceRecord, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	unlock, err := s.Ledger.LockEmployee(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.existing(ctx, in.EmployeeID, in.YearMonth)
	if err != nil {
		return nil, err
	}
	avail, err := s.available(ctx, in.EmployeeID, in.YearMonth, existing)
	if err != nil {
		return nil, err
	}
	result, err := Resolve(in.AbsentDays, in.Mode, avail)
	if err != nil {
		return nil, err
	}

	revision := 1
	var changes []Change
	if existing != nil {
		revision = existing.Revision + 1
		for _, t := range AllTypes {
			if n := existing.Consumption.Debits()[t]; n > 0 {
				changes = append(changes, Change{Type: t, Days: -n})
			}
		}
	}
	for _, t := range AllTypes {
		if n := result.Debits()[t]; n > 0 {
			changes = append(changes, Change{Type: t, Days: n})
		}
	}

	ref := Reference{
		ID:     attendanceRef(in.EmployeeID, in.YearMonth),
		Key:    attemptKey(fmt.Sprintf("%s-r%d", attendanceRef(in.EmployeeID, in.YearMonth), revision)),
		Reason: fmt.Sprintf("attendance %s: %d absent days (%s)", in.YearMonth, in.AbsentDays, in.Mode),
		Actor:  in.RecordedBy,
	}
	if err := s.Ledger.ApplyLocked(ctx, in.EmployeeID, in.YearMonth, changes, ref); err != nil {
		return nil, err
	}

	rec := AttendanceRecord{
		EmployeeID:  in.EmployeeID,
		YearMonth:   in.YearMonth,
		AbsentDays:  in.AbsentDays,
		Mode:        in.Mode,
		Consumption: result,
		Revision:    revision,
		RecordedBy:  in.RecordedBy,
		UpdatedAt:   s.Clock.Now(),
	}
	if err := s.Store.SaveAttendance(ctx, rec); err != nil {
		s.compensate(ctx, in, changes, ref)
		return nil, fmt.Errorf("failed to save attendance: %w", err)
	}

	if s.Audit != nil {
		if err := s.Audit.AppendAudit(ctx, generic.AuditEntry{
			ID:        ref.Key,
			Timestamp: rec.UpdatedAt,
			ActorID:   in.RecordedBy,
			Action:    generic.AuditAttendanceSaved,
			EntityID:  in.EmployeeID,
			Payload: map[string]any{
				"yearMonth":  in.YearMonth.String(),
				"absentDays": in.AbsentDays,
				"leaveMode":  string(in.Mode),
				"lopDays":    result.LOPDays,
				"revision":   revision,
			},
		}); err != nil {
			s.Logger.Warn("failed to write audit entry", zap.Error(err))
		}
	}

	s.Logger.Info("attendance saved",
		zap.String("employee_id", string(in.EmployeeID)),
		zap.String("year_month", in.YearMonth.String()),
		zap.Int("absent_days", in.AbsentDays),
		zap.String("leave_mode", string(in.Mode)),
		zap.Int("casual", result.CasualLeavesConsumed),
		zap.Int("sick", result.SickLeavesConsumed),
		zap.Int("paid", result.PaidLeaveUsed),
		zap.Int("lop", result.LOPDays),
		zap.Int("revision", revision),
	)
	return &rec, nil
}

// Get returns the stored record for a month.
func (s *AttendanceService) Get(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*AttendanceRecord, error) {
	return s.Store.GetAttendance(ctx, employeeID, ym)
}

func (s *AttendanceService) existing(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*AttendanceRecord, error) {
	rec, err := s.Store.GetAttendance(ctx, employeeID, ym)
	if errors.Is(err, generic.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load attendance: %w", err)
	}
	return rec, nil
}

func (s *AttendanceService) available(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth, existing *AttendanceRecord) (Available, error) {
	balances, err := s.Ledger.Balances(ctx, employeeID, ym)
	if err != nil {
		return Available{}, err
	}
	avail := Available{Casual: balances.Remaining(Casual), Sick: balances.Remaining(Sick)}
	if existing != nil {
		debits := existing.Consumption.Debits()
		avail.Casual += debits[Casual]
		avail.Sick += debits[Sick]
	}
	return avail, nil
}

// compensate reverses a committed batch when the record write fails.
func (s *AttendanceService) compensate(ctx context.Context, in AttendanceInput, changes []Change, ref Reference) {
	inverse := make([]Change, len(changes))
	for i, c := range changes {
		inverse[i] = Change{Type: c.Type, Days: -c.Days}
	}
	undo := ref
	undo.Key = ref.Key + "-undo"
	undo.Reason = "rollback: " + ref.Reason
	// Reverse even when the caller's context is already done.
	if err := s.Ledger.ApplyLocked(context.WithoutCancel(ctx), in.EmployeeID, in.YearMonth, inverse, undo); err != nil {
		s.Logger.Error("failed to roll back attendance debits",
			zap.String("employee_id", string(in.EmployeeID)),
			zap.String("year_month", in.YearMonth.String()),
			zap.Error(err),
		)
	}
}

func attendanceRef(employeeID generic.EntityID, ym generic.YearMonth) string {
	return fmt.Sprintf("attendance-%s-%s", employeeID, ym)
}
