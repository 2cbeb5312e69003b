/*
service.go - Slip generation and lookup

PURPOSE:
  GetOrCreate is the only way a slip comes into existence. An existing
  slip is returned unchanged unless the caller forces regeneration; a
  missing slip is computed from the current profile, attendance record
  and bonus, then stored.

CONCURRENCY:
  Callers for the same (employee, month, force) share one computation
  through singleflight. The shared computation is detached from any one
  caller's cancellation; a cancelled caller stops waiting while the others
  still get the result. Different force values for the same slip are
  serialized by a per-slip lock around read-compute-put, so concurrent
  callers never store two divergent slips.

SIDE EFFECTS:
  Slip generation never writes the leave ledger. Consumption was committed
  when the attendance record was saved; the slip only reads it.

SEE ALSO:
  - calculator.go: Pure computation
  - leave/attendance.go: Source of the consumption figures
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type SlipService struct {
	Policy     Policy
	Profiles   ProfileStore
	Attendance leave.AttendanceStore
	Bonuses    BonusStore
	Slips      SlipRepository
	// Ledger supplies leavesRemaining for display; it is only read.
	Ledger *leave.Ledger
	Audit  generic.AuditLog
	Clock  generic.Clock
	Logger *zap.Logger
	// Locks serializes read-compute-put per slip.
	Locks generic.Locker

	group singleflight.Group
}

func NewSlipService(policy Policy, profiles ProfileStore, attendance leave.AttendanceStore, bonuses BonusStore, slips SlipRepository, ledger *leave.Ledger, audit generic.AuditLog, logger *zap.Logger) *SlipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlipService{
		Policy:     policy,
		Profiles:   profiles,
		Attendance: attendance,
		Bonuses:    bonuses,
		Slips:      slips,
		Ledger:     ledger,
		Audit:      audit,
		Logger:     logger,
		Locks:      generic.NewKeyedMutex(),
	}
}

// =============================================================================
// SLIPS
// =============================================================================

// GetOrCreate returns the stored slip for the month, computing and storing
// it when missing or when force is set.
func (s *SlipService) GetOrCreate(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth, force bool) (*SlipResult, error) {
	if employeeID == "" {
		return nil, &generic.InvalidInputError{Field: "employeeId", Reason: "required"}
	}
	if !ym.Valid() {
		return nil, &generic.InvalidInputError{Field: "yearMonth", Reason: "missing or out of range"}
	}

	key := fmt.Sprintf("%s|%t", SlipKey(employeeID, ym), force)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.getOrCreate(context.WithoutCancel(ctx), employeeID, ym, force)
	})
	var r singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-ch:
	}
	if r.Err != nil {
		return nil, r.Err
	}
	res := *r.Val.(*SlipResult)
	res.Slip.CalculationNotes = append([]string(nil), res.Slip.CalculationNotes...)
	return &res, nil
}

func (s *SlipService) getOrCreate(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth, force bool) (*SlipResult, error) {
	unlock, err := s.Locks.Acquire(ctx, "slip:"+SlipKey(employeeID, ym))
	if err != nil {
		return nil, fmt.Errorf("failed to lock salary slip: %w", err)
	}
	defer unlock()

	existing, err := s.Slips.GetSlip(ctx, employeeID, ym)
	if err != nil && !errors.Is(err, generic.ErrNotFound) {
		return nil, fmt.Errorf("failed to load salary slip: %w", err)
	}
	if existing != nil && !force {
		s.Logger.Debug("salary slip reused",
			zap.String("employee_id", string(employeeID)),
			zap.String("year_month", ym.String()),
		)
		return &SlipResult{
			Slip:    *existing,
			Source:  SourceExisting,
			Message: fmt.Sprintf("Salary slip for %s already exists", ym.MonthName()),
		}, nil
	}

	slip, err := s.compute(ctx, employeeID, ym)
	if err != nil {
		return nil, err
	}

	source := SourceGenerated
	message := fmt.Sprintf("Salary slip for %s generated", ym.MonthName())
	if existing != nil {
		slip.ID = existing.ID
		slip.CreatedAt = existing.CreatedAt
		source = SourceRegenerated
		message = fmt.Sprintf("Salary slip for %s regenerated", ym.MonthName())
	} else {
		slip.ID = uuid.NewString()
		slip.CreatedAt = s.Clock.Now()
	}

	if err := s.Slips.PutSlip(ctx, *slip); err != nil {
		return nil, fmt.Errorf("failed to store salary slip: %w", err)
	}

	if s.Audit != nil {
		if err := s.Audit.AppendAudit(ctx, generic.AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: s.Clock.Now(),
			ActorID:   "system",
			Action:    generic.AuditSlipGenerated,
			EntityID:  employeeID,
			Payload: map[string]any{
				"slipId":    slip.ID,
				"yearMonth": ym.String(),
				"source":    string(source),
				"netSalary": slip.NetSalary.String(),
			},
		}); err != nil {
			s.Logger.Warn("failed to write audit entry", zap.Error(err))
		}
	}

	s.Logger.Info("salary slip "+string(source),
		zap.String("employee_id", string(employeeID)),
		zap.String("year_month", ym.String()),
		zap.String("net_salary", slip.NetSalary.String()),
		zap.Int("lop_days", slip.LOPDays),
	)
	return &SlipResult{Slip: *slip, Source: source, Message: message}, nil
}

// compute assembles calculator inputs from the stores.
func (s *SlipService) compute(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*SalarySlip, error) {
	profile, err := s.Profiles.GetProfile(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	var notes []string

	var consumption leave.ConsumptionResult
	absent := 0
	mode := leave.ModeAuto
	rec, err := s.Attendance.GetAttendance(ctx, employeeID, ym)
	switch {
	case err == nil:
		consumption = rec.Consumption
		absent = rec.AbsentDays
		mode = rec.Mode
	case errors.Is(err, generic.ErrNotFound):
		notes = append(notes, fmt.Sprintf("No attendance recorded for %s; full attendance assumed", ym))
	default:
		return nil, fmt.Errorf("failed to load attendance: %w", err)
	}

	bonus := decimal.Zero
	b, err := s.Bonuses.GetBonus(ctx, employeeID, ym)
	switch {
	case err == nil:
		bonus = b.Amount
		if b.Note != "" {
			notes = append(notes, "Bonus: "+b.Note)
		}
	case errors.Is(err, generic.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to load bonus: %w", err)
	}

	pfApplies := profile.PFAppliesIn(ym)
	if profile.PF == PFPending {
		if profile.PFStartDate == nil {
			notes = append(notes, "PF pending; no start date set, not deducted")
		} else if !pfApplies {
			notes = append(notes, fmt.Sprintf("PF pending until %s; not deducted", profile.PFStartDate))
		}
	}

	daysInMonth := ym.DaysIn()
	bd, err := s.Policy.Calculate(Input{
		BaseSalary:  profile.BaseSalary,
		PFApplies:   pfApplies,
		Consumption: consumption,
		Bonus:       bonus,
		DaysInMonth: daysInMonth,
	})
	if err != nil {
		return nil, err
	}
	if bd.Net.IsNegative() {
		notes = append(notes, "Deductions exceed gross salary")
	}

	remaining := 0
	if s.Ledger != nil {
		balances, err := s.Ledger.Balances(ctx, employeeID, ym)
		if err != nil {
			return nil, err
		}
		remaining = balances.LeavesRemaining()
	}

	return &SalarySlip{
		EmployeeID:        employeeID,
		EmployeeName:      profile.Name,
		Department:        profile.Department,
		Designation:       profile.Designation,
		YearMonth:         ym,
		MonthName:         ym.MonthName(),
		DaysInMonth:       daysInMonth,
		DaysPresent:       daysInMonth - consumption.LOPDays,
		AbsentDays:        absent,
		LeaveMode:         mode,
		PFApplicable:      pfApplies,
		BaseSalary:        bd.BaseSalary,
		Basic:             bd.Basic,
		HRA:               bd.HRA,
		FuelAllowance:     bd.FuelAllowance,
		Bonus:             bd.Bonus,
		GrossSalary:       bd.Gross,
		PerDaySalary:      bd.PerDaySalary,
		AbsentDeduction:   bd.AbsentDeduction,
		PFAmount:          bd.PF,
		ProfessionalTax:   bd.ProfessionalTax,
		TotalDeductions:   bd.TotalDeductions,
		NetSalary:         bd.Net,
		ConsumptionResult: consumption,
		LeavesRemaining:   remaining,
		CalculationNotes:  notes,
	}, nil
}

// GetSlip returns a stored slip without generating one.
func (s *SlipService) GetSlip(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*SalarySlip, error) {
	return s.Slips.GetSlip(ctx, employeeID, ym)
}

// ListSlips returns salary history, newest month first.
func (s *SlipService) ListSlips(ctx context.Context, filter SlipFilter) ([]SalarySlip, error) {
	if filter.Month < 0 || filter.Month > 12 {
		return nil, &generic.InvalidInputError{Field: "month", Reason: "must be between 1 and 12"}
	}
	return s.Slips.ListSlips(ctx, filter)
}

// =============================================================================
// MONTH CLOSE
// =============================================================================

// MonthCloseReport summarizes a GenerateMonth run.
type MonthCloseReport struct {
	YearMonth generic.YearMonth           `json:"yearMonth"`
	Generated []generic.EntityID          `json:"generated"`
	Existing  []generic.EntityID          `json:"existing"`
	Failed    map[generic.EntityID]string `json:"failed,omitempty"`
}

// GenerateMonth ensures every profiled employee has a slip for the month.
// Existing slips are left alone, so repeated runs are harmless.
func (s *SlipService) GenerateMonth(ctx context.Context, ym generic.YearMonth) (*MonthCloseReport, error) {
	if !ym.Valid() {
		return nil, &generic.InvalidInputError{Field: "yearMonth", Reason: "missing or out of range"}
	}
	profiles, err := s.Profiles.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].EmployeeID < profiles[j].EmployeeID })

	report := &MonthCloseReport{YearMonth: ym}
	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := s.GetOrCreate(ctx, p.EmployeeID, ym, false)
		if err != nil {
			if report.Failed == nil {
				report.Failed = make(map[generic.EntityID]string)
			}
			report.Failed[p.EmployeeID] = err.Error()
			s.Logger.Warn("month close: slip generation failed",
				zap.String("employee_id", string(p.EmployeeID)),
				zap.String("year_month", ym.String()),
				zap.Error(err),
			)
			continue
		}
		if res.Source == SourceExisting {
			report.Existing = append(report.Existing, p.EmployeeID)
		} else {
			report.Generated = append(report.Generated, p.EmployeeID)
		}
	}

	s.Logger.Info("month close finished",
		zap.String("year_month", ym.String()),
		zap.Int("generated", len(report.Generated)),
		zap.Int("existing", len(report.Existing)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// =============================================================================
// PROFILES AND BONUSES
// =============================================================================

func (s *SlipService) SaveProfile(ctx context.Context, p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.UpdatedAt = s.Clock.Now()
	if err := s.Profiles.SaveProfile(ctx, p); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	s.Logger.Info("compensation profile saved",
		zap.String("employee_id", string(p.EmployeeID)),
		zap.String("pf_status", string(p.PF)),
	)
	return nil
}

func (s *SlipService) GetProfile(ctx context.Context, employeeID generic.EntityID) (*Profile, error) {
	return s.Profiles.GetProfile(ctx, employeeID)
}

// SaveBonus records the month's bonus. Slips already stored keep their
// figures until regenerated.
func (s *SlipService) SaveBonus(ctx context.Context, b Bonus) error {
	if err := b.Validate(); err != nil {
		return err
	}
	b.UpdatedAt = s.Clock.Now()
	if err := s.Bonuses.SaveBonus(ctx, b); err != nil {
		return fmt.Errorf("failed to save bonus: %w", err)
	}
	s.Logger.Info("bonus saved",
		zap.String("employee_id", string(b.EmployeeID)),
		zap.String("year_month", b.YearMonth.String()),
		zap.String("amount", b.Amount.String()),
	)
	return nil
}
