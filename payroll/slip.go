package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
)

// SalarySlip is the stored payroll record for one employee-month. Once
// stored it only changes through an explicit forced regeneration, which
// replaces it whole.
type SalarySlip struct {
	ID           string            `json:"id"`
	EmployeeID   generic.EntityID  `json:"employeeId"`
	EmployeeName string            `json:"employeeName"`
	Department   string            `json:"department"`
	Designation  string            `json:"designation"`
	YearMonth    generic.YearMonth `json:"yearMonth"`
	MonthName    string            `json:"monthName"`
	DaysInMonth  int               `json:"daysInMonth"`
	DaysPresent  int               `json:"daysPresent"`
	AbsentDays   int               `json:"absentDays"`
	LeaveMode    leave.Mode        `json:"leaveMode"`
	PFApplicable bool              `json:"pfApplicable"`

	BaseSalary      decimal.Decimal `json:"baseSalary"`
	Basic           decimal.Decimal `json:"basic"`
	HRA             decimal.Decimal `json:"hra"`
	FuelAllowance   decimal.Decimal `json:"fuelAllowance"`
	Bonus           decimal.Decimal `json:"bonus"`
	GrossSalary     decimal.Decimal `json:"grossSalary"`
	PerDaySalary    decimal.Decimal `json:"perDaySalary"`
	AbsentDeduction decimal.Decimal `json:"absentDeduction"`
	PFAmount        decimal.Decimal `json:"pfAmount"`
	ProfessionalTax decimal.Decimal `json:"professionalTax"`
	TotalDeductions decimal.Decimal `json:"totalDeductions"`
	NetSalary       decimal.Decimal `json:"netSalary"`

	leave.ConsumptionResult
	LeavesRemaining int `json:"leavesRemaining"`

	CalculationNotes []string  `json:"calculationNotes,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Key identifies a slip.
func (s SalarySlip) Key() string { return SlipKey(s.EmployeeID, s.YearMonth) }

func SlipKey(employeeID generic.EntityID, ym generic.YearMonth) string {
	return fmt.Sprintf("%s/%s", employeeID, ym)
}

// Source says how GetOrCreate produced a slip.
type Source string

const (
	SourceExisting    Source = "existing"
	SourceGenerated   Source = "generated"
	SourceRegenerated Source = "regenerated"
)

// SlipResult is the GetOrCreate envelope.
type SlipResult struct {
	Slip    SalarySlip `json:"slip"`
	Source  Source     `json:"source"`
	Message string     `json:"message"`
}

// SlipFilter narrows ListSlips. Zero fields match everything.
type SlipFilter struct {
	EmployeeID generic.EntityID
	Department string
	Year       int
	Month      int
}

func (f SlipFilter) Matches(s SalarySlip) bool {
	if f.EmployeeID != "" && s.EmployeeID != f.EmployeeID {
		return false
	}
	if f.Department != "" && s.Department != f.Department {
		return false
	}
	if f.Year != 0 && s.YearMonth.Year != f.Year {
		return false
	}
	if f.Month != 0 && int(s.YearMonth.Month) != f.Month {
		return false
	}
	return true
}

// SlipRepository persists slips keyed by (EmployeeID, YearMonth).
type SlipRepository interface {
	GetSlip(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*SalarySlip, error)
	// PutSlip stores the slip, replacing any prior slip for the key.
	PutSlip(ctx context.Context, slip SalarySlip) error
	// ListSlips returns matching slips, newest month first.
	ListSlips(ctx context.Context, filter SlipFilter) ([]SalarySlip, error)
}
