/*
calculator.go - Salary breakdown

PURPOSE:
  Pure function from (base salary, PF applicability, leave consumption,
  bonus, days in month) to the full salary breakdown. No I/O, no clock.

FORMULAS (ratios and amounts come from Policy):
  basic            = round(baseSalary * BasicRatio)
  hra              = round(basic * HRARatio)
  gross            = basic + hra + fuelAllowance + bonus
  perDaySalary     = round(baseSalary / daysInMonth)
  absentDeduction  = perDaySalary * lopDays
  pf               = policy PF if applicable, else 0
  net              = gross - pf - professionalTax - absentDeduction

  Rounding is to whole currency units, half away from zero.

SEE ALSO:
  - policy.go: Constants
  - service.go: Assembles inputs from stores
*/
package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
)

// Input is everything the calculator needs for one employee-month.
type Input struct {
	BaseSalary  decimal.Decimal
	PFApplies   bool
	Consumption leave.ConsumptionResult
	Bonus       decimal.Decimal
	DaysInMonth int
}

// Breakdown is the computed salary.
type Breakdown struct {
	BaseSalary      decimal.Decimal
	Basic           decimal.Decimal
	HRA             decimal.Decimal
	FuelAllowance   decimal.Decimal
	Bonus           decimal.Decimal
	Gross           decimal.Decimal
	PerDaySalary    decimal.Decimal
	AbsentDeduction decimal.Decimal
	PF              decimal.Decimal
	ProfessionalTax decimal.Decimal
	TotalDeductions decimal.Decimal
	Net             decimal.Decimal
}

// Calculate computes the breakdown. Fails with InvalidInputError if base
// salary or days in month is not positive, or LOP exceeds the month.
func (p Policy) Calculate(in Input) (Breakdown, error) {
	if !in.BaseSalary.IsPositive() {
		return Breakdown{}, &generic.InvalidInputError{Field: "baseSalary", Reason: "must be greater than zero"}
	}
	if in.DaysInMonth <= 0 {
		return Breakdown{}, &generic.InvalidInputError{Field: "daysInMonth", Reason: "must be greater than zero"}
	}
	if in.Bonus.IsNegative() {
		return Breakdown{}, &generic.InvalidInputError{Field: "bonus", Reason: "must not be negative"}
	}
	lop := in.Consumption.LOPDays
	if lop < 0 || lop > in.DaysInMonth {
		return Breakdown{}, &generic.InvalidInputError{
			Field:  "lopDays",
			Reason: fmt.Sprintf("must be between 0 and %d", in.DaysInMonth),
		}
	}

	b := Breakdown{
		BaseSalary:      in.BaseSalary,
		FuelAllowance:   p.FuelAllowance,
		Bonus:           in.Bonus,
		ProfessionalTax: p.ProfessionalTax,
		PF:              decimal.Zero,
	}
	b.Basic = round(in.BaseSalary.Mul(p.BasicRatio))
	b.HRA = round(b.Basic.Mul(p.HRARatio))
	b.Gross = b.Basic.Add(b.HRA).Add(b.FuelAllowance).Add(b.Bonus)

	b.PerDaySalary = round(in.BaseSalary.Div(decimal.NewFromInt(int64(in.DaysInMonth))))
	b.AbsentDeduction = b.PerDaySalary.Mul(decimal.NewFromInt(int64(lop)))

	if in.PFApplies {
		b.PF = p.pfAmount(b.Basic)
	}

	b.TotalDeductions = b.PF.Add(b.ProfessionalTax).Add(b.AbsentDeduction)
	b.Net = b.Gross.Sub(b.TotalDeductions)
	return b, nil
}
