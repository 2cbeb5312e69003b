// Package payroll computes monthly salary slips from compensation profiles,
// resolved attendance and bonuses, and stores them idempotently.
package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// POLICY - Configurable payroll constants
// =============================================================================

// PFMode selects how the provident fund contribution is derived.
type PFMode string

const (
	// PFPercent deducts Rate * basic.
	PFPercent PFMode = "percent"
	// PFFixed deducts a flat amount per month.
	PFFixed PFMode = "fixed"
)

func ParsePFMode(s string) (PFMode, error) {
	switch PFMode(s) {
	case PFPercent, PFFixed:
		return PFMode(s), nil
	}
	return "", &generic.InvalidInputError{Field: "pfMode", Reason: fmt.Sprintf("unknown PF mode %q", s)}
}

// Policy holds the salary structure. Every ratio and amount is a policy
// input, not a literal in the calculator.
type Policy struct {
	BasicRatio      decimal.Decimal
	HRARatio        decimal.Decimal
	FuelAllowance   decimal.Decimal
	PFMode          PFMode
	PFRate          decimal.Decimal
	PFFixedAmount   decimal.Decimal
	ProfessionalTax decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		BasicRatio:      decimal.RequireFromString("0.30"),
		HRARatio:        decimal.RequireFromString("0.70"),
		FuelAllowance:   decimal.NewFromInt(1500),
		PFMode:          PFPercent,
		PFRate:          decimal.RequireFromString("0.12"),
		PFFixedAmount:   decimal.NewFromInt(1800),
		ProfessionalTax: decimal.NewFromInt(200),
	}
}

func (p Policy) Validate() error {
	one := decimal.NewFromInt(1)
	ratios := []struct {
		field string
		v     decimal.Decimal
	}{
		{"basicRatio", p.BasicRatio},
		{"hraRatio", p.HRARatio},
	}
	for _, r := range ratios {
		if !r.v.IsPositive() || r.v.GreaterThan(one) {
			return &generic.InvalidInputError{Field: r.field, Reason: "must be in (0, 1]"}
		}
	}
	if p.PFRate.IsNegative() || p.PFRate.GreaterThan(one) {
		return &generic.InvalidInputError{Field: "pfRate", Reason: "must be in [0, 1]"}
	}
	amounts := []struct {
		field string
		v     decimal.Decimal
	}{
		{"fuelAllowance", p.FuelAllowance},
		{"pfFixedAmount", p.PFFixedAmount},
		{"professionalTax", p.ProfessionalTax},
	}
	for _, a := range amounts {
		if a.v.IsNegative() {
			return &generic.InvalidInputError{Field: a.field, Reason: "must not be negative"}
		}
	}
	if _, err := ParsePFMode(string(p.PFMode)); err != nil {
		return err
	}
	return nil
}

// pfAmount returns the monthly PF deduction for an applicable employee.
func (p Policy) pfAmount(basic decimal.Decimal) decimal.Decimal {
	if p.PFMode == PFFixed {
		return p.PFFixedAmount
	}
	return round(basic.Mul(p.PFRate))
}

// round rounds to whole currency units, half away from zero.
func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}
