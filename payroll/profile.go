package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

// PFStatus is the tri-state provident fund applicability.
type PFStatus string

const (
	PFApplicable    PFStatus = "applicable"
	PFNotApplicable PFStatus = "not_applicable"
	// PFPending means PF starts later. Without a start date it never applies.
	PFPending PFStatus = "pending"
)

func ParsePFStatus(s string) (PFStatus, error) {
	switch PFStatus(s) {
	case PFApplicable, PFNotApplicable, PFPending:
		return PFStatus(s), nil
	}
	return "", &generic.InvalidInputError{Field: "pfApplicable", Reason: fmt.Sprintf("unknown PF status %q", s)}
}

// Profile is an employee's compensation profile.
type Profile struct {
	EmployeeID  generic.EntityID
	Name        string
	Department  string
	Designation string
	BaseSalary  decimal.Decimal
	PF          PFStatus
	// PFStartDate is only meaningful when PF is PFPending.
	PFStartDate *generic.YearMonth
	UpdatedAt   time.Time
}

func (p Profile) Validate() error {
	if p.EmployeeID == "" {
		return &generic.InvalidInputError{Field: "employeeId", Reason: "required"}
	}
	if !p.BaseSalary.IsPositive() {
		return &generic.InvalidInputError{Field: "baseSalary", Reason: "must be greater than zero"}
	}
	if _, err := ParsePFStatus(string(p.PF)); err != nil {
		return err
	}
	if p.PFStartDate != nil && !p.PFStartDate.Valid() {
		return &generic.InvalidInputError{Field: "pfStartDate", Reason: "invalid month"}
	}
	return nil
}

// PFAppliesIn reports whether PF is deducted for the month.
func (p Profile) PFAppliesIn(ym generic.YearMonth) bool {
	switch p.PF {
	case PFApplicable:
		return true
	case PFPending:
		return p.PFStartDate != nil && !ym.Before(*p.PFStartDate)
	}
	return false
}

// ProfileStore persists compensation profiles.
type ProfileStore interface {
	SaveProfile(ctx context.Context, p Profile) error
	GetProfile(ctx context.Context, employeeID generic.EntityID) (*Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
}

// =============================================================================
// BONUS
// =============================================================================

// Bonus is a one-off amount for an employee-month, read at slip generation.
type Bonus struct {
	EmployeeID generic.EntityID
	YearMonth  generic.YearMonth
	Amount     decimal.Decimal
	Note       string
	RecordedBy string
	UpdatedAt  time.Time
}

func (b Bonus) Validate() error {
	if b.EmployeeID == "" {
		return &generic.InvalidInputError{Field: "employeeId", Reason: "required"}
	}
	if !b.YearMonth.Valid() {
		return &generic.InvalidInputError{Field: "yearMonth", Reason: "missing or out of range"}
	}
	if b.Amount.IsNegative() {
		return &generic.InvalidInputError{Field: "amount", Reason: "must not be negative"}
	}
	return nil
}

// BonusStore persists bonuses with upsert semantics.
type BonusStore interface {
	SaveBonus(ctx context.Context, b Bonus) error
	GetBonus(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*Bonus, error)
}
