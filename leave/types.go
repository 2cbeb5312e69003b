// Package leave implements leave entitlements, monthly attendance resolution
// and the leave request workflow on top of the generic ledger.
package leave

import (
	"fmt"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// LEAVE RESOURCE TYPE
// =============================================================================

// Type is a leave entitlement bucket. Implements generic.ResourceType.
type Type string

func (t Type) ResourceID() string     { return string(t) }
func (t Type) ResourceDomain() string { return "leave" }

var _ generic.ResourceType = Type("")

const (
	Casual Type = "casual"
	Sick   Type = "sick"
	Earned Type = "earned"
)

// AllTypes lists every bucket in bookkeeping order.
var AllTypes = []Type{Casual, Sick, Earned}

func init() {
	for _, t := range AllTypes {
		generic.RegisterResource(t)
	}
}

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case Casual, Sick, Earned:
		return Type(s), nil
	}
	return "", &generic.InvalidInputError{Field: "leaveType", Reason: fmt.Sprintf("unknown leave type %q", s)}
}

// =============================================================================
// LEAVE MODE - How a month's absences map onto balances
// =============================================================================

type Mode string

const (
	// ModeAuto drains casual, then sick, then falls back to LOP.
	ModeAuto Mode = "auto"
	// ModePaid treats casual+sick as one paid pool, then LOP.
	ModePaid Mode = "paid"
	// ModeLOP never touches balances.
	ModeLOP Mode = "lop"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModePaid, ModeLOP:
		return Mode(s), nil
	}
	return "", &generic.InvalidInputError{Field: "leaveMode", Reason: fmt.Sprintf("unknown leave mode %q", s)}
}

// =============================================================================
// ENTITLEMENTS - Policy constants per period
// =============================================================================

// Entitlements holds the per-period totals for each bucket.
type Entitlements struct {
	CasualPerYear int
	SickPerYear   int
	EarnedPerYear int
	Period        generic.PeriodConfig
}

func DefaultEntitlements() Entitlements {
	return Entitlements{
		CasualPerYear: 4,
		SickPerYear:   2,
		EarnedPerYear: 0,
		Period:        generic.PeriodConfig{Type: generic.PeriodCalendarYear},
	}
}

// Total returns the policy total for a bucket.
func (e Entitlements) Total(t Type) int {
	switch t {
	case Casual:
		return e.CasualPerYear
	case Sick:
		return e.SickPerYear
	case Earned:
		return e.EarnedPerYear
	}
	return 0
}

func (e Entitlements) Validate() error {
	for _, t := range AllTypes {
		if e.Total(t) < 0 {
			return &generic.InvalidInputError{Field: string(t) + "PerYear", Reason: "must not be negative"}
		}
	}
	return nil
}

// =============================================================================
// CONSUMPTION RESULT - Where every absent day went
// =============================================================================

// ConsumptionResult classifies a month's absences. The four public buckets
// always sum to the absent day count.
type ConsumptionResult struct {
	CasualLeavesConsumed int `json:"casualLeavesConsumed"`
	SickLeavesConsumed   int `json:"sickLeavesConsumed"`
	PaidLeaveUsed        int `json:"paidLeaveUsed"`
	LOPDays              int `json:"lopDays"`

	// Ledger split of PaidLeaveUsed; casual is drained first.
	PaidFromCasual int `json:"paidFromCasual,omitempty"`
	PaidFromSick   int `json:"paidFromSick,omitempty"`
}

// Total returns the number of classified days.
func (r ConsumptionResult) Total() int {
	return r.CasualLeavesConsumed + r.SickLeavesConsumed + r.PaidLeaveUsed + r.LOPDays
}

// Debits returns the ledger debit per bucket. Buckets with no debit are omitted.
func (r ConsumptionResult) Debits() map[Type]int {
	debits := make(map[Type]int)
	if n := r.CasualLeavesConsumed + r.PaidFromCasual; n > 0 {
		debits[Casual] = n
	}
	if n := r.SickLeavesConsumed + r.PaidFromSick; n > 0 {
		debits[Sick] = n
	}
	return debits
}
