package leave

import (
	"fmt"

	"github.com/warp/payroll-engine/generic"
)

// Available is the remaining balance the resolver may draw from.
type Available struct {
	Casual int
	Sick   int
}

// Resolve splits absentDays into leave consumption and LOP days.
// It is a pure function; callers pass balances read from the ledger.
//
//	auto: casual up to its balance, then sick, remainder LOP
//	paid: casual+sick as one pool (casual drained first), remainder LOP
//	lop:  every absent day is LOP
func Resolve(absentDays int, mode Mode, avail Available) (ConsumptionResult, error) {
	if absentDays < 0 {
		return ConsumptionResult{}, &generic.InvalidInputError{Field: "absentDays", Reason: "must not be negative"}
	}
	if avail.Casual < 0 || avail.Sick < 0 {
		return ConsumptionResult{}, &generic.InvalidInputError{Field: "balance", Reason: "remaining balance must not be negative"}
	}

	var r ConsumptionResult
	switch mode {
	case ModeAuto:
		r.CasualLeavesConsumed = min(absentDays, avail.Casual)
		rest := absentDays - r.CasualLeavesConsumed
		r.SickLeavesConsumed = min(rest, avail.Sick)
		r.LOPDays = rest - r.SickLeavesConsumed

	case ModePaid:
		r.PaidLeaveUsed = min(absentDays, avail.Casual+avail.Sick)
		r.PaidFromCasual = min(r.PaidLeaveUsed, avail.Casual)
		r.PaidFromSick = r.PaidLeaveUsed - r.PaidFromCasual
		r.LOPDays = absentDays - r.PaidLeaveUsed

	case ModeLOP:
		r.LOPDays = absentDays

	default:
		return ConsumptionResult{}, &generic.InvalidInputError{Field: "leaveMode", Reason: fmt.Sprintf("unknown leave mode %q", mode)}
	}

	if r.Total() != absentDays {
		return ConsumptionResult{}, fmt.Errorf("%w: classified %d of %d days in %s mode",
			generic.ErrUnclassifiedDay, r.Total(), absentDays, mode)
	}
	return r, nil
}
