package generic

import "time"

// =============================================================================
// PERIOD - The boundary for entitlement accounting
// =============================================================================

// Period is an inclusive range of months. Leave entitlements are granted
// per period, so balances are always computed for a period.
type Period struct {
	Start YearMonth
	End   YearMonth
}

// Contains returns true if the month is within [Start, End].
func (p Period) Contains(ym YearMonth) bool {
	return !ym.Before(p.Start) && !ym.After(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// PeriodType defines how periods are calculated
type PeriodType string

const (
	PeriodCalendarYear PeriodType = "calendar_year" // Jan - Dec
	PeriodFiscalYear   PeriodType = "fiscal_year"   // Custom start (e.g., Apr)
)

// PeriodConfig defines how to calculate entitlement periods.
type PeriodConfig struct {
	Type PeriodType

	// For fiscal year: which month starts the fiscal year (1-12)
	FiscalYearStartMonth time.Month
}

// PeriodFor returns the period that contains the given month.
func (pc PeriodConfig) PeriodFor(ym YearMonth) Period {
	switch pc.Type {
	case PeriodFiscalYear:
		start := NewYearMonth(ym.Year, pc.FiscalYearStartMonth)
		if ym.Before(start) {
			start = NewYearMonth(ym.Year-1, pc.FiscalYearStartMonth)
		}
		return Period{Start: start, End: start.AddMonths(11)}
	default:
		return Period{Start: NewYearMonth(ym.Year, time.January), End: NewYearMonth(ym.Year, time.December)}
	}
}
