package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// YEAR MONTH - Key for monthly facts (attendance, slips, leave requests)
// =============================================================================

// YearMonth identifies a calendar month. The zero value is invalid.
type YearMonth struct {
	Year  int
	Month time.Month
}

const yearMonthLayout = "2006-01"

func NewYearMonth(year int, month time.Month) YearMonth {
	return YearMonth{Year: year, Month: month}
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(yearMonthLayout, s)
	if err != nil {
		return YearMonth{}, &InvalidInputError{Field: "yearMonth", Reason: fmt.Sprintf("%q is not YYYY-MM", s)}
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func MustParseYearMonth(s string) YearMonth {
	ym, err := ParseYearMonth(s)
	if err != nil {
		panic(err)
	}
	return ym
}

func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

func (ym YearMonth) IsZero() bool { return ym.Year == 0 && ym.Month == 0 }

func (ym YearMonth) Valid() bool {
	return ym.Year > 0 && ym.Month >= time.January && ym.Month <= time.December
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// MonthName is the display label used on slips ("March 2025").
func (ym YearMonth) MonthName() string {
	return fmt.Sprintf("%s %d", ym.Month, ym.Year)
}

// FirstDay returns the first day of the month at day granularity.
func (ym YearMonth) FirstDay() TimePoint { return StartOfMonth(ym.Year, ym.Month) }

// DaysIn returns the number of calendar days in the month.
func (ym YearMonth) DaysIn() int { return EndOfMonth(ym.Year, ym.Month).Day() }

func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

func (ym YearMonth) After(other YearMonth) bool { return other.Before(ym) }

func (ym YearMonth) AddMonths(n int) YearMonth {
	return YearMonthOf(time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0))
}

// MarshalText implements encoding.TextMarshaler so YearMonth serializes as "YYYY-MM".
func (ym YearMonth) MarshalText() ([]byte, error) {
	return []byte(ym.String()), nil
}

func (ym *YearMonth) UnmarshalText(b []byte) error {
	parsed, err := ParseYearMonth(string(b))
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}
