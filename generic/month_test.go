package generic_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/generic"
)

func TestYearMonth_ParseAndFormat(t *testing.T) {
	ym, err := generic.ParseYearMonth("2024-02")
	require.NoError(t, err)

	assert.Equal(t, 2024, ym.Year)
	assert.Equal(t, time.February, ym.Month)
	assert.Equal(t, "2024-02", ym.String())
	assert.Equal(t, "February 2024", ym.MonthName())
	assert.Equal(t, 29, ym.DaysIn())
	assert.Equal(t, 28, generic.MustParseYearMonth("2025-02").DaysIn())
	assert.Equal(t, 31, generic.MustParseYearMonth("2025-12").DaysIn())
}

func TestYearMonth_ParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "2025", "2025-13", "2025/06", "June 2025"} {
		_, err := generic.ParseYearMonth(s)
		assert.True(t, errors.Is(err, generic.ErrInvalidInput), "input %q", s)
	}
}

func TestYearMonth_Ordering(t *testing.T) {
	a := generic.MustParseYearMonth("2024-12")
	b := generic.MustParseYearMonth("2025-01")

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, a.Before(a))
	assert.Equal(t, b, a.AddMonths(1))
	assert.Equal(t, a, b.AddMonths(-1))
	assert.Equal(t, generic.MustParseYearMonth("2026-01"), b.AddMonths(12))
}

func TestYearMonth_JSON(t *testing.T) {
	type wrapper struct {
		Month generic.YearMonth `json:"month"`
	}
	data, err := json.Marshal(wrapper{Month: generic.MustParseYearMonth("2025-06")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"month":"2025-06"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"month":"2023-11"}`), &w))
	assert.Equal(t, generic.MustParseYearMonth("2023-11"), w.Month)

	assert.Error(t, json.Unmarshal([]byte(`{"month":"11-2023"}`), &w))
}

func TestPeriodConfig_PeriodFor(t *testing.T) {
	calendar := generic.PeriodConfig{Type: generic.PeriodCalendarYear}
	p := calendar.PeriodFor(generic.MustParseYearMonth("2025-06"))
	assert.Equal(t, "[2025-01, 2025-12]", p.String())
	assert.True(t, p.Contains(generic.MustParseYearMonth("2025-12")))
	assert.False(t, p.Contains(generic.MustParseYearMonth("2026-01")))

	fiscal := generic.PeriodConfig{Type: generic.PeriodFiscalYear, FiscalYearStartMonth: time.April}
	assert.Equal(t, "[2024-04, 2025-03]", fiscal.PeriodFor(generic.MustParseYearMonth("2025-03")).String())
	assert.Equal(t, "[2025-04, 2026-03]", fiscal.PeriodFor(generic.MustParseYearMonth("2025-04")).String())
}
