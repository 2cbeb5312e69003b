package payroll_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/payroll"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

func TestCalculate_AutoMode_NoLOP(t *testing.T) {
	// GIVEN: 30000 base, 30-day month, 5 absences fully covered by leave
	in := payroll.Input{
		BaseSalary:  dec("30000"),
		DaysInMonth: 30,
		Consumption: leave.ConsumptionResult{CasualLeavesConsumed: 4, SickLeavesConsumed: 1},
	}

	// WHEN: Calculating with the default policy, PF not applicable
	b, err := payroll.DefaultPolicy().Calculate(in)

	// THEN: Net = 9000 + 6300 + 1500 - 200
	require.NoError(t, err)
	assertDecimal(t, "9000", b.Basic, "basic")
	assertDecimal(t, "6300", b.HRA, "hra")
	assertDecimal(t, "1500", b.FuelAllowance, "fuel")
	assertDecimal(t, "16800", b.Gross, "gross")
	assertDecimal(t, "1000", b.PerDaySalary, "perDay")
	assertDecimal(t, "0", b.AbsentDeduction, "absentDeduction")
	assertDecimal(t, "0", b.PF, "pf")
	assertDecimal(t, "200", b.ProfessionalTax, "pt")
	assertDecimal(t, "200", b.TotalDeductions, "totalDeductions")
	assertDecimal(t, "16600", b.Net, "net")
}

func TestCalculate_LOPMode_DeductsAbsentDays(t *testing.T) {
	in := payroll.Input{
		BaseSalary:  dec("30000"),
		DaysInMonth: 30,
		Consumption: leave.ConsumptionResult{LOPDays: 5},
	}

	b, err := payroll.DefaultPolicy().Calculate(in)

	require.NoError(t, err)
	assertDecimal(t, "5000", b.AbsentDeduction, "absentDeduction")
	assertDecimal(t, "5200", b.TotalDeductions, "totalDeductions")
	assertDecimal(t, "11600", b.Net, "net")
}

func TestCalculate_PFModes(t *testing.T) {
	in := payroll.Input{BaseSalary: dec("30000"), DaysInMonth: 30, PFApplies: true}

	percent := payroll.DefaultPolicy()
	b, err := percent.Calculate(in)
	require.NoError(t, err)
	assertDecimal(t, "1080", b.PF, "pf percent")
	assertDecimal(t, "15520", b.Net, "net percent")

	fixed := payroll.DefaultPolicy()
	fixed.PFMode = payroll.PFFixed
	b, err = fixed.Calculate(in)
	require.NoError(t, err)
	assertDecimal(t, "1800", b.PF, "pf fixed")
	assertDecimal(t, "14800", b.Net, "net fixed")
}

func TestCalculate_BonusAddsToGross(t *testing.T) {
	in := payroll.Input{BaseSalary: dec("30000"), DaysInMonth: 30, Bonus: dec("2500")}

	b, err := payroll.DefaultPolicy().Calculate(in)

	require.NoError(t, err)
	assertDecimal(t, "19300", b.Gross, "gross")
	assertDecimal(t, "19100", b.Net, "net")
}

func TestCalculate_Rounding(t *testing.T) {
	// 25555 * 0.30 = 7666.5 -> 7667; 7667 * 0.70 = 5366.9 -> 5367; 25555 / 31 = 824.35 -> 824
	in := payroll.Input{BaseSalary: dec("25555"), DaysInMonth: 31, Consumption: leave.ConsumptionResult{LOPDays: 2}}

	b, err := payroll.DefaultPolicy().Calculate(in)

	require.NoError(t, err)
	assertDecimal(t, "7667", b.Basic, "basic")
	assertDecimal(t, "5367", b.HRA, "hra")
	assertDecimal(t, "824", b.PerDaySalary, "perDay")
	assertDecimal(t, "1648", b.AbsentDeduction, "absentDeduction")
}

func TestCalculate_NetMayGoNegative(t *testing.T) {
	// Full month LOP on a small salary with PF.
	in := payroll.Input{
		BaseSalary:  dec("3000"),
		DaysInMonth: 30,
		PFApplies:   true,
		Consumption: leave.ConsumptionResult{LOPDays: 30},
	}

	b, err := payroll.DefaultPolicy().Calculate(in)

	require.NoError(t, err)
	assert.True(t, b.Net.IsNegative(), "net %s", b.Net)
}

func TestCalculate_InvalidInput(t *testing.T) {
	p := payroll.DefaultPolicy()
	cases := []payroll.Input{
		{BaseSalary: dec("0"), DaysInMonth: 30},
		{BaseSalary: dec("-1"), DaysInMonth: 30},
		{BaseSalary: dec("30000"), DaysInMonth: 0},
		{BaseSalary: dec("30000"), DaysInMonth: 30, Bonus: dec("-1")},
		{BaseSalary: dec("30000"), DaysInMonth: 30, Consumption: leave.ConsumptionResult{LOPDays: 31}},
	}
	for _, in := range cases {
		_, err := p.Calculate(in)
		assert.True(t, errors.Is(err, generic.ErrInvalidInput), "input %+v", in)
	}
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, payroll.DefaultPolicy().Validate())

	bad := payroll.DefaultPolicy()
	bad.BasicRatio = dec("1.5")
	assert.True(t, errors.Is(bad.Validate(), generic.ErrInvalidInput))

	bad = payroll.DefaultPolicy()
	bad.ProfessionalTax = dec("-1")
	assert.True(t, errors.Is(bad.Validate(), generic.ErrInvalidInput))

	bad = payroll.DefaultPolicy()
	bad.PFMode = "voluntary"
	assert.True(t, errors.Is(bad.Validate(), generic.ErrInvalidInput))
}

func TestProfile_PFAppliesIn(t *testing.T) {
	start := generic.MustParseYearMonth("2025-04")
	cases := []struct {
		status payroll.PFStatus
		start  *generic.YearMonth
		month  string
		want   bool
	}{
		{payroll.PFApplicable, nil, "2025-01", true},
		{payroll.PFNotApplicable, nil, "2025-01", false},
		{payroll.PFPending, nil, "2025-06", false},
		{payroll.PFPending, &start, "2025-03", false},
		{payroll.PFPending, &start, "2025-04", true},
		{payroll.PFPending, &start, "2026-01", true},
	}
	for _, tc := range cases {
		p := payroll.Profile{PF: tc.status, PFStartDate: tc.start}
		assert.Equal(t, tc.want, p.PFAppliesIn(generic.MustParseYearMonth(tc.month)), "%s %s", tc.status, tc.month)
	}
}
