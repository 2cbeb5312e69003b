package leave_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
)

func attendance(emp string, month string, absent int, mode leave.Mode) leave.AttendanceInput {
	return leave.AttendanceInput{
		EmployeeID: generic.EntityID(emp),
		YearMonth:  ym(month),
		AbsentDays: absent,
		Mode:       mode,
		RecordedBy: "hr-1",
	}
}

func TestAttendance_Preview_DoesNotWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// WHEN: Previewing 5 absent days in auto mode
	result, err := f.attendance.Preview(ctx, attendance("emp-1", "2025-06", 5, leave.ModeAuto))

	// THEN: Split is computed but nothing is committed
	require.NoError(t, err)
	assert.Equal(t, 4, result.CasualLeavesConsumed)
	assert.Equal(t, 1, result.SickLeavesConsumed)
	assert.Equal(t, 0, result.LOPDays)

	balances, err := f.ledger.Balances(ctx, "emp-1", ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 6, balances.LeavesRemaining())
	_, err = f.attendance.Get(ctx, "emp-1", ym("2025-06"))
	assert.True(t, errors.Is(err, generic.ErrNotFound))
}

func TestAttendance_Save_DebitsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.attendance.Save(ctx, attendance("emp-1", "2025-06", 5, leave.ModeAuto))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Revision)
	assert.Equal(t, fixedNow, rec.UpdatedAt)

	balances, err := f.ledger.Balances(ctx, "emp-1", ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 0, balances.Remaining(leave.Casual))
	assert.Equal(t, 1, balances.Remaining(leave.Sick))

	// Later months in the year see the reduced balance.
	next, err := f.attendance.Preview(ctx, attendance("emp-1", "2025-07", 3, leave.ModeAuto))
	require.NoError(t, err)
	assert.Equal(t, 0, next.CasualLeavesConsumed)
	assert.Equal(t, 1, next.SickLeavesConsumed)
	assert.Equal(t, 2, next.LOPDays)
}

func TestAttendance_Resave_DoesNotDoubleDebit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: 3 absent days saved
	_, err := f.attendance.Save(ctx, attendance("emp-1", "2025-06", 3, leave.ModeAuto))
	require.NoError(t, err)

	// WHEN: The same month is saved again with 2 absent days
	rec, err := f.attendance.Save(ctx, attendance("emp-1", "2025-06", 2, leave.ModeAuto))
	require.NoError(t, err)

	// THEN: The ledger reflects only the latest record
	assert.Equal(t, 2, rec.Revision)
	assert.Equal(t, 2, rec.Consumption.CasualLeavesConsumed)
	remaining, err := f.ledger.Remaining(ctx, "emp-1", leave.Casual, ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	// AND: Saving the identical record again is a no-op on balances
	_, err = f.attendance.Save(ctx, attendance("emp-1", "2025-06", 2, leave.ModeAuto))
	require.NoError(t, err)
	remaining, err = f.ledger.Remaining(ctx, "emp-1", leave.Casual, ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestAttendance_Resave_CanUseOwnPreviousDebits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: All 6 days used by June
	_, err := f.attendance.Save(ctx, attendance("emp-1", "2025-06", 6, leave.ModeAuto))
	require.NoError(t, err)

	// WHEN: June is corrected to paid mode with the same absence
	rec, err := f.attendance.Save(ctx, attendance("emp-1", "2025-06", 6, leave.ModePaid))

	// THEN: Previous debits are available again, so no LOP
	require.NoError(t, err)
	assert.Equal(t, 6, rec.Consumption.PaidLeaveUsed)
	assert.Equal(t, 0, rec.Consumption.LOPDays)

	balances, err := f.ledger.Balances(ctx, "emp-1", ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 0, balances.LeavesRemaining())
}

func TestAttendance_SwitchToLOP_RestoresBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.attendance.Save(ctx, attendance("emp-1", "2025-06", 5, leave.ModeAuto))
	require.NoError(t, err)
	_, err = f.attendance.Save(ctx, attendance("emp-1", "2025-06", 5, leave.ModeLOP))
	require.NoError(t, err)

	balances, err := f.ledger.Balances(ctx, "emp-1", ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 6, balances.LeavesRemaining())
}

func TestAttendance_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []leave.AttendanceInput{
		attendance("", "2025-06", 1, leave.ModeAuto),
		attendance("emp-1", "2025-06", -1, leave.ModeAuto),
		attendance("emp-1", "2025-06", 31, leave.ModeAuto), // June has 30 days
		attendance("emp-1", "2025-06", 1, leave.Mode("half")),
		{EmployeeID: "emp-1", AbsentDays: 1, Mode: leave.ModeAuto},
	}
	for _, in := range cases {
		_, err := f.attendance.Save(ctx, in)
		assert.True(t, errors.Is(err, generic.ErrInvalidInput), "input %+v", in)
	}
}

func TestAttendance_Save_WritesAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.attendance.Save(ctx, attendance("emp-1", "2025-06", 1, leave.ModeAuto))
	require.NoError(t, err)

	emp := generic.EntityID("emp-1")
	entries, err := f.store.QueryAudit(ctx, generic.AuditFilter{
		EntityID: &emp,
		Actions:  []generic.AuditAction{generic.AuditAttendanceSaved},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hr-1", entries[0].ActorID)
}

func TestAttendance_ConcurrentSaves_LastRecordMatchesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 6; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.attendance.Save(ctx, attendance("emp-1", "2025-06", n, leave.ModeAuto))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// THEN: Whichever save won, the ledger debits equal its consumption
	rec, err := f.attendance.Get(ctx, "emp-1", ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 6, rec.Revision)

	balances, err := f.ledger.Balances(ctx, "emp-1", ym("2025-06"))
	require.NoError(t, err)
	debits := rec.Consumption.Debits()
	assert.Equal(t, 4-debits[leave.Casual], balances.Remaining(leave.Casual))
	assert.Equal(t, 2-debits[leave.Sick], balances.Remaining(leave.Sick))
}
