// Package storetest is a conformance suite run against every store backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/payroll"
)

// Backend is the union of store interfaces a backend must provide.
type Backend interface {
	generic.Store
	generic.AuditLog
	leave.AttendanceStore
	leave.RequestStore
	payroll.ProfileStore
	payroll.BonusStore
	payroll.SlipRepository
}

// Run executes the suite. newBackend must return an empty store.
func Run(t *testing.T, newBackend func(t *testing.T) Backend) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b Backend)
	}{
		{"Transactions", testTransactions},
		{"TransactionIdempotency", testTransactionIdempotency},
		{"Audit", testAudit},
		{"Profiles", testProfiles},
		{"Attendance", testAttendance},
		{"RequestsOnePending", testRequestsOnePending},
		{"RequestsCompareAndSwap", testRequestsCompareAndSwap},
		{"RequestsList", testRequestsList},
		{"Slips", testSlips},
		{"Bonuses", testBonuses},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newBackend(t))
		})
	}
}

var (
	at  = time.Date(2025, time.June, 30, 12, 0, 0, 0, time.UTC)
	jun = generic.MustParseYearMonth("2025-06")
	jul = generic.MustParseYearMonth("2025-07")
)

func tx(id, key string, ym generic.YearMonth, days int) generic.Transaction {
	return generic.Transaction{
		ID:             generic.TransactionID(id),
		EntityID:       "emp-1",
		ResourceType:   leave.Casual,
		EffectiveAt:    ym,
		Delta:          generic.Days(-days),
		Type:           generic.TxConsumption,
		ReferenceID:    "ref-" + id,
		Reason:         "test",
		IdempotencyKey: key,
		CreatedBy:      "hr-1",
		CreatedAt:      generic.TimePoint{Time: at},
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func testTransactions(t *testing.T, b Backend) {
	ctx := context.Background()

	require.NoError(t, b.Append(ctx, tx("t1", "k1", jul, 2)))
	require.NoError(t, b.AppendBatch(ctx, []generic.Transaction{
		tx("t2", "k2", jun, 1),
		tx("t3", "k3", generic.MustParseYearMonth("2024-12"), 3),
	}))

	all, err := b.Load(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, generic.TransactionID("t3"), all[0].ID)
	assert.Equal(t, leave.Casual, all[1].ResourceType)
	assert.Equal(t, jun, all[1].EffectiveAt)
	assert.True(t, all[1].Delta.Value.Equal(decimal.NewFromInt(-1)))
	assert.Equal(t, generic.TxConsumption, all[1].Type)
	assert.Equal(t, "ref-t2", all[1].ReferenceID)
	assert.Equal(t, "hr-1", all[1].CreatedBy)

	ranged, err := b.LoadRange(ctx, "emp-1", generic.MustParseYearMonth("2025-01"), generic.MustParseYearMonth("2025-12"))
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	other, err := b.Load(ctx, "emp-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testTransactionIdempotency(t *testing.T, b Backend) {
	ctx := context.Background()

	require.NoError(t, b.Append(ctx, tx("t1", "k1", jun, 1)))
	exists, err := b.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, exists)

	err = b.Append(ctx, tx("t2", "k1", jun, 1))
	assert.True(t, errors.Is(err, generic.ErrDuplicateIdempotencyKey))

	// A batch with one duplicate writes nothing.
	err = b.AppendBatch(ctx, []generic.Transaction{tx("t3", "k3", jun, 1), tx("t4", "k1", jun, 1)})
	assert.True(t, errors.Is(err, generic.ErrDuplicateIdempotencyKey))
	exists, err = b.Exists(ctx, "k3")
	require.NoError(t, err)
	assert.False(t, exists)

	all, err := b.Load(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// =============================================================================
// AUDIT
// =============================================================================

func testAudit(t *testing.T, b Backend) {
	ctx := context.Background()

	entries := []generic.AuditEntry{
		{ID: "a1", Timestamp: at, ActorID: "emp-1", Action: generic.AuditRequestSubmitted, EntityID: "emp-1", Payload: map[string]any{"days": 2}},
		{ID: "a2", Timestamp: at.Add(time.Minute), ActorID: "mgr-1", Action: generic.AuditRequestApproved, EntityID: "emp-1"},
		{ID: "a3", Timestamp: at.Add(2 * time.Minute), ActorID: "hr-1", Action: generic.AuditAttendanceSaved, EntityID: "emp-2"},
	}
	for _, e := range entries {
		require.NoError(t, b.AppendAudit(ctx, e))
	}

	emp := generic.EntityID("emp-1")
	got, err := b.QueryAudit(ctx, generic.AuditFilter{EntityID: &emp})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, generic.AuditRequestSubmitted, got[0].Action)
	assert.True(t, got[0].Timestamp.Equal(at))
	assert.Contains(t, got[0].Payload, "days")

	actor := "hr-1"
	got, err = b.QueryAudit(ctx, generic.AuditFilter{ActorID: &actor})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a3", got[0].ID)

	got, err = b.QueryAudit(ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditRequestApproved, generic.AuditAttendanceSaved}})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// =============================================================================
// PROFILES, ATTENDANCE, BONUSES
// =============================================================================

func testProfiles(t *testing.T, b Backend) {
	ctx := context.Background()

	_, err := b.GetProfile(ctx, "emp-1")
	assert.True(t, errors.Is(err, generic.ErrNotFound))

	start := jul
	p := payroll.Profile{
		EmployeeID:  "emp-1",
		Name:        "Asha",
		Department:  "Engineering",
		Designation: "Engineer",
		BaseSalary:  decimal.RequireFromString("30000.50"),
		PF:          payroll.PFPending,
		PFStartDate: &start,
		UpdatedAt:   at,
	}
	require.NoError(t, b.SaveProfile(ctx, p))

	got, err := b.GetProfile(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.Name)
	assert.True(t, got.BaseSalary.Equal(p.BaseSalary))
	assert.Equal(t, payroll.PFPending, got.PF)
	require.NotNil(t, got.PFStartDate)
	assert.Equal(t, jul, *got.PFStartDate)

	// Upsert replaces.
	p.PF = payroll.PFApplicable
	p.PFStartDate = nil
	require.NoError(t, b.SaveProfile(ctx, p))
	require.NoError(t, b.SaveProfile(ctx, payroll.Profile{EmployeeID: "emp-0", BaseSalary: decimal.NewFromInt(1), PF: payroll.PFNotApplicable, UpdatedAt: at}))

	all, err := b.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, generic.EntityID("emp-0"), all[0].EmployeeID)
	assert.Equal(t, payroll.PFApplicable, all[1].PF)
	assert.Nil(t, all[1].PFStartDate)
}

func testAttendance(t *testing.T, b Backend) {
	ctx := context.Background()

	_, err := b.GetAttendance(ctx, "emp-1", jun)
	assert.True(t, errors.Is(err, generic.ErrNotFound))

	rec := leave.AttendanceRecord{
		EmployeeID:  "emp-1",
		YearMonth:   jun,
		AbsentDays:  5,
		Mode:        leave.ModePaid,
		Consumption: leave.ConsumptionResult{PaidLeaveUsed: 4, PaidFromCasual: 3, PaidFromSick: 1, LOPDays: 1},
		Revision:    1,
		RecordedBy:  "hr-1",
		UpdatedAt:   at,
	}
	require.NoError(t, b.SaveAttendance(ctx, rec))

	rec.AbsentDays = 2
	rec.Consumption = leave.ConsumptionResult{PaidLeaveUsed: 2, PaidFromCasual: 2}
	rec.Revision = 2
	require.NoError(t, b.SaveAttendance(ctx, rec))

	got, err := b.GetAttendance(ctx, "emp-1", jun)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AbsentDays)
	assert.Equal(t, 2, got.Revision)
	assert.Equal(t, leave.ModePaid, got.Mode)
	assert.Equal(t, rec.Consumption, got.Consumption)
	assert.True(t, got.UpdatedAt.Equal(at))

	rec.YearMonth = generic.MustParseYearMonth("2025-03")
	require.NoError(t, b.SaveAttendance(ctx, rec))
	list, err := b.ListAttendance(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, generic.MustParseYearMonth("2025-03"), list[0].YearMonth)
}

func testBonuses(t *testing.T, b Backend) {
	ctx := context.Background()

	_, err := b.GetBonus(ctx, "emp-1", jun)
	assert.True(t, errors.Is(err, generic.ErrNotFound))

	require.NoError(t, b.SaveBonus(ctx, payroll.Bonus{EmployeeID: "emp-1", YearMonth: jun, Amount: decimal.NewFromInt(500), UpdatedAt: at}))
	require.NoError(t, b.SaveBonus(ctx, payroll.Bonus{EmployeeID: "emp-1", YearMonth: jun, Amount: decimal.NewFromInt(750), Note: "Q2", UpdatedAt: at}))

	got, err := b.GetBonus(ctx, "emp-1", jun)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(750)))
	assert.Equal(t, "Q2", got.Note)
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

func request(id string, emp generic.EntityID, ym generic.YearMonth, created time.Time) leave.Request {
	return leave.Request{
		ID:         id,
		EmployeeID: emp,
		YearMonth:  ym,
		Days:       2,
		Type:       leave.Casual,
		Status:     leave.StatusPending,
		Reason:     "trip",
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func testRequestsOnePending(t *testing.T, b Backend) {
	ctx := context.Background()

	require.NoError(t, b.CreateRequest(ctx, request("r1", "emp-1", jun, at)))

	err := b.CreateRequest(ctx, request("r2", "emp-1", jun, at))
	assert.True(t, errors.Is(err, generic.ErrDuplicatePendingRequest))

	err = b.CreateRequest(ctx, request("r1", "emp-1", jul, at))
	assert.True(t, errors.Is(err, generic.ErrDuplicateIdempotencyKey))

	pending, err := b.FindPending(ctx, "emp-1", jun)
	require.NoError(t, err)
	assert.Equal(t, "r1", pending.ID)

	_, err = b.FindPending(ctx, "emp-1", jul)
	assert.True(t, errors.Is(err, generic.ErrNotFound))

	// Once resolved, the month accepts a new pending request.
	resolved := *pending
	resolved.Status = leave.StatusRejected
	require.NoError(t, b.UpdateRequest(ctx, resolved, leave.StatusPending))
	require.NoError(t, b.CreateRequest(ctx, request("r3", "emp-1", jun, at)))
}

func testRequestsCompareAndSwap(t *testing.T, b Backend) {
	ctx := context.Background()

	require.NoError(t, b.CreateRequest(ctx, request("r1", "emp-1", jun, at)))

	resolvedAt := at.Add(time.Hour)
	approved := request("r1", "emp-1", jun, at)
	approved.Status = leave.StatusApproved
	approved.ApprovedBy = "mgr-1"
	approved.Comments = "ok"
	approved.UpdatedAt = resolvedAt
	approved.ResolvedAt = &resolvedAt
	require.NoError(t, b.UpdateRequest(ctx, approved, leave.StatusPending))

	// Second writer expecting pending loses.
	rejected := approved
	rejected.Status = leave.StatusRejected
	err := b.UpdateRequest(ctx, rejected, leave.StatusPending)
	assert.True(t, errors.Is(err, generic.ErrConcurrentModification))

	err = b.UpdateRequest(ctx, request("missing", "emp-1", jun, at), leave.StatusPending)
	assert.True(t, errors.Is(err, generic.ErrNotFound))

	got, err := b.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
	assert.Equal(t, "mgr-1", got.ApprovedBy)
	assert.Equal(t, "ok", got.Comments)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(resolvedAt))
}

func testRequestsList(t *testing.T, b Backend) {
	ctx := context.Background()

	require.NoError(t, b.CreateRequest(ctx, request("r1", "emp-1", jun, at)))
	require.NoError(t, b.CreateRequest(ctx, request("r2", "emp-1", jul, at.Add(time.Hour))))
	require.NoError(t, b.CreateRequest(ctx, request("r3", "emp-2", jun, at.Add(2*time.Hour))))

	all, err := b.ListRequests(ctx, leave.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].ID)
	assert.Equal(t, "r1", all[2].ID)

	mine, err := b.ListRequests(ctx, leave.RequestFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	june, err := b.ListRequests(ctx, leave.RequestFilter{YearMonth: jun, Status: leave.StatusPending})
	require.NoError(t, err)
	assert.Len(t, june, 2)

	none, err := b.ListRequests(ctx, leave.RequestFilter{Status: leave.StatusApproved})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// =============================================================================
// SLIPS
// =============================================================================

func slip(emp generic.EntityID, dept string, ym generic.YearMonth, net int64) payroll.SalarySlip {
	return payroll.SalarySlip{
		ID:                string(emp) + "-" + ym.String(),
		EmployeeID:        emp,
		EmployeeName:      "Name " + string(emp),
		Department:        dept,
		YearMonth:         ym,
		MonthName:         ym.MonthName(),
		DaysInMonth:       ym.DaysIn(),
		DaysPresent:       ym.DaysIn(),
		LeaveMode:         leave.ModeAuto,
		BaseSalary:        decimal.NewFromInt(30000),
		NetSalary:         decimal.NewFromInt(net),
		ConsumptionResult: leave.ConsumptionResult{CasualLeavesConsumed: 1},
		CalculationNotes:  []string{"note"},
		CreatedAt:         at,
	}
}

func testSlips(t *testing.T, b Backend) {
	ctx := context.Background()

	_, err := b.GetSlip(ctx, "emp-1", jun)
	assert.True(t, errors.Is(err, generic.ErrNotFound))

	require.NoError(t, b.PutSlip(ctx, slip("emp-1", "Engineering", jun, 16600)))
	require.NoError(t, b.PutSlip(ctx, slip("emp-1", "Engineering", jul, 16000)))
	require.NoError(t, b.PutSlip(ctx, slip("emp-2", "Sales", jun, 12000)))

	// Replace.
	require.NoError(t, b.PutSlip(ctx, slip("emp-1", "Engineering", jun, 11600)))

	got, err := b.GetSlip(ctx, "emp-1", jun)
	require.NoError(t, err)
	assert.Equal(t, "emp-1-2025-06", got.ID)
	assert.True(t, got.NetSalary.Equal(decimal.NewFromInt(11600)))
	assert.Equal(t, 1, got.CasualLeavesConsumed)
	assert.Equal(t, []string{"note"}, got.CalculationNotes)
	assert.True(t, got.CreatedAt.Equal(at))

	all, err := b.ListSlips(ctx, payroll.SlipFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, jul, all[0].YearMonth)
	assert.Equal(t, generic.EntityID("emp-1"), all[1].EmployeeID)
	assert.Equal(t, generic.EntityID("emp-2"), all[2].EmployeeID)

	sales, err := b.ListSlips(ctx, payroll.SlipFilter{Department: "Sales"})
	require.NoError(t, err)
	assert.Len(t, sales, 1)

	june, err := b.ListSlips(ctx, payroll.SlipFilter{Year: 2025, Month: 6})
	require.NoError(t, err)
	assert.Len(t, june, 2)

	mine, err := b.ListSlips(ctx, payroll.SlipFilter{EmployeeID: "emp-1", Year: 2025})
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
