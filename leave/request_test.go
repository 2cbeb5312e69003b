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

func submit(emp string, month string, days int, t leave.Type) leave.SubmitInput {
	return leave.SubmitInput{
		EmployeeID: generic.EntityID(emp),
		YearMonth:  ym(month),
		Days:       days,
		Type:       t,
		Reason:     "family trip",
	}
}

func TestWorkflow_Submit_CreatesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.workflow.Submit(ctx, submit("emp-1", "2025-06", 2, leave.Casual))
	require.NoError(t, err)

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, leave.StatusPending, req.Status)
	assert.Equal(t, fixedNow, req.CreatedAt)

	// Submission alone does not touch balances.
	remaining, err := f.ledger.Remaining(ctx, "emp-1", leave.Casual, ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
}

func TestWorkflow_Submit_DuplicatePending_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: A pending request for June
	first, err := f.workflow.Submit(ctx, submit("emp-1", "2025-06", 2, leave.Casual))
	require.NoError(t, err)

	// WHEN: A second request for June
	_, err = f.workflow.Submit(ctx, submit("emp-1", "2025-06", 1, leave.Sick))

	// THEN: Rejected and the first request is unchanged
	assert.True(t, errors.Is(err, generic.ErrDuplicatePendingRequest))
	got, err := f.workflow.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, got.Status)
	assert.Equal(t, 2, got.Days)
	assert.Equal(t, leave.Casual, got.Type)

	// A different month is fine.
	_, err = f.workflow.Submit(ctx, submit("emp-1", "2025-07", 1, leave.Sick))
	assert.NoError(t, err)
}

func TestWorkflow_Submit_ExceedsRemaining_Rejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.workflow.Submit(context.Background(), submit("emp-1", "2025-06", 7, leave.Casual))
	assert.True(t, errors.Is(err, generic.ErrInsufficientBalance))
}

func TestWorkflow_Submit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, in := range []leave.SubmitInput{
		submit("emp-1", "2025-06", 0, leave.Casual),
		submit("emp-1", "2025-02", 29, leave.Casual),
		submit("emp-1", "2025-06", 1, leave.Type("annual")),
		submit("", "2025-06", 1, leave.Casual),
	} {
		_, err := f.workflow.Submit(ctx, in)
		assert.True(t, errors.Is(err, generic.ErrInvalidInput), "input %+v", in)
	}
}

func TestWorkflow_Approve_DebitsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.workflow.Submit(ctx, submit("emp-1", "2025-06", 2, leave.Sick))
	require.NoError(t, err)

	approved, err := f.workflow.Approve(ctx, req.ID, "mgr-1", "enjoy")
	require.NoError(t, err)

	assert.Equal(t, leave.StatusApproved, approved.Status)
	assert.Equal(t, "mgr-1", approved.ApprovedBy)
	assert.Equal(t, "enjoy", approved.Comments)
	require.NotNil(t, approved.ResolvedAt)

	remaining, err := f.ledger.Remaining(ctx, "emp-1", leave.Sick, ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	// After approval a new request for the month may be submitted.
	_, err = f.workflow.Submit(ctx, submit("emp-1", "2025-06", 1, leave.Casual))
	assert.NoError(t, err)
}

func TestWorkflow_Approve_InsufficientBucket_StaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: A 3-day sick request (total remaining is 6, sick is only 2)
	req, err := f.workflow.Submit(ctx, submit("emp-1", "2025-06", 3, leave.Sick))
	require.NoError(t, err)

	// WHEN: Approving
	_, err = f.workflow.Approve(ctx, req.ID, "mgr-1", "")

	// THEN: Rejected by the ledger, request unchanged
	assert.True(t, errors.Is(err, generic.ErrInsufficientBalance))
	got, err := f.workflow.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, got.Status)
}

func TestWorkflow_TerminalStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	approvedReq, err := f.workflow.Submit(ctx, submit("emp-1", "2025-06", 1, leave.Casual))
	require.NoError(t, err)
	_, err = f.workflow.Approve(ctx, approvedReq.ID, "mgr-1", "")
	require.NoError(t, err)

	rejectedReq, err := f.workflow.Submit(ctx, submit("emp-1", "2025-07", 1, leave.Casual))
	require.NoError(t, err)
	rejected, err := f.workflow.Reject(ctx, rejectedReq.ID, "mgr-1", "busy month")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, rejected.Status)

	for _, id := range []string{approvedReq.ID, rejectedReq.ID} {
		_, err = f.workflow.Approve(ctx, id, "mgr-2", "")
		assert.True(t, errors.Is(err, generic.ErrInvalidState))
		_, err = f.workflow.Reject(ctx, id, "mgr-2", "")
		assert.True(t, errors.Is(err, generic.ErrInvalidState))
	}

	// Only the approved request hit the ledger, exactly once.
	remaining, err := f.ledger.Remaining(ctx, "emp-1", leave.Casual, ym("2025-07"))
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}

func TestWorkflow_Approve_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.workflow.Approve(context.Background(), "missing", "mgr-1", "")
	assert.True(t, errors.Is(err, generic.ErrNotFound))
}

func TestWorkflow_ConcurrentApprove_DebitsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.workflow.Submit(ctx, submit("emp-1", "2025-06", 2, leave.Casual))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.workflow.Approve(ctx, req.ID, "mgr-1", ""); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	remaining, err := f.ledger.Remaining(ctx, "emp-1", leave.Casual, ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestWorkflow_ApproveAndAttendance_ShareBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: 3 casual days approved in May
	req, err := f.workflow.Submit(ctx, submit("emp-1", "2025-05", 3, leave.Casual))
	require.NoError(t, err)
	_, err = f.workflow.Approve(ctx, req.ID, "mgr-1", "")
	require.NoError(t, err)

	// WHEN: June attendance with 3 absences in auto mode
	rec, err := f.attendance.Save(ctx, attendance("emp-1", "2025-06", 3, leave.ModeAuto))
	require.NoError(t, err)

	// THEN: One casual left, then sick
	assert.Equal(t, 1, rec.Consumption.CasualLeavesConsumed)
	assert.Equal(t, 2, rec.Consumption.SickLeavesConsumed)
	assert.Equal(t, 0, rec.Consumption.LOPDays)
}

func TestWorkflow_List_And_Summary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.workflow.Submit(ctx, submit("emp-1", "2025-03", 1, leave.Casual))
	require.NoError(t, err)
	_, err = f.workflow.Approve(ctx, a.ID, "mgr-1", "")
	require.NoError(t, err)
	_, err = f.workflow.Submit(ctx, submit("emp-1", "2025-04", 1, leave.Sick))
	require.NoError(t, err)
	_, err = f.workflow.Submit(ctx, submit("emp-2", "2025-04", 1, leave.Sick))
	require.NoError(t, err)

	pending, err := f.workflow.List(ctx, leave.RequestFilter{Status: leave.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	mine, err := f.workflow.List(ctx, leave.RequestFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	summary, err := f.workflow.Summary(ctx, "emp-1", ym("2025-09"))
	require.NoError(t, err)
	assert.Equal(t, leave.BucketSummary{Used: 1, Total: 4, Remaining: 3}, summary.Casual)
	assert.Equal(t, leave.BucketSummary{Used: 0, Total: 2, Remaining: 2}, summary.Sick)
	assert.Equal(t, 5, summary.LeavesRemaining)
	assert.Equal(t, 1, summary.PendingRequests)
}
