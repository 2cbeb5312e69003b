package leave_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/store/memory"
)

// =============================================================================
// RECORD WRITE FAILURES
// =============================================================================

var errWriteFailed = errors.New("write failed")

// flakyStore fails the next N record writes, then delegates to memory.
type flakyStore struct {
	*memory.Store
	failAttendance int
	failRequests   int
}

func (s *flakyStore) SaveAttendance(ctx context.Context, rec leave.AttendanceRecord) error {
	if s.failAttendance > 0 {
		s.failAttendance--
		return errWriteFailed
	}
	return s.Store.SaveAttendance(ctx, rec)
}

func (s *flakyStore) UpdateRequest(ctx context.Context, req leave.Request, expected leave.RequestStatus) error {
	if s.failRequests > 0 {
		s.failRequests--
		return errWriteFailed
	}
	return s.Store.UpdateRequest(ctx, req, expected)
}

func newFlakyFixture(t *testing.T) (*fixture, *flakyStore) {
	t.Helper()
	f := newFixture(t)
	flaky := &flakyStore{Store: f.store}
	f.attendance.Store = flaky
	f.workflow.Store = flaky
	return f, flaky
}

func TestAttendance_Save_RetryAfterRecordWriteFailure(t *testing.T) {
	f, flaky := newFlakyFixture(t)
	ctx := context.Background()

	// GIVEN: The attendance record write fails once
	flaky.failAttendance = 1

	// WHEN: Saving 3 absent days
	_, err := f.attendance.Save(ctx, attendance("emp-1", "2025-06", 3, leave.ModeAuto))

	// THEN: The error surfaces and the debits were reversed
	require.ErrorIs(t, err, errWriteFailed)
	balances, err := f.ledger.Balances(ctx, "emp-1", ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 6, balances.LeavesRemaining())
	_, err = f.attendance.Get(ctx, "emp-1", ym("2025-06"))
	assert.True(t, errors.Is(err, generic.ErrNotFound))

	// WHEN: Retrying the same save
	rec, err := f.attendance.Save(ctx, attendance("emp-1", "2025-06", 3, leave.ModeAuto))

	// THEN: It commits exactly one set of debits
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Revision)
	balances, err = f.ledger.Balances(ctx, "emp-1", ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 1, balances.Remaining(leave.Casual))
	assert.Equal(t, 2, balances.Remaining(leave.Sick))
}

func TestAttendance_Overwrite_RetryAfterRecordWriteFailure(t *testing.T) {
	f, flaky := newFlakyFixture(t)
	ctx := context.Background()

	// GIVEN: June saved with 2 absent days
	_, err := f.attendance.Save(ctx, attendance("emp-1", "2025-06", 2, leave.ModeAuto))
	require.NoError(t, err)

	// AND: The next record write fails
	flaky.failAttendance = 1
	_, err = f.attendance.Save(ctx, attendance("emp-1", "2025-06", 5, leave.ModeAuto))
	require.ErrorIs(t, err, errWriteFailed)

	// THEN: The original revision and its debits are intact
	balances, err := f.ledger.Balances(ctx, "emp-1", ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 2, balances.Remaining(leave.Casual))
	assert.Equal(t, 2, balances.Remaining(leave.Sick))

	// WHEN: Retrying the overwrite
	rec, err := f.attendance.Save(ctx, attendance("emp-1", "2025-06", 5, leave.ModeAuto))

	// THEN: Revision 2 lands with the new split
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Revision)
	balances, err = f.ledger.Balances(ctx, "emp-1", ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 0, balances.Remaining(leave.Casual))
	assert.Equal(t, 1, balances.Remaining(leave.Sick))
}

func TestWorkflow_Approve_RetryAfterStatusWriteFailure(t *testing.T) {
	f, flaky := newFlakyFixture(t)
	ctx := context.Background()

	// GIVEN: A pending request for 2 casual days
	req, err := f.workflow.Submit(ctx, submit("emp-1", "2025-06", 2, leave.Casual))
	require.NoError(t, err)

	// AND: The status write fails once
	flaky.failRequests = 1

	// WHEN: Approving
	_, err = f.workflow.Approve(ctx, req.ID, "hr-1", "")

	// THEN: The request is still pending and the debit was reversed
	require.ErrorIs(t, err, errWriteFailed)
	stored, err := f.workflow.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, stored.Status)
	remaining, err := f.ledger.Remaining(ctx, "emp-1", leave.Casual, ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)

	// WHEN: Approving again
	approved, err := f.workflow.Approve(ctx, req.ID, "hr-1", "")

	// THEN: Approved with a single net debit
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, approved.Status)
	remaining, err = f.ledger.Remaining(ctx, "emp-1", leave.Casual, ym("2025-06"))
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	// AND: A new request for the month can be submitted
	_, err = f.workflow.Submit(ctx, submit("emp-1", "2025-06", 1, leave.Sick))
	assert.NoError(t, err)
}

// =============================================================================
// LOCK FAILURES
// =============================================================================

type unavailableLocker struct{}

func (unavailableLocker) Acquire(context.Context, string) (func(), error) {
	return nil, errWriteFailed
}

func TestAttendance_Save_LockUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: The employee lock cannot be taken
	f.ledger.Locks = unavailableLocker{}

	// WHEN: Saving attendance
	_, err := f.attendance.Save(ctx, attendance("emp-1", "2025-06", 2, leave.ModeAuto))

	// THEN: Nothing is written
	require.ErrorIs(t, err, errWriteFailed)
	txs, err := f.ledger.Ledger.Transactions(ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, txs)
	_, err = f.attendance.Get(ctx, "emp-1", ym("2025-06"))
	assert.True(t, errors.Is(err, generic.ErrNotFound))
}
