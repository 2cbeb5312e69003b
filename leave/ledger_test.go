package leave_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var fixedNow = time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store      *memory.Store
	ledger     *leave.Ledger
	attendance *leave.AttendanceService
	workflow   *leave.Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	ledger := leave.NewLedger(generic.NewLedger(store), leave.DefaultEntitlements(), generic.NewKeyedMutex(), nil)
	clock := generic.Clock(func() time.Time { return fixedNow })
	ledger.Clock = clock

	attendance := leave.NewAttendanceService(ledger, store, store, nil)
	attendance.Clock = clock
	workflow := leave.NewWorkflow(ledger, store, store, nil)
	workflow.Clock = clock

	return &fixture{store: store, ledger: ledger, attendance: attendance, workflow: workflow}
}

func ym(s string) generic.YearMonth { return generic.MustParseYearMonth(s) }

func ref(key string) leave.Reference {
	return leave.Reference{ID: key, Key: key, Reason: "test", Actor: "hr-1"}
}

// =============================================================================
// BALANCE TESTS
// =============================================================================

func TestLedger_FreshEmployee_HasFullEntitlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	balances, err := f.ledger.Balances(ctx, "emp-1", ym("2025-06"))
	require.NoError(t, err)

	assert.Equal(t, 4, balances.Remaining(leave.Casual))
	assert.Equal(t, 2, balances.Remaining(leave.Sick))
	assert.Equal(t, 0, balances.Remaining(leave.Earned))
	assert.Equal(t, 6, balances.LeavesRemaining())
	assert.Equal(t, ym("2025-01"), balances.Period.Start)
	assert.Equal(t, ym("2025-12"), balances.Period.End)
}

func TestLedger_ConsumeAndRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: 3 casual days consumed in March
	require.NoError(t, f.ledger.Consume(ctx, "emp-1", leave.Casual, 3, ym("2025-03"), ref("c-1")))

	// THEN: Remaining is reported for any month of the year
	remaining, err := f.ledger.Remaining(ctx, "emp-1", leave.Casual, ym("2025-11"))
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	// WHEN: 2 days restored
	require.NoError(t, f.ledger.Restore(ctx, "emp-1", leave.Casual, 2, ym("2025-03"), ref("r-1")))

	// THEN: used = consumed - restored
	bal, err := f.ledger.Balance(ctx, "emp-1", leave.Casual, ym("2025-03"))
	require.NoError(t, err)
	assert.Equal(t, 1, bal.Used)
	assert.Equal(t, 3, bal.Remaining)
}

func TestLedger_Consume_Insufficient_NoPartialDebit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: 1 sick day left
	require.NoError(t, f.ledger.Consume(ctx, "emp-1", leave.Sick, 1, ym("2025-02"), ref("s-1")))

	// WHEN: Consuming 2
	err := f.ledger.Consume(ctx, "emp-1", leave.Sick, 2, ym("2025-02"), ref("s-2"))

	// THEN: Rejected, balance unchanged
	var insufficient *generic.InsufficientBalanceError
	require.True(t, errors.As(err, &insufficient))
	assert.True(t, insufficient.Available.Value.Equal(generic.Days(1).Value))
	assert.True(t, insufficient.Requested.Value.Equal(generic.Days(2).Value))

	remaining, err := f.ledger.Remaining(ctx, "emp-1", leave.Sick, ym("2025-02"))
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestLedger_Restore_BelowZero_Rejected(t *testing.T) {
	f := newFixture(t)

	err := f.ledger.Restore(context.Background(), "emp-1", leave.Casual, 1, ym("2025-02"), ref("r-1"))
	assert.True(t, errors.Is(err, generic.ErrInvalidInput))
}

func TestLedger_NonPositiveDays_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, errors.Is(f.ledger.Consume(ctx, "emp-1", leave.Casual, 0, ym("2025-02"), ref("x")), generic.ErrInvalidInput))
	assert.True(t, errors.Is(f.ledger.Restore(ctx, "emp-1", leave.Casual, -2, ym("2025-02"), ref("y")), generic.ErrInvalidInput))
}

func TestLedger_PeriodBoundary_ResetsEntitlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: All casual leave used in December 2024
	require.NoError(t, f.ledger.Consume(ctx, "emp-1", leave.Casual, 4, ym("2024-12"), ref("c-dec")))

	// THEN: January 2025 starts with a full bucket
	remaining, err := f.ledger.Remaining(ctx, "emp-1", leave.Casual, ym("2025-01"))
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
}

func TestLedger_FiscalYearPeriod(t *testing.T) {
	store := memory.New()
	ent := leave.DefaultEntitlements()
	ent.Period = generic.PeriodConfig{Type: generic.PeriodFiscalYear, FiscalYearStartMonth: time.April}
	ledger := leave.NewLedger(generic.NewLedger(store), ent, nil, nil)
	ctx := context.Background()

	require.NoError(t, ledger.Consume(ctx, "emp-1", leave.Casual, 2, ym("2025-03"), ref("c-mar")))

	// March belongs to FY2024; April starts FY2025.
	before, err := ledger.Remaining(ctx, "emp-1", leave.Casual, ym("2025-01"))
	require.NoError(t, err)
	after, err := ledger.Remaining(ctx, "emp-1", leave.Casual, ym("2025-04"))
	require.NoError(t, err)
	assert.Equal(t, 2, before)
	assert.Equal(t, 4, after)
}

func TestLedger_DuplicateReference_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Consume(ctx, "emp-1", leave.Casual, 1, ym("2025-02"), ref("same")))
	err := f.ledger.Consume(ctx, "emp-1", leave.Casual, 1, ym("2025-02"), ref("same"))

	assert.True(t, errors.Is(err, generic.ErrDuplicateIdempotencyKey))
	remaining, err := f.ledger.Remaining(ctx, "emp-1", leave.Casual, ym("2025-02"))
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}

func TestLedger_ApplyLocked_AtomicBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// WHEN: A batch where the second change is invalid
	unlock, err := f.ledger.LockEmployee(ctx, "emp-1")
	require.NoError(t, err)
	err = f.ledger.ApplyLocked(ctx, "emp-1", ym("2025-05"), []leave.Change{
		{Type: leave.Casual, Days: 2},
		{Type: leave.Sick, Days: 3},
	}, ref("batch"))
	unlock()

	// THEN: Nothing was written
	require.Error(t, err)
	txs, err := f.ledger.Ledger.Transactions(ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestLedger_ConcurrentConsume_NeverOverdraws(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: 4 casual days
	// WHEN: 10 goroutines each try to consume 1
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := f.ledger.Consume(ctx, "emp-1", leave.Casual, 1, ym("2025-08"), ref(fmt.Sprintf("c-%d", i)))
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, generic.ErrInsufficientBalance))
		}(i)
	}
	wg.Wait()

	// THEN: Exactly 4 succeed and the bucket is empty
	assert.Equal(t, 4, success)
	remaining, err := f.ledger.Remaining(ctx, "emp-1", leave.Casual, ym("2025-08"))
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}
