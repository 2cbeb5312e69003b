package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/store/storetest"
)

// Set PAYROLL_TEST_DATABASE_URL to a disposable database to run these.
func testURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("PAYROLL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PAYROLL_TEST_DATABASE_URL not set")
	}
	return url
}

func open(t *testing.T, url string) *Store {
	t.Helper()
	s, err := New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s := open(t, testURL(t))
	_, err := s.pool.Exec(context.Background(), `TRUNCATE transactions, audit_log, profiles, attendance, leave_requests, salary_slips, bonuses`)
	require.NoError(t, err)
	return s
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return newStore(t)
	})
}

// Two Stores have separate pools, as two engine processes would.
func TestAdvisoryLocker_ExcludesOtherPools(t *testing.T) {
	first := newStore(t)
	second := open(t, testURL(t))
	ctx := context.Background()

	// GIVEN: The first pool holds the employee lock
	release, err := first.Locker().Acquire(ctx, "employee:emp-1")
	require.NoError(t, err)

	// WHEN: The second pool tries to take it
	waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = second.Locker().Acquire(waitCtx, "employee:emp-1")

	// THEN: It waits until its context gives up
	require.Error(t, err)

	// AND: Other keys are unaffected
	otherRelease, err := second.Locker().Acquire(ctx, "employee:emp-2")
	require.NoError(t, err)
	otherRelease()

	// WHEN: The first pool releases
	release()

	// THEN: The second pool gets it
	again, err := second.Locker().Acquire(ctx, "employee:emp-1")
	require.NoError(t, err)
	again()
}

func TestLedger_TwoPools_NeverOverdraw(t *testing.T) {
	stores := []*Store{newStore(t), open(t, testURL(t))}
	var ledgers []*leave.Ledger
	for _, s := range stores {
		ledgers = append(ledgers, leave.NewLedger(generic.NewLedger(s), leave.DefaultEntitlements(), s.Locker(), nil))
	}
	ctx := context.Background()
	june := generic.MustParseYearMonth("2025-06")

	// GIVEN: 4 casual days
	// WHEN: 10 callers spread over both pools each consume 1
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("consume-%d", i)
			err := ledgers[i%2].Consume(ctx, "emp-1", leave.Casual, 1, june, leave.Reference{ID: key, Key: key, Actor: "hr-1"})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			var insufficient *generic.InsufficientBalanceError
			assert.True(t, errors.As(err, &insufficient), "unexpected error: %v", err)
		}(i)
	}
	wg.Wait()

	// THEN: Exactly the entitlement was consumed
	assert.Equal(t, 4, successes)
	remaining, err := ledgers[0].Remaining(ctx, "emp-1", leave.Casual, june)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}
