package app_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/app"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/memory"
)

// recordingLocker stands in for a database-backed lock.
type recordingLocker struct {
	mu   sync.Mutex
	keys []string
	km   *generic.KeyedMutex
}

func (l *recordingLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return l.km.Acquire(ctx, key)
}

type sharedStore struct {
	*memory.Store
	locker *recordingLocker
}

func (s *sharedStore) Locker() generic.Locker { return s.locker }

func TestNew_UsesBackendLocker(t *testing.T) {
	// GIVEN: A backend that supplies its own locker
	locker := &recordingLocker{km: generic.NewKeyedMutex()}
	backend := &sharedStore{Store: memory.New(), locker: locker}

	// WHEN: Wiring the app
	a := app.New(backend, leave.DefaultEntitlements(), payroll.DefaultPolicy(), nil)

	// THEN: Ledger mutations and slip generation go through it
	assert.Same(t, locker, a.Ledger.Locks)
	assert.Same(t, locker, a.Slips.Locks)

	ctx := context.Background()
	_, err := a.Attendance.Save(ctx, leave.AttendanceInput{
		EmployeeID: "emp-1",
		YearMonth:  generic.MustParseYearMonth("2025-06"),
		AbsentDays: 1,
		Mode:       leave.ModeAuto,
		RecordedBy: "hr-1",
	})
	require.NoError(t, err)
	assert.Contains(t, locker.keys, "employee:emp-1")
}

func TestNew_DefaultsToInProcessLocks(t *testing.T) {
	a := app.New(memory.New(), leave.DefaultEntitlements(), payroll.DefaultPolicy(), nil)

	_, ok := a.Ledger.Locks.(*generic.KeyedMutex)
	assert.True(t, ok)
	assert.Same(t, a.Ledger.Locks, a.Slips.Locks)
}
