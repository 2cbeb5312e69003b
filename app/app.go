// Package app wires a storage backend into the leave and payroll services.
package app

import (
	"context"
	"fmt"

	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/memory"
	"github.com/warp/payroll-engine/store/postgres"
	"github.com/warp/payroll-engine/store/sqlite"
	"go.uber.org/zap"
)

// Backend is everything the engine persists. The memory, sqlite and
// postgres stores all satisfy it.
type Backend interface {
	generic.Store
	generic.AuditLog
	leave.AttendanceStore
	leave.RequestStore
	payroll.ProfileStore
	payroll.BonusStore
	payroll.SlipRepository
}

// App holds the wired services.
type App struct {
	Backend    Backend
	Ledger     *leave.Ledger
	Attendance *leave.AttendanceService
	Requests   *leave.Workflow
	Slips      *payroll.SlipService
}

// sharedBackend is a Backend that several processes may use at once.
type sharedBackend interface {
	Locker() generic.Locker
}

// New wires services over backend. A single Locker is shared so that
// attendance commits and request approvals for one employee serialize.
// Backends shared between processes supply their own; otherwise the lock
// is in-process.
func New(backend Backend, entitlements leave.Entitlements, policy payroll.Policy, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	var locks generic.Locker = generic.NewKeyedMutex()
	if shared, ok := backend.(sharedBackend); ok {
		locks = shared.Locker()
	}
	ledger := leave.NewLedger(generic.NewLedger(backend), entitlements, locks, logger.Named("ledger"))
	slips := payroll.NewSlipService(policy, backend, backend, backend, backend, ledger, backend, logger.Named("slips"))
	slips.Locks = locks
	return &App{
		Backend:    backend,
		Ledger:     ledger,
		Attendance: leave.NewAttendanceService(ledger, backend, backend, logger.Named("attendance")),
		Requests:   leave.NewWorkflow(ledger, backend, backend, logger.Named("requests")),
		Slips:      slips,
	}
}

// SetClock overrides the clock on every service.
func (a *App) SetClock(clock generic.Clock) {
	a.Ledger.Clock = clock
	a.Attendance.Clock = clock
	a.Requests.Clock = clock
	a.Slips.Clock = clock
}

// OpenBackend opens the store selected by cfg. The returned close function
// is never nil.
func OpenBackend(ctx context.Context, cfg config.DatabaseConfig) (Backend, func() error, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), func() error { return nil }, nil
	case "sqlite":
		store, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "postgres":
		store, err := postgres.New(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
