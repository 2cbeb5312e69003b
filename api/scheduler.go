/*
scheduler.go - Automated month-close scheduler

PURPOSE:
  Periodically generates missing salary slips for the previous month so
  payroll is closed without an operator pressing a button.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Closes the month before the current one on every tick
  - GenerateMonth is idempotent, so repeated ticks only fill gaps

USAGE:
  scheduler := NewMonthCloseScheduler(slips, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CloseMonth endpoint (manual month close)
  - payroll/service.go: GenerateMonth
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"go.uber.org/zap"
)

// MonthCloser is the part of SlipService the scheduler needs.
type MonthCloser interface {
	GenerateMonth(ctx context.Context, ym generic.YearMonth) (*payroll.MonthCloseReport, error)
}

// MonthCloseScheduler runs month close on an interval.
type MonthCloseScheduler struct {
	Closer        MonthCloser
	CheckInterval time.Duration
	Enabled       bool
	Clock         generic.Clock
	Logger        *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewMonthCloseScheduler creates a new scheduler.
func NewMonthCloseScheduler(closer MonthCloser, logger *zap.Logger) *MonthCloseScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonthCloseScheduler{
		Closer:        closer,
		CheckInterval: time.Hour,
		Enabled:       true,
		Logger:        logger.Named("scheduler"),
	}
}

// Start begins the scheduler.
func (s *MonthCloseScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.Logger.Info("started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *MonthCloseScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("stopped")
	}
}

func (s *MonthCloseScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.RunOnce(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.RunOnce(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunOnce closes the previous month.
func (s *MonthCloseScheduler) RunOnce(ctx context.Context) *payroll.MonthCloseReport {
	ym := generic.YearMonthOf(s.Clock.Now()).AddMonths(-1)

	report, err := s.Closer.GenerateMonth(ctx, ym)
	if err != nil {
		s.Logger.Error("month close failed", zap.Stringer("year_month", ym), zap.Error(err))
		return nil
	}
	if len(report.Generated) > 0 || len(report.Failed) > 0 {
		s.Logger.Info("month close completed",
			zap.Stringer("year_month", ym),
			zap.Int("generated", len(report.Generated)),
			zap.Int("existing", len(report.Existing)),
			zap.Int("failed", len(report.Failed)),
		)
	}
	return report
}
