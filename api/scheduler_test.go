package api_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

type countingCloser struct {
	calls atomic.Int32
	last  atomic.Value
	err   error
}

func (c *countingCloser) GenerateMonth(_ context.Context, ym generic.YearMonth) (*payroll.MonthCloseReport, error) {
	c.calls.Add(1)
	c.last.Store(ym)
	if c.err != nil {
		return nil, c.err
	}
	return &payroll.MonthCloseReport{YearMonth: ym}, nil
}

func TestScheduler_RunOnce_ClosesPreviousMonth(t *testing.T) {
	r, a := newTestRouter(t)
	putProfile(t, r, "emp-1")

	s := api.NewMonthCloseScheduler(a.Slips, nil)
	s.Clock = func() time.Time { return fixedNow }

	// WHEN: Running twice in July
	first := s.RunOnce(context.Background())
	second := s.RunOnce(context.Background())

	// THEN: June is generated once and found on the second pass
	require.NotNil(t, first)
	assert.Equal(t, generic.MustParseYearMonth("2025-06"), first.YearMonth)
	assert.Equal(t, []generic.EntityID{"emp-1"}, first.Generated)
	require.NotNil(t, second)
	assert.Empty(t, second.Generated)
	assert.Equal(t, []generic.EntityID{"emp-1"}, second.Existing)
}

func TestScheduler_RunOnce_YearBoundary(t *testing.T) {
	closer := &countingCloser{}
	s := api.NewMonthCloseScheduler(closer, nil)
	s.Clock = func() time.Time { return time.Date(2026, time.January, 1, 0, 5, 0, 0, time.UTC) }

	s.RunOnce(context.Background())

	assert.Equal(t, generic.MustParseYearMonth("2025-12"), closer.last.Load())
}

func TestScheduler_RunOnce_Failure(t *testing.T) {
	closer := &countingCloser{err: errors.New("database unavailable")}
	s := api.NewMonthCloseScheduler(closer, nil)

	assert.Nil(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(1), closer.calls.Load())
}

func TestScheduler_StartStop(t *testing.T) {
	closer := &countingCloser{}
	s := api.NewMonthCloseScheduler(closer, nil)
	s.CheckInterval = time.Hour

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()

	// The first run happens on start.
	assert.Equal(t, int32(1), closer.calls.Load())
}

func TestScheduler_Disabled(t *testing.T) {
	closer := &countingCloser{}
	s := api.NewMonthCloseScheduler(closer, nil)
	s.Enabled = false

	s.Start()
	s.Stop()

	assert.Zero(t, closer.calls.Load())
}
