/*
ledger.go - Leave entitlement ledger

PURPOSE:
  Wraps the generic append-only ledger with entitlement policy:
  used = sum(consumption) - sum(reversals) within the period, and
  remaining = total - used. The ledger enforces 0 <= used <= total.

CONCURRENCY:
  Every mutation for an employee runs under a per-employee lock shared
  with AttendanceService and Workflow. The lock comes from a
  generic.Locker: in-process for memory and sqlite, a postgres advisory
  lock when several processes share one database. The balance check and the append
  happen inside the same critical section, so two concurrent consumes
  can never both pass against the same remaining value.

ATOMICITY:
  A set of restores and debits (e.g. overwriting an attendance record)
  is validated as a whole and written with a single AppendBatch. Any
  failure leaves the ledger untouched.

SEE ALSO:
  - generic/ledger.go: Append-only log
  - attendance.go, request.go: The two mutators
*/
package leave

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/warp/payroll-engine/generic"
	"go.uber.org/zap"
)

// Balance is the state of one bucket for one period.
type Balance struct {
	Type      Type
	Period    generic.Period
	Total     int
	Used      int
	Remaining int
}

// Balances holds every bucket for one period.
type Balances struct {
	EmployeeID generic.EntityID
	Period     generic.Period
	ByType     map[Type]Balance
}

// Remaining returns the remaining days for a bucket.
func (b Balances) Remaining(t Type) int { return b.ByType[t].Remaining }

// LeavesRemaining is the sum of remaining days over every bucket.
func (b Balances) LeavesRemaining() int {
	total := 0
	for _, bal := range b.ByType {
		total += bal.Remaining
	}
	return total
}

// Reference ties ledger writes to the record that caused them.
type Reference struct {
	// ID is stored as the transaction ReferenceID (request ID, attendance key).
	ID string
	// Key prefixes every idempotency key of the write.
	Key    string
	Reason string
	Actor  string
}

// Change is one bucket movement inside an atomic ledger write.
// Positive Days debits the bucket, negative Days restores it.
type Change struct {
	Type Type
	Days int
}

// attemptKey scopes idempotency keys to one write attempt. A failed attempt
// is compensated under its own keys, so a retry must not reuse them.
func attemptKey(base string) string {
	return base + "-" + uuid.NewString()
}

// Ledger tracks used/remaining days per employee, bucket and period.
type Ledger struct {
	Ledger       generic.Ledger
	Entitlements Entitlements
	Locks        generic.Locker
	Clock        generic.Clock
	Logger       *zap.Logger
}

func NewLedger(ledger generic.Ledger, entitlements Entitlements, locks generic.Locker, logger *zap.Logger) *Ledger {
	if locks == nil {
		locks = generic.NewKeyedMutex()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{Ledger: ledger, Entitlements: entitlements, Locks: locks, Logger: logger}
}

// LockEmployee serializes ledger mutations for one employee. With a
// database-backed Locker this holds across processes.
func (l *Ledger) LockEmployee(ctx context.Context, employeeID generic.EntityID) (func(), error) {
	unlock, err := l.Locks.Acquire(ctx, "employee:"+string(employeeID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock employee %s: %w", employeeID, err)
	}
	return unlock, nil
}

// PeriodFor returns the entitlement period containing the month.
func (l *Ledger) PeriodFor(ym generic.YearMonth) generic.Period {
	return l.Entitlements.Period.PeriodFor(ym)
}

// =============================================================================
// READS
// =============================================================================

// Balance returns one bucket's state in the period containing ym.
func (l *Ledger) Balance(ctx context.Context, employeeID generic.EntityID, t Type, ym generic.YearMonth) (Balance, error) {
	if _, err := ParseType(string(t)); err != nil {
		return Balance{}, err
	}
	period := l.PeriodFor(ym)
	usage, err := l.Ledger.UsageIn(ctx, employeeID, t, period)
	if err != nil {
		return Balance{}, fmt.Errorf("failed to load %s usage: %w", t, err)
	}
	total := l.Entitlements.Total(t)
	used := usage.Consumed.IntPart()
	return Balance{Type: t, Period: period, Total: total, Used: used, Remaining: total - used}, nil
}

// Remaining returns total - used for one bucket.
func (l *Ledger) Remaining(ctx context.Context, employeeID generic.EntityID, t Type, ym generic.YearMonth) (int, error) {
	b, err := l.Balance(ctx, employeeID, t, ym)
	if err != nil {
		return 0, err
	}
	return b.Remaining, nil
}

// Balances returns every bucket in the period containing ym.
func (l *Ledger) Balances(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (Balances, error) {
	period := l.PeriodFor(ym)
	txs, err := l.Ledger.TransactionsInPeriod(ctx, employeeID, period)
	if err != nil {
		return Balances{}, fmt.Errorf("failed to load transactions: %w", err)
	}
	out := Balances{EmployeeID: employeeID, Period: period, ByType: make(map[Type]Balance, len(AllTypes))}
	for _, t := range AllTypes {
		used := generic.SumUsage(employeeID, t, period, txs).Consumed.IntPart()
		total := l.Entitlements.Total(t)
		out.ByType[t] = Balance{Type: t, Period: period, Total: total, Used: used, Remaining: total - used}
	}
	return out, nil
}

// =============================================================================
// WRITES
// =============================================================================

// Consume debits days from a bucket. Fails with InsufficientBalance if days
// exceeds remaining; never partially consumes.
func (l *Ledger) Consume(ctx context.Context, employeeID generic.EntityID, t Type, days int, ym generic.YearMonth, ref Reference) error {
	if days <= 0 {
		return &generic.InvalidInputError{Field: "days", Reason: "must be positive"}
	}
	unlock, err := l.LockEmployee(ctx, employeeID)
	if err != nil {
		return err
	}
	defer unlock()
	return l.ApplyLocked(ctx, employeeID, ym, []Change{{Type: t, Days: days}}, ref)
}

// Restore returns days to a bucket. Fails with InvalidInput if it would
// push used below zero.
func (l *Ledger) Restore(ctx context.Context, employeeID generic.EntityID, t Type, days int, ym generic.YearMonth, ref Reference) error {
	if days <= 0 {
		return &generic.InvalidInputError{Field: "days", Reason: "must be positive"}
	}
	unlock, err := l.LockEmployee(ctx, employeeID)
	if err != nil {
		return err
	}
	defer unlock()
	return l.ApplyLocked(ctx, employeeID, ym, []Change{{Type: t, Days: -days}}, ref)
}

// ApplyLocked validates and writes a set of changes as one batch.
// The caller must hold LockEmployee(employeeID).
func (l *Ledger) ApplyLocked(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth, changes []Change, ref Reference) error {
	if !ym.Valid() {
		return &generic.InvalidInputError{Field: "yearMonth", Reason: "missing or out of range"}
	}
	net := make(map[Type]int)
	for _, c := range changes {
		if _, err := ParseType(string(c.Type)); err != nil {
			return err
		}
		net[c.Type] += c.Days
	}
	if len(changes) == 0 {
		return nil
	}

	balances, err := l.Balances(ctx, employeeID, ym)
	if err != nil {
		return err
	}

	types := make([]Type, 0, len(net))
	for t := range net {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, t := range types {
		bal := balances.ByType[t]
		after := bal.Used + net[t]
		if after > bal.Total {
			return &generic.InsufficientBalanceError{
				EntityID:     employeeID,
				ResourceType: t,
				Available:    generic.Days(bal.Remaining),
				Requested:    generic.Days(net[t]),
			}
		}
		if after < 0 {
			return &generic.InvalidInputError{
				Field:  "days",
				Reason: fmt.Sprintf("restoring %d %s days exceeds %d used", -net[t], t, bal.Used),
			}
		}
	}

	now := l.Clock.Now()
	txs := make([]generic.Transaction, 0, len(changes))
	for i, c := range changes {
		if c.Days == 0 {
			continue
		}
		tx := generic.Transaction{
			ID:           generic.TransactionID(uuid.NewString()),
			EntityID:     employeeID,
			ResourceType: c.Type,
			EffectiveAt:  ym,
			ReferenceID:  ref.ID,
			Reason:       ref.Reason,
			CreatedBy:    ref.Actor,
			CreatedAt:    generic.TimePoint{Time: now},
		}
		if c.Days > 0 {
			tx.Type = generic.TxConsumption
			tx.Delta = generic.Days(-c.Days)
		} else {
			tx.Type = generic.TxReversal
			tx.Delta = generic.Days(-c.Days)
		}
		if ref.Key != "" {
			tx.IdempotencyKey = fmt.Sprintf("%s-%s-%d", ref.Key, c.Type, i)
		}
		txs = append(txs, tx)
	}
	if len(txs) == 0 {
		return nil
	}

	if err := l.Ledger.AppendBatch(ctx, txs); err != nil {
		return fmt.Errorf("failed to write ledger transactions: %w", err)
	}

	l.Logger.Debug("leave ledger updated",
		zap.String("employee_id", string(employeeID)),
		zap.String("year_month", ym.String()),
		zap.String("reference", ref.ID),
		zap.Int("changes", len(txs)),
	)
	return nil
}
