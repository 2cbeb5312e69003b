/*
ledger.go - Append-only transaction log

PURPOSE:
  The Ledger is the source of truth for leave consumption. Every debit
  and every restore is recorded here. "Used" is always computed by
  replaying transactions; there is no separate counter that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)
  3. ATOMIC BATCHES: AppendBatch writes all transactions or none

CORRECTIONS:
  A restore is a TxReversal with a positive delta. Both the original
  consumption and the reversal stay in the log.

EXAMPLE FLOW:
  1. Attendance for March saved, 2 casual days: TxConsumption -2
  2. March attendance overwritten with 1 day:   TxReversal +2, TxConsumption -1

  Casual used for the year: 2 - 2 + 1 = 1

SEE ALSO:
  - store.go: Low-level persistence interface
  - leave/ledger.go: Entitlement checks and per-employee locking
*/
package generic

import "context"

// Ledger is the source of truth for all balance changes.
type Ledger interface {
	// Append adds a transaction. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns all transactions for an entity, chronologically.
	Transactions(ctx context.Context, entityID EntityID) ([]Transaction, error)

	// TransactionsInPeriod returns transactions with EffectiveAt in the period.
	TransactionsInPeriod(ctx context.Context, entityID EntityID, period Period) ([]Transaction, error)

	// UsageIn computes net consumption of one resource in a period.
	UsageIn(ctx context.Context, entityID EntityID, resource ResourceType, period Period) (Usage, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if seen[tx.IdempotencyKey] {
			return ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Transactions(ctx context.Context, entityID EntityID) ([]Transaction, error) {
	return l.Store.Load(ctx, entityID)
}

func (l *DefaultLedger) TransactionsInPeriod(ctx context.Context, entityID EntityID, period Period) ([]Transaction, error) {
	return l.Store.LoadRange(ctx, entityID, period.Start, period.End)
}

func (l *DefaultLedger) UsageIn(ctx context.Context, entityID EntityID, resource ResourceType, period Period) (Usage, error) {
	txs, err := l.Store.LoadRange(ctx, entityID, period.Start, period.End)
	if err != nil {
		return Usage{}, err
	}
	return SumUsage(entityID, resource, period, txs), nil
}
