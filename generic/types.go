/*
Package generic provides the core accounting engine shared by leave and payroll.

PURPOSE:
  This package contains domain-agnostic types for tracking per-employee
  balances as an append-only transaction log. Leave entitlements (casual,
  sick, earned) are one consumer; the engine does not know about them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 5 days, 1000 rupees)
  - Transaction: An immutable ledger entry recording balance changes
  - EntityID: Type-safe employee identifier
  - ResourceType: Interface implemented by domain resource types

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing identifiers
  4. Auditability: Every transaction has reason, reference, and idempotency key

USAGE:
  tx := generic.Transaction{
      EntityID:     "emp-123",
      ResourceType: leave.Casual,
      Delta:        generic.NewAmountFromInt(-2, generic.UnitDays),
      Type:         generic.TxConsumption,
  }

SEE ALSO:
  - ledger.go: Transaction persistence interface
  - month.go: YearMonth keys for monthly facts
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays     Unit = "days"
	UnitCurrency Unit = "currency"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

// Days is shorthand for a whole number of days.
func Days(n int) Amount { return NewAmountFromInt(n, UnitDays) }

func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &InvalidInputError{Field: "amount", Reason: "not a decimal: " + s}
	}
	return d, nil
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }

// IntPart truncates to a whole number. Leave balances are always whole days.
func (a Amount) IntPart() int { return int(a.Value.IntPart()) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type TransactionID string

// ResourceType identifies what kind of balance is being tracked.
// Domain packages define their own concrete types:
//
//	// In leave/types.go
//	type Type string
//	func (t Type) ResourceID() string     { return string(t) }
//	func (t Type) ResourceDomain() string { return "leave" }
type ResourceType interface {
	// ResourceID returns the unique identifier for this resource type.
	ResourceID() string

	// ResourceDomain returns which domain this resource belongs to.
	ResourceDomain() string
}

// =============================================================================
// TRANSACTION - Atomic change to a balance
// =============================================================================

type TransactionType string

const (
	TxConsumption TransactionType = "consumption" // Balance used (approved request, attendance commit)
	TxReversal    TransactionType = "reversal"    // Undo a previous consumption
)

type Transaction struct {
	ID             TransactionID
	EntityID       EntityID
	ResourceType   ResourceType
	EffectiveAt    YearMonth
	Delta          Amount
	Type           TransactionType
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string

	// Audit fields
	CreatedBy string
	CreatedAt TimePoint
}

// =============================================================================
// BALANCE SNAPSHOT - Computed state for one resource in one period
// =============================================================================

// Usage sums the transactions of a single resource type.
// Consumed is positive; reversals reduce it.
type Usage struct {
	EntityID     EntityID
	ResourceType ResourceType
	Period       Period
	Consumed     Amount
}

// SumUsage folds transactions into a Usage. Transactions of other resource
// types are ignored.
func SumUsage(entityID EntityID, resource ResourceType, period Period, txs []Transaction) Usage {
	u := Usage{
		EntityID:     entityID,
		ResourceType: resource,
		Period:       period,
		Consumed:     Days(0),
	}
	for _, tx := range txs {
		if tx.ResourceType == nil || tx.ResourceType.ResourceID() != resource.ResourceID() {
			continue
		}
		switch tx.Type {
		case TxConsumption:
			u.Consumed = u.Consumed.Add(tx.Delta.Neg())
		case TxReversal:
			u.Consumed = u.Consumed.Sub(tx.Delta)
		}
	}
	return u
}
