package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/store/sqlite"
	"github.com/warp/payroll-engine/store/storetest"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "payroll.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return newStore(t)
	})
}

func TestStore_InMemory(t *testing.T) {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.Ping(context.Background()))
}

func TestStore_ReopenKeepsData(t *testing.T) {
	// GIVEN: A ledger entry written to a database file
	path := filepath.Join(t.TempDir(), "payroll.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, generic.Transaction{
		ID:             "t1",
		EntityID:       "emp-1",
		ResourceType:   leave.Sick,
		EffectiveAt:    generic.MustParseYearMonth("2025-06"),
		Delta:          generic.Days(-1),
		Type:           generic.TxConsumption,
		IdempotencyKey: "k1",
	}))
	require.NoError(t, s.Close())

	// WHEN: Reopening the same file
	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()

	// THEN: Migration is idempotent and the entry survives
	txs, err := s.Load(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, leave.Sick, txs[0].ResourceType)
	assert.Equal(t, "-1", txs[0].Delta.Value.String())
}
