package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/payroll-engine/generic"
	"golang.org/x/sync/semaphore"
)

// AdvisoryLocker serializes keys across every process sharing the database
// using session-level advisory locks. Each held key pins one pool
// connection, so keys are first serialized in-process and the number of
// pinned connections stays below the pool size.
type AdvisoryLocker struct {
	pool  *pgxpool.Pool
	local *generic.KeyedMutex
	slots *semaphore.Weighted
}

func newAdvisoryLocker(pool *pgxpool.Pool) *AdvisoryLocker {
	slots := int64(pool.Config().MaxConns) - 1
	if slots < 1 {
		slots = 1
	}
	return &AdvisoryLocker{pool: pool, local: generic.NewKeyedMutex(), slots: semaphore.NewWeighted(slots)}
}

// Locker returns the cross-process locker for this database.
func (s *Store) Locker() generic.Locker {
	return s.locker
}

// Acquire blocks until key is held by this caller or ctx is done.
func (l *AdvisoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	unlockLocal := l.local.Lock(key)
	if err := l.slots.Acquire(ctx, 1); err != nil {
		unlockLocal()
		return nil, err
	}
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		l.slots.Release(1)
		unlockLocal()
		return nil, fmt.Errorf("failed to acquire lock connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
		conn.Release()
		l.slots.Release(1)
		unlockLocal()
		return nil, fmt.Errorf("failed to take advisory lock %q: %w", key, err)
	}

	return func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
			// Closing the session drops every advisory lock it holds.
			_ = conn.Hijack().Close(context.Background())
		} else {
			conn.Release()
		}
		l.slots.Release(1)
		unlockLocal()
	}, nil
}
