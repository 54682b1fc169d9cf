package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourname/dolgi-bot/internal/db"
)

const (
	advisoryXactLock = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	advisoryLock     = `SELECT pg_advisory_lock(hashtextextended($1, 0))`
	advisoryUnlock   = `SELECT pg_advisory_unlock(hashtextextended($1, 0))`
)

// AdvisoryLocker serializes work on a key across bot replicas with Postgres
// advisory locks. Inside a transaction the lock is released on commit or
// rollback; outside one it holds a pooled connection until unlock.
type AdvisoryLocker struct{ pool *pgxpool.Pool }

func NewAdvisoryLocker(p *pgxpool.Pool) *AdvisoryLocker { return &AdvisoryLocker{pool: p} }

func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	if tx, ok := db.TxFrom(ctx); ok {
		if _, err := tx.Exec(ctx, advisoryXactLock, key); err != nil {
			return nil, fmt.Errorf("advisory lock %q: %w", key, err)
		}
		return func() {}, nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, advisoryLock, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock %q: %w", key, err)
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		// ctx may already be cancelled; the unlock must still reach the server.
		_, _ = conn.Exec(context.Background(), advisoryUnlock, key)
		conn.Release()
	}, nil
}
