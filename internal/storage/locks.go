package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLock is a session-level advisory lock held on a dedicated connection.
type AdvisoryLock struct {
	lockID int64
	conn   *pgxpool.Conn
}

// TryAcquireAdvisoryLock takes a session lock without blocking. The lock lives
// on its own pooled connection until Release; a nil lock means another session
// holds it.
func (db *DB) TryAcquireAdvisoryLock(ctx context.Context, lockID int64) (*AdvisoryLock, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		conn.Release()

		return nil, fmt.Errorf("try acquire advisory lock: %w", err)
	}

	if !acquired {
		conn.Release()

		return nil, nil
	}

	return &AdvisoryLock{lockID: lockID, conn: conn}, nil
}

// Release unlocks and returns the connection to the pool. Safe on a nil lock.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	if l == nil || l.conn == nil {
		return nil
	}

	conn := l.conn
	l.conn = nil

	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.lockID); err != nil {
		return fmt.Errorf("release advisory lock: %w", err)
	}

	return nil
}
