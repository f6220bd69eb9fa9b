package limiter

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQL is a database/sql limiter with sliding window and lockout. Times are
// stored as unix nanoseconds so any SQLite driver reads them back unchanged.
type SQL struct {
	db       querier
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ Limiter = (*SQL)(nil)

// NewSQL constructs a limiter over the signin_limiter table of db.
func NewSQL(db querier, window time.Duration, maxFails int, blockFor time.Duration) *SQL {
	return &SQL{db: db, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

// Allow reports whether signin is currently allowed and a retry-after duration.
func (l *SQL) Allow(ctx context.Context, username string) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM signin_limiter WHERE username=?`
	var blockedUntil int64
	err := l.db.QueryRowContext(ctx, q, username).Scan(&blockedUntil)
	switch {
	case err == nil:
		if wait := time.Unix(0, blockedUntil).Sub(l.now()); wait > 0 {
			return false, wait, nil
		}
		return true, 0, nil
	case errors.Is(err, sql.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets counters for username.
func (l *SQL) Success(ctx context.Context, username string) error {
	const q = `
INSERT INTO signin_limiter (username, fail_count, blocked_until, updated_at)
VALUES (?, 0, 0, ?)
ON CONFLICT (username)
DO UPDATE SET fail_count=0, blocked_until=0, updated_at=excluded.updated_at`
	_, err := l.db.ExecContext(ctx, q, username, l.now().UnixNano())
	return err
}

// Failure records a failed attempt; may set a block until a future time.
func (l *SQL) Failure(ctx context.Context, username string) (bool, time.Duration, error) {
	now := l.now()

	const q = `
INSERT INTO signin_limiter (username, fail_count, blocked_until, updated_at)
VALUES (?, 1, 0, ?)
ON CONFLICT (username) DO UPDATE
SET
  fail_count = CASE WHEN excluded.updated_at - signin_limiter.updated_at > ? THEN 1 ELSE signin_limiter.fail_count + 1 END,
  updated_at = excluded.updated_at
RETURNING fail_count`
	var fails int
	if err := l.db.QueryRowContext(ctx, q, username, now.UnixNano(), l.window.Nanoseconds()).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails >= l.maxFails {
		const upd = `UPDATE signin_limiter SET blocked_until=? WHERE username=?`
		if _, err := l.db.ExecContext(ctx, upd, now.Add(l.blockFor).UnixNano(), username); err != nil {
			return false, 0, err
		}
		return true, l.blockFor, nil
	}
	return false, 0, nil
}
