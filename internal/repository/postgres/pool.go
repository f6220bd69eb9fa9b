// Package postgres is the networked backend: a PostgreSQL server reached over TCP.
package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is a minimal abstraction over a Postgres connection pool,
// used by the backend. It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	// Exec executes a SQL command and returns the command tag.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Query executes a SELECT and returns a rows iterator.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// Ping checks that a connection can be acquired and is alive.
	Ping(ctx context.Context) error
	// Close shuts down the pool and frees resources.
	Close()
}

// DB wraps the pool so the backend can be built over a mock in tests.
type DB struct{ Pool PgxPool }

// Close closes the underlying pool.
func (db *DB) Close() { db.Pool.Close() }

// SQLSTATE codes the handshake is classified by.
const (
	codeInvalidCatalogName = "3D000"
	classInvalidAuth       = "28"
)

func pgCode(err error) string {
	var pg *pgconn.PgError
	if errors.As(err, &pg) {
		return pg.Code
	}
	return ""
}

func isAuthFailure(err error) bool { return strings.HasPrefix(pgCode(err), classInvalidAuth) }

func isUnknownDatabase(err error) bool { return pgCode(err) == codeInvalidCatalogName }

// ident quotes a resource/schema name for interpolation into SQL.
func ident(name string) string { return pgx.Identifier{name}.Sanitize() }
