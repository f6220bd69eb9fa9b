package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/and161185/todosync/internal/config"
	"github.com/and161185/todosync/internal/errs"
	"github.com/and161185/todosync/internal/migrate"
	"github.com/and161185/todosync/internal/model"
	"github.com/and161185/todosync/internal/repository"
	"github.com/and161185/todosync/migrations"
)

const connectTimeout = 5 * time.Second

var errNotInitialized = errors.New("postgres backend not initialized")

// Backend implements repository.Backend on PostgreSQL. The namespace maps to a
// schema and the database to a Postgres database.
type Backend struct {
	cfg config.Backend
	log *zap.Logger

	db      *DB
	sqlDB   *sql.DB
	migrate func(ctx context.Context) error
}

var _ repository.Backend = (*Backend)(nil)

// New constructs an uninitialized networked backend.
func New(cfg config.Backend, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{cfg: cfg, log: log}
}

// NewWithPool constructs a backend over an already connected pool.
func NewWithPool(cfg config.Backend, pool PgxPool, log *zap.Logger) *Backend {
	b := New(cfg, log)
	b.db = &DB{Pool: pool}
	return b
}

// Init connects to host:port, authenticates and selects namespace/database.
// Postgres authenticates and binds the database during the connection handshake,
// so the handshake error's SQLSTATE decides which step failed.
func (b *Backend) Init(ctx context.Context) error {
	pcfg, err := b.poolConfig()
	if err != nil {
		return errs.Unavailable(errs.CauseConnect, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return errs.Unavailable(errs.CauseConnect, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return classifyHandshake(err)
	}
	b.log.Debug("connected",
		zap.String("variant", string(config.Networked)),
		zap.String("host", b.cfg.Address),
		zap.Int("port", b.cfg.Port),
	)

	b.db = &DB{Pool: pool}
	b.sqlDB = stdlib.OpenDBFromPool(pool)
	b.migrate = func(ctx context.Context) error {
		return migrate.Up(ctx, b.sqlDB, goose.DialectPostgres, migrations.Postgres)
	}
	if err := b.use(ctx); err != nil {
		_ = b.Close()
		return err
	}
	return nil
}

func (b *Backend) poolConfig() (*pgxpool.Config, error) {
	return pgxpool.ParseConfig(b.dsn())
}

// dsn builds the connection URL; unknown query parameters become runtime params.
func (b *Backend) dsn() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(b.cfg.Address, strconv.Itoa(b.cfg.Port)),
		Path:   "/" + b.cfg.Database,
	}
	if b.cfg.HasCredentials() {
		u.User = url.UserPassword(b.cfg.Username, b.cfg.Password)
	}
	q := url.Values{}
	q.Set("connect_timeout", strconv.Itoa(int(connectTimeout/time.Second)))
	q.Set("search_path", ident(b.cfg.Namespace))
	u.RawQuery = q.Encode()
	return u.String()
}

func classifyHandshake(err error) error {
	switch {
	case isAuthFailure(err):
		return errs.Unavailable(errs.CauseSignin, fmt.Errorf("%w: %w", errs.ErrUnauthorized, err))
	case isUnknownDatabase(err):
		return errs.Unavailable(errs.CauseUse, err)
	default:
		return errs.Unavailable(errs.CauseConnect, err)
	}
}

// use selects the namespace: the schema is created on first use and migrated.
func (b *Backend) use(ctx context.Context) error {
	if _, err := b.db.Pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+ident(b.cfg.Namespace)); err != nil {
		return errs.Unavailable(errs.CauseUse, err)
	}
	if b.migrate != nil {
		if err := b.migrate(ctx); err != nil {
			return errs.Unavailable(errs.CauseUse, err)
		}
	}
	return nil
}

// Close releases the pool.
func (b *Backend) Close() error {
	if b.sqlDB != nil {
		_ = b.sqlDB.Close()
		b.sqlDB = nil
	}
	if b.db != nil {
		b.db.Close()
		b.db = nil
	}
	return nil
}

// List returns all rows in insertion order.
func (b *Backend) List(ctx context.Context, resource string) ([]model.Todo, error) {
	if b.db == nil {
		return nil, errNotInitialized
	}
	q := fmt.Sprintf(`SELECT id, title, completed FROM %s ORDER BY seq`, ident(resource))
	rows, err := b.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Todo{}
	for rows.Next() {
		var (
			id        string
			title     string
			completed bool
		)
		if err = rows.Scan(&id, &title, &completed); err != nil {
			return nil, err
		}
		out = append(out, model.Todo{ID: model.ID(id), Title: title, Completed: completed})
	}
	return out, rows.Err()
}

// Create inserts t under a new UUID and returns the stored item.
func (b *Backend) Create(ctx context.Context, resource string, t model.Todo) (model.Todo, error) {
	if b.db == nil {
		return model.Todo{}, errNotInitialized
	}
	if t.Persisted() {
		return model.Todo{}, fmt.Errorf("create: id already assigned (%s)", t.ID)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Todo{}, err
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, title, completed) VALUES ($1,$2,$3)`, ident(resource))
	if _, err := b.db.Pool.Exec(ctx, q, id.String(), t.Title, t.Completed); err != nil {
		return model.Todo{}, err
	}
	t.ID = model.ID(id.String())
	return t, nil
}

// Delete removes a row by id; errs.ErrNotFound if nothing was deleted.
func (b *Backend) Delete(ctx context.Context, resource string, id model.ID) error {
	if b.db == nil {
		return errNotInitialized
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, ident(resource))
	tag, err := b.db.Pool.Exec(ctx, q, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
