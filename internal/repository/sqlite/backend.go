package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/uuid/v5"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/and161185/todosync/internal/config"
	"github.com/and161185/todosync/internal/errs"
	"github.com/and161185/todosync/internal/limiter"
	"github.com/and161185/todosync/internal/migrate"
	"github.com/and161185/todosync/internal/model"
	"github.com/and161185/todosync/internal/repository"
	"github.com/and161185/todosync/migrations"
)

const systemFile = "system.db"

var errNotInitialized = errors.New("sqlite backend not initialized")

// Backend implements repository.Backend on embedded SQLite files.
type Backend struct {
	cfg config.Backend
	log *zap.Logger

	system *sql.DB // root users
	db     *sql.DB // selected namespace/database
	lim    limiter.Limiter
}

var _ repository.Backend = (*Backend)(nil)

// New constructs an uninitialized embedded backend.
func New(cfg config.Backend, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{cfg: cfg, log: log}
}

// Init opens the store directory, signs in when credentials are configured,
// then opens and migrates <namespace>/<database>.db.
func (b *Backend) Init(ctx context.Context) error {
	if err := b.connect(ctx); err != nil {
		return errs.Unavailable(errs.CauseConnect, err)
	}
	if b.cfg.HasCredentials() {
		if err := b.signin(ctx, b.cfg.Username, b.cfg.Password); err != nil {
			_ = b.Close()
			return errs.Unavailable(errs.CauseSignin, err)
		}
	}
	if err := b.use(ctx); err != nil {
		_ = b.Close()
		return errs.Unavailable(errs.CauseUse, err)
	}
	b.log.Debug("connected",
		zap.String("variant", string(config.Embedded)),
		zap.String("path", b.dbPath()),
	)
	return nil
}

func (b *Backend) connect(ctx context.Context) error {
	if b.cfg.Address == "" {
		return errors.New("empty data directory")
	}
	if err := os.MkdirAll(b.cfg.Address, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := open(ctx, filepath.Join(b.cfg.Address, systemFile), b.log)
	if err != nil {
		return err
	}
	if err := migrate.Up(ctx, db, goose.DialectSQLite3, migrations.SQLiteSystem); err != nil {
		_ = db.Close()
		return err
	}
	b.system = db
	b.lim = limiter.NewSQL(db, limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor)
	return nil
}

func (b *Backend) use(ctx context.Context) error {
	if err := validName(b.cfg.Namespace); err != nil {
		return fmt.Errorf("namespace: %w", err)
	}
	if err := validName(b.cfg.Database); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(b.dbPath()), 0o755); err != nil {
		return fmt.Errorf("failed to create namespace: %w", err)
	}
	db, err := open(ctx, b.dbPath(), b.log)
	if err != nil {
		return err
	}
	if err := migrate.Up(ctx, db, goose.DialectSQLite3, migrations.SQLite); err != nil {
		_ = db.Close()
		return err
	}
	b.db = db
	return nil
}

func (b *Backend) dbPath() string {
	return filepath.Join(b.cfg.Address, b.cfg.Namespace, b.cfg.Database+".db")
}

// validName rejects names that would escape the data directory.
func validName(s string) error {
	if s == "" || s == "." || s == ".." || filepath.Base(s) != s {
		return fmt.Errorf("invalid name %q", s)
	}
	return nil
}

// Close releases both database files.
func (b *Backend) Close() error {
	var err error
	if b.db != nil {
		err = b.db.Close()
		b.db = nil
	}
	if b.system != nil {
		err = errors.Join(err, b.system.Close())
		b.system = nil
	}
	return err
}

// List returns all rows in insertion order.
func (b *Backend) List(ctx context.Context, resource string) ([]model.Todo, error) {
	if b.db == nil {
		return nil, errNotInitialized
	}
	q := fmt.Sprintf(`SELECT id, title, completed FROM %s ORDER BY rowid`, quote(resource))
	rows, err := b.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Todo{}
	for rows.Next() {
		var (
			id string
			t  model.Todo
		)
		if err := rows.Scan(&id, &t.Title, &t.Completed); err != nil {
			return nil, err
		}
		t.ID = model.ID(id)
		out = append(out, t)
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
	q := fmt.Sprintf(`INSERT INTO %s (id, title, completed) VALUES (?,?,?)`, quote(resource))
	if _, err := b.db.ExecContext(ctx, q, id.String(), t.Title, t.Completed); err != nil {
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
	q := fmt.Sprintf(`DELETE FROM %s WHERE id=?`, quote(resource))
	res, err := b.db.ExecContext(ctx, q, string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func quote(name string) string {
	out := []byte{'"'}
	for i := 0; i < len(name); i++ {
		if name[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, name[i])
	}
	return string(append(out, '"'))
}
