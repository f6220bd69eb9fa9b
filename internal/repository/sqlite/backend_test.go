package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/todosync/internal/config"
	"github.com/and161185/todosync/internal/errs"
	"github.com/and161185/todosync/internal/limiter"
	"github.com/and161185/todosync/internal/model"
)

func testCfg(dir string) config.Backend {
	return config.Backend{
		Variant:   config.Embedded,
		Address:   dir,
		Namespace: "leptos_examples",
		Database:  "todos",
	}
}

func newBackend(t *testing.T, cfg config.Backend) *Backend {
	t.Helper()
	b := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, b.Init(context.Background()))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_Init_CreatesNamespaceFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	newBackend(t, testCfg(dir))

	_, err := os.Stat(filepath.Join(dir, "leptos_examples", "todos.db"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, systemFile))
	require.NoError(t, err)
}

func TestBackend_CRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newBackend(t, testCfg(t.TempDir()))

	out, err := b.List(ctx, model.ResourceTodo)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Empty(t, out)

	a, err := b.Create(ctx, model.ResourceTodo, model.NewTodo("A"))
	require.NoError(t, err)
	require.True(t, a.Persisted())
	c, err := b.Create(ctx, model.ResourceTodo, model.NewTodo("B"))
	require.NoError(t, err)
	require.NotEqual(t, a.ID, c.ID)

	out, err = b.List(ctx, model.ResourceTodo)
	require.NoError(t, err)
	require.Equal(t, []model.Todo{a, c}, out)

	require.NoError(t, b.Delete(ctx, model.ResourceTodo, a.ID))
	require.ErrorIs(t, b.Delete(ctx, model.ResourceTodo, a.ID), errs.ErrNotFound)

	out, err = b.List(ctx, model.ResourceTodo)
	require.NoError(t, err)
	require.Equal(t, []model.Todo{c}, out)
}

func TestBackend_Create_RejectsAssignedID(t *testing.T) {
	t.Parallel()
	b := newBackend(t, testCfg(t.TempDir()))

	_, err := b.Create(context.Background(), model.ResourceTodo, model.Todo{ID: "x", Title: "t"})
	require.Error(t, err)
}

func TestBackend_Persists_AcrossHandles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	b1 := New(testCfg(dir), zaptest.NewLogger(t))
	require.NoError(t, b1.Init(ctx))
	created, err := b1.Create(ctx, model.ResourceTodo, model.NewTodo("Buy milk"))
	require.NoError(t, err)
	require.NoError(t, b1.Close())

	b2 := newBackend(t, testCfg(dir))
	out, err := b2.List(ctx, model.ResourceTodo)
	require.NoError(t, err)
	require.Equal(t, []model.Todo{created}, out)
}

func TestBackend_Namespaces_AreIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	one := newBackend(t, testCfg(dir))
	otherCfg := testCfg(dir)
	otherCfg.Namespace = "other"
	other := newBackend(t, otherCfg)

	_, err := one.Create(ctx, model.ResourceTodo, model.NewTodo("A"))
	require.NoError(t, err)

	out, err := other.List(ctx, model.ResourceTodo)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestBackend_Signin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	cfg := testCfg(dir)
	cfg.Username, cfg.Password = "root", "root"

	// first signin defines the root user
	first := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, first.Init(ctx))
	require.NoError(t, first.Close())

	again := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, again.Init(ctx))
	require.NoError(t, again.Close())

	bad := cfg
	bad.Password = "nope"
	err := New(bad, zaptest.NewLogger(t)).Init(ctx)
	require.ErrorIs(t, err, errs.ErrBackendUnavailable)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	var bu *errs.BackendUnavailableError
	require.ErrorAs(t, err, &bu)
	require.Equal(t, errs.CauseSignin, bu.Cause)

	stranger := cfg
	stranger.Username = "mallory"
	require.ErrorIs(t, New(stranger, zaptest.NewLogger(t)).Init(ctx), errs.ErrUnauthorized)
}

func TestBackend_Signin_LocksAfterRepeatedFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := testCfg(t.TempDir())
	cfg.Username, cfg.Password = "root", "root"
	root := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, root.Init(ctx))
	require.NoError(t, root.Close())

	bad := cfg
	bad.Password = "nope"
	for i := 0; i < limiter.DefaultMaxFails; i++ {
		err := New(bad, zaptest.NewLogger(t)).Init(ctx)
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	}

	// even the right password is refused while locked
	err := New(cfg, zaptest.NewLogger(t)).Init(ctx)
	require.ErrorIs(t, err, errs.ErrRateLimited)
	var bu *errs.BackendUnavailableError
	require.ErrorAs(t, err, &bu)
	require.Equal(t, errs.CauseSignin, bu.Cause)
}

func TestBackend_Init_Failures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// a regular file where the data directory should be
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	cases := []struct {
		name  string
		cfg   config.Backend
		cause string
	}{
		{"empty address", testCfg(""), errs.CauseConnect},
		{"address is a file", testCfg(file), errs.CauseConnect},
		{"escaping namespace", func() config.Backend {
			c := testCfg(t.TempDir())
			c.Namespace = "../x"
			return c
		}(), errs.CauseUse},
		{"empty database", func() config.Backend {
			c := testCfg(t.TempDir())
			c.Database = ""
			return c
		}(), errs.CauseUse},
	}
	for _, tc := range cases {
		b := New(tc.cfg, zaptest.NewLogger(t))
		err := b.Init(ctx)
		var bu *errs.BackendUnavailableError
		require.ErrorAs(t, err, &bu, tc.name)
		require.Equal(t, tc.cause, bu.Cause, tc.name)

		_, err = b.List(ctx, model.ResourceTodo)
		require.ErrorIs(t, err, errNotInitialized, tc.name)
	}
}

func TestQuote(t *testing.T) {
	t.Parallel()
	require.Equal(t, `"todo"`, quote("todo"))
	require.Equal(t, `"a""b"`, quote(`a"b`))
}

func TestDSN(t *testing.T) {
	t.Parallel()
	got, err := dsn("/tmp/x.db")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(got, "file:///tmp/x.db?"), got)
	require.Contains(t, got, "_pragma=foreign_keys%281%29")
	require.Contains(t, got, "_pragma=busy_timeout%285000%29")

	got, err = dsn("/tmp/my#data/50%/what?/x.db")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(got, "file:///tmp/my%23data/50%25/what%3F/x.db?"), got)
	require.Equal(t, 1, strings.Count(got, "?"))
	require.NotContains(t, got, "#")
}

func TestDSN_RelativePathIsAbsolute(t *testing.T) {
	t.Parallel()
	got, err := dsn("x.db")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(got, "file:///"), got)
}

func TestBackend_Init_SpecialCharactersInAddress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, name := range []string{"my#data", "50%data", "what?data"} {
		root := t.TempDir()
		cfg := testCfg(filepath.Join(root, name))
		b := newBackend(t, cfg)

		_, err := b.Create(ctx, model.ResourceTodo, model.NewTodo("Buy milk"))
		require.NoError(t, err, name)
		out, err := b.List(ctx, model.ResourceTodo)
		require.NoError(t, err, name)
		require.Len(t, out, 1, name)

		_, err = os.Stat(filepath.Join(cfg.Address, systemFile))
		require.NoError(t, err, name)
		_, err = os.Stat(filepath.Join(cfg.Address, cfg.Namespace, cfg.Database+".db"))
		require.NoError(t, err, name)

		entries, err := os.ReadDir(root)
		require.NoError(t, err)
		require.Len(t, entries, 1, "no stray files next to %s", name)
		require.Equal(t, name, entries[0].Name())
	}
}
