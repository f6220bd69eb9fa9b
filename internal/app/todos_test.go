package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/todosync/internal/backend"
	"github.com/and161185/todosync/internal/config"
	"github.com/and161185/todosync/internal/errs"
	"github.com/and161185/todosync/internal/model"
	"github.com/and161185/todosync/internal/repository"
	"github.com/and161185/todosync/internal/repository/sqlite"
	"github.com/and161185/todosync/internal/service"
	"github.com/and161185/todosync/internal/view"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// start runs the component until the test ends.
func start(t *testing.T, svc service.TodoService, opts Options) *Todos {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	todos := New(ctx, svc, opts, zaptest.NewLogger(t))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = todos.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return todos
}

// embedded returns a service over a fresh SQLite store.
func embedded(t *testing.T, cfg config.Backend) (*service.TodoServiceImpl, *backend.Provider) {
	t.Helper()
	log := zaptest.NewLogger(t)
	factory, err := backend.FactoryFor(cfg, log)
	require.NoError(t, err)
	p := backend.NewProvider(factory, log)
	t.Cleanup(func() { _ = p.Close() })
	return service.NewTodoService(p, 0, log), p
}

func embeddedCfg(dir string) config.Backend {
	return config.Backend{
		Variant:   config.Embedded,
		Address:   dir,
		Namespace: config.DefaultNamespace,
		Database:  config.DefaultDatabase,
	}
}

func settled(t *testing.T, todos *Todos) view.Model {
	t.Helper()
	m, err := todos.WaitSettled(waitCtx(t))
	require.NoError(t, err)
	return m
}

func titles(rows []view.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Title)
	}
	return out
}

func TestTodos_AddAppearsWithID(t *testing.T) {
	t.Parallel()

	svc, _ := embedded(t, embeddedCfg(t.TempDir()))
	todos := start(t, svc, Options{})

	for _, title := range []string{"one", "two", "  three  "} {
		sub := todos.AddTodo(title)
		<-sub.Done()
		require.NoError(t, sub.Err())
	}

	m := settled(t, todos)
	require.NoError(t, m.Err)
	require.Empty(t, m.PendingRows())
	require.Equal(t, []string{"one", "two", "three"}, titles(m.Confirmed()))
	for _, r := range m.Confirmed() {
		require.False(t, r.ID.IsZero())
		require.True(t, r.Deletable())
	}
}

func TestTodos_DeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	svc, _ := embedded(t, embeddedCfg(t.TempDir()))
	todos := start(t, svc, Options{})

	todos.AddTodo("A")
	todos.AddTodo("B")
	m := settled(t, todos)
	require.ElementsMatch(t, []string{"A", "B"}, titles(m.Confirmed()))

	var a model.ID
	for _, r := range m.Confirmed() {
		if r.Title == "A" {
			a = r.ID
		}
	}
	require.False(t, a.IsZero())

	first := todos.DeleteTodo(a)
	<-first.Done()
	require.NoError(t, first.Err())
	second := todos.DeleteTodo(a)
	<-second.Done()
	require.NoError(t, second.Err())

	m = settled(t, todos)
	require.Equal(t, []string{"B"}, titles(m.Confirmed()))
	require.NoError(t, m.DispatchErr)

	list, err := svc.List(waitCtx(t))
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "B", list[0].Title)
}

func TestTodos_VersionsCountCompletedDispatches(t *testing.T) {
	t.Parallel()

	svc, _ := embedded(t, embeddedCfg(t.TempDir()))
	todos := start(t, svc, Options{})

	todos.AddTodo("x")
	todos.AddTodo("")
	todos.AddTodo("y")
	todos.DeleteTodo("missing")
	m := settled(t, todos)

	require.Equal(t, []uint64{3, 1}, []uint64(todos.Versions()))
	require.Equal(t, []string{"x", "y"}, titles(m.Confirmed()))
}

// gatedService blocks every Create until release is closed.
type gatedService struct {
	mu      sync.Mutex
	items   []model.Todo
	next    int
	release chan struct{}
	listErr error
}

func (s *gatedService) List(context.Context) ([]model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]model.Todo(nil), s.items...), nil
}

func (s *gatedService) Create(ctx context.Context, title string) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.items = append(s.items, model.Todo{ID: model.ID(string(rune('a' + s.next - 1))), Title: title})
	return nil
}

func (s *gatedService) Delete(_ context.Context, id model.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items {
		if it.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	return nil
}

func (s *gatedService) setListErr(err error) {
	s.mu.Lock()
	s.listErr = err
	s.mu.Unlock()
}

func TestTodos_BuyMilk(t *testing.T) {
	t.Parallel()

	svc := &gatedService{release: make(chan struct{})}
	todos := start(t, svc, Options{})
	_ = settled(t, todos)

	sub := todos.AddTodo("Buy milk")
	m := todos.View()
	require.Empty(t, m.Confirmed())
	require.Equal(t, []view.Row{{Title: "Buy milk", Pending: true}}, m.PendingRows())
	require.True(t, sub.Pending())

	close(svc.release)
	m = settled(t, todos)
	require.False(t, sub.Pending())
	require.Empty(t, m.PendingRows())
	require.Len(t, m.Confirmed(), 1)
	require.Equal(t, "Buy milk", m.Confirmed()[0].Title)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.Todo{{ID: "a", Title: "Buy milk"}}, list)
}

func TestTodos_PendingShownOverListError(t *testing.T) {
	t.Parallel()

	boom := &errs.OperationError{Op: "list", Err: errors.New("boom")}
	svc := &gatedService{release: make(chan struct{})}
	svc.setListErr(boom)
	todos := start(t, svc, Options{})
	m := settled(t, todos)
	require.ErrorIs(t, m.Err, errs.ErrOperationFailed)

	todos.AddTodo("still here")
	m = todos.View()
	require.ErrorIs(t, m.Err, errs.ErrOperationFailed)
	require.Equal(t, []string{"still here"}, titles(m.PendingRows()))

	svc.setListErr(nil)
	close(svc.release)
	m = settled(t, todos)
	require.NoError(t, m.Err)
	require.Equal(t, []string{"still here"}, titles(m.Confirmed()))
}

func TestTodos_DispatchTimeout(t *testing.T) {
	t.Parallel()

	svc := &gatedService{release: make(chan struct{})}
	todos := start(t, svc, Options{DispatchTimeout: 20 * time.Millisecond})

	sub := todos.AddTodo("hung")
	<-sub.Done()
	require.ErrorIs(t, sub.Err(), context.DeadlineExceeded)

	m := settled(t, todos)
	require.Empty(t, m.PendingRows())
	require.ErrorIs(t, m.DispatchErr, context.DeadlineExceeded)
}

func TestTodos_Notify(t *testing.T) {
	t.Parallel()

	svc := &gatedService{release: make(chan struct{})}
	close(svc.release)
	todos := start(t, svc, Options{})
	_ = settled(t, todos)

	ch := make(chan struct{}, 1)
	cancel := todos.Notify(ch)
	defer cancel()

	todos.AddTodo("ping")
	select {
	case <-ch:
	case <-waitCtx(t).Done():
		t.Fatal("no change notification")
	}
	_ = settled(t, todos)
}

func TestTodos_InitFailureThenCorrectedConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	log := zaptest.NewLogger(t)
	var mu sync.Mutex
	cfg := embeddedCfg(blocker)
	p := backend.NewProvider(func() repository.Backend {
		mu.Lock()
		defer mu.Unlock()
		return sqlite.New(cfg, log)
	}, log)
	t.Cleanup(func() { _ = p.Close() })
	svc := service.NewTodoService(p, 0, log)
	todos := start(t, svc, Options{})

	m := settled(t, todos)
	var unavailable *errs.BackendUnavailableError
	require.ErrorAs(t, m.Err, &unavailable)
	require.Equal(t, errs.CauseConnect, unavailable.Cause)

	mu.Lock()
	cfg = embeddedCfg(filepath.Join(dir, "data"))
	mu.Unlock()

	todos.Refetch()
	require.Eventually(t, func() bool {
		v := todos.View()
		return v.Loaded && v.Err == nil
	}, 5*time.Second, 10*time.Millisecond)

	sub := todos.AddTodo("recovered")
	<-sub.Done()
	require.NoError(t, sub.Err())
	m = settled(t, todos)
	require.Equal(t, []string{"recovered"}, titles(m.Confirmed()))
}

func TestTodos_WaitSettled_ConcurrentDispatch(t *testing.T) {
	t.Parallel()

	svc := &gatedService{release: make(chan struct{})}
	close(svc.release)
	todos := start(t, svc, Options{})

	const n = 50
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			todos.AddTodo("item")
		}
	}()
	for i := 0; i < 10; i++ {
		_, err := todos.WaitSettled(waitCtx(t))
		require.NoError(t, err)
	}
	wg.Wait()

	m := settled(t, todos)
	require.Empty(t, m.PendingRows())
	require.Len(t, m.Confirmed(), n)
	require.Equal(t, uint64(n), todos.Versions()[0])
}

func TestTodos_WaitSettled_WaitsForInFlight(t *testing.T) {
	t.Parallel()

	svc := &gatedService{release: make(chan struct{})}
	todos := start(t, svc, Options{})
	_ = settled(t, todos)

	sub := todos.AddTodo("slow")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := todos.WaitSettled(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, sub.Pending())

	close(svc.release)
	m := settled(t, todos)
	require.False(t, sub.Pending())
	require.Equal(t, []string{"slow"}, titles(m.Confirmed()))
}
