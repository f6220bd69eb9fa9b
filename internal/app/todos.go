// Package app wires the todo service, the add and delete actions, the list
// resource and the view composer into one component.
package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/todosync/internal/action"
	"github.com/and161185/todosync/internal/model"
	"github.com/and161185/todosync/internal/reactive"
	"github.com/and161185/todosync/internal/resource"
	"github.com/and161185/todosync/internal/service"
	"github.com/and161185/todosync/internal/view"
)

// Options tunes the component.
type Options struct {
	// DispatchTimeout bounds every add and delete dispatch; 0 disables it.
	DispatchTimeout time.Duration
}

// Todos is the todo list component. The list is re-fetched whenever the add
// or delete version changes.
type Todos struct {
	svc service.TodoService
	log *zap.Logger

	add  *action.Action[string]
	del  *action.Action[model.ID]
	list *resource.Resource[[]model.Todo]

	mu          sync.Mutex
	dispatchErr error
	errChanged  reactive.Signal
}

// New constructs the component. ctx is the parent of every dispatch; Run must
// be called to start the list resource.
func New(ctx context.Context, svc service.TodoService, opts Options, log *zap.Logger) *Todos {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Todos{svc: svc, log: log}

	actOpts := []action.Option{
		action.WithLogger(log),
		action.WithContext(ctx),
		action.WithTimeout(opts.DispatchTimeout),
	}
	t.add = action.New("add", record(t, svc.Create), actOpts...)
	t.del = action.New("delete", record(t, svc.Delete), actOpts...)
	t.list = resource.New("todos", svc.List,
		[]*reactive.Signal{t.add.VersionSignal(), t.del.VersionSignal()}, log)
	return t
}

// record keeps the most recent dispatch outcome of either action.
func record[I any](t *Todos, fn func(context.Context, I) error) func(context.Context, I) error {
	return func(ctx context.Context, in I) error {
		err := fn(ctx, in)
		t.mu.Lock()
		t.dispatchErr = err
		t.mu.Unlock()
		t.errChanged.Bump()
		return err
	}
}

// Run drives the list resource until ctx is done.
func (t *Todos) Run(ctx context.Context) error { return t.list.Run(ctx) }

// AddTodo dispatches an add. The title shows up as a pending row until it settles.
func (t *Todos) AddTodo(title string) *action.Submission[string] { return t.add.Dispatch(title) }

// DeleteTodo dispatches a delete.
func (t *Todos) DeleteTodo(id model.ID) *action.Submission[model.ID] { return t.del.Dispatch(id) }

// View composes the current view-model.
func (t *Todos) View() view.Model {
	t.mu.Lock()
	derr := t.dispatchErr
	t.mu.Unlock()
	return view.Compose(t.list.Latest(), t.add.PendingInputs(), derr)
}

// Versions returns the add and delete versions, in that order.
func (t *Todos) Versions() reactive.Versions {
	return reactive.Snapshot(t.add.VersionSignal(), t.del.VersionSignal())
}

// Notify registers ch to be woken whenever View may have changed.
func (t *Todos) Notify(ch chan<- struct{}) (cancel func()) {
	return reactive.NotifyAll(ch, t.list.Changed(), t.add.Changed(), t.del.Changed(), &t.errChanged)
}

// Refetch re-runs the list fetch without a mutation, e.g. after a backend outage.
func (t *Todos) Refetch() { t.list.Refetch() }

// WaitSettled blocks until every dispatch in flight when it was called has
// settled and the list has been fetched at or after their completion.
// Dispatches issued while it waits are not waited for.
func (t *Todos) WaitSettled(ctx context.Context) (view.Model, error) {
	var done []<-chan struct{}
	for _, s := range t.add.Pending() {
		done = append(done, s.Done())
	}
	for _, s := range t.del.Pending() {
		done = append(done, s.Done())
	}
	for _, ch := range done {
		select {
		case <-ctx.Done():
			return t.View(), ctx.Err()
		case <-ch:
		}
	}
	if _, err := t.list.WaitFor(ctx, t.Versions()); err != nil {
		return t.View(), err
	}
	return t.View(), nil
}
