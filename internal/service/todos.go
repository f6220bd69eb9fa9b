// Package service implements the todo CRUD operations on top of the backend handle.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/todosync/internal/errs"
	"github.com/and161185/todosync/internal/model"
	"github.com/and161185/todosync/internal/repository"
)

// HandleProvider hands out the session's backend handle.
type HandleProvider interface {
	Handle(ctx context.Context) (repository.Backend, error)
}

// TodoService defines the CRUD operations over the "todo" collection.
type TodoService interface {
	// List returns every todo in backend-native order.
	List(ctx context.Context) ([]model.Todo, error)
	// Create persists a new todo. The assigned id is discarded; the next List surfaces it.
	Create(ctx context.Context, title string) error
	// Delete removes a todo. A missing record is not an error.
	Delete(ctx context.Context, id model.ID) error
}

type TodoServiceImpl struct {
	handles  HandleProvider
	addDelay time.Duration
	log      *zap.Logger
}

var _ TodoService = (*TodoServiceImpl)(nil)

// NewTodoService constructs TodoService. addDelay is slept before every create
// so that pending submissions stay visible for a while; 0 disables it.
func NewTodoService(handles HandleProvider, addDelay time.Duration, log *zap.Logger) *TodoServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	if addDelay < 0 {
		addDelay = 0
	}
	return &TodoServiceImpl{handles: handles, addDelay: addDelay, log: log}
}

// List fetches the whole collection.
func (s *TodoServiceImpl) List(ctx context.Context) ([]model.Todo, error) {
	h, err := s.handles.Handle(ctx)
	if err != nil {
		return nil, err
	}
	todos, err := h.List(ctx, model.ResourceTodo)
	if err != nil {
		return nil, translate("list", err)
	}
	return todos, nil
}

// Create validates the title, waits addDelay and persists the todo.
func (s *TodoServiceImpl) Create(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errs.ErrEmptyTitle
	}
	h, err := s.handles.Handle(ctx)
	if err != nil {
		return err
	}

	if s.addDelay > 0 {
		t := time.NewTimer(s.addDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return translate("create", ctx.Err())
		}
	}

	if _, err := h.Create(ctx, model.ResourceTodo, model.NewTodo(title)); err != nil {
		return translate("create", err)
	}
	return nil
}

// Delete removes the todo with id; deleting an absent todo succeeds.
func (s *TodoServiceImpl) Delete(ctx context.Context, id model.ID) error {
	if id.IsZero() {
		return errs.ErrEmptyID
	}
	h, err := s.handles.Handle(ctx)
	if err != nil {
		return err
	}
	err = h.Delete(ctx, model.ResourceTodo, id)
	if errors.Is(err, errs.ErrNotFound) {
		s.log.Debug("delete: already absent", zap.String("id", id.String()))
		return nil
	}
	if err != nil {
		return translate("delete", err)
	}
	return nil
}

// translate maps backend failures onto the error taxonomy.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrBackendUnavailable):
		return err
	default:
		return &errs.OperationError{Op: op, Err: err}
	}
}
