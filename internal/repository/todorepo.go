// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/todosync/internal/model"
)

// TodoRepository provides CRUD access to a todo collection.
type TodoRepository interface {
	// List returns every record of the resource in backend-native order.
	List(ctx context.Context, resource string) ([]model.Todo, error)
	// Create persists t (its ID must be zero) and returns it with the assigned ID.
	Create(ctx context.Context, resource string, t model.Todo) (model.Todo, error)
	// Delete removes a record; errs.ErrNotFound if it does not exist.
	Delete(ctx context.Context, resource string, id model.ID) error
}

// Backend is a persistence engine: a repository plus its connection lifecycle.
type Backend interface {
	TodoRepository

	// Init connects, authenticates when credentials are configured, and selects
	// the namespace and database. Failures are *errs.BackendUnavailableError.
	Init(ctx context.Context) error
	// Close releases the connection.
	Close() error
}
