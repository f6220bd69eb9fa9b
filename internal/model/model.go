// Package model defines domain entities used by services and repositories.
package model

// ResourceTodo is the collection/table every backend stores items in.
const ResourceTodo = "todo"

// ID is an opaque backend-assigned identifier. The zero value means "not persisted yet".
type ID string

// IsZero reports whether the identifier has not been assigned by a backend.
func (id ID) IsZero() bool { return id == "" }

func (id ID) String() string { return string(id) }

// Todo is a single persisted task. Equality compares all three fields, so two
// items with different identifiers are never equal.
type Todo struct {
	ID        ID
	Title     string
	Completed bool
}

// NewTodo builds an item that has not been persisted yet.
func NewTodo(title string) Todo {
	return Todo{Title: title}
}

// Persisted reports whether the backend has assigned an identifier.
func (t Todo) Persisted() bool { return !t.ID.IsZero() }
