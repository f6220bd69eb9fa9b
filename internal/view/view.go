// Package view merges the list resource, pending submissions and errors into
// the render-ready model handed to the rendering layer.
package view

import (
	"github.com/and161185/todosync/internal/model"
	"github.com/and161185/todosync/internal/resource"
)

// Row is one rendered line. Pending rows carry only the submitted title:
// no identifier, so no delete affordance.
type Row struct {
	ID      model.ID
	Title   string
	Pending bool
}

// Deletable reports whether the row can be dispatched to delete.
func (r Row) Deletable() bool { return !r.Pending && !r.ID.IsZero() }

// Model is the view-model.
type Model struct {
	// Rows holds confirmed items in fetch order followed by pending submissions.
	Rows []Row
	// Err is the list error; when set, confirmed items are not rendered.
	Err error
	// DispatchErr is the result of the most recent failed add or delete.
	DispatchErr error
	// Loaded is false until the first fetch settled.
	Loaded bool
	// Loading is true while a fetch is in flight.
	Loading bool
}

// Confirmed returns the rows that come from the authoritative list.
func (m Model) Confirmed() []Row {
	out := make([]Row, 0, len(m.Rows))
	for _, r := range m.Rows {
		if !r.Pending {
			out = append(out, r)
		}
	}
	return out
}

// PendingRows returns the optimistic rows.
func (m Model) PendingRows() []Row {
	out := make([]Row, 0, len(m.Rows))
	for _, r := range m.Rows {
		if r.Pending {
			out = append(out, r)
		}
	}
	return out
}

// Empty reports whether a successful fetch returned no items and nothing is pending.
func (m Model) Empty() bool { return m.Loaded && m.Err == nil && len(m.Rows) == 0 }

// Compose builds the view-model. A list error supersedes the confirmed items,
// but pending submissions are always shown.
func Compose(list resource.Snapshot[[]model.Todo], pending []string, dispatchErr error) Model {
	m := Model{
		Err:         list.Err,
		DispatchErr: dispatchErr,
		Loaded:      list.Loaded,
		Loading:     list.State == resource.Loading,
	}
	m.Rows = make([]Row, 0, len(list.Value)+len(pending))
	if list.Err == nil {
		for _, t := range list.Value {
			m.Rows = append(m.Rows, Row{ID: t.ID, Title: t.Title})
		}
	}
	for _, title := range pending {
		m.Rows = append(m.Rows, Row{Title: title, Pending: true})
	}
	return m
}
