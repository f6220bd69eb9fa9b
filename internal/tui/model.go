// Package tui renders the todo view-model in the terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/and161185/todosync/internal/action"
	"github.com/and161185/todosync/internal/model"
	"github.com/and161185/todosync/internal/view"
)

// Todos is what the terminal UI needs from the todo component.
type Todos interface {
	View() view.Model
	AddTodo(title string) *action.Submission[string]
	DeleteTodo(id model.ID) *action.Submission[model.ID]
	Refetch()
}

// changedMsg tells Update to re-read the view-model.
type changedMsg struct{}

// Model is the bubbletea model.
type Model struct {
	todos   Todos
	changes <-chan struct{}

	vm     view.Model
	cursor int
	input  textinput.Model
}

// New constructs the model. changes must be woken whenever todos.View may
// have changed; it is drained for the lifetime of the program.
func New(todos Todos, changes <-chan struct{}) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "What needs to be done?"
	ti.CharLimit = 200
	ti.Focus()
	return Model{todos: todos, changes: changes, input: ti, vm: todos.View()}
}

// Run starts the program and blocks until the user quits.
func Run(todos Todos, changes <-chan struct{}, opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(New(todos, changes), opts...).Run()
	return err
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForChange(m.changes))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changedMsg:
		m.vm = m.todos.View()
		m.clampCursor()
		return m, waitForChange(m.changes)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Add):
			if title := m.input.Value(); strings.TrimSpace(title) != "" {
				m.todos.AddTodo(title)
				m.input.SetValue("")
				m.vm = m.todos.View()
			}
			return m, nil
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.vm.Rows)-1 {
				m.cursor++
			}
			return m, nil
		case key.Matches(msg, keys.Refetch):
			m.todos.Refetch()
			return m, nil
		case key.Matches(msg, keys.Delete):
			if row, ok := m.selected(); ok && row.Deletable() {
				m.todos.DeleteTodo(row.ID)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.vm.Rows) {
		m.cursor = len(m.vm.Rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) selected() (view.Row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.vm.Rows) {
		return view.Row{}, false
	}
	return m.vm.Rows[m.cursor], true
}

func (m Model) View() string {
	var b strings.Builder

	status := ""
	if m.vm.Loading {
		status = mutedStyle.Render(" syncing…")
	}
	fmt.Fprintf(&b, "%s   %s %d%s\n\n",
		titleStyle.Render("Todos"),
		accentStyle.Render("Total"), len(m.vm.Confirmed()),
		status,
	)
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	var lines []string
	switch {
	case !m.vm.Loaded && len(m.vm.Rows) == 0:
		lines = append(lines, mutedStyle.Render("Loading…"))
	case m.vm.Err != nil:
		lines = append(lines, errorStyle.Render("✖ "+m.vm.Err.Error()))
	case m.vm.Empty():
		lines = append(lines, mutedStyle.Render("No todos yet"))
	}
	for i, r := range m.vm.Rows {
		text := r.Title
		if r.Pending {
			text = pendingStyle.Render(text + " (saving)")
		}
		prefix := "  "
		if i == m.cursor {
			prefix = selectedStyle.Render(">") + " "
		}
		lines = append(lines, prefix+text)
	}
	b.WriteString(panelStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")

	if m.vm.DispatchErr != nil {
		b.WriteString(errorStyle.Render("✖ " + m.vm.DispatchErr.Error()))
		b.WriteString("\n")
	}

	help := make([]string, 0, len(keys.help()))
	for _, k := range keys.help() {
		h := k.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	b.WriteString(helpStyle.Render(strings.Join(help, " • ")))
	return b.String()
}
