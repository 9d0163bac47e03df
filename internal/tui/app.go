// Package tui is a terminal front end over the same controller the web
// pages use.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"crmapp/internal/app"
	"crmapp/internal/board"
	"crmapp/internal/calendar"
	"crmapp/internal/host"
	"crmapp/internal/models"
)

const noticeTTL = 3 * time.Second

type noticeExpiredMsg struct{ id string }

// bootstrappedMsg carries the outcome of the first load.
type bootstrappedMsg struct{ err error }

// Model drives one controller from the keyboard. Controller calls run
// synchronously inside Update, which bubbletea never runs concurrently.
type Model struct {
	ctx  context.Context
	ctrl *app.Controller
	host *host.Recorder

	vm      app.ViewModel
	notices []app.Notice
	cursor  int
	adding  bool
	input   textinput.Model
	err     error

	width  int
	height int
}

// New wraps ctrl. The controller is bootstrapped by Init.
func New(ctx context.Context, ctrl *app.Controller) Model {
	ti := textinput.New()
	ti.Placeholder = "What needs to be done?"
	ti.CharLimit = 200

	// The terminal has no identity of its own; the controller falls back to
	// its configured user.
	h := host.NewRecorder(host.Identity{}, false, host.SchemeDark)
	ctrl.SetHost(h)
	return Model{ctx: ctx, ctrl: ctrl, host: h, input: ti}
}

// Init loads the user's data before the first frame.
func (m Model) Init() tea.Cmd {
	err := m.ctrl.Bootstrap(m.ctx)
	return func() tea.Msg { return bootstrappedMsg{err: err} }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case bootstrappedMsg:
		m.err = msg.err
		return m.refresh()

	case noticeExpiredMsg:
		for i, n := range m.notices {
			if n.ID == msg.id {
				m.notices = append(m.notices[:i:i], m.notices[i+1:]...)
				break
			}
		}
		return m, nil

	case tea.KeyMsg:
		if m.adding {
			return m.updateAdding(msg)
		}
		if m.vm.Modal.Kind == app.ModalConfirm {
			return m.updateConfirm(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := m.ctx
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "1", "2", "3", "4":
		m.ctrl.SwitchPage(ctx, app.Pages[msg.String()[0]-'1'])
		m.cursor = 0
	case "tab":
		m.ctrl.SwitchPage(ctx, nextPage(m.vm.Page))
		m.cursor = 0
	case "r":
		_ = m.ctrl.Reload(ctx)
	case "t":
		m.ctrl.ToggleTheme(ctx)
	case "w":
		if id, ok := nextWorkspace(m.vm.Workspaces); ok {
			m.ctrl.SwitchWorkspace(ctx, id)
			m.cursor = 0
		}
	case "j", "down":
		if m.cursor < len(m.rows())-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "a", "n":
		if m.vm.Page == app.PageProfile {
			break
		}
		m.ctrl.NewTask(ctx)
		m.adding = true
		m.input.Reset()
		m.input.Focus()
		return m.refreshWith(textinput.Blink)
	case " ", "x":
		if row, ok := m.selected(); ok {
			m.ctrl.ToggleTask(ctx, row.ID)
		}
	case "d":
		if row, ok := m.selected(); ok {
			m.ctrl.DeleteTask(ctx, row.ID)
		}
	case "v":
		if m.vm.Page == app.PageTasks {
			view := app.ViewList
			if m.vm.TasksView == app.ViewList {
				view = app.ViewBoard
			}
			m.ctrl.SetTasksView(ctx, view)
			m.cursor = 0
		}
	case "f":
		if m.vm.Page == app.PageTasks {
			m.ctrl.SetFilter(ctx, nextFilter(m.vm.Filter))
			m.cursor = 0
		}
	case "<", "[":
		if m.vm.Page == app.PageCalendar {
			m.ctrl.PrevMonth(ctx)
		}
	case ">", "]":
		if m.vm.Page == app.PageCalendar {
			m.ctrl.NextMonth(ctx)
		}
	case "h", "left":
		if m.vm.Page == app.PageCalendar {
			m.ctrl.SelectDate(ctx, m.baseDate().AddDays(-1))
			m.cursor = 0
		}
	case "l", "right":
		if m.vm.Page == app.PageCalendar {
			m.ctrl.SelectDate(ctx, m.baseDate().AddDays(1))
			m.cursor = 0
		}
	}
	return m.refresh()
}

func (m Model) updateAdding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.adding = false
		m.input.Blur()
		m.ctrl.CloseModal(m.ctx)
		return m.refresh()
	case "tab":
		m.ctrl.SelectPriority(m.ctx, nextPriority(m.vm.Modal.Priority))
		return m.refresh()
	case "enter":
		m.ctrl.SaveTask(m.ctx, app.TaskForm{Title: m.input.Value()})
		if m.ctrl.State().Modal != app.ModalForm {
			m.adding = false
			m.input.Blur()
		}
		return m.refresh()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		ctx := host.WithConfirmation(m.ctx, true)
		modal := m.vm.Modal
		switch modal.Confirm {
		case app.ConfirmDeleteTask:
			m.ctrl.DeleteTask(ctx, modal.ConfirmTarget)
		case app.ConfirmRemoveMember:
			m.ctrl.RemoveMember(ctx, modal.ConfirmTarget)
		}
		if m.cursor > 0 {
			m.cursor--
		}
	case "n", "esc":
		m.ctrl.CloseModal(m.ctx)
	case "ctrl+c":
		return m, tea.Quit
	}
	return m.refresh()
}

func (m Model) refresh() (tea.Model, tea.Cmd) {
	return m.refreshWith(nil)
}

// refreshWith re-projects the controller, schedules expiry of new notices
// and batches extra.
func (m Model) refreshWith(extra tea.Cmd) (tea.Model, tea.Cmd) {
	m.host.Drain()
	m.vm = m.ctrl.View(m.ctrl.Now())
	if n := len(m.rows()); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}

	cmds := []tea.Cmd{extra}
	for _, n := range m.ctrl.TakeNotices() {
		m.notices = append(m.notices, n)
		id := n.ID
		cmds = append(cmds, tea.Tick(noticeTTL, func(time.Time) tea.Msg { return noticeExpiredMsg{id: id} }))
	}
	return m, tea.Batch(cmds...)
}

// rows are the selectable tasks of the current page.
func (m Model) rows() []app.TaskRow {
	switch m.vm.Page {
	case app.PageHome:
		return append(append([]app.TaskRow{}, m.vm.Today.Rows...), m.vm.Urgent.Rows...)
	case app.PageTasks:
		if m.vm.TasksView == app.ViewList {
			return m.vm.List
		}
		var out []app.TaskRow
		for _, col := range m.vm.Board {
			out = append(out, col.Rows...)
		}
		return out
	case app.PageCalendar:
		return m.vm.Calendar.Day
	}
	return nil
}

func (m Model) selected() (app.TaskRow, bool) {
	rows := m.rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return app.TaskRow{}, false
	}
	return rows[m.cursor], true
}

// baseDate is the selected day, or today when none is selected.
func (m Model) baseDate() calendar.Date {
	if d := m.vm.Calendar.Selected; !d.IsZero() {
		return d
	}
	return calendar.DateOf(m.ctrl.Now())
}

func nextPage(p app.Page) app.Page {
	for i, page := range app.Pages {
		if page == p {
			return app.Pages[(i+1)%len(app.Pages)]
		}
	}
	return app.PageHome
}

func nextFilter(f board.Filter) board.Filter {
	switch f {
	case board.FilterAll:
		return board.FilterTodo
	case board.FilterTodo:
		return board.FilterDone
	default:
		return board.FilterAll
	}
}

func nextPriority(p models.Priority) models.Priority {
	switch p {
	case models.PriorityLow:
		return models.PriorityMedium
	case models.PriorityMedium:
		return models.PriorityHigh
	default:
		return models.PriorityLow
	}
}

func nextWorkspace(items []app.WorkspaceItem) (int64, bool) {
	if len(items) < 2 {
		return 0, false
	}
	for i, ws := range items {
		if ws.Current {
			return items[(i+1)%len(items)].ID, true
		}
	}
	return items[0].ID, true
}
