package app

import (
	"time"

	"crmapp/internal/board"
	"crmapp/internal/calendar"
	"crmapp/internal/host"
	"crmapp/internal/models"
)

// NoticeKind is the severity of a transient notification.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeWarning NoticeKind = "warning"
	NoticeError   NoticeKind = "error"
)

// Notice is an auto-dismissing message shown after an action.
type Notice struct {
	ID      string     `json:"id"`
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// TaskRow is a task with its display strings resolved.
type TaskRow struct {
	models.Task
	StageName     string `json:"stage_name,omitempty"`
	PriorityLabel string `json:"priority_label"`
	DueLabel      string `json:"due_label,omitempty"`
	CreatedLabel  string `json:"created_label,omitempty"`
}

// TaskList is a capped bucket of rows plus the size of the full match.
type TaskList struct {
	Rows  []TaskRow `json:"rows"`
	Count int       `json:"count"`
}

// Column is one stage of the board.
type Column struct {
	StageID int64     `json:"stage_id"`
	Name    string    `json:"name"`
	Rows    []TaskRow `json:"rows"`
}

// WorkspaceItem is an entry of the workspace switcher.
type WorkspaceItem struct {
	models.Workspace
	Current bool `json:"current"`
}

// CalendarView is the month grid and the selected day's tasks.
type CalendarView struct {
	Label         string            `json:"label"`
	Weekdays      []string          `json:"weekdays"`
	Weeks         [][]calendar.Cell `json:"weeks"`
	Selected      calendar.Date     `json:"selected"`
	SelectedTitle string            `json:"selected_title,omitempty"`
	Day           []TaskRow         `json:"day"`
	Notes         []models.Note     `json:"notes,omitempty"`
}

// ModalView describes the open dialog. Form is what the task form shows:
// the rejected draft, the task being edited, or nothing.
type ModalView struct {
	Kind     Modal               `json:"kind"`
	Editing  bool                `json:"editing"`
	Task     *TaskRow            `json:"task,omitempty"`
	Form     TaskForm            `json:"form"`
	Priority models.Priority     `json:"priority"`
	Stages   []Column            `json:"stages,omitempty"`
	Presets  []models.RolePreset `json:"presets,omitempty"`
	Member   *models.Member      `json:"member,omitempty"`
	Note     *models.Note        `json:"note,omitempty"`
	NoteDate string              `json:"note_date,omitempty"`

	Confirm        ConfirmAction `json:"confirm,omitempty"`
	ConfirmTarget  int64         `json:"confirm_target,omitempty"`
	ConfirmMessage string        `json:"confirm_message,omitempty"`
}

// ViewModel is everything a renderer needs for one frame.
type ViewModel struct {
	Loaded    bool        `json:"loaded"`
	UserID    int64       `json:"user_id"`
	Greeting  string      `json:"greeting"`
	FullName  string      `json:"full_name"`
	Handle    string      `json:"handle"`
	DateLabel string      `json:"date_label"`
	Theme     host.Scheme `json:"theme"`

	Page      Page   `json:"page"`
	PageTitle string `json:"page_title"`
	ShowAdd   bool   `json:"show_add"`

	Workspace  models.Workspace `json:"workspace"`
	Workspaces []WorkspaceItem  `json:"workspaces"`

	Stats   models.Stats `json:"stats"`
	Percent int          `json:"percent"`
	Today   TaskList     `json:"today"`
	Urgent  TaskList     `json:"urgent"`

	TasksView TasksView    `json:"tasks_view"`
	Filter    board.Filter `json:"filter"`
	Board     []Column     `json:"board"`
	List      []TaskRow    `json:"list"`

	Calendar CalendarView `json:"calendar"`

	Achievements     []board.Achievement `json:"achievements"`
	Members          []models.Member     `json:"members"`
	CanManageMembers bool                `json:"can_manage_members"`

	Modal   ModalView `json:"modal"`
	Notices []Notice  `json:"notices,omitempty"`
}

// View projects State and Snapshot. It has no side effects.
func (c *Controller) View(now time.Time) ViewModel {
	now = now.In(c.opts.Location)
	today := calendar.DateOf(now)
	st, snap := c.state, c.snap

	name := c.displayName
	if name == "" {
		name = snap.User.FullName
	}
	if name == "" {
		name = c.opts.FallbackName
	}

	stages := c.stageNames()
	row := func(t models.Task) TaskRow {
		return TaskRow{
			Task:          t,
			StageName:     stages[stageKey(t)],
			PriorityLabel: board.PriorityLabel(t.Priority),
			DueLabel:      board.DueLabel(t, today),
			CreatedLabel:  board.CreatedLabel(t.CreatedAt, now),
		}
	}
	toRows := func(tasks []models.Task) []TaskRow {
		out := make([]TaskRow, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, row(t))
		}
		return out
	}
	bucket := func(b board.Bucket) TaskList {
		return TaskList{Rows: toRows(b.Tasks), Count: b.Count}
	}

	vm := ViewModel{
		Loaded:    snap.Loaded,
		UserID:    st.UserID,
		Greeting:  "👋 Hi, " + name + "!",
		FullName:  snap.User.FullName,
		Handle:    snap.User.Handle(),
		DateLabel: now.Format("Monday, 2 January"),
		Theme:     st.Theme,

		Page:      st.Page,
		PageTitle: st.Page.Title(),
		ShowAdd:   st.Page != PageProfile,

		Workspace: snap.Workspace,

		Stats:   snap.Stats,
		Percent: snap.Stats.Percent(),
		Today:   bucket(board.Today(snap.Tasks, today, c.opts.DayKey, c.opts.Location, c.opts.Limit)),
		Urgent:  bucket(board.Urgent(snap.Tasks, c.opts.Limit)),

		TasksView: st.TasksView,
		Filter:    st.Filter,
		Board:     c.columns(row),
		List:      toRows(board.FilterByStatus(snap.Tasks, st.Filter)),

		Achievements: board.Achievements(snap.Stats.Done),
		Members:      snap.Members,
	}

	for _, ws := range snap.Workspaces {
		vm.Workspaces = append(vm.Workspaces, WorkspaceItem{Workspace: ws, Current: ws.ID == st.WorkspaceID})
	}
	vm.CanManageMembers = c.canManageMembers()

	year, month := calendar.MonthOf(now, st.MonthOffset)
	days := board.Days(snap.Tasks, c.opts.DayKey, c.opts.Location)
	vm.Calendar = CalendarView{
		Label:    calendar.Label(year, month),
		Weekdays: calendar.Weekdays[:],
		Weeks:    calendar.Weeks(calendar.Grid(year, month, today, st.SelectedDate, func(d calendar.Date) bool { return days[d] })),
		Selected: st.SelectedDate,
	}
	if !st.SelectedDate.IsZero() {
		vm.Calendar.SelectedTitle = calendar.DayTitle(st.SelectedDate)
		vm.Calendar.Day = toRows(board.OnDay(snap.Tasks, st.SelectedDate, c.opts.DayKey, c.opts.Location))
		vm.Calendar.Notes = snap.NotesOn(st.SelectedDate.String())
	}

	vm.Modal = ModalView{Kind: st.Modal, Editing: st.Editing, Priority: st.Priority}
	if t, ok := snap.Task(st.SelectedTaskID); ok && st.SelectedTaskID != 0 {
		r := row(t)
		vm.Modal.Task = &r
	}
	switch st.Modal {
	case ModalForm:
		switch {
		case st.Draft != nil:
			vm.Modal.Form = *st.Draft
		case st.Editing && vm.Modal.Task != nil:
			t := vm.Modal.Task
			vm.Modal.Form = TaskForm{
				Title:       t.Title,
				Description: t.Description,
				Priority:    t.Priority,
				DueDate:     t.DueDate,
				DueTime:     t.DueTime,
				Assignee:    t.AssignedUsername,
			}
		}
	case ModalTask:
		vm.Modal.Stages = vm.Board
	case ModalMember:
		vm.Modal.Presets = c.presets
	case ModalMemberEdit:
		vm.Modal.Presets = c.presets
		if m, ok := snap.Member(st.SelectedMemberID); ok {
			vm.Modal.Member = &m
		}
	case ModalNote:
		vm.Modal.NoteDate = today.String()
		if !st.SelectedDate.IsZero() {
			vm.Modal.NoteDate = st.SelectedDate.String()
		}
		if n, ok := snap.Note(st.SelectedNoteID); ok {
			vm.Modal.Note = &n
			vm.Modal.Editing = true
			if n.NoteDate != "" {
				vm.Modal.NoteDate = n.NoteDate
			}
		}
	case ModalConfirm:
		vm.Modal.Confirm = st.Confirm
		vm.Modal.ConfirmTarget = st.ConfirmTarget
		switch st.Confirm {
		case ConfirmDeleteTask:
			if t, ok := snap.Task(st.ConfirmTarget); ok {
				vm.Modal.ConfirmMessage = "Delete task \"" + t.Title + "\"?"
			}
		case ConfirmRemoveMember:
			if m, ok := snap.Member(st.ConfirmTarget); ok {
				vm.Modal.ConfirmMessage = "Remove " + m.FullName + " from the workspace?"
			}
		case ConfirmDeleteNote:
			if n, ok := snap.Note(st.ConfirmTarget); ok {
				vm.Modal.ConfirmMessage = "Delete note \"" + n.Title + "\"?"
			}
		}
	}
	return vm
}

// canManageMembers reads the caller's flag from the workspace listing, which
// carries the membership columns, and from the caller's own member row.
func (c *Controller) canManageMembers() bool {
	if ws, ok := c.snap.workspace(c.state.WorkspaceID); ok && bool(ws.CanManageMembers) {
		return true
	}
	m, ok := c.snap.Member(c.snap.User.ID)
	return ok && c.snap.User.ID != 0 && bool(m.CanManageMembers)
}

func (c *Controller) columns(row func(models.Task) TaskRow) []Column {
	funnel, ok := c.snap.Funnel()
	if !ok {
		return nil
	}
	cols := make([]Column, 0, len(funnel.Stages))
	for _, s := range funnel.Stages {
		col := Column{StageID: s.ID, Name: s.Name, Rows: make([]TaskRow, 0, len(s.Tasks))}
		for _, t := range s.Tasks {
			col.Rows = append(col.Rows, row(t))
		}
		cols = append(cols, col)
	}
	return cols
}

func stageKey(t models.Task) int64 {
	if t.StageID == nil {
		return 0
	}
	return *t.StageID
}

func (c *Controller) stageNames() map[int64]string {
	names := make(map[int64]string)
	for _, f := range c.snap.Funnels {
		for _, s := range f.Stages {
			names[s.ID] = s.Name
		}
	}
	return names
}
