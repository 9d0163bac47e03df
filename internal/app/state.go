package app

import (
	"context"

	"crmapp/internal/board"
	"crmapp/internal/calendar"
	"crmapp/internal/host"
	"crmapp/internal/models"
)

// Page is one of the bottom-navigation pages.
type Page string

const (
	PageHome     Page = "home"
	PageTasks    Page = "tasks"
	PageCalendar Page = "calendar"
	PageProfile  Page = "profile"
)

// Pages lists the navigation order.
var Pages = []Page{PageHome, PageTasks, PageCalendar, PageProfile}

// ParsePage returns PageHome for unknown input.
func ParsePage(raw string) Page {
	for _, p := range Pages {
		if string(p) == raw {
			return p
		}
	}
	return PageHome
}

// Title is the header shown for the page.
func (p Page) Title() string {
	switch p {
	case PageTasks:
		return "Tasks"
	case PageCalendar:
		return "Calendar"
	case PageProfile:
		return "Profile"
	default:
		return "My CRM"
	}
}

// TasksView switches the tasks page between the funnel board and the list.
type TasksView string

const (
	ViewBoard TasksView = "board"
	ViewList  TasksView = "list"
)

// ParseTasksView returns ViewBoard for unknown input.
func ParseTasksView(raw string) TasksView {
	if TasksView(raw) == ViewList {
		return ViewList
	}
	return ViewBoard
}

// Modal is the dialog currently open on top of the page.
type Modal string

const (
	ModalNone    Modal = ""
	ModalForm    Modal = "form"
	ModalTask    Modal = "task"
	ModalConfirm Modal = "confirm"
	ModalMember  Modal = "member"
	// ModalMemberEdit edits the role of SelectedMemberID.
	ModalMemberEdit Modal = "member-edit"
	// ModalNote creates a note, or edits SelectedNoteID.
	ModalNote Modal = "note"
)

// ConfirmAction is a destructive action waiting for the user's approval.
type ConfirmAction string

const (
	ConfirmDeleteTask   ConfirmAction = "delete-task"
	ConfirmRemoveMember ConfirmAction = "remove-member"
	ConfirmDeleteNote   ConfirmAction = "delete-note"
)

// State is the page state of one user. It is serializable and persisted
// between sessions; it never contains backend entities. SelectedMemberID is
// a user id. Draft holds the input of a rejected task form until the dialog
// is closed.
type State struct {
	UserID           int64           `json:"user_id"`
	WorkspaceID      int64           `json:"workspace_id"`
	Page             Page            `json:"page"`
	TasksView        TasksView       `json:"tasks_view"`
	Filter           board.Filter    `json:"filter"`
	SelectedDate     calendar.Date   `json:"selected_date"`
	MonthOffset      int             `json:"month_offset"`
	SelectedTaskID   int64           `json:"selected_task_id,omitempty"`
	SelectedMemberID int64           `json:"selected_member_id,omitempty"`
	SelectedNoteID   int64           `json:"selected_note_id,omitempty"`
	Modal            Modal           `json:"modal,omitempty"`
	Editing          bool            `json:"editing,omitempty"`
	Confirm          ConfirmAction   `json:"confirm,omitempty"`
	ConfirmTarget    int64           `json:"confirm_target,omitempty"`
	Draft            *TaskForm       `json:"draft,omitempty"`
	Priority         models.Priority `json:"priority"`
	Theme            host.Scheme     `json:"theme"`
}

// DefaultState is the state of a first visit.
func DefaultState(userID int64, theme host.Scheme) State {
	return State{
		UserID:    userID,
		Page:      PageHome,
		TasksView: ViewBoard,
		Filter:    board.FilterAll,
		Priority:  models.PriorityMedium,
		Theme:     theme,
	}
}

// normalize repairs values restored from an older or hand-edited record.
func (s *State) normalize() {
	s.Page = ParsePage(string(s.Page))
	s.TasksView = ParseTasksView(string(s.TasksView))
	s.Filter = board.ParseFilter(string(s.Filter))
	s.Priority = models.ParsePriority(string(s.Priority))
	s.Theme = host.ParseScheme(string(s.Theme))
}

func (s *State) closeModal() {
	s.Modal = ModalNone
	s.Editing = false
	s.SelectedTaskID = 0
	s.SelectedMemberID = 0
	s.SelectedNoteID = 0
	s.Confirm = ""
	s.ConfirmTarget = 0
	s.Draft = nil
}

// StateStore persists State per user.
type StateStore interface {
	Load(ctx context.Context, userID int64) (State, bool, error)
	Save(ctx context.Context, st State) error
	Delete(ctx context.Context, userID int64) error
}
