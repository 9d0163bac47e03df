package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmapp/internal/app"
	"crmapp/internal/backend"
	"crmapp/internal/backend/backendtest"
	"crmapp/internal/board"
	"crmapp/internal/calendar"
	"crmapp/internal/host"
	"crmapp/internal/models"
	"crmapp/internal/storage/memory"
)

const telegramID = 487593106

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type fixture struct {
	fake     *backendtest.Server
	client   *backend.Client
	personal models.Workspace
	store    *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := backendtest.New(nil)
	fake.Now = func() time.Time { return now.Add(-time.Hour) }
	_, personal := fake.AddUser(telegramID, "alice", "Alice Smith")

	srv := httptest.NewServer(fake.Engine())
	t.Cleanup(srv.Close)

	return &fixture{
		fake:     fake,
		client:   backend.New(srv.URL),
		personal: personal,
		store:    memory.New(),
	}
}

func (f *fixture) options() app.Options {
	return app.Options{
		FallbackUserID: telegramID,
		FallbackName:   "Friend",
		Location:       time.UTC,
		Now:            func() time.Time { return now },
	}
}

func (f *fixture) controller(t *testing.T, opts app.Options, extra ...app.Option) *app.Controller {
	t.Helper()
	extra = append([]app.Option{app.WithStore(f.store)}, extra...)
	c := app.New(f.client, opts, extra...)
	require.NoError(t, c.Bootstrap(context.Background()))
	c.TakeNotices()
	return c
}

func ids(rows []app.TaskRow) []int64 {
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}

func boardIDs(cols []app.Column) []int64 {
	var out []int64
	for _, col := range cols {
		out = append(out, ids(col.Rows)...)
	}
	return out
}

func lastNotice(t *testing.T, c *app.Controller) app.Notice {
	t.Helper()
	notices := c.TakeNotices()
	require.NotEmpty(t, notices)
	return notices[len(notices)-1]
}

func TestBootstrapLoadsPersonalWorkspace(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())

	assert.Equal(t, int64(telegramID), c.UserID())
	assert.Equal(t, f.personal.ID, c.WorkspaceID())

	vm := c.View(now)
	assert.True(t, vm.Loaded)
	assert.Equal(t, "👋 Hi, Alice Smith!", vm.Greeting)
	assert.Equal(t, "@alice", vm.Handle)
	assert.Equal(t, "Sunday, 18 October", vm.DateLabel)
	assert.Equal(t, app.PageHome, vm.Page)
	require.Len(t, vm.Board, 3)
	assert.Equal(t, "To do", vm.Board[0].Name)
	require.Len(t, vm.Workspaces, 1)
	assert.True(t, vm.Workspaces[0].Current)
	assert.True(t, vm.CanManageMembers)
	assert.Equal(t, "October 2026", vm.Calendar.Label)
}

func TestBootstrapPrefersHostIdentity(t *testing.T) {
	f := newFixture(t)
	h := host.NewRecorder(host.Identity{UserID: telegramID, FirstName: "Ali"}, true, host.SchemeLight)
	c := f.controller(t, app.Options{Location: time.UTC}, app.WithHost(h))

	vm := c.View(now)
	assert.Equal(t, "👋 Hi, Ali!", vm.Greeting)
	assert.Equal(t, host.SchemeLight, vm.Theme)
}

func TestBootstrapWithoutIdentity(t *testing.T) {
	f := newFixture(t)
	c := app.New(f.client, app.Options{Location: time.UTC})

	err := c.Bootstrap(context.Background())
	assert.ErrorIs(t, err, app.ErrNoIdentity)
	assert.Equal(t, app.NoticeError, lastNotice(t, c).Kind)
	assert.Zero(t, f.fake.TotalCalls())
}

// Scenario A: a high priority task without due date is urgent but not today.
func TestCreateHighPriorityWithoutDueDate(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()

	c.NewTask(ctx)
	c.SaveTask(ctx, app.TaskForm{Title: "Buy milk", Priority: models.PriorityHigh})

	n := lastNotice(t, c)
	assert.Equal(t, app.NoticeSuccess, n.Kind)
	assert.Equal(t, "Task created", n.Message)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, app.ModalNone, c.State().Modal)

	require.NoError(t, c.LoadWorkspace(ctx, f.personal.ID))
	vm := c.View(now)
	require.Len(t, vm.Urgent.Rows, 1)
	assert.Equal(t, "Buy milk", vm.Urgent.Rows[0].Title)
	assert.Equal(t, 1, vm.Urgent.Count)
	assert.Empty(t, vm.Today.Rows)
	assert.Zero(t, vm.Today.Count)
}

// Scenario B: a deleted task disappears from the board, the list and the day.
func TestDeleteRemovesTaskFromEveryView(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()

	c.SaveTask(ctx, app.TaskForm{Title: "Call Bob", DueDate: "2026-10-18"})
	c.SaveTask(ctx, app.TaskForm{Title: "Keep me", DueDate: "2026-10-18"})
	c.SelectDate(ctx, calendar.Date{Year: 2026, Month: time.October, Day: 18})

	vm := c.View(now)
	require.Len(t, vm.List, 2)
	target := vm.List[0].ID
	assert.Contains(t, boardIDs(vm.Board), target)
	assert.Contains(t, ids(vm.Calendar.Day), target)
	assert.Contains(t, ids(vm.Today.Rows), target)

	c.DeleteTask(host.WithConfirmation(ctx, true), target)
	assert.Equal(t, "Task deleted", lastNotice(t, c).Message)

	gone := func(vm app.ViewModel) {
		t.Helper()
		assert.NotContains(t, boardIDs(vm.Board), target)
		assert.NotContains(t, ids(vm.List), target)
		assert.NotContains(t, ids(vm.Calendar.Day), target)
		assert.Len(t, vm.List, 1)
	}
	gone(c.View(now))
	require.NoError(t, c.Reload(ctx))
	gone(c.View(now))
}

// Scenario C: an empty title warns and never reaches the backend.
func TestEmptyTitleIssuesNoRequest(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	before := f.fake.TotalCalls()

	c.NewTask(context.Background())
	c.SaveTask(context.Background(), app.TaskForm{Title: "   ", Priority: models.PriorityHigh})

	n := lastNotice(t, c)
	assert.Equal(t, app.NoticeWarning, n.Kind)
	assert.Equal(t, "Enter a title", n.Message)
	assert.Equal(t, before, f.fake.TotalCalls())
	assert.Equal(t, app.ModalForm, c.State().Modal, "form stays open")
}

func TestSaveWithoutWorkspaceWarns(t *testing.T) {
	f := newFixture(t)
	c := app.New(f.client, f.options())

	c.SaveTask(context.Background(), app.TaskForm{Title: "Orphan"})
	n := lastNotice(t, c)
	assert.Equal(t, app.NoticeWarning, n.Kind)
	assert.Equal(t, "No workspace selected", n.Message)
	assert.Zero(t, f.fake.TotalCalls())
}

func TestFailedSaveKeepsFormOpen(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()
	f.fake.FailNext(backendtest.RouteCreateTask, http.StatusForbidden, "No permission to create tasks")

	c.NewTask(ctx)
	c.SaveTask(ctx, app.TaskForm{Title: "Denied"})

	n := lastNotice(t, c)
	assert.Equal(t, app.NoticeError, n.Kind)
	assert.Equal(t, "No permission to create tasks", n.Message)
	assert.Equal(t, app.ModalForm, c.State().Modal)
	assert.Equal(t, 1, f.fake.Calls(backendtest.RouteCreateTask), "no retry")
	assert.Empty(t, c.View(now).List)
}

func TestRejectedFormKeepsInput(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()
	f.fake.FailNext(backendtest.RouteCreateTask, http.StatusInternalServerError, "database is locked")

	c.NewTask(ctx)
	form := app.TaskForm{Title: "Keep me", Description: "typed carefully", Priority: models.PriorityHigh, DueDate: "2026-10-20"}
	c.SaveTask(ctx, form)

	vm := c.View(now)
	assert.Equal(t, app.ModalForm, vm.Modal.Kind)
	assert.Equal(t, form, vm.Modal.Form)
	assert.Equal(t, models.PriorityHigh, vm.Modal.Priority)

	c.SaveTask(ctx, app.TaskForm{Description: "no title yet"})
	assert.Equal(t, "no title yet", c.View(now).Modal.Form.Description)

	restored := f.controller(t, f.options())
	assert.Equal(t, "no title yet", restored.View(now).Modal.Form.Description, "draft survives a restart")

	c.CloseModal(ctx)
	c.NewTask(ctx)
	assert.Equal(t, app.TaskForm{}, c.View(now).Modal.Form)
}

func TestEditFormShowsTask(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()

	c.SaveTask(ctx, app.TaskForm{Title: "Draft", Description: "details", Assignee: "bob"})
	c.EditTask(ctx, c.View(now).List[0].ID)

	form := c.View(now).Modal.Form
	assert.Equal(t, "Draft", form.Title)
	assert.Equal(t, "details", form.Description)
	assert.Equal(t, "bob", form.Assignee)
}

func TestEditTask(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()

	c.SaveTask(ctx, app.TaskForm{Title: "Draft", DueDate: "2026-10-19", Assignee: "@bob"})
	id := c.View(now).List[0].ID
	c.TakeNotices()

	c.EditTask(ctx, id)
	st := c.State()
	assert.Equal(t, app.ModalForm, st.Modal)
	assert.True(t, st.Editing)

	c.SaveTask(ctx, app.TaskForm{Title: "Final", Priority: models.PriorityLow})
	assert.Equal(t, "Task updated", lastNotice(t, c).Message)

	snap := c.Snapshot()
	task, ok := snap.Task(id)
	require.True(t, ok)
	assert.Equal(t, "Final", task.Title)
	assert.Equal(t, models.PriorityLow, task.Priority)
	assert.Empty(t, task.DueDate, "cleared fields are sent as empty")
	assert.Empty(t, task.AssignedUsername)
	assert.Len(t, f.fake.Tasks(f.personal.ID), 1)
}

func TestToggleRoundTripUpdatesStats(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()

	c.SaveTask(ctx, app.TaskForm{Title: "Ship"})
	id := c.View(now).List[0].ID

	c.ToggleTask(ctx, id)
	vm := c.View(now)
	assert.Equal(t, models.Stats{Done: 1, Total: 1}, vm.Stats)
	assert.Equal(t, 100, vm.Percent)
	assert.True(t, vm.Achievements[0].Unlocked)

	c.ToggleTask(ctx, id)
	snap := c.Snapshot()
	task, _ := snap.Task(id)
	assert.Equal(t, models.StatusTodo, task.Status)
	assert.Equal(t, models.Stats{Done: 0, Total: 1}, c.View(now).Stats)
}

func TestMutationAppliesReturnedEntity(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()
	users := f.fake.Calls(backendtest.RouteGetUser)
	workspaces := f.fake.Calls(backendtest.RouteGetWorkspace)

	c.SaveTask(ctx, app.TaskForm{Title: "No round trip"})

	assert.Equal(t, users, f.fake.Calls(backendtest.RouteGetUser))
	assert.Equal(t, workspaces, f.fake.Calls(backendtest.RouteGetWorkspace))
	vm := c.View(now)
	require.Len(t, vm.Board[0].Rows, 1)
	assert.Equal(t, "To do", vm.Board[0].Rows[0].StageName)
	assert.Equal(t, 1, vm.Stats.Total)
}

func TestReloadAfterMutationOption(t *testing.T) {
	f := newFixture(t)
	opts := f.options()
	opts.ReloadAfterMutation = true
	c := f.controller(t, opts)
	users := f.fake.Calls(backendtest.RouteGetUser)

	c.SaveTask(context.Background(), app.TaskForm{Title: "Round trip"})

	assert.Equal(t, users+1, f.fake.Calls(backendtest.RouteGetUser))
	assert.Len(t, c.View(now).List, 1)
}

func TestFailedReloadKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()
	c.SaveTask(ctx, app.TaskForm{Title: "Survivor"})
	c.TakeNotices()

	f.fake.FailNext(backendtest.RouteGetUser, http.StatusInternalServerError, "database is locked")
	assert.Error(t, c.Reload(ctx))

	assert.Equal(t, "database is locked", lastNotice(t, c).Message)
	assert.Len(t, c.View(now).List, 1)
}

func TestMoveTask(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()

	c.SaveTask(ctx, app.TaskForm{Title: "Progress"})
	vm := c.View(now)
	id := vm.List[0].ID
	done := vm.Board[2].StageID

	c.MoveTask(ctx, id, done)
	vm = c.View(now)
	assert.Empty(t, vm.Board[0].Rows)
	require.Len(t, vm.Board[2].Rows, 1)
	assert.Equal(t, id, vm.Board[2].Rows[0].ID)
	assert.Equal(t, "Done", vm.List[0].StageName)
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	h := host.NewRecorder(host.Identity{UserID: telegramID, FirstName: "Alice"}, true, host.SchemeDark)
	c := f.controller(t, f.options(), app.WithHost(h))
	ctx := context.Background()

	c.SaveTask(ctx, app.TaskForm{Title: "Precious"})
	id := c.View(now).List[0].ID
	h.Drain()

	c.DeleteTask(ctx, id)
	assert.Zero(t, f.fake.Calls(backendtest.RouteDeleteTask))
	vm := c.View(now)
	assert.Equal(t, app.ModalConfirm, vm.Modal.Kind)
	assert.Equal(t, app.ConfirmDeleteTask, vm.Modal.Confirm)
	assert.Equal(t, `Delete task "Precious"?`, vm.Modal.ConfirmMessage)

	c.DeleteTask(host.WithConfirmation(ctx, true), id)
	assert.Equal(t, 1, f.fake.Calls(backendtest.RouteDeleteTask))
	assert.Equal(t, app.ModalNone, c.State().Modal)
	assert.Contains(t, h.Drain(), host.Effect{Kind: "notification", Style: "success"})
}

func TestMembers(t *testing.T) {
	f := newFixture(t)
	f.fake.AddUser(111, "bob", "Bob")
	team, err := f.fake.AddWorkspace(telegramID, "Team")
	require.NoError(t, err)

	c := f.controller(t, f.options())
	ctx := context.Background()
	c.SwitchWorkspace(ctx, team.ID)
	assert.Equal(t, "Workspace selected", lastNotice(t, c).Message)
	assert.Equal(t, app.PageTasks, c.State().Page)
	assert.Equal(t, "owner", c.View(now).Workspace.RoleLabel())

	c.AddMember(ctx, app.MemberForm{Username: "  "})
	assert.Equal(t, app.NoticeWarning, lastNotice(t, c).Kind)
	assert.Zero(t, f.fake.Calls(backendtest.RouteAddMember))

	c.AddMember(ctx, app.MemberForm{Username: "@bob", CustomRole: "Designer"})
	assert.Equal(t, "@bob added", lastNotice(t, c).Message)
	members := c.View(now).Members
	require.Len(t, members, 2)

	c.AddMember(ctx, app.MemberForm{Username: "bob"})
	assert.Equal(t, "User is already in the team", lastNotice(t, c).Message)

	bob := members[1]
	assert.Equal(t, "Designer", bob.RoleLabel())
	c.RemoveMember(host.WithConfirmation(ctx, true), bob.ID)
	assert.Equal(t, "Member removed", lastNotice(t, c).Message)
	assert.Len(t, c.View(now).Members, 1)
}

func TestMemberManagementFollowsPermissions(t *testing.T) {
	f := newFixture(t)
	bob, _ := f.fake.AddUser(111, "bob", "Bob")
	team, err := f.fake.AddWorkspace(telegramID, "Team")
	require.NoError(t, err)

	alice := f.controller(t, f.options())
	ctx := context.Background()
	alice.SwitchWorkspace(ctx, team.ID)
	alice.AddMember(ctx, app.MemberForm{Username: "bob"})
	assert.True(t, alice.View(now).CanManageMembers)

	opts := f.options()
	opts.FallbackUserID = 111
	viewer := f.controller(t, opts)
	viewer.SwitchWorkspace(ctx, team.ID)
	vm := viewer.View(now)
	require.Len(t, vm.Members, 2)
	assert.Equal(t, "member", vm.Workspace.Role)
	assert.False(t, vm.CanManageMembers)

	alice.EditMember(ctx, bob.ID)
	modal := alice.View(now).Modal
	assert.Equal(t, app.ModalMemberEdit, modal.Kind)
	require.NotNil(t, modal.Member)
	assert.Equal(t, "Bob", modal.Member.FullName)

	alice.UpdateMember(ctx, bob.ID, app.MemberForm{
		Role:        "team_lead",
		Permissions: models.Permissions{CanEditTasks: true, CanManageMembers: true},
	})
	assert.Equal(t, "Member updated", lastNotice(t, alice).Message)
	assert.Equal(t, app.ModalNone, alice.State().Modal)
	updated, ok := alice.Snapshot().Member(bob.ID)
	require.True(t, ok)
	assert.Equal(t, "team_lead", updated.Role)
	assert.True(t, bool(updated.CanManageMembers))
	assert.False(t, bool(updated.CanDeleteTasks), "unchecked boxes revoke")

	require.NoError(t, viewer.Reload(ctx))
	assert.True(t, viewer.View(now).CanManageMembers)
}

func TestUpdateUnknownMemberIsIgnored(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())

	c.UpdateMember(context.Background(), 999, app.MemberForm{Role: "admin"})
	assert.Zero(t, f.fake.Calls(backendtest.RouteUpdateMember))
	assert.Empty(t, c.TakeNotices())
}

func TestUnservedRoleUsesBuiltInPreset(t *testing.T) {
	f := newFixture(t)
	f.fake.Presets = []models.RolePreset{{ID: "intern", Name: "Intern"}}
	f.fake.AddUser(111, "bob", "Bob")
	team, err := f.fake.AddWorkspace(telegramID, "Team")
	require.NoError(t, err)

	c := f.controller(t, f.options())
	ctx := context.Background()
	c.SwitchWorkspace(ctx, team.ID)
	c.AddMember(ctx, app.MemberForm{Username: "bob", Role: "admin"})

	members := c.View(now).Members
	require.Len(t, members, 2)
	admin, ok := models.PresetFor("admin")
	require.True(t, ok)
	assert.Equal(t, admin.Permissions, members[1].Permissions)
}

func TestAssignTask(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()

	c.SaveTask(ctx, app.TaskForm{Title: "Hand off"})
	id := c.View(now).List[0].ID

	c.AssignTask(ctx, id, "  ")
	assert.Equal(t, "Enter a username", lastNotice(t, c).Message)
	assert.Zero(t, f.fake.Calls(backendtest.RouteAssignTask))

	c.AssignTask(ctx, id, "@bob")
	assert.Equal(t, "Assigned to @bob", lastNotice(t, c).Message)
	assert.Equal(t, "@bob", c.View(now).List[0].Assignee())
	assert.Equal(t, "bob", f.fake.Tasks(f.personal.ID)[0].AssignedUsername)
}

func TestNotes(t *testing.T) {
	f := newFixture(t)
	h := host.NewRecorder(host.Identity{UserID: telegramID, FirstName: "Alice"}, true, host.SchemeDark)
	c := f.controller(t, f.options(), app.WithHost(h))
	ctx := context.Background()
	day := calendar.Date{Year: 2026, Month: time.October, Day: 21}

	c.SaveNote(ctx, app.NoteForm{Title: " "})
	assert.Equal(t, "Enter a title", lastNotice(t, c).Message)
	c.SaveNote(ctx, app.NoteForm{Title: "Bad", Date: "21.10.2026"})
	assert.Equal(t, "Invalid date", lastNotice(t, c).Message)
	assert.Zero(t, f.fake.Calls(backendtest.RouteCreateNote))

	c.SaveNote(ctx, app.NoteForm{Title: "Today"})
	assert.Equal(t, "Note added", lastNotice(t, c).Message)

	c.SelectDate(ctx, day)
	c.NewNote(ctx)
	assert.Equal(t, "2026-10-21", c.View(now).Modal.NoteDate)
	c.SaveNote(ctx, app.NoteForm{Title: "Standup", Content: "notes", Color: "#4caf50"})
	assert.Equal(t, app.ModalNone, c.State().Modal)

	vm := c.View(now)
	require.Len(t, vm.Calendar.Notes, 1)
	note := vm.Calendar.Notes[0]
	assert.Equal(t, "Standup", note.Title)
	assert.Equal(t, "#4caf50", note.Color)
	assert.Len(t, c.Snapshot().NotesOn("2026-10-18"), 1)

	c.EditNote(ctx, note.ID)
	modal := c.View(now).Modal
	assert.Equal(t, app.ModalNote, modal.Kind)
	assert.True(t, modal.Editing)
	require.NotNil(t, modal.Note)
	c.SaveNote(ctx, app.NoteForm{Title: "Standup moved", Date: "2026-10-21"})
	assert.Equal(t, "Note updated", lastNotice(t, c).Message)
	edited := c.View(now).Calendar.Notes[0]
	assert.Equal(t, "Standup moved", edited.Title)
	assert.Empty(t, edited.Content, "an emptied field is cleared")
	assert.Equal(t, "#4caf50", edited.Color)

	c.DeleteNote(ctx, note.ID)
	assert.Zero(t, f.fake.Calls(backendtest.RouteDeleteNote))
	vm = c.View(now)
	assert.Equal(t, app.ConfirmDeleteNote, vm.Modal.Confirm)
	assert.Equal(t, `Delete note "Standup moved"?`, vm.Modal.ConfirmMessage)

	c.DeleteNote(host.WithConfirmation(ctx, true), note.ID)
	assert.Equal(t, "Note deleted", lastNotice(t, c).Message)
	assert.Empty(t, c.View(now).Calendar.Notes)
	assert.Len(t, f.fake.Notes(f.personal.ID), 1)
}

func TestFailedNotesLoadKeepsPage(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()
	c.SaveNote(ctx, app.NoteForm{Title: "Kept on the server"})

	f.fake.FailNext(backendtest.RouteListNotes, http.StatusInternalServerError, "boom")
	require.NoError(t, c.Reload(ctx))
	assert.Empty(t, c.Snapshot().Notes)
	assert.Equal(t, f.personal.ID, c.State().WorkspaceID)
}

func TestVanishedWorkspaceFallsBack(t *testing.T) {
	f := newFixture(t)
	team, err := f.fake.AddWorkspace(telegramID, "Team")
	require.NoError(t, err)

	c := f.controller(t, f.options())
	ctx := context.Background()
	c.SwitchWorkspace(ctx, team.ID)
	require.Equal(t, team.ID, c.State().WorkspaceID)

	f.fake.FailNext(backendtest.RouteGetWorkspace, http.StatusNotFound, "Not Found")
	require.NoError(t, c.Reload(ctx))
	assert.Equal(t, f.personal.ID, c.State().WorkspaceID)
	assert.Equal(t, "Personal", c.View(now).Workspace.Name)
}

func TestHomeBucketsAreCapped(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		c.SaveTask(ctx, app.TaskForm{Title: "Urgent", Priority: models.PriorityHigh, DueDate: "2026-10-18"})
	}
	vm := c.View(now)
	assert.Len(t, vm.Urgent.Rows, board.DefaultLimit)
	assert.Equal(t, 8, vm.Urgent.Count)
	assert.Len(t, vm.Today.Rows, board.DefaultLimit)
	assert.Equal(t, 8, vm.Today.Count)
}

func TestCreatedDateKey(t *testing.T) {
	f := newFixture(t)
	opts := f.options()
	opts.DayKey = board.CreatedDateKey
	c := f.controller(t, opts)

	c.SaveTask(context.Background(), app.TaskForm{Title: "Made today"})
	vm := c.View(now)
	require.Len(t, vm.Today.Rows, 1)

	var highlighted bool
	for _, week := range vm.Calendar.Weeks {
		for _, cell := range week {
			if cell.Day == 18 && !cell.OtherMonth {
				highlighted = cell.HasTasks && cell.Today
			}
		}
	}
	assert.True(t, highlighted)
}

func TestFilterRoundTrip(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()

	c.SaveTask(ctx, app.TaskForm{Title: "A"})
	c.SaveTask(ctx, app.TaskForm{Title: "B"})
	c.ToggleTask(ctx, c.View(now).List[0].ID)
	all := ids(c.View(now).List)

	c.SetFilter(ctx, board.FilterDone)
	assert.Len(t, c.View(now).List, 1)
	c.SetFilter(ctx, board.FilterTodo)
	assert.Len(t, c.View(now).List, 1)
	c.SetFilter(ctx, board.FilterAll)
	assert.Equal(t, all, ids(c.View(now).List))
}

func TestStateIsPersistedAndRestored(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()

	c.SwitchPage(ctx, app.PageCalendar)
	c.NextMonth(ctx)
	c.SetTasksView(ctx, app.ViewList)
	c.ToggleTheme(ctx)

	restored := f.controller(t, f.options())
	st := restored.State()
	assert.Equal(t, app.PageCalendar, st.Page)
	assert.Equal(t, 1, st.MonthOffset)
	assert.Equal(t, app.ViewList, st.TasksView)
	assert.Equal(t, host.SchemeLight, st.Theme)
	assert.Equal(t, "November 2026", restored.View(now).Calendar.Label)
	assert.Positive(t, f.store.Saves())
}

func TestModalsFollowSnapshot(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, f.options())
	ctx := context.Background()

	c.SaveTask(ctx, app.TaskForm{Title: "Look at me"})
	id := c.View(now).List[0].ID

	c.OpenTask(ctx, id)
	vm := c.View(now)
	assert.Equal(t, app.ModalTask, vm.Modal.Kind)
	require.NotNil(t, vm.Modal.Task)
	assert.Equal(t, "Look at me", vm.Modal.Task.Title)
	assert.Len(t, vm.Modal.Stages, 3)

	// Deleted elsewhere: the next load closes the stale dialog.
	require.NoError(t, f.client.DeleteTask(ctx, id))
	require.NoError(t, c.Reload(ctx))
	assert.Equal(t, app.ModalNone, c.State().Modal)

	c.OpenTask(ctx, 999)
	assert.Equal(t, app.ModalNone, c.State().Modal)

	c.NewMember(ctx)
	assert.Len(t, c.View(now).Modal.Presets, len(models.DefaultRolePresets))
	c.CloseModal(ctx)
	assert.Equal(t, app.ModalNone, c.State().Modal)
}
