package render_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"crmapp/internal/app"
	"crmapp/internal/board"
	"crmapp/internal/calendar"
	"crmapp/internal/host"
	"crmapp/internal/models"
	"crmapp/internal/render"
)

func parse(t *testing.T, buf *bytes.Buffer) *html.Node {
	t.Helper()
	doc, err := html.Parse(buf)
	require.NoError(t, err)
	return doc
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func find(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func byID(t *testing.T, doc *html.Node, id string) *html.Node {
	t.Helper()
	nodes := find(doc, func(n *html.Node) bool { return attr(n, "id") == id })
	require.Len(t, nodes, 1, "element #%s", id)
	return nodes[0]
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func tasksIn(n *html.Node) []*html.Node {
	return find(n, func(n *html.Node) bool { return hasClass(n, "task") })
}

func row(id int64, title string, p models.Priority) app.TaskRow {
	return app.TaskRow{
		Task:          models.Task{ID: id, Title: title, Priority: p, Status: models.StatusTodo, Description: "notes"},
		StageName:     "New",
		PriorityLabel: board.PriorityLabel(p),
		DueLabel:      "Today",
		CreatedLabel:  "2h ago",
	}
}

func homeModel() app.ViewModel {
	urgent := make([]app.TaskRow, 0, 5)
	for i := int64(1); i <= 5; i++ {
		urgent = append(urgent, row(i, "Urgent", models.PriorityHigh))
	}
	return app.ViewModel{
		Loaded:    true,
		Greeting:  "👋 Hi, Alice!",
		FullName:  "Alice",
		DateLabel: "Sunday, 18 October",
		Theme:     host.SchemeDark,
		Page:      app.PageHome,
		PageTitle: app.PageHome.Title(),
		ShowAdd:   true,
		Stats:     models.Stats{Done: 1, Total: 4},
		Percent:   25,
		Today:     app.TaskList{Rows: []app.TaskRow{row(9, "Call", models.PriorityLow)}, Count: 1},
		Urgent:    app.TaskList{Rows: urgent, Count: 8},
	}
}

func renderPage(t *testing.T, vm app.ViewModel, effects ...host.Effect) *html.Node {
	t.Helper()
	r, err := render.New()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.Page(&buf, render.NewPage(vm, effects, "/ws")))
	return parse(t, &buf)
}

func TestHomePage(t *testing.T) {
	doc := renderPage(t, homeModel(), host.Effect{Kind: "impact", Style: "light"})

	assert.Equal(t, "👋 Hi, Alice!", text(byID(t, doc, "greeting")))
	assert.Equal(t, "1", text(byID(t, doc, "stat-done")))
	assert.Equal(t, "4", text(byID(t, doc, "stat-total")))
	assert.Equal(t, "25%", text(byID(t, doc, "stat-percent")))

	assert.Len(t, tasksIn(byID(t, doc, "urgent-tasks")), 5)
	assert.Equal(t, "8", text(byID(t, doc, "urgent-count")))
	assert.Len(t, tasksIn(byID(t, doc, "today-tasks")), 1)

	body := find(doc, func(n *html.Node) bool { return n.Data == "body" })[0]
	assert.False(t, hasClass(body, "light-theme"))
	assert.Contains(t, attr(body, "data-effects"), `"impact"`)
	assert.Equal(t, "/ws", attr(body, "data-live"))

	fab := find(doc, func(n *html.Node) bool { return hasClass(n, "fab") })
	assert.Len(t, fab, 1)

	active := find(doc, func(n *html.Node) bool { return hasClass(n, "nav-btn") && hasClass(n, "active") })
	require.Len(t, active, 1)
	assert.Equal(t, "home", attr(active[0], "data-page"))
}

func TestLightThemeAndProfileHidesAdd(t *testing.T) {
	vm := homeModel()
	vm.Theme = host.SchemeLight
	vm.Page = app.PageProfile
	vm.PageTitle = app.PageProfile.Title()
	vm.ShowAdd = false
	vm.Handle = "@alice"
	vm.Workspace = models.Workspace{ID: 1, Name: "Personal", IsPersonal: true}
	vm.Workspaces = []app.WorkspaceItem{
		{Workspace: models.Workspace{ID: 1, Name: "Personal", IsPersonal: true, Role: "owner"}, Current: true},
		{Workspace: models.Workspace{ID: 2, Name: "Team", Role: "member", CustomRole: "Designer"}},
	}
	vm.Achievements = board.Achievements(1)
	doc := renderPage(t, vm)

	body := find(doc, func(n *html.Node) bool { return n.Data == "body" })[0]
	assert.True(t, hasClass(body, "light-theme"))
	assert.Empty(t, find(doc, func(n *html.Node) bool { return hasClass(n, "fab") }))
	assert.Equal(t, "Alice", text(byID(t, doc, "profile-name")))
	assert.Equal(t, "@alice", text(byID(t, doc, "profile-username")))

	items := find(byID(t, doc, "workspaces"), func(n *html.Node) bool { return hasClass(n, "workspace-item") })
	require.Len(t, items, 2)
	assert.True(t, hasClass(items[0], "active"))
	assert.Contains(t, text(items[1]), "Designer")

	unlocked := find(byID(t, doc, "achievements"), func(n *html.Node) bool { return hasClass(n, "unlocked") })
	assert.Len(t, unlocked, 1)
	assert.Empty(t, find(doc, func(n *html.Node) bool { return attr(n, "id") == "members" }))
}

func TestDensities(t *testing.T) {
	tr := row(7, "Write report", models.PriorityMedium)
	vm := homeModel()
	vm.Urgent = app.TaskList{Rows: []app.TaskRow{tr}, Count: 1}
	vm.Today = app.TaskList{}
	item := tasksIn(byID(t, renderPage(t, vm), "urgent-tasks"))

	vm.Page = app.PageTasks
	vm.TasksView = app.ViewBoard
	vm.Board = []app.Column{{StageID: 1, Name: "New", Rows: []app.TaskRow{tr}}}
	card := tasksIn(byID(t, renderPage(t, vm), "board"))

	vm.Page = app.PageCalendar
	vm.Calendar = app.CalendarView{SelectedTitle: "18 October", Day: []app.TaskRow{tr}}
	detail := tasksIn(byID(t, renderPage(t, vm), "day-tasks"))

	out := map[render.Density]*html.Node{}
	for d, rows := range map[render.Density][]*html.Node{
		render.DensityItem:   item,
		render.DensityCard:   card,
		render.DensityDetail: detail,
	} {
		require.Len(t, rows, 1, d)
		assert.True(t, hasClass(rows[0], "task-"+string(d)))
		assert.True(t, hasClass(rows[0], "priority-medium"))
		out[d] = rows[0]
	}

	has := func(n *html.Node, class string) bool {
		return len(find(n, func(n *html.Node) bool { return hasClass(n, class) })) > 0
	}
	assert.True(t, has(out[render.DensityDetail], "task-desc"))
	assert.False(t, has(out[render.DensityItem], "task-desc"))
	assert.False(t, has(out[render.DensityCard], "task-stage"))
	assert.True(t, has(out[render.DensityItem], "task-stage"))
	assert.True(t, has(out[render.DensityCard], "task-created"))
	assert.False(t, has(out[render.DensityDetail], "task-created"))
}

func TestTasksPageBoardAndList(t *testing.T) {
	vm := homeModel()
	vm.Page = app.PageTasks
	vm.PageTitle = app.PageTasks.Title()
	vm.TasksView = app.ViewBoard
	vm.Board = []app.Column{
		{StageID: 1, Name: "New", Rows: []app.TaskRow{row(1, "A", models.PriorityLow), row(2, "B", models.PriorityLow)}},
		{StageID: 2, Name: "Done"},
	}
	doc := renderPage(t, vm)
	cols := find(byID(t, doc, "board"), func(n *html.Node) bool { return hasClass(n, "column") })
	require.Len(t, cols, 2)
	assert.Len(t, tasksIn(cols[0]), 2)
	assert.Empty(t, tasksIn(cols[1]))

	vm.TasksView = app.ViewList
	vm.Filter = board.FilterDone
	vm.List = []app.TaskRow{row(3, "C", models.PriorityHigh)}
	doc = renderPage(t, vm)
	assert.Len(t, tasksIn(byID(t, doc, "task-list")), 1)
	active := find(doc, func(n *html.Node) bool { return hasClass(n, "filter-btn") && hasClass(n, "active") })
	require.Len(t, active, 1)
	assert.Equal(t, "done", attr(active[0], "data-filter"))
}

func TestCalendarPage(t *testing.T) {
	today := calendar.Date{Year: 2026, Month: 10, Day: 18}
	sel := calendar.Date{Year: 2026, Month: 10, Day: 20}
	vm := homeModel()
	vm.Page = app.PageCalendar
	vm.Calendar = app.CalendarView{
		Label:         calendar.Label(2026, 10),
		Weekdays:      calendar.Weekdays[:],
		Weeks:         calendar.Weeks(calendar.Grid(2026, 10, today, sel, func(d calendar.Date) bool { return d.Day == 20 })),
		Selected:      sel,
		SelectedTitle: calendar.DayTitle(sel),
		Day:           []app.TaskRow{row(4, "Demo", models.PriorityMedium)},
	}
	doc := renderPage(t, vm)

	assert.Equal(t, "October 2026", text(byID(t, doc, "cal-month")))
	grid := byID(t, doc, "calendar-grid")
	days := find(grid, func(n *html.Node) bool { return hasClass(n, "day") })
	assert.Len(t, days, 35)
	selected := find(grid, func(n *html.Node) bool { return hasClass(n, "selected") })
	require.Len(t, selected, 1)
	assert.True(t, hasClass(selected[0], "has-task"))
	assert.Equal(t, "/calendar/select/2026-10-20", attr(selected[0], "action"))
	assert.Len(t, find(grid, func(n *html.Node) bool { return hasClass(n, "today") }), 1)

	dayTasks := byID(t, doc, "day-tasks")
	rows := tasksIn(dayTasks)
	require.Len(t, rows, 1)
	assert.True(t, hasClass(rows[0], "task-detail"))
	assert.Contains(t, text(dayTasks), "20 October")
}

func TestModals(t *testing.T) {
	vm := homeModel()
	tr := row(5, "Ship it", models.PriorityHigh)
	vm.Modal = app.ModalView{
		Kind:     app.ModalForm,
		Editing:  true,
		Task:     &tr,
		Form:     app.TaskForm{Title: "Ship it", Description: "by Friday"},
		Priority: models.PriorityHigh,
	}
	doc := renderPage(t, vm)
	title := byID(t, doc, "task-title")
	assert.Equal(t, "Ship it", attr(title, "value"))
	assert.Equal(t, "by Friday", text(byID(t, doc, "task-desc")))
	checked := find(doc, func(n *html.Node) bool { return attr(n, "name") == "priority" && hasAttr(n, "checked") })
	require.Len(t, checked, 1)
	assert.Equal(t, "high", attr(checked[0], "value"))

	vm.Modal = app.ModalView{Kind: app.ModalConfirm, Confirm: app.ConfirmRemoveMember, ConfirmTarget: 12, ConfirmMessage: "Remove Bob from the workspace?"}
	doc = renderPage(t, vm)
	forms := find(byID(t, doc, "modal-delete"), func(n *html.Node) bool { return n.Data == "form" })
	require.NotEmpty(t, forms)
	assert.Equal(t, "/members/12/delete", attr(forms[0], "action"))

	vm.Modal = app.ModalView{Kind: app.ModalMember, Presets: models.DefaultRolePresets}
	doc = renderPage(t, vm)
	opts := find(byID(t, doc, "member-role"), func(n *html.Node) bool { return n.Data == "option" })
	assert.Len(t, opts, len(models.DefaultRolePresets))

	vm.Modal = app.ModalView{}
	doc = renderPage(t, vm)
	assert.Empty(t, find(doc, func(n *html.Node) bool { return hasClass(n, "modal-overlay") }))
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func TestToastsAndAuth(t *testing.T) {
	vm := homeModel()
	vm.Notices = []app.Notice{{ID: "n1", Kind: app.NoticeSuccess, Message: "Task created"}}
	doc := renderPage(t, vm)
	toasts := find(byID(t, doc, "toasts"), func(n *html.Node) bool { return hasClass(n, "toast") })
	require.Len(t, toasts, 1)
	assert.True(t, hasClass(toasts[0], "toast-success"))
	assert.Contains(t, text(toasts[0]), "Task created")

	r, err := render.New()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.Auth(&buf, render.Auth{Message: "Open the app from Telegram"}))
	doc = parse(t, &buf)
	assert.Equal(t, "Open the app from Telegram", text(byID(t, doc, "auth-message")))
}

func TestTaskDialogOffersAssignment(t *testing.T) {
	vm := homeModel()
	tr := row(5, "Ship it", models.PriorityHigh)
	vm.Members = []models.Member{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}}
	vm.Modal = app.ModalView{Kind: app.ModalTask, Task: &tr}
	doc := renderPage(t, vm)

	form := byID(t, doc, "task-assign")
	assert.Equal(t, "/tasks/5/assign", attr(form, "action"))
	handles := find(byID(t, doc, "member-handles"), func(n *html.Node) bool { return n.Data == "option" })
	assert.Len(t, handles, 2)
}

func TestMemberEditDialog(t *testing.T) {
	vm := homeModel()
	bob := models.Member{ID: 42, FullName: "Bob", Role: "admin", CustomRole: "QA",
		Permissions: models.Permissions{CanEditTasks: true, CanManageMembers: true}}
	vm.Modal = app.ModalView{Kind: app.ModalMemberEdit, Member: &bob, Presets: models.DefaultRolePresets}
	doc := renderPage(t, vm)

	dialog := byID(t, doc, "modal-member-edit")
	forms := find(dialog, func(n *html.Node) bool { return n.Data == "form" })
	require.NotEmpty(t, forms)
	assert.Equal(t, "/members/42", attr(forms[0], "action"))
	assert.Equal(t, "QA", attr(byID(t, doc, "member-edit-custom-role"), "value"))

	selected := find(byID(t, doc, "member-edit-role"), func(n *html.Node) bool { return n.Data == "option" && hasAttr(n, "selected") })
	require.Len(t, selected, 1)
	assert.Equal(t, "admin", attr(selected[0], "value"))

	checked := find(dialog, func(n *html.Node) bool { return attr(n, "type") == "checkbox" && hasAttr(n, "checked") })
	var names []string
	for _, n := range checked {
		names = append(names, attr(n, "name"))
	}
	assert.ElementsMatch(t, []string{"can_edit_tasks", "can_manage_members"}, names)
}

func TestNotes(t *testing.T) {
	sel := calendar.Date{Year: 2026, Month: 10, Day: 20}
	vm := homeModel()
	vm.Page = app.PageCalendar
	vm.Calendar = app.CalendarView{
		Selected:      sel,
		SelectedTitle: calendar.DayTitle(sel),
		Notes:         []models.Note{{ID: 3, Title: "Standup", Content: "10:00", Color: "#4caf50"}},
	}
	doc := renderPage(t, vm)
	notes := find(byID(t, doc, "day-notes"), func(n *html.Node) bool { return hasClass(n, "note") })
	require.Len(t, notes, 1)
	assert.Equal(t, "/notes/3/edit", attr(notes[0], "action"))
	assert.Contains(t, text(notes[0]), "Standup")

	note := vm.Calendar.Notes[0]
	vm.Modal = app.ModalView{Kind: app.ModalNote, Editing: true, Note: &note, NoteDate: "2026-10-20"}
	doc = renderPage(t, vm)
	assert.Equal(t, "Standup", attr(byID(t, doc, "note-title"), "value"))
	assert.Equal(t, "2026-10-20", attr(byID(t, doc, "note-date"), "value"))
	color := find(byID(t, doc, "modal-note"), func(n *html.Node) bool { return attr(n, "name") == "color" && hasAttr(n, "checked") })
	require.Len(t, color, 1)
	assert.Equal(t, "#4caf50", attr(color[0], "value"))

	vm.Modal = app.ModalView{Kind: app.ModalConfirm, Confirm: app.ConfirmDeleteNote, ConfirmTarget: 3, ConfirmMessage: `Delete note "Standup"?`}
	doc = renderPage(t, vm)
	forms := find(byID(t, doc, "modal-delete"), func(n *html.Node) bool { return n.Data == "form" })
	require.NotEmpty(t, forms)
	assert.Equal(t, "/notes/3/delete", attr(forms[0], "action"))
}
