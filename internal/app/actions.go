package app

import (
	"context"
	"strings"

	"crmapp/internal/board"
	"crmapp/internal/calendar"
	"crmapp/internal/host"
	"crmapp/internal/models"
)

// TaskForm is the content of the add/edit dialog. An empty Priority uses the
// priority selected in State.
type TaskForm struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Priority    models.Priority `json:"priority,omitempty"`
	DueDate     string          `json:"due_date,omitempty"`
	DueTime     string          `json:"due_time,omitempty"`
	Assignee    string          `json:"assignee,omitempty"`
}

// NoteForm is the content of the note dialog. An empty Date uses the day
// selected in the calendar, or today.
type NoteForm struct {
	Title   string
	Content string
	Date    string
	Color   string
}

// MemberForm is the content of the add and edit member dialogs.
type MemberForm struct {
	Username   string
	Role       string
	CustomRole string
	models.Permissions
}

// SaveTask creates a task, or updates the selected one when editing. Input
// is validated before any request is made; on failure the dialog stays open.
func (c *Controller) SaveTask(ctx context.Context, form TaskForm) {
	title := strings.TrimSpace(form.Title)
	switch {
	case title == "":
		c.host.Notify(host.NotifyWarning)
		c.notify(NoticeWarning, "Enter a title")
		c.keepDraft(ctx, form)
		return
	case c.state.WorkspaceID == 0:
		c.host.Notify(host.NotifyWarning)
		c.notify(NoticeWarning, "No workspace selected")
		return
	case c.state.UserID == 0:
		c.host.Notify(host.NotifyError)
		c.notify(NoticeError, "Could not determine user")
		return
	}

	priority := form.Priority
	if priority == "" {
		priority = c.state.Priority
	}
	editing := c.state.Editing && c.state.SelectedTaskID != 0
	in := models.TaskInput{
		Title:            title,
		Priority:         models.ParsePriority(string(priority)),
		Description:      optional(form.Description, editing),
		DueDate:          optional(form.DueDate, editing),
		DueTime:          optional(form.DueTime, editing),
		AssignedUsername: optional(strings.TrimPrefix(strings.TrimSpace(form.Assignee), "@"), editing),
	}

	var (
		task *models.Task
		err  error
	)
	if editing {
		task, err = c.backend.UpdateTask(ctx, c.state.SelectedTaskID, in)
	} else {
		task, err = c.backend.CreateTask(ctx, c.state.WorkspaceID, c.state.UserID, in)
	}
	if err != nil {
		c.host.Notify(host.NotifyError)
		c.fail("save task", err, "Server error")
		c.keepDraft(ctx, form)
		return
	}

	c.state.closeModal()
	c.state.Priority = models.PriorityMedium
	c.applyTask(ctx, task)
	c.host.Notify(host.NotifySuccess)
	if editing {
		c.notify(NoticeSuccess, "Task updated")
	} else {
		c.notify(NoticeSuccess, "Task created")
	}
	c.publish()
}

// keepDraft remembers rejected input so the reopened form shows it again.
func (c *Controller) keepDraft(ctx context.Context, form TaskForm) {
	if c.state.Modal != ModalForm {
		return
	}
	if form.Priority != "" {
		c.state.Priority = models.ParsePriority(string(form.Priority))
	}
	c.state.Draft = &form
	c.persist(ctx)
}

// optional maps an empty field to null on create and to "" (clear) on update.
func optional(v string, clear bool) *string {
	v = strings.TrimSpace(v)
	if v == "" && !clear {
		return nil
	}
	return &v
}

// ToggleTask flips a task between open and done.
func (c *Controller) ToggleTask(ctx context.Context, taskID int64) {
	c.host.Impact(host.ImpactLight)
	task, err := c.backend.ToggleTask(ctx, taskID)
	if err != nil {
		c.host.Notify(host.NotifyError)
		c.fail("toggle task", err, "Error")
		return
	}
	if c.state.Modal == ModalTask && c.state.SelectedTaskID == taskID {
		c.state.closeModal()
	}
	c.applyTask(ctx, task)
	c.host.Notify(host.NotifySuccess)
	c.notify(NoticeSuccess, "Status changed")
	c.publish()
}

// MoveTask puts a task into another stage of the funnel.
func (c *Controller) MoveTask(ctx context.Context, taskID, stageID int64) {
	c.host.Impact(host.ImpactMedium)
	task, err := c.backend.MoveTask(ctx, taskID, stageID)
	if err != nil {
		c.host.Notify(host.NotifyError)
		c.fail("move task", err, "Error")
		return
	}
	c.applyTask(ctx, task)
	c.host.Notify(host.NotifySuccess)
	c.notify(NoticeSuccess, "Task moved")
	c.publish()
}

// DeleteTask removes a task once the host confirms. Without confirmation the
// delete dialog is opened instead.
func (c *Controller) DeleteTask(ctx context.Context, taskID int64) {
	task, ok := c.snap.Task(taskID)
	if !ok {
		return
	}
	if !c.host.Confirm(ctx, "Delete task \""+task.Title+"\"?") {
		c.state.Modal = ModalConfirm
		c.state.Confirm = ConfirmDeleteTask
		c.state.ConfirmTarget = taskID
		c.state.SelectedTaskID = taskID
		c.persist(ctx)
		return
	}

	c.host.Impact(host.ImpactHeavy)
	if err := c.backend.DeleteTask(ctx, taskID); err != nil {
		c.host.Notify(host.NotifyError)
		c.fail("delete task", err, "Error")
		return
	}
	c.state.closeModal()
	if c.opts.ReloadAfterMutation || !c.snap.removeTask(taskID) {
		_ = c.Reload(ctx)
	} else {
		c.persist(ctx)
	}
	c.host.Notify(host.NotifySuccess)
	c.notify(NoticeSuccess, "Task deleted")
	c.publish()
}

// applyTask folds a returned task into the snapshot, falling back to a full
// reload when it cannot be applied.
func (c *Controller) applyTask(ctx context.Context, task *models.Task) {
	if c.opts.ReloadAfterMutation || task == nil || !c.snap.applyTask(*task) {
		_ = c.Reload(ctx)
		return
	}
	c.persist(ctx)
}

// AddMember invites a user to the current workspace by handle.
func (c *Controller) AddMember(ctx context.Context, form MemberForm) {
	username := strings.TrimPrefix(strings.TrimSpace(form.Username), "@")
	if username == "" {
		c.host.Notify(host.NotifyWarning)
		c.notify(NoticeWarning, "Enter a username")
		return
	}
	if c.state.WorkspaceID == 0 {
		c.host.Notify(host.NotifyWarning)
		c.notify(NoticeWarning, "No workspace selected")
		return
	}

	role := strings.TrimSpace(form.Role)
	if role == "" {
		role = "member"
	}
	perms := form.Permissions
	if perms == (models.Permissions{}) {
		perms = c.presetPermissions(role)
	}
	in := models.MemberInput{
		Username:    username,
		Role:        role,
		Permissions: perms,
	}
	if custom := strings.TrimSpace(form.CustomRole); custom != "" {
		in.CustomRole = &custom
	}

	members, err := c.backend.AddMember(ctx, c.state.WorkspaceID, in)
	if err != nil {
		c.host.Notify(host.NotifyError)
		c.fail("add member", err, "Could not add member")
		return
	}
	c.state.closeModal()
	c.applyMembers(ctx, members)
	c.host.Notify(host.NotifySuccess)
	c.notify(NoticeSuccess, "@"+username+" added")
	c.publish()
}

// presetPermissions returns the permissions of the role preset id, or none.
// Roles missing from the served presets fall back to the built-in ones.
func (c *Controller) presetPermissions(role string) models.Permissions {
	for _, p := range c.presets {
		if p.ID == role {
			return p.Permissions
		}
	}
	if p, ok := models.PresetFor(role); ok {
		return p.Permissions
	}
	return models.Permissions{}
}

// UpdateMember changes the role and permissions of a member. Every flag of
// the form is sent, so unchecked boxes revoke.
func (c *Controller) UpdateMember(ctx context.Context, memberID int64, form MemberForm) {
	member, ok := c.snap.Member(memberID)
	if !ok {
		return
	}
	role := strings.TrimSpace(form.Role)
	if role == "" {
		role = member.Role
	}
	custom := strings.TrimSpace(form.CustomRole)
	perms := form.Permissions
	in := models.MemberUpdate{
		Role:             &role,
		CustomRole:       &custom,
		CanEditTasks:     &perms.CanEditTasks,
		CanDeleteTasks:   &perms.CanDeleteTasks,
		CanAssignTasks:   &perms.CanAssignTasks,
		CanManageMembers: &perms.CanManageMembers,
	}

	members, err := c.backend.UpdateMember(ctx, c.state.WorkspaceID, memberID, in)
	if err != nil {
		c.host.Notify(host.NotifyError)
		c.fail("update member", err, "Could not update member")
		return
	}
	c.state.closeModal()
	if memberID == c.snap.User.ID {
		// Our own permissions are listed with the workspaces.
		_ = c.Reload(ctx)
	} else {
		c.applyMembers(ctx, members)
	}
	c.host.Notify(host.NotifySuccess)
	c.notify(NoticeSuccess, "Member updated")
	c.publish()
}

// RemoveMember removes a member once the host confirms.
func (c *Controller) RemoveMember(ctx context.Context, memberID int64) {
	member, ok := c.snap.Member(memberID)
	if !ok {
		return
	}
	if !c.host.Confirm(ctx, "Remove "+member.FullName+" from the workspace?") {
		c.state.Modal = ModalConfirm
		c.state.Confirm = ConfirmRemoveMember
		c.state.ConfirmTarget = memberID
		c.persist(ctx)
		return
	}

	members, err := c.backend.RemoveMember(ctx, c.state.WorkspaceID, memberID)
	if err != nil {
		c.host.Notify(host.NotifyError)
		c.fail("remove member", err, "Could not remove member")
		return
	}
	c.state.closeModal()
	c.applyMembers(ctx, members)
	c.host.Notify(host.NotifySuccess)
	c.notify(NoticeSuccess, "Member removed")
	c.publish()
}

func (c *Controller) applyMembers(ctx context.Context, members []models.Member) {
	if c.opts.ReloadAfterMutation || members == nil || !c.snap.Loaded {
		_ = c.Reload(ctx)
		return
	}
	c.snap.Members = members
	c.persist(ctx)
}

// AssignTask hands a task to another user by handle.
func (c *Controller) AssignTask(ctx context.Context, taskID int64, username string) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		c.host.Notify(host.NotifyWarning)
		c.notify(NoticeWarning, "Enter a username")
		return
	}
	if _, ok := c.snap.Task(taskID); !ok {
		return
	}

	task, err := c.backend.AssignTask(ctx, taskID, username)
	if err != nil {
		c.host.Notify(host.NotifyError)
		c.fail("assign task", err, "Could not assign task")
		return
	}
	c.applyTask(ctx, task)
	c.host.Notify(host.NotifySuccess)
	c.notify(NoticeSuccess, "Assigned to @"+username)
	c.publish()
}

// SaveNote creates a note, or updates the selected one when editing.
func (c *Controller) SaveNote(ctx context.Context, form NoteForm) {
	title := strings.TrimSpace(form.Title)
	switch {
	case title == "":
		c.host.Notify(host.NotifyWarning)
		c.notify(NoticeWarning, "Enter a title")
		return
	case c.state.WorkspaceID == 0:
		c.host.Notify(host.NotifyWarning)
		c.notify(NoticeWarning, "No workspace selected")
		return
	}

	date := strings.TrimSpace(form.Date)
	if date == "" {
		day := c.state.SelectedDate
		if day.IsZero() {
			day = calendar.DateOf(c.opts.Now().In(c.opts.Location))
		}
		date = day.String()
	} else if _, err := calendar.ParseDate(date); err != nil {
		c.host.Notify(host.NotifyWarning)
		c.notify(NoticeWarning, "Invalid date")
		return
	}
	editing := c.state.SelectedNoteID != 0
	in := models.NoteInput{
		Title:    title,
		Content:  optional(form.Content, editing),
		NoteDate: &date,
		Color:    strings.TrimSpace(form.Color),
	}

	var err error
	if editing {
		err = c.backend.UpdateNote(ctx, c.state.SelectedNoteID, in)
		if err == nil {
			c.loadNotes(ctx)
		}
	} else {
		var notes []models.Note
		notes, err = c.backend.CreateNote(ctx, c.state.WorkspaceID, c.state.UserID, in)
		if err == nil {
			c.snap.Notes = notes
		}
	}
	if err != nil {
		c.host.Notify(host.NotifyError)
		c.fail("save note", err, "Could not save note")
		return
	}
	c.state.closeModal()
	c.persist(ctx)
	c.host.Notify(host.NotifySuccess)
	if editing {
		c.notify(NoticeSuccess, "Note updated")
	} else {
		c.notify(NoticeSuccess, "Note added")
	}
	c.publish()
}

// DeleteNote removes a note once the host confirms.
func (c *Controller) DeleteNote(ctx context.Context, noteID int64) {
	note, ok := c.snap.Note(noteID)
	if !ok {
		return
	}
	if !c.host.Confirm(ctx, "Delete note \""+note.Title+"\"?") {
		c.state.Modal = ModalConfirm
		c.state.Confirm = ConfirmDeleteNote
		c.state.ConfirmTarget = noteID
		c.persist(ctx)
		return
	}

	if err := c.backend.DeleteNote(ctx, noteID); err != nil {
		c.host.Notify(host.NotifyError)
		c.fail("delete note", err, "Error")
		return
	}
	c.state.closeModal()
	c.loadNotes(ctx)
	c.persist(ctx)
	c.host.Notify(host.NotifySuccess)
	c.notify(NoticeSuccess, "Note deleted")
	c.publish()
}

// SetFilter changes the status filter of the task list.
func (c *Controller) SetFilter(ctx context.Context, f board.Filter) {
	c.host.Impact(host.ImpactLight)
	c.state.Filter = board.ParseFilter(string(f))
	c.persist(ctx)
}

// SetTasksView switches between the board and the list.
func (c *Controller) SetTasksView(ctx context.Context, v TasksView) {
	c.host.Impact(host.ImpactLight)
	c.state.TasksView = ParseTasksView(string(v))
	c.persist(ctx)
}

// SwitchPage navigates to another page.
func (c *Controller) SwitchPage(ctx context.Context, p Page) {
	c.host.Impact(host.ImpactLight)
	c.state.Page = ParsePage(string(p))
	c.persist(ctx)
}

// PrevMonth moves the calendar one month back.
func (c *Controller) PrevMonth(ctx context.Context) {
	c.host.Impact(host.ImpactLight)
	c.state.MonthOffset--
	c.persist(ctx)
}

// NextMonth moves the calendar one month forward.
func (c *Controller) NextMonth(ctx context.Context) {
	c.host.Impact(host.ImpactLight)
	c.state.MonthOffset++
	c.persist(ctx)
}

// SelectDate shows the tasks of a day below the calendar.
func (c *Controller) SelectDate(ctx context.Context, d calendar.Date) {
	c.host.Impact(host.ImpactLight)
	c.state.SelectedDate = d
	c.persist(ctx)
}

// OpenTask shows the detail dialog of a task.
func (c *Controller) OpenTask(ctx context.Context, taskID int64) {
	if _, ok := c.snap.Task(taskID); !ok {
		return
	}
	c.host.Impact(host.ImpactLight)
	c.state.closeModal()
	c.state.Modal = ModalTask
	c.state.SelectedTaskID = taskID
	c.persist(ctx)
}

// EditTask opens the form prefilled with a task.
func (c *Controller) EditTask(ctx context.Context, taskID int64) {
	task, ok := c.snap.Task(taskID)
	if !ok {
		return
	}
	c.host.Impact(host.ImpactLight)
	c.state.closeModal()
	c.state.Modal = ModalForm
	c.state.Editing = true
	c.state.SelectedTaskID = taskID
	c.state.Priority = task.Priority
	c.persist(ctx)
}

// NewTask opens an empty form.
func (c *Controller) NewTask(ctx context.Context) {
	c.host.Impact(host.ImpactLight)
	c.state.closeModal()
	c.state.Modal = ModalForm
	c.state.Priority = models.PriorityMedium
	c.persist(ctx)
}

// NewMember opens the add member form.
func (c *Controller) NewMember(ctx context.Context) {
	c.host.Impact(host.ImpactLight)
	c.state.closeModal()
	c.state.Modal = ModalMember
	c.persist(ctx)
}

// EditMember opens the role dialog of a member.
func (c *Controller) EditMember(ctx context.Context, memberID int64) {
	if _, ok := c.snap.Member(memberID); !ok {
		return
	}
	c.host.Impact(host.ImpactLight)
	c.state.closeModal()
	c.state.Modal = ModalMemberEdit
	c.state.SelectedMemberID = memberID
	c.persist(ctx)
}

// NewNote opens an empty note dialog for the selected day.
func (c *Controller) NewNote(ctx context.Context) {
	c.host.Impact(host.ImpactLight)
	c.state.closeModal()
	c.state.Modal = ModalNote
	c.persist(ctx)
}

// EditNote opens the note dialog prefilled with a note.
func (c *Controller) EditNote(ctx context.Context, noteID int64) {
	if _, ok := c.snap.Note(noteID); !ok {
		return
	}
	c.host.Impact(host.ImpactLight)
	c.state.closeModal()
	c.state.Modal = ModalNote
	c.state.SelectedNoteID = noteID
	c.persist(ctx)
}

// SelectPriority changes the priority chip of the open form.
func (c *Controller) SelectPriority(ctx context.Context, p models.Priority) {
	c.host.Impact(host.ImpactLight)
	c.state.Priority = models.ParsePriority(string(p))
	c.persist(ctx)
}

// CloseModal dismisses any open dialog.
func (c *Controller) CloseModal(ctx context.Context) {
	c.state.closeModal()
	c.persist(ctx)
}

// ToggleTheme switches between the dark and light themes.
func (c *Controller) ToggleTheme(ctx context.Context) {
	c.host.Impact(host.ImpactLight)
	if c.state.Theme == host.SchemeLight {
		c.state.Theme = host.SchemeDark
	} else {
		c.state.Theme = host.SchemeLight
	}
	c.persist(ctx)
}
