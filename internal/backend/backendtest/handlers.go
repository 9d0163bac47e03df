package backendtest

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"crmapp/internal/models"
)

type taskRequest struct {
	Title            *string `json:"title"`
	Description      *string `json:"description"`
	Priority         *string `json:"priority"`
	Status           *string `json:"status"`
	DueDate          *string `json:"due_date"`
	DueTime          *string `json:"due_time"`
	AssignedUsername *string `json:"assigned_username"`
}

func (s *Server) handleGetUser(c *gin.Context) {
	telegramID, ok := parseID(c, "user")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, found := s.users[telegramID]
	if !found {
		respondDetail(c, http.StatusNotFound, "User not found")
		return
	}

	var (
		workspaces = []gin.H{}
		stats      models.Stats
	)
	for _, ws := range s.sortedWorkspacesLocked() {
		m, member := ws.members[u.ID]
		if !member {
			continue
		}
		row := workspaceRow(ws)
		row["role"] = m.role
		row["custom_role"] = nullable(m.customRole)
		permissionColumns(row, m.perms)
		workspaces = append(workspaces, row)
		for _, t := range s.tasksLocked(ws.id) {
			stats.Total++
			if t.Done() {
				stats.Done++
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"user": userRow(u), "workspaces": workspaces, "stats": stats})
}

func (s *Server) handleGetWorkspace(c *gin.Context) {
	id, ok := parseID(c, "workspace")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, found := s.workspaces[id]
	if !found {
		respondDetail(c, http.StatusNotFound, "Not Found")
		return
	}

	tasks := s.tasksLocked(id)
	funnel := ws.funnel
	funnel.Stages = make([]models.Stage, len(ws.funnel.Stages))
	for i, stage := range ws.funnel.Stages {
		stage.Tasks = []models.Task{}
		for _, t := range tasks {
			if t.StageID != nil && *t.StageID == stage.ID {
				stage.Tasks = append(stage.Tasks, t)
			}
		}
		funnel.Stages[i] = stage
	}
	if tasks == nil {
		tasks = []models.Task{}
	}

	c.JSON(http.StatusOK, gin.H{
		"workspace": workspaceRow(ws),
		"funnels":   []models.Funnel{funnel},
		"tasks":     tasks,
		"members":   s.membersLocked(ws),
	})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	workspaceID, ok := parseID(c, "workspace")
	if !ok {
		return
	}
	telegramID, ok := parseID(c, "user")
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		respondDetail(c, http.StatusUnprocessableEntity, "title is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.users[telegramID]; !found {
		respondDetail(c, http.StatusNotFound, "Not Found")
		return
	}
	ws, found := s.workspaces[workspaceID]
	if !found {
		respondDetail(c, http.StatusNotFound, "Not Found")
		return
	}

	task := models.Task{
		ID:          s.id(),
		WorkspaceID: workspaceID,
		Title:       strings.TrimSpace(*req.Title),
		Priority:    models.PriorityMedium,
		Status:      models.StatusTodo,
		CreatedAt:   models.Timestamp{Time: s.Now().UTC().Truncate(time.Second)},
	}
	if len(ws.funnel.Stages) > 0 {
		stageID := ws.funnel.Stages[0].ID
		task.StageID = &stageID
	}
	applyTaskRequest(&task, req)

	s.tasks[task.ID] = task
	c.JSON(http.StatusOK, gin.H{"task": taskBody(task)})
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, found := s.tasks[id]
	if !found {
		respondDetail(c, http.StatusNotFound, "Not Found")
		return
	}
	applyTaskRequest(&task, req)
	s.tasks[id] = task
	c.JSON(http.StatusOK, gin.H{"task": taskBody(task)})
}

func (s *Server) handleToggleTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, found := s.tasks[id]
	if !found {
		respondDetail(c, http.StatusNotFound, "Not Found")
		return
	}
	if task.Done() {
		task.Status = models.StatusTodo
	} else {
		task.Status = models.StatusDone
	}
	s.tasks[id] = task
	c.JSON(http.StatusOK, gin.H{"task": taskBody(task)})
}

func (s *Server) handleMoveTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	stageID, ok := parseID(c, "stage")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, found := s.tasks[id]
	if !found {
		respondDetail(c, http.StatusNotFound, "Not Found")
		return
	}
	task.StageID = &stageID
	s.tasks[id] = task
	c.JSON(http.StatusOK, gin.H{"task": taskBody(task)})
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, id)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleListMembers(c *gin.Context) {
	id, ok := parseID(c, "workspace")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, found := s.workspaces[id]
	if !found {
		respondDetail(c, http.StatusNotFound, "Not Found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": s.membersLocked(ws)})
}

func (s *Server) handleAddMember(c *gin.Context) {
	id, ok := parseID(c, "workspace")
	if !ok {
		return
	}

	var req models.MemberInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, found := s.workspaces[id]
	if !found {
		respondDetail(c, http.StatusNotFound, "Not Found")
		return
	}
	u, found := s.userByUsernameLocked(req.Username)
	if !found {
		respondDetail(c, http.StatusNotFound, "User @"+strings.TrimPrefix(req.Username, "@")+" not found. They must send /start to the bot first")
		return
	}
	if _, exists := ws.members[u.ID]; exists {
		respondDetail(c, http.StatusBadRequest, "User is already in the team")
		return
	}

	role := req.Role
	if role == "" {
		role = "member"
	}
	m := &membership{role: role, perms: req.Permissions, joinedAt: s.Now()}
	if req.CustomRole != nil {
		m.customRole = *req.CustomRole
	}
	ws.members[u.ID] = m
	c.JSON(http.StatusOK, gin.H{"success": true, "members": s.membersLocked(ws)})
}

func (s *Server) handleUpdateMember(c *gin.Context) {
	id, ok := parseID(c, "workspace")
	if !ok {
		return
	}
	memberID, ok := parseID(c, "member")
	if !ok {
		return
	}

	var req models.MemberUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, found := s.workspaces[id]
	if !found {
		respondDetail(c, http.StatusNotFound, "Not Found")
		return
	}
	m, found := ws.members[memberID]
	if !found {
		respondDetail(c, http.StatusNotFound, "Member not found")
		return
	}
	if req.Role != nil {
		m.role = *req.Role
	}
	if req.CustomRole != nil {
		m.customRole = *req.CustomRole
	}
	setFlag(&m.perms.CanEditTasks, req.CanEditTasks)
	setFlag(&m.perms.CanDeleteTasks, req.CanDeleteTasks)
	setFlag(&m.perms.CanAssignTasks, req.CanAssignTasks)
	setFlag(&m.perms.CanManageMembers, req.CanManageMembers)
	c.JSON(http.StatusOK, gin.H{"success": true, "members": s.membersLocked(ws)})
}

func setFlag(dst *models.Flag, v *models.Flag) {
	if v != nil {
		*dst = *v
	}
}

func (s *Server) handleRemoveMember(c *gin.Context) {
	id, ok := parseID(c, "workspace")
	if !ok {
		return
	}
	memberID, ok := parseID(c, "member")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, found := s.workspaces[id]
	if !found {
		respondDetail(c, http.StatusNotFound, "Not Found")
		return
	}
	delete(ws.members, memberID)
	c.JSON(http.StatusOK, gin.H{"success": true, "members": s.membersLocked(ws)})
}

// handleAssignTask takes the username as a query parameter, like the backend.
func (s *Server) handleAssignTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	username, present := c.GetQuery("username")
	if !present {
		respondDetail(c, http.StatusUnprocessableEntity, "username is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, found := s.tasks[id]
	if !found {
		respondDetail(c, http.StatusNotFound, "Not Found")
		return
	}
	task.AssignedUsername = strings.ReplaceAll(username, "@", "")
	s.tasks[id] = task
	c.JSON(http.StatusOK, gin.H{"task": taskBody(task)})
}

type noteRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	NoteDate *string `json:"note_date"`
	Color    *string `json:"color"`
}

func (s *Server) handleListNotes(c *gin.Context) {
	id, ok := parseID(c, "workspace")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"notes": s.notesLocked(id, c.Query("date"))})
}

func (s *Server) handleCreateNote(c *gin.Context) {
	workspaceID, ok := parseID(c, "workspace")
	if !ok {
		return
	}
	telegramID, ok := parseID(c, "user")
	if !ok {
		return
	}

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if req.Title == nil {
		respondDetail(c, http.StatusUnprocessableEntity, "title is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, found := s.users[telegramID]
	if !found {
		respondDetail(c, http.StatusNotFound, "Not Found")
		return
	}
	if _, found := s.workspaces[workspaceID]; !found {
		respondDetail(c, http.StatusNotFound, "Not Found")
		return
	}

	note := models.Note{
		ID:          s.id(),
		WorkspaceID: workspaceID,
		UserID:      u.ID,
		Color:       models.DefaultNoteColor,
		CreatedAt:   models.Timestamp{Time: s.Now().UTC().Truncate(time.Second)},
	}
	applyNoteRequest(&note, req)
	s.notes[note.ID] = note
	c.JSON(http.StatusOK, gin.H{"note_id": note.ID, "notes": s.notesLocked(workspaceID, "")})
}

func (s *Server) handleUpdateNote(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if note, found := s.notes[id]; found {
		applyNoteRequest(&note, req)
		s.notes[id] = note
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleDeleteNote(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.notes, id)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// notesLocked lists the notes of a workspace newest first, optionally only
// those of one day.
func (s *Server) notesLocked(workspaceID int64, date string) []gin.H {
	var notes []models.Note
	for _, n := range s.notes {
		if n.WorkspaceID != workspaceID || (date != "" && n.NoteDate != date) {
			continue
		}
		notes = append(notes, n)
	}
	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].CreatedAt.Equal(notes[j].CreatedAt.Time) {
			return notes[i].CreatedAt.After(notes[j].CreatedAt.Time)
		}
		return notes[i].ID > notes[j].ID
	})

	out := make([]gin.H, 0, len(notes))
	for _, n := range notes {
		out = append(out, gin.H{
			"id":           n.ID,
			"workspace_id": n.WorkspaceID,
			"user_id":      n.UserID,
			"title":        n.Title,
			"content":      nullable(n.Content),
			"note_date":    nullable(n.NoteDate),
			"color":        n.Color,
			"created_at":   n.CreatedAt.UTC().Format(sqliteLayout),
			"updated_at":   n.CreatedAt.UTC().Format(sqliteLayout),
		})
	}
	return out
}

func applyNoteRequest(n *models.Note, req noteRequest) {
	if req.Title != nil {
		n.Title = *req.Title
	}
	if req.Content != nil {
		n.Content = *req.Content
	}
	if req.NoteDate != nil {
		n.NoteDate = *req.NoteDate
	}
	if req.Color != nil && *req.Color != "" {
		n.Color = *req.Color
	}
}

func (s *Server) handleRolePresets(c *gin.Context) {
	presets := s.Presets
	if presets == nil {
		presets = models.DefaultRolePresets
	}
	c.JSON(http.StatusOK, gin.H{"presets": presets})
}

func (s *Server) sortedWorkspacesLocked() []*workspace {
	out := make([]*workspace, 0, len(s.workspaces))
	for _, ws := range s.workspaces {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// applyTaskRequest copies the fields present in req. Empty optional strings
// clear the field, matching the backend's handling of "".
func applyTaskRequest(t *models.Task, req taskRequest) {
	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		t.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Priority != nil {
		t.Priority = models.ParsePriority(*req.Priority)
	}
	if req.Status != nil {
		t.Status = models.Status(*req.Status)
	}
	if req.DueDate != nil {
		t.DueDate = *req.DueDate
	}
	if req.DueTime != nil {
		t.DueTime = *req.DueTime
	}
	if req.AssignedUsername != nil {
		t.AssignedUsername = strings.TrimPrefix(*req.AssignedUsername, "@")
	}
}

// taskBody renders a task the way the backend does, with SQLite timestamps.
func taskBody(t models.Task) gin.H {
	return gin.H{
		"id":                t.ID,
		"workspace_id":      t.WorkspaceID,
		"stage_id":          t.StageID,
		"title":             t.Title,
		"description":       nullable(t.Description),
		"priority":          t.Priority,
		"status":            t.Status,
		"due_date":          nullable(t.DueDate),
		"due_time":          nullable(t.DueTime),
		"assigned_username": nullable(t.AssignedUsername),
		"created_at":        t.CreatedAt.UTC().Format(sqliteLayout),
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
