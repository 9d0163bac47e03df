// Package backendtest is an in-memory implementation of the task API used by
// tests and by the fake-backend command for local development.
package backendtest

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crmapp/internal/models"
)

// Route keys accepted by Calls and FailNext.
const (
	RouteGetUser      = "GET /api/user/:user"
	RouteGetWorkspace = "GET /api/workspace/:workspace"
	RouteCreateTask   = "POST /api/tasks/:workspace/:user"
	RouteUpdateTask   = "PUT /api/task/:id"
	RouteToggleTask   = "POST /api/task/:id/toggle"
	RouteMoveTask     = "POST /api/task/:id/move/:stage"
	RouteDeleteTask   = "DELETE /api/task/:id"
	RouteAddMember    = "POST /api/workspace/:workspace/members"
	RouteUpdateMember = "PUT /api/workspace/:workspace/members/:member"
	RouteRemoveMember = "DELETE /api/workspace/:workspace/members/:member"
	RouteAssignTask   = "POST /api/task/:id/assign"
	RouteListNotes    = "GET /api/notes/:workspace"
	RouteCreateNote   = "POST /api/notes/:workspace/:user"
	RouteUpdateNote   = "PUT /api/note/:id"
	RouteDeleteNote   = "DELETE /api/note/:id"
	RouteRolePresets  = "GET /api/roles/presets"
)

const sqliteLayout = "2006-01-02 15:04:05"

type user struct {
	models.User
	createdAt time.Time
}

type membership struct {
	role       string
	customRole string
	perms      models.Permissions
	joinedAt   time.Time
}

type workspace struct {
	id         int64
	name       string
	ownerID    int64
	isPersonal bool
	inviteCode string
	createdAt  time.Time
	members    map[int64]*membership // keyed by user id
	funnel     models.Funnel
}

type failure struct {
	status int
	detail string
}

// Server is the fake backend. All methods are safe for concurrent use.
type Server struct {
	engine *gin.Engine
	logger *slog.Logger

	mu         sync.Mutex
	nextID     int64
	users      map[int64]user // keyed by telegram id
	workspaces map[int64]*workspace
	tasks      map[int64]models.Task
	notes      map[int64]models.Note
	calls      map[string]int
	failures   map[string]failure

	// Now stamps created tasks. Tests may replace it before use.
	Now func() time.Time
	// Presets replaces the served role presets when set.
	Presets []models.RolePreset
}

// New constructs the fake backend with routes registered.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		engine:     router,
		logger:     logger,
		nextID:     100,
		users:      make(map[int64]user),
		workspaces: make(map[int64]*workspace),
		tasks:      make(map[int64]models.Task),
		notes:      make(map[int64]models.Note),
		calls:      make(map[string]int),
		failures:   make(map[string]failure),
		Now:        time.Now,
	}
	router.Use(s.track)
	s.registerRoutes()
	return s
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/user/:user", s.handleGetUser)
		api.GET("/workspace/:workspace", s.handleGetWorkspace)
		api.GET("/workspace/:workspace/members", s.handleListMembers)
		api.POST("/workspace/:workspace/members", s.handleAddMember)
		api.PUT("/workspace/:workspace/members/:member", s.handleUpdateMember)
		api.DELETE("/workspace/:workspace/members/:member", s.handleRemoveMember)
		api.POST("/tasks/:workspace/:user", s.handleCreateTask)
		api.PUT("/task/:id", s.handleUpdateTask)
		api.DELETE("/task/:id", s.handleDeleteTask)
		api.POST("/task/:id/toggle", s.handleToggleTask)
		api.POST("/task/:id/move/:stage", s.handleMoveTask)
		api.POST("/task/:id/assign", s.handleAssignTask)
		api.GET("/notes/:workspace", s.handleListNotes)
		api.POST("/notes/:workspace/:user", s.handleCreateNote)
		api.PUT("/note/:id", s.handleUpdateNote)
		api.DELETE("/note/:id", s.handleDeleteNote)
		api.GET("/roles/presets", s.handleRolePresets)
	}
}

// track counts every request by route and applies injected failures.
func (s *Server) track(c *gin.Context) {
	key := c.Request.Method + " " + c.FullPath()

	s.mu.Lock()
	s.calls[key]++
	f, fail := s.failures[key]
	if fail {
		delete(s.failures, key)
	}
	s.mu.Unlock()

	if fail {
		c.AbortWithStatusJSON(f.status, gin.H{"detail": f.detail})
		return
	}
	c.Next()
}

// Calls returns how many times a route was requested.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// TotalCalls returns the number of requests served.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// FailNext makes the next request to route answer with status and detail.
func (s *Server) FailNext(route string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, detail: detail}
}

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

// AddUser registers a user together with a personal workspace holding a
// three-stage funnel, the way the bot does on /start.
func (s *Server) AddUser(telegramID int64, username, fullName string) (models.User, models.Workspace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := models.User{ID: s.id(), TelegramID: telegramID, Username: username, FullName: fullName}
	s.users[telegramID] = user{User: u, createdAt: s.Now()}
	ws := s.newWorkspaceLocked(u, "Personal", true)
	return u, ws
}

// AddWorkspace creates a shared workspace owned by the given user.
func (s *Server) AddWorkspace(ownerTelegramID int64, name string) (models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.users[ownerTelegramID]
	if !ok {
		return models.Workspace{}, fmt.Errorf("user %d not found", ownerTelegramID)
	}
	return s.newWorkspaceLocked(owner.User, name, false), nil
}

// Tasks returns every task of a workspace ordered by id.
func (s *Server) Tasks(workspaceID int64) []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasksLocked(workspaceID)
}

func (s *Server) newWorkspaceLocked(owner models.User, name string, personal bool) models.Workspace {
	created := s.Now()
	ws := &workspace{
		id:         s.id(),
		name:       name,
		ownerID:    owner.ID,
		isPersonal: personal,
		createdAt:  created,
		members: map[int64]*membership{
			owner.ID: {role: "owner", joinedAt: created, perms: models.Permissions{
				CanEditTasks: true, CanDeleteTasks: true, CanAssignTasks: true, CanManageMembers: true,
			}},
		},
	}
	if !personal {
		ws.inviteCode = strings.ToUpper(uuid.NewString()[:8])
	}
	ws.funnel = models.Funnel{ID: s.id(), Name: "Main"}
	for i, stage := range []string{"To do", "In progress", "Done"} {
		ws.funnel.Stages = append(ws.funnel.Stages, models.Stage{ID: s.id(), Name: stage, Position: i})
	}
	s.workspaces[ws.id] = ws
	return s.workspaceView(ws, owner.ID)
}

func (s *Server) workspaceView(ws *workspace, userID int64) models.Workspace {
	out := models.Workspace{ID: ws.id, Name: ws.name, IsPersonal: models.Flag(ws.isPersonal)}
	if m, ok := ws.members[userID]; ok {
		out.Role = m.role
		out.CustomRole = m.customRole
		out.Permissions = m.perms
	}
	return out
}

func (s *Server) tasksLocked(workspaceID int64) []models.Task {
	var out []models.Task
	for _, t := range s.tasks {
		if t.WorkspaceID == workspaceID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// membersLocked renders the member rows the way the backend joins them: the
// users row (so "id" is the user id) plus the membership columns.
func (s *Server) membersLocked(ws *workspace) []gin.H {
	users := make([]user, 0, len(ws.members))
	for _, u := range s.users {
		if _, ok := ws.members[u.ID]; ok {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		m := ws.members[u.ID]
		row := userRow(u)
		row["role"] = m.role
		row["custom_role"] = nullable(m.customRole)
		row["joined_at"] = m.joinedAt.UTC().Format(sqliteLayout)
		permissionColumns(row, m.perms)
		out = append(out, row)
	}
	return out
}

func userRow(u user) gin.H {
	return gin.H{
		"id":          u.ID,
		"telegram_id": u.TelegramID,
		"username":    nullable(u.Username),
		"full_name":   nullable(u.FullName),
		"created_at":  u.createdAt.UTC().Format(sqliteLayout),
	}
}

// workspaceRow is the bare workspaces row. SQLite has no boolean type, so
// flags travel as 0 or 1.
func workspaceRow(ws *workspace) gin.H {
	return gin.H{
		"id":          ws.id,
		"name":        ws.name,
		"description": nil,
		"owner_id":    ws.ownerID,
		"is_personal": bit(models.Flag(ws.isPersonal)),
		"invite_code": nullable(ws.inviteCode),
		"created_at":  ws.createdAt.UTC().Format(sqliteLayout),
	}
}

func permissionColumns(row gin.H, p models.Permissions) {
	row["can_edit_tasks"] = bit(p.CanEditTasks)
	row["can_delete_tasks"] = bit(p.CanDeleteTasks)
	row["can_assign_tasks"] = bit(p.CanAssignTasks)
	row["can_manage_members"] = bit(p.CanManageMembers)
}

func bit(f models.Flag) int {
	if f {
		return 1
	}
	return 0
}

func (s *Server) userByUsernameLocked(username string) (models.User, bool) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return u.User, true
		}
	}
	return models.User{}, false
}

// Notes returns every note of a workspace ordered by id.
func (s *Server) Notes(workspaceID int64) []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Note
	for _, n := range s.notes {
		if n.WorkspaceID == workspaceID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid identifier"})
		return 0, false
	}
	return id, true
}

func respondDetail(c *gin.Context, status int, detail string) {
	c.JSON(status, gin.H{"detail": detail})
}
