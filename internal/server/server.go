package server

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"crmapp/internal/app"
	"crmapp/internal/live"
	"crmapp/internal/render"
)

// Options configures authentication and static assets of the Server.
type Options struct {
	BotToken       string
	InitDataMaxAge time.Duration
	SessionSecret  string
	SessionTTL     time.Duration
	CookieName     string
	// FallbackUserID lets requests without a session through as that user.
	FallbackUserID int64
	StaticDir      string
	AllowedOrigins []string
	Now            func() time.Time
}

// Server is the backend-for-frontend of the mini-app: it renders pages from
// per-user controllers and turns form posts into controller actions.
type Server struct {
	engine   *gin.Engine
	registry *app.Registry
	hub      *live.Hub
	renderer *render.Renderer
	sessions *sessions
	effects  *pendingEffects
	logger   *slog.Logger
	opts     Options
}

// New constructs the HTTP server with routes and middleware configured. hub
// may be nil, which disables live updates.
func New(registry *app.Registry, hub *live.Hub, opts Options, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CookieName == "" {
		opts.CookieName = "crm_session"
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}

	secret := []byte(opts.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		logger.Warn("session secret not configured; sessions will not survive a restart")
	}

	renderer, err := render.New()
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(logger))
	router.Use(sameOrigin(opts.AllowedOrigins, logger))

	srv := &Server{
		engine:   router,
		registry: registry,
		hub:      hub,
		renderer: renderer,
		sessions: &sessions{secret: secret, ttl: opts.SessionTTL, now: opts.Now},
		effects:  newPendingEffects(),
		logger:   logger,
		opts:     opts,
	}

	srv.registerRoutes()
	return srv, nil
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler wraps the engine with the CORS policy.
func (s *Server) Handler() http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		return s.engine
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}).Handler(s.engine)
}

// registerRoutes wires all page, action, API and static handlers together.
func (s *Server) registerRoutes() {
	s.engine.POST("/auth/telegram", s.handleTelegramAuth)
	s.engine.POST("/auth/logout", s.handleLogout)

	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)
		api.GET("/view", s.identify(false), s.handleViewJSON)
	}

	pages := s.engine.Group("", s.identify(true))
	{
		pages.GET("/", s.handleIndex)
		pages.GET("/ws", s.handleLive)

		pages.POST("/page/:page", s.handlePage)
		pages.POST("/view/:view", s.handleTasksView)
		pages.POST("/filter/:filter", s.handleFilter)
		pages.POST("/theme/toggle", s.handleToggleTheme)
		pages.POST("/modal/close", s.handleCloseModal)
		pages.POST("/workspaces/:id/switch", s.handleSwitchWorkspace)

		pages.POST("/calendar/prev", s.handlePrevMonth)
		pages.POST("/calendar/next", s.handleNextMonth)
		pages.POST("/calendar/select/:date", s.handleSelectDate)

		tasks := pages.Group("/tasks")
		{
			tasks.POST("", s.handleSaveTask)
			tasks.POST("/new", s.handleNewTask)
			tasks.POST("/:id", s.handleOpenTask)
			tasks.POST("/:id/edit", s.handleEditTask)
			tasks.POST("/:id/toggle", s.handleToggleTask)
			tasks.POST("/:id/delete", s.handleDeleteTask)
			tasks.POST("/:id/move/:stage", s.handleMoveTask)
			tasks.POST("/:id/assign", s.handleAssignTask)
		}

		members := pages.Group("/members")
		{
			members.POST("", s.handleAddMember)
			members.POST("/new", s.handleNewMember)
			members.POST("/:id", s.handleUpdateMember)
			members.POST("/:id/edit", s.handleEditMember)
			members.POST("/:id/delete", s.handleRemoveMember)
		}

		notes := pages.Group("/notes")
		{
			notes.POST("", s.handleSaveNote)
			notes.POST("/new", s.handleNewNote)
			notes.POST("/:id/edit", s.handleEditNote)
			notes.POST("/:id/delete", s.handleDeleteNote)
		}
	}

	s.mountStatic()
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.registry.Len()})
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// bindForm binds the posted form into req. Bad input is left for the
// controller to validate, so a bind error is only logged.
func (s *Server) bindForm(c *gin.Context, req any) {
	if err := c.ShouldBind(req); err != nil {
		s.logger.Debug("bind form", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	}
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	if err != nil {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
