package server

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"crmapp/internal/app"
	"crmapp/internal/board"
	"crmapp/internal/calendar"
	"crmapp/internal/host"
	"crmapp/internal/render"
)

// act runs fn on the viewer's controller and redirects back to the page, so
// a reload never repeats the action.
func (s *Server) act(c *gin.Context, fn func(ctx context.Context, ctrl *app.Controller)) {
	v := viewerFrom(c)
	rec := v.host()
	ctx := host.WithConfirmation(c.Request.Context(), c.PostForm("confirmed") == "1")

	err := s.registry.With(ctx, v.UserID, rec, func(ctrl *app.Controller) error {
		fn(ctx, ctrl)
		return nil
	})
	s.effects.add(v.UserID, rec.Drain())
	if err != nil {
		s.respondError(c, http.StatusUnauthorized, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// view projects the viewer's controller and takes its pending notices.
func (s *Server) view(c *gin.Context) (app.ViewModel, []host.Effect, error) {
	v := viewerFrom(c)
	rec := v.host()
	var vm app.ViewModel
	err := s.registry.With(c.Request.Context(), v.UserID, rec, func(ctrl *app.Controller) error {
		vm = ctrl.View(ctrl.Now())
		vm.Notices = ctrl.TakeNotices()
		return nil
	})
	effects := append(s.effects.take(v.UserID), rec.Drain()...)
	return vm, effects, err
}

// handleIndex renders the current page of the viewer.
func (s *Server) handleIndex(c *gin.Context) {
	vm, effects, err := s.view(c)
	if err != nil {
		s.renderAuth(c, "Could not determine user")
		return
	}

	livePath := ""
	if s.hub != nil {
		livePath = "/ws"
	}
	var buf bytes.Buffer
	if err := s.renderer.Page(&buf, render.NewPage(vm, effects, livePath)); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// handleViewJSON returns the view model for script clients.
func (s *Server) handleViewJSON(c *gin.Context) {
	vm, effects, err := s.view(c)
	if err != nil {
		s.respondError(c, http.StatusUnauthorized, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"view": vm, "effects": effects})
}

func (s *Server) renderAuth(c *gin.Context, message string) {
	var buf bytes.Buffer
	if err := s.renderer.Auth(&buf, render.Auth{Message: message}); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// handleLive upgrades to a websocket that announces changes made by other
// members of the viewer's workspace.
func (s *Server) handleLive(c *gin.Context) {
	if s.hub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "live updates disabled"})
		return
	}
	v := viewerFrom(c)
	var workspaceID int64
	member := make(map[int64]bool)
	err := s.registry.With(c.Request.Context(), v.UserID, v.host(), func(ctrl *app.Controller) error {
		workspaceID = ctrl.WorkspaceID()
		for _, ws := range ctrl.Snapshot().Workspaces {
			member[ws.ID] = true
		}
		return nil
	})
	if err != nil {
		s.respondError(c, http.StatusUnauthorized, err)
		return
	}
	canSubscribe := func(id int64) bool { return member[id] }
	if err := s.hub.Serve(c.Writer, c.Request, v.UserID, workspaceID, canSubscribe); err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
	}
}

func (s *Server) handlePage(c *gin.Context) {
	page := app.ParsePage(c.Param("page"))
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.SwitchPage(ctx, page) })
}

func (s *Server) handleTasksView(c *gin.Context) {
	view := app.ParseTasksView(c.Param("view"))
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.SetTasksView(ctx, view) })
}

func (s *Server) handleFilter(c *gin.Context) {
	filter := board.ParseFilter(c.Param("filter"))
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.SetFilter(ctx, filter) })
}

func (s *Server) handleToggleTheme(c *gin.Context) {
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.ToggleTheme(ctx) })
}

func (s *Server) handleCloseModal(c *gin.Context) {
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.CloseModal(ctx) })
}

func (s *Server) handlePrevMonth(c *gin.Context) {
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.PrevMonth(ctx) })
}

func (s *Server) handleNextMonth(c *gin.Context) {
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.NextMonth(ctx) })
}

func (s *Server) handleSelectDate(c *gin.Context) {
	date, err := calendar.ParseDate(c.Param("date"))
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.SelectDate(ctx, date) })
}
