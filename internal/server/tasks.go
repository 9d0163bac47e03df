package server

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"crmapp/internal/app"
	"crmapp/internal/models"
)

type taskRequest struct {
	Title       string `form:"title"`
	Description string `form:"description"`
	Priority    string `form:"priority"`
	DueDate     string `form:"due_date"`
	DueTime     string `form:"due_time"`
	Assignee    string `form:"assignee"`
}

// handleSaveTask creates a task or updates the one being edited.
func (s *Server) handleSaveTask(c *gin.Context) {
	var req taskRequest
	// Missing fields are validated by the controller.
	s.bindForm(c, &req)

	form := app.TaskForm{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		DueTime:     req.DueTime,
		Assignee:    req.Assignee,
	}
	if strings.TrimSpace(req.Priority) != "" {
		form.Priority = models.ParsePriority(req.Priority)
	}
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.SaveTask(ctx, form) })
}

func (s *Server) handleNewTask(c *gin.Context) {
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.NewTask(ctx) })
}

func (s *Server) handleOpenTask(c *gin.Context) {
	taskID, ok := parseID(c, "id")
	if !ok {
		return
	}
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.OpenTask(ctx, taskID) })
}

func (s *Server) handleEditTask(c *gin.Context) {
	taskID, ok := parseID(c, "id")
	if !ok {
		return
	}
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.EditTask(ctx, taskID) })
}

func (s *Server) handleToggleTask(c *gin.Context) {
	taskID, ok := parseID(c, "id")
	if !ok {
		return
	}
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.ToggleTask(ctx, taskID) })
}

// handleDeleteTask deletes once the form carries confirmed=1; otherwise the
// controller opens its confirmation dialog.
func (s *Server) handleDeleteTask(c *gin.Context) {
	taskID, ok := parseID(c, "id")
	if !ok {
		return
	}
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.DeleteTask(ctx, taskID) })
}

func (s *Server) handleMoveTask(c *gin.Context) {
	taskID, ok := parseID(c, "id")
	if !ok {
		return
	}
	stageID, ok := parseID(c, "stage")
	if !ok {
		return
	}
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.MoveTask(ctx, taskID, stageID) })
}

type assignRequest struct {
	Username string `form:"username"`
}

func (s *Server) handleAssignTask(c *gin.Context) {
	taskID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req assignRequest
	s.bindForm(c, &req)
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.AssignTask(ctx, taskID, req.Username) })
}
