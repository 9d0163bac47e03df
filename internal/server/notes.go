package server

import (
	"context"

	"github.com/gin-gonic/gin"

	"crmapp/internal/app"
)

type noteRequest struct {
	Title   string `form:"title"`
	Content string `form:"content"`
	Date    string `form:"note_date"`
	Color   string `form:"color"`
}

func (s *Server) handleNewNote(c *gin.Context) {
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.NewNote(ctx) })
}

// handleSaveNote creates a note or updates the one being edited.
func (s *Server) handleSaveNote(c *gin.Context) {
	var req noteRequest
	s.bindForm(c, &req)
	form := app.NoteForm{Title: req.Title, Content: req.Content, Date: req.Date, Color: req.Color}
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.SaveNote(ctx, form) })
}

func (s *Server) handleEditNote(c *gin.Context) {
	noteID, ok := parseID(c, "id")
	if !ok {
		return
	}
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.EditNote(ctx, noteID) })
}

func (s *Server) handleDeleteNote(c *gin.Context) {
	noteID, ok := parseID(c, "id")
	if !ok {
		return
	}
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.DeleteNote(ctx, noteID) })
}
