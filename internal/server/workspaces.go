package server

import (
	"context"

	"github.com/gin-gonic/gin"

	"crmapp/internal/app"
	"crmapp/internal/models"
)

type memberRequest struct {
	Username         string `form:"username"`
	Role             string `form:"role"`
	CustomRole       string `form:"custom_role"`
	CanEditTasks     bool   `form:"can_edit_tasks"`
	CanDeleteTasks   bool   `form:"can_delete_tasks"`
	CanAssignTasks   bool   `form:"can_assign_tasks"`
	CanManageMembers bool   `form:"can_manage_members"`
}

func (s *Server) handleSwitchWorkspace(c *gin.Context) {
	workspaceID, ok := parseID(c, "id")
	if !ok {
		return
	}
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.SwitchWorkspace(ctx, workspaceID) })
}

func (s *Server) handleNewMember(c *gin.Context) {
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.NewMember(ctx) })
}

func (r memberRequest) form() app.MemberForm {
	return app.MemberForm{
		Username:   r.Username,
		Role:       r.Role,
		CustomRole: r.CustomRole,
		Permissions: models.Permissions{
			CanEditTasks:     models.Flag(r.CanEditTasks),
			CanDeleteTasks:   models.Flag(r.CanDeleteTasks),
			CanAssignTasks:   models.Flag(r.CanAssignTasks),
			CanManageMembers: models.Flag(r.CanManageMembers),
		},
	}
}

// handleAddMember invites a user; unchecked permissions mean the role
// preset's defaults.
func (s *Server) handleAddMember(c *gin.Context) {
	var req memberRequest
	s.bindForm(c, &req)
	form := req.form()
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.AddMember(ctx, form) })
}

func (s *Server) handleEditMember(c *gin.Context) {
	memberID, ok := parseID(c, "id")
	if !ok {
		return
	}
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.EditMember(ctx, memberID) })
}

// handleUpdateMember saves the role dialog. Every checkbox is sent, so an
// unchecked one revokes the permission.
func (s *Server) handleUpdateMember(c *gin.Context) {
	memberID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req memberRequest
	s.bindForm(c, &req)
	form := req.form()
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.UpdateMember(ctx, memberID, form) })
}

func (s *Server) handleRemoveMember(c *gin.Context) {
	memberID, ok := parseID(c, "id")
	if !ok {
		return
	}
	s.act(c, func(ctx context.Context, ctrl *app.Controller) { ctrl.RemoveMember(ctx, memberID) })
}
