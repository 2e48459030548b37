package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quckapp/syncgateway/internal/models"
	"github.com/quckapp/syncgateway/internal/service"
	"github.com/sirupsen/logrus"
)

// IdentityHandler exposes the workspace store operations of §4.1, following
// the teacher's one-struct-per-resource handler shape in handlers.go.
type IdentityHandler struct {
	service *service.IdentityService
	logger  *logrus.Logger
}

func NewIdentityHandler(svc *service.IdentityService, logger *logrus.Logger) *IdentityHandler {
	return &IdentityHandler{service: svc, logger: logger}
}

func (h *IdentityHandler) ListWorkspaces(c *gin.Context) {
	userID := getUserID(c)
	workspaces, err := h.service.ListUserWorkspaces(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": workspaces})
}

func (h *IdentityHandler) GetDefaultWorkspace(c *gin.Context) {
	userID := getUserID(c)
	id, name, err := h.service.GetOrCreateDefaultWorkspace(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "name": name})
}

func (h *IdentityHandler) CreateWorkspace(c *gin.Context) {
	userID := getUserID(c)
	var req models.CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.service.CreateWorkspace(c.Request.Context(), userID, req.Name, req.Description)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *IdentityHandler) UpdateWorkspace(c *gin.Context) {
	userID := getUserID(c)
	workspaceID := c.Param("id")
	var req models.UpdateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.UpdateWorkspace(c.Request.Context(), userID, workspaceID, req.Name, req.Description); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *IdentityHandler) RemoveWorkspace(c *gin.Context) {
	userID := getUserID(c)
	workspaceID := c.Param("id")
	if err := h.service.RemoveWorkspace(c.Request.Context(), userID, workspaceID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *IdentityHandler) SetActiveWorkspace(c *gin.Context) {
	userID := getUserID(c)
	workspaceID := c.Param("id")
	if err := h.service.SetActiveWorkspace(c.Request.Context(), userID, workspaceID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *IdentityHandler) CreateInvite(c *gin.Context) {
	userID := getUserID(c)
	workspaceID := c.Param("id")
	var req models.InviteMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, err := h.service.GetWorkspaceRole(c.Request.Context(), userID, workspaceID)
	if err != nil {
		handleError(c, err)
		return
	}
	if role.Rank() < models.RoleEditor.Rank() {
		handleError(c, service.ErrForbiddenRole)
		return
	}
	id, token, err := h.service.CreateInvite(c.Request.Context(), workspaceID, userID, req.Email, models.Role(req.Role))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "token": token})
}

func (h *IdentityHandler) ListInvites(c *gin.Context) {
	workspaceID := c.Param("id")
	invites, err := h.service.ListInvites(c.Request.Context(), workspaceID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invites": invites})
}

func (h *IdentityHandler) RevokeInvite(c *gin.Context) {
	inviteID := c.Param("inviteId")
	if err := h.service.RevokeInvite(c.Request.Context(), inviteID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type consumeInviteRequest struct {
	Email string `json:"email" binding:"required,email"`
	Token string `json:"token" binding:"required"`
}

func (h *IdentityHandler) ConsumeInvite(c *gin.Context) {
	userID := getUserID(c)
	workspaceID := c.Param("id")
	var req consumeInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inv, err := h.service.ConsumeInvite(c.Request.Context(), workspaceID, req.Email, req.Token, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invite": inv})
}
