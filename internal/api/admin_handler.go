package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quckapp/syncgateway/internal/models"
	"github.com/quckapp/syncgateway/internal/service"
	"github.com/quckapp/syncgateway/internal/syncgw"
	"github.com/sirupsen/logrus"
)

// AdminHandler exposes the §2.E / §6 admin/ops surface: admin management,
// membership management, workspace listing/lifecycle, user search, GC
// triggers and settings.
type AdminHandler struct {
	admin   *service.AdminService
	gateway *syncgw.Gateway
	logger  *logrus.Logger
}

func NewAdminHandler(admin *service.AdminService, gateway *syncgw.Gateway, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, gateway: gateway, logger: logger}
}

func (h *AdminHandler) ListAdmins(c *gin.Context) {
	admins, err := h.admin.ListAdmins(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admins": admins})
}

type grantAdminRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *AdminHandler) GrantAdmin(c *gin.Context) {
	grantedBy := getUserID(c)
	var req grantAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.admin.GrantAdmin(c.Request.Context(), req.UserID, &grantedBy); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) RevokeAdmin(c *gin.Context) {
	userID := c.Param("userId")
	if err := h.admin.RevokeAdmin(c.Request.Context(), userID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) ListWorkspaces(c *gin.Context) {
	search := c.Query("search")
	includeDeleted := c.Query("include_deleted") == "true"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	workspaces, total, err := h.admin.ListWorkspaces(c.Request.Context(), search, includeDeleted, limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": workspaces, "total": total})
}

func (h *AdminHandler) GetWorkspace(c *gin.Context) {
	ws, err := h.admin.GetWorkspace(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

func (h *AdminHandler) SoftDeleteWorkspace(c *gin.Context) {
	if err := h.admin.SoftDeleteWorkspace(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) RestoreWorkspace(c *gin.Context) {
	if err := h.admin.RestoreWorkspace(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) ListMembers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	members, total, err := h.admin.ListMembers(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "total": total})
}

type upsertMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required,oneof=owner editor viewer"`
}

// UpsertMember grants (or overwrites the role of) a membership directly,
// bypassing the invite flow — an operator tool for seeding or repairing
// workspace membership.
func (h *AdminHandler) UpsertMember(c *gin.Context) {
	workspaceID := c.Param("id")
	var req upsertMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	member := &models.WorkspaceMember{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		UserID:      req.UserID,
		Role:        models.Role(req.Role),
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.admin.UpsertMember(c.Request.Context(), member); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type setMemberRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=owner editor viewer"`
}

func (h *AdminHandler) SetMemberRole(c *gin.Context) {
	workspaceID := c.Param("id")
	userID := c.Param("userId")
	var req setMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.admin.SetMemberRole(c.Request.Context(), workspaceID, userID, models.Role(req.Role)); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) RemoveMember(c *gin.Context) {
	if err := h.admin.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("userId")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) SearchUsers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	users, err := h.admin.SearchUsers(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *AdminHandler) GetStatus(c *gin.Context) {
	report, err := h.admin.GetStatusReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type gcRequest struct {
	RetentionSeconds int `json:"retention_seconds"`
}

func (h *AdminHandler) TriggerGC(c *gin.Context) {
	workspaceID := c.Param("id")
	var req gcRequest
	_ = c.ShouldBindJSON(&req)
	if req.RetentionSeconds <= 0 {
		req.RetentionSeconds = 7 * 24 * 3600
	}
	retention := time.Duration(req.RetentionSeconds) * time.Second

	changeLogDeleted, err := h.gateway.GCChangeLog(c.Request.Context(), workspaceID, retention)
	if err != nil {
		handleError(c, err)
		return
	}
	tombstonesDeleted, err := h.gateway.GCTombstones(c.Request.Context(), workspaceID, retention)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"change_log_deleted": changeLogDeleted, "tombstones_deleted": tombstonesDeleted})
}

type settingRequest struct {
	Value string `json:"value" binding:"required"`
}

func (h *AdminHandler) GetSetting(c *gin.Context) {
	value, found, err := h.admin.GetSetting(c.Request.Context(), c.Param("id"), c.Param("key"))
	if err != nil {
		handleError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "setting not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "value": value})
}

func (h *AdminHandler) SetSetting(c *gin.Context) {
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.admin.SetSetting(c.Request.Context(), c.Param("id"), c.Param("key"), req.Value); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
