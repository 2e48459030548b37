package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/quckapp/syncgateway/internal/models"
	"github.com/quckapp/syncgateway/internal/syncgw"
	"github.com/sirupsen/logrus"
)

// SyncHandler exposes push/pull/updateCursor (§4.2, §4.5, §4.6), following
// the request-decode / service-call / JSON-respond shape of the teacher's
// handlers, and the wire shaping of erauner12-toolbridge-api's syncservice
// handlers for the sync-specific request/response bodies.
type SyncHandler struct {
	gateway *syncgw.Gateway
	logger  *logrus.Logger
}

func NewSyncHandler(gateway *syncgw.Gateway, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{gateway: gateway, logger: logger}
}

type pushRequest struct {
	Ops []models.PendingOp `json:"ops"`
}

func (h *SyncHandler) Push(c *gin.Context) {
	workspaceID := c.Param("id")
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.gateway.Push(c.Request.Context(), syncgw.PushBatch{WorkspaceID: workspaceID, Ops: req.Ops})
	if err != nil {
		h.logger.WithError(err).Error("push failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SyncHandler) Pull(c *gin.Context) {
	workspaceID := c.Param("id")

	cursor, _ := strconv.ParseInt(c.DefaultQuery("cursor", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "1000"))
	var tables []string
	if t := c.QueryArray("tables"); len(t) > 0 {
		tables = t
	}

	resp, err := h.gateway.Pull(c.Request.Context(), syncgw.PullRequest{
		WorkspaceID: workspaceID,
		Cursor:      cursor,
		Limit:       limit,
		Tables:      tables,
	})
	if err != nil {
		if errors.Is(err, syncgw.ErrUnknownTable) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("pull failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

type updateCursorRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
	Version  int64  `json:"version"`
}

func (h *SyncHandler) UpdateCursor(c *gin.Context) {
	workspaceID := c.Param("id")
	var req updateCursorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.gateway.UpdateCursor(c.Request.Context(), workspaceID, req.DeviceID, req.Version); err != nil {
		h.logger.WithError(err).Error("update cursor failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}
