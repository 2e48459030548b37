package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quckapp/syncgateway/internal/service"
)

// getUserID reads the internal user id resolved by resolveUser.
func getUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

// handleError maps a service error kind to an HTTP status and JSON body,
// mirroring the teacher's handleError(c, err) sentinel-switch idiom in
// handlers.go.
func handleError(c *gin.Context, err error) {
	switch err {
	case service.ErrWorkspaceNotFound, service.ErrInviteNotFound, service.ErrUserNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case service.ErrForbiddenRole, service.ErrForbiddenOwner:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case service.ErrNotMember:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case service.ErrInviteExpired, service.ErrInviteRevoked, service.ErrInviteAlreadyUsed, service.ErrInviteTokenMismatch:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
