// Package middleware holds the gin middleware chain shared by every route
// group: request IDs, CORS, structured access logging, and bearer-token
// auth. It has no counterpart in the teacher's tree (router.go imports an
// internal/middleware package that was never present in the reference
// source), so it is authored here from the call-site contract: Auth sets
// "provider" and "provider_user_id" in the gin context, and the api
// package's resolveUser turns them into the "user_id" handlers read back.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestID stamps every request with an opaque ID, propagated to the
// response header and the structured log line.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// CORS permits browser-based clients to call the gateway from any origin;
// the core has no session cookies to protect, only bearer tokens.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Logger emits one structured line per request, in the teacher's logrus
// JSON-formatter style.
func Logger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request completed")
	}
}

// claims is the subset of the bearer token's payload the core consumes.
// Token issuance and verification of anything beyond signature/expiry is
// explicitly out of scope (§1) — the core only sees (provider,
// provider_user_id) tuples.
type claims struct {
	Provider       string `json:"provider"`
	ProviderUserID string `json:"provider_user_id"`
	jwt.RegisteredClaims
}

// Auth parses a bearer JWT and sets "provider"/"provider_user_id" in the gin
// context for downstream handlers to resolve via IdentityService.
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (interface{}, error) {
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		cl, ok := token.Claims.(*claims)
		if !ok || cl.Provider == "" || cl.ProviderUserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}

		c.Set("provider", cl.Provider)
		c.Set("provider_user_id", cl.ProviderUserID)
		c.Next()
	}
}
