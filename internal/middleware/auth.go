package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echocast/internal/auth"
	"github.com/lalith-99/echocast/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// Context keys for claims stored in gin.Context.
const (
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "role"
)

// AdminTokenHeader carries the plain admin token; it is checked against a
// bcrypt hash so the token itself never sits in configuration.
const AdminTokenHeader = "X-Admin-Token"

// AuthMiddleware validates the Bearer token and stores the caller's id and
// role for the handlers. Requests without a valid token stop here with 401.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}

		claims, err := auth.ParseToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

// AdminMiddleware admits requests whose X-Admin-Token matches tokenHash.
// An empty hash disables the admin surface entirely (404).
func AdminMiddleware(tokenHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenHash == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": "admin routes are disabled",
			})
			return
		}

		token := c.GetHeader(AdminTokenHeader)
		if token == "" || bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid admin token",
			})
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user's id, or "" outside AuthMiddleware.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

func GetRole(c *gin.Context) models.Role {
	val, exists := c.Get(ContextKeyRole)
	if !exists {
		return ""
	}
	role, ok := val.(models.Role)
	if !ok {
		return ""
	}
	return role
}
