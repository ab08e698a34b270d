package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	UserIDKey     = "user_id"
	UsernameKey   = "username"
	AdminKey      = "admin"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// RequireAuth returns a Gin middleware that validates bearer tokens
// and stores the actor's identity in the request context.
func RequireAuth(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format",
			})
			return
		}

		claims, err := m.Validate(strings.TrimPrefix(authHeader, BearerPrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)
		c.Set(AdminKey, claims.Admin)

		c.Next()
	}
}

// CurrentUserID extracts the authenticated user ID from the Gin context.
func CurrentUserID(c *gin.Context) int64 {
	if id, exists := c.Get(UserIDKey); exists {
		return id.(int64)
	}
	return 0
}

// CurrentUsername extracts the authenticated username from the Gin context.
func CurrentUsername(c *gin.Context) string {
	if name, exists := c.Get(UsernameKey); exists {
		return name.(string)
	}
	return ""
}

// IsAdmin reports whether the authenticated user has the admin flag.
func IsAdmin(c *gin.Context) bool {
	if admin, exists := c.Get(AdminKey); exists {
		return admin.(bool)
	}
	return false
}
