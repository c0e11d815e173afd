package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
)

const (
	// ContextKeyUserID is the key for user ID in gin context
	ContextKeyUserID = "user_id"
	// ContextKeyEmail is the key for email in gin context
	ContextKeyEmail = "email"
	// ContextKeySystemRole is the key for system role in gin context
	ContextKeySystemRole = "system_role"
)

// Error codes for rejected requests, alongside the ones in the groups package.
const (
	CodeUnauthorized = "E_UNAUTHORIZED"
	CodeForbidden    = "E_FORBIDDEN"
)

func deny(c *gin.Context, status int, msg string) {
	code := CodeUnauthorized
	if status == http.StatusForbidden {
		code = CodeForbidden
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}

// AuthMiddleware validates JWT tokens and sets user info in context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			deny(c, http.StatusUnauthorized, "Authorization header required")
			return
		}
		token, ok := bearerToken(header)
		if !ok {
			deny(c, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := ValidateToken(token)
		switch {
		case errors.Is(err, ErrExpiredToken):
			deny(c, http.StatusUnauthorized, "Token has expired")
			return
		case err != nil:
			deny(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Set(ContextKeySystemRole, claims.SystemRole)
		c.Next()
	}
}

// RequireRole lets the request through when the caller's system role passes allowed.
func RequireRole(allowed func(models.SystemRole) bool, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := GetSystemRole(c)
		if !exists {
			deny(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !allowed(models.SystemRole(role)) {
			deny(c, http.StatusForbidden, message)
			return
		}
		c.Next()
	}
}

// RequireBuilder admits builders and admins.
func RequireBuilder() gin.HandlerFunc {
	return RequireRole(models.SystemRole.CanEditConfig, "Site builder access required")
}

// RequireAdmin admits admins only.
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(func(r models.SystemRole) bool { return r == models.SystemRoleAdmin }, "Admin access required")
}

func get[T any](c *gin.Context, key string) (T, bool) {
	v, ok := c.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// GetUserID returns the user ID from the gin context
func GetUserID(c *gin.Context) (uint, bool) { return get[uint](c, ContextKeyUserID) }

// GetEmail returns the email from the gin context
func GetEmail(c *gin.Context) (string, bool) { return get[string](c, ContextKeyEmail) }

// GetSystemRole returns the system role from the gin context
func GetSystemRole(c *gin.Context) (string, bool) { return get[string](c, ContextKeySystemRole) }
