package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/why-xn/infradesk/internal/models"
)

const userContextKey = "user"

// AuthMiddleware validates the JWT Bearer token from the Authorization header.
func AuthMiddleware(jm *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		claims, err := jm.ValidateAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(userContextKey, claims)
		c.Next()
	}
}

// WriteRequired lets admins and operators through. Viewers are read-only.
func WriteRequired() gin.HandlerFunc {
	return requireRole("write access required", models.OperatorRole.CanWrite)
}

// AdminRequired checks that the authenticated operator has the admin role.
func AdminRequired() gin.HandlerFunc {
	return requireRole("admin role required", func(r models.OperatorRole) bool {
		return r == models.RoleAdmin
	})
}

func requireRole(message string, allowed func(models.OperatorRole) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetOperatorFromContext(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		if !allowed(claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": message})
			return
		}
		c.Next()
	}
}

// GetOperatorFromContext retrieves the OperatorClaims from the Gin context.
func GetOperatorFromContext(c *gin.Context) *OperatorClaims {
	val, exists := c.Get(userContextKey)
	if !exists {
		return nil
	}
	claims, ok := val.(*OperatorClaims)
	if !ok {
		return nil
	}
	return claims
}

// Actor returns the email recorded as changed_by for the request.
func Actor(c *gin.Context) string {
	if claims := GetOperatorFromContext(c); claims != nil {
		return claims.Email
	}
	return ""
}
