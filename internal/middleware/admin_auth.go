// Package middleware provides HTTP middlewares for the admin console.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"assac-admin-go/pkg/token"
)

// AdminAuth verifies the admin JWT and aborts with 401 when it is missing or
// invalid. The token is read from the "token" cookie, falling back to a
// Bearer Authorization header for API clients.
func AdminAuth(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie("token")
		if err != nil || raw == "" {
			header := c.GetHeader("Authorization")
			if strings.HasPrefix(header, "Bearer ") {
				raw = strings.TrimPrefix(header, "Bearer ")
			}
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, err := jwtManager.VerifyToken(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		// make the claims available to handlers
		c.Set("admin", claims)
		c.Next()
	}
}
