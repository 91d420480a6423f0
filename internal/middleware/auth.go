// Package middleware provides Gin HTTP middleware for request identification,
// metrics, and bearer-token authentication. Ordering matters and is enforced
// in router.go: Recovery → RequestID → Metrics → Auth → Handler, so that every
// response carries a request ID and is counted, and only authenticated
// requests reach handlers.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/procureflow/procureflow/internal/auth"
)

// Context keys populated by AuthMiddleware.
const (
	UserIDKey = "user_id"
	RoleKey   = "role"
)

// AuthMiddleware validates the Authorization bearer token and stores the
// caller's identity in the gin context.
func AuthMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or malformed authorization header",
			})
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
			})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole aborts with 403 unless AuthMiddleware stored the given role.
// Register it after AuthMiddleware.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if got, _ := c.Get(RoleKey); got != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "insufficient permissions",
			})
			return
		}
		c.Next()
	}
}
