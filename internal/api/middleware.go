package api

import (
	"errors"
	"net/http"
	"strings"

	"checkout-service/internal/auth"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// RequireAuth resolves the bearer token through the external auth service
// and stores the principal on the request context.
func RequireAuth(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authentication required",
			})
			return
		}

		principal, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"error":   "Authentication required",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "Authentication service unavailable",
			})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireAdmin gates a route on the administrative role. Must run after
// RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		if principal == nil || !principal.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Forbidden: Admin access required",
			})
			return
		}
		c.Next()
	}
}

// GetPrincipal returns the authenticated principal, or nil.
func GetPrincipal(c *gin.Context) *auth.Principal {
	val, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	principal, _ := val.(*auth.Principal)
	return principal
}
