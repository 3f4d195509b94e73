package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"reliefgrid.io/reliefgrid/internal/identity"
)

// RequirePermission gates a route on a workflow permission. The engine
// re-checks permissions for every operation; this middleware just fails
// obviously-unauthorized requests before any work happens.
func RequirePermission(aliases *identity.AliasTable, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "ACTOR_REQUIRED",
				"message": "no actor on request",
			})
			return
		}
		if !identity.HasPermission(aliases, actor.Roles, permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "PERMISSION_DENIED",
				"message": "actor role set does not grant this operation",
				"params":  gin.H{"permission": permission},
			})
			return
		}
		c.Next()
	}
}
