package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"reliefgrid.io/reliefgrid/internal/identity"
)

// Identity headers set by the platform gateway, which terminates
// authentication upstream of this service.
const (
	ActorIDHeader    = "X-Actor-ID"
	ActorNameHeader  = "X-Actor-Name"
	ActorRolesHeader = "X-Actor-Roles" // comma-separated
)

// Actor resolves the acting user from the gateway identity headers and
// stores it on the request context. Requests without an actor id are
// rejected before any handler runs.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(ActorIDHeader))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "ACTOR_REQUIRED",
				"message": "missing gateway identity headers",
			})
			return
		}
		var roles []string
		for _, r := range strings.Split(c.GetHeader(ActorRolesHeader), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}
		actor := identity.Actor{
			ID:    id,
			Name:  strings.TrimSpace(c.GetHeader(ActorNameHeader)),
			Roles: roles,
		}
		c.Request = c.Request.WithContext(identity.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// ActorFrom returns the actor resolved for this request.
func ActorFrom(c *gin.Context) (identity.Actor, bool) {
	return identity.ActorFrom(c.Request.Context())
}
