package server

import (
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/numberpool/internal/observability/context"
)

const actorHeader = "X-Actor"

// ActorContext carries the X-Actor header into the request context so
// history entries record who made a change.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := c.GetHeader(actorHeader); actor != "" {
			ctx := obscontext.WithActor(c.Request.Context(), actor)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
