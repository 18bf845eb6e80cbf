package service

import (
	"context"
	"strings"

	obscontext "github.com/smallbiznis/numberpool/internal/observability/context"
)

// actorName prefers the explicit actor and falls back to the one on ctx.
func actorName(ctx context.Context, explicit string) string {
	if actor := strings.TrimSpace(explicit); actor != "" {
		return actor
	}
	return obscontext.ActorFromContext(ctx)
}

func actorFrom(ctx context.Context, explicit string) *string {
	return optional(actorName(ctx, explicit))
}
