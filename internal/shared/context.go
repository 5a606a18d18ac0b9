package shared

import (
	"context"

	"github.com/tempora-hq/tempora/internal/authz"
)

type actorContextKey struct{}

// ContextWithActor stores the authenticated actor in context.
func ContextWithActor(ctx context.Context, actor authz.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (authz.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(authz.Actor)
	return actor, ok
}
