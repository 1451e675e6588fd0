package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting principal ID in context. Handlers set it
// after authenticating the request; services read it to fill blame fields.
func ContextWithActor(ctx context.Context, principalID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, principalID)
}

// ActorFromContext extracts the acting principal ID from context. Returns zero
// when no actor is attached (seed scripts, jobs).
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
