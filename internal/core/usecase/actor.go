package usecase

import "context"

type actorCtxKey struct{}

const defaultActor = "system"

// WithActor tags ctx with the identity performing a mutation, for event
// attribution.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorCtxKey{}).(string)
	if actor == "" {
		return defaultActor
	}
	return actor
}
