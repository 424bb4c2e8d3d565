package auth

import "context"

type contextKey string

const actorKey contextKey = "actor"

// Actor identifies who performed an operation. It is supplied by the
// session/auth layer and passed into every mutating domain operation.
type Actor struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// WithActor returns a context carrying the given actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext retrieves the authenticated actor from context.
// The zero Actor is returned when no actor is present.
func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey).(Actor)
	return a
}
