package middleware

import (
	"context"

	"github.com/oneman/oneman-backend/internal/session"
)

type contextKey string

const ctxActor contextKey = "actor"

// ActorFromContext returns the authenticated actor, or the zero Actor.
func ActorFromContext(ctx context.Context) session.Actor {
	if ctx == nil {
		return session.Actor{}
	}
	if v, ok := ctx.Value(ctxActor).(session.Actor); ok {
		return v
	}
	return session.Actor{}
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) string {
	return ActorFromContext(ctx).UserID
}

// WithActor injects the actor into the context.
func WithActor(ctx context.Context, actor session.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}
