package app

import (
	"context"
	"strings"

	"github.com/hylla/qctl/internal/domain"
)

// MutationActor carries caller identity for audit attribution.
type MutationActor struct {
	ActorID string
	Source  string
}

// WithMutationActor attaches normalized mutation-actor identity to context.
func WithMutationActor(ctx context.Context, actor MutationActor) context.Context {
	actor.ActorID = strings.TrimSpace(actor.ActorID)
	actor.Source = strings.ToLower(strings.TrimSpace(actor.Source))
	return context.WithValue(ctx, mutationActorContextKey{}, actor)
}

// MutationActorFromContext returns mutation-actor identity when present.
func MutationActorFromContext(ctx context.Context) (MutationActor, bool) {
	actor, ok := ctx.Value(mutationActorContextKey{}).(MutationActor)
	if !ok || actor.ActorID == "" {
		return MutationActor{}, false
	}
	return actor, true
}

// ActorLabel renders the audit actor for ctx, falling back to domain.DefaultActor.
func ActorLabel(ctx context.Context) string {
	actor, ok := MutationActorFromContext(ctx)
	if !ok {
		return domain.DefaultActor
	}
	if actor.Source == "" {
		return actor.ActorID
	}
	return actor.Source + ":" + actor.ActorID
}

type mutationActorContextKey struct{}
