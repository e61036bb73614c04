// Package audit publica eventos das mutações de controle de acesso.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ações registradas.
const (
	ActionGrant          = "permission.grant"
	ActionRevoke         = "permission.revoke"
	ActionClearOverride  = "permission.clear"
	ActionReplaceUser    = "user.overrides.replace"
	ActionSetRoleDefault = "role.permissions.replace"
	ActionSyncCatalog    = "catalog.sync"
)

// Event descreve uma mutação de RBAC.
type Event struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actor_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Role       string         `json:"role,omitempty"`
	Permission string         `json:"permission,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewEvent preenche id, horário e ator a partir do contexto.
func NewEvent(ctx context.Context, action string) Event {
	ev := Event{
		ID:         uuid.NewString(),
		Action:     action,
		OccurredAt: time.Now().UTC(),
	}
	if actor, ok := ActorFromContext(ctx); ok {
		ev.ActorID = actor.String()
	}
	return ev
}

type contextKey struct{}

// WithActor anota o contexto com o usuário que executa a operação.
func WithActor(ctx context.Context, actorID uuid.UUID) context.Context {
	return context.WithValue(ctx, contextKey{}, actorID)
}

// ActorFromContext recupera o ator anotado.
func ActorFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(contextKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
