package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agendasaude/api/internal/audit"
	"github.com/agendasaude/api/internal/auth"
	"github.com/agendasaude/api/internal/metrics"
	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/scope"
)

type contextKey string

const (
	ContextKeyIdentity contextKey = "identity"
	ContextKeyActor    contextKey = "actor"
)

// Authorizer avalia os requisitos de uma rota contra a linha atual do usuário.
type Authorizer interface {
	Authorize(ctx context.Context, userID uuid.UUID, required []rbac.Permission) (rbac.Decision, error)
}

// Gate valida o bearer token e as permissões declaradas por rota a cada requisição.
type Gate struct {
	tokens     *auth.TokenManager
	authorizer Authorizer
}

// NewGate cria o gate sobre o emissor de tokens e o motor de RBAC.
func NewGate(tokens *auth.TokenManager, authorizer Authorizer) *Gate {
	return &Gate{tokens: tokens, authorizer: authorizer}
}

// Require admite a requisição quando o usuário possui todas as permissões.
// Sem permissões, basta um token válido de usuário ativo.
func (g *Gate) Require(perms ...rbac.Permission) func(http.Handler) http.Handler {
	return g.middleware(perms, false)
}

// RequireAny admite a requisição quando o usuário possui ao menos uma das permissões.
func (g *Gate) RequireAny(perms ...rbac.Permission) func(http.Handler) http.Handler {
	return g.middleware(perms, true)
}

func (g *Gate) middleware(required []rbac.Permission, anyOf bool) func(http.Handler) http.Handler {
	required = append([]rbac.Permission(nil), required...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := auth.ParseBearer(r.Header.Get("Authorization"))
			if err != nil {
				deny(w, r, http.StatusUnauthorized, "AUTH", tokenReason(err), err.Error())
				return
			}

			claims, err := g.tokens.Verify(raw)
			if err != nil {
				deny(w, r, http.StatusUnauthorized, "AUTH", tokenReason(err), err.Error())
				return
			}
			identity, err := claims.Identity()
			if err != nil {
				deny(w, r, http.StatusUnauthorized, "AUTH", "token_invalid", err.Error())
				return
			}

			decision, err := g.authorizer.Authorize(r.Context(), identity.UserID, required)
			if err != nil {
				if errors.Is(err, rbac.ErrUserNotFound) {
					deny(w, r, http.StatusUnauthorized, "AUTH", "user_not_found", "usuário não encontrado")
					return
				}
				log.Error().Err(err).Str("user_id", identity.UserID.String()).Msg("gate: falha ao avaliar permissões")
				deny(w, r, http.StatusForbidden, "FORBIDDEN", "error", "acesso negado")
				return
			}

			if !decision.Subject.Active {
				deny(w, r, http.StatusForbidden, "FORBIDDEN", "inactive", "acesso negado")
				return
			}
			if !admitted(decision, required, anyOf) {
				log.Warn().Str("user_id", identity.UserID.String()).Str("path", r.URL.Path).
					Strs("missing", permissionStrings(decision.Missing)).Msg("gate: permissões insuficientes")
				deny(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient_permissions", "acesso negado")
				return
			}

			metrics.GateDecisionsTotal.WithLabelValues("admitted", "ok").Inc()

			ctx := context.WithValue(r.Context(), ContextKeyIdentity, identity)
			ctx = context.WithValue(ctx, ContextKeyActor, scope.ActorFromSubject(decision.Subject))
			ctx = audit.WithActor(ctx, identity.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func admitted(d rbac.Decision, required []rbac.Permission, anyOf bool) bool {
	if len(required) == 0 || !anyOf {
		return d.Allowed
	}
	return len(d.Missing) < len(required)
}

func tokenReason(err error) string {
	if errors.Is(err, auth.ErrTokenMissing) {
		return "token_missing"
	}
	return "token_invalid"
}

func deny(w http.ResponseWriter, r *http.Request, status int, code, reason, message string) {
	metrics.GateDecisionsTotal.WithLabelValues("denied", reason).Inc()
	log.Debug().Str("path", r.URL.Path).Str("reason", reason).Msg("gate: requisição negada")
	writeError(w, status, code, message)
}

func permissionStrings(perms []rbac.Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.String())
	}
	return out
}

// GetIdentity recupera a identidade do token.
func GetIdentity(ctx context.Context) (auth.Identity, bool) {
	val, ok := ctx.Value(ContextKeyIdentity).(auth.Identity)
	return val, ok
}

// GetActor recupera o ator com o território lido do banco nesta requisição.
func GetActor(ctx context.Context) (scope.Actor, bool) {
	val, ok := ctx.Value(ContextKeyActor).(scope.Actor)
	return val, ok
}

// GetSubject devolve o id do usuário autenticado como texto.
func GetSubject(ctx context.Context) string {
	if id, ok := GetIdentity(ctx); ok {
		return id.UserID.String()
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
