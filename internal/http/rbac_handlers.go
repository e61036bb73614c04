package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/agendasaude/api/internal/http/middleware"
	"github.com/agendasaude/api/internal/rbac"
)

type rolePermissionsPayload struct {
	Permissions []string `json:"permissions" validate:"required,dive,required,max=100"`
}

type userPermissionsPayload struct {
	PermissionCustomizations map[string]bool `json:"permissionCustomizations" validate:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type permissionsResponse struct {
	Permissions         []rbac.Permission `json:"permissions"`
	SpecificPermissions map[string]bool   `json:"specificPermissions,omitempty"`
}

// SyncRBAC sincroniza catálogo e padrões dos papéis.
func (h *Handler) SyncRBAC(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RBAC.FullSync(r.Context()); err != nil {
		writeDomainError(w, r, err, "falha ao sincronizar RBAC")
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "RBAC sincronizado com sucesso"})
}

// UserPermissions devolve o conjunto efetivo e as exceções do usuário.
// Usuário inexistente resolve para lista vazia.
func (h *Handler) UserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	perms, err := h.svc.RBAC.EffectivePermissions(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err, "falha ao carregar permissões")
		return
	}
	overrides, err := h.svc.RBAC.UserOverrides(r.Context(), userID)
	if err != nil && !errors.Is(err, rbac.ErrUserNotFound) {
		writeDomainError(w, r, err, "falha ao carregar permissões")
		return
	}

	WriteJSON(w, http.StatusOK, permissionsResponse{Permissions: nonNil(perms), SpecificPermissions: overrides.Raw()})
}

// MyPermissions devolve o conjunto efetivo do próprio chamador.
func (h *Handler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	identity, ok := httpmiddleware.GetIdentity(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	perms, err := h.svc.RBAC.EffectivePermissions(r.Context(), identity.UserID)
	if err != nil {
		writeDomainError(w, r, err, "falha ao carregar permissões")
		return
	}
	WriteJSON(w, http.StatusOK, permissionsResponse{Permissions: nonNil(perms)})
}

// GrantPermission cria exceção concedendo a permissão.
func (h *Handler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.svc.RBAC.Grant(r.Context(), userID, chi.URLParam(r, "permission")); err != nil {
		writeDomainError(w, r, err, "falha ao conceder permissão")
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "Permissão concedida com sucesso"})
}

// RevokePermission cria exceção negando a permissão.
func (h *Handler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.svc.RBAC.Revoke(r.Context(), userID, chi.URLParam(r, "permission")); err != nil {
		writeDomainError(w, r, err, "falha ao revogar permissão")
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "Permissão revogada com sucesso"})
}

// ClearPermission remove a exceção e devolve o usuário ao padrão do papel.
func (h *Handler) ClearPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.svc.RBAC.ClearOverride(r.Context(), userID, chi.URLParam(r, "permission")); err != nil {
		writeDomainError(w, r, err, "falha ao remover exceção")
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "Exceção removida com sucesso"})
}

// CheckPermission responde se o usuário possui a permissão.
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	has, err := h.svc.RBAC.HasPermission(r.Context(), userID, chi.URLParam(r, "permission"))
	if err != nil {
		writeDomainError(w, r, err, "falha ao verificar permissão")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"hasPermission": has})
}

// ListPermissions lista o catálogo ativo.
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.RBAC.ListPermissions(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "falha ao listar permissões")
		return
	}
	if records == nil {
		records = []rbac.PermissionRecord{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"permissions": records})
}

// RolePermissions devolve os padrões do papel.
func (h *Handler) RolePermissions(w http.ResponseWriter, r *http.Request) {
	role, err := rbac.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		writeDomainError(w, r, err, "papel inválido")
		return
	}
	perms, err := h.svc.RBAC.RolePermissions(r.Context(), role)
	if err != nil {
		writeDomainError(w, r, err, "falha ao carregar permissões do papel")
		return
	}
	WriteJSON(w, http.StatusOK, permissionsResponse{Permissions: nonNil(perms)})
}

// SetRolePermissions substitui os padrões do papel; nomes fora do catálogo são ignorados.
func (h *Handler) SetRolePermissions(w http.ResponseWriter, r *http.Request) {
	role, err := rbac.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		writeDomainError(w, r, err, "papel inválido")
		return
	}
	var payload rolePermissionsPayload
	if !decodePayload(w, r, &payload) {
		return
	}

	accepted, err := h.svc.RBAC.SetRoleDefaults(r.Context(), role, payload.Permissions)
	if err != nil {
		writeDomainError(w, r, err, "falha ao atualizar permissões do papel")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"message":     "Permissões do role atualizadas com sucesso",
		"permissions": nonNil(accepted),
	})
}

// ReplaceUserPermissions substitui todas as exceções do usuário.
func (h *Handler) ReplaceUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var payload userPermissionsPayload
	if !decodePayload(w, r, &payload) {
		return
	}

	overrides, err := h.svc.RBAC.ReplaceUserOverrides(r.Context(), userID, payload.PermissionCustomizations)
	if err != nil {
		writeDomainError(w, r, err, "falha ao atualizar permissões do usuário")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"message":             "Permissões do usuário atualizadas com sucesso",
		"specificPermissions": overrides.Raw(),
	})
}

// ListUsersWithPermissions lista usuários ativos com o conjunto efetivo.
func (h *Handler) ListUsersWithPermissions(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.RBAC.ListUsersWithPermissions(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "falha ao listar usuários")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

func nonNil(perms []rbac.Permission) []rbac.Permission {
	if perms == nil {
		return []rbac.Permission{}
	}
	return perms
}
