package http

import (
	"net/http"

	httpmiddleware "github.com/agendasaude/api/internal/http/middleware"
)

type loginPayload struct {
	Identifier string `json:"identifier" validate:"required,max=255"`
	Password   string `json:"password" validate:"required,max=128"`
}

// Login autentica por e-mail ou CPF e devolve o token de acesso.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if !decodePayload(w, r, &payload) {
		return
	}

	result, err := h.svc.Auth.Login(r.Context(), payload.Identifier, payload.Password)
	if err != nil {
		writeDomainError(w, r, err, "falha no login")
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// Me devolve o usuário autenticado com permissões efetivas.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := httpmiddleware.GetIdentity(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	user, err := h.svc.Auth.Me(r.Context(), identity.UserID)
	if err != nil {
		writeDomainError(w, r, err, "falha ao carregar usuário")
		return
	}

	WriteJSON(w, http.StatusOK, user)
}
