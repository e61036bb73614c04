package http

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/repo"
	"github.com/agendasaude/api/internal/scope"
	"github.com/agendasaude/api/internal/service"
	"github.com/agendasaude/api/internal/util"
)

// writeDomainError traduz erros de serviço para o envelope HTTP.
// Erros desconhecidos viram 500 com a mensagem de fallback; o detalhe fica só no log.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var ve *util.ValidationError
	switch {
	case errors.As(err, &ve):
		WriteError(w, http.StatusBadRequest, "VALIDATION", "dados inválidos", ve.Fields)
	case errors.Is(err, scope.ErrForbidden):
		WriteError(w, http.StatusForbidden, "FORBIDDEN", "acesso negado", nil)
	case errors.Is(err, repo.ErrNotFound),
		errors.Is(err, rbac.ErrUserNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "registro não encontrado", nil)
	case errors.Is(err, rbac.ErrPermissionNotFound),
		errors.Is(err, scope.ErrCityHallNotFound),
		errors.Is(err, scope.ErrHealthUnitNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, rbac.ErrInvalidRole),
		errors.Is(err, rbac.ErrInvalidPermission):
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, service.ErrConflict):
		WriteError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, repo.ErrConflict):
		WriteError(w, http.StatusConflict, "CONFLICT", "registro duplicado", nil)
	case errors.Is(err, repo.ErrInvalidReference):
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, repo.ErrInUse):
		WriteError(w, http.StatusConflict, "CONFLICT", "registro possui vínculos", nil)
	case errors.Is(err, service.ErrTooManyAttempts):
		w.Header().Set("Retry-After", "60")
		WriteError(w, http.StatusTooManyRequests, "RATE_LIMIT", err.Error(), nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg(fallback)
		WriteError(w, http.StatusInternalServerError, "INTERNAL", fallback, nil)
	}
}
