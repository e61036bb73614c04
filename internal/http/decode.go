package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	httpmiddleware "github.com/agendasaude/api/internal/http/middleware"
	"github.com/agendasaude/api/internal/scope"
	"github.com/agendasaude/api/internal/util"
)

const maxBodyBytes = 1 << 20

// decodePayload lê o JSON e aplica as tags `validate`; responde 400 e devolve false em caso de falha.
func decodePayload(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return false
	}
	if err := util.Struct(dst); err != nil {
		var ve *util.ValidationError
		if errors.As(err, &ve) {
			WriteError(w, http.StatusBadRequest, "VALIDATION", "dados inválidos", ve.Fields)
			return false
		}
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return false
	}
	return true
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	value := strings.TrimSpace(chi.URLParam(r, name))
	if value == "" {
		return uuid.Nil, errors.New("empty")
	}
	return uuid.Parse(value)
}

// pathID lê o parâmetro de rota; responde 400 e devolve false quando não é UUID.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := parseUUIDParam(r, name)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", name+" inválido", nil)
		return uuid.Nil, false
	}
	return id, true
}

func parseISODate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty")
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse("2006-01-02", value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid date")
}

func optionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	ts, err := parseISODate(*raw)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// actor devolve o ator resolvido pelo Gate; ausência indica rota montada sem Gate.
func actor(w http.ResponseWriter, r *http.Request) (scope.Actor, bool) {
	a, ok := httpmiddleware.GetActor(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return scope.Actor{}, false
	}
	return a, true
}
