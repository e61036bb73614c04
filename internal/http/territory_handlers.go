package http

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/agendasaude/api/internal/service"
)

type cityHallPayload struct {
	Name    string `json:"name" validate:"required,min=2,max=200"`
	CNPJ    string `json:"cnpj" validate:"required,min=14,max=18"`
	Email   string `json:"email" validate:"required,email,max=255"`
	Phone   string `json:"phone" validate:"required,max=20"`
	Address string `json:"address" validate:"required,max=255"`
	City    string `json:"city" validate:"required,max=120"`
	State   string `json:"state" validate:"required,uf"`
	ZipCode string `json:"zip_code" validate:"required,max=9"`
	Active  *bool  `json:"is_active"`
}

func (p cityHallPayload) input() service.CityHallInput {
	return service.CityHallInput{
		Name:    strings.TrimSpace(p.Name),
		CNPJ:    onlyDigits(p.CNPJ),
		Email:   strings.ToLower(strings.TrimSpace(p.Email)),
		Phone:   strings.TrimSpace(p.Phone),
		Address: strings.TrimSpace(p.Address),
		City:    strings.TrimSpace(p.City),
		State:   strings.ToUpper(strings.TrimSpace(p.State)),
		ZipCode: onlyDigits(p.ZipCode),
		Active:  p.Active,
	}
}

type healthUnitPayload struct {
	CityHallID *string `json:"city_hall_id" validate:"omitempty,uuid"`
	Name       string  `json:"name" validate:"required,min=2,max=200"`
	Address    string  `json:"address" validate:"required,max=255"`
	City       string  `json:"city" validate:"required,max=120"`
	State      string  `json:"state" validate:"required,uf"`
	ZipCode    string  `json:"zip_code" validate:"required,max=9"`
	Phone      *string `json:"phone" validate:"omitempty,max=20"`
	Email      *string `json:"email" validate:"omitempty,email,max=255"`
}

func (p healthUnitPayload) input() service.HealthUnitInput {
	in := service.HealthUnitInput{
		Name:    strings.TrimSpace(p.Name),
		Address: strings.TrimSpace(p.Address),
		City:    strings.TrimSpace(p.City),
		State:   strings.ToUpper(strings.TrimSpace(p.State)),
		ZipCode: onlyDigits(p.ZipCode),
		Phone:   trimmed(p.Phone),
		Email:   trimmed(p.Email),
	}
	if id, _ := optionalUUID(p.CityHallID); id != nil {
		in.CityHallID = *id
	}
	return in
}

// ListCityHalls lista prefeituras visíveis ao ator.
func (h *Handler) ListCityHalls(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	items, err := h.svc.CityHalls.List(r.Context(), a)
	if err != nil {
		writeDomainError(w, r, err, "falha ao listar prefeituras")
		return
	}
	WriteJSON(w, http.StatusOK, items)
}

// GetCityHall devolve uma prefeitura do território do ator.
func (h *Handler) GetCityHall(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := h.svc.CityHalls.Get(r.Context(), a, id)
	if err != nil {
		writeDomainError(w, r, err, "falha ao carregar prefeitura")
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// CreateCityHall cadastra prefeitura.
func (h *Handler) CreateCityHall(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var payload cityHallPayload
	if !decodePayload(w, r, &payload) {
		return
	}
	item, err := h.svc.CityHalls.Create(r.Context(), a, payload.input())
	if err != nil {
		writeDomainError(w, r, err, "falha ao criar prefeitura")
		return
	}
	WriteJSON(w, http.StatusCreated, item)
}

// UpdateCityHall regrava a prefeitura.
func (h *Handler) UpdateCityHall(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload cityHallPayload
	if !decodePayload(w, r, &payload) {
		return
	}
	item, err := h.svc.CityHalls.Update(r.Context(), a, id, payload.input())
	if err != nil {
		writeDomainError(w, r, err, "falha ao atualizar prefeitura")
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// DeleteCityHall remove prefeitura sem vínculos.
func (h *Handler) DeleteCityHall(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.CityHalls.Delete(r.Context(), a, id); err != nil {
		writeDomainError(w, r, err, "falha ao remover prefeitura")
		return
	}
	WriteNoContent(w)
}

// ListHealthUnits lista unidades visíveis ao ator.
func (h *Handler) ListHealthUnits(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	items, err := h.svc.HealthUnits.List(r.Context(), a)
	if err != nil {
		writeDomainError(w, r, err, "falha ao listar unidades")
		return
	}
	WriteJSON(w, http.StatusOK, items)
}

// GetHealthUnit devolve uma unidade do território do ator.
func (h *Handler) GetHealthUnit(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := h.svc.HealthUnits.Get(r.Context(), a, id)
	if err != nil {
		writeDomainError(w, r, err, "falha ao carregar unidade")
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// CreateHealthUnit cadastra unidade numa prefeitura do território do ator.
func (h *Handler) CreateHealthUnit(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var payload healthUnitPayload
	if !decodePayload(w, r, &payload) {
		return
	}
	in := payload.input()
	if in.CityHallID == uuid.Nil {
		writeDomainError(w, r, fieldInvalid("city_hall_id", "campo obrigatório"), "dados inválidos")
		return
	}
	item, err := h.svc.HealthUnits.Create(r.Context(), a, in)
	if err != nil {
		writeDomainError(w, r, err, "falha ao criar unidade")
		return
	}
	WriteJSON(w, http.StatusCreated, item)
}

// UpdateHealthUnit regrava a unidade; sem city_hall_id mantém a prefeitura atual.
func (h *Handler) UpdateHealthUnit(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload healthUnitPayload
	if !decodePayload(w, r, &payload) {
		return
	}
	item, err := h.svc.HealthUnits.Update(r.Context(), a, id, payload.input())
	if err != nil {
		writeDomainError(w, r, err, "falha ao atualizar unidade")
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// DeleteHealthUnit remove unidade sem vínculos.
func (h *Handler) DeleteHealthUnit(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.HealthUnits.Delete(r.Context(), a, id); err != nil {
		writeDomainError(w, r, err, "falha ao remover unidade")
		return
	}
	WriteNoContent(w)
}

func onlyDigits(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
