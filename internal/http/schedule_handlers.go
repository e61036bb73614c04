package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/agendasaude/api/internal/service"
)

type schedulePayload struct {
	DoctorID           *string  `json:"doctor_id" validate:"omitempty,uuid"`
	HealthUnitID       *string  `json:"health_unit_id" validate:"omitempty,uuid"`
	StartAt            *string  `json:"start_datetime" validate:"omitempty"`
	EndAt              *string  `json:"end_datetime" validate:"omitempty"`
	Status             *string  `json:"status" validate:"omitempty,oneof=pending confirmed temporary cancelled"`
	TotalSlots         *int     `json:"total_slots" validate:"omitempty,min=0,max=1000"`
	AvailableSlots     *int     `json:"available_slots" validate:"omitempty,min=0,max=1000"`
	IsRecurring        *bool    `json:"is_recurring"`
	RecurrenceType     *string  `json:"recurrence_type" validate:"omitempty,oneof=none daily weekly monthly"`
	RecurrenceEndDate  *string  `json:"recurrence_end_date" validate:"omitempty"`
	RecurrenceWeekdays *string  `json:"recurrence_weekdays" validate:"omitempty,max=20"`
	RRule              *string  `json:"rrule" validate:"omitempty,max=500"`
	ExDates            []string `json:"exdates" validate:"omitempty,dive,max=40"`
	Timezone           *string  `json:"tz" validate:"omitempty,timezone"`
	SubstituteDoctorID *string  `json:"substitute_doctor_id" validate:"omitempty,uuid"`
	Notes              *string  `json:"notes" validate:"omitempty,max=2000"`
}

func (p schedulePayload) input() (service.ScheduleInput, error) {
	in := service.ScheduleInput{
		Status:             p.Status,
		TotalSlots:         p.TotalSlots,
		AvailableSlots:     p.AvailableSlots,
		IsRecurring:        p.IsRecurring,
		RecurrenceType:     p.RecurrenceType,
		RecurrenceWeekdays: p.RecurrenceWeekdays,
		RRule:              p.RRule,
		ExDates:            p.ExDates,
		Timezone:           p.Timezone,
		Notes:              p.Notes,
	}
	in.DoctorID, _ = optionalUUID(p.DoctorID)
	in.HealthUnitID, _ = optionalUUID(p.HealthUnitID)
	in.SubstituteDoctorID, _ = optionalUUID(p.SubstituteDoctorID)

	var err error
	if in.StartAt, err = optionalDate(p.StartAt); err != nil {
		return in, fieldInvalid("start_datetime", "data inválida")
	}
	if in.EndAt, err = optionalDate(p.EndAt); err != nil {
		return in, fieldInvalid("end_datetime", "data inválida")
	}
	if in.RecurrenceEndDate, err = optionalDate(p.RecurrenceEndDate); err != nil {
		return in, fieldInvalid("recurrence_end_date", "data inválida")
	}
	return in, nil
}

// ListSchedules lista escalas do território do ator com filtros opcionais.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	q, ok := scheduleQuery(w, r)
	if !ok {
		return
	}
	items, err := h.svc.Schedules.List(r.Context(), a, q)
	if err != nil {
		writeDomainError(w, r, err, "falha ao listar escalas")
		return
	}
	WriteJSON(w, http.StatusOK, items)
}

// ListSchedulesByDateRange exige start_date e end_date; data sem hora em end_date cobre o dia inteiro.
func (h *Handler) ListSchedulesByDateRange(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	q, ok := scheduleQuery(w, r)
	if !ok {
		return
	}

	values := r.URL.Query()
	start, err := parseISODate(values.Get("start_date"))
	if err != nil {
		writeDomainError(w, r, fieldInvalid("start_date", "data obrigatória no formato ISO"), "dados inválidos")
		return
	}
	rawEnd := strings.TrimSpace(values.Get("end_date"))
	end, err := parseISODate(rawEnd)
	if err != nil {
		writeDomainError(w, r, fieldInvalid("end_date", "data obrigatória no formato ISO"), "dados inválidos")
		return
	}
	if len(rawEnd) == len("2006-01-02") {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	q.From, q.To = &start, &end

	items, err := h.svc.Schedules.List(r.Context(), a, q)
	if err != nil {
		writeDomainError(w, r, err, "falha ao listar escalas")
		return
	}
	WriteJSON(w, http.StatusOK, items)
}

func scheduleQuery(w http.ResponseWriter, r *http.Request) (service.ScheduleQuery, bool) {
	values := r.URL.Query()
	var q service.ScheduleQuery

	unitRaw := values.Get("health_unit_id")
	unitID, err := optionalUUID(&unitRaw)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "health_unit_id inválido", nil)
		return q, false
	}
	doctorRaw := values.Get("doctor_id")
	doctorID, err := optionalUUID(&doctorRaw)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "doctor_id inválido", nil)
		return q, false
	}
	q.HealthUnitID, q.DoctorID = unitID, doctorID
	if status := strings.TrimSpace(values.Get("status")); status != "" {
		q.Status = &status
	}
	return q, true
}

// GetSchedule devolve uma escala do território do ator.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := h.svc.Schedules.Get(r.Context(), a, id)
	if err != nil {
		writeDomainError(w, r, err, "falha ao carregar escala")
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// CreateSchedule cria escala numa unidade do território do ator.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var payload schedulePayload
	if !decodePayload(w, r, &payload) {
		return
	}
	in, err := payload.input()
	if err != nil {
		writeDomainError(w, r, err, "dados inválidos")
		return
	}
	item, err := h.svc.Schedules.Create(r.Context(), a, in)
	if err != nil {
		writeDomainError(w, r, err, "falha ao criar escala")
		return
	}
	WriteJSON(w, http.StatusCreated, item)
}

// UpdateSchedule altera os campos informados.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload schedulePayload
	if !decodePayload(w, r, &payload) {
		return
	}
	in, err := payload.input()
	if err != nil {
		writeDomainError(w, r, err, "dados inválidos")
		return
	}
	item, err := h.svc.Schedules.Update(r.Context(), a, id, in)
	if err != nil {
		writeDomainError(w, r, err, "falha ao atualizar escala")
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// DeleteSchedule remove a escala.
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Schedules.Delete(r.Context(), a, id); err != nil {
		writeDomainError(w, r, err, "falha ao remover escala")
		return
	}
	WriteNoContent(w)
}
