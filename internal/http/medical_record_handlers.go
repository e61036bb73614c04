package http

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/agendasaude/api/internal/service"
)

// MedicalRecordPayload são os campos clínicos aceitos na criação e na atualização.
type MedicalRecordPayload struct {
	BloodType       *string  `json:"blood_type" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Height          *float64 `json:"height" validate:"omitempty,min=50,max=300"`
	Weight          *float64 `json:"weight" validate:"omitempty,min=1,max=500"`
	Allergies       []string `json:"allergies" validate:"omitempty,dive,max=200"`
	ChronicDiseases []string `json:"chronic_diseases" validate:"omitempty,dive,max=200"`
	Notes           *string  `json:"notes" validate:"omitempty,max=4000"`
	Active          *bool    `json:"is_active"`
}

type createMedicalRecordPayload struct {
	PatientID string `json:"patient_id" validate:"required,uuid"`
	MedicalRecordPayload
}

func (p MedicalRecordPayload) input() service.MedicalRecordInput {
	return service.MedicalRecordInput{
		BloodType:       p.BloodType,
		HeightCM:        p.Height,
		WeightKG:        p.Weight,
		Allergies:       p.Allergies,
		ChronicDiseases: p.ChronicDiseases,
		Notes:           p.Notes,
		Active:          p.Active,
	}
}

// ListMedicalRecords lista prontuários de pacientes do território do ator.
func (h *Handler) ListMedicalRecords(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	items, err := h.svc.MedicalRecords.List(r.Context(), a)
	if err != nil {
		writeDomainError(w, r, err, "falha ao listar prontuários")
		return
	}
	WriteJSON(w, http.StatusOK, items)
}

// GetMedicalRecord devolve um prontuário.
func (h *Handler) GetMedicalRecord(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := h.svc.MedicalRecords.Get(r.Context(), a, id)
	if err != nil {
		writeDomainError(w, r, err, "falha ao carregar prontuário")
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// GetPatientMedicalRecord devolve o prontuário do paciente.
func (h *Handler) GetPatientMedicalRecord(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	patientID, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}
	item, err := h.svc.MedicalRecords.GetByPatient(r.Context(), a, patientID)
	if err != nil {
		writeDomainError(w, r, err, "falha ao carregar prontuário")
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// CreateMedicalRecord abre prontuário com patient_id no corpo.
func (h *Handler) CreateMedicalRecord(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var payload createMedicalRecordPayload
	if !decodePayload(w, r, &payload) {
		return
	}
	item, err := h.svc.MedicalRecords.Create(r.Context(), a, uuid.MustParse(payload.PatientID), payload.input())
	if err != nil {
		writeDomainError(w, r, err, "falha ao criar prontuário")
		return
	}
	WriteJSON(w, http.StatusCreated, item)
}

// CreatePatientMedicalRecord abre prontuário vazio para o paciente da rota.
func (h *Handler) CreatePatientMedicalRecord(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	patientID, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}
	item, err := h.svc.MedicalRecords.Create(r.Context(), a, patientID, service.MedicalRecordInput{})
	if err != nil {
		writeDomainError(w, r, err, "falha ao criar prontuário")
		return
	}
	WriteJSON(w, http.StatusCreated, item)
}

// UpdateMedicalRecord altera os campos clínicos informados.
func (h *Handler) UpdateMedicalRecord(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload MedicalRecordPayload
	if !decodePayload(w, r, &payload) {
		return
	}
	item, err := h.svc.MedicalRecords.Update(r.Context(), a, id, payload.input())
	if err != nil {
		writeDomainError(w, r, err, "falha ao atualizar prontuário")
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// DeleteMedicalRecord remove o prontuário.
func (h *Handler) DeleteMedicalRecord(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.MedicalRecords.Delete(r.Context(), a, id); err != nil {
		writeDomainError(w, r, err, "falha ao remover prontuário")
		return
	}
	WriteNoContent(w)
}
