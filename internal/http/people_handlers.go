package http

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/service"
	"github.com/agendasaude/api/internal/util"
)

// ProfilePayload reúne os campos pessoais aceitos em pacientes e médicos.
type ProfilePayload struct {
	Name      *string `json:"name" validate:"omitempty,min=2,max=200"`
	BirthDate *string `json:"birth_date" validate:"omitempty"`
	Gender    *string `json:"gender" validate:"omitempty,max=20"`
	SUSCard   *string `json:"sus_card" validate:"omitempty,max=20"`
}

func (p ProfilePayload) input() (service.ProfileInput, error) {
	birth, err := optionalDate(p.BirthDate)
	if err != nil {
		return service.ProfileInput{}, fieldInvalid("birth_date", "data inválida")
	}
	return service.ProfileInput{Name: trimmed(p.Name), BirthDate: birth, Gender: trimmed(p.Gender), SUSCard: trimmed(p.SUSCard)}, nil
}

type createUserPayload struct {
	Email        string  `json:"email" validate:"required,email,max=255"`
	Password     string  `json:"password" validate:"required,min=8,max=128"`
	CPF          string  `json:"cpf" validate:"required,cpf"`
	Name         string  `json:"name" validate:"required,min=2,max=200"`
	Role         string  `json:"role" validate:"required"`
	CityID       *string `json:"city_id" validate:"omitempty,uuid"`
	HealthUnitID *string `json:"health_unit_id" validate:"omitempty,uuid"`
}

type updateUserPayload struct {
	Email        *string `json:"email" validate:"omitempty,email,max=255"`
	Password     *string `json:"password" validate:"omitempty,min=8,max=128"`
	CPF          *string `json:"cpf" validate:"omitempty,cpf"`
	Name         *string `json:"name" validate:"omitempty,min=2,max=200"`
	Role         *string `json:"role" validate:"omitempty"`
	Active       *bool   `json:"is_active"`
	CityID       *string `json:"city_id" validate:"omitempty,uuid"`
	HealthUnitID *string `json:"health_unit_id" validate:"omitempty,uuid"`
}

// CreatePatientPayload é o corpo de criação de pacientes e a base do cadastro de médicos.
type CreatePatientPayload struct {
	Email        string `json:"email" validate:"required,email,max=255"`
	Password     string `json:"password" validate:"required,min=8,max=128"`
	CPF          string `json:"cpf" validate:"required,cpf"`
	CityID       string `json:"city_id" validate:"required,uuid"`
	HealthUnitID string `json:"health_unit_id" validate:"required,uuid"`
	ProfilePayload
}

// UpdatePatientPayload é o corpo de atualização parcial de pacientes.
type UpdatePatientPayload struct {
	Email        *string `json:"email" validate:"omitempty,email,max=255"`
	Password     *string `json:"password" validate:"omitempty,min=8,max=128"`
	CPF          *string `json:"cpf" validate:"omitempty,cpf"`
	CityID       *string `json:"city_id" validate:"omitempty,uuid"`
	HealthUnitID *string `json:"health_unit_id" validate:"omitempty,uuid"`
	ProfilePayload
}

// CRMPayload é o registro profissional do médico.
type CRMPayload struct {
	Number    string `json:"crm_number" validate:"required,max=20"`
	UF        string `json:"crm_uf" validate:"required,uf"`
	Specialty string `json:"specialty" validate:"required,max=120"`
}

type createDoctorPayload struct {
	CreatePatientPayload
	CRMPayload
}

type updateDoctorPayload struct {
	UpdatePatientPayload
	CRMNumber *string `json:"crm_number" validate:"omitempty,max=20"`
	CRMUF     *string `json:"crm_uf" validate:"omitempty,uf"`
	Specialty *string `json:"specialty" validate:"omitempty,max=120"`
	Active    *bool   `json:"is_active"`
}

// ListUsers lista contas visíveis ao ator.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	users, err := h.svc.Users.List(r.Context(), a)
	if err != nil {
		writeDomainError(w, r, err, "falha ao listar usuários")
		return
	}
	WriteJSON(w, http.StatusOK, users)
}

// GetUser devolve uma conta do território do ator.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	user, err := h.svc.Users.Get(r.Context(), a, id)
	if err != nil {
		writeDomainError(w, r, err, "falha ao carregar usuário")
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

// CreateUser cria conta administrativa.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var payload createUserPayload
	if !decodePayload(w, r, &payload) {
		return
	}
	role, err := rbac.ParseRole(payload.Role)
	if err != nil {
		writeDomainError(w, r, err, "papel inválido")
		return
	}
	cityID, _ := optionalUUID(payload.CityID)
	unitID, _ := optionalUUID(payload.HealthUnitID)

	user, err := h.svc.Users.Create(r.Context(), a, service.CreateUserInput{
		Email:        payload.Email,
		Password:     payload.Password,
		CPF:          payload.CPF,
		Name:         payload.Name,
		Role:         role,
		CityID:       cityID,
		HealthUnitID: unitID,
	})
	if err != nil {
		writeDomainError(w, r, err, "falha ao criar usuário")
		return
	}
	WriteJSON(w, http.StatusCreated, user)
}

// UpdateUser altera os campos informados.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload updateUserPayload
	if !decodePayload(w, r, &payload) {
		return
	}

	in := service.UpdateUserInput{
		Email:    payload.Email,
		Password: payload.Password,
		CPF:      payload.CPF,
		Name:     trimmed(payload.Name),
		Active:   payload.Active,
	}
	if payload.Role != nil {
		role, err := rbac.ParseRole(*payload.Role)
		if err != nil {
			writeDomainError(w, r, err, "papel inválido")
			return
		}
		in.Role = &role
	}
	in.CityID, _ = optionalUUID(payload.CityID)
	in.HealthUnitID, _ = optionalUUID(payload.HealthUnitID)

	user, err := h.svc.Users.Update(r.Context(), a, id, in)
	if err != nil {
		writeDomainError(w, r, err, "falha ao atualizar usuário")
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

// DeleteUser remove a conta e o perfil.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Users.Delete(r.Context(), a, id); err != nil {
		writeDomainError(w, r, err, "falha ao remover usuário")
		return
	}
	WriteNoContent(w)
}

// ListPatients lista pacientes ativos do território do ator.
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	patients, err := h.svc.Patients.List(r.Context(), a)
	if err != nil {
		writeDomainError(w, r, err, "falha ao listar pacientes")
		return
	}
	WriteJSON(w, http.StatusOK, patients)
}

// ListPatientsByHealthUnit lista pacientes de uma unidade do território do ator.
func (h *Handler) ListPatientsByHealthUnit(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	unitID, ok := pathID(w, r, "healthUnitID")
	if !ok {
		return
	}
	patients, err := h.svc.Patients.ListByHealthUnit(r.Context(), a, unitID)
	if err != nil {
		writeDomainError(w, r, err, "falha ao listar pacientes")
		return
	}
	WriteJSON(w, http.StatusOK, patients)
}

// GetPatient devolve um paciente do território do ator.
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	patient, err := h.svc.Patients.Get(r.Context(), a, id)
	if err != nil {
		writeDomainError(w, r, err, "falha ao carregar paciente")
		return
	}
	WriteJSON(w, http.StatusOK, patient)
}

// CreatePatient cadastra paciente na unidade informada.
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var payload CreatePatientPayload
	if !decodePayload(w, r, &payload) {
		return
	}
	profile, err := payload.input()
	if err != nil {
		writeDomainError(w, r, err, "dados inválidos")
		return
	}

	patient, err := h.svc.Patients.Create(r.Context(), a, service.CreatePatientInput{
		Email:        payload.Email,
		Password:     payload.Password,
		CPF:          payload.CPF,
		Profile:      profile,
		CityID:       uuid.MustParse(payload.CityID),
		HealthUnitID: uuid.MustParse(payload.HealthUnitID),
	})
	if err != nil {
		writeDomainError(w, r, err, "falha ao criar paciente")
		return
	}
	WriteJSON(w, http.StatusCreated, patient)
}

// UpdatePatient altera os campos informados.
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload UpdatePatientPayload
	if !decodePayload(w, r, &payload) {
		return
	}
	profile, err := payload.input()
	if err != nil {
		writeDomainError(w, r, err, "dados inválidos")
		return
	}

	in := service.UpdatePatientInput{
		Email:    payload.Email,
		Password: payload.Password,
		CPF:      payload.CPF,
		Profile:  profile,
	}
	in.CityID, _ = optionalUUID(payload.CityID)
	in.HealthUnitID, _ = optionalUUID(payload.HealthUnitID)

	patient, err := h.svc.Patients.Update(r.Context(), a, id, in)
	if err != nil {
		writeDomainError(w, r, err, "falha ao atualizar paciente")
		return
	}
	WriteJSON(w, http.StatusOK, patient)
}

// DeletePatient desativa o paciente.
func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Patients.Delete(r.Context(), a, id); err != nil {
		writeDomainError(w, r, err, "falha ao remover paciente")
		return
	}
	WriteNoContent(w)
}

// ListDoctors lista médicos do território do ator.
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	doctors, err := h.svc.Doctors.List(r.Context(), a)
	if err != nil {
		writeDomainError(w, r, err, "falha ao listar médicos")
		return
	}
	WriteJSON(w, http.StatusOK, doctors)
}

// GetDoctor devolve um médico do território do ator.
func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	doctor, err := h.svc.Doctors.Get(r.Context(), a, id)
	if err != nil {
		writeDomainError(w, r, err, "falha ao carregar médico")
		return
	}
	WriteJSON(w, http.StatusOK, doctor)
}

// CreateDoctor cadastra médico com o registro profissional.
func (h *Handler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var payload createDoctorPayload
	if !decodePayload(w, r, &payload) {
		return
	}
	profile, err := payload.input()
	if err != nil {
		writeDomainError(w, r, err, "dados inválidos")
		return
	}

	doctor, err := h.svc.Doctors.Create(r.Context(), a, service.CreateDoctorInput{
		Email:    payload.Email,
		Password: payload.Password,
		CPF:      payload.CPF,
		Profile:  profile,
		CRM: service.CRMInput{
			Number:    strings.TrimSpace(payload.Number),
			UF:        strings.ToUpper(strings.TrimSpace(payload.UF)),
			Specialty: strings.TrimSpace(payload.Specialty),
		},
		CityID:       uuid.MustParse(payload.CityID),
		HealthUnitID: uuid.MustParse(payload.HealthUnitID),
	})
	if err != nil {
		writeDomainError(w, r, err, "falha ao criar médico")
		return
	}
	WriteJSON(w, http.StatusCreated, doctor)
}

// UpdateDoctor altera os campos informados; o registro profissional só muda quando os três campos vêm juntos.
func (h *Handler) UpdateDoctor(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload updateDoctorPayload
	if !decodePayload(w, r, &payload) {
		return
	}
	profile, err := payload.input()
	if err != nil {
		writeDomainError(w, r, err, "dados inválidos")
		return
	}

	in := service.UpdateDoctorInput{
		Email:    payload.Email,
		Password: payload.Password,
		CPF:      payload.CPF,
		Profile:  profile,
		Active:   payload.Active,
	}
	switch {
	case payload.CRMNumber != nil && payload.CRMUF != nil && payload.Specialty != nil:
		in.CRM = &service.CRMInput{
			Number:    strings.TrimSpace(*payload.CRMNumber),
			UF:        strings.ToUpper(strings.TrimSpace(*payload.CRMUF)),
			Specialty: strings.TrimSpace(*payload.Specialty),
		}
	case payload.CRMNumber != nil || payload.CRMUF != nil || payload.Specialty != nil:
		writeDomainError(w, r, fieldInvalid("crm_number", "crm_number, crm_uf e specialty devem ser informados juntos"), "dados inválidos")
		return
	}
	in.CityID, _ = optionalUUID(payload.CityID)
	in.HealthUnitID, _ = optionalUUID(payload.HealthUnitID)

	doctor, err := h.svc.Doctors.Update(r.Context(), a, id, in)
	if err != nil {
		writeDomainError(w, r, err, "falha ao atualizar médico")
		return
	}
	WriteJSON(w, http.StatusOK, doctor)
}

// DeleteDoctor desativa o médico.
func (h *Handler) DeleteDoctor(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Doctors.Delete(r.Context(), a, id); err != nil {
		writeDomainError(w, r, err, "falha ao remover médico")
		return
	}
	WriteNoContent(w)
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	return &s
}

func fieldInvalid(field, message string) error {
	return &util.ValidationError{Fields: map[string]string{field: message}}
}
