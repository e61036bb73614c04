package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/repo"
	"github.com/agendasaude/api/internal/scope"
)

type medicalRecordStore interface {
	ListMedicalRecords(ctx context.Context, territory repo.TerritoryFilter) ([]repo.MedicalRecord, error)
	GetMedicalRecord(ctx context.Context, id uuid.UUID) (repo.MedicalRecord, error)
	GetMedicalRecordByPatient(ctx context.Context, patientID uuid.UUID) (repo.MedicalRecord, error)
	InsertMedicalRecord(ctx context.Context, m repo.MedicalRecord) (repo.MedicalRecord, error)
	UpdateMedicalRecord(ctx context.Context, m repo.MedicalRecord) (repo.MedicalRecord, error)
	DeleteMedicalRecord(ctx context.Context, id uuid.UUID) error
	GetUserByID(ctx context.Context, id uuid.UUID) (repo.UserWithProfile, error)
}

// MedicalRecordService mantém prontuários; o território é sempre o do paciente.
type MedicalRecordService struct {
	repo medicalRecordStore
}

// NewMedicalRecordService cria novo serviço.
func NewMedicalRecordService(r medicalRecordStore) *MedicalRecordService {
	return &MedicalRecordService{repo: r}
}

// MedicalRecordInput descreve os campos clínicos; nil mantém o valor atual.
type MedicalRecordInput struct {
	BloodType       *string
	HeightCM        *float64
	WeightKG        *float64
	Allergies       []string
	ChronicDiseases []string
	Notes           *string
	Active          *bool
}

// List devolve os prontuários de pacientes do território do ator.
func (s *MedicalRecordService) List(ctx context.Context, actor scope.Actor) ([]repo.MedicalRecord, error) {
	f := scope.For(actor, scope.MedicalRecord)
	if f.Deny {
		return []repo.MedicalRecord{}, nil
	}
	records, err := s.repo.ListMedicalRecords(ctx, territoryOf(f))
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []repo.MedicalRecord{}
	}
	return records, nil
}

// Get devolve o prontuário se o paciente estiver no território do ator.
func (s *MedicalRecordService) Get(ctx context.Context, actor scope.Actor, id uuid.UUID) (repo.MedicalRecord, error) {
	m, err := s.repo.GetMedicalRecord(ctx, id)
	if err != nil {
		return repo.MedicalRecord{}, err
	}
	if err := scope.Check(actor, scope.MedicalRecord, m.CityID, m.HealthUnitID); err != nil {
		return repo.MedicalRecord{}, err
	}
	return m, nil
}

// GetByPatient devolve o prontuário do paciente.
func (s *MedicalRecordService) GetByPatient(ctx context.Context, actor scope.Actor, patientID uuid.UUID) (repo.MedicalRecord, error) {
	if _, err := s.patient(ctx, actor, patientID); err != nil {
		return repo.MedicalRecord{}, err
	}
	return s.repo.GetMedicalRecordByPatient(ctx, patientID)
}

// Create abre o prontuário de um paciente do território do ator.
func (s *MedicalRecordService) Create(ctx context.Context, actor scope.Actor, patientID uuid.UUID, in MedicalRecordInput) (repo.MedicalRecord, error) {
	if _, err := s.patient(ctx, actor, patientID); err != nil {
		return repo.MedicalRecord{}, err
	}
	m := repo.MedicalRecord{PatientID: patientID, Active: true, Allergies: []string{}, ChronicDiseases: []string{}}
	applyMedicalRecordInput(&m, in)

	created, err := s.repo.InsertMedicalRecord(ctx, m)
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return repo.MedicalRecord{}, fmt.Errorf("%w: paciente já possui prontuário", ErrConflict)
		}
		return repo.MedicalRecord{}, err
	}
	log.Info().Str("medical_record_id", created.ID.String()).Str("patient_id", patientID.String()).
		Str("actor_id", actor.UserID.String()).Msg("prontuário criado")
	return created, nil
}

// Update altera os campos clínicos informados.
func (s *MedicalRecordService) Update(ctx context.Context, actor scope.Actor, id uuid.UUID, in MedicalRecordInput) (repo.MedicalRecord, error) {
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return repo.MedicalRecord{}, err
	}
	next := current
	applyMedicalRecordInput(&next, in)
	return s.repo.UpdateMedicalRecord(ctx, next)
}

// Delete remove o prontuário do território do ator.
func (s *MedicalRecordService) Delete(ctx context.Context, actor scope.Actor, id uuid.UUID) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.DeleteMedicalRecord(ctx, id); err != nil {
		return err
	}
	log.Info().Str("medical_record_id", id.String()).Str("actor_id", actor.UserID.String()).Msg("prontuário removido")
	return nil
}

// patient carrega o paciente e aplica o filtro territorial sobre o cadastro dele.
func (s *MedicalRecordService) patient(ctx context.Context, actor scope.Actor, id uuid.UUID) (repo.UserWithProfile, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return repo.UserWithProfile{}, err
	}
	if u.Role != rbac.RolePatient {
		return repo.UserWithProfile{}, repo.ErrNotFound
	}
	if err := scope.Check(actor, scope.MedicalRecord, u.CityID, u.HealthUnitID); err != nil {
		return repo.UserWithProfile{}, err
	}
	return u, nil
}

func applyMedicalRecordInput(m *repo.MedicalRecord, in MedicalRecordInput) {
	if in.BloodType != nil {
		bt := strings.ToUpper(strings.TrimSpace(*in.BloodType))
		m.BloodType = &bt
	}
	if in.HeightCM != nil {
		m.HeightCM = in.HeightCM
	}
	if in.WeightKG != nil {
		m.WeightKG = in.WeightKG
	}
	if in.Allergies != nil {
		m.Allergies = in.Allergies
	}
	if in.ChronicDiseases != nil {
		m.ChronicDiseases = in.ChronicDiseases
	}
	if in.Notes != nil {
		m.Notes = in.Notes
	}
	if in.Active != nil {
		m.Active = *in.Active
	}
}
