package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/repo"
	"github.com/agendasaude/api/internal/scope"
)

type unitLocator interface {
	HealthUnitCityID(ctx context.Context, id uuid.UUID) (uuid.UUID, bool, error)
}

// PatientService cadastra e consulta pacientes dentro do território do ator.
type PatientService struct {
	repo      userStore
	units     unitLocator
	validator targetValidator
}

// NewPatientService cria novo serviço.
func NewPatientService(r userStore, units unitLocator, v targetValidator) *PatientService {
	return &PatientService{repo: r, units: units, validator: v}
}

// CreatePatientInput descreve um novo paciente; prefeitura e unidade são obrigatórias.
type CreatePatientInput struct {
	Email        string
	Password     string
	CPF          string
	Profile      ProfileInput
	CityID       uuid.UUID
	HealthUnitID uuid.UUID
}

// UpdatePatientInput altera apenas os campos informados.
type UpdatePatientInput struct {
	Email        *string
	Password     *string
	CPF          *string
	Profile      ProfileInput
	CityID       *uuid.UUID
	HealthUnitID *uuid.UUID
}

// List devolve os pacientes ativos visíveis ao ator.
func (s *PatientService) List(ctx context.Context, actor scope.Actor) ([]PersonView, error) {
	f := scope.For(actor, scope.Patient)
	if f.Deny {
		return []PersonView{}, nil
	}
	role := rbac.RolePatient
	users, err := s.repo.ListUsers(ctx, repo.UserListFilter{Role: &role, Territory: territoryOf(f), ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	return personViews(users), nil
}

// ListByHealthUnit devolve os pacientes vinculados à unidade, se ela estiver no território do ator.
func (s *PatientService) ListByHealthUnit(ctx context.Context, actor scope.Actor, unitID uuid.UUID) ([]PersonView, error) {
	cityID, found, err := s.units.HealthUnitCityID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, scope.ErrHealthUnitNotFound
	}
	if err := scope.Check(actor, scope.Patient, &cityID, &unitID); err != nil {
		return nil, err
	}
	role := rbac.RolePatient
	users, err := s.repo.ListUsers(ctx, repo.UserListFilter{
		Role:       &role,
		Territory:  repo.TerritoryFilter{CityID: &cityID, HealthUnitID: &unitID},
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	return personViews(users), nil
}

// Get devolve um paciente ativo do território do ator.
func (s *PatientService) Get(ctx context.Context, actor scope.Actor, id uuid.UUID) (PersonView, error) {
	u, err := s.load(ctx, actor, id)
	if err != nil {
		return PersonView{}, err
	}
	return personView(u), nil
}

func (s *PatientService) load(ctx context.Context, actor scope.Actor, id uuid.UUID) (repo.UserWithProfile, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return repo.UserWithProfile{}, err
	}
	if u.Role != rbac.RolePatient || !u.Active {
		return repo.UserWithProfile{}, repo.ErrNotFound
	}
	if err := scope.Check(actor, scope.Patient, u.CityID, u.HealthUnitID); err != nil {
		return repo.UserWithProfile{}, err
	}
	return u, nil
}

// Create valida o território antes de qualquer escrita.
func (s *PatientService) Create(ctx context.Context, actor scope.Actor, in CreatePatientInput) (PersonView, error) {
	target, err := s.validator.ValidateTarget(ctx, actor, scope.Target{CityID: &in.CityID, HealthUnitID: &in.HealthUnitID})
	if err != nil {
		return PersonView{}, err
	}
	if err := ensureIdentityFree(ctx, s.repo, in.Email, in.CPF, nil); err != nil {
		return PersonView{}, err
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return PersonView{}, err
	}

	created, err := s.repo.CreateUser(ctx, repo.CreateUserParams{
		InsertUserParams: repo.InsertUserParams{
			Email:        in.Email,
			CPF:          in.CPF,
			PasswordHash: hash,
			Role:         rbac.RolePatient,
			Active:       true,
			CityID:       target.CityID,
			HealthUnitID: target.HealthUnitID,
		},
		Profile: mergeProfile(nil, in.Profile),
	})
	if err != nil {
		return PersonView{}, err
	}
	log.Info().Str("patient_id", created.ID.String()).Str("actor_id", actor.UserID.String()).Msg("paciente criado")
	return personView(created), nil
}

// Update altera dados e, quando informado, o território do paciente.
func (s *PatientService) Update(ctx context.Context, actor scope.Actor, id uuid.UUID, in UpdatePatientInput) (PersonView, error) {
	current, err := s.load(ctx, actor, id)
	if err != nil {
		return PersonView{}, err
	}
	cityID, unitID, err := relocate(ctx, s.validator, actor, current.User, in.CityID, in.HealthUnitID)
	if err != nil {
		return PersonView{}, err
	}

	email := pick(in.Email, current.Email)
	cpf := pick(in.CPF, current.CPF)
	if in.Email != nil || in.CPF != nil {
		if err := ensureIdentityFree(ctx, s.repo, email, cpf, &current.ID); err != nil {
			return PersonView{}, err
		}
	}
	passwordHash, err := optionalHash(in.Password)
	if err != nil {
		return PersonView{}, err
	}

	saved, err := s.repo.SaveUser(ctx, repo.SaveUserParams{
		UpdateUserParams: repo.UpdateUserParams{
			ID:           current.ID,
			Email:        email,
			CPF:          cpf,
			Role:         rbac.RolePatient,
			Active:       true,
			CityID:       cityID,
			HealthUnitID: unitID,
		},
		PasswordHash: passwordHash,
		Profile:      mergeProfile(current.Profile, in.Profile),
	})
	if err != nil {
		return PersonView{}, err
	}
	return personView(saved), nil
}

// Delete desativa o paciente (exclusão lógica).
func (s *PatientService) Delete(ctx context.Context, actor scope.Actor, id uuid.UUID) error {
	if _, err := s.load(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.SetUserActive(ctx, id, false); err != nil {
		return err
	}
	log.Info().Str("patient_id", id.String()).Str("actor_id", actor.UserID.String()).Msg("paciente desativado")
	return nil
}
