package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/repo"
	"github.com/agendasaude/api/internal/scope"
)

// DoctorService cadastra médicos com CRM e os vincula a uma unidade.
type DoctorService struct {
	repo      userStore
	validator targetValidator
}

// NewDoctorService cria novo serviço.
func NewDoctorService(r userStore, v targetValidator) *DoctorService {
	return &DoctorService{repo: r, validator: v}
}

// CRMInput carrega o registro profissional.
type CRMInput struct {
	Number    string
	UF        string
	Specialty string
}

// CreateDoctorInput descreve um novo médico.
type CreateDoctorInput struct {
	Email        string
	Password     string
	CPF          string
	Profile      ProfileInput
	CRM          CRMInput
	CityID       uuid.UUID
	HealthUnitID uuid.UUID
}

// UpdateDoctorInput altera apenas os campos informados.
type UpdateDoctorInput struct {
	Email        *string
	Password     *string
	CPF          *string
	Profile      ProfileInput
	CRM          *CRMInput
	Active       *bool
	CityID       *uuid.UUID
	HealthUnitID *uuid.UUID
}

// List devolve os médicos visíveis ao ator, ativos ou não.
func (s *DoctorService) List(ctx context.Context, actor scope.Actor) ([]PersonView, error) {
	f := scope.For(actor, scope.Doctor)
	if f.Deny {
		return []PersonView{}, nil
	}
	role := rbac.RoleDoctor
	users, err := s.repo.ListUsers(ctx, repo.UserListFilter{Role: &role, Territory: territoryOf(f)})
	if err != nil {
		return nil, err
	}
	return personViews(users), nil
}

// Get devolve um médico do território do ator.
func (s *DoctorService) Get(ctx context.Context, actor scope.Actor, id uuid.UUID) (PersonView, error) {
	u, err := s.load(ctx, actor, id)
	if err != nil {
		return PersonView{}, err
	}
	return personView(u), nil
}

func (s *DoctorService) load(ctx context.Context, actor scope.Actor, id uuid.UUID) (repo.UserWithProfile, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return repo.UserWithProfile{}, err
	}
	if u.Role != rbac.RoleDoctor {
		return repo.UserWithProfile{}, repo.ErrNotFound
	}
	if err := scope.Check(actor, scope.Doctor, u.CityID, u.HealthUnitID); err != nil {
		return repo.UserWithProfile{}, err
	}
	return u, nil
}

// Create valida território, unicidade e grava usuário, perfil e CRM numa transação.
func (s *DoctorService) Create(ctx context.Context, actor scope.Actor, in CreateDoctorInput) (PersonView, error) {
	if in.Profile.Name == nil || strings.TrimSpace(*in.Profile.Name) == "" {
		return PersonView{}, fmt.Errorf("%w: name é obrigatório para médicos", ErrValidation)
	}
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
			Role:         rbac.RoleDoctor,
			Active:       true,
			CityID:       target.CityID,
			HealthUnitID: target.HealthUnitID,
		},
		Profile: mergeProfile(nil, in.Profile),
		Doctor:  doctorProfile(in.CRM),
	})
	if err != nil {
		return PersonView{}, err
	}
	log.Info().Str("doctor_id", created.ID.String()).Str("actor_id", actor.UserID.String()).Msg("médico criado")
	return personView(created), nil
}

// Update altera dados, CRM e, quando informado, a lotação do médico.
func (s *DoctorService) Update(ctx context.Context, actor scope.Actor, id uuid.UUID, in UpdateDoctorInput) (PersonView, error) {
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
	active := current.Active
	if in.Active != nil {
		active = *in.Active
	}

	var crm *repo.DoctorProfile
	if in.CRM != nil {
		crm = doctorProfile(*in.CRM)
	}

	saved, err := s.repo.SaveUser(ctx, repo.SaveUserParams{
		UpdateUserParams: repo.UpdateUserParams{
			ID:           current.ID,
			Email:        email,
			CPF:          cpf,
			Role:         rbac.RoleDoctor,
			Active:       active,
			CityID:       cityID,
			HealthUnitID: unitID,
		},
		PasswordHash: passwordHash,
		Profile:      mergeProfile(current.Profile, in.Profile),
		Doctor:       crm,
	})
	if err != nil {
		return PersonView{}, err
	}
	return personView(saved), nil
}

// Delete desativa o médico; as escalas existentes são preservadas.
func (s *DoctorService) Delete(ctx context.Context, actor scope.Actor, id uuid.UUID) error {
	if _, err := s.load(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.SetUserActive(ctx, id, false); err != nil {
		return err
	}
	log.Info().Str("doctor_id", id.String()).Str("actor_id", actor.UserID.String()).Msg("médico desativado")
	return nil
}

func doctorProfile(in CRMInput) *repo.DoctorProfile {
	return &repo.DoctorProfile{
		CRMNumber: strings.TrimSpace(in.Number),
		CRMUF:     strings.ToUpper(strings.TrimSpace(in.UF)),
		Specialty: strings.TrimSpace(in.Specialty),
	}
}
