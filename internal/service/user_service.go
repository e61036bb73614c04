package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/repo"
	"github.com/agendasaude/api/internal/scope"
)

// UserService administra contas de qualquer papel.
type UserService struct {
	repo      userStore
	validator targetValidator
}

// NewUserService cria novo serviço.
func NewUserService(r userStore, v targetValidator) *UserService {
	return &UserService{repo: r, validator: v}
}

// CreateUserInput descreve uma nova conta.
type CreateUserInput struct {
	Email        string
	Password     string
	CPF          string
	Name         string
	Role         rbac.Role
	CityID       *uuid.UUID
	HealthUnitID *uuid.UUID
}

// UpdateUserInput altera apenas os campos informados.
type UpdateUserInput struct {
	Email        *string
	Password     *string
	CPF          *string
	Name         *string
	Role         *rbac.Role
	Active       *bool
	CityID       *uuid.UUID
	HealthUnitID *uuid.UUID
}

// List devolve as contas visíveis ao ator.
func (s *UserService) List(ctx context.Context, actor scope.Actor) ([]PersonView, error) {
	f := scope.For(actor, scope.User)
	if f.Deny {
		return []PersonView{}, nil
	}
	users, err := s.repo.ListUsers(ctx, repo.UserListFilter{Territory: territoryOf(f)})
	if err != nil {
		return nil, err
	}
	return personViews(users), nil
}

// Get devolve uma conta dentro do território do ator.
func (s *UserService) Get(ctx context.Context, actor scope.Actor, id uuid.UUID) (PersonView, error) {
	u, err := s.load(ctx, actor, id)
	if err != nil {
		return PersonView{}, err
	}
	return personView(u), nil
}

func (s *UserService) load(ctx context.Context, actor scope.Actor, id uuid.UUID) (repo.UserWithProfile, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return repo.UserWithProfile{}, err
	}
	if err := scope.Check(actor, scope.User, u.CityID, u.HealthUnitID); err != nil {
		return repo.UserWithProfile{}, err
	}
	return u, nil
}

// Create cadastra a conta; ADMIN exige prefeitura e a unidade deve pertencer a ela.
func (s *UserService) Create(ctx context.Context, actor scope.Actor, in CreateUserInput) (PersonView, error) {
	if !in.Role.Valid() {
		return PersonView{}, fmt.Errorf("%w: %q", rbac.ErrInvalidRole, in.Role)
	}
	if err := s.checkRoleAssignment(actor, in.Role, in.CityID, in.HealthUnitID); err != nil {
		return PersonView{}, err
	}
	if err := ensureIdentityFree(ctx, s.repo, in.Email, in.CPF, nil); err != nil {
		return PersonView{}, err
	}

	target, err := s.validator.ValidateTarget(ctx, actor, scope.Target{CityID: in.CityID, HealthUnitID: in.HealthUnitID})
	if err != nil {
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
			Role:         in.Role,
			Active:       true,
			CityID:       target.CityID,
			HealthUnitID: target.HealthUnitID,
		},
		Profile: &repo.Profile{Name: in.Name},
	})
	if err != nil {
		return PersonView{}, err
	}

	log.Info().Str("user_id", created.ID.String()).Str("role", created.Role.String()).
		Str("actor_id", actor.UserID.String()).Msg("usuário criado")
	return personView(created), nil
}

// Update altera a conta; mudança de território passa pela validação de escrita.
func (s *UserService) Update(ctx context.Context, actor scope.Actor, id uuid.UUID, in UpdateUserInput) (PersonView, error) {
	current, err := s.load(ctx, actor, id)
	if err != nil {
		return PersonView{}, err
	}

	role := current.Role
	if in.Role != nil {
		if !in.Role.Valid() {
			return PersonView{}, fmt.Errorf("%w: %q", rbac.ErrInvalidRole, *in.Role)
		}
		role = *in.Role
	}

	email := pick(in.Email, current.Email)
	cpf := pick(in.CPF, current.CPF)
	if in.Email != nil || in.CPF != nil {
		if err := ensureIdentityFree(ctx, s.repo, email, cpf, &current.ID); err != nil {
			return PersonView{}, err
		}
	}

	cityID, unitID, err := relocate(ctx, s.validator, actor, current.User, in.CityID, in.HealthUnitID)
	if err != nil {
		return PersonView{}, err
	}

	if err := s.checkRoleAssignment(actor, role, cityID, unitID); err != nil {
		return PersonView{}, err
	}

	active := current.Active
	if in.Active != nil {
		active = *in.Active
	}
	passwordHash, err := optionalHash(in.Password)
	if err != nil {
		return PersonView{}, err
	}

	var profile *repo.Profile
	if in.Name != nil {
		profile = mergeProfile(current.Profile, ProfileInput{Name: in.Name})
	}

	saved, err := s.repo.SaveUser(ctx, repo.SaveUserParams{
		UpdateUserParams: repo.UpdateUserParams{
			ID:           current.ID,
			Email:        email,
			CPF:          cpf,
			Role:         role,
			Active:       active,
			CityID:       cityID,
			HealthUnitID: unitID,
		},
		PasswordHash: passwordHash,
		Profile:      profile,
	})
	if err != nil {
		return PersonView{}, err
	}
	return personView(saved), nil
}

// Delete remove a conta e seus perfis definitivamente.
func (s *UserService) Delete(ctx context.Context, actor scope.Actor, id uuid.UUID) error {
	if id == actor.UserID {
		return fmt.Errorf("%w: não é possível remover a própria conta", ErrValidation)
	}
	if _, err := s.load(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	log.Info().Str("user_id", id.String()).Str("actor_id", actor.UserID.String()).Msg("usuário removido")
	return nil
}

// checkRoleAssignment impede elevação a MASTER por não-MASTER e exige prefeitura para ADMIN.
func (s *UserService) checkRoleAssignment(actor scope.Actor, role rbac.Role, cityID, unitID *uuid.UUID) error {
	if role == rbac.RoleMaster && actor.Role != rbac.RoleMaster {
		return scope.ErrForbidden
	}
	if role == rbac.RoleAdmin && cityID == nil && unitID == nil {
		return fmt.Errorf("%w: city_id é obrigatório para ADMIN", ErrValidation)
	}
	return nil
}
