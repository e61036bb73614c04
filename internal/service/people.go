package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agendasaude/api/internal/auth"
	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/repo"
	"github.com/agendasaude/api/internal/scope"
)

type userStore interface {
	ListUsers(ctx context.Context, filter repo.UserListFilter) ([]repo.UserWithProfile, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (repo.UserWithProfile, error)
	IdentityTaken(ctx context.Context, email, cpf string, except *uuid.UUID) (bool, bool, error)
	CreateUser(ctx context.Context, arg repo.CreateUserParams) (repo.UserWithProfile, error)
	SaveUser(ctx context.Context, arg repo.SaveUserParams) (repo.UserWithProfile, error)
	SetUserActive(ctx context.Context, id uuid.UUID, active bool) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

type targetValidator interface {
	ValidateTarget(ctx context.Context, actor scope.Actor, target scope.Target) (scope.Target, error)
}

// DoctorView complementa PersonView para médicos.
type DoctorView struct {
	CRMNumber string `json:"crm_number"`
	CRMUF     string `json:"crm_uf"`
	Specialty string `json:"specialty"`
}

// PersonView é a projeção pública de usuários, pacientes e médicos.
type PersonView struct {
	ID           uuid.UUID    `json:"id"`
	Email        string       `json:"email"`
	CPF          string       `json:"cpf"`
	Role         rbac.Role    `json:"role"`
	Active       bool         `json:"is_active"`
	CityID       *uuid.UUID   `json:"city_id"`
	HealthUnitID *uuid.UUID   `json:"health_unit_id"`
	Name         *string      `json:"name"`
	Profile      *ProfileView `json:"profile,omitempty"`
	Doctor       *DoctorView  `json:"doctor,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func personView(u repo.UserWithProfile) PersonView {
	v := PersonView{
		ID:           u.ID,
		Email:        u.Email,
		CPF:          u.CPF,
		Role:         u.Role,
		Active:       u.Active,
		CityID:       u.CityID,
		HealthUnitID: u.HealthUnitID,
		Profile:      profileView(u.Profile),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.Profile != nil {
		name := u.Profile.Name
		v.Name = &name
	}
	if u.Doctor != nil {
		v.Doctor = &DoctorView{CRMNumber: u.Doctor.CRMNumber, CRMUF: u.Doctor.CRMUF, Specialty: u.Doctor.Specialty}
	}
	return v
}

func personViews(users []repo.UserWithProfile) []PersonView {
	out := make([]PersonView, 0, len(users))
	for _, u := range users {
		out = append(out, personView(u))
	}
	return out
}

func territoryOf(f scope.Filter) repo.TerritoryFilter {
	return repo.TerritoryFilter{CityID: f.CityID, HealthUnitID: f.HealthUnitID}
}

// ensureIdentityFree recusa e-mail ou CPF já usados por outro usuário.
func ensureIdentityFree(ctx context.Context, store userStore, email, cpf string, except *uuid.UUID) error {
	emailTaken, cpfTaken, err := store.IdentityTaken(ctx, email, cpf, except)
	if err != nil {
		return err
	}
	if emailTaken {
		return fmt.Errorf("%w: e-mail já cadastrado", ErrConflict)
	}
	if cpfTaken {
		return fmt.Errorf("%w: CPF já cadastrado", ErrConflict)
	}
	return nil
}

func hashPassword(password string) (string, error) {
	if len(password) < 6 {
		return "", fmt.Errorf("%w: senha deve ter pelo menos 6 caracteres", ErrValidation)
	}
	return auth.Hash(password)
}

func optionalHash(password *string) (*string, error) {
	if password == nil || *password == "" {
		return nil, nil
	}
	hash, err := hashPassword(*password)
	if err != nil {
		return nil, err
	}
	return &hash, nil
}

// ProfileInput carrega os campos pessoais opcionais.
type ProfileInput struct {
	Name      *string
	BirthDate *time.Time
	Gender    *string
	SUSCard   *string
}

func (in ProfileInput) empty() bool {
	return in.Name == nil && in.BirthDate == nil && in.Gender == nil && in.SUSCard == nil
}

// mergeProfile aplica somente os campos informados sobre o perfil atual.
func mergeProfile(current *repo.Profile, in ProfileInput) *repo.Profile {
	if in.empty() {
		return nil
	}
	p := repo.Profile{}
	if current != nil {
		p = *current
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.BirthDate != nil {
		p.BirthDate = in.BirthDate
	}
	if in.Gender != nil {
		p.Gender = in.Gender
	}
	if in.SUSCard != nil {
		p.SUSCard = in.SUSCard
	}
	return &p
}

func pick(value *string, fallback string) string {
	if value != nil {
		return *value
	}
	return fallback
}

// relocate mantém o território atual quando nada é informado; caso contrário o
// alvo informado substitui o anterior (prefeitura derivada da unidade quando ausente).
func relocate(ctx context.Context, v targetValidator, actor scope.Actor, current repo.User, cityID, unitID *uuid.UUID) (*uuid.UUID, *uuid.UUID, error) {
	if cityID == nil && unitID == nil {
		return current.CityID, current.HealthUnitID, nil
	}
	target, err := v.ValidateTarget(ctx, actor, scope.Target{CityID: cityID, HealthUnitID: unitID})
	if err != nil {
		return nil, nil, err
	}
	return target.CityID, target.HealthUnitID, nil
}
