package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/repo"
	"github.com/agendasaude/api/internal/scope"
)

type stubUserStore struct {
	users      map[uuid.UUID]repo.UserWithProfile
	created    int
	saved      int
	lastFilter repo.UserListFilter
	listCalls  int
}

func newStubUserStore(users ...repo.UserWithProfile) *stubUserStore {
	s := &stubUserStore{users: make(map[uuid.UUID]repo.UserWithProfile)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *stubUserStore) ListUsers(ctx context.Context, filter repo.UserListFilter) ([]repo.UserWithProfile, error) {
	s.listCalls++
	s.lastFilter = filter
	var out []repo.UserWithProfile
	for _, u := range s.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.ActiveOnly && !u.Active {
			continue
		}
		if filter.Territory.CityID != nil && (u.CityID == nil || *u.CityID != *filter.Territory.CityID) {
			continue
		}
		if filter.Territory.HealthUnitID != nil && (u.HealthUnitID == nil || *u.HealthUnitID != *filter.Territory.HealthUnitID) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *stubUserStore) GetUserByID(ctx context.Context, id uuid.UUID) (repo.UserWithProfile, error) {
	u, ok := s.users[id]
	if !ok {
		return repo.UserWithProfile{}, repo.ErrNotFound
	}
	return u, nil
}

func (s *stubUserStore) GetUserByIdentifier(ctx context.Context, identifier string) (repo.UserWithProfile, error) {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(identifier)) || u.CPF == repo.NormalizeCPF(identifier) {
			return u, nil
		}
	}
	return repo.UserWithProfile{}, repo.ErrNotFound
}

func (s *stubUserStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	u, ok := s.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.PasswordHash = hash
	s.users[id] = u
	return nil
}

func (s *stubUserStore) IdentityTaken(ctx context.Context, email, cpf string, except *uuid.UUID) (bool, bool, error) {
	var emailTaken, cpfTaken bool
	for _, u := range s.users {
		if except != nil && u.ID == *except {
			continue
		}
		if strings.EqualFold(u.Email, email) {
			emailTaken = true
		}
		if u.CPF == repo.NormalizeCPF(cpf) {
			cpfTaken = true
		}
	}
	return emailTaken, cpfTaken, nil
}

func (s *stubUserStore) CreateUser(ctx context.Context, arg repo.CreateUserParams) (repo.UserWithProfile, error) {
	s.created++
	u := repo.UserWithProfile{User: repo.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(arg.Email),
		CPF:          repo.NormalizeCPF(arg.CPF),
		PasswordHash: arg.PasswordHash,
		Role:         arg.Role,
		Active:       arg.Active,
		CityID:       arg.CityID,
		HealthUnitID: arg.HealthUnitID,
		Allowed:      rbac.Overrides{},
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}}
	if arg.Profile != nil {
		p := *arg.Profile
		p.UserID = u.ID
		u.Profile = &p
	}
	if arg.Doctor != nil {
		d := *arg.Doctor
		d.UserID = u.ID
		u.Doctor = &d
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *stubUserStore) SaveUser(ctx context.Context, arg repo.SaveUserParams) (repo.UserWithProfile, error) {
	s.saved++
	u, ok := s.users[arg.ID]
	if !ok {
		return repo.UserWithProfile{}, repo.ErrNotFound
	}
	u.Email = arg.Email
	u.CPF = arg.CPF
	u.Role = arg.Role
	u.Active = arg.Active
	u.CityID = arg.CityID
	u.HealthUnitID = arg.HealthUnitID
	if arg.PasswordHash != nil {
		u.PasswordHash = *arg.PasswordHash
	}
	if arg.Profile != nil {
		p := *arg.Profile
		u.Profile = &p
	}
	if arg.Doctor != nil {
		d := *arg.Doctor
		u.Doctor = &d
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *stubUserStore) SetUserActive(ctx context.Context, id uuid.UUID, active bool) error {
	u, ok := s.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.Active = active
	s.users[id] = u
	return nil
}

func (s *stubUserStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if _, ok := s.users[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// stubTerritory conhece prefeituras e a prefeitura de cada unidade.
type stubTerritory struct {
	cities map[uuid.UUID]bool
	units  map[uuid.UUID]uuid.UUID
}

func newStubTerritory() *stubTerritory {
	return &stubTerritory{cities: make(map[uuid.UUID]bool), units: make(map[uuid.UUID]uuid.UUID)}
}

func (t *stubTerritory) addCity() uuid.UUID {
	id := uuid.New()
	t.cities[id] = true
	return id
}

func (t *stubTerritory) addUnit(city uuid.UUID) uuid.UUID {
	id := uuid.New()
	t.units[id] = city
	return id
}

func (t *stubTerritory) CityHallExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return t.cities[id], nil
}

func (t *stubTerritory) HealthUnitCityID(ctx context.Context, id uuid.UUID) (uuid.UUID, bool, error) {
	city, ok := t.units[id]
	return city, ok, nil
}

var _ scope.Territory = (*stubTerritory)(nil)

func idPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

func strPtr(s string) *string {
	return &s
}

var cpfSeq atomic.Int64

func person(role rbac.Role, city, unit *uuid.UUID, name string) repo.UserWithProfile {
	id := uuid.New()
	cpf := fmt.Sprintf("%011d", 10000000000+cpfSeq.Add(1))
	return repo.UserWithProfile{
		User: repo.User{
			ID:           id,
			Email:        strings.ToLower(name) + "@saude.gov.br",
			CPF:          cpf,
			Role:         role,
			Active:       true,
			CityID:       city,
			HealthUnitID: unit,
			Allowed:      rbac.Overrides{},
		},
		Profile: &repo.Profile{UserID: id, Name: name},
	}
}
