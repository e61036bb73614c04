package http

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/repo"
)

// memStore atende rbac.Store e os repositórios de usuários e território em memória.
type memStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]repo.UserWithProfile
	roles map[rbac.Role][]rbac.Permission
	units map[uuid.UUID]uuid.UUID
	perms []rbac.PermissionRecord
	err   error

	records map[uuid.UUID]repo.MedicalRecord
}

func newMemStore() *memStore {
	s := &memStore{
		users: make(map[uuid.UUID]repo.UserWithProfile),
		roles: make(map[rbac.Role][]rbac.Permission),
		units: make(map[uuid.UUID]uuid.UUID),

		records: make(map[uuid.UUID]repo.MedicalRecord),
	}
	for _, role := range rbac.AllRoles() {
		s.roles[role] = rbac.DefaultPermissions(role)
	}
	return s
}

func (s *memStore) addUser(u repo.UserWithProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *memStore) GetSubject(ctx context.Context, userID uuid.UUID) (rbac.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return rbac.Subject{}, s.err
	}
	u, ok := s.users[userID]
	if !ok {
		return rbac.Subject{}, rbac.ErrUserNotFound
	}
	return rbac.Subject{
		ID: u.ID, Email: u.Email, CPF: u.CPF, Role: u.Role, Active: u.Active,
		CityID: u.CityID, HealthUnitID: u.HealthUnitID, Overrides: u.Allowed.Clone(),
	}, nil
}

func (s *memStore) RolePermissionNames(ctx context.Context, role rbac.Role) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rbac.Permission(nil), s.roles[role]...), nil
}

func (s *memStore) SetOverride(ctx context.Context, userID uuid.UUID, name rbac.Permission, granted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return rbac.ErrUserNotFound
	}
	if u.Allowed == nil {
		u.Allowed = rbac.Overrides{}
	}
	u.Allowed[name] = granted
	s.users[userID] = u
	return nil
}

func (s *memStore) ClearOverride(ctx context.Context, userID uuid.UUID, name rbac.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return rbac.ErrUserNotFound
	}
	delete(u.Allowed, name)
	s.users[userID] = u
	return nil
}

func (s *memStore) ReplaceOverrides(ctx context.Context, userID uuid.UUID, overrides rbac.Overrides) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return rbac.ErrUserNotFound
	}
	u.Allowed = overrides.Clone()
	s.users[userID] = u
	return nil
}

func (s *memStore) ReplaceRolePermissions(ctx context.Context, role rbac.Role, names []rbac.Permission) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role] = append([]rbac.Permission(nil), names...)
	return len(names), nil
}

func (s *memStore) UpsertPermissions(ctx context.Context, records []rbac.PermissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perms = append([]rbac.PermissionRecord(nil), records...)
	return nil
}

func (s *memStore) ListPermissions(ctx context.Context) ([]rbac.PermissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rbac.PermissionRecord(nil), s.perms...), nil
}

func (s *memStore) ListActiveUsers(ctx context.Context) ([]rbac.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rbac.UserSummary
	for _, u := range s.users {
		if !u.Active {
			continue
		}
		out = append(out, rbac.UserSummary{ID: u.ID, Email: u.Email, CPF: u.CPF, Role: u.Role, Overrides: u.Allowed.Clone()})
	}
	return out, nil
}

func (s *memStore) GetUserByID(ctx context.Context, id uuid.UUID) (repo.UserWithProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repo.UserWithProfile{}, repo.ErrNotFound
	}
	return u, nil
}

func (s *memStore) GetUserByIdentifier(ctx context.Context, identifier string) (repo.UserWithProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, identifier) || u.CPF == repo.NormalizeCPF(identifier) {
			return u, nil
		}
	}
	return repo.UserWithProfile{}, repo.ErrNotFound
}

func (s *memStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	u.PasswordHash = hash
	s.users[id] = u
	return nil
}

func (s *memStore) ListUsers(ctx context.Context, filter repo.UserListFilter) ([]repo.UserWithProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repo.UserWithProfile
	for _, u := range s.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.ActiveOnly && !u.Active {
			continue
		}
		if c := filter.Territory.CityID; c != nil && (u.CityID == nil || *u.CityID != *c) {
			continue
		}
		if h := filter.Territory.HealthUnitID; h != nil && (u.HealthUnitID == nil || *u.HealthUnitID != *h) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *memStore) IdentityTaken(ctx context.Context, email, cpf string, except *uuid.UUID) (bool, bool, error) {
	return false, false, nil
}

func (s *memStore) CreateUser(ctx context.Context, arg repo.CreateUserParams) (repo.UserWithProfile, error) {
	return repo.UserWithProfile{}, repo.ErrConflict
}

func (s *memStore) SaveUser(ctx context.Context, arg repo.SaveUserParams) (repo.UserWithProfile, error) {
	return repo.UserWithProfile{}, repo.ErrConflict
}

func (s *memStore) SetUserActive(ctx context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.Active = active
	s.users[id] = u
	return nil
}

func (s *memStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

func (s *memStore) CityHallExists(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, city := range s.units {
		if city == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) HealthUnitCityID(ctx context.Context, id uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	city, ok := s.units[id]
	return city, ok, nil
}

// recordLocked completa o prontuário com o território atual do paciente.
func (s *memStore) recordLocked(m repo.MedicalRecord) repo.MedicalRecord {
	if u, ok := s.users[m.PatientID]; ok {
		m.CityID, m.HealthUnitID = u.CityID, u.HealthUnitID
	}
	return m
}

func (s *memStore) ListMedicalRecords(ctx context.Context, territory repo.TerritoryFilter) ([]repo.MedicalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repo.MedicalRecord
	for _, m := range s.records {
		m = s.recordLocked(m)
		if c := territory.CityID; c != nil && (m.CityID == nil || *m.CityID != *c) {
			continue
		}
		if h := territory.HealthUnitID; h != nil && (m.HealthUnitID == nil || *m.HealthUnitID != *h) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *memStore) GetMedicalRecord(ctx context.Context, id uuid.UUID) (repo.MedicalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.records[id]
	if !ok {
		return repo.MedicalRecord{}, repo.ErrNotFound
	}
	return s.recordLocked(m), nil
}

func (s *memStore) GetMedicalRecordByPatient(ctx context.Context, patientID uuid.UUID) (repo.MedicalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.records {
		if m.PatientID == patientID {
			return s.recordLocked(m), nil
		}
	}
	return repo.MedicalRecord{}, repo.ErrNotFound
}

func (s *memStore) InsertMedicalRecord(ctx context.Context, m repo.MedicalRecord) (repo.MedicalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.PatientID == m.PatientID {
			return repo.MedicalRecord{}, repo.ErrConflict
		}
	}
	m.ID = uuid.New()
	s.records[m.ID] = m
	return s.recordLocked(m), nil
}

func (s *memStore) UpdateMedicalRecord(ctx context.Context, m repo.MedicalRecord) (repo.MedicalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[m.ID]; !ok {
		return repo.MedicalRecord{}, repo.ErrNotFound
	}
	s.records[m.ID] = m
	return s.recordLocked(m), nil
}

func (s *memStore) DeleteMedicalRecord(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.records, id)
	return nil
}
