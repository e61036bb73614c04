package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agendasaude/api/internal/audit"
)

// Subject é a linha atual do usuário usada nas decisões de autorização.
type Subject struct {
	ID           uuid.UUID
	Email        string
	CPF          string
	Role         Role
	Active       bool
	CityID       *uuid.UUID
	HealthUnitID *uuid.UUID
	Overrides    Overrides
}

// PermissionRecord é a permissão persistida.
type PermissionRecord struct {
	ID          uuid.UUID  `json:"id"`
	Name        Permission `json:"name"`
	Description string     `json:"description"`
	Resource    string     `json:"resource"`
	Action      string     `json:"action"`
	Active      bool       `json:"is_active"`
}

// UserSummary alimenta a listagem administrativa de usuários com permissões.
type UserSummary struct {
	ID        uuid.UUID
	Email     string
	CPF       string
	Role      Role
	Name      *string
	Overrides Overrides
}

// UserPermissions é a projeção de UserSummary com o conjunto efetivo.
type UserPermissions struct {
	ID                  uuid.UUID       `json:"id"`
	Email               string          `json:"email"`
	CPF                 string          `json:"cpf"`
	Role                Role            `json:"role"`
	Name                *string         `json:"name"`
	Permissions         []Permission    `json:"permissions"`
	SpecificPermissions map[string]bool `json:"specificPermissions"`
}

// Store é o armazenamento durável de usuários, catálogo e vínculos papel-permissão.
// Implementações devolvem ErrUserNotFound quando o usuário não existe.
type Store interface {
	GetSubject(ctx context.Context, userID uuid.UUID) (Subject, error)
	RolePermissionNames(ctx context.Context, role Role) ([]Permission, error)
	SetOverride(ctx context.Context, userID uuid.UUID, name Permission, granted bool) error
	ClearOverride(ctx context.Context, userID uuid.UUID, name Permission) error
	ReplaceOverrides(ctx context.Context, userID uuid.UUID, overrides Overrides) error
	ReplaceRolePermissions(ctx context.Context, role Role, names []Permission) (int, error)
	UpsertPermissions(ctx context.Context, records []PermissionRecord) error
	ListPermissions(ctx context.Context) ([]PermissionRecord, error)
	ListActiveUsers(ctx context.Context) ([]UserSummary, error)
}

// Engine resolve permissões efetivas e executa as mutações de RBAC.
type Engine struct {
	store Store
	audit audit.Publisher
}

// NewEngine cria o motor sobre o armazenamento informado.
func NewEngine(store Store, publisher audit.Publisher) *Engine {
	if publisher == nil {
		publisher = audit.LogPublisher{}
	}
	return &Engine{store: store, audit: publisher}
}

// EffectivePermissions combina padrões do papel com as exceções do usuário.
// Usuário inexistente ou inativo resolve para conjunto vazio.
func (e *Engine) EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]Permission, error) {
	subject, err := e.store.GetSubject(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return []Permission{}, nil
		}
		return nil, err
	}
	return e.resolve(ctx, subject)
}

func (e *Engine) resolve(ctx context.Context, subject Subject) ([]Permission, error) {
	if !subject.Active || !subject.Role.Valid() {
		return []Permission{}, nil
	}
	base, err := e.store.RolePermissionNames(ctx, subject.Role)
	if err != nil {
		return nil, fmt.Errorf("role permissions: %w", err)
	}
	return subject.Overrides.Apply(base), nil
}

// HasPermission testa uma única permissão, tolerando espaços acidentais.
func (e *Engine) HasPermission(ctx context.Context, userID uuid.UUID, name string) (bool, error) {
	return e.HasAllPermissions(ctx, userID, []Permission{Normalize(name)})
}

// HasAllPermissions exige todas as permissões (lista vazia é sempre verdadeira).
func (e *Engine) HasAllPermissions(ctx context.Context, userID uuid.UUID, required []Permission) (bool, error) {
	if len(required) == 0 {
		return true, nil
	}
	effective, err := e.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return containsAll(effective, required), nil
}

// Decision é o resultado de Authorize.
type Decision struct {
	Subject Subject
	Allowed bool
	Missing []Permission
}

// Authorize relê o usuário e avalia os requisitos da operação numa única consulta ao usuário.
func (e *Engine) Authorize(ctx context.Context, userID uuid.UUID, required []Permission) (Decision, error) {
	subject, err := e.store.GetSubject(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if !subject.Active {
		return Decision{Subject: subject, Allowed: false, Missing: required}, nil
	}
	if len(required) == 0 {
		return Decision{Subject: subject, Allowed: true}, nil
	}

	effective, err := e.resolve(ctx, subject)
	if err != nil {
		return Decision{}, err
	}
	missing := missingFrom(effective, required)
	return Decision{Subject: subject, Allowed: len(missing) == 0, Missing: missing}, nil
}

// Grant força a concessão da permissão ao usuário.
func (e *Engine) Grant(ctx context.Context, userID uuid.UUID, name string) error {
	return e.setOverride(ctx, userID, name, true)
}

// Revoke força a revogação da permissão ao usuário.
func (e *Engine) Revoke(ctx context.Context, userID uuid.UUID, name string) error {
	return e.setOverride(ctx, userID, name, false)
}

func (e *Engine) setOverride(ctx context.Context, userID uuid.UUID, name string, granted bool) error {
	p, err := validatePermission(name)
	if err != nil {
		return err
	}
	if err := e.store.SetOverride(ctx, userID, p, granted); err != nil {
		return err
	}

	action := audit.ActionRevoke
	if granted {
		action = audit.ActionGrant
	}
	ev := audit.NewEvent(ctx, action)
	ev.UserID = userID.String()
	ev.Permission = string(p)
	audit.Emit(ctx, e.audit, ev)
	return nil
}

// ReplaceUserOverrides substitui o mapa inteiro; todas as chaves são validadas antes da escrita.
func (e *Engine) ReplaceUserOverrides(ctx context.Context, userID uuid.UUID, raw map[string]bool) (Overrides, error) {
	overrides, err := ParseOverrides(raw)
	if err != nil {
		return nil, err
	}
	if err := e.store.ReplaceOverrides(ctx, userID, overrides); err != nil {
		return nil, err
	}

	ev := audit.NewEvent(ctx, audit.ActionReplaceUser)
	ev.UserID = userID.String()
	ev.Details = map[string]any{"overrides": overrides.Raw()}
	audit.Emit(ctx, e.audit, ev)
	return overrides, nil
}

// UserOverrides devolve o mapa atual de exceções do usuário.
func (e *Engine) UserOverrides(ctx context.Context, userID uuid.UUID) (Overrides, error) {
	subject, err := e.store.GetSubject(ctx, userID)
	if err != nil {
		return nil, err
	}
	return subject.Overrides.Clone(), nil
}

// ClearOverride remove a exceção, voltando ao padrão do papel.
func (e *Engine) ClearOverride(ctx context.Context, userID uuid.UUID, name string) error {
	p := Normalize(name)
	if !WellFormed(p) {
		return fmt.Errorf("%w: %q", ErrInvalidPermission, name)
	}
	if err := e.store.ClearOverride(ctx, userID, p); err != nil {
		return err
	}

	ev := audit.NewEvent(ctx, audit.ActionClearOverride)
	ev.UserID = userID.String()
	ev.Permission = string(p)
	audit.Emit(ctx, e.audit, ev)
	return nil
}

// SetRoleDefaults substitui as permissões do papel; nomes desconhecidos são ignorados e registrados.
func (e *Engine) SetRoleDefaults(ctx context.Context, role Role, names []string) ([]Permission, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	seen := make(map[Permission]struct{}, len(names))
	accepted := make([]Permission, 0, len(names))
	for _, raw := range names {
		p := Normalize(raw)
		if !IsKnown(p) {
			log.Warn().Str("role", role.String()).Str("permission", raw).Msg("rbac: permissão desconhecida ignorada")
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		accepted = append(accepted, p)
	}

	inserted, err := e.store.ReplaceRolePermissions(ctx, role, accepted)
	if err != nil {
		return nil, err
	}
	if inserted != len(accepted) {
		log.Warn().Str("role", role.String()).Int("expected", len(accepted)).Int("inserted", inserted).
			Msg("rbac: permissões ausentes na tabela; execute a sincronização do catálogo")
	}

	ev := audit.NewEvent(ctx, audit.ActionSetRoleDefault)
	ev.Role = role.String()
	ev.Details = map[string]any{"permissions": accepted}
	audit.Emit(ctx, e.audit, ev)
	return accepted, nil
}

// RolePermissions lê os vínculos persistidos do papel.
func (e *Engine) RolePermissions(ctx context.Context, role Role) ([]Permission, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return e.store.RolePermissionNames(ctx, role)
}

// ListPermissions devolve o catálogo ativo persistido.
func (e *Engine) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	return e.store.ListPermissions(ctx)
}

// SyncCatalog grava (upsert por nome) todas as permissões do catálogo e as marca ativas.
func (e *Engine) SyncCatalog(ctx context.Context) (int, error) {
	all := AllPermissions()
	records := make([]PermissionRecord, 0, len(all))
	for _, p := range all {
		records = append(records, PermissionRecord{
			ID:          uuid.New(),
			Name:        p,
			Description: Describe(p),
			Resource:    p.Resource(),
			Action:      p.Action(),
			Active:      true,
		})
	}
	if err := e.store.UpsertPermissions(ctx, records); err != nil {
		return 0, fmt.Errorf("sync catalog: %w", err)
	}
	log.Info().Int("permissions", len(records)).Msg("rbac: catálogo sincronizado")
	return len(records), nil
}

// SyncRoleDefaults recria os vínculos de todos os papéis a partir da tabela padrão.
func (e *Engine) SyncRoleDefaults(ctx context.Context) error {
	for _, role := range AllRoles() {
		defaults := DefaultPermissions(role)
		names := make([]string, len(defaults))
		for i, p := range defaults {
			names[i] = string(p)
		}
		if _, err := e.SetRoleDefaults(ctx, role, names); err != nil {
			return fmt.Errorf("sync role %s: %w", role, err)
		}
	}
	log.Info().Msg("rbac: permissões de papéis sincronizadas")
	return nil
}

// FullSync executa catálogo e papéis em sequência.
func (e *Engine) FullSync(ctx context.Context) error {
	count, err := e.SyncCatalog(ctx)
	if err != nil {
		return err
	}
	if err := e.SyncRoleDefaults(ctx); err != nil {
		return err
	}

	ev := audit.NewEvent(ctx, audit.ActionSyncCatalog)
	ev.Details = map[string]any{"permissions": count}
	audit.Emit(ctx, e.audit, ev)
	return nil
}

// ListUsersWithPermissions resolve o conjunto efetivo de cada usuário ativo.
func (e *Engine) ListUsersWithPermissions(ctx context.Context) ([]UserPermissions, error) {
	users, err := e.store.ListActiveUsers(ctx)
	if err != nil {
		return nil, err
	}

	byRole := make(map[Role][]Permission)
	out := make([]UserPermissions, 0, len(users))
	for _, u := range users {
		base, ok := byRole[u.Role]
		if !ok {
			base, err = e.store.RolePermissionNames(ctx, u.Role)
			if err != nil {
				return nil, err
			}
			byRole[u.Role] = base
		}
		out = append(out, UserPermissions{
			ID:                  u.ID,
			Email:               u.Email,
			CPF:                 u.CPF,
			Role:                u.Role,
			Name:                u.Name,
			Permissions:         u.Overrides.Apply(base),
			SpecificPermissions: u.Overrides.Raw(),
		})
	}
	return out, nil
}

func validatePermission(name string) (Permission, error) {
	p := Normalize(name)
	if !WellFormed(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPermission, name)
	}
	if !IsKnown(p) {
		return "", fmt.Errorf("%w: %s", ErrPermissionNotFound, p)
	}
	return p, nil
}

func containsAll(have, required []Permission) bool {
	return len(missingFrom(have, required)) == 0
}

func missingFrom(have, required []Permission) []Permission {
	set := make(map[Permission]struct{}, len(have))
	for _, p := range have {
		set[p] = struct{}{}
	}
	var missing []Permission
	for _, r := range required {
		if _, ok := set[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}
