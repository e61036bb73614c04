package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agendasaude/api/internal/rbac"
)

// RBACStore adapta Queries ao contrato de armazenamento do motor de RBAC.
type RBACStore struct {
	q *Queries
}

// NewRBACStore cria o adaptador.
func NewRBACStore(q *Queries) *RBACStore {
	return &RBACStore{q: q}
}

var _ rbac.Store = (*RBACStore)(nil)

// GetSubject lê a linha atual do usuário.
func (s *RBACStore) GetSubject(ctx context.Context, userID uuid.UUID) (rbac.Subject, error) {
	const query = `
        SELECT id, email, cpf, password_hash, role, is_active, city_id, health_unit_id, allowed, created_at, updated_at
        FROM users
        WHERE id = $1
    `
	u, err := scanUser(s.q.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rbac.Subject{}, rbac.ErrUserNotFound
		}
		return rbac.Subject{}, err
	}
	return SubjectFromUser(u), nil
}

// SubjectFromUser converte a linha de usuário no sujeito de autorização.
func SubjectFromUser(u User) rbac.Subject {
	return rbac.Subject{
		ID:           u.ID,
		Email:        u.Email,
		CPF:          u.CPF,
		Role:         u.Role,
		Active:       u.Active,
		CityID:       u.CityID,
		HealthUnitID: u.HealthUnitID,
		Overrides:    u.Allowed,
	}
}

// RolePermissionNames devolve os nomes vinculados ao papel (apenas permissões ativas).
func (s *RBACStore) RolePermissionNames(ctx context.Context, role rbac.Role) ([]rbac.Permission, error) {
	const query = `
        SELECT DISTINCT p.name
        FROM role_permissions rp
        JOIN permissions p ON p.id = rp.permission_id
        WHERE rp.role = $1 AND p.is_active
        ORDER BY p.name
    `
	rows, err := s.q.db.Query(ctx, query, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []rbac.Permission
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, rbac.Permission(name))
	}
	return names, rows.Err()
}

// SetOverride grava uma chave do mapa de exceções numa única instrução.
func (s *RBACStore) SetOverride(ctx context.Context, userID uuid.UUID, name rbac.Permission, granted bool) error {
	const query = `
        UPDATE users
        SET allowed = COALESCE(allowed, '{}'::jsonb) || jsonb_build_object($2::text, $3::boolean),
            updated_at = now()
        WHERE id = $1
    `
	return s.execUser(ctx, query, userID, string(name), granted)
}

// ClearOverride remove a chave do mapa de exceções.
func (s *RBACStore) ClearOverride(ctx context.Context, userID uuid.UUID, name rbac.Permission) error {
	const query = `
        UPDATE users
        SET allowed = COALESCE(allowed, '{}'::jsonb) - $2::text,
            updated_at = now()
        WHERE id = $1
    `
	return s.execUser(ctx, query, userID, string(name))
}

// ReplaceOverrides substitui o mapa inteiro.
func (s *RBACStore) ReplaceOverrides(ctx context.Context, userID uuid.UUID, overrides rbac.Overrides) error {
	const query = `UPDATE users SET allowed = $2::jsonb, updated_at = now() WHERE id = $1`
	payload, err := overrides.Encode()
	if err != nil {
		return err
	}
	return s.execUser(ctx, query, userID, string(payload))
}

func (s *RBACStore) execUser(ctx context.Context, query string, args ...any) error {
	tag, err := s.q.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrUserNotFound
	}
	return nil
}

// ReplaceRolePermissions apaga e recria os vínculos do papel numa transação.
// Nomes sem linha em permissions são ignorados; devolve quantos foram inseridos.
func (s *RBACStore) ReplaceRolePermissions(ctx context.Context, role rbac.Role, names []rbac.Permission) (int, error) {
	inserted := 0
	err := s.q.WithTx(ctx, func(ctx context.Context, tq *Queries) error {
		if _, err := tq.db.Exec(ctx, `DELETE FROM role_permissions WHERE role = $1`, string(role)); err != nil {
			return err
		}

		const insert = `
            INSERT INTO role_permissions (id, role, permission_id)
            SELECT $1, $2, id FROM permissions WHERE name = $3
        `
		for _, name := range names {
			tag, err := tq.db.Exec(ctx, insert, uuid.New(), string(role), string(name))
			if err != nil {
				return err
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// UpsertPermissions insere ou reativa cada permissão pelo nome, em lote.
func (s *RBACStore) UpsertPermissions(ctx context.Context, records []rbac.PermissionRecord) error {
	const query = `
        INSERT INTO permissions (id, name, description, resource, action, is_active)
        VALUES ($1, $2, $3, $4, $5, TRUE)
        ON CONFLICT (name) DO UPDATE
        SET is_active = TRUE,
            updated_at = now()
    `
	return s.q.WithTx(ctx, func(ctx context.Context, tq *Queries) error {
		tx, ok := tq.db.(pgx.Tx)
		if !ok {
			for _, r := range records {
				if _, err := tq.db.Exec(ctx, query, r.ID, string(r.Name), r.Description, r.Resource, r.Action); err != nil {
					return err
				}
			}
			return nil
		}

		batch := &pgx.Batch{}
		for _, r := range records {
			batch.Queue(query, r.ID, string(r.Name), r.Description, r.Resource, r.Action)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// ListPermissions devolve as permissões ativas em ordem alfabética.
func (s *RBACStore) ListPermissions(ctx context.Context) ([]rbac.PermissionRecord, error) {
	const query = `
        SELECT id, name, description, resource, action, is_active
        FROM permissions
        WHERE is_active
        ORDER BY name ASC
    `
	rows, err := s.q.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rbac.PermissionRecord
	for rows.Next() {
		var (
			r    rbac.PermissionRecord
			name string
		)
		if err := rows.Scan(&r.ID, &name, &r.Description, &r.Resource, &r.Action, &r.Active); err != nil {
			return nil, err
		}
		r.Name = rbac.Permission(name)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListActiveUsers alimenta a visão administrativa de permissões por usuário.
func (s *RBACStore) ListActiveUsers(ctx context.Context) ([]rbac.UserSummary, error) {
	users, err := s.q.ListUsers(ctx, UserListFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	out := make([]rbac.UserSummary, 0, len(users))
	for _, u := range users {
		summary := rbac.UserSummary{
			ID:        u.ID,
			Email:     u.Email,
			CPF:       u.CPF,
			Role:      u.Role,
			Overrides: u.Allowed,
		}
		if u.Profile != nil {
			name := u.Profile.Name
			summary.Name = &name
		}
		out = append(out, summary)
	}
	return out, nil
}
