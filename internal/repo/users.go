package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agendasaude/api/internal/rbac"
)

const userColumns = `
    u.id, u.email, u.cpf, u.password_hash, u.role, u.is_active, u.city_id, u.health_unit_id,
    u.allowed, u.created_at, u.updated_at,
    p.name, p.birth_date, p.gender, p.sus_card, p.avatar_url,
    d.crm_number, d.crm_uf, d.specialty`

const userFrom = `
    FROM users u
    LEFT JOIN profiles p ON p.user_id = u.id
    LEFT JOIN doctor_profiles d ON d.user_id = u.id`

// GetUserByID recupera usuário com perfil.
func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (UserWithProfile, error) {
	query := `SELECT` + userColumns + userFrom + ` WHERE u.id = $1`
	return scanUserWithProfile(q.db.QueryRow(ctx, query, id))
}

// GetUserByIdentifier busca por e-mail (sem caixa) ou CPF (apenas dígitos).
func (q *Queries) GetUserByIdentifier(ctx context.Context, identifier string) (UserWithProfile, error) {
	query := `SELECT` + userColumns + userFrom + ` WHERE lower(u.email) = $1 OR u.cpf = $2 LIMIT 1`
	email := strings.ToLower(strings.TrimSpace(identifier))
	return scanUserWithProfile(q.db.QueryRow(ctx, query, email, NormalizeCPF(identifier)))
}

// IdentityTaken informa se e-mail ou CPF já estão em uso por outro usuário.
func (q *Queries) IdentityTaken(ctx context.Context, email, cpf string, except *uuid.UUID) (emailTaken bool, cpfTaken bool, err error) {
	const query = `
        SELECT
            EXISTS(SELECT 1 FROM users WHERE lower(email) = $1 AND ($3::uuid IS NULL OR id <> $3)),
            EXISTS(SELECT 1 FROM users WHERE cpf = $2 AND ($3::uuid IS NULL OR id <> $3))
    `
	err = q.db.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email)), NormalizeCPF(cpf), except).
		Scan(&emailTaken, &cpfTaken)
	return emailTaken, cpfTaken, err
}

// InsertUserParams agrupa os campos de criação de usuário.
type InsertUserParams struct {
	Email        string
	CPF          string
	PasswordHash string
	Role         rbac.Role
	Active       bool
	CityID       *uuid.UUID
	HealthUnitID *uuid.UUID
}

// InsertUser cria o usuário com mapa de exceções vazio.
func (q *Queries) InsertUser(ctx context.Context, arg InsertUserParams) (User, error) {
	const query = `
        INSERT INTO users (id, email, cpf, password_hash, role, is_active, city_id, health_unit_id, allowed)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '{}'::jsonb)
        RETURNING id, email, cpf, password_hash, role, is_active, city_id, health_unit_id, allowed, created_at, updated_at
    `
	row := q.db.QueryRow(ctx, query,
		uuid.New(),
		strings.ToLower(strings.TrimSpace(arg.Email)),
		NormalizeCPF(arg.CPF),
		arg.PasswordHash,
		string(arg.Role),
		arg.Active,
		arg.CityID,
		arg.HealthUnitID,
	)
	return scanUser(row)
}

// UpsertProfile grava os dados pessoais.
func (q *Queries) UpsertProfile(ctx context.Context, p Profile) error {
	const query = `
        INSERT INTO profiles (user_id, name, birth_date, gender, sus_card, avatar_url)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id) DO UPDATE
        SET name = EXCLUDED.name,
            birth_date = EXCLUDED.birth_date,
            gender = EXCLUDED.gender,
            sus_card = EXCLUDED.sus_card,
            avatar_url = EXCLUDED.avatar_url,
            updated_at = now()
    `
	_, err := q.db.Exec(ctx, query, p.UserID, strings.TrimSpace(p.Name), p.BirthDate, p.Gender, p.SUSCard, p.AvatarURL)
	return mapErr(err)
}

// UpsertDoctorProfile grava CRM e especialidade.
func (q *Queries) UpsertDoctorProfile(ctx context.Context, d DoctorProfile) error {
	const query = `
        INSERT INTO doctor_profiles (user_id, crm_number, crm_uf, specialty)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO UPDATE
        SET crm_number = EXCLUDED.crm_number,
            crm_uf = EXCLUDED.crm_uf,
            specialty = EXCLUDED.specialty
    `
	_, err := q.db.Exec(ctx, query, d.UserID, strings.TrimSpace(d.CRMNumber), strings.ToUpper(strings.TrimSpace(d.CRMUF)), strings.TrimSpace(d.Specialty))
	return mapErr(err)
}

// UpdateUserParams descreve a atualização completa da linha de usuário.
type UpdateUserParams struct {
	ID           uuid.UUID
	Email        string
	CPF          string
	Role         rbac.Role
	Active       bool
	CityID       *uuid.UUID
	HealthUnitID *uuid.UUID
}

// UpdateUser altera identidade, papel e território.
func (q *Queries) UpdateUser(ctx context.Context, arg UpdateUserParams) (User, error) {
	const query = `
        UPDATE users
        SET email = $2,
            cpf = $3,
            role = $4,
            is_active = $5,
            city_id = $6,
            health_unit_id = $7,
            updated_at = now()
        WHERE id = $1
        RETURNING id, email, cpf, password_hash, role, is_active, city_id, health_unit_id, allowed, created_at, updated_at
    `
	row := q.db.QueryRow(ctx, query,
		arg.ID,
		strings.ToLower(strings.TrimSpace(arg.Email)),
		NormalizeCPF(arg.CPF),
		string(arg.Role),
		arg.Active,
		arg.CityID,
		arg.HealthUnitID,
	)
	return scanUser(row)
}

// UpdatePasswordHash regrava o hash (troca de senha ou migração de bcrypt).
func (q *Queries) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
	tag, err := q.db.Exec(ctx, query, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserActive ativa ou desativa (exclusão lógica).
func (q *Queries) SetUserActive(ctx context.Context, id uuid.UUID, active bool) error {
	const query = `UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`
	tag, err := q.db.Exec(ctx, query, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser remove perfil e usuário definitivamente.
func (q *Queries) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return q.WithTx(ctx, func(ctx context.Context, tq *Queries) error {
		if _, err := tq.db.Exec(ctx, `DELETE FROM doctor_profiles WHERE user_id = $1`, id); err != nil {
			return err
		}
		if _, err := tq.db.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1`, id); err != nil {
			return err
		}
		tag, err := tq.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// UserListFilter combina papel, território e estado.
type UserListFilter struct {
	Role       *rbac.Role
	Territory  TerritoryFilter
	ActiveOnly bool
}

// ListUsers devolve usuários ordenados por nome/e-mail conforme o filtro.
func (q *Queries) ListUsers(ctx context.Context, filter UserListFilter) ([]UserWithProfile, error) {
	query := `SELECT` + userColumns + userFrom + `
        WHERE ($1::text IS NULL OR u.role = $1)
          AND ($2::uuid IS NULL OR u.city_id = $2)
          AND ($3::uuid IS NULL OR u.health_unit_id = $3)
          AND (NOT $4 OR u.is_active)
        ORDER BY COALESCE(p.name, u.email) ASC`

	var role *string
	if filter.Role != nil {
		r := string(*filter.Role)
		role = &r
	}

	rows, err := q.db.Query(ctx, query, role, filter.Territory.CityID, filter.Territory.HealthUnitID, filter.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []UserWithProfile
	for rows.Next() {
		u, err := scanUserWithProfile(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return users, nil
}

// NormalizeCPF mantém apenas os dígitos.
func NormalizeCPF(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u       User
		role    string
		allowed []byte
	)
	if err := row.Scan(&u.ID, &u.Email, &u.CPF, &u.PasswordHash, &role, &u.Active, &u.CityID, &u.HealthUnitID,
		&allowed, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, mapErr(err)
	}
	u.Role = rbac.Role(role)
	overrides, err := rbac.DecodeOverrides(allowed)
	if err != nil {
		return User{}, err
	}
	u.Allowed = overrides
	return u, nil
}

func scanUserWithProfile(row pgx.Row) (UserWithProfile, error) {
	var (
		out       UserWithProfile
		role      string
		allowed   []byte
		name      *string
		birthDate *time.Time
		gender    *string
		susCard   *string
		avatarURL *string
		crmNumber *string
		crmUF     *string
		specialty *string
	)

	u := &out.User
	if err := row.Scan(&u.ID, &u.Email, &u.CPF, &u.PasswordHash, &role, &u.Active, &u.CityID, &u.HealthUnitID,
		&allowed, &u.CreatedAt, &u.UpdatedAt,
		&name, &birthDate, &gender, &susCard, &avatarURL,
		&crmNumber, &crmUF, &specialty); err != nil {
		return UserWithProfile{}, mapErr(err)
	}

	u.Role = rbac.Role(role)
	overrides, err := rbac.DecodeOverrides(allowed)
	if err != nil {
		return UserWithProfile{}, err
	}
	u.Allowed = overrides

	if name != nil {
		out.Profile = &Profile{
			UserID:    u.ID,
			Name:      *name,
			BirthDate: birthDate,
			Gender:    gender,
			SUSCard:   susCard,
			AvatarURL: avatarURL,
		}
	}
	if crmNumber != nil {
		out.Doctor = &DoctorProfile{UserID: u.ID, CRMNumber: *crmNumber}
		if crmUF != nil {
			out.Doctor.CRMUF = *crmUF
		}
		if specialty != nil {
			out.Doctor.Specialty = *specialty
		}
	}
	return out, nil
}

// CreateUserParams cria usuário e perfis numa única transação.
type CreateUserParams struct {
	InsertUserParams
	Profile *Profile
	Doctor  *DoctorProfile
}

// CreateUser insere usuário, perfil e perfil médico atomicamente.
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (UserWithProfile, error) {
	var out UserWithProfile
	err := q.WithTx(ctx, func(ctx context.Context, tq *Queries) error {
		u, err := tq.InsertUser(ctx, arg.InsertUserParams)
		if err != nil {
			return err
		}
		if arg.Profile != nil {
			p := *arg.Profile
			p.UserID = u.ID
			if err := tq.UpsertProfile(ctx, p); err != nil {
				return err
			}
		}
		if arg.Doctor != nil {
			d := *arg.Doctor
			d.UserID = u.ID
			if err := tq.UpsertDoctorProfile(ctx, d); err != nil {
				return err
			}
		}
		out, err = tq.GetUserByID(ctx, u.ID)
		return err
	})
	if err != nil {
		return UserWithProfile{}, err
	}
	return out, nil
}

// SaveUserParams regrava usuário e perfis; PasswordHash nil mantém a senha.
type SaveUserParams struct {
	UpdateUserParams
	PasswordHash *string
	Profile      *Profile
	Doctor       *DoctorProfile
}

// SaveUser aplica a atualização completa numa transação.
func (q *Queries) SaveUser(ctx context.Context, arg SaveUserParams) (UserWithProfile, error) {
	var out UserWithProfile
	err := q.WithTx(ctx, func(ctx context.Context, tq *Queries) error {
		if _, err := tq.UpdateUser(ctx, arg.UpdateUserParams); err != nil {
			return err
		}
		if arg.PasswordHash != nil {
			if err := tq.UpdatePasswordHash(ctx, arg.ID, *arg.PasswordHash); err != nil {
				return err
			}
		}
		if arg.Profile != nil {
			p := *arg.Profile
			p.UserID = arg.ID
			if err := tq.UpsertProfile(ctx, p); err != nil {
				return err
			}
		}
		if arg.Doctor != nil {
			d := *arg.Doctor
			d.UserID = arg.ID
			if err := tq.UpsertDoctorProfile(ctx, d); err != nil {
				return err
			}
		}
		var err error
		out, err = tq.GetUserByID(ctx, arg.ID)
		return err
	})
	if err != nil {
		return UserWithProfile{}, err
	}
	return out, nil
}
