package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agendasaude/api/internal/auth"
	"github.com/agendasaude/api/internal/metrics"
	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/repo"
)

type authRepository interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (repo.UserWithProfile, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (repo.UserWithProfile, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type permissionResolver interface {
	EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]rbac.Permission, error)
}

// AuthService concentra login por e-mail ou CPF e a projeção do usuário autenticado.
type AuthService struct {
	repo   authRepository
	perms  permissionResolver
	tokens *auth.TokenManager
	guard  *LoginGuard
}

// NewAuthService cria novo serviço.
func NewAuthService(r authRepository, perms permissionResolver, tokens *auth.TokenManager, guard *LoginGuard) *AuthService {
	return &AuthService{repo: r, perms: perms, tokens: tokens, guard: guard}
}

// Tokens expõe o emissor de tokens (útil em middlewares).
func (s *AuthService) Tokens() *auth.TokenManager {
	return s.tokens
}

// ProfileView é a parte pessoal da projeção do usuário.
type ProfileView struct {
	Name      string     `json:"name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Gender    *string    `json:"gender,omitempty"`
	SUSCard   *string    `json:"sus_card,omitempty"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
}

// UserView é a projeção do usuário autenticado.
type UserView struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	CPF          string            `json:"cpf"`
	Role         rbac.Role         `json:"role"`
	CityID       *uuid.UUID        `json:"city_id"`
	HealthUnitID *uuid.UUID        `json:"health_unit_id"`
	Profile      *ProfileView      `json:"profile"`
	Permissions  []rbac.Permission `json:"permissions"`
}

// LoginResult representa o retorno do login.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        UserView  `json:"user"`
}

// Login autentica por e-mail ou CPF. Qualquer falha de identificação resulta em ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}
	idKey := identifierKey(identifier)
	if err := s.guard.Allow(ctx, idKey); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("throttled").Inc()
		return nil, err
	}

	user, err := s.repo.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn().Msg("login: usuário não encontrado")
			return nil, s.reject(ctx, idKey)
		}
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	acctKey := accountKey(user.ID)
	if err := s.guard.Allow(ctx, acctKey); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("throttled").Inc()
		return nil, err
	}

	ok, err := auth.Verify(password, user.PasswordHash)
	if err != nil {
		log.Warn().Err(err).Msg("login: verify password failed")
		return nil, s.reject(ctx, idKey, acctKey)
	}
	if !ok {
		log.Warn().Str("user_id", user.ID.String()).Msg("login: senha inválida")
		return nil, s.reject(ctx, idKey, acctKey)
	}
	if !user.Active {
		log.Warn().Str("user_id", user.ID.String()).Msg("login: conta inativa")
		return nil, s.reject(ctx, idKey, acctKey)
	}

	if auth.IsLegacyHash(user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, password)
	}

	view, err := s.project(ctx, user)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	token, expires, err := s.tokens.Issue(identityOf(user.User))
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	s.guard.Reset(ctx, idKey, acctKey)
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	log.Info().Str("user_id", user.ID.String()).Str("role", user.Role.String()).Msg("login efetuado")

	return &LoginResult{AccessToken: token, ExpiresAt: expires, User: *view}, nil
}

func (s *AuthService) reject(ctx context.Context, keys ...string) error {
	s.guard.Fail(ctx, keys...)
	metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
	return ErrInvalidCredentials
}

// upgradeHash migra hashes bcrypt herdados para argon2id; falhas só são registradas.
func (s *AuthService) upgradeHash(ctx context.Context, id uuid.UUID, password string) {
	hash, err := auth.Hash(password)
	if err != nil {
		log.Warn().Err(err).Msg("login: rehash falhou")
		return
	}
	if err := s.repo.UpdatePasswordHash(ctx, id, hash); err != nil {
		log.Warn().Err(err).Str("user_id", id.String()).Msg("login: rehash não gravado")
	}
}

// Me devolve a projeção atual do usuário autenticado.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*UserView, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.project(ctx, user)
}

func (s *AuthService) project(ctx context.Context, user repo.UserWithProfile) (*UserView, error) {
	perms, err := s.perms.EffectivePermissions(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	view := &UserView{
		ID:           user.ID.String(),
		Email:        user.Email,
		CPF:          user.CPF,
		Role:         user.Role,
		CityID:       user.CityID,
		HealthUnitID: user.HealthUnitID,
		Profile:      profileView(user.Profile),
		Permissions:  perms,
	}
	return view, nil
}

func profileView(p *repo.Profile) *ProfileView {
	if p == nil {
		return nil
	}
	return &ProfileView{
		Name:      p.Name,
		BirthDate: p.BirthDate,
		Gender:    p.Gender,
		SUSCard:   p.SUSCard,
		AvatarURL: p.AvatarURL,
	}
}

func identityOf(u repo.User) auth.Identity {
	return auth.Identity{
		UserID:       u.ID,
		Email:        u.Email,
		CPF:          u.CPF,
		Role:         u.Role.String(),
		CityID:       u.CityID,
		HealthUnitID: u.HealthUnitID,
	}
}
