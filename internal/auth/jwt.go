package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenMissing indica ausência de bearer token.
	ErrTokenMissing = errors.New("token ausente")
	// ErrTokenInvalid cobre assinatura inválida, formato incorreto ou expiração.
	ErrTokenInvalid = errors.New("token inválido ou expirado")
)

// DefaultTTL é a validade fixa dos tokens de acesso.
const DefaultTTL = 24 * time.Hour

// Identity reúne os dados do usuário que viajam no token.
type Identity struct {
	UserID       uuid.UUID
	Email        string
	CPF          string
	Role         string
	CityID       *uuid.UUID
	HealthUnitID *uuid.UUID
}

// Claims representa as informações presentes em um JWT de acesso.
type Claims struct {
	Email        string  `json:"email"`
	CPF          string  `json:"cpf"`
	Role         string  `json:"role"`
	CityID       *string `json:"city_id"`
	HealthUnitID *string `json:"health_unit_id"`
	jwt.RegisteredClaims
}

// Identity converte claims validadas de volta para a identidade tipada.
func (c *Claims) Identity() (Identity, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return Identity{}, ErrTokenInvalid
	}
	cityID, err := parseOptionalUUID(c.CityID)
	if err != nil {
		return Identity{}, ErrTokenInvalid
	}
	unitID, err := parseOptionalUUID(c.HealthUnitID)
	if err != nil {
		return Identity{}, ErrTokenInvalid
	}
	return Identity{
		UserID:       userID,
		Email:        c.Email,
		CPF:          c.CPF,
		Role:         c.Role,
		CityID:       cityID,
		HealthUnitID: unitID,
	}, nil
}

// TokenManager encapsula emissão e validação de tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager cria o gerenciador com segredo e TTL configurados.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock substitui o relógio usado na emissão e validação.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	clone := *m
	clone.now = now
	return &clone
}

// TTL devolve a validade configurada.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue cria um JWT HS256 para a identidade informada.
func (m *TokenManager) Issue(id Identity) (string, time.Time, error) {
	if id.UserID == uuid.Nil {
		return "", time.Time{}, errors.New("subject obrigatório")
	}

	now := m.now().UTC()
	expires := now.Add(m.ttl)

	claims := Claims{
		Email:        id.Email,
		CPF:          id.CPF,
		Role:         id.Role,
		CityID:       formatOptionalUUID(id.CityID),
		HealthUnitID: formatOptionalUUID(id.HealthUnitID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expires, nil
}

// Verify valida assinatura, algoritmo e expiração. Toda falha vira ErrTokenInvalid.
func (m *TokenManager) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenMissing
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	token, err := parser.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// ParseBearer extrai o token do cabeçalho Authorization.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrTokenMissing
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrTokenInvalid
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrTokenMissing
	}
	return token, nil
}

func formatOptionalUUID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
