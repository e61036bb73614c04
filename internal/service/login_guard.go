package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/agendasaude/api/internal/repo"
)

type redisCommander interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// LoginGuard limita tentativas de login por identificador usando Redis.
type LoginGuard struct {
	redis       redisCommander
	maxAttempts int
	window      time.Duration
}

// NewLoginGuard cria o limitador; maxAttempts <= 0 desativa o bloqueio.
func NewLoginGuard(client redisCommander, maxAttempts int, window time.Duration) *LoginGuard {
	return &LoginGuard{redis: client, maxAttempts: maxAttempts, window: window}
}

// identifierKey normaliza o identificador como a busca de usuário faz:
// e-mail sem caixa, demais entradas reduzidas aos dígitos do CPF.
func identifierKey(identifier string) string {
	id := strings.ToLower(strings.TrimSpace(identifier))
	if !strings.Contains(id, "@") {
		if digits := repo.NormalizeCPF(id); digits != "" {
			id = digits
		}
	}
	return "login:attempts:id:" + id
}

// accountKey conta falhas por conta, somando e-mail e CPF do mesmo usuário.
func accountKey(userID uuid.UUID) string {
	return "login:attempts:user:" + userID.String()
}

// Allow devolve ErrTooManyAttempts quando alguma das chaves está bloqueada.
// Falhas do Redis não bloqueiam o login.
func (g *LoginGuard) Allow(ctx context.Context, keys ...string) error {
	if g == nil || g.redis == nil || g.maxAttempts <= 0 {
		return nil
	}
	for _, key := range keys {
		raw, err := g.redis.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			log.Warn().Err(err).Msg("login guard: leitura de tentativas falhou")
			return nil
		}
		count, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if count >= g.maxAttempts {
			return ErrTooManyAttempts
		}
	}
	return nil
}

// Fail registra uma tentativa malsucedida em cada chave; a janela começa na primeira falha.
func (g *LoginGuard) Fail(ctx context.Context, keys ...string) {
	if g == nil || g.redis == nil || g.maxAttempts <= 0 {
		return
	}
	for _, key := range keys {
		count, err := g.redis.Incr(ctx, key).Result()
		if err != nil {
			log.Warn().Err(err).Msg("login guard: incremento falhou")
			return
		}
		if count == 1 {
			if err := g.redis.Expire(ctx, key, g.window).Err(); err != nil {
				log.Warn().Err(err).Msg("login guard: expiração falhou")
			}
		}
	}
}

// Reset limpa os contadores após login bem-sucedido.
func (g *LoginGuard) Reset(ctx context.Context, keys ...string) {
	if g == nil || g.redis == nil || len(keys) == 0 {
		return
	}
	if err := g.redis.Del(ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Msg("login guard: limpeza falhou")
	}
}
