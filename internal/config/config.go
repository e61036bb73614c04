package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port            int
	DBDSN           string
	RedisURL        string
	JWTAccessTTL    time.Duration
	JWTSecret       string
	AllowOrigins    []string
	LogLevel        string
	LogPretty       bool
	RateLimitPublic RateLimitConfig
	RateLimitAuth   RateLimitConfig
	Login           LoginConfig
	Audit           AuditConfig
	SyncOnStart     bool
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LoginConfig controla o bloqueio temporário após falhas de login.
type LoginConfig struct {
	MaxAttempts int
	LockWindow  time.Duration
}

// AuditConfig descreve o destino dos eventos de auditoria do RBAC.
type AuditConfig struct {
	AMQPURL string
	Queue   string
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obrigatório")
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL obrigatório")
	}

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	accessTTL, err := parseDurationEnv("JWT_ACCESS_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.JWTAccessTTL = accessTTL

	allowOrigins := strings.Split(getEnv("ALLOW_ORIGINS", ""), ",")
	cfg.AllowOrigins = nil
	for _, origin := range allowOrigins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info")))
	cfg.LogPretty = parseBoolEnv("LOG_PRETTY", false)

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}

	maxAttempts, err := strconv.Atoi(getEnv("LOGIN_MAX_ATTEMPTS", "5"))
	if err != nil || maxAttempts <= 0 {
		return nil, errors.New("LOGIN_MAX_ATTEMPTS inválido")
	}
	lockWindow, err := parseDurationEnv("LOGIN_LOCK_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.Login = LoginConfig{MaxAttempts: maxAttempts, LockWindow: lockWindow}

	cfg.Audit = AuditConfig{
		AMQPURL: strings.TrimSpace(getEnv("AMQP_URL", "")),
		Queue:   strings.TrimSpace(getEnv("AUDIT_QUEUE", "rbac.audit")),
	}
	if cfg.Audit.Queue == "" {
		cfg.Audit.Queue = "rbac.audit"
	}

	cfg.SyncOnStart = parseBoolEnv("RBAC_SYNC_ON_START", false)

	return cfg, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}

func parseBoolEnv(key string, def bool) bool {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}
