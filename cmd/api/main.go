package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/agendasaude/api/internal/audit"
	"github.com/agendasaude/api/internal/auth"
	"github.com/agendasaude/api/internal/config"
	"github.com/agendasaude/api/internal/db"
	internalhttp "github.com/agendasaude/api/internal/http"
	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/repo"
	"github.com/agendasaude/api/internal/scope"
	"github.com/agendasaude/api/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	setupLogger(cfg)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis parse: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	publisher := audit.New(cfg.Audit.AMQPURL, cfg.Audit.Queue)
	if closer, ok := publisher.(io.Closer); ok {
		defer closer.Close()
	}

	queries := repo.New(pool)
	engine := rbac.NewEngine(repo.NewRBACStore(queries), publisher)
	validator := scope.NewValidator(queries)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTAccessTTL)
	guard := service.NewLoginGuard(redisClient, cfg.Login.MaxAttempts, cfg.Login.LockWindow)

	if cfg.SyncOnStart {
		if err := engine.FullSync(ctx); err != nil {
			return fmt.Errorf("rbac sync: %w", err)
		}
		log.Info().Msg("catálogo RBAC sincronizado")
	}

	handler := internalhttp.NewRouter(cfg, queries, redisClient, internalhttp.Services{
		Auth:           service.NewAuthService(queries, engine, tokens, guard),
		RBAC:           engine,
		Users:          service.NewUserService(queries, validator),
		Patients:       service.NewPatientService(queries, queries, validator),
		Doctors:        service.NewDoctorService(queries, validator),
		CityHalls:      service.NewCityHallService(queries),
		HealthUnits:    service.NewHealthUnitService(queries, validator),
		Schedules:      service.NewScheduleService(queries, validator),
		MedicalRecords: service.NewMedicalRecordService(queries),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("encerrando...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "agendasaude-api").Logger()
}
