package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/agendasaude/api/internal/audit"
	"github.com/agendasaude/api/internal/auth"
	"github.com/agendasaude/api/internal/db"
	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/repo"
	"github.com/agendasaude/api/internal/util"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	ctx := context.Background()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN ou DATABASE_URL")
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	publisher := audit.New(strings.TrimSpace(os.Getenv("AMQP_URL")), strings.TrimSpace(os.Getenv("AUDIT_QUEUE")))
	if closer, ok := publisher.(io.Closer); ok {
		defer closer.Close()
	}

	queries := repo.New(pool)
	engine := rbac.NewEngine(repo.NewRBACStore(queries), publisher)

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "migrate":
		if err := runMigrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("falha ao aplicar migrações")
		}
	case "sync":
		if err := engine.FullSync(ctx); err != nil {
			log.Fatal().Err(err).Msg("falha ao sincronizar RBAC")
		}
		log.Info().Msg("RBAC sincronizado")
	case "seed-master":
		if err := runSeedMaster(ctx, queries, engine, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao criar usuário MASTER")
		}
	case "grant", "revoke":
		if err := runOverride(ctx, engine, cmd, args); err != nil {
			log.Fatal().Err(err).Msgf("falha ao executar %s", cmd)
		}
	case "perms":
		if err := runPerms(ctx, engine, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao listar permissões")
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "rbacctl")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  rbacctl migrate")
	fmt.Fprintln(os.Stderr, "  rbacctl sync")
	fmt.Fprintln(os.Stderr, "  rbacctl seed-master --email admin@agendasaude.gov.br --cpf 52998224725 --password 'segredo' [--name \"Administrador\"]")
	fmt.Fprintln(os.Stderr, "  rbacctl grant <user-id> <permissão>")
	fmt.Fprintln(os.Stderr, "  rbacctl revoke <user-id> <permissão>")
	fmt.Fprintln(os.Stderr, "  rbacctl perms <user-id>")
}

func runMigrate(ctx context.Context, pool *pgxpool.Pool) error {
	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		return err
	}
	log.Info().Int("applied", applied).Msg("migrações concluídas")
	return nil
}

func runSeedMaster(ctx context.Context, queries *repo.Queries, engine *rbac.Engine, args []string) error {
	fs := flag.NewFlagSet("seed-master", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		email    = fs.String("email", "", "e-mail de acesso")
		cpf      = fs.String("cpf", "", "CPF (com ou sem máscara)")
		password = fs.String("password", "", "senha inicial (mínimo 8 caracteres)")
		name     = fs.String("name", "Administrador", "nome exibido")
	)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" || *cpf == "" || *password == "" {
		return errors.New("email, cpf e password são obrigatórios")
	}
	if !util.ValidCPF(*cpf) {
		return errors.New("CPF inválido")
	}
	if len(*password) < 8 {
		return errors.New("senha deve ter pelo menos 8 caracteres")
	}

	emailTaken, cpfTaken, err := queries.IdentityTaken(ctx, *email, *cpf, nil)
	if err != nil {
		return err
	}
	if emailTaken || cpfTaken {
		return errors.New("e-mail ou CPF já cadastrado")
	}

	hash, err := auth.Hash(*password)
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}

	if err := engine.SyncRoleDefaults(ctx); err != nil {
		return fmt.Errorf("padrões dos papéis: %w", err)
	}

	created, err := queries.CreateUser(ctx, repo.CreateUserParams{
		InsertUserParams: repo.InsertUserParams{
			Email:        *email,
			CPF:          *cpf,
			PasswordHash: hash,
			Role:         rbac.RoleMaster,
			Active:       true,
		},
		Profile: &repo.Profile{Name: strings.TrimSpace(*name)},
	})
	if err != nil {
		return err
	}

	log.Info().Str("user_id", created.ID.String()).Str("email", created.Email).Msg("usuário MASTER criado")
	return nil
}

func runOverride(ctx context.Context, engine *rbac.Engine, cmd string, args []string) error {
	if len(args) != 2 {
		return errors.New("informe <user-id> <permissão>")
	}
	userID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("user-id inválido: %w", err)
	}

	if cmd == "grant" {
		err = engine.Grant(ctx, userID, args[1])
	} else {
		err = engine.Revoke(ctx, userID, args[1])
	}
	if err != nil {
		return err
	}
	log.Info().Str("user_id", userID.String()).Str("permission", args[1]).Msgf("%s aplicado", cmd)
	return nil
}

func runPerms(ctx context.Context, engine *rbac.Engine, args []string) error {
	if len(args) != 1 {
		return errors.New("informe <user-id>")
	}
	userID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("user-id inválido: %w", err)
	}

	perms, err := engine.EffectivePermissions(ctx, userID)
	if err != nil {
		return err
	}
	overrides, err := engine.UserOverrides(ctx, userID)
	if err != nil && !errors.Is(err, rbac.ErrUserNotFound) {
		return err
	}

	encoded, _ := json.MarshalIndent(map[string]any{
		"permissions":         perms,
		"specificPermissions": overrides.Raw(),
	}, "", "  ")
	fmt.Println(string(encoded))
	return nil
}
