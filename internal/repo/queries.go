package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agendasaude/api/internal/db"
)

// Queries concentra o acesso SQL; opera sobre o pool ou sobre uma transação.
type Queries struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// New cria o repositório sobre o pool compartilhado.
func New(pool *pgxpool.Pool) *Queries {
	return &Queries{db: pool, pool: pool}
}

// WithTx executa fn com um Queries ligado a uma transação.
// Dentro de uma transação já aberta, reutiliza a mesma.
func (q *Queries) WithTx(ctx context.Context, fn func(ctx context.Context, tq *Queries) error) error {
	if q.pool == nil {
		return fn(ctx, q)
	}
	return db.WithTx(ctx, q.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &Queries{db: tx})
	})
}

// Ping verifica a conexão com o banco.
func (q *Queries) Ping(ctx context.Context) error {
	if q.pool == nil {
		return nil
	}
	return q.pool.Ping(ctx)
}
