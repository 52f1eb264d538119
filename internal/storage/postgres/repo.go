// Package postgres loads script output into Postgres over pgx v5. Each
// batch is one COPY through a pooled connection.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config selects the database and target table.
type Config struct {
	DSN string
	// Table may be schema qualified, e.g. "public.scores".
	Table string
}

// Repository is the Postgres storage.Repository.
type Repository struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
	name  string
}

// Open parses the DSN and creates the pool. Connections are made lazily.
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	return &Repository{pool: pool, table: splitFQN(cfg.Table), name: cfg.Table}, nil
}

// CopyFrom writes rows with COPY. Constraint failures carry the server's
// detail and SQLSTATE.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(ctx, r.table, columns, pgx.CopyFromRows(rows))
	if err == nil {
		return n, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return n, fmt.Errorf("postgres copy into %s: %s [%s]: %w", r.name, pgErr.Detail, pgErr.SQLState(), err)
	}
	return n, fmt.Errorf("postgres copy into %s: %w", r.name, err)
}

func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.pool.Exec(ctx, sqlText)
	return err
}

// Close closes the pool.
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// splitFQN turns "schema.table" into its identifier segments, dropping
// empty ones.
func splitFQN(fqn string) pgx.Identifier {
	var id pgx.Identifier
	for _, p := range strings.Split(fqn, ".") {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}

func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
