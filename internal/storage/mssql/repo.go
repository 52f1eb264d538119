// Package mssql writes pipeline batches to SQL Server with the go-mssqldb
// bulk copy API. Each batch is one transaction.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
)

// Config selects the server and the target table.
type Config struct {
	DSN   string
	Table string
}

// Repository is the SQL Server storage.Repository.
type Repository struct {
	db    *sql.DB
	table string
}

// Open validates the DSN, opens a pool and pings the server.
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql ping: %w", err)
	}
	return &Repository{db: db, table: cfg.Table}, nil
}

// CopyFrom bulk inserts rows. A failing row rolls back the whole batch.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (n int64, err error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(r.table, mssql.BulkOptions{}, columns...))
	if err != nil {
		return 0, fmt.Errorf("mssql prepare bulk into %s: %w", r.table, err)
	}
	defer stmt.Close()

	for i, vals := range rows {
		if _, err = stmt.ExecContext(ctx, vals...); err != nil {
			return 0, fmt.Errorf("mssql bulk row %d: %w", i, err)
		}
	}
	// An Exec without arguments flushes the bulk buffer.
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("mssql bulk flush: %w", err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("mssql rows affected: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql commit: %w", err)
	}
	return n, nil
}

// Exec runs one statement, typically the guarded CREATE TABLE.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return err
}

// Close releases the pool.
func (r *Repository) Close() {
	if r.db != nil {
		_ = r.db.Close()
	}
}

// msIdent quotes an identifier with brackets.
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }
