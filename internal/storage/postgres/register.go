package postgres

import (
	"context"
	"fmt"

	"scriptetl/internal/ddl"
	"scriptetl/internal/row"
	"scriptetl/internal/storage"
)

// open is swapped by tests.
var open = Open

var _ storage.Repository = (*Repository)(nil)

var dialect = ddl.Dialect{Name: "postgres ddl", Quote: pgIdent, IfNotExists: true}

// MapType maps a script output field to a Postgres column type.
func MapType(m row.Meta) string {
	switch m.Type {
	case row.Integer:
		return "BIGINT"
	case row.Number:
		if m.Length > 0 && m.Precision > 0 {
			return fmt.Sprintf("NUMERIC(%d, %d)", m.Length, m.Precision)
		}
		return "DOUBLE PRECISION"
	case row.Boolean:
		return "BOOLEAN"
	case row.Date:
		return "TIMESTAMPTZ"
	default:
		if m.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", m.Length)
		}
		return "TEXT"
	}
}

func openRepository(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	r, err := open(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func init() {
	storage.Register("postgres", storage.Backend{Open: openRepository, DDL: dialect, MapType: MapType})
}
