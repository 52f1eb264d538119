package mssql

import (
	"context"
	"fmt"
	"strings"

	"scriptetl/internal/ddl"
	"scriptetl/internal/row"
	"scriptetl/internal/storage"
)

// open is swapped by tests.
var open = Open

var _ storage.Repository = (*Repository)(nil)

// SQL Server has no CREATE TABLE IF NOT EXISTS.
var dialect = ddl.Dialect{
	Name:  "mssql ddl",
	Quote: msIdent,
	Guard: func(q string) string {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\n", strings.ReplaceAll(q, "'", "''"))
	},
}

// MapType maps a script output field to a SQL Server column type.
func MapType(m row.Meta) string {
	switch m.Type {
	case row.Integer:
		return "BIGINT"
	case row.Number:
		if m.Length > 0 && m.Precision > 0 {
			return fmt.Sprintf("DECIMAL(%d, %d)", m.Length, m.Precision)
		}
		return "FLOAT"
	case row.Boolean:
		return "BIT"
	case row.Date:
		return "DATETIME2"
	default:
		if m.Length > 0 && m.Length <= 4000 {
			return fmt.Sprintf("NVARCHAR(%d)", m.Length)
		}
		return "NVARCHAR(MAX)"
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
	storage.Register("mssql", storage.Backend{Open: openRepository, DDL: dialect, MapType: MapType})
}
