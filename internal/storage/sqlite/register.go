package sqlite

import (
	"context"
	"strings"

	"scriptetl/internal/ddl"
	"scriptetl/internal/row"
	"scriptetl/internal/storage"
)

// open is swapped by tests.
var open = Open

var _ storage.Repository = (*Repository)(nil)

var dialect = ddl.Dialect{Name: "sqlite ddl", Quote: quoteIdent, IfNotExists: true}

func quoteIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

// MapType maps a field to a SQLite affinity. Booleans are 0/1 and dates are
// stored as ISO-8601 text by the driver.
func MapType(m row.Meta) string {
	switch m.Type {
	case row.Integer, row.Boolean:
		return "INTEGER"
	case row.Number:
		if m.Precision > 0 {
			return "NUMERIC"
		}
		return "REAL"
	default:
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
	storage.Register("sqlite", storage.Backend{Open: openRepository, DDL: dialect, MapType: MapType})
}
