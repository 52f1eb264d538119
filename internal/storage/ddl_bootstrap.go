package storage

import (
	"context"
	"fmt"

	"scriptetl/internal/ddl"
	"scriptetl/internal/row"
)

// TableSpec describes the table a run writes into.
type TableSpec struct {
	Table      string
	Shape      *row.Shape // shape of the rows reaching the loader
	Columns    []string   // empty means every field of Shape
	KeyColumns []string
}

// CreateTableSQL renders the CREATE TABLE for spec in the dialect of kind.
func CreateTableSQL(kind string, spec TableSpec) (string, error) {
	b, ok := lookup(kind)
	if !ok || b.MapType == nil {
		return "", fmt.Errorf("no DDL dialect registered for storage.kind=%q", kind)
	}
	td, err := ddl.FromShape(spec.Table, spec.Shape, spec.Columns, spec.KeyColumns, b.MapType)
	if err != nil {
		return "", fmt.Errorf("infer table definition: %w", err)
	}
	return b.DDL.Build(td)
}

// EnsureTable creates the target table unless it exists.
func EnsureTable(ctx context.Context, kind string, repo Repository, spec TableSpec) error {
	stmt, err := CreateTableSQL(kind, spec)
	if err != nil {
		return err
	}
	if err := repo.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("apply DDL: %w", err)
	}
	return nil
}
