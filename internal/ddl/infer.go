package ddl

import (
	"fmt"

	"scriptetl/internal/row"
)

// TypeMapper maps a field's metadata to a backend column type.
type TypeMapper func(m row.Meta) string

// FromShape derives a table definition from the row shape that reaches the
// loader. Columns selects and orders the fields (empty means every field).
// Key columns become the primary key and are NOT NULL; all other columns
// are nullable.
func FromShape(table string, shape *row.Shape, columns, keyColumns []string, mapType TypeMapper) (TableDef, error) {
	if table == "" {
		return TableDef{}, fmt.Errorf("ddl: missing table")
	}
	if shape.Len() == 0 {
		return TableDef{}, fmt.Errorf("ddl: empty row shape")
	}
	if len(columns) == 0 {
		columns = shape.Names()
	}
	keys := make(map[string]struct{}, len(keyColumns))
	for _, k := range keyColumns {
		keys[k] = struct{}{}
	}

	defs := make([]Column, 0, len(columns))
	for _, name := range columns {
		ix := shape.IndexOf(name)
		if ix < 0 {
			return TableDef{}, fmt.Errorf("ddl: column %q is not produced by the pipeline", name)
		}
		_, pk := keys[name]
		defs = append(defs, Column{
			Name:       name,
			SQLType:    mapType(shape.Field(ix)),
			Nullable:   !pk,
			PrimaryKey: pk,
		})
	}
	return TableDef{FQN: table, Columns: defs}, nil
}
