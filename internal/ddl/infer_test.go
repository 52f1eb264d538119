package ddl

import (
	"strings"
	"testing"

	"scriptetl/internal/row"
)

func testMapper(m row.Meta) string {
	switch m.Type {
	case row.Integer:
		return "BIGINT"
	case row.Date:
		return "DATE"
	default:
		return "TEXT"
	}
}

func TestFromShape(t *testing.T) {
	t.Parallel()

	shape := row.NewShape(
		row.Meta{Name: "id", Type: row.Integer},
		row.Meta{Name: "name", Type: row.String},
		row.Meta{Name: "born", Type: row.Date},
	)

	td, err := FromShape("people", shape, nil, []string{"id"}, testMapper)
	if err != nil {
		t.Fatalf("FromShape() error = %v", err)
	}
	if td.FQN != "people" || len(td.Columns) != 3 {
		t.Fatalf("FromShape() = %+v", td)
	}
	if c := td.Columns[0]; c.Name != "id" || c.SQLType != "BIGINT" || c.Nullable || !c.PrimaryKey {
		t.Fatalf("id column = %+v", c)
	}
	if c := td.Columns[2]; c.SQLType != "DATE" || !c.Nullable {
		t.Fatalf("born column = %+v", c)
	}

	td, err = FromShape("people", shape, []string{"born", "id"}, nil, testMapper)
	if err != nil {
		t.Fatalf("FromShape(columns) error = %v", err)
	}
	if td.Columns[0].Name != "born" || td.Columns[1].Name != "id" || td.Columns[1].PrimaryKey {
		t.Fatalf("projected columns = %+v", td.Columns)
	}
}

func TestFromShape_Errors(t *testing.T) {
	t.Parallel()

	shape := row.NewShape(row.Meta{Name: "id", Type: row.Integer})
	for _, tc := range []struct {
		name  string
		table string
		shape *row.Shape
		cols  []string
		want  string
	}{
		{"no table", "", shape, nil, "missing table"},
		{"no shape", "t", nil, nil, "empty row shape"},
		{"unknown column", "t", shape, []string{"nope"}, `"nope"`},
	} {
		if _, err := FromShape(tc.table, tc.shape, tc.cols, nil, testMapper); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error = %v, want containing %q", tc.name, err, tc.want)
		}
	}
}
