// Package ddl defines a small, backend-agnostic model for SQL DDL and renders
// CREATE TABLE statements from it. Backends supply a Dialect for identifier
// quoting and existence guards; the column model stays shared.
package ddl

import (
	"fmt"
	"strings"
)

// Column is one column of a table the loader creates.
type Column struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
}

// TableDef is a dotted table name and its ordered columns.
type TableDef struct {
	FQN     string
	Columns []Column
}

// Dialect describes the few places where CREATE TABLE differs per backend.
type Dialect struct {
	// Name prefixes error messages, e.g. "sqlite ddl".
	Name string
	// Quote quotes one identifier segment. Nil emits identifiers verbatim.
	Quote func(string) string
	// IfNotExists renders CREATE TABLE IF NOT EXISTS.
	IfNotExists bool
	// Guard, when set, returns a prefix placed before CREATE TABLE for
	// dialects without IF NOT EXISTS. It receives the quoted FQN.
	Guard func(quotedFQN string) string
}

// Generic emits identifiers verbatim and no dialect specific clauses.
var Generic = Dialect{Name: "ddl"}

// BuildCreateTableSQL renders t with the Generic dialect.
func BuildCreateTableSQL(t TableDef) (string, error) { return Generic.Build(t) }

// Build renders a CREATE TABLE statement of the form
//
//	CREATE TABLE <fqn> (
//	  <col> <type> [NOT NULL],
//	  ...,
//	  [PRIMARY KEY (<pk-cols>)]
//	);
//
// Column names and types are trimmed.
func (d Dialect) Build(t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("%s: table FQN must not be empty", d.Name)
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s: at least one column is required", d.Name)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("%s: column with empty name in table %s", d.Name, fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("%s: column %s missing SQLType", d.Name, name)
		}

		var sb strings.Builder
		sb.WriteString(d.ident(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, d.ident(name))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	qfqn := d.FQN(fqn)
	head := "CREATE TABLE "
	if d.IfNotExists {
		head = "CREATE TABLE IF NOT EXISTS "
	}
	prefix := ""
	if d.Guard != nil {
		prefix = d.Guard(qfqn)
	}

	return fmt.Sprintf("%s%s%s (\n  %s\n);", prefix, head, qfqn, strings.Join(cols, ",\n  ")), nil
}

// FQN quotes every dot separated segment of name.
func (d Dialect) FQN(name string) string {
	if d.Quote == nil {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.Quote(p)
	}
	return strings.Join(parts, ".")
}

func (d Dialect) ident(name string) string {
	if d.Quote == nil {
		return name
	}
	return d.Quote(name)
}
