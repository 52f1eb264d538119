package scripting

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"scriptetl/internal/row"
)

// Role says when a script runs.
type Role int

const (
	// Transform runs once per row. Exactly one is required.
	Transform Role = iota
	// Start runs once, after the session is seeded and before the first row.
	Start
	// End runs once at teardown.
	End
	// Aux is a named fragment that scripts pull in with loadScript(name).
	Aux
)

func (r Role) String() string {
	switch r {
	case Transform:
		return "transform"
	case Start:
		return "start"
	case End:
		return "end"
	case Aux:
		return "aux"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole accepts transform, start, end and aux (or their upper case forms).
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "transform", "":
		return Transform, nil
	case "start":
		return Start, nil
	case "end":
		return End, nil
	case "aux", "auxiliary":
		return Aux, nil
	}
	return 0, fmt.Errorf("unknown script role %q", s)
}

// Definition is one script as configured.
type Definition struct {
	Role   Role
	Name   string
	Source string
}

// ScriptSet is the active definition per role after last-wins resolution.
type ScriptSet struct {
	Transform *Definition
	Start     *Definition
	End       *Definition
	// Aux keeps one fragment per name in first-seen order.
	Aux []Definition
}

// ResolveDefinitions picks the last definition of each role. Aux fragments
// are kept per name, a later fragment replacing an earlier one of the same
// name.
func ResolveDefinitions(defs []Definition) ScriptSet {
	var set ScriptSet
	auxAt := map[string]int{}
	for i := range defs {
		d := defs[i]
		switch d.Role {
		case Transform:
			set.Transform = &d
		case Start:
			set.Start = &d
		case End:
			set.End = &d
		case Aux:
			if j, ok := auxAt[d.Name]; ok {
				set.Aux[j] = d
				continue
			}
			auxAt[d.Name] = len(set.Aux)
			set.Aux = append(set.Aux, d)
		}
	}
	return set
}

// Fingerprint hashes every active script, so logs and metrics can tell which
// script revision produced a run.
func (s ScriptSet) Fingerprint() uint64 {
	h := xxh3.New()
	write := func(d *Definition) {
		if d == nil {
			return
		}
		_, _ = h.WriteString(d.Role.String())
		_, _ = h.WriteString(d.Name)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(d.Source)
		_, _ = h.WriteString("\x00")
	}
	write(s.Transform)
	write(s.Start)
	write(s.End)
	for i := range s.Aux {
		write(&s.Aux[i])
	}
	return h.Sum64()
}

// FieldSpec declares one output value read back from the script scope.
type FieldSpec struct {
	// Name is the script variable holding the value.
	Name string
	// Rename is the output field name when not empty.
	Rename    string
	Type      row.Type
	Length    int
	Precision int
	// Replace overwrites an existing input field (matched by Name, then
	// Rename) instead of appending.
	Replace bool
}

// OutputName is the name the field carries in the output shape.
func (f FieldSpec) OutputName() string {
	if f.Rename != "" {
		return f.Rename
	}
	return f.Name
}
