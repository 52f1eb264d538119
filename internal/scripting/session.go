package scripting

import (
	"fmt"
	"strings"

	"github.com/Shopify/go-lua"

	"scriptetl/internal/row"
)

// Session is the per-worker interpreter scope with its compiled scripts and
// the shapes computed from the first input row.
type Session struct {
	l *lua.State

	inputShape  *row.Shape
	outputShape *row.Shape

	// used lists input positions whose names occur in the transform source.
	used []int
	// targets holds the output position of each FieldSpec.
	targets []int
	// replaced marks output positions owned by a replace FieldSpec.
	replaced map[int]bool

	hasStart bool
	hasEnd   bool
	repr     representation
}

// OutputShape is the shape of every row the session emits.
func (s *Session) OutputShape() *row.Shape { return s.outputShape }

// UsedFields returns the input positions bound into scope for each row.
func (s *Session) UsedFields() []int { return s.used }

// buildOutputShape clones in and applies fields in order. A replace field is
// looked up by Name, then by Rename; the position takes the field's type and
// output name. Other fields are appended.
func buildOutputShape(in *row.Shape, fields []FieldSpec) (*row.Shape, []int, error) {
	out := in.Clone()
	targets := make([]int, len(fields))
	for i, f := range fields {
		meta := row.Meta{
			Name:      f.OutputName(),
			Type:      f.Type,
			Length:    f.Length,
			Precision: f.Precision,
		}
		if !f.Replace {
			targets[i] = out.Len()
			out.Append(meta)
			continue
		}

		idx := in.IndexOf(f.Name)
		if idx < 0 {
			idx = in.IndexOf(f.Rename)
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("%w: %q", ErrReplaceNotFound, f.OutputName())
		}
		out.Set(idx, meta)
		targets[i] = idx
	}
	return out, targets, nil
}

// usedFields reports the input positions whose name appears anywhere in src,
// ignoring case. Comments and string literals count too, so a field may be
// bound without being read; a field is never missed.
func usedFields(in *row.Shape, src string) []int {
	lower := strings.ToLower(src)
	var used []int
	for i := 0; i < in.Len(); i++ {
		name := in.Field(i).Name
		if name != "" && strings.Contains(lower, strings.ToLower(name)) {
			used = append(used, i)
		}
	}
	return used
}

func checkReserved(shapes ...*row.Shape) error {
	for _, sh := range shapes {
		for _, name := range sh.Names() {
			if isReserved(name) {
				return fmt.Errorf("%w: %q", ErrReservedName, name)
			}
		}
	}
	return nil
}

// checkShadowing rejects field names that would overwrite a Lua builtin or a
// library function once bound as a global, e.g. "string", "type" or "trim".
// It must run after seed and before any script.
func checkShadowing(l *lua.State, fields []FieldSpec, shapes ...*row.Shape) error {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	for _, sh := range shapes {
		names = append(names, sh.Names()...)
	}
	for _, name := range names {
		l.Global(name)
		taken := !l.IsNil(-1)
		l.Pop(1)
		if taken {
			return fmt.Errorf("%w: %q shadows a builtin", ErrReservedName, name)
		}
	}
	return nil
}

// newSession runs the one-time setup for w against the first row's shape.
func (w *Worker) newSession(in *row.Shape) (*Session, error) {
	if in == nil {
		return nil, fmt.Errorf("input row has no shape")
	}
	set := w.step.scripts
	if set.Transform == nil {
		return nil, ErrNoTransform
	}

	out, targets, err := buildOutputShape(in, w.step.cfg.Fields)
	if err != nil {
		return nil, err
	}
	if err := checkReserved(in, out); err != nil {
		return nil, err
	}

	s := &Session{
		inputShape:  in,
		outputShape: out,
		used:        usedFields(in, set.Transform.Source),
		targets:     targets,
		replaced:    map[int]bool{},
		hasStart:    set.Start != nil,
		hasEnd:      set.End != nil,
		repr:        newRepresentation(w.step.cfg.Compatible),
	}
	for i, f := range w.step.cfg.Fields {
		if f.Replace {
			s.replaced[targets[i]] = true
		}
	}

	l := newSandbox()
	s.l = l
	if err := w.compileAll(l, set); err != nil {
		return nil, err
	}
	w.seed(l, in)
	if err := checkShadowing(l, w.step.cfg.Fields, in, out); err != nil {
		return nil, err
	}

	if s.hasStart {
		if err := protectedRun(l, Start.String()); err != nil {
			return nil, fmt.Errorf("start script: %w", err)
		}
	}
	return s, nil
}

// compileAll compiles every active script exactly once and stores the chunks
// in the registry of l.
func (w *Worker) compileAll(l *lua.State, set ScriptSet) error {
	level := w.step.level
	for _, d := range []*Definition{set.Transform, set.Start, set.End} {
		if d == nil {
			continue
		}
		if err := compileChunk(l, chunkName(d), d.Source, level); err != nil {
			return err
		}
		w.compiles.Add(1)
		storeChunk(l, d.Role.String())
	}

	l.NewTable()
	for _, d := range set.Aux {
		if err := compileChunk(l, chunkName(&d), d.Source, level); err != nil {
			l.Pop(1)
			return err
		}
		w.compiles.Add(1)
		l.SetField(-2, d.Name)
	}
	l.SetField(lua.RegistryIndex, auxRegistryKey)
	return nil
}

func chunkName(d *Definition) string {
	if d.Name != "" {
		return d.Name
	}
	return d.Role.String()
}

// seed installs metatables, constants, library functions and the reserved
// globals that do not change per row.
func (w *Worker) seed(l *lua.State, in *row.Shape) {
	registerMetatables(l)
	for _, f := range w.library() {
		l.Register(f.Name, f.Function)
	}
	for name, sig := range signalConstants {
		l.PushNumber(float64(sig))
		l.SetGlobal(name)
	}
	l.PushString(w.step.cfg.Pipeline)
	l.SetGlobal(pipelineNameVar)
	w.registerStepHandle(l)

	l.CreateTable(in.Len(), 0)
	for i, m := range in.Fields() {
		l.CreateTable(0, 4)
		l.PushString(m.Name)
		l.SetField(-2, "name")
		l.PushString(m.Type.String())
		l.SetField(-2, "type")
		l.PushNumber(float64(m.Length))
		l.SetField(-2, "length")
		l.PushNumber(float64(m.Precision))
		l.SetField(-2, "precision")
		l.RawSetInt(-2, i+1)
	}
	l.SetGlobal(rowMetaVar)
}

// bind publishes the used fields and the raw row for one transform run.
func (s *Session) bind(r *row.Row) {
	l := s.l
	for _, pos := range s.used {
		s.repr.writeField(l, pos, s.inputShape.Field(pos).Name, ValueOf(r.V[pos]))
	}
	l.CreateTable(len(r.V), 0)
	for i, v := range r.V {
		pushValue(l, ValueOf(v))
		l.RawSetInt(-2, i+1)
	}
	l.SetGlobal(rowVar)
}

// signal reads trans_Status. Missing or unknown values continue.
func (s *Session) signal() Signal {
	s.l.Global(statusVar)
	defer s.l.Pop(1)
	if s.l.TypeOf(-1) != lua.TypeNumber {
		return Continue
	}
	n, _ := s.l.ToNumber(-1)
	return signalOf(n)
}

// assemble builds the output row: a copy of in widened to the output shape,
// each FieldSpec value coerced into its position, then in legacy mode the
// bound field boxes written back.
func (s *Session) assemble(in *row.Row, fields []FieldSpec) (*row.Row, error) {
	out := row.Get(s.outputShape.Len())
	out.Shape = s.outputShape
	out.Line = in.Line
	copy(out.V, in.V)

	for i, f := range fields {
		v, err := s.repr.readField(s.l, f.Name)
		if err != nil {
			out.Free()
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		pos := s.targets[i]
		cell, err := Coerce(v, s.outputShape.Field(pos).Type)
		if err != nil {
			out.Free()
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		out.V[pos] = cell
	}

	lr, legacy := s.repr.(*legacyRepr)
	for _, pos := range s.used {
		v, ok := s.repr.wasMutated(pos)
		if !ok {
			continue
		}
		if s.replaced[pos] && !(legacy && lr.touched(pos)) {
			continue
		}
		cell, err := Coerce(v, s.outputShape.Field(pos).Type)
		if err != nil {
			out.Free()
			return nil, fmt.Errorf("field %q: %w", s.outputShape.Field(pos).Name, err)
		}
		out.V[pos] = cell
	}
	return out, nil
}

// close runs the end script and drops the interpreter. Safe on a nil or
// already closed session.
func (s *Session) close() (err error) {
	if s == nil || s.l == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil && err == nil {
			err = fmt.Errorf("%w: %v", ErrLuaExecution, r)
		}
		s.l = nil
	}()
	if s.hasEnd {
		if err := protectedRun(s.l, End.String()); err != nil {
			return fmt.Errorf("end script: %w", err)
		}
	}
	return nil
}
