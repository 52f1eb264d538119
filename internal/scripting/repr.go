package scripting

import (
	"github.com/Shopify/go-lua"
)

// representation decides how row values appear inside the script scope.
//
// plain binds native script values; writing a new value to a field name is
// only visible through the declared output fields. legacy binds each used
// field as a mutable box (field:setValue(x)), and every box is written back
// into its position after the output fields are placed.
type representation interface {
	// writeField binds v under name for the input position pos.
	writeField(l *lua.State, pos int, name string, v Value)
	// readField decodes the current scope value of name.
	readField(l *lua.State, name string) (Value, error)
	// wasMutated returns the value to write back into pos, if any.
	wasMutated(pos int) (Value, bool)
}

func newRepresentation(compatible bool) representation {
	if compatible {
		return &legacyRepr{boxes: map[int]*box{}}
	}
	return plainRepr{}
}

type plainRepr struct{}

func (plainRepr) writeField(l *lua.State, _ int, name string, v Value) {
	pushValue(l, v)
	l.SetGlobal(name)
}

func (plainRepr) readField(l *lua.State, name string) (Value, error) {
	return readGlobal(l, name)
}

func (plainRepr) wasMutated(int) (Value, bool) { return Value{}, false }

// box is a legacy field value. Scripts mutate it in place.
type box struct {
	v       Value
	mutated bool
}

type legacyRepr struct {
	boxes map[int]*box
}

func (r *legacyRepr) writeField(l *lua.State, pos int, name string, v Value) {
	b, ok := r.boxes[pos]
	if !ok {
		b = &box{}
		r.boxes[pos] = b
	}
	b.v, b.mutated = v, false
	l.PushUserData(b)
	lua.SetMetaTableNamed(l, boxMeta)
	l.SetGlobal(name)
}

func (r *legacyRepr) readField(l *lua.State, name string) (Value, error) {
	return readGlobal(l, name)
}

// wasMutated reports every bound position. The flag tells the caller whether
// the script touched the box during this row.
func (r *legacyRepr) wasMutated(pos int) (Value, bool) {
	b, ok := r.boxes[pos]
	if !ok {
		return Value{}, false
	}
	return b.v, true
}

func (r *legacyRepr) touched(pos int) bool {
	b, ok := r.boxes[pos]
	return ok && b.mutated
}

func toBox(l *lua.State, idx int) *box {
	b, ok := lua.CheckUserData(l, idx, boxMeta).(*box)
	if !ok {
		lua.ArgumentError(l, idx, "field value expected")
	}
	return b
}

func registerBoxMeta(l *lua.State) {
	lua.NewMetaTable(l, boxMeta)
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "__tostring", Function: func(l *lua.State) int {
			l.PushString(toBox(l, 1).v.String())
			return 1
		}},
		{Name: "__concat", Function: func(l *lua.State) int {
			a, _ := decodeValue(l, 1)
			b, _ := decodeValue(l, 2)
			l.PushString(a.String() + b.String())
			return 1
		}},
	}, 0)
	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "getValue", Function: func(l *lua.State) int {
			pushValue(l, toBox(l, 1).v)
			return 1
		}},
		{Name: "getString", Function: func(l *lua.State) int {
			l.PushString(toBox(l, 1).v.String())
			return 1
		}},
		{Name: "getNumber", Function: func(l *lua.State) int {
			f, err := toFloat(toBox(l, 1).v)
			if err != nil {
				lua.Errorf(l, "%s", err.Error())
			}
			l.PushNumber(f)
			return 1
		}},
		{Name: "isNull", Function: func(l *lua.State) int {
			l.PushBoolean(toBox(l, 1).v.IsNullish())
			return 1
		}},
		{Name: "setValue", Function: func(l *lua.State) int {
			b := toBox(l, 1)
			v, err := decodeValue(l, 2)
			if err != nil {
				lua.Errorf(l, "%s", err.Error())
			}
			if v.Kind == Undefined {
				v = NullValue()
			}
			b.v, b.mutated = v, true
			return 0
		}},
		{Name: "setNull", Function: func(l *lua.State) int {
			b := toBox(l, 1)
			b.v, b.mutated = NullValue(), true
			return 0
		}},
	}, 0)
	l.SetField(-2, "__index")
	l.Pop(1)
}
