package scripting

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Shopify/go-lua"

	"scriptetl/internal/scriptlib"
)

const (
	// DefaultOptimization applies when the configured level is empty.
	DefaultOptimization = 9

	luaGlobalTableIndex = -2
	luaGlobalTableName  = "_G"

	dateMeta = "scriptetl.date"
	boxMeta  = "scriptetl.box"
	nullMeta = "scriptetl.null"
	stepMeta = "scriptetl.step"

	nullRegistryKey  = "scriptetl.null.value"
	auxRegistryKey   = "scriptetl.aux"
	chunkRegistryKey = "scriptetl.chunk."
)

var (
	ErrLuaLoad      = errors.New("lua load error")
	ErrLuaExecution = errors.New("lua execution error")
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// nullMarker is the userdata behind the script global null.
type nullMarker struct{}

// ParseOptimization validates an optimization level: "" means the default,
// anything else must be an integer in 0..9. Level 0 loads scripts straight
// from source; higher levels precompile to bytecode first.
func ParseOptimization(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultOptimization, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 9 {
		return 0, fmt.Errorf("%w %q: want an integer between 0 and 9", ErrOptimization, s)
	}
	return n, nil
}

func newSandbox() *lua.State {
	l := lua.NewState()
	lua.OpenLibraries(l)
	l.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		l.PushNil()
		l.SetField(luaGlobalTableIndex, name)
	}
	l.Pop(1)
	return l
}

// compileChunk leaves the compiled chunk on top of l's stack. With a positive
// level the source is compiled in a scratch state and moved over as bytecode.
func compileChunk(l *lua.State, name, src string, level int) error {
	if level == 0 {
		if err := lua.LoadBuffer(l, src, name, "t"); err != nil {
			return fmt.Errorf("%w: %s: %s", ErrLuaLoad, name, loadMessage(l, err))
		}
		return nil
	}

	scratch := lua.NewState()
	if err := lua.LoadBuffer(scratch, src, name, "t"); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrLuaLoad, name, loadMessage(scratch, err))
	}
	var buf bytes.Buffer
	if err := scratch.Dump(&buf); err != nil {
		return fmt.Errorf("%w: %s: dump: %v", ErrLuaLoad, name, err)
	}
	if err := l.Load(bytes.NewReader(buf.Bytes()), name, "b"); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrLuaLoad, name, loadMessage(l, err))
	}
	return nil
}

func loadMessage(l *lua.State, err error) string {
	if l.Top() > 0 && l.IsString(-1) {
		msg, _ := l.ToString(-1)
		l.Pop(1)
		return msg
	}
	return err.Error()
}

// protectedRun calls the chunk stored under key with no arguments. Go panics
// raised by bindings are turned into errors as well.
func protectedRun(l *lua.State, key string) (err error) {
	top := l.Top()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrLuaExecution, r)
		}
		l.SetTop(top)
	}()

	l.Field(lua.RegistryIndex, chunkRegistryKey+key)
	if !l.IsFunction(-1) {
		return fmt.Errorf("%w: chunk %q not loaded", ErrLuaExecution, key)
	}
	if perr := l.ProtectedCall(0, 0, 0); perr != nil {
		return fmt.Errorf("%w: %s", ErrLuaExecution, loadMessage(l, perr))
	}
	return nil
}

// storeChunk pops the function on top of the stack into the registry.
func storeChunk(l *lua.State, key string) {
	l.SetField(lua.RegistryIndex, chunkRegistryKey+key)
}

func registerMetatables(l *lua.State) {
	lua.NewMetaTable(l, dateMeta)
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "__tostring", Function: func(l *lua.State) int {
			l.PushString(toDate(l, 1).Format(DateLayout))
			return 1
		}},
		{Name: "__eq", Function: func(l *lua.State) int {
			l.PushBoolean(toDate(l, 1).Equal(toDate(l, 2)))
			return 1
		}},
		{Name: "__lt", Function: func(l *lua.State) int {
			l.PushBoolean(toDate(l, 1).Before(toDate(l, 2)))
			return 1
		}},
		{Name: "__le", Function: func(l *lua.State) int {
			l.PushBoolean(!toDate(l, 1).After(toDate(l, 2)))
			return 1
		}},
	}, 0)
	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "getTime", Function: func(l *lua.State) int {
			l.PushNumber(float64(toDate(l, 1).UnixMilli()))
			return 1
		}},
		{Name: "format", Function: func(l *lua.State) int {
			s, err := scriptlib.Date2Str(toDate(l, 1), lua.OptString(l, 2, ""))
			if err != nil {
				lua.Errorf(l, "%s", err.Error())
			}
			l.PushString(s)
			return 1
		}},
	}, 0)
	l.SetField(-2, "__index")
	l.Pop(1)

	lua.NewMetaTable(l, nullMeta)
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "__tostring", Function: func(l *lua.State) int {
			l.PushString("null")
			return 1
		}},
	}, 0)
	l.Pop(1)

	l.PushUserData(nullMarker{})
	lua.SetMetaTableNamed(l, nullMeta)
	l.PushValue(-1)
	l.SetField(lua.RegistryIndex, nullRegistryKey)
	l.SetGlobal(nullVar)

	registerBoxMeta(l)
}

func toDate(l *lua.State, idx int) time.Time {
	if t, ok := l.ToUserData(idx).(time.Time); ok {
		return t
	}
	v, err := decodeValue(l, idx)
	if err == nil && v.Kind == Date {
		return v.t
	}
	lua.ArgumentError(l, idx, "date expected")
	return time.Time{}
}

func pushNull(l *lua.State) {
	l.Field(lua.RegistryIndex, nullRegistryKey)
}

// pushValue encodes v as a plain script value. Integers become Lua numbers.
func pushValue(l *lua.State, v Value) {
	switch v.Kind {
	case Number:
		l.PushNumber(v.num)
	case Integer:
		l.PushNumber(float64(v.i))
	case Text:
		l.PushString(v.s)
	case Boolean:
		l.PushBoolean(v.b)
	case Date:
		l.PushUserData(v.t)
		lua.SetMetaTableNamed(l, dateMeta)
	case Null:
		pushNull(l)
	default:
		l.PushNil()
	}
}

// decodeValue converts the script value at idx into the tagged Value set.
// Tables and functions have no row representation and are rejected.
func decodeValue(l *lua.State, idx int) (Value, error) {
	switch l.TypeOf(idx) {
	case lua.TypeNil, lua.TypeNone:
		return Value{}, nil
	case lua.TypeBoolean:
		return BooleanValue(l.ToBoolean(idx)), nil
	case lua.TypeNumber:
		n, _ := l.ToNumber(idx)
		return NumberValue(n), nil
	case lua.TypeString:
		s, _ := l.ToString(idx)
		return TextValue(s), nil
	case lua.TypeUserData:
		switch u := l.ToUserData(idx).(type) {
		case time.Time:
			return DateValue(u), nil
		case nullMarker:
			return NullValue(), nil
		case *box:
			return u.v, nil
		}
	}
	return Value{}, fmt.Errorf("unsupported script value of type %s", lua.TypeNameOf(l, idx))
}

func readGlobal(l *lua.State, name string) (Value, error) {
	l.Global(name)
	v, err := decodeValue(l, -1)
	l.Pop(1)
	return v, err
}
