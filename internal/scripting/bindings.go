package scripting

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Shopify/go-lua"

	"scriptetl/internal/logging"
	"scriptetl/internal/scriptlib"
	"scriptetl/internal/variables"
)

// nullResult is what a library function returns when a required argument is
// the script null.
type nullResult int

const (
	nullAsNull nullResult = iota
	nullAsNaN
)

// guard handles undefined and null among the first n arguments. Undefined
// comes back unchanged (nil); null yields the function's null result. It
// reports whether a result was pushed.
func guard(l *lua.State, n int, res nullResult) bool {
	for i := 1; i <= n; i++ {
		v, err := decodeValue(l, i)
		if err != nil {
			continue
		}
		switch v.Kind {
		case Undefined:
			l.PushNil()
			return true
		case Null:
			if res == nullAsNaN {
				l.PushNumber(math.NaN())
			} else {
				pushNull(l)
			}
			return true
		}
	}
	return false
}

func raise(l *lua.State, err error) {
	lua.Errorf(l, "%s", err.Error())
}

func argValue(l *lua.State, i int) Value {
	v, err := decodeValue(l, i)
	if err != nil {
		lua.ArgumentError(l, i, err.Error())
	}
	return v
}

func argString(l *lua.State, i int) string {
	return argValue(l, i).String()
}

func optString(l *lua.State, i int, def string) string {
	if l.IsNoneOrNil(i) {
		return def
	}
	return argString(l, i)
}

func argInt(l *lua.State, i int) int {
	f, err := toFloat(argValue(l, i))
	if err != nil {
		lua.ArgumentError(l, i, "number expected")
	}
	return int(f)
}

func (w *Worker) argDate(l *lua.State, i int) time.Time {
	v := argValue(l, i)
	switch v.Kind {
	case Date:
		return v.t
	case Number:
		return time.UnixMilli(int64(v.num)).In(w.step.location)
	case Integer:
		return time.UnixMilli(v.i).In(w.step.location)
	case Text:
		t, err := scriptlib.Str2Date(v.s, "", w.step.location)
		if err == nil {
			return t
		}
	}
	lua.ArgumentError(l, i, "date expected")
	return time.Time{}
}

func pushDate(l *lua.State, t time.Time) { pushValue(l, DateValue(t)) }

// predicate wraps a string test; null and undefined are false.
func predicate(test func(string) bool) lua.Function {
	return func(l *lua.State) int {
		v := argValue(l, 1)
		l.PushBoolean(!v.IsNullish() && test(v.String()))
		return 1
	}
}

// stringFunc wraps a string to string helper with the null rules.
func stringFunc(fn func(string) string) lua.Function {
	return func(l *lua.State) int {
		if guard(l, 1, nullAsNull) {
			return 1
		}
		l.PushString(fn(argString(l, 1)))
		return 1
	}
}

// library returns the coercion and environment functions bound into every
// session scope.
func (w *Worker) library() []lua.RegistryFunction {
	return []lua.RegistryFunction{
		// dates
		{Name: "dateDiff", Function: func(l *lua.State) int {
			if guard(l, 3, nullAsNaN) {
				return 1
			}
			n, err := scriptlib.DateDiff(w.argDate(l, 1), w.argDate(l, 2), argString(l, 3), w.step.cfg.CompensateTZ)
			if err != nil {
				raise(l, err)
			}
			l.PushNumber(float64(n))
			return 1
		}},
		{Name: "dateAdd", Function: func(l *lua.State) int {
			if guard(l, 3, nullAsNull) {
				return 1
			}
			d, err := scriptlib.DateAdd(w.argDate(l, 1), argString(l, 2), argInt(l, 3))
			if err != nil {
				raise(l, err)
			}
			pushDate(l, d)
			return 1
		}},
		{Name: "getFiscalDate", Function: func(l *lua.State) int {
			if guard(l, 2, nullAsNull) {
				return 1
			}
			d, err := scriptlib.FiscalDate(w.argDate(l, 1), argString(l, 2))
			if err != nil {
				raise(l, err)
			}
			pushDate(l, d)
			return 1
		}},
		{Name: "quarter", Function: func(l *lua.State) int {
			if guard(l, 1, nullAsNaN) {
				return 1
			}
			l.PushNumber(float64(scriptlib.Quarter(w.argDate(l, 1))))
			return 1
		}},
		{Name: "week", Function: func(l *lua.State) int {
			if guard(l, 1, nullAsNaN) {
				return 1
			}
			l.PushNumber(float64(scriptlib.Week(w.argDate(l, 1))))
			return 1
		}},
		{Name: "getDayNumber", Function: func(l *lua.State) int {
			if guard(l, 2, nullAsNaN) {
				return 1
			}
			n, err := scriptlib.DayNumber(w.argDate(l, 1), argString(l, 2))
			if err != nil {
				raise(l, err)
			}
			l.PushNumber(float64(n))
			return 1
		}},
		{Name: "isWorkingDay", Function: func(l *lua.State) int {
			if guard(l, 1, nullAsNull) {
				return 1
			}
			l.PushBoolean(scriptlib.IsWorkingDay(w.argDate(l, 1)))
			return 1
		}},
		{Name: "getNextWorkingDay", Function: func(l *lua.State) int {
			if guard(l, 1, nullAsNull) {
				return 1
			}
			pushDate(l, scriptlib.NextWorkingDay(w.argDate(l, 1)))
			return 1
		}},
		{Name: "truncDate", Function: func(l *lua.State) int {
			if guard(l, 2, nullAsNull) {
				return 1
			}
			d, err := scriptlib.TruncDate(w.argDate(l, 1), argInt(l, 2))
			if err != nil {
				raise(l, err)
			}
			pushDate(l, d)
			return 1
		}},
		{Name: "str2date", Function: func(l *lua.State) int {
			if guard(l, 1, nullAsNull) {
				return 1
			}
			d, err := scriptlib.Str2Date(argString(l, 1), optString(l, 2, ""), w.step.location)
			if err != nil {
				raise(l, err)
			}
			pushDate(l, d)
			return 1
		}},
		{Name: "date2str", Function: func(l *lua.State) int {
			if guard(l, 1, nullAsNull) {
				return 1
			}
			s, err := scriptlib.Date2Str(w.argDate(l, 1), optString(l, 2, ""))
			if err != nil {
				raise(l, err)
			}
			l.PushString(s)
			return 1
		}},
		{Name: "isDate", Function: func(l *lua.State) int {
			v := argValue(l, 1)
			l.PushBoolean(!v.IsNullish() && scriptlib.IsDate(v.String(), optString(l, 2, "")))
			return 1
		}},
		{Name: "now", Function: func(l *lua.State) int {
			pushDate(l, w.step.now())
			return 1
		}},

		// strings
		{Name: "lpad", Function: func(l *lua.State) int {
			if guard(l, 3, nullAsNull) {
				return 1
			}
			l.PushString(scriptlib.Lpad(argString(l, 1), argString(l, 2), argInt(l, 3)))
			return 1
		}},
		{Name: "rpad", Function: func(l *lua.State) int {
			if guard(l, 3, nullAsNull) {
				return 1
			}
			l.PushString(scriptlib.Rpad(argString(l, 1), argString(l, 2), argInt(l, 3)))
			return 1
		}},
		{Name: "fillString", Function: func(l *lua.State) int {
			if guard(l, 2, nullAsNull) {
				return 1
			}
			l.PushString(scriptlib.FillString(argString(l, 1), argInt(l, 2)))
			return 1
		}},
		{Name: "substr", Function: func(l *lua.State) int {
			if guard(l, 2, nullAsNull) {
				return 1
			}
			var length []int
			if !l.IsNoneOrNil(3) {
				length = append(length, argInt(l, 3))
			}
			s, err := scriptlib.Substr(argString(l, 1), argInt(l, 2), length...)
			if err != nil {
				raise(l, err)
			}
			l.PushString(s)
			return 1
		}},
		{Name: "indexOf", Function: func(l *lua.State) int {
			if guard(l, 2, nullAsNaN) {
				return 1
			}
			from := 0
			if !l.IsNoneOrNil(3) {
				from = argInt(l, 3)
			}
			l.PushNumber(float64(scriptlib.IndexOf(argString(l, 1), argString(l, 2), from)))
			return 1
		}},
		{Name: "replace", Function: func(l *lua.State) int {
			if guard(l, 1, nullAsNull) {
				return 1
			}
			pairs := make([]string, 0, l.Top()-1)
			for i := 2; i <= l.Top(); i++ {
				pairs = append(pairs, argString(l, i))
			}
			s, err := scriptlib.Replace(argString(l, 1), pairs...)
			if err != nil {
				raise(l, err)
			}
			l.PushString(s)
			return 1
		}},
		{Name: "getOcuranceString", Function: func(l *lua.State) int {
			if guard(l, 2, nullAsNaN) {
				return 1
			}
			l.PushNumber(float64(scriptlib.OccurrenceCount(argString(l, 1), argString(l, 2))))
			return 1
		}},
		{Name: "ltrim", Function: stringFunc(scriptlib.Ltrim)},
		{Name: "rtrim", Function: stringFunc(scriptlib.Rtrim)},
		{Name: "trim", Function: stringFunc(scriptlib.Trim)},
		{Name: "upper", Function: stringFunc(strings.ToUpper)},
		{Name: "lower", Function: stringFunc(strings.ToLower)},
		{Name: "initCap", Function: stringFunc(scriptlib.InitCap)},
		{Name: "removeAccents", Function: stringFunc(scriptlib.RemoveAccents)},
		{Name: "removeCRLF", Function: stringFunc(scriptlib.RemoveCRLF)},
		{Name: "removeDigits", Function: stringFunc(scriptlib.RemoveDigits)},
		{Name: "getDigitsOnly", Function: stringFunc(scriptlib.DigitsOnly)},
		{Name: "escapeXml", Function: stringFunc(scriptlib.EscapeXML)},
		{Name: "escapeHtml", Function: stringFunc(scriptlib.EscapeHTML)},
		{Name: "unEscapeHtml", Function: stringFunc(scriptlib.UnescapeHTML)},
		{Name: "escapeSQL", Function: stringFunc(scriptlib.EscapeSQL)},
		{Name: "isEmpty", Function: func(l *lua.State) int {
			v := argValue(l, 1)
			l.PushBoolean(v.IsNullish() || scriptlib.IsEmpty(v.String()))
			return 1
		}},
		{Name: "isMailValid", Function: predicate(scriptlib.IsMailValid)},
		{Name: "isNum", Function: predicate(scriptlib.IsNum)},
		{Name: "LuhnCheck", Function: predicate(scriptlib.LuhnCheck)},

		// numbers and values
		{Name: "str2num", Function: func(l *lua.State) int {
			if guard(l, 1, nullAsNaN) {
				return 1
			}
			f, err := scriptlib.Str2Num(argString(l, 1))
			if err != nil {
				raise(l, err)
			}
			l.PushNumber(f)
			return 1
		}},
		{Name: "num2str", Function: func(l *lua.State) int {
			if guard(l, 1, nullAsNull) {
				return 1
			}
			f, err := toFloat(argValue(l, 1))
			if err != nil {
				lua.ArgumentError(l, 1, "number expected")
			}
			l.PushString(scriptlib.Num2Str(f, optString(l, 2, "")))
			return 1
		}},
		{Name: "decode", Function: func(l *lua.State) int {
			n := l.Top()
			if n == 0 {
				l.PushNil()
				return 1
			}
			args := make([]any, 0, n-1)
			for i := 2; i <= n; i++ {
				args = append(args, argValue(l, i).Go())
			}
			pushValue(l, ValueOf(scriptlib.Decode(argValue(l, 1).Go(), args...)))
			return 1
		}},
		{Name: "getJsonValue", Function: func(l *lua.State) int {
			if guard(l, 2, nullAsNull) {
				return 1
			}
			v, ok := scriptlib.JSONValue(argString(l, 1), argString(l, 2))
			if !ok {
				l.PushNil()
				return 1
			}
			pushValue(l, ValueOf(v))
			return 1
		}},

		// environment
		{Name: "writeToLog", Function: func(l *lua.State) int {
			level, msg := "i", argString(l, 1)
			if l.Top() >= 2 {
				level, msg = argString(l, 1), argString(l, 2)
			}
			w.logger.Log(w.context(), logging.ParseLevel(level), msg)
			return 0
		}},
		{Name: "setVariable", Function: func(l *lua.State) int {
			name := lua.CheckString(l, 1)
			value := argString(l, 2)
			level, err := variables.ParseLevel(lua.CheckString(l, 3))
			if err != nil {
				raise(l, err)
			}
			if err := variables.Propagate(w.context(), w.vars, w.step.store, name, value, level); err != nil {
				raise(l, err)
			}
			return 0
		}},
		{Name: "getVariable", Function: func(l *lua.State) int {
			name := lua.CheckString(l, 1)
			if v, ok := w.vars.Lookup(name); ok {
				l.PushString(v)
				return 1
			}
			if l.IsNoneOrNil(2) {
				l.PushNil()
				return 1
			}
			l.PushString(argString(l, 2))
			return 1
		}},
		{Name: "getEnvironmentVar", Function: func(l *lua.State) int {
			name := lua.CheckString(l, 1)
			if w.step.store == nil {
				l.PushNil()
				return 1
			}
			v, ok, err := w.step.store.Get(w.context(), name)
			if err != nil {
				raise(l, err)
			}
			if !ok {
				l.PushNil()
				return 1
			}
			l.PushString(v)
			return 1
		}},
		{Name: "loadScript", Function: func(l *lua.State) int {
			name := lua.CheckString(l, 1)
			top := l.Top()
			l.Field(lua.RegistryIndex, auxRegistryKey)
			l.Field(-1, name)
			if !l.IsFunction(-1) {
				raise(l, fmt.Errorf("unknown script %q", name))
			}
			l.Remove(-2)
			l.Call(0, lua.MultipleReturns)
			return l.Top() - top
		}},
	}
}

func (w *Worker) context() context.Context {
	if w.ctx != nil {
		return w.ctx
	}
	return context.Background()
}

// registerStepHandle publishes the worker as _step_.
func (w *Worker) registerStepHandle(l *lua.State) {
	self := func(l *lua.State) *Worker {
		wk, ok := lua.CheckUserData(l, 1, stepMeta).(*Worker)
		if !ok {
			lua.ArgumentError(l, 1, "step handle expected")
		}
		return wk
	}

	lua.NewMetaTable(l, stepMeta)
	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "getStepName", Function: func(l *lua.State) int {
			l.PushString(self(l).step.cfg.Name)
			return 1
		}},
		{Name: "getCopy", Function: func(l *lua.State) int {
			l.PushNumber(float64(self(l).copy))
			return 1
		}},
		{Name: "getWorkerId", Function: func(l *lua.State) int {
			l.PushString(self(l).id)
			return 1
		}},
		{Name: "getLinesRead", Function: func(l *lua.State) int {
			l.PushNumber(float64(self(l).read.Load()))
			return 1
		}},
		{Name: "logBasic", Function: func(l *lua.State) int {
			wk := self(l)
			wk.logger.Info(argString(l, 2))
			return 0
		}},
		{Name: "logError", Function: func(l *lua.State) int {
			wk := self(l)
			wk.logger.Error(argString(l, 2))
			return 0
		}},
	}, 0)
	l.SetField(-2, "__index")
	l.Pop(1)

	l.PushUserData(w)
	lua.SetMetaTableNamed(l, stepMeta)
	l.SetGlobal(stepVar)
}
