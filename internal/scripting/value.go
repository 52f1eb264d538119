package scripting

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"scriptetl/internal/row"
)

// Kind tags the closed set of values that cross from the interpreter into
// host code. Every value read out of a script scope is decoded into a Value
// once; coercion switches on Kind only.
type Kind uint8

const (
	Undefined Kind = iota
	Null
	Number
	Integer
	Text
	Date
	Boolean
)

var kindNames = [...]string{
	Undefined: "undefined",
	Null:      "null",
	Number:    "number",
	Integer:   "integer",
	Text:      "text",
	Date:      "date",
	Boolean:   "boolean",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value is a decoded script value. The zero Value is Undefined.
type Value struct {
	Kind Kind
	num  float64
	i    int64
	s    string
	t    time.Time
	b    bool
}

// NumberValue wraps a float.
func NumberValue(f float64) Value { return Value{Kind: Number, num: f} }

// IntegerValue wraps a 64-bit integer.
func IntegerValue(i int64) Value { return Value{Kind: Integer, i: i} }

// TextValue wraps a string.
func TextValue(s string) Value { return Value{Kind: Text, s: s} }

// DateValue wraps a point in time.
func DateValue(t time.Time) Value { return Value{Kind: Date, t: t} }

// BooleanValue wraps a bool.
func BooleanValue(b bool) Value { return Value{Kind: Boolean, b: b} }

// NullValue is an explicit NULL, as opposed to the Undefined zero Value.
func NullValue() Value { return Value{Kind: Null} }

// IsNullish reports Null or Undefined.
func (v Value) IsNullish() bool { return v.Kind == Null || v.Kind == Undefined }

// Float is the payload of a Number; zero for other kinds.
func (v Value) Float() float64 { return v.num }

// Int is the payload of an Integer; zero for other kinds.
func (v Value) Int() int64 { return v.i }

// Str is the payload of a Text; empty for other kinds. Use String for a
// rendering of any kind.
func (v Value) Str() string { return v.s }

// Time is the payload of a Date; the zero time for other kinds.
func (v Value) Time() time.Time { return v.t }

// Bool is the payload of a Boolean; false for other kinds.
func (v Value) Bool() bool { return v.b }

// ValueOf wraps a row cell. Unknown Go types are rendered as text.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return NullValue()
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int64:
		return IntegerValue(t)
	case int:
		return IntegerValue(int64(t))
	case int32:
		return IntegerValue(int64(t))
	case string:
		return TextValue(t)
	case []byte:
		return TextValue(string(t))
	case time.Time:
		return DateValue(t)
	case bool:
		return BooleanValue(t)
	case Value:
		return t
	default:
		return TextValue(fmt.Sprint(t))
	}
}

// Go returns the row-model representation of v.
func (v Value) Go() any {
	switch v.Kind {
	case Number:
		return v.num
	case Integer:
		return v.i
	case Text:
		return v.s
	case Date:
		return v.t
	case Boolean:
		return v.b
	default:
		return nil
	}
}

// DateLayout renders dates converted to strings.
const DateLayout = "2006/01/02 15:04:05.000"

// String extracts a display string from any kind. Null and Undefined are "".
func (v Value) String() string {
	switch v.Kind {
	case Number:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case Integer:
		return strconv.FormatInt(v.i, 10)
	case Text:
		return v.s
	case Date:
		return v.t.Format(DateLayout)
	case Boolean:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// errMismatch reports a value that cannot become the requested output type.
type errMismatch struct {
	from Kind
	to   row.Type
}

func (e errMismatch) Error() string {
	return fmt.Sprintf("cannot convert %s to %s", e.from, e.to)
}

// Coerce converts v into the Go value stored in a row cell of type t.
// Null and Undefined become a typed null (nil).
func Coerce(v Value, t row.Type) (any, error) {
	if v.IsNullish() {
		return nil, nil
	}
	switch t {
	case row.Number:
		return toFloat(v)
	case row.Integer:
		if v.Kind == Integer {
			return v.i, nil
		}
		f, err := toFloat(v)
		if err != nil || math.IsNaN(f) || f >= 1<<63 || f < -(1<<63) {
			return nil, errMismatch{v.Kind, t}
		}
		return int64(math.Floor(f + 0.5)), nil
	case row.String:
		return v.String(), nil
	case row.Date:
		switch v.Kind {
		case Date:
			return v.t, nil
		case Number:
			return time.UnixMilli(int64(v.num)), nil
		case Integer:
			return time.UnixMilli(v.i), nil
		}
	case row.Boolean:
		if v.Kind == Boolean {
			return v.b, nil
		}
	}
	return nil, errMismatch{v.Kind, t}
}

func toFloat(v Value) (float64, error) {
	switch v.Kind {
	case Number:
		return v.num, nil
	case Integer:
		return float64(v.i), nil
	case Text:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return 0, errMismatch{Text, row.Number}
		}
		return f, nil
	case Boolean:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case Date:
		return float64(v.t.UnixMilli()), nil
	}
	return 0, errMismatch{v.Kind, row.Number}
}
