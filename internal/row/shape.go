// Package row defines the typed row model shared by every pipeline stage:
// positional values (Row) described by ordered field metadata (Shape).
//
// Value model per Type:
//
//	Number  -> float64
//	Integer -> int64
//	String  -> string
//	Date    -> time.Time
//	Boolean -> bool
//	(null)  -> nil
package row

import (
	"fmt"
	"strings"
)

// Type enumerates the value types a field can carry.
type Type uint8

const (
	None Type = iota
	Number
	Integer
	String
	Date
	Boolean
)

var typeNames = [...]string{
	None:    "None",
	Number:  "Number",
	Integer: "Integer",
	String:  "String",
	Date:    "Date",
	Boolean: "Boolean",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", t)
}

// ParseType maps configuration type names onto a Type. Matching is
// case-insensitive and accepts the coerce-stage aliases ("int", "text",
// "bool").
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "number", "float", "double", "numeric":
		return Number, nil
	case "integer", "int", "long":
		return Integer, nil
	case "string", "text", "":
		return String, nil
	case "date", "timestamp":
		return Date, nil
	case "boolean", "bool":
		return Boolean, nil
	default:
		return None, fmt.Errorf("unknown field type %q", s)
	}
}

// Meta describes one position of a row.
type Meta struct {
	Name      string
	Type      Type
	Length    int
	Precision int
}

// Shape is the ordered metadata of a row.
type Shape struct {
	fields []Meta
}

// NewShape builds a Shape from the given metadata (copied).
func NewShape(fields ...Meta) *Shape {
	s := &Shape{fields: make([]Meta, len(fields))}
	copy(s.fields, fields)
	return s
}

// Len returns the number of positions.
func (s *Shape) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// Field returns the metadata at position i.
func (s *Shape) Field(i int) Meta { return s.fields[i] }

// Fields returns a copy of all metadata.
func (s *Shape) Fields() []Meta {
	out := make([]Meta, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the field names in positional order.
func (s *Shape) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// IndexOf returns the position of the field with the exact name, or -1.
func (s *Shape) IndexOf(name string) int {
	if s == nil || name == "" {
		return -1
	}
	for i, f := range s.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Clone returns an independent copy of the shape.
func (s *Shape) Clone() *Shape {
	return NewShape(s.fields...)
}

// Append adds a position at the end.
func (s *Shape) Append(m Meta) {
	s.fields = append(s.fields, m)
}

// Set replaces the metadata at position i.
func (s *Shape) Set(i int, m Meta) {
	s.fields[i] = m
}

func (s *Shape) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.Name + ":" + f.Type.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
