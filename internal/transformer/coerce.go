// Package transformer holds the row stages that run around the script step.
// They work in place on pooled rows: coerce turns parsed text into typed
// values, require drops rows with NULL mandatory fields.
package transformer

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"scriptetl/internal/row"
)

// dmyLayout is the day-first layout parsed without time.Parse.
const dmyLayout = "02.01.2006"

// CoerceSpec is the decoded "coerce" transform.
type CoerceSpec struct {
	// Types maps column name to a row.ParseType name. Unlisted columns stay
	// text.
	Types map[string]string
	// Layout is tried first for date columns; ISO dates always parse.
	Layout string
	// Truthy and Falsy replace the default boolean vocabulary when either
	// is set.
	Truthy []string
	Falsy  []string
}

// NewCoerceSpec copies types so the caller's map can be reused.
func NewCoerceSpec(types map[string]string, layout string, truthy, falsy []string) CoerceSpec {
	return CoerceSpec{Types: maps.Clone(types), Layout: layout, Truthy: truthy, Falsy: falsy}
}

// Check fails when Types names a column the reader does not produce.
func (spec CoerceSpec) Check(columns []string) error {
	for name := range spec.Types {
		if !slices.Contains(columns, name) {
			return fmt.Errorf("coerce spec references unknown column %q", name)
		}
	}
	return nil
}

// Shape is the typed shape rows have after coercion.
func (spec CoerceSpec) Shape(columns []string) (*row.Shape, error) {
	fields := make([]row.Meta, len(columns))
	for i, c := range columns {
		t, err := row.ParseType(spec.Types[c])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c, err)
		}
		fields[i] = row.Meta{Name: c, Type: t}
	}
	return row.NewShape(fields...), nil
}

// CoerceLoopRows converts string values of each row to the types of shape
// and stamps shape on the row. Blank strings become NULL; values that are
// already typed pass through. A row that fails is freed and reported via
// onReject.
//
// On cancellation the loop keeps draining in, freeing rows. The caller
// closes out.
func CoerceLoopRows(
	ctx context.Context,
	shape *row.Shape,
	in <-chan *row.Row,
	out chan<- *row.Row,
	spec CoerceSpec,
	onReject func(line int, reason string),
) {
	c := newCoercer(spec)
	conv := make([]func(string) (any, bool), shape.Len())
	for i := range conv {
		conv[i] = c.forType(shape.Field(i).Type)
	}
	reject := func(r *row.Row, reason string) {
		if onReject != nil {
			onReject(r.Line, reason)
		}
		r.Free()
	}

	for r := range in {
		if ctx.Err() != nil {
			r.Free()
			continue
		}
		if len(r.V) != len(conv) {
			reject(r, fmt.Sprintf("row has %d values, want %d", len(r.V), len(conv)))
			continue
		}
		if i := coerceValues(r.V, conv); i >= 0 {
			f := shape.Field(i)
			reject(r, fmt.Sprintf("column %s: cannot coerce to %s", f.Name, f.Type))
			continue
		}
		r.Shape = shape
		select {
		case out <- r:
		case <-ctx.Done():
			r.Free()
		}
	}
}

// coerceValues converts vals in place and returns the index of the first
// value that failed, or -1.
func coerceValues(vals []any, conv []func(string) (any, bool)) int {
	for i, raw := range vals {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			vals[i] = nil
			continue
		}
		v, ok := conv[i](s)
		if !ok {
			return i
		}
		vals[i] = v
	}
	return -1
}

type coercer struct {
	truthy, falsy map[string]bool // nil means the default vocabulary
	layouts       []string        // date layouts in try order
}

func newCoercer(spec CoerceSpec) *coercer {
	c := &coercer{}
	if len(spec.Truthy) > 0 || len(spec.Falsy) > 0 {
		c.truthy, c.falsy = lowerSet(spec.Truthy), lowerSet(spec.Falsy)
	}
	layout := spec.Layout
	if layout == "" {
		layout = dmyLayout
	}
	c.layouts = []string{layout}
	if layout != time.DateOnly {
		c.layouts = append(c.layouts, time.DateOnly)
	}
	if layout != dmyLayout {
		c.layouts = append(c.layouts, dmyLayout)
	}
	return c
}

func (c *coercer) forType(t row.Type) func(string) (any, bool) {
	switch t {
	case row.Integer:
		return func(s string) (any, bool) {
			n, ok := parseInt(s)
			return n, ok
		}
	case row.Number:
		return func(s string) (any, bool) {
			f, ok := parseNumber(s)
			return f, ok
		}
	case row.Boolean:
		return func(s string) (any, bool) {
			b, ok := c.parseBool(s)
			return b, ok
		}
	case row.Date:
		return func(s string) (any, bool) {
			d, ok := c.parseDate(s)
			return d, ok
		}
	default:
		return func(s string) (any, bool) { return s, true }
	}
}

// parseInt also accepts integral floats such as "42.0".
func parseInt(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if strings.IndexByte(s, '.') < 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// parseNumber accepts one decimal comma when there is no dot ("12,5").
func parseNumber(s string) (float64, bool) {
	if strings.IndexByte(s, '.') < 0 && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func (c *coercer) parseBool(s string) (bool, bool) {
	ls := strings.ToLower(s)
	if c.truthy != nil || c.falsy != nil {
		switch {
		case c.truthy[ls]:
			return true, true
		case c.falsy[ls]:
			return false, true
		}
		return false, false
	}
	switch ls {
	case "1", "t", "true", "yes", "y", "ano":
		return true, true
	case "0", "f", "false", "no", "n", "ne":
		return false, true
	}
	return false, false
}

func (c *coercer) parseDate(s string) (time.Time, bool) {
	for _, l := range c.layouts {
		if l == dmyLayout {
			if t, ok := parseDMY(s); ok {
				return t, true
			}
			continue
		}
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseDMY parses "DD.MM.YYYY" without allocating.
func parseDMY(s string) (time.Time, bool) {
	if len(s) != len(dmyLayout) || s[2] != '.' || s[5] != '.' {
		return time.Time{}, false
	}
	num := func(b string) (int, bool) {
		n := 0
		for i := 0; i < len(b); i++ {
			d := b[i] - '0'
			if d > 9 {
				return 0, false
			}
			n = n*10 + int(d)
		}
		return n, true
	}
	day, ok1 := num(s[0:2])
	mon, ok2 := num(s[3:5])
	year, ok3 := num(s[6:10])
	if !ok1 || !ok2 || !ok3 || mon < 1 || mon > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(mon), day, 0, 0, 0, 0, time.UTC), true
}

func lowerSet(in []string) map[string]bool {
	m := make(map[string]bool, len(in))
	for _, s := range in {
		m[strings.ToLower(strings.TrimSpace(s))] = true
	}
	return m
}
