package transformer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"scriptetl/internal/row"
)

func rawRow(line int, vals ...any) *row.Row {
	r := row.Get(len(vals))
	copy(r.V, vals)
	r.Line = line
	return r
}

// runCoerce feeds rows through CoerceLoopRows and collects the output and
// reject reasons.
func runCoerce(t *testing.T, columns []string, spec CoerceSpec, rows ...*row.Row) ([]*row.Row, []string) {
	t.Helper()
	shape, err := spec.Shape(columns)
	if err != nil {
		t.Fatalf("Shape: %v", err)
	}

	in := make(chan *row.Row, len(rows))
	out := make(chan *row.Row, len(rows))
	for _, r := range rows {
		in <- r
	}
	close(in)

	var mu sync.Mutex
	var rejects []string
	CoerceLoopRows(context.Background(), shape, in, out, spec, func(line int, reason string) {
		mu.Lock()
		rejects = append(rejects, reason)
		mu.Unlock()
	})
	close(out)

	var got []*row.Row
	for r := range out {
		got = append(got, r)
	}
	return got, rejects
}

func TestCoerceLoopRows_Coercion(t *testing.T) {
	t.Parallel()

	columns := []string{"id", "label", "valid_from", "active", "weight"}
	spec := NewCoerceSpec(
		map[string]string{
			"id":         "int",
			"label":         "text",
			"valid_from": "date",
			"active":    "bool",
			"weight":        "number",
		},
		"02.01.2006",
		nil,
		nil,
	)
	if err := spec.Check(columns); err != nil {
		t.Fatalf("spec sanity: %v", err)
	}

	got, rejects := runCoerce(t, columns, spec,
		rawRow(2, "7263067", "Škoda Fabia", "07.10.2011", "ano", "1234,5"),
		rawRow(3, "ahoj", "E", "07.10.2011", "ne", "1"),
		rawRow(4, " 42 ", "  ", nil, "false", "2.25"),
	)

	if len(got) != 2 {
		t.Fatalf("emitted %d rows, want 2", len(got))
	}
	if len(rejects) != 1 || !strings.Contains(rejects[0], "id") {
		t.Fatalf("rejects = %v, want one for id", rejects)
	}

	r := got[0]
	if r.Shape == nil || r.Shape.Field(0).Type != row.Integer || r.Shape.Field(4).Type != row.Number {
		t.Fatalf("shape = %v", r.Shape)
	}
	if v, ok := r.V[0].(int64); !ok || v != 7263067 {
		t.Errorf("id = %#v, want int64 7263067", r.V[0])
	}
	if s, ok := r.V[1].(string); !ok || s != "Škoda Fabia" {
		t.Errorf("label = %#v", r.V[1])
	}
	want := time.Date(2011, 10, 7, 0, 0, 0, 0, time.UTC)
	if d, ok := r.V[2].(time.Time); !ok || !d.Equal(want) {
		t.Errorf("valid_from = %#v, want %v", r.V[2], want)
	}
	if b, ok := r.V[3].(bool); !ok || !b {
		t.Errorf("active = %#v, want true", r.V[3])
	}
	if f, ok := r.V[4].(float64); !ok || f != 1234.5 {
		t.Errorf("weight = %#v, want 1234.5", r.V[4])
	}

	r = got[1]
	if r.V[0] != int64(42) || r.V[1] != nil || r.V[2] != nil || r.V[3] != false || r.V[4] != 2.25 {
		t.Errorf("second row = %#v", r.V)
	}
}

func TestCoerceLoopRows_CustomBoolsAndLayout(t *testing.T) {
	t.Parallel()

	spec := NewCoerceSpec(
		map[string]string{"ok": "bool", "d": "date"},
		"2006/01/02",
		[]string{"Y"},
		[]string{"N"},
	)
	got, rejects := runCoerce(t, []string{"ok", "d"}, spec,
		rawRow(1, "y", "2024/02/29"),
		rawRow(2, "true", "2024/02/29"),
		rawRow(3, "n", "2024-03-01"),
	)
	if len(got) != 2 || len(rejects) != 1 {
		t.Fatalf("got %d rows, %d rejects (%v)", len(got), len(rejects), rejects)
	}
	if got[0].V[0] != true || got[1].V[0] != false {
		t.Fatalf("bools = %v, %v", got[0].V[0], got[1].V[0])
	}
	if d := got[1].V[1].(time.Time); d.Month() != time.March {
		t.Fatalf("ISO fallback date = %v", d)
	}
}

func TestCoerceLoopRows_WidthMismatch(t *testing.T) {
	t.Parallel()
	got, rejects := runCoerce(t, []string{"a", "b"}, CoerceSpec{}, rawRow(9, "x"))
	if len(got) != 0 || len(rejects) != 1 || !strings.Contains(rejects[0], "1 values") {
		t.Fatalf("got %d rows, rejects %v", len(got), rejects)
	}
}

func TestCoerceSpec_ShapeRejectsUnknownType(t *testing.T) {
	t.Parallel()
	spec := CoerceSpec{Types: map[string]string{"a": "uuid"}}
	if _, err := spec.Shape([]string{"a"}); err == nil {
		t.Fatalf("Shape with unknown type = nil error")
	}
	if err := spec.Check([]string{"b"}); err == nil {
		t.Fatalf("Check with unknown column = nil error")
	}
}

func TestParseDMY(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		in string
		ok bool
	}{
		{"01.02.2003", true},
		{"31.12.1999", true},
		{"1.2.2003", false},
		{"01.13.2003", false},
		{"01.02.2003 10:00", false},
		{"aa.bb.cccc", false},
	} {
		if _, ok := parseDMY(tc.in); ok != tc.ok {
			t.Errorf("parseDMY(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
	}
}

func TestCoerceLoopRows_PassesTypedValuesAndDefaultsLayout(t *testing.T) {
	t.Parallel()

	spec := NewCoerceSpec(map[string]string{"n": "int", "d": "date", "ok": "bool"}, "", nil, nil)
	got, rejects := runCoerce(t, []string{"n", "d", "ok"}, spec,
		rawRow(1, int64(5), "29.02.2024", "T"),
		rawRow(2, "7.0", "2024-02-29", "ANO"),
		rawRow(3, "7.5", "2024-02-29", "yes"),
	)
	if len(got) != 2 || len(rejects) != 1 || !strings.Contains(rejects[0], "column n") {
		t.Fatalf("got %d rows, rejects %v", len(got), rejects)
	}
	if got[0].V[0] != int64(5) || got[1].V[0] != int64(7) {
		t.Fatalf("ints = %v, %v", got[0].V[0], got[1].V[0])
	}
	d0, d1 := got[0].V[1].(time.Time), got[1].V[1].(time.Time)
	if !d0.Equal(d1) {
		t.Fatalf("dates differ: %v vs %v", d0, d1)
	}
	if got[0].V[2] != true || got[1].V[2] != true {
		t.Fatalf("bools = %v, %v", got[0].V[2], got[1].V[2])
	}
}

func TestCoerceLoopRows_CanceledDrains(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := make(chan *row.Row, 2)
	in <- rawRow(1, "1")
	in <- rawRow(2, "2")
	close(in)
	out := make(chan *row.Row, 2)

	spec := CoerceSpec{Types: map[string]string{"a": "int"}}
	shape, err := spec.Shape([]string{"a"})
	if err != nil {
		t.Fatalf("Shape: %v", err)
	}
	CoerceLoopRows(ctx, shape, in, out, spec, nil)
	if len(out) != 0 || len(in) != 0 {
		t.Fatalf("out=%d in=%d after cancel, want both drained", len(out), len(in))
	}
}
