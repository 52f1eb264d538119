package probe

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"scriptetl/internal/config"
)

type stringSource string

func (s stringSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s))), nil
}

type failingSource struct{ err error }

func (f failingSource) Open(context.Context) (io.ReadCloser, error) { return nil, f.err }

func TestInferTypeForColumn(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want string
	}{
		{"empty", []string{"", " "}, kindText},
		{"ints", []string{"1", " 2", "", "-3"}, kindInt},
		{"zero one stays int", []string{"0", "1"}, kindInt},
		{"bools", []string{"true", "NO", "ano"}, kindBool},
		{"floats", []string{"1.5", "2", "3e2"}, kindNumber},
		{"decimal comma", []string{"1,5", "2,25"}, kindNumber},
		{"dates", []string{"01.02.2024", "2024-03-04"}, kindDate},
		{"timestamps", []string{"2024-03-04 10:00:00", "2024-03-05"}, kindStamp},
		{"mixed", []string{"1", "x"}, kindText},
		{"late text", []string{" 7", "", "8", "n/a"}, kindText},
		{"late timestamp", []string{"2024-03-04", "", "2024-03-05T10:00:00Z"}, kindStamp},
	}
	for _, tc := range cases {
		if got := inferTypeForColumn(tc.in); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestNormalizeFieldName(t *testing.T) {
	cases := map[string]string{
		"Číslo vozidla":  "cislo_vozidla",
		" Datum - První": "datum_prvni",
		"1st col":        "c_1st_col",
		"%%%":            "col",
		"a.b":            "a_b",
	}
	for in, want := range cases {
		if got := normalizeFieldName(in); got != want {
			t.Fatalf("normalizeFieldName(%q)=%q want %q", in, got, want)
		}
	}
	long := strings.Repeat("a", 40) + strings.Repeat("b", 40)
	got := normalizeFieldName(long)
	if len(got) != 63 || !strings.HasPrefix(got, "aaaaaaaaaa") || !strings.HasSuffix(got, "bbbb") {
		t.Fatalf("long name not truncated: %q", got)
	}
}

func TestLayoutSetBest_PrefersDMY(t *testing.T) {
	// 01.02.2024 parses as both DMY and MDY.
	got := dateSet.best([]string{"01.02.2024", "03.04.2024"})
	if got != "02.01.2006" {
		t.Fatalf("got %q", got)
	}
	if got := dateSet.best([]string{"25.12.2024"}); got != "02.01.2006" {
		t.Fatalf("got %q", got)
	}
	if got := dateSet.best(nil); got != "" {
		t.Fatalf("empty sample: got %q", got)
	}
	if got := stampSet.best([]string{"2024-03-04T10:00:00Z"}); got != time.RFC3339Nano {
		t.Fatalf("stamp: got %q", got)
	}
}

func TestDatasetLayout(t *testing.T) {
	layouts := []string{"2006-01-02", "", "02.01.2006", "02.01.2006"}
	kinds := []string{kindDate, kindInt, kindDate, kindDate}
	if got := datasetLayout(kinds, layouts); got != "02.01.2006" {
		t.Fatalf("got %q", got)
	}
	if got := datasetLayout([]string{kindText, kindInt}, []string{"", ""}); got != "" {
		t.Fatalf("no layouts: got %q", got)
	}
}

func TestReadCSVSample(t *testing.T) {
	data := "\uFEFFid;name\n1;a\n2;b;extra\n3;c\n"
	h, rows, err := readCSVSample([]byte(data), ';')
	if err != nil {
		t.Fatalf("readCSVSample: %v", err)
	}
	if !reflect.DeepEqual(h, []string{"id", "name"}) {
		t.Fatalf("headers=%v", h)
	}
	if len(rows) != 2 || rows[1][0] != "3" {
		t.Fatalf("misaligned row not skipped: %v", rows)
	}

	if _, _, err := readCSVSample(nil, ','); err == nil {
		t.Fatalf("expected error for empty sample")
	}
}

func TestReadSample_CutsAtNewline(t *testing.T) {
	b, err := readSample(context.Background(), stringSource("a,b\n1,2\n3,4"), 10)
	if err != nil {
		t.Fatalf("readSample: %v", err)
	}
	if string(b) != "a,b\n1,2\n" {
		t.Fatalf("got %q", b)
	}
}

func TestProbe_DraftsPipeline(t *testing.T) {
	data := "ID,Jméno,Datum,Cena,Aktivní\n" +
		"1,Alice,01.02.2024,10.5,ano\n" +
		"2,,15.03.2024,7,ne\n" +
		"3,Bob,,8.25,ano\n"

	res, err := Probe(context.Background(), stringSource(data), Options{
		Source:  config.Source{Kind: "file", File: config.SourceFile{Path: "in.csv"}},
		Name:    "Ceník 2024",
		Backend: "sqlite",
	})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.Rows != 3 {
		t.Fatalf("rows=%d", res.Rows)
	}

	var names, kinds []string
	for _, c := range res.Columns {
		names = append(names, c.Name)
		kinds = append(kinds, c.Kind)
	}
	if want := []string{"id", "jmeno", "datum", "cena", "aktivni"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("names=%v want %v", names, want)
	}
	if want := []string{kindInt, kindText, kindDate, kindNumber, kindBool}; !reflect.DeepEqual(kinds, want) {
		t.Fatalf("kinds=%v want %v", kinds, want)
	}

	p := res.Pipeline
	if p.Job != "cenik_2024" || p.Storage.Kind != "sqlite" || p.Storage.DB.Table != "cenik_2024" {
		t.Fatalf("pipeline header: job=%q storage=%q table=%q", p.Job, p.Storage.Kind, p.Storage.DB.Table)
	}
	if !reflect.DeepEqual(p.Storage.DB.KeyColumns, []string{"id"}) {
		t.Fatalf("key columns=%v", p.Storage.DB.KeyColumns)
	}
	if len(p.Transform) != 3 || p.Transform[2].Kind != "require" {
		t.Fatalf("transforms=%+v", p.Transform)
	}
	coerce := p.Transform[0].Options
	if coerce.String("layout", "") != "02.01.2006" {
		t.Fatalf("layout=%q", coerce.String("layout", ""))
	}
	if got := coerce.StringMap("types"); got["cena"] != "number" || got["id"] != "int" {
		t.Fatalf("types=%v", got)
	}
	if hm := p.Parser.Options.StringMap("header_map"); hm["Jméno"] != "jmeno" {
		t.Fatalf("header_map=%v", hm)
	}

	for _, iss := range config.ValidatePipeline(p) {
		if iss.Severity == config.SeverityError {
			t.Fatalf("draft does not validate: %v", iss)
		}
	}
}

func TestProbe_DuplicateHeadersAndNoKey(t *testing.T) {
	data := "name,Name\nx,\ny,z\n"
	res, err := Probe(context.Background(), stringSource(data), Options{Name: "dups"})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.Columns[0].Name != "name" || res.Columns[1].Name != "name_2" {
		t.Fatalf("columns=%+v", res.Columns)
	}
	if len(res.Pipeline.Transform) != 2 {
		t.Fatalf("require stage without an integer key column: %+v", res.Pipeline.Transform)
	}
	if res.Pipeline.Storage.Kind != "postgres" || res.Pipeline.Storage.DB.Table != "public.dups" {
		t.Fatalf("storage=%+v", res.Pipeline.Storage)
	}
	if got := res.Kinds(); !reflect.DeepEqual(got, []string{kindText}) {
		t.Fatalf("kinds=%v", got)
	}
}

func TestProbe_Errors(t *testing.T) {
	if _, err := Probe(context.Background(), stringSource("a\n1\n"), Options{}); err == nil {
		t.Fatalf("expected error without a name")
	}
	boom := errors.New("boom")
	_, err := Probe(context.Background(), failingSource{err: boom}, Options{Name: "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}
