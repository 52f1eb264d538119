package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"scriptetl/internal/config"
	"scriptetl/internal/datasource"
	"scriptetl/internal/row"
	"scriptetl/internal/scripting"
	"scriptetl/internal/storage"
	"scriptetl/internal/variables"
)

// TestGetenvIntAndPickInt verifies env fallback and pick semantics.
func TestGetenvIntAndPickInt(t *testing.T) {
	t.Setenv("ETL_TEST_INT", "")
	if v := getenvInt("ETL_TEST_INT", 7); v != 7 {
		t.Fatalf("getenvInt unset = %d, want 7", v)
	}
	t.Setenv("ETL_TEST_INT", "42")
	if v := getenvInt("ETL_TEST_INT", 7); v != 42 {
		t.Fatalf("getenvInt set = %d, want 42", v)
	}
	t.Setenv("ETL_TEST_INT", "nope")
	if v := getenvInt("ETL_TEST_INT", 7); v != 7 {
		t.Fatalf("getenvInt invalid = %d, want 7", v)
	}
	if v := pickInt(5, 9); v != 5 {
		t.Fatalf("pickInt(5,9) = %d, want 5", v)
	}
	if v := pickInt(0, 9); v != 9 {
		t.Fatalf("pickInt(0,9) = %d, want 9", v)
	}
}

func TestNewRuntimeConfig_EnvFallback(t *testing.T) {
	t.Setenv("ETL_BATCH_SIZE", "77")
	t.Setenv("ETL_TRANSFORM_WORKERS", "")
	rt := newRuntimeConfig(config.Pipeline{Runtime: config.RuntimeConfig{ChannelBuffer: 8}})
	if rt.batchSize != 77 || rt.bufferSize != 8 || rt.transformers != 4 || rt.loaderWorkers != 1 {
		t.Fatalf("runtime = %+v", rt)
	}
}

func TestErrAgg_KeepsFirstN(t *testing.T) {
	t.Parallel()
	a := newErrAgg(2)
	for _, m := range []string{"a", "b", "c", "a"} {
		a.add(m)
	}
	if a.count != 4 || len(a.first) != 2 || a.first[0] != "a" || a.first[1] != "b" {
		t.Fatalf("errAgg = count %d first %v", a.count, a.first)
	}
}

func TestBuildPlan(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "end.lua"), []byte("done = 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := buildPlan(context.Background(), []config.Transform{
		{Kind: "coerce", Options: config.Options{"types": map[string]any{"id": "int"}}},
		{Kind: "script", Options: config.Options{"scripts": []any{
			map[string]any{"source": "x = id"},
			map[string]any{"role": "end", "path": "end.lua"},
		}}},
		{Kind: "require", Options: config.Options{"fields": []any{"x"}}},
	}, dir)
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	if len(p.stages) != 3 || p.stages[0].kind != "coerce" || p.stages[1].kind != "script" || p.stages[2].kind != "require" {
		t.Fatalf("stages = %+v", p.stages)
	}
	if p.stages[0].coerce.Types["id"] != "int" || p.stages[0].coerce.Layout != "02.01.2006" {
		t.Fatalf("coerce = %+v", p.stages[0].coerce)
	}
	defs := p.stages[1].scripts
	if len(defs) != 2 || defs[1].Role != scripting.End || defs[1].Source != "done = 1" || defs[1].Name != "end.lua" {
		t.Fatalf("scripts = %+v", defs)
	}
	if p.stages[1].script.Name != "script" {
		t.Fatalf("default step name = %q", p.stages[1].script.Name)
	}
}

func TestBuildPlan_Errors(t *testing.T) {
	t.Parallel()
	script := config.Transform{Kind: "script", Options: config.Options{"scripts": []any{map[string]any{"source": "x = 1"}}}}
	cases := map[string]struct {
		ts   []config.Transform
		want string
	}{
		"unknown kind":   {[]config.Transform{{Kind: "dedupe"}}, "unsupported transform kind"},
		"two scripts":    {[]config.Transform{script, script}, "only one script"},
		"require fields": {[]config.Transform{{Kind: "require", Options: config.Options{}}}, "options.fields"},
		"bad role": {[]config.Transform{{Kind: "script", Options: config.Options{
			"scripts": []any{map[string]any{"role": "middle", "source": "x = 1"}},
		}}}, "unknown script role"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := buildPlan(context.Background(), tc.ts, t.TempDir())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestBuildPlan_MissingScriptFile(t *testing.T) {
	t.Parallel()
	_, err := buildPlan(context.Background(), []config.Transform{{Kind: "script", Options: config.Options{
		"scripts": []any{map[string]any{"path": "nope.lua"}},
	}}}, t.TempDir())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestScriptFields(t *testing.T) {
	t.Parallel()
	fs, err := scriptFields([]config.ScriptField{{Name: "a", Rename: "b", Type: "number", Length: 10, Precision: 2, Replace: true}})
	if err != nil {
		t.Fatalf("scriptFields: %v", err)
	}
	want := scripting.FieldSpec{Name: "a", Rename: "b", Type: row.Number, Length: 10, Precision: 2, Replace: true}
	if len(fs) != 1 || fs[0] != want {
		t.Fatalf("fields = %+v", fs)
	}
	if _, err := scriptFields([]config.ScriptField{{Name: "a", Type: "blob"}}); err == nil {
		t.Fatal("unknown type accepted")
	}
}

func TestNewPropertyStore(t *testing.T) {
	ctx := context.Background()

	ps, release, err := newPropertyStore(ctx, config.Properties{Values: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	defer release()
	if v, ok, _ := ps.Get(ctx, "k"); !ok || v != "v" {
		t.Fatalf("memory seed = %q %v", v, ok)
	}

	mr := miniredis.RunT(t)
	ps, release, err = newPropertyStore(ctx, config.Properties{
		Kind:      "redis",
		RedisAddr: mr.Addr(),
		RedisHash: "props",
		Values:    map[string]string{"region": "cz"},
	})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer release()
	if _, ok := ps.(*variables.RedisStore); !ok {
		t.Fatalf("store = %T, want *variables.RedisStore", ps)
	}
	if got := mr.HGet("props", "region"); got != "cz" {
		t.Fatalf("redis seed = %q", got)
	}

	if _, _, err := newPropertyStore(ctx, config.Properties{Kind: "etcd"}); err == nil {
		t.Fatal("unknown kind accepted")
	}
}

func TestCSVSink(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "errors.csv")
	sink, err := newErrorSink(config.ErrorSink{Kind: "file", Path: path}, "", nil)
	if err != nil {
		t.Fatalf("newErrorSink: %v", err)
	}
	sh := row.NewShape(row.Meta{Name: "id", Type: row.Integer}, row.Meta{Name: "name", Type: row.String})
	r := row.New(sh)
	r.V[0], r.V[1], r.Line = int64(7), nil, 8
	if err := sink.write(scripting.ErrorRow{Row: r, Code: scripting.ErrorCode, Message: "boom, again"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "line,code,message,id,name\n8,SCR-001,\"boom, again\",7,\n"
	if string(b) != want {
		t.Fatalf("file = %q, want %q", b, want)
	}
}

func TestNewErrorSink_Unknown(t *testing.T) {
	t.Parallel()
	if _, err := newErrorSink(config.ErrorSink{Kind: "kafka"}, "", nil); err == nil {
		t.Fatal("unknown sink accepted")
	}
}

// writePipeline lays out an input CSV next to a pipeline whose storage is a
// sqlite file in the same directory.
func writePipeline(t *testing.T, csv string, transforms []config.Transform) (config.Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "in.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	p := config.Pipeline{
		Job:       "test",
		Source:    config.Source{Kind: "file", File: config.SourceFile{Path: "in.csv"}},
		Parser:    config.Parser{Kind: "csv", Options: config.Options{"has_header": true}},
		Transform: transforms,
		Storage: config.Storage{Kind: "sqlite", DB: config.DBConfig{
			DSN:             filepath.Join(dir, "out.db"),
			Table:           "people",
			AutoCreateTable: true,
		}},
		Runtime: config.RuntimeConfig{TransformWorkers: 1, LoaderWorkers: 1, BatchSize: 2, ChannelBuffer: 4},
		Errors:  config.ErrorSink{Kind: "file", Path: "errors.csv"},
	}
	return p, dir
}

func queryPeople(t *testing.T, dsn string) [][3]any {
	t.Helper()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	rows, err := db.Query(`SELECT id, name, id2 FROM people ORDER BY id`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var out [][3]any
	for rows.Next() {
		var id, id2 int64
		var name sql.NullString
		if err := rows.Scan(&id, &name, &id2); err != nil {
			t.Fatal(err)
		}
		out = append(out, [3]any{id, name.String, id2})
	}
	return out
}

func scriptTransforms(src string, extra ...config.Transform) []config.Transform {
	ts := []config.Transform{
		{Kind: "coerce", Options: config.Options{"types": map[string]any{"id": "int"}}},
		{Kind: "script", Options: config.Options{
			"copies":        1,
			"error_routing": true,
			"scripts":       []any{map[string]any{"source": src}},
			"fields":        []any{map[string]any{"name": "id2", "type": "integer"}},
		}},
	}
	return append(ts, extra...)
}

func TestRunStreamed_EndToEnd(t *testing.T) {
	p, dir := writePipeline(t,
		"id,name\n1,alice\n2,bob\n3,\nx,dave\n4,erin\n",
		scriptTransforms(`
			if id == 2 then error("boom") end
			id2 = id * 10
		`, config.Transform{Kind: "require", Options: config.Options{"fields": []any{"name"}}}),
	)

	if err := runStreamed(context.Background(), p, runEnv{baseDir: dir, runID: "t"}); err != nil {
		t.Fatalf("runStreamed: %v", err)
	}

	got := queryPeople(t, p.Storage.DB.DSN)
	want := [][3]any{{int64(1), "alice", int64(10)}, {int64(4), "erin", int64(40)}}
	if len(got) != len(want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d = %v, want %v", i, got[i], want[i])
		}
	}

	b, err := os.ReadFile(filepath.Join(dir, "errors.csv"))
	if err != nil {
		t.Fatalf("error sink: %v", err)
	}
	if !strings.Contains(string(b), "3,SCR-001,") || !strings.Contains(string(b), "boom") {
		t.Fatalf("errors.csv = %q", b)
	}
}

func TestRunStreamed_AbortKeepsEarlierRows(t *testing.T) {
	p, dir := writePipeline(t,
		"id,name\n1,a\n2,b\n3,c\n",
		scriptTransforms(`
			if id == 2 then trans_Status = ABORT_TRANSFORMATION end
			id2 = id
		`),
	)
	if err := runStreamed(context.Background(), p, runEnv{baseDir: dir}); err != nil {
		t.Fatalf("runStreamed: %v", err)
	}
	got := queryPeople(t, p.Storage.DB.DSN)
	if len(got) != 1 || got[0][0] != int64(1) {
		t.Fatalf("rows = %v, want only id 1", got)
	}
}

func TestRunStreamed_ErrorStopFails(t *testing.T) {
	p, dir := writePipeline(t,
		"id,name\n1,a\n2,b\n3,c\n",
		scriptTransforms(`
			if id == 2 then trans_Status = ERROR_TRANSFORMATION end
			id2 = id
		`),
	)
	err := runStreamed(context.Background(), p, runEnv{baseDir: dir})
	if !errors.Is(err, scripting.ErrScriptFailed) {
		t.Fatalf("err = %v, want ErrScriptFailed", err)
	}
}

// endlessCSV is a source that never reaches EOF.
type endlessCSV struct{ header bool }

func (e *endlessCSV) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(e), nil
}

func (e *endlessCSV) Read(p []byte) (int, error) {
	n := 0
	if !e.header {
		e.header = true
		n = copy(p, "id,name\n")
	}
	for n+4 <= len(p) {
		n += copy(p[n:], "1,a\n")
	}
	return n, nil
}

type failingRepo struct{}

func (failingRepo) CopyFrom(context.Context, []string, [][]any) (int64, error) {
	return 0, errors.New("disk full")
}
func (failingRepo) Exec(context.Context, string) error { return nil }
func (failingRepo) Close()                             {}

func TestRunStreamed_LoaderFailureStopsReader(t *testing.T) {
	p, dir := writePipeline(t, "", scriptTransforms("id2 = id"))
	oldRepo, oldSrc := newRepositoryFn, openSourceFn
	t.Cleanup(func() { newRepositoryFn, openSourceFn = oldRepo, oldSrc })
	newRepositoryFn = func(context.Context, storage.Config) (storage.Repository, error) {
		return failingRepo{}, nil
	}
	openSourceFn = func(config.Pipeline, string) (datasource.Source, error) {
		return &endlessCSV{}, nil
	}

	done := make(chan error, 1)
	go func() { done <- runStreamed(context.Background(), p, runEnv{baseDir: dir}) }()
	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "disk full") {
			t.Fatalf("err = %v, want the load failure", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("reader kept running after the loader failed")
	}
}

func TestRunStreamed_MissingSource(t *testing.T) {
	p, dir := writePipeline(t, "id\n1\n", scriptTransforms("id2 = id"))
	p.Source.File.Path = "missing.csv"
	err := runStreamed(context.Background(), p, runEnv{baseDir: dir})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestLoadPipeline(t *testing.T) {
	dir := t.TempDir()
	p, _ := writePipeline(t, "id\n1\n", scriptTransforms("id2 = id"))
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	good := filepath.Join(dir, "good.json")
	if err := os.WriteFile(good, b, 0o644); err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	if _, err := loadPipeline(good, &out); err != nil {
		t.Fatalf("loadPipeline: %v (issues: %s)", err, out.String())
	}

	p.Job = ""
	b, _ = json.Marshal(p)
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, b, 0o644); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if _, err := loadPipeline(bad, &out); !errors.Is(err, errInvalidConfig) {
		t.Fatalf("err = %v, want errInvalidConfig", err)
	}
	if !strings.Contains(out.String(), "job") {
		t.Fatalf("issues = %q", out.String())
	}
}

func TestRootCmd_Validate(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "p.yaml")
	yml := `job: demo
source: {kind: file, file: {path: in.csv}}
parser: {kind: csv, options: {has_header: true}}
transform:
  - kind: script
    options:
      scripts: [{source: "x = 1"}]
      fields: [{name: x, type: integer}]
storage: {kind: sqlite, db: {dsn: out.db, table: t}}
runtime: {batch_size: 10}
`
	if err := os.WriteFile(cfg, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	var stderr strings.Builder
	cmd := newRootCmd(&stderr)
	cmd.SetArgs([]string{"validate", "--config", cfg})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("validate: %v (stderr: %s)", err, stderr.String())
	}

	cmd = newRootCmd(&stderr)
	cmd.SetArgs([]string{"validate", "--config", filepath.Join(dir, "missing.yaml")})
	if err := cmd.Execute(); err == nil {
		t.Fatal("validate of a missing file succeeded")
	}
}

func TestRootCmd_Probe(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "vozidla.csv")
	if err := os.WriteFile(in, []byte("ID;Značka;Datum\n1;Škoda;01.02.2024\n2;VW;03.04.2024\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr strings.Builder
	cmd := newRootCmd(&stderr)
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"probe", in, "--delimiter", ";", "--backend", "sqlite"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("probe: %v (stderr: %s)", err, stderr.String())
	}

	cfg := filepath.Join(dir, "draft.yaml")
	if err := os.WriteFile(cfg, []byte(stdout.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := loadPipeline(cfg, &stderr)
	if err != nil {
		t.Fatalf("draft does not load: %v\n%s", err, stdout.String())
	}
	if p.Job != "vozidla" || p.Source.File.Path != in || p.Storage.Kind != "sqlite" {
		t.Fatalf("draft = %+v", p)
	}
	if got := p.Parser.Options.String("comma", ""); got != ";" {
		t.Fatalf("comma = %q", got)
	}
	if hm := p.Parser.Options.StringMap("header_map"); hm["Značka"] != "znacka" {
		t.Fatalf("header_map = %v", hm)
	}
	var types map[string]string
	for _, tr := range p.Transform {
		if tr.Kind == "coerce" {
			types = tr.Options.StringMap("types")
		}
	}
	if types["id"] != "int" || types["datum"] != "date" {
		t.Fatalf("coerce types lost in yaml draft: %v", types)
	}

	stdout.Reset()
	cmd = newRootCmd(&stderr)
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"probe", in, "--delimiter", ";", "--format", "json", "--name", "cars"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("probe json: %v", err)
	}
	var jp config.Pipeline
	if err := json.Unmarshal([]byte(stdout.String()), &jp); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if jp.Job != "cars" || jp.Storage.DB.Table != "public.cars" {
		t.Fatalf("json draft = %+v", jp)
	}

	cmd = newRootCmd(&stderr)
	cmd.SetArgs([]string{"probe", in, "--format", "toml"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("unknown format accepted")
	}
}
