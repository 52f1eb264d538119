package config

import (
	"fmt"
	"strconv"
	"strings"

	"scriptetl/internal/row"
)

// IssueSeverity grades a lint finding.
type IssueSeverity string

const (
	// SeverityError blocks a run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is one finding. Path is a dotted path into the pipeline document,
// e.g. "transform[1].options.scripts[0].role".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Known kinds per section. Unknown source and parser kinds only warn.
var (
	sourceKinds    = []string{"file", "blob"}
	parserKinds    = []string{"csv"}
	transformKinds = []string{"coerce", "script", "require"}
	storageKinds   = []string{"postgres", "mssql", "sqlite"}
)

type linter struct{ issues []Issue }

func (l *linter) errf(path, format string, args ...any) {
	l.issues = append(l.issues, Issue{SeverityError, path, fmt.Sprintf(format, args...)})
}

func (l *linter) warnf(path, format string, args ...any) {
	l.issues = append(l.issues, Issue{SeverityWarning, path, fmt.Sprintf(format, args...)})
}

// required reports an empty value at path and returns false.
func (l *linter) required(path, value string) bool {
	if strings.TrimSpace(value) != "" {
		return true
	}
	l.errf(path, "%s must not be empty", path)
	return false
}

func (l *linter) knownKind(path, kind, what string, known []string) {
	for _, k := range known {
		if k == kind {
			return
		}
	}
	l.warnf(path, "unknown %s kind %q; ensure a matching implementation exists", what, kind)
}

// ValidatePipeline lints p without running anything. The caller decides
// whether warnings are fatal; `etl validate` fails on errors only.
func ValidatePipeline(p Pipeline) []Issue {
	l := &linter{}
	if strings.TrimSpace(p.Job) == "" {
		l.errf("job", "job must not be empty; it labels metrics and error reports")
	}
	l.source(p.Source)
	l.parser(p.Parser)
	l.transforms(p.Transform)
	l.storage(p.Storage)
	l.runtime(p.Runtime)
	l.errorSink(p.Errors)
	l.properties(p.Properties)
	return l.issues
}

func (l *linter) source(s Source) {
	if !l.required("source.kind", s.Kind) {
		return
	}
	l.knownKind("source.kind", s.Kind, "source", sourceKinds)
	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			l.errf("source.file.path", "file source requires a non-empty path")
		}
	case "blob":
		if strings.TrimSpace(s.Blob.Bucket) == "" {
			l.errf("source.blob.bucket", "blob source requires a bucket URL")
		}
		if strings.TrimSpace(s.Blob.Key) == "" {
			l.errf("source.blob.key", "blob source requires an object key")
		}
	}
}

func (l *linter) parser(p Parser) {
	if !l.required("parser.kind", p.Kind) {
		return
	}
	l.knownKind("parser.kind", p.Kind, "parser", parserKinds)
	if p.Kind == "csv" && !p.Options.Bool("has_header", true) && len(p.Options.StringSlice("columns")) == 0 {
		l.errf("parser.options.columns", "csv without a header needs parser.options.columns to name its fields")
	}
}

func (l *linter) transforms(ts []Transform) {
	if len(ts) == 0 {
		l.warnf("transform", "no transforms configured; raw parsed rows will be written as-is")
		return
	}
	for i, t := range ts {
		base := fmt.Sprintf("transform[%d]", i)
		if strings.TrimSpace(t.Kind) == "" {
			l.errf(base+".kind", "transform kind must not be empty")
			continue
		}
		l.knownKind(base+".kind", t.Kind, "transform", transformKinds)

		switch t.Kind {
		case "coerce":
			for col, typ := range t.Options.StringMap("types") {
				if _, err := row.ParseType(typ); err != nil {
					l.errf(base+".options.types."+col, "%v", err)
				}
			}
		case "script":
			l.script(base+".options", t.Options)
		case "require":
			if len(t.Options.StringSlice("fields")) == 0 {
				l.errf(base+".options.fields", "require transform needs a non-empty list of fields")
			}
		}
	}
}

// script reports the problems the script step would fail on at start-up.
func (l *linter) script(base string, opt Options) {
	s, err := DecodeScriptStep(opt)
	if err != nil {
		l.errf(base, "%v", err)
		return
	}

	transforms := 0
	for i, sc := range s.Scripts {
		p := fmt.Sprintf("%s.scripts[%d]", base, i)
		switch strings.ToLower(strings.TrimSpace(sc.Role)) {
		case "", "transform":
			transforms++
		case "start", "end":
		case "aux":
			if strings.TrimSpace(sc.Name) == "" {
				l.errf(p+".name", "aux scripts need a name; loadScript refers to them by name")
			}
		default:
			l.errf(p+".role", "unknown script role %q (use transform, start, end or aux)", sc.Role)
		}
		if (sc.Source != "") == (strings.TrimSpace(sc.Path) != "") {
			l.errf(p, "exactly one of source or path must be set")
		}
	}
	if transforms == 0 {
		l.errf(base+".scripts", "script step needs a transform script")
	} else if transforms > 1 {
		l.warnf(base+".scripts", "%d transform scripts; the last one wins", transforms)
	}

	for i, f := range s.Fields {
		p := fmt.Sprintf("%s.fields[%d]", base, i)
		if strings.TrimSpace(f.Name) == "" {
			l.errf(p+".name", "field name must not be empty")
		}
		if strings.TrimSpace(f.Type) == "" {
			l.errf(p+".type", "field type must not be empty")
		} else if _, err := row.ParseType(f.Type); err != nil {
			l.errf(p+".type", "%v", err)
		}
	}

	if lvl := strings.TrimSpace(string(s.Optimization)); lvl != "" {
		if n, err := strconv.Atoi(lvl); err != nil || n < 0 || n > 9 {
			l.errf(base+".optimization", "optimization must be an integer in 0..9, got %q", lvl)
		}
	}
	if s.Copies < 0 {
		l.errf(base+".copies", "copies must not be negative")
	}
}

func (l *linter) storage(s Storage) {
	if !l.required("storage.kind", s.Kind) {
		return
	}
	l.knownKind("storage.kind", s.Kind, "storage", storageKinds)

	l.required("storage.db.dsn", s.DB.DSN)
	l.required("storage.db.table", s.DB.Table)
	if len(s.DB.Columns) == 0 {
		l.warnf("storage.db.columns", "storage.db.columns is empty; every field of the final row shape will be loaded")
	}
	seen := make(map[string]bool, len(s.DB.KeyColumns))
	for i, k := range s.DB.KeyColumns {
		if seen[k] {
			l.errf(fmt.Sprintf("storage.db.key_columns[%d]", i), "duplicate key column %q", k)
		}
		seen[k] = true
	}
}

func (l *linter) runtime(r RuntimeConfig) {
	if r.BatchSize <= 0 {
		l.warnf("runtime.batch_size", "batch_size=%d; non-positive batch sizes fall back to the default", r.BatchSize)
	}
	for _, c := range []struct {
		name string
		v    int
	}{
		{"transform_workers", r.TransformWorkers},
		{"loader_workers", r.LoaderWorkers},
		{"channel_buffer", r.ChannelBuffer},
	} {
		if c.v < 0 {
			l.errf("runtime."+c.name, "%s must not be negative", c.name)
		}
	}
}

func (l *linter) errorSink(e ErrorSink) {
	switch e.Kind {
	case "", "log":
	case "file":
		if strings.TrimSpace(e.Path) == "" {
			l.errf("errors.path", "file error sink requires a path")
		}
	default:
		l.errf("errors.kind", "unknown error sink %q (use log or file)", e.Kind)
	}
}

func (l *linter) properties(p Properties) {
	switch p.Kind {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(p.RedisAddr) == "" {
			l.errf("properties.redis_addr", "redis property store requires redis_addr")
		}
	default:
		l.errf("properties.kind", "unknown property store %q (use memory or redis)", p.Kind)
	}
}
