package main

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"scriptetl/internal/config"
	"scriptetl/internal/logging"
	"scriptetl/internal/scripting"
)

// errorSink receives rows a script step routed away from the main flow. It
// is written from one goroutine; the caller frees the row afterwards.
type errorSink interface {
	write(er scripting.ErrorRow) error
	close() error
}

func newErrorSink(cfg config.ErrorSink, baseDir string, logger *slog.Logger) (errorSink, error) {
	switch cfg.Kind {
	case "", "log":
		return logSink{logger: logger}, nil
	case "file":
		path := cfg.Path
		if baseDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		return newCSVSink(path)
	default:
		return nil, fmt.Errorf("unsupported errors.kind=%s", cfg.Kind)
	}
}

type logSink struct {
	logger *slog.Logger
}

func (s logSink) write(er scripting.ErrorRow) error {
	s.logger.Warn("script error row",
		logging.Line(er.Row.Line),
		slog.String("code", er.Code),
		slog.String("message", er.Message),
	)
	return nil
}

func (logSink) close() error { return nil }

// csvSink writes one record per error row: line, code, message and the input
// values rendered as text (empty for NULL).
type csvSink struct {
	f      *os.File
	w      *csv.Writer
	header bool
}

func newCSVSink(path string) (*csvSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("error sink: %w", err)
	}
	return &csvSink{f: f, w: csv.NewWriter(f)}, nil
}

func (s *csvSink) write(er scripting.ErrorRow) error {
	r := er.Row
	if !s.header {
		s.header = true
		rec := []string{"line", "code", "message"}
		if r.Shape != nil {
			rec = append(rec, r.Shape.Names()...)
		}
		if err := s.w.Write(rec); err != nil {
			return err
		}
	}
	rec := make([]string, 0, 3+len(r.V))
	rec = append(rec, strconv.Itoa(r.Line), er.Code, er.Message)
	for _, v := range r.V {
		if v == nil {
			rec = append(rec, "")
			continue
		}
		rec = append(rec, fmt.Sprint(v))
	}
	return s.w.Write(rec)
}

func (s *csvSink) close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}
