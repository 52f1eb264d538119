// Package csv streams delimited text into pooled rows.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"scriptetl/internal/config"
	"scriptetl/internal/row"
)

// ErrNoColumns is returned when a headerless stream has no configured columns.
var ErrNoColumns = errors.New("csv: no header and no columns configured")

// Reader streams CSV records into pooled *row.Row objects aligned to a fixed
// column order. Create it with NewReader, which consumes the header line.
type Reader struct {
	src     io.ReadCloser
	cr      *csv.Reader
	columns []string
	colIx   []int // colIx[target] = source index, or -1
	shape   *row.Shape
	trim    bool
	line    int
}

// NewReader prepares a streaming CSV reader over src.
//
// Options (all optional):
//   - has_header (bool; default true)
//   - columns ([]string): target column order. Defaults to the normalized
//     header names. Required when has_header is false.
//   - header_map (object): source header -> canonical name. Unmapped
//     headers are lowercased and spaces become underscores.
//   - comma (string; first rune; default ',')
//   - trim_space (bool; default true)
//   - lazy_quotes (bool; default false)
//   - fields_per_record (int; 0 = variable, >0 = enforce)
//   - scrub, stream_scrub_likvidaci: streaming byte rewrites, see ScrubRule
//
// On error src is closed.
func NewReader(src io.ReadCloser, opt config.Options) (*Reader, error) {
	rules, err := scrubRules(opt)
	if err != nil {
		src.Close()
		return nil, err
	}
	wrapped := wrapWithScrub(src, rules)

	cr := csv.NewReader(wrapped)
	cr.Comma = opt.Rune("comma", ',')
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	if n := opt.Int("fields_per_record", 0); n != 0 {
		cr.FieldsPerRecord = n
	} else {
		cr.FieldsPerRecord = -1
	}

	r := &Reader{
		src:     wrapped,
		cr:      cr,
		columns: opt.StringSlice("columns"),
		trim:    opt.Bool("trim_space", true),
	}

	if opt.Bool("has_header", true) {
		r.line++
		hdr, err := cr.Read()
		if err != nil {
			wrapped.Close()
			return nil, fmt.Errorf("read header: %w", err)
		}
		srcToIdx := make(map[string]int, len(hdr))
		names := make([]string, len(hdr))
		hm := opt.StringMap("header_map")
		for i, h := range hdr {
			h = normalizeHeader(h, i == 0, hm)
			srcToIdx[h] = i
			names[i] = h
		}
		if len(r.columns) == 0 {
			r.columns = names
		}
		r.colIx = make([]int, len(r.columns))
		for t, target := range r.columns {
			if si, ok := srcToIdx[target]; ok {
				r.colIx[t] = si
			} else {
				r.colIx[t] = -1
			}
		}
	} else {
		if len(r.columns) == 0 {
			wrapped.Close()
			return nil, ErrNoColumns
		}
		r.colIx = make([]int, len(r.columns))
		for i := range r.colIx {
			r.colIx[i] = i
		}
	}

	fields := make([]row.Meta, len(r.columns))
	for i, c := range r.columns {
		fields[i] = row.Meta{Name: c, Type: row.String}
	}
	r.shape = row.NewShape(fields...)
	return r, nil
}

func normalizeHeader(h string, first bool, hm map[string]string) string {
	if first {
		h = strings.TrimPrefix(h, "\uFEFF")
	}
	if hasEdgeSpace(h) {
		h = strings.TrimSpace(h)
	}
	if mapped, ok := hm[h]; ok {
		return mapped
	}
	return strings.ReplaceAll(strings.ToLower(h), " ", "_")
}

// Columns returns the target column order.
func (r *Reader) Columns() []string { return r.columns }

// Close releases the source of a reader that will not be streamed.
func (r *Reader) Close() error { return r.src.Close() }

// Shape returns the all-string shape stamped on emitted rows.
func (r *Reader) Shape() *row.Shape { return r.shape }

// Stream emits one row per record until EOF or cancellation and closes the
// source on return. Record-level parse errors are reported via onErr and the
// record is skipped. Empty cells become nil.
func (r *Reader) Stream(ctx context.Context, out chan<- *row.Row, onErr func(line int, err error)) error {
	defer r.src.Close()

	const logEveryN = 50_000
	emitted := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.line++
		rec, err := r.cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(r.line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		rw := row.New(r.shape)
		rw.Line = r.line
		for t, si := range r.colIx {
			if si < 0 || si >= len(rec) {
				continue
			}
			v := rec[si]
			if r.trim && hasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			if v != "" {
				rw.V[t] = v
			}
		}

		select {
		case out <- rw:
			emitted++
			if emitted%logEveryN == 0 {
				log.Printf("reader: line=%d emitted=%d", r.line, emitted)
			}
		case <-ctx.Done():
			rw.Free()
			return ctx.Err()
		}
	}
}

// hasEdgeSpace reports whether s starts or ends with ASCII whitespace.
func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case ' ', '\t', '\n', '\r':
		return true
	}
	switch s[len(s)-1] {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
