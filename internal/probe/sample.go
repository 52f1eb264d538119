package probe

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"scriptetl/internal/datasource"
)

// maxSampleRows caps the rows kept for inference.
const maxSampleRows = 150000

// readSample reads at most maxBytes from src and cuts the result at the last
// newline so no half record reaches the CSV reader.
func readSample(ctx context.Context, src datasource.Source, maxBytes int) ([]byte, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	b, err := io.ReadAll(io.LimitReader(rc, int64(maxBytes)))
	if err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	if len(b) == maxBytes {
		if i := bytes.LastIndexByte(b, '\n'); i > 0 {
			b = b[:i+1]
		}
	}
	return b, nil
}

// readCSVSample splits a sample into header and data rows. Unparseable
// records and rows whose width differs from the header are skipped so every
// kept row lines up with the header.
func readCSVSample(data []byte, delim rune) (header []string, rows [][]string, err error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.Comma = delim
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	next := func() ([]string, bool) {
		for {
			rec, err := r.Read()
			if err == io.EOF {
				return nil, false
			}
			if err == nil && len(rec) > 0 {
				return rec, true
			}
		}
	}

	header, ok := next()
	if !ok {
		return nil, nil, fmt.Errorf("sample has no header")
	}
	for len(rows) < maxSampleRows {
		rec, ok := next()
		if !ok {
			break
		}
		if len(rec) == len(header) {
			rows = append(rows, rec)
		}
	}
	return header, rows, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}
