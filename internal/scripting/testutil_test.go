package scripting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scriptetl/internal/row"
)

func testShape() *row.Shape {
	return row.NewShape(
		row.Meta{Name: "id", Type: row.Integer},
		row.Meta{Name: "name", Type: row.String},
		row.Meta{Name: "amount", Type: row.Number},
	)
}

func mkRow(sh *row.Shape, line int, vals ...any) *row.Row {
	r := row.New(sh)
	copy(r.V, vals)
	r.Line = line
	return r
}

func transform(src string) []Definition {
	return []Definition{{Role: Transform, Name: "main", Source: src}}
}

func newTestStep(t *testing.T, cfg Config, opts ...Option) *Step {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "js"
	}
	opts = append([]Option{WithLocation(time.UTC)}, opts...)
	s, err := NewStep(cfg, opts...)
	require.NoError(t, err)
	return s
}

// numberedRows returns n rows with id 1..n, name "n<id>" and amount id/2.
func numberedRows(n int) []*row.Row {
	sh := testShape()
	rows := make([]*row.Row, n)
	for i := range rows {
		id := int64(i + 1)
		rows[i] = mkRow(sh, i+1, id, "n", float64(id)/2)
	}
	return rows
}

type runOutput struct {
	res  Result
	err  error
	out  []*row.Row
	errs []ErrorRow
}

func runStep(t *testing.T, s *Step, copies int, rows []*row.Row) runOutput {
	t.Helper()
	in := make(chan *row.Row)
	out := make(chan *row.Row, len(rows)+1)
	errs := make(chan ErrorRow, len(rows)+1)

	go func() {
		for _, r := range rows {
			in <- r
		}
		close(in)
	}()

	res, err := s.Run(context.Background(), copies, in, out, errs)
	close(out)
	close(errs)

	ro := runOutput{res: res, err: err}
	for r := range out {
		ro.out = append(ro.out, r)
	}
	for e := range errs {
		ro.errs = append(ro.errs, e)
	}
	return ro
}

// processOne runs a single row through a fresh worker and closes it.
func processOne(t *testing.T, s *Step, r *row.Row) Outcome {
	t.Helper()
	w := s.NewWorker(0)
	defer func() { _ = w.Close() }()
	return w.Process(context.Background(), r)
}
