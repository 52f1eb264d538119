package transformer

import (
	"context"
	"fmt"

	"scriptetl/internal/row"
)

// RequireLoopRows forwards rows whose required fields are all non-NULL.
// Fields are resolved by name against each row's shape once per distinct
// shape. Invalid rows are dropped (r.Free()) and reported via onReject.
//
// The stage never returns early on cancellation: it drains 'in', freeing
// each row, so upstream goroutines cannot block. The caller closes 'out'.
func RequireLoopRows(
	ctx context.Context,
	required []string,
	in <-chan *row.Row,
	out chan<- *row.Row,
	onReject func(line int, reason string),
) {
	var (
		lastShape *row.Shape
		reqIx     []int
		missing   string
	)

	for r := range in {
		if ctx.Err() != nil {
			r.Free()
			continue
		}

		if r.Shape != lastShape {
			lastShape = r.Shape
			reqIx, missing = resolveRequired(r.Shape, required)
		}

		reason := ""
		if missing != "" {
			reason = fmt.Sprintf("required field %s is not in the row", missing)
		}
		for _, ix := range reqIx {
			if reason != "" {
				break
			}
			if ix >= len(r.V) || r.V[ix] == nil {
				reason = fmt.Sprintf("missing required field %s", r.Shape.Field(ix).Name)
			}
		}

		if reason != "" {
			if onReject != nil {
				onReject(r.Line, reason)
			}
			r.Free()
			continue
		}

		select {
		case out <- r:
		case <-ctx.Done():
			r.Free()
		}
	}
}

func resolveRequired(sh *row.Shape, required []string) ([]int, string) {
	if sh == nil {
		if len(required) > 0 {
			return nil, required[0]
		}
		return nil, ""
	}
	ix := make([]int, 0, len(required))
	for _, name := range required {
		i := sh.IndexOf(name)
		if i < 0 {
			return nil, name
		}
		ix = append(ix, i)
	}
	return ix, ""
}
