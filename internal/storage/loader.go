package storage

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"scriptetl/internal/metrics"
	"scriptetl/internal/row"
)

// CopyFn is the bulk insert primitive a loader drives; Repository.CopyFrom
// satisfies it.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadStats are shared between loader workers.
type LoadStats struct {
	Inserted atomic.Int64
	Batches  atomic.Int64
}

// LoadConfig configures one loader worker.
type LoadConfig struct {
	// Columns are the destination columns. Each row is projected onto them
	// by name through its shape. Empty means every field of the row shape.
	Columns   []string
	BatchSize int
	Copy      CopyFn
	Stats     *LoadStats
	// Job labels metrics.
	Job string
	// Now defaults to time.Now.
	Now func() time.Time
}

// LoadRows consumes rows, batches them and calls cfg.Copy per batch. Rows are
// freed after their batch is flushed, whether the flush failed or not.
//
// On a copy error or cancellation LoadRows keeps draining and freeing 'in'
// until it is closed, so upstream stages never block, and then returns the
// error.
func LoadRows(ctx context.Context, cfg LoadConfig, in <-chan *row.Row) error {
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batchSize must be > 0")
	}
	if cfg.Copy == nil {
		return fmt.Errorf("copyFn must not be nil")
	}
	if cfg.Stats == nil {
		cfg.Stats = &LoadStats{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var (
		start   = cfg.Now()
		proj    projector
		columns = cfg.Columns
		bVals   = make([][]any, 0, cfg.BatchSize)
		bRows   = make([]*row.Row, 0, cfg.BatchSize)
	)

	release := func() {
		for _, r := range bRows {
			r.Free()
		}
		bVals = bVals[:0]
		bRows = bRows[:0]
	}

	flush := func() error {
		if len(bVals) == 0 {
			return nil
		}
		defer release()

		if _, err := cfg.Copy(ctx, columns, bVals); err != nil {
			first, last := bRows[0], bRows[len(bRows)-1]
			log.Printf("loader: COPY failed for batch (rows=%d, approx line range=%d-%d): %v",
				len(bRows), first.Line, last.Line, err)
			for i := 0; i < len(bRows) && i < 3; i++ {
				log.Printf("loader: failing batch sample line=%d values=%v", bRows[i].Line, bVals[i])
			}
			return err
		}

		inserted := cfg.Stats.Inserted.Add(int64(len(bVals)))
		batchNum := cfg.Stats.Batches.Add(1)
		metrics.RecordBatches(cfg.Job, 1)
		metrics.RecordRow(cfg.Job, metrics.KindInserted, int64(len(bVals)))

		elapsed := cfg.Now().Sub(start)
		rate := int64(0)
		if elapsed > 0 {
			rate = int64(float64(inserted) / elapsed.Seconds())
		}
		log.Printf("batch=%d rps=%d inserted=%d total_inserted=%d elapsed=%s",
			batchNum, rate, len(bVals), inserted, elapsed.Truncate(time.Millisecond))
		return nil
	}

	drain := func(err error) error {
		for r := range in {
			r.Free()
		}
		return err
	}

	for {
		select {
		case <-ctx.Done():
			release()
			return drain(ctx.Err())

		case r, ok := <-in:
			if !ok {
				if err := ctx.Err(); err != nil {
					release()
					return err
				}
				return flush()
			}
			if len(columns) == 0 {
				columns = r.Shape.Names()
			}
			vals, err := proj.project(r, columns)
			if err != nil {
				r.Free()
				release()
				return drain(err)
			}
			bVals = append(bVals, vals)
			bRows = append(bRows, r)

			if len(bVals) >= cfg.BatchSize {
				if err := flush(); err != nil {
					return drain(err)
				}
			}
		}
	}
}

// projector maps rows onto destination columns, caching the index plan per
// shape.
type projector struct {
	shape    *row.Shape
	ix       []int
	identity bool
}

func (p *projector) project(r *row.Row, columns []string) ([]any, error) {
	if r.Shape == nil {
		if len(r.V) != len(columns) {
			return nil, fmt.Errorf("loader: row at line %d has %d values and no shape, want %d", r.Line, len(r.V), len(columns))
		}
		return r.V, nil
	}
	if r.Shape != p.shape {
		p.shape = r.Shape
		p.ix = p.ix[:0]
		p.identity = r.Shape.Len() == len(columns)
		for i, c := range columns {
			j := r.Shape.IndexOf(c)
			if j < 0 {
				p.shape = nil
				return nil, fmt.Errorf("loader: column %q is not in row shape %s", c, r.Shape)
			}
			p.ix = append(p.ix, j)
			if j != i {
				p.identity = false
			}
		}
	}
	if p.identity {
		return r.V, nil
	}
	out := make([]any, len(p.ix))
	for i, j := range p.ix {
		if j < len(r.V) {
			out[i] = r.V[j]
		}
	}
	return out, nil
}
