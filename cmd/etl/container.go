// Package main wires the script ETL pipeline end-to-end in a streaming,
// channel-based, batched fashion. This file keeps the CLI layer thin: it
// depends only on storage-agnostic interfaces and never imports database
// drivers or backend-specific packages directly.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"scriptetl/internal/config"
	"scriptetl/internal/datasource"
	"scriptetl/internal/logging"
	"scriptetl/internal/metrics"
	csvparser "scriptetl/internal/parser/csv"
	"scriptetl/internal/row"
	"scriptetl/internal/scripting"
	"scriptetl/internal/storage"
	"scriptetl/internal/transformer"
	"scriptetl/internal/variables"
)

const (
	thisMany = 3
)

// counters holds cross-goroutine statistics for the streaming pipeline.
type counters struct {
	processed      atomic.Int64 // rows leaving the reader
	parseErrors    atomic.Int64 // lines the CSV reader could not parse
	coerceRejects  atomic.Int64 // rows dropped by the coerce stage
	requireRejects atomic.Int64 // rows dropped by the require stage
	load           storage.LoadStats
	script         scripting.Result
}

// runtimeConfig contains the resolved concurrency and buffering configuration
// for a streaming run. Values are derived from the pipeline spec with optional
// environment variable overrides (12-factor style).
type runtimeConfig struct {
	transformers  int
	loaderWorkers int
	batchSize     int
	bufferSize    int
}

// runEnv carries what a run needs beyond the pipeline document.
type runEnv struct {
	// baseDir resolves relative source and script paths; usually the
	// directory of the pipeline file.
	baseDir string
	runID   string
	logger  *slog.Logger
}

// Function variables used to introduce test seams.
// In production these point to real implementations; tests can override them.
var (
	newRepositoryFn = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return storage.New(ctx, cfg)
	}

	openSourceFn = func(spec config.Pipeline, baseDir string) (datasource.Source, error) {
		return datasource.FromConfig(spec.Source, baseDir)
	}

	newPropertyStoreFn = newPropertyStore
)

// runStreamed executes a full CSV → coerce → script → require → storage
// pipeline in a streaming, batched, and concurrent fashion.
//
// Stats reported:
//
//   - processed:        rows the reader produced
//   - parse_errors:     lines the CSV reader could not parse
//   - coerce_rejected:  rows dropped by type coercion
//   - script_*:         script step outcomes (emitted, dropped, routed)
//   - require_rejected: rows dropped for missing required fields
//   - inserted:         rows flushed to the database
//
// Concurrency model:
//
//	Reader (CSV; 1)
//	     → tap (counts "processed")
//	     → transform stages in configured order
//	         coerce:  N workers, in place on pooled rows
//	         script:  N copies, each with its own session
//	         require: 1 worker
//	     → [table bootstrap on first row]
//	     → Loader(s) (COPY in batches)
//
// Back-pressure is enforced via bounded channels. A fatal stage error cancels
// the context; every stage drains and frees its remaining input so no
// goroutine blocks.
func runStreamed(ctx context.Context, spec config.Pipeline, env runEnv) error {
	if env.logger == nil {
		env.logger = logging.Discard()
	}
	rt := newRuntimeConfig(spec)
	start := time.Now()

	log.Printf(
		"stream runtime: run=%s transformers=%d loaders=%d batch=%d buffer=%d",
		env.runID, rt.transformers, rt.loaderWorkers, rt.batchSize, rt.bufferSize,
	)

	plan, err := buildPlan(ctx, spec.Transform, env.baseDir)
	if err != nil {
		return err
	}

	repo, err := initRepository(ctx, spec)
	if err != nil {
		return err
	}
	defer repo.Close()

	store, closeStore, err := newPropertyStoreFn(ctx, spec.Properties)
	if err != nil {
		return fmt.Errorf("property store: %w", err)
	}
	defer closeStore()

	src, err := openSourceFn(spec, env.baseDir)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return fmt.Errorf("source open: %w", err)
	}
	reader, err := csvparser.NewReader(rc, spec.Parser.Options)
	if err != nil {
		return fmt.Errorf("csv reader: %w", err)
	}
	// Stream closes the source; until it runs, set-up failures must.
	streaming := false
	defer func() {
		if !streaming {
			_ = reader.Close()
		}
	}()

	// The reader gets its own context so a halting script step can stop
	// input without failing the run.
	readCtx, stopReader := context.WithCancel(ctx)
	defer stopReader()

	var (
		stats    counters
		halted   atomic.Bool
		parseAgg = newErrAgg(thisMany)
		dropAgg  = newErrAgg(thisMany)
	)

	// Resolve typed shapes and script steps before any goroutine starts.
	shape := reader.Shape()
	for i := range plan.stages {
		st := &plan.stages[i]
		switch st.kind {
		case "coerce":
			if err := st.coerce.Check(reader.Columns()); err != nil {
				return fmt.Errorf("coerce spec sanity: %w", err)
			}
			if st.shape, err = st.coerce.Shape(reader.Columns()); err != nil {
				return fmt.Errorf("coerce: %w", err)
			}
			shape = st.shape
		case "script":
			st.step, err = newScriptStep(st.script, st.scripts, spec.Job, env, store, func() {
				halted.Store(true)
				stopReader()
			})
			if err != nil {
				return err
			}
		}
	}
	env.logger.Debug("reader shape resolved", slog.Any("columns", shape.Names()))

	sink, err := newErrorSink(spec.Errors, env.baseDir, env.logger)
	if err != nil {
		return err
	}
	streaming = true

	g, gctx := errgroup.WithContext(ctx)
	// A failing stage stops the reader too; the tap alone would keep
	// draining input until EOF.
	unlink := context.AfterFunc(gctx, stopReader)
	defer unlink()

	// 1) Reader: CSV → pooled rows.
	rawCh := make(chan *row.Row, rt.bufferSize)
	g.Go(func() error {
		defer close(rawCh)
		err := reader.Stream(readCtx, rawCh, func(line int, err error) {
			parseAgg.add(fmt.Sprintf("line=%d: %v", line, err))
			stats.parseErrors.Add(1)
		})
		if err != nil && halted.Load() && errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// 2) Tap: count processed rows.
	tapCh := make(chan *row.Row, rt.bufferSize)
	g.Go(func() error {
		defer close(tapCh)
		for r := range rawCh {
			stats.processed.Add(1)
			select {
			case tapCh <- r:
			case <-gctx.Done():
				r.Free()
			}
		}
		return nil
	})

	// 3) Transform stages in configured order.
	var in <-chan *row.Row = tapCh
	for _, st := range plan.stages {
		out := make(chan *row.Row, rt.bufferSize)
		stageIn := in
		switch st.kind {
		case "coerce":
			runCoerce(g, gctx, rt.transformers, st.shape, st.coerce, stageIn, out, &stats, dropAgg)

		case "script":
			step, name := st.step, st.script.Name
			copies := pickInt(st.script.Copies, rt.transformers)
			errs := make(chan scripting.ErrorRow, rt.bufferSize)
			g.Go(func() error {
				defer close(out)
				defer close(errs)
				res, err := step.Run(gctx, copies, stageIn, out, errs)
				stats.script = res
				if res.Aborted {
					env.logger.Info("script step aborted the run", logging.Step(name))
				}
				return err
			})
			g.Go(func() error {
				for er := range errs {
					if err := sink.write(er); err != nil {
						env.logger.Error("error sink write", logging.Line(er.Row.Line), logging.Error(err))
					}
					er.Row.Free()
				}
				return nil
			})

		case "require":
			fields := st.fields
			g.Go(func() error {
				defer close(out)
				transformer.RequireLoopRows(gctx, fields, stageIn, out, func(line int, reason string) {
					dropAgg.add(fmt.Sprintf("line=%d: %s", line, reason))
					stats.requireRejects.Add(1)
				})
				return nil
			})
		}
		in = out
	}

	// 4) Optional table bootstrap on the first row, which carries the final shape.
	if spec.Storage.DB.AutoCreateTable {
		out := make(chan *row.Row, rt.bufferSize)
		ensureTableOnFirstRow(g, gctx, repo, spec, in, out)
		in = out
	}

	// 5) Loader(s): batch rows and COPY to storage, always freeing rows.
	loadIn := in
	for i := 0; i < rt.loaderWorkers; i++ {
		g.Go(func() error {
			return storage.LoadRows(gctx, storage.LoadConfig{
				Columns:   spec.Storage.DB.Columns,
				BatchSize: rt.batchSize,
				Copy:      repo.CopyFrom,
				Stats:     &stats.load,
				Job:       spec.Job,
			}, loadIn)
		})
	}

	err = g.Wait()
	if cerr := sink.close(); cerr != nil && err == nil {
		err = fmt.Errorf("error sink: %w", cerr)
	}

	logDropSummaries(parseAgg, dropAgg)
	logGlobalSummary(&stats, err)
	recordRunMetrics(spec.Job, &stats)
	metrics.RecordStep(spec.Job, "pipeline", err, time.Since(start))

	return err
}

// runCoerce starts n coerce workers on a shared input and closes out once all
// of them have returned.
func runCoerce(
	g *errgroup.Group,
	ctx context.Context,
	n int,
	shape *row.Shape,
	spec transformer.CoerceSpec,
	in <-chan *row.Row,
	out chan<- *row.Row,
	stats *counters,
	agg *errAgg,
) {
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			defer wg.Done()
			transformer.CoerceLoopRows(ctx, shape, in, out, spec, func(line int, reason string) {
				agg.add(fmt.Sprintf("line=%d: %s", line, reason))
				stats.coerceRejects.Add(1)
			})
			return nil
		})
	}
	g.Go(func() error {
		wg.Wait()
		close(out)
		return nil
	})
}

// ensureTableOnFirstRow creates the target table from the shape of the first
// row, then forwards every row unchanged. On failure it drains and frees the
// rest of the input.
func ensureTableOnFirstRow(g *errgroup.Group, ctx context.Context, repo storage.Repository, spec config.Pipeline, in <-chan *row.Row, out chan<- *row.Row) {
	g.Go(func() error {
		defer close(out)
		first := true
		for r := range in {
			if first {
				first = false
				err := storage.EnsureTable(ctx, spec.Storage.Kind, repo, storage.TableSpec{
					Table:      spec.Storage.DB.Table,
					Shape:      r.Shape,
					Columns:    spec.Storage.DB.Columns,
					KeyColumns: spec.Storage.DB.KeyColumns,
				})
				if err != nil {
					r.Free()
					for r := range in {
						r.Free()
					}
					return err
				}
				log.Printf("table ensured: %s", spec.Storage.DB.Table)
			}
			select {
			case out <- r:
			case <-ctx.Done():
				r.Free()
			}
		}
		if first {
			log.Printf("auto-create table skipped: no rows reached %s", spec.Storage.DB.Table)
		}
		return nil
	})
}

// newRuntimeConfig resolves the runtime configuration for a streaming run
// using the pipeline spec and environment-variable fallbacks.
func newRuntimeConfig(spec config.Pipeline) runtimeConfig {
	return runtimeConfig{
		transformers:  pickInt(spec.Runtime.TransformWorkers, getenvInt("ETL_TRANSFORM_WORKERS", 4)),
		loaderWorkers: pickInt(spec.Runtime.LoaderWorkers, getenvInt("ETL_LOADER_WORKERS", 1)), // 1 writer per table is usually best
		batchSize:     pickInt(spec.Runtime.BatchSize, getenvInt("ETL_BATCH_SIZE", 10000)),
		bufferSize:    pickInt(spec.Runtime.ChannelBuffer, getenvInt("ETL_CH_BUFFER", 4096)),
	}
}

// initRepository constructs the storage repository from the pipeline spec.
func initRepository(ctx context.Context, spec config.Pipeline) (storage.Repository, error) {
	repo, err := newRepositoryFn(ctx, storage.Config{
		Kind:       spec.Storage.Kind,
		DSN:        spec.Storage.DB.DSN,
		Table:      spec.Storage.DB.Table,
		Columns:    spec.Storage.DB.Columns,
		KeyColumns: spec.Storage.DB.KeyColumns,
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

// newPropertyStore builds the process-wide property store and seeds it with
// the configured values. The returned func releases it.
func newPropertyStore(ctx context.Context, p config.Properties) (variables.PropertyStore, func(), error) {
	switch p.Kind {
	case "", "memory":
		return variables.NewMemoryStore(p.Values), func() {}, nil
	case "redis":
		rs, err := variables.NewRedisStore(ctx, variables.RedisConfig{
			Addr: p.RedisAddr,
			DB:   p.RedisDB,
			Hash: p.RedisHash,
		})
		if err != nil {
			return nil, nil, err
		}
		for k, v := range p.Values {
			if err := rs.Set(ctx, k, v); err != nil {
				_ = rs.Close()
				return nil, nil, fmt.Errorf("seed %s: %w", k, err)
			}
		}
		return rs, func() { _ = rs.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown property store kind %q", p.Kind)
	}
}

// logDropSummaries prints aggregated parse errors and stage drops. Only the
// first N messages (per errAgg) are shown.
func logDropSummaries(parseAgg, dropAgg *errAgg) {
	if parseAgg.count > 0 {
		log.Printf("parse errors: %d (showing first %d)", parseAgg.count, len(parseAgg.first))
		for i, s := range parseAgg.first {
			log.Printf("  #%03d: %s", i+1, s)
		}
	}
	if dropAgg.count > 0 {
		log.Printf("stage rejects: %d (showing first %d)", dropAgg.count, len(dropAgg.first))
		for i, s := range dropAgg.first {
			log.Printf("  #%03d: %s", i+1, s)
		}
	}
}

// logGlobalSummary prints final aggregated statistics for the run.
//
// For a run that completed without error or abort, every processed row is
// accounted for exactly once:
//
//	processed == coerce_rejected + script_dropped + script_routed + require_rejected + inserted
func logGlobalSummary(c *counters, runErr error) {
	processed := c.processed.Load()
	coerceRejected := c.coerceRejects.Load()
	requireRejected := c.requireRejects.Load()
	inserted := c.load.Inserted.Load()

	log.Printf(
		"summary: processed=%d parse_errors=%d coerce_rejected=%d script_read=%d script_emitted=%d script_dropped=%d script_routed=%d require_rejected=%d inserted=%d batches=%d",
		processed,
		c.parseErrors.Load(),
		coerceRejected,
		c.script.Read,
		c.script.Emitted,
		c.script.Dropped,
		c.script.Routed,
		requireRejected,
		inserted,
		c.load.Batches.Load(),
	)

	if runErr != nil || c.script.Aborted {
		return
	}
	accounted := coerceRejected + c.script.Dropped + c.script.Routed + requireRejected + inserted
	if accounted != processed {
		log.Printf(
			"WARNING: row accounting mismatch: processed=%d accounted=%d (delta=%d)",
			processed,
			accounted,
			processed-accounted,
		)
	}
}

func recordRunMetrics(job string, c *counters) {
	metrics.RecordRow(job, metrics.KindProcessed, c.processed.Load())
	metrics.RecordRow(job, metrics.KindParseErrors, c.parseErrors.Load())
	metrics.RecordRow(job, metrics.KindCoerceRejected, c.coerceRejects.Load())
	metrics.RecordRow(job, metrics.KindRequireRejected, c.requireRejects.Load())
}

// ----------------------------------------------------------------------------
// Small helpers
// ----------------------------------------------------------------------------

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

// errAgg keeps the first few messages of a stream of errors and a total count.
type errAgg struct {
	mu    sync.Mutex
	limit int
	count int
	first []string
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}
