package scripting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"scriptetl/internal/logging"
	"scriptetl/internal/metrics"
	"scriptetl/internal/row"
	"scriptetl/internal/variables"
)

// Config is the static configuration of a script step. It is immutable once
// the step is built.
type Config struct {
	// Name identifies the step in logs and metrics.
	Name string
	// Pipeline is exposed to scripts as _TransformationName_.
	Pipeline string

	Scripts []Definition
	Fields  []FieldSpec

	// Compatible selects the legacy boxed value representation.
	Compatible bool
	// Optimization is "" (default) or an integer in 0..9.
	Optimization string
	// ErrorRouting diverts rows that fail at runtime to the error channel
	// instead of stopping the step.
	ErrorRouting bool
	// CompensateTZ makes millisecond based dateDiff units add the zone offset
	// difference between both dates.
	CompensateTZ bool
}

// Step is a configured script step. Each Run starts fresh workers.
type Step struct {
	cfg         Config
	scripts     ScriptSet
	level       int
	fingerprint uint64

	logger   *slog.Logger
	store    variables.PropertyStore
	parent   *variables.Space
	location *time.Location
	now      func() time.Time
	onHalt   func()
	job      string
}

// Option customises a Step.
type Option func(*Step)

func WithLogger(l *slog.Logger) Option {
	return func(s *Step) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPropertyStore sets the process-wide store used by System level
// variables and getEnvironmentVar.
func WithPropertyStore(ps variables.PropertyStore) Option {
	return func(s *Step) { s.store = ps }
}

// WithParentSpace attaches every worker's variable space below p.
func WithParentSpace(p *variables.Space) Option {
	return func(s *Step) { s.parent = p }
}

// WithLocation sets the zone used to parse dates from text and timestamps.
func WithLocation(loc *time.Location) Option {
	return func(s *Step) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Step) {
		if now != nil {
			s.now = now
		}
	}
}

// WithHaltFunc registers fn to run once a worker halts the step, typically
// cancelling the upstream reader.
func WithHaltFunc(fn func()) Option {
	return func(s *Step) { s.onHalt = fn }
}

// WithMetricsJob sets the job label of recorded metrics.
func WithMetricsJob(job string) Option {
	return func(s *Step) { s.job = job }
}

// NewStep validates cfg. Problems a session would hit on every worker are
// reported here as an InitError.
func NewStep(cfg Config, opts ...Option) (*Step, error) {
	s := &Step{
		cfg:      cfg,
		scripts:  ResolveDefinitions(cfg.Scripts),
		logger:   logging.Discard(),
		location: time.Local,
		now:      time.Now,
		job:      "etl",
	}
	for _, o := range opts {
		o(s)
	}

	fail := func(err error) (*Step, error) {
		return nil, &InitError{Step: cfg.Name, Err: err}
	}
	if s.scripts.Transform == nil {
		return fail(ErrNoTransform)
	}
	level, err := ParseOptimization(cfg.Optimization)
	if err != nil {
		return fail(err)
	}
	s.level = level
	for i, f := range cfg.Fields {
		if f.Name == "" {
			return fail(fmt.Errorf("field %d: name is required", i))
		}
		if f.Type == row.None {
			return fail(fmt.Errorf("field %q: type is required", f.Name))
		}
		if isReserved(f.OutputName()) {
			return fail(fmt.Errorf("%w: %q", ErrReservedName, f.OutputName()))
		}
	}
	for _, a := range s.scripts.Aux {
		if a.Name == "" {
			return fail(errors.New("auxiliary script without a name"))
		}
	}
	s.fingerprint = s.scripts.Fingerprint()
	return s, nil
}

// Config returns the step configuration.
func (s *Step) Config() Config { return s.cfg }

// Fingerprint identifies the active script set.
func (s *Step) Fingerprint() uint64 { return s.fingerprint }

// Result summarises a Run.
type Result struct {
	Read    int64
	Emitted int64
	Dropped int64
	Routed  int64
	Errors  int64
	// Aborted is set when a script requested ABORT_TRANSFORMATION.
	Aborted bool
	// Failed is set when any worker's teardown failed.
	Failed bool
}

type tally struct {
	read, emitted, dropped, routed, errors atomic.Int64
	failed                                 atomic.Bool
}

var errAborted = errors.New("aborted by script")

// Run processes in with copies workers until in is closed, a worker halts or
// ctx is cancelled. Emitted rows go to out and routed failures to errs (nil
// errs logs and frees them). Run does not close out or errs.
//
// After a halt the remaining input is drained and freed so the producer
// never blocks. ABORT stops cleanly and returns a nil error with
// Result.Aborted set.
func (s *Step) Run(ctx context.Context, copies int, in <-chan *row.Row, out chan<- *row.Row, errs chan<- ErrorRow) (Result, error) {
	if copies < 1 {
		copies = 1
	}
	start := time.Now()
	t := &tally{}
	g, gctx := errgroup.WithContext(ctx)
	var halted atomic.Bool

	for i := 0; i < copies; i++ {
		w := s.NewWorker(i)
		g.Go(func() error {
			err := s.work(gctx, w, in, out, errs, t)
			if err != nil && halted.CompareAndSwap(false, true) && s.onHalt != nil {
				s.onHalt()
			}
			return err
		})
	}
	err := g.Wait()

	if err != nil || ctx.Err() != nil {
		drained := 0
		for r := range in {
			r.Free()
			drained++
		}
		if drained > 0 {
			s.logger.Info("drained input after halt", logging.Step(s.cfg.Name), slog.Int("rows", drained))
		}
	}

	res := Result{
		Read:    t.read.Load(),
		Emitted: t.emitted.Load(),
		Dropped: t.dropped.Load(),
		Routed:  t.routed.Load(),
		Errors:  t.errors.Load(),
		Failed:  t.failed.Load(),
	}
	if errors.Is(err, errAborted) {
		res.Aborted = true
		err = nil
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	metrics.RecordStep(s.job, s.cfg.Name, err, time.Since(start))
	metrics.RecordRow(s.job, metrics.KindScriptRead, res.Read)
	metrics.RecordRow(s.job, metrics.KindScriptEmitted, res.Emitted)
	metrics.RecordRow(s.job, metrics.KindScriptDropped, res.Dropped)
	metrics.RecordRow(s.job, metrics.KindScriptRouted, res.Routed)
	metrics.RecordRow(s.job, metrics.KindScriptErrors, res.Errors)
	return res, err
}

func (s *Step) work(ctx context.Context, w *Worker, in <-chan *row.Row, out chan<- *row.Row, errs chan<- ErrorRow, t *tally) error {
	defer func() {
		w.ctx = context.WithoutCancel(ctx)
		if err := w.Close(); err != nil {
			t.failed.Store(true)
		}
		t.read.Add(w.read.Load())
		metrics.RecordSession(s.job, s.cfg.Name, s.fingerprint, w.Compiles())
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-in:
			if !ok {
				return nil
			}
			o := w.Process(ctx, r)
			switch o.Disposition {
			case Emit:
				r.Free()
				select {
				case out <- o.Row:
					t.emitted.Add(1)
				case <-ctx.Done():
					o.Row.Free()
					return nil
				}
			case Drop:
				r.Free()
				t.dropped.Add(1)
			case Route:
				t.routed.Add(1)
				er := ErrorRow{Row: r, Message: o.Err.Error(), Code: ErrorCode}
				if errs == nil {
					w.logger.Warn("script error row", logging.Line(r.Line), logging.Error(o.Err))
					r.Free()
					continue
				}
				select {
				case errs <- er:
				case <-ctx.Done():
					r.Free()
					return nil
				}
			case HaltClean:
				r.Free()
				return errAborted
			case HaltError:
				r.Free()
				t.errors.Add(1)
				return o.Err
			}
		}
	}
}
