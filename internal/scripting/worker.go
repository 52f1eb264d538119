package scripting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"scriptetl/internal/logging"
	"scriptetl/internal/row"
	"scriptetl/internal/variables"
)

// Disposition is what happened to one input row.
type Disposition int

const (
	Emit Disposition = iota
	Drop
	Route
	HaltClean
	HaltError
)

func (d Disposition) String() string {
	switch d {
	case Emit:
		return "emit"
	case Drop:
		return "drop"
	case Route:
		return "route"
	case HaltClean:
		return "halt_clean"
	case HaltError:
		return "halt_error"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// Outcome is the result of Worker.Process. Row is set for Emit; Err for
// Route and HaltError.
type Outcome struct {
	Disposition Disposition
	Row         *row.Row
	Err         error
}

// ErrorRow is an input row diverted after a runtime failure.
type ErrorRow struct {
	Row     *row.Row
	Message string
	Code    string
}

var ErrWorkerClosed = errors.New("script worker closed")

// Worker is one parallel copy of the step. It owns its session and processes
// rows strictly one at a time; it is not safe for concurrent use.
type Worker struct {
	step   *Step
	id     string
	copy   int
	logger *slog.Logger
	vars   *variables.Space
	ctx    context.Context

	session *Session
	initErr error
	closed  bool
	failed  bool

	compiles atomic.Int64
	runs     atomic.Int64
	read     atomic.Int64
}

// NewWorker creates copy n of the step. The session is built lazily on the
// first row.
func (s *Step) NewWorker(n int) *Worker {
	id := uuid.NewString()
	return &Worker{
		step:   s,
		id:     id,
		copy:   n,
		logger: s.logger.With(logging.Step(s.cfg.Name), logging.Worker(id), slog.Int("copy", n)),
		vars:   variables.NewSpace(fmt.Sprintf("%s#%d", s.cfg.Name, n), s.parent),
	}
}

// ID is the worker's unique identifier.
func (w *Worker) ID() string { return w.id }

// Compiles counts script compilations. It stays constant after the first row.
func (w *Worker) Compiles() int64 { return w.compiles.Load() }

// Runs counts transform script executions.
func (w *Worker) Runs() int64 { return w.runs.Load() }

// Failed reports a teardown failure.
func (w *Worker) Failed() bool { return w.failed }

// Variables is the worker's local variable space.
func (w *Worker) Variables() *variables.Space { return w.vars }

// Session returns the live session, or nil before the first row and after
// Close.
func (w *Worker) Session() *Session { return w.session }

// Process runs the transform for one row. The input row is never modified
// and stays owned by the caller; an emitted row is a new pooled row.
func (w *Worker) Process(ctx context.Context, in *row.Row) Outcome {
	if w.closed {
		return Outcome{Disposition: HaltError, Err: ErrWorkerClosed}
	}
	w.ctx = ctx

	if w.session == nil {
		if w.initErr == nil {
			s, err := w.newSession(in.Shape)
			if err != nil {
				w.initErr = &InitError{Step: w.step.cfg.Name, Err: err}
				w.logger.Error("script session init failed", logging.Error(err))
			} else {
				w.session = s
				w.logger.Debug("script session ready",
					logging.Fingerprint(w.step.fingerprint),
					slog.Int("used_fields", len(s.used)),
					slog.String("output_shape", s.outputShape.String()))
			}
		}
		if w.initErr != nil {
			return Outcome{Disposition: HaltError, Err: w.initErr}
		}
	}
	s := w.session

	if len(in.V) != s.inputShape.Len() {
		return w.failRow(in, fmt.Errorf("row has %d values, shape has %d", len(in.V), s.inputShape.Len()))
	}

	w.read.Add(1)
	s.bind(in)
	w.runs.Add(1)
	if err := protectedRun(s.l, Transform.String()); err != nil {
		return w.failRow(in, err)
	}

	switch s.signal() {
	case Skip:
		return Outcome{Disposition: Drop}
	case Abort:
		w.logger.Info("transformation aborted by script", logging.Line(in.Line))
		return Outcome{Disposition: HaltClean}
	case Error:
		return Outcome{
			Disposition: HaltError,
			Err:         fmt.Errorf("script step %q: row %d: %w", w.step.cfg.Name, in.Line, ErrScriptFailed),
		}
	}

	out, err := s.assemble(in, w.step.cfg.Fields)
	if err != nil {
		return w.failRow(in, err)
	}
	return Outcome{Disposition: Emit, Row: out}
}

func (w *Worker) failRow(in *row.Row, err error) Outcome {
	rerr := &RuntimeError{Step: w.step.cfg.Name, Line: in.Line, Err: err}
	if w.step.cfg.ErrorRouting {
		return Outcome{Disposition: Route, Err: rerr}
	}
	w.logger.Error("script failed", logging.Line(in.Line), logging.Error(err))
	return Outcome{Disposition: HaltError, Err: rerr}
}

// Close tears the session down: it runs the end script, if any, and releases
// the interpreter. An end script failure is logged and marks the worker
// failed; the error is returned for inspection only. Close is idempotent.
func (w *Worker) Close() error {
	w.closed = true
	s := w.session
	w.session = nil
	if s == nil {
		return nil
	}
	if err := s.close(); err != nil {
		w.failed = true
		terr := &TeardownError{Step: w.step.cfg.Name, Err: err}
		w.logger.Error("script teardown failed", logging.Error(err))
		return terr
	}
	return nil
}
