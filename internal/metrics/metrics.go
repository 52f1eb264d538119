// Package metrics records pipeline outcomes through a pluggable Backend.
// The default backend discards everything, so stages record unconditionally;
// Prometheus Pushgateway and DogStatsD backends live in subpackages.
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend receives counters and duration observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered data, if the backend buffers at all.
	Flush() error
}

// Row outcome kinds. Together they account for every row the reader
// produced: processed = coerce_rejected + script_dropped + script_routed +
// require_rejected + inserted on a clean run.
const (
	KindProcessed       = "processed"
	KindParseErrors     = "parse_errors"
	KindCoerceRejected  = "coerce_rejected"
	KindRequireRejected = "require_rejected"
	KindScriptRead      = "script_read"
	KindScriptEmitted   = "script_emitted"
	KindScriptDropped   = "script_dropped"
	KindScriptRouted    = "script_routed"
	KindScriptErrors    = "script_errors"
	KindInserted        = "inserted"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

type holder struct{ Backend }

var current atomic.Pointer[holder]

func init() { current.Store(&holder{nopBackend{}}) }

func active() Backend { return current.Load().Backend }

// SetBackend installs b for the whole process. Nil is ignored.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	current.Store(&holder{b})
}

// Flush flushes the installed backend.
func Flush() error { return active().Flush() }

// RecordStep counts one execution of a stage and observes its duration,
// labelled success or failure by err.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	b := active()
	b.IncCounter("etl_step_total", 1, lbls)
	b.ObserveHistogram("etl_step_duration_seconds", d.Seconds(), lbls)
}

// RecordRow adds delta rows of kind for job. Non-positive deltas are
// ignored.
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	active().IncCounter("etl_records_total", float64(delta), Labels{"job": job, "kind": kind})
}

// RecordBatches counts loader batches.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	active().IncCounter("etl_batches_total", float64(delta), Labels{"job": job})
}

// RecordSession counts script sessions a worker compiled for a step, tagged
// with the script set fingerprint in hex.
func RecordSession(job, step string, fingerprint uint64, compiles int64) {
	if compiles <= 0 {
		return
	}
	active().IncCounter("etl_script_sessions_total", float64(compiles), Labels{
		"job":         job,
		"step":        step,
		"fingerprint": strconv.FormatUint(fingerprint, 16),
	})
}
