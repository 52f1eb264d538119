// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package. A batch run has no scrape window, so everything is
// collected into a private registry and pushed once on Flush.
//
// Only the metric names the pipeline records are known; anything else is
// dropped. The Pushgateway "job" grouping key carries the pipeline job, so
// the job label itself is not repeated on each series.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"scriptetl/internal/metrics"
)

// Metric names recorded by the metrics package.
const (
	stepTotal     = "etl_step_total"
	stepDuration  = "etl_step_duration_seconds"
	recordsTotal  = "etl_records_total"
	batchesTotal  = "etl_batches_total"
	sessionsTotal = "etl_script_sessions_total"
)

type counterDef struct {
	name, help string
	labels     []string
}

var counterDefs = []counterDef{
	{stepTotal, "Pipeline stage executions by step and status.", []string{"step", "status"}},
	{recordsTotal, "Rows by outcome kind (processed, script_dropped, inserted, ...).", []string{"kind"}},
	{batchesTotal, "Loader batches flushed.", nil},
	{sessionsTotal, "Script sessions compiled by step and script set fingerprint.", []string{"step", "fingerprint"}},
}

type labeledCounter struct {
	vec    *prometheus.CounterVec
	labels []string
}

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	counters  map[string]labeledCounter
	durations *prometheus.SummaryVec
}

// NewBackend registers the pipeline collectors for jobName ("etl" when
// empty). gatewayURL is the Pushgateway base URL, e.g.
// http://pushgateway:9091.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "etl"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]labeledCounter, len(counterDefs)),
	}
	for _, d := range counterDefs {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: d.name, Help: d.help}, d.labels)
		if err := b.reg.Register(vec); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", d.name, err)
		}
		b.counters[d.name] = labeledCounter{vec: vec, labels: d.labels}
	}

	b.durations = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:       stepDuration,
		Help:       "Pipeline stage duration in seconds by step and status.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"step", "status"})
	if err := b.reg.Register(b.durations); err != nil {
		return nil, fmt.Errorf("prompush: register %s: %w", stepDuration, err)
	}
	return b, nil
}

func labelValues(labels metrics.Labels, names []string) []string {
	vals := make([]string, len(names))
	for i, n := range names {
		vals[i] = labels[n]
	}
	return vals
}

// IncCounter adds delta to a known counter. Missing labels are recorded as
// empty values.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	c, ok := b.counters[name]
	if !ok {
		return
	}
	c.vec.WithLabelValues(labelValues(labels, c.labels)...).Add(delta)
}

// ObserveHistogram records stage durations; other names are dropped.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != stepDuration || b.durations == nil {
		return
	}
	b.durations.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the registry to the Pushgateway, replacing the job's group.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
