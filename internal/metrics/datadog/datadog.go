// Package datadog sends pipeline metrics to a DogStatsD agent. Labels become
// "key:value" tags; durations are sent as distributions so percentiles
// aggregate across hosts, other observations as histograms.
package datadog

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/DataDog/datadog-go/v5/statsd"

	"scriptetl/internal/metrics"
)

// Config selects the agent and the tags shared by every metric.
type Config struct {
	// Addr is "host:port" for UDP or "unix:///path" for a socket.
	Addr string
	// Namespace prefixes metric names, e.g. "scriptetl.".
	Namespace string
	// GlobalTags are added to every metric, e.g. "job:scores".
	GlobalTags []string
}

// Backend implements metrics.Backend. The zero value drops everything.
type Backend struct {
	client statsd.ClientInterface
}

// NewBackend dials the agent described by cfg.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: Addr is required")
	}

	var opts []statsd.Option
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}
	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

// IncCounter sends a count; fractional deltas are rounded.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Count(name, int64(math.Round(delta)), labelsToTags(labels), 1)
}

// ObserveHistogram sends *_seconds names as distributions and everything
// else as histograms.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	tags := labelsToTags(labels)
	if strings.HasSuffix(name, "_seconds") {
		_ = b.client.Distribution(name, value, tags, 1)
		return
	}
	_ = b.client.Histogram(name, value, tags, 1)
}

// Flush closes the client, which flushes its buffers. Call it once at exit.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// labelsToTags renders labels as sorted "key:value" tags.
func labelsToTags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
