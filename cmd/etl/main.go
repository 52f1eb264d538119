package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"scriptetl/internal/config"
	"scriptetl/internal/datasource"
	"scriptetl/internal/logging"
	"scriptetl/internal/metrics"
	"scriptetl/internal/metrics/datadog"
	"scriptetl/internal/metrics/prompush"
	"scriptetl/internal/probe"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "scriptetl/internal/storage/all"
)

var version = "dev"

var errInvalidConfig = errors.New("configuration is invalid")

type rootOptions struct {
	cfgPath  string
	logLevel string

	metricsBackend string
	pushGatewayURL string
	statsdAddr     string
	runID          string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the etl command tree. Validation issues are printed to
// stderr.
func newRootCmd(stderr io.Writer) *cobra.Command {
	var o rootOptions

	root := &cobra.Command{
		Use:           "etl",
		Short:         "Streaming CSV ETL with a per-row script step",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&o.cfgPath, "config", "configs/pipelines/sample.json", "pipeline config path (.json, .yaml or .yml)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the pipeline configuration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadPipeline(o.cfgPath, cmd.ErrOrStderr()); err != nil {
				return err
			}
			log.Printf("Configuration is valid: %v", o.cfgPath)
			return nil
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), o, cmd.ErrOrStderr())
		},
	}
	f := runCmd.Flags()
	f.StringVar(&o.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (env METRICS_BACKEND)")
	f.StringVar(&o.pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL (env PUSHGATEWAY_URL)")
	f.StringVar(&o.statsdAddr, "statsd-addr", "", "DogStatsD address (env DD_DOGSTATSD_ADDR)")
	f.StringVar(&o.runID, "run-id", "", "identifier attached to logs; a random UUID when empty")

	root.AddCommand(validateCmd, runCmd, newProbeCmd())
	return root
}

type probeOptions struct {
	bucket    string
	name      string
	backend   string
	delimiter string
	maxBytes  int
	format    string
}

// newProbeCmd drafts a pipeline for a CSV file (or blob key with --bucket)
// and prints it to stdout.
func newProbeCmd() *cobra.Command {
	var o probeOptions
	cmd := &cobra.Command{
		Use:   "probe <path-or-key>",
		Short: "Sample a CSV source and print a draft pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd.Context(), cmd.OutOrStdout(), args[0], o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.bucket, "bucket", "", "gocloud bucket URL; the argument is then an object key")
	f.StringVar(&o.name, "name", "", "job and table name (defaults to the file name)")
	f.StringVar(&o.backend, "backend", "postgres", "storage backend: postgres, mssql or sqlite")
	f.StringVar(&o.delimiter, "delimiter", ",", "CSV field delimiter")
	f.IntVar(&o.maxBytes, "max-bytes", 1<<20, "bytes sampled from the start of the source")
	f.StringVar(&o.format, "format", "yaml", "output format: yaml or json")
	return cmd
}

func runProbe(ctx context.Context, w io.Writer, target string, o probeOptions) error {
	src := config.Source{Kind: "file", File: config.SourceFile{Path: target}}
	if o.bucket != "" {
		src = config.Source{Kind: "blob", Blob: config.SourceBlob{Bucket: o.bucket, Key: target}}
	}
	ds, err := datasource.FromConfig(src, "")
	if err != nil {
		return err
	}

	name := o.name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))
	}
	delim := ','
	if o.delimiter != "" {
		delim = []rune(o.delimiter)[0]
	}

	res, err := probe.Probe(ctx, ds, probe.Options{
		Source:    src,
		Name:      name,
		Backend:   o.backend,
		MaxBytes:  o.maxBytes,
		Delimiter: delim,
	})
	if err != nil {
		return err
	}
	log.Printf("probe: rows=%d columns=%d kinds=%v", res.Rows, len(res.Columns), res.Kinds())

	switch o.format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Pipeline)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res.Pipeline); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q (use yaml or json)", o.format)
	}
}

// loadPipeline reads and validates a pipeline file, printing every issue.
func loadPipeline(path string, w io.Writer) (config.Pipeline, error) {
	p, err := config.Load(path)
	if err != nil {
		return config.Pipeline{}, err
	}
	hasError := false
	for _, iss := range config.ValidatePipeline(p) {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		return config.Pipeline{}, fmt.Errorf("%w: %s", errInvalidConfig, path)
	}
	return p, nil
}

func runPipeline(ctx context.Context, o rootOptions, stderr io.Writer) error {
	p, err := loadPipeline(o.cfgPath, stderr)
	if err != nil {
		return err
	}

	runID := o.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := logging.NewWithLevel(stderr, "scriptetl", version, logging.ParseLevel(o.logLevel)).
		With(logging.RunID(runID))

	flush := setupMetrics(o, p.Job)
	defer flush()

	start := time.Now()
	log.Printf("pipeline: job=%s source=%s parser=%s storage=%s table=%s",
		p.Job, p.Source.Kind, p.Parser.Kind, p.Storage.Kind, p.Storage.DB.Table)

	err = runStreamed(ctx, p, runEnv{
		baseDir: filepath.Dir(o.cfgPath),
		runID:   runID,
		logger:  logger,
	})
	if err != nil {
		return err
	}
	log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	return nil
}

// setupMetrics installs the selected metrics backend. Selection is flag →
// env → none. The returned func flushes the backend.
func setupMetrics(o rootOptions, job string) func() {
	name := o.metricsBackend
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}
	if job == "" {
		job = "etl_job"
	}

	var (
		b   metrics.Backend
		err error
	)
	switch name {
	case "pushgateway":
		url := firstNonEmpty(o.pushGatewayURL, os.Getenv("PUSHGATEWAY_URL"), "http://localhost:9091")
		b, err = prompush.NewBackend(job, url)
		if err == nil {
			log.Printf("metrics: url=%v, backend=%v, job_name=%v", url, name, job)
		}
	case "datadog":
		addr := firstNonEmpty(o.statsdAddr, os.Getenv("DD_DOGSTATSD_ADDR"), "127.0.0.1:8125")
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "scriptetl.",
			GlobalTags: []string{"job:" + job},
		})
		if err == nil {
			log.Printf("metrics: addr=%v, backend=%v, job_name=%v", addr, name, job)
		}
	case "", "none":
		return func() {}
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", name)
		return func() {}
	}
	if err != nil {
		log.Printf("metrics: failed to init %s backend: %v; using nop", name, err)
		return func() {}
	}

	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
