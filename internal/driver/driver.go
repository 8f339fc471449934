package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medical-kg/ingest/internal/adapter"
	"github.com/medical-kg/ingest/internal/config"
	"github.com/medical-kg/ingest/internal/httpclient"
	"github.com/medical-kg/ingest/internal/ledger"
	"github.com/medical-kg/ingest/internal/pipeline"
	"github.com/medical-kg/ingest/internal/sink"
	"github.com/medical-kg/ingest/internal/telemetry"
)

// Process exit codes.
const (
	// ExitOK means every document completed or was deliberately skipped.
	ExitOK = 0

	// ExitFailures means the run finished but at least one document failed.
	ExitFailures = 1

	// ExitUsage means the invocation or configuration was unusable.
	ExitUsage = 2
)

const timeUnit = time.Millisecond

// Options mirror the CLI flags of cmd/ingest.
type Options struct {
	// Adapter is the registry name of the source to ingest.
	Adapter string

	// BatchFile is an NDJSON file of parameter sets, one per line.
	BatchFile string

	// Params are repeated key=value arguments forming a single parameter set.
	Params []string

	// Auto asks the adapter to generate its own parameters for a window:
	// StartDate/EndDate when given, otherwise Lookback reaching back from now.
	Auto      bool
	Lookback  time.Duration
	StartDate time.Time
	EndDate   time.Time
	PageSize  int
	Limit     int

	// Pipeline tuning.
	Workers     int
	BufferSize  int
	MaxAttempts int
	DryRun      bool
	Force       bool

	// FailFast cancels the invocation after the first terminal failure.
	FailFast bool

	// Quiet suppresses per-event output; only the summary is printed.
	Quiet bool

	// LogLevel and LogFile override the LOG_LEVEL env and stderr destination.
	LogLevel string
	LogFile  string

	// LedgerPath is the append-only audit log; the snapshot lives next to it.
	LedgerPath string

	// Output selects text, json, or table rendering.
	Output string

	// Ledger utility modes. When one is set, no ingestion runs.
	History string
	Stats   bool
	Compact bool

	// Out receives rendered events and summaries. Defaults to os.Stdout.
	Out    io.Writer
	Logger *slog.Logger
}

// Run executes one CLI invocation and returns its exit code.
func Run(ctx context.Context, opts Options) int {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	logger := opts.Logger
	if logger == nil {
		level := config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo)
		if opts.LogLevel != "" {
			level = config.ParseLogLevel(opts.LogLevel, level)
		}

		logOut := io.Writer(os.Stderr)

		if opts.LogFile != "" {
			file, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				fmt.Fprintf(out, "failed to open log file %s: %v\n", opts.LogFile, err)

				return ExitUsage
			}
			defer func() { _ = file.Close() }()

			logOut = file
		}

		logger = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: level}))
	}

	if opts.LedgerPath == "" {
		opts.LedgerPath = config.GetEnvStr("LEDGER_PATH", "ledger.ndjson")
	}

	if opts.Output == "" {
		opts.Output = OutputText
	}

	snapshotPath := config.GetEnvStr("LEDGER_SNAPSHOT_PATH", opts.LedgerPath+".snapshot")

	led, err := ledger.Open(opts.LedgerPath,
		ledger.WithLogger(logger),
		ledger.WithSnapshotPath(snapshotPath))
	if err != nil {
		logger.Error("Failed to open ledger", slog.String("path", opts.LedgerPath), slog.Any("error", err))

		return ExitUsage
	}
	defer func() { _ = led.Close() }()

	switch {
	case opts.History != "":
		return runHistory(out, led, opts.History)
	case opts.Stats:
		return runStats(out, led)
	case opts.Compact:
		return runCompact(logger, led)
	}

	return runIngest(ctx, out, logger, led, opts)
}

func runIngest(ctx context.Context, out io.Writer, logger *slog.Logger, led *ledger.Ledger, opts Options) int {
	if opts.Adapter == "" {
		fmt.Fprintln(out, "usage: ingest <adapter> [flags]; see -list for adapters")

		return ExitUsage
	}

	// Every invocation gets a run ID so its log lines correlate across the
	// pipeline, the sinks, and the ledger.
	logger = logger.With(slog.String("run_id", uuid.NewString()))

	catalog, err := config.LoadSourceCatalogFromEnv()
	if err != nil {
		logger.Error("Failed to load source catalog", slog.Any("error", err))

		return ExitUsage
	}

	registry := telemetry.NewRegistry(prometheus.DefaultRegisterer)
	client := httpclient.New(registry, httpclient.WithLogger(logger))

	docSink, cleanup, err := buildSink(ctx, logger, opts.DryRun)
	if err != nil {
		logger.Error("Failed to build document sink", slog.Any("error", err))

		return ExitUsage
	}
	defer cleanup()

	a, err := adapter.DefaultRegistry().Build(opts.Adapter, adapter.Dependencies{
		Client:  client,
		Sink:    docSink,
		Catalog: catalog,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("Unknown adapter", slog.String("adapter", opts.Adapter), slog.Any("error", err))

		return ExitUsage
	}

	paramSets, err := collectParams(ctx, a, opts)
	if err != nil {
		logger.Error("Failed to assemble parameters", slog.Any("error", err))

		return ExitUsage
	}

	if len(paramSets) == 0 {
		fmt.Fprintln(out, "nothing to ingest: provide -batch, -param, or -auto")

		return ExitUsage
	}

	publisher, publisherCleanup := buildPublisher(logger)
	defer publisherCleanup()

	pl := pipeline.New(a, led, pipeline.Options{
		Workers:     opts.Workers,
		BufferSize:  opts.BufferSize,
		MaxAttempts: opts.MaxAttempts,
		DryRun:      opts.DryRun,
		Force:       opts.Force,
		Telemetry:   registry,
		Logger:      logger,
	})

	runCtx := ctx

	var failFast context.CancelFunc

	if opts.FailFast {
		runCtx, failFast = context.WithCancel(ctx)
		defer failFast()
	}

	summary := &pipeline.Summary{}

	for event := range pl.StreamEvents(runCtx, paramSets) {
		if !opts.Quiet {
			if err := renderEvent(out, opts.Output, event); err != nil {
				logger.Warn("Failed to render event", slog.Any("error", err))
			}
		}

		publishEvent(ctx, logger, publisher, event)
		accumulate(summary, event)

		if _, failed := event.(pipeline.DocumentFailed); failed && failFast != nil {
			logger.Warn("Stopping after first terminal failure")
			failFast()
		}
	}

	if err := pl.Err(); err != nil {
		logger.Error("Ingestion aborted", slog.Any("error", err))
		fmt.Fprintf(out, "aborted: %v\n", err)

		return ExitFailures
	}

	switch opts.Output {
	case OutputTable:
		renderTable(out, summary)
	case OutputText:
		renderSummary(out, summary)
	}

	if ctx.Err() != nil {
		logger.Warn("Ingestion canceled", slog.Any("error", ctx.Err()))
	}

	// A fail-fast cancellation can cut the stream before the final progress
	// event, so the failure list decides alongside the counters.
	if summary.Failed > 0 || len(summary.Failures) > 0 {
		return ExitFailures
	}

	return ExitOK
}

func collectParams(ctx context.Context, a adapter.Adapter, opts Options) ([]adapter.Parameters, error) {
	if opts.BatchFile != "" {
		return LoadBatch(opts.BatchFile)
	}

	if opts.Auto {
		end := opts.EndDate
		if end.IsZero() {
			end = time.Now().UTC()
		}

		start := opts.StartDate
		if start.IsZero() {
			lookback := opts.Lookback
			if lookback <= 0 {
				lookback = 24 * time.Hour
			}

			start = end.Add(-lookback)
		}

		return AutoParams(ctx, a, adapter.Window{
			Start:    start,
			End:      end,
			PageSize: opts.PageSize,
			Limit:    opts.Limit,
		})
	}

	params, err := ParseParams(opts.Params)
	if err != nil {
		return nil, err
	}

	if params == nil {
		return nil, nil
	}

	return []adapter.Parameters{params}, nil
}

// buildSink picks the document sink: Noop for dry runs, the PostgreSQL
// catalog when CATALOG_DATABASE_URL is configured, Noop otherwise.
func buildSink(ctx context.Context, logger *slog.Logger, dryRun bool) (sink.Sink, func(), error) {
	if dryRun {
		return sink.NewNoop(), func() {}, nil
	}

	databaseURL := config.GetEnvStr("CATALOG_DATABASE_URL", "")
	if databaseURL == "" {
		logger.Info("No catalog configured, documents flow to event subscribers only")

		return sink.NewNoop(), func() {}, nil
	}

	catalog, err := sink.NewCatalog(ctx, databaseURL, logger)
	if err != nil {
		return nil, nil, err
	}

	return catalog, func() { _ = catalog.Close() }, nil
}

// buildPublisher wires the Kafka event publisher when KAFKA_BROKERS is set.
func buildPublisher(logger *slog.Logger) (*sink.KafkaEvents, func()) {
	brokers := config.ParseCommaSeparatedList(config.GetEnvStr("KAFKA_BROKERS", ""))
	if len(brokers) == 0 {
		return nil, func() {}
	}

	topic := config.GetEnvStr("KAFKA_TOPIC", "ingest.events")

	publisher, err := sink.NewKafkaEvents(brokers, topic, logger)
	if err != nil {
		logger.Warn("Kafka publisher disabled", slog.Any("error", err))

		return nil, func() {}
	}

	return publisher, func() { _ = publisher.Close() }
}

func publishEvent(ctx context.Context, logger *slog.Logger, publisher *sink.KafkaEvents, event pipeline.Event) {
	if publisher == nil {
		return
	}

	payload, err := pipeline.MarshalEvent(event)
	if err != nil {
		logger.Warn("Failed to marshal event for publishing", slog.Any("error", err))

		return
	}

	if err := publisher.Publish(ctx, eventKey(event), payload); err != nil {
		logger.Warn("Failed to publish event", slog.Any("error", err))
	}
}

func eventKey(event pipeline.Event) string {
	switch e := event.(type) {
	case pipeline.DocumentStarted:
		return e.DocID
	case pipeline.DocumentCompleted:
		return e.Document.DocID
	case pipeline.DocumentFailed:
		return e.DocID
	case pipeline.AdapterStateChange:
		return e.DocID
	default:
		return ""
	}
}

func accumulate(summary *pipeline.Summary, event pipeline.Event) {
	switch e := event.(type) {
	case pipeline.DocumentFailed:
		summary.Failures = append(summary.Failures, pipeline.Failure{
			DocID:     e.DocID,
			ErrorType: e.ErrorType,
			Message:   e.Message,
			Attempt:   e.Attempt,
		})
	case pipeline.BatchProgress:
		summary.Completed = e.Completed
		summary.Failed = e.Failed
		summary.Skipped = e.Skipped
		summary.Retried = e.Retried
		summary.Duration = e.Elapsed
	}
}

func runHistory(out io.Writer, led *ledger.Ledger, docID string) int {
	records, err := led.History(docID)
	if err != nil {
		fmt.Fprintf(out, "failed to read history for %s: %v\n", docID, err)

		return ExitFailures
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "no history for %s\n", docID)

		return ExitOK
	}

	for _, record := range records {
		from := string(record.OldState)
		if from == "" {
			from = "(new)"
		}

		fmt.Fprintf(out, "%s  %s -> %s  attempt=%d", record.Timestamp.Format(time.RFC3339), from, record.NewState, record.Attempt)

		if record.Error != nil {
			fmt.Fprintf(out, "  %s: %s", record.Error.Type, record.Error.Message)
		}

		fmt.Fprintln(out)
	}

	return ExitOK
}

func runStats(out io.Writer, led *ledger.Ledger) int {
	counts := make(map[ledger.State]int)

	for _, entry := range led.Entries() {
		counts[entry.State]++
	}

	for _, state := range []ledger.State{
		ledger.StatePending, ledger.StateFetching, ledger.StateParsing,
		ledger.StateValidating, ledger.StateWriting, ledger.StateCompleted,
		ledger.StateFailedRetryable, ledger.StateRetrying,
		ledger.StateFailedTerminal, ledger.StateSkipped,
	} {
		if counts[state] > 0 {
			fmt.Fprintf(out, "%-18s %d\n", state, counts[state])
		}
	}

	if stuck := led.Stuck(time.Hour); len(stuck) > 0 {
		fmt.Fprintf(out, "\nstuck (>1h in a non-terminal state):\n")

		for _, docID := range stuck {
			fmt.Fprintf(out, "  %s\n", docID)
		}
	}

	return ExitOK
}

func runCompact(logger *slog.Logger, led *ledger.Ledger) int {
	if err := led.Compact(); err != nil {
		logger.Error("Ledger compaction failed", slog.Any("error", err))

		return ExitFailures
	}

	logger.Info("Ledger compacted")

	return ExitOK
}
