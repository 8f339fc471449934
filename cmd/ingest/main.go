// Command ingest runs the Medical KG ingestion pipeline for one source
// adapter: fetch, parse, validate, and write documents while tracking every
// lifecycle transition in the durable ingestion ledger.
//
// Usage:
//
//	ingest clinicaltrials -param nct_id=NCT04267848
//	ingest pubmed -batch pmids.ndjson -workers 8
//	ingest medrxiv -auto -lookback 72h
//	ingest -stats
//	ingest -history nct:NCT04267848
//
// Configuration comes from the environment: LEDGER_PATH, SOURCE_CATALOG_PATH,
// CATALOG_DATABASE_URL, KAFKA_BROKERS, HTTP_TIMEOUT_MS, HTTP_MAX_ATTEMPTS,
// LOG_LEVEL, and per-source credential variables named in sources.yaml.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/medical-kg/ingest/internal/adapter"
	"github.com/medical-kg/ingest/internal/driver"
)

// stringList collects a repeated flag.
type stringList []string

func (s *stringList) String() string { return fmt.Sprintf("%v", []string(*s)) }

func (s *stringList) Set(value string) error {
	*s = append(*s, value)

	return nil
}

// splitAdapter takes the leading positional adapter name off the argument
// list, leaving the flags for the flag package. Utility invocations like
// "ingest -stats" have no adapter and pass through unchanged.
func splitAdapter(args []string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", args
	}

	return args[0], args[1:]
}

func main() {
	var params stringList

	batchFile := flag.String("batch", "", "NDJSON batch file of parameter sets")
	auto := flag.Bool("auto", false, "let the adapter generate parameters for the lookback window")
	lookback := flag.Duration("lookback", 24*time.Hour, "auto-mode window reaching back from now")
	pageSize := flag.Int("page-size", 0, "auto-mode page size override")
	limit := flag.Int("limit", 0, "auto-mode document limit")
	workers := flag.Int("workers", 0, "pipeline worker count (default 4)")
	bufferSize := flag.Int("buffer", 0, "event channel capacity (default 100)")
	maxAttempts := flag.Int("max-attempts", 0, "retry budget per document (default 3)")
	dryRun := flag.Bool("dry-run", false, "fetch, parse and validate without recording or persisting")
	force := flag.Bool("force", false, "reprocess documents already completed in the ledger")
	failFast := flag.Bool("fail-fast", false, "stop the run after the first terminal document failure")
	quiet := flag.Bool("quiet", false, "suppress per-event output; only the summary is printed")
	ledgerPath := flag.String("ledger", "", "ledger audit log path (default $LEDGER_PATH or ledger.ndjson)")
	output := flag.String("output", driver.OutputText, "event output format: text, json or table")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn or error (default $LOG_LEVEL or info)")
	logFile := flag.String("log-file", "", "append logs to this file instead of stderr")
	startDate := flag.String("start-date", "", "auto-mode window start as YYYY-MM-DD (overrides -lookback)")
	endDate := flag.String("end-date", "", "auto-mode window end as YYYY-MM-DD (default now)")
	list := flag.Bool("list", false, "list registered adapters and exit")
	history := flag.String("history", "", "print the ledger transition history for a doc_id and exit")
	stats := flag.Bool("stats", false, "print ledger state counts and exit")
	compact := flag.Bool("compact", false, "compact the ledger snapshot and exit")

	flag.Var(&params, "param", "adapter parameter as key=value (repeatable)")

	adapterName, rest := splitAdapter(os.Args[1:])
	_ = flag.CommandLine.Parse(rest)

	if *list {
		for _, name := range adapter.DefaultRegistry().Names() {
			fmt.Println(name)
		}

		return
	}

	start, err := parseDate(*startDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -start-date: %v\n", err)
		os.Exit(driver.ExitUsage)
	}

	end, err := parseDate(*endDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -end-date: %v\n", err)
		os.Exit(driver.ExitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(driver.Run(ctx, driver.Options{
		Adapter:     adapterName,
		BatchFile:   *batchFile,
		Params:      params,
		Auto:        *auto,
		Lookback:    *lookback,
		PageSize:    *pageSize,
		Limit:       *limit,
		Workers:     *workers,
		BufferSize:  *bufferSize,
		MaxAttempts: *maxAttempts,
		DryRun:      *dryRun,
		Force:       *force,
		FailFast:    *failFast,
		Quiet:       *quiet,
		LedgerPath:  *ledgerPath,
		Output:      *output,
		LogLevel:    *logLevel,
		LogFile:     *logFile,
		StartDate:   start,
		EndDate:     end,
		History:     *history,
		Stats:       *stats,
		Compact:     *compact,
	}))
}

// parseDate parses a YYYY-MM-DD flag value; empty means unset.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	return time.Parse("2006-01-02", value)
}
