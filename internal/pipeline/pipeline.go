package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/medical-kg/ingest/internal/adapter"
	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/internal/ledger"
	"github.com/medical-kg/ingest/internal/telemetry"
)

const (
	defaultWorkers          = 4
	defaultBufferSize       = 100
	defaultProgressInterval = 100
	defaultMaxAttempts      = 3
)

type (
	// Options tune one pipeline invocation.
	Options struct {
		// Workers is the fetch/parse/validate/write concurrency. Default 4.
		Workers int

		// BufferSize bounds the event channel. A slow consumer stalls the
		// workers instead of growing memory. Default 100.
		BufferSize int

		// ProgressInterval emits a BatchProgress event every N processed
		// documents. Default 100.
		ProgressInterval int

		// MaxAttempts bounds the ledger-driven retry loop per document.
		// Default 3.
		MaxAttempts int

		// DryRun runs fetch/parse/validate but records nothing in the ledger.
		DryRun bool

		// Force reprocesses documents whose ledger state is already terminal.
		// Terminal entries stay immutable; the rerun happens off the books.
		Force bool

		Filter      Filter
		Transformer Transformer

		Telemetry *telemetry.Registry
		Logger    *slog.Logger
	}

	// Pipeline drives one adapter through its lifecycle for a set of
	// parameter batches.
	Pipeline struct {
		adapter adapter.Adapter
		ledger  *ledger.Ledger
		opts    Options
		logger  *slog.Logger

		// fatalMu guards the abort machinery. A fatal error (ledger write
		// failure, illegal transition) cancels the invocation and surfaces
		// through Err.
		fatalMu  sync.Mutex
		fatalErr error
		abort    context.CancelFunc
	}

	// Summary is the terminal accounting of a Run invocation.
	Summary struct {
		Completed int
		Failed    int
		Skipped   int
		Retried   int
		Duration  time.Duration
		Failures  []Failure
	}

	// Failure records one terminally failed document.
	Failure struct {
		DocID     string
		ErrorType string
		Message   string
		Attempt   int
	}

	counters struct {
		completed atomic.Int64
		failed    atomic.Int64
		skipped   atomic.Int64
		retried   atomic.Int64
		inFlight  atomic.Int64
		processed atomic.Int64
	}

	// docTrack follows one document through its lifecycle attempts.
	docTrack struct {
		docID      string
		recordable bool
		attempt    int
	}
)

// New builds a pipeline for one adapter. The ledger is required unless
// Options.DryRun is set.
func New(a adapter.Adapter, led *ledger.Ledger, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}

	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}

	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		adapter: a,
		ledger:  led,
		opts:    opts,
		logger:  logger.With(slog.String("adapter", a.Name())),
	}
}

// StreamEvents runs the parameter batches through the worker pool and returns
// the bounded event stream. The channel closes after the final BatchProgress
// event; a canceled context or a fatal ledger error closes it early, and the
// latter is reported by Err once the stream has closed.
func (p *Pipeline) StreamEvents(ctx context.Context, paramSets []adapter.Parameters) <-chan Event {
	out := make(chan Event, p.opts.BufferSize)

	runCtx, cancel := context.WithCancel(ctx)

	p.fatalMu.Lock()
	p.abort = cancel
	p.fatalMu.Unlock()

	go func() {
		defer close(out)
		defer cancel()

		start := time.Now()
		counts := &counters{}
		paramsCh := make(chan adapter.Parameters)

		var wg sync.WaitGroup

		for i := 0; i < p.opts.Workers; i++ {
			wg.Add(1)

			go func() {
				defer wg.Done()

				for params := range paramsCh {
					p.processParams(runCtx, out, counts, start, params)
				}
			}()
		}

	feed:
		for _, params := range paramSets {
			select {
			case paramsCh <- params:
			case <-runCtx.Done():
				break feed
			}
		}

		close(paramsCh)
		wg.Wait()

		// The final BatchProgress is emitted exactly once per invocation,
		// including resumes where every document is skipped.
		p.emit(runCtx, out, p.progress(out, counts, start))
	}()

	return out
}

// fail records the first fatal error and aborts the invocation. Illegal
// ledger transitions and durable-write failures end the run rather than
// degrade it silently.
func (p *Pipeline) fail(err error) {
	p.fatalMu.Lock()

	if p.fatalErr == nil {
		p.fatalErr = err
	}

	abort := p.abort
	p.fatalMu.Unlock()

	if abort != nil {
		abort()
	}
}

// Err returns the fatal error that aborted the invocation, or nil. Valid
// once the event stream has closed.
func (p *Pipeline) Err() error {
	p.fatalMu.Lock()
	defer p.fatalMu.Unlock()

	return p.fatalErr
}

// IterDocuments runs the batches and yields only the completed documents.
func (p *Pipeline) IterDocuments(ctx context.Context, paramSets []adapter.Parameters) <-chan *ingestion.Document {
	docs := make(chan *ingestion.Document)

	go func() {
		defer close(docs)

		for event := range p.StreamEvents(ctx, paramSets) {
			completed, ok := event.(DocumentCompleted)
			if !ok {
				continue
			}

			select {
			case docs <- completed.Document:
			case <-ctx.Done():
				return
			}
		}
	}()

	return docs
}

// Run drains the event stream and returns the terminal summary. A canceled
// context returns the partial summary alongside the context error.
func (p *Pipeline) Run(ctx context.Context, paramSets []adapter.Parameters) (*Summary, error) {
	summary := &Summary{}

	for event := range p.StreamEvents(ctx, paramSets) {
		switch e := event.(type) {
		case DocumentFailed:
			summary.Failures = append(summary.Failures, Failure{
				DocID:     e.DocID,
				ErrorType: e.ErrorType,
				Message:   e.Message,
				Attempt:   e.Attempt,
			})
		case BatchProgress:
			summary.Completed = e.Completed
			summary.Failed = e.Failed
			summary.Skipped = e.Skipped
			summary.Retried = e.Retried
			summary.Duration = e.Elapsed
		}
	}

	if err := p.Err(); err != nil {
		return summary, err
	}

	return summary, ctx.Err()
}

// processParams handles one parameter batch: a single-document lookup when
// the adapter can name the doc_id up front, otherwise a sweep over the
// fetch cursor.
func (p *Pipeline) processParams(ctx context.Context, out chan<- Event, counts *counters, start time.Time, params adapter.Parameters) {
	if single, ok := p.adapter.(adapter.SingleDocumenter); ok {
		if docID, known := single.ParameterDocID(params); known {
			p.processKnown(ctx, out, counts, start, params, docID)

			return
		}
	}

	p.processSweep(ctx, out, counts, start, params)
}

func (p *Pipeline) processKnown(ctx context.Context, out chan<- Event, counts *counters, start time.Time, params adapter.Parameters, docID string) {
	track, process := p.admit(docID)
	if !process {
		counts.skipped.Add(1)
		p.step(ctx, out, counts, start)

		return
	}

	p.emit(ctx, out, DocumentStarted{Timestamp: time.Now().UTC(), Adapter: p.adapter.Name(), DocID: docID})
	p.ensurePending(ctx, out, track, params)

	p.attemptLoop(ctx, out, counts, start, track, func(ctx context.Context) (*ingestion.Document, error) {
		p.record(ctx, out, track, ledger.StateFetching)

		cursor, err := p.adapter.Fetch(ctx, params)
		if err != nil {
			return nil, err
		}

		raw, err := cursor.Next(ctx)
		if err != nil {
			if errors.Is(err, adapter.ErrEndOfFeed) {
				return nil, &ingestion.SchemaError{
					Source: p.adapter.Name(),
					Err:    fmt.Errorf("source returned no record for %s", docID),
				}
			}

			return nil, err
		}

		p.record(ctx, out, track, ledger.StateParsing)

		doc, err := p.adapter.Parse(raw)
		if err != nil {
			return nil, err
		}

		p.record(ctx, out, track, ledger.StateValidating)

		if err := p.adapter.Validate(doc); err != nil {
			return nil, err
		}

		p.record(ctx, out, track, ledger.StateWriting)

		if err := p.adapter.Write(ctx, doc); err != nil {
			return nil, err
		}

		return doc, nil
	})
}

func (p *Pipeline) processSweep(ctx context.Context, out chan<- Event, counts *counters, start time.Time, params adapter.Parameters) {
	cursor, err := p.adapter.Fetch(ctx, params)
	if err != nil {
		p.failBatch(ctx, out, counts, start, err)

		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		raw, err := cursor.Next(ctx)
		if errors.Is(err, adapter.ErrEndOfFeed) {
			return
		}

		if err != nil {
			p.failBatch(ctx, out, counts, start, err)

			return
		}

		p.processRecord(ctx, out, counts, start, params, raw)
	}
}

// failBatch reports a sweep-level fetch failure: the cursor died before any
// document identity was known, so the batch fails as a single event.
func (p *Pipeline) failBatch(ctx context.Context, out chan<- Event, counts *counters, start time.Time, err error) {
	class := ingestion.ClassifyError(err)

	p.logger.Error("Sweep fetch failed",
		slog.String("error_type", class.Kind),
		slog.Any("error", err))

	p.emit(ctx, out, DocumentFailed{
		Timestamp: time.Now().UTC(),
		Adapter:   p.adapter.Name(),
		ErrorType: class.Kind,
		Message:   err.Error(),
		Retryable: class.Retryable,
		Attempt:   1,
	})
	counts.failed.Add(1)
	p.step(ctx, out, counts, start)
}

// processRecord handles one already-fetched sweep record. Identity comes from
// Parse, so DocumentStarted is deferred until parsing names the doc_id; a
// record that cannot be parsed fails without one.
func (p *Pipeline) processRecord(ctx context.Context, out chan<- Event, counts *counters, start time.Time, params adapter.Parameters, raw map[string]any) {
	doc, err := p.adapter.Parse(raw)
	if err != nil {
		class := ingestion.ClassifyError(err)
		p.emit(ctx, out, DocumentFailed{
			Timestamp: time.Now().UTC(),
			Adapter:   p.adapter.Name(),
			ErrorType: class.Kind,
			Message:   err.Error(),
			Retryable: class.Retryable,
			Attempt:   1,
		})
		counts.failed.Add(1)
		p.step(ctx, out, counts, start)

		return
	}

	track, process := p.admit(doc.DocID)
	if !process {
		counts.skipped.Add(1)
		p.step(ctx, out, counts, start)

		return
	}

	p.emit(ctx, out, DocumentStarted{Timestamp: time.Now().UTC(), Adapter: p.adapter.Name(), DocID: doc.DocID})
	p.ensurePending(ctx, out, track, params)

	p.attemptLoop(ctx, out, counts, start, track, func(ctx context.Context) (*ingestion.Document, error) {
		p.record(ctx, out, track, ledger.StateFetching)
		p.record(ctx, out, track, ledger.StateParsing)
		p.record(ctx, out, track, ledger.StateValidating)

		if err := p.adapter.Validate(doc); err != nil {
			return nil, err
		}

		p.record(ctx, out, track, ledger.StateWriting)

		if err := p.adapter.Write(ctx, doc); err != nil {
			return nil, err
		}

		return doc, nil
	})
}

// attemptLoop runs one document's stage function under the ledger retry
// policy: retryable failures loop through FAILED_RETRYABLE and RETRYING until
// the attempt budget runs out, everything else is terminal immediately.
func (p *Pipeline) attemptLoop(ctx context.Context, out chan<- Event, counts *counters, start time.Time, track *docTrack, stage func(context.Context) (*ingestion.Document, error)) {
	counts.inFlight.Add(1)
	defer counts.inFlight.Add(-1)

	for {
		began := time.Now()

		doc, err := stage(ctx)
		if err == nil {
			p.record(ctx, out, track, ledger.StateCompleted, ledger.WithDuration(time.Since(began)))
			p.emit(ctx, out, DocumentCompleted{
				Timestamp: time.Now().UTC(),
				Adapter:   p.adapter.Name(),
				Document:  doc,
				Duration:  time.Since(began),
			})
			counts.completed.Add(1)
			p.step(ctx, out, counts, start)

			return
		}

		if ctx.Err() != nil {
			return
		}

		class := ingestion.ClassifyError(err)

		if class.Retryable && track.attempt < p.opts.MaxAttempts {
			p.record(ctx, out, track, ledger.StateFailedRetryable,
				ledger.WithError(class.Kind, err.Error(), true))
			p.record(ctx, out, track, ledger.StateRetrying)

			// The ledger increments the attempt counter on RETRYING; keep
			// local count moving when nothing is being recorded.
			if p.opts.DryRun || !track.recordable {
				track.attempt++
			}

			counts.retried.Add(1)

			p.logger.Warn("Retrying document",
				slog.String("doc_id", track.docID),
				slog.String("error_type", class.Kind),
				slog.Int("attempt", track.attempt))

			continue
		}

		// Terminal means terminal: even a retryable error class is reported
		// as non-retryable once the attempt budget is spent.
		p.record(ctx, out, track, ledger.StateFailedTerminal,
			ledger.WithError(class.Kind, err.Error(), false))
		p.emit(ctx, out, DocumentFailed{
			Timestamp: time.Now().UTC(),
			Adapter:   p.adapter.Name(),
			DocID:     track.docID,
			ErrorType: class.Kind,
			Message:   err.Error(),
			Retryable: false,
			Attempt:   track.attempt,
		})
		counts.failed.Add(1)
		p.step(ctx, out, counts, start)

		return
	}
}

// admit decides whether a document gets processed and whether its lifecycle
// is recorded. Terminal ledger entries are immutable: completed documents are
// skipped on resume, and a forced rerun processes the document without
// touching its entry.
func (p *Pipeline) admit(docID string) (*docTrack, bool) {
	track := &docTrack{docID: docID, recordable: !p.opts.DryRun, attempt: 1}

	if p.ledger == nil || p.opts.DryRun {
		track.recordable = false

		return track, true
	}

	entry := p.ledger.Get(docID)
	if entry == nil {
		return track, true
	}

	// Entry.Attempt counts retries; the attempt number is one ahead of it.
	track.attempt = entry.Attempt + 1

	if entry.State.IsTerminal() {
		if !p.opts.Force {
			return track, false
		}

		track.recordable = false
		track.attempt = 1

		return track, true
	}

	return track, true
}

func (p *Pipeline) ensurePending(ctx context.Context, out chan<- Event, track *docTrack, params adapter.Parameters) {
	if !track.recordable {
		return
	}

	entry := p.ledger.Get(track.docID)
	if entry == nil {
		p.record(ctx, out, track, ledger.StatePending, ledger.WithMetadata(params))

		return
	}

	switch entry.State {
	// A document left in FAILED_RETRYABLE by a previous run re-enters the
	// loop through RETRYING, which also bumps its attempt counter.
	case ledger.StateFailedRetryable:
		p.record(ctx, out, track, ledger.StateRetrying)

	// A document stranded mid-flight by an interrupted run rejoins through
	// the retry loop so its history stays a valid path.
	case ledger.StateFetching, ledger.StateParsing, ledger.StateValidating, ledger.StateWriting:
		p.record(ctx, out, track, ledger.StateFailedRetryable,
			ledger.WithError(ingestion.KindUnknown, "interrupted by a previous run", true))
		p.record(ctx, out, track, ledger.StateRetrying)
	}
}

// record applies one ledger transition and mirrors it onto the event stream.
// A failed transition is fatal to the invocation: an illegal transition is a
// pipeline bug and anything else means the durable log could not be written.
// Neither is allowed to degrade silently.
func (p *Pipeline) record(ctx context.Context, out chan<- Event, track *docTrack, state ledger.State, opts ...ledger.RecordOption) {
	if !track.recordable {
		return
	}

	previous := ledger.State("")
	if entry := p.ledger.Get(track.docID); entry != nil {
		previous = entry.State
	}

	entry, err := p.ledger.Record(track.docID, p.adapter.Name(), state, opts...)
	if err != nil {
		p.logger.Error("Ledger record failed",
			slog.String("doc_id", track.docID),
			slog.String("state", string(state)),
			slog.Any("error", err))
		p.fail(fmt.Errorf("ledger record %s for %s: %w", state, track.docID, err))

		return
	}

	track.attempt = entry.Attempt + 1

	p.emit(ctx, out, AdapterStateChange{
		Timestamp: time.Now().UTC(),
		Adapter:   p.adapter.Name(),
		DocID:     track.docID,
		OldState:  previous,
		NewState:  state,
		Attempt:   entry.Attempt,
	})

	if state.IsTerminal() && p.opts.Telemetry != nil {
		p.opts.Telemetry.IncDocument(p.adapter.Name(), string(state))
	}
}

// step advances the processed counter and emits a BatchProgress event at
// every progress interval.
func (p *Pipeline) step(ctx context.Context, out chan<- Event, counts *counters, start time.Time) {
	if counts.processed.Add(1)%int64(p.opts.ProgressInterval) == 0 {
		p.emit(ctx, out, p.progress(out, counts, start))
	}
}

func (p *Pipeline) progress(out chan<- Event, counts *counters, start time.Time) BatchProgress {
	return BatchProgress{
		Timestamp:  time.Now().UTC(),
		Adapter:    p.adapter.Name(),
		Completed:  int(counts.completed.Load()),
		Failed:     int(counts.failed.Load()),
		Skipped:    int(counts.skipped.Load()),
		Retried:    int(counts.retried.Load()),
		InFlight:   int(counts.inFlight.Load()),
		QueueDepth: len(out),
		Elapsed:    time.Since(start),
	}
}

// emit applies the filter and transformer, then delivers the event. Delivery
// blocks when the buffer is full; the stall is surfaced as backpressure
// telemetry rather than hidden by an unbounded queue.
func (p *Pipeline) emit(ctx context.Context, out chan<- Event, event Event) {
	if p.opts.Filter != nil && !p.opts.Filter(event) {
		return
	}

	if p.opts.Transformer != nil {
		event = p.opts.Transformer(event)
		if event == nil {
			return
		}
	}

	waitStart := time.Now()

	select {
	case out <- event:
	case <-ctx.Done():
		return
	}

	if p.opts.Telemetry != nil {
		if wait := time.Since(waitStart); wait >= time.Millisecond {
			p.opts.Telemetry.Emit(telemetry.Event{
				Name:     telemetry.BackpressureWait,
				Adapter:  p.adapter.Name(),
				Duration: wait,
			})
		}

		p.opts.Telemetry.Emit(telemetry.Event{
			Name:    telemetry.QueueDepth,
			Adapter: p.adapter.Name(),
			Depth:   len(out),
		})
	}
}
