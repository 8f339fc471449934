package adapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"

	"github.com/medical-kg/ingest/internal/config"
	"github.com/medical-kg/ingest/internal/httpclient"
	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/internal/payload"
	"github.com/medical-kg/ingest/internal/sink"
)

// base carries the shared plumbing every adapter embeds: the typed HTTP
// client, the downstream sink, and the resolved source configuration.
// Construction installs the source's rate limit on the shared client.
type base struct {
	name   string
	client *httpclient.Client
	sink   sink.Sink
	source config.SourceConfig
	logger *slog.Logger
}

func newBase(name string, deps Dependencies, defaults config.SourceConfig) base {
	catalog := deps.Catalog
	if catalog == nil {
		catalog = &config.SourceCatalog{Sources: map[string]config.SourceConfig{}}
	}

	source := catalog.Lookup(name, defaults)

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if deps.Client != nil {
		if parsed, err := url.Parse(source.BaseURL); err == nil && parsed.Hostname() != "" {
			deps.Client.SetRateLimit(parsed.Hostname(), source.RatePerSecond, source.Burst)
		}
	}

	return base{
		name:   name,
		client: deps.Client,
		sink:   deps.Sink,
		source: source,
		logger: logger.With(slog.String("adapter", name)),
	}
}

// Name implements Adapter.
func (b *base) Name() string { return b.name }

// Write implements Adapter: hand the document to the injected sink.
// Downstream subsystems consume from the event stream or the catalog; the
// adapter never talks to them directly.
func (b *base) Write(ctx context.Context, doc *ingestion.Document) error {
	if b.sink == nil {
		return nil
	}

	return b.sink.WriteDocument(ctx, doc)
}

// document builds a Document from a narrowed payload record. The content
// hash covers the canonical JSON encoding of the raw mapping, which keeps
// Parse deterministic (Go serializes map keys in sorted order).
func (b *base) document(docID string, raw map[string]any, record payload.Record, opts ...ingestion.DocumentOption) (*ingestion.Document, error) {
	rawBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, &ingestion.SchemaError{Source: b.name, Err: err}
	}

	return ingestion.NewDocument(docID, b.name, b.source.BaseURL, rawBytes, record, opts...)
}

// schemaErr wraps a boundary decoding failure in the taxonomy.
func (b *base) schemaErr(err error) error {
	return &ingestion.SchemaError{Source: b.name, Err: err}
}

// validationErr wraps a semantic failure in the taxonomy.
func validationErr(docID string, err error) error {
	return &ingestion.ValidationError{DocID: docID, Err: err}
}

type (
	// sliceCursor yields a fixed, already-fetched set of raw records.
	sliceCursor struct {
		records []map[string]any
		idx     int
	}

	// pagedCursor lazily fetches successive pages. fetch returns the next
	// page of records and whether more pages remain; it is called again only
	// after the current page is drained.
	pagedCursor struct {
		fetch   func(ctx context.Context) ([]map[string]any, bool, error)
		records []map[string]any
		idx     int
		more    bool
		started bool
	}
)

func newSliceCursor(records []map[string]any) *sliceCursor {
	return &sliceCursor{records: records}
}

// Next implements Cursor.
func (c *sliceCursor) Next(_ context.Context) (map[string]any, error) {
	if c.idx >= len(c.records) {
		return nil, ErrEndOfFeed
	}

	record := c.records[c.idx]
	c.idx++

	return record, nil
}

func newPagedCursor(fetch func(ctx context.Context) ([]map[string]any, bool, error)) *pagedCursor {
	return &pagedCursor{fetch: fetch, more: true}
}

// Next implements Cursor.
func (c *pagedCursor) Next(ctx context.Context) (map[string]any, error) {
	for c.idx >= len(c.records) {
		if c.started && !c.more {
			return nil, ErrEndOfFeed
		}

		records, more, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.started = true
		c.records = records
		c.idx = 0
		c.more = more

		if len(records) == 0 && !more {
			return nil, ErrEndOfFeed
		}
	}

	record := c.records[c.idx]
	c.idx++

	return record, nil
}
