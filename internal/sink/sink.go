// Package sink provides the downstream seam for ingested documents and
// pipeline events: a no-op sink for dry runs, a PostgreSQL document catalog,
// and a Kafka publisher for downstream subsystems.
package sink

import (
	"context"

	"github.com/medical-kg/ingest/internal/ingestion"
)

// Sink receives documents from adapter Write stages. Implementations must be
// safe for concurrent use by pipeline workers.
type Sink interface {
	// WriteDocument hands a completed document downstream.
	WriteDocument(ctx context.Context, doc *ingestion.Document) error

	// Close releases any underlying resources.
	Close() error
}

// Noop discards documents. Used by --dry-run, where fetch/parse/validate run
// but nothing is persisted downstream.
type Noop struct{}

// NewNoop returns a discarding sink.
func NewNoop() *Noop { return &Noop{} }

// WriteDocument implements Sink.
func (*Noop) WriteDocument(context.Context, *ingestion.Document) error { return nil }

// Close implements Sink.
func (*Noop) Close() error { return nil }
