// Package adapter provides the generic source-adapter framework: the
// fetch/parse/validate/write contract, the process-wide registry, and the
// first-party adapters for the supported biomedical sources.
//
// Adapters own everything source-specific: pagination, payload decoding, and
// identifier validation. Everything shared - HTTP, retry, rate limiting,
// ledger transitions - is injected and lives elsewhere.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medical-kg/ingest/internal/config"
	"github.com/medical-kg/ingest/internal/httpclient"
	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/internal/sink"
)

// ErrEndOfFeed signals cursor exhaustion. Analogous to io.EOF: not a failure.
var ErrEndOfFeed = errors.New("end of feed")

type (
	// Parameters is one unit of adapter input: a single decoded NDJSON batch
	// line or one auto-generated sweep entry.
	Parameters map[string]any

	// Cursor lazily yields raw record mappings from a fetch. Next suspends on
	// I/O and returns ErrEndOfFeed when the feed is exhausted.
	Cursor interface {
		Next(ctx context.Context) (map[string]any, error)
	}

	// Adapter is the per-source contract. The pipeline drives the lifecycle:
	// Fetch produces raw mappings, Parse narrows them into typed documents,
	// Validate applies semantic invariants, Write hands off downstream.
	Adapter interface {
		// Name returns the registry key for this source.
		Name() string

		// Fetch produces a lazy sequence of raw records for the parameters.
		// Pagination and rate limiting happen inside.
		Fetch(ctx context.Context, params Parameters) (Cursor, error)

		// Parse deterministically builds a Document from one raw record,
		// narrowing it through the payload type guard. Same input, same
		// output - including doc_id and content_hash.
		Parse(raw map[string]any) (*ingestion.Document, error)

		// Validate applies semantic checks to an already-parsed document.
		// Never mutates.
		Validate(doc *ingestion.Document) error

		// Write hands the document to the injected downstream sink.
		Write(ctx context.Context, doc *ingestion.Document) error
	}

	// SingleDocumenter is implemented by adapters whose parameters identify
	// exactly one document, letting the driver and pipeline know the doc_id
	// before any fetch happens (resume filtering, early ledger tracking).
	SingleDocumenter interface {
		// ParameterDocID returns the deterministic doc_id for the parameters,
		// or false when the parameters describe a sweep.
		ParameterDocID(params Parameters) (string, bool)
	}

	// AutoParameterizer is implemented by adapters that can produce their own
	// parameter sets, typically a date-window sweep.
	AutoParameterizer interface {
		AutoParameters(ctx context.Context, window Window) ([]Parameters, error)
	}

	// Window bounds an auto-mode sweep.
	Window struct {
		Start    time.Time
		End      time.Time
		PageSize int
		Limit    int
	}

	// Dependencies are injected into adapter factories at registry build time.
	Dependencies struct {
		Client  *httpclient.Client
		Sink    sink.Sink
		Catalog *config.SourceCatalog
		Logger  *slog.Logger
	}

	// Factory builds an adapter from injected dependencies.
	Factory func(deps Dependencies) Adapter
)

// String returns the named parameter as a string. JSON numbers are formatted
// without exponent so numeric identifiers survive batch files.
func (p Parameters) String(key string) string {
	value, ok := p[key]
	if !ok {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Int returns the named parameter as an int, or the fallback.
func (p Parameters) Int(key string, fallback int) int {
	value, ok := p[key]
	if !ok {
		return fallback
	}

	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
