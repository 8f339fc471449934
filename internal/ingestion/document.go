// Package ingestion provides the core domain model for the ingestion
// subsystem: the Document produced by adapters, the closed error taxonomy,
// and the single error-classification function shared by adapters and the
// streaming pipeline.
package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/medical-kg/ingest/internal/payload"
)

// Required metadata keys. Every Document carries all three; Validate stages
// reject documents missing any of them.
const (
	MetadataIngestedAt    = "ingested_at"
	MetadataSourceVersion = "source_version"
	MetadataContentHash   = "content_hash"
)

// Sentinel errors for document construction.
var (
	// ErrDocIDEmpty is returned when a document is constructed without an identifier.
	ErrDocIDEmpty = errors.New("doc_id cannot be empty")

	// ErrSourceEmpty is returned when a document is constructed without a source name.
	ErrSourceEmpty = errors.New("source cannot be empty")

	// ErrRawPayloadNil is returned when a document is constructed without a typed payload.
	// The raw payload is required; there is no untyped document.
	ErrRawPayloadNil = errors.New("raw payload is required")

	// ErrMissingMetadata is returned when a required metadata key is absent.
	ErrMissingMetadata = errors.New("missing required metadata")
)

// Document is the unit produced by ingestion: a normalized record with a
// stable identifier, canonical content, required provenance metadata, and a
// typed raw payload.
//
// A Document is exclusively owned by the adapter that produced it until it is
// handed to the pipeline, which delivers it to the ledger and event
// subscribers. Nothing mutates it after Parse returns.
type Document struct {
	// DocID is the stable identifier, unique per source. For well-known
	// sources it is deterministic from source identifiers, e.g.
	// "nct:NCT01234567" or "pmid:12345".
	DocID string `json:"doc_id"`

	// Source is the registry name of the producing adapter.
	Source string `json:"source"`

	// URI is the canonical URI of the source record, when one exists.
	URI string `json:"uri,omitempty"`

	// Content is the canonical text when applicable.
	Content string `json:"content,omitempty"`

	// Metadata carries provenance. ingested_at, source_version and
	// content_hash are always present.
	Metadata map[string]any `json:"metadata"`

	// Raw is the typed source payload. Never nil.
	Raw payload.Record `json:"raw"`
}

// DocumentOption customizes a Document during construction.
type DocumentOption func(*Document)

// WithURI sets the canonical source URI.
func WithURI(uri string) DocumentOption {
	return func(d *Document) { d.URI = uri }
}

// WithContent sets the canonical text content.
func WithContent(content string) DocumentOption {
	return func(d *Document) { d.Content = content }
}

// WithMetadata sets an additional metadata key.
func WithMetadata(key string, value any) DocumentOption {
	return func(d *Document) { d.Metadata[key] = value }
}

// NewDocument constructs a Document with the required provenance metadata.
//
// The typed payload is mandatory: passing nil raw fails with ErrRawPayloadNil.
// content_hash is the SHA-256 of the raw bytes the adapter fetched, and
// ingested_at is recorded in UTC RFC 3339.
func NewDocument(docID, source, sourceVersion string, rawBytes []byte, raw payload.Record, opts ...DocumentOption) (*Document, error) {
	if docID == "" {
		return nil, ErrDocIDEmpty
	}

	if source == "" {
		return nil, ErrSourceEmpty
	}

	if raw == nil {
		return nil, ErrRawPayloadNil
	}

	doc := &Document{
		DocID:  docID,
		Source: source,
		Raw:    raw,
		Metadata: map[string]any{
			MetadataIngestedAt:    time.Now().UTC().Format(time.RFC3339),
			MetadataSourceVersion: sourceVersion,
			MetadataContentHash:   ContentHash(rawBytes),
		},
	}

	for _, opt := range opts {
		opt(doc)
	}

	return doc, nil
}

// ContentHash returns the lowercase hex SHA-256 of the raw source bytes.
func ContentHash(raw []byte) string {
	sum := sha256.Sum256(raw)

	return hex.EncodeToString(sum[:])
}

// ValidateMetadata checks that the required provenance keys are present and
// non-empty. Called by adapter Validate stages; does not mutate the document.
func ValidateMetadata(doc *Document) error {
	for _, key := range []string{MetadataIngestedAt, MetadataSourceVersion, MetadataContentHash} {
		value, ok := doc.Metadata[key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingMetadata, key)
		}

		if s, isString := value.(string); isString && s == "" {
			return fmt.Errorf("%w: %s is empty", ErrMissingMetadata, key)
		}
	}

	return nil
}
