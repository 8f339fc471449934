// Package httpclient provides the typed HTTP client shared by all adapters:
// wrapped JSON/text/byte responses, retries with jittered exponential backoff,
// per-host token-bucket rate limiting, and telemetry hooks.
package httpclient

import (
	"fmt"
	"net/http"

	"github.com/medical-kg/ingest/internal/ingestion"
)

type (
	// JSONResponse wraps a decoded JSON body. The response object is the sole
	// access channel: consumers address Data, never the wrapper itself.
	JSONResponse struct {
		Data       any
		URL        string
		StatusCode int
		Headers    http.Header

		// RawBytes is the undecoded body, retained for content hashing.
		RawBytes []byte
	}

	// TextResponse wraps a text body.
	TextResponse struct {
		Text       string
		URL        string
		StatusCode int
		Headers    http.Header
	}

	// BytesResponse wraps a binary body.
	BytesResponse struct {
		Content    []byte
		URL        string
		StatusCode int
		Headers    http.Header
	}
)

// Mapping coerces the decoded body into a JSON object. Fails with SchemaError
// when the top-level shape is not an object.
func (r *JSONResponse) Mapping() (map[string]any, error) {
	mapping, ok := r.Data.(map[string]any)
	if !ok {
		return nil, &ingestion.SchemaError{
			Source: r.URL,
			Err:    fmt.Errorf("expected JSON object at top level, got %T", r.Data),
		}
	}

	return mapping, nil
}

// Sequence coerces the decoded body into a JSON array. Fails with SchemaError
// when the top-level shape is not an array.
func (r *JSONResponse) Sequence() ([]any, error) {
	sequence, ok := r.Data.([]any)
	if !ok {
		return nil, &ingestion.SchemaError{
			Source: r.URL,
			Err:    fmt.Errorf("expected JSON array at top level, got %T", r.Data),
		}
	}

	return sequence, nil
}

// MappingField coerces a named field of a JSON object into a nested object
// list, the common page shape of the source APIs (e.g. "studies", "results").
func (r *JSONResponse) MappingField(field string) ([]map[string]any, error) {
	mapping, err := r.Mapping()
	if err != nil {
		return nil, err
	}

	value, ok := mapping[field]
	if !ok {
		return nil, &ingestion.SchemaError{
			Source: r.URL,
			Err:    fmt.Errorf("missing expected field %q", field),
		}
	}

	items, ok := value.([]any)
	if !ok {
		return nil, &ingestion.SchemaError{
			Source: r.URL,
			Err:    fmt.Errorf("expected field %q to be an array, got %T", field, value),
		}
	}

	records := make([]map[string]any, 0, len(items))

	for i, item := range items {
		record, ok := item.(map[string]any)
		if !ok {
			return nil, &ingestion.SchemaError{
				Source: r.URL,
				Err:    fmt.Errorf("expected object at %s[%d], got %T", field, i, item),
			}
		}

		records = append(records, record)
	}

	return records, nil
}
