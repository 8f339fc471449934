// Package pipeline provides the streaming ingestion engine: a worker pool
// that drives adapters through fetch/parse/validate/write, records every
// lifecycle transition in the ledger, and surfaces progress as a bounded
// stream of typed events.
package pipeline

import (
	"encoding/json"
	"time"

	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/internal/ledger"
)

// EventType discriminates the event variants on the stream and in their JSON
// encoding.
type EventType string

// The closed set of pipeline event types.
const (
	EventDocumentStarted    EventType = "document_started"
	EventDocumentCompleted  EventType = "document_completed"
	EventDocumentFailed     EventType = "document_failed"
	EventBatchProgress      EventType = "batch_progress"
	EventAdapterStateChange EventType = "adapter_state_change"
)

type (
	// Event is one element of the pipeline's output stream. Consumers switch
	// on Type or type-assert to the concrete variant.
	Event interface {
		Type() EventType
		When() time.Time
	}

	// DocumentStarted announces that a worker picked up a record.
	DocumentStarted struct {
		Timestamp time.Time `json:"timestamp"`
		Adapter   string    `json:"adapter"`

		// DocID is empty when the record's identity is not yet known, i.e.
		// before Parse during a sweep.
		DocID string `json:"doc_id,omitempty"`
	}

	// DocumentCompleted carries a fully written document.
	DocumentCompleted struct {
		Timestamp time.Time           `json:"timestamp"`
		Adapter   string              `json:"adapter"`
		Document  *ingestion.Document `json:"document"`
		Duration  time.Duration       `json:"duration_ms"`
	}

	// DocumentFailed reports a terminally failed record with its taxonomy
	// classification.
	DocumentFailed struct {
		Timestamp time.Time `json:"timestamp"`
		Adapter   string    `json:"adapter"`
		DocID     string    `json:"doc_id,omitempty"`
		ErrorType string    `json:"error_type"`
		Message   string    `json:"message"`
		Retryable bool      `json:"retryable"`
		Attempt   int       `json:"attempt"`
	}

	// BatchProgress summarizes counters at a progress interval and once at
	// the end of every invocation.
	BatchProgress struct {
		Timestamp  time.Time     `json:"timestamp"`
		Adapter    string        `json:"adapter"`
		Completed  int           `json:"completed"`
		Failed     int           `json:"failed"`
		Skipped    int           `json:"skipped"`
		Retried    int           `json:"retried"`
		InFlight   int           `json:"in_flight"`
		QueueDepth int           `json:"queue_depth"`
		Elapsed    time.Duration `json:"elapsed_ms"`
	}

	// AdapterStateChange mirrors a ledger transition onto the event stream.
	AdapterStateChange struct {
		Timestamp time.Time    `json:"timestamp"`
		Adapter   string       `json:"adapter"`
		DocID     string       `json:"doc_id"`
		OldState  ledger.State `json:"old_state"`
		NewState  ledger.State `json:"new_state"`
		Attempt   int          `json:"attempt"`
	}

	// Filter drops events it returns false for.
	Filter func(Event) bool

	// Transformer rewrites events in flight. Returning nil drops the event.
	Transformer func(Event) Event
)

// Type implements Event.
func (DocumentStarted) Type() EventType { return EventDocumentStarted }

// When implements Event.
func (e DocumentStarted) When() time.Time { return e.Timestamp }

// Type implements Event.
func (DocumentCompleted) Type() EventType { return EventDocumentCompleted }

// When implements Event.
func (e DocumentCompleted) When() time.Time { return e.Timestamp }

// Type implements Event.
func (DocumentFailed) Type() EventType { return EventDocumentFailed }

// When implements Event.
func (e DocumentFailed) When() time.Time { return e.Timestamp }

// Type implements Event.
func (BatchProgress) Type() EventType { return EventBatchProgress }

// When implements Event.
func (e BatchProgress) When() time.Time { return e.Timestamp }

// Type implements Event.
func (AdapterStateChange) Type() EventType { return EventAdapterStateChange }

// When implements Event.
func (e AdapterStateChange) When() time.Time { return e.Timestamp }

// MarshalEvent encodes an event as JSON with a "type" discriminator field,
// the format the CLI's --output json mode and the Kafka publisher emit.
func MarshalEvent(event Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}

	fields["type"] = string(event.Type())

	return json.Marshal(fields)
}
