// Package telemetry provides the single registration path for ingestion
// telemetry: structured events fanned out to subscribers, mirrored into
// prometheus collectors.
//
// There is exactly one Registry per process. Components emit events through
// it; consumers subscribe handlers. A no-op registry does not exist - the
// zero-subscriber case still feeds the prometheus metrics.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventName identifies a telemetry event.
type EventName string

// Telemetry event names.
const (
	RequestStarted   EventName = "request_started"
	RequestCompleted EventName = "request_completed"
	RequestRetried   EventName = "request_retried"
	RequestFailed    EventName = "request_failed"
	RateLimitWait    EventName = "rate_limit_wait"
	BackpressureWait EventName = "backpressure_wait"
	QueueDepth       EventName = "queue_depth"
)

type (
	// Event is one structured telemetry observation. Fields are populated per
	// event name; unused fields stay zero.
	Event struct {
		Name      EventName
		Timestamp time.Time

		// HTTP request fields.
		URL      string
		Host     string
		Status   int
		Attempt  int
		Reason   string
		Bytes    int64
		Duration time.Duration

		// Retry/backoff fields.
		Backoff time.Duration

		// Pipeline fields.
		Depth   int
		Adapter string
	}

	// Handler consumes telemetry events. Handlers run synchronously on the
	// emitting goroutine and must be fast.
	Handler func(Event)

	// Registry fans events out to subscribers and keeps the prometheus
	// collectors current. Safe for concurrent use.
	Registry struct {
		mu       sync.RWMutex
		handlers []Handler
		metrics  *metrics
	}

	metrics struct {
		requestDuration  *prometheus.HistogramVec
		requestRetries   *prometheus.CounterVec
		requestFailures  *prometheus.CounterVec
		rateLimitWait    *prometheus.CounterVec
		queueDepth       prometheus.Gauge
		backpressureWait prometheus.Counter
		documentsTotal   *prometheus.CounterVec
	}
)

// NewRegistry builds a telemetry registry whose collectors are registered
// with reg. Passing nil uses the default prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Registry{
		metrics: &metrics{
			requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ingest",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Outbound HTTP request duration by host and status.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"host", "status"}),
			requestRetries: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ingest",
				Subsystem: "http",
				Name:      "request_retries_total",
				Help:      "Outbound HTTP request retries by host and reason.",
			}, []string{"host", "reason"}),
			requestFailures: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ingest",
				Subsystem: "http",
				Name:      "request_failures_total",
				Help:      "Outbound HTTP requests that exhausted their retry budget.",
			}, []string{"host"}),
			rateLimitWait: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ingest",
				Subsystem: "http",
				Name:      "rate_limit_wait_seconds_total",
				Help:      "Time spent waiting on per-host token buckets.",
			}, []string{"host"}),
			queueDepth: factory.NewGauge(prometheus.GaugeOpts{
				Namespace: "ingest",
				Subsystem: "pipeline",
				Name:      "event_queue_depth",
				Help:      "Current depth of the bounded pipeline event queue.",
			}),
			backpressureWait: factory.NewCounter(prometheus.CounterOpts{
				Namespace: "ingest",
				Subsystem: "pipeline",
				Name:      "backpressure_wait_seconds_total",
				Help:      "Time producers spent blocked on the full event queue.",
			}),
			documentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ingest",
				Subsystem: "pipeline",
				Name:      "documents_total",
				Help:      "Documents by adapter and terminal state.",
			}, []string{"adapter", "state"}),
		},
	}
}

// Subscribe registers a handler for all subsequent events.
func (r *Registry) Subscribe(handler Handler) {
	if handler == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers = append(r.handlers, handler)
}

// Emit publishes an event to all subscribers and updates the matching
// prometheus collectors.
func (r *Registry) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	r.observe(event)

	r.mu.RLock()
	handlers := r.handlers
	r.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// IncDocument counts a document reaching a terminal state.
func (r *Registry) IncDocument(adapterName, state string) {
	r.metrics.documentsTotal.WithLabelValues(adapterName, state).Inc()
}

func (r *Registry) observe(event Event) {
	switch event.Name {
	case RequestCompleted:
		r.metrics.requestDuration.
			WithLabelValues(event.Host, statusLabel(event.Status)).
			Observe(event.Duration.Seconds())
	case RequestRetried:
		r.metrics.requestRetries.WithLabelValues(event.Host, event.Reason).Inc()
	case RequestFailed:
		r.metrics.requestFailures.WithLabelValues(event.Host).Inc()
	case RateLimitWait:
		r.metrics.rateLimitWait.WithLabelValues(event.Host).Add(event.Duration.Seconds())
	case QueueDepth:
		r.metrics.queueDepth.Set(float64(event.Depth))
	case BackpressureWait:
		r.metrics.backpressureWait.Add(event.Duration.Seconds())
	case RequestStarted:
		// Fan-out only; no collector for request starts.
	}
}

func statusLabel(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
