package ingestion

import (
	"errors"
	"fmt"
	"time"
)

// Error kind discriminators. These are the error_type values surfaced in
// DocumentFailed events and failure summaries; the set is closed.
const (
	KindTransport         = "TransportError"
	KindHTTPStatus        = "HttpStatusError"
	KindDecode            = "DecodeError"
	KindSchema            = "SchemaError"
	KindValidation        = "ValidationError"
	KindRateLimited       = "RateLimited"
	KindMissingDependency = "MissingDependency"
	KindUnknown           = "UnknownError"
)

type (
	// TransportError reports a network-level failure: connection refused, DNS
	// resolution, or timeout. Always retryable.
	TransportError struct {
		// Kind distinguishes timeout, dns, and connection failures.
		Kind string

		URL      string
		Duration time.Duration
		Err      error
	}

	// HTTPStatusError reports a non-2xx response. Retryable only for the
	// configured retryable status set (408, 425, 429 and transient 5xx).
	HTTPStatusError struct {
		StatusCode int
		URL        string
		Duration   time.Duration

		// RetryAfter is the parsed Retry-After header, zero when absent.
		RetryAfter time.Duration

		// Retryable is decided at construction against the client's retry policy.
		Retryable bool
	}

	// DecodeError reports malformed JSON or XML at the response boundary. Terminal.
	DecodeError struct {
		URL string
		Err error
	}

	// SchemaError reports a structural mismatch against a typed payload shape. Terminal.
	SchemaError struct {
		Source string
		Err    error
	}

	// ValidationError reports a semantic invariant failure: bad identifier,
	// missing required metadata, wrong payload family. Terminal.
	ValidationError struct {
		DocID string
		Err   error
	}

	// RateLimitedError reports an explicit 429 or a local limiter rejection.
	// Retryable after RetryAfter.
	RateLimitedError struct {
		URL        string
		RetryAfter time.Duration
	}

	// MissingDependencyError reports an optional runtime dependency that is not
	// installed. It carries an actionable install hint; there are no silent
	// no-op fallbacks for optional features.
	MissingDependencyError struct {
		Feature     string
		Package     string
		ExtrasGroup string
		InstallHint string
	}
)

// TimeoutKind, DNSKind and ConnectionKind classify TransportError.Kind.
const (
	TimeoutKind    = "timeout"
	DNSKind        = "dns"
	ConnectionKind = "connection"
)

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s) for %s after %s: %v", e.Kind, e.URL, e.Duration, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s after %s", e.StatusCode, e.URL, e.Duration)
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *SchemaError) Error() string {
	return fmt.Sprintf("payload shape mismatch for source %s: %v", e.Source, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *ValidationError) Error() string {
	if e.DocID != "" {
		return fmt.Sprintf("validation failed for %s: %v", e.DocID, e.Err)
	}

	return fmt.Sprintf("validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited at %s (retry after %s)", e.URL, e.RetryAfter)
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("missing optional dependency for %s: install %s (%s): %s",
		e.Feature, e.Package, e.ExtrasGroup, e.InstallHint)
}

// Classification is the verdict of ClassifyError: the error_type discriminator
// and whether a retry can change the outcome.
type Classification struct {
	Kind      string
	Retryable bool
}

// ClassifyError maps any error to its place in the closed taxonomy.
//
// This is the single classification function consulted by both the adapters
// and the pipeline; retry decisions are never made anywhere else.
//
// Policy: transport failures and retryable HTTP statuses retry; decode,
// schema, and validation failures are terminal; everything unrecognized is
// terminal (an unknown error is not a license to hammer a source).
func ClassifyError(err error) Classification {
	var (
		transportErr  *TransportError
		statusErr     *HTTPStatusError
		decodeErr     *DecodeError
		schemaErr     *SchemaError
		validationErr *ValidationError
		rateLimited   *RateLimitedError
		missingDep    *MissingDependencyError
	)

	switch {
	case errors.As(err, &rateLimited):
		return Classification{Kind: KindRateLimited, Retryable: true}
	case errors.As(err, &transportErr):
		return Classification{Kind: KindTransport, Retryable: true}
	case errors.As(err, &statusErr):
		return Classification{Kind: KindHTTPStatus, Retryable: statusErr.Retryable}
	case errors.As(err, &decodeErr):
		return Classification{Kind: KindDecode, Retryable: false}
	case errors.As(err, &schemaErr):
		return Classification{Kind: KindSchema, Retryable: false}
	case errors.As(err, &validationErr):
		return Classification{Kind: KindValidation, Retryable: false}
	case errors.As(err, &missingDep):
		return Classification{Kind: KindMissingDependency, Retryable: false}
	default:
		return Classification{Kind: KindUnknown, Retryable: false}
	}
}
