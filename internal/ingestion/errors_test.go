package ingestion

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      string
		retryable bool
	}{
		{
			name:      "transport is retryable",
			err:       &TransportError{Kind: ConnectionKind, URL: "http://x", Err: errors.New("refused")},
			kind:      KindTransport,
			retryable: true,
		},
		{
			name:      "retryable http status",
			err:       &HTTPStatusError{StatusCode: 503, URL: "http://x", Retryable: true},
			kind:      KindHTTPStatus,
			retryable: true,
		},
		{
			name:      "terminal http status",
			err:       &HTTPStatusError{StatusCode: 404, URL: "http://x", Retryable: false},
			kind:      KindHTTPStatus,
			retryable: false,
		},
		{
			name:      "decode is terminal",
			err:       &DecodeError{URL: "http://x", Err: errors.New("unexpected EOF")},
			kind:      KindDecode,
			retryable: false,
		},
		{
			name:      "schema is terminal",
			err:       &SchemaError{Source: "pubmed", Err: errors.New("not a citation")},
			kind:      KindSchema,
			retryable: false,
		},
		{
			name:      "validation is terminal",
			err:       &ValidationError{DocID: "pmid:100", Err: errors.New("bad doi")},
			kind:      KindValidation,
			retryable: false,
		},
		{
			name:      "rate limited is retryable",
			err:       &RateLimitedError{URL: "http://x", RetryAfter: time.Second},
			kind:      KindRateLimited,
			retryable: true,
		},
		{
			name:      "missing dependency is terminal",
			err:       &MissingDependencyError{Feature: "pdf parsing", Package: "pdfminer"},
			kind:      KindMissingDependency,
			retryable: false,
		},
		{
			name:      "unrecognized is terminal",
			err:       errors.New("something else"),
			kind:      KindUnknown,
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class := ClassifyError(tt.err)

			if class.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", class.Kind, tt.kind)
			}

			if class.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", class.Retryable, tt.retryable)
			}
		})
	}
}

func TestClassifyErrorSeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("fetch failed: %w",
		&TransportError{Kind: TimeoutKind, URL: "http://x", Err: errors.New("deadline")})

	class := ClassifyError(wrapped)
	if class.Kind != KindTransport || !class.Retryable {
		t.Errorf("classification = %+v", class)
	}
}

func TestRateLimitedOutranksTransport(t *testing.T) {
	// A rate-limit rejection wrapping a transport error classifies as rate
	// limited, so the retry loop honors Retry-After instead of hammering.
	err := fmt.Errorf("%w: %w",
		&RateLimitedError{URL: "http://x", RetryAfter: 30 * time.Second},
		&TransportError{Kind: ConnectionKind, URL: "http://x", Err: errors.New("reset")})

	if class := ClassifyError(err); class.Kind != KindRateLimited {
		t.Errorf("Kind = %s, want %s", class.Kind, KindRateLimited)
	}
}

func TestErrorMessagesNameTheirContext(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&TransportError{Kind: TimeoutKind, URL: "http://x", Err: errors.New("deadline")}, "http://x"},
		{&HTTPStatusError{StatusCode: 503, URL: "http://x"}, "503"},
		{&ValidationError{DocID: "pmid:100", Err: errors.New("bad doi")}, "pmid:100"},
		{&SchemaError{Source: "pubmed", Err: errors.New("shape")}, "pubmed"},
	}

	for _, tc := range cases {
		if got := tc.err.Error(); !strings.Contains(got, tc.want) {
			t.Errorf("%T.Error() = %q, missing %q", tc.err, got, tc.want)
		}
	}
}
