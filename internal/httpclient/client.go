package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/medical-kg/ingest/internal/config"
	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/internal/telemetry"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 32 << 20 // 32 MiB
	defaultUserAgent        = "medical-kg-ingest/1.0"
)

// traceParentKey carries the W3C traceparent header value through a context.
type traceParentKey struct{}

// WithTraceParent returns a context carrying a traceparent value that the
// client propagates on outbound requests.
func WithTraceParent(ctx context.Context, traceparent string) context.Context {
	return context.WithValue(ctx, traceParentKey{}, traceparent)
}

type (
	// Client is the typed HTTP client shared across all pipeline workers.
	// Safe for concurrent use; the underlying transport pools connections
	// with per-host limits.
	Client struct {
		httpClient *http.Client
		policy     RetryPolicy
		limiter    *hostLimiter
		telemetry  *telemetry.Registry
		logger     *slog.Logger
		userAgent  string
		maxBytes   int64

		rngMu sync.Mutex
		rng   *rand.Rand
	}

	// ClientOption customizes client construction.
	ClientOption func(*Client)

	// RequestOption customizes a single request.
	RequestOption func(*requestSpec)

	requestSpec struct {
		query   url.Values
		headers http.Header
	}
)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) { c.policy = policy }
}

// WithTimeout sets the total per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithMaxResponseBytes caps how much of a response body is read.
func WithMaxResponseBytes(n int64) ClientOption {
	return func(c *Client) { c.maxBytes = n }
}

// WithQuery adds query parameters to a request.
func WithQuery(params map[string]string) RequestOption {
	return func(spec *requestSpec) {
		for key, value := range params {
			spec.query.Set(key, value)
		}
	}
}

// WithHeaders adds headers to a request.
func WithHeaders(headers map[string]string) RequestOption {
	return func(spec *requestSpec) {
		for key, value := range headers {
			spec.headers.Set(key, value)
		}
	}
}

// New builds a client. Timeout and attempt budget honor HTTP_TIMEOUT_MS and
// HTTP_MAX_ATTEMPTS when set.
func New(registry *telemetry.Registry, opts ...ClientOption) *Client {
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = config.GetEnvInt("HTTP_MAX_ATTEMPTS", policy.MaxAttempts)

	client := &Client{
		httpClient: &http.Client{
			Timeout: config.GetEnvMillis("HTTP_TIMEOUT_MS", defaultTimeout),
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 8,
				MaxConnsPerHost:     16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		policy:    policy,
		limiter:   newHostLimiter(),
		telemetry: registry,
		logger:    slog.Default(),
		userAgent: defaultUserAgent,
		maxBytes:  defaultMaxResponseBytes,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // jitter, not crypto
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// SetRateLimit installs a token bucket for a host. Requests to the host
// cooperatively suspend when the bucket is empty.
func (c *Client) SetRateLimit(host string, tokensPerSecond float64, burst int) {
	c.limiter.set(host, tokensPerSecond, burst)
}

// GetJSON performs a GET and decodes the response body as JSON.
//
// Fails with TransportError (connection/DNS/timeout), HTTPStatusError or
// RateLimitedError (non-2xx), or DecodeError (malformed body). Retryable
// statuses retry per the client policy before an error is returned.
func (c *Client) GetJSON(ctx context.Context, rawURL string, opts ...RequestOption) (*JSONResponse, error) {
	body, resp, err := c.do(ctx, http.MethodGet, rawURL, nil, "application/json", opts...)
	if err != nil {
		return nil, err
	}

	return decodeJSONResponse(body, resp)
}

// PostJSON performs a POST with a JSON body and decodes the JSON response.
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload any, opts ...RequestOption) (*JSONResponse, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	body, resp, err := c.do(ctx, http.MethodPost, rawURL, encoded, "application/json", opts...)
	if err != nil {
		return nil, err
	}

	return decodeJSONResponse(body, resp)
}

// GetText performs a GET and returns the body as text.
func (c *Client) GetText(ctx context.Context, rawURL string, opts ...RequestOption) (*TextResponse, error) {
	body, resp, err := c.do(ctx, http.MethodGet, rawURL, nil, "text/plain, application/xml, text/html", opts...)
	if err != nil {
		return nil, err
	}

	return &TextResponse{
		Text:       string(body),
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
	}, nil
}

// GetBytes performs a GET and returns the raw body.
func (c *Client) GetBytes(ctx context.Context, rawURL string, opts ...RequestOption) (*BytesResponse, error) {
	body, resp, err := c.do(ctx, http.MethodGet, rawURL, nil, "application/octet-stream", opts...)
	if err != nil {
		return nil, err
	}

	return &BytesResponse{
		Content:    body,
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
	}, nil
}

// StreamBytes performs a GET and hands the caller the undrained body.
// The caller owns the ReadCloser. Retries cover connection and status
// failures; mid-stream read failures surface to the consumer.
func (c *Client) StreamBytes(ctx context.Context, rawURL string, opts ...RequestOption) (io.ReadCloser, *BytesResponse, error) {
	resp, err := c.doStreaming(ctx, http.MethodGet, rawURL, nil, "application/octet-stream", opts...)
	if err != nil {
		return nil, nil, err
	}

	meta := &BytesResponse{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
	}

	return resp.Body, meta, nil
}

// do runs the retry loop and drains the successful response body.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, accept string, opts ...RequestOption) ([]byte, *http.Response, error) {
	resp, err := c.doStreaming(ctx, method, rawURL, body, accept, opts...)
	if err != nil {
		return nil, nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	drained, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, nil, &ingestion.TransportError{
			Kind: ingestion.ConnectionKind,
			URL:  rawURL,
			Err:  err,
		}
	}

	return drained, resp, nil
}

// doStreaming is the retry loop: rate-limit wait, send, classify, back off.
// Every suspension point checks ctx.
func (c *Client) doStreaming(ctx context.Context, method, rawURL string, body []byte, accept string, opts ...RequestOption) (*http.Response, error) {
	spec := &requestSpec{query: url.Values{}, headers: http.Header{}}
	for _, opt := range opts {
		opt(spec)
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	if len(spec.query) > 0 {
		merged := target.Query()
		for key, values := range spec.query {
			for _, value := range values {
				merged.Set(key, value)
			}
		}

		target.RawQuery = merged.Encode()
	}

	host := target.Hostname()

	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		// The limiter fails on context cancellation, and also when the
		// required wait would outlive the deadline while ctx.Err() is still
		// nil. Either way the request never left, so classify as a timeout.
		waited, err := c.limiter.wait(ctx, host)
		if err != nil {
			return nil, &ingestion.TransportError{
				Kind: ingestion.TimeoutKind,
				URL:  target.String(),
				Err:  fmt.Errorf("rate limit wait: %w", err),
			}
		}

		if waited > time.Millisecond {
			c.telemetry.Emit(telemetry.Event{Name: telemetry.RateLimitWait, Host: host, Duration: waited})
		}

		c.telemetry.Emit(telemetry.Event{Name: telemetry.RequestStarted, URL: target.String(), Host: host, Attempt: attempt})

		resp, err := c.send(ctx, method, target.String(), body, accept, spec.headers)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		verdict := ingestion.ClassifyError(err)

		if !verdict.Retryable || attempt == c.policy.MaxAttempts {
			break
		}

		backoff := c.backoffFor(attempt, retryAfterOf(err))

		c.telemetry.Emit(telemetry.Event{
			Name:    telemetry.RequestRetried,
			URL:     target.String(),
			Host:    host,
			Attempt: attempt,
			Reason:  verdict.Kind,
			Backoff: backoff,
		})

		c.logger.Debug("Retrying request",
			slog.String("url", target.String()),
			slog.Int("attempt", attempt),
			slog.String("reason", verdict.Kind),
			slog.Duration("backoff", backoff))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.telemetry.Emit(telemetry.Event{Name: telemetry.RequestFailed, URL: target.String(), Host: host})

	return nil, lastErr
}

// send performs exactly one request and classifies any failure at
// construction time.
func (c *Client) send(ctx context.Context, method, target string, body []byte, accept string, headers http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if traceparent, ok := ctx.Value(traceParentKey{}).(string); ok && traceparent != "" {
		req.Header.Set("traceparent", traceparent)
	}

	for key, values := range headers {
		for _, value := range values {
			req.Header.Set(key, value)
		}
	}

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		return nil, classifyTransport(err, target, duration)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		retryAfter := parseRetryAfter(resp.Header)

		// Drain so the connection returns to the pool.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &ingestion.RateLimitedError{URL: target, RetryAfter: retryAfter}
		}

		return nil, &ingestion.HTTPStatusError{
			StatusCode: resp.StatusCode,
			URL:        target,
			Duration:   duration,
			RetryAfter: retryAfter,
			Retryable:  c.policy.RetryableStatus(resp.StatusCode),
		}
	}

	c.telemetry.Emit(telemetry.Event{
		Name:     telemetry.RequestCompleted,
		URL:      target,
		Host:     req.URL.Hostname(),
		Status:   resp.StatusCode,
		Duration: duration,
		Bytes:    resp.ContentLength,
	})

	return resp, nil
}

// backoffFor computes the next backoff under the rng lock; rand.Rand is not
// concurrency-safe.
func (c *Client) backoffFor(attempt int, retryAfter time.Duration) time.Duration {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	return c.policy.Backoff(attempt, retryAfter, c.rng)
}

// classifyTransport maps a net/http error into the taxonomy.
func classifyTransport(err error, target string, duration time.Duration) error {
	kind := ingestion.ConnectionKind

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = ingestion.TimeoutKind
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		kind = ingestion.DNSKind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		kind = ingestion.TimeoutKind
	}

	return &ingestion.TransportError{
		Kind:     kind,
		URL:      target,
		Duration: duration,
		Err:      err,
	}
}

// retryAfterOf extracts the server-requested delay from an error, if any.
func retryAfterOf(err error) time.Duration {
	var rateLimited *ingestion.RateLimitedError
	if errors.As(err, &rateLimited) {
		return rateLimited.RetryAfter
	}

	var statusErr *ingestion.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.RetryAfter
	}

	return 0
}

func decodeJSONResponse(body []byte, resp *http.Response) (*JSONResponse, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &ingestion.DecodeError{URL: resp.Request.URL.String(), Err: err}
	}

	return &JSONResponse{
		Data:       data,
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		RawBytes:   body,
	}, nil
}
