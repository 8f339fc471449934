package httpclient

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// Default retry policy values.
const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	defaultMultiplier     = 2.0
	defaultMaxAttempts    = 5
)

// RetryPolicy controls the retry loop: exponential backoff with full jitter,
// capped at MaxBackoff, for at most MaxAttempts total attempts.
//
// The retryable status set defaults to {408, 425, 429, 500, 502, 503, 504};
// deployments may extend it, but 501 and the permanent 4xx statuses never
// retry.
type RetryPolicy struct {
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	Multiplier        float64
	MaxAttempts       int
	RetryableStatuses map[int]bool
}

// DefaultRetryPolicy returns the standard policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		Multiplier:     defaultMultiplier,
		MaxAttempts:    defaultMaxAttempts,
		RetryableStatuses: map[int]bool{
			http.StatusRequestTimeout:      true, // 408
			http.StatusTooEarly:            true, // 425
			http.StatusTooManyRequests:     true, // 429
			http.StatusInternalServerError: true, // 500
			http.StatusBadGateway:          true, // 502
			http.StatusServiceUnavailable:  true, // 503
			http.StatusGatewayTimeout:      true, // 504
		},
	}
}

// RetryableStatus reports whether the status code is in the retryable set.
func (p RetryPolicy) RetryableStatus(status int) bool {
	return p.RetryableStatuses[status]
}

// Backoff computes the sleep before the given retry attempt (1-based).
// A server-provided Retry-After takes precedence, capped at MaxBackoff.
func (p RetryPolicy) Backoff(attempt int, retryAfter time.Duration, rng *rand.Rand) time.Duration {
	if retryAfter > 0 {
		if retryAfter > p.MaxBackoff {
			return p.MaxBackoff
		}

		return retryAfter
	}

	backoff := float64(p.InitialBackoff)

	for i := 1; i < attempt; i++ {
		backoff *= p.Multiplier
		if backoff >= float64(p.MaxBackoff) {
			backoff = float64(p.MaxBackoff)

			break
		}
	}

	// Full jitter: uniform in (0, backoff]. Spreads coordinated retries
	// across the window.
	jittered := time.Duration(rng.Float64() * backoff)
	if jittered <= 0 {
		jittered = time.Millisecond
	}

	return jittered
}

// parseRetryAfter parses a Retry-After header as either delta-seconds or an
// HTTP date. Returns zero when absent or unparseable.
func parseRetryAfter(headers http.Header) time.Duration {
	value := headers.Get("Retry-After")
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}

	return 0
}
