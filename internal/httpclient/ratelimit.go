package httpclient

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstCapacityMultiplier = 2
	defaultHostRPS          = 3.0
)

// hostLimiter provides one token bucket per host. Waiting is cooperative: a
// full bucket suspends the calling goroutine without holding any lock, so
// other hosts proceed unimpeded.
type hostLimiter struct {
	mu       sync.RWMutex
	buckets  map[string]*rate.Limiter
	fallback *rate.Limiter
}

func newHostLimiter() *hostLimiter {
	return &hostLimiter{
		buckets:  make(map[string]*rate.Limiter),
		fallback: rate.NewLimiter(rate.Limit(defaultHostRPS), defaultHostRPS*burstCapacityMultiplier),
	}
}

// set installs or replaces the bucket for a host.
// Burst defaults to 2 x rate when not supplied.
func (h *hostLimiter) set(host string, tokensPerSecond float64, burst int) {
	if burst <= 0 {
		burst = int(tokensPerSecond * burstCapacityMultiplier)
		if burst < 1 {
			burst = 1
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.buckets[host] = rate.NewLimiter(rate.Limit(tokensPerSecond), burst)
}

func (h *hostLimiter) limiter(host string) *rate.Limiter {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limiter, ok := h.buckets[host]; ok {
		return limiter
	}

	return h.fallback
}

// wait blocks until the host bucket yields a token or the context is
// cancelled. Returns how long the caller was suspended.
func (h *hostLimiter) wait(ctx context.Context, host string) (time.Duration, error) {
	start := time.Now()

	if err := h.limiter(host).Wait(ctx); err != nil {
		return time.Since(start), err
	}

	return time.Since(start), nil
}
