package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// maxClients caps the number of tracked buckets so a spoofed-source flood
// cannot exhaust memory. Requests beyond the cap are throttled outright.
const maxClients = 100000

// RateLimiter throttles requests per client IP with a token bucket: burst
// tokens up front, refilled continuously at the sustained rate.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// verdict is the outcome of one token draw.
type verdict struct {
	allowed    bool
	remaining  int
	retryAfter float64   // seconds until the next token, when denied
	fullAt     time.Time // when the bucket is back to full
}

// NewRateLimiter creates a rate limiter with the given sustained rate
// (requests per second) and burst size.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
	}
}

// Handler returns HTTP middleware that enforces the limit and reports it
// through the X-RateLimit-* headers.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := rl.take(clientIP(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(v.fullAt.Unix(), 10))

		if !v.allowed {
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(v.retryAfter))))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// take draws one token for the client, creating its bucket on first sight.
func (rl *RateLimiter) take(client string) verdict {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[client]
	switch {
	case ok:
		elapsed := now.Sub(b.seen).Seconds()
		b.tokens = math.Min(float64(rl.burst), b.tokens+elapsed*rl.rate)
		b.seen = now
	case len(rl.buckets) >= maxClients:
		return verdict{retryAfter: 1 / rl.rate, fullAt: now.Add(time.Second)}
	default:
		b = &bucket{tokens: float64(rl.burst), seen: now}
		rl.buckets[client] = b
	}

	if b.tokens < 1 {
		return verdict{
			retryAfter: (1 - b.tokens) / rl.rate,
			fullAt:     rl.fullAt(now, b.tokens),
		}
	}
	b.tokens--
	return verdict{allowed: true, remaining: int(b.tokens), fullAt: rl.fullAt(now, b.tokens)}
}

// fullAt reports when a bucket holding tokens refills completely.
func (rl *RateLimiter) fullAt(now time.Time, tokens float64) time.Time {
	deficit := float64(rl.burst) - tokens
	if deficit <= 0 {
		return now
	}
	return now.Add(time.Duration(deficit / rl.rate * float64(time.Second)))
}

// StartCleanup spawns a goroutine that drops buckets idle for longer than
// maxIdle, checking every interval. The returned function stops it.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup(maxIdle)
			}
		}
	}()
	return cancel
}

func (rl *RateLimiter) cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for client, b := range rl.buckets {
		if b.seen.Before(cutoff) {
			delete(rl.buckets, client)
		}
	}
}

// Len returns the number of tracked client buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// clientIP is the connection's source address. Proxy headers such as
// X-Forwarded-For are deliberately ignored: they are client-controlled and
// would let an attacker rotate identities for free.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
