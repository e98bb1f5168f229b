package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"getmechai/observability"
)

// Limit is one call-site's rate budget. Read, mutation, and upload routes
// carry different budgets for the same client identity.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type window struct {
	stamps []time.Time
	span   time.Duration
}

// RateLimiter admits requests by sliding window: per identity it retains the
// request timestamps inside the trailing window and rejects once the
// configured count is reached. State is in-memory only and owned by the
// process.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*window
	clockNow func() time.Time
}

// NewRateLimiter returns an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*window),
		clockNow: time.Now,
	}
}

// Check admits or rejects one request for identity under limit. A non-positive
// budget is floored to one request per window. Entries older than the window
// are pruned first and never counted; on rejection ResetAt is the instant the
// oldest retained entry leaves the window.
func (r *RateLimiter) Check(identity string, limit Limit) Result {
	if limit.Requests <= 0 {
		limit.Requests = 1
	}
	now := r.clockNow()
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.visitors[identity]
	if !ok {
		w = &window{}
		r.visitors[identity] = w
	}
	w.span = limit.Window
	cutoff := now.Add(-limit.Window)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= limit.Requests {
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   w.stamps[0].Add(limit.Window),
		}
	}
	w.stamps = append(w.stamps, now)
	return Result{
		Allowed:   true,
		Remaining: limit.Requests - len(w.stamps),
		ResetAt:   now.Add(limit.Window),
	}
}

// Sweep runs until ctx is cancelled, periodically dropping identities whose
// whole window has gone stale. Bounds memory growth under churning clients.
func (r *RateLimiter) Sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *RateLimiter) sweepOnce() {
	now := r.clockNow()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, w := range r.visitors {
		stale := true
		cutoff := now.Add(-w.span)
		for _, ts := range w.stamps {
			if ts.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(r.visitors, id)
		}
	}
}

// Middleware guards a route group under scope with the given limit. Rejected
// requests get 429 plus the X-RateLimit-Remaining and X-RateLimit-Reset
// headers so well-behaved clients can back off until the reset instant.
func (r *RateLimiter) Middleware(scope string, limit Limit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			identity := scope + "|" + ClientIdentity(req)
			result := r.Check(identity, limit)
			if !result.Allowed {
				observability.HTTP().ObserveThrottle(scope)
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			next.ServeHTTP(w, req)
		})
	}
}

// ClientIdentity resolves the client identity for rate limiting, preferring
// proxy-set headers over the socket address.
func ClientIdentity(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if raw := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); raw != "" {
		first := raw
		if comma := strings.IndexByte(raw, ','); comma > 0 {
			first = strings.TrimSpace(raw[:comma])
		}
		if parsed := net.ParseIP(first); parsed != nil {
			return parsed.String()
		}
		return first
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
