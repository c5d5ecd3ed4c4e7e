package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	vcerrors "github.com/livepeer/vodcompress/errors"
)

const (
	rateLimitRequests = 100
	rateLimitWindow   = 60 * time.Second
)

// bucket is a fixed-window counter per client IP: simpler than a true token
// bucket and sufficient for a 100-req/60s limit.
type bucket struct {
	count      int
	windowEnds time.Time
}

// RateLimiter enforces rateLimitRequests per rateLimitWindow per client IP
// across every /api/ route.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: map[string]*bucket{}}
}

func (rl *RateLimiter) Limit(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ip := clientIP(r)
		retryAfter, ok := rl.allow(ip)
		if !ok {
			vcerrors.WriteHTTPTooManyRequests(w, "rate limit exceeded", retryAfter)
			return
		}
		next(w, r, ps)
	}
}

func (rl *RateLimiter) allow(ip string) (int, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[ip]
	if !ok || now.After(b.windowEnds) {
		b = &bucket{count: 0, windowEnds: now.Add(rateLimitWindow)}
		rl.buckets[ip] = b
	}
	b.count++
	if b.count > rateLimitRequests {
		return int(time.Until(b.windowEnds).Seconds()) + 1, false
	}
	return 0, true
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
