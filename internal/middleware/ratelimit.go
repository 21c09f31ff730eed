package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit returns middleware that throttles requests per client IP using
// a token bucket. rps is the sustained rate, burst the bucket size.
//
// Intended for the inbound webhook endpoint, which is unauthenticated and
// therefore the only surface anyone on the internet can hammer. The chi
// RealIP middleware must run first so r.RemoteAddr holds the real client
// address rather than a proxy's.
//
// Buckets for senders idle longer than an hour are dropped on the next
// sweep so the map doesn't grow without bound.
func RateLimit(rps rate.Limit, burst int) func(http.Handler) http.Handler {
	type bucket struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu      sync.Mutex
		buckets = make(map[string]*bucket)
		swept   = time.Now()
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			now := time.Now()
			if now.Sub(swept) > time.Hour {
				for addr, b := range buckets {
					if now.Sub(b.lastSeen) > time.Hour {
						delete(buckets, addr)
					}
				}
				swept = now
			}

			b, ok := buckets[r.RemoteAddr]
			if !ok {
				b = &bucket{limiter: rate.NewLimiter(rps, burst)}
				buckets[r.RemoteAddr] = b
			}
			b.lastSeen = now
			allowed := b.limiter.Allow()
			mu.Unlock()

			if !allowed {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
