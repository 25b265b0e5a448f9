package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// rateLimiter enforces a sliding-window per-client budget. Entries are pruned
// lazily on access and in bulk when the map grows.
type rateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	clients map[string][]time.Time

	now func() time.Time // test hook
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// allow records one hit for the client and reports whether it fits the
// budget. retryAfter is the wait until the oldest hit ages out.
func (rl *rateLimiter) allow(client string) (ok bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	hits := rl.clients[client]
	live := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}

	if len(live) >= rl.limit {
		rl.clients[client] = live
		return false, live[0].Sub(cutoff)
	}
	rl.clients[client] = append(live, now)

	if len(rl.clients) > 10000 {
		rl.prune(cutoff)
	}
	return true, 0
}

// prune drops clients with no live hits. Caller holds the lock.
func (rl *rateLimiter) prune(cutoff time.Time) {
	for client, hits := range rl.clients {
		alive := false
		for _, t := range hits {
			if t.After(cutoff) {
				alive = true
				break
			}
		}
		if !alive {
			delete(rl.clients, client)
		}
	}
}

// middleware rejects over-budget clients with 429 and a retryAfter hint.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retryAfter := rl.allow(clientKey(r))
		if !ok {
			seconds := int(retryAfter.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message":    "rate limit exceeded",
				"error":      "too many requests",
				"retryAfter": seconds,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller by remote IP, honouring the usual proxy
// header.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
