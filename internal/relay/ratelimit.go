package relay

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type windowState struct {
	count   int
	resetAt time.Time
}

// rateLimiter is a per-IP fixed-window limiter. The relay is a small,
// single-instance server, so a local in-memory window is enough.
type rateLimiter struct {
	mu     sync.Mutex
	store  map[string]*windowState
	limit  int
	window time.Duration
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		store:  make(map[string]*windowState),
		limit:  limit,
		window: window,
	}
}

func (rl *rateLimiter) allow(key string) (bool, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	st, ok := rl.store[key]
	if !ok || now.After(st.resetAt) {
		st = &windowState{resetAt: now.Add(rl.window)}
		rl.store[key] = st
	}
	if st.count >= rl.limit {
		return false, st.resetAt
	}
	st.count++
	return true, st.resetAt
}

func (rl *rateLimiter) middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, resetAt := rl.allow(clientIPKey(r))
			if !ok {
				retry := time.Until(resetAt)
				if retry < time.Second {
					retry = time.Second
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Round(time.Second).Seconds())))
				writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
