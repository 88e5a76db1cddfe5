package middleware

import (
	"net/http"
	"sync"
	"time"
)

const (
	rateLimitWindow  = time.Minute
	rateLimitMaxIP   = 300
	rateLimitMaxUser = 200
)

type rateLimiter struct {
	mu        sync.Mutex
	times     map[string][]time.Time
	max       int
	window    time.Duration
	lastSweep time.Time
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{times: make(map[string][]time.Time), max: max, window: window, lastSweep: time.Now()}
}

// recent drops the hits at or before cutoff, reusing the backing array.
func recent(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for _, t := range hits {
		if t.After(cutoff) {
			hits[i] = t
			i++
		}
	}
	return hits[:i]
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-r.window)
	if now.Sub(r.lastSweep) >= r.window {
		r.sweep(cutoff)
		r.lastSweep = now
	}
	hits := recent(r.times[key], cutoff)
	if len(hits) >= r.max {
		r.times[key] = hits
		return false
	}
	r.times[key] = append(hits, now)
	return true
}

// sweep forgets keys with no hits inside the window. Caller holds mu.
func (r *rateLimiter) sweep(cutoff time.Time) {
	for key, hits := range r.times {
		if hits = recent(hits, cutoff); len(hits) == 0 {
			delete(r.times, key)
		} else {
			r.times[key] = hits
		}
	}
}

// RateLimit limits requests per client IP and, once BearerAuth has run, per user.
// Each call owns fresh counters.
type RateLimit struct {
	byIP   *rateLimiter
	byUser *rateLimiter
}

func NewRateLimit(maxIP, maxUser int) *RateLimit {
	if maxIP <= 0 {
		maxIP = rateLimitMaxIP
	}
	if maxUser <= 0 {
		maxUser = rateLimitMaxUser
	}
	return &RateLimit{
		byIP:   newRateLimiter(maxIP, rateLimitWindow),
		byUser: newRateLimiter(maxUser, rateLimitWindow),
	}
}

// API answers 429 when either limit is exceeded.
func (l *RateLimit) API(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if x := r.Header.Get("X-Real-Ip"); x != "" {
			ip = x
		} else if x := r.Header.Get("X-Forwarded-For"); x != "" {
			ip = x
		}
		if !l.byIP.allow(ip) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if userID := GetUserID(r.Context()); userID != "" {
			if !l.byUser.allow("u:" + userID) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
