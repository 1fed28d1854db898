package http

import (
	"sync"
	"time"
)

// ipThrottle caps how many requests each client IP may make within a
// fixed window. State lives in memory; a restart forgives everyone.
type ipThrottle struct {
	limit  int
	window time.Duration

	mu        sync.Mutex
	windows   map[string]*ipWindow
	lastSweep time.Time
}

type ipWindow struct {
	start time.Time
	count int
}

func newIPThrottle(limit int, window time.Duration) *ipThrottle {
	return &ipThrottle{
		limit:     limit,
		window:    window,
		windows:   make(map[string]*ipWindow),
		lastSweep: time.Now(),
	}
}

// allow counts one request for ip and reports whether it stays within
// the limit. A window that has elapsed restarts at one.
func (t *ipThrottle) allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.sweepLocked(now)

	w, ok := t.windows[ip]
	if !ok || now.Sub(w.start) >= t.window {
		t.windows[ip] = &ipWindow{start: now, count: 1}
		return true
	}

	w.count++
	return w.count <= t.limit
}

// sweepLocked drops windows idle for several periods so the map does
// not grow with every IP ever seen. Caller holds mu.
func (t *ipThrottle) sweepLocked(now time.Time) {
	if now.Sub(t.lastSweep) < 5*t.window {
		return
	}
	t.lastSweep = now

	cutoff := now.Add(-2 * t.window)
	for ip, w := range t.windows {
		if w.start.Before(cutoff) {
			delete(t.windows, ip)
		}
	}
}
