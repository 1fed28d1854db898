package llm

import (
	"context"
	"sync"
	"time"
)

// requestWindow is a sliding one-minute request limiter with a cooldown
// switch. wait blocks until a request slot is free; setCooldown pauses
// all requests until the deadline passes.
type requestWindow struct {
	mu            sync.Mutex
	maxPerMinute  int
	sent          []time.Time
	cooldownUntil time.Time
	now           func() time.Time
}

func newRequestWindow(maxPerMinute int) *requestWindow {
	return &requestWindow{
		maxPerMinute: maxPerMinute,
		now:          time.Now,
	}
}

func (w *requestWindow) inCooldown() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now().Before(w.cooldownUntil)
}

func (w *requestWindow) setCooldown(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cooldownUntil = w.now().Add(d)
}

// wait blocks until the sliding window has room, then records the
// request. It returns early if the context is cancelled.
func (w *requestWindow) wait(ctx context.Context) error {
	for {
		w.mu.Lock()
		now := w.now()
		cutoff := now.Add(-time.Minute)
		kept := w.sent[:0]
		for _, t := range w.sent {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		w.sent = kept

		if len(w.sent) < w.maxPerMinute {
			w.sent = append(w.sent, now)
			w.mu.Unlock()
			return nil
		}
		sleep := w.sent[0].Sub(cutoff)
		w.mu.Unlock()

		if sleep <= 0 {
			sleep = 10 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}
