package httpapi

import (
	"sync"
	"time"
)

// SlidingWindowLimiter allows at most limit events per window for each key.
type SlidingWindowLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

// NewSlidingWindowLimiter constructs a limiter; a zero window or limit disables it.
func NewSlidingWindowLimiter(window time.Duration, limit int, timeSource func() time.Time) *SlidingWindowLimiter {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &SlidingWindowLimiter{
		window: window,
		limit:  limit,
		now:    timeSource,
		events: make(map[string][]time.Time),
	}
}

// Allow reports whether key may proceed, and otherwise how long until the oldest event expires.
func (l *SlidingWindowLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	events := l.events[key]
	kept := events[:0]
	for _, ts := range events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.limit {
		l.events[key] = kept
		return false, kept[0].Sub(cutoff)
	}
	l.events[key] = append(kept, now)
	//1.- Sweep idle keys opportunistically so the map tracks only recent callers.
	if len(l.events) > 1024 {
		for other, stamps := range l.events {
			if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
				delete(l.events, other)
			}
		}
	}
	return true, 0
}
