package match

import (
	"math"
	"time"
)

// DefaultRespawnCooldown is how long a dead entity waits before it may respawn.
const DefaultRespawnCooldown = 10 * time.Second

// RespawnResult is the answer to a respawn request.
type RespawnResult struct {
	Accepted bool
	// Remaining is the cooldown left when the request is denied.
	Remaining time.Duration
}

// RemainingSeconds rounds the remaining cooldown up to whole seconds.
func (r RespawnResult) RemainingSeconds() int {
	if r.Accepted || r.Remaining <= 0 {
		return 0
	}
	return int(math.Ceil(r.Remaining.Seconds()))
}

// Flow gates respawn requests on the death timestamp.
type Flow struct {
	cooldown time.Duration
	now      func() time.Time
}

// Option configures optional flow parameters at construction time.
type Option func(*Flow)

// WithRespawnDelay overrides the default respawn cooldown.
func WithRespawnDelay(delay time.Duration) Option {
	return func(f *Flow) {
		//1.- A zero cooldown allows immediate respawns.
		if delay >= 0 {
			f.cooldown = delay
		}
	}
}

// WithClock injects a deterministic clock, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(f *Flow) {
		if clock != nil {
			f.now = clock
		}
	}
}

// NewFlow constructs a respawn flow with the ten second default cooldown.
func NewFlow(opts ...Option) *Flow {
	flow := &Flow{cooldown: DefaultRespawnCooldown, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(flow)
		}
	}
	return flow
}

// RespawnETA reports the cooldown left for an entity that died at diedAt.
func (f *Flow) RespawnETA(diedAt time.Time) time.Duration {
	if f == nil || diedAt.IsZero() {
		return 0
	}
	//1.- Clamp the remaining delay at zero once the cooldown has elapsed.
	remaining := f.cooldown - f.now().Sub(diedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Check decides a respawn request; it is accepted once now-diedAt >= cooldown.
func (f *Flow) Check(diedAt time.Time) RespawnResult {
	remaining := f.RespawnETA(diedAt)
	if remaining > 0 {
		return RespawnResult{Remaining: remaining}
	}
	return RespawnResult{Accepted: true}
}
