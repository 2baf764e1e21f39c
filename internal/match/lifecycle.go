package match

import (
	"time"

	"snakeroyale/server/internal/state"
)

// Status is the round state machine position.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
	StatusEnded   Status = "ended"
)

// DefaultRestartDelay is how long an ended round lingers before restarting.
const DefaultRestartDelay = 3 * time.Second

// Transition reports what Evaluate changed.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionStarted
	TransitionEnded
)

// RestartTimer is a one-shot, cancelable restart deadline.
type RestartTimer struct {
	due   time.Time
	armed bool
}

// Schedule arms the timer unless it is already armed.
func (t *RestartTimer) Schedule(at time.Time) bool {
	if t == nil || t.armed {
		return false
	}
	t.due = at
	t.armed = true
	return true
}

// Cancel disarms the timer; cancelling twice is harmless.
func (t *RestartTimer) Cancel() {
	if t == nil {
		return
	}
	t.armed = false
	t.due = time.Time{}
}

// Pending reports whether a restart is scheduled.
func (t *RestartTimer) Pending() bool { return t != nil && t.armed }

// Due reports whether the armed deadline has passed.
func (t *RestartTimer) Due(now time.Time) bool {
	return t.Pending() && !now.Before(t.due)
}

// Deadline returns the armed deadline, or the zero time.
func (t *RestartTimer) Deadline() time.Time {
	if !t.Pending() {
		return time.Time{}
	}
	return t.due
}

// Lifecycle drives waiting -> playing -> ended -> waiting.
//
// It is owned by the tick driver and is not safe for concurrent use.
type Lifecycle struct {
	status       Status
	round        int
	keynote      bool
	paused       bool
	restart      RestartTimer
	restartDelay time.Duration
	now          func() time.Time
}

// LifecycleOption configures a Lifecycle at construction time.
type LifecycleOption func(*Lifecycle)

// WithRestartDelay overrides the delay between the end of a round and its restart.
func WithRestartDelay(delay time.Duration) LifecycleOption {
	return func(l *Lifecycle) {
		if delay >= 0 {
			l.restartDelay = delay
		}
	}
}

// WithLifecycleClock injects a deterministic clock.
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(l *Lifecycle) {
		if clock != nil {
			l.now = clock
		}
	}
}

// NewLifecycle starts in waiting at round one.
func NewLifecycle(opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		status:       StatusWaiting,
		round:        1,
		restartDelay: DefaultRestartDelay,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Status returns the current round state.
func (l *Lifecycle) Status() Status { return l.status }

// Round returns the round counter, starting at 1.
func (l *Lifecycle) Round() int { return l.round }

// Keynote reports whether the keynote freeze is on.
func (l *Lifecycle) Keynote() bool { return l.keynote }

// Paused reports whether the admin pause is on.
func (l *Lifecycle) Paused() bool { return l.paused }

// Frozen reports whether either the keynote or the pause flag halts simulation.
func (l *Lifecycle) Frozen() bool { return l.keynote || l.paused }

// RestartScheduled reports whether the one-shot restart is armed.
func (l *Lifecycle) RestartScheduled() bool { return l.restart.Pending() }

// RestartDeadline exposes when the armed restart fires.
func (l *Lifecycle) RestartDeadline() time.Time { return l.restart.Deadline() }

// ToggleKeynote flips the keynote flag and returns the new value.
func (l *Lifecycle) ToggleKeynote() bool {
	l.keynote = !l.keynote
	return l.keynote
}

// TogglePause flips the pause flag and returns the new value.
func (l *Lifecycle) TogglePause() bool {
	l.paused = !l.paused
	return l.paused
}

// Evaluate applies the population driven transitions for the current tick.
func (l *Lifecycle) Evaluate(pop state.Population) Transition {
	//1.- End the round once no connected human remains and at most one entity survives.
	if l.status == StatusPlaying && !l.Frozen() && !l.restart.Pending() {
		if pop.ConnectedHumans == 0 && pop.Alive <= 1 {
			l.status = StatusEnded
			l.restart.Schedule(l.now().Add(l.restartDelay))
			return TransitionEnded
		}
	}
	//2.- Start playing as soon as two participants are present, even while frozen.
	if l.status == StatusWaiting && pop.Total() >= 2 {
		l.status = StatusPlaying
		return TransitionStarted
	}
	return TransitionNone
}

// RestartDue reports whether the scheduled restart should fire now.
func (l *Lifecycle) RestartDue() bool {
	return l.restart.Due(l.now())
}

// Restart opens the next round in waiting, dropping any pending timer and freeze flag.
func (l *Lifecycle) Restart() int {
	l.restart.Cancel()
	l.status = StatusWaiting
	l.keynote = false
	l.paused = false
	l.round++
	return l.round
}
