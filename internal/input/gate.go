package input

import (
	"sync"
	"time"

	"snakeroyale/server/internal/logging"
)

// Clock exposes the current time for rate limiting decisions.
type Clock interface {
	Now() time.Time
}

type clockFunc func() time.Time

// Now implements Clock for functional adapters.
func (c clockFunc) Now() time.Time { return c() }

// ClockFunc adapts a plain function into a Clock.
func ClockFunc(fn func() time.Time) Clock { return clockFunc(fn) }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config controls the throughput and freshness gates applied to direction intents.
type Config struct {
	// MinInterval is the shortest accepted gap between two direction changes of one client.
	MinInterval time.Duration
	// MaxAge drops frames whose client timestamp lags the server clock by more than this. Zero disables it.
	MaxAge time.Duration
}

// DropReason enumerates why a frame was rejected by the gate.
type DropReason string

const (
	DropReasonNone        DropReason = ""
	DropReasonSequence    DropReason = "sequence"
	DropReasonStale       DropReason = "stale"
	DropReasonRateLimited DropReason = "rate_limit"
)

func (r DropReason) String() string { return string(r) }

// Decision summarises whether a frame passed the gate.
type Decision struct {
	Accepted bool
	Reason   DropReason
	Delay    time.Duration
}

// Frame carries the metadata of one direction intent. Seq and SentAt are optional;
// clients that omit them are only rate limited.
type Frame struct {
	ClientID string
	Seq      uint64
	SentAt   time.Time
}

type clientState struct {
	lastSeq      uint64
	lastAccepted time.Time
	seen         bool
}

// DropCounters aggregates per-reason drop counts.
type DropCounters struct {
	Sequence    uint64 `json:"sequence"`
	Stale       uint64 `json:"stale"`
	RateLimited uint64 `json:"rate_limited"`
}

// Total sums every reason.
func (c DropCounters) Total() uint64 { return c.Sequence + c.Stale + c.RateLimited }

// Metrics stores per-client drop counters for diagnostics.
type Metrics struct {
	mu    sync.RWMutex
	drops map[string]DropCounters
}

func newMetrics() *Metrics {
	return &Metrics{drops: make(map[string]DropCounters)}
}

func (m *Metrics) observe(clientID string, reason DropReason) {
	if m == nil || clientID == "" || reason == DropReasonNone {
		return
	}
	m.mu.Lock()
	current := m.drops[clientID]
	switch reason {
	case DropReasonSequence:
		current.Sequence++
	case DropReasonStale:
		current.Stale++
	case DropReasonRateLimited:
		current.RateLimited++
	}
	m.drops[clientID] = current
	m.mu.Unlock()
}

func (m *Metrics) snapshot() map[string]DropCounters {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.drops) == 0 {
		return nil
	}
	clone := make(map[string]DropCounters, len(m.drops))
	for clientID, counters := range m.drops {
		clone[clientID] = counters
	}
	return clone
}

func (m *Metrics) forget(clientID string) {
	if m == nil || clientID == "" {
		return
	}
	m.mu.Lock()
	delete(m.drops, clientID)
	m.mu.Unlock()
}

// Gate throttles direction intents per client before they reach the engine inbox.
type Gate struct {
	mu      sync.Mutex
	cfg     Config
	clock   Clock
	logger  *logging.Logger
	metrics *Metrics
	clients map[string]*clientState
}

// Option customises gate construction.
type Option func(*Gate)

// WithClock overrides the clock used for interval calculations.
func WithClock(clock Clock) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithMetrics injects a shared metrics container.
func WithMetrics(metrics *Metrics) Option {
	return func(g *Gate) {
		if metrics != nil {
			g.metrics = metrics
		}
	}
}

// NewGate constructs a gate with the supplied configuration and logger.
func NewGate(cfg Config, logger *logging.Logger, opts ...Option) *Gate {
	if cfg.MaxAge < 0 {
		cfg.MaxAge = 0
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if logger == nil {
		logger = logging.L()
	}
	gate := &Gate{
		cfg:     cfg,
		clock:   systemClock{},
		logger:  logger,
		metrics: newMetrics(),
		clients: make(map[string]*clientState),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(gate)
		}
	}
	return gate
}

// Evaluate applies ordering, freshness and throughput guards to the frame.
func (g *Gate) Evaluate(frame Frame) Decision {
	decision := Decision{Accepted: true}
	if g == nil || frame.ClientID == "" {
		return decision
	}
	now := g.clock.Now()
	if !frame.SentAt.IsZero() {
		//1.- Report the capture-to-arrival delay even for accepted frames.
		if delay := now.Sub(frame.SentAt); delay > 0 {
			decision.Delay = delay
		}
	}

	g.mu.Lock()
	state := g.clients[frame.ClientID]
	if state == nil {
		state = &clientState{}
		g.clients[frame.ClientID] = state
	}
	switch {
	case frame.Seq != 0 && frame.Seq <= state.lastSeq:
		decision.Accepted, decision.Reason = false, DropReasonSequence
	case g.cfg.MaxAge > 0 && decision.Delay > g.cfg.MaxAge:
		decision.Accepted, decision.Reason = false, DropReasonStale
	case state.seen && g.cfg.MinInterval > 0 && now.Sub(state.lastAccepted) < g.cfg.MinInterval:
		decision.Accepted, decision.Reason = false, DropReasonRateLimited
	default:
		//2.- Promote the frame so the next interval is measured from here.
		state.seen = true
		state.lastAccepted = now
		if frame.Seq != 0 {
			state.lastSeq = frame.Seq
		}
	}
	g.mu.Unlock()

	if !decision.Accepted {
		g.metrics.observe(frame.ClientID, decision.Reason)
		g.logger.Debug("direction intent dropped",
			logging.String("client_id", frame.ClientID),
			logging.String("reason", decision.Reason.String()),
		)
	}
	return decision
}

// Forget clears cached state and metrics for a disconnected client.
func (g *Gate) Forget(clientID string) {
	if g == nil || clientID == "" {
		return
	}
	g.mu.Lock()
	delete(g.clients, clientID)
	g.mu.Unlock()
	g.metrics.forget(clientID)
}

// Metrics returns a snapshot of the latest drop counters.
func (g *Gate) Metrics() map[string]DropCounters {
	if g == nil {
		return nil
	}
	return g.metrics.snapshot()
}
