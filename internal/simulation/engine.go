package simulation

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"snakeroyale/server/internal/arena"
	"snakeroyale/server/internal/bots"
	"snakeroyale/server/internal/collision"
	"snakeroyale/server/internal/logging"
	"snakeroyale/server/internal/match"
	"snakeroyale/server/internal/state"
)

var (
	// ErrInboxFull is returned when a non-blocking intent finds the queue saturated.
	ErrInboxFull = errors.New("engine inbox full")
	// ErrEngineStopped is returned for intents submitted after the engine shut down.
	ErrEngineStopped = errors.New("engine stopped")
)

// Config captures the tunables of the simulation core.
type Config struct {
	Arena             arena.Arena
	Rules             arena.Rules
	TickHz            float64
	BroadcastInterval time.Duration
	AIInterval        time.Duration
	RespawnCooldown   time.Duration
	RestartDelay      time.Duration
	SoloBots          int
	InboxSize         int
}

// DefaultConfig returns the 800x600, 60 Hz configuration the game ships with.
func DefaultConfig() Config {
	return Config{
		Arena:             arena.Arena{Width: 800, Height: 600, WallMargin: 15},
		Rules:             arena.DefaultRules(),
		TickHz:            60,
		BroadcastInterval: 40 * time.Millisecond,
		AIInterval:        bots.DefaultThinkInterval,
		RespawnCooldown:   match.DefaultRespawnCooldown,
		RestartDelay:      match.DefaultRestartDelay,
		SoloBots:          bots.DefaultSoloBots,
		InboxSize:         1024,
	}
}

// Telemetry is the read-only view consumed by health and metrics endpoints.
type Telemetry struct {
	Status           match.Status
	Round            int
	Tick             uint64
	Humans           int
	ConnectedHumans  int
	Bots             int
	Alive            int
	Food             int
	Keynote          bool
	Paused           bool
	RestartScheduled bool
	StartedAt        time.Time
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithClock injects a deterministic clock, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithRand injects the random source used for spawns and bot choices.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		if rng != nil {
			e.rng = rng
		}
	}
}

// WithIDGenerator overrides the identifier source for humans and food.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// WithSink routes outbound notifications to sink.
func WithSink(sink Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithLogger overrides the engine logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

// Engine is the tick driver. It exclusively owns the world and the round lifecycle;
// every other goroutine talks to it through the intent inbox.
type Engine struct {
	cfg        Config
	world      *state.World
	lifecycle  *match.Lifecycle
	respawn    *match.Flow
	population *bots.Controller
	decider    *bots.Decider
	monitor    *TickMonitor
	sink       Sink
	log        *logging.Logger
	now        func() time.Time
	rng        *rand.Rand
	newID      func() string

	inbox     chan command
	done      chan struct{}
	closeOnce sync.Once

	tick          uint64
	lastBroadcast time.Time
	startedAt     time.Time

	teleMu    sync.RWMutex
	telemetry Telemetry
}

// NewEngine validates the arena and assembles the simulation core.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Arena.Validate(); err != nil {
		return nil, err
	}
	defaults := DefaultConfig()
	if cfg.TickHz <= 0 {
		cfg.TickHz = defaults.TickHz
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = defaults.BroadcastInterval
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaults.InboxSize
	}
	if cfg.Rules == (arena.Rules{}) {
		cfg.Rules = defaults.Rules
	}
	e := &Engine{
		cfg:   cfg,
		sink:  NopSink{},
		log:   logging.L(),
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		newID: uuid.NewString,
		inbox: make(chan command, cfg.InboxSize),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.log = e.log.With(logging.String("component", "engine"))
	//1.- Wire the owned collaborators with the engine clock and random source.
	e.world = state.NewWorld(cfg.Arena, cfg.Rules, state.WithRand(e.rng), state.WithIDGenerator(e.newID))
	e.lifecycle = match.NewLifecycle(match.WithRestartDelay(cfg.RestartDelay), match.WithLifecycleClock(e.now))
	e.respawn = match.NewFlow(match.WithRespawnDelay(cfg.RespawnCooldown), match.WithClock(e.now))
	e.population = bots.NewController(bots.ControllerConfig{SoloBots: cfg.SoloBots, Launcher: worldLauncher{engine: e}})
	e.decider = bots.NewDecider(cfg.AIInterval)
	e.monitor = NewTickMonitor(time.Duration(float64(time.Second) / cfg.TickHz))
	e.startedAt = e.now()
	e.publishTelemetry()
	return e, nil
}

// Run drives Step at the configured rate until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	loop := NewLoop(e.cfg.TickHz, e.Step)
	loop.Start(ctx)
	<-ctx.Done()
	loop.Stop()
	e.closeOnce.Do(func() { close(e.done) })
}

// Step runs one fixed timestep. It must only be called from a single goroutine.
func (e *Engine) Step(dt time.Duration) {
	started := time.Now()
	now := e.now()
	//1.- Apply queued intents before anything reads the world.
	e.drain(now)
	//2.- Fire the scheduled restart once its delay elapsed.
	if e.lifecycle.RestartDue() {
		e.restart("scheduled")
	}
	//3.- Keep the bot population aligned with the connected humans.
	e.reconcileBots()
	//4.- Advance, collide and think only while playing and not frozen.
	if e.lifecycle.Status() == match.StatusPlaying && !e.lifecycle.Frozen() {
		e.simulate(now, dt)
	}
	//5.- Evaluate the round state machine on the post-collision population.
	e.evaluate()
	e.tick++
	//6.- Throttle outbound snapshots independently of the tick rate.
	if e.lastBroadcast.IsZero() || now.Sub(e.lastBroadcast) >= e.cfg.BroadcastInterval {
		e.lastBroadcast = now
		e.sink.OnStateSnapshot(e.snapshot(now))
	}
	e.publishTelemetry()
	e.monitor.Observe(time.Since(started))
}

func (e *Engine) simulate(now time.Time, dt time.Duration) {
	if _, err := e.world.SpawnFood(); err != nil {
		e.log.Warn("food spawn incomplete", logging.Error(err), logging.Int("food", e.world.Food.Len()))
	}
	seconds := dt.Seconds()
	entities := e.world.Entities.All()
	for _, entity := range entities {
		if entity.Alive && entity.Snake != nil {
			entity.Snake.Advance(e.cfg.Rules.Speed, seconds)
		}
	}
	outcome := collision.Resolve(e.world, now)
	for _, meal := range outcome.Meals {
		e.log.Debug("food eaten", logging.String("entity_id", meal.EntityID), logging.String("food_id", meal.FoodID))
	}
	for _, death := range outcome.Deaths {
		e.log.Info("entity died",
			logging.String("entity_id", death.VictimID),
			logging.String("cause", string(death.Cause)),
			logging.String("killer_id", death.KillerID),
		)
		e.sink.OnEntityDied(DeathEvent{
			EntityID: death.VictimID,
			Cause:    string(death.Cause),
			KillerID: death.KillerID,
			Round:    e.lifecycle.Round(),
		})
	}
	for _, entity := range entities {
		if entity.IsBot() {
			e.decider.Think(e.world, entity, now)
		}
	}
}

func (e *Engine) evaluate() {
	round := e.lifecycle.Round()
	switch e.lifecycle.Evaluate(e.world.Entities.Count()) {
	case match.TransitionStarted:
		e.log.Info("round started", logging.Int("round", round))
		e.sink.OnRoundStarted(round)
	case match.TransitionEnded:
		winner := e.winner()
		fields := []logging.Field{logging.Int("round", round)}
		if winner != nil {
			fields = append(fields, logging.String("winner_id", winner.ID))
		}
		e.log.Info("round ended", fields...)
		e.sink.OnRoundEnded(round, winner)
	}
}

// winner is the first surviving human, else the first surviving bot.
func (e *Engine) winner() *EntityView {
	var bot *state.Entity
	for _, entity := range e.world.Entities.All() {
		if !entity.Alive {
			continue
		}
		if !entity.IsBot() {
			view := viewOf(entity)
			return &view
		}
		if bot == nil {
			bot = entity
		}
	}
	if bot == nil {
		return nil
	}
	view := viewOf(bot)
	return &view
}

func (e *Engine) restart(reason string) {
	e.world.Reset()
	round := e.lifecycle.Restart()
	e.monitor.Reset()
	e.log.Info("round restarted", logging.Int("round", round), logging.String("reason", reason))
	e.sink.OnRoundRestarted(round)
}

func (e *Engine) reconcileBots() {
	pop := e.world.Entities.Count()
	if err := e.population.Reconcile(context.Background(), pop.ConnectedHumans, pop.Bots); err != nil {
		e.log.Error("bot reconcile failed", logging.Error(err))
	}
}

func (e *Engine) publishTelemetry() {
	pop := e.world.Entities.Count()
	t := Telemetry{
		Status:           e.lifecycle.Status(),
		Round:            e.lifecycle.Round(),
		Tick:             e.tick,
		Humans:           pop.Humans,
		ConnectedHumans:  pop.ConnectedHumans,
		Bots:             pop.Bots,
		Alive:            pop.Alive,
		Food:             e.world.Food.Len(),
		Keynote:          e.lifecycle.Keynote(),
		Paused:           e.lifecycle.Paused(),
		RestartScheduled: e.lifecycle.RestartScheduled(),
		StartedAt:        e.startedAt,
	}
	e.teleMu.Lock()
	e.telemetry = t
	e.teleMu.Unlock()
}

// Telemetry returns the state published at the end of the last tick.
func (e *Engine) Telemetry() Telemetry {
	if e == nil {
		return Telemetry{}
	}
	e.teleMu.RLock()
	defer e.teleMu.RUnlock()
	return e.telemetry
}

// TickMetrics exposes the tick duration statistics.
func (e *Engine) TickMetrics() TickMetricsSnapshot {
	if e == nil {
		return TickMetricsSnapshot{}
	}
	return e.monitor.Snapshot()
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }
