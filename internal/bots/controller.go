package bots

import (
	"context"
	"errors"
	"sync"
)

// DefaultSoloBots is the bot population kept alongside a lone human.
const DefaultSoloBots = 2

// Launcher adds or retires bot entities in the world.
type Launcher interface {
	// Scale adjusts the number of active bots and returns the confirmed population.
	Scale(ctx context.Context, target int) (int, error)
}

// Snapshot exposes the observed participant counts for metrics export.
type Snapshot struct {
	Humans int
	Bots   int
}

// ControllerConfig configures the bot population controller.
type ControllerConfig struct {
	// SoloBots is how many bots join when exactly one human is connected.
	SoloBots int
	Launcher Launcher
}

// Controller keeps single player sessions populated and multiplayer sessions bot free.
type Controller struct {
	mu sync.Mutex

	humans   int
	bots     int
	soloBots int
	launcher Launcher
}

// NewController constructs a population controller with the supplied configuration.
func NewController(cfg ControllerConfig) *Controller {
	controller := &Controller{soloBots: DefaultSoloBots, launcher: cfg.Launcher}
	if cfg.SoloBots > 0 {
		controller.soloBots = cfg.SoloBots
	}
	return controller
}

// DesiredBots maps the connected human count onto a bot target.
// The second result is false when the population should be left untouched.
func (c *Controller) DesiredBots(connectedHumans int) (int, bool) {
	switch {
	case connectedHumans == 1:
		return c.soloBots, true
	case connectedHumans >= 2:
		return 0, true
	default:
		return 0, false
	}
}

// Reconcile asks the launcher for the desired bot count when it differs from currentBots.
func (c *Controller) Reconcile(ctx context.Context, connectedHumans, currentBots int) error {
	if c == nil {
		return errors.New("controller is nil")
	}
	c.mu.Lock()
	//1.- Record the observed counts so telemetry stays current even without changes.
	c.humans = connectedHumans
	c.bots = currentBots
	c.mu.Unlock()
	target, ok := c.DesiredBots(connectedHumans)
	if !ok || target == currentBots {
		return nil
	}
	//2.- Delegate to reconcile so the launcher observes the updated totals.
	return c.reconcile(ctx, target)
}

// Snapshot returns the most recent human and bot counts without mutating state.
func (c *Controller) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Humans: c.humans, Bots: c.bots}
}

func (c *Controller) reconcile(ctx context.Context, target int) error {
	if target < 0 {
		target = 0
	}
	var (
		confirmed int
		err       error
	)
	if c.launcher != nil {
		//1.- Ask the launcher to adjust the bot pool and capture the confirmed count.
		confirmed, err = c.launcher.Scale(ctx, target)
	} else {
		confirmed = target
	}
	if err != nil {
		return err
	}
	c.mu.Lock()
	//2.- Persist the reconciled bot population so metrics match launcher state.
	c.bots = confirmed
	c.mu.Unlock()
	return nil
}
