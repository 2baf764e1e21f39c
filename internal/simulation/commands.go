package simulation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"snakeroyale/server/internal/arena"
	"snakeroyale/server/internal/logging"
	"snakeroyale/server/internal/state"
)

// AdminAction names an operator command.
type AdminAction string

const (
	AdminRestart AdminAction = "restart"
	AdminPause   AdminAction = "pause"
	AdminClear   AdminAction = "clear"
	AdminKeynote AdminAction = "keynote"
)

// ParseAdminAction normalises raw into a known action.
func ParseAdminAction(raw string) (AdminAction, bool) {
	switch action := AdminAction(strings.ToLower(strings.TrimSpace(raw))); action {
	case AdminRestart, AdminPause, AdminClear, AdminKeynote:
		return action, true
	default:
		return "", false
	}
}

// command is an intent applied on the tick goroutine.
type command interface {
	apply(e *Engine, now time.Time)
}

type joinCommand struct {
	ref  string
	name string
}

type headingCommand struct {
	entityID string
	heading  arena.Heading
}

type respawnCommand struct{ entityID string }

type disconnectCommand struct{ entityID string }

type adminCommand struct{ action AdminAction }

// Join queues a new human; the answer arrives through Sink.OnJoined tagged with ref.
func (e *Engine) Join(ctx context.Context, ref, name string) error {
	return e.submit(ctx, joinCommand{ref: ref, name: name})
}

// SetHeading queues a direction change without blocking. Non-axis vectors are dropped.
func (e *Engine) SetHeading(entityID string, dx, dy float64) error {
	heading, ok := arena.HeadingFrom(dx, dy)
	if !ok {
		return nil
	}
	return e.trySubmit(headingCommand{entityID: entityID, heading: heading})
}

// RequestRespawn queues a respawn request; the answer arrives through Sink.OnRespawnResult.
func (e *Engine) RequestRespawn(ctx context.Context, entityID string) error {
	return e.submit(ctx, respawnCommand{entityID: entityID})
}

// Disconnect marks a human dead and disconnected. The record stays until restart.
func (e *Engine) Disconnect(ctx context.Context, entityID string) error {
	return e.submit(ctx, disconnectCommand{entityID: entityID})
}

// Admin queues an operator command.
func (e *Engine) Admin(ctx context.Context, action AdminAction) error {
	if _, ok := ParseAdminAction(string(action)); !ok {
		return fmt.Errorf("unknown admin action %q", action)
	}
	return e.submit(ctx, adminCommand{action: action})
}

func (e *Engine) AdminRestart(ctx context.Context) error { return e.Admin(ctx, AdminRestart) }
func (e *Engine) AdminTogglePause(ctx context.Context) error { return e.Admin(ctx, AdminPause) }
func (e *Engine) AdminClearAll(ctx context.Context) error { return e.Admin(ctx, AdminClear) }
func (e *Engine) AdminToggleKeynote(ctx context.Context) error { return e.Admin(ctx, AdminKeynote) }

func (e *Engine) submit(ctx context.Context, cmd command) error {
	select {
	case <-e.done:
		return ErrEngineStopped
	default:
	}
	select {
	case e.inbox <- cmd:
		return nil
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) trySubmit(cmd command) error {
	select {
	case <-e.done:
		return ErrEngineStopped
	default:
	}
	select {
	case e.inbox <- cmd:
		return nil
	default:
		return ErrInboxFull
	}
}

// drain applies every intent queued before this tick started.
func (e *Engine) drain(now time.Time) {
	for pending := len(e.inbox); pending > 0; pending-- {
		select {
		case cmd := <-e.inbox:
			cmd.apply(e, now)
		default:
			return
		}
	}
}

func (c joinCommand) apply(e *Engine, now time.Time) {
	name := c.name
	if name == "" {
		name = fmt.Sprintf("Player%d", e.rng.Intn(1000))
	}
	entity := state.NewHuman(e.newID(), name, e.world.SpawnSnake(), now)
	e.world.Entities.Add(entity)
	e.log.Info("player joined", logging.String("entity_id", entity.ID), logging.String("name", name))
	e.sink.OnJoined(c.ref, entity.ID, e.snapshot(now))
	e.sink.OnEntityJoined(e.lifecycle.Round(), viewOf(entity))
}

func (c headingCommand) apply(e *Engine, _ time.Time) {
	entity, ok := e.world.Entities.Get(c.entityID)
	//1.- Unknown, dead and bot entities ignore client steering.
	if !ok || !entity.Alive || entity.IsBot() || entity.Snake == nil {
		return
	}
	if !entity.Snake.Turn(c.heading) {
		e.log.Debug("heading rejected", logging.String("entity_id", c.entityID), logging.String("heading", c.heading.String()))
	}
}

func (c respawnCommand) apply(e *Engine, now time.Time) {
	entity, ok := e.world.Entities.Get(c.entityID)
	if !ok || entity.IsBot() || !entity.Dead() || entity.Disconnected {
		return
	}
	result := e.respawn.Check(entity.DeathTime)
	if result.Accepted {
		//1.- Fresh snake at a random point; scores carry over.
		entity.Revive(e.world.SpawnSnake(), now)
		e.log.Info("player respawned", logging.String("entity_id", entity.ID))
	}
	e.sink.OnRespawnResult(entity.ID, result)
	if result.Accepted {
		e.sink.OnEntityRespawned(e.lifecycle.Round(), viewOf(entity))
	}
}

func (c disconnectCommand) apply(e *Engine, now time.Time) {
	entity, ok := e.world.Entities.Get(c.entityID)
	if !ok || entity.IsBot() {
		return
	}
	entity.Alive = false
	entity.DeathTime = now
	entity.Disconnected = true
	e.log.Info("player disconnected", logging.String("entity_id", entity.ID))
	e.sink.OnEntityLeft(e.lifecycle.Round(), entity.ID)
}

func (c adminCommand) apply(e *Engine, _ time.Time) {
	e.log.Info("admin command", logging.String("action", string(c.action)))
	switch c.action {
	case AdminRestart:
		e.restart("admin")
	case AdminPause:
		e.sink.OnPauseToggled(e.lifecycle.Round(), e.lifecycle.TogglePause())
	case AdminKeynote:
		e.sink.OnKeynoteToggled(e.lifecycle.Round(), e.lifecycle.ToggleKeynote())
	case AdminClear:
		removed := e.world.Entities.RemoveIf(func(*state.Entity) bool { return true })
		e.log.Info("players cleared", logging.Int("removed", len(removed)))
		e.sink.OnPlayersCleared(e.lifecycle.Round())
	}
}

// worldLauncher spawns and retires bot entities for the population controller.
type worldLauncher struct {
	engine *Engine
}

func (l worldLauncher) Scale(_ context.Context, target int) (int, error) {
	e := l.engine
	now := e.now()
	existing := map[string]bool{}
	count := 0
	//1.- Retire bots beyond the target, keeping the earliest ones.
	removed := e.world.Entities.RemoveIf(func(entity *state.Entity) bool {
		if !entity.IsBot() {
			return false
		}
		if count >= target {
			return true
		}
		count++
		existing[entity.ID] = true
		return false
	})
	for _, id := range removed {
		e.log.Info("bot removed", logging.String("entity_id", id))
		e.sink.OnEntityLeft(e.lifecycle.Round(), id)
	}
	//2.- Fill missing slots with bot-1, bot-2, ... reusing the lowest free index.
	for slot := 1; count < target; slot++ {
		id := fmt.Sprintf("bot-%d", slot)
		if existing[id] {
			continue
		}
		bot := state.NewBot(id, fmt.Sprintf("Bot%d", slot), e.world.SpawnSnake(), now)
		e.world.Entities.Add(bot)
		existing[id] = true
		count++
		e.log.Info("bot joined", logging.String("entity_id", id))
		e.sink.OnEntityJoined(e.lifecycle.Round(), viewOf(bot))
	}
	return count, nil
}
