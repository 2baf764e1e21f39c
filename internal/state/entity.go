package state

import (
	"time"

	"snakeroyale/server/internal/arena"
)

// Kind tags an entity as human controlled or bot controlled.
type Kind int

const (
	KindHuman Kind = iota
	KindBot
)

// String renders the kind for logs and wire payloads.
func (k Kind) String() string {
	if k == KindBot {
		return "bot"
	}
	return "human"
}

// BotBrain holds the per-bot decision state. Humans never carry one.
type BotBrain struct {
	// LastThink is when the decision policy last ran.
	LastThink time.Time
	// LastTurn is when the bot last committed to a new heading.
	LastTurn time.Time
	// TurnAfter is the randomly drawn cruising window before re-evaluating.
	TurnAfter time.Duration
	// FoodTarget is the identifier of the food item being chased, if any.
	FoodTarget string
}

// Entity is a snake participant in the round.
type Entity struct {
	ID           string
	Name         string
	Kind         Kind
	Snake        *arena.Snake
	Alive        bool
	DeathTime    time.Time
	FoodScore    int
	KillScore    int
	JoinedAt     time.Time
	Disconnected bool
	Bot          *BotBrain
}

// NewHuman constructs a live human entity.
func NewHuman(id, name string, snake *arena.Snake, now time.Time) *Entity {
	return &Entity{ID: id, Name: name, Kind: KindHuman, Snake: snake, Alive: true, JoinedAt: now}
}

// NewBot constructs a live bot entity with a fresh brain.
func NewBot(id, name string, snake *arena.Snake, now time.Time) *Entity {
	return &Entity{
		ID:       id,
		Name:     name,
		Kind:     KindBot,
		Snake:    snake,
		Alive:    true,
		JoinedAt: now,
		Bot:      &BotBrain{LastTurn: now},
	}
}

// IsBot reports whether the entity is bot controlled.
func (e *Entity) IsBot() bool { return e != nil && e.Kind == KindBot }

// Score is the food score plus the kill score.
func (e *Entity) Score() int {
	if e == nil {
		return 0
	}
	return e.FoodScore + e.KillScore
}

// Dead reports whether a death timestamp has been recorded.
func (e *Entity) Dead() bool { return e != nil && !e.Alive && !e.DeathTime.IsZero() }

// Kill marks the entity dead at the provided instant.
func (e *Entity) Kill(at time.Time) bool {
	if e == nil || !e.Alive {
		return false
	}
	e.Alive = false
	e.DeathTime = at
	return true
}

// Revive installs a fresh snake while preserving scores.
func (e *Entity) Revive(snake *arena.Snake, now time.Time) {
	if e == nil {
		return
	}
	//1.- Reset liveness and the join timestamp, leaving both score components intact.
	e.Snake = snake
	e.Alive = true
	e.DeathTime = time.Time{}
	e.JoinedAt = now
	if e.Bot != nil {
		e.Bot.FoodTarget = ""
		e.Bot.LastTurn = now
	}
}
