package state

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"snakeroyale/server/internal/arena"
)

// World aggregates the authoritative round state: arena, entities and food.
type World struct {
	Arena    arena.Arena
	Rules    arena.Rules
	Entities *EntityStore
	Food     *FoodSet

	rng   *rand.Rand
	newID func() string
}

// Option configures optional world collaborators.
type Option func(*World)

// WithRand injects the random source used for spawning.
func WithRand(rng *rand.Rand) Option {
	return func(w *World) {
		if rng != nil {
			w.rng = rng
		}
	}
}

// WithIDGenerator overrides the identifier source used for food.
func WithIDGenerator(gen func() string) Option {
	return func(w *World) {
		if gen != nil {
			w.newID = gen
		}
	}
}

// NewWorld constructs an empty world for the provided arena.
func NewWorld(a arena.Arena, rules arena.Rules, opts ...Option) *World {
	w := &World{
		Arena:    a,
		Rules:    rules,
		Entities: NewEntityStore(),
		Food:     NewFoodSet(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Rand exposes the world's random source to simulation collaborators.
func (w *World) Rand() *rand.Rand { return w.rng }

// SpawnSnake builds a fresh snake at a random point inside the spawn inset.
func (w *World) SpawnSnake() *arena.Snake {
	//1.- Choose a random heading and place the head inside the inset.
	heading := arena.Headings[w.rng.Intn(len(arena.Headings))]
	head := arena.SpawnPoint(w.Arena, w.Rules.SpawnInset, w.rng)
	return arena.NewSnake(head, heading, w.Rules, arena.RandomColor(w.rng))
}

// Reset clears every entity and food item.
func (w *World) Reset() {
	if w == nil {
		return
	}
	w.Entities.Clear()
	w.Food.Clear()
}
