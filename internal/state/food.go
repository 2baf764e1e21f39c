package state

import (
	"errors"
	"fmt"
	"math"

	"snakeroyale/server/internal/arena"
)

// ErrFoodSpawnExhausted signals that the spawner ran out of attempts before reaching the cap.
var ErrFoodSpawnExhausted = errors.New("food spawn attempts exhausted")

// Food is a consumable item lying in the arena.
type Food struct {
	ID       string    `json:"id"`
	Position arena.Vec `json:"position"`
	Value    int       `json:"value"`
}

// FoodSet keeps food items in spawn order.
type FoodSet struct {
	items []Food
}

// NewFoodSet constructs an empty food set.
func NewFoodSet() *FoodSet { return &FoodSet{} }

// Add appends an item.
func (f *FoodSet) Add(item Food) {
	if f == nil || item.ID == "" {
		return
	}
	f.items = append(f.items, item)
}

// Get looks up an item by id.
func (f *FoodSet) Get(id string) (Food, bool) {
	if f == nil || id == "" {
		return Food{}, false
	}
	for _, item := range f.items {
		if item.ID == id {
			return item, true
		}
	}
	return Food{}, false
}

// Remove deletes the item and reports whether it was present.
func (f *FoodSet) Remove(id string) bool {
	if f == nil {
		return false
	}
	for i, item := range f.items {
		if item.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true
		}
	}
	return false
}

// Items returns a copy of the items in spawn order.
func (f *FoodSet) Items() []Food {
	if f == nil {
		return nil
	}
	return append([]Food(nil), f.items...)
}

// Len reports how many items are present.
func (f *FoodSet) Len() int {
	if f == nil {
		return 0
	}
	return len(f.items)
}

// Clear removes every item.
func (f *FoodSet) Clear() {
	if f == nil {
		return
	}
	f.items = nil
}

// Nearest returns the item closest to p by euclidean distance.
func (f *FoodSet) Nearest(p arena.Vec) (Food, bool) {
	if f == nil || len(f.items) == 0 {
		return Food{}, false
	}
	best := -1
	bestDistance := math.MaxFloat64
	for i, item := range f.items {
		if d := p.DistanceSquared(item.Position); d < bestDistance {
			best = i
			bestDistance = d
		}
	}
	return f.items[best], true
}

// SpawnFood tops the food set up to the cap, returning how many items were placed.
//
// Each missing item gets a bounded number of placement attempts; candidates too close to a
// living snake are rejected. ErrFoodSpawnExhausted is returned when the cap was not reached.
func (w *World) SpawnFood() (int, error) {
	if w == nil {
		return 0, nil
	}
	rules := w.Rules
	missing := rules.FoodCap - w.Food.Len()
	if missing <= 0 {
		return 0, nil
	}
	attempts := rules.FoodAttempts * missing
	if attempts < 1 {
		attempts = 1
	}
	clearance := rules.FoodThreshold + rules.FoodPadding
	living := w.livingSnakes()
	placed := 0
	//1.- Draw candidates until the cap is met or the attempt budget runs out.
	for attempt := 0; attempt < attempts && placed < missing; attempt++ {
		candidate := arena.SpawnPoint(w.Arena, rules.FoodInset, w.rng)
		if tooClose(candidate, living, clearance) {
			continue
		}
		w.Food.Add(Food{ID: w.newID(), Position: candidate, Value: rules.FoodValue})
		placed++
	}
	//2.- Report shortfalls so the caller can log and retry next tick.
	if placed < missing {
		return placed, fmt.Errorf("%w: placed %d of %d after %d attempts", ErrFoodSpawnExhausted, placed, missing, attempts)
	}
	return placed, nil
}

func (w *World) livingSnakes() []*arena.Snake {
	var snakes []*arena.Snake
	for _, entity := range w.Entities.All() {
		if entity.Alive && entity.Snake != nil {
			snakes = append(snakes, entity.Snake)
		}
	}
	return snakes
}

func tooClose(p arena.Vec, snakes []*arena.Snake, clearance float64) bool {
	for _, snake := range snakes {
		for _, segment := range snake.Body {
			if arena.Touching(p, segment, clearance) {
				return true
			}
		}
	}
	return false
}
