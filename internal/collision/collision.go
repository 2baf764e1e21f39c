package collision

import (
	"time"

	"snakeroyale/server/internal/arena"
	"snakeroyale/server/internal/state"
)

// Cause classifies why an entity died.
type Cause string

const (
	CauseWall  Cause = "wall"
	CauseSelf  Cause = "self"
	CauseSnake Cause = "snake"
)

// Death describes a single elimination resolved during a tick.
type Death struct {
	VictimID string
	// KillerID is set only when the victim touched the killer's head.
	KillerID string
	// OpponentID is the snake that was touched, for snake deaths.
	OpponentID string
	Cause      Cause
	Segment    int
}

// Meal records a food item consumed during a tick.
type Meal struct {
	EntityID string
	FoodID   string
	Value    int
}

// Outcome gathers every mutation applied by Resolve.
type Outcome struct {
	Deaths []Death
	Meals  []Meal
}

// HitsWall reports whether the head lies in the wall band.
func HitsWall(a arena.Arena, head arena.Vec) bool {
	return a.InWall(head)
}

// HitsSelf reports whether the head touches its own body beyond the grace window.
func HitsSelf(s *arena.Snake, threshold float64, skip int) bool {
	if s == nil || len(s.Body) == 0 {
		return false
	}
	head := s.Body[0]
	if skip < 1 {
		skip = 1
	}
	for i := skip; i < len(s.Body); i++ {
		if arena.Touching(head, s.Body[i], threshold) {
			return true
		}
	}
	return false
}

// box is a segment bounding box expanded by the contact threshold.
type box struct {
	min, max arena.Vec
}

func expandedBox(s *arena.Snake, threshold float64) box {
	lo, hi := s.Bounds()
	return box{
		min: arena.Vec{X: lo.X - threshold, Y: lo.Y - threshold},
		max: arena.Vec{X: hi.X + threshold, Y: hi.Y + threshold},
	}
}

func (b box) contains(p arena.Vec) bool {
	return p.X > b.min.X && p.X < b.max.X && p.Y > b.min.Y && p.Y < b.max.Y
}

// Resolve classifies every living head against walls, itself, food and opponents.
//
// Entities are visited in store order. Wall and self deaths end an entity's checks. Food is
// consumed immediately so an item can feed only one head. The first opponent segment touched
// kills the entity; touching the opponent's head credits the opponent with the kill bonus.
// Deaths apply immediately, so an entity killed earlier in the pass is no longer an opponent.
func Resolve(w *state.World, now time.Time) Outcome {
	var out Outcome
	if w == nil {
		return out
	}
	rules := w.Rules
	entities := w.Entities.All()
	//1.- Cache opponent bounding boxes; bodies do not move while the pass runs.
	boxes := make(map[string]box, len(entities))
	for _, e := range entities {
		if e.Alive && e.Snake != nil && len(e.Snake.Body) > 0 {
			boxes[e.ID] = expandedBox(e.Snake, rules.CollisionThreshold)
		}
	}
	for _, e := range entities {
		if !e.Alive || e.Snake == nil || len(e.Snake.Body) == 0 {
			continue
		}
		head := e.Snake.Head()
		//2.- Walls and self contact short-circuit the remaining checks.
		if HitsWall(w.Arena, head) {
			e.Kill(now)
			out.Deaths = append(out.Deaths, Death{VictimID: e.ID, Cause: CauseWall})
			continue
		}
		if HitsSelf(e.Snake, rules.CollisionThreshold, rules.SelfSkip) {
			e.Kill(now)
			out.Deaths = append(out.Deaths, Death{VictimID: e.ID, Cause: CauseSelf})
			continue
		}
		//3.- Consume every touched food item before looking at opponents.
		out.Meals = append(out.Meals, eat(w, e, head)...)
		//4.- Scan living opponents whose padded box contains the head.
		if death, ok := hitOpponent(entities, boxes, e, head, rules); ok {
			e.Kill(now)
			out.Deaths = append(out.Deaths, death)
		}
	}
	return out
}

func eat(w *state.World, e *state.Entity, head arena.Vec) []Meal {
	var meals []Meal
	for _, item := range w.Food.Items() {
		if !arena.Touching(head, item.Position, w.Rules.FoodThreshold) {
			continue
		}
		if !w.Food.Remove(item.ID) {
			continue
		}
		e.FoodScore += item.Value
		e.Snake.Grow(w.Rules.Growth)
		clearTargets(w, item.ID)
		meals = append(meals, Meal{EntityID: e.ID, FoodID: item.ID, Value: item.Value})
	}
	return meals
}

func clearTargets(w *state.World, foodID string) {
	for _, other := range w.Entities.All() {
		if other.Bot != nil && other.Bot.FoodTarget == foodID {
			other.Bot.FoodTarget = ""
		}
	}
}

func hitOpponent(entities []*state.Entity, boxes map[string]box, e *state.Entity, head arena.Vec, rules arena.Rules) (Death, bool) {
	for _, other := range entities {
		if other == e || !other.Alive || other.Snake == nil {
			continue
		}
		if b, ok := boxes[other.ID]; !ok || !b.contains(head) {
			continue
		}
		for index, segment := range other.Snake.Body {
			if !arena.Touching(head, segment, rules.CollisionThreshold) {
				continue
			}
			death := Death{VictimID: e.ID, OpponentID: other.ID, Cause: CauseSnake, Segment: index}
			if index == 0 {
				//1.- Head contact means the opponent made the kill.
				other.KillScore += rules.KillBonus
				death.KillerID = other.ID
			}
			return death, true
		}
	}
	return Death{}, false
}
