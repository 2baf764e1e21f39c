package bots

import (
	"time"

	"snakeroyale/server/internal/arena"
	"snakeroyale/server/internal/collision"
	"snakeroyale/server/internal/state"
)

const (
	// DefaultThinkInterval throttles how often a bot runs its policy.
	DefaultThinkInterval = 100 * time.Millisecond
	minCruise            = time.Second
	maxCruise            = 3 * time.Second
)

// Decider is the per-bot steering policy.
//
// A bot cruises on its heading until its randomly drawn cruise window expires or a probe
// predicts a wall or snake ahead; it then picks among the safe headings, preferring the one
// that best points at its food target.
type Decider struct {
	interval time.Duration
}

// NewDecider builds a decider throttled to interval (zero uses the default).
func NewDecider(interval time.Duration) *Decider {
	if interval <= 0 {
		interval = DefaultThinkInterval
	}
	return &Decider{interval: interval}
}

// Think runs the policy for bot at now and reports whether its heading was re-chosen.
func (d *Decider) Think(w *state.World, bot *state.Entity, now time.Time) bool {
	if d == nil || w == nil || bot == nil || bot.Bot == nil || !bot.Alive || bot.Snake == nil {
		return false
	}
	brain := bot.Bot
	//1.- Honour the throttle; movement still advances every tick.
	if !brain.LastThink.IsZero() && now.Sub(brain.LastThink) < d.interval {
		return false
	}
	brain.LastThink = now
	if brain.TurnAfter <= 0 {
		brain.TurnAfter = drawCruise(w)
	}
	//2.- Re-evaluate on schedule or when a probe sees danger ahead.
	due := now.Sub(brain.LastTurn) > brain.TurnAfter ||
		collision.WallAhead(w.Arena, bot.Snake, w.Rules.WallProbe) ||
		collision.SnakeAhead(w, bot, w.Rules.SnakeProbe)
	if !due {
		return false
	}
	//3.- Refresh the food target when the tracked item is gone.
	if _, ok := w.Food.Get(brain.FoodTarget); !ok {
		brain.FoodTarget = ""
		if nearest, found := w.Food.Nearest(bot.Snake.Head()); found {
			brain.FoodTarget = nearest.ID
		}
	}
	safe := collision.SafeHeadings(w, bot)
	if len(safe) == 0 {
		return false
	}
	//4.- Prefer alignment with the food target, otherwise choose uniformly.
	choice, ok := towardFood(w, bot, safe)
	if !ok {
		choice = safe[w.Rand().Intn(len(safe))]
	}
	bot.Snake.Turn(choice)
	brain.LastTurn = now
	brain.TurnAfter = drawCruise(w)
	return true
}

func towardFood(w *state.World, bot *state.Entity, safe []arena.Heading) (arena.Heading, bool) {
	if len(safe) < 2 {
		return arena.Heading{}, false
	}
	food, ok := w.Food.Get(bot.Bot.FoodTarget)
	if !ok {
		return arena.Heading{}, false
	}
	delta := food.Position.Sub(bot.Snake.Head())
	best := safe[0]
	bestScore := delta.Dot(best.Vec())
	for _, heading := range safe[1:] {
		if score := delta.Dot(heading.Vec()); score > bestScore {
			best = heading
			bestScore = score
		}
	}
	return best, true
}

func drawCruise(w *state.World) time.Duration {
	span := int64(maxCruise - minCruise)
	return minCruise + time.Duration(w.Rand().Int63n(span))
}
