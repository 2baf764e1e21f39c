package bots

import (
	"math/rand"
	"testing"
	"time"

	"snakeroyale/server/internal/arena"
	"snakeroyale/server/internal/state"
)

func newWorld(t *testing.T) *state.World {
	t.Helper()
	a, err := arena.New(800, 600, 15)
	if err != nil {
		t.Fatalf("unexpected arena error: %v", err)
	}
	return state.NewWorld(a, arena.DefaultRules(), state.WithRand(rand.New(rand.NewSource(5))))
}

func newBot(w *state.World, head arena.Vec, heading arena.Heading, now time.Time) *state.Entity {
	bot := state.NewBot("bot-1", "Bot1", arena.NewSnake(head, heading, w.Rules, ""), now)
	w.Entities.Add(bot)
	return bot
}

func TestDeciderThrottlesThinking(t *testing.T) {
	w := newWorld(t)
	now := time.Unix(100, 0)
	bot := newBot(w, arena.Vec{X: 400, Y: 300}, arena.Right, now)
	decider := NewDecider(100 * time.Millisecond)
	decider.Think(w, bot, now)
	first := bot.Bot.LastThink
	//1.- A call inside the throttle window must not touch the brain.
	decider.Think(w, bot, now.Add(50*time.Millisecond))
	if !bot.Bot.LastThink.Equal(first) {
		t.Fatalf("expected throttled think, got %v", bot.Bot.LastThink)
	}
	decider.Think(w, bot, now.Add(100*time.Millisecond))
	if !bot.Bot.LastThink.Equal(now.Add(100 * time.Millisecond)) {
		t.Fatalf("expected think after the interval, got %v", bot.Bot.LastThink)
	}
}

func TestDeciderAvoidsWallAhead(t *testing.T) {
	w := newWorld(t)
	now := time.Unix(100, 0)
	//1.- Heading right 30 units from the wall band triggers an immediate re-evaluation.
	bot := newBot(w, arena.Vec{X: 760, Y: 300}, arena.Right, now)
	if !NewDecider(0).Think(w, bot, now) {
		t.Fatalf("expected the bot to re-evaluate near the wall")
	}
	if bot.Snake.Heading != arena.Up && bot.Snake.Heading != arena.Down {
		t.Fatalf("expected a perpendicular escape heading, got %v", bot.Snake.Heading)
	}
}

func TestDeciderPrefersFood(t *testing.T) {
	w := newWorld(t)
	now := time.Unix(100, 0)
	bot := newBot(w, arena.Vec{X: 400, Y: 300}, arena.Right, now)
	w.Food.Add(state.Food{ID: "f", Position: arena.Vec{X: 400, Y: 100}, Value: 5})
	bot.Bot.TurnAfter = time.Second
	//1.- Once the cruise window has elapsed the bot turns toward the food above it.
	if !NewDecider(0).Think(w, bot, now.Add(2*time.Second)) {
		t.Fatalf("expected re-evaluation after the cruise window")
	}
	if bot.Snake.Heading != arena.Up || bot.Bot.FoodTarget != "f" {
		t.Fatalf("expected heading up toward f, got %v target %q", bot.Snake.Heading, bot.Bot.FoodTarget)
	}
	if bot.Bot.TurnAfter < time.Second || bot.Bot.TurnAfter >= 3*time.Second {
		t.Fatalf("expected a fresh 1-3s cruise window, got %v", bot.Bot.TurnAfter)
	}
}

func TestDeciderKeepsHeadingWithoutSafeOption(t *testing.T) {
	w := newWorld(t)
	now := time.Unix(100, 0)
	//1.- Heading up into the top-left corner with a snake blocking the right leaves no safe heading.
	bot := newBot(w, arena.Vec{X: 30, Y: 30}, arena.Up, now)
	blocker := state.NewHuman("h1", "h1", arena.NewSnake(arena.Vec{X: 60, Y: 40}, arena.Down, w.Rules, ""), now)
	w.Entities.Add(blocker)
	if NewDecider(0).Think(w, bot, now) {
		t.Fatalf("expected no decision without safe headings")
	}
	if bot.Snake.Heading != arena.Up {
		t.Fatalf("expected heading to stay up, got %v", bot.Snake.Heading)
	}
}

func TestDeciderIgnoresDeadBots(t *testing.T) {
	w := newWorld(t)
	now := time.Unix(100, 0)
	bot := newBot(w, arena.Vec{X: 760, Y: 300}, arena.Right, now)
	bot.Kill(now)
	if NewDecider(0).Think(w, bot, now) {
		t.Fatalf("expected dead bots to be skipped")
	}
}
