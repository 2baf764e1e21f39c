package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"snakeroyale/server/internal/arena"
	"snakeroyale/server/internal/logging"
	"snakeroyale/server/internal/match"
)

const testStep = time.Second / 60

type respawnRecord struct {
	entityID string
	result   match.RespawnResult
}

type recordingSink struct {
	NopSink
	joined    map[string]string
	snapshots []Snapshot
	started   []int
	ended     []*EntityView
	restarted []int
	respawns  []respawnRecord
	deaths    []DeathEvent
	left      []string
	keynote   []bool
	paused    []bool
	cleared   int
	// rounds records the round carried by each join/leave/respawn/toggle/clear callback.
	rounds []int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{joined: make(map[string]string)}
}

func (s *recordingSink) OnJoined(ref, entityID string, _ Snapshot) { s.joined[ref] = entityID }
func (s *recordingSink) OnStateSnapshot(snapshot Snapshot) { s.snapshots = append(s.snapshots, snapshot) }
func (s *recordingSink) OnRoundStarted(round int) { s.started = append(s.started, round) }
func (s *recordingSink) OnRoundEnded(_ int, winner *EntityView) { s.ended = append(s.ended, winner) }
func (s *recordingSink) OnRoundRestarted(round int) { s.restarted = append(s.restarted, round) }
func (s *recordingSink) OnEntityDied(death DeathEvent) { s.deaths = append(s.deaths, death) }
func (s *recordingSink) OnEntityJoined(round int, _ EntityView) { s.rounds = append(s.rounds, round) }
func (s *recordingSink) OnEntityRespawned(round int, _ EntityView) {
	s.rounds = append(s.rounds, round)
}
func (s *recordingSink) OnEntityLeft(round int, entityID string) {
	s.rounds = append(s.rounds, round)
	s.left = append(s.left, entityID)
}
func (s *recordingSink) OnKeynoteToggled(round int, enabled bool) {
	s.rounds = append(s.rounds, round)
	s.keynote = append(s.keynote, enabled)
}
func (s *recordingSink) OnPauseToggled(round int, enabled bool) {
	s.rounds = append(s.rounds, round)
	s.paused = append(s.paused, enabled)
}
func (s *recordingSink) OnPlayersCleared(round int) {
	s.rounds = append(s.rounds, round)
	s.cleared++
}
func (s *recordingSink) OnRespawnResult(entityID string, result match.RespawnResult) {
	s.respawns = append(s.respawns, respawnRecord{entityID: entityID, result: result})
}

type harness struct {
	t      *testing.T
	engine *Engine
	sink   *recordingSink
	now    time.Time
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{t: t, sink: newRecordingSink(), now: time.Unix(1_000, 0)}
	cfg := DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	counter := 0
	engine, err := NewEngine(cfg,
		WithClock(func() time.Time { return h.now }),
		WithRand(rand.New(rand.NewSource(99))),
		WithIDGenerator(func() string {
			counter++
			return fmt.Sprintf("id-%d", counter)
		}),
		WithSink(h.sink),
		WithLogger(logging.NewTestLogger()),
	)
	if err != nil {
		t.Fatalf("unexpected engine error: %v", err)
	}
	h.engine = engine
	return h
}

func (h *harness) step(n int) {
	for i := 0; i < n; i++ {
		h.engine.Step(testStep)
		h.now = h.now.Add(testStep)
	}
}

func (h *harness) join(ref string) {
	h.t.Helper()
	if err := h.engine.Join(context.Background(), ref, ref); err != nil {
		h.t.Fatalf("join %s: %v", ref, err)
	}
}

func (h *harness) id(ref string) string {
	h.t.Helper()
	id, ok := h.sink.joined[ref]
	if !ok {
		h.t.Fatalf("expected %s to have joined", ref)
	}
	return id
}

func TestNewEngineRejectsInvalidArena(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Arena.WallMargin = 400
	if _, err := NewEngine(cfg); !errors.Is(err, arena.ErrInvalidArena) {
		t.Fatalf("expected ErrInvalidArena, got %v", err)
	}
}

func TestSoloHumanGetsTwoBotsUntilSecondHumanJoins(t *testing.T) {
	h := newHarness(t)
	h.join("alice")
	h.step(1)
	//1.- A lone human is joined by exactly two bots and the round starts.
	if tel := h.engine.Telemetry(); tel.Humans != 1 || tel.Bots != 2 {
		t.Fatalf("expected 1 human and 2 bots, got %+v", tel)
	}
	if len(h.sink.started) != 1 || h.engine.Telemetry().Status != match.StatusPlaying {
		t.Fatalf("expected the round to start once, got %v", h.sink.started)
	}
	//2.- The next tick after a second human joins removes both bots.
	h.join("bob")
	h.step(1)
	if tel := h.engine.Telemetry(); tel.Humans != 2 || tel.Bots != 0 {
		t.Fatalf("expected 2 humans and no bots, got %+v", tel)
	}
	if len(h.sink.left) != 2 || h.sink.left[0] != "bot-1" || h.sink.left[1] != "bot-2" {
		t.Fatalf("expected both bots to leave, got %v", h.sink.left)
	}
}

func TestWaitingUntilTwoParticipants(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.SoloBots = 1 })
	h.step(3)
	if tel := h.engine.Telemetry(); tel.Status != match.StatusWaiting {
		t.Fatalf("expected waiting with an empty arena, got %s", tel.Status)
	}
	h.join("alice")
	h.step(1)
	if tel := h.engine.Telemetry(); tel.Status != match.StatusPlaying || tel.Bots != 1 {
		t.Fatalf("expected playing with one bot, got %+v", tel)
	}
}

func TestRoundEndsOnceAndRestartsAfterDelay(t *testing.T) {
	h := newHarness(t)
	h.join("alice")
	h.join("bob")
	h.step(1)
	ctx := context.Background()
	//1.- Both humans leave; nobody is connected and nobody is alive.
	if err := h.engine.Disconnect(ctx, h.id("alice")); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := h.engine.Disconnect(ctx, h.id("bob")); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	h.step(1)
	if len(h.sink.ended) != 1 || h.sink.ended[0] != nil {
		t.Fatalf("expected one ended event without winner, got %v", h.sink.ended)
	}
	if tel := h.engine.Telemetry(); tel.Status != match.StatusEnded || !tel.RestartScheduled {
		t.Fatalf("expected ended with a scheduled restart, got %+v", tel)
	}
	//2.- Ticks inside the delay neither re-end nor restart the round.
	h.step(int(match.DefaultRestartDelay/testStep) - 2)
	if len(h.sink.ended) != 1 || len(h.sink.restarted) != 0 {
		t.Fatalf("expected no duplicate transitions, got ended=%d restarted=%d", len(h.sink.ended), len(h.sink.restarted))
	}
	h.step(3)
	if len(h.sink.restarted) != 1 || h.sink.restarted[0] != 2 {
		t.Fatalf("expected a single restart into round 2, got %v", h.sink.restarted)
	}
	tel := h.engine.Telemetry()
	if tel.Status != match.StatusWaiting || tel.Humans != 0 || tel.Food != 0 || tel.RestartScheduled {
		t.Fatalf("expected an empty waiting round, got %+v", tel)
	}
}

func TestRoundEndsWithSurvivingBotAsWinner(t *testing.T) {
	h := newHarness(t)
	h.join("alice")
	h.step(1)
	if err := h.engine.Disconnect(context.Background(), h.id("alice")); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	h.step(1)
	if len(h.sink.ended) != 0 {
		t.Fatalf("expected two surviving bots to keep the round going")
	}
	//1.- Kill one bot so a single survivor remains.
	bot, _ := h.engine.world.Entities.Get("bot-1")
	bot.Kill(h.now)
	h.step(1)
	if len(h.sink.ended) != 1 || h.sink.ended[0] == nil || h.sink.ended[0].ID != "bot-2" {
		t.Fatalf("expected bot-2 to win, got %+v", h.sink.ended)
	}
}

func TestSetHeadingRejectsReversal(t *testing.T) {
	h := newHarness(t)
	h.join("alice")
	h.step(1)
	entity, _ := h.engine.world.Entities.Get(h.id("alice"))
	entity.Snake.Heading = arena.Right
	//1.- Reversal and diagonal requests are ignored.
	_ = h.engine.SetHeading(entity.ID, -1, 0)
	_ = h.engine.SetHeading(entity.ID, 1, 1)
	h.step(1)
	if entity.Snake.Heading != arena.Right {
		t.Fatalf("expected heading to remain right, got %v", entity.Snake.Heading)
	}
	//2.- A perpendicular turn is applied.
	_ = h.engine.SetHeading(entity.ID, 0, -1)
	h.step(1)
	if entity.Snake.Heading != arena.Up {
		t.Fatalf("expected heading up, got %v", entity.Snake.Heading)
	}
	//3.- Dead entities cannot steer.
	entity.Kill(h.now)
	_ = h.engine.SetHeading(entity.ID, 1, 0)
	h.step(1)
	if entity.Snake.Heading != arena.Up {
		t.Fatalf("expected dead entity heading unchanged, got %v", entity.Snake.Heading)
	}
}

func TestQueuedTurnsCannotReverseWithinOneTick(t *testing.T) {
	h := newHarness(t)
	h.join("alice")
	h.step(1)
	entity, _ := h.engine.world.Entities.Get(h.id("alice"))
	entity.Snake.Heading = arena.Right
	h.step(1)
	//1.- Two turns drained in the same tick: up is accepted, left would reverse the last move.
	_ = h.engine.SetHeading(entity.ID, 0, -1)
	_ = h.engine.SetHeading(entity.ID, -1, 0)
	h.step(1)
	if !entity.Alive {
		t.Fatalf("expected alice to survive the turn")
	}
	if entity.Snake.Heading != arena.Up {
		t.Fatalf("expected heading up, got %v", entity.Snake.Heading)
	}
}

func TestRespawnCooldown(t *testing.T) {
	h := newHarness(t)
	h.join("alice")
	h.step(1)
	id := h.id("alice")
	entity, _ := h.engine.world.Entities.Get(id)
	entity.FoodScore = 15
	entity.KillScore = 10
	entity.Kill(h.now)
	ctx := context.Background()
	//1.- Immediately after death the request is denied with the remaining seconds.
	if err := h.engine.RequestRespawn(ctx, id); err != nil {
		t.Fatalf("respawn: %v", err)
	}
	h.step(1)
	if len(h.sink.respawns) != 1 || h.sink.respawns[0].result.Accepted || h.sink.respawns[0].result.RemainingSeconds() != 10 {
		t.Fatalf("expected denial with 10s remaining, got %+v", h.sink.respawns)
	}
	//2.- After the cooldown the snake is reset with scores preserved.
	h.now = h.now.Add(match.DefaultRespawnCooldown)
	if err := h.engine.RequestRespawn(ctx, id); err != nil {
		t.Fatalf("respawn: %v", err)
	}
	h.step(1)
	last := h.sink.respawns[len(h.sink.respawns)-1]
	if !last.result.Accepted || !entity.Alive || !entity.DeathTime.IsZero() {
		t.Fatalf("expected accepted respawn, got %+v alive=%v", last, entity.Alive)
	}
	if entity.Score() != 25 || entity.Snake.TargetLength != h.engine.cfg.Rules.StartLength {
		t.Fatalf("expected preserved score and reset length, got score=%d length=%d", entity.Score(), entity.Snake.TargetLength)
	}
	//3.- Alive entities and unknown ids get no answer.
	_ = h.engine.RequestRespawn(ctx, id)
	_ = h.engine.RequestRespawn(ctx, "ghost")
	count := len(h.sink.respawns)
	h.step(1)
	if len(h.sink.respawns) != count {
		t.Fatalf("expected ignored requests, got %d results", len(h.sink.respawns))
	}
}

func TestDisconnectedHumanCannotRespawn(t *testing.T) {
	h := newHarness(t)
	h.join("alice")
	h.step(1)
	id := h.id("alice")
	ctx := context.Background()
	_ = h.engine.Disconnect(ctx, id)
	h.step(1)
	h.now = h.now.Add(time.Minute)
	_ = h.engine.RequestRespawn(ctx, id)
	h.step(1)
	if len(h.sink.respawns) != 0 {
		t.Fatalf("expected no respawn answer for a disconnected human")
	}
	entity, ok := h.engine.world.Entities.Get(id)
	if !ok || entity.Alive || !entity.Disconnected {
		t.Fatalf("expected a retained dead disconnected record, got %+v", entity)
	}
}

func TestPauseFreezesSimulation(t *testing.T) {
	h := newHarness(t)
	h.join("alice")
	h.join("bob")
	h.step(1)
	_ = h.engine.AdminTogglePause(context.Background())
	h.step(1)
	entity, _ := h.engine.world.Entities.Get(h.id("alice"))
	before := entity.Snake.Head()
	h.step(5)
	if entity.Snake.Head() != before {
		t.Fatalf("expected frozen head %v, got %v", before, entity.Snake.Head())
	}
	if len(h.sink.paused) != 1 || !h.sink.paused[0] {
		t.Fatalf("expected pause enabled event, got %v", h.sink.paused)
	}
	//1.- Keynote toggles independently and restart clears both.
	_ = h.engine.AdminToggleKeynote(context.Background())
	h.step(1)
	if tel := h.engine.Telemetry(); !tel.Paused || !tel.Keynote {
		t.Fatalf("expected both freeze flags, got %+v", tel)
	}
	_ = h.engine.AdminRestart(context.Background())
	h.step(1)
	if tel := h.engine.Telemetry(); tel.Paused || tel.Keynote || tel.Round != 2 {
		t.Fatalf("expected restart to clear flags and bump the round, got %+v", tel)
	}
}

func TestLifecycleNotificationsCarryCurrentRound(t *testing.T) {
	h := newHarness(t)
	h.join("alice")
	h.step(1)
	if len(h.sink.rounds) == 0 || h.sink.rounds[0] != 1 {
		t.Fatalf("expected join notifications in round 1, got %v", h.sink.rounds)
	}
	_ = h.engine.AdminRestart(context.Background())
	h.step(1)
	//1.- Toggles and clears after a restart report the new round.
	_ = h.engine.AdminTogglePause(context.Background())
	_ = h.engine.AdminClearAll(context.Background())
	h.step(1)
	n := len(h.sink.rounds)
	if n < 2 || h.sink.rounds[n-2] != 2 || h.sink.rounds[n-1] != 2 {
		t.Fatalf("expected pause and clear in round 2, got %v", h.sink.rounds)
	}
}

func TestAdminClearRemovesEveryone(t *testing.T) {
	h := newHarness(t)
	h.join("alice")
	h.step(1)
	_ = h.engine.AdminClearAll(context.Background())
	h.step(1)
	if tel := h.engine.Telemetry(); tel.Humans != 0 || tel.Bots != 0 || tel.Round != 1 {
		t.Fatalf("expected an empty store in the same round, got %+v", tel)
	}
	if h.sink.cleared != 1 {
		t.Fatalf("expected a players cleared event")
	}
}

func TestSnapshotsAreThrottled(t *testing.T) {
	h := newHarness(t)
	h.step(6)
	if len(h.sink.snapshots) != 2 {
		t.Fatalf("expected 2 snapshots over 6 ticks, got %d", len(h.sink.snapshots))
	}
	if h.sink.snapshots[1].Tick != 4 {
		t.Fatalf("expected the second snapshot after tick 4, got %d", h.sink.snapshots[1].Tick)
	}
}

func TestHeadOnContactCreditsKiller(t *testing.T) {
	h := newHarness(t)
	h.join("a")
	h.join("b")
	h.step(1)
	rules := h.engine.cfg.Rules
	a, _ := h.engine.world.Entities.Get(h.id("a"))
	b, _ := h.engine.world.Entities.Get(h.id("b"))
	//1.- Place A heading right at (400,300) and B's head at (408,300) heading up.
	a.Snake = arena.NewSnake(arena.Vec{X: 400, Y: 300}, arena.Right, rules, "")
	b.Snake = arena.NewSnake(arena.Vec{X: 408, Y: 300}, arena.Up, rules, "")
	h.engine.world.Food.Clear()
	h.step(1)
	if a.Alive || !b.Alive {
		t.Fatalf("expected a dead and b alive, got %v/%v", a.Alive, b.Alive)
	}
	if b.KillScore != rules.KillBonus {
		t.Fatalf("expected kill bonus for b, got %d", b.KillScore)
	}
	if len(h.sink.deaths) != 1 || h.sink.deaths[0].KillerID != b.ID || h.sink.deaths[0].Cause != "snake" {
		t.Fatalf("expected a credited snake death, got %+v", h.sink.deaths)
	}
}

func TestInboxFullAndStopped(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.InboxSize = 1 })
	if err := h.engine.SetHeading("x", 1, 0); err != nil {
		t.Fatalf("expected the first intent to queue, got %v", err)
	}
	if err := h.engine.SetHeading("x", 0, 1); !errors.Is(err, ErrInboxFull) {
		t.Fatalf("expected ErrInboxFull, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.engine.Run(ctx)
	if err := h.engine.Join(context.Background(), "late", "late"); !errors.Is(err, ErrEngineStopped) {
		t.Fatalf("expected ErrEngineStopped, got %v", err)
	}
}
