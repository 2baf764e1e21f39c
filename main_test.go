package main

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"snakeroyale/server/internal/auth"
	configpkg "snakeroyale/server/internal/config"
	"snakeroyale/server/internal/input"
	"snakeroyale/server/internal/logging"
	"snakeroyale/server/internal/match"
	"snakeroyale/server/internal/networking"
	"snakeroyale/server/internal/simulation"
)

type joinCall struct {
	ref  string
	name string
}

type stubEngine struct {
	mu          sync.Mutex
	joins       []joinCall
	headings    map[string][2]float64
	respawns    []string
	disconnects chan string
	admins      []simulation.AdminAction
}

func newStubEngine() *stubEngine {
	return &stubEngine{headings: make(map[string][2]float64), disconnects: make(chan string, 8)}
}

func (s *stubEngine) Join(_ context.Context, ref, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joins = append(s.joins, joinCall{ref: ref, name: name})
	return nil
}

func (s *stubEngine) SetHeading(entityID string, dx, dy float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headings[entityID] = [2]float64{dx, dy}
	return nil
}

func (s *stubEngine) RequestRespawn(_ context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.respawns = append(s.respawns, entityID)
	return nil
}

func (s *stubEngine) Disconnect(_ context.Context, entityID string) error {
	s.disconnects <- entityID
	return nil
}

func (s *stubEngine) Admin(_ context.Context, action simulation.AdminAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins = append(s.admins, action)
	return nil
}

func newTestHub(t *testing.T, opts ...HubOption) (*Hub, *stubEngine) {
	t.Helper()
	base := []HubOption{
		WithHubLogger(logging.NewTestLogger()),
		WithInputGate(input.NewGate(input.Config{}, logging.NewTestLogger())),
	}
	hub := NewHub(HubConfig{}, append(base, opts...)...)
	engine := newStubEngine()
	hub.Bind(engine)
	return hub, engine
}

func attachClient(hub *Hub, id string) *Client {
	client := &Client{
		id:    id,
		send:  make(chan outbound, clientSendBuffer),
		codec: networking.JSON,
		done:  make(chan struct{}),
	}
	hub.register(client)
	return client
}

func send(t *testing.T, hub *Hub, client *Client, raw string) bool {
	t.Helper()
	return hub.handleMessage(context.Background(), client, networking.JSON, []byte(raw), logging.NewTestLogger())
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func nextFrame(t *testing.T, client *Client) envelope {
	t.Helper()
	select {
	case msg := <-client.send:
		var env envelope
		if err := json.Unmarshal(msg.data, &env); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatalf("expected a queued frame")
	}
	return envelope{}
}

func drain(client *Client) {
	for {
		select {
		case <-client.send:
		default:
			return
		}
	}
}

func TestJoinBindsClientWhenEngineAnswers(t *testing.T) {
	hub, engine := newTestHub(t)
	client := attachClient(hub, "client-1")

	if !send(t, hub, client, `{"type":"join","name":"  Alice\n"}`) {
		t.Fatalf("expected session to stay open")
	}
	if len(engine.joins) != 1 || engine.joins[0] != (joinCall{ref: "client-1", name: "Alice"}) {
		t.Fatalf("expected sanitised join for client-1, got %+v", engine.joins)
	}
	if players, _ := hub.ClientCounts(); players != 1 {
		t.Fatalf("expected joining client to count as player, got %d", players)
	}

	hub.OnJoined("client-1", "snake-1", simulation.Snapshot{Tick: 7})
	env := nextFrame(t, client)
	if env.Type != msgJoined {
		t.Fatalf("expected joined frame, got %q", env.Type)
	}
	var joined struct {
		EntityID string `json:"entity_id"`
		Snapshot struct {
			Tick uint64 `json:"tick"`
		} `json:"snapshot"`
	}
	if err := json.Unmarshal(env.Payload, &joined); err != nil {
		t.Fatalf("decode joined payload: %v", err)
	}
	if joined.EntityID != "snake-1" || joined.Snapshot.Tick != 7 {
		t.Fatalf("unexpected joined payload %+v", joined)
	}
	if got := hub.entityOf(client); got != "snake-1" {
		t.Fatalf("expected client bound to snake-1, got %q", got)
	}
}

func TestSecondJoinIsRefused(t *testing.T) {
	hub, engine := newTestHub(t)
	client := attachClient(hub, "client-1")
	send(t, hub, client, `{"type":"join","name":"a"}`)
	send(t, hub, client, `{"type":"join","name":"b"}`)
	if len(engine.joins) != 1 {
		t.Fatalf("expected one join to reach the engine, got %d", len(engine.joins))
	}
	if env := nextFrame(t, client); env.Type != msgError {
		t.Fatalf("expected error frame, got %q", env.Type)
	}
}

func TestOrphanJoinIsDisconnected(t *testing.T) {
	hub, engine := newTestHub(t)
	hub.OnJoined("gone", "snake-9", simulation.Snapshot{})
	select {
	case id := <-engine.disconnects:
		if id != "snake-9" {
			t.Fatalf("expected snake-9 to be retired, got %q", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected orphan entity to be disconnected")
	}
}

func TestDirectionRoutesOnlyForBoundPlayers(t *testing.T) {
	hub, engine := newTestHub(t)
	lobby := attachClient(hub, "lobby")
	player := attachClient(hub, "player")
	send(t, hub, player, `{"type":"join"}`)
	hub.OnJoined("player", "snake-1", simulation.Snapshot{})

	send(t, hub, lobby, `{"type":"direction","x":1,"y":0}`)
	send(t, hub, player, `{"type":"direction","x":0,"y":-1}`)

	if len(engine.headings) != 1 {
		t.Fatalf("expected a single heading change, got %v", engine.headings)
	}
	if got := engine.headings["snake-1"]; got != [2]float64{0, -1} {
		t.Fatalf("expected up heading for snake-1, got %v", got)
	}
}

func TestInvalidDirectionIsRejected(t *testing.T) {
	hub, engine := newTestHub(t)
	player := attachClient(hub, "player")
	send(t, hub, player, `{"type":"join"}`)
	hub.OnJoined("player", "snake-1", simulation.Snapshot{})

	send(t, hub, player, `{"type":"direction","x":1,"y":1}`)
	if len(engine.headings) != 0 {
		t.Fatalf("expected diagonal heading to be dropped, got %v", engine.headings)
	}
}

func TestLifecycleEventsRecordTheirRound(t *testing.T) {
	hub, _ := newTestHub(t)
	sub, err := hub.Subscribe(context.Background(), "audit", 8)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	hub.OnEntityJoined(3, simulation.EntityView{ID: "bot-1"})
	hub.OnPauseToggled(3, true)
	hub.OnPlayersCleared(3)
	for i := 0; i < 3; i++ {
		select {
		case env := <-sub.Events():
			if env.Round != 3 {
				t.Fatalf("expected %s event in round 3, got %d", env.Kind, env.Round)
			}
		case <-time.After(time.Second):
			t.Fatalf("expected three lifecycle events, got %d", i)
		}
	}
}

func TestRestartReturnsPlayersToLobby(t *testing.T) {
	hub, _ := newTestHub(t)
	player := attachClient(hub, "player")
	spectator := attachClient(hub, "watcher")
	send(t, hub, player, `{"type":"join"}`)
	send(t, hub, spectator, `{"type":"spectate"}`)
	hub.OnJoined("player", "snake-1", simulation.Snapshot{})
	drain(player)

	hub.OnRoundRestarted(2)

	if env := nextFrame(t, player); env.Type != msgRoundRestarted {
		t.Fatalf("expected player to hear about the restart, got %q", env.Type)
	}
	if env := nextFrame(t, spectator); env.Type != msgRoundRestarted {
		t.Fatalf("expected spectator to hear about the restart, got %q", env.Type)
	}
	if got := hub.entityOf(player); got != "" {
		t.Fatalf("expected player to be unbound, got %q", got)
	}
	players, spectators := hub.ClientCounts()
	if players != 0 || spectators != 1 {
		t.Fatalf("expected 0 players and 1 spectator, got %d/%d", players, spectators)
	}
}

func TestRespawnResultReachesOwner(t *testing.T) {
	hub, engine := newTestHub(t)
	player := attachClient(hub, "player")
	send(t, hub, player, `{"type":"join"}`)
	hub.OnJoined("player", "snake-1", simulation.Snapshot{})
	drain(player)

	send(t, hub, player, `{"type":"respawn"}`)
	if len(engine.respawns) != 1 || engine.respawns[0] != "snake-1" {
		t.Fatalf("expected respawn for snake-1, got %v", engine.respawns)
	}
	hub.OnRespawnResult("snake-1", match.RespawnResult{Accepted: true})
	if env := nextFrame(t, player); env.Type != msgRespawnResult {
		t.Fatalf("expected respawn_result frame, got %q", env.Type)
	}
}

func TestUnregisterDisconnectsBoundEntity(t *testing.T) {
	hub, engine := newTestHub(t)
	player := attachClient(hub, "player")
	send(t, hub, player, `{"type":"join"}`)
	hub.OnJoined("player", "snake-1", simulation.Snapshot{})

	hub.unregister(player)

	select {
	case id := <-engine.disconnects:
		if id != "snake-1" {
			t.Fatalf("expected snake-1 disconnect, got %q", id)
		}
	default:
		t.Fatalf("expected a disconnect intent")
	}
	if players, _ := hub.ClientCounts(); players != 0 {
		t.Fatalf("expected no players after unregister, got %d", players)
	}
}

func TestAdminMessageRequiresToken(t *testing.T) {
	authorizer, err := auth.NewAdminAuthorizer("topsecret", "")
	if err != nil {
		t.Fatalf("NewAdminAuthorizer: %v", err)
	}
	hub, engine := newTestHub(t, WithAdminAuthorizer(authorizer))
	client := attachClient(hub, "operator")

	send(t, hub, client, `{"type":"admin","action":"pause"}`)
	if len(engine.admins) != 0 {
		t.Fatalf("expected unauthenticated admin command to be refused")
	}
	if env := nextFrame(t, client); env.Type != msgError {
		t.Fatalf("expected error frame, got %q", env.Type)
	}

	send(t, hub, client, `{"type":"admin","action":"PAUSE","token":"topsecret"}`)
	if len(engine.admins) != 1 || engine.admins[0] != simulation.AdminPause {
		t.Fatalf("expected pause command, got %v", engine.admins)
	}
}

func TestRepeatedGarbageDisconnects(t *testing.T) {
	hub, _ := newTestHub(t)
	client := attachClient(hub, "noisy")
	open := true
	for i := 0; i < 100 && open; i++ {
		open = send(t, hub, client, `not json`)
	}
	if open {
		t.Fatalf("expected the session to be closed after repeated invalid messages")
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://play.example.com/"})
	cases := []struct {
		origin string
		host   string
		want   bool
	}{
		{origin: "", host: "arena.local", want: true},
		{origin: "http://arena.local", host: "arena.local", want: true},
		{origin: "https://play.example.com", host: "arena.local", want: true},
		{origin: "https://evil.example.com", host: "arena.local", want: false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/ws", nil)
		req.Host = tc.host
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		if got := check(req); got != tc.want {
			t.Fatalf("origin %q on %q: expected %t, got %t", tc.origin, tc.host, tc.want, got)
		}
	}
	if !originChecker([]string{"*"})(httptest.NewRequest("GET", "/ws", nil)) {
		t.Fatalf("expected wildcard to accept everything")
	}
}

func TestEngineConfigMapsGameSettings(t *testing.T) {
	cfg := &configpkg.Config{Game: configpkg.GameConfig{
		Width:            1000,
		Height:           700,
		WallMargin:       20,
		TickHz:           30,
		FoodCap:          9,
		RespawnCooldown:  4 * time.Second,
		InputMinInterval: time.Millisecond,
	}}
	simCfg := engineConfig(cfg)
	if simCfg.Arena.Width != 1000 || simCfg.Arena.Height != 700 || simCfg.Arena.WallMargin != 20 {
		t.Fatalf("unexpected arena %+v", simCfg.Arena)
	}
	if simCfg.TickHz != 30 || simCfg.Rules.FoodCap != 9 || simCfg.RespawnCooldown != 4*time.Second {
		t.Fatalf("unexpected simulation config %+v", simCfg)
	}
	if simCfg.RestartDelay != simulation.DefaultConfig().RestartDelay {
		t.Fatalf("expected default restart delay, got %v", simCfg.RestartDelay)
	}
}
