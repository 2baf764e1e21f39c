package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"snakeroyale/server/internal/auth"
	"snakeroyale/server/internal/events"
	grpcstream "snakeroyale/server/internal/grpc"
	"snakeroyale/server/internal/input"
	"snakeroyale/server/internal/logging"
	"snakeroyale/server/internal/match"
	"snakeroyale/server/internal/networking"
	"snakeroyale/server/internal/simulation"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
)

// Outbound message types.
const (
	msgJoined          = "joined"
	msgState           = "state"
	msgRoundStarted    = "round_started"
	msgRoundEnded      = "round_ended"
	msgRoundRestarted  = "round_restarted"
	msgRespawnResult   = "respawn_result"
	msgEntityDied      = "entity_died"
	msgEntityRespawned = "entity_respawned"
	msgKeynote         = "keynote"
	msgPaused          = "paused"
	msgPlayersCleared  = "players_cleared"
	msgError           = "error"
)

// arenaEngine is the slice of the simulation engine the gateway submits intents to.
type arenaEngine interface {
	Join(ctx context.Context, ref, name string) error
	SetHeading(entityID string, dx, dy float64) error
	RequestRespawn(ctx context.Context, entityID string) error
	Disconnect(ctx context.Context, entityID string) error
	Admin(ctx context.Context, action simulation.AdminAction) error
}

type clientRole int

const (
	roleLobby clientRole = iota
	roleJoining
	rolePlayer
	roleSpectator
)

type outbound struct {
	kind int
	data []byte
}

// Client is one WebSocket session.
type Client struct {
	id    string
	conn  *websocket.Conn
	send  chan outbound
	codec networking.Codec
	done  chan struct{}
	once  sync.Once

	// guarded by Hub.mu
	role     clientRole
	entityID string
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// HubConfig captures the gateway tunables.
type HubConfig struct {
	MaxClients      int
	MaxPayloadBytes int64
	PingInterval    time.Duration
	AllowedOrigins  []string
	SnapshotBudget  float64
}

// Hub owns every WebSocket session. It turns inbound messages into engine intents
// and fans engine notifications back out to players, spectators and the event log.
type Hub struct {
	cfg        HubConfig
	log        *logging.Logger
	upgrader   websocket.Upgrader
	engine     arenaEngine
	gate       *input.Gate
	validator  *input.Validator
	authorizer *auth.AdminAuthorizer
	events     *events.Stream
	metrics    *networking.SnapshotMetrics
	bandwidth  *networking.BandwidthRegulator
	now        func() time.Time

	mu       sync.RWMutex
	clients  map[string]*Client
	byEntity map[string]*Client

	snapMu     sync.Mutex
	snapSubs   map[uint64]chan grpcstream.SnapshotFrame
	nextSnapID uint64

	connections atomic.Int64
}

// HubOption customises hub construction.
type HubOption func(*Hub)

// WithHubLogger overrides the hub logger.
func WithHubLogger(logger *logging.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.log = logger
		}
	}
}

// WithHubClock injects a deterministic clock.
func WithHubClock(clock func() time.Time) HubOption {
	return func(h *Hub) {
		if clock != nil {
			h.now = clock
		}
	}
}

// WithInputGate replaces the direction rate gate.
func WithInputGate(gate *input.Gate) HubOption {
	return func(h *Hub) {
		if gate != nil {
			h.gate = gate
		}
	}
}

// WithAdminAuthorizer guards admin messages.
func WithAdminAuthorizer(authorizer *auth.AdminAuthorizer) HubOption {
	return func(h *Hub) {
		if authorizer != nil {
			h.authorizer = authorizer
		}
	}
}

// WithEventStream shares the lifecycle event log with other consumers.
func WithEventStream(stream *events.Stream) HubOption {
	return func(h *Hub) {
		if stream != nil {
			h.events = stream
		}
	}
}

// NewHub builds an idle hub; Bind must be called before serving connections.
func NewHub(cfg HubConfig, opts ...HubOption) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.SnapshotBudget <= 0 {
		cfg.SnapshotBudget = networking.DefaultSnapshotBytesPerSecond
	}
	h := &Hub{
		cfg:      cfg,
		log:      logging.L(),
		now:      time.Now,
		metrics:  networking.NewSnapshotMetrics(),
		clients:  make(map[string]*Client),
		byEntity: make(map[string]*Client),
		snapSubs: make(map[uint64]chan grpcstream.SnapshotFrame),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.log = h.log.With(logging.Component("hub"))
	if h.gate == nil {
		h.gate = input.NewGate(input.Config{MinInterval: 10 * time.Millisecond}, h.log)
	}
	if h.events == nil {
		h.events = events.NewStream(events.Config{})
	}
	h.validator = input.NewValidator(input.DefaultConstraints, h.log, input.WithValidatorClock(input.ClockFunc(h.now)))
	h.bandwidth = networking.NewBandwidthRegulator(cfg.SnapshotBudget, h.now)
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(cfg.AllowedOrigins)}
	return h
}

// Bind attaches the engine that receives intents.
func (h *Hub) Bind(engine arenaEngine) { h.engine = engine }

// Metrics exposes snapshot delivery counters.
func (h *Hub) Metrics() *networking.SnapshotMetrics { return h.metrics }

// Bandwidth exposes the per-client snapshot budget.
func (h *Hub) Bandwidth() *networking.BandwidthRegulator { return h.bandwidth }

// Events exposes the lifecycle event log.
func (h *Hub) Events() *events.Stream { return h.events }

// ClientCounts reports joined players and spectators.
func (h *Hub) ClientCounts() (players, spectators int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		switch client.role {
		case rolePlayer, roleJoining:
			players++
		case roleSpectator:
			spectators++
		}
	}
	return players, spectators
}

// ServeHTTP upgrades the request and runs the session until the socket closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		http.Error(w, "arena not ready", http.StatusServiceUnavailable)
		return
	}
	if h.cfg.MaxClients > 0 && int(h.connections.Load()) >= h.cfg.MaxClients {
		h.log.Warn("connection rejected: client limit reached", logging.Int("max_clients", h.cfg.MaxClients))
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}
	codec, ok := networking.CodecByName(r.URL.Query().Get("codec"))
	if !ok {
		http.Error(w, "unsupported codec", http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	client := &Client{
		id:    uuid.NewString(),
		conn:  conn,
		send:  make(chan outbound, clientSendBuffer),
		codec: codec,
		done:  make(chan struct{}),
	}
	h.register(client)
	logger := h.log.With(logging.String("client_id", client.id), logging.String("codec", codec.Name()))
	logger.Info("client connected", logging.String("remote_addr", r.RemoteAddr))

	go h.writePump(client, logger)
	h.readPump(r.Context(), client, logger)
	h.unregister(client)
	logger.Info("client disconnected")
}

// Close ends every live session. Hijacked sockets are not tracked by http.Server.Shutdown.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		client.close()
	}
}

func (h *Hub) register(client *Client) {
	h.connections.Add(1)
	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
}

func (h *Hub) unregister(client *Client) {
	h.connections.Add(-1)
	h.mu.Lock()
	delete(h.clients, client.id)
	entityID := client.entityID
	if entityID != "" {
		delete(h.byEntity, entityID)
	}
	client.entityID = ""
	h.mu.Unlock()
	client.close()

	//1.- A joined human leaves a dead, disconnected record behind until the next restart.
	if entityID != "" && h.engine != nil {
		if err := h.engine.Disconnect(context.Background(), entityID); err != nil && !errors.Is(err, simulation.ErrEngineStopped) {
			h.log.Warn("disconnect intent failed", logging.String("entity_id", entityID), logging.Error(err))
		}
	}
	h.gate.Forget(client.id)
	h.validator.Forget(client.id)
	h.bandwidth.Forget(client.id)
	h.metrics.ForgetClient(client.id)
}

func (h *Hub) readPump(ctx context.Context, client *Client, logger *logging.Logger) {
	conn := client.conn
	if h.cfg.MaxPayloadBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxPayloadBytes)
	}
	deadline := func() { _ = conn.SetReadDeadline(time.Now().Add(2 * h.cfg.PingInterval)) }
	deadline()
	conn.SetPongHandler(func(string) error {
		deadline()
		return nil
	})
	for {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read failed", logging.Error(err))
			}
			return
		}
		deadline()
		//1.- Text frames are always JSON; binary frames use the negotiated codec.
		codec := networking.JSON
		if kind == websocket.BinaryMessage {
			codec = client.codec
		}
		if !h.handleMessage(ctx, client, codec, raw, logger) {
			return
		}
		select {
		case <-client.done:
			return
		default:
		}
	}
}

func (h *Hub) writePump(client *Client, logger *logging.Logger) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()
	for {
		select {
		case msg := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(msg.kind, msg.data); err != nil {
				logger.Debug("websocket write failed", logging.Error(err))
				client.close()
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.close()
				return
			}
		case <-client.done:
			_ = client.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// frameCache encodes one message at most once per codec during a fan-out.
type frameCache struct {
	msgType string
	payload any
	frames  map[string][]byte
	log     *logging.Logger
	metrics *networking.SnapshotMetrics
	observe bool
}

func (f *frameCache) frame(codec networking.Codec) (outbound, bool) {
	kind := websocket.TextMessage
	if codec.Binary() {
		kind = websocket.BinaryMessage
	}
	if data, ok := f.frames[codec.Name()]; ok {
		return outbound{kind: kind, data: data}, true
	}
	data, err := networking.Encode(codec, f.msgType, f.payload)
	if err != nil {
		f.log.Error("encode outbound message failed", logging.String("type", f.msgType), logging.Error(err))
		return outbound{}, false
	}
	if f.observe {
		f.metrics.ObserveEncoded(codec.Name(), len(data))
	}
	f.frames[codec.Name()] = data
	return outbound{kind: kind, data: data}, true
}

func (h *Hub) newFrameCache(msgType string, payload any) *frameCache {
	return &frameCache{msgType: msgType, payload: payload, frames: make(map[string][]byte, 2), log: h.log, metrics: h.metrics}
}

// deliver queues msg without blocking. Lifecycle messages that do not fit mark the client slow and close it.
func (h *Hub) deliver(client *Client, msg outbound, droppable bool) bool {
	select {
	case <-client.done:
		return false
	default:
	}
	select {
	case client.send <- msg:
		return true
	default:
	}
	h.metrics.ObserveDrop(networking.DropQueueFull)
	if !droppable {
		h.log.Warn("closing slow client", logging.String("client_id", client.id))
		client.close()
	}
	return false
}

func (h *Hub) sendTo(client *Client, msgType string, payload any) {
	if client == nil {
		return
	}
	if msg, ok := h.newFrameCache(msgType, payload).frame(client.codec); ok {
		h.deliver(client, msg, false)
	}
}

func (h *Hub) sendError(client *Client, message string) {
	h.sendTo(client, msgError, map[string]string{"message": message})
}

// broadcast sends a lifecycle message to every player and spectator.
func (h *Hub) broadcast(msgType string, payload any) {
	cache := h.newFrameCache(msgType, payload)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.role == roleLobby {
			continue
		}
		if msg, ok := cache.frame(client.codec); ok {
			h.deliver(client, msg, false)
		}
	}
}

func (h *Hub) publish(kind events.Kind, round int, entityID string, payload any) {
	if _, err := h.events.Publish(kind, round, entityID, payload); err != nil {
		h.log.Error("publish lifecycle event failed", logging.String("kind", string(kind)), logging.Error(err))
	}
}

// unbindAll returns every player to the lobby, for restarts and clears.
func (h *Hub) unbindAll() {
	h.mu.Lock()
	for _, client := range h.clients {
		if client.role == rolePlayer || client.role == roleJoining {
			client.role = roleLobby
			client.entityID = ""
		}
	}
	h.byEntity = make(map[string]*Client)
	h.mu.Unlock()
}

// OnJoined binds the joining client to its new entity and hands it the first snapshot.
func (h *Hub) OnJoined(ref, entityID string, snapshot simulation.Snapshot) {
	h.mu.Lock()
	client, ok := h.clients[ref]
	bound := ok && client.role == roleJoining
	if bound {
		client.role = rolePlayer
		client.entityID = entityID
		h.byEntity[entityID] = client
	}
	h.mu.Unlock()
	if !bound {
		//1.- The socket went away while the join was queued; retire the orphan entity.
		go func() {
			if err := h.engine.Disconnect(context.Background(), entityID); err != nil && !errors.Is(err, simulation.ErrEngineStopped) {
				h.log.Warn("orphan disconnect failed", logging.String("entity_id", entityID), logging.Error(err))
			}
		}()
		return
	}
	h.sendTo(client, msgJoined, joinedPayload{EntityID: entityID, Snapshot: snapshot})
}

type joinedPayload struct {
	EntityID string              `json:"entity_id"`
	Snapshot simulation.Snapshot `json:"snapshot"`
}

// OnStateSnapshot fans the throttled state out to sockets and gRPC subscribers.
func (h *Hub) OnStateSnapshot(snapshot simulation.Snapshot) {
	h.metrics.ObserveBroadcast()
	cache := h.newFrameCache(msgState, snapshot)
	cache.observe = true
	h.mu.RLock()
	for _, client := range h.clients {
		if client.role == roleLobby {
			continue
		}
		msg, ok := cache.frame(client.codec)
		if !ok {
			continue
		}
		if !h.bandwidth.Allow(client.id, len(msg.data)) {
			h.metrics.ObserveDrop(networking.DropThrottled)
			continue
		}
		if h.deliver(client, msg, true) {
			h.metrics.ObserveDelivery(client.id, len(msg.data))
		}
	}
	h.mu.RUnlock()
	h.publishSnapshotFrame(snapshot.Tick, cache)
}

func (h *Hub) OnRoundStarted(round int) {
	payload := map[string]int{"round": round}
	h.broadcast(msgRoundStarted, payload)
	h.publish(events.KindRoundStarted, round, "", payload)
}

func (h *Hub) OnRoundEnded(round int, winner *simulation.EntityView) {
	payload := roundEndedPayload{Round: round, Winner: winner}
	h.broadcast(msgRoundEnded, payload)
	winnerID := ""
	if winner != nil {
		winnerID = winner.ID
	}
	h.publish(events.KindRoundEnded, round, winnerID, payload)
}

type roundEndedPayload struct {
	Round  int                    `json:"round"`
	Winner *simulation.EntityView `json:"winner"`
}

// OnRoundRestarted tells every session about the new round, then returns players to the lobby.
func (h *Hub) OnRoundRestarted(round int) {
	payload := map[string]int{"round": round}
	h.broadcast(msgRoundRestarted, payload)
	h.unbindAll()
	h.publish(events.KindRoundRestarted, round, "", payload)
}

func (h *Hub) OnRespawnResult(entityID string, result match.RespawnResult) {
	h.mu.RLock()
	client := h.byEntity[entityID]
	h.mu.RUnlock()
	h.sendTo(client, msgRespawnResult, respawnPayload{Accepted: result.Accepted, RemainingSeconds: result.RemainingSeconds()})
}

type respawnPayload struct {
	Accepted         bool `json:"accepted"`
	RemainingSeconds int  `json:"remaining_seconds"`
}

func (h *Hub) OnEntityJoined(round int, entity simulation.EntityView) {
	h.publish(events.KindEntityJoined, round, entity.ID, entity)
}

func (h *Hub) OnEntityLeft(round int, entityID string) {
	h.publish(events.KindEntityLeft, round, entityID, nil)
}

func (h *Hub) OnEntityDied(death simulation.DeathEvent) {
	h.broadcast(msgEntityDied, death)
	h.publish(events.KindEntityDied, death.Round, death.EntityID, death)
}

func (h *Hub) OnEntityRespawned(round int, entity simulation.EntityView) {
	h.broadcast(msgEntityRespawned, entity)
	h.publish(events.KindEntityRespawned, round, entity.ID, entity)
}

func (h *Hub) OnKeynoteToggled(round int, enabled bool) {
	payload := map[string]bool{"enabled": enabled}
	h.broadcast(msgKeynote, payload)
	h.publish(events.KindKeynote, round, "", payload)
}

func (h *Hub) OnPauseToggled(round int, enabled bool) {
	payload := map[string]bool{"enabled": enabled}
	h.broadcast(msgPaused, payload)
	h.publish(events.KindPaused, round, "", payload)
}

func (h *Hub) OnPlayersCleared(round int) {
	h.broadcast(msgPlayersCleared, nil)
	h.unbindAll()
	h.publish(events.KindPlayersCleared, round, "", nil)
}

var _ simulation.Sink = (*Hub)(nil)
