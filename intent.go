package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"snakeroyale/server/internal/input"
	"snakeroyale/server/internal/logging"
	"snakeroyale/server/internal/networking"
	"snakeroyale/server/internal/simulation"
)

// Inbound message types.
const (
	intentJoin      = "join"
	intentSpectate  = "spectate"
	intentDirection = "direction"
	intentRespawn   = "respawn"
	intentAdmin     = "admin"
)

var errIntentEmptyPayload = errors.New("empty intent payload")

// intentPayload is the JSON layout of every client to server message.
type intentPayload struct {
	Type     string  `json:"type"`
	Name     string  `json:"name,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Seq      uint64  `json:"seq,omitempty"`
	SentAtMs int64   `json:"sent_at_ms,omitempty"`
	Action   string  `json:"action,omitempty"`
	Token    string  `json:"token,omitempty"`
}

// decodeIntentPayload parses a websocket frame into a structured payload.
func decodeIntentPayload(codec networking.Codec, raw []byte) (*intentPayload, error) {
	if len(raw) == 0 {
		return nil, errIntentEmptyPayload
	}
	if codec == nil {
		codec = networking.JSON
	}
	var payload intentPayload
	if err := codec.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	payload.Type = strings.ToLower(strings.TrimSpace(payload.Type))
	return &payload, nil
}

// SentAt converts the optional capture timestamp into a time.Time instance.
func (payload *intentPayload) SentAt() time.Time {
	if payload == nil || payload.SentAtMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(payload.SentAtMs)
}

// handleMessage routes one inbound frame. It returns false when the session must end.
func (h *Hub) handleMessage(ctx context.Context, client *Client, codec networking.Codec, raw []byte, logger *logging.Logger) bool {
	payload, err := decodeIntentPayload(codec, raw)
	if err != nil {
		logger.Debug("undecodable intent", logging.Error(err))
		return h.reject(client, input.ValidationReasonMalformed, logger)
	}
	//1.- Clients cooling down after a burst of bad frames are ignored until the cooldown ends.
	if payload.Type != intentDirection {
		if decision := h.validator.Admit(client.id); !decision.Accepted {
			h.sendError(client, input.DescribeDecision(decision))
			return true
		}
	}
	switch payload.Type {
	case intentJoin:
		h.handleJoin(ctx, client, payload, logger)
	case intentSpectate:
		h.handleSpectate(client)
	case intentDirection:
		return h.handleDirection(client, payload, logger)
	case intentRespawn:
		h.handleRespawn(ctx, client, logger)
	case intentAdmin:
		h.handleAdmin(ctx, client, payload, logger)
	default:
		logger.Debug("unknown intent type", logging.String("type", payload.Type))
		return h.reject(client, input.ValidationReasonUnknownType, logger)
	}
	return true
}

func (h *Hub) reject(client *Client, reason input.ValidationReason, logger *logging.Logger) bool {
	decision := h.validator.Reject(client.id, reason)
	if decision.Warn || decision.Cooldown > 0 {
		h.sendError(client, input.DescribeDecision(decision))
	}
	if decision.Disconnect {
		logger.Warn("disconnecting client after repeated invalid messages")
		return false
	}
	return true
}

func (h *Hub) handleJoin(ctx context.Context, client *Client, payload *intentPayload, logger *logging.Logger) {
	h.mu.Lock()
	role := client.role
	if role == roleLobby {
		client.role = roleJoining
	}
	h.mu.Unlock()
	switch role {
	case roleJoining, rolePlayer:
		h.sendError(client, "already joined")
		return
	case roleSpectator:
		h.sendError(client, "spectators cannot join")
		return
	}
	name := input.SanitizeName(payload.Name)
	if err := h.engine.Join(ctx, client.id, name); err != nil {
		logger.Warn("join intent failed", logging.Error(err))
		h.mu.Lock()
		if client.role == roleJoining {
			client.role = roleLobby
		}
		h.mu.Unlock()
		h.sendError(client, "join failed")
	}
}

func (h *Hub) handleSpectate(client *Client) {
	h.mu.Lock()
	role := client.role
	if role == roleLobby {
		client.role = roleSpectator
	}
	h.mu.Unlock()
	if role != roleLobby && role != roleSpectator {
		h.sendError(client, "players cannot spectate")
	}
}

func (h *Hub) entityOf(client *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client.role != rolePlayer {
		return ""
	}
	return client.entityID
}

func (h *Hub) handleDirection(client *Client, payload *intentPayload, logger *logging.Logger) bool {
	decision := h.validator.ValidateDirection(client.id, payload.X, payload.Y)
	if !decision.Accepted {
		if decision.Reason == input.ValidationReasonCooldownActive {
			return true
		}
		return h.reject(client, decision.Reason, logger)
	}
	entityID := h.entityOf(client)
	if entityID == "" {
		return true
	}
	if gate := h.gate.Evaluate(input.Frame{ClientID: client.id, Seq: payload.Seq, SentAt: payload.SentAt()}); !gate.Accepted {
		return true
	}
	if err := h.engine.SetHeading(entityID, payload.X, payload.Y); err != nil {
		logger.Debug("direction intent dropped", logging.Error(err))
	}
	return true
}

func (h *Hub) handleRespawn(ctx context.Context, client *Client, logger *logging.Logger) {
	entityID := h.entityOf(client)
	if entityID == "" {
		return
	}
	if err := h.engine.RequestRespawn(ctx, entityID); err != nil {
		logger.Warn("respawn intent failed", logging.Error(err))
	}
}

func (h *Hub) handleAdmin(ctx context.Context, client *Client, payload *intentPayload, logger *logging.Logger) {
	action, ok := simulation.ParseAdminAction(payload.Action)
	if !ok {
		h.sendError(client, "unknown admin action")
		return
	}
	if err := h.authorizeAdmin(payload.Token); err != nil {
		logger.Warn("admin command denied", logging.String("action", string(action)), logging.Error(err))
		h.sendError(client, "unauthorized")
		return
	}
	if err := h.engine.Admin(ctx, action); err != nil {
		logger.Warn("admin intent failed", logging.Error(err))
		h.sendError(client, "admin command failed")
		return
	}
	logger.Info("admin command accepted", logging.String("action", string(action)))
}
