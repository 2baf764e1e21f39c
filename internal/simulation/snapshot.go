package simulation

import (
	"time"

	"snakeroyale/server/internal/arena"
	"snakeroyale/server/internal/match"
	"snakeroyale/server/internal/state"
)

// EntityView is the read-only projection of an entity sent to clients.
type EntityView struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Kind         string        `json:"kind"`
	IsBot        bool          `json:"is_bot"`
	Alive        bool          `json:"alive"`
	Disconnected bool          `json:"disconnected,omitempty"`
	Score        int           `json:"score"`
	FoodScore    int           `json:"food_score"`
	KillScore    int           `json:"kill_score"`
	Color        string        `json:"color"`
	Heading      arena.Heading `json:"heading"`
	Length       int           `json:"length"`
	Body         []arena.Vec   `json:"body"`
	JoinedAtMs   int64         `json:"joined_at_ms"`
	DeathTimeMs  int64         `json:"death_time_ms,omitempty"`
}

// Snapshot is the authoritative state handed to the gateway for broadcast.
type Snapshot struct {
	Tick        uint64       `json:"tick"`
	Round       int          `json:"round"`
	Status      match.Status `json:"status"`
	Keynote     bool         `json:"keynote"`
	Paused      bool         `json:"paused"`
	Arena       arena.Arena  `json:"arena"`
	Entities    []EntityView `json:"entities"`
	Food        []state.Food `json:"food"`
	TimestampMs int64        `json:"timestamp_ms"`
}

// DeathEvent describes an elimination for explicit lifecycle notifications.
type DeathEvent struct {
	EntityID string `json:"entity_id"`
	Cause    string `json:"cause"`
	KillerID string `json:"killer_id,omitempty"`
	Round    int    `json:"round"`
}

func viewOf(e *state.Entity) EntityView {
	view := EntityView{
		ID:           e.ID,
		Name:         e.Name,
		Kind:         e.Kind.String(),
		IsBot:        e.IsBot(),
		Alive:        e.Alive,
		Disconnected: e.Disconnected,
		Score:        e.Score(),
		FoodScore:    e.FoodScore,
		KillScore:    e.KillScore,
		JoinedAtMs:   e.JoinedAt.UnixMilli(),
	}
	if !e.DeathTime.IsZero() {
		view.DeathTimeMs = e.DeathTime.UnixMilli()
	}
	if e.Snake != nil {
		view.Color = e.Snake.Color
		view.Heading = e.Snake.Heading
		view.Length = e.Snake.TargetLength
		view.Body = append([]arena.Vec(nil), e.Snake.Body...)
	}
	return view
}

func (e *Engine) snapshot(now time.Time) Snapshot {
	entities := e.world.Entities.All()
	views := make([]EntityView, 0, len(entities))
	for _, entity := range entities {
		views = append(views, viewOf(entity))
	}
	return Snapshot{
		Tick:        e.tick,
		Round:       e.lifecycle.Round(),
		Status:      e.lifecycle.Status(),
		Keynote:     e.lifecycle.Keynote(),
		Paused:      e.lifecycle.Paused(),
		Arena:       e.world.Arena,
		Entities:    views,
		Food:        e.world.Food.Items(),
		TimestampMs: now.UnixMilli(),
	}
}
