package spectator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"snakeroyale/server/internal/simulation"
)

// Update is one decoded server frame relevant to the display.
type Update struct {
	Snapshot *simulation.Snapshot
	Notice   string
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeFrame turns a JSON server frame into an Update. ok is false for frames the
// spectator does not display.
func DecodeFrame(data []byte) (Update, bool, error) {
	var msg frame
	if err := json.Unmarshal(data, &msg); err != nil {
		return Update{}, false, fmt.Errorf("decode frame: %w", err)
	}
	switch msg.Type {
	case "state":
		var snap simulation.Snapshot
		if err := json.Unmarshal(msg.Payload, &snap); err != nil {
			return Update{}, false, fmt.Errorf("decode state: %w", err)
		}
		return Update{Snapshot: &snap}, true, nil
	case "round_started":
		var payload struct {
			Round int `json:"round"`
		}
		_ = json.Unmarshal(msg.Payload, &payload)
		return Update{Notice: fmt.Sprintf("Round %d started", payload.Round)}, true, nil
	case "round_ended":
		var payload struct {
			Round  int                    `json:"round"`
			Winner *simulation.EntityView `json:"winner"`
		}
		_ = json.Unmarshal(msg.Payload, &payload)
		if payload.Winner == nil {
			return Update{Notice: fmt.Sprintf("Round %d ended with no survivors", payload.Round)}, true, nil
		}
		return Update{Notice: fmt.Sprintf("Round %d won by %s", payload.Round, payload.Winner.Name)}, true, nil
	case "round_restarted":
		return Update{Notice: "Round restarting"}, true, nil
	case "players_cleared":
		return Update{Notice: "Arena cleared"}, true, nil
	case "paused", "keynote":
		var payload struct {
			Enabled bool `json:"enabled"`
		}
		_ = json.Unmarshal(msg.Payload, &payload)
		state := "off"
		if payload.Enabled {
			state = "on"
		}
		return Update{Notice: fmt.Sprintf("%s %s", msg.Type, state)}, true, nil
	default:
		return Update{}, false, nil
	}
}

// Client is a spectator WebSocket session.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to the arena WebSocket endpoint and registers as a spectator.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if err := conn.WriteJSON(map[string]string{"type": "spectate"}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("spectate: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Run forwards decoded updates until ctx ends or the socket closes. Snapshots are skipped
// while the consumer is behind.
func (c *Client) Run(ctx context.Context, updates chan<- Update) error {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		update, ok, err := DecodeFrame(data)
		if err != nil {
			return err
		}
		if ok && !forward(ctx, updates, update) {
			return nil
		}
	}
}

// forward hands update to the consumer. Snapshots are dropped when the consumer is behind,
// notices wait for room. It returns false once ctx ends.
func forward(ctx context.Context, updates chan<- Update, update Update) bool {
	if update.Snapshot != nil {
		select {
		case updates <- update:
		default:
			// the renderer is behind; skip this snapshot
		}
		return ctx.Err() == nil
	}
	select {
	case updates <- update:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close ends the session.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return errors.New("spectator client not connected")
	}
	return c.conn.Close()
}
