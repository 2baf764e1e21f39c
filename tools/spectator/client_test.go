package spectator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDecodeFrameState(t *testing.T) {
	update, ok, err := DecodeFrame([]byte(`{"type":"state","payload":{"tick":4,"round":1,"entities":[{"id":"a","name":"Alice","alive":true}]}}`))
	if err != nil || !ok {
		t.Fatalf("expected state frame to decode, got %t %v", ok, err)
	}
	if update.Snapshot == nil || update.Snapshot.Tick != 4 || len(update.Snapshot.Entities) != 1 {
		t.Fatalf("unexpected snapshot %+v", update.Snapshot)
	}
}

func TestDecodeFrameNotices(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{raw: `{"type":"round_ended","payload":{"round":3,"winner":{"name":"Bob"}}}`, want: "Round 3 won by Bob"},
		{raw: `{"type":"round_ended","payload":{"round":3,"winner":null}}`, want: "Round 3 ended with no survivors"},
		{raw: `{"type":"paused","payload":{"enabled":true}}`, want: "paused on"},
		{raw: `{"type":"players_cleared"}`, want: "Arena cleared"},
	}
	for _, tc := range cases {
		update, ok, err := DecodeFrame([]byte(tc.raw))
		if err != nil || !ok || update.Notice != tc.want {
			t.Fatalf("%s: expected notice %q, got %q (%t %v)", tc.raw, tc.want, update.Notice, ok, err)
		}
	}
	if _, ok, err := DecodeFrame([]byte(`{"type":"entity_died","payload":{}}`)); ok || err != nil {
		t.Fatalf("expected entity_died to be ignored, got %t %v", ok, err)
	}
	if _, _, err := DecodeFrame([]byte(`garbage`)); err == nil {
		t.Fatalf("expected an error for undecodable frames")
	}
}

func TestClientSpectatesAndForwardsUpdates(t *testing.T) {
	upgrader := websocket.Upgrader{}
	spectated := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var hello map[string]string
		if err := conn.ReadJSON(&hello); err != nil {
			return
		}
		spectated <- hello["type"]
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"state","payload":{"tick":1}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"round_started","payload":{"round":2}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, err := Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if got := <-spectated; got != "spectate" {
		t.Fatalf("expected a spectate hello, got %q", got)
	}
	updates := make(chan Update, 4)
	go func() { _ = client.Run(ctx, updates) }()

	first := <-updates
	if first.Snapshot == nil || first.Snapshot.Tick != 1 {
		t.Fatalf("expected the state update first, got %+v", first)
	}
	second := <-updates
	if second.Notice != "Round 2 started" {
		t.Fatalf("expected round notice, got %+v", second)
	}
}
