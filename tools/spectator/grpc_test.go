package spectator

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"snakeroyale/server/internal/events"
	grpcstream "snakeroyale/server/internal/grpc"
	"snakeroyale/server/internal/logging"
)

type arenaStub struct {
	*events.Stream
	frames chan grpcstream.SnapshotFrame
}

func (a *arenaStub) SubscribeSnapshots(context.Context) (<-chan grpcstream.SnapshotFrame, func(), error) {
	return a.frames, func() {}, nil
}

func TestDecodeEventMirrorsFrames(t *testing.T) {
	update, ok, err := DecodeEvent(&events.Envelope{Kind: events.KindPlayersCleared})
	if err != nil || !ok || update.Notice != "Arena cleared" {
		t.Fatalf("expected clear notice, got %+v %t %v", update, ok, err)
	}
	update, ok, err = DecodeEvent(&events.Envelope{Kind: events.KindPaused, Payload: []byte(`{"enabled":true}`)})
	if err != nil || !ok || update.Notice != "paused on" {
		t.Fatalf("expected pause notice, got %+v %t %v", update, ok, err)
	}
	if _, ok, err := DecodeEvent(&events.Envelope{Kind: events.KindEntityJoined}); ok || err != nil {
		t.Fatalf("expected entity_joined to be ignored, got %t %v", ok, err)
	}
}

func TestGRPCSourceForwardsSnapshotsAndNotices(t *testing.T) {
	arena := &arenaStub{Stream: events.NewStream(events.Config{}), frames: make(chan grpcstream.SnapshotFrame, 4)}
	//1.- Register the cursor first so the round notice is replayed when the stream opens.
	sub, err := arena.Subscribe(context.Background(), "term-1", 4)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Close()
	if _, err := arena.Publish(events.KindRoundStarted, 4, "", map[string]int{"round": 4}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	arena.frames <- grpcstream.SnapshotFrame{Tick: 5, Payload: []byte(`{"type":"state","payload":{"tick":5,"round":4}}`)}

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	grpcstream.Register(server, grpcstream.NewService(arena,
		grpcstream.WithLogger(logging.NewTestLogger()),
		grpcstream.WithSnapshotRate(100),
	))
	go func() { _ = server.Serve(listener) }()
	defer server.Stop()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	source := NewGRPCSource(conn, GRPCOptions{Subscriber: "term-1", Secret: "unused"})
	updates := make(chan Update, 4)
	done := make(chan error, 1)
	go func() { done <- source.Run(ctx, updates) }()

	var sawSnapshot, sawNotice bool
	for !sawSnapshot || !sawNotice {
		select {
		case update := <-updates:
			if update.Snapshot != nil && update.Snapshot.Tick == 5 {
				sawSnapshot = true
			}
			if update.Notice == "Round 4 started" {
				sawNotice = true
			}
		case <-ctx.Done():
			t.Fatalf("expected snapshot and notice, got snapshot=%t notice=%t", sawSnapshot, sawNotice)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}
