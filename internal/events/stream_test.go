package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, sub *Subscription) *Envelope {
	t.Helper()
	select {
	case env, ok := <-sub.Events():
		if !ok {
			t.Fatalf("expected event, channel closed")
		}
		return env
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for event")
	}
	return nil
}

func TestStreamDeliverAndAck(t *testing.T) {
	//1.- Arrange a stream and subscribe a test client.
	stream := NewStream(Config{Retain: 8})
	sub, err := stream.Subscribe(context.Background(), "alpha", 4)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	//2.- Publish a start, a death and an end for the same round.
	if _, err := stream.Publish(KindRoundStarted, 1, "", nil); err != nil {
		t.Fatalf("publish start failed: %v", err)
	}
	death := map[string]string{"cause": "wall", "killer_id": ""}
	if _, err := stream.Publish(KindEntityDied, 1, "bot-1", death); err != nil {
		t.Fatalf("publish death failed: %v", err)
	}
	if _, err := stream.Publish(KindRoundEnded, 1, "", nil); err != nil {
		t.Fatalf("publish end failed: %v", err)
	}

	//3.- Assert sequential delivery and acknowledgement.
	wantKinds := []Kind{KindRoundStarted, KindEntityDied, KindRoundEnded}
	for i, want := range wantKinds {
		env := receive(t, sub)
		if env.Sequence != uint64(i+1) || env.Kind != want {
			t.Fatalf("expected #%d %s, got #%d %s", i+1, want, env.Sequence, env.Kind)
		}
		if env.Kind == KindEntityDied {
			var payload map[string]string
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			if payload["cause"] != "wall" || env.EntityID != "bot-1" {
				t.Fatalf("unexpected death envelope %+v", env)
			}
		}
		if err := sub.Ack(env.Sequence); err != nil {
			t.Fatalf("ack failed: %v", err)
		}
	}
}

func TestStreamResendsUnackedEventsOnResubscribe(t *testing.T) {
	stream := NewStream(Config{})
	sub, err := stream.Subscribe(context.Background(), "bravo", 2)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	//1.- Publish two events and ack only the first.
	if _, err := stream.Publish(KindEntityJoined, 1, "first", nil); err != nil {
		t.Fatalf("publish first failed: %v", err)
	}
	if _, err := stream.Publish(KindEntityJoined, 1, "second", nil); err != nil {
		t.Fatalf("publish second failed: %v", err)
	}
	env := receive(t, sub)
	if env.EntityID != "first" {
		t.Fatalf("expected first event, got %q", env.EntityID)
	}
	if err := sub.Ack(env.Sequence); err != nil {
		t.Fatalf("ack first failed: %v", err)
	}
	receive(t, sub)
	sub.Close()

	//2.- Re-subscribe and ensure the unacked event is replayed.
	replay, err := stream.Subscribe(context.Background(), "bravo", 2)
	if err != nil {
		t.Fatalf("resubscribe failed: %v", err)
	}
	if env := receive(t, replay); env.EntityID != "second" {
		t.Fatalf("expected replay of second event, got %q", env.EntityID)
	}
}

func TestStreamRejectsOutOfOrderAck(t *testing.T) {
	stream := NewStream(Config{})
	sub, err := stream.Subscribe(context.Background(), "charlie", 2)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if _, err := stream.Publish(KindKeynote, 1, "", map[string]bool{"enabled": true}); err != nil {
		t.Fatalf("publish keynote failed: %v", err)
	}
	if _, err := stream.Publish(KindPaused, 1, "", map[string]bool{"enabled": true}); err != nil {
		t.Fatalf("publish paused failed: %v", err)
	}
	first := receive(t, sub)
	second := receive(t, sub)

	if err := sub.Ack(second.Sequence); !errors.Is(err, ErrOutOfOrderAck) {
		t.Fatalf("expected out of order error, got %v", err)
	}
	if err := sub.Ack(first.Sequence); err != nil {
		t.Fatalf("ack first failed: %v", err)
	}
	if err := sub.Ack(second.Sequence); err != nil {
		t.Fatalf("ack second failed: %v", err)
	}
	if err := sub.Ack(first.Sequence); err != nil {
		t.Fatalf("expected duplicate ack to be ignored, got %v", err)
	}
}

func TestNewSubscriberStartsAtHead(t *testing.T) {
	stream := NewStream(Config{})
	if _, err := stream.Publish(KindRoundStarted, 1, "", nil); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	sub, err := stream.Subscribe(context.Background(), "late", 1)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	select {
	case env := <-sub.Events():
		t.Fatalf("expected no replay for a new subscriber, got %+v", env)
	default:
	}
}

func TestRetentionPrunesBehindInactiveSubscribers(t *testing.T) {
	stream := NewStream(Config{Retain: 3})
	sub, err := stream.Subscribe(context.Background(), "idle", 1)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	sub.Close()
	for i := 0; i < 10; i++ {
		if _, err := stream.Publish(KindEntityLeft, 1, "x", nil); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}
	if stream.Len() != 3 {
		t.Fatalf("expected 3 retained events, got %d", stream.Len())
	}

	//1.- The idle subscriber resumes from the oldest retained event.
	back, err := stream.Subscribe(context.Background(), "idle", 1)
	if err != nil {
		t.Fatalf("resubscribe failed: %v", err)
	}
	if env := receive(t, back); env.Sequence != 8 {
		t.Fatalf("expected replay to start at 8, got %d", env.Sequence)
	}
}

func TestRetentionHoldsForActiveSubscriber(t *testing.T) {
	stream := NewStream(Config{Retain: 2})
	if _, err := stream.Subscribe(context.Background(), "slow", 16); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := stream.Publish(KindEntityDied, 1, "x", nil); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}
	if stream.Len() != 5 {
		t.Fatalf("expected unacked events to be held, got %d", stream.Len())
	}
}

func TestContextCancelClosesSubscription(t *testing.T) {
	stream := NewStream(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := stream.Subscribe(ctx, "delta", 1)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	cancel()
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for close")
	}
}
