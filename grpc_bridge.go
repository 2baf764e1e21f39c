package main

import (
	"context"
	"errors"
	"sync"

	"snakeroyale/server/internal/events"
	grpcstream "snakeroyale/server/internal/grpc"
	"snakeroyale/server/internal/networking"
)

const snapshotSubscriberBuffer = 4

// SubscribeSnapshots lets gRPC spectators observe JSON encoded snapshots.
func (h *Hub) SubscribeSnapshots(ctx context.Context) (<-chan grpcstream.SnapshotFrame, func(), error) {
	if h == nil {
		return nil, func() {}, errors.New("hub is nil")
	}
	//1.- Buffer a few frames; a slow stream loses frames instead of stalling the tick.
	ch := make(chan grpcstream.SnapshotFrame, snapshotSubscriberBuffer)
	h.snapMu.Lock()
	h.nextSnapID++
	id := h.nextSnapID
	h.snapSubs[id] = ch
	h.snapMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.snapMu.Lock()
			if sub, ok := h.snapSubs[id]; ok {
				delete(h.snapSubs, id)
				close(sub)
			}
			h.snapMu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel, nil
}

// Subscribe attaches a gRPC subscriber to the lifecycle event log.
func (h *Hub) Subscribe(ctx context.Context, subscriberID string, buffer int) (*events.Subscription, error) {
	if h == nil {
		return nil, errors.New("hub is nil")
	}
	return h.events.Subscribe(ctx, subscriberID, buffer)
}

func (h *Hub) publishSnapshotFrame(tick uint64, cache *frameCache) {
	h.snapMu.Lock()
	defer h.snapMu.Unlock()
	if len(h.snapSubs) == 0 {
		return
	}
	msg, ok := cache.frame(networking.JSON)
	if !ok {
		return
	}
	frame := grpcstream.SnapshotFrame{Tick: tick, Payload: msg.data}
	for _, ch := range h.snapSubs {
		select {
		case ch <- frame:
		default:
			h.metrics.ObserveDrop(networking.DropQueueFull)
		}
	}
}

var _ grpcstream.ArenaBridge = (*Hub)(nil)
