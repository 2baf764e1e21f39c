package grpc

import (
	"context"

	"snakeroyale/server/internal/events"
)

// SnapshotFrame is one encoded arena snapshot with the tick that produced it.
type SnapshotFrame struct {
	Tick    uint64
	Payload []byte
}

// SnapshotSource fans encoded snapshots out to stream subscribers.
type SnapshotSource interface {
	SubscribeSnapshots(ctx context.Context) (<-chan SnapshotFrame, func(), error)
}

// EventLog is the acknowledged lifecycle event log.
type EventLog interface {
	Subscribe(ctx context.Context, subscriberID string, buffer int) (*events.Subscription, error)
}

// ArenaBridge aggregates what the spectator service reads from the running arena.
type ArenaBridge interface {
	SnapshotSource
	EventLog
}
