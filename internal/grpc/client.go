package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"snakeroyale/server/internal/events"
)

// SnapshotStream reads decompressed snapshot payloads.
type SnapshotStream struct {
	stream     grpc.ClientStream
	compressor Compressor
}

// WatchSnapshots opens a snapshot stream asking for the given payload encoding.
func WatchSnapshots(ctx context.Context, conn grpc.ClientConnInterface, encoding string) (*SnapshotStream, error) {
	stream, err := openStream(ctx, conn, 0, watchSnapshotsMethod, encoding)
	if err != nil {
		return nil, err
	}
	header, err := stream.Header()
	if err != nil {
		return nil, fmt.Errorf("read stream header: %w", err)
	}
	name := encoding
	if values := header.Get(EncodingHeader); len(values) > 0 {
		name = values[0]
	}
	compressor, err := CompressorByName(name)
	if err != nil {
		return nil, err
	}
	return &SnapshotStream{stream: stream, compressor: compressor}, nil
}

// Encoding reports the compression the server applied.
func (s *SnapshotStream) Encoding() string { return s.compressor.Name() }

// Recv blocks for the next snapshot and returns its JSON payload.
func (s *SnapshotStream) Recv() ([]byte, error) {
	frame := new(wrapperspb.BytesValue)
	if err := s.stream.RecvMsg(frame); err != nil {
		return nil, err
	}
	return s.compressor.Decompress(frame.GetValue())
}

// EventStream reads lifecycle event envelopes.
type EventStream struct {
	stream grpc.ClientStream
}

// WatchEvents opens an event stream for subscriberID.
func WatchEvents(ctx context.Context, conn grpc.ClientConnInterface, subscriberID string) (*EventStream, error) {
	stream, err := openStream(ctx, conn, 1, watchEventsMethod, subscriberID)
	if err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}

// Recv blocks for the next event.
func (s *EventStream) Recv() (*events.Envelope, error) {
	frame := new(wrapperspb.BytesValue)
	if err := s.stream.RecvMsg(frame); err != nil {
		return nil, err
	}
	var env events.Envelope
	if err := json.Unmarshal(frame.GetValue(), &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &env, nil
}

func openStream(ctx context.Context, conn grpc.ClientConnInterface, index int, method, value string) (grpc.ClientStream, error) {
	stream, err := conn.NewStream(ctx, &ServiceDesc.Streams[index], method)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(wrapperspb.String(value)); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return stream, nil
}
