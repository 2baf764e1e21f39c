package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"snakeroyale/server/internal/logging"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "snakeroyale.arena.v1.SpectatorService"
	// EncodingHeader carries the payload compression chosen for a snapshot stream.
	EncodingHeader = "x-arena-encoding"
	// SharedSecretHeader is the metadata key clients use to present the stream secret.
	SharedSecretHeader = "x-arena-shared-secret"

	watchSnapshotsMethod = "/" + ServiceName + "/WatchSnapshots"
	watchEventsMethod    = "/" + ServiceName + "/WatchEvents"

	defaultSnapshotRateHz = 10
	eventBuffer           = 64
)

// Option customises the spectator service.
type Option func(*Service)

type tickerFactory func(time.Duration) (<-chan time.Time, func())

// WithTickerFactory overrides the throttling ticker (used in tests).
func WithTickerFactory(factory tickerFactory) Option {
	return func(s *Service) {
		if factory != nil {
			s.newTicker = factory
		}
	}
}

// WithSnapshotRate caps how many snapshots per second each stream receives.
func WithSnapshotRate(hz int) Option {
	return func(s *Service) {
		if hz > 0 {
			s.rateHz = hz
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.log = logger
		}
	}
}

// Service streams arena snapshots and lifecycle events to spectators.
//
// Both methods take a wrapperspb.StringValue request and answer with wrapperspb.BytesValue frames:
// WatchSnapshots receives the requested encoding and sends compressed JSON snapshots, WatchEvents
// receives a subscriber id and sends JSON event envelopes acknowledged once delivered.
type Service struct {
	bridge    ArenaBridge
	newTicker tickerFactory
	rateHz    int
	log       *logging.Logger
}

// NewService wires the service to the running arena.
func NewService(bridge ArenaBridge, opts ...Option) *Service {
	service := &Service{
		bridge:    bridge,
		newTicker: defaultTickerFactory,
		rateHz:    defaultSnapshotRateHz,
		log:       logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	service.log = service.log.With(logging.Component("grpc"))
	return service
}

func defaultTickerFactory(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}

// WatchSnapshots sends the newest snapshot at most rateHz times per second.
func (s *Service) WatchSnapshots(req *wrapperspb.StringValue, stream grpc.ServerStream) error {
	if s == nil || s.bridge == nil {
		return status.Error(codes.FailedPrecondition, "streaming unavailable")
	}
	compressor, err := CompressorByName(req.GetValue())
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	ctx := stream.Context()
	//1.- Subscribe before announcing the encoding so no frame is missed.
	frames, cancel, err := s.bridge.SubscribeSnapshots(ctx)
	if err != nil {
		return status.Errorf(codes.Internal, "subscribe snapshots: %v", err)
	}
	defer cancel()
	if err := stream.SendHeader(metadata.Pairs(EncodingHeader, compressor.Name())); err != nil {
		return err
	}

	tickCh, stop := s.newTicker(time.Second / time.Duration(s.rateHz))
	defer stop()

	var (
		latest  *SnapshotFrame
		sent    uint64
		closed  bool
		started = time.Now()
	)
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("snapshot stream closed", logging.Uint64("frames", sent), logging.Duration("lifetime", time.Since(started)))
			return contextStatus(ctx.Err())
		case frame, ok := <-frames:
			if !ok {
				closed = true
				frames = nil
				if latest == nil {
					return nil
				}
				continue
			}
			//2.- Coalesce: only the newest snapshot matters to a spectator.
			f := frame
			latest = &f
		case <-tickCh:
			if latest == nil {
				if closed {
					return nil
				}
				continue
			}
			compressed, err := compressor.Compress(latest.Payload)
			if err != nil {
				return status.Errorf(codes.Internal, "compress snapshot: %v", err)
			}
			if err := stream.SendMsg(wrapperspb.Bytes(compressed)); err != nil {
				return err
			}
			sent++
			latest = nil
		}
	}
}

// WatchEvents replays unacknowledged lifecycle events for the subscriber and then follows the log.
func (s *Service) WatchEvents(req *wrapperspb.StringValue, stream grpc.ServerStream) error {
	if s == nil || s.bridge == nil {
		return status.Error(codes.FailedPrecondition, "streaming unavailable")
	}
	subscriberID := req.GetValue()
	if subscriberID == "" {
		return status.Error(codes.InvalidArgument, "subscriber id required")
	}
	ctx := stream.Context()
	sub, err := s.bridge.Subscribe(ctx, subscriberID, eventBuffer)
	if err != nil {
		return status.Errorf(codes.Internal, "subscribe events: %v", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return contextStatus(ctx.Err())
		case env, ok := <-sub.Events():
			if !ok {
				return status.Error(codes.Aborted, "subscription replaced")
			}
			data, err := json.Marshal(env)
			if err != nil {
				return status.Errorf(codes.Internal, "encode event: %v", err)
			}
			if err := stream.SendMsg(wrapperspb.Bytes(data)); err != nil {
				return err
			}
			//1.- A gap means a live copy was dropped; end the stream so the client resubscribes and replays.
			if err := sub.Ack(env.Sequence); err != nil {
				s.log.Warn("event stream gap", logging.String("subscriber_id", subscriberID), logging.Error(err))
				return status.Error(codes.Unavailable, "event stream gap, resubscribe")
			}
		}
	}
}

func contextStatus(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
	}
	return status.Error(codes.Canceled, "stream cancelled")
}

// spectatorServer lets the hand written ServiceDesc type-check its implementation.
type spectatorServer interface {
	WatchSnapshots(*wrapperspb.StringValue, grpc.ServerStream) error
	WatchEvents(*wrapperspb.StringValue, grpc.ServerStream) error
}

func watchSnapshotsHandler(srv any, stream grpc.ServerStream) error {
	req := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(spectatorServer).WatchSnapshots(req, stream)
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	req := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(spectatorServer).WatchEvents(req, stream)
}

// ServiceDesc describes the spectator service using well-known wrapper messages, so no generated
// code is required on either side.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*spectatorServer)(nil),
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchSnapshots", Handler: watchSnapshotsHandler, ServerStreams: true},
		{StreamName: "WatchEvents", Handler: watchEventsHandler, ServerStreams: true},
	},
	Metadata: "snakeroyale/arena/v1/spectator.proto",
}

// Register attaches the service to server.
func Register(server *grpc.Server, service *Service) {
	server.RegisterService(&ServiceDesc, service)
}

var _ spectatorServer = (*Service)(nil)
