package spectator

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"snakeroyale/server/internal/events"
	grpcstream "snakeroyale/server/internal/grpc"
)

// GRPCSource follows the spectator gRPC service: compressed snapshots plus the
// acknowledged lifecycle event log.
type GRPCSource struct {
	conn       grpc.ClientConnInterface
	closer     func() error
	subscriber string
	secret     string
	encoding   string
}

// GRPCOptions configures DialGRPC.
type GRPCOptions struct {
	// Subscriber identifies the event log cursor; reconnecting with the same id replays unacked events.
	Subscriber string
	Secret     string
	TLS        bool
	// Encoding selects the snapshot compression, zstd when empty.
	Encoding string
}

// DialGRPC prepares a client for the spectator service at addr.
func DialGRPC(addr string, opts GRPCOptions) (*GRPCSource, error) {
	creds := insecure.NewCredentials()
	if opts.TLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	source := NewGRPCSource(conn, opts)
	source.closer = conn.Close
	return source, nil
}

// NewGRPCSource wraps an existing connection.
func NewGRPCSource(conn grpc.ClientConnInterface, opts GRPCOptions) *GRPCSource {
	encoding := opts.Encoding
	if encoding == "" {
		encoding = grpcstream.EncodingZstd
	}
	subscriber := opts.Subscriber
	if subscriber == "" {
		subscriber = "terminal-spectator"
	}
	return &GRPCSource{conn: conn, subscriber: subscriber, secret: opts.Secret, encoding: encoding}
}

// Run forwards snapshots and lifecycle notices until ctx ends or either stream fails.
func (s *GRPCSource) Run(ctx context.Context, updates chan<- Update) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.secret != "" {
		streamCtx = metadata.AppendToOutgoingContext(streamCtx, grpcstream.SharedSecretHeader, s.secret)
	}

	snapshots, err := grpcstream.WatchSnapshots(streamCtx, s.conn, s.encoding)
	if err != nil {
		return fmt.Errorf("watch snapshots: %w", err)
	}
	lifecycle, err := grpcstream.WatchEvents(streamCtx, s.conn, s.subscriber)
	if err != nil {
		return fmt.Errorf("watch events: %w", err)
	}

	errs := make(chan error, 2)
	go func() { errs <- pumpSnapshots(streamCtx, snapshots, updates) }()
	go func() { errs <- pumpEvents(streamCtx, lifecycle, updates) }()

	//1.- The first stream to end takes the other one down with it.
	err = <-errs
	cancel()
	<-errs
	if ctx.Err() != nil || status.Code(err) == codes.Canceled {
		return nil
	}
	return err
}

// Close releases the connection when DialGRPC created it.
func (s *GRPCSource) Close() error {
	if s == nil || s.closer == nil {
		return errors.New("grpc source not dialled")
	}
	return s.closer()
}

func pumpSnapshots(ctx context.Context, stream *grpcstream.SnapshotStream, updates chan<- Update) error {
	for {
		payload, err := stream.Recv()
		if err != nil {
			return err
		}
		update, ok, err := DecodeFrame(payload)
		if err != nil {
			return err
		}
		if ok && !forward(ctx, updates, update) {
			return nil
		}
	}
}

func pumpEvents(ctx context.Context, stream *grpcstream.EventStream, updates chan<- Update) error {
	for {
		env, err := stream.Recv()
		if err != nil {
			return err
		}
		update, ok, err := DecodeEvent(env)
		if err != nil {
			return err
		}
		if ok && !forward(ctx, updates, update) {
			return nil
		}
	}
}

// DecodeEvent maps a lifecycle log entry onto the same notices as the WebSocket frames.
func DecodeEvent(env *events.Envelope) (Update, bool, error) {
	if env == nil {
		return Update{}, false, nil
	}
	//1.- Event kinds and payloads mirror the gateway frame types.
	data, err := json.Marshal(frame{Type: string(env.Kind), Payload: env.Payload})
	if err != nil {
		return Update{}, false, err
	}
	return DecodeFrame(data)
}
