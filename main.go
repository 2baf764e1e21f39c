package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"snakeroyale/server/internal/auth"
	configpkg "snakeroyale/server/internal/config"
	"snakeroyale/server/internal/events"
	grpcstream "snakeroyale/server/internal/grpc"
	"snakeroyale/server/internal/httpapi"
	"snakeroyale/server/internal/input"
	"snakeroyale/server/internal/logging"
	"snakeroyale/server/internal/simulation"
)

const shutdownGrace = 5 * time.Second

func main() {
	if err := configpkg.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := configpkg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("arena server stopped", logging.Error(err))
	}
}

// engineConfig maps operator settings onto the simulation tunables.
func engineConfig(cfg *configpkg.Config) simulation.Config {
	simCfg := simulation.DefaultConfig()
	simCfg.Arena = cfg.Game.Arena()
	simCfg.Rules.FoodCap = cfg.Game.FoodCap
	simCfg.TickHz = cfg.Game.TickHz
	if cfg.Game.BroadcastInterval > 0 {
		simCfg.BroadcastInterval = cfg.Game.BroadcastInterval
	}
	if cfg.Game.AIInterval > 0 {
		simCfg.AIInterval = cfg.Game.AIInterval
	}
	if cfg.Game.RespawnCooldown > 0 {
		simCfg.RespawnCooldown = cfg.Game.RespawnCooldown
	}
	if cfg.Game.RestartDelay > 0 {
		simCfg.RestartDelay = cfg.Game.RestartDelay
	}
	return simCfg
}

// server bundles the wired runtime so tests can build it without binding sockets.
type server struct {
	hub      *Hub
	engine   *simulation.Engine
	handlers *httpapi.HandlerSet
	router   http.Handler
	stream   *events.Stream
}

func newServer(cfg *configpkg.Config, logger *logging.Logger) (*server, error) {
	//1.- Build the shared collaborators before the hub so both transports see the same event log.
	authorizer, err := auth.NewAdminAuthorizer(cfg.AdminToken, cfg.AdminSecret)
	if err != nil {
		return nil, fmt.Errorf("admin authorizer: %w", err)
	}
	if authorizer.Open() {
		logger.Warn("admin commands are not protected; set ARENA_ADMIN_TOKEN or ARENA_ADMIN_SECRET")
	}
	stream := events.NewStream(events.Config{})
	gate := input.NewGate(input.Config{MinInterval: cfg.Game.InputMinInterval}, logger.With(logging.Component("input")))

	hub := NewHub(HubConfig{
		MaxClients:      cfg.MaxClients,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		PingInterval:    cfg.PingInterval,
		AllowedOrigins:  cfg.AllowedOrigins,
	},
		WithHubLogger(logger),
		WithInputGate(gate),
		WithAdminAuthorizer(authorizer),
		WithEventStream(stream),
	)

	//2.- The engine reports to the hub, and the hub submits intents back to the engine.
	engine, err := simulation.NewEngine(engineConfig(cfg),
		simulation.WithSink(hub),
		simulation.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("simulation engine: %w", err)
	}
	hub.Bind(engine)

	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:      logger.With(logging.Component("http")),
		Arena:       engine,
		Clients:     hub,
		Admin:       engine,
		Authorizer:  authorizer,
		RateLimiter: httpapi.NewSlidingWindowLimiter(cfg.AdminWindow, cfg.AdminBurst, nil),
		Snapshots:   hub.Metrics(),
		Bandwidth:   hub.Bandwidth(),
		Build:       httpapi.BuildInfo{Version: cfg.Version, Region: cfg.Region},
	})
	router := handlers.NewRouter(httpapi.RouterConfig{WebSocket: hub, StaticDir: cfg.StaticDir})

	return &server{hub: hub, engine: engine, handlers: handlers, router: router, stream: stream}, nil
}

func run(parent context.Context, cfg *configpkg.Config, logger *logging.Logger) error {
	srv, err := newServer(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancelEngine := context.WithCancel(parent)
	defer cancelEngine()
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		srv.engine.Run(ctx)
	}()

	tlsEnabled := cfg.TLSCertPath != "" && cfg.TLSKeyPath != ""
	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 3)
	go func() {
		var serveErr error
		if tlsEnabled {
			serveErr = httpServer.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			serveErr = httpServer.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", serveErr)
		}
	}()
	logger.Info("arena server listening",
		logging.String("url", listenerURL(cfg.Address, tlsEnabled)),
		logging.String("websocket", websocketURL(cfg.Address, tlsEnabled)),
		logging.String("version", cfg.Version),
	)

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		if grpcServer, err = startGRPC(cfg, srv.hub, logger, errs); err != nil {
			errs <- err
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}

	logger.Info("shutting down arena server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", logging.Error(err))
	}
	if grpcServer != nil {
		stopGRPC(shutdownCtx, grpcServer)
	}
	srv.hub.Close()
	cancelEngine()
	<-engineDone
	return runErr
}

func startGRPC(cfg *configpkg.Config, hub *Hub, logger *logging.Logger, errs chan<- error) (*grpc.Server, error) {
	grpcLogger := logger.With(logging.Component("grpc"))
	opts, err := configureGRPCSecurity(cfg, grpcLogger)
	if err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen: %w", err)
	}
	srv := grpc.NewServer(opts...)
	grpcstream.Register(srv, grpcstream.NewService(hub, grpcstream.WithLogger(grpcLogger)))
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, healthServer)

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			errs <- fmt.Errorf("grpc server: %w", serveErr)
		}
	}()
	grpcLogger.Info("spectator stream listening", logging.String("address", normaliseHostPort(cfg.GRPCAddr)))
	return srv, nil
}

// stopGRPC drains in-flight streams until ctx expires, then closes them forcefully.
func stopGRPC(ctx context.Context, server *grpc.Server) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		server.Stop()
	}
}
