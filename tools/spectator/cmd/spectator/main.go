package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"snakeroyale/server/tools/spectator"
)

// source is either the WebSocket spectator session or the gRPC stream pair.
type source interface {
	Run(ctx context.Context, updates chan<- spectator.Update) error
	Close() error
}

func main() {
	url := flag.String("url", "ws://localhost:3000/ws", "Arena WebSocket endpoint")
	grpcAddr := flag.String("grpc", "", "Spectator gRPC address; overrides -url when set")
	secret := flag.String("secret", os.Getenv("ARENA_GRPC_SECRET"), "Shared secret for the gRPC stream")
	useTLS := flag.Bool("tls", false, "Use TLS for the gRPC connection")
	subscriber := flag.String("subscriber", fmt.Sprintf("spectator-%d", os.Getpid()), "Event log subscriber id")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		client source
		err    error
	)
	if *grpcAddr != "" {
		client, err = spectator.DialGRPC(*grpcAddr, spectator.GRPCOptions{Subscriber: *subscriber, Secret: *secret, TLS: *useTLS})
	} else {
		client, err = spectator.Dial(ctx, *url, nil)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer client.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintln(os.Stderr, "screen:", err)
		os.Exit(2)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "screen init:", err)
		os.Exit(2)
	}

	runErr := run(ctx, stop, screen, client)
	screen.Fini()
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		os.Exit(3)
	}
}

func run(ctx context.Context, stop context.CancelFunc, screen tcell.Screen, client source) error {
	renderer := spectator.NewRenderer(screen)
	renderer.Draw()
	updates := make(chan spectator.Update, 1)

	//1.- Keyboard and resize events arrive on their own goroutine.
	go func() {
		for {
			ev := screen.PollEvent()
			switch ev := ev.(type) {
			case nil:
				return
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					stop()
					return
				}
			case *tcell.EventResize:
				screen.Sync()
				select {
				case updates <- spectator.Update{}:
				default:
				}
			}
		}
	}()

	errs := make(chan error, 1)
	go func() { errs <- client.Run(ctx, updates) }()

	for {
		select {
		case update := <-updates:
			renderer.Apply(update)
		case err := <-errs:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}
