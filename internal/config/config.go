package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"snakeroyale/server/internal/arena"
)

const (
	// DefaultAddr is the HTTP and WebSocket listen address.
	DefaultAddr = ":3000"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 64 << 10
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 256

	DefaultAdminWindow = time.Minute
	DefaultAdminBurst  = 10

	DefaultWidth             = 800.0
	DefaultHeight            = 600.0
	DefaultWallMargin        = 15.0
	DefaultTickHz            = 60.0
	DefaultBroadcastInterval = 40 * time.Millisecond
	DefaultAIInterval        = 100 * time.Millisecond
	DefaultFoodCap           = 5
	DefaultRespawnCooldown   = 10 * time.Second
	DefaultRestartDelay      = 3 * time.Second
	DefaultInputMinInterval  = 10 * time.Millisecond

	DefaultLogLevel      = "info"
	DefaultLogPath       = "arena.log"
	DefaultLogMaxSizeMB  = 100
	DefaultLogMaxBackups = 10
	DefaultLogMaxAgeDays = 7
	DefaultLogCompress   = true
)

// Config captures every runtime tunable of the arena server.
type Config struct {
	Address         string
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int
	TLSCertPath     string
	TLSKeyPath      string
	AdminToken      string
	AdminSecret     string
	AdminWindow     time.Duration
	AdminBurst      int
	GRPCAddr        string
	GRPCSecret      string
	StaticDir       string
	Version         string
	Region          string
	Game            GameConfig
	Logging         LoggingConfig
}

// GameConfig holds the simulation knobs exposed to operators.
type GameConfig struct {
	Width             float64
	Height            float64
	WallMargin        float64
	TickHz            float64
	BroadcastInterval time.Duration
	AIInterval        time.Duration
	FoodCap           int
	RespawnCooldown   time.Duration
	RestartDelay      time.Duration
	InputMinInterval  time.Duration
}

// Arena returns the playfield described by the game settings.
func (g GameConfig) Arena() arena.Arena {
	return arena.Arena{Width: g.Width, Height: g.Height, WallMargin: g.WallMargin}
}

// LoggingConfig captures structured logging options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// LoadDotEnv loads KEY=value files into the environment without overriding variables that are
// already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads the configuration from ARENA_* environment variables. Every invalid override is
// reported in the returned error.
func Load() (*Config, error) {
	cfg := &Config{
		Address:        getString("ARENA_ADDR", DefaultAddr),
		AllowedOrigins: parseList(os.Getenv("ARENA_ALLOWED_ORIGINS")),
		TLSCertPath:    strings.TrimSpace(os.Getenv("ARENA_TLS_CERT")),
		TLSKeyPath:     strings.TrimSpace(os.Getenv("ARENA_TLS_KEY")),
		AdminToken:     strings.TrimSpace(os.Getenv("ARENA_ADMIN_TOKEN")),
		AdminSecret:    strings.TrimSpace(os.Getenv("ARENA_ADMIN_SECRET")),
		GRPCAddr:       strings.TrimSpace(os.Getenv("ARENA_GRPC_ADDR")),
		GRPCSecret:     strings.TrimSpace(os.Getenv("ARENA_GRPC_SECRET")),
		StaticDir:      strings.TrimSpace(os.Getenv("ARENA_STATIC_DIR")),
		Version:        resolveVersion(),
		Region:         getString("ARENA_REGION", "local"),
		Logging: LoggingConfig{
			Level: getString("ARENA_LOG_LEVEL", DefaultLogLevel),
			Path:  getString("ARENA_LOG_PATH", DefaultLogPath),
		},
	}

	var p parser
	cfg.MaxPayloadBytes = int64(p.intValue("ARENA_MAX_PAYLOAD_BYTES", int(DefaultMaxPayloadBytes), 1))
	cfg.PingInterval = p.duration("ARENA_PING_INTERVAL", DefaultPingInterval)
	cfg.MaxClients = p.intValue("ARENA_MAX_CLIENTS", DefaultMaxClients, 0)
	cfg.AdminWindow = p.duration("ARENA_ADMIN_WINDOW", DefaultAdminWindow)
	cfg.AdminBurst = p.intValue("ARENA_ADMIN_BURST", DefaultAdminBurst, 1)

	cfg.Game = GameConfig{
		Width:             p.float("ARENA_WIDTH", DefaultWidth),
		Height:            p.float("ARENA_HEIGHT", DefaultHeight),
		WallMargin:        p.float("ARENA_WALL_MARGIN", DefaultWallMargin),
		TickHz:            p.float("ARENA_TICK_HZ", DefaultTickHz),
		BroadcastInterval: p.duration("ARENA_BROADCAST_INTERVAL", DefaultBroadcastInterval),
		AIInterval:        p.duration("ARENA_AI_INTERVAL", DefaultAIInterval),
		FoodCap:           p.intValue("ARENA_FOOD_CAP", DefaultFoodCap, 0),
		RespawnCooldown:   p.duration("ARENA_RESPAWN_COOLDOWN", DefaultRespawnCooldown),
		RestartDelay:      p.duration("ARENA_RESTART_DELAY", DefaultRestartDelay),
		InputMinInterval:  p.duration("ARENA_INPUT_MIN_INTERVAL", DefaultInputMinInterval),
	}

	cfg.Logging.MaxSizeMB = p.intValue("ARENA_LOG_MAX_SIZE_MB", DefaultLogMaxSizeMB, 1)
	cfg.Logging.MaxBackups = p.intValue("ARENA_LOG_MAX_BACKUPS", DefaultLogMaxBackups, 0)
	cfg.Logging.MaxAgeDays = p.intValue("ARENA_LOG_MAX_AGE_DAYS", DefaultLogMaxAgeDays, 0)
	cfg.Logging.Compress = p.boolean("ARENA_LOG_COMPRESS", DefaultLogCompress)

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		p.fail("ARENA_TLS_CERT and ARENA_TLS_KEY must be provided together")
	}
	if err := cfg.Game.Arena().Validate(); err != nil {
		p.fail(fmt.Sprintf("ARENA_WIDTH/ARENA_HEIGHT/ARENA_WALL_MARGIN: %v", err))
	}
	if cfg.Game.TickHz <= 0 {
		p.fail(fmt.Sprintf("ARENA_TICK_HZ must be positive, got %v", cfg.Game.TickHz))
	}

	if len(p.problems) > 0 {
		return nil, errors.New(strings.Join(p.problems, "; "))
	}
	return cfg, nil
}

// parser accumulates problems so a single Load reports every bad override at once.
type parser struct {
	problems []string
}

func (p *parser) fail(problem string) { p.problems = append(p.problems, problem) }

func (p *parser) intValue(key string, fallback, minimum int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < minimum {
		if minimum > 0 {
			p.fail(fmt.Sprintf("%s must be a positive integer, got %q", key, raw))
		} else {
			p.fail(fmt.Sprintf("%s must be a non-negative integer, got %q", key, raw))
		}
		return fallback
	}
	return value
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(fmt.Sprintf("%s must be a number, got %q", key, raw))
		return fallback
	}
	return value
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		p.fail(fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return fallback
	}
	return value
}

func (p *parser) boolean(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(fmt.Sprintf("%s must be a boolean value, got %q", key, raw))
		return fallback
	}
	return value
}

// resolveVersion prefers ARENA_VERSION, then the short commit from CI, then "dev".
func resolveVersion() string {
	if version := strings.TrimSpace(os.Getenv("ARENA_VERSION")); version != "" {
		return version
	}
	if sha := strings.TrimSpace(os.Getenv("GITHUB_SHA")); sha != "" {
		if len(sha) > 7 {
			sha = sha[:7]
		}
		return sha
	}
	return "dev"
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	if len(values) == 0 {
		return nil
	}
	return values
}
