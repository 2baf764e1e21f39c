package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var arenaKeys = []string{
	"ARENA_ADDR", "ARENA_ALLOWED_ORIGINS", "ARENA_MAX_PAYLOAD_BYTES", "ARENA_PING_INTERVAL",
	"ARENA_MAX_CLIENTS", "ARENA_TLS_CERT", "ARENA_TLS_KEY", "ARENA_ADMIN_TOKEN", "ARENA_ADMIN_SECRET",
	"ARENA_ADMIN_WINDOW", "ARENA_ADMIN_BURST", "ARENA_GRPC_ADDR", "ARENA_GRPC_SECRET", "ARENA_STATIC_DIR",
	"ARENA_VERSION", "GITHUB_SHA", "ARENA_REGION", "ARENA_WIDTH", "ARENA_HEIGHT", "ARENA_WALL_MARGIN",
	"ARENA_TICK_HZ", "ARENA_BROADCAST_INTERVAL", "ARENA_AI_INTERVAL", "ARENA_FOOD_CAP",
	"ARENA_RESPAWN_COOLDOWN", "ARENA_RESTART_DELAY", "ARENA_INPUT_MIN_INTERVAL", "ARENA_LOG_LEVEL",
	"ARENA_LOG_PATH", "ARENA_LOG_MAX_SIZE_MB", "ARENA_LOG_MAX_BACKUPS", "ARENA_LOG_MAX_AGE_DAYS",
	"ARENA_LOG_COMPRESS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range arenaKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Address != DefaultAddr {
		t.Fatalf("expected default addr %q, got %q", DefaultAddr, cfg.Address)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("expected no allowed origins, got %#v", cfg.AllowedOrigins)
	}
	if cfg.MaxPayloadBytes != DefaultMaxPayloadBytes {
		t.Fatalf("expected default max payload %d, got %d", DefaultMaxPayloadBytes, cfg.MaxPayloadBytes)
	}
	if cfg.Game.Arena().Width != 800 || cfg.Game.Arena().Height != 600 || cfg.Game.WallMargin != 15 {
		t.Fatalf("expected 800x600 arena with margin 15, got %+v", cfg.Game)
	}
	if cfg.Game.TickHz != 60 || cfg.Game.BroadcastInterval != 40*time.Millisecond {
		t.Fatalf("unexpected tick settings %+v", cfg.Game)
	}
	if cfg.Game.RespawnCooldown != 10*time.Second || cfg.Game.RestartDelay != 3*time.Second {
		t.Fatalf("unexpected round timing %+v", cfg.Game)
	}
	if cfg.Version != "dev" {
		t.Fatalf("expected dev version, got %q", cfg.Version)
	}
	if cfg.GRPCAddr != "" {
		t.Fatalf("expected gRPC disabled by default, got %q", cfg.GRPCAddr)
	}
	if cfg.Logging.Path != DefaultLogPath || !cfg.Logging.Compress {
		t.Fatalf("unexpected logging defaults %+v", cfg.Logging)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARENA_ADDR", "127.0.0.1:9000")
	t.Setenv("ARENA_ALLOWED_ORIGINS", "https://example.com, https://demo.local")
	t.Setenv("ARENA_PING_INTERVAL", "45s")
	t.Setenv("ARENA_MAX_CLIENTS", "12")
	t.Setenv("ARENA_WIDTH", "1200")
	t.Setenv("ARENA_HEIGHT", "900")
	t.Setenv("ARENA_FOOD_CAP", "9")
	t.Setenv("ARENA_TICK_HZ", "30")
	t.Setenv("ARENA_GRPC_ADDR", ":50051")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Address != "127.0.0.1:9000" {
		t.Fatalf("unexpected address: %q", cfg.Address)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://demo.local" {
		t.Fatalf("unexpected allowed origins: %#v", cfg.AllowedOrigins)
	}
	if cfg.PingInterval != 45*time.Second || cfg.MaxClients != 12 {
		t.Fatalf("unexpected socket settings ping=%v clients=%d", cfg.PingInterval, cfg.MaxClients)
	}
	if cfg.Game.Width != 1200 || cfg.Game.Height != 900 || cfg.Game.FoodCap != 9 || cfg.Game.TickHz != 30 {
		t.Fatalf("unexpected game overrides %+v", cfg.Game)
	}
	if cfg.GRPCAddr != ":50051" {
		t.Fatalf("expected gRPC addr override, got %q", cfg.GRPCAddr)
	}
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARENA_MAX_PAYLOAD_BYTES", "-5")
	t.Setenv("ARENA_PING_INTERVAL", "abc")
	t.Setenv("ARENA_MAX_CLIENTS", "-1")
	t.Setenv("ARENA_TLS_CERT", "/tmp/cert.pem")
	t.Setenv("ARENA_LOG_COMPRESS", "sometimes")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error from invalid configuration, got nil")
	}
	for _, want := range []string{
		"ARENA_MAX_PAYLOAD_BYTES",
		"ARENA_PING_INTERVAL",
		"ARENA_MAX_CLIENTS",
		"ARENA_TLS_CERT",
		"ARENA_LOG_COMPRESS",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %q", want, err.Error())
		}
	}
}

func TestLoadRejectsMarginBeyondHalfArena(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARENA_WIDTH", "100")
	t.Setenv("ARENA_HEIGHT", "40")
	t.Setenv("ARENA_WALL_MARGIN", "20")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "invalid arena") {
		t.Fatalf("expected invalid arena error, got %v", err)
	}
}

func TestLoadAllowsUnlimitedClients(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARENA_MAX_CLIENTS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.MaxClients != 0 {
		t.Fatalf("expected zero to disable limit, got %d", cfg.MaxClients)
	}
}

func TestLoadIgnoresEmptyAllowedOrigins(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARENA_ALLOWED_ORIGINS", " , ,https://ok.example, ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://ok.example" {
		t.Fatalf("expected single cleaned origin, got %#v", cfg.AllowedOrigins)
	}
}

func TestVersionFallsBackToCommit(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_SHA", "0123456789abcdef")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Version != "0123456" {
		t.Fatalf("expected short sha, got %q", cfg.Version)
	}

	t.Setenv("ARENA_VERSION", "1.4.0")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Version != "1.4.0" {
		t.Fatalf("expected explicit version, got %q", cfg.Version)
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("ARENA_REGION=eu-west\nARENA_ADDR=:4000\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ARENA_ADDR", ":5000")
	// godotenv only fills unset variables, so drop the empty region set by clearEnv.
	os.Unsetenv("ARENA_REGION")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Region != "eu-west" {
		t.Fatalf("expected region from env file, got %q", cfg.Region)
	}
	if cfg.Address != ":5000" {
		t.Fatalf("expected process env to win, got %q", cfg.Address)
	}
}
