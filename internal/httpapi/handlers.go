package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"

	"snakeroyale/server/internal/auth"
	"snakeroyale/server/internal/logging"
	"snakeroyale/server/internal/networking"
	"snakeroyale/server/internal/simulation"
)

// ArenaStatus exposes the read-only engine telemetry.
type ArenaStatus interface {
	Telemetry() simulation.Telemetry
	TickMetrics() simulation.TickMetricsSnapshot
}

// ClientCounter reports connected gateway sessions.
type ClientCounter interface {
	ClientCounts() (players, spectators int)
}

// AdminExecutor applies operator commands.
type AdminExecutor interface {
	Admin(ctx context.Context, action simulation.AdminAction) error
}

// RateLimiter gates how frequently a caller may invoke sensitive operations.
type RateLimiter interface {
	Allow(key string) (bool, time.Duration)
}

// BuildInfo is reported by /api/version.
type BuildInfo struct {
	Version string
	Region  string
}

// Options configures the HandlerSet.
type Options struct {
	Logger       *logging.Logger
	Arena        ArenaStatus
	Clients      ClientCounter
	Admin        AdminExecutor
	Authorizer   *auth.AdminAuthorizer
	RateLimiter  RateLimiter
	Snapshots    *networking.SnapshotMetrics
	Bandwidth    *networking.BandwidthRegulator
	Build        BuildInfo
	StartupError func() error
	TimeSource   func() time.Time
	StartedAt    time.Time
}

// HandlerSet bundles the operational and admin handlers.
type HandlerSet struct {
	logger       *logging.Logger
	arena        ArenaStatus
	clients      ClientCounter
	admin        AdminExecutor
	authorizer   *auth.AdminAuthorizer
	rateLimiter  RateLimiter
	snapshots    *networking.SnapshotMetrics
	bandwidth    *networking.BandwidthRegulator
	build        BuildInfo
	startupError func() error
	now          func() time.Time
	startedAt    time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	startedAt := opts.StartedAt
	if startedAt.IsZero() {
		startedAt = now()
	}
	if opts.Build.Version == "" {
		opts.Build.Version = "dev"
	}
	return &HandlerSet{
		logger:       logger.With(logging.Component("httpapi")),
		arena:        opts.Arena,
		clients:      opts.Clients,
		admin:        opts.Admin,
		authorizer:   opts.Authorizer,
		rateLimiter:  opts.RateLimiter,
		snapshots:    opts.Snapshots,
		bandwidth:    opts.Bandwidth,
		build:        opts.Build,
		startupError: opts.StartupError,
		now:          now,
		startedAt:    startedAt,
	}
}

func (h *HandlerSet) uptime() time.Duration {
	return h.now().Sub(h.startedAt)
}

func (h *HandlerSet) telemetry() simulation.Telemetry {
	if h.arena == nil {
		return simulation.Telemetry{}
	}
	return h.arena.Telemetry()
}

func (h *HandlerSet) clientCounts() (players, spectators int) {
	if h.clients == nil {
		return 0, 0
	}
	return h.clients.ClientCounts()
}

// HealthHandler reports population and round status.
func (h *HandlerSet) HealthHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Players       int     `json:"players"`
		Bots          int     `json:"bots"`
		Spectators    int     `json:"spectators"`
		Round         int     `json:"round"`
		GameStatus    string  `json:"game_status"`
		Paused        bool    `json:"paused"`
		Keynote       bool    `json:"keynote"`
		UptimeSeconds float64 `json:"uptime_seconds"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		tel := h.telemetry()
		_, spectators := h.clientCounts()
		writeJSON(w, http.StatusOK, response{
			Status:        "healthy",
			Players:       tel.Humans,
			Bots:          tel.Bots,
			Spectators:    spectators,
			Round:         tel.Round,
			GameStatus:    string(tel.Status),
			Paused:        tel.Paused,
			Keynote:       tel.Keynote,
			UptimeSeconds: h.uptime().Seconds(),
		})
	}
}

// VersionHandler reports the build version and deployment region.
func (h *HandlerSet) VersionHandler() http.HandlerFunc {
	type response struct {
		Version   string `json:"version"`
		Timestamp string `json:"timestamp"`
		Region    string `json:"region"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Version:   h.build.Version,
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
			Region:    h.build.Region,
		})
	}
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports readiness, including client counts and startup status.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Players       int     `json:"players"`
		Spectators    int     `json:"spectators"`
		Tick          uint64  `json:"tick"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		players, spectators := h.clientCounts()
		resp := response{
			Status:        "ok",
			UptimeSeconds: h.uptime().Seconds(),
			Players:       players,
			Spectators:    spectators,
			Tick:          h.telemetry().Tick,
		}
		if h.startupError != nil {
			if err := h.startupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tel := h.telemetry()
		players, spectators := h.clientCounts()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		gauge(w, "arena_uptime_seconds", "Server uptime in seconds.", fmt.Sprintf("%.0f", h.uptime().Seconds()))
		gauge(w, "arena_clients", "Connected player sessions.", strconv.Itoa(players))
		gauge(w, "arena_spectators", "Connected spectator sessions.", strconv.Itoa(spectators))
		fmt.Fprintf(w, "# HELP arena_entities Entities in the store by kind.\n")
		fmt.Fprintf(w, "# TYPE arena_entities gauge\n")
		fmt.Fprintf(w, "arena_entities{kind=\"human\"} %d\n", tel.Humans)
		fmt.Fprintf(w, "arena_entities{kind=\"bot\"} %d\n", tel.Bots)
		gauge(w, "arena_entities_alive", "Entities currently alive.", strconv.Itoa(tel.Alive))
		gauge(w, "arena_food", "Food items on the board.", strconv.Itoa(tel.Food))
		gauge(w, "arena_round", "Current round number.", strconv.Itoa(tel.Round))
		counter(w, "arena_ticks_total", "Simulation steps executed.", strconv.FormatUint(tel.Tick, 10))

		if h.arena != nil {
			ticks := h.arena.TickMetrics()
			gauge(w, "arena_tick_duration_avg_ms", "Average simulation step duration.", formatMillis(ticks.Average))
			gauge(w, "arena_tick_duration_max_ms", "Longest sampled simulation step.", formatMillis(ticks.Max))
			gauge(w, "arena_tick_fps", "Steps per second implied by the average duration.", fmt.Sprintf("%.2f", ticks.AverageFPS()))
			counter(w, "arena_tick_overruns_total", "Steps that exceeded the tick budget.", strconv.Itoa(ticks.Overruns))
		}
		if h.snapshots != nil {
			snap := h.snapshots.Snapshot()
			counter(w, "arena_broadcasts_total", "Snapshots broadcast to clients.", strconv.FormatInt(snap.Broadcasts, 10))
			fmt.Fprintf(w, "# HELP arena_snapshot_bytes_total Encoded snapshot bytes per codec.\n")
			fmt.Fprintf(w, "# TYPE arena_snapshot_bytes_total counter\n")
			for _, codec := range snap.Codecs() {
				fmt.Fprintf(w, "arena_snapshot_bytes_total{codec=%q} %d\n", codec, snap.BytesPerCodec[codec])
			}
			fmt.Fprintf(w, "# HELP arena_snapshot_sent_total Snapshots delivered per codec.\n")
			fmt.Fprintf(w, "# TYPE arena_snapshot_sent_total counter\n")
			for _, codec := range snap.Codecs() {
				fmt.Fprintf(w, "arena_snapshot_sent_total{codec=%q} %d\n", codec, snap.SentPerCodec[codec])
			}
			if len(snap.Drops) > 0 {
				fmt.Fprintf(w, "# HELP arena_snapshot_dropped_total Snapshots dropped per reason.\n")
				fmt.Fprintf(w, "# TYPE arena_snapshot_dropped_total counter\n")
				for _, reason := range []string{networking.DropQueueFull, networking.DropThrottled} {
					if count, ok := snap.Drops[reason]; ok {
						fmt.Fprintf(w, "arena_snapshot_dropped_total{reason=%q} %d\n", reason, count)
					}
				}
			}
		}
		if h.bandwidth != nil {
			if usage := h.bandwidth.Usage(); len(usage) > 0 {
				fmt.Fprintf(w, "# HELP arena_bandwidth_available_bytes Remaining bandwidth tokens per client.\n")
				fmt.Fprintf(w, "# TYPE arena_bandwidth_available_bytes gauge\n")
				for clientID, sample := range usage {
					fmt.Fprintf(w, "arena_bandwidth_available_bytes{client=%q} %.2f\n", clientID, sample.AvailableBytes)
				}
				fmt.Fprintf(w, "# HELP arena_bandwidth_denied_total Throttled deliveries per client.\n")
				fmt.Fprintf(w, "# TYPE arena_bandwidth_denied_total counter\n")
				for clientID, sample := range usage {
					fmt.Fprintf(w, "arena_bandwidth_denied_total{client=%q} %d\n", clientID, sample.Denied)
				}
			}
		}
	}
}

// AdminHandler authorises, rate limits and forwards an operator command.
func (h *HandlerSet) AdminHandler() http.HandlerFunc {
	type response struct {
		Status string `json:"status"`
		Action string `json:"action"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "action")
		reqLogger := h.requestLogger(r).With(
			logging.String("handler", "admin"),
			logging.String("action", raw),
			logging.String("remote_addr", r.RemoteAddr),
		)
		action, ok := simulation.ParseAdminAction(raw)
		if !ok {
			http.Error(w, "unknown admin action", http.StatusNotFound)
			return
		}
		if err := h.authorizer.Authorize(auth.CredentialFromRequest(r)); err != nil {
			reqLogger.Warn("admin command denied", logging.Error(err))
			status := http.StatusUnauthorized
			if errors.Is(err, auth.ErrForbidden) {
				status = http.StatusForbidden
			}
			http.Error(w, "unauthorized", status)
			return
		}
		if h.rateLimiter != nil {
			if allowed, wait := h.rateLimiter.Allow(clientKey(r)); !allowed {
				reqLogger.Warn("admin command denied: rate limit exceeded")
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
		}
		if h.admin == nil {
			http.Error(w, "admin commands are unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := h.admin.Admin(r.Context(), action); err != nil {
			reqLogger.Error("admin command failed", logging.Error(err))
			http.Error(w, "failed to apply admin command", http.StatusServiceUnavailable)
			return
		}
		reqLogger.Info("admin command accepted")
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Action: string(action)})
	}
}

func (h *HandlerSet) requestLogger(r *http.Request) *logging.Logger {
	if traceID := logging.TraceIDFromContext(r.Context()); traceID != "" {
		return h.logger.With(logging.String(logging.TraceIDField, traceID))
	}
	return h.logger
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func gauge(w http.ResponseWriter, name, help, value string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %s\n", name, help, name, name, value)
}

func counter(w http.ResponseWriter, name, help, value string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %s\n", name, help, name, name, value)
}

func formatMillis(d time.Duration) string {
	return fmt.Sprintf("%.3f", float64(d)/float64(time.Millisecond))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
