package httpapi

import (
	"net/http"
	"os"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"snakeroyale/server/internal/logging"
)

// RouterConfig describes the extra routes mounted next to the ops handlers.
type RouterConfig struct {
	// WebSocket serves the gameplay upgrade endpoint at /ws when set.
	WebSocket http.Handler
	// StaticDir is served at / when it names an existing directory.
	StaticDir string
}

// NewRouter mounts the operational, admin and client routes on a chi router.
func (h *HandlerSet) NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logging.HTTPTraceMiddleware(h.logger))

	r.Get("/health", h.HealthHandler())
	r.Get("/api/version", h.VersionHandler())
	r.Get("/api/controls", h.ControlsHandler())
	r.Get("/livez", h.LivenessHandler())
	r.Get("/readyz", h.ReadinessHandler())
	r.Get("/metrics", h.MetricsHandler())
	r.Post("/admin/{action}", h.AdminHandler())

	if cfg.WebSocket != nil {
		r.Handle("/ws", cfg.WebSocket)
	}
	if cfg.StaticDir != "" {
		if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
		} else {
			h.logger.Warn("static directory unavailable", logging.String("path", cfg.StaticDir))
		}
	}
	return r
}
