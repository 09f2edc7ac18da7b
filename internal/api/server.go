package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/botpanel/botpanel/internal/config"
	"github.com/botpanel/botpanel/internal/metrics"
	"github.com/botpanel/botpanel/internal/notify"
	"github.com/botpanel/botpanel/internal/poller"
	"github.com/botpanel/botpanel/internal/view"
)

// Server serves the dashboard, its JSON API and metrics.
type Server struct {
	poller     *poller.Poller
	feed       *notify.Feed
	metrics    *metrics.Collector
	httpServer *http.Server
	startTime  time.Time
	listenCfg  config.ListenConfig

	cfgMu sync.RWMutex
	cfg   config.Config
}

// NewServer creates a new API server. m may be nil.
func NewServer(p *poller.Poller, feed *notify.Feed, m *metrics.Collector, cfg *config.Config) *Server {
	return &Server{
		poller:    p,
		feed:      feed,
		metrics:   m,
		startTime: time.Now(),
		listenCfg: cfg.Listen,
		cfg:       *cfg,
	}
}

// SetConfig replaces the configuration reported by /config. Listen settings
// only take effect on restart.
func (s *Server) SetConfig(cfg *config.Config) {
	s.cfgMu.Lock()
	s.cfg = *cfg
	s.cfgMu.Unlock()
}

// authMiddleware returns a middleware that checks for a valid API key.
// Unauthenticated routes (health, ready, metrics) are excluded.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/ready" || path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := s.listenCfg.APIKey
		if apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Browsers opening the dashboard can't set headers, so the page
		// itself also accepts ?key=.
		if (path == "/" || path == "/dashboard") && keyMatches(r.URL.Query().Get("key"), apiKey) {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") || !keyMatches(strings.TrimPrefix(auth, "Bearer "), apiKey) {
			writeError(w, http.StatusUnauthorized, "unauthorized: invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	// Dashboard data
	r.HandleFunc("/api/view", s.viewHandler).Methods("GET")
	r.HandleFunc("/api/state", s.stateHandler).Methods("GET")
	r.HandleFunc("/api/notifications", s.notificationsHandler).Methods("GET")

	// Session
	r.HandleFunc("/api/session/toggle", s.toggleHandler).Methods("POST")

	// Server status & config
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/config", s.configHandler).Methods("GET")

	// Health & readiness
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")

	// Prometheus metrics
	if s.metrics != nil && s.metrics.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.HandleFunc("/", s.dashboardHandler).Methods("GET")
	r.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")

	return r
}

// Handler returns the full handler chain: security headers, auth, routes.
func (s *Server) Handler() http.Handler {
	return s.securityHeaders(s.authMiddleware(s.routes()))
}

// Start starts the HTTP server in the background.
func (s *Server) Start(port int) error {
	bind := s.listenCfg.APIBind
	if bind == "" {
		bind = "127.0.0.1"
	}
	addr := fmt.Sprintf("%s:%d", bind, port)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// A toggle makes up to three sequential backend calls.
		WriteTimeout: 45 * time.Second,
	}

	if s.listenCfg.APIKey == "" {
		slog.Warn("API key not configured, dashboard and session toggle are unauthenticated")
	}

	tls := s.listenCfg.TLSEnabled()
	slog.Info("dashboard listening", "addr", addr, "tls", tls)

	go func() {
		var err error
		if tls {
			err = s.httpServer.ListenAndServeTLS(s.listenCfg.TLSCert, s.listenCfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "err", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// --- Dashboard Handlers ---

func (s *Server) viewHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.Render(s.poller.State()))
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.poller.State())
}

type notificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
	LastSeq       uint64                `json:"last_seq"`
}

func (s *Server) notificationsHandler(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = n
	}

	items := s.feed.Since(after)
	if items == nil {
		items = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, notificationsResponse{
		Notifications: items,
		LastSeq:       s.feed.LastSeq(),
	})
}

type toggleResponse struct {
	Action poller.Action `json:"action,omitempty"`
	Error  string        `json:"error,omitempty"`
	View   view.View     `json:"view"`
}

func (s *Server) toggleHandler(w http.ResponseWriter, r *http.Request) {
	action, err := s.poller.Toggle(r.Context())

	resp := toggleResponse{Action: action, View: view.Render(s.poller.State())}
	switch {
	case errors.Is(err, poller.ErrToggleInProgress):
		resp.Error = err.Error()
		writeJSON(w, http.StatusConflict, resp)
	case err != nil:
		resp.Error = "backend request failed: " + err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// --- Health Handlers ---

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	allHealthy := s.poller.OverallHealthy()

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"status":    boolToStatus(allHealthy),
		"endpoints": s.poller.AllEndpointStatuses(),
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.poller.Ready() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

// --- Status & Config Handlers ---

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := s.poller.State()
	s.cfgMu.RLock()
	origin := s.cfg.Backend.Origin
	s.cfgMu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
		"backend":        origin,
		"poll_interval":  s.poller.Interval().String(),
		"bot_status":     st.Status,
		"user_count":     st.UserCount,
		"has_qr":         st.HasQR,
		"last_poll":      st.LastPoll,
	})
}

func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	s.cfgMu.RLock()
	cfg := s.cfg.Redacted()
	s.cfgMu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"listen": map[string]interface{}{
			"api_port": cfg.Listen.APIPort,
			"api_bind": cfg.Listen.APIBind,
			"api_key":  cfg.Listen.APIKey,
			"tls":      cfg.Listen.TLSEnabled(),
		},
		"backend": map[string]interface{}{
			"origin":          cfg.Backend.Origin,
			"request_timeout": cfg.Backend.RequestTimeout.String(),
		},
		"poll": map[string]interface{}{
			"interval":          cfg.Poll.Interval.String(),
			"failure_threshold": cfg.Poll.FailureThreshold,
		},
		"store": map[string]interface{}{
			"driver":         cfg.Store.Driver,
			"path":           cfg.Store.Path,
			"redis_addr":     cfg.Store.RedisAddr,
			"redis_password": cfg.Store.RedisPass,
			"redis_db":       cfg.Store.RedisDB,
			"key":            cfg.Store.Key,
		},
		"log": map[string]string{
			"level":  cfg.Log.Level,
			"format": cfg.Log.Format,
		},
	})
}

// securityHeaders adds security-related HTTP headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func keyMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}
