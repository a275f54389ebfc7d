package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cosmossdk.io/log"

	"github.com/openalpha/classdex/api/middleware"
	"github.com/openalpha/classdex/api/websocket"
	"github.com/openalpha/classdex/engine"
	"github.com/openalpha/classdex/metrics"
	"github.com/openalpha/classdex/session"
)

const (
	defaultTapeLimit = 50
	maxTapeLimit     = 100
)

// Server serves the WebSocket endpoint, the read-only REST views, and
// the health and metrics surfaces. All game state access goes through
// session queries, so handlers never race the matcher.
type Server struct {
	httpServer *http.Server
	config     *Config

	registry  *session.Registry
	wsHandler *websocket.Handler

	rateLimiter *middleware.RateLimiter

	logger    log.Logger
	collector *metrics.Collector
	startedAt time.Time
}

// Config contains server configuration
type Config struct {
	Host             string
	Port             int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	AllowedOrigin    string
	DisableRateLimit bool // For testing purposes
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:          "0.0.0.0",
		Port:          8080,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		AllowedOrigin: "*",
	}
}

// NewServer creates a new API server
func NewServer(config *Config, registry *session.Registry, dispatcher *session.Dispatcher, logger log.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	return &Server{
		config:      config,
		registry:    registry,
		wsHandler:   websocket.NewHandler(dispatcher, config.AllowedOrigin, logger),
		rateLimiter: middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
		logger:      logger.With("module", "api"),
		collector:   metrics.GetCollector(),
		startedAt:   time.Now(),
	}
}

// Handler returns the assembled middleware chain:
// CORS -> RateLimit -> Metrics -> mux. Start serves it; tests drive it
// through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health checks
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/health", s.handleAPIHealth)

	// Prometheus metrics
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket command surface
	mux.Handle("/ws", s.wsHandler)

	// Read-only game views
	mux.HandleFunc("/api/games/", s.handleGameRoutes)

	var handler http.Handler = s.metricsMiddleware(mux)
	if !s.config.DisableRateLimit {
		handler = middleware.RateLimitMiddleware(s.rateLimiter)(handler)
	}
	return corsMiddleware(s.config.AllowedOrigin, handler)
}

// Start starts the API server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("api server starting", "addr", addr, "origin", s.config.AllowedOrigin)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.rateLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles liveness checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true,
	})
}

// handleAPIHealth adds timing detail for dashboards
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"ts":     time.Now().UnixMilli(),
		"uptime": time.Since(s.startedAt).String(),
	})
}

// handleGameRoutes handles /api/games/{code}/* endpoints
func (s *Server) handleGameRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Parse path: /api/games/{code}/{endpoint}
	path := r.URL.Path[len("/api/games/"):]

	code := path
	endpoint := ""
	for i, c := range path {
		if c == '/' {
			code = path[:i]
			endpoint = path[i+1:]
			break
		}
	}

	sess, ok := s.registry.Lookup(code)
	if !ok {
		writeError(w, http.StatusNotFound, "Game not found")
		return
	}

	switch endpoint {
	case "markets":
		metas := sess.Query(func(g *engine.Game) any {
			return g.MarketsMeta()
		})
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"markets": metas,
		})

	case "book":
		symbol := r.URL.Query().Get("symbol")
		depth := engine.SnapshotDepth
		if d := r.URL.Query().Get("depth"); d != "" {
			fmt.Sscanf(d, "%d", &depth)
		}
		if depth < 1 || depth > engine.SnapshotDepth {
			depth = engine.SnapshotDepth
		}
		snap := sess.Query(func(g *engine.Game) any {
			m, ok := g.Market(symbol)
			if !ok {
				return nil
			}
			return m.Snapshot("", depth)
		})
		if snap == nil {
			writeError(w, http.StatusNotFound, "Market not found")
			return
		}
		writeJSON(w, http.StatusOK, snap)

	case "tape":
		symbol := r.URL.Query().Get("symbol")
		limit := defaultTapeLimit
		if l := r.URL.Query().Get("limit"); l != "" {
			fmt.Sscanf(l, "%d", &limit)
		}
		if limit < 1 {
			limit = defaultTapeLimit
		}
		if limit > maxTapeLimit {
			limit = maxTapeLimit
		}
		trades := sess.Query(func(g *engine.Game) any {
			m, ok := g.Market(symbol)
			if !ok {
				return nil
			}
			return m.Tape(limit)
		})
		if trades == nil {
			writeError(w, http.StatusNotFound, "Market not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"trades": trades,
		})

	default:
		writeError(w, http.StatusNotFound, "Endpoint not found")
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": message,
	})
}

func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the handler's response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records request counts by route pattern. The /ws
// route is passed through untouched because the recorder would hide the
// http.Hijacker the upgrade needs.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.collector.RecordAPIRequest(r.Method, routeLabel(r.URL.Path), strconv.Itoa(rec.status))
	})
}

// routeLabel collapses game codes out of the path to keep metric label
// cardinality bounded.
func routeLabel(path string) string {
	if !strings.HasPrefix(path, "/api/games/") {
		return path
	}
	rest := path[len("/api/games/"):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			switch rest[i+1:] {
			case "markets", "book", "tape":
				return "/api/games/{code}/" + rest[i+1:]
			}
			return "/api/games/{code}/other"
		}
	}
	return "/api/games/{code}"
}
