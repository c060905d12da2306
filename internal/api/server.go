package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"lounge/internal/players"
	"lounge/internal/websocket"
)

// Server is the HTTP surface around the WebSocket core: the /ws endpoint
// plus health, stats, and Prometheus metrics.
type Server struct {
	sessions *websocket.Registry
	players  *players.Registry
	started  time.Time
	logger   zerolog.Logger
}

func NewServer(sessions *websocket.Registry, reg *players.Registry, logger zerolog.Logger) *Server {
	return &Server{
		sessions: sessions,
		players:  reg,
		started:  time.Now(),
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Router assembles the chi router with the WebSocket handler mounted at /ws.
func (s *Server) Router(wsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)

	// Browser clients connect from arbitrary origins.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/ws", wsHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions":       s.sessions.Count(),
		"players":        s.players.Count(),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs completed HTTP requests. WebSocket upgrades are logged
// by the transport itself, so /ws is skipped here.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ws" {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("remote_addr", r.RemoteAddr).
					Msg("request completed")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
