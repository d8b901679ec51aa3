package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"code-runner/internal/config"
	"code-runner/internal/monitor"
)

// Pinger reports backend connectivity for the health endpoint.
type Pinger interface {
	Healthy(ctx context.Context) bool
}

// Server is the HTTP server for the submission API.
type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	db         Pinger
	queue      Pinger
	startTime  time.Time
}

// NewServer creates and configures the HTTP server with all routes and middleware.
func NewServer(cfg *config.Config, handlers *Handlers, db, q Pinger, metrics *monitor.Metrics) *Server {
	s := &Server{
		cfg:       cfg,
		db:        db,
		queue:     q,
		startTime: time.Now(),
	}

	if len(cfg.Security.AllowedKeys) == 0 {
		log.Warn().Msg("no API keys configured — all requests will be accepted")
	}

	// Submission API — wrapped with auth
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/code-sessions", handlers.HandleCreateSession)
	apiMux.HandleFunc("POST /api/code-sessions/{sessionId}/run", handlers.HandleRunCode)
	apiMux.HandleFunc("GET /api/code-sessions/{sessionId}/executions", handlers.HandleListSessionExecutions)
	apiMux.HandleFunc("GET /api/executions/{executionId}", handlers.HandleGetExecution)

	authedAPI := AuthMiddleware(cfg.Security.AllowedKeys)(apiMux)

	// Top-level mux: health/metrics bypass auth, everything else goes through auth
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", authedAPI)

	// Apply middleware chain (outermost first)
	var handler http.Handler = mux
	handler = MetricsMiddleware(metrics)(handler)
	handler = RateLimitMiddleware(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)(handler)
	handler = MaxBodyMiddleware(cfg.Server.MaxRequestBody)(handler)
	handler = CORSMiddleware(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start begins listening for requests.
func (s *Server) Start() error {
	log.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db == nil || s.db.Healthy(r.Context())
	queueOK := s.queue == nil || s.queue.Healthy(r.Context())

	resp := HealthResponse{
		Status:   "ok",
		Database: dbOK,
		Queue:    queueOK,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
	}

	status := http.StatusOK
	if !dbOK || !queueOK {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
