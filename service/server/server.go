package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/zviewer/service/config"
	"github.com/brojonat/zviewer/service/metrics"
	natspkg "github.com/brojonat/zviewer/service/nats"
	"github.com/brojonat/zviewer/service/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the privacy score service.
type Server struct {
	addr         string
	cfg          *config.Config
	acquirer     session.Acquirer
	sessions     *session.Registry
	history      LookupRecorder
	publisher    natspkg.Publisher
	ssePublisher *SSEPublisher
	renderer     *TemplateRenderer
	lookups      *lookupRunner
	gatherer     prometheus.Gatherer
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The acquirer computes scores; it is wrapped so every completed lookup is
// recorded by the optional history store and publisher.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, acquirer session.Acquirer, sessions *session.Registry, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		cfg:      cfg,
		acquirer: acquirer,
		sessions: sessions,
		gatherer: prometheus.DefaultGatherer,
		metrics:  m,
		logger:   logger,
	}
}

// WithHistory records every lookup in store.
func (s *Server) WithHistory(store LookupRecorder) *Server {
	s.history = store
	return s
}

// WithPublisher publishes a score event for every lookup.
func (s *Server) WithPublisher(p natspkg.Publisher) *Server {
	s.publisher = p
	return s
}

// WithSSE enables the score stream endpoints.
func (s *Server) WithSSE(p *SSEPublisher) *Server {
	s.ssePublisher = p
	return s
}

// WithGatherer serves /metrics from g instead of the default registry.
func (s *Server) WithGatherer(g prometheus.Gatherer) *Server {
	s.gatherer = g
	return s
}

// WithTemplates adds template rendering support to the server using embedded files
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Handler builds the routed handler. It is separate from Start so tests can
// drive it with httptest.
func (s *Server) Handler() http.Handler {
	acquirer := newRecordingAcquirer(s.acquirer, s.history, s.publisher, s.logger)
	if s.lookups == nil {
		s.lookups = newLookupRunner(acquirer, s.logger)
	}

	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// Page actions
	if s.renderer != nil {
		route("GET /{$}", "/", handleIndex(s.renderer, s.sessions, s.logger))
		mux.HandleFunc("GET /favicon.ico", handleFavicon())
		mux.HandleFunc("GET /favicon.svg", handleFavicon())
		s.logger.Info("HTML page endpoints enabled")
	}
	route("POST /lookup", "/lookup", handleLookup(s.sessions, s.lookups, s.logger))
	route("POST /demo", "/demo", handleDemo(s.sessions, s.logger))
	route("POST /notice/dismiss", "/notice/dismiss", handleDismissNotice(s.sessions))
	route("GET /share", "/share", handleShare(s.sessions, s.cfg, s.logger))

	// JSON API
	route("GET /api/v1/score/{address}", "/api/v1/score", handleScore(acquirer, s.cfg, s.logger))
	route("GET /api/v1/score", "/api/v1/score", handleScore(acquirer, s.cfg, s.logger))
	route("GET /api/v1/demo", "/api/v1/demo", handleDemoScore(s.cfg))
	route("GET /api/v1/session", "/api/v1/session", handleSession(s.sessions, s.cfg))

	// SSE streaming endpoints (if SSE publisher is configured)
	if s.ssePublisher != nil {
		stream := handleStreamScores(s.ssePublisher, s.metrics, s.logger)
		route("GET /api/v1/stream/scores/{address}", "/api/v1/stream/scores", stream)
		route("GET /api/v1/stream/scores", "/api/v1/stream/scores", stream)
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoints disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// Lookups may take up to LOOKUP_TIMEOUT; SSE responses are long-lived
		// and manage their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	// Abandon background lookups last so in-flight page requests can finish.
	if s.lookups != nil {
		s.lookups.Stop()
	}
	return err
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
