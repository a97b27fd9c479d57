package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/walletscope/service/metrics"
	natspkg "github.com/brojonat/walletscope/service/nats"
	"github.com/brojonat/walletscope/service/wallet"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionService is the connector surface the session endpoints need.
type SessionService interface {
	Session() wallet.Session
	Connect(ctx context.Context) (wallet.Session, error)
	Disconnect()
}

// Server represents the HTTP server for the wallet dashboard backend.
type Server struct {
	addr     string
	sessions SessionService
	indexer  wallet.Indexer
	events   natspkg.Source
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The indexer is optional - if nil, the transactions proxy answers 503.
// The events source is optional - if nil, the SSE endpoint isn't available.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, sessions SessionService, indexer wallet.Indexer, events natspkg.Source, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		sessions: sessions,
		indexer:  indexer,
		events:   events,
		metrics:  m,
		logger:   logger,
	}
}

// Handler builds the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	instrument := func(name string, h http.Handler) http.Handler {
		return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
	}

	mux.Handle("GET /api/transactions", instrument("/api/transactions", handleTransactions(s.indexer, s.logger)))

	mux.Handle("GET /api/session", instrument("/api/session", handleGetSession(s.sessions)))
	mux.Handle("POST /api/session/connect", instrument("/api/session/connect", handleConnect(s.sessions, s.logger)))
	mux.Handle("POST /api/session/disconnect", instrument("/api/session/disconnect", handleDisconnect(s.sessions, s.logger)))

	if s.events != nil {
		mux.Handle("GET /api/stream/session", handleStreamSession(s.events, s.sessions, s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoint enabled")
	} else {
		s.logger.Warn("event source not configured, streaming endpoint disabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
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
		// No write timeout: the SSE stream is long-lived.
		IdleTimeout: 60 * time.Second,
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
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
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
